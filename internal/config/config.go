package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Secrets (session cookie, MCP token, database URL) are never read from or
// written to the YAML file. They come from the environment or a .env file.

const (
	DefaultPath       = "schoolsync.yaml"
	DefaultListen     = "127.0.0.1:8080"
	DefaultBaseURL    = "https://classes.esdallas.org"
	DefaultSQLitePath = "schoolsync.db"
)

// SchoologyConfig describes the portal account being scraped.
type SchoologyConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	UserID  string `yaml:"user_id" json:"user_id"`
	// CalendarView is an optional extra path segment of the calendar endpoint.
	CalendarView string `yaml:"calendar_view,omitempty" json:"calendar_view,omitempty"`
	// CourseIDs lists the courses whose materials are synced.
	CourseIDs []int64 `yaml:"course_ids" json:"course_ids"`

	TimeoutSeconds    int `yaml:"timeout_seconds" json:"timeout_seconds"`
	RateLimit         int `yaml:"rate_limit" json:"rate_limit"`
	RateWindowSeconds int `yaml:"rate_window_seconds" json:"rate_window_seconds"`

	// Cookie is the raw Cookie header of a logged-in browser session.
	Cookie string `yaml:"-" json:"-"`
}

// SyncConfig controls the background scheduler and the fetch window.
type SyncConfig struct {
	IntervalMinutes     int `yaml:"interval_minutes" json:"interval_minutes"`
	JitterSeconds       int `yaml:"jitter_seconds" json:"jitter_seconds"`
	MisfireGraceSeconds int `yaml:"misfire_grace_seconds" json:"misfire_grace_seconds"`
	LookbackDays        int `yaml:"lookback_days" json:"lookback_days"`
	LookaheadDays       int `yaml:"lookahead_days" json:"lookahead_days"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path" json:"path"`
	// URL is the Postgres connection string.
	URL string `yaml:"-" json:"-"`
}

type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

type ICSConfig struct {
	// Name is the calendar title shown by subscribing clients.
	Name         string `yaml:"name" json:"name"`
	CacheSeconds int    `yaml:"cache_seconds" json:"cache_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the MCP endpoint and feeds.
	Listen string `yaml:"listen" json:"listen"`

	Schoology SchoologyConfig `yaml:"schoology" json:"schoology"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Log       LogConfig       `yaml:"log" json:"log"`
	ICS       ICSConfig       `yaml:"ics" json:"ics"`

	// MCPToken, if set, is required as a bearer token on /mcp.
	MCPToken string `yaml:"-" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{Sync: SyncConfig{JitterSeconds: 60}}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}

	s := &c.Schoology
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	s.UserID = strings.TrimSpace(s.UserID)
	s.Cookie = strings.TrimSpace(s.Cookie)
	if s.CourseIDs == nil {
		s.CourseIDs = []int64{}
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = 20
	}
	if s.RateLimit <= 0 {
		s.RateLimit = 15
	}
	if s.RateWindowSeconds <= 0 {
		s.RateWindowSeconds = 5
	}

	y := &c.Sync
	if y.IntervalMinutes <= 0 {
		y.IntervalMinutes = 5
	}
	// 0 은 jitter 끄기로 해석하므로 음수만 교정한다.
	if y.JitterSeconds < 0 {
		y.JitterSeconds = 0
	}
	if y.MisfireGraceSeconds <= 0 {
		y.MisfireGraceSeconds = 300
	}
	if y.LookbackDays <= 0 {
		y.LookbackDays = 7
	}
	if y.LookaheadDays <= 0 {
		y.LookaheadDays = 60
	}

	d := &c.Database
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	if d.Driver == "" {
		d.Driver = "sqlite"
	}
	if d.Path == "" {
		d.Path = DefaultSQLitePath
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 20
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 28
	}

	if c.ICS.Name == "" {
		c.ICS.Name = "Schoology"
	}
	if c.ICS.CacheSeconds <= 0 {
		c.ICS.CacheSeconds = 30
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Schoology.Cookie == "" {
		errs = append(errs, errors.New("SCHOOLOGY_COOKIE is not set"))
	}
	if c.Schoology.UserID == "" {
		errs = append(errs, errors.New("SCHOOLOGY_USER_ID is not set"))
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	case "postgres", "postgresql", "pgx":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("invalid listen address %q: %w", c.Listen, err))
	}
	return errors.Join(errs...)
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	switch c.Database.Driver {
	case "postgres", "postgresql", "pgx":
		return c.Database.URL
	default:
		if c.Database.URL != "" {
			return c.Database.URL
		}
		return c.Database.Path
	}
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

func (c *Config) SyncJitter() time.Duration {
	return time.Duration(c.Sync.JitterSeconds) * time.Second
}

func (c *Config) MisfireGrace() time.Duration {
	return time.Duration(c.Sync.MisfireGraceSeconds) * time.Second
}

func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Sync.LookbackDays) * 24 * time.Hour
}

func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.Sync.LookaheadDays) * 24 * time.Hour
}

// Load loads configuration from the given YAML path, then applies the
// environment on top.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (first run) and used.
//   - If the file exists, it is parsed and normalized.
//   - Environment overrides are applied last, so they win over the file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// Keys missing from the file keep their defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides cfg with the recognized environment variables. Unset
// or empty variables leave the file value alone.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get("SCHOOLOGY_COOKIE"); v != "" {
		cfg.Schoology.Cookie = v
	}
	if v := get("SCHOOLOGY_USER_ID"); v != "" {
		cfg.Schoology.UserID = v
	}
	if v := get("SCHOOLOGY_BASE_URL"); v != "" {
		cfg.Schoology.BaseURL = v
	}
	if v := get("SCHOOLOGY_COURSE_IDS"); v != "" {
		ids, err := ParseCourseIDs(v)
		if err != nil {
			return fmt.Errorf("SCHOOLOGY_COURSE_IDS: %w", err)
		}
		cfg.Schoology.CourseIDs = ids
	}

	host, port := get("APP_HOST"), get("APP_PORT")
	if host != "" || port != "" {
		curHost, curPort, err := net.SplitHostPort(cfg.Listen)
		if err != nil {
			curHost, curPort, _ = net.SplitHostPort(DefaultListen)
		}
		if host != "" {
			curHost = host
		}
		if port != "" {
			if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("APP_PORT: invalid port %q", port)
			}
			curPort = port
		}
		cfg.Listen = net.JoinHostPort(curHost, curPort)
	}

	if v := get("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := get("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := get("MCP_TOKEN"); v != "" {
		cfg.MCPToken = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// ParseCourseIDs parses a comma separated id list. Blank entries are
// ignored and duplicates collapse to their first occurrence.
func ParseCourseIDs(s string) ([]int64, error) {
	out := []int64{}
	seen := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid course id %q", part)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schoolsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
