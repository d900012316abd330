package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/mcp"
	"schoolsync/internal/syncer"
)

const (
	DefaultICSCacheTTL = 30 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// BriefingSource builds the data the widget page is pre-filled with.
type BriefingSource interface {
	Briefing(ctx context.Context, rangeKey string, includeAll bool) (mcp.Briefing, error)
}

// CalendarRenderer renders the iCalendar feed.
type CalendarRenderer interface {
	Render(ctx context.Context) ([]byte, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SyncStatus exposes the scheduler's view of the last cycle.
type SyncStatus interface {
	LastResult() (syncer.Result, bool)
	Running() bool
}

// Options wires the HTTP surface. Nil components disable their routes with
// 503 responses instead of failing construction.
type Options struct {
	Listen string

	MCP      http.Handler
	Briefing BriefingSource
	Calendar CalendarRenderer
	DB       Pinger
	Sync     SyncStatus

	// MCPToken, if set, is required as a bearer token on /mcp.
	MCPToken    string
	ICSCacheTTL time.Duration
}

// Server provides the MCP endpoint, the calendar feed and the widget page.
type Server struct {
	opts Options
	mux  *http.ServeMux

	// In-memory cache for /calendar.ics so calendar apps polling often do
	// not hit the database on every request.
	icsMu    sync.RWMutex
	icsCache *icsCache
	now      func() time.Time
}

type icsCache struct {
	body      []byte
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	if opts.ICSCacheTTL <= 0 {
		opts.ICSCacheTTL = DefaultICSCacheTTL
	}
	s := &Server{
		opts: opts,
		mux:  http.NewServeMux(),
		now:  time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return requestLogger(s.mux)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.opts.Listen, "mcp_auth", s.opts.MCPToken != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// ctx 는 이미 취소됐으므로 별도 타임아웃 컨텍스트로 정리한다.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/mcp", s.bearerAuth(s.mcpHandler()))
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/widget/briefing", s.handleWidget)
	s.mux.HandleFunc("/api/sync", s.handleSyncStatus)
}

func (s *Server) mcpHandler() http.Handler {
	if s.opts.MCP == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "mcp endpoint not configured")
		})
	}
	return s.opts.MCP
}

// bearerAuth guards next with MCPToken. Missing credentials get 401, wrong
// ones 403.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	token := s.opts.MCPToken
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="schoolsync"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if !secureCompare(got, token) {
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type healthResponse struct {
	Status      string         `json:"status"`
	Database    string         `json:"database"`
	SyncRunning bool           `json:"sync_running"`
	LastSync    *syncer.Result `json:"last_sync,omitempty"`
}

// handleHealthz also checks the database, for orchestrators that restart
// unhealthy containers.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "unknown"}
	status := http.StatusOK

	if s.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.DB.Ping(ctx); err != nil {
			appLog.Error("health check: database ping failed", err)
			resp.Status, resp.Database = "degraded", "error"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	if s.opts.Sync != nil {
		resp.SyncRunning = s.opts.Sync.Running()
		if last, ok := s.opts.Sync.LastResult(); ok {
			resp.LastSync = &last
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	last, ok := s.opts.Sync.LastResult()
	if !ok {
		writeError(w, http.StatusNotFound, "no sync has run yet")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

// handleCalendar serves the iCalendar feed.
//
// GET /calendar.ics
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.Calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar export not configured")
		return
	}

	now := s.now()
	s.icsMu.RLock()
	c := s.icsCache
	s.icsMu.RUnlock()

	if c == nil || now.Sub(c.updatedAt) >= s.opts.ICSCacheTTL {
		body, err := s.opts.Calendar.Render(r.Context())
		if err != nil {
			appLog.Error("calendar export failed", err)
			writeError(w, http.StatusInternalServerError, "failed to render calendar")
			return
		}
		c = &icsCache{body: body, updatedAt: now}

		s.icsMu.Lock()
		s.icsCache = c
		s.icsMu.Unlock()
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="schoolsync.ics"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(c.body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(c.body)
	}
}

var widgetPage = template.Must(template.New("briefing").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Daily Briefing</title>
<script>window.openai = { toolResponseMetadata: { ui: {{.Briefing}} } };</script>
</head>
<body>
{{.Widget}}
</body>
</html>
`))

type widgetPageData struct {
	Briefing mcp.Briefing
	Widget   template.HTML
}

// handleWidget serves the briefing widget as a standalone page, pre-filled
// with the current briefing so it renders without an assistant host.
//
// GET /widget/briefing?range=today|48h|week&include_all=1
func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	if s.opts.Briefing == nil {
		writeError(w, http.StatusServiceUnavailable, "briefing not configured")
		return
	}

	q := r.URL.Query()
	includeAll, _ := strconv.ParseBool(q.Get("include_all"))

	b, err := s.opts.Briefing.Briefing(r.Context(), q.Get("range"), includeAll)
	if err != nil {
		appLog.Error("widget briefing failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build briefing")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	// WidgetHTML is our own embedded file.
	data := widgetPageData{Briefing: b, Widget: template.HTML(mcp.WidgetHTML())}
	if err := widgetPage.Execute(w, data); err != nil {
		appLog.Error("failed to render widget page", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
