package schoology

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/ratelimit"
)

const (
	DefaultBaseURL   = "https://classes.esdallas.org"
	DefaultTimeout   = 20 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"

	// maxBodyBytes bounds how much of a response we are willing to buffer.
	maxBodyBytes = 16 << 20
	// maxLoggedBody bounds raw bodies echoed into error logs.
	maxLoggedBody = 2048
)

var (
	ErrMissingCookie = errors.New("schoology: session cookie is not set")
	ErrMissingUserID = errors.New("schoology: user id is not set")
)

// Limiter gates every outbound request.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Options configures a Client. Cookie and UserID are required.
type Options struct {
	BaseURL string
	// Cookie is the raw Cookie header value of an authenticated browser session.
	Cookie string
	UserID string
	// CalendarView is an optional path segment appended to the calendar URL.
	CalendarView string

	Timeout    time.Duration
	UserAgent  string
	Limiter    Limiter
	HTTPClient *http.Client
}

// Client scrapes the portal's AJAX endpoints with a static session cookie.
// It is not safe for concurrent use because the limiter is meant to be
// shared by one sequential sync cycle.
type Client struct {
	base      *url.URL
	cookie    string
	userID    string
	view      string
	userAgent string

	http    *http.Client
	limiter Limiter
	now     func() time.Time
}

// NewClient validates opts and builds a Client. Missing credentials are a
// construction error, never a runtime one.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Cookie) == "" {
		return nil, ErrMissingCookie
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, ErrMissingUserID
	}

	rawBase := strings.TrimSpace(opts.BaseURL)
	if rawBase == "" {
		rawBase = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(rawBase, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("schoology: invalid base url %q", rawBase)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		base:      base,
		cookie:    strings.TrimSpace(opts.Cookie),
		userID:    strings.TrimSpace(opts.UserID),
		view:      strings.Trim(strings.TrimSpace(opts.CalendarView), "/"),
		userAgent: ua,
		http:      hc,
		limiter:   limiter,
		now:       time.Now,
	}, nil
}

// BaseURL returns the portal origin without a trailing slash.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// get issues one rate-limited GET and returns the body for 200 responses.
// For other statuses the body is still returned so callers can log it.
func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cookie", c.cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return body, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

// redactURL hides path and query (which carry user and course ids) from logs.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "schoology://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}

// logFullBody repeats a truncated failure body in full at debug level.
func logFullBody(msg, u string, body []byte) {
	if len(body) <= maxLoggedBody {
		return
	}
	appLog.Debug(msg+" (full body)", "url", redactURL(u), "bytes", len(body), "body", string(body))
}

func truncateBody(b []byte) string {
	if len(b) <= maxLoggedBody {
		return string(b)
	}
	return string(b[:maxLoggedBody]) + "...(truncated)"
}
