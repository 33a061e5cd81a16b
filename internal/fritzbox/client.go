package fritzbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/icholy/digest"

	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
)

const (
	defaultTimeout = 10 * time.Second

	// maxResponseSize bounds host list documents.
	maxResponseSize = 4 << 20
)

// Logger is the optional logging interface, satisfied by *slog.Logger and
// logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Client talks TR-064 to a Fritz!Box.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL string
	http    *http.Client
	logger  Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (timeouts, transport). Digest
// authentication is layered on top of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			clone := *hc
			c.http = &clone
		}
	}
}

// WithBaseURL overrides the http://host:port derived from the configuration.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithLogger sets a logger for request tracing.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a router client from the router section of config.yaml.
//
// Parameters:
//   - cfg: Router host, TR-064 port, credentials and timeout
//   - opts: Optional overrides
//
// Returns:
//   - *Client: Client ready for use; no request is made until the first call
func New(cfg config.RouterConfig, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	c := &Client{
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.TR064Port),
		http:    &http.Client{Timeout: timeout},
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	// The recorder sits below the digest transport so it sees the
	// router's answer to the authenticated retry as well.
	c.http.Transport = &digest.Transport{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: statusRecorder{next: base},
	}
	return c
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) endpoint(path string) (*url.URL, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, path, err)
	}
	return u, nil
}

// get fetches a plain document (e.g. the host list) relative to the base URL.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrRequestFailed, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrAuthFailed
	default:
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrRequestFailed, path, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrRequestFailed, path, err)
	}
	return data, nil
}

type statusKey struct{}

// callStatus carries the last HTTP status seen for one call.
type callStatus struct {
	code int
}

func withCallStatus(ctx context.Context) (context.Context, *callStatus) {
	st := &callStatus{}
	return context.WithValue(ctx, statusKey{}, st), st
}

// statusRecorder notes response statuses on the request's callStatus, so
// failures reported as plain strings by the SOAP layer can still be
// classified.
type statusRecorder struct {
	next http.RoundTripper
}

func (s statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(req)
	if err == nil {
		if st, ok := req.Context().Value(statusKey{}).(*callStatus); ok {
			st.code = resp.StatusCode
		}
	}
	return resp, err
}
