package portaldb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/samvad-hq/portaldb-go/pkg/httpclient"
	"github.com/samvad-hq/portaldb-go/pkg/schema"
)

// DefaultBaseURL is the local PostgREST address used when no base URL is given.
const DefaultBaseURL = "http://localhost:3000"

const contentTypeJSON = "application/json"

// Logger defines the logging surface the client relies on.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) InfoObj(string, string, interface{})  {}
func (noopLogger) DebugObj(string, string, interface{}) {}
func (noopLogger) WarnObj(string, string, interface{})  {}
func (noopLogger) ErrorObj(string, string, interface{}) {}

// CallRecord summarises one completed call for observers.
type CallRecord struct {
	Method    string
	Path      string
	URL       string
	Status    int
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Observer is notified after every dispatched call, successful or not. It runs
// synchronously on the calling goroutine.
type Observer func(ctx context.Context, rec CallRecord)

// Client performs typed requests against a single base URL. It is immutable
// after New and safe for concurrent use.
type Client struct {
	baseURL  string
	headers  map[string]string
	timeout  time.Duration
	http     httpclient.Client
	schema   *schema.Document
	log      Logger
	observer Observer
	limiter  *rate.Limiter
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL sets the API root. A trailing slash is trimmed.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		raw = strings.TrimRight(strings.TrimSpace(raw), "/")
		if raw == "" {
			return fmt.Errorf("base url is empty")
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base url %q must include scheme and host", raw)
		}
		c.baseURL = raw
		return nil
	}
}

// WithHeaders merges default headers over Content-Type: application/json.
// Keys are compared canonically, so "content-type" replaces the default.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) error {
		for k, v := range headers {
			if strings.TrimSpace(k) == "" {
				continue
			}
			c.headers[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
		}
		return nil
	}
}

// WithTimeout bounds every call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		c.timeout = d
		return nil
	}
}

// WithSchema enables endpoint validation against an OpenAPI document.
func WithSchema(doc *schema.Document) Option {
	return func(c *Client) error {
		c.schema = doc
		return nil
	}
}

// WithHTTPClient replaces the default resty transport.
func WithHTTPClient(hc httpclient.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.http = hc
		return nil
	}
}

// WithLogger sets the logger used for call diagnostics.
func WithLogger(log Logger) Option {
	return func(c *Client) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

// WithObserver registers a callback invoked after every call.
func WithObserver(fn Observer) Option {
	return func(c *Client) error {
		c.observer = fn
		return nil
	}
}

// WithRateLimit caps the request rate at rps with the given burst. Calls wait
// for a token and fail if their context ends first. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		if rps <= 0 {
			c.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// New builds a Client. Without options it targets DefaultBaseURL with no timeout.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: DefaultBaseURL,
		headers: map[string]string{"Content-Type": contentTypeJSON},
		log:     noopLogger{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.http == nil {
		c.http = httpclient.NewRestyClient(0)
	}
	return c, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Schema returns the OpenAPI document used for validation, if any.
func (c *Client) Schema() *schema.Document { return c.schema }

// Headers returns a copy of the default headers.
func (c *Client) Headers() map[string]string {
	out := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		out[k] = v
	}
	return out
}
