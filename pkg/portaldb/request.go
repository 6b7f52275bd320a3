package portaldb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/schema"

	"github.com/samvad-hq/portaldb-go/pkg/httpclient"
)

var queryEncoder = schema.NewEncoder()

var allowedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
}

// Response is the outcome of a successful (2xx) call. Body is nil when the
// server returned no JSON to decode.
type Response[T any] struct {
	Status int
	Header http.Header
	Body   *T
}

// requestConfig collects per-call settings.
type requestConfig struct {
	body       any
	hasBody    bool
	headers    map[string]string
	query      url.Values
	pathParams map[string]string
	err        error
}

// RequestOption customises a single call.
type RequestOption func(*requestConfig)

// WithBody sets the request body; it is encoded as JSON.
func WithBody(v any) RequestOption {
	return func(rc *requestConfig) {
		rc.body = v
		rc.hasBody = v != nil
	}
}

// WithHeader overrides one header for this call only.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		if rc.headers == nil {
			rc.headers = make(map[string]string)
		}
		rc.headers[key] = value
	}
}

// WithRequestHeaders overrides several headers for this call only.
func WithRequestHeaders(headers map[string]string) RequestOption {
	return func(rc *requestConfig) {
		for k, v := range headers {
			WithHeader(k, v)(rc)
		}
	}
}

// WithQuery appends query parameters, e.g. PostgREST filters.
func WithQuery(q url.Values) RequestOption {
	return func(rc *requestConfig) {
		if rc.query == nil {
			rc.query = make(url.Values)
		}
		for k, vs := range q {
			rc.query[k] = append(rc.query[k], vs...)
		}
	}
}

// WithQueryParams encodes a struct into query parameters using its `schema`
// field tags, e.g. `schema:"select,omitempty"`.
func WithQueryParams(v any) RequestOption {
	return func(rc *requestConfig) {
		if v == nil {
			return
		}
		q := url.Values{}
		if err := queryEncoder.Encode(v, q); err != nil {
			rc.err = fmt.Errorf("encode query params: %w", err)
			return
		}
		WithQuery(q)(rc)
	}
}

// WithPathParams substitutes {name} segments of the path.
func WithPathParams(params map[string]string) RequestOption {
	return func(rc *requestConfig) {
		if rc.pathParams == nil {
			rc.pathParams = make(map[string]string, len(params))
		}
		for k, v := range params {
			rc.pathParams[k] = v
		}
	}
}

// Request performs one call and decodes a JSON response into Resp.
func Request[Resp any](ctx context.Context, c *Client, method, path string, opts ...RequestOption) (*Response[Resp], error) {
	if c == nil {
		return nil, fmt.Errorf("portaldb client is nil")
	}
	rc := requestConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&rc)
		}
	}

	raw, err := c.dispatch(ctx, method, path, rc)
	if err != nil {
		return nil, err
	}
	return decodeResponse[Resp](raw)
}

// Do performs one call and returns the undecoded JSON body.
func (c *Client) Do(ctx context.Context, method, path string, opts ...RequestOption) (*Response[json.RawMessage], error) {
	return Request[json.RawMessage](ctx, c, method, path, opts...)
}

func (c *Client) dispatch(ctx context.Context, method, path string, rc requestConfig) (httpclient.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if rc.err != nil {
		return nil, rc.err
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if _, ok := allowedMethods[method]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if rc.hasBody && (method == http.MethodGet || method == http.MethodHead) {
		return nil, fmt.Errorf("%w: %s requests cannot carry a body", ErrInvalidBody, method)
	}

	path, err := expandPath(path, rc.pathParams)
	if err != nil {
		return nil, err
	}

	if err := c.checkEndpoint(method, path, rc.hasBody); err != nil {
		return nil, err
	}

	var payload []byte
	if rc.hasBody {
		payload, err = json.Marshal(rc.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	target := c.buildURL(path, rc.query)
	req := &httpclient.Request{
		Method:  method,
		URL:     target,
		Headers: c.mergeHeaders(rc.headers),
		Body:    payload,
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: rate limit: %w", method, path, err)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	rec := CallRecord{
		Method:    method,
		Path:      path,
		URL:       target,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
	}

	if err != nil {
		rec.Err = err
		c.finish(ctx, rec)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	rec.Status = resp.StatusCode()
	if !isSuccess(rec.Status) {
		httpErr := newHTTPError(method, path, resp)
		rec.Err = httpErr
		c.finish(ctx, rec)
		return nil, httpErr
	}

	c.finish(ctx, rec)
	return resp, nil
}

func (c *Client) finish(ctx context.Context, rec CallRecord) {
	fields := map[string]any{
		"method":      rec.Method,
		"path":        rec.Path,
		"status":      rec.Status,
		"duration_ms": rec.Duration.Milliseconds(),
	}
	if rec.Err != nil {
		fields["error"] = rec.Err.Error()
		c.log.WarnObj("portaldb call failed", "call", fields)
	} else {
		c.log.DebugObj("portaldb call completed", "call", fields)
	}
	if c.observer != nil {
		c.observer(ctx, rec)
	}
}

func (c *Client) checkEndpoint(method, path string, hasBody bool) error {
	if c.schema == nil {
		return nil
	}
	ep, ok := c.schema.Lookup(method, path)
	if !ok {
		if allowed := c.schema.AllowedMethods(path); len(allowed) > 0 {
			return fmt.Errorf("%w: %s %s (allowed: %s)", ErrUnknownEndpoint, method, path, strings.Join(allowed, ", "))
		}
		return fmt.Errorf("%w: %s %s", ErrUnknownEndpoint, method, path)
	}
	if hasBody && !ep.AcceptsBody() {
		return fmt.Errorf("%w: %s %s does not accept a request body", ErrInvalidBody, method, ep.Path)
	}
	if !hasBody && ep.RequiresBody() {
		return fmt.Errorf("%w: %s %s requires a request body", ErrInvalidBody, method, ep.Path)
	}
	return nil
}

func (c *Client) buildURL(path string, q url.Values) string {
	target := c.baseURL + path
	if len(q) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return target + sep + q.Encode()
}

// mergeHeaders layers per-call overrides on top of the defaults.
func (c *Client) mergeHeaders(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(c.headers)+len(overrides))
	for k, v := range c.headers {
		out[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(k) == "" {
			continue
		}
		out[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
	}
	return out
}

func expandPath(path string, params map[string]string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: %q must start with '/'", ErrInvalidPath, path)
	}
	if !strings.Contains(path, "{") {
		return path, nil
	}

	rawPath, query, hasQuery := strings.Cut(path, "?")
	segs := strings.Split(rawPath, "/")
	for i, seg := range segs {
		if len(seg) < 3 || seg[0] != '{' || seg[len(seg)-1] != '}' {
			continue
		}
		name := seg[1 : len(seg)-1]
		val, ok := params[name]
		if !ok || val == "" {
			return "", fmt.Errorf("%w: missing value for path parameter %q", ErrInvalidPath, name)
		}
		segs[i] = url.PathEscape(val)
	}
	out := strings.Join(segs, "/")
	if hasQuery {
		out += "?" + query
	}
	return out, nil
}

func decodeResponse[T any](raw httpclient.Response) (*Response[T], error) {
	out := &Response[T]{
		Status: raw.StatusCode(),
		Header: raw.Header(),
	}
	body := raw.Body()
	if !isJSONContentType(out.Header.Get("Content-Type")) || len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}

	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &DecodeError{Status: out.Status, ContentType: out.Header.Get("Content-Type"), Err: err}
	}
	out.Body = &v
	return out, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// isJSONContentType accepts application/json and any +json media type such as
// application/vnd.pgrst.object+json.
func isJSONContentType(ct string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(ct), ";")
	mt = strings.TrimSpace(mt)
	return mt == contentTypeJSON || strings.HasSuffix(mt, "+json")
}
