package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient creates a new RestyClient with the specified timeout. A zero
// timeout leaves requests bounded only by their context.
func NewRestyClient(timeout time.Duration) *RestyClient {
	c := resty.New()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &RestyClient{client: c}
}

// Do performs a single HTTP request. Retries stay disabled; resty's default retry count is zero.
func (r *RestyClient) Do(ctx context.Context, in *Request) (Response, error) {
	if in == nil {
		return nil, fmt.Errorf("nil request")
	}
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}

	req := r.client.R().SetContext(ctx)
	if len(in.Headers) > 0 {
		req.SetHeaders(in.Headers)
	}
	if in.Body != nil {
		req.SetBody(in.Body)
	}

	resp, err := req.Execute(method, in.URL)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte        { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int     { return r.resp.StatusCode() }
func (r *restyResponseAdapter) Header() http.Header { return r.resp.Header() }

// Status returns the reason phrase without the numeric code, e.g. "Not Found".
func (r *restyResponseAdapter) Status() string {
	status := r.resp.Status()
	if code, text, ok := strings.Cut(status, " "); ok && code == fmt.Sprint(r.resp.StatusCode()) {
		return text
	}
	if status == "" {
		return http.StatusText(r.resp.StatusCode())
	}
	return status
}
