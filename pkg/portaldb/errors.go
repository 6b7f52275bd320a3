package portaldb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/portaldb-go/pkg/httpclient"
)

var (
	// ErrInvalidMethod is returned for verbs outside the supported set.
	ErrInvalidMethod = errors.New("invalid http method")
	// ErrInvalidPath is returned for malformed paths or missing path parameters.
	ErrInvalidPath = errors.New("invalid path")
	// ErrUnknownEndpoint is returned when the schema has no such method and path.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrInvalidBody is returned when a body is missing, unexpected or fails validation.
	ErrInvalidBody = errors.New("invalid request body")
)

const maxErrorBodyBytes = 1024

// HTTPError is returned for any non-2xx response. Nothing is retried.
type HTTPError struct {
	Method     string
	Path       string
	Status     int
	StatusText string
	// Body holds at most the first 1 KiB of the response.
	Body []byte
	// Detail is a human readable reason extracted from the body, if any.
	Detail string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d: %s", e.Status, e.StatusText)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsStatus reports whether err carries an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}

// DecodeError is returned when a JSON response body cannot be decoded into the
// expected type.
type DecodeError struct {
	Status      int
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response (status %d): %v", e.ContentType, e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newHTTPError(method, path string, resp httpclient.Response) *HTTPError {
	body := resp.Body()
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	statusText := strings.TrimSpace(resp.Status())
	if statusText == "" {
		statusText = http.StatusText(resp.StatusCode())
	}
	return &HTTPError{
		Method:     method,
		Path:       path,
		Status:     resp.StatusCode(),
		StatusText: statusText,
		Body:       append([]byte(nil), body...),
		Detail:     errorDetail(resp.Header().Get("Content-Type"), resp.Body()),
	}
}

// errorDetail pulls a short reason out of PostgREST style JSON errors or the
// title of an HTML error page served by a proxy in front of the API.
func errorDetail(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if isJSONContentType(contentType) || trimmed[0] == '{' {
		var payload map[string]any
		if err := json.Unmarshal(trimmed, &payload); err == nil {
			for _, key := range []string{"message", "error", "details", "hint"} {
				if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
			}
		}
		return ""
	}

	if strings.Contains(strings.ToLower(contentType), "html") || trimmed[0] == '<' {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
		if err != nil {
			return ""
		}
		if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
			return title
		}
		return strings.TrimSpace(doc.Find("h1").First().Text())
	}

	return ""
}
