package portaldb

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Endpoint binds a method and path template to request and response types.
type Endpoint[Req, Resp any] struct {
	Method string
	Path   string
}

// NewEndpoint declares a typed endpoint.
func NewEndpoint[Req, Resp any](method, path string) Endpoint[Req, Resp] {
	return Endpoint[Req, Resp]{Method: method, Path: path}
}

// NoBody marks endpoints that take no request body.
type NoBody struct{}

// Call performs the endpoint with an optional request body. Struct bodies are
// checked against their `validate` tags before anything is sent.
func Call[Req, Resp any](ctx context.Context, c *Client, ep Endpoint[Req, Resp], req *Req, opts ...RequestOption) (*Response[Resp], error) {
	if req != nil {
		if _, isNoBody := any(req).(*NoBody); !isNoBody {
			if err := validateBody(req); err != nil {
				return nil, err
			}
			opts = append([]RequestOption{WithBody(req)}, opts...)
		}
	}
	return Request[Resp](ctx, c, ep.Method, ep.Path, opts...)
}

func validateBody(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	if err := validate.Struct(rv.Interface()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}
