// Package schema loads an OpenAPI document and answers whether a method and
// path pair names a known endpoint.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Document is the subset of an OpenAPI 3 document the client needs.
type Document struct {
	OpenAPI string              `json:"openapi" yaml:"openapi"`
	Swagger string              `json:"swagger,omitempty" yaml:"swagger,omitempty"`
	Info    Info                `json:"info" yaml:"info"`
	Paths   map[string]PathItem `json:"paths" yaml:"paths"`

	once      sync.Once
	templates []template
}

// Info holds API metadata.
type Info struct {
	Title   string `json:"title" yaml:"title"`
	Version string `json:"version" yaml:"version"`
}

// PathItem maps lower-case HTTP methods to operations. Non-method keys such as
// "parameters" or "summary" are dropped while decoding.
type PathItem map[string]Operation

// Operation describes a single API operation on a path.
type Operation struct {
	OperationID string              `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	Summary     string              `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses,omitempty" yaml:"responses,omitempty"`
	Deprecated  bool                `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
}

// Parameter describes a single operation parameter.
type Parameter struct {
	Name     string `json:"name" yaml:"name"`
	In       string `json:"in" yaml:"in"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Ref      string `json:"$ref,omitempty" yaml:"$ref,omitempty"`
}

// RequestBody describes the request body.
type RequestBody struct {
	Required bool                 `json:"required,omitempty" yaml:"required,omitempty"`
	Content  map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
	Ref      string               `json:"$ref,omitempty" yaml:"$ref,omitempty"`
}

// MediaType is a media type object. The schema is kept opaque.
type MediaType struct {
	Schema map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Response describes a single response.
type Response struct {
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty" yaml:"content,omitempty"`
}

// Endpoint is a (path, method) pair resolved from the document.
type Endpoint struct {
	Method    string
	Path      string
	Operation Operation
}

// AcceptsBody reports whether the operation declares a request body, either as
// an OpenAPI 3 requestBody or as a Swagger 2 body parameter.
func (e Endpoint) AcceptsBody() bool {
	if e.Operation.RequestBody != nil {
		return true
	}
	for _, p := range e.Operation.Parameters {
		if p.In == "body" || strings.HasPrefix(p.Ref, "#/parameters/body.") {
			return true
		}
	}
	return false
}

// RequiresBody reports whether the operation's request body is mandatory.
func (e Endpoint) RequiresBody() bool {
	return e.Operation.RequestBody != nil && e.Operation.RequestBody.Required
}

var methods = map[string]struct{}{
	"get": {}, "head": {}, "post": {}, "put": {}, "patch": {}, "delete": {}, "options": {}, "trace": {},
}

// IsMethod reports whether m is an HTTP verb understood by the document model.
func IsMethod(m string) bool {
	_, ok := methods[strings.ToLower(strings.TrimSpace(m))]
	return ok
}

// Load reads an OpenAPI document from a YAML or JSON file.
func Load(path string) (*Document, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("schema file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}

	doc, err := Parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes an OpenAPI document. ext selects the decoder (".yaml", ".yml",
// ".json"); an empty or unknown ext tries each decoder in turn.
func Parse(data []byte, ext string) (*Document, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		ext string
		fn  func([]byte) (*Document, error)
	}{
		{ext: ".yaml", fn: decodeYAML},
		{ext: ".yml", fn: decodeYAML},
		{ext: ".json", fn: decodeJSON},
	}

	known := false
	for _, d := range decoders {
		if d.ext == ext {
			known = true
		}
	}

	var lastErr error
	for _, d := range decoders {
		if known && ext != d.ext {
			continue
		}
		doc, err := d.fn(data)
		if err != nil {
			lastErr = err
			continue
		}
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		return doc, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no decoder matched")
	}
	return nil, fmt.Errorf("schema format not recognized (expected YAML or JSON): %w", lastErr)
}

// rawDocument keeps path items loosely typed so that non-operation keys such as
// "parameters" do not break decoding.
type rawDocument[T any] struct {
	OpenAPI string                  `json:"openapi" yaml:"openapi"`
	Swagger string                  `json:"swagger" yaml:"swagger"`
	Info    Info                    `json:"info" yaml:"info"`
	Paths   map[string]map[string]T `json:"paths" yaml:"paths"`
}

func decodeYAML(data []byte) (*Document, error) {
	var raw rawDocument[yaml.Node]
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml schema: %w", err)
	}
	return fromRaw(raw, func(n yaml.Node, out *Operation) error { return n.Decode(out) })
}

func decodeJSON(data []byte) (*Document, error) {
	var raw rawDocument[json.RawMessage]
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode json schema: %w", err)
	}
	return fromRaw(raw, func(m json.RawMessage, out *Operation) error { return json.Unmarshal(m, out) })
}

func fromRaw[T any](raw rawDocument[T], decode func(T, *Operation) error) (*Document, error) {
	doc := &Document{
		OpenAPI: raw.OpenAPI,
		Swagger: raw.Swagger,
		Info:    raw.Info,
		Paths:   make(map[string]PathItem, len(raw.Paths)),
	}
	for p, item := range raw.Paths {
		ops := make(PathItem, len(item))
		for key, v := range item {
			if !IsMethod(key) {
				continue
			}
			var op Operation
			if err := decode(v, &op); err != nil {
				return nil, fmt.Errorf("path %s %s: %w", strings.ToUpper(key), p, err)
			}
			ops[key] = op
		}
		doc.Paths[p] = ops
	}
	return doc, nil
}

// Validate checks the document shape and lower-cases method keys. Parse calls
// it; documents built in code should call it before use.
func (d *Document) Validate() error {
	if d.OpenAPI == "" && d.Swagger == "" {
		return errors.New("document has neither an openapi nor a swagger version")
	}
	if len(d.Paths) == 0 {
		return errors.New("document contains no paths")
	}
	for p, item := range d.Paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("path %q must start with '/'", p)
		}
		norm := make(PathItem, len(item))
		for m, op := range item {
			lm := strings.ToLower(strings.TrimSpace(m))
			if !IsMethod(lm) {
				return fmt.Errorf("path %q declares unknown method %q", p, m)
			}
			norm[lm] = op
		}
		d.Paths[p] = norm
	}
	return nil
}

type template struct {
	path     string
	segments []string
	params   int
}

func (d *Document) compile() {
	d.once.Do(func() {
		d.templates = make([]template, 0, len(d.Paths))
		for p := range d.Paths {
			segs := splitPath(p)
			params := 0
			for _, s := range segs {
				if isParam(s) {
					params++
				}
			}
			d.templates = append(d.templates, template{path: p, segments: segs, params: params})
		}
		// Fewer parameters first so literal segments win over templated ones.
		sort.Slice(d.templates, func(i, j int) bool {
			if d.templates[i].params != d.templates[j].params {
				return d.templates[i].params < d.templates[j].params
			}
			return d.templates[i].path < d.templates[j].path
		})
	})
}

// Lookup resolves method and a concrete (already substituted) path to an
// endpoint. Query strings are ignored.
func (d *Document) Lookup(method, path string) (Endpoint, bool) {
	if d == nil {
		return Endpoint{}, false
	}
	method = strings.ToLower(strings.TrimSpace(method))
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	if item, ok := d.Paths[path]; ok {
		if op, ok := item[method]; ok {
			return Endpoint{Method: strings.ToUpper(method), Path: path, Operation: op}, true
		}
	}

	d.compile()
	segs := splitPath(path)
	for _, tpl := range d.templates {
		if tpl.params == 0 || !matchSegments(tpl.segments, segs) {
			continue
		}
		if op, ok := d.Paths[tpl.path][method]; ok {
			return Endpoint{Method: strings.ToUpper(method), Path: tpl.path, Operation: op}, true
		}
	}
	return Endpoint{}, false
}

// HasPath reports whether any method is declared for the concrete path.
func (d *Document) HasPath(path string) bool {
	if d == nil {
		return false
	}
	for m := range methods {
		if _, ok := d.Lookup(m, path); ok {
			return true
		}
	}
	return false
}

// Endpoints lists every endpoint sorted by path then method.
func (d *Document) Endpoints() []Endpoint {
	if d == nil {
		return nil
	}
	out := make([]Endpoint, 0, len(d.Paths))
	for p, item := range d.Paths {
		for m, op := range item {
			out = append(out, Endpoint{Method: strings.ToUpper(m), Path: p, Operation: op})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// AllowedMethods returns the upper-case methods declared for a concrete path.
func (d *Document) AllowedMethods(path string) []string {
	var out []string
	for m := range methods {
		if _, ok := d.Lookup(m, path); ok {
			out = append(out, strings.ToUpper(m))
		}
	}
	sort.Strings(out)
	return out
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func isParam(seg string) bool {
	return len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

func matchSegments(tpl, path []string) bool {
	if len(tpl) != len(path) {
		return false
	}
	for i, s := range tpl {
		if isParam(s) {
			if path[i] == "" {
				return false
			}
			continue
		}
		if s != path[i] {
			return false
		}
	}
	return true
}
