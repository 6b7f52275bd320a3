package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/portaldb-go/internal/config"
	"github.com/samvad-hq/portaldb-go/internal/domain"
	"github.com/samvad-hq/portaldb-go/internal/logger"
	"github.com/samvad-hq/portaldb-go/internal/storage"
	"github.com/samvad-hq/portaldb-go/pkg/httpclient"
	"github.com/samvad-hq/portaldb-go/pkg/portaldb"
	"github.com/samvad-hq/portaldb-go/pkg/publishers"
	"github.com/samvad-hq/portaldb-go/pkg/schema"
)

const (
	eventSource    = "portaldb"
	publishTimeout = 10 * time.Second
)

// Call describes one request issued through a Session.
type Call struct {
	Method  string
	Path    string
	Body    json.RawMessage
	Headers map[string]string
	Query   url.Values
}

// Session wires the client to the journal and publishers configured for it.
type Session struct {
	cfg     *config.Config
	client  *portaldb.Client
	journal storage.Journal
	fanout  *publishers.Fanout
	log     logger.Logger
}

// Option customises a Session beyond what config provides.
type Option func(*sessionOptions)

type sessionOptions struct {
	http httpclient.Client
}

// WithTransport replaces the HTTP transport used by the session client.
func WithTransport(hc httpclient.Client) Option {
	return func(o *sessionOptions) { o.http = hc }
}

// NewSession builds a session runtime from config.
func NewSession(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	var so sessionOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&so)
		}
	}

	s := &Session{cfg: cfg, log: log}

	var doc *schema.Document
	if cfg.SchemaFile != "" {
		var err error
		doc, err = schema.Load(cfg.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		log.InfoObj("schema loaded", "schema", map[string]any{
			"file":      cfg.SchemaFile,
			"title":     doc.Info.Title,
			"endpoints": len(doc.Endpoints()),
		})
	}

	journal, err := storage.NewJournal(cfg.JournalType, cfg.JournalPath, storage.Options{
		EntryTTL:        cfg.JournalTTL,
		CleanupInterval: cfg.JournalCleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	s.journal = journal

	if cfg.PublishersFile != "" {
		fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
		if err != nil {
			_ = journal.Close()
			return nil, err
		}
		s.fanout = fanout
	}

	clientOpts := []portaldb.Option{
		portaldb.WithBaseURL(cfg.BaseURL),
		portaldb.WithHeaders(cfg.Headers),
		portaldb.WithTimeout(cfg.Timeout),
		portaldb.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		portaldb.WithLogger(log),
		portaldb.WithObserver(s.observe),
	}
	if doc != nil {
		clientOpts = append(clientOpts, portaldb.WithSchema(doc))
	}
	if so.http != nil {
		clientOpts = append(clientOpts, portaldb.WithHTTPClient(so.http))
	}

	client, err := portaldb.New(clientOpts...)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("build client: %w", err)
	}
	s.client = client
	return s, nil
}

func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	reg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	if len(enabled) == 0 {
		log.WarnObj("no publishers enabled", "publishers_file", path)
		return nil, nil
	}
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	log.InfoObj("publishers registry loaded", "publishers", enabled)
	return publishers.NewFanout(pubs), nil
}

// Execute performs one call and returns the undecoded response.
func (s *Session) Execute(ctx context.Context, call Call) (*portaldb.Response[json.RawMessage], error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("session is not initialized")
	}

	var opts []portaldb.RequestOption
	if len(call.Body) > 0 {
		if !json.Valid(call.Body) {
			return nil, fmt.Errorf("%w: body is not valid JSON", portaldb.ErrInvalidBody)
		}
		opts = append(opts, portaldb.WithBody(call.Body))
	}
	if len(call.Headers) > 0 {
		opts = append(opts, portaldb.WithRequestHeaders(call.Headers))
	}
	if len(call.Query) > 0 {
		opts = append(opts, portaldb.WithQuery(call.Query))
	}
	return s.client.Do(ctx, call.Method, call.Path, opts...)
}

// Endpoints lists the endpoints of the loaded schema, or nil without one.
func (s *Session) Endpoints() []schema.Endpoint {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Schema().Endpoints()
}

// History returns up to limit journal entries, newest first.
func (s *Session) History(limit int) ([]domain.Call, error) {
	if s == nil || s.journal == nil {
		return nil, nil
	}
	calls, err := s.journal.Recent(limit)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return calls, nil
}

// Close releases the journal and any publisher connections.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.fanout != nil {
		if err := s.fanout.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publishers: %w", err))
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}

// observe records and publishes every completed call. Failures here are
// logged and never surface to the caller.
func (s *Session) observe(ctx context.Context, rec portaldb.CallRecord) {
	call := toDomainCall(rec)

	if err := s.journal.Record(call); err != nil {
		s.log.ErrorObj("journal record failed", "error", err.Error())
	}

	if s.fanout.Size() == 0 {
		return
	}
	// The request context may already be past its deadline.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if n, err := s.fanout.Publish(pctx, publishers.NewEvent(eventSource, call)); err != nil {
		s.log.ErrorObj("publish call event failed", "publish", map[string]any{
			"call_id":   call.ID,
			"delivered": n,
			"error":     err.Error(),
		})
	}
}

func toDomainCall(rec portaldb.CallRecord) domain.Call {
	call := domain.Call{
		ID:         uuid.NewString(),
		Method:     rec.Method,
		Path:       rec.Path,
		URL:        rec.URL,
		Status:     rec.Status,
		DurationMs: rec.Duration.Milliseconds(),
		StartedAt:  rec.StartedAt,
	}
	if rec.Err != nil {
		call.Error = rec.Err.Error()
	}
	return call
}
