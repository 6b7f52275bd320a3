package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/samvad-hq/portaldb-go/internal/app"
	"github.com/samvad-hq/portaldb-go/internal/config"
	"github.com/samvad-hq/portaldb-go/internal/logger"
)

type CLI struct {
	Request   RequestCmd   `cmd:"" help:"Send one request and print the JSON response body."`
	Endpoints EndpointsCmd `cmd:"" help:"List endpoints declared by the configured OpenAPI schema."`
	History   HistoryCmd   `cmd:"" help:"List recent calls from the local journal."`
	Version   VersionCmd   `cmd:"" help:"Print version information."`
}

// runtime carries what commands need; the session is opened on first use so
// that version never touches config.
type runtime struct {
	ctx    context.Context
	stdout io.Writer
	sess   *app.Session
}

func (rt *runtime) session() (*app.Session, error) {
	if rt.sess != nil {
		return rt.sess, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.Init(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	sess, err := app.NewSession(rt.ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rt.sess = sess
	return sess, nil
}

func (rt *runtime) close() {
	if rt.sess != nil {
		if err := rt.sess.Close(); err != nil {
			logger.ErrorObj("session close failed", "error", err.Error())
		}
	}
	_ = logger.Close()
}

type RequestCmd struct {
	Method string            `arg:"" help:"HTTP method (GET, POST, PATCH, ...)."`
	Path   string            `arg:"" help:"Path below the base URL, starting with '/'."`
	Body   string            `help:"JSON request body, or @file to read it from a file."`
	Header map[string]string `help:"Extra request header as key=value. Repeatable." short:"H"`
	Query  []string          `help:"Query parameter as key=value. Repeatable." short:"q" sep:"none"`
}

func (c *RequestCmd) Run(rt *runtime) error {
	call, err := c.call()
	if err != nil {
		return err
	}
	sess, err := rt.session()
	if err != nil {
		return err
	}

	resp, err := sess.Execute(rt.ctx, call)
	if err != nil {
		return err
	}
	if resp.Body == nil {
		return nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, *resp.Body, "", "  "); err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(rt.stdout)
	return err
}

func (c *RequestCmd) call() (app.Call, error) {
	call := app.Call{Method: c.Method, Path: c.Path, Headers: c.Header}

	body := c.Body
	if strings.HasPrefix(body, "@") {
		raw, err := os.ReadFile(strings.TrimPrefix(body, "@"))
		if err != nil {
			return app.Call{}, fmt.Errorf("read body file: %w", err)
		}
		body = string(raw)
	}
	if strings.TrimSpace(body) != "" {
		call.Body = json.RawMessage(body)
	}

	for _, pair := range c.Query {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return app.Call{}, fmt.Errorf("query %q is not in key=value form", pair)
		}
		if call.Query == nil {
			call.Query = url.Values{}
		}
		call.Query.Add(strings.TrimSpace(key), val)
	}
	return call, nil
}

type EndpointsCmd struct{}

func (c *EndpointsCmd) Run(rt *runtime) error {
	sess, err := rt.session()
	if err != nil {
		return err
	}
	eps := sess.Endpoints()
	if len(eps) == 0 {
		logger.WarnObj("no schema configured", "hint", "set PORTALDB_SCHEMA_FILE")
		return nil
	}

	tw := tabwriter.NewWriter(rt.stdout, 0, 4, 2, ' ', 0)
	for _, ep := range eps {
		summary := ep.Operation.Summary
		if summary == "" {
			summary = ep.Operation.OperationID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ep.Method, ep.Path, summary)
	}
	return tw.Flush()
}

type HistoryCmd struct {
	Limit int `help:"Maximum number of entries to show." default:"20" short:"n"`
}

func (c *HistoryCmd) Run(rt *runtime) error {
	sess, err := rt.session()
	if err != nil {
		return err
	}
	calls, err := sess.History(c.Limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(rt.stdout, 0, 4, 2, ' ', 0)
	for _, call := range calls {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\n",
			call.StartedAt.Format("2006-01-02T15:04:05Z07:00"), call.Method, call.Path, call.Status, call.DurationMs, call.Error)
	}
	return tw.Flush()
}

type VersionCmd struct{}

func (c *VersionCmd) Run(rt *runtime) error {
	_, err := fmt.Fprintln(rt.stdout, Version())
	return err
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "portaldb: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("portaldb"),
		kong.Description("Typed command line client for the Portal DB REST API."),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := &runtime{ctx: ctx, stdout: stdout}
	defer rt.close()

	return kctx.Run(rt)
}
