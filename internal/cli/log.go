// Package cli implements the docsnap command-line interface.
//
// docsnap looks at stored snapshots without needing the Go types that
// wrote them: it reads Extended JSON exports or queries a collection
// directly, and shows the tagged tree or counts which types and schema
// versions the data holds.
//
// # Commands
//
//   - inspect: print snapshots with atom tags and instance types highlighted
//   - stats: count instance records per type and version
//   - cache: manage the cache of fetched documents
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// logs every storage read. Loggers are passed through context.Context.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/docsnap/pkg/observability"
)

// newLogger creates a logger with "HH:MM:SS.ms" timestamps that filters
// messages below level.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs the elapsed time of one operation.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Fetched 42 documents (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger attached to ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// logHooks reports storage and codec events at debug level.
type logHooks struct {
	logger *log.Logger
}

func (h logHooks) OnWrite(_ context.Context, collection, op string, d time.Duration, err error) {
	h.logger.Debug("write", "collection", collection, "op", op, "took", d, "err", err)
}

func (h logHooks) OnRead(_ context.Context, collection string, documents int, d time.Duration, err error) {
	h.logger.Debug("read", "collection", collection, "documents", documents, "took", d, "err", err)
}

func (h logHooks) OnMigrate(typeName string, from, to int) {
	h.logger.Debug("migrate", "type", typeName, "from", from, "to", to)
}

func (h logHooks) OnFlatten(references int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("flatten failed", "took", d, "err", err)
	}
}

func (h logHooks) OnUnflatten(d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("unflatten failed", "took", d, "err", err)
	}
}

var (
	_ observability.StoreHooks = logHooks{}
	_ observability.CodecHooks = logHooks{}
)
