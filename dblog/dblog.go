// Package dblog mirrors structured log records into the catalog's logs
// table, so operational history travels with the data it describes.
//
// The handler is strictly best-effort: a failing catalog never blocks or
// crashes the application. Insert errors fall back to stderr.
package dblog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Dogebooch/doughub/catalog"
)

// Handler is a slog.Handler that tees records into the catalog logs
// table while delegating terminal output to an inner handler.
type Handler struct {
	inner    slog.Handler
	store    *catalog.Store
	minLevel slog.Level
	group    string
	attrs    []slog.Attr
}

// Option configures a Handler.
type Option func(*Handler)

// WithMinLevel sets the lowest level persisted to the catalog. Records
// below it still reach the inner handler. Default: slog.LevelInfo.
func WithMinLevel(l slog.Level) Option {
	return func(h *Handler) { h.minLevel = l }
}

// New wraps inner with catalog persistence.
func New(inner slog.Handler, store *catalog.Store, opts ...Option) *Handler {
	h := &Handler{
		inner:    inner,
		store:    store,
		minLevel: slog.LevelInfo,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= h.minLevel {
		h.persist(ctx, rec)
	}
	return h.inner.Handle(ctx, rec)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group += "." + name
	}
	return &clone
}

// persist inserts one record. Failures are reported on stderr and
// swallowed: logging must never take the application down.
func (h *Handler) persist(ctx context.Context, rec slog.Record) {
	msg := rec.Message
	var parts []string
	appendAttr := func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(appendAttr)
	if len(parts) > 0 {
		msg += " " + strings.Join(parts, " ")
	}

	logger := h.group
	if logger == "" {
		logger = "doughub"
	}

	err := h.store.InsertLog(ctx, &catalog.LogRecord{
		Level:      rec.Level.String(),
		LoggerName: logger,
		Message:    msg,
		Timestamp:  rec.Time.UnixMilli(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dblog: insert failed: %v\n", err)
	}
}
