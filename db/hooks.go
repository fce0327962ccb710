package db

import (
	"context"
	"log/slog"
	"time"
)

// Hook is called before and after every statement.
//
// Implementations must be goroutine-safe and should not block. A panic
// inside a hook is recovered and logged; it never reaches the caller.
type Hook interface {
	BeforeQuery(ctx context.Context, query string, args []any)

	// AfterQuery runs once the outcome is known: after Scan for QueryRow,
	// after the rows are drained or closed for Query. err is already mapped.
	AfterQuery(ctx context.Context, query string, args []any, duration time.Duration, err error)
}

// hookChain fans a statement out to every configured hook.
type hookChain []Hook

func newHookChain(hooks []Hook) hookChain {
	var c hookChain
	for _, h := range hooks {
		if h != nil {
			c = append(c, h)
		}
	}
	return c
}

func (c hookChain) Before(ctx context.Context, query string, args []any) {
	for _, h := range c {
		guard("BeforeQuery", func() { h.BeforeQuery(ctx, query, args) })
	}
}

func (c hookChain) After(ctx context.Context, query string, args []any, d time.Duration, err error) {
	for _, h := range c {
		guard("AfterQuery", func() { h.AfterQuery(ctx, query, args, d, err) })
	}
}

// guard runs fn and turns a panic into an error log entry.
func guard(phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("storefront/db: hook panicked", "phase", phase, "panic", r)
		}
	}()
	fn()
}

// ── Logging hook ─────────────────────────────────────────────────────────────

// LogHookConfig configures the structured logging hook.
type LogHookConfig struct {
	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
	// SlowQueryThreshold logs a warning when duration exceeds this value.
	// Zero disables slow-query logging.
	SlowQueryThreshold time.Duration
	// LogArgs includes bound parameters. Keep it off outside development:
	// arguments carry emails and password hashes.
	LogArgs bool
}

// NewLogHook returns a Hook that emits one slog record per statement.
func NewLogHook(cfg LogHookConfig) Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &logHook{cfg: cfg, logger: logger}
}

type logHook struct {
	cfg    LogHookConfig
	logger *slog.Logger
}

func (h *logHook) BeforeQuery(_ context.Context, _ string, _ []any) {}

func (h *logHook) AfterQuery(ctx context.Context, query string, args []any, d time.Duration, err error) {
	attrs := []any{
		slog.String("query", trimQuery(query)),
		slog.Duration("duration", d),
	}
	if h.cfg.LogArgs && len(args) > 0 {
		attrs = append(attrs, slog.Any("args", args))
	}

	switch {
	case err != nil && IsNotFound(err):
		h.logger.DebugContext(ctx, "storefront/db: no rows", attrs...)
	case err != nil:
		h.logger.ErrorContext(ctx, "storefront/db: query error", append(attrs, slog.Any("error", err))...)
	case h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold:
		h.logger.WarnContext(ctx, "storefront/db: slow query", attrs...)
	default:
		h.logger.DebugContext(ctx, "storefront/db: query", attrs...)
	}
}

func trimQuery(q string) string {
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}

// ── Metrics hook ─────────────────────────────────────────────────────────────

// MetricsCollector receives one observation per statement. The storefront
// binary plugs in the Prometheus collector from package metrics.
type MetricsCollector interface {
	RecordQuery(query string, duration time.Duration, success bool)
}

// NewMetricsHook returns a Hook that forwards to a MetricsCollector.
func NewMetricsHook(collector MetricsCollector) Hook {
	return &metricsHook{c: collector}
}

type metricsHook struct{ c MetricsCollector }

func (h *metricsHook) BeforeQuery(_ context.Context, _ string, _ []any) {}
func (h *metricsHook) AfterQuery(_ context.Context, query string, _ []any, d time.Duration, err error) {
	// A miss is a normal outcome for lookups by id.
	h.c.RecordQuery(query, d, err == nil || IsNotFound(err))
}
