// Package logctx carries the request or event scoped logger on a context.
package logctx

import (
	"context"

	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
)

type ctxKey struct{}

// With returns ctx carrying logger. A nil logger leaves ctx untouched.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger stored on ctx, or nil.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	if l, ok := ctx.Value(ctxKey{}).(observability.Logger); ok {
		return l
	}
	return nil
}

// FromOr is From with a fallback for contexts that never passed through a
// transport middleware (background workers, tests).
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if l := From(ctx); l != nil {
		return l
	}
	return fallback
}

// Enrich stores a child of the context logger (or base when ctx has none)
// that carries fields on every entry.
func Enrich(ctx context.Context, base observability.Logger, fields ...observability.Field) context.Context {
	l := FromOr(ctx, base)
	if l == nil {
		l = observability.NopLogger()
	}
	if len(fields) > 0 {
		l = l.With(fields...)
	}
	return With(ctx, l)
}
