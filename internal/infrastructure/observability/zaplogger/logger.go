// Package zaplogger adapts zap to the observability.Logger port.
package zaplogger

import (
	"fmt"
	"time"

	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"go.uber.org/zap"
)

type logger struct{ z *zap.Logger }

// New wraps l, or the global zap logger when l is nil, with fixed fields
// attached to every entry.
func New(l *zap.Logger, fixed ...observability.Field) observability.Logger {
	if l == nil {
		l = zap.L()
	}
	return &logger{z: l.With(zapFields(fixed)...)}
}

func (l *logger) With(fields ...observability.Field) observability.Logger {
	if len(fields) == 0 {
		return l
	}
	return &logger{z: l.z.With(zapFields(fields)...)}
}

func (l *logger) Debug(msg string, fields ...observability.Field) { l.z.Debug(msg, zapFields(fields)...) }
func (l *logger) Info(msg string, fields ...observability.Field)  { l.z.Info(msg, zapFields(fields)...) }
func (l *logger) Warn(msg string, fields ...observability.Field)  { l.z.Warn(msg, zapFields(fields)...) }
func (l *logger) Error(msg string, fields ...observability.Field) { l.z.Error(msg, zapFields(fields)...) }

func (l *logger) Sync() error { return l.z.Sync() }

// zapFields picks a typed zap field for the value kinds the services log
// most. Anything else goes through zap.Any.
func zapFields(fs []observability.Field) []zap.Field {
	if len(fs) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fs))
	for _, f := range fs {
		switch v := f.Value.(type) {
		case nil:
			out = append(out, zap.Skip())
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case time.Time:
			out = append(out, zap.Time(f.Key, v))
		case fmt.Stringer:
			out = append(out, zap.Stringer(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}
