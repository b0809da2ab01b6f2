package zaplogger

import (
	"errors"
	"testing"
	"time"

	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsAreTyped(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core), observability.F("service", "inventory"))

	l.With(observability.F("sku", "SKU-1")).Warn("stock_low",
		observability.F("available", 2),
		observability.F("took", 15*time.Millisecond),
		observability.F("error", errors.New("boom")),
		observability.F("absent", nil),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel || e.Message != "stock_low" {
		t.Fatalf("entry = %v %q", e.Level, e.Message)
	}
	got := e.ContextMap()
	if got["service"] != "inventory" || got["sku"] != "SKU-1" {
		t.Fatalf("fixed fields missing: %v", got)
	}
	if got["available"] != int64(2) {
		t.Fatalf("available = %#v", got["available"])
	}
	if got["took"] != 15*time.Millisecond {
		t.Fatalf("took = %#v", got["took"])
	}
	if got["error"] != "boom" {
		t.Fatalf("error = %#v", got["error"])
	}
	if _, ok := got["absent"]; ok {
		t.Fatal("nil field should be skipped")
	}
}
