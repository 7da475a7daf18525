package sideeffect

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dukerupert/huddle/internal/metrics"
)

func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer, *prometheus.Registry) {
	t.Helper()
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return New(logger, metrics.New(reg)), &buf, reg
}

func TestRunSuccess(t *testing.T) {
	r, buf, _ := newTestRunner(t)
	called := false
	ok := r.Run(context.Background(), "noop", func(context.Context) error {
		called = true
		return nil
	})
	if !ok || !called {
		t.Errorf("ok = %v, called = %v; want true, true", ok, called)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}

func TestRunErrorIsSwallowed(t *testing.T) {
	r, buf, reg := newTestRunner(t)
	ok := r.Run(context.Background(), "achievement: first message", func(context.Context) error {
		return errors.New("db locked")
	})
	if ok {
		t.Error("expected ok = false")
	}
	if !strings.Contains(buf.String(), "db locked") {
		t.Errorf("log missing error: %s", buf.String())
	}
	if n := testutil.CollectAndCount(reg, "huddle_side_effect_failures_total"); n != 1 {
		t.Errorf("failure series = %d, want 1", n)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	r, buf, _ := newTestRunner(t)
	ok := r.Run(context.Background(), "explode", func(context.Context) error {
		panic("kaboom")
	})
	if ok {
		t.Error("expected ok = false after panic")
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Errorf("log missing panic value: %s", buf.String())
	}
}
