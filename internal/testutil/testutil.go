// Package testutil holds shared helpers for package tests.
package testutil

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// Logger returns a debug-level logger that writes through t.Log, so output
// only shows for failing tests or with -v.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(tbWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type tbWriter struct{ t testing.TB }

func (w tbWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Table loads csv with default options and classifies it.
func Table(t testing.TB, name, csv string) (*analysis.Table, analysis.ColumnKinds) {
	t.Helper()
	opt := analysis.DefaultOptions()
	tbl, err := analysis.LoadCSV(strings.NewReader(csv), name, opt)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return tbl, analysis.Classify(tbl, opt)
}
