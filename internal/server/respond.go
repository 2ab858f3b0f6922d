package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/parser"
	"github.com/KaramelBytes/chartloom-cli/internal/render"
	"github.com/KaramelBytes/chartloom-cli/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		reqErr   *requestError
		parseErr *parser.ParseError
		tooBig   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooBig), err != nil && strings.Contains(err.Error(), "request body too large"):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &reqErr), errors.As(err, &parseErr), chart.IsValidation(err),
		errors.Is(err, render.ErrNoImage), errors.Is(err, render.ErrNoData):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	case http.StatusRequestEntityTooLarge:
		msg = "file too large"
	default:
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, slog.String("error", msg))
	}
	writeError(w, status, msg)
}

// records renders table rows for JSON: nulls and non-finite numbers are
// null and times use the display format.
func records(t *analysis.Table) []map[string]any {
	out := make([]map[string]any, t.Rows())
	for i := range out {
		rec := make(map[string]any, t.Cols())
		for _, c := range t.Columns {
			switch v := c.Value(i).(type) {
			case float64:
				if math.IsNaN(v) || math.IsInf(v, 0) {
					rec[c.Name] = nil
				} else {
					rec[c.Name] = v
				}
			case nil:
				rec[c.Name] = nil
			case bool, string:
				rec[c.Name] = v
			default:
				rec[c.Name] = c.String(i)
			}
		}
		out[i] = rec
	}
	return out
}

func missingByColumn(t *analysis.Table) map[string]int {
	out := make(map[string]int, t.Cols())
	for _, c := range t.Columns {
		out[c.Name] = c.Len() - c.NonNull()
	}
	return out
}

type summary struct {
	Shape   [2]int                   `json:"shape"`
	Columns []string                 `json:"columns"`
	Dtypes  map[string]analysis.Kind `json:"dtypes"`
}

func summarize(d *store.Dataset) summary {
	return summary{
		Shape:   [2]int{d.Table.Rows(), d.Table.Cols()},
		Columns: d.Table.Names(),
		Dtypes:  d.Kinds.Map(),
	}
}
