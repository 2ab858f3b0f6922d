package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/export"
	"github.com/KaramelBytes/chartloom-cli/internal/parser"
	"github.com/KaramelBytes/chartloom-cli/internal/render"
	"github.com/KaramelBytes/chartloom-cli/internal/store"
)

const maxJSONBody = 1 << 20

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "Chartloom data visualization API",
		"version":         Version,
		"datasets_loaded": s.store.Len(),
		"endpoints": map[string]string{
			"upload":    "POST /api/upload",
			"data":      "GET /api/data/{id}",
			"stats":     "GET /api/stats/{id}",
			"visualize": "POST /api/visualize",
			"export":    "POST /api/export",
			"datasets":  "GET /api/datasets",
			"delete":    "DELETE /api/datasets/{id}",
			"metrics":   "GET /metrics",
		},
	})
}

type uploadResponse struct {
	Message       string                   `json:"message"`
	DatasetID     string                   `json:"dataset_id"`
	Filename      string                   `json:"filename"`
	Shape         [2]int                   `json:"shape"`
	Columns       []string                 `json:"columns"`
	Dtypes        map[string]analysis.Kind `json:"dtypes"`
	ColumnKinds   analysis.ColumnKinds     `json:"column_kinds"`
	Preview       []map[string]any         `json:"preview"`
	MissingValues map[string]int           `json:"missing_values"`
	Defaults      analysis.Defaults        `json:"defaults"`
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	d, err := s.ingest(w, r)
	if err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		s.fail(w, r, err)
		return
	}
	uploadsTotal.WithLabelValues("ok").Inc()
	datasetsStored.Set(float64(s.store.Len()))
	s.logger.Info("dataset uploaded", "id", d.ID, "file", d.Filename, "rows", d.Table.Rows(), "cols", d.Table.Cols())

	sum := summarize(d)
	writeJSON(w, http.StatusOK, uploadResponse{
		Message:       "File uploaded successfully",
		DatasetID:     d.ID,
		Filename:      d.Filename,
		Shape:         sum.Shape,
		Columns:       sum.Columns,
		Dtypes:        sum.Dtypes,
		ColumnKinds:   d.Kinds,
		Preview:       records(d.Table.Slice(0, s.cfg.PreviewRows)),
		MissingValues: missingByColumn(d.Table),
		Defaults:      d.Defaults,
	})
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) (*store.Dataset, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || statusFor(err) == http.StatusRequestEntityTooLarge {
			return nil, err
		}
		return nil, badRequest("invalid multipart upload: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, badRequest("no file provided")
		}
		return nil, badRequest("read upload: %v", err)
	}
	defer file.Close()
	if hdr.Filename == "" {
		return nil, badRequest("no file selected")
	}
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	tbl, err := parser.Parse(raw, hdr.Filename, s.cfg.Options)
	if err != nil {
		return nil, err
	}
	kinds := analysis.Classify(tbl, s.cfg.Options)
	return s.store.Add(hdr.Filename, tbl, kinds), nil
}

func (s *Server) data(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := dataQuery{Limit: 100}
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		if raw := r.URL.Query().Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				s.fail(w, r, badRequest("invalid %s: %q", name, raw))
				return
			}
			*dst = n
		}
	}
	if err := checkStruct(q); err != nil {
		s.fail(w, r, err)
		return
	}
	page := d.Table.Slice(q.Offset, q.Limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset_id": d.ID,
		"data":       records(page),
		"pagination": map[string]int{
			"offset":        q.Offset,
			"limit":         q.Limit,
			"total_rows":    d.Table.Rows(),
			"returned_rows": page.Rows(),
		},
		"summary": summarize(d),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep := analysis.Describe(d.Table, d.Kinds)
	if first, last, ok := dateRange(d); ok {
		writeJSON(w, http.StatusOK, struct {
			DatasetID string `json:"dataset_id"`
			*analysis.Report
			DateRange [2]string `json:"date_range"`
		}{d.ID, rep, [2]string{first, last}})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		DatasetID string `json:"dataset_id"`
		*analysis.Report
	}{d.ID, rep})
}

// dateRange is the span of the default date column, the dashboard's
// date-range KPI.
func dateRange(d *store.Dataset) (string, string, bool) {
	if !d.Defaults.DateColumn.IsSet() {
		return "", "", false
	}
	c, ok := d.Table.Column(d.Defaults.DateColumn.Name())
	if !ok {
		return "", "", false
	}
	first, last, ok := analysis.TimeRange(c)
	if !ok {
		return "", "", false
	}
	return first.Format(time.DateOnly), last.Format(time.DateOnly), true
}

// resolve validates a decoded envelope and builds the chart spec from its dataset.
func (s *Server) resolve(req visualizeRequest) (*store.Dataset, *chart.Spec, error) {
	if err := checkStruct(req); err != nil {
		return nil, nil, err
	}
	d, err := s.store.Get(req.DatasetID)
	if err != nil {
		return nil, nil, err
	}
	creq, err := req.chartRequest()
	if err != nil {
		return nil, nil, err
	}
	spec, err := chart.Validate(creq, d.Table, d.Kinds)
	if err != nil {
		return nil, nil, err
	}
	return d, spec, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func (s *Server) visualize(w http.ResponseWriter, r *http.Request) {
	var req visualizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, spec, err := s.resolve(req)
	if err != nil {
		chartsTotal.WithLabelValues(kindLabel(req.ChartType), outcome(err)).Inc()
		s.fail(w, r, err)
		return
	}
	fig, err := render.NewFigure(spec)
	if err != nil {
		chartsTotal.WithLabelValues(string(spec.Kind), "error").Inc()
		s.fail(w, r, err)
		return
	}
	chartsTotal.WithLabelValues(string(spec.Kind), "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"chart_data": fig,
		"chart_type": spec.Kind,
		"parameters": parameters(spec),
		"dataset_info": map[string]any{
			"total_rows":     d.Table.Rows(),
			"rows_used":      spec.Data.Rows(),
			"columns_used":   spec.ColumnsUsed(),
			"filter_applied": spec.FilterApplied,
		},
	})
}

// kindLabel keeps metric label values within the fixed chart types.
func kindLabel(raw string) string {
	if k, err := chart.ParseKind(raw); err == nil {
		return string(k)
	}
	return "unknown"
}

func outcome(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "error"
	}
	return "invalid"
}

func parameters(spec *chart.Spec) map[string]any {
	p := map[string]any{
		"title":       spec.Title,
		"x_axis":      spec.X,
		"y_axis":      spec.Y,
		"color":       spec.Color,
		"category":    spec.Category,
		"value":       spec.Value,
		"date_column": spec.Date,
		"group_by":    spec.GroupBy,
	}
	if len(spec.Columns) > 0 {
		p["columns"] = spec.Columns
	}
	switch spec.Kind {
	case chart.TimeSeries:
		p["resample"] = spec.Resample
	case chart.Aggregation:
		p["agg_func"] = spec.AggFunc
	}
	return p
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := checkStruct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, spec, err := s.resolve(req.visualizeRequest)
	if err != nil {
		chartsTotal.WithLabelValues(kindLabel(req.ChartType), outcome(err)).Inc()
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	contentType := "image/png"
	if req.Format == "png" {
		err = render.PNG(&buf, spec, req.Width, req.Height)
	} else {
		f := export.Format(req.Format)
		contentType = f.ContentType()
		err = export.Write(&buf, spec.ExportTable(), f)
	}
	if err != nil {
		chartsTotal.WithLabelValues(string(spec.Kind), outcome(err)).Inc()
		s.fail(w, r, err)
		return
	}
	chartsTotal.WithLabelValues(string(spec.Kind), "ok").Inc()

	name := fmt.Sprintf("%s_%s.%s", d.Table.Name, spec.Kind, req.Format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) datasets(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		DatasetID  string    `json:"dataset_id"`
		Filename   string    `json:"filename"`
		Shape      [2]int    `json:"shape"`
		Columns    []string  `json:"columns"`
		UploadedAt time.Time `json:"uploaded_at"`
	}
	list := s.store.List()
	out := make([]entry, len(list))
	for i, d := range list {
		out[i] = entry{d.ID, d.Filename, [2]int{d.Table.Rows(), d.Table.Cols()}, d.Table.Names(), d.UploadedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out, "count": len(out)})
}

func (s *Server) deleteDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(id); err != nil {
		s.fail(w, r, err)
		return
	}
	datasetsStored.Set(float64(s.store.Len()))
	s.logger.Info("dataset deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Dataset deleted", "dataset_id": id})
}
