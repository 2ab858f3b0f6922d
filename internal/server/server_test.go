package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/chartloom-cli/internal/store"
	"github.com/KaramelBytes/chartloom-cli/internal/testutil"
)

const salesCSV = `date,region,sales,units
2024-01-01,north,10,1
2024-01-02,south,20,2
2024-01-15,north,,3
2024-02-01,south,5,4
2024-02-10,north,7,5
2024-03-05,south,9,6
`

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	cfg.Logger = testutil.Logger(t)
	ts := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func uploadBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func upload(t *testing.T, ts *httptest.Server, filename, content string) *http.Response {
	t.Helper()
	body, ctype := uploadBody(t, "file", filename, content)
	resp, err := http.Post(ts.URL+"/api/upload", ctype, body)
	require.NoError(t, err)
	return resp
}

func uploadOK(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := upload(t, ts, "sales.csv", salesCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	id, _ := out["dataset_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, Version, out["version"])
	assert.EqualValues(t, 0, out["datasets_loaded"])
}

func TestUploadClassifiesColumns(t *testing.T) {
	ts := newTestServer(t, Config{PreviewRows: 2})
	resp := upload(t, ts, "sales.csv", salesCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)

	assert.Equal(t, "sales.csv", out["filename"])
	assert.Equal(t, []any{6.0, 4.0}, out["shape"])
	assert.Equal(t, map[string]any{
		"date": "datetime", "region": "categorical", "sales": "numeric", "units": "numeric",
	}, out["dtypes"])
	assert.Len(t, out["preview"], 2)
	missing := out["missing_values"].(map[string]any)
	assert.EqualValues(t, 1, missing["sales"])
	defaults := out["defaults"].(map[string]any)
	assert.Equal(t, "date", defaults["date_column"])
	assert.Equal(t, "sales", defaults["value_column"])

	first := out["preview"].([]any)[0].(map[string]any)
	assert.Equal(t, "2024-01-01", first["date"])
	assert.Equal(t, 10.0, first["sales"])
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t, Config{MaxUploadBytes: 2048})

	resp := upload(t, ts, "notes.txt", "a,b\n1,2\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "unsupported file type")

	body, ctype := uploadBody(t, "other", "sales.csv", salesCSV)
	resp, err := http.Post(ts.URL+"/api/upload", ctype, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no file provided", decode(t, resp)["error"])

	resp = upload(t, ts, "big.csv", "a,b\n"+strings.Repeat("1,2\n", 2000))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()

	resp = upload(t, ts, "empty.csv", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDataPagination(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := uploadOK(t, ts)

	resp, err := http.Get(ts.URL + "/api/data/" + id + "?limit=2&offset=3")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	rows := out["data"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-02-01", rows[0].(map[string]any)["date"])
	page := out["pagination"].(map[string]any)
	assert.EqualValues(t, 6, page["total_rows"])
	assert.EqualValues(t, 2, page["returned_rows"])

	resp, err = http.Get(ts.URL + "/api/data/" + id + "?limit=abc")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/data/" + id + "?offset=-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/data/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := uploadOK(t, ts)
	resp, err := http.Get(ts.URL + "/api/stats/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, id, out["dataset_id"])
	assert.EqualValues(t, 6, out["rows"])
	assert.EqualValues(t, 2, out["numeric_columns"])
	assert.Equal(t, []any{"2024-01-01", "2024-03-05"}, out["date_range"])
}

func TestVisualize(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := uploadOK(t, ts)

	resp := postJSON(t, ts, "/api/visualize", map[string]any{
		"dataset_id": id, "chart_type": "line", "x_axis": "date", "y_axis": "sales", "color": "region",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	fig := out["chart_data"].(map[string]any)
	assert.Len(t, fig["data"], 2)
	params := out["parameters"].(map[string]any)
	assert.Equal(t, "date", params["x_axis"])
	assert.Nil(t, params["category"])
	info := out["dataset_info"].(map[string]any)
	assert.EqualValues(t, 6, info["rows_used"])
	assert.Equal(t, []any{"date", "sales", "region"}, info["columns_used"])
}

func TestVisualizeDateFilterAndResample(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := uploadOK(t, ts)

	resp := postJSON(t, ts, "/api/visualize", map[string]any{
		"dataset_id": id, "chart_type": "time_series", "date_column": "date", "y_axis": "sales",
		"resample": "month", "start_date": "2024-01-01", "end_date": "2024-02-28",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	info := out["dataset_info"].(map[string]any)
	assert.Equal(t, true, info["filter_applied"])
	assert.EqualValues(t, 5, info["rows_used"])
	trace := out["chart_data"].(map[string]any)["data"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"2024-01-01", "2024-02-01"}, trace["x"])
	assert.Equal(t, []any{15.0, 6.0}, trace["y"])
}

func TestVisualizeValidationErrors(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := uploadOK(t, ts)
	cases := []struct {
		name   string
		body   map[string]any
		status int
		msg    string
	}{
		{"missing dataset", map[string]any{"chart_type": "line"}, http.StatusBadRequest, "dataset_id"},
		{"unknown dataset", map[string]any{"dataset_id": "x", "chart_type": "line"}, http.StatusNotFound, "not found"},
		{"unknown type", map[string]any{"dataset_id": id, "chart_type": "radar", "x_axis": "date"}, http.StatusBadRequest, "chart_type"},
		{"unknown column", map[string]any{"dataset_id": id, "chart_type": "line", "x_axis": "date", "y_axis": "profit"}, http.StatusBadRequest, "profit"},
		{"missing y", map[string]any{"dataset_id": id, "chart_type": "scatter", "x_axis": "sales"}, http.StatusBadRequest, "y_axis"},
		{"pair plot", map[string]any{"dataset_id": id, "chart_type": "pair_plot", "columns": []string{"sales"}}, http.StatusBadRequest, "at least 2"},
		{"bad date", map[string]any{"dataset_id": id, "chart_type": "line", "x_axis": "date", "y_axis": "sales", "start_date": "soon"}, http.StatusBadRequest, "start_date"},
		{"bad agg", map[string]any{"dataset_id": id, "chart_type": "aggregation", "group_by": "region", "agg_columns": []string{"sales"}, "agg_func": "median"}, http.StatusBadRequest, "agg_func"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts, "/api/visualize", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Contains(t, decode(t, resp)["error"], tc.msg)
		})
	}

	resp, err := http.Post(ts.URL+"/api/visualize", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestExportFormats(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := uploadOK(t, ts)
	base := map[string]any{"dataset_id": id, "chart_type": "aggregation", "group_by": "region", "agg_columns": []string{"sales"}, "agg_func": "sum"}
	with := func(format string) map[string]any {
		m := map[string]any{"format": format}
		for k, v := range base {
			m[k] = v
		}
		return m
	}

	resp := postJSON(t, ts, "/api/export", with("csv"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "region,sales\nnorth,17\nsouth,34\n", string(b))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "sales_aggregation.csv")

	resp = postJSON(t, ts, "/api/export", with("xlsx"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f, err := excelize.OpenReader(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	rows, err := f.GetRows(f.GetSheetList()[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "sales"}, rows[0])

	resp = postJSON(t, ts, "/api/export", with("png"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/export", with("pdf"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/export", map[string]any{"dataset_id": id, "chart_type": "correlation_heatmap", "format": "png"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["error"], "no image export")
}

func TestDatasetsListAndDelete(t *testing.T) {
	ts := newTestServer(t, Config{})
	id := uploadOK(t, ts)

	resp, err := http.Get(ts.URL + "/api/datasets")
	require.NoError(t, err)
	out := decode(t, resp)
	assert.EqualValues(t, 1, out["count"])

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/datasets/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestUnknownRouteAndMetrics(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + "/api/nowhere")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "endpoint not found", decode(t, resp)["error"])

	uploadOK(t, ts)
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(b), "chartloom_uploads_total")
	assert.Contains(t, string(b), `route="/api/upload"`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	st := store.New(store.Options{TTL: time.Minute})
	srv := New(Config{Store: st, SweepEvery: 10 * time.Millisecond, Logger: testutil.Logger(t)})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
