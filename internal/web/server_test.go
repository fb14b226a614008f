package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/qualprep/qualprep/internal/config"
	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/transform"
)

func testConfig() *config.Config {
	return &config.Config{
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
		Transform: config.TransformConfig{
			DropQualtricsMeta: true,
			MaxFileSize:       10 << 20,
			MaxConcurrent:     2,
			MaxWaitTime:       time.Second,
			ResultTTL:         time.Minute,
		},
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: time.Second,
		},
	}
}

const testInstructionsYAML = `version: 1
steps:
  - split:
      column: Q1
      delimiter: ";"
      categories:
        - value: "1"
          label: Q1_red
        - value: "2"
          label: Q1_blue
`

const testCSV = "ResponseId,Q1\nR_1,1;2\nR_2,2\n"

// multipartBody builds a multipart request body with the given named files.
func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.CreateFormFile(name, name+".txt")
		if err != nil {
			t.Fatalf("CreateFormFile(%q): %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write part %q: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s, want status ok", rec.Body.String())
	}
}

func TestListReducers(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	req := httptest.NewRequest(http.MethodGet, "/api/reducers", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	found := false
	for _, name := range resp["reducers"] {
		if name == "mean" {
			found = true
		}
	}
	if !found {
		t.Errorf("reducers = %v, want to include %q", resp["reducers"], "mean")
	}
}

func TestTransform_EndToEnd(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	body, contentType := multipartBody(t, map[string]string{
		"data":         testCSV,
		"instructions": testInstructionsYAML,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transform", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp transformResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ResultID == "" {
		t.Fatal("result_id is empty")
	}
	if resp.Rows != 2 {
		t.Errorf("rows = %d, want 2", resp.Rows)
	}

	wantCols := []string{"ResponseId", "Q1_red", "Q1_blue"}
	if len(resp.Columns) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", resp.Columns, wantCols)
	}
	for i, c := range wantCols {
		if resp.Columns[i] != c {
			t.Errorf("columns[%d] = %q, want %q", i, resp.Columns[i], c)
		}
	}

	// Fetch the stored summary
	req = httptest.NewRequest(http.MethodGet, "/api/result/"+resp.ResultID, nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("result status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Download the prepared CSV
	req = httptest.NewRequest(http.MethodGet, "/api/result/"+resp.ResultID+"/download", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/csv")
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("downloaded %d lines, want 3: %q", len(lines), rec.Body.String())
	}
	if lines[1] != "R_1,1,1" {
		t.Errorf("first data row = %q, want %q", lines[1], "R_1,1,1")
	}
	if lines[2] != "R_2,0,1" {
		t.Errorf("second data row = %q, want %q", lines[2], "R_2,0,1")
	}
}

const lookupInstructionsYAML = `version: 1
steps:
  - normalize:
      column: Q2
      lookup: colors.csv
`

const lookupCSV = "rawstring,replacement_1\ncrimson,Red\nNavy,Blue\n"

// formFile is one named upload for multipartNamedBody.
type formFile struct {
	field, filename, content string
}

func multipartNamedBody(t *testing.T, files []formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("CreateFormFile(%q): %v", f.field, err)
		}
		if _, err := fw.Write([]byte(f.content)); err != nil {
			t.Fatalf("write part %q: %v", f.field, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestTransform_LookupUpload(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	body, contentType := multipartNamedBody(t, []formFile{
		{"data", "survey.csv", "ResponseId,Q2\nR_1,Crimson\nR_2,navy\n"},
		{"instructions", "prep.yaml", lookupInstructionsYAML},
		{"lookup", "colors.csv", lookupCSV},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transform", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp transformResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/result/"+resp.ResultID+"/download", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d, want %d", rec.Code, http.StatusOK)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("downloaded %d lines, want 3: %q", len(lines), rec.Body.String())
	}
	if lines[1] != "R_1,Red" {
		t.Errorf("first data row = %q, want %q", lines[1], "R_1,Red")
	}
	if lines[2] != "R_2,Blue" {
		t.Errorf("second data row = %q, want %q", lines[2], "R_2,Blue")
	}
}

func TestTransform_MissingLookupUpload(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	body, contentType := multipartNamedBody(t, []formFile{
		{"data", "survey.csv", "ResponseId,Q2\nR_1,Crimson\n"},
		{"instructions", "prep.yaml", lookupInstructionsYAML},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transform", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "colors.csv") {
		t.Errorf("error should name the missing lookup file: %s", rec.Body.String())
	}
}

func TestPreview_ReportsUnknownReducer(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	yaml := `version: 1
steps:
  - groupby:
      key: ResponseId
      aggregations:
        - {column: Q1, reducer: biggest}
`
	body, contentType := multipartBody(t, map[string]string{
		"data":         testCSV,
		"instructions": yaml,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp previewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OK {
		t.Error("preview should report problems for an unknown reducer")
	}
	if len(resp.Problems) == 0 || !strings.Contains(resp.Problems[0], `unknown reducer "biggest"`) {
		t.Errorf("problems = %v, want mention of the unknown reducer", resp.Problems)
	}
}

func TestTransform_MissingDataFile(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	body, contentType := multipartBody(t, map[string]string{
		"instructions": testInstructionsYAML,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transform", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "data") {
		t.Errorf("error should mention the missing part: %s", rec.Body.String())
	}
}

func TestTransform_InvalidInstructions(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	body, contentType := multipartBody(t, map[string]string{
		"data":         testCSV,
		"instructions": "steps: [{split: {column: Q1}}]",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transform", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestPreview_ReportsUnknownColumn(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	yaml := strings.Replace(testInstructionsYAML, "column: Q1", "column: Q99", 1)
	body, contentType := multipartBody(t, map[string]string{
		"data":         testCSV,
		"instructions": yaml,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp previewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OK {
		t.Error("preview should report problems for unknown column")
	}
	if len(resp.Problems) == 0 || !strings.Contains(resp.Problems[0], "Q99") {
		t.Errorf("problems = %v, want mention of Q99", resp.Problems)
	}
}

func TestPreview_DryRunSample(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	body, contentType := multipartBody(t, map[string]string{
		"data":         testCSV,
		"instructions": testInstructionsYAML,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp previewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK {
		t.Fatalf("preview not ok: %v", resp.Problems)
	}
	// Sample includes the transformed header plus both rows
	if len(resp.Sample) != 3 {
		t.Fatalf("sample has %d records, want 3", len(resp.Sample))
	}
	if resp.Sample[0][1] != "Q1_red" {
		t.Errorf("sample header = %v, want Q1_red in position 1", resp.Sample[0])
	}
}

func TestSampleDataset(t *testing.T) {
	d, err := dataset.New([]string{"a"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := d.AppendStringRow([]string{"x"}); err != nil {
			t.Fatalf("AppendStringRow: %v", err)
		}
	}

	if got := sampleDataset(d, 3).NumRows(); got != 3 {
		t.Errorf("sample rows = %d, want 3", got)
	}
	// Small datasets are returned as-is
	if got := sampleDataset(d, 10); got != d {
		t.Error("sample of a small dataset should be the dataset itself")
	}
}

func TestResult_NotFound(t *testing.T) {
	s := NewServer(testConfig())
	defer s.store.close()

	req := httptest.NewRequest(http.MethodGet, "/api/result/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestResultStore_Expiry(t *testing.T) {
	store := newResultStore(10 * time.Millisecond)
	defer store.close()

	d, err := dataset.New([]string{"a"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := store.Put("input.csv", &transform.Result{Dataset: d})

	if _, ok := store.Get(id); !ok {
		t.Fatal("fresh result should be retrievable")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := store.Get(id); ok {
		t.Error("expired result should not be retrievable")
	}
}

func TestWriteError_LogLevels(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	rec := httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "result not found")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("client error logged as %q, want WARN", buf.String())
	}

	buf.Reset()
	rec = httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, "boom")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("server error logged as %q, want ERROR", buf.String())
	}
}

func TestDownloadName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"survey.csv", "survey - prepared.csv"},
		{"dir/nested/export.csv", "export - prepared.csv"},
		{"noext", "noext - prepared.csv"},
	}
	for _, tt := range tests {
		if got := downloadName(tt.in); got != tt.want {
			t.Errorf("downloadName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	// Empty names fall back to a timestamped default
	got := downloadName("")
	if !strings.HasPrefix(got, "prepared-") || !strings.HasSuffix(got, ".csv") {
		t.Errorf("downloadName(\"\") = %q, want prepared-<timestamp>.csv", got)
	}
}
