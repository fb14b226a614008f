package web

// handlers.go implements the JSON API. Transform requests are multipart
// uploads carrying a "data" CSV file and an "instructions" YAML file; the
// prepared output is stored in memory and fetched by result ID.

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qualprep/qualprep/internal/csvio"
	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/instruction"
	"github.com/qualprep/qualprep/internal/logging"
	"github.com/qualprep/qualprep/internal/transform"
)

// transformResponse is the summary returned after a successful run.
type transformResponse struct {
	ResultID   string              `json:"result_id"`
	Rows       int                 `json:"rows"`
	Columns    []string            `json:"columns"`
	Warnings   []transform.Warning `json:"warnings,omitempty"`
	DurationMS int64               `json:"duration_ms"`
}

// previewResponse reports whether instructions can run against a file,
// with a dry run over the first rows when the column check passes.
type previewResponse struct {
	OK       bool                `json:"ok"`
	Columns  []string            `json:"columns"`
	Steps    int                 `json:"steps"`
	Problems []string            `json:"problems,omitempty"`
	Sample   [][]string          `json:"sample,omitempty"`
	Warnings []transform.Warning `json:"warnings,omitempty"`
}

// previewSampleRows is how many input rows the preview dry run covers.
const previewSampleRows = 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"active_transforms": s.limiter.ActiveCount(),
		"stored_results":    s.store.Len(),
	})
}

func (s *Server) handleListReducers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"reducers": transform.ReducerNames()})
}

// handleTransform runs a full data preparation: parse the uploaded CSV,
// apply the uploaded instructions, store the result for download.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	if err := s.limiter.Acquire(r.Context()); err != nil {
		if errors.Is(err, ErrTooManyTransforms) {
			w.Header().Set("Retry-After", "10")
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusRequestTimeout, err.Error())
		return
	}
	defer s.limiter.Release()

	d, set, filename, ok := s.parseTransformRequest(w, r)
	if !ok {
		return
	}

	strict := s.cfg.Transform.Strict
	if v := r.FormValue("strict"); v != "" {
		strict = v == "true" || v == "1"
	}

	res, err := transform.CreateData(r.Context(), d, set, transform.Options{
		Strict: strict,
		Logger: logger,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id := s.store.Put(filename, res)
	logger.Info("transform complete",
		"result_id", id,
		"rows", res.Dataset.NumRows(),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)

	writeJSON(w, http.StatusOK, transformResponse{
		ResultID:   id,
		Rows:       res.Dataset.NumRows(),
		Columns:    res.Dataset.Columns(),
		Warnings:   res.Warnings,
		DurationMS: res.Duration.Milliseconds(),
	})
}

// handlePreview validates instructions against the uploaded file and,
// when the columns check out, dry-runs the transform over the first rows.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	d, set, _, ok := s.parseTransformRequest(w, r)
	if !ok {
		return
	}

	resp := previewResponse{
		Columns: d.Columns(),
		Steps:   len(set.Steps),
	}

	problems := transform.CheckInstructions(set, d.Columns())
	for _, p := range problems {
		resp.Problems = append(resp.Problems, p.Error())
	}
	if len(problems) > 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	res, err := transform.CreateData(r.Context(), sampleDataset(d, previewSampleRows), set, transform.Options{
		Strict: s.cfg.Transform.Strict,
		Logger: logging.FromContext(r.Context()),
	})
	if err != nil {
		resp.Problems = append(resp.Problems, err.Error())
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.OK = true
	resp.Sample = res.Dataset.Records()
	resp.Warnings = res.Warnings
	writeJSON(w, http.StatusOK, resp)
}

// sampleDataset copies at most n rows of d into a new dataset.
func sampleDataset(d *dataset.Dataset, n int) *dataset.Dataset {
	if d.NumRows() <= n {
		return d
	}
	sample, err := dataset.New(d.Columns())
	if err != nil {
		return d
	}
	for i := 0; i < n; i++ {
		if err := sample.AppendRow(d.Row(i)); err != nil {
			return d
		}
	}
	return sample
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.store.Get(chi.URLParam(r, "resultID"))
	if !ok {
		writeError(w, http.StatusNotFound, "result not found or expired")
		return
	}

	writeJSON(w, http.StatusOK, transformResponse{
		ResultID:   res.ID,
		Rows:       res.Dataset.NumRows(),
		Columns:    res.Dataset.Columns(),
		Warnings:   res.Warnings,
		DurationMS: res.Duration.Milliseconds(),
	})
}

func (s *Server) handleResultDownload(w http.ResponseWriter, r *http.Request) {
	res, ok := s.store.Get(chi.URLParam(r, "resultID"))
	if !ok {
		writeError(w, http.StatusNotFound, "result not found or expired")
		return
	}

	name := downloadName(res.Filename)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	if err := csvio.WriteTo(w, res.Dataset); err != nil {
		// Headers are already sent; log and give up.
		logging.FromContext(r.Context()).Error("result download failed", "error", err)
	}
}

// parseTransformRequest reads the multipart "data" and "instructions" parts.
// On failure it writes the error response and returns ok=false.
func (s *Server) parseTransformRequest(w http.ResponseWriter, r *http.Request) (d *dataset.Dataset, set *instruction.Set, filename string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Transform.MaxFileSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart request: %v", err))
		return nil, nil, "", false
	}

	dataFile, dataHeader, err := r.FormFile("data")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form file \"data\"")
		return nil, nil, "", false
	}
	defer dataFile.Close()

	instFile, _, err := r.FormFile("instructions")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form file \"instructions\"")
		return nil, nil, "", false
	}
	defer instFile.Close()

	set, err = parseInstructions(instFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid instructions: %v", err))
		return nil, nil, "", false
	}

	if err := attachLookups(set, r.MultipartForm.File["lookup"]); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, "", false
	}

	d, err = csvio.ReadFrom(dataFile, csvio.ReadOptions{
		Comma:             s.cfg.Transform.DelimiterRune(),
		DropQualtricsMeta: s.cfg.Transform.DropQualtricsMeta,
		MaxBytes:          s.cfg.Transform.MaxFileSize,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid CSV: %v", err))
		return nil, nil, "", false
	}

	return d, set, dataHeader.Filename, true
}

func parseInstructions(f multipart.File) (*instruction.Set, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read instructions: %w", err)
	}
	return instruction.Parse(data)
}

// attachLookups resolves lookup files referenced by normalize steps
// against the uploaded "lookup" form files, matched by base filename.
// A referenced lookup with no matching upload is an error; the CLI
// resolves these from disk, but an API client has to send them along.
func attachLookups(set *instruction.Set, uploads []*multipart.FileHeader) error {
	for i, step := range set.Steps {
		n := step.Normalize
		if n == nil || !n.NeedsLookup() {
			continue
		}

		want := filepath.Base(n.Lookup)
		var match *multipart.FileHeader
		for _, fh := range uploads {
			if filepath.Base(fh.Filename) == want {
				match = fh
				break
			}
		}
		if match == nil {
			return fmt.Errorf("step %d (normalize %q): instructions reference lookup file %q; upload it as a \"lookup\" form file", i+1, n.Column, n.Lookup)
		}

		f, err := match.Open()
		if err != nil {
			return fmt.Errorf("lookup %s: %w", want, err)
		}
		entries, err := instruction.ParseLookup(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("lookup %s: %w", want, err)
		}
		n.SetLookup(entries)
	}
	return nil
}

// downloadName derives the output filename from the uploaded one.
func downloadName(uploaded string) string {
	base := filepath.Base(uploaded)
	if base == "." || base == "/" || base == "" {
		return fmt.Sprintf("prepared-%s.csv", time.Now().Format("20060102-150405"))
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + " - prepared.csv"
}
