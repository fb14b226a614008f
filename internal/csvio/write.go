package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/qualprep/qualprep/internal/dataset"
)

// Write saves a Dataset as a CSV file, header first.
func Write(path string, d *dataset.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := WriteTo(f, d); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// WriteTo streams a Dataset as CSV to a writer.
func WriteTo(w io.Writer, d *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	for _, rec := range d.Records() {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFailedRows writes a sidecar report next to the output file with
// one reason column prepended to each failed record. The report is
// only created when there is at least one failure.
func WriteFailedRows(outputPath string, header []string, failed [][]string) (string, error) {
	if len(failed) == 0 {
		return "", nil
	}

	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s - failed.csv", base[:len(base)-len(ext)])
	path := filepath.Join(filepath.Dir(outputPath), name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(append([]string{"Reason"}, header...)); err != nil {
		return "", err
	}
	for _, rec := range failed {
		if err := cw.Write(rec); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	return path, nil
}
