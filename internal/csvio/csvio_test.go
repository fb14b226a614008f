package csvio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qualprep/qualprep/internal/dataset"
)

const qualtricsExport = `StartDate,Q1,Q2
Start Date,What do you do at the park?,Which state?
"{""ImportId"":""startDate""}","{""ImportId"":""QID1""}","{""ImportId"":""QID2""}"
2024-01-02,"1,3",Arizona
2024-01-03,2,New Mexico
`

func TestReadFrom_QualtricsMeta(t *testing.T) {
	d, err := ReadFrom(strings.NewReader(qualtricsExport), ReadOptions{DropQualtricsMeta: true})
	if err != nil {
		t.Fatal(err)
	}

	if d.NumRows() != 2 {
		t.Fatalf("got %d rows, want 2 (metadata rows dropped)", d.NumRows())
	}
	c, err := d.Cell(0, "Q1")
	if err != nil {
		t.Fatal(err)
	}
	if c.String != "1,3" {
		t.Errorf("Q1 = %q, want \"1,3\"", c.String)
	}
}

func TestReadFrom_MetaKeptWithoutOption(t *testing.T) {
	d, err := ReadFrom(strings.NewReader(qualtricsExport), ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if d.NumRows() != 4 {
		t.Fatalf("got %d rows, want 4", d.NumRows())
	}
}

func TestReadFrom_BOMAndPreamble(t *testing.T) {
	input := "\uFEFFExport generated 2024-01-05,,\nsome note,,\nid,score,state\n1,5,AZ\n2,3,NM\n"

	d, err := ReadFrom(strings.NewReader(input), ReadOptions{HeaderHint: []string{"id", "score"}})
	if err != nil {
		t.Fatal(err)
	}

	if d.NumRows() != 2 {
		t.Fatalf("got %d rows, want 2", d.NumRows())
	}
	if !d.HasColumn("state") {
		t.Errorf("columns = %v", d.Columns())
	}
}

func TestReadFrom_HeaderNotFound(t *testing.T) {
	_, err := ReadFrom(strings.NewReader("a,b\n1,2\n"), ReadOptions{HeaderHint: []string{"nope"}})
	if err == nil {
		t.Fatal("expected header-not-found error")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error should name the missing column: %v", err)
	}
}

func TestReadFrom_SkipsEmptyRows(t *testing.T) {
	d, err := ReadFrom(strings.NewReader("a,b\n1,2\n,\n\n3,4\n"), ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if d.NumRows() != 2 {
		t.Errorf("got %d rows, want 2", d.NumRows())
	}
}

func TestReadFrom_InvalidUTF8(t *testing.T) {
	input := "name\n" + string([]byte{0xff, 0xfe}) + "abc\n"
	d, err := ReadFrom(strings.NewReader(input), ReadOptions{})
	if err != nil {
		t.Fatalf("invalid UTF-8 should be sanitized, not fail: %v", err)
	}
	if d.NumRows() != 1 {
		t.Fatalf("got %d rows, want 1", d.NumRows())
	}
}

func TestReadFrom_MaxBytes(t *testing.T) {
	_, err := ReadFrom(strings.NewReader("a,b\n1,2\n"), ReadOptions{MaxBytes: 3})
	if err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestReadFrom_Empty(t *testing.T) {
	if _, err := ReadFrom(strings.NewReader(""), ReadOptions{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	d, err := dataset.New([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.AppendStringRow([]string{"1", "x,y"}); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendStringRow([]string{"", "z"}); err != nil {
		t.Fatal(err)
	}

	if err := Write(path, d); err != nil {
		t.Fatal(err)
	}

	got, err := Read(path, ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.NumRows() != 2 || got.NumColumns() != 2 {
		t.Fatalf("round trip shape = %dx%d, want 2x2", got.NumRows(), got.NumColumns())
	}
	c, _ := got.Cell(0, "b")
	if c.String != "x,y" {
		t.Errorf("quoted cell = %q, want \"x,y\"", c.String)
	}
	c, _ = got.Cell(1, "a")
	if !c.Missing() {
		t.Errorf("empty cell should read back as missing")
	}
}

func TestWriteFailedRows(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clean.csv")

	path, err := WriteFailedRows(out, []string{"Row", "Column", "Value"}, [][]string{
		{"no normalization entry", "3", "org", "ACME corp"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "clean - failed.csv") {
		t.Errorf("sidecar path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "Reason,Row,Column,Value\n") {
		t.Errorf("report header wrong: %q", string(data))
	}
}

func TestWriteFailedRows_NoFailures(t *testing.T) {
	path, err := WriteFailedRows("/nonexistent/clean.csv", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("no report expected, got %q", path)
	}
}
