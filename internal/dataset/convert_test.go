package dataset

import (
	"testing"
)

// ----------------------------------------------------------------------------
// ParseNumber Tests
// ----------------------------------------------------------------------------

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   float64
	}{
		{name: "positive integer", input: "123", wantOK: true, want: 123},
		{name: "zero", input: "0", wantOK: true, want: 0},
		{name: "negative integer", input: "-456", wantOK: true, want: -456},
		{name: "decimal", input: "123.45", wantOK: true, want: 123.45},
		{name: "leading decimal point", input: ".99", wantOK: true, want: 0.99},
		{name: "scientific notation", input: "1.5e3", wantOK: true, want: 1500},
		{name: "dollar with thousands", input: "$1,234.56", wantOK: true, want: 1234.56},
		{name: "euro sign", input: "€99", wantOK: true, want: 99},
		{name: "pound sign", input: "£50", wantOK: true, want: 50},
		{name: "accounting negative", input: "(123.45)", wantOK: true, want: -123.45},
		{name: "whitespace padded", input: "  42  ", wantOK: true, want: 42},
		{name: "empty", input: "", wantOK: false},
		{name: "blank", input: "   ", wantOK: false},
		{name: "text", input: "hello", wantOK: false},
		{name: "mixed text and digits", input: "12abc", wantOK: false},
		{name: "double decimal point", input: "1.2.3", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input  string
		wantOK bool
		want   bool
	}{
		{input: "true", wantOK: true, want: true},
		{input: "Yes", wantOK: true, want: true},
		{input: "Y", wantOK: true, want: true},
		{input: "1", wantOK: true, want: true},
		{input: "false", wantOK: true, want: false},
		{input: "No", wantOK: true, want: false},
		{input: "0", wantOK: true, want: false},
		{input: "", wantOK: false},
		{input: "maybe", wantOK: false},
		{input: "2", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := ParseBool(tt.input)
		if ok != tt.wantOK {
			t.Errorf("ParseBool(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseBool(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// CleanCell / CleanHeader Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain value", input: "hello", want: "hello"},
		{name: "surrounding whitespace", input: "  hello  ", want: "hello"},
		{name: "utf8 bom", input: "\uFEFFhello", want: "hello"},
		{name: "excel formula prefix", input: `="00123"`, want: "00123"},
		{name: "redundant wrapping quotes", input: `"hello"`, want: "hello"},
		{name: "quotes kept when internal quote", input: `"say ""hi"""`, want: `"say ""hi"""`},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanHeader(t *testing.T) {
	if got := CleanHeader("  What   is\tyour  role "); got != "What is your role" {
		t.Errorf("CleanHeader collapsed whitespace wrong: %q", got)
	}
	if got := CleanHeader("\uFEFFQ1"); got != "Q1" {
		t.Errorf("CleanHeader BOM: got %q", got)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{input: 1, want: "1"},
		{input: 1.5, want: "1.5"},
		{input: 0.25, want: "0.25"},
		{input: -3, want: "-3"},
		{input: 1500, want: "1500"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.input); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCellNumber(t *testing.T) {
	if _, ok := (Cell{}).Number(); ok {
		t.Error("missing cell should not parse as number")
	}
	got, ok := (Cell{String: "$5", Valid: true}).Number()
	if !ok || got != 5 {
		t.Errorf("Number() = %v, %v, want 5, true", got, ok)
	}
}
