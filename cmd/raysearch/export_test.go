package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func testRows() []exportRow {
	return []exportRow{
		{Rank: 1, ID: "chest_01.png", Category: "chest xray", Score: 0.9512, Path: "/data/chest/chest_01.png"},
		{Rank: 2, ID: "dental_07.jpg", Category: "dental xray", Score: 0.72},
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer

	if err := exportJSON(&buf, testRows()); err != nil {
		t.Fatalf("exportJSON failed: %v", err)
	}

	var rows []exportRow
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != "chest_01.png" || rows[0].Score != 0.9512 {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if strings.Contains(buf.String(), `"path": ""`) {
		t.Error("empty path should be omitted")
	}
}

func TestExportJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := exportJSON(&buf, nil); err != nil {
		t.Fatalf("exportJSON failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty results should encode as [], got %q", buf.String())
	}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer

	if err := exportCSV(&buf, testRows()); err != nil {
		t.Fatalf("exportCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "rank,image_name,category,score,path" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][1] != "chest_01.png" || records[1][3] != "0.9512" {
		t.Errorf("row 1 = %v", records[1])
	}
}

func TestExportMarkdown(t *testing.T) {
	var buf bytes.Buffer

	if err := exportMarkdown(&buf, testRows()); err != nil {
		t.Fatalf("exportMarkdown failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"| # | Image | Category | Similarity |",
		"| 1 | [chest_01.png](/data/chest/chest_01.png) | chest xray | 0.951 |",
		"| 2 | dental_07.jpg | dental xray | 0.720 |",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("markdown output missing %q:\n%s", want, output)
		}
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestExportersReportWriteErrors(t *testing.T) {
	closed := errors.New("pipe closed")
	for name, export := range exporters {
		err := export(failingWriter{err: closed}, testRows())
		if !errors.Is(err, closed) {
			t.Errorf("%s exporter: err = %v, want %v", name, err, closed)
		}
	}
}

func TestExportText(t *testing.T) {
	var buf bytes.Buffer
	if err := exportText(&buf, testRows()); err != nil {
		t.Fatalf("exportText failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "0.9512") || !strings.Contains(lines[0], "[chest xray]") {
		t.Errorf("line 0 = %q", lines[0])
	}

	buf.Reset()
	exportText(&buf, nil)
	if !strings.Contains(buf.String(), "No results found.") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path   string
		maxLen int
		want   string
	}{
		{"short.png", 50, "short.png "},
		{"a_very_long_image_name_from_the_collection.png", 20, "...he_collection.png "},
	}

	for _, tt := range tests {
		got := truncatePath(tt.path, tt.maxLen)
		if got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.maxLen, got, tt.want)
		}
	}
}
