package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

type exportRow struct {
	Rank     int     `json:"rank"`
	ID       string  `json:"image_name"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
	Path     string  `json:"path,omitempty"`
}

var exporters = map[string]func(io.Writer, []exportRow) error{
	"text":     exportText,
	"json":     exportJSON,
	"csv":      exportCSV,
	"markdown": exportMarkdown,
}

func exportText(w io.Writer, rows []exportRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No results found.")
		return err
	}
	for _, r := range rows {
		line := fmt.Sprintf("%2d. %-28s %.4f", r.Rank, r.ID, r.Score)
		if r.Category != "" {
			line += "  [" + r.Category + "]"
		}
		if r.Path != "" {
			line += "  " + r.Path
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func exportJSON(w io.Writer, rows []exportRow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if rows == nil {
		rows = []exportRow{}
	}
	return enc.Encode(rows)
}

func exportCSV(w io.Writer, rows []exportRow) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"rank", "image_name", "category", "score", "path"})
	for _, r := range rows {
		cw.Write([]string{
			strconv.Itoa(r.Rank),
			r.ID,
			r.Category,
			fmt.Sprintf("%.4f", r.Score),
			r.Path,
		})
	}
	cw.Flush()
	return cw.Error()
}

func exportMarkdown(w io.Writer, rows []exportRow) error {
	if _, err := fmt.Fprint(w, "| # | Image | Category | Similarity |\n|---|-------|----------|------------|\n"); err != nil {
		return err
	}
	for _, r := range rows {
		name := r.ID
		if r.Path != "" {
			name = fmt.Sprintf("[%s](%s)", r.ID, r.Path)
		}
		if _, err := fmt.Fprintf(w, "| %d | %s | %s | %.3f |\n", r.Rank, name, r.Category, r.Score); err != nil {
			return err
		}
	}
	return nil
}
