package validate

import (
	"encoding/json"
	"fmt"
	"io"
)

// Report is the JSON-serializable lint report.
type Report struct {
	TotalFindings int                    `json:"total_findings"`
	Errors        int                    `json:"errors"`
	Warnings      int                    `json:"warnings"`
	Categories    map[string]CategorySum `json:"categories"`
	Findings      []Finding              `json:"findings"`
}

// CategorySum summarizes findings for a single category.
type CategorySum struct {
	Total  int `json:"total"`
	Errors int `json:"errors"`
}

// GenerateReport builds a Report from the findings of a completed run.
func GenerateReport(findings []Finding) *Report {
	r := &Report{
		TotalFindings: len(findings),
		Categories:    make(map[string]CategorySum),
		Findings:      findings,
	}
	for _, f := range findings {
		cs := r.Categories[f.Category.String()]
		cs.Total++
		if f.Severity == SevError {
			cs.Errors++
			r.Errors++
		}
		if f.Severity == SevWarning {
			r.Warnings++
		}
		r.Categories[f.Category.String()] = cs
	}
	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes the report as human-readable lines.
func (r *Report) WriteText(w io.Writer) error {
	for _, f := range r.Findings {
		where := f.Mission
		if f.Task != "" {
			where += "/" + f.Task
		}
		if where == "" {
			where = f.Subject
		}
		if _, err := fmt.Fprintf(w, "%-7s %-12s %-28s %s\n",
			f.Severity, f.Category, where, f.Description); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d finding(s): %d error(s), %d warning(s)\n",
		r.TotalFindings, r.Errors, r.Warnings)
	return err
}
