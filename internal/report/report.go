// Package report summarises a probe run for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"firestige.xyz/uoaprobe/internal/scenario"
)

type Report struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Passed    int           `json:"passed" yaml:"passed"`
	Failed    int           `json:"failed" yaml:"failed"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Scenarios []Entry       `json:"scenarios" yaml:"scenarios"`
}

type Entry struct {
	Name     string        `json:"name" yaml:"name"`
	Mode     string        `json:"mode" yaml:"mode"`
	Status   string        `json:"status" yaml:"status"`
	Attempts int           `json:"attempts" yaml:"attempts"`
	Total    int           `json:"total" yaml:"total"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// New builds a report for results of a run that started at startedAt.
func New(startedAt time.Time, results []scenario.Result) *Report {
	r := &Report{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Scenarios: make([]Entry, 0, len(results)),
	}
	for _, res := range results {
		e := Entry{
			Name:     res.Name,
			Mode:     res.Mode.String(),
			Status:   res.State.String(),
			Attempts: res.Attempts,
			Total:    res.Total,
			Duration: res.Duration,
			Reason:   res.Reason,
		}
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
		switch res.State {
		case scenario.Passed:
			r.Passed++
		case scenario.Skipped:
			r.Skipped++
		default:
			r.Failed++
		}
		r.Scenarios = append(r.Scenarios, e)
	}
	return r
}

// OK reports whether no scenario failed.
func (r *Report) OK() bool { return r.Failed == 0 }

// WriteText prints one line per scenario followed by a summary.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	for _, e := range r.Scenarios {
		switch e.Status {
		case scenario.Passed.String():
			fmt.Fprintf(&b, "%s ... ok\n", e.Name)
		case scenario.Skipped.String():
			fmt.Fprintf(&b, "%s ... skipped %q\n", e.Name, e.Reason)
		default:
			fmt.Fprintf(&b, "%s ... FAIL\n", e.Name)
		}
	}
	for _, e := range r.Scenarios {
		if e.Error != "" {
			fmt.Fprintf(&b, "\nFAIL: %s\n    %s\n", e.Name, e.Error)
		}
	}
	fmt.Fprintf(&b, "\nRan %d scenarios in %.3fs\n", len(r.Scenarios)-r.Skipped, r.Duration.Seconds())
	if r.OK() {
		fmt.Fprintf(&b, "\nOK (passed=%d, skipped=%d)\n", r.Passed, r.Skipped)
	} else {
		fmt.Fprintf(&b, "\nFAILED (failures=%d, passed=%d, skipped=%d)\n", r.Failed, r.Passed, r.Skipped)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Encode writes the report as YAML or JSON.
func (r *Report) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// WriteFile writes the report to path, choosing the format by extension.
func (r *Report) WriteFile(path string) error {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch format {
	case "yaml", "yml", "json":
	default:
		return fmt.Errorf("report path %q: extension must be .yaml, .yml or .json", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.Encode(f, format); err != nil {
		f.Close()
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return f.Close()
}
