// Package report serializes the immutable values produced by the pipeline
// (entity.TopologyReport, diff.Report) to their on-disk wire format. Per
// spec Non-goals, JSON is the only format implemented here; Markdown/Mermaid
// emission is represented by the Renderer interface only.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"labtopo/internal/diff"
	"labtopo/internal/entity"
)

// Renderer represents an out-of-core serializer for a completed scan — the
// Markdown/Mermaid emitters spec §1 treats as external collaborators. No
// implementation ships here; a caller wiring one in supplies it from outside
// this module.
type Renderer interface {
	RenderTopology(w io.Writer, report *entity.TopologyReport) error
	RenderDiff(w io.Writer, report diff.Report) error
}

// WriteTopology JSON-encodes report to w.
func WriteTopology(w io.Writer, report *entity.TopologyReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("report: write topology: %w", err)
	}
	return nil
}

// WriteDiff JSON-encodes a diff report to w.
func WriteDiff(w io.Writer, d diff.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("report: write diff: %w", err)
	}
	return nil
}
