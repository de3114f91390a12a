// Package aggregate turns heterogeneous inputs (files, folders, zip
// archives, cloned repositories) into consolidated Markdown documents.
// The pipeline discovers processable units, loads and decodes their
// content, renders one Markdown section per unit, and writes either a
// single combined document or one file per section.
package aggregate

import "time"

// FileUnit is a single processable file discovered under an input root.
type FileUnit struct {
	RelPath string // Slash-separated path relative to its root; archive layers are joined with "/".
	AbsPath string // Location on disk; may point into a temporary extraction directory.
	Root    string // The input root the unit was discovered under.
	Size    int64  // Size in bytes, captured at discovery time.
	Ext     string // Lowercased extension, including the leading dot.
	Index   int    // Discovery order, unique across the whole run.

	lang *language // Resolved catalog entry for fence and category decisions.
}

// Metadata is the per-section provenance block.
type Metadata struct {
	GeneratedAt time.Time // Captured when the unit is rendered.
	Source      string    // The unit's relative path.
}

// RenderedSection is the Markdown rendering of one FileUnit.
type RenderedSection struct {
	Heading string    // Final heading, unique within the run.
	Anchor  string    // Markdown anchor derived from the heading, unique within the run.
	Meta    *Metadata // nil when metadata is disabled.
	Body    string    // Verbatim content, fenced for code and data categories.
	Source  string    // The originating unit's relative path.
	Index   int       // The originating unit's discovery index.
}

// TOCEntry is one line of the table of contents.
type TOCEntry struct {
	Heading string
	Anchor  string
}

// TableOfContents lists rendered sections in document order.
type TableOfContents struct {
	Entries []TOCEntry
}

// RunSummary reports the outcome of a pipeline run. It is returned for
// successful, failed, and cancelled runs alike.
type RunSummary struct {
	Processed int           `json:"processed"`        // Units rendered and written.
	Skipped   int           `json:"skipped"`          // Units skipped with a reason (binary, too large, empty, unsupported).
	Errored   int           `json:"errored"`          // Units that failed with a recoverable error.
	Tokens    int64         `json:"tokens,omitempty"` // Total token count across rendered content, when counting is enabled.
	Elapsed   time.Duration `json:"elapsed"`
}

// Skip reasons recorded in events and summaries.
const (
	SkipBinary      = "binary/undecodable"
	SkipTooLarge    = "too large"
	SkipEmpty       = "empty"
	SkipUnsupported = "unsupported"
	SkipArchiveDeep = "archive nesting too deep"
)

// State describes the pipeline's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StateProcessing
	StateWriting
	StateDone
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateProcessing:
		return "processing"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
