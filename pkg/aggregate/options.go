package aggregate

import "runtime"

// Default limits applied when the corresponding option is unset.
const (
	DefaultMaxFileSizeKB   = 1024
	DefaultMaxArchiveDepth = 10
	DefaultTokenModel      = "gpt-4o"
)

// Options configures a pipeline run. The zero value is not useful;
// start from DefaultOptions. Options are treated as immutable once a
// run has started.
type Options struct {
	SingleFile      bool     // Combine everything into one document instead of one file per unit.
	IncludeMetadata bool     // Emit the per-section Metadata block.
	IncludeTOC      bool     // Emit the Table of Contents in single-file mode.
	RepoDepth       int      // Clone depth for repository inputs; 0 means full history. Consumed by the clone collaborator.
	GitignorePath   string   // Optional pattern file applied to every root.
	IgnorePaths     []string // Path names or prefixes pruned from discovery.
	Verbose         bool     // Gate chatty per-unit logging.

	MaxFileSizeKB   int // Per-file size ceiling; larger files are skipped, never truncated.
	MaxWorkers      int // Worker pool size; <=0 uses runtime.NumCPU.
	MaxArchiveDepth int // Nested archive expansion bound; beyond it archives are skipped.
	NoIgnore        bool // Disable per-root .gitignore auto-loading.

	CountTokens bool   // Count tokens across rendered content.
	TokenModel  string // Model whose encoding is used for counting.

	Title string // Document title in single-file mode; empty derives it from the destination name.

	// Progress receives structured run events. The pipeline serializes
	// calls, so the callback does not need its own locking.
	Progress ProgressFunc
}

// DefaultOptions returns the option set every front-end starts from.
func DefaultOptions() Options {
	return Options{
		SingleFile:      false,
		IncludeMetadata: true,
		IncludeTOC:      true,
		MaxFileSizeKB:   DefaultMaxFileSizeKB,
		MaxArchiveDepth: DefaultMaxArchiveDepth,
		TokenModel:      DefaultTokenModel,
	}
}

// normalized returns a copy with out-of-range values clamped to their
// defaults so the rest of the pipeline never re-checks them.
func (o Options) normalized() Options {
	if o.MaxFileSizeKB <= 0 {
		o.MaxFileSizeKB = DefaultMaxFileSizeKB
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = runtime.NumCPU()
	}
	if o.MaxArchiveDepth <= 0 {
		o.MaxArchiveDepth = DefaultMaxArchiveDepth
	}
	if o.TokenModel == "" {
		o.TokenModel = DefaultTokenModel
	}
	return o
}

// maxFileBytes is the size ceiling in bytes.
func (o Options) maxFileBytes() int64 {
	return int64(o.MaxFileSizeKB) * 1024
}
