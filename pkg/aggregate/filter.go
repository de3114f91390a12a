package aggregate

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/monochromegane/go-gitignore"
	"go.uber.org/zap"
)

// Filter decides which discovered paths take part in a run. Exclusion
// is evaluated in order: explicit ignore-path entries, then
// gitignore-style patterns, then the extension allow-list for files.
// Directory exclusion short-circuits descent into that directory.
//
// Pattern sources are concatenated in precedence order (configured
// global file first, root .gitignore last) and compiled into one
// matcher, so a negation in a later source re-includes paths excluded
// by an earlier one, the way git layers repo patterns over global
// excludes.
type Filter struct {
	ignorePaths []string
	sources     []string // raw pattern file contents, in precedence order
	matcher     gitignore.IgnoreMatcher
	catalog     *Catalog
	logger      *zap.Logger
}

// newFilter builds the run-wide filter. A configured pattern file that
// cannot be read degrades to a warning; the run continues without it.
func newFilter(opts Options, catalog *Catalog, logger *zap.Logger) *Filter {
	f := &Filter{catalog: catalog, logger: logger}
	for _, p := range opts.IgnorePaths {
		p = strings.Trim(filepath.ToSlash(p), "/")
		if p != "" {
			f.ignorePaths = append(f.ignorePaths, p)
		}
	}
	if opts.GitignorePath != "" {
		if content, err := os.ReadFile(opts.GitignorePath); err != nil {
			logger.Warn("Ignoring unreadable pattern file",
				zap.String("path", opts.GitignorePath),
				zap.Error(err))
		} else {
			f.sources = []string{string(content)}
			f.matcher = compilePatterns(f.sources)
		}
	}
	return f
}

// withRootGitignore returns a filter that additionally applies the
// root's own .gitignore, when one exists. The root's patterns come
// after the global ones, so they take precedence. The receiver is
// unchanged; patterns from one root never leak into another.
func (f *Filter) withRootGitignore(root string) *Filter {
	gi := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gi); err != nil {
		return f
	}
	content, err := os.ReadFile(gi)
	if err != nil {
		f.logger.Warn("Ignoring unreadable .gitignore",
			zap.String("path", gi),
			zap.Error(err))
		return f
	}
	scoped := *f
	scoped.sources = append(append([]string{}, f.sources...), string(content))
	scoped.matcher = compilePatterns(scoped.sources)
	return &scoped
}

// compilePatterns joins pattern sources into a single matcher over
// paths relative to the walked root.
func compilePatterns(sources []string) gitignore.IgnoreMatcher {
	if len(sources) == 0 {
		return nil
	}
	return gitignore.NewGitIgnoreFromReader(".", strings.NewReader(strings.Join(sources, "\n")))
}

// Excluded reports whether rel is pruned from discovery. rel is
// slash-separated and relative to the current root; archive layers
// count as ordinary directories. Excluded paths produce no summary
// entry, matching how ignore rules behave in version control tools.
func (f *Filter) Excluded(rel string, isDir bool) bool {
	segments := strings.Split(rel, "/")
	for _, seg := range segments {
		if seg == ".git" {
			return true
		}
	}
	for _, entry := range f.ignorePaths {
		if strings.Contains(entry, "/") {
			if rel == entry || strings.HasPrefix(rel, entry+"/") {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if seg == entry {
				return true
			}
		}
	}
	if f.matcher != nil && f.matcher.Match(rel, isDir) {
		return true
	}
	return false
}

// ShouldInclude is the full inclusion predicate: ignore rules first,
// then the extension allow-list. Directories are never excluded by
// extension.
func (f *Filter) ShouldInclude(rel string, isDir bool) bool {
	if f.Excluded(rel, isDir) {
		return false
	}
	if isDir {
		return true
	}
	return f.catalog.Supported(rel)
}
