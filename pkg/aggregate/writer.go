package aggregate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// writer assembles rendered sections into the destination. Destination
// level failures are fatal and returned; per-unit write failures in
// multi-file mode go through onError and the run continues.
type writer struct {
	opts    Options
	logger  *zap.Logger
	onError func(rel string, err error)
}

// writeSingle writes the combined document atomically: content goes to
// a temporary file in the destination directory which is renamed over
// the target only after a successful flush. A failed or cancelled run
// leaves no partial output behind.
func (w *writer) writeSingle(dest string, sections []RenderedSection, toc TableOfContents) error {
	if len(sections) == 0 {
		w.logger.Warn("No content was processed; output file not created",
			zap.String("destination", dest))
		return nil
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temporary output file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriter(tmp)
	if _, err := buf.WriteString(w.documentHeader(dest, toc)); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	for i := range sections {
		if _, err := buf.WriteString("\n---\n\n"); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		if _, err := buf.WriteString(sectionMarkdown(&sections[i])); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("replacing %s: %w", dest, err)
	}
	committed = true

	w.logger.Info("Wrote combined document",
		zap.String("destination", dest),
		zap.Int("sections", len(sections)))
	return nil
}

// writeMulti writes one file per section into dest. The directory is
// created if missing and probed for writability before the first
// section, so a read-only destination fails the run with no partial
// tree left behind.
func (w *writer) writeMulti(dest string, sections []RenderedSection) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dest, err)
	}
	if err := probeWritable(dest); err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dest, err)
	}

	used := make(map[string]bool, len(sections))
	written := 0
	for i := range sections {
		name := uniqueFileName(sanitizeFileName(sections[i].Heading), used)
		used[name] = true

		target := filepath.Join(dest, name)
		if err := os.WriteFile(target, []byte(sectionMarkdown(&sections[i])), 0o644); err != nil {
			w.logger.Warn("Failed to write section file",
				zap.String("file", target),
				zap.String("source", sections[i].Source),
				zap.Error(err))
			if w.onError != nil {
				w.onError(sections[i].Source, err)
			}
			continue
		}
		written++
		if w.opts.Verbose {
			w.logger.Debug("Wrote section file",
				zap.String("file", target),
				zap.String("source", sections[i].Source))
		}
	}

	w.logger.Info("Wrote section files",
		zap.String("destination", dest),
		zap.Int("files", written))
	return nil
}

// documentHeader renders the title line and, when enabled, the table of
// contents for the combined document.
func (w *writer) documentHeader(dest string, toc TableOfContents) string {
	title := w.opts.Title
	if title == "" {
		title = headingFor(filepath.Base(dest))
	}

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteByte('\n')
	if w.opts.IncludeTOC && len(toc.Entries) > 0 {
		b.WriteString("\n## Table of Contents\n")
		for _, e := range toc.Entries {
			fmt.Fprintf(&b, "- [%s](#%s)\n", e.Heading, e.Anchor)
		}
	}
	return b.String()
}

// sectionMarkdown renders one section: heading, optional metadata
// block, blank line, body.
func sectionMarkdown(s *RenderedSection) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(s.Heading)
	b.WriteByte('\n')
	if s.Meta != nil {
		b.WriteString("\n## Metadata\n")
		b.WriteString("- **Generated on:** ")
		b.WriteString(s.Meta.GeneratedAt.Format(metadataTimeFormat))
		b.WriteByte('\n')
		b.WriteString("- **Source:** ")
		b.WriteString(s.Meta.Source)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(s.Body)
	if !strings.HasSuffix(s.Body, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

// probeWritable verifies the destination accepts new files before any
// section is written.
func probeWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".automd-probe-")
	if err != nil {
		return err
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// sanitizeFileName maps a heading to a filesystem-safe name.
func sanitizeFileName(heading string) string {
	var b strings.Builder
	for _, r := range heading {
		if r < 32 || strings.ContainsRune(`/\:*?"<>|`, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), " .")
	if name == "" {
		return "section"
	}
	return name
}

// uniqueFileName appends a numeric suffix when sanitization maps two
// headings to the same file name, so no section silently overwrites a
// sibling.
func uniqueFileName(stem string, used map[string]bool) string {
	name := stem + ".md"
	if !used[name] {
		return name
	}
	for n := 2; ; n++ {
		name = fmt.Sprintf("%s-%d.md", stem, n)
		if !used[name] {
			return name
		}
	}
}
