package aggregate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// discovery walks input roots and produces the run's unit sequence.
// Traversal is depth-first with children visited in lexicographic
// order, so the sequence (and therefore section and TOC order) is
// reproducible across runs. Archives are expanded in place: when the
// walk reaches foo.zip its entries are visited before the next sibling,
// each carrying a relative path that joins the archive layers with "/".
type discovery struct {
	opts    Options
	filter  *Filter
	catalog *Catalog
	logger  *zap.Logger

	// onSkip and onError record units rejected during the walk
	// (unsupported extension, archive nesting bound, unreadable entry)
	// so they still appear in the run summary.
	onSkip  func(rel, reason string)
	onError func(rel string, err error)

	tempDirs []string
	index    int
}

// stream walks roots in order and sends units as they are found. The
// error channel receives exactly one value after the unit channel is
// closed: nil, or the fatal error that stopped the walk. Per-unit
// problems never surface here; they go through onSkip and onError.
func (d *discovery) stream(ctx context.Context, roots []string) (<-chan FileUnit, <-chan error) {
	out := make(chan FileUnit, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		var err error
		for _, root := range roots {
			if err = d.walkRoot(ctx, root, out); err != nil {
				break
			}
		}
		errCh <- err
		close(errCh)
	}()

	return out, errCh
}

// walkRoot dispatches one input root: directories are walked, archives
// expanded, plain supported files yielded directly. A root that does
// not exist or cannot be read is fatal for the whole run.
func (d *discovery) walkRoot(ctx context.Context, root string, out chan<- FileUnit) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving input root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("input root %s: %w", root, err)
	}

	if info.IsDir() {
		f := d.filter
		if !d.opts.NoIgnore {
			f = f.withRootGitignore(abs)
		}
		return d.walkDir(ctx, abs, abs, "", 0, f, out, true)
	}

	// Explicitly named files bypass ignore rules; the caller asked for
	// them by name.
	name := info.Name()
	if isArchive(name) {
		return d.expandArchive(ctx, abs, name, abs, 1, d.filter, out)
	}
	if !d.catalog.Supported(name) {
		d.skip(name, SkipUnsupported)
		return nil
	}
	return d.yield(ctx, out, abs, name, abs, info.Size())
}

func (d *discovery) walkDir(ctx context.Context, dir, root, relPrefix string, archiveDepth int, f *Filter, out chan<- FileUnit, atRoot bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if atRoot {
			return fmt.Errorf("reading input root %s: %w", dir, err)
		}
		d.logger.Warn("Skipping unreadable directory",
			zap.String("path", dir),
			zap.Error(err))
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		rel := name
		if relPrefix != "" {
			rel = relPrefix + "/" + name
		}

		// Symlinks are never followed. This also rules out traversal
		// cycles without tracking visited inodes.
		if entry.Type()&fs.ModeSymlink != 0 {
			d.logger.Warn("Skipping symlink", zap.String("path", rel))
			continue
		}

		if entry.IsDir() {
			if f.Excluded(rel, true) {
				continue
			}
			if err := d.walkDir(ctx, filepath.Join(dir, name), root, rel, archiveDepth, f, out, false); err != nil {
				return err
			}
			continue
		}

		if f.Excluded(rel, false) {
			continue
		}
		if isArchive(name) {
			if err := d.expandArchive(ctx, filepath.Join(dir, name), rel, root, archiveDepth+1, f, out); err != nil {
				return err
			}
			continue
		}
		if !d.catalog.Supported(name) {
			d.skip(rel, SkipUnsupported)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			d.errored(rel, err)
			continue
		}
		if err := d.yield(ctx, out, filepath.Join(dir, name), rel, root, info.Size()); err != nil {
			return err
		}
	}
	return nil
}

// expandArchive unpacks an archive to a temporary directory and walks
// it as a virtual subtree rooted at the archive's relative path. depth
// counts archive layers; beyond MaxArchiveDepth the archive is skipped
// rather than expanded, bounding the resource cost of hostile nesting.
func (d *discovery) expandArchive(ctx context.Context, zipPath, rel, root string, depth int, f *Filter, out chan<- FileUnit) error {
	if depth > d.opts.MaxArchiveDepth {
		d.logger.Warn("Archive nesting exceeds bound",
			zap.String("path", rel),
			zap.Int("maxArchiveDepth", d.opts.MaxArchiveDepth))
		d.skip(rel, SkipArchiveDeep)
		return nil
	}

	dir, err := extractArchive(zipPath)
	if err != nil {
		d.errored(rel, err)
		return nil
	}
	d.tempDirs = append(d.tempDirs, dir)
	if d.opts.Verbose {
		d.logger.Debug("Expanded archive",
			zap.String("path", rel),
			zap.String("extractedTo", dir))
	}
	return d.walkDir(ctx, dir, root, rel, depth, f, out, false)
}

func (d *discovery) yield(ctx context.Context, out chan<- FileUnit, abs, rel, root string, size int64) error {
	lang, _ := d.catalog.Lookup(rel)
	unit := FileUnit{
		RelPath: rel,
		AbsPath: abs,
		Root:    root,
		Size:    size,
		Ext:     strings.ToLower(filepath.Ext(rel)),
		Index:   d.index,
		lang:    lang,
	}
	d.index++

	select {
	case out <- unit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *discovery) skip(rel, reason string) {
	if d.onSkip != nil {
		d.onSkip(rel, reason)
	}
}

func (d *discovery) errored(rel string, err error) {
	if d.onError != nil {
		d.onError(rel, err)
	}
}

// cleanup removes archive extraction directories. Call it only after
// the stream goroutine has finished.
func (d *discovery) cleanup() {
	for _, dir := range d.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			d.logger.Warn("Failed to remove extraction directory",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}
	d.tempDirs = nil
}
