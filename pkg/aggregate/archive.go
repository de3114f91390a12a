package aggregate

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// archiveExts are the formats the discoverer expands in place. Entries
// inside an archive are traversed as if the archive were a directory.
var archiveExts = map[string]bool{
	".zip": true,
}

// isArchive reports whether the file name denotes an expandable archive.
func isArchive(name string) bool {
	return archiveExts[strings.ToLower(filepath.Ext(name))]
}

// extractArchive unpacks a zip file into a fresh temporary directory
// and returns its path. The caller owns the directory and removes it at
// run end. Entries that would escape the directory are rejected.
func extractArchive(zipPath string) (string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("opening archive %s: %w", zipPath, err)
	}
	defer reader.Close()

	dir, err := os.MkdirTemp("", "automd-zip-")
	if err != nil {
		return "", fmt.Errorf("creating extraction directory: %w", err)
	}

	for _, entry := range reader.File {
		if err := extractEntry(entry, dir); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("extracting %s from %s: %w", entry.Name, zipPath, err)
		}
	}
	return dir, nil
}

func extractEntry(entry *zip.File, dir string) error {
	target := filepath.Join(dir, filepath.FromSlash(entry.Name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return fmt.Errorf("entry path escapes extraction directory")
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
