package aggregate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func writeUnit(t *testing.T, data []byte) FileUnit {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit.txt")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing unit: %v", err)
	}
	return FileUnit{RelPath: "unit.txt", AbsPath: path, Size: int64(len(data))}
}

func TestLoadUnitUTF8(t *testing.T) {
	t.Parallel()

	unit := writeUnit(t, []byte("hello world\n"))
	content, reason, err := loadUnit(unit, 1<<20)
	if err != nil || reason != "" {
		t.Fatalf("loadUnit: reason=%q err=%v", reason, err)
	}
	if content.Text != "hello world\n" || content.Encoding != "utf-8" {
		t.Errorf("got %q (%s)", content.Text, content.Encoding)
	}
}

func TestLoadUnitStripsUTF8BOM(t *testing.T) {
	t.Parallel()

	unit := writeUnit(t, append([]byte{0xEF, 0xBB, 0xBF}, []byte("data")...))
	content, reason, err := loadUnit(unit, 1<<20)
	if err != nil || reason != "" {
		t.Fatalf("loadUnit: reason=%q err=%v", reason, err)
	}
	if content.Text != "data" {
		t.Errorf("BOM not stripped: %q", content.Text)
	}
}

func TestLoadUnitUTF16(t *testing.T) {
	t.Parallel()

	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.Bytes([]byte("utf-16 content"))
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	unit := writeUnit(t, data)
	content, reason, err := loadUnit(unit, 1<<20)
	if err != nil || reason != "" {
		t.Fatalf("loadUnit: reason=%q err=%v", reason, err)
	}
	if content.Text != "utf-16 content" {
		t.Errorf("got %q", content.Text)
	}
	if content.Encoding != "utf-16le" {
		t.Errorf("encoding = %q", content.Encoding)
	}
}

func TestLoadUnitWindows1252Fallback(t *testing.T) {
	t.Parallel()

	enc := charmap.Windows1252.NewEncoder()
	data, err := enc.Bytes([]byte("café — déjà vu"))
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	unit := writeUnit(t, data)
	content, reason, err := loadUnit(unit, 1<<20)
	if err != nil || reason != "" {
		t.Fatalf("loadUnit: reason=%q err=%v", reason, err)
	}
	if content.Text != "café — déjà vu" {
		t.Errorf("got %q", content.Text)
	}
	if content.Encoding != "windows-1252" {
		t.Errorf("encoding = %q", content.Encoding)
	}
}

func TestLoadUnitBinary(t *testing.T) {
	t.Parallel()

	data := append([]byte{0x89, 'P', 'N', 'G', 0, 0, 0, 13}, bytes.Repeat([]byte{0}, 64)...)
	unit := writeUnit(t, data)
	_, reason, err := loadUnit(unit, 1<<20)
	if err != nil {
		t.Fatalf("loadUnit: %v", err)
	}
	if reason != SkipBinary {
		t.Errorf("reason = %q, want %q", reason, SkipBinary)
	}
}

func TestLoadUnitControlHeavyUTF8IsBinary(t *testing.T) {
	t.Parallel()

	// Valid UTF-8, but almost entirely 0x01 control bytes, like a raw
	// terminal capture.
	data := append([]byte("x"), bytes.Repeat([]byte{0x01}, 400)...)
	unit := writeUnit(t, data)
	_, reason, err := loadUnit(unit, 1<<20)
	if err != nil {
		t.Fatalf("loadUnit: %v", err)
	}
	if reason != SkipBinary {
		t.Errorf("reason = %q, want %q", reason, SkipBinary)
	}
}

func TestLoadUnitNonASCIIProse(t *testing.T) {
	t.Parallel()

	text := "日本語のテキスト。\nΕλληνικά και кириллица.\n"
	unit := writeUnit(t, []byte(text))
	content, reason, err := loadUnit(unit, 1<<20)
	if err != nil || reason != "" {
		t.Fatalf("loadUnit: reason=%q err=%v", reason, err)
	}
	if content.Text != text {
		t.Errorf("non-ASCII prose altered: %q", content.Text)
	}
}

func TestLoadUnitTooLarge(t *testing.T) {
	t.Parallel()

	unit := writeUnit(t, bytes.Repeat([]byte("x"), 100))
	_, reason, err := loadUnit(unit, 10)
	if err != nil {
		t.Fatalf("loadUnit: %v", err)
	}
	if reason != SkipTooLarge {
		t.Errorf("reason = %q, want %q", reason, SkipTooLarge)
	}
}

func TestLoadUnitEmpty(t *testing.T) {
	t.Parallel()

	unit := writeUnit(t, []byte("  \n\t\n"))
	_, reason, err := loadUnit(unit, 1<<20)
	if err != nil {
		t.Fatalf("loadUnit: %v", err)
	}
	if reason != SkipEmpty {
		t.Errorf("reason = %q, want %q", reason, SkipEmpty)
	}
}

func TestLoadUnitMissingFile(t *testing.T) {
	t.Parallel()

	unit := FileUnit{RelPath: "gone.txt", AbsPath: filepath.Join(t.TempDir(), "gone.txt"), Size: 1}
	_, _, err := loadUnit(unit, 1<<20)
	if err == nil {
		t.Fatal("expected a read error for a missing file")
	}
}
