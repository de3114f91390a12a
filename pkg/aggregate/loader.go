package aggregate

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// loaded is the decoded content of one unit.
type loaded struct {
	Text     string
	Encoding string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// loadUnit reads and decodes a unit's bytes. A non-empty reason means
// the unit is skipped (too large, binary, empty); err reports
// recoverable read failures. Oversized files are skipped outright
// rather than truncated, since a truncated document would silently
// corrupt whatever indexes the output.
func loadUnit(unit FileUnit, maxBytes int64) (loaded, string, error) {
	if unit.Size > maxBytes {
		return loaded{}, SkipTooLarge, nil
	}

	data, err := os.ReadFile(unit.AbsPath)
	if err != nil {
		return loaded{}, "", fmt.Errorf("reading %s: %w", unit.RelPath, err)
	}

	text, enc, ok := decodeContent(data)
	if !ok {
		return loaded{}, SkipBinary, nil
	}
	if strings.TrimSpace(text) == "" {
		return loaded{}, SkipEmpty, nil
	}
	return loaded{Text: text, Encoding: enc}, "", nil
}

// decodeContent decodes raw bytes to text. BOM-marked UTF-16 is handled
// first (its NUL bytes would otherwise read as binary), then UTF-8,
// then single-byte fallbacks. Every successful decode still passes
// through the control-character ratio sniff, so content that decodes
// cleanly but is mostly unprintable is classified binary all the same.
func decodeContent(data []byte) (text, enc string, ok bool) {
	if e, name, found := utf16ByBOM(data); found {
		if decoded, err := e.NewDecoder().Bytes(data); err == nil {
			return textOrBinary(string(decoded), name)
		}
	}

	// NUL bytes are valid UTF-8 but never valid text here.
	if hasNUL(data) {
		return "", "", false
	}

	if utf8.Valid(data) {
		return textOrBinary(string(bytes.TrimPrefix(data, utf8BOM)), "utf-8")
	}

	if looksBinary(data) {
		return "", "", false
	}

	fallbacks := []struct {
		name string
		enc  encoding.Encoding
	}{
		{"windows-1252", charmap.Windows1252},
		{"latin-1", charmap.ISO8859_1},
	}
	for _, fb := range fallbacks {
		if decoded, err := fb.enc.NewDecoder().Bytes(data); err == nil {
			return textOrBinary(string(decoded), fb.name)
		}
	}
	return "", "", false
}

// textOrBinary rejects decoded content that is dominated by control
// characters, such as raw terminal captures.
func textOrBinary(text, enc string) (string, string, bool) {
	if mostlyControl(text) {
		return "", "", false
	}
	return text, enc, true
}

// mostlyControl reports whether more than 30% of the first 512 runes
// are control characters other than tab, newline, and carriage return.
// Counting runes rather than bytes keeps non-ASCII prose out of the
// binary bucket.
func mostlyControl(text string) bool {
	control, total := 0, 0
	for _, r := range text {
		if total >= 512 {
			break
		}
		total++
		if isControlRune(r) {
			control++
		}
	}
	if total == 0 {
		return false
	}
	return float64(control)/float64(total) > 0.3
}

func isControlRune(r rune) bool {
	switch r {
	case '\n', '\r', '\t':
		return false
	}
	return r < 32 || r == 0x7F
}

func utf16ByBOM(data []byte) (encoding.Encoding, string, bool) {
	if len(data) < 2 {
		return nil, "", false
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xFE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), "utf-16le", true
	case data[0] == 0xFE && data[1] == 0xFF:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), "utf-16be", true
	}
	return nil, "", false
}

func hasNUL(data []byte) bool {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	return bytes.IndexByte(sample, 0) >= 0
}

// looksBinary applies the ratio sniff to the first 512 bytes: more than
// 30% non-printable characters means binary.
func looksBinary(data []byte) bool {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	if len(sample) == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		if !printableByte(b) {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) > 0.3
}

func printableByte(b byte) bool {
	return (b >= 32 && b <= 126) || b == '\n' || b == '\r' || b == '\t'
}
