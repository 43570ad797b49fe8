package parsers

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Encoding names the character set of an export file
type Encoding string

const (
	// EncodingUTF8 is UTF-8 with an optional byte order mark
	EncodingUTF8 Encoding = "utf-8"
	// EncodingLatin1 is ISO-8859-1, used by exports re-saved on Windows
	EncodingLatin1 Encoding = "latin1"
)

// ParseEncoding parses an encoding name from configuration
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8", "utf-8-sig":
		return EncodingUTF8, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	default:
		return "", fmt.Errorf("unsupported encoding '%s': use utf-8 or latin1", s)
	}
}

// NewDecodingReader wraps r so it yields UTF-8 text without a BOM
func NewDecodingReader(r io.Reader, enc Encoding) io.Reader {
	switch enc {
	case EncodingLatin1:
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	default:
		return transform.NewReader(r, xunicode.BOMOverride(xunicode.UTF8.NewDecoder()))
	}
}

// NormalizeText trims s, collapses inner whitespace and composes accents
// so the same client name typed on different systems compares equal.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// foldHeader reduces a column header to lower-case ASCII letters and
// digits, so "Número Desde" and "NUMERO DESDE" look up the same column.
func foldHeader(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
