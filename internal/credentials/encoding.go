package credentials

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectAndDecode sniffs the byte-order mark of an exported file, strips
// it, and returns UTF-8 bytes plus the detected encoding name. Identity
// exports arrive in whatever encoding the exporting tool chose; spreadsheet
// round-trips commonly produce UTF-16. Bytes that are neither UTF-16 nor
// valid UTF-8 are read as Latin-1, which cannot fail.
func DetectAndDecode(data []byte) ([]byte, string, error) {
	switch {
	case len(data) == 0:
		return data, "utf-8", nil
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], "utf-8-bom", nil
	case bytes.HasPrefix(data, bomUTF16LE):
		decoded, _, err := transform.Bytes(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder(), data[len(bomUTF16LE):])
		if err != nil {
			return nil, "", fmt.Errorf("decode utf-16le: %w", err)
		}
		return decoded, "utf-16le", nil
	case bytes.HasPrefix(data, bomUTF16BE):
		decoded, _, err := transform.Bytes(unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder(), data[len(bomUTF16BE):])
		if err != nil {
			return nil, "", fmt.Errorf("decode utf-16be: %w", err)
		}
		return decoded, "utf-16be", nil
	case utf8.Valid(data):
		return data, "utf-8", nil
	default:
		decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
		if err != nil {
			return nil, "", fmt.Errorf("decode latin-1: %w", err)
		}
		return decoded, "latin-1", nil
	}
}
