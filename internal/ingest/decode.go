package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrUnknownEncoding is returned for encoding names Decode does not know.
var ErrUnknownEncoding = errors.New("unknown encoding")

// Decode converts data in the named encoding to UTF-8 text.
//
// Names are matched case-insensitively: utf-8, utf-8-sig / utf-8-bom,
// shift_jis / cp932 and euc-jp. Decoding is strict: bytes that are not
// valid in the encoding fail instead of being replaced, so the next
// encoding in a fallback list gets its turn.
func Decode(data []byte, name string) (string, error) {
	switch strings.ToLower(name) {
	case "utf-8", "utf8", "utf-8-sig", "utf-8-bom":
		// A BOM is dropped for plain utf-8 too so it never sticks to the
		// first header.
		if !utf8.Valid(data) {
			return "", errors.New("invalid utf-8")
		}
		return string(bytes.TrimPrefix(data, utf8BOM)), nil

	case "shift_jis", "shift-jis", "sjis", "cp932", "windows-31j":
		return decodeStrict(japanese.ShiftJIS, data, name)

	case "euc-jp", "eucjp":
		return decodeStrict(japanese.EUCJP, data, name)

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// decodeStrict decodes with enc and rejects output carrying replacement
// characters, which the x/text decoders emit for invalid sequences.
func decodeStrict(enc encoding.Encoding, data []byte, name string) (string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("decode %s: invalid byte sequence", name)
	}
	return string(out), nil
}
