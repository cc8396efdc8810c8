package mailparse

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
)

// fallbackEncodings are tried in order when a part declares no charset or
// the declared one fails. Latin-1 decodes every byte, so it goes last.
var fallbackEncodings = []encoding.Encoding{
	korean.EUCKR,
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// decodeText converts raw part bytes to UTF-8. The declared charset is
// honored first; otherwise the most probable fallback encoding is used, and
// as a last resort invalid sequences are replaced rather than failing.
// A fallback is accepted only when it decodes cleanly, since the x/text
// decoders substitute replacement runes instead of returning errors.
func decodeText(raw []byte, declaredCharset string) string {
	if declaredCharset != "" {
		if enc, err := htmlindex.Get(strings.ToLower(declaredCharset)); err == nil {
			if decoded, err := enc.NewDecoder().Bytes(raw); err == nil && utf8.Valid(decoded) {
				return string(decoded)
			}
		}
	}

	if utf8.Valid(raw) {
		return string(raw)
	}

	for _, enc := range fallbackEncodings {
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err == nil && utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError) {
			return string(decoded)
		}
	}

	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

// wordDecoder decodes MIME-encoded header words, resolving charsets the
// same way part bodies are resolved.
var wordDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(strings.ToLower(charset))
		if err != nil {
			return nil, err
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// decodeHeader decodes MIME encoded headers, returning the raw value when
// decoding fails.
func decodeHeader(header string) string {
	decoded, err := wordDecoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}
