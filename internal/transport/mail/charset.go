package mail

import (
	"strings"

	"github.com/emersion/go-imap/v2"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// decodeBody converts a fetched text body to UTF-8. Phone mail clients in
// non-English locales still send legacy charsets (GB2312, ISO-2022-JP); the
// charset comes from the message's body structure. Without a charset, or with
// one that is unknown or fails to decode, the bytes pass through unchanged.
func decodeBody(raw []byte, structure imap.BodyStructure) string {
	if len(raw) == 0 {
		return ""
	}
	charset := bodyCharset(structure)
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return string(raw)
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		// Unknown label: pass the bytes through untranslated.
		return string(raw)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// bodyCharset walks the body structure for the first text part's charset
// parameter.
func bodyCharset(structure imap.BodyStructure) string {
	if structure == nil {
		return ""
	}
	var charset string
	structure.Walk(func(path []int, part imap.BodyStructure) bool {
		if charset != "" {
			return false
		}
		if single, ok := part.(*imap.BodyStructureSinglePart); ok {
			if strings.EqualFold(single.Type, "text") {
				for k, v := range single.Params {
					if strings.EqualFold(k, "charset") {
						charset = v
						return false
					}
				}
			}
		}
		return true
	})
	return charset
}
