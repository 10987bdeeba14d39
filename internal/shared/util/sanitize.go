package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameLen bounds the sanitized name so generated object keys stay
// well under the 1024 byte S3 key limit.
const MaxFileNameLen = 200

// ErrInvalidFileName is returned for names that cannot become an object key segment.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName turns a client supplied file name into a single object key
// segment. Separators and whitespace runs collapse to "_", control characters
// are dropped and traversal patterns are rejected. Overlong names are
// truncated with their extension preserved.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") || !utf8.ValidString(name) {
		return "", ErrInvalidFileName
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\' || unicode.IsSpace(r):
			pendingSep = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
	}

	s := b.String()
	if s == "" || s == "." {
		return "", ErrInvalidFileName
	}
	return truncate(s, MaxFileNameLen), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	ext := path.Ext(s)
	if len(ext) >= limit/2 {
		ext = ""
	}
	stem := s[:len(s)-len(ext)]
	cut := limit - len(ext)
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	return stem[:cut] + ext
}
