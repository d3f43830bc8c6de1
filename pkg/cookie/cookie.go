// Package cookie reads values out of a raw Cookie header.
package cookie

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// CSRFName is the cookie holding the CSRF token issued by the backend
const CSRFName = "csrftoken"

var (
	ErrNotFound = errors.New("cookie not found")
	// ErrInvalidUTF8 is returned when the escapes decode to invalid UTF-8
	ErrInvalidUTF8 = errors.New("malformed UTF-8 escape sequence")
)

// Read returns the percent-decoded value of the first cookie called name.
// A plus sign is kept as is, only %XX escapes are decoded.
func Read(header, name string) (string, error) {
	if header == "" {
		return "", ErrNotFound
	}

	prefix := name + "="
	for _, entry := range strings.Split(header, ";") {
		entry = strings.TrimSpace(entry)
		if !strings.HasPrefix(entry, prefix) {
			continue
		}

		value, err := url.PathUnescape(entry[len(prefix):])
		if err != nil {
			return "", fmt.Errorf("decode cookie %s: %w", name, err)
		}
		if !utf8.ValidString(value) {
			return "", fmt.Errorf("decode cookie %s: %w", name, ErrInvalidUTF8)
		}
		return value, nil
	}

	return "", ErrNotFound
}
