package samp

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset is the code page used for wire strings when none is configured.
// SA-MP servers emit hostnames and player names in the system ANSI code page,
// which for most of the player base is Windows-1251.
var DefaultCharset encoding.Encoding = charmap.Windows1251

// Charset looks up a single-byte code page by its WHATWG or IANA label,
// e.g. "windows-1251", "cp1252", "koi8-r" or "utf-8".
// An empty name returns DefaultCharset.
func Charset(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultCharset, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown charset %q", ErrValidation, name)
	}

	return enc, nil
}

// decodeText converts raw wire bytes into a UTF-8 string.
func decodeText(enc encoding.Encoding, raw []byte) (string, error) {
	if enc == nil {
		enc = DefaultCharset
	}

	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}

	return string(out), nil
}
