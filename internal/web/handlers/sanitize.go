package handlers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename turns a client-supplied name into something safe to hand
// to the encoder and the filesystem: diacritics are stripped, everything
// outside [A-Za-z0-9._-] collapses to a single underscore, and any path
// components are discarded.
func SanitizeFilename(name string) string {
	// Drop directory components outright.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	// Remove diacritics: decompose, strip combining marks, recompose.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if clean, _, err := transform.String(t, name); err == nil {
		name = clean
	}

	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	return name
}
