package capture

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Characters that break shells, path joins, or the remote store's path
// grammar.
const unsafeFilenameChars = `\|*?/:"<>#`

// SanitizeFilename turns a stream title into a safe filename component:
// NFC-normalized, unsafe characters replaced with underscores, and
// characters outside the Basic Multilingual Plane dropped since they do
// not survive every filesystem this runs on.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case strings.ContainsRune(unsafeFilenameChars, r):
			b.WriteRune('_')
		case r > 0xFFFF:
			// skip
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
