package acquire

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxFilenameLen caps sanitized filenames, extension excluded.
const MaxFilenameLen = 100

// SanitizeFilename derives a deterministic file name from a title: characters
// other than ASCII letters, digits, '-', '_' and space are removed, space runs
// become '-', and the result is lowercased and capped at MaxFilenameLen.
// Titles that sanitize to nothing fall back to a hash of the title.
func SanitizeFilename(title string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range strings.TrimSpace(title) {
		if r == ' ' {
			inSpace = true
			continue
		}
		if !isAllowedNameRune(r) {
			continue
		}
		if inSpace {
			b.WriteByte('-')
			inSpace = false
		}
		b.WriteRune(r)
	}

	name := strings.ToLower(b.String())
	if len(name) > MaxFilenameLen {
		name = name[:MaxFilenameLen]
	}
	if strings.Trim(name, "-_") == "" {
		sum := sha256.Sum256([]byte(title))
		return "untitled-" + hex.EncodeToString(sum[:6])
	}
	return name
}

func isAllowedNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	default:
		return false
	}
}
