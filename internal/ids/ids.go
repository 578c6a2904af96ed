// Package ids validates the externally supplied identifiers this system
// passes to shells and URLs, so a malformed id fails fast instead of
// turning into a weird request or filename.
package ids

const (
	videoIDLength = 11

	// ChannelPrefix is the prefix of canonical channel IDs.
	ChannelPrefix   = "UC"
	channelIDLength = 24
)

// IsValidVideoID checks if a string is a valid video ID: 11 characters
// from the URL-safe base64 alphabet.
func IsValidVideoID(id string) bool {
	if len(id) != videoIDLength {
		return false
	}
	return isBase64URL(id)
}

// IsValidChannelID checks if a string is a valid canonical channel ID:
// "UC" followed by 22 URL-safe base64 characters.
func IsValidChannelID(id string) bool {
	if len(id) != channelIDLength {
		return false
	}
	if id[:len(ChannelPrefix)] != ChannelPrefix {
		return false
	}
	return isBase64URL(id[len(ChannelPrefix):])
}

func isBase64URL(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
