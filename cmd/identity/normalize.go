package identity

import "strings"

// NormalizeUsername trims surrounding whitespace. Usernames stay
// case-sensitive: "Alice" and "alice" are different players.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}
