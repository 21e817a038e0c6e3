// Package phone canonicalizes Indonesian phone numbers into the
// international dialable form the gateway expects (62xxxxxxxxxx).
package phone

import "strings"

// Normalize converts raw input to canonical 62-prefixed digits.
// It returns false when the input cannot be turned into a dialable
// number (fewer than 10 digits after cleanup).
func Normalize(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	p := b.String()

	switch {
	case p == "":
		return "", false
	case strings.HasPrefix(p, "0"):
		p = "62" + p[1:]
	case !strings.HasPrefix(p, "62"):
		p = "62" + p
	}

	if len(p) < 10 {
		return "", false
	}
	return p, true
}
