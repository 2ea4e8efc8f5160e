package emailutil

import "strings"

// Normalize lowercases and trims an address so it can be used as a lookup key
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalPart returns the part before the last @, or the whole input when there is none
func LocalPart(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return email
	}
	return email[:i]
}
