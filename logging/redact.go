package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	windowsUserPath = regexp.MustCompile(`(?i)\\Users\\[^\\]+`)
	unixUserPath    = regexp.MustCompile(`/(home|Users)/[^/]+`)
	tokenShape      = regexp.MustCompile(`[A-Za-z0-9_-]{24,}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,}`)
	userIDShape     = regexp.MustCompile(`\b\d{17,19}\b`)
)

// RedactToken keeps the first 8 and last 4 characters of a credential.
func RedactToken(token string) string {
	if len(token) <= 16 {
		return "***"
	}
	return token[:8] + "...***..." + token[len(token)-4:]
}

// RedactID keeps the first and last 4 characters of an account id.
func RedactID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:4] + "..." + id[len(id)-4:]
}

// RedactUsername keeps only the first character.
func RedactUsername(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if size == 0 || r == utf8.RuneError {
		return "***"
	}
	return string(r) + "***"
}

// RedactEmail keeps only the domain.
func RedactEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return "***"
	}
	return "***" + email[at:]
}

// RedactPath replaces the user directory component of Windows and Unix paths with [USER].
func RedactPath(path string) string {
	path = windowsUserPath.ReplaceAllLiteralString(path, `\Users\[USER]`)
	return unixUserPath.ReplaceAllString(path, "/$1/[USER]")
}

// RedactMessage masks paths, credential-shaped strings and account ids in free text.
func RedactMessage(msg string) string {
	msg = RedactPath(msg)
	msg = tokenShape.ReplaceAllLiteralString(msg, "[TOKEN]")
	return userIDShape.ReplaceAllLiteralString(msg, "[USER_ID]")
}
