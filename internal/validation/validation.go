// Package validation checks and sanitizes credential input before anything
// reaches the backend provider. All functions are pure.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidFormat is wrapped by results that failed a shape check
	ErrInvalidFormat = errors.New("invalid format")

	// ErrWeakPattern is wrapped by CheckPasswordPatterns failures
	ErrWeakPattern = errors.New("weak password pattern")
)

const (
	maxEmailLength    = 254
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 8
	maxPasswordLength = 128
)

var (
	emailPattern = regexp.MustCompile(
		"^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@" +
			`[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?` +
			`(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	bracketPattern  = regexp.MustCompile(`[<>]`)
)

const specialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// Result is the outcome of a single validation
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
	kind  error
}

// Err returns nil for valid results, otherwise an error wrapping
// ErrInvalidFormat or ErrWeakPattern.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	kind := r.kind
	if kind == nil {
		kind = ErrInvalidFormat
	}
	return fmt.Errorf("%w: %s", kind, r.Error)
}

func ok() Result {
	return Result{Valid: true}
}

func invalid(msg string) Result {
	return Result{Error: msg, kind: ErrInvalidFormat}
}

func weak(msg string) Result {
	return Result{Error: msg, kind: ErrWeakPattern}
}

// Strength classifies an accepted password
type Strength string

const (
	StrengthNone   Strength = "none"
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// PasswordResult extends Result with a strength classification
type PasswordResult struct {
	Result
	Strength Strength `json:"strength"`
}

// InputType tells which validator ValidateUsernameOrEmail dispatched to
type InputType string

const (
	InputEmail    InputType = "email"
	InputUsername InputType = "username"
)

// IdentifierResult extends Result with the detected input type
type IdentifierResult struct {
	Result
	Type InputType `json:"type"`
}

// ValidateEmail checks address syntax after trimming surrounding whitespace
func ValidateEmail(email string) Result {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return invalid("Email is required")
	}
	if utf8.RuneCountInString(trimmed) > maxEmailLength {
		return invalid("Email is too long")
	}
	if !emailPattern.MatchString(trimmed) {
		return invalid("Invalid email format")
	}
	return ok()
}

// ValidateUsername accepts 3 to 50 characters of letters, digits, dots,
// underscores and hyphens.
func ValidateUsername(username string) Result {
	trimmed := strings.TrimSpace(username)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		return invalid("Username is required")
	case n < minUsernameLength:
		return invalid("Username must be at least 3 characters")
	case n > maxUsernameLength:
		return invalid("Username must not exceed 50 characters")
	case !usernamePattern.MatchString(trimmed):
		return invalid("Username can only contain letters, numbers, dots, underscores, and hyphens")
	}
	return ok()
}

// ValidatePassword enforces length bounds and at least two character classes
func ValidatePassword(password string) PasswordResult {
	n := utf8.RuneCountInString(password)
	switch {
	case n == 0:
		return PasswordResult{Result: invalid("Password is required"), Strength: StrengthNone}
	case n < minPasswordLength:
		return PasswordResult{Result: invalid("Password must be at least 8 characters"), Strength: StrengthWeak}
	case n > maxPasswordLength:
		return PasswordResult{Result: invalid("Password is too long (max 128 characters)"), Strength: StrengthNone}
	}

	classes := characterClasses(password)
	if classes < 2 {
		return PasswordResult{
			Result:   invalid("Password must contain at least 2 of: uppercase, lowercase, numbers, special characters"),
			Strength: StrengthWeak,
		}
	}

	strength := StrengthWeak
	if n >= 12 && classes >= 3 {
		strength = StrengthStrong
	} else if n >= 10 {
		strength = StrengthMedium
	}
	return PasswordResult{Result: ok(), Strength: strength}
}

func characterClasses(password string) int {
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	count := 0
	for _, present := range []bool{lower, upper, digit, special} {
		if present {
			count++
		}
	}
	return count
}

// SanitizeInput strips tag-like substrings and stray angle brackets, then trims.
// SanitizeInput(SanitizeInput(s)) == SanitizeInput(s).
func SanitizeInput(input string) string {
	if input == "" {
		return ""
	}
	out := tagPattern.ReplaceAllString(input, "")
	out = bracketPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// ValidateUsernameOrEmail validates as an email when the input contains '@',
// otherwise as a username.
func ValidateUsernameOrEmail(input string) IdentifierResult {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return IdentifierResult{Result: invalid("Username or email is required")}
	}
	if strings.Contains(trimmed, "@") {
		return IdentifierResult{Result: ValidateEmail(trimmed), Type: InputEmail}
	}
	return IdentifierResult{Result: ValidateUsername(trimmed), Type: InputUsername}
}

var commonPasswords = map[string]struct{}{
	"password":    {},
	"12345678":    {},
	"qwerty":      {},
	"abc123":      {},
	"letmein":     {},
	"welcome":     {},
	"monkey":      {},
	"1234567890":  {},
	"password123": {},
}

// CheckPasswordPatterns rejects passwords built from guessable patterns
func CheckPasswordPatterns(password, username string) Result {
	if password == "" {
		return ok()
	}

	lower := strings.ToLower(password)

	if username != "" && strings.Contains(lower, strings.ToLower(username)) {
		return weak("Password should not contain your username")
	}

	if _, found := commonPasswords[lower]; found {
		return weak("This password is too common")
	}

	if hasSequentialRun(lower) && utf8.RuneCountInString(password) < 12 {
		return weak("Avoid using sequential characters")
	}

	if hasRepeatedRun(password, 4) {
		return weak("Avoid using repeated characters")
	}

	return ok()
}

const (
	digitSequence  = "01234567890"
	letterSequence = "abcdefghijklmnopqrstuvwxyz"
)

// hasSequentialRun reports three ascending letters or digits in a row,
// e.g. "abc", "789" or "890". Expects lowercase input.
func hasSequentialRun(s string) bool {
	runes := []rune(s)
	for i := 0; i+2 < len(runes); i++ {
		triple := string(runes[i : i+3])
		if strings.Contains(digitSequence, triple) || strings.Contains(letterSequence, triple) {
			return true
		}
	}
	return false
}

// hasRepeatedRun reports n or more identical consecutive characters.
// RE2 has no backreferences, so this walks the runes.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for i, r := range []rune(s) {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}
