package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		valid   bool
		message string
	}{
		{name: "plain address", input: "user@example.com", valid: true},
		{name: "subdomain", input: "user@mail.example.com", valid: true},
		{name: "plus tag", input: "user.name+tag@example.co.uk", valid: true},
		{name: "surrounding whitespace", input: "  user@example.com  ", valid: true},
		{name: "missing at sign", input: "userexample.com", message: "Invalid email format"},
		{name: "empty", input: "", message: "Email is required"},
		{name: "only whitespace", input: "   ", message: "Email is required"},
		{name: "inner space", input: "user @example.com", message: "Invalid email format"},
		{name: "too long", input: strings.Repeat("a", 256) + "@example.com", message: "Email is too long"},
		{name: "label too long", input: "user@" + strings.Repeat("a", 64) + ".com", message: "Invalid email format"},
		{name: "label leading hyphen", input: "user@-example.com", message: "Invalid email format"},
		{name: "missing domain", input: "invalid@", message: "Invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateEmail(tt.input)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.message, result.Error)
			if tt.valid {
				assert.NoError(t, result.Err())
			} else {
				assert.ErrorIs(t, result.Err(), ErrInvalidFormat)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "underscore", input: "john_doe", valid: true},
		{name: "digits", input: "user123", valid: true},
		{name: "dots", input: "john.doe", valid: true},
		{name: "hyphen", input: "jo-hn", valid: true},
		{name: "minimum length", input: "abc", valid: true},
		{name: "maximum length", input: strings.Repeat("a", 50), valid: true},
		{name: "too short", input: "ab"},
		{name: "too long", input: strings.Repeat("a", 51)},
		{name: "at sign", input: "user@name"},
		{name: "space", input: "user name"},
		{name: "empty", input: ""},
		{name: "non ascii", input: "usér"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateUsername(tt.input).Valid)
		})
	}
}

func TestValidateUsernameAcceptsWholeCharacterClass(t *testing.T) {
	alphabet := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._-"
	for size := 3; size <= 50; size++ {
		var b strings.Builder
		for i := 0; i < size; i++ {
			b.WriteByte(alphabet[(i*7+size)%len(alphabet)])
		}
		assert.True(t, ValidateUsername(b.String()).Valid, b.String())
	}

	for _, bad := range []rune{' ', '@', '!', '<', '/', '+', 'é'} {
		assert.False(t, ValidateUsername("abc"+string(bad)+"def").Valid, string(bad))
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		valid    bool
		strength Strength
	}{
		{name: "strong", input: "MyP@ssw0rd123", valid: true, strength: StrengthStrong},
		{name: "medium", input: "Password123", valid: true, strength: StrengthMedium},
		{name: "weak but valid", input: "pass1234", valid: true, strength: StrengthWeak},
		{name: "long with two classes is medium", input: "passwordpassword1", valid: true, strength: StrengthMedium},
		{name: "too short", input: "Pass1", strength: StrengthWeak},
		{name: "single class", input: "password", strength: StrengthWeak},
		{name: "too long", input: strings.Repeat("a", 129), strength: StrengthNone},
		{name: "empty", input: "", strength: StrengthNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidatePassword(tt.input)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.strength, result.Strength)
		})
	}
}

func TestValidatePasswordRejectsShortInput(t *testing.T) {
	for n := 0; n < 8; n++ {
		pw := strings.Repeat("A1!b", 2)[:n]
		assert.False(t, ValidatePassword(pw).Valid, "length %d", n)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "<script>x</script>y", expected: "xy"},
		{input: `<script>alert("xss")</script>user`, expected: `alert("xss")user`},
		{input: "user<>name", expected: "username"},
		{input: "  username  ", expected: "username"},
		{input: "  <b>user</b>  ", expected: "user"},
		{input: "a < b", expected: "a  b"},
		{input: "<<a>>", expected: ""},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SanitizeInput(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, SanitizeInput(got))
			assert.NotContains(t, got, "<")
			assert.NotContains(t, got, ">")
		})
	}
}

func TestValidateUsernameOrEmail(t *testing.T) {
	tests := []struct {
		input     string
		valid     bool
		inputType InputType
	}{
		{input: "user@example.com", valid: true, inputType: InputEmail},
		{input: "john_doe", valid: true, inputType: InputUsername},
		{input: "invalid@", inputType: InputEmail},
		{input: "ab", inputType: InputUsername},
		{input: "", inputType: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ValidateUsernameOrEmail(tt.input)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.inputType, result.Type)
		})
	}
}

func TestCheckPasswordPatterns(t *testing.T) {
	tests := []struct {
		name     string
		password string
		username string
		message  string
	}{
		{name: "contains username", password: "JohnDoe123", username: "johndoe", message: "Password should not contain your username"},
		{name: "common password", password: "password123", message: "This password is too common"},
		{name: "common password any case", password: "QWERTY", message: "This password is too common"},
		{name: "sequential short", password: "abc12345", message: "Avoid using sequential characters"},
		{name: "sequential wraps at 890", password: "Zq890!xk", message: "Avoid using sequential characters"},
		{name: "repeated characters", password: "aaaa1z9y", message: "Avoid using repeated characters"},
		{name: "sequential allowed when long", password: "Xk9#mQ2!vLabc"},
		{name: "good pattern", password: "MyS3cur3P@ss!", username: "user"},
		{name: "random", password: "Xk9#mQ2!vL"},
		{name: "empty", password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckPasswordPatterns(tt.password, tt.username)
			if tt.message == "" {
				require.True(t, result.Valid, result.Error)
				return
			}
			assert.False(t, result.Valid)
			assert.Equal(t, tt.message, result.Error)
			assert.ErrorIs(t, result.Err(), ErrWeakPattern)
		})
	}
}
