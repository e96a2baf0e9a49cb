package utils

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	PasswordMinLength  = 12
	PasswordMaxLength  = 64
	PasswordMinUnique  = 6
	passwordSpecialSet = `!@#$%^&*(),.?":{}|<>`
)

var commonPasswords = map[string]struct{}{
	"password":     {},
	"password123":  {},
	"123456":       {},
	"12345678":     {},
	"123456789":    {},
	"qwerty":       {},
	"qwerty123":    {},
	"admin":        {},
	"admin123":     {},
	"letmein":      {},
	"welcome":      {},
	"welcome123":   {},
	"iloveyou":     {},
	"monkey":       {},
	"dragon":       {},
	"abc123":       {},
	"passw0rd":     {},
	"p@ssw0rd":     {},
	"p@ssword123!": {},
	"password123!": {},
	"qwertyuiop":   {},
	"1q2w3e4r5t":   {},
}

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// ValidatePassword checks plain against the password policy and returns
// every violated rule. An empty result means the password is acceptable.
// email, when given, must not appear in the password.
func ValidatePassword(plain, email string) []string {
	var problems []string
	n := len([]rune(plain))
	if n < PasswordMinLength {
		problems = append(problems, "password must be at least 12 characters long")
	}
	if n > PasswordMaxLength {
		problems = append(problems, "password must be at most 64 characters long")
	}

	var upper, lower, digit, special bool
	unique := map[rune]struct{}{}
	for _, r := range plain {
		unique[r] = struct{}{}
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecialSet, r):
			special = true
		}
	}
	if !upper {
		problems = append(problems, "password must contain an uppercase letter")
	}
	if !lower {
		problems = append(problems, "password must contain a lowercase letter")
	}
	if !digit {
		problems = append(problems, "password must contain a number")
	}
	if !special {
		problems = append(problems, "password must contain a special character")
	}
	if len(unique) < PasswordMinUnique {
		problems = append(problems, "password must contain at least 6 unique characters")
	}

	lowered := strings.ToLower(plain)
	if _, ok := commonPasswords[lowered]; ok {
		problems = append(problems, "password is too common")
	}
	if local, _, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@"); ok && len(local) >= 3 {
		if strings.Contains(lowered, local) {
			problems = append(problems, "password must not contain your email")
		}
	}
	return problems
}

// ReusesPassword reports whether plain matches any of the given hashes.
func ReusesPassword(plain string, hashes []string) bool {
	for _, h := range hashes {
		if VerifyPassword(h, plain) {
			return true
		}
	}
	return false
}
