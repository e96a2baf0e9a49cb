package utils

import (
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	orcidRe        = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
	scopusRe       = regexp.MustCompile(`^\d{8}$`)
	researchGateRe = regexp.MustCompile(`^(https?://)?(www\.)?researchgate\.net/profile/.+$`)
	unsafeNameRe   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// ValidEmail accepts a bare address with a dotted domain.
func ValidEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

func ValidORCID(s string) bool        { return orcidRe.MatchString(s) }
func ValidScopusID(s string) bool     { return scopusRe.MatchString(s) }
func ValidResearchGate(s string) bool { return researchGateRe.MatchString(s) }

// SanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with a dash.
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = unsafeNameRe.ReplaceAllString(base, "-")
	base = strings.Trim(base, ".-")
	if base == "" {
		return "file"
	}
	if len(base) > 120 {
		ext := filepath.Ext(base)
		if len(ext) > 20 {
			ext = ""
		}
		base = base[:120-len(ext)] + ext
	}
	return base
}

// SplitList splits a comma separated field, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
