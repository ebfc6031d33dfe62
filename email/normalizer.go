package email

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// obfuscationTokens are the spelled-out forms of '@' seen in listings
var obfuscationTokens = []string{"(at)", "[at]", "(arroba)", "[arroba]"}

// freeMailDomains are checked in order; only the first match is repaired
var freeMailDomains = []string{"gmail", "hotmail", "yahoo"}

var disallowedChars = regexp.MustCompile(`[^a-zA-Z0-9@.]`)

var validate = validator.New()

// InvalidError is returned when an address cannot be repaired into valid syntax
type InvalidError struct {
	Raw        string // Value as received, before any cleanup
	Normalized string // Value after the repair pipeline
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid email %q (normalized %q)", e.Raw, e.Normalized)
}

// Normalize cleans up a scraped email address and validates its syntax.
// An empty input is not an error. Steps run in a fixed order: the domain
// repairs must see the string before punctuation is stripped.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}

	for _, token := range obfuscationTokens {
		s = strings.ReplaceAll(s, token, "@")
	}

	if !strings.Contains(s, "@") {
		for _, domain := range freeMailDomains {
			full := domain + ".com"
			if strings.Contains(s, full) {
				s = strings.ReplaceAll(s, full, "@"+full)
				break
			}
		}
	}

	for _, domain := range freeMailDomains {
		if strings.Contains(s, "@"+domain) {
			if !strings.HasSuffix(s, ".com") {
				s += ".com"
			}
			break
		}
	}

	s = disallowedChars.ReplaceAllString(s, "")
	s = strings.ToLower(s)

	if !isValid(s) {
		return "", &InvalidError{Raw: raw, Normalized: s}
	}
	return s, nil
}

// isValid checks address syntax only; deliverability is never checked
func isValid(s string) bool {
	if strings.Count(s, "@") != 1 {
		return false
	}
	local, domain, _ := strings.Cut(s, "@")
	if local == "" || domain == "" {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") || !strings.Contains(domain, ".") {
		return false
	}
	if strings.Contains(domain, "..") {
		return false
	}
	return validate.Var(s, "required,email") == nil
}
