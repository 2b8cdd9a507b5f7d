// Package validate implements field-level validation for quote submissions.
// Every check returns a structured Result instead of an error: malformed
// user input is an expected condition, not a failure path.
package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Limits mirror the configuration surface; callers may override per call
// where a function takes an explicit max.
const (
	MaxEmailLength     = 254 // RFC 5321
	MaxTextInputLength = 500
	MaxTextAreaLength  = 5000
	MaxAmount          = 10000.0
	MinPhoneDigits     = 7
	MaxPhoneDigits     = 15
)

// Result is the outcome of validating a single field.
type Result struct {
	Field      string `json:"field,omitempty"`
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func ok(normalized string) Result {
	return Result{Valid: true, Normalized: normalized}
}

func fail(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// Email shape check based on RFC 5321: bounded local part and domain, at
// least one dot in the domain, conservative character set.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._%+-]{0,63}@[a-zA-Z0-9][a-zA-Z0-9.-]{0,253}\.[a-zA-Z]{2,}$`)

// phoneRegex allows digits, spaces, plus, hyphens, and parentheses.
var phoneRegex = regexp.MustCompile(`^[\d\s\+\-\(\)]{7,20}$`)

// dateRegex matches dd/mm/yyyy.
var dateRegex = regexp.MustCompile(`^(0[1-9]|[12][0-9]|3[01])/(0[1-9]|1[0-2])/\d{4}$`)

// urlRegex is a basic http(s) URL shape check.
var urlRegex = regexp.MustCompile(`^https?://[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)*(/[^\s]*)?$`)

// Email validates an email address. Any value containing CR, LF, or NUL is
// rejected outright regardless of otherwise valid shape: those characters
// are the vehicle for header-injection attacks.
func Email(email string) Result {
	if email == "" {
		return fail("email is empty")
	}
	if containsCRLF(email) {
		return fail("email contains line breaks")
	}
	for _, r := range email {
		if r < 0x20 || r == 0x7f {
			return fail("email contains control characters")
		}
	}

	email = strings.TrimSpace(email)
	if len(email) > MaxEmailLength {
		return fail("email exceeds maximum length")
	}
	if strings.Count(email, "@") != 1 {
		return fail("email must contain exactly one @")
	}
	if !emailRegex.MatchString(email) {
		return fail("email format is invalid")
	}

	parts := strings.SplitN(email, "@", 2)
	local, domain := parts[0], parts[1]

	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return fail("local part must not start or end with a dot")
	}
	if strings.Contains(local, "..") {
		return fail("local part must not contain consecutive dots")
	}
	if strings.HasPrefix(domain, "-") || strings.HasSuffix(domain, "-") {
		return fail("domain must not start or end with a hyphen")
	}
	if strings.Contains(domain, "..") {
		return fail("domain must not contain consecutive dots")
	}

	return ok(email)
}

// Phone validates a phone number. Accepts international formats with
// digits, spaces, a leading plus, hyphens, and parentheses. The digit count
// after stripping formatting must be between 7 and 15.
func Phone(phone string) Result {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fail("phone is empty")
	}
	if !phoneRegex.MatchString(phone) {
		return fail("phone contains invalid characters")
	}

	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < MinPhoneDigits {
		return fail("phone has too few digits")
	}
	if digits > MaxPhoneDigits {
		return fail("phone has too many digits")
	}

	return ok(phone)
}

// SingleLine validates a short free-text input (names, subjects). Control
// characters other than tab are rejected; max <= 0 uses the default limit.
func SingleLine(text string, max int) Result {
	if max <= 0 {
		max = MaxTextInputLength
	}
	text = strings.TrimSpace(text)
	if len(text) > max {
		return fail("input too long")
	}
	for _, r := range text {
		if (r < 0x20 && r != '\t') || r == 0x7f {
			return fail("input contains control characters")
		}
	}
	return ok(text)
}

// MultiLine validates a longer free-text input (notes, descriptions).
// Tabs, newlines, and carriage returns are permitted; other control
// characters are rejected.
func MultiLine(text string, max int) Result {
	if max <= 0 {
		max = MaxTextAreaLength
	}
	text = strings.TrimSpace(text)
	if len(text) > max {
		return fail("text too long")
	}
	for _, r := range text {
		if (r < 0x20 && r != '\t' && r != '\n' && r != '\r') || r == 0x7f {
			return fail("text contains control characters")
		}
	}
	return ok(text)
}

// Amount validates a price string as a non-negative decimal within the
// configured ceiling. NaN and infinities are rejected.
func Amount(value string) Result {
	value = strings.TrimSpace(value)
	if value == "" {
		return fail("amount is empty")
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fail("amount is not a number")
	}
	return AmountValue(f)
}

// AmountValue validates an already-parsed amount.
func AmountValue(f float64) Result {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fail("amount is not a finite number")
	}
	if f < 0 {
		return fail("amount must not be negative")
	}
	if f > MaxAmount {
		return fail("amount exceeds maximum")
	}
	return ok(strconv.FormatFloat(f, 'f', -1, 64))
}

// Count validates an integer quantity against inclusive bounds.
func Count(n, min, max int) Result {
	if n < min || n > max {
		return fail("count out of range")
	}
	return ok(strconv.Itoa(n))
}

// Date validates a dd/mm/yyyy date string.
func Date(date string) Result {
	date = strings.TrimSpace(date)
	if date == "" {
		return fail("date is empty")
	}
	if !dateRegex.MatchString(date) {
		return fail("date must be dd/mm/yyyy")
	}
	return ok(date)
}

// URL validates a URL shape and, when allowedDomains is non-empty, checks
// the host against the whitelist (exact match or subdomain).
func URL(rawURL string, allowedDomains []string) Result {
	if rawURL == "" {
		return fail("url is empty")
	}
	if !urlRegex.MatchString(rawURL) {
		return fail("url format is invalid")
	}

	if len(allowedDomains) > 0 {
		host := hostOf(rawURL)
		allowed := false
		for _, d := range allowedDomains {
			if host == d || strings.HasSuffix(host, "."+d) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fail("url domain is not allowed")
		}
	}

	return ok(rawURL)
}

// hostOf extracts the lowercase host from a URL that already matched urlRegex.
func hostOf(rawURL string) string {
	rest := rawURL[strings.Index(rawURL, "://")+3:]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}

// containsCRLF reports whether s carries a carriage return, line feed, or
// NUL byte.
func containsCRLF(s string) bool {
	return strings.ContainsAny(s, "\r\n\x00")
}
