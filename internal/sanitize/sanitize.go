// Package sanitize transforms untrusted strings into forms safe for a
// specific destination: HTML email bodies, email headers, filenames, or
// plain text. Every transform is idempotent: applying it twice yields the
// same output as applying it once.
package sanitize

import (
	"errors"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Context identifies the destination a string is being sanitized for.
type Context string

const (
	// ContextPlainText strips control characters for logs and text bodies.
	ContextPlainText Context = "plainText"
	// ContextHTMLBody escapes markup-significant characters for HTML rendering.
	ContextHTMLBody Context = "htmlBody"
	// ContextEmailHeader refuses line breaks outright (header injection guard).
	ContextEmailHeader Context = "emailHeader"
	// ContextFilename collapses input to a safe basename.
	ContextFilename Context = "filename"
)

var (
	// ErrHeaderInjection is returned when a header value contains CR, LF,
	// or NUL. Such input is treated as invalid rather than silently
	// truncated, so a smuggled header line can never survive in mangled form.
	ErrHeaderInjection = errors.New("header value contains line breaks or NUL")

	// ErrEmptyFilename is returned when nothing safe remains of a filename.
	ErrEmptyFilename = errors.New("filename is empty after sanitization")

	// ErrUnknownContext is returned for a Context this package does not know.
	ErrUnknownContext = errors.New("unknown sanitization context")
)

// pathSeparatorTokens are removed from filenames before taking the
// basename. Parent-directory tokens are handled separately: separator
// removal can splice two single dots into a new "..", so the ".." strip
// must run to a fixed point afterwards.
var pathSeparatorTokens = []string{"/", "\\", "\x00"}

// unsafeFilenameChars matches anything outside the conservative filename
// alphabet (word characters, whitespace, hyphens, dots).
var unsafeFilenameChars = regexp.MustCompile(`[^\w\s\-.]`)

// whitespaceRun collapses consecutive whitespace in scraped text.
var whitespaceRun = regexp.MustCompile(`\s+`)

// strictPolicy strips all HTML elements, keeping only text content.
var strictPolicy = bluemonday.StrictPolicy()

// Apply sanitizes s for the given destination context.
func Apply(s string, ctx Context) (string, error) {
	switch ctx {
	case ContextPlainText:
		return PlainText(s), nil
	case ContextHTMLBody:
		return HTMLBody(s), nil
	case ContextEmailHeader:
		return EmailHeader(s)
	case ContextFilename:
		return Filename(s)
	default:
		return "", ErrUnknownContext
	}
}

// PlainText strips control characters except tab and newline, and trims
// surrounding whitespace.
func PlainText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\t' && r != '\n') || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// HTMLBody escapes &, <, >, ", and ' to their entity equivalents. Input is
// entity-decoded first so that already-escaped text is not double-escaped,
// which keeps the transform idempotent.
func HTMLBody(s string) string {
	return html.EscapeString(html.UnescapeString(s))
}

// EmailHeader validates and normalizes a string destined for an email
// header. A value containing CR, LF, or NUL is rejected as invalid input;
// other control characters except tab are stripped.
func EmailHeader(s string) (string, error) {
	if strings.ContainsAny(s, "\r\n\x00") {
		return "", ErrHeaderInjection
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\t') || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String()), nil
}

// Filename collapses an untrusted filename to a safe basename: path
// separators and parent-directory tokens are removed, non-printable and
// unsafe characters replaced, leading dots stripped, and the result capped
// at 255 bytes preserving the extension. An input with nothing safe left
// is an error, not a silent default.
func Filename(name string) (string, error) {
	for _, token := range pathSeparatorTokens {
		name = strings.ReplaceAll(name, token, "")
	}
	name = stripDotDot(name)

	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", ErrEmptyFilename
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	name = unsafeFilenameChars.ReplaceAllString(b.String(), "_")

	// Leading dots would produce hidden files on unix systems. Control
	// characters including tabs are already stripped, so the only
	// whitespace left is the plain space.
	name = strings.TrimLeft(name, ". ")
	name = strings.TrimRight(name, " ")

	if len(name) > 255 {
		ext := filepath.Ext(name)
		if len(ext) > 255 {
			ext = ""
		}
		base := []rune(name[:len(name)-len(ext)])
		for len(base) > 0 && len(string(base))+len(ext) > 255 {
			base = base[:len(base)-1]
		}
		// The cut can land right before the extension's dot and splice a
		// new "..", so the strip runs again.
		name = stripDotDot(string(base) + ext)
		name = strings.TrimLeft(name, ". ")
		name = strings.TrimRight(name, " ")
	}

	if name == "" {
		return "", ErrEmptyFilename
	}
	return name, nil
}

// stripDotDot removes ".." runs until none remain. A single pass is not
// enough: deleting one occurrence can join the surrounding dots into a
// fresh one ("a...b" or ".|..|.").
func stripDotDot(s string) string {
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", "")
	}
	return s
}

// ScrapedText sanitizes text fetched from an external website for safe
// display: HTML is stripped, entities decoded, whitespace collapsed, the
// result truncated to max runes, and finally escaped for HTML contexts.
func ScrapedText(s string, max int) string {
	if max <= 0 {
		max = 500
	}

	s = strictPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if runes := []rune(s); len(runes) > max {
		cut := max - 3
		if cut < 0 {
			cut = 0
		}
		s = strings.TrimSpace(string(runes[:cut])) + "..."
	}

	return html.EscapeString(s)
}
