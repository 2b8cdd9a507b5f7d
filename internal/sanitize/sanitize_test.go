package sanitize

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestHTMLBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"script tag", `<script>alert(1)</script>`, "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"ampersand", "cats & dogs", "cats &amp; dogs"},
		{"quotes", `say "hi"`, "say &#34;hi&#34;"},
		{"single quotes", "it's", "it&#39;s"},
		{"plain", "hello world", "hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLBody(tt.in); got != tt.want {
				t.Errorf("HTMLBody(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHTMLBody_NoDoubleEscape(t *testing.T) {
	once := HTMLBody("cats & dogs")
	twice := HTMLBody(once)
	if once != twice {
		t.Errorf("double application changed output: %q vs %q", once, twice)
	}
}

func TestEmailHeader(t *testing.T) {
	if _, err := EmailHeader("Subject\r\nBcc: attacker@evil.com"); err != ErrHeaderInjection {
		t.Errorf("CRLF header accepted, err = %v", err)
	}
	if _, err := EmailHeader("Subject\nmore"); err != ErrHeaderInjection {
		t.Errorf("LF header accepted, err = %v", err)
	}
	if _, err := EmailHeader("Subject\x00"); err != ErrHeaderInjection {
		t.Errorf("NUL header accepted, err = %v", err)
	}

	got, err := EmailHeader("  Your PETSHEALTH quote\x07  ")
	if err != nil {
		t.Fatalf("clean header rejected: %v", err)
	}
	if got != "Your PETSHEALTH quote" {
		t.Errorf("got %q", got)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"path traversal", "../../etc/passwd.jpg", "etcpasswd.jpg", false},
		{"backslashes", `..\..\windows\system32.pdf`, "windowssystem32.pdf", false},
		{"spliced dots", "a./.b.pdf", "ab.pdf", false},
		{"separated traversal", "a/../b.pdf", "ab.pdf", false},
		{"nested dot runs", "a.....b.pdf", "a.b.pdf", false},
		{"plain", "quote.pdf", "quote.pdf", false},
		{"hidden file", ".htaccess", "htaccess", false},
		{"unsafe chars", "my file (1)!.pdf", "my file _1__.pdf", false},
		{"nul byte", "file\x00.pdf", "file.pdf", false},
		{"only dots", "....", "", true},
		{"only separators", "///", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filename(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Filename(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Filename(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Filename(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.ContainsAny(got, "/\\") || strings.Contains(got, "..") {
				t.Errorf("sanitized filename %q still contains path tokens", got)
			}
		})
	}
}

func TestFilename_LengthCap(t *testing.T) {
	long := strings.Repeat("a", 300) + ".pdf"
	got, err := Filename(long)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > 255 {
		t.Errorf("filename length %d exceeds 255", len(got))
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Errorf("extension lost: %q", got)
	}
}

func TestPlainText(t *testing.T) {
	if got := PlainText("  hello\x07 world\x1b  "); got != "hello world" {
		t.Errorf("got %q", got)
	}
	if got := PlainText("keeps\ttabs\nand newlines"); got != "keeps\ttabs\nand newlines" {
		t.Errorf("got %q", got)
	}
}

func TestScrapedText(t *testing.T) {
	in := `<p>Coverage up to <b>€10,000</b> per year</p><script>evil()</script>`
	got := ScrapedText(in, 500)
	if strings.Contains(got, "<") || strings.Contains(got, "script") && strings.Contains(got, "evil") {
		t.Errorf("markup survived: %q", got)
	}
	if !strings.Contains(got, "Coverage up to") {
		t.Errorf("text content lost: %q", got)
	}
}

func TestScrapedText_Truncation(t *testing.T) {
	got := ScrapedText(strings.Repeat("word ", 200), 50)
	if len([]rune(got)) > 60 { // escaped output may grow slightly
		t.Errorf("truncation failed, len = %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("missing ellipsis: %q", got)
	}
}

// Applying a sanitizer twice must equal applying it once, for every context.
func TestIdempotence(t *testing.T) {
	contexts := []Context{ContextPlainText, ContextHTMLBody, ContextEmailHeader, ContextFilename}

	for _, ctx := range contexts {
		ctx := ctx
		t.Run(string(ctx), func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				s := rapid.String().Draw(t, "s")

				once, err := Apply(s, ctx)
				if err != nil {
					// Rejected input has no output to re-sanitize.
					return
				}
				twice, err := Apply(once, ctx)
				if err != nil {
					t.Fatalf("sanitized output rejected on second pass: %q -> %q: %v", s, once, err)
				}
				if once != twice {
					t.Fatalf("not idempotent for %q: %q -> %q -> %q", ctx, s, once, twice)
				}
			})
		})
	}
}
