package quote

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/chiinsurancebrokers/petquoteengine/internal/sanitize"
)

// emailTemplate is the quote email body. Every interpolated value is
// pre-escaped by the renderer, so the template itself stays inert.
const emailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Your pet insurance quote</h2>
  <p>Dear {{.OwnerName}},</p>
  <p>Thank you for your interest in PETSHEALTH pet insurance.
     Your personalized quote for {{.PetName}} is attached to this email.</p>
  <table cellpadding="6">
    <tr><td><b>Pet</b></td><td>{{.PetName}} ({{.PetType}})</td></tr>
    {{if .Breed}}<tr><td><b>Breed</b></td><td>{{.Breed}}</td></tr>{{end}}
    <tr><td><b>Date of birth</b></td><td>{{.PetBirthDate}}</td></tr>
    <tr><td><b>Plan</b></td><td>{{.Plan}}</td></tr>
    {{if .Premium}}<tr><td><b>Annual premium</b></td><td>&euro;{{.Premium}}</td></tr>{{end}}
  </table>
  {{if .Items}}
  <h3>What your plan covers</h3>
  <ul>
    {{range .Items}}<li>{{.}}</li>
    {{end}}
  </ul>
  {{end}}
  {{if .Notes}}<p><b>Your notes:</b> {{.Notes}}</p>{{end}}
  <p>This quote is indicative and subject to underwriting review.</p>
  <p>The PETSHEALTH team</p>
</body>
</html>`

// HTMLRenderer renders the quote email body. It escapes every submission
// field itself and therefore uses text/template: the values arriving at
// the template are already HTML-safe, and contextual re-escaping would
// double-encode the pre-escaped site content items.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the email template.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.New("quote-email").Parse(emailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing email template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

// Render produces the HTML body for a sanitized submission. items come
// from the content fetcher already escaped; all other fields are escaped
// here.
func (r *HTMLRenderer) Render(sub *Submission, items []string) (string, error) {
	premium := ""
	if sub.Premium > 0 {
		premium = fmt.Sprintf("%.2f", sub.Premium)
	}

	data := struct {
		OwnerName    string
		PetName      string
		PetType      string
		Breed        string
		PetBirthDate string
		Plan         string
		Premium      string
		Notes        string
		Items        []string
	}{
		OwnerName:    sanitize.HTMLBody(sub.OwnerName),
		PetName:      sanitize.HTMLBody(sub.PetName),
		PetType:      sanitize.HTMLBody(sub.PetType),
		Breed:        sanitize.HTMLBody(sub.Breed),
		PetBirthDate: sanitize.HTMLBody(sub.PetBirthDate),
		Plan:         sanitize.HTMLBody(sub.Plan),
		Premium:      premium,
		Notes:        sanitize.HTMLBody(sub.Notes),
		Items:        items,
	}

	var b strings.Builder
	if err := r.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering email template: %w", err)
	}
	return b.String(), nil
}
