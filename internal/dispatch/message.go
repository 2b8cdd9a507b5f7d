package dispatch

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

const xMailer = "PetQuoteEngine/1.0"

// buildMessage assembles the full RFC 5322 message: headers, an HTML body
// part, and one base64 part per attachment. All header values must already
// be sanitized; this function only encodes, it does not validate.
func buildMessage(from, fromName string, req *Request) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}

	header("From", formatAddress(fromName, from))
	header("To", formatAddress(req.RecipientName, req.RecipientEmail))
	if req.CC != "" {
		header("Cc", req.CC)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", req.Subject))
	if req.ReplyTo != "" {
		header("Reply-To", req.ReplyTo)
	}
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(from)))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("X-Mailer", xMailer)
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf(`multipart/mixed; boundary=%q`, mw.Boundary()))
	buf.WriteString("\r\n")

	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", "text/html; charset=utf-8")
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("creating body part: %w", err)
	}
	if err := writeQuotedPrintable(part, req.HTMLBody); err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}

	for _, att := range req.Attachments {
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		attHeader := textproto.MIMEHeader{}
		attHeader.Set("Content-Type", fmt.Sprintf("%s; name=%q", ct, att.Filename))
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))

		part, err := mw.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("creating attachment part: %w", err)
		}
		if err := writeBase64(part, att.Data); err != nil {
			return nil, fmt.Errorf("encoding attachment %q: %w", att.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}

// formatAddress renders "Name <addr>" or a bare address when the name is
// empty. The name is Q-encoded so non-ASCII display names survive transport.
func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}

// writeQuotedPrintable writes s as quoted-printable lines. The standard
// encoder is avoided to keep CRLF line endings under our control.
func writeQuotedPrintable(w io.Writer, s string) error {
	const maxLine = 76
	line := 0
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\n':
			b.WriteString("\r\n")
			line = 0
			continue
		case c == '\r':
			continue
		case (c >= 33 && c <= 126 && c != '=') || c == ' ' || c == '\t':
			b.WriteByte(c)
			line++
		default:
			fmt.Fprintf(&b, "=%02X", c)
			line += 3
		}
		if line >= maxLine {
			b.WriteString("=\r\n")
			line = 0
		}
	}
	_, err := w.Write([]byte(b.String()))
	return err
}

// writeBase64 writes data as base64 in 76-character lines.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
