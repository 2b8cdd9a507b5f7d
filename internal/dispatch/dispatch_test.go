package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chiinsurancebrokers/petquoteengine/internal/filecheck"
	"github.com/chiinsurancebrokers/petquoteengine/internal/ratelimit"
)

type fakeSender struct {
	calls []sentMessage
	err   error
}

type sentMessage struct {
	from string
	to   []string
	msg  []byte
}

func (f *fakeSender) Send(_ context.Context, from string, to []string, msg []byte) error {
	f.calls = append(f.calls, sentMessage{from: from, to: to, msg: msg})
	return f.err
}

func validPDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Page >>\nendobj\ntrailer\n%%EOF")
}

func newTestDispatcher(limit int, sender Sender) *Dispatcher {
	return New(
		ratelimit.NewSendLimiter(limit),
		sender,
		filecheck.New(0, 0),
		"quotes@petshealth.gr",
		"PETSHEALTH",
		nil,
	)
}

func validRequest() Request {
	return Request{
		RecipientEmail: "client@example.com",
		RecipientName:  "Maria Papadopoulou",
		Subject:        "Your pet insurance quote",
		HTMLBody:       "<p>Quote attached.</p>",
		Attachments: []Attachment{
			{Filename: "quote.pdf", Data: validPDF()},
		},
	}
}

func TestDispatch_Success(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(5, sender)

	res, err := d.Dispatch(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("dispatch failed: %v (%s)", err, res.Reason)
	}
	if res.State != StateSent {
		t.Errorf("state = %s, want %s", res.State, StateSent)
	}
	if res.Remaining != 4 {
		t.Errorf("remaining = %d, want 4", res.Remaining)
	}
	if res.SentAt.IsZero() {
		t.Error("sentAt not recorded")
	}

	if len(sender.calls) != 1 {
		t.Fatalf("sender called %d times, want 1", len(sender.calls))
	}
	call := sender.calls[0]
	if call.from != "quotes@petshealth.gr" {
		t.Errorf("from = %q", call.from)
	}
	if len(call.to) != 1 || call.to[0] != "client@example.com" {
		t.Errorf("to = %v", call.to)
	}

	msg := string(call.msg)
	for _, want := range []string{
		"Subject:", "From:", "To:", "Message-ID:", "MIME-Version: 1.0",
		"multipart/mixed", "application/pdf", `filename="quote.pdf"`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestDispatch_CCRecipient(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(5, sender)

	req := validRequest()
	req.CC = "advisor@petshealth.gr"

	if _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if to := sender.calls[0].to; len(to) != 2 || to[1] != "advisor@petshealth.gr" {
		t.Errorf("to = %v", to)
	}
	if !strings.Contains(string(sender.calls[0].msg), "Cc: advisor@petshealth.gr") {
		t.Error("Cc header missing")
	}

	bad := validRequest()
	bad.CC = "not-an-address"
	if _, err := d.Dispatch(context.Background(), bad); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("invalid cc err = %v", err)
	}
}

func TestDispatch_RateLimited(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(1, sender)

	if _, err := d.Dispatch(context.Background(), validRequest()); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}

	res, err := d.Dispatch(context.Background(), validRequest())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if res.State != StateRejected {
		t.Errorf("state = %s, want %s", res.State, StateRejected)
	}
	if res.RetryAfter <= 0 {
		t.Error("retryAfter not set")
	}
	if !strings.Contains(res.Reason, "try again in") {
		t.Errorf("reason = %q, want a retry hint", res.Reason)
	}
	if len(sender.calls) != 1 {
		t.Errorf("sender called %d times after limit, want 1", len(sender.calls))
	}
}

func TestDispatch_RejectsInvalidRecipient(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(5, sender)

	req := validRequest()
	req.RecipientEmail = "client@example.com\r\nBcc: attacker@evil.com"

	res, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if res.State != StateRejected {
		t.Errorf("state = %s", res.State)
	}
	if len(sender.calls) != 0 {
		t.Error("sender reached with invalid recipient")
	}
}

func TestDispatch_RejectsHeaderInjection(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(5, sender)

	req := validRequest()
	req.Subject = "Quote\r\nBcc: attacker@evil.com"

	if _, err := d.Dispatch(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if len(sender.calls) != 0 {
		t.Error("sender reached with injected subject")
	}
}

func TestDispatch_RejectsEmptyBody(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(5, sender)

	req := validRequest()
	req.HTMLBody = "  \n\t "

	res, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if res.State != StateRejected {
		t.Errorf("state = %s", res.State)
	}
	if len(sender.calls) != 0 {
		t.Error("blank email reached the sender")
	}
}

func TestDispatch_RejectsBadAttachment(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(5, sender)

	req := validRequest()
	req.Attachments[0].Data = []byte("not a pdf at all")

	res, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if !strings.Contains(res.Reason, "attachment rejected") {
		t.Errorf("reason = %q", res.Reason)
	}
	if len(sender.calls) != 0 {
		t.Error("whole send should abort on a bad attachment")
	}
}

// A rejected request must not consume a rate-limit slot.
func TestDispatch_RejectionDoesNotConsumeSlot(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(1, sender)

	bad := validRequest()
	bad.RecipientEmail = "not-an-address"
	d.Dispatch(context.Background(), bad)

	if _, err := d.Dispatch(context.Background(), validRequest()); err != nil {
		t.Fatalf("valid dispatch refused after a rejection: %v", err)
	}
}

func TestDispatch_SanitizesAttachmentFilename(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(5, sender)

	req := validRequest()
	req.Attachments[0].Filename = "../../etc/quote"

	if _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	msg := string(sender.calls[0].msg)
	if strings.Contains(msg, "..") && strings.Contains(msg, "etc/") {
		t.Error("traversal tokens survived into the message")
	}
	if !strings.Contains(msg, `filename="etcquote.pdf"`) {
		t.Errorf("filename not sanitized and pdf-suffixed:\n%s", msg)
	}
}

func TestDispatch_SendFailureIsGeneric(t *testing.T) {
	sender := &fakeSender{err: errors.New("535 5.7.8 authentication credentials invalid for user quotes@petshealth.gr")}
	d := newTestDispatcher(5, sender)

	res, err := d.Dispatch(context.Background(), validRequest())
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("err = %v, want ErrSendFailed", err)
	}
	if res.State != StateFailed {
		t.Errorf("state = %s", res.State)
	}
	if strings.Contains(res.Reason, "535") || strings.Contains(res.Reason, "credentials") {
		t.Errorf("smtp detail leaked into result: %q", res.Reason)
	}
}

// A failed send keeps its reserved slot: the window reflects attempts, not
// successes.
func TestDispatch_FailedSendConsumesSlot(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection reset")}
	d := newTestDispatcher(2, sender)

	d.Dispatch(context.Background(), validRequest())

	if s := d.Status(); s.Used != 1 {
		t.Errorf("used = %d after failed send, want 1", s.Used)
	}
}
