// Package dispatch sends quote emails. A dispatch walks a fixed pipeline:
// rate check, defensive revalidation of everything upstream claims to have
// checked, message assembly, then a TLS-verified SMTP transaction. Any
// failed stage aborts the whole send; partial messages are never emitted.
package dispatch

import (
	"errors"
	"time"
)

// State is the lifecycle position of a dispatch request.
type State string

const (
	StatePending     State = "pending"
	StateRateChecked State = "rate_checked"
	StateSending     State = "sending"
	StateSent        State = "sent"
	StateRejected    State = "rejected"
	StateFailed      State = "failed"
)

var (
	// ErrRateLimited means the sliding window is exhausted.
	ErrRateLimited = errors.New("email rate limit reached")

	// ErrInvalidRequest means revalidation refused the request content.
	ErrInvalidRequest = errors.New("dispatch request failed validation")

	// ErrSendFailed means the SMTP transaction did not complete.
	ErrSendFailed = errors.New("email could not be sent")
)

// Attachment is a file to include in the outgoing message. Data is held in
// memory for the lifetime of the dispatch only.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Request describes one quote email to send. CC is optional and gets the
// same validation as the recipient.
type Request struct {
	ID             string
	RecipientEmail string
	RecipientName  string
	CC             string
	Subject        string
	HTMLBody       string
	ReplyTo        string
	Attachments    []Attachment
}

// Result reports the outcome of a dispatch attempt. Reason is safe to show
// to the requester; it never carries SMTP server detail or credentials.
type Result struct {
	ID         string        `json:"id"`
	State      State         `json:"state"`
	Reason     string        `json:"reason,omitempty"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	SentAt     time.Time     `json:"sent_at,omitempty"`
}
