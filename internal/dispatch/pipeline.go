package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chiinsurancebrokers/petquoteengine/internal/filecheck"
	"github.com/chiinsurancebrokers/petquoteengine/internal/metrics"
	"github.com/chiinsurancebrokers/petquoteengine/internal/ratelimit"
	"github.com/chiinsurancebrokers/petquoteengine/internal/sanitize"
	"github.com/chiinsurancebrokers/petquoteengine/internal/validate"
)

// Dispatcher runs the send pipeline. It revalidates and resanitizes every
// request on its own: upstream layers are expected to have checked the
// input already, but the dispatcher never relies on that.
type Dispatcher struct {
	limiter *ratelimit.SendLimiter
	sender  Sender
	checker *filecheck.Checker
	from    string
	name    string
	log     *slog.Logger
}

// New creates a Dispatcher. from is the authenticated sender address.
func New(limiter *ratelimit.SendLimiter, sender Sender, checker *filecheck.Checker, from, fromName string, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		limiter: limiter,
		sender:  sender,
		checker: checker,
		from:    from,
		name:    fromName,
		log:     log,
	}
}

// Dispatch sends one quote email through the full pipeline. The returned
// Result always carries a terminal state; the error mirrors it for callers
// that branch on sentinel values.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	log := d.log.With("dispatch_id", req.ID)

	// Rate check first: a rejected request must not consume a window slot,
	// so validation runs before reservation only for the parts that do not
	// depend on send-time state.
	if res, err := d.revalidate(&req); err != nil {
		log.Warn("dispatch rejected", "reason", res.Reason)
		metrics.EmailsRejectedTotal.WithLabelValues("validation").Inc()
		res.ID = req.ID
		res.Remaining = d.limiter.Status().Remaining
		return res, err
	}

	reservation := d.limiter.CheckAndReserve()
	metrics.RateLimitRemaining.Set(float64(reservation.Remaining))
	if !reservation.Allowed {
		minutes := int(reservation.RetryAfter.Minutes()) + 1
		log.Warn("dispatch rate limited", "retry_after", reservation.RetryAfter)
		metrics.EmailsRejectedTotal.WithLabelValues("rate_limit").Inc()
		return Result{
			ID:         req.ID,
			State:      StateRejected,
			Reason:     fmt.Sprintf("email limit reached, try again in %d minutes", minutes),
			Remaining:  0,
			RetryAfter: reservation.RetryAfter,
		}, ErrRateLimited
	}

	msg, err := buildMessage(d.from, d.name, &req)
	if err != nil {
		log.Error("message assembly failed", "error", err)
		metrics.EmailsRejectedTotal.WithLabelValues("assembly").Inc()
		return Result{
			ID:        req.ID,
			State:     StateFailed,
			Reason:    "email could not be prepared",
			Remaining: reservation.Remaining,
		}, ErrSendFailed
	}

	recipients := []string{req.RecipientEmail}
	if req.CC != "" {
		recipients = append(recipients, req.CC)
	}

	start := time.Now()
	if err := d.sender.Send(ctx, d.from, recipients, msg); err != nil {
		// Log the real error, return a generic one. SMTP detail can leak
		// infrastructure and credential hints.
		log.Error("smtp send failed", "error", err, "duration", time.Since(start))
		return Result{
			ID:        req.ID,
			State:     StateFailed,
			Reason:    "email could not be sent, please try again later",
			Remaining: reservation.Remaining,
		}, ErrSendFailed
	}

	metrics.EmailsSentTotal.Inc()
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	log.Info("quote email sent",
		"remaining", reservation.Remaining,
		"attachments", len(req.Attachments),
		"duration", time.Since(start),
	)

	return Result{
		ID:        req.ID,
		State:     StateSent,
		Remaining: reservation.Remaining,
		SentAt:    time.Now().UTC(),
	}, nil
}

// Status exposes the limiter window for the rate-limit endpoint.
func (d *Dispatcher) Status() ratelimit.Status {
	return d.limiter.Status()
}

// revalidate re-runs validation and sanitization on the request, mutating
// it in place with the sanitized values. Attachments are integrity-checked
// and their filenames forced to safe basenames.
func (d *Dispatcher) revalidate(req *Request) (Result, error) {
	rejected := func(reason string) (Result, error) {
		return Result{State: StateRejected, Reason: reason}, ErrInvalidRequest
	}

	if res := validate.Email(req.RecipientEmail); !res.Valid {
		return rejected("recipient address is invalid")
	}

	name, err := sanitize.EmailHeader(req.RecipientName)
	if err != nil {
		return rejected("recipient name is invalid")
	}
	req.RecipientName = name

	subject, err := sanitize.EmailHeader(req.Subject)
	if err != nil || subject == "" {
		return rejected("subject is invalid")
	}
	req.Subject = subject

	if strings.TrimSpace(req.HTMLBody) == "" {
		return rejected("message body is empty")
	}

	if req.CC != "" {
		if res := validate.Email(req.CC); !res.Valid {
			return rejected("cc address is invalid")
		}
	}
	if req.ReplyTo != "" {
		if res := validate.Email(req.ReplyTo); !res.Valid {
			return rejected("reply-to address is invalid")
		}
	}

	for i := range req.Attachments {
		att := &req.Attachments[i]

		filename, err := sanitize.Filename(att.Filename)
		if err != nil {
			return rejected("attachment filename is invalid")
		}
		if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
			filename += ".pdf"
		}
		att.Filename = filename
		att.ContentType = "application/pdf"

		if v := d.checker.Check(filecheck.KindDocument, filename, att.Data); !v.OK {
			return rejected("attachment rejected: " + v.Reason)
		}
	}

	return Result{}, nil
}
