package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/chiinsurancebrokers/petquoteengine/internal/dispatch"
	"github.com/chiinsurancebrokers/petquoteengine/internal/filecheck"
	"github.com/chiinsurancebrokers/petquoteengine/internal/sanitize"
	"github.com/chiinsurancebrokers/petquoteengine/internal/validate"
)

// Upload is a file received with a submission.
type Upload struct {
	Filename string
	Data     []byte
}

// Dispatcher sends the finished quote email.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

// Renderer produces the HTML body of the quote email from a sanitized
// submission and optional site content items.
type Renderer interface {
	Render(sub *Submission, items []string) (string, error)
}

// ContentSource supplies supplementary site content for the email body.
// A source failure degrades the email, it does not block it.
type ContentSource interface {
	Fetch(ctx context.Context, url string) ([]string, error)
}

// Service coordinates validation, rendering, and dispatch of a submission.
type Service struct {
	validate   *validator.Validate
	dispatcher Dispatcher
	renderer   Renderer
	content    ContentSource
	contentURL string
	checker    *filecheck.Checker
	log        *slog.Logger
}

// NewService wires a quote service. content and contentURL may be empty
// when no supplementary content is configured.
func NewService(d Dispatcher, r Renderer, content ContentSource, contentURL string, checker *filecheck.Checker, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names so API errors match the form fields.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		validate:   v,
		dispatcher: d,
		renderer:   r,
		content:    content,
		contentURL: contentURL,
		checker:    checker,
		log:        log,
	}
}

// Validate runs shape checks then domain checks over the submission,
// returning one FieldError per rejected field. The submission is mutated
// in place with normalized values.
func (s *Service) Validate(sub *Submission) []FieldError {
	var errs []FieldError

	if err := s.validate.Struct(sub); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, FieldError{
					Field:  strings.ToLower(fe.Field()),
					Reason: shapeReason(fe),
				})
			}
		} else {
			errs = append(errs, FieldError{Field: "submission", Reason: "malformed submission"})
		}
		return errs
	}

	if res := validate.Email(sub.Email); !res.Valid {
		errs = append(errs, fieldError("email", res))
	} else {
		sub.Email = res.Normalized
	}
	if res := validate.Phone(sub.Phone); !res.Valid {
		errs = append(errs, fieldError("phone", res))
	} else {
		sub.Phone = res.Normalized
	}
	if res := validate.Date(sub.PetBirthDate); !res.Valid {
		errs = append(errs, fieldError("pet_birth_date", res))
	}
	if res := validate.AmountValue(sub.Premium); !res.Valid {
		errs = append(errs, fieldError("premium", res))
	}
	// Zero means the count was not supplied; a stated count is 1 to 50.
	if sub.PetCount != 0 {
		if res := validate.Count(sub.PetCount, 1, 50); !res.Valid {
			errs = append(errs, fieldError("pet_count", res))
		}
	}

	for field, value := range map[string]*string{
		"owner_name": &sub.OwnerName,
		"pet_name":   &sub.PetName,
		"breed":      &sub.Breed,
		"plan":       &sub.Plan,
	} {
		if res := validate.SingleLine(*value, 0); !res.Valid {
			errs = append(errs, fieldError(field, res))
		} else {
			*value = res.Normalized
		}
	}
	if res := validate.MultiLine(sub.Notes, 0); !res.Valid {
		errs = append(errs, fieldError("notes", res))
	} else {
		sub.Notes = res.Normalized
	}

	return errs
}

// Process validates the submission, checks the uploads, renders the email,
// and dispatches it. Field errors short-circuit before any send-side work.
func (s *Service) Process(ctx context.Context, sub *Submission, quotePDF *Upload, petPhoto *Upload) (dispatch.Result, []FieldError, error) {
	if errs := s.Validate(sub); len(errs) > 0 {
		return dispatch.Result{}, errs, nil
	}

	if quotePDF == nil || len(quotePDF.Data) == 0 {
		return dispatch.Result{}, []FieldError{{Field: "quote_pdf", Reason: "quote document is required"}}, nil
	}
	if v := s.checker.Check(filecheck.KindDocument, quotePDF.Filename, quotePDF.Data); !v.OK {
		return dispatch.Result{}, []FieldError{{Field: "quote_pdf", Reason: v.Reason}}, nil
	}

	// The photo is kept out of the email; it is checked so a corrupt or
	// mislabeled upload is reported to the client, then discarded.
	if petPhoto != nil && len(petPhoto.Data) > 0 {
		if v := s.checker.Check(filecheck.KindImage, petPhoto.Filename, petPhoto.Data); !v.OK {
			return dispatch.Result{}, []FieldError{{Field: "pet_photo", Reason: v.Reason}}, nil
		}
	}

	var items []string
	if s.content != nil && s.contentURL != "" {
		fetched, err := s.content.Fetch(ctx, s.contentURL)
		if err != nil {
			s.log.Warn("supplementary content unavailable", "error", err)
		} else {
			items = fetched
		}
	}

	body, err := s.renderer.Render(sub, items)
	if err != nil {
		return dispatch.Result{}, nil, fmt.Errorf("rendering quote email: %w", err)
	}

	filename := quotePDF.Filename
	if filename == "" {
		filename = "quote.pdf"
	}

	subject, err := sanitize.EmailHeader("Your PETSHEALTH quote for " + sub.PetName)
	if err != nil {
		return dispatch.Result{}, []FieldError{{Field: "pet_name", Reason: "pet name is invalid"}}, nil
	}

	result, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		RecipientEmail: sub.Email,
		RecipientName:  sub.OwnerName,
		Subject:        subject,
		HTMLBody:       body,
		Attachments: []dispatch.Attachment{
			{Filename: filename, ContentType: "application/pdf", Data: quotePDF.Data},
		},
	})
	return result, nil, err
}

// shapeReason maps a struct-tag violation to a client-facing reason.
func shapeReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "max":
		return "value exceeds maximum length"
	case "min":
		return "value is below minimum"
	case "oneof":
		return "value must be one of: " + fe.Param()
	case "numeric":
		return "value must be numeric"
	case "len":
		return "value has wrong length"
	default:
		return "value is invalid"
	}
}
