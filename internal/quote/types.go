// Package quote implements the quote submission flow: a validated form,
// a rendered quote email, and dispatch of that email with the generated
// PDF attached.
package quote

import (
	"time"

	"github.com/chiinsurancebrokers/petquoteengine/internal/validate"
)

// Submission is one quote request form. Struct tags give the baseline
// shape checks; the service layers the stricter domain checks on top.
type Submission struct {
	OwnerName string `json:"owner_name" validate:"required,max=500"`
	Email     string `json:"email" validate:"required,max=254"`
	Phone     string `json:"phone" validate:"required,max=20"`

	PetName      string  `json:"pet_name" validate:"required,max=500"`
	PetType      string  `json:"pet_type" validate:"required,oneof=dog cat"`
	PetBirthDate string  `json:"pet_birth_date" validate:"required"`
	Breed        string  `json:"breed" validate:"omitempty,max=500"`
	MicrochipID  string  `json:"microchip_id" validate:"omitempty,numeric,len=15"`
	PetCount     int     `json:"pet_count"`
	Plan         string  `json:"plan" validate:"required,max=500"`
	Premium      float64 `json:"premium" validate:"omitempty,min=0,max=10000"`
	Notes        string  `json:"notes" validate:"omitempty,max=5000"`
}

// FieldError describes one rejected field in an API response.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Receipt is the API response for an accepted submission.
type Receipt struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Remaining int       `json:"emails_remaining"`
	SentAt    time.Time `json:"sent_at"`
}

// fieldError converts a domain validation result into a FieldError.
func fieldError(field string, res validate.Result) FieldError {
	return FieldError{Field: field, Reason: res.Reason}
}
