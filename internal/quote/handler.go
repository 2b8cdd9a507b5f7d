package quote

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chiinsurancebrokers/petquoteengine/internal/dispatch"
	"github.com/chiinsurancebrokers/petquoteengine/internal/ratelimit"
)

// maxUploadMemory is the in-memory threshold for multipart parsing;
// larger parts spill to temporary files.
const maxUploadMemory = 8 << 20

// RateStatuser exposes the dispatch window for the status endpoint.
type RateStatuser interface {
	Status() ratelimit.Status
}

// Handler serves the quote API.
type Handler struct {
	svc         *Service
	rate        RateStatuser
	maxBodySize int64
	log         *slog.Logger
}

// NewHandler creates the quote API handler. maxBodySize bounds the whole
// request body including uploads.
func NewHandler(svc *Service, rate RateStatuser, maxBodySize int64, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, rate: rate, maxBodySize: maxBodySize, log: log}
}

// Routes mounts the quote endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/quotes", h.submitQuote)
	r.Get("/quotes/rate-limit", h.rateLimitStatus)
}

// submitQuote handles POST /api/v1/quotes. The form carries the submission
// fields plus a quote_pdf file and an optional pet_photo.
func (h *Handler) submitQuote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body is not valid multipart form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	sub, err := submissionFromForm(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quotePDF, err := formUpload(r, "quote_pdf")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "quote_pdf upload could not be read")
		return
	}
	petPhoto, err := formUpload(r, "pet_photo")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "pet_photo upload could not be read")
		return
	}

	result, fieldErrs, err := h.svc.Process(r.Context(), sub, quotePDF, petPhoto)
	if len(fieldErrs) > 0 {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "submission failed validation",
			"fields": fieldErrs,
		})
		return
	}

	switch {
	case errors.Is(err, dispatch.ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
		h.setRateHeaders(w)
		h.writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": result.Reason,
		})
		return
	case errors.Is(err, dispatch.ErrInvalidRequest):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": result.Reason,
		})
		return
	case err != nil:
		h.writeError(w, http.StatusBadGateway, result.Reason)
		return
	}

	h.setRateHeaders(w)
	h.writeJSON(w, http.StatusCreated, Receipt{
		ID:        result.ID,
		State:     string(result.State),
		Remaining: result.Remaining,
		SentAt:    result.SentAt,
	})
}

// rateLimitStatus handles GET /api/v1/quotes/rate-limit.
func (h *Handler) rateLimitStatus(w http.ResponseWriter, r *http.Request) {
	s := h.rate.Status()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"max_per_hour": s.MaxPerHour,
		"used":         s.Used,
		"remaining":    s.Remaining,
	})
}

func (h *Handler) setRateHeaders(w http.ResponseWriter) {
	s := h.rate.Status()
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.MaxPerHour))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(s.Remaining))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("writing response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// submissionFromForm builds a Submission from multipart form values.
func submissionFromForm(r *http.Request) (*Submission, error) {
	sub := &Submission{
		OwnerName:    r.FormValue("owner_name"),
		Email:        r.FormValue("email"),
		Phone:        r.FormValue("phone"),
		PetName:      r.FormValue("pet_name"),
		PetType:      r.FormValue("pet_type"),
		PetBirthDate: r.FormValue("pet_birth_date"),
		Breed:        r.FormValue("breed"),
		MicrochipID:  r.FormValue("microchip_id"),
		Plan:         r.FormValue("plan"),
		Notes:        r.FormValue("notes"),
	}

	if v := r.FormValue("pet_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("pet_count must be an integer")
		}
		sub.PetCount = n
	}
	if v := r.FormValue("premium"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.New("premium must be a number")
		}
		sub.Premium = f
	}

	return sub, nil
}

// formUpload reads one uploaded file into memory. A missing file is not an
// error; requiredness is decided by the service.
func formUpload(r *http.Request, field string) (*Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &Upload{Filename: header.Filename, Data: data}, nil
}
