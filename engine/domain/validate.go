package domain

import (
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// MinModelYear is the earliest year a listing may declare.
const MinModelYear = 1980

// MinPasswordLength mirrors the backend's registration constraint.
const MinPasswordLength = 8

// ValidateDraft checks a seller-submitted listing. now bounds the model year
// (next year's models are accepted).
func ValidateDraft(d Draft, now time.Time) error {
	required := []struct{ field, value string }{
		{"title", d.Title},
		{"brand", d.Brand},
		{"model", d.Model},
		{"year", d.Year},
		{"price", d.Price},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewValidationError(r.field, r.value, ErrRequired)
		}
	}

	year, err := strconv.Atoi(strings.TrimSpace(d.Year))
	if err != nil || year < MinModelYear || year > now.Year()+1 {
		return NewValidationError("year", d.Year, ErrOutOfRange)
	}

	if price := ParseNumber(d.Price, 0); price <= 0 {
		return NewValidationError("price", d.Price, ErrInvalidPrice)
	}

	if strings.TrimSpace(d.Description) == "" {
		return NewValidationError("description", d.Description, ErrRequired)
	}

	if strings.TrimSpace(d.ContactEmail) == "" && strings.TrimSpace(d.ContactPhone) == "" {
		return NewValidationError("contact", "", ErrMissingContact)
	}
	if d.ContactEmail != "" {
		if _, err := mail.ParseAddress(d.ContactEmail); err != nil {
			return NewValidationError("contactEmail", d.ContactEmail, ErrInvalidEmail)
		}
	}
	return nil
}

// ValidateCredentials checks login input before it reaches the backend.
func ValidateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return NewValidationError("email", email, ErrRequired)
	}
	if password == "" {
		return NewValidationError("password", "", ErrRequired)
	}
	return nil
}

// ValidateRegistration checks a sign-up payload.
func ValidateRegistration(req RegisterRequest) error {
	if strings.TrimSpace(req.Email) == "" {
		return NewValidationError("email", req.Email, ErrRequired)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return NewValidationError("email", req.Email, ErrInvalidEmail)
	}
	if len(req.Password) < MinPasswordLength {
		return NewValidationError("password", "", ErrPasswordTooShort)
	}
	return nil
}
