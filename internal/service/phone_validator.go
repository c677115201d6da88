package service

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	apperrors "lendingledger/internal/errors"
)

// PhoneValidator validates phone numbers in international format.
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator.
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// ValidatePhone accepts numbers written with a leading "+" and country code
// that parse to a number of plausible length for that country.
func (v *PhoneValidator) ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") {
		return apperrors.ErrInvalidRequest
	}

	// No default region: the country code must come from the number itself.
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return apperrors.ErrInvalidRequest
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return apperrors.ErrInvalidRequest
	}
	return nil
}
