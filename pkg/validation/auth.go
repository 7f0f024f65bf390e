package validation

import (
	"errors"
)

// maxPasswordLength bounds the candidate before it is compared or hashed
const maxPasswordLength = 1024

// AuthRequestValidator validates login requests
type AuthRequestValidator struct{}

// NewAuthRequestValidator creates a new AuthRequestValidator
func NewAuthRequestValidator() *AuthRequestValidator {
	return &AuthRequestValidator{}
}

// ValidatePassword rejects empty or oversized candidates
func (v *AuthRequestValidator) ValidatePassword(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	if len(password) > maxPasswordLength {
		return errors.New("password is too long")
	}

	return nil
}
