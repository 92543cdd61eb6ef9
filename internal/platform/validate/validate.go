// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package validate collects field-level failures on decoded auth payloads and
// folds them into one VALIDATION_ERROR.
//
// Handlers validate before calling the service, so a malformed body never
// reaches storage or the password hasher.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
)

// ErrInvalidJSON is returned when the request body cannot be decoded.
var ErrInvalidJSON = apperr.ValidationError("Invalid JSON payload")

/*
Validator accumulates failures across a chain of rules.

A zero value is ready to use. It is not safe for concurrent use; build one
per request.
*/
type Validator struct {
	errs []apperr.FieldError
}

// Required fails if the trimmed value is empty.
func (validator *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		validator.add(field, "This field is required")
	}
	return validator
}

// MinLen counts characters, not bytes.
func (validator *Validator) MinLen(field, value string, min int) *Validator {
	if utf8.RuneCountInString(value) < min {
		validator.add(field, fmt.Sprintf("Minimum %d characters", min))
	}
	return validator
}

// MaxLen counts characters, not bytes.
func (validator *Validator) MaxLen(field, value string, max int) *Validator {
	if utf8.RuneCountInString(value) > max {
		validator.add(field, fmt.Sprintf("Maximum %d characters", max))
	}
	return validator
}

/*
Email accepts a bare address only.

Display-name forms such as "Alice <alice@x.com>" parse as RFC 5322 but are
rejected, since the value becomes the account's login key.
*/
func (validator *Validator) Email(field, value string) *Validator {
	address, err := mail.ParseAddress(value)
	if err != nil || address.Address != strings.TrimSpace(value) {
		validator.add(field, "Must be a valid email address")
	}
	return validator
}

// Matches fails if value differs from other (password confirmation).
func (validator *Validator) Matches(field, value, other, message string) *Validator {
	if value != other {
		validator.add(field, message)
	}
	return validator
}

// Printable rejects control characters, which would corrupt mail headers and logs.
func (validator *Validator) Printable(field, value string) *Validator {
	for _, r := range value {
		if unicode.IsControl(r) {
			validator.add(field, "Must not contain control characters")
			break
		}
	}
	return validator
}

// Token fails unless value uses the unpadded URL-safe base64 alphabet that
// emailed verification codes are generated from.
func (validator *Validator) Token(field, value string) *Validator {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			validator.add(field, "Must be a valid verification code")
			break
		}
	}
	return validator
}

// Err folds the collected failures into one [apperr.AppError], or nil.
func (validator *Validator) Err() error {
	if len(validator.errs) == 0 {
		return nil
	}
	return apperr.ValidationError("Validation failed", validator.errs...)
}

// HasErrors reports whether any rule has failed so far.
func (validator *Validator) HasErrors() bool {
	return len(validator.errs) > 0
}

func (validator *Validator) add(field, message string) {
	validator.errs = append(validator.errs, apperr.FieldError{Field: field, Message: message})
}
