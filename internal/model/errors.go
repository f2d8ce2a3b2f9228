package model

import (
	"errors"
	"fmt"
)

// TransientError wraps a failure worth retrying at the next scheduled tick:
// network errors, rate limits, upstream 5xx. The scheduler never retries
// inline.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient model error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// AuthError is fatal: the credential is missing, invalid, or revoked. It is
// surfaced to the process supervisor and never retried.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("model auth error: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// MalformedResponseError means the model answered but the answer could not be
// parsed. The cycle is skipped and memory is left untouched.
type MalformedResponseError struct {
	Raw string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response (%d bytes)", len(e.Raw))
}

// ErrSearchUnsupported is returned by providers without a search capability.
var ErrSearchUnsupported = errors.New("model: search not supported by provider")

// ErrFineTuneUnsupported is returned by providers without fine-tuning.
var ErrFineTuneUnsupported = errors.New("model: fine-tuning not supported by provider")

// IsTransient reports whether err should be retried at the next tick.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsMalformed reports whether err is an unparsable-response failure.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}
