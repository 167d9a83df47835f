package attendance

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"
)

// ValidationResult is the outcome of checking a session reference and token.
type ValidationResult struct {
	OK      bool
	Reason  Outcome
	Session Session
}

// Validator checks redemption attempts against the store. Nothing is cached:
// expiry is relative to the time passed in.
type Validator struct {
	store Store
}

// NewValidator builds a validator over store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// Validate checks existence, expiry and token, in that order of precedence.
// Rejections are reported in the result; only storage failures are errors.
func (v *Validator) Validate(ctx context.Context, sessionID int64, token string, now time.Time) (ValidationResult, error) {
	sess, err := v.store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return ValidationResult{Reason: OutcomeNotFound}, nil
	}
	if err != nil {
		return ValidationResult{}, unavailable("get session", err)
	}

	matches := TokensEqual(sess.Token, token)
	switch {
	case sess.Expired(now):
		return ValidationResult{Reason: OutcomeExpired, Session: sess}, nil
	case !matches:
		return ValidationResult{Reason: OutcomeTokenMismatch, Session: sess}, nil
	}
	return ValidationResult{OK: true, Reason: OutcomeOK, Session: sess}, nil
}

// TokensEqual compares two secrets in constant time.
func TokensEqual(stored, given string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
