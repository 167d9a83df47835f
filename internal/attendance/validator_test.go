package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExpiryBoundary(t *testing.T) {
	f := newFixture(t, NewMemoryStore())
	sess := f.session(t)
	v := NewValidator(f.store)
	ctx := context.Background()

	cases := []struct {
		offset time.Duration
		want   Outcome
	}{
		{0, OutcomeOK},
		{179 * time.Second, OutcomeOK},
		{180 * time.Second, OutcomeOK},
		{180*time.Second + 900*time.Millisecond, OutcomeOK},
		{181 * time.Second, OutcomeExpired},
		{time.Hour, OutcomeExpired},
	}
	for _, tc := range cases {
		t.Run(tc.offset.String(), func(t *testing.T) {
			res, err := v.Validate(ctx, sess.ID, sess.Token, t0.Add(tc.offset))
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Reason)
			assert.Equal(t, tc.want == OutcomeOK, res.OK)
		})
	}
}

func TestValidatePrecedence(t *testing.T) {
	f := newFixture(t, NewMemoryStore())
	sess := f.session(t)
	v := NewValidator(f.store)
	ctx := context.Background()
	late := t0.Add(181 * time.Second)

	res, err := v.Validate(ctx, sess.ID+100, "whatever", late)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, res.Reason, "missing session wins over everything")

	res, err = v.Validate(ctx, sess.ID, "deadbeef", late)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Reason, "expired is reported even for a wrong token")

	res, err = v.Validate(ctx, sess.ID, "deadbeef", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTokenMismatch, res.Reason)
	assert.False(t, res.OK)
}

func TestValidateTokenVariants(t *testing.T) {
	f := newFixture(t, NewMemoryStore())
	sess := f.session(t)
	v := NewValidator(f.store)
	now := t0.Add(time.Second)

	for name, tok := range map[string]string{
		"empty":     "",
		"prefix":    sess.Token[:16],
		"uppercase": toUpper(sess.Token),
		"suffixed":  sess.Token + "0",
	} {
		t.Run(name, func(t *testing.T) {
			res, err := v.Validate(context.Background(), sess.ID, tok, now)
			require.NoError(t, err)
			assert.Equal(t, OutcomeTokenMismatch, res.Reason)
		})
	}
}

func TestValidateStorageFailure(t *testing.T) {
	v := NewValidator(downStore{NewMemoryStore()})
	_, err := v.Validate(context.Background(), 1, "x", t0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.True(t, errors.Is(err, errConnRefused))
}

func TestTokensEqual(t *testing.T) {
	assert.True(t, TokensEqual("abc", "abc"))
	assert.False(t, TokensEqual("abc", "abd"))
	assert.False(t, TokensEqual("abc", "ab"))
	assert.False(t, TokensEqual("abc", ""))
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func TestOutcomeErr(t *testing.T) {
	assert.ErrorIs(t, OutcomeNotFound.Err(), ErrNotFound)
	assert.ErrorIs(t, OutcomeTokenMismatch.Err(), ErrTokenMismatch)
	assert.ErrorIs(t, OutcomeExpired.Err(), ErrExpired)
	assert.ErrorIs(t, OutcomeInvalid.Err(), ErrInvalidInput)
	assert.ErrorIs(t, OutcomeError.Err(), ErrStorageUnavailable)
	assert.NoError(t, OutcomeOK.Err())
	assert.NoError(t, OutcomeRecorded.Err())
}
