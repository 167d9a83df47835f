package attendance

import (
	"context"
	"errors"
	"time"
)

// Stats reports a session's live counters as of now. A missing session is
// ErrNotFound; anything else the store returns is ErrStorageUnavailable.
func Stats(ctx context.Context, store Store, sessionID int64, now time.Time) (SessionStats, error) {
	sess, err := store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return SessionStats{}, ErrNotFound
	}
	if err != nil {
		return SessionStats{}, unavailable("get session", err)
	}
	tally, err := store.SessionTally(ctx, sessionID)
	if err != nil {
		return SessionStats{}, unavailable("tally session", err)
	}
	if tally.Attempts == nil {
		tally.Attempts = map[Outcome]int{}
	}

	now = now.UTC().Truncate(time.Second)
	remaining := int64(sess.ExpiresAt.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return SessionStats{
		SessionID:            sess.ID,
		Present:              tally.Present,
		Active:               !sess.Expired(now),
		TimeRemainingSeconds: remaining,
		ExpiresAt:            sess.ExpiresAt,
		AttemptsByOutcome:    tally.Attempts,
	}, nil
}
