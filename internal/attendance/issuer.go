package attendance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/metrics"
)

// DefaultTTL is how long a session accepts redemptions.
const DefaultTTL = 180 * time.Second

const tokenBytes = 16

// Encoder renders a redemption URL into a scannable artifact and returns a
// reference (path or URL) to it.
type Encoder interface {
	Encode(ctx context.Context, sessionID int64, redeemURL string) (string, error)
}

// Sweeper is poked after each session so stale artifacts get cleaned up.
type Sweeper interface {
	Trigger()
}

// Issued is the result of creating a session.
type Issued struct {
	Session   Session
	RedeemURL string
	ImageRef  string
	EncodeErr error
}

// Issuer creates sessions and their QR artifacts.
type Issuer struct {
	store   Store
	encoder Encoder
	sweeper Sweeper
	baseURL string
	ttl     time.Duration
	now     Clock
	random  io.Reader
	log     *zap.Logger
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock overrides the time source.
func WithIssuerClock(c Clock) IssuerOption { return func(i *Issuer) { i.now = c } }

// WithRandom overrides the token entropy source.
func WithRandom(r io.Reader) IssuerOption { return func(i *Issuer) { i.random = r } }

// WithSweeper sets the janitor poked after every issued session.
func WithSweeper(s Sweeper) IssuerOption { return func(i *Issuer) { i.sweeper = s } }

// NewIssuer builds an issuer. encoder may be nil, in which case only the
// redemption link is produced.
func NewIssuer(store Store, encoder Encoder, baseURL string, ttl time.Duration, log *zap.Logger, opts ...IssuerOption) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	i := &Issuer{
		store:   store,
		encoder: encoder,
		baseURL: baseURL,
		ttl:     ttl,
		now:     systemClock,
		random:  rand.Reader,
		log:     log,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CreateSession persists a new session and renders its QR artifact. Encoding
// failures do not fail the call: Issued.EncodeErr is set and ImageRef is empty.
func (i *Issuer) CreateSession(ctx context.Context) (Issued, error) {
	token, err := i.newToken()
	if err != nil {
		return Issued{}, fmt.Errorf("generate token: %w", err)
	}

	created := i.now().UTC().Truncate(time.Second)
	sess, err := i.store.CreateSession(ctx, token, created, created.Add(i.ttl))
	if err != nil {
		return Issued{}, unavailable("create session", err)
	}
	metrics.SessionsCreated.Inc()

	out := Issued{Session: sess, RedeemURL: i.RedeemURL(sess.ID, token)}
	if i.encoder != nil {
		ref, err := i.encoder.Encode(ctx, sess.ID, out.RedeemURL)
		if err != nil {
			out.EncodeErr = fmt.Errorf("%w: %w", ErrEncoding, err)
			metrics.EncodeFailures.Inc()
			i.log.Warn("qr artifact unavailable, falling back to link",
				zap.Int64("session_id", sess.ID), zap.Error(err))
		} else {
			out.ImageRef = ref
		}
	}

	if i.sweeper != nil {
		i.sweeper.Trigger()
	}
	return out, nil
}

// RedeemURL is the link embedded in the QR code.
func (i *Issuer) RedeemURL(sessionID int64, token string) string {
	q := url.Values{}
	q.Set("token", token)
	return i.baseURL + "/sessions/" + strconv.FormatInt(sessionID, 10) + "/redeem?" + q.Encode()
}

func (i *Issuer) newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
