package trigger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Webhook signature headers.
const (
	HeaderSignature = "buildium-webhook-signature"
	HeaderTimestamp = "buildium-webhook-timestamp"
)

// DefaultTolerance is the accepted clock skew of a signed request.
const DefaultTolerance = 300 * time.Second

// Verification failures.
var (
	ErrMissingSignature = errors.New("missing signature or timestamp")
	ErrStaleTimestamp   = errors.New("timestamp outside tolerance")
	ErrBadSignature     = errors.New("signature mismatch")
)

// Verifier authenticates a webhook body.
type Verifier interface {
	Verify(ctx context.Context, accountID int64, timestamp, signature string, body []byte) error
}

// KeyFunc returns the signing key of an account.
type KeyFunc func(ctx context.Context, accountID int64) ([]byte, error)

// StaticKey signs every account with the same key.
func StaticKey(key []byte) KeyFunc {
	return func(context.Context, int64) ([]byte, error) { return key, nil }
}

// HMACVerifier checks base64 HMAC-SHA256 signatures over
// "{timestamp}.{body}".
type HMACVerifier struct {
	key       KeyFunc
	tolerance time.Duration
	now       func() time.Time
}

// NewHMACVerifier creates a verifier. A non-positive tolerance uses
// DefaultTolerance.
func NewHMACVerifier(key KeyFunc, tolerance time.Duration) *HMACVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &HMACVerifier{key: key, tolerance: tolerance, now: time.Now}
}

// Sign computes the signature of body at timestamp.
func Sign(key []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify implements Verifier.
func (v *HMACVerifier) Verify(ctx context.Context, accountID int64, timestamp, signature string, body []byte) error {
	if timestamp == "" || signature == "" {
		return ErrMissingSignature
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp %q: %w", timestamp, ErrStaleTimestamp)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return ErrStaleTimestamp
	}
	key, err := v.key(ctx, accountID)
	if err != nil {
		return fmt.Errorf("signing key for account %d: %w", accountID, err)
	}
	if !hmac.Equal([]byte(Sign(key, timestamp, body)), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
