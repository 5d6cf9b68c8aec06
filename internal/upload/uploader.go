package upload

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/gateway"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// Poster sends a raw object-store POST through the rate gateway.
type Poster interface {
	Upload(ctx context.Context, url, contentType string, body []byte) (*gateway.Response, error)
}

// TicketFunc requests fresh single-use upload credentials.
type TicketFunc func(ctx context.Context) (upstream.UploadTicket, error)

// Observer records upload outcomes.
type Observer interface {
	UploadResult(target, result string)
}

type nopObserver struct{}

func (nopObserver) UploadResult(string, string) {}

// Settings configures the breaker around the object store.
type Settings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Uploader performs presigned uploads.
type Uploader struct {
	poster   Poster
	breaker  *gobreaker.CircuitBreaker
	observer Observer
}

// New creates an Uploader. A nil observer discards outcomes.
func New(poster Poster, s Settings, obs Observer) *Uploader {
	if obs == nil {
		obs = nopObserver{}
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "object-store",
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		// only store outages trip the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || fault.Is(err, fault.RateLimited)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
	return &Uploader{poster: poster, breaker: breaker, observer: obs}
}

// State exposes the breaker state.
func (u *Uploader) State() gobreaker.State {
	return u.breaker.State()
}

// Upload requests credentials and posts file to the object store. When the
// store reports the policy expired, fresh credentials are requested and the
// post retried exactly once.
func (u *Uploader) Upload(ctx context.Context, target Target, f File, ticket TicketFunc) error {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		var t upstream.UploadTicket
		t, err = ticket(ctx)
		if err != nil {
			break
		}
		err = u.post(ctx, target, t, f)
		if err == nil {
			u.observer.UploadResult(string(target), "ok")
			log.Debug().Str("target", string(target)).Str("file", f.Name).Int("attempt", attempt).Msg("Upload complete")
			return nil
		}
		if !fault.Is(err, fault.CredentialExpired) || attempt == 2 {
			break
		}
		u.observer.UploadResult(string(target), "expired")
		log.Warn().Str("file", f.Name).Msg("Upload policy expired, requesting fresh credentials")
	}
	u.observer.UploadResult(string(target), "failed")
	return err
}

func (u *Uploader) post(ctx context.Context, target Target, t upstream.UploadTicket, f File) error {
	contentType, body, err := BuildForm(Schema(target), t.Fields, f)
	if err != nil {
		return err
	}

	out, err := u.breaker.Execute(func() (interface{}, error) {
		resp, err := u.poster.Upload(ctx, t.BucketURL, contentType, body)
		if err != nil {
			return nil, err
		}
		if resp.Status >= http.StatusInternalServerError {
			return nil, fault.Status("object store upload", resp.Status, resp.Body)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fault.New(fault.UpstreamRejected, "object store upload", err)
	}
	if err != nil {
		return err
	}

	resp := out.(*gateway.Response)
	switch {
	case resp.Status == http.StatusNoContent:
		return nil
	case resp.Status == http.StatusForbidden && policyExpired(resp.Body):
		return &fault.Error{Kind: fault.CredentialExpired, Op: "object store upload", Status: resp.Status, Err: errors.New("policy expired")}
	default:
		return fault.Status("object store upload", resp.Status, resp.Body)
	}
}

func policyExpired(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "policy expired")
}
