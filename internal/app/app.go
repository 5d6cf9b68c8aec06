// Package app wires configuration, accounts and the upstream into runnable
// sessions.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/noticerun/internal/accounts"
	"github.com/sawpanic/noticerun/internal/config"
	"github.com/sawpanic/noticerun/internal/dispatch"
	"github.com/sawpanic/noticerun/internal/gateway"
	"github.com/sawpanic/noticerun/internal/handoff"
	"github.com/sawpanic/noticerun/internal/metrics"
	"github.com/sawpanic/noticerun/internal/net/ratelimit"
	"github.com/sawpanic/noticerun/internal/secrets"
	"github.com/sawpanic/noticerun/internal/upload"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// ErrNoHandoffKey is returned when a phase needs the bundle key and none
// is configured.
var ErrNoHandoffKey = errors.New("handoff key not configured")

// App owns the long-lived pieces shared by every session.
type App struct {
	cfg      *config.Config
	metrics  *metrics.Registry
	accounts accounts.Store
	secrets  secrets.Source
	closers  []func() error

	mu       sync.Mutex
	sessions map[int64]*Session
}

// New assembles an App from already-built parts. A nil registry gets a
// private one.
func New(cfg *config.Config, reg *metrics.Registry, store accounts.Store, src secrets.Source) *App {
	if reg == nil {
		reg = metrics.NewRegistry(nil)
	}
	return &App{
		cfg:      cfg,
		metrics:  reg,
		accounts: store,
		secrets:  src,
		sessions: make(map[int64]*Session),
	}
}

// Build creates the account store and secret chain described by cfg.
func Build(ctx context.Context, cfg *config.Config, reg *metrics.Registry) (*App, error) {
	var (
		store   accounts.Store
		closers []func() error
	)
	switch cfg.Accounts.Source {
	case "postgres":
		pg, err := accounts.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store = pg
		closers = append(closers, pg.Close)
	default:
		static, err := accounts.NewStaticStore(cfg.Accounts.Static)
		if err != nil {
			return nil, err
		}
		store = static
	}
	store = accounts.NewCachedStore(store, cfg.Secrets.CacheSize, cfg.Secrets.AccountCacheTTL())

	var chain secrets.Chain
	if cfg.Secrets.MountDir != "" {
		chain = append(chain, secrets.NewMountSource(cfg.Secrets.MountDir))
	}
	chain = append(chain, secrets.NewEnvSource(cfg.Secrets.EnvPrefix))

	a := New(cfg, reg, store, chain)
	a.closers = closers
	return a, nil
}

// Metrics returns the shared registry.
func (a *App) Metrics() *metrics.Registry {
	return a.metrics
}

// Close releases the account store.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Open returns the session of accountID, creating its gateway on first use.
// Each account gets its own limiter since upstream limits are per client.
func (a *App) Open(ctx context.Context, accountID int64) (dispatch.Session, error) {
	return a.Session(ctx, accountID)
}

// Session is Open with the concrete type.
func (a *App) Session(ctx context.Context, accountID int64) (*Session, error) {
	acct, err := a.accounts.Account(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", accountID, err)
	}

	a.mu.Lock()
	s, ok := a.sessions[accountID]
	a.mu.Unlock()
	if ok && s.account.ClientID == acct.ClientID {
		return s, nil
	}

	secret, err := a.secrets.Secret(ctx, acct.SecretName)
	if err != nil {
		return nil, fmt.Errorf("account %d client secret: %w", accountID, err)
	}
	s = a.newSession(acct, string(secret.Value))

	a.mu.Lock()
	a.sessions[accountID] = s
	a.mu.Unlock()
	log.Ctx(ctx).Debug().Int64("account_id", accountID).Msg("Session opened")
	return s, nil
}

// Default returns a session for the credentials in the upstream config.
func (a *App) Default(accountID int64) (*Session, error) {
	if a.cfg.Upstream.ClientID == "" || a.cfg.Upstream.ClientSecret == "" {
		return nil, errors.New("upstream client_id and client_secret are required")
	}
	return a.newSession(accounts.Account{
		ID:             accountID,
		ClientID:       a.cfg.Upstream.ClientID,
		AssigneeUserID: a.cfg.Pipeline.AssigneeUserID,
	}, a.cfg.Upstream.ClientSecret), nil
}

// WebhookKey resolves the signing key for accountID: the server-wide
// secret when set, otherwise the account's client secret.
func (a *App) WebhookKey(ctx context.Context, accountID int64) ([]byte, error) {
	if a.cfg.Server.WebhookSecret != "" {
		return []byte(a.cfg.Server.WebhookSecret), nil
	}
	acct, err := a.accounts.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	secret, err := a.secrets.Secret(ctx, acct.SecretName)
	if err != nil {
		return nil, err
	}
	return secret.Value, nil
}

// Limits snapshots the limiter of every open session, keyed by account.
func (a *App) Limits() map[int64]ratelimit.LimiterStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int64]ratelimit.LimiterStats, len(a.sessions))
	for id, s := range a.sessions {
		out[id] = s.gateway.Stats()
	}
	return out
}

func (a *App) newSession(acct accounts.Account, clientSecret string) *Session {
	g := a.cfg.Gateway
	u := a.cfg.Upstream
	gw := gateway.New(gateway.Config{
		MaxConcurrent:     g.MaxConcurrent,
		RequestsPerSecond: g.RequestsPerSecond,
		Burst:             g.Burst,
		ReadRetryDelay:    g.ReadRetry(),
		WriteMaxAttempts:  g.WriteMaxAttempts,
		BackoffBase:       g.BaseBackoff(),
		BackoffMax:        g.MaxBackoff(),
		ConnectTimeout:    millis(u.ConnectTimeout),
		ReadTimeout:       millis(u.ReadTimeout),
		TotalTimeout:      millis(u.TotalTimeout),
		Headers:           upstream.AuthHeaders(acct.ClientID, clientSecret),
	}, gateway.WithObserver(a.metrics))

	uploader := upload.New(gw, upload.Settings{
		FailureThreshold: uint32(g.Circuit.FailureThreshold),
		OpenTimeout:      millis(g.Circuit.OpenTimeoutMS),
	}, a.metrics)

	return &Session{
		app:      a,
		account:  acct,
		client:   upstream.New(gw, u.BaseURL, u.PageSize),
		uploader: uploader,
		gateway:  gw,
	}
}

func (a *App) handoffKey() (handoff.Key, error) {
	if a.cfg.Handoff.Key == "" {
		return handoff.Key{}, ErrNoHandoffKey
	}
	return handoff.ParseKey(a.cfg.Handoff.Key)
}

func (a *App) guideline(acct accounts.Account) (decimal.Decimal, error) {
	if acct.GuidelinePct != nil {
		return *acct.GuidelinePct, nil
	}
	return a.cfg.Increase.Guideline()
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
