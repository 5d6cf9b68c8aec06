package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/fault"
	"github.com/sawpanic/noticerun/internal/net/ratelimit"
)

// Config tunes a Gateway.
type Config struct {
	MaxConcurrent     int
	RequestsPerSecond float64
	Burst             int
	ReadRetryDelay    time.Duration
	WriteMaxAttempts  int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	TotalTimeout      time.Duration
	// Headers are sent with every API request but never with object-store
	// uploads or downloads.
	Headers http.Header
}

// DefaultConfig matches the upstream's documented limits.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     9,
		RequestsPerSecond: 9,
		ReadRetryDelay:    201 * time.Millisecond,
		WriteMaxAttempts:  5,
		BackoffBase:       500 * time.Millisecond,
		BackoffMax:        30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		ReadTimeout:       60 * time.Second,
		TotalTimeout:      120 * time.Second,
	}
}

// Observer receives request lifecycle events.
type Observer interface {
	RequestStarted()
	RequestFinished(method string, status int, d time.Duration)
	Throttle(method string)
}

type nopObserver struct{}

func (nopObserver) RequestStarted()                            {}
func (nopObserver) RequestFinished(string, int, time.Duration) {}
func (nopObserver) Throttle(string)                            {}

// Response is a fully read upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fault.New(fault.MalformedData, "decode response", err)
	}
	return nil
}

// Gateway is the single choke point for upstream traffic. Every attempt
// takes a concurrency slot and a rate token from one shared limiter.
type Gateway struct {
	cfg      Config
	limiter  *ratelimit.Limiter
	client   *http.Client
	observer Observer

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// New creates a Gateway. Zero-valued config fields fall back to
// DefaultConfig.
func New(cfg Config, opts ...Option) *Gateway {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.ReadRetryDelay <= 0 {
		cfg.ReadRetryDelay = def.ReadRetryDelay
	}
	if cfg.WriteMaxAttempts <= 0 {
		cfg.WriteMaxAttempts = def.WriteMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = def.TotalTimeout
	}

	g := &Gateway{
		cfg:      cfg,
		limiter:  ratelimit.NewLimiter(cfg.MaxConcurrent, cfg.RequestsPerSecond, cfg.Burst),
		observer: nopObserver{},
		client: &http.Client{
			Timeout: cfg.TotalTimeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
				ResponseHeaderTimeout: cfg.ReadTimeout,
				MaxIdleConnsPerHost:   cfg.MaxConcurrent,
			},
		},
		sleep:  sleepCtx,
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stats exposes the shared limiter state.
func (g *Gateway) Stats() ratelimit.LimiterStats {
	return g.limiter.Stats()
}

// Fetch performs a read. A 429 sleeps ReadRetryDelay and retries with no
// attempt bound; only ctx stops it. Bodies that are not a JSON object or
// array come back as an Unexpected result rather than an error.
func (g *Gateway) Fetch(ctx context.Context, method, url string) (Result, error) {
	return g.read(ctx, method, url, true)
}

// FetchRaw is Fetch without API headers, for presigned download URLs.
func (g *Gateway) FetchRaw(ctx context.Context, url string) (Result, error) {
	return g.read(ctx, http.MethodGet, url, false)
}

func (g *Gateway) read(ctx context.Context, method, url string, auth bool) (Result, error) {
	for {
		resp, err := g.do(ctx, method, url, "", nil, auth)
		if err != nil {
			return Result{}, err
		}
		if resp.Status == http.StatusTooManyRequests {
			g.observer.Throttle(method)
			log.Debug().
				Str("method", method).
				Str("url", url).
				Dur("delay", g.cfg.ReadRetryDelay).
				Msg("Read throttled, retrying")
			if err := g.sleep(ctx, g.cfg.ReadRetryDelay); err != nil {
				return Result{}, err
			}
			continue
		}
		return newResult(resp), nil
	}
}

// PostWithRetry POSTs body as JSON. A 429 waits for Retry-After when the
// upstream sends it, otherwise an exponential backoff with jitter. Running
// out of attempts is a fault.RateLimited error; any other status is
// returned to the caller unchanged. maxAttempts <= 0 uses the configured
// write budget.
func (g *Gateway) PostWithRetry(ctx context.Context, url string, body any, maxAttempts int) (*Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = g.cfg.WriteMaxAttempts
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fault.New(fault.MalformedData, "encode request", err)
	}
	return g.write(ctx, http.MethodPost, url, "application/json", payload, true, maxAttempts)
}

// Send writes body as JSON with the configured write attempt budget.
func (g *Gateway) Send(ctx context.Context, method, url string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fault.New(fault.MalformedData, "encode request", err)
	}
	return g.write(ctx, method, url, "application/json", payload, true, g.cfg.WriteMaxAttempts)
}

// Upload POSTs a pre-encoded body to an object-store URL. API headers are
// not attached.
func (g *Gateway) Upload(ctx context.Context, url, contentType string, body []byte) (*Response, error) {
	return g.write(ctx, http.MethodPost, url, contentType, body, false, g.cfg.WriteMaxAttempts)
}

func (g *Gateway) write(ctx context.Context, method, url, contentType string, payload []byte, auth bool, maxAttempts int) (*Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := g.do(ctx, method, url, contentType, payload, auth)
		if err != nil {
			return nil, err
		}
		if resp.Status != http.StatusTooManyRequests {
			return resp, nil
		}

		g.observer.Throttle(method)
		if attempt == maxAttempts {
			break
		}
		delay, ok := retryAfter(resp.Header)
		if !ok {
			delay = g.calculateBackoff(attempt)
		}
		log.Debug().
			Str("method", method).
			Str("url", url).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Write throttled, retrying")
		if err := g.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fault.Newf(fault.RateLimited, method+" "+url, "still throttled after %d attempts", maxAttempts)
}

func (g *Gateway) do(ctx context.Context, method, url, contentType string, payload []byte, auth bool) (*Response, error) {
	release, err := g.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fault.New(fault.MalformedData, "build request", err)
	}
	if auth {
		for k, vs := range g.cfg.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	g.observer.RequestStarted()
	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.observer.RequestFinished(method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	g.observer.RequestFinished(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, url, err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (g *Gateway) calculateBackoff(attempt int) time.Duration {
	backoff := g.cfg.BackoffBase * time.Duration(1<<uint(attempt-1))
	if backoff > g.cfg.BackoffMax || backoff <= 0 {
		backoff = g.cfg.BackoffMax
	}

	// Add up to 10% jitter to backoff
	jitter := time.Duration(g.jitter() * 0.1 * float64(backoff))
	return backoff + jitter
}

func retryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
