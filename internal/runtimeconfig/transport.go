package runtimeconfig

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"
)

const defaultBackoff = 250 * time.Millisecond

// TransportConfig controls retries, pacing and identification headers of
// outgoing requests.
type TransportConfig struct {
	// Retries is the number of additional attempts after a failed request.
	Retries int
	// RequestsPerSecond paces requests; zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff   time.Duration
	UserAgent string
	// RequestID is sent as X-Request-ID so that all pages of one load can be correlated.
	RequestID string
}

type retryTransport struct {
	base    http.RoundTripper
	cfg     TransportConfig
	limiter rateLimiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTransport wraps base with bounded retries and request pacing.
func NewTransport(base http.RoundTripper, cfg TransportConfig, logger *zap.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &retryTransport{
		base:    base,
		cfg:     cfg,
		limiter: newTokenBucketLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:  logger,
		sleep:   sleepContext,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	// requests with a body that cannot be replayed get a single attempt
	retries := t.cfg.Retries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		retries = 0
	}

	delay := t.cfg.Backoff
	for attempt := 0; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		attemptReq, err := t.prepare(req, attempt)
		if err != nil {
			return nil, err
		}
		res, err := t.base.RoundTrip(attemptReq)
		if !shouldRetry(res, err) || attempt >= retries || ctx.Err() != nil {
			return res, err
		}

		t.logger.Debug("retrying request",
			zap.String("url", req.URL.Redacted()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if res != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
			_ = res.Body.Close()
		}
		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func (t *retryTransport) prepare(req *http.Request, attempt int) (*http.Request, error) {
	out := req.Clone(req.Context())
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		out.Body = body
	}
	if t.cfg.UserAgent != "" {
		out.Header.Set("User-Agent", t.cfg.UserAgent)
		out.Header.Set("x-goog-api-client", "gl-go/"+runtime.Version()+" "+t.cfg.UserAgent)
	}
	if t.cfg.RequestID != "" {
		out.Header.Set("X-Request-ID", t.cfg.RequestID)
	}
	return out, nil
}

func shouldRetry(res *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
