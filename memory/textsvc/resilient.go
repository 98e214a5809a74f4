package textsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/budget"
)

// Resilient wraps a network TextService. Every call is rate limited and
// bounded by a timeout; failures, throttling and outputs that break the
// word ceiling or the description rules are answered by the Local fallback.
// Resilient itself never returns an error.
type Resilient struct {
	name     string
	primary  memory.TextService
	fallback *Local
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   log.Logger
}

var errRateLimited = errors.New("rate limited")

// ResilientOption configures a Resilient service.
type ResilientOption func(*Resilient)

// WithTimeout bounds each primary call.
func WithTimeout(d time.Duration) ResilientOption {
	return func(r *Resilient) { r.timeout = d }
}

// WithRateLimit allows rps calls per second with the given burst.
func WithRateLimit(rps float64, burst int) ResilientOption {
	return func(r *Resilient) { r.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) ResilientOption {
	return func(r *Resilient) { r.logger = l }
}

// NewResilient wraps primary, named name in logs and errors.
func NewResilient(name string, primary memory.TextService, fallback *Local, opts ...ResilientOption) *Resilient {
	if fallback == nil {
		fallback = NewLocal(nil)
	}
	r := &Resilient{
		name:     name,
		primary:  primary,
		fallback: fallback,
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		timeout:  8 * time.Second,
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ memory.TextService = (*Resilient)(nil)

func (r *Resilient) Classify(ctx context.Context, text string, candidates []core.Category) ([]core.CategoryScore, error) {
	scores, err := attempt(ctx, r, func(ctx context.Context) ([]core.CategoryScore, error) {
		return r.primary.Classify(ctx, text, candidates)
	})
	if err == nil {
		return scores, nil
	}
	r.degrade(ctx, "classify", err)
	return r.fallback.Classify(ctx, text, candidates)
}

func (r *Resilient) Compress(ctx context.Context, text string, maxWords int) (string, error) {
	out, err := attempt(ctx, r, func(ctx context.Context) (string, error) {
		out, err := r.primary.Compress(ctx, text, maxWords)
		if err != nil {
			return "", err
		}
		return out, checkWords(out, maxWords)
	})
	if err == nil {
		return strings.TrimSpace(out), nil
	}
	r.degrade(ctx, "compress", err)
	return r.fallback.Compress(ctx, text, maxWords)
}

func (r *Resilient) Summarize(ctx context.Context, req memory.SummaryRequest) (string, error) {
	out, err := attempt(ctx, r, func(ctx context.Context) (string, error) {
		out, err := r.primary.Summarize(ctx, req)
		if err != nil {
			return "", err
		}
		return out, checkDescription(out, req.MaxWords)
	})
	if err == nil {
		return strings.TrimSpace(out), nil
	}
	r.degrade(ctx, "summarize", err)
	return r.fallback.Summarize(ctx, req)
}

// attempt runs fn against the primary under the rate limit and timeout.
func attempt[T any](ctx context.Context, r *Resilient, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !r.limiter.Allow() {
		return zero, errRateLimited
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx)
}

func (r *Resilient) degrade(ctx context.Context, op string, err error) {
	ext := memory.NewExternalError(r.name, op, err)
	r.logger.Warnf(ctx, "[TEXT] %v, using local fallback", ext)
}

func checkWords(out string, maxWords int) error {
	if strings.TrimSpace(out) == "" {
		return fmt.Errorf("empty output")
	}
	if maxWords > 0 && budget.Words(out) > maxWords {
		return fmt.Errorf("output has %d words, limit %d", budget.Words(out), maxWords)
	}
	return nil
}

func checkDescription(out string, maxWords int) error {
	if err := checkWords(out, maxWords); err != nil {
		return err
	}
	if !IsClean(out) {
		return fmt.Errorf("description mentions dates, amounts or instruments")
	}
	return nil
}
