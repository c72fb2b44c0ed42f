package quote

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedSource wraps a Source with a token-bucket cap on outbound
// requests, the same golang.org/x/time/rate primitive the gateway's
// per-route RateLimiter uses, generalized from "per client IP" to "per
// configured router" since every trigger preparer shares one router
// account and the thing worth protecting is that account's request quota.
type RateLimitedSource struct {
	Source
	limiter *rate.Limiter
}

// NewRateLimitedSource wraps src so Quote and BuildSwap calls are paced to
// at most ratePerSecond requests per second, with burst allowed up to
// burst outstanding tokens.
func NewRateLimitedSource(src Source, ratePerSecond float64, burst int) *RateLimitedSource {
	return &RateLimitedSource{
		Source:  src,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Quote blocks until the rate limiter admits the request, then delegates.
func (s *RateLimitedSource) Quote(ctx context.Context, req Request) (Quote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}
	return s.Source.Quote(ctx, req)
}

// BuildSwap blocks until the rate limiter admits the request, then delegates.
func (s *RateLimitedSource) BuildSwap(ctx context.Context, q Quote) (SignedSwap, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return SignedSwap{}, err
	}
	return s.Source.BuildSwap(ctx, q)
}
