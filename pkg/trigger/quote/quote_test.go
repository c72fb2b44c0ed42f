package quote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/trigger/quote"
)

func TestHTTPSourceQuoteAndBuildSwap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "usdc", r.URL.Query().Get("inputMint"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"inAmount":    "100",
			"outAmount":   "95",
			"opaqueQuote": "opaque-payload",
		})
	})
	mux.HandleFunc("/swap", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "opaque-payload", body["quoteResponse"])
		_ = json.NewEncoder(w).Encode(map[string]string{"swapTransaction": "c2lnbmVk"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	src := quote.NewHTTPSource("test-router", nil, server.URL+"/quote", server.URL+"/swap")
	require.Equal(t, "test-router", src.Name())

	q, err := src.Quote(context.Background(), quote.Request{
		InputMint:   "usdc",
		OutputMint:  "sol",
		InputAmount: fixedpoint.FromInt64(100),
	})
	require.NoError(t, err)
	require.True(t, q.InAmount.Cmp(fixedpoint.FromInt64(100)) == 0)
	require.True(t, q.OutAmount.Cmp(fixedpoint.FromInt64(95)) == 0)

	price, err := quote.EffectivePrice(q)
	require.NoError(t, err)
	require.True(t, price.LessThan(fixedpoint.FromInt64(1)))

	swap, err := src.BuildSwap(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, "c2lnbmVk", string(swap.RawTransaction))
}

func TestHTTPSourcePropagatesRouterError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	src := quote.NewHTTPSource("flaky-router", nil, server.URL, server.URL)
	_, err := src.Quote(context.Background(), quote.Request{InputMint: "a", OutputMint: "b"})
	require.Error(t, err)
}

type countingSource struct {
	calls int
}

func (c *countingSource) Name() string { return "counting" }
func (c *countingSource) Quote(ctx context.Context, req quote.Request) (quote.Quote, error) {
	c.calls++
	return quote.Quote{InAmount: fixedpoint.FromInt64(1), OutAmount: fixedpoint.FromInt64(1)}, nil
}
func (c *countingSource) BuildSwap(ctx context.Context, q quote.Quote) (quote.SignedSwap, error) {
	return quote.SignedSwap{}, nil
}

func TestRateLimitedSourceThrottles(t *testing.T) {
	inner := &countingSource{}
	limited := quote.NewRateLimitedSource(inner, 5, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := limited.Quote(ctx, quote.Request{})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	_, err = limited.Quote(ctx, quote.Request{})
	require.Error(t, err, "second call within the burst window cannot be admitted before the context deadline")
}
