package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"marginrisk/pkg/fixedpoint"
)

// HTTPDoer is the subset of *http.Client an HTTPSource needs, narrowed the
// way the teacher's swap oracle adapters accept an http.Client interface so
// tests can substitute a stub round tripper.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource is a request/response swap-router client: one GET for a quote,
// one POST to turn an opaque quote into a signed transaction, grounded in
// the teacher's CoinGeckoOracle.GetRate HTTP call shape.
type HTTPSource struct {
	client      HTTPDoer
	quoteURL    string
	swapURL     string
	name        string
}

// NewHTTPSource builds an HTTPSource. client defaults to http.DefaultClient
// when nil.
func NewHTTPSource(name string, client HTTPDoer, quoteURL, swapURL string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, quoteURL: quoteURL, swapURL: swapURL, name: strings.TrimSpace(name)}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.name }

type quoteResponse struct {
	InAmount    string `json:"inAmount"`
	OutAmount   string `json:"outAmount"`
	OpaqueQuote string `json:"opaqueQuote"`
}

// Quote implements Source by issuing a GET with the request parameters as a
// query string.
func (s *HTTPSource) Quote(ctx context.Context, req Request) (Quote, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.quoteURL, nil)
	if err != nil {
		return Quote{}, err
	}
	values := url.Values{}
	values.Set("inputMint", req.InputMint)
	values.Set("outputMint", req.OutputMint)
	values.Set("amount", strconv.FormatInt(req.InputAmount.FloorToInt64(), 10))
	values.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	values.Set("onlyDirectRoutes", strconv.FormatBool(req.OnlyDirect))
	if req.Version != "" {
		values.Set("version", req.Version)
	}
	httpReq.URL.RawQuery = values.Encode()

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("quote: router %s returned %d: %s", s.name, resp.StatusCode, string(body))
	}
	var parsed quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Quote{}, err
	}
	inAmount, err := strconv.ParseInt(parsed.InAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: invalid inAmount: %w", err)
	}
	outAmount, err := strconv.ParseInt(parsed.OutAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("quote: invalid outAmount: %w", err)
	}
	return Quote{
		InAmount:    fixedpoint.FromInt64(inAmount),
		OutAmount:   fixedpoint.FromInt64(outAmount),
		OpaqueQuote: []byte(parsed.OpaqueQuote),
	}, nil
}

// BuildSwap implements Source by POSTing the opaque quote payload and
// decoding the returned raw transaction bytes.
func (s *HTTPSource) BuildSwap(ctx context.Context, q Quote) (SignedSwap, error) {
	body, err := json.Marshal(map[string]string{"quoteResponse": string(q.OpaqueQuote)})
	if err != nil {
		return SignedSwap{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.swapURL, bytes.NewReader(body))
	if err != nil {
		return SignedSwap{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return SignedSwap{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return SignedSwap{}, fmt.Errorf("build swap: router %s returned %d: %s", s.name, resp.StatusCode, string(payload))
	}
	var parsed struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return SignedSwap{}, err
	}
	return SignedSwap{RawTransaction: []byte(parsed.SwapTransaction)}, nil
}
