// Package quote defines the external swap-router abstraction the trigger
// preparer uses to price the round-trip swap a trigger execution bundles
// (§6's "external router interface"), mirroring the teacher's oracle.Source
// abstraction over multiple price feeds (services/swapd/oracle.Manager).
package quote

import (
	"context"

	"marginrisk/pkg/fixedpoint"
)

// Request is the parameters for a single quote lookup.
type Request struct {
	InputMint    string
	OutputMint   string
	InputAmount  fixedpoint.Q
	SlippageBps  int
	OnlyDirect   bool
	Version      string
}

// Quote is the router's response to a Request.
type Quote struct {
	InAmount     fixedpoint.Q
	OutAmount    fixedpoint.Q
	OpaqueQuote  []byte
}

// SignedSwap is a ready-to-submit transaction built from a previously
// fetched Quote.
type SignedSwap struct {
	RawTransaction []byte
}

// Source resolves quotes and turns them into signed swap transactions.
// Implementations: an HTTP/JSON request-response client (source.go's
// sibling http.go) and a streaming websocket client (websocket.go) for
// routers that push continuous quote updates, both usable interchangeably
// by the preparer.
type Source interface {
	Name() string
	Quote(ctx context.Context, req Request) (Quote, error)
	BuildSwap(ctx context.Context, q Quote) (SignedSwap, error)
}

// EffectivePrice returns out/in for a quote, the "effective swap price"
// §4.9's acceptance test compares against the TCS taker price.
func EffectivePrice(q Quote) (fixedpoint.Q, error) {
	return q.OutAmount.Div(q.InAmount)
}
