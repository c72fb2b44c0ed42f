package trigger

import (
	"context"

	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/health"
	"marginrisk/pkg/identity"
	"marginrisk/pkg/riskerr"
	"marginrisk/pkg/trigger/quote"
)

// AccountFetcher fetches the current on-chain account state for address,
// used by Preparer to build the fresh health cache a candidate is checked
// against. The fetch is always supplied by the caller, since reaching the
// chain is out of this module's scope. Preparer fetches only this fresh
// state; it does not read a stale copy from pkg/store/boltcache first.
type AccountFetcher interface {
	FetchFresh(ctx context.Context, address identity.Address) (*health.Cache, error)
}

// PreparedTrigger is the Result payload a successful preparation hands back
// to the scheduler, carrying everything execution needs without re-deriving
// it.
type PreparedTrigger struct {
	Account   identity.Address
	TCSIndex  int
	SwapQuote quote.Quote
	BuyAmount fixedpoint.Q
}

// Preparer implements PrepareFunc for one configured executor: re-verify
// interestingness against fresh state, bail out if the liqee is already
// liquidatable (liquidation takes priority over TCS execution per §4.9),
// then size and quote the round-trip swap.
type Preparer struct {
	Fetcher        AccountFetcher
	QuoteSource    quote.Source
	Estimator      SwapCostEstimator
	ProfitFraction fixedpoint.Q
	NowTs          func() int64

	// TCSByAccount resolves the live TCS order for a candidate so the
	// preparer can re-check its threshold/expiry against fresh oracle data.
	TCSByAccount func(account identity.Address, tcsIndex int) (TCS, fixedpoint.Q, fixedpoint.Q, error)
}

// Prepare implements PrepareFunc.
func (p *Preparer) Prepare(ctx context.Context, c Candidate) (any, error) {
	tcs, buyOracle, sellOracle, err := p.TCSByAccount(c.Account, c.TCSIndex)
	if err != nil {
		return nil, err
	}

	now := int64(0)
	if p.NowTs != nil {
		now = p.NowTs()
	}
	if !Interesting(tcs, now, buyOracle, sellOracle, p.ProfitFraction, p.Estimator) {
		return nil, riskerr.Wrap(riskerr.KindStateGate, riskerr.ErrTCSNotInteresting)
	}

	cache, err := p.Fetcher.FetchFresh(ctx, c.Account)
	if err != nil {
		return nil, err
	}
	if cache.IsLiquidatable() {
		// Liquidation takes priority over TCS execution (§4.9); this
		// candidate is skipped this round, not an error worth throttling
		// the account for.
		return nil, riskerr.Wrap(riskerr.KindStateGate, riskerr.ErrTCSNotInteresting)
	}

	buyAmount := fixedpoint.Min(tcs.MaxBuy, c.Volume)

	q, err := p.QuoteSource.Quote(ctx, quote.Request{
		InputMint:   tokenLabel(tcs.SellTokenIndex),
		OutputMint:  tokenLabel(tcs.BuyTokenIndex),
		InputAmount: buyAmount,
	})
	if err != nil {
		return nil, riskerr.Wrap(riskerr.KindTransient, err)
	}

	swapPrice, err := quote.EffectivePrice(q)
	if err != nil {
		return nil, riskerr.Wrap(riskerr.KindArithmetic, err)
	}
	basePrice, err := buyOracle.Div(sellOracle)
	if err != nil {
		return nil, riskerr.Wrap(riskerr.KindArithmetic, err)
	}

	profitFactor := fixedpoint.FromInt64(1).Add(p.ProfitFraction)
	takerPrice := takerPrice(basePrice, tcs.PremiumBps, tcs.ProtocolFeeBps)
	if swapPrice.Mul(profitFactor).Cmp(takerPrice) > 0 {
		return nil, riskerr.Wrap(riskerr.KindStateGate, riskerr.ErrProfitabilityMismatch)
	}

	return PreparedTrigger{Account: c.Account, TCSIndex: c.TCSIndex, SwapQuote: q, BuyAmount: buyAmount}, nil
}

func tokenLabel(tokenIndex uint16) string {
	return string(identity.MainPrefix) + "-token-" + itoaUint16(tokenIndex)
}

func itoaUint16(n uint16) string {
	if n == 0 {
		return "0"
	}
	var buf [5]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}
