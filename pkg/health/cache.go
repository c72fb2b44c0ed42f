package health

import (
	"marginrisk/pkg/account"
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/riskerr"
)

// Retriever supplies the external state (bank configuration, oracle
// prices, order-book reservations, perp market configuration) a health
// cache needs to snapshot an account, per §4.1's "AccountRetriever
// capability".
type Retriever interface {
	Bank(tokenIndex uint16) (*account.Bank, Price, bool)
	Serum3Reserved(marketIndex, baseTokenIndex, quoteTokenIndex uint16) (reservedBase, reservedQuote fixedpoint.Q, hasZeroFunds, ok bool)
	PerpMarket(perpMarketIndex uint16) (*account.PerpMarket, Price, bool)
}

// Cache is a value-typed snapshot of an account's weighted health inputs.
// Mutations after construction (AdjustTokenBalance, AdjustSerum3Reserved,
// RecomputePerpInfo) update the cache in place without touching the source
// account; per SPEC_FULL.md §9 there are no back-references between cache
// and account.
type Cache struct {
	TokenInfos      []TokenInfo
	Serum3Infos     []Serum3Info
	PerpInfos       []PerpInfo
	BeingLiquidated bool
}

// New builds a Cache from acct using retriever to resolve bank, oracle, and
// order-book state, per §4.1.
func New(acct *account.Account, retriever Retriever) (*Cache, error) {
	c := &Cache{BeingLiquidated: acct.BeingLiquidated}

	tokenIndexPos := make(map[uint16]int)
	for i := range acct.TokenPositions {
		pos := &acct.TokenPositions[i]
		if !pos.IsActive() {
			continue
		}
		bank, price, ok := retriever.Bank(pos.TokenIndex)
		if !ok {
			return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
		}
		tokenIndexPos[pos.TokenIndex] = len(c.TokenInfos)
		c.TokenInfos = append(c.TokenInfos, TokenInfo{
			TokenIndex:            pos.TokenIndex,
			Balance:               bank.NativeFromIndexed(pos.IndexedPosition),
			Prices:                price,
			MaintAssetWeight:      bank.MaintAssetWeight,
			MaintLiabWeight:       bank.MaintLiabWeight,
			InitAssetWeight:       bank.InitAssetWeight,
			InitLiabWeight:        bank.InitLiabWeight,
			InitScaledAssetWeight: bank.InitScaledAssetWeight,
			InitScaledLiabWeight:  bank.InitScaledLiabWeight,
		})
	}

	for i := range acct.Serum3Positions {
		pos := &acct.Serum3Positions[i]
		if !pos.IsActive() {
			continue
		}
		reservedBase, reservedQuote, hasZeroFunds, ok := retriever.Serum3Reserved(pos.MarketIndex, pos.BaseTokenIndex, pos.QuoteTokenIndex)
		if !ok {
			return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrSerum3PositionDoesNotExist)
		}
		baseIdx, baseOk := tokenIndexPos[pos.BaseTokenIndex]
		quoteIdx, quoteOk := tokenIndexPos[pos.QuoteTokenIndex]
		if !baseOk || !quoteOk {
			return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
		}
		c.Serum3Infos = append(c.Serum3Infos, Serum3Info{
			MarketIndex:     pos.MarketIndex,
			BaseTokenIndex:  baseIdx,
			QuoteTokenIndex: quoteIdx,
			ReservedBase:    reservedBase,
			ReservedQuote:   reservedQuote,
			HasZeroFunds:    hasZeroFunds,
		})
	}

	for i := range acct.PerpPositions {
		pos := &acct.PerpPositions[i]
		if !pos.IsActive() {
			continue
		}
		market, price, ok := retriever.PerpMarket(pos.PerpMarketIndex)
		if !ok {
			return nil, riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrPerpPositionDoesNotExist)
		}
		c.PerpInfos = append(c.PerpInfos, perpInfoFromPosition(pos, market, price))
	}

	return c, nil
}

func perpInfoFromPosition(pos *account.PerpPosition, market *account.PerpMarket, price Price) PerpInfo {
	unsettledFunding := unsettledFunding(pos, market)
	takerQuote := fixedpoint.FromInt64(pos.TakerQuoteLots)
	return PerpInfo{
		PerpMarketIndex:         pos.PerpMarketIndex,
		BaseLotSize:             market.BaseLotSize,
		BaseLots:                pos.BasePositionLots + pos.TakerBaseLots,
		BidsBaseLots:            pos.BidsBaseLots,
		AsksBaseLots:            pos.AsksBaseLots,
		QuotePositionNative:     pos.QuotePositionNative.Sub(unsettledFunding).Add(takerQuote),
		Prices:                  price,
		MaintBaseAssetWeight:    market.MaintBaseAssetWeight,
		MaintBaseLiabWeight:     market.MaintBaseLiabWeight,
		InitBaseAssetWeight:     market.InitBaseAssetWeight,
		InitBaseLiabWeight:      market.InitBaseLiabWeight,
		MaintOverallAssetWeight: market.MaintOverallAssetWeight,
		InitOverallAssetWeight:  market.InitOverallAssetWeight,
		HasOpenOrders:           pos.HasOpenPerpOrders(),
		HasOpenFills:            pos.HasOpenTakerFills(),
	}
}

// unsettledFunding mirrors PerpPosition.SettleFunding's delta without
// mutating the position, so cache construction stays non-destructive.
func unsettledFunding(pos *account.PerpPosition, market *account.PerpMarket) fixedpoint.Q {
	if pos.BasePositionLots > 0 {
		return market.LongFunding.Sub(pos.LongSettledFunding).MulInt64(pos.BasePositionLots)
	}
	return market.ShortFunding.Sub(pos.ShortSettledFunding).MulInt64(pos.BasePositionLots)
}

func safeDiv(a, b fixedpoint.Q) fixedpoint.Q {
	q, err := a.Div(b)
	if err != nil {
		return fixedpoint.Zero()
	}
	return q
}

// Health sums the weighted contributions from tokens, order-book
// reservations, and perp positions under health type t (§4.2).
func (c *Cache) Health(t Type) fixedpoint.Q {
	total := fixedpoint.Zero()
	for i := range c.TokenInfos {
		total = total.Add(c.TokenInfos[i].HealthContribution(t))
	}
	total = total.Add(c.serum3HealthContribution(t))
	for i := range c.PerpInfos {
		total = total.Add(c.PerpInfos[i].HealthContribution(t))
	}
	return total
}

// HealthAssetsAndLiabs returns the sum of positive contributions and the
// absolute sum of negative contributions under health type t.
func (c *Cache) HealthAssetsAndLiabs(t Type) (assets, liabs fixedpoint.Q) {
	assets, liabs = fixedpoint.Zero(), fixedpoint.Zero()
	add := func(v fixedpoint.Q) {
		if v.Sign() >= 0 {
			assets = assets.Add(v)
		} else {
			liabs = liabs.Add(v.Abs())
		}
	}
	for i := range c.TokenInfos {
		add(c.TokenInfos[i].HealthContribution(t))
	}
	add(c.serum3HealthContribution(t))
	for i := range c.PerpInfos {
		add(c.PerpInfos[i].HealthContribution(t))
	}
	return assets, liabs
}

// HealthRatio returns 100×(assets−liabs)/liabs, or a saturating MAX when
// there are no liabilities (§4.2).
func (c *Cache) HealthRatio(t Type) fixedpoint.Q {
	assets, liabs := c.HealthAssetsAndLiabs(t)
	if liabs.IsZero() {
		return fixedpoint.FromInt64(1 << 30)
	}
	ratio, _ := assets.Sub(liabs).MulInt64(100).Div(liabs)
	return ratio
}

// PerpSettleHealth is the Maint-weighted sum restricted to positive perp
// contributions, used to gate PnL settlement per §4.2.
func (c *Cache) PerpSettleHealth() fixedpoint.Q {
	total := fixedpoint.Zero()
	for i := range c.TokenInfos {
		total = total.Add(c.TokenInfos[i].HealthContribution(Maint))
	}
	total = total.Add(c.serum3HealthContribution(Maint))
	for i := range c.PerpInfos {
		contrib := c.PerpInfos[i].HealthContribution(Maint)
		if contrib.Sign() > 0 {
			total = total.Add(contrib)
		}
	}
	return total
}

// IsLiquidatable reports whether the account may currently be liquidated:
// if already under liquidation, against LiquidationEnd < 0; otherwise
// against Maint < 0 (§4.2).
func (c *Cache) IsLiquidatable() bool {
	if c.BeingLiquidated {
		return c.Health(LiquidationEnd).Sign() < 0
	}
	return c.Health(Maint).Sign() < 0
}

// TokenInfoIndex returns the TokenInfos slice index for tokenIndex.
func (c *Cache) TokenInfoIndex(tokenIndex uint16) (int, bool) {
	for i := range c.TokenInfos {
		if c.TokenInfos[i].TokenIndex == tokenIndex {
			return i, true
		}
	}
	return -1, false
}

// PerpInfoIndex returns the PerpInfos slice index for perpMarketIndex.
func (c *Cache) PerpInfoIndex(perpMarketIndex uint16) (int, bool) {
	for i := range c.PerpInfos {
		if c.PerpInfos[i].PerpMarketIndex == perpMarketIndex {
			return i, true
		}
	}
	return -1, false
}

// AdjustTokenBalance updates the cached balance for bank's token by
// nativeAmount, keeping the cache in sync with a mutation applied to the
// real account without rebuilding the whole snapshot (§9).
func (c *Cache) AdjustTokenBalance(tokenIndex uint16, nativeAmount fixedpoint.Q) error {
	idx, ok := c.TokenInfoIndex(tokenIndex)
	if !ok {
		return riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
	}
	c.TokenInfos[idx].Balance = c.TokenInfos[idx].Balance.Add(nativeAmount)
	return nil
}

// AdjustSerum3Reserved updates a market's reserved amounts in place.
func (c *Cache) AdjustSerum3Reserved(marketIndex uint16, baseDelta, quoteDelta fixedpoint.Q) error {
	for i := range c.Serum3Infos {
		if c.Serum3Infos[i].MarketIndex == marketIndex {
			c.Serum3Infos[i].ReservedBase = c.Serum3Infos[i].ReservedBase.Add(baseDelta)
			c.Serum3Infos[i].ReservedQuote = c.Serum3Infos[i].ReservedQuote.Add(quoteDelta)
			return nil
		}
	}
	return riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrSerum3PositionDoesNotExist)
}

// RecomputePerpInfo rebuilds the cached PerpInfo for pos's market after a
// liquidation step mutated the real position, re-reading market config and
// the last-known price already stored in the cache.
func (c *Cache) RecomputePerpInfo(pos *account.PerpPosition, market *account.PerpMarket) error {
	idx, ok := c.PerpInfoIndex(pos.PerpMarketIndex)
	if !ok {
		return riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrPerpPositionDoesNotExist)
	}
	price := c.PerpInfos[idx].Prices
	c.PerpInfos[idx] = perpInfoFromPosition(pos, market, price)
	return nil
}

// RequireAfterPhase1Liquidation enforces the §4.7 precondition that no perp
// market still carries open orders before base-or-positive-pnl liquidation
// may proceed.
func (c *Cache) RequireAfterPhase1Liquidation() error {
	for i := range c.PerpInfos {
		if c.PerpInfos[i].HasOpenOrders {
			return riskerr.Wrap(riskerr.KindStateGate, riskerr.ErrHasOpenPerpOrders)
		}
	}
	for i := range c.Serum3Infos {
		if !c.Serum3Infos[i].HasZeroFunds {
			return riskerr.Wrap(riskerr.KindStateGate, riskerr.ErrHasOpenPerpOrders)
		}
	}
	return nil
}

// RequireAfterPhase2Liquidation enforces the §4.8 precondition that the
// perp base position has already been reduced to zero before bankruptcy.
func (c *Cache) RequireAfterPhase2Liquidation(perpMarketIndex uint16) error {
	idx, ok := c.PerpInfoIndex(perpMarketIndex)
	if !ok {
		return riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrPerpPositionDoesNotExist)
	}
	if c.PerpInfos[idx].BaseLots != 0 {
		return riskerr.Wrap(riskerr.KindStateGate, riskerr.ErrHasLiquidatablePerpBasePosition)
	}
	return nil
}

// PerpMaxSettle returns the maximum settle-token amount the account could
// settle without its LiquidationEnd health (the conservative choice
// documented in DESIGN.md for spec.md §9's open question) going negative:
// the settle-token amount whose init-weighted value offsets the health
// contribution from every source except the named settle token's own spot
// balance, floored at zero. Positive perp PnL that is not
// yet reflected in spot can still be settled as long as other collateral
// covers it.
func (c *Cache) PerpMaxSettle(settleTokenIndex uint16) (fixedpoint.Q, error) {
	idx, ok := c.TokenInfoIndex(settleTokenIndex)
	if !ok {
		return fixedpoint.Zero(), riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
	}
	healthExcludingSettle := c.Health(LiquidationEnd).Sub(c.TokenInfos[idx].HealthContribution(LiquidationEnd))
	settleInfo := &c.TokenInfos[idx]
	maxForHealth, err := spotAmountGivenForHealthZero(healthExcludingSettle.Neg(), settleInfo.Balance, settleInfo.InitAssetWeight.Mul(settleInfo.Prices.Asset(LiquidationEnd)), settleInfo.InitLiabWeight.Mul(settleInfo.Prices.Liab(LiquidationEnd)))
	if err != nil {
		return fixedpoint.Zero(), err
	}
	return fixedpoint.Max(maxForHealth, fixedpoint.Zero()), nil
}

// EffectiveTokenBalance is the spot-plus-reservation balance used by
// bankruptcy's max_for_health computation (§4.8).
func (c *Cache) EffectiveTokenBalance(tokenIndex uint16, t Type) (fixedpoint.Q, error) {
	idx, ok := c.TokenInfoIndex(tokenIndex)
	if !ok {
		return fixedpoint.Zero(), riskerr.Wrap(riskerr.KindInputDomain, riskerr.ErrTokenPositionDoesNotExist)
	}
	tokenMaxReserved, _ := c.computeSerum3Reservations(t)
	return c.TokenInfos[idx].Balance.Add(tokenMaxReserved[idx]), nil
}
