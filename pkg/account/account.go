package account

import "marginrisk/pkg/identity"

// Size describes the slot counts of each dynamic vector an Account is
// created with (§3.8: "created with a size class ... expandable but not
// shrinkable").
type Size struct {
	TokenSlots   int
	Serum3Slots  int
	PerpSlots    int
	OpenOrders   int
}

// DefaultSize is the 8/8/8/8 class referenced in §3.8.
var DefaultSize = Size{TokenSlots: 8, Serum3Slots: 8, PerpSlots: 8, OpenOrders: 8}

// Account owns the parsed, indexable position state for a single
// cross-margin user, per the ownership model decided in SPEC_FULL.md §9
// option (a).
type Account struct {
	Address identity.Address

	TokenPositions  []TokenPosition
	Serum3Positions []Serum3Orders
	PerpPositions   []PerpPosition
	PerpOpenOrders  []PerpOpenOrder

	BeingLiquidated bool
	InHealthRegion  bool

	// PerpSpotTransfers is the account-wide cumulative audit counter
	// mirrored from each position's own PerpSpotTransfers (§3.7).
	PerpSpotTransfers int64
}

// New constructs an Account with size's slot counts, every slot
// initialized to its inactive sentinel.
func New(addr identity.Address, size Size) *Account {
	a := &Account{
		Address:         addr,
		TokenPositions:  make([]TokenPosition, size.TokenSlots),
		Serum3Positions: make([]Serum3Orders, size.Serum3Slots),
		PerpPositions:   make([]PerpPosition, size.PerpSlots),
		PerpOpenOrders:  make([]PerpOpenOrder, size.OpenOrders),
	}
	for i := range a.TokenPositions {
		a.TokenPositions[i].TokenIndex = TokenIndexUnset
	}
	for i := range a.Serum3Positions {
		a.Serum3Positions[i].MarketIndex = Serum3MarketIndexUnset
		a.Serum3Positions[i].BaseTokenIndex = TokenIndexUnset
		a.Serum3Positions[i].QuoteTokenIndex = TokenIndexUnset
	}
	for i := range a.PerpPositions {
		a.PerpPositions[i].PerpMarketIndex = PerpMarketIndexUnset
	}
	for i := range a.PerpOpenOrders {
		a.PerpOpenOrders[i].PerpMarketIndex = PerpMarketIndexUnset
	}
	return a
}

// TokenPositionByIndex returns the active token position for tokenIndex, if
// any.
func (a *Account) TokenPositionByIndex(tokenIndex uint16) (*TokenPosition, bool) {
	for i := range a.TokenPositions {
		if a.TokenPositions[i].TokenIndex == tokenIndex {
			return &a.TokenPositions[i], true
		}
	}
	return nil, false
}

// EnsureTokenPosition returns the active token position for tokenIndex,
// activating the first free slot if none exists. Returns created=true when
// a new slot was activated.
func (a *Account) EnsureTokenPosition(tokenIndex uint16) (pos *TokenPosition, created bool, ok bool) {
	if p, found := a.TokenPositionByIndex(tokenIndex); found {
		return p, false, true
	}
	for i := range a.TokenPositions {
		if a.TokenPositions[i].TokenIndex == TokenIndexUnset {
			a.TokenPositions[i] = TokenPosition{TokenIndex: tokenIndex}
			return &a.TokenPositions[i], true, true
		}
	}
	return nil, false, false
}

// DeactivateTokenPositionIfEmpty clears tokenIndex's slot back to the
// inactive sentinel when its balance is zero and no order-book reservation
// holds it in use (§3.9).
func (a *Account) DeactivateTokenPositionIfEmpty(tokenIndex uint16) bool {
	p, ok := a.TokenPositionByIndex(tokenIndex)
	if !ok || p.InUseCount > 0 || !p.IndexedPosition.IsZero() {
		return false
	}
	*p = TokenPosition{TokenIndex: TokenIndexUnset}
	return true
}

// Serum3PositionByIndex returns the active order-book registration for
// marketIndex, if any.
func (a *Account) Serum3PositionByIndex(marketIndex uint16) (*Serum3Orders, bool) {
	for i := range a.Serum3Positions {
		if a.Serum3Positions[i].MarketIndex == marketIndex {
			return &a.Serum3Positions[i], true
		}
	}
	return nil, false
}

// EnsureSerum3Position activates an order-book registration for
// marketIndex against the given base/quote token indices, marking both
// token slots in-use.
func (a *Account) EnsureSerum3Position(marketIndex, baseTokenIndex, quoteTokenIndex uint16) (*Serum3Orders, bool) {
	if p, found := a.Serum3PositionByIndex(marketIndex); found {
		return p, true
	}
	for i := range a.Serum3Positions {
		if a.Serum3Positions[i].MarketIndex == Serum3MarketIndexUnset {
			a.Serum3Positions[i] = Serum3Orders{
				MarketIndex:     marketIndex,
				BaseTokenIndex:  baseTokenIndex,
				QuoteTokenIndex: quoteTokenIndex,
			}
			if base, ok := a.TokenPositionByIndex(baseTokenIndex); ok {
				base.InUseCount++
			}
			if quote, ok := a.TokenPositionByIndex(quoteTokenIndex); ok {
				quote.InUseCount++
			}
			return &a.Serum3Positions[i], true
		}
	}
	return nil, false
}

// PerpPositionByIndex returns the active perp position for perpMarketIndex,
// if any.
func (a *Account) PerpPositionByIndex(perpMarketIndex uint16) (*PerpPosition, bool) {
	for i := range a.PerpPositions {
		if a.PerpPositions[i].PerpMarketIndex == perpMarketIndex {
			return &a.PerpPositions[i], true
		}
	}
	return nil, false
}

// EnsurePerpPosition returns the active perp position for perpMarketIndex,
// activating the first free slot if none exists.
func (a *Account) EnsurePerpPosition(perpMarketIndex uint16) (pos *PerpPosition, ok bool) {
	if p, found := a.PerpPositionByIndex(perpMarketIndex); found {
		return p, true
	}
	for i := range a.PerpPositions {
		if a.PerpPositions[i].PerpMarketIndex == PerpMarketIndexUnset {
			a.PerpPositions[i] = PerpPosition{PerpMarketIndex: perpMarketIndex}
			return &a.PerpPositions[i], true
		}
	}
	return nil, false
}

// HasOpenPerpOrdersAnywhere reports whether any perp market slot or the
// open-orders vector carries resting interest, the §4.7 precondition gating
// entry into liquidation phase 1.
func (a *Account) HasOpenPerpOrdersAnywhere() bool {
	for i := range a.PerpPositions {
		if a.PerpPositions[i].IsActive() && a.PerpPositions[i].HasOpenPerpOrders() {
			return true
		}
	}
	for i := range a.PerpOpenOrders {
		if a.PerpOpenOrders[i].IsActive() {
			return true
		}
	}
	return false
}

// MaybeRecoverFromBeingLiquidated clears BeingLiquidated once
// liquidationEndHealth is non-negative, per §3.9's invariant.
func (a *Account) MaybeRecoverFromBeingLiquidated(liquidationEndHealthNonNegative bool) {
	if liquidationEndHealthNonNegative {
		a.BeingLiquidated = false
	}
}
