package health

import "marginrisk/pkg/fixedpoint"

// TokenInfo is the per-position weighted snapshot captured at health-cache
// construction time for one active token position (§3.4).
type TokenInfo struct {
	TokenIndex uint16
	Balance    fixedpoint.Q
	Prices     Price

	MaintAssetWeight      fixedpoint.Q
	MaintLiabWeight       fixedpoint.Q
	InitAssetWeight       fixedpoint.Q
	InitLiabWeight        fixedpoint.Q
	InitScaledAssetWeight fixedpoint.Q
	InitScaledLiabWeight  fixedpoint.Q
}

func (ti *TokenInfo) assetWeight(t Type) fixedpoint.Q {
	switch t {
	case Init:
		return ti.InitScaledAssetWeight
	case LiquidationEnd:
		return ti.InitAssetWeight
	default:
		return ti.MaintAssetWeight
	}
}

func (ti *TokenInfo) liabWeight(t Type) fixedpoint.Q {
	switch t {
	case Init:
		return ti.InitScaledLiabWeight
	case LiquidationEnd:
		return ti.InitLiabWeight
	default:
		return ti.MaintLiabWeight
	}
}

// HealthContribution returns balance × price × weight, picking the
// asset-side weight/price when balance ≥ 0 and the liability-side pair
// otherwise (§3.4).
func (ti *TokenInfo) HealthContribution(t Type) fixedpoint.Q {
	if ti.Balance.Sign() >= 0 {
		return ti.Balance.Mul(ti.Prices.Asset(t)).Mul(ti.assetWeight(t))
	}
	return ti.Balance.Mul(ti.Prices.Liab(t)).Mul(ti.liabWeight(t))
}
