// Package riskconfig loads the protocol-level risk parameters (bank
// weights, perp market fees, insurance eligibility) from TOML, the way the
// teacher's node config loads its own native-module parameters
// (config.Load using BurntSushi/toml), as opposed to the deployment-time
// YAML the trigger executor reads (pkg/trigger.Config).
package riskconfig

import (
	"github.com/BurntSushi/toml"

	"marginrisk/pkg/account"
	"marginrisk/pkg/fixedpoint"
)

// BankParameters mirrors the fields of account.Bank that are configured
// rather than derived at runtime.
type BankParameters struct {
	TokenIndex uint16  `toml:"TokenIndex"`
	Name       string  `toml:"Name"`

	MaintAssetWeight float64 `toml:"MaintAssetWeight"`
	MaintLiabWeight  float64 `toml:"MaintLiabWeight"`
	InitAssetWeight  float64 `toml:"InitAssetWeight"`
	InitLiabWeight   float64 `toml:"InitLiabWeight"`

	ReduceOnly bool `toml:"ReduceOnly"`

	NetBorrowLimitPerWindowQuote float64 `toml:"NetBorrowLimitPerWindowQuote"`
	NetBorrowLimitWindowSeconds  int64   `toml:"NetBorrowLimitWindowSeconds"`
}

// PerpMarketParameters mirrors the configured fields of account.PerpMarket.
type PerpMarketParameters struct {
	PerpMarketIndex  uint16 `toml:"PerpMarketIndex"`
	SettleTokenIndex uint16 `toml:"SettleTokenIndex"`
	BaseLotSize      int64  `toml:"BaseLotSize"`

	MaintBaseAssetWeight float64 `toml:"MaintBaseAssetWeight"`
	MaintBaseLiabWeight  float64 `toml:"MaintBaseLiabWeight"`
	InitBaseAssetWeight  float64 `toml:"InitBaseAssetWeight"`
	InitBaseLiabWeight   float64 `toml:"InitBaseLiabWeight"`

	InitOverallAssetWeight  float64 `toml:"InitOverallAssetWeight"`
	MaintOverallAssetWeight float64 `toml:"MaintOverallAssetWeight"`

	BaseLiquidationFee        float64 `toml:"BaseLiquidationFee"`
	PositivePnlLiquidationFee float64 `toml:"PositivePnlLiquidationFee"`
	SettlePnlLimitFactor      float64 `toml:"SettlePnlLimitFactor"`

	GroupInsuranceFund bool `toml:"GroupInsuranceFund"`
}

// RiskParameters is the full set of protocol risk parameters for a group:
// every configured bank and perp market, plus group-wide liquidation
// knobs.
type RiskParameters struct {
	Banks       []BankParameters       `toml:"bank"`
	PerpMarkets []PerpMarketParameters `toml:"perp_market"`

	InsuranceTokenIndex uint16 `toml:"InsuranceTokenIndex"`
}

// ToBank converts the configured parameters into an account.Bank with unit
// accrual indexes, ready for a freshly initialized group.
func (b BankParameters) ToBank() *account.Bank {
	return &account.Bank{
		TokenIndex:                   b.TokenIndex,
		Name:                         b.Name,
		DepositIndex:                 fixedpoint.FromInt64(1),
		BorrowIndex:                  fixedpoint.FromInt64(1),
		MaintAssetWeight:             fixedpoint.FromFloat64(b.MaintAssetWeight),
		MaintLiabWeight:              fixedpoint.FromFloat64(b.MaintLiabWeight),
		InitAssetWeight:              fixedpoint.FromFloat64(b.InitAssetWeight),
		InitLiabWeight:               fixedpoint.FromFloat64(b.InitLiabWeight),
		InitScaledAssetWeight:        fixedpoint.FromFloat64(b.InitAssetWeight),
		InitScaledLiabWeight:         fixedpoint.FromFloat64(b.InitLiabWeight),
		ReduceOnly:                   b.ReduceOnly,
		NetBorrowLimitPerWindowQuote: fixedpoint.FromFloat64(b.NetBorrowLimitPerWindowQuote),
	}
}

// ToPerpMarket converts the configured parameters into an account.PerpMarket
// with zeroed accrual state, ready for a freshly initialized group.
func (m PerpMarketParameters) ToPerpMarket() *account.PerpMarket {
	return &account.PerpMarket{
		PerpMarketIndex:           m.PerpMarketIndex,
		SettleTokenIndex:          m.SettleTokenIndex,
		BaseLotSize:               m.BaseLotSize,
		MaintBaseAssetWeight:      fixedpoint.FromFloat64(m.MaintBaseAssetWeight),
		MaintBaseLiabWeight:       fixedpoint.FromFloat64(m.MaintBaseLiabWeight),
		InitBaseAssetWeight:       fixedpoint.FromFloat64(m.InitBaseAssetWeight),
		InitBaseLiabWeight:        fixedpoint.FromFloat64(m.InitBaseLiabWeight),
		InitOverallAssetWeight:    fixedpoint.FromFloat64(m.InitOverallAssetWeight),
		MaintOverallAssetWeight:   fixedpoint.FromFloat64(m.MaintOverallAssetWeight),
		BaseLiquidationFee:        fixedpoint.FromFloat64(m.BaseLiquidationFee),
		PositivePnlLiquidationFee: fixedpoint.FromFloat64(m.PositivePnlLiquidationFee),
		SettlePnlLimitFactor:      fixedpoint.FromFloat64(m.SettlePnlLimitFactor),
		GroupInsuranceFund:        m.GroupInsuranceFund,
	}
}

// Load reads and parses a TOML risk-parameters file.
func Load(path string) (*RiskParameters, error) {
	params := &RiskParameters{}
	if _, err := toml.DecodeFile(path, params); err != nil {
		return nil, err
	}
	return params, nil
}

// BankByIndex returns the configured parameters for tokenIndex, if present.
func (p *RiskParameters) BankByIndex(tokenIndex uint16) (BankParameters, bool) {
	for _, b := range p.Banks {
		if b.TokenIndex == tokenIndex {
			return b, true
		}
	}
	return BankParameters{}, false
}

// PerpMarketByIndex returns the configured parameters for perpMarketIndex,
// if present.
func (p *RiskParameters) PerpMarketByIndex(perpMarketIndex uint16) (PerpMarketParameters, bool) {
	for _, m := range p.PerpMarkets {
		if m.PerpMarketIndex == perpMarketIndex {
			return m, true
		}
	}
	return PerpMarketParameters{}, false
}
