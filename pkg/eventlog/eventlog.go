// Package eventlog persists the binary event-log records a liquidation
// action emits (§6): one row per perp_liq_base_or_positive_pnl or
// perp_liq_negative_pnl_or_bankruptcy call, written the way the otc-gateway
// service persists its own audit trail — a gorm model with a uuid.UUID
// primary key and a CreatedAt timestamp, created with AutoMigrate and
// inserted with tx.Create.
package eventlog

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/identity"
)

// errInvalidBits is returned when a persisted scaled-integer column fails to
// parse back into a big.Int, which only happens if the row was corrupted or
// written by something other than this package.
var errInvalidBits = errors.New("eventlog: invalid stored fixed-point bits")

// bits serializes a fixed-point value as the decimal string of its raw
// scaled integer (fixedpoint.Q.Bits()), the same "persist the derived form,
// not a hand-rolled binary encoding" approach the rest of the corpus takes
// for values a SQL column can't represent natively.
func bits(q fixedpoint.Q) string {
	return q.Bits().String()
}

func unbits(s string) (fixedpoint.Q, error) {
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fixedpoint.Zero(), errInvalidBits
	}
	return fixedpoint.FromBits(bi), nil
}

// PerpLiqBaseOrPositivePnlLog is the persisted form of §6's
// PerpLiqBaseOrPositivePnlLog event.
type PerpLiqBaseOrPositivePnlLog struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Group           string    `gorm:"size:64;index"`
	PerpMarketIndex uint16    `gorm:"index"`
	Liqor           string    `gorm:"size:64;index"`
	Liqee           string    `gorm:"size:64;index"`

	BaseTransfer int64

	QuoteTransferBits          string `gorm:"size:48"`
	PnlTransferBits            string `gorm:"size:48"`
	PnlSettleLimitTransferBits string `gorm:"size:48"`
	PriceBits                  string `gorm:"size:48"`

	CreatedAt time.Time
}

// NewPerpLiqBaseOrPositivePnlLog builds a row from the values returned by
// liquidation.BaseOrPositivePnl plus the context the instruction surface
// knows (group/market/liqor/liqee/oracle price) that the pure function
// itself doesn't carry.
func NewPerpLiqBaseOrPositivePnlLog(id uuid.UUID, group identity.Address, perpMarketIndex uint16, liqor, liqee identity.Address, baseTransfer int64, quoteTransfer, pnlTransfer, pnlSettleLimitTransfer, price fixedpoint.Q) *PerpLiqBaseOrPositivePnlLog {
	return &PerpLiqBaseOrPositivePnlLog{
		ID:                         id,
		Group:                      group.String(),
		PerpMarketIndex:            perpMarketIndex,
		Liqor:                      liqor.String(),
		Liqee:                      liqee.String(),
		BaseTransfer:               baseTransfer,
		QuoteTransferBits:          bits(quoteTransfer),
		PnlTransferBits:            bits(pnlTransfer),
		PnlSettleLimitTransferBits: bits(pnlSettleLimitTransfer),
		PriceBits:                  bits(price),
	}
}

// QuoteTransfer decodes QuoteTransferBits back into a fixedpoint.Q.
func (l *PerpLiqBaseOrPositivePnlLog) QuoteTransfer() (fixedpoint.Q, error) {
	return unbits(l.QuoteTransferBits)
}

// PnlTransfer decodes PnlTransferBits back into a fixedpoint.Q.
func (l *PerpLiqBaseOrPositivePnlLog) PnlTransfer() (fixedpoint.Q, error) {
	return unbits(l.PnlTransferBits)
}

// PnlSettleLimitTransfer decodes PnlSettleLimitTransferBits back into a
// fixedpoint.Q.
func (l *PerpLiqBaseOrPositivePnlLog) PnlSettleLimitTransfer() (fixedpoint.Q, error) {
	return unbits(l.PnlSettleLimitTransferBits)
}

// Price decodes PriceBits back into a fixedpoint.Q.
func (l *PerpLiqBaseOrPositivePnlLog) Price() (fixedpoint.Q, error) {
	return unbits(l.PriceBits)
}

// Record inserts the log row.
func (l *PerpLiqBaseOrPositivePnlLog) Record(ctx context.Context, store *gorm.DB) error {
	return store.WithContext(ctx).Create(l).Error
}

// PerpLiqBankruptcyLog is the persisted form of §6's PerpLiqBankruptcyLog
// event.
type PerpLiqBankruptcyLog struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Group           string    `gorm:"size:64;index"`
	PerpMarketIndex uint16    `gorm:"index"`
	Liqee           string    `gorm:"size:64;index"`
	Liqor           string    `gorm:"size:64;index"`

	InsuranceTransferBits    string `gorm:"size:48"`
	SocializedLossBits       string `gorm:"size:48"`
	StartingLongFundingBits  string `gorm:"size:48"`
	StartingShortFundingBits string `gorm:"size:48"`
	EndingLongFundingBits    string `gorm:"size:48"`
	EndingShortFundingBits   string `gorm:"size:48"`

	CreatedAt time.Time
}

// NewPerpLiqBankruptcyLog builds a row from a liquidation.BankruptcyResult.
func NewPerpLiqBankruptcyLog(id uuid.UUID, group identity.Address, perpMarketIndex uint16, liqee, liqor identity.Address, insuranceTransfer, socializedLoss, startingLong, startingShort, endingLong, endingShort fixedpoint.Q) *PerpLiqBankruptcyLog {
	return &PerpLiqBankruptcyLog{
		ID:                       id,
		Group:                    group.String(),
		PerpMarketIndex:          perpMarketIndex,
		Liqee:                    liqee.String(),
		Liqor:                    liqor.String(),
		InsuranceTransferBits:    bits(insuranceTransfer),
		SocializedLossBits:       bits(socializedLoss),
		StartingLongFundingBits:  bits(startingLong),
		StartingShortFundingBits: bits(startingShort),
		EndingLongFundingBits:    bits(endingLong),
		EndingShortFundingBits:   bits(endingShort),
	}
}

// Record inserts the log row.
func (l *PerpLiqBankruptcyLog) Record(ctx context.Context, store *gorm.DB) error {
	return store.WithContext(ctx).Create(l).Error
}

// InsuranceTransfer decodes InsuranceTransferBits back into a fixedpoint.Q.
func (l *PerpLiqBankruptcyLog) InsuranceTransfer() (fixedpoint.Q, error) {
	return unbits(l.InsuranceTransferBits)
}

// SocializedLoss decodes SocializedLossBits back into a fixedpoint.Q.
func (l *PerpLiqBankruptcyLog) SocializedLoss() (fixedpoint.Q, error) {
	return unbits(l.SocializedLossBits)
}

// AutoMigrate creates or updates the event-log tables, mirroring the
// otc-gateway models package's migration entrypoint.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&PerpLiqBaseOrPositivePnlLog{}, &PerpLiqBankruptcyLog{})
}
