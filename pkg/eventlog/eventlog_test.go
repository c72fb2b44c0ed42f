package eventlog_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marginrisk/pkg/eventlog"
	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/identity"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, eventlog.AutoMigrate(db))
	return db
}

func testAddress(b byte) identity.Address {
	raw := make([]byte, 20)
	raw[0] = b
	return identity.MustNewAddress(identity.MainPrefix, raw)
}

func TestPerpLiqBaseOrPositivePnlLogRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	group := testAddress(1)
	liqor := testAddress(2)
	liqee := testAddress(3)

	log := eventlog.NewPerpLiqBaseOrPositivePnlLog(
		uuid.New(), group, 7, liqor, liqee,
		1_000,
		fixedpoint.FromInt64(50), fixedpoint.FromInt64(10), fixedpoint.FromInt64(5), fixedpoint.FromFloat64(1.5),
	)
	require.NoError(t, log.Record(context.Background(), db))

	var fetched eventlog.PerpLiqBaseOrPositivePnlLog
	require.NoError(t, db.First(&fetched, "id = ?", log.ID).Error)
	require.Equal(t, group.String(), fetched.Group)
	require.Equal(t, liqee.String(), fetched.Liqee)

	quoteTransfer, err := fetched.QuoteTransfer()
	require.NoError(t, err)
	require.True(t, quoteTransfer.Cmp(fixedpoint.FromInt64(50)) == 0)

	price, err := fetched.Price()
	require.NoError(t, err)
	require.True(t, price.Cmp(fixedpoint.FromFloat64(1.5)) == 0)
}

func TestPerpLiqBankruptcyLogRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	group := testAddress(1)
	liqee := testAddress(4)
	liqor := testAddress(5)

	log := eventlog.NewPerpLiqBankruptcyLog(
		uuid.New(), group, 3, liqee, liqor,
		fixedpoint.FromInt64(20), fixedpoint.FromInt64(30),
		fixedpoint.FromInt64(1), fixedpoint.FromInt64(2),
		fixedpoint.FromInt64(3), fixedpoint.FromInt64(4),
	)
	require.NoError(t, log.Record(context.Background(), db))

	var fetched eventlog.PerpLiqBankruptcyLog
	require.NoError(t, db.First(&fetched, "id = ?", log.ID).Error)

	socializedLoss, err := fetched.SocializedLoss()
	require.NoError(t, err)
	require.True(t, socializedLoss.Cmp(fixedpoint.FromInt64(30)) == 0)
}
