package trigger_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marginrisk/pkg/trigger"
)

const sampleYAML = `
min_health_ratio: 0.05
max_trigger_quote_amount: 1000000
refresh_timeout: 5s
compute_limit_for_trigger: 200000
collateral_token_index: 0
profit_fraction: 0.001
min_buy_fraction: 0.1
mode: SwapCollateralIntoBuy
slippage_bps: 50
max_prepared: 4
max_volume: 5000000
error_window: 10m
error_limit: 5
`

func TestLoadConfigParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggerexecutor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := trigger.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 0.05, cfg.MinHealthRatio)
	require.Equal(t, 5*time.Second, cfg.RefreshTimeout)
	require.Equal(t, 4, cfg.MaxPrepared)
	require.Equal(t, trigger.ModeSwapCollateralIntoBuy, cfg.ParseMode())
	require.Equal(t, 10*time.Minute, cfg.ErrorWindow)
}

func TestParseModeDefaultsToBorrow(t *testing.T) {
	cfg := trigger.Config{Mode: "unknown-mode"}
	require.Equal(t, trigger.ModeBorrowBuyToken, cfg.ParseMode())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := trigger.LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
