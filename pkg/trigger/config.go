package trigger

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the executor's deployment-time operational surface (§6),
// loaded from YAML rather than the protocol-parameter TOML file
// pkg/riskconfig reads, since these options tune how aggressively this one
// process chases triggers rather than describing protocol state.
type Config struct {
	MinHealthRatio         float64       `yaml:"min_health_ratio"`
	MaxTriggerQuoteAmount  uint64        `yaml:"max_trigger_quote_amount"`
	RefreshTimeout         time.Duration `yaml:"refresh_timeout"`
	ComputeLimitForTrigger uint32        `yaml:"compute_limit_for_trigger"`
	CollateralTokenIndex   uint16        `yaml:"collateral_token_index"`
	ProfitFraction         float64       `yaml:"profit_fraction"`
	MinBuyFraction         float64       `yaml:"min_buy_fraction"`

	Mode       string  `yaml:"mode"`
	SlippageBp int     `yaml:"slippage_bps"`

	MaxPrepared int    `yaml:"max_prepared"`
	MaxVolume   uint64 `yaml:"max_volume"`

	ErrorWindow     time.Duration `yaml:"error_window"`
	ErrorLimit      int           `yaml:"error_limit"`
}

// ParseMode resolves the configured Mode string into the Mode enum,
// defaulting to ModeBorrowBuyToken when unset.
func (c Config) ParseMode() Mode {
	switch c.Mode {
	case "SwapCollateralIntoBuy":
		return ModeSwapCollateralIntoBuy
	case "SwapSellIntoBuy":
		return ModeSwapSellIntoBuy
	default:
		return ModeBorrowBuyToken
	}
}

// LoadConfig reads and parses a YAML executor configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
