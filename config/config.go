// Package config loads the vault engine configuration from a YAML file
// or command-line flags.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/meridianvault/meridian/internal/entity"
)

// Config is the validated engine configuration.
type Config struct {
	BaseAssetSymbol    string
	ExposureAsset      string
	RebalanceInterval  time.Duration
	HarvestFeeBps      int64
	WrapperSplitBps    int64
	Leverage           int64
	MinLeverage        int64
	MaxLeverage        int64
	MaxPositionSize    decimal.Decimal
	ManagementFeeBps   int64
	MaxSlippageBps     int64
	FundingCeiling     decimal.Decimal
	FundingWindow      int
	OracleMaxStaleness time.Duration
	OracleDeviationBps int64
	JournalDir         string
}

// configTmp is the raw YAML shape before validation and conversion.
type configTmp struct {
	BaseAssetSymbol    string        `yaml:"base_asset"`
	ExposureAsset      string        `yaml:"exposure_asset"`
	RebalanceInterval  time.Duration `yaml:"rebalance_interval"`
	HarvestFeeBps      int64         `yaml:"harvest_fee_bps"`
	WrapperSplitBps    int64         `yaml:"wrapper_split_bps"`
	Leverage           int64         `yaml:"leverage"`
	MinLeverage        int64         `yaml:"min_leverage"`
	MaxLeverage        int64         `yaml:"max_leverage"`
	MaxPositionSize    string        `yaml:"max_position_size"`
	ManagementFeeBps   int64         `yaml:"management_fee_bps"`
	MaxSlippageBps     int64         `yaml:"max_slippage_bps"`
	FundingCeiling     string        `yaml:"funding_ceiling"`
	FundingWindow      int           `yaml:"funding_window"`
	OracleMaxStaleness time.Duration `yaml:"oracle_max_staleness"`
	OracleDeviationBps int64         `yaml:"oracle_deviation_bps"`
	JournalDir         string        `yaml:"journal_dir"`
}

// Get loads configuration from --config when given, defaults otherwise.
func Get() (Config, error) {
	path := flag.String("config", "", "path to yaml config")
	flag.Parse()
	if *path != "" {
		return getYaml(*path)
	}
	return defaults(), nil
}

func defaults() Config {
	return Config{
		BaseAssetSymbol:    "USDC",
		ExposureAsset:      "ETH",
		RebalanceInterval:  24 * time.Hour,
		WrapperSplitBps:    5000,
		Leverage:           200,
		MinLeverage:        100,
		MaxLeverage:        500,
		MaxPositionSize:    decimal.NewFromInt(10_000_000),
		MaxSlippageBps:     100,
		FundingCeiling:     decimal.NewFromFloat(0.01),
		FundingWindow:      8,
		OracleMaxStaleness: time.Hour,
		OracleDeviationBps: 200,
		JournalDir:         "./journal",
	}
}

func getYaml(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}
	var tmp configTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "parse config yaml")
	}
	return tmp.convert()
}

func (t configTmp) convert() (Config, error) {
	cfg := defaults()
	if t.BaseAssetSymbol != "" {
		cfg.BaseAssetSymbol = t.BaseAssetSymbol
	}
	if t.ExposureAsset != "" {
		cfg.ExposureAsset = t.ExposureAsset
	}
	if t.RebalanceInterval > 0 {
		cfg.RebalanceInterval = t.RebalanceInterval
	}
	if t.OracleMaxStaleness > 0 {
		cfg.OracleMaxStaleness = t.OracleMaxStaleness
	}
	if t.FundingWindow > 0 {
		cfg.FundingWindow = t.FundingWindow
	}
	if t.JournalDir != "" {
		cfg.JournalDir = t.JournalDir
	}
	if t.Leverage != 0 {
		cfg.Leverage = t.Leverage
	}
	if t.MinLeverage != 0 {
		cfg.MinLeverage = t.MinLeverage
	}
	if t.MaxLeverage != 0 {
		cfg.MaxLeverage = t.MaxLeverage
	}
	if t.WrapperSplitBps != 0 {
		cfg.WrapperSplitBps = t.WrapperSplitBps
	}
	if t.MaxSlippageBps != 0 {
		cfg.MaxSlippageBps = t.MaxSlippageBps
	}
	if t.OracleDeviationBps != 0 {
		cfg.OracleDeviationBps = t.OracleDeviationBps
	}
	cfg.HarvestFeeBps = t.HarvestFeeBps
	cfg.ManagementFeeBps = t.ManagementFeeBps

	if t.MaxPositionSize != "" {
		v, err := decimal.NewFromString(t.MaxPositionSize)
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid max_position_size %q", t.MaxPositionSize)
		}
		cfg.MaxPositionSize = v
	}
	if t.FundingCeiling != "" {
		v, err := decimal.NewFromString(t.FundingCeiling)
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid funding_ceiling %q", t.FundingCeiling)
		}
		cfg.FundingCeiling = v
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	for name, bps := range map[string]int64{
		"harvest_fee_bps":      c.HarvestFeeBps,
		"wrapper_split_bps":    c.WrapperSplitBps,
		"management_fee_bps":   c.ManagementFeeBps,
		"max_slippage_bps":     c.MaxSlippageBps,
		"oracle_deviation_bps": c.OracleDeviationBps,
	} {
		if err := entity.ValidateBps(bps); err != nil {
			return errors.Wrap(err, name)
		}
	}
	if c.MinLeverage < 100 || c.MaxLeverage < c.MinLeverage {
		return errors.Errorf("invalid leverage bounds [%d, %d]", c.MinLeverage, c.MaxLeverage)
	}
	if c.Leverage < c.MinLeverage || c.Leverage > c.MaxLeverage {
		return errors.Errorf("leverage %d outside [%d, %d]", c.Leverage, c.MinLeverage, c.MaxLeverage)
	}
	if !c.MaxPositionSize.IsPositive() {
		return errors.New("max_position_size must be positive")
	}
	if c.RebalanceInterval <= 0 {
		return errors.New("rebalance_interval must be positive")
	}
	return nil
}
