// Package internal wires the engine together. BuildSimulation stands up
// a fully simulated stack: ledger token, static oracle feeds, perp and
// yield venues, the strategy pair, one wrapper and the vault.
package internal

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianvault/meridian/config"
	"github.com/meridianvault/meridian/internal/entity"
	"github.com/meridianvault/meridian/internal/oracle"
	"github.com/meridianvault/meridian/internal/router"
	"github.com/meridianvault/meridian/internal/strategy"
	"github.com/meridianvault/meridian/internal/token"
	"github.com/meridianvault/meridian/internal/vault"
	"github.com/meridianvault/meridian/internal/venue"
	"github.com/meridianvault/meridian/internal/wrapper"
)

// Simulation is a wired engine with handles for driving it.
type Simulation struct {
	Owner        common.Address
	Vault        *vault.Vault
	Base         *token.LedgerToken
	Oracle       *oracle.Router
	Health       *oracle.HealthTracker
	PrimaryFeed  *oracle.StaticFeed
	FallbackFeed *oracle.StaticFeed
	Exposure     *strategy.ExposureStrategy
	Perp         *venue.SimulatePerp
	YieldVenue   *venue.SimulateYield
	Swaps        *router.Router
	AssetAddr    common.Address
	BaseAddr     common.Address
}

// BuildSimulation wires the full stack from config. The wrapper is
// registered at full weight.
func BuildSimulation(cfg config.Config, logger *zap.Logger) (*Simulation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	owner := entity.DeriveAddress("sim/owner")
	vaultAddr := entity.DeriveAddress("sim/vault")
	wrapperAddr := entity.DeriveAddress("sim/wrapper")
	exposureAddr := entity.DeriveAddress("sim/strategy/exposure")
	yieldAddr := entity.DeriveAddress("sim/strategy/yield")
	perpAddr := entity.DeriveAddress("sim/venue/perp")
	yieldVenueAddr := entity.DeriveAddress("sim/venue/yield")
	primaryAddr := entity.DeriveAddress("sim/feed/primary")
	fallbackAddr := entity.DeriveAddress("sim/feed/fallback")
	emergencyAddr := entity.DeriveAddress("sim/feed/emergency")

	exposureAsset, err := entity.NewAsset(cfg.ExposureAsset, entity.DeriveAddress("sim/asset/"+cfg.ExposureAsset))
	if err != nil {
		return nil, errors.Wrap(err, "exposure asset")
	}

	base := token.NewLedgerToken(cfg.BaseAssetSymbol)

	configs, err := oracle.NewConfigStore(owner)
	if err != nil {
		return nil, errors.Wrap(err, "oracle config store")
	}
	px, err := oracle.NewRouter(owner, owner, configs, logger.Named("oracle"))
	if err != nil {
		return nil, errors.Wrap(err, "oracle router")
	}

	primary := oracle.NewStaticFeed()
	fallback := oracle.NewStaticFeed()
	emergency := oracle.NewStaticFeed()
	for addr, feed := range map[common.Address]oracle.Feed{
		primaryAddr:   primary,
		fallbackAddr:  fallback,
		emergencyAddr: emergency,
	} {
		if err := px.RegisterFeed(owner, addr, feed); err != nil {
			return nil, errors.Wrap(err, "register feed")
		}
	}
	if err := configs.Set(owner, exposureAsset.Address, oracle.Config{
		Primary:         primaryAddr,
		Fallback:        fallbackAddr,
		Emergency:       emergencyAddr,
		MaxStaleness:    cfg.OracleMaxStaleness,
		MaxDeviationBps: cfg.OracleDeviationBps,
	}); err != nil {
		return nil, errors.Wrap(err, "oracle config")
	}

	perp := venue.NewSimulatePerp(logger.Named("perp"), base, perpAddr, exposureAddr)
	yieldVenue := venue.NewSimulateYield(base, yieldVenueAddr, yieldAddr)

	exposure, err := strategy.NewExposureStrategy(logger.Named("exposure"), exposureAsset, base,
		exposureAddr, wrapperAddr, perp, px, strategy.ExposureConfig{
			Leverage:         cfg.Leverage,
			MinLeverage:      cfg.MinLeverage,
			MaxLeverage:      cfg.MaxLeverage,
			MaxPositionSize:  cfg.MaxPositionSize,
			ManagementFeeBps: cfg.ManagementFeeBps,
			MaxSlippageBps:   cfg.MaxSlippageBps,
			FundingCeiling:   cfg.FundingCeiling,
			FundingWindow:    cfg.FundingWindow,
		})
	if err != nil {
		return nil, errors.Wrap(err, "exposure strategy")
	}

	yieldStrat, err := strategy.NewYieldStrategy(logger.Named("yield"), base, yieldAddr, wrapperAddr,
		yieldVenue, strategy.YieldConfig{Kind: strategy.Lending})
	if err != nil {
		return nil, errors.Wrap(err, "yield strategy")
	}

	wrap, err := wrapper.New(logger.Named("wrapper"), base, wrapperAddr, vaultAddr,
		exposure, yieldStrat, cfg.WrapperSplitBps)
	if err != nil {
		return nil, errors.Wrap(err, "asset wrapper")
	}

	journal, err := vault.OpenJournal(logger.Named("journal"), vault.DefaultJournalDir(cfg.JournalDir, "sim"))
	if err != nil {
		return nil, errors.Wrap(err, "vault journal")
	}

	vlt, err := vault.New(logger.Named("vault"), vault.Config{
		Owner:             owner,
		Address:           vaultAddr,
		FeeRecipient:      entity.DeriveAddress("sim/fees"),
		HarvestFeeBps:     cfg.HarvestFeeBps,
		RebalanceInterval: cfg.RebalanceInterval,
	}, base, journal)
	if err != nil {
		return nil, errors.Wrap(err, "vault")
	}

	if err := vlt.AddAsset(owner, wrap, entity.MaxBps); err != nil {
		return nil, errors.Wrap(err, "register wrapper")
	}

	baseAddr := entity.DeriveAddress("sim/asset/" + cfg.BaseAssetSymbol)
	swaps, err := router.New(owner, logger.Named("router"))
	if err != nil {
		return nil, errors.Wrap(err, "swap router")
	}
	dex, err := router.NewStaticAdapter(cfg.MaxSlippageBps)
	if err != nil {
		return nil, errors.Wrap(err, "swap adapter")
	}
	seedPrice := decimal.NewFromInt(1000)
	dex.SetRate(exposureAsset.Address, baseAddr, seedPrice)
	dex.SetRate(baseAddr, exposureAsset.Address, decimal.NewFromInt(1).Div(seedPrice))
	if err := swaps.Register(owner, entity.DeriveAddress("sim/dex/static"), dex); err != nil {
		return nil, errors.Wrap(err, "register swap adapter")
	}

	now := time.Now()
	primary.SetPrice(exposureAsset.Address, seedPrice, now)
	fallback.SetPrice(exposureAsset.Address, seedPrice, now)
	emergency.SetPrice(exposureAsset.Address, seedPrice, now)

	return &Simulation{
		Owner:        owner,
		Vault:        vlt,
		Base:         base,
		Oracle:       px,
		Health:       oracle.NewHealthTracker(px),
		PrimaryFeed:  primary,
		FallbackFeed: fallback,
		Exposure:     exposure,
		Perp:         perp,
		YieldVenue:   yieldVenue,
		Swaps:        swaps,
		AssetAddr:    exposureAsset.Address,
		BaseAddr:     baseAddr,
	}, nil
}
