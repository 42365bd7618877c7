// Command vaultd runs the vault engine against fully simulated venues
// and feeds: it seeds a depositor, rebalances on the configured
// interval, accrues and harvests yield, and logs the share price.
//
// Usage:
//
//	vaultd --config config.yaml
//	vaultd (uses built-in defaults)
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianvault/meridian/config"
	"github.com/meridianvault/meridian/internal"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	sim, err := internal.BuildSimulation(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer sim.Vault.Close()

	if history := sim.Vault.History(); len(history) > 0 {
		logger.Info("journal replayed", zap.Int("events", len(history)))
	}

	// seed one depositor with base-asset balance and an allowance
	depositor := sim.Owner
	seed := decimal.NewFromInt(1_000_000)
	if err := sim.Base.Mint(depositor, seed); err != nil {
		log.Fatal(err)
	}
	if err := sim.Base.Approve(depositor, sim.Vault.Address(), seed); err != nil {
		log.Fatal(err)
	}
	shares, err := sim.Vault.Deposit(depositor, seed)
	if err != nil {
		log.Fatal(err)
	}
	logger.Info("seed deposit", zap.String("shares", shares.String()))

	ticker := time.NewTicker(cfg.RebalanceInterval)
	defer ticker.Stop()
	harvest := time.NewTicker(cfg.RebalanceInterval / 4)
	defer harvest.Stop()
	funding := time.NewTicker(cfg.RebalanceInterval / 8)
	defer funding.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := sim.Vault.Rebalance(sim.Owner); err != nil {
				logger.Warn("rebalance", zap.Error(err))
			}
			health := sim.Health.UpdateHealthBatch([]common.Address{sim.AssetAddr})
			if h := health[sim.AssetAddr]; !h.IsPrimaryHealthy && !h.IsFallbackHealthy {
				recovered, err := sim.Exposure.EmergencyExit()
				if err != nil {
					logger.Error("emergency exit", zap.Error(err))
					continue
				}
				logger.Warn("feeds unhealthy, exposure closed",
					zap.String("recovered", recovered.String()))
			}
		case <-funding.C:
			if err := sim.Exposure.RecordFunding(time.Now()); err != nil {
				logger.Warn("record funding", zap.Error(err))
				continue
			}
			lev, err := sim.Exposure.OptimizeLeverage()
			if err != nil {
				logger.Warn("optimize leverage", zap.Error(err))
				continue
			}
			logger.Info("funding sampled", zap.Int64("leverage", lev))
		case <-harvest.C:
			sim.YieldVenue.Accrue(decimal.NewFromInt(100))
			net, err := sim.Vault.HarvestYield(sim.Owner)
			if err != nil {
				logger.Warn("harvest", zap.Error(err))
				continue
			}
			price, err := sim.Vault.SharePrice()
			if err != nil {
				logger.Warn("share price", zap.Error(err))
				continue
			}
			logger.Info("harvested",
				zap.String("net", net.String()),
				zap.String("share_price", price.String()))
		case <-stop:
			logger.Info("shutting down")
			return
		}
	}
}
