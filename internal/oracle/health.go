package oracle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AssetHealth is the monitoring view of one asset's oracle tiers.
// FailureCount is cumulative: it increments every time a health update
// finds the primary unhealthy and is never reset by recovery.
type AssetHealth struct {
	IsPrimaryHealthy  bool
	IsFallbackHealthy bool
	FailureCount      uint64
}

// HealthTracker records oracle tier health out of band. It is a
// monitoring side-channel: GetPrice never consults or updates it, and
// updates happen only when explicitly invoked.
type HealthTracker struct {
	mu     sync.RWMutex
	router *Router
	health map[common.Address]AssetHealth
}

func NewHealthTracker(router *Router) *HealthTracker {
	return &HealthTracker{
		router: router,
		health: make(map[common.Address]AssetHealth),
	}
}

// UpdateHealth probes the primary and fallback feeds for one asset and
// records whether each is within its staleness bound.
func (h *HealthTracker) UpdateHealth(asset common.Address) AssetHealth {
	now := h.router.now()

	cfg, err := h.router.configs.Get(asset)
	if err != nil {
		return h.record(asset, false, false)
	}

	primaryOK := false
	if round, err := h.router.readFeed(cfg.Primary, asset); err == nil && round.Usable() {
		primaryOK = round.Age(now) <= cfg.MaxStaleness
	}

	fallbackOK := false
	if round, err := h.router.readFeed(cfg.Fallback, asset); err == nil && round.Usable() {
		fallbackOK = round.Age(now) <= cfg.MaxStaleness
	}

	return h.record(asset, primaryOK, fallbackOK)
}

// UpdateHealthBatch probes a set of assets in one pass.
func (h *HealthTracker) UpdateHealthBatch(assets []common.Address) map[common.Address]AssetHealth {
	out := make(map[common.Address]AssetHealth, len(assets))
	for _, asset := range assets {
		out[asset] = h.UpdateHealth(asset)
	}
	return out
}

// Health returns the last recorded view for an asset.
func (h *HealthTracker) Health(asset common.Address) AssetHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.health[asset]
}

func (h *HealthTracker) record(asset common.Address, primaryOK, fallbackOK bool) AssetHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur := h.health[asset]
	cur.IsPrimaryHealthy = primaryOK
	cur.IsFallbackHealthy = fallbackOK
	if !primaryOK {
		cur.FailureCount++
	}
	h.health[asset] = cur
	return cur
}
