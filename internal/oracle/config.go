package oracle

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/meridianvault/meridian/internal/entity"
)

// Config is the per-asset oracle configuration. Feed references are
// addresses resolved through the router's feed registry, never embedded
// objects.
type Config struct {
	Primary         common.Address
	Fallback        common.Address
	Emergency       common.Address
	MaxStaleness    time.Duration
	MaxDeviationBps int64
	IsPaused        bool
	LastUpdateTime  time.Time
}

// ConfigStore holds oracle configuration keyed by asset, mutated only
// through validated owner-gated setters. It is passed explicitly to the
// resolver; there is no ambient global.
type ConfigStore struct {
	mu      sync.RWMutex
	owner   common.Address
	configs map[common.Address]Config
}

func NewConfigStore(owner common.Address) (*ConfigStore, error) {
	if owner == (common.Address{}) {
		return nil, errors.Wrap(entity.ErrZeroAddress, "config store owner")
	}
	return &ConfigStore{owner: owner, configs: make(map[common.Address]Config)}, nil
}

// Set registers or replaces the configuration for an asset.
func (s *ConfigStore) Set(caller, asset common.Address, cfg Config) error {
	if caller != s.owner {
		return errors.Wrap(entity.ErrNotOwner, "set oracle config")
	}
	if asset == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "oracle config asset")
	}
	if cfg.Primary == (common.Address{}) {
		return errors.Wrap(entity.ErrZeroAddress, "primary oracle")
	}
	if cfg.MaxStaleness <= 0 {
		return errors.New("max staleness must be positive")
	}
	if err := entity.ValidateBps(cfg.MaxDeviationBps); err != nil {
		return errors.Wrap(err, "max price deviation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.LastUpdateTime = time.Now()
	s.configs[asset] = cfg
	return nil
}

// SetPaused toggles price resolution for one asset without touching the
// rest of its configuration.
func (s *ConfigStore) SetPaused(caller, asset common.Address, paused bool) error {
	if caller != s.owner {
		return errors.Wrap(entity.ErrNotOwner, "pause oracle config")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[asset]
	if !ok {
		return errors.Errorf("no oracle config for asset %s", asset.Hex())
	}
	cfg.IsPaused = paused
	cfg.LastUpdateTime = time.Now()
	s.configs[asset] = cfg
	return nil
}

// Get returns the configuration for an asset.
func (s *ConfigStore) Get(asset common.Address) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[asset]
	if !ok {
		return Config{}, errors.Errorf("no oracle config for asset %s", asset.Hex())
	}
	return cfg, nil
}

// Assets lists every configured asset.
func (s *ConfigStore) Assets() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, 0, len(s.configs))
	for asset := range s.configs {
		out = append(out, asset)
	}
	return out
}
