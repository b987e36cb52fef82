package chain

import (
	"fmt"
	"strings"
	"sync"

	"stellar-swap/config"
)

// Manager routes chain names to their adapters. Adapters are constructed
// lazily and cached, one per chain.
type Manager struct {
	cfg    *config.Config
	mu     sync.Mutex
	cache  map[string]Adapter
	memory *MemoryChain
}

// NewManager creates a new chain manager.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:   cfg,
		cache: make(map[string]Adapter),
	}
}

// NewMemoryManager creates a manager whose every chain resolves to the given
// shared in-memory chain, for tests and dry runs.
func NewMemoryManager(cfg *config.Config, mem *MemoryChain) *Manager {
	return &Manager{
		cfg:    cfg,
		cache:  make(map[string]Adapter),
		memory: mem,
	}
}

// AdapterFor returns the adapter for the named chain, constructing it on
// first use from the chain's configured family.
func (m *Manager) AdapterFor(chain string) (Adapter, error) {
	chain = strings.ToLower(chain)

	m.mu.Lock()
	defer m.mu.Unlock()

	if adapter, ok := m.cache[chain]; ok {
		return adapter, nil
	}

	chainCfg, err := m.cfg.Chain(chain)
	if err != nil {
		return nil, err
	}

	var adapter Adapter
	switch chainCfg.Family {
	case "evm":
		adapter, err = NewEVMAdapter(chainCfg)
	case "stellar":
		adapter, err = NewStellarAdapter(chainCfg)
	case "solana":
		adapter, err = NewSolanaAdapter(chainCfg)
	case "memory":
		if m.memory == nil {
			m.memory = NewMemoryChain()
		}
		adapter = m.memory.Adapter(chainCfg.FactoryAddress)
	default:
		return nil, fmt.Errorf("unsupported chain family: %s", chainCfg.Family)
	}
	if err != nil {
		return nil, err
	}

	m.cache[chain] = adapter
	return adapter, nil
}

// SupportedChains returns the chains the manager can build adapters for.
func (m *Manager) SupportedChains() []string {
	supported := make([]string, 0, len(m.cfg.Chains))
	for name := range m.cfg.Chains {
		supported = append(supported, name)
	}
	return supported
}
