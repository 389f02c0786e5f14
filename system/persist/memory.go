package persist

import (
	"log"
	"sync"
)

// MemoryConfigHelper keeps config values in memory only. It backs dry runs
// and non-Windows builds, where there is no Registry to write to.
type MemoryConfigHelper struct {
	mu            sync.Mutex
	alreadyClosed bool
	configs       map[string]Registry
	values        map[string][]byte
}

var _ ConfigRegistry = &MemoryConfigHelper{}

// NewMemoryConfigHelper returns a helper that persists nothing across runs
func NewMemoryConfigHelper() (ConfigRegistry, error) {
	log.Println("[dry run] persist: initializing in-memory config store")
	return &MemoryConfigHelper{
		configs: make(map[string]Registry),
		values:  make(map[string][]byte),
	}, nil
}

// Register will add the config to the list
func (h *MemoryConfigHelper) Register(config Registry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.configs[config.Name()] = config
}

// Load will populate configs from previously saved in-memory values
func (h *MemoryConfigHelper) Load() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name, config := range h.configs {
		if v, ok := h.values[name]; ok {
			config.Load(v)
		}
	}

	return nil
}

// Save will snapshot all the configs in memory
func (h *MemoryConfigHelper) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name, config := range h.configs {
		h.values[name] = config.Value()
	}

	return nil
}

// Apply will apply each config accordingly. This is usually called after Load()
func (h *MemoryConfigHelper) Apply() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, config := range h.configs {
		if err := config.Apply(); err != nil {
			log.Printf("persist: error applying \"%s\": %s\n", config.Name(), err)
			return err
		}
	}

	return nil
}

// Close will release resources of each config
func (h *MemoryConfigHelper) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.alreadyClosed {
		return
	}
	h.alreadyClosed = true

	for _, config := range h.configs {
		if err := config.Close(); err != nil {
			log.Printf("persist: error closing \"%s\": %s\n", config.Name(), err)
		}
	}
}
