package datasource

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// AdapterInfo describes a registered engine.
type AdapterInfo struct {
	Engine      string   `json:"engine"`       // "postgres", "mysql"
	DisplayName string   `json:"display_name"` // "PostgreSQL", "MySQL"
	Schemes     []string `json:"schemes"`      // URL schemes routed to this engine
}

// AdapterRegistration pairs engine info with the constructor for its Introspector.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory func(rawURL string, opts Options, logger *zap.Logger) (Introspector, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Engine] = reg
}

// RegisteredAdapters returns info for all registered engines, sorted by name.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Engine < result[j].Engine })
	return result
}

// lookupScheme finds the adapter whose Schemes include scheme.
func lookupScheme(scheme string) (AdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, reg := range registry {
		for _, s := range reg.Info.Schemes {
			if strings.EqualFold(s, scheme) {
				return reg, true
			}
		}
	}
	return AdapterRegistration{}, false
}
