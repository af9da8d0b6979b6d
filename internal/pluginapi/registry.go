package pluginapi

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// Factory builds a plugin from its decoded config block.
type Factory func(config map[string]any) (Plugin, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs a factory for the given plugin type. Called from plugin
// package init functions.
func Register(pluginType string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[pluginType] = factory
}

// New builds a plugin by type name. An unknown type is a load-time error.
func New(pluginType string, config map[string]any) (Plugin, error) {
	registryMu.RLock()
	factory, ok := registry[pluginType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown plugin type %q (known: %v)", pluginType, RegisteredTypes())
	}
	return factory(config)
}

// RegisteredTypes returns the known plugin type names, sorted.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DecodeConfig maps a raw config block onto a typed struct using JSON field
// tags, so each plugin declares its own config shape.
func DecodeConfig(config map[string]any, out any) error {
	if config == nil {
		return nil
	}
	b, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
