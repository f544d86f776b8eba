package remote

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor creates a RemoteSource from configuration.
// Implementations register themselves with the registry using Register().
type Constructor func(cfg Config) (RemoteSource, error)

// registry maps backend kinds to their constructors
var (
	registry      = make(map[Kind]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a backend constructor.
// This is called from init() functions in backend packages.
func Register(kind Kind, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("remote: Register constructor is nil for kind %s", kind))
	}
	if kind == KindNone {
		panic("remote: Register called with empty kind")
	}
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("remote: Register called twice for kind %s", kind))
	}

	registry[kind] = constructor
}

// Open constructs the backend registered for kind.
func Open(kind Kind, cfg Config) (RemoteSource, error) {
	registryMutex.RLock()
	constructor := registry[kind]
	registryMutex.RUnlock()

	if kind == KindNone {
		return nil, ErrNotConfigured
	}
	if constructor == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	src, err := constructor(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s remote: %w", kind, err)
	}
	return src, nil
}

// IsRegistered returns true if a constructor is registered for the given kind.
func IsRegistered(kind Kind) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[kind]
	return exists
}

// RegisteredKinds returns all registered kinds in sorted order.
func RegisteredKinds() []Kind {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// UnregisterAll clears all registered constructors.
// This is primarily useful for testing.
func UnregisterAll() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[Kind]Constructor)
}
