package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrSimulatorExists   = errors.New("simulator already registered")
	ErrSimulatorNotFound = errors.New("simulator not found")
)

// Factory builds a fresh, uninitialized simulator instance.
type Factory func(opts ...Option) Simulator

var simulatorRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func Register(alias string, factory Factory) error {
	if alias == "" {
		return errors.New("simulator alias is required")
	}
	if factory == nil {
		return errors.New("simulator factory is required")
	}

	simulatorRegistry.mu.Lock()
	defer simulatorRegistry.mu.Unlock()

	if _, exists := simulatorRegistry.m[alias]; exists {
		return fmt.Errorf("%w: %s", ErrSimulatorExists, alias)
	}
	simulatorRegistry.m[alias] = factory
	return nil
}

func MustRegister(alias string, factory Factory) {
	if err := Register(alias, factory); err != nil {
		panic(err)
	}
}

// New returns a new instance of the simulator registered under alias.
func New(alias string, opts ...Option) (Simulator, error) {
	simulatorRegistry.mu.RLock()
	factory, ok := simulatorRegistry.m[alias]
	simulatorRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSimulatorNotFound, alias)
	}
	return factory(opts...), nil
}

func List() []string {
	simulatorRegistry.mu.RLock()
	defer simulatorRegistry.mu.RUnlock()

	aliases := make([]string, 0, len(simulatorRegistry.m))
	for alias := range simulatorRegistry.m {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

func unregisterForTests(alias string) {
	simulatorRegistry.mu.Lock()
	delete(simulatorRegistry.m, alias)
	simulatorRegistry.mu.Unlock()
}
