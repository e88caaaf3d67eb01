// Package catalog registers the built-in reaction networks that the client
// and CLI can simulate by name.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"chemsim/internal/model"
)

var (
	ErrNetworkExists   = errors.New("network already registered")
	ErrNetworkNotFound = errors.New("network not found")
)

// Network describes a catalog entry. Build returns a fresh model on every
// call so callers may modify it freely.
type Network struct {
	Name        string
	Description string
	Build       func() *model.Model
	// Suggested run window and simulator for the CLI.
	Start     float64
	End       float64
	NumPoints int
	Simulator string
}

var networkRegistry = struct {
	mu sync.RWMutex
	m  map[string]Network
}{
	m: make(map[string]Network),
}

func init() {
	initializeBuiltInNetworks()
}

func Register(n Network) error {
	if n.Name == "" {
		return errors.New("network name is required")
	}
	if n.Build == nil {
		return errors.New("network builder is required")
	}

	networkRegistry.mu.Lock()
	defer networkRegistry.mu.Unlock()

	if _, exists := networkRegistry.m[n.Name]; exists {
		return fmt.Errorf("%w: %s", ErrNetworkExists, n.Name)
	}
	networkRegistry.m[n.Name] = n
	return nil
}

func MustRegister(n Network) {
	if err := Register(n); err != nil {
		panic(err)
	}
}

// Get looks a network up by its normalized name.
func Get(name string) (Network, error) {
	networkRegistry.mu.RLock()
	defer networkRegistry.mu.RUnlock()

	n, ok := networkRegistry.m[normalizeLocked(name)]
	if !ok {
		return Network{}, fmt.Errorf("%w: %s", ErrNetworkNotFound, name)
	}
	return n, nil
}

// Build returns a fresh model of the named network.
func Build(name string) (*model.Model, error) {
	n, err := Get(name)
	if err != nil {
		return nil, err
	}
	return n.Build(), nil
}

func List() []Network {
	networkRegistry.mu.RLock()
	defer networkRegistry.mu.RUnlock()

	out := make([]Network, 0, len(networkRegistry.m))
	for _, n := range networkRegistry.m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func unregisterForTests(name string) {
	networkRegistry.mu.Lock()
	delete(networkRegistry.m, name)
	networkRegistry.mu.Unlock()
}
