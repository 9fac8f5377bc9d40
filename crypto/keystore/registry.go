package keystore

import (
	"fmt"
	"slices"
	"sync"
)

// KeystoreFactory builds the Keystore for one platform's secret-protection scheme.
//
// Factories are registered with RegisterKeystore and called by NewKeystoreFor
// each time a keystore is needed, so they should be cheap and must not cache
// key material.
type KeystoreFactory func() (Keystore, error)

// factories maps a runtime.GOOS value to the factory for its scheme. The
// build-tagged platform files fill it from init.
type factories struct {
	mu sync.RWMutex
	m  map[string]KeystoreFactory
}

var platforms = &factories{m: make(map[string]KeystoreFactory)}

func (f *factories) set(goos string, factory KeystoreFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[goos] = factory
}

func (f *factories) get(goos string) (KeystoreFactory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.m[goos]
	return factory, ok
}

func (f *factories) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.m))
	for goos := range f.m {
		names = append(names, goos)
	}
	slices.Sort(names)
	return names
}

// RegisterKeystore installs the factory used for goos, replacing any earlier one.
//
// This should be called from init() in the build-tagged file for the platform.
// goos must match a runtime.GOOS value ("windows", "darwin"); tests may register
// their own identifiers to exercise the registry with a MockKeystore.
//
// Example:
//
//	func init() {
//	    RegisterKeystore("windows", NewDPAPIKeystore)
//	}
func RegisterKeystore(goos string, factory KeystoreFactory) {
	platforms.set(goos, factory)
}

// GetKeystoreFactory returns the factory registered for goos.
//
// It returns an error when the platform has no known master key scheme. This
// is what NewKeystore reports on Linux and other unsupported systems.
func GetKeystoreFactory(goos string) (KeystoreFactory, error) {
	factory, ok := platforms.get(goos)
	if !ok {
		return nil, fmt.Errorf("no master key scheme registered for %s", goos)
	}
	return factory, nil
}

// ListRegisteredPlatforms returns the platforms with a registered scheme, sorted.
//
// In a normal build this is at most the running platform; tests see their
// registered fakes as well.
func ListRegisteredPlatforms() []string {
	return platforms.names()
}
