package keystore

import (
	"fmt"
	"sync"

	"github.com/joncooperworks/sessionharness/profile"
)

// MockKeystore is an in-memory implementation of Keystore for testing.
// This is exported so it can be used by tests in other packages.
type MockKeystore struct {
	mu    sync.Mutex
	keys  map[profile.Channel][]byte
	errs  map[profile.Channel]error
	calls map[profile.Channel]int
}

// NewMockKeystore creates a new in-memory keystore with no keys.
func NewMockKeystore() *MockKeystore {
	return &MockKeystore{
		keys:  make(map[profile.Channel][]byte),
		errs:  make(map[profile.Channel]error),
		calls: make(map[profile.Channel]int),
	}
}

// SetKey makes MasterKey return a copy of key for ch.
func (m *MockKeystore) SetKey(ch profile.Channel, key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[ch] = append([]byte(nil), key...)
}

// SetError makes MasterKey fail with err for ch.
func (m *MockKeystore) SetError(ch profile.Channel, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[ch] = err
}

// Calls reports how many times MasterKey was asked for ch.
func (m *MockKeystore) Calls(ch profile.Channel) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ch]
}

func (m *MockKeystore) MasterKey(p profile.Profile) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[p.Channel]++
	if err, ok := m.errs[p.Channel]; ok {
		return nil, err
	}
	key, ok := m.keys[p.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: no mock key for %s", ErrKeyUnavailable, p.Channel)
	}
	return append([]byte(nil), key...), nil
}
