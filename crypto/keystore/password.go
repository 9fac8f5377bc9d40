package keystore

import (
	"crypto/sha1"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/joncooperworks/sessionharness/profile"
)

// Key derivation parameters used by Chromium's keychain-backed storage.
const (
	storageSalt       = "saltysalt"
	storageIterations = 1003
	storageKeyLen     = 16
	masterKeyLen      = 32
)

// PasswordLookupFunc fetches the storage password for a keychain service/account pair.
type PasswordLookupFunc func(service, account string) ([]byte, error)

// PasswordKeystore derives the master key from the channel's storage password.
type PasswordKeystore struct {
	Lookup PasswordLookupFunc
}

// MasterKey implements Keystore.
func (k *PasswordKeystore) MasterKey(p profile.Profile) ([]byte, error) {
	service := p.Channel.SafeStorageService()
	password, err := k.Lookup(service, p.Channel.KeychainAccount())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrKeyUnavailable, service, err)
	}
	defer zeroize(password)
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: %q has an empty password", ErrKeyUnavailable, service)
	}
	return DeriveStorageKey(password), nil
}

// DeriveStorageKey runs PBKDF2-HMAC-SHA1 over the storage password and returns
// the 16-byte AES key zero-extended to 32 bytes. Only the first 16 bytes are
// consumed by the CBC cipher.
func DeriveStorageKey(password []byte) []byte {
	derived := pbkdf2.Key(password, []byte(storageSalt), storageIterations, storageKeyLen, sha1.New)
	defer zeroize(derived)

	key := make([]byte, masterKeyLen)
	copy(key, derived)
	return key
}
