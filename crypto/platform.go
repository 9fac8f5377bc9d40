package crypto

import (
	"fmt"
	"runtime"

	"github.com/joncooperworks/sessionharness/crypto/keystore"
	"github.com/joncooperworks/sessionharness/profile"
)

// Platform is the per-OS capability pair: unwrap the master key, then decrypt
// records with the cipher that key belongs to.
type Platform interface {
	// PlatformKey returns the profile's master key. The caller owns the slice.
	PlatformKey(p profile.Profile) ([]byte, error)
	// Decrypt turns one record into credential text.
	Decrypt(rec Record, key []byte) (string, error)
}

type platform struct {
	ks     keystore.Keystore
	cipher Cipher
}

// NewPlatform pairs a keystore with a record cipher.
func NewPlatform(ks keystore.Keystore, c Cipher) Platform {
	return &platform{ks: ks, cipher: c}
}

func (p *platform) PlatformKey(prof profile.Profile) ([]byte, error) {
	return p.ks.MasterKey(prof)
}

func (p *platform) Decrypt(rec Record, key []byte) (string, error) {
	return p.cipher.Decrypt(rec, key)
}

// CipherFor returns the record cipher used on goos.
func CipherFor(goos string) (Cipher, error) {
	switch goos {
	case "windows":
		return GCMCipher{}, nil
	case "darwin":
		return CBCCipher{}, nil
	default:
		return nil, fmt.Errorf("no record cipher for platform: %s", goos)
	}
}

// DefaultPlatform builds the Platform for the running OS from the registered
// keystore and the matching cipher.
func DefaultPlatform() (Platform, error) {
	c, err := CipherFor(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	ks, err := keystore.NewKeystore()
	if err != nil {
		return nil, err
	}
	return NewPlatform(ks, c), nil
}
