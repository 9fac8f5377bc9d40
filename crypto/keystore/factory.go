package keystore

import (
	"fmt"
	"runtime"
)

// NewKeystore creates the keystore for the running OS.
//
// On Windows this is a LocalStateKeystore that unwraps the profile's
// "Local State" key with DPAPI. On macOS it is a PasswordKeystore that reads
// the channel's Safe Storage password from the login keychain. Other
// platforms return an error.
//
// Example:
//
//	ks, err := keystore.NewKeystore()
//	if err != nil {
//	    return err
//	}
//	key, err := ks.MasterKey(p)
func NewKeystore() (Keystore, error) {
	return NewKeystoreFor(runtime.GOOS)
}

// NewKeystoreFor creates the keystore registered for goos. Only the platforms
// whose secret-protection scheme is known register a factory.
func NewKeystoreFor(goos string) (Keystore, error) {
	factory, err := GetKeystoreFactory(goos)
	if err != nil {
		return nil, fmt.Errorf("unsupported platform %s: %w", goos, err)
	}
	return factory()
}
