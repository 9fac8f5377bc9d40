//go:build darwin
// +build darwin

package keystore

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/99designs/keyring"
)

func init() {
	RegisterKeystore("darwin", NewKeychainKeystore)
}

// NewKeychainKeystore creates a keystore that reads the channel's
// "<dir> Safe Storage" password from the login keychain and derives the
// storage key from it.
func NewKeychainKeystore() (Keystore, error) {
	return &PasswordKeystore{Lookup: keychainPassword}, nil
}

// keychainPassword reads a generic password through the keychain API and falls
// back to the security CLI, which can succeed when the API access prompt is denied
// for an unsigned binary.
func keychainPassword(service, account string) ([]byte, error) {
	password, err := keyringPassword(service, account)
	if err == nil {
		return password, nil
	}

	cliPassword, cliErr := securityCLIPassword(service, account)
	if cliErr != nil {
		return nil, fmt.Errorf("keychain: %v; security CLI: %v", err, cliErr)
	}
	return cliPassword, nil
}

func keyringPassword(service, account string) ([]byte, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              service,
		AllowedBackends:          []keyring.BackendType{keyring.KeychainBackend},
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keychain: %w", err)
	}

	item, err := ring.Get(account)
	if err != nil {
		return nil, fmt.Errorf("failed to get %q from keychain: %w", account, err)
	}
	return item.Data, nil
}

func securityCLIPassword(service, account string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	if err != nil {
		return nil, fmt.Errorf("security find-generic-password failed: %w", err)
	}
	password := bytes.TrimSpace(out)
	if len(password) == 0 {
		return nil, fmt.Errorf("security find-generic-password returned no password")
	}
	return password, nil
}
