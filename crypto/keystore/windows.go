//go:build windows
// +build windows

package keystore

import (
	"github.com/zavla/dpapi"
)

func init() {
	RegisterKeystore("windows", NewDPAPIKeystore)
}

// NewDPAPIKeystore creates a keystore that unwraps "Local State" keys with
// CryptUnprotectData. The unwrap only succeeds for the OS user that owns the profile.
func NewDPAPIKeystore() (Keystore, error) {
	return &LocalStateKeystore{Unprotect: dpapi.Decrypt}, nil
}
