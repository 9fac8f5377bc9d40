package keystore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/joncooperworks/sessionharness/profile"
)

// dpapiPrefix marks an encrypted_key wrapped with the per-user data protection API.
const dpapiPrefix = "DPAPI"

// encryptedKeyPath is the gjson path of the wrapped key inside "Local State".
const encryptedKeyPath = "os_crypt.encrypted_key"

// UnprotectFunc unwraps a blob protected for the current OS user.
type UnprotectFunc func(blob []byte) ([]byte, error)

// LocalStateKeystore reads the wrapped master key from the profile's
// "Local State" file and unwraps it with Unprotect.
type LocalStateKeystore struct {
	Unprotect UnprotectFunc
}

// MasterKey implements Keystore.
func (k *LocalStateKeystore) MasterKey(p profile.Profile) ([]byte, error) {
	wrapped, err := ReadWrappedKey(p.LocalStatePath())
	if err != nil {
		return nil, err
	}
	defer zeroize(wrapped)

	key, err := k.Unprotect(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: unprotect failed for %s: %v", ErrKeyUnavailable, p.Channel, err)
	}
	if len(key) != 32 {
		zeroize(key)
		return nil, fmt.Errorf("%w: unwrapped key is %d bytes, want 32", ErrKeyUnavailable, len(key))
	}
	return key, nil
}

// ReadWrappedKey extracts the protected key blob from a "Local State" file,
// with the textual scheme prefix already stripped.
func ReadWrappedKey(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("local state missing: %w", profile.ErrStorageUnavailable)
		}
		return nil, fmt.Errorf("%w: failed to read local state: %v", ErrMalformedState, err)
	}
	return parseWrappedKey(content)
}

func parseWrappedKey(content []byte) ([]byte, error) {
	if !gjson.ValidBytes(content) {
		return nil, fmt.Errorf("%w: local state is not valid JSON", ErrMalformedState)
	}
	field := gjson.GetBytes(content, encryptedKeyPath)
	if field.Type != gjson.String {
		return nil, fmt.Errorf("%w: %s not found", ErrMalformedState, encryptedKeyPath)
	}

	raw, err := base64.StdEncoding.DecodeString(field.Str)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %v", ErrMalformedState, encryptedKeyPath, err)
	}
	if !bytes.HasPrefix(raw, []byte(dpapiPrefix)) {
		return nil, fmt.Errorf("%w: encrypted key has no %s prefix", ErrMalformedState, dpapiPrefix)
	}
	return raw[len(dpapiPrefix):], nil
}
