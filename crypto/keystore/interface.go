package keystore

import (
	"errors"

	"github.com/joncooperworks/sessionharness/profile"
)

var (
	// ErrKeyUnavailable is returned when the OS secret store has no entry for the
	// channel or refuses to release it to the current user.
	ErrKeyUnavailable = errors.New("master key unavailable")
	// ErrMalformedState is returned when the profile's state file cannot be read or parsed.
	ErrMalformedState = errors.New("malformed profile state")
)

// Keystore unwraps a channel's OS-protected secret into a symmetric master key.
//
// Implementations must not cache the returned key; the caller owns it and is
// expected to wipe it once the channel's records have been decrypted.
//
// Platform implementations register themselves through RegisterKeystore and
// are obtained with NewKeystore. Tests in other packages can use
// NewMockKeystore instead.
type Keystore interface {
	// MasterKey returns the key protecting the profile's encrypted records.
	//
	// Errors wrap profile.ErrStorageUnavailable when the profile has no state
	// file, ErrMalformedState when the state cannot be parsed, and
	// ErrKeyUnavailable when the OS refuses to release the secret. The returned
	// key is 32 bytes on every platform.
	MasterKey(p profile.Profile) ([]byte, error)
}
