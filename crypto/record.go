// Package crypto scans Chromium-style log-structured storage for encrypted
// session records and decrypts them with a platform master key.
//
// A record is the base64-decoded run following the storage marker. Its first
// three bytes are a textual version tag ("v10" or "v11"); how the rest splits
// into nonce/IV and ciphertext depends on the platform's cipher, not on the
// record itself.
package crypto

import (
	"errors"
	"fmt"
)

// Version tags accepted on encrypted records.
const (
	VersionV10 = "v10"
	VersionV11 = "v11"
)

const versionTagLen = 3

var (
	// ErrUnsupportedFormat is returned for records with an unknown version tag.
	ErrUnsupportedFormat = errors.New("unsupported record format")
	// ErrDecryptionFailed is returned when authentication, padding or UTF-8
	// validation of the plaintext fails.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Record is one encrypted record candidate: version tag followed by the
// cipher-specific body.
type Record []byte

// Version returns the record's version tag, or ErrUnsupportedFormat when the
// tag is not one of the known generations.
func (r Record) Version() (string, error) {
	if len(r) < versionTagLen {
		return "", fmt.Errorf("%w: record is %d bytes", ErrUnsupportedFormat, len(r))
	}
	tag := string(r[:versionTagLen])
	switch tag {
	case VersionV10, VersionV11:
		return tag, nil
	default:
		return "", fmt.Errorf("%w: version tag %q", ErrUnsupportedFormat, tag)
	}
}

// body returns the bytes after a validated version tag.
func (r Record) body() ([]byte, error) {
	if _, err := r.Version(); err != nil {
		return nil, err
	}
	return r[versionTagLen:], nil
}
