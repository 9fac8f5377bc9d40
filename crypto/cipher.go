package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"unicode/utf8"
)

const (
	gcmNonceSize = 12
	gcmTagSize   = 16
	cbcKeySize   = 16
)

// cbcIV is the fixed IV of the keychain-backed scheme: sixteen spaces.
var cbcIV = []byte("                ")

// Cipher decrypts one record into credential text.
type Cipher interface {
	Decrypt(rec Record, key []byte) (string, error)
}

// GCMCipher decrypts records laid out as
// [version:3][nonce:12][ciphertext+tag] with AES-256-GCM.
type GCMCipher struct{}

// Decrypt implements Cipher.
func (GCMCipher) Decrypt(rec Record, key []byte) (string, error) {
	body, err := rec.body()
	if err != nil {
		return "", err
	}
	if len(body) < gcmNonceSize+gcmTagSize {
		return "", fmt.Errorf("%w: record body is %d bytes", ErrDecryptionFailed, len(body))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create cipher: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create GCM: %v", ErrDecryptionFailed, err)
	}

	nonce := body[:gcmNonceSize]
	plaintext, err := gcm.Open(nil, nonce, body[gcmNonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return credentialText(plaintext)
}

// CBCCipher decrypts records laid out as [version:3][ciphertext] with
// AES-128-CBC, a fixed IV and PKCS#7 padding. Only the first 16 bytes of the
// key are used.
type CBCCipher struct{}

// Decrypt implements Cipher.
func (CBCCipher) Decrypt(rec Record, key []byte) (string, error) {
	body, err := rec.body()
	if err != nil {
		return "", err
	}
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is %d bytes", ErrDecryptionFailed, len(body))
	}
	if len(key) < cbcKeySize {
		return "", fmt.Errorf("%w: key is %d bytes", ErrDecryptionFailed, len(key))
	}

	block, err := aes.NewCipher(key[:cbcKeySize])
	if err != nil {
		return "", fmt.Errorf("%w: failed to create cipher: %v", ErrDecryptionFailed, err)
	}

	buf := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, cbcIV).CryptBlocks(buf, body)
	plaintext, err := unpadPKCS7(buf, aes.BlockSize)
	if err != nil {
		zeroize(buf)
		return "", err
	}
	return credentialText(plaintext)
}

// unpadPKCS7 strips and validates PKCS#7 padding.
func unpadPKCS7(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("%w: padded length %d", ErrDecryptionFailed, len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
		}
	}
	return b[:len(b)-n], nil
}

// credentialText converts plaintext to a string and wipes the buffer. Invalid
// UTF-8 is treated as a decryption failure.
func credentialText(plaintext []byte) (string, error) {
	defer zeroize(plaintext)
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}
