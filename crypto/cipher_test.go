package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

const vectorPlaintext = "MTIzNDU2Nzg5MDEyMzQ1Njc4.GAbCdE.fake-session-credential-for-tests"

// AES-256-GCM, key 00..1f, nonce 000102030405060708090a0b.
const (
	gcmVector        = "djEwAAECAwQFBgcICQoLClafYYuhlynDO/C+/K09FM6s1gW+ETxIFiCk514NRZxnccWZgrJ36wfNEIOl5FpdijwO+TO3z/dZ+Fg0bIaGmoNlIO50gYtUWjnYIaPk92QE"
	gcmVectorNotUTF8 = "djEwAAECAwQFBgcICQoLuPwrHSD4sRqLndmFy64h9n9lRg=="
)

// AES-128-CBC, key PBKDF2-SHA1("peanuts", "saltysalt", 1003, 16), IV of spaces.
const (
	cbcVector        = "djEwjkHdmghwxnMH9HXOkMWcYh5RDh1rMkx4wJPCYAAzN9mUPUHrTgnw66mMHzJDfiT9pI8I5xrB4Fq0D6YpSF3U7EcaiKQYkTgpS+ohPM2cV+c="
	cbcVectorNotUTF8 = "djEwJUm6f+vQh5oLduSqx1GIoA=="
)

func gcmKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func cbcKey(t *testing.T) []byte {
	t.Helper()
	key, err := hex.DecodeString("d9a09d499b4e1b7461f28e67972c6dbd00000000000000000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func mustRecord(t *testing.T, b64 string) Record {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("bad test vector: %v", err)
	}
	return Record(raw)
}

// withTag returns rec with its version tag replaced.
func withTag(rec Record, tag string) Record {
	out := append([]byte(tag), rec[versionTagLen:]...)
	return Record(out)
}

func TestRecordVersion(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		want    string
		wantErr bool
	}{
		{"v10", Record("v10abc"), VersionV10, false},
		{"v11", Record("v11abc"), VersionV11, false},
		{"v12", Record("v12abc"), "", true},
		{"unencrypted", Record("MTIz.abc"), "", true},
		{"too short", Record("v1"), "", true},
		{"empty", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rec.Version()
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("Version() error = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Version() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestGCMCipherVector(t *testing.T) {
	rec := mustRecord(t, gcmVector)

	got, err := GCMCipher{}.Decrypt(rec, gcmKey())
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != vectorPlaintext {
		t.Errorf("Decrypt() = %q, want %q", got, vectorPlaintext)
	}

	got, err = GCMCipher{}.Decrypt(withTag(rec, VersionV11), gcmKey())
	if err != nil || got != vectorPlaintext {
		t.Errorf("Decrypt(v11) = %q, %v, want plaintext", got, err)
	}
}

func TestGCMCipherRejects(t *testing.T) {
	rec := mustRecord(t, gcmVector)
	wrongKey := bytes.Repeat([]byte{0x01}, 32)

	tests := []struct {
		name    string
		rec     Record
		key     []byte
		wantErr error
	}{
		{
			name:    "tag strip one byte long",
			rec:     append(Record("v10"), rec[4:]...),
			key:     gcmKey(),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "tag strip one byte short",
			rec:     append(Record("v10x"), rec[3:]...),
			key:     gcmKey(),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "nonce one byte short",
			rec:     append(append(Record{}, rec[:14]...), rec[15:]...),
			key:     gcmKey(),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "wrong key",
			rec:     rec,
			key:     wrongKey,
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "key wrong size",
			rec:     rec,
			key:     []byte("short"),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "truncated",
			rec:     rec[:20],
			key:     gcmKey(),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "not utf8",
			rec:     mustRecord(t, gcmVectorNotUTF8),
			key:     gcmKey(),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "unknown version",
			rec:     withTag(rec, "v20"),
			key:     gcmKey(),
			wantErr: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GCMCipher{}.Decrypt(tt.rec, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
			if got != "" {
				t.Errorf("Decrypt() returned partial credential %q", got)
			}
		})
	}
}

func TestCBCCipherVector(t *testing.T) {
	rec := mustRecord(t, cbcVector)

	got, err := CBCCipher{}.Decrypt(rec, cbcKey(t))
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != vectorPlaintext {
		t.Errorf("Decrypt() = %q, want %q", got, vectorPlaintext)
	}

	// The zero-extended half of the key is never consumed.
	key16 := cbcKey(t)[:16]
	if got, err := (CBCCipher{}).Decrypt(rec, key16); err != nil || got != vectorPlaintext {
		t.Errorf("Decrypt(16-byte key) = %q, %v, want plaintext", got, err)
	}
}

func TestCBCCipherRejects(t *testing.T) {
	rec := mustRecord(t, cbcVector)

	tests := []struct {
		name    string
		rec     Record
		key     []byte
		wantErr error
	}{
		{
			name:    "tag strip one byte long",
			rec:     append(Record("v10"), rec[4:]...),
			key:     cbcKey(t),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "tag strip one byte short",
			rec:     append(Record("v10x"), rec[3:]...),
			key:     cbcKey(t),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "wrong key",
			rec:     rec,
			key:     make([]byte, 32),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "key too short",
			rec:     rec,
			key:     []byte("short"),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "empty body",
			rec:     Record("v10"),
			key:     cbcKey(t),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "not utf8",
			rec:     mustRecord(t, cbcVectorNotUTF8),
			key:     cbcKey(t),
			wantErr: ErrDecryptionFailed,
		},
		{
			name:    "unknown version",
			rec:     withTag(rec, "v09"),
			key:     cbcKey(t),
			wantErr: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CBCCipher{}.Decrypt(tt.rec, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
			if got != "" {
				t.Errorf("Decrypt() returned partial credential %q", got)
			}
		})
	}
}

func TestUnpadPKCS7(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    []byte
		wantErr bool
	}{
		{"one byte", append(bytes.Repeat([]byte("a"), 15), 1), bytes.Repeat([]byte("a"), 15), false},
		{"full block", bytes.Repeat([]byte{16}, 16), []byte{}, false},
		{"zero pad", append(bytes.Repeat([]byte("a"), 15), 0), nil, true},
		{"pad too large", append(bytes.Repeat([]byte("a"), 15), 17), nil, true},
		{"inconsistent", append(bytes.Repeat([]byte("a"), 14), 3, 2), nil, true},
		{"not block aligned", []byte{1, 1, 1}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unpadPKCS7(tt.in, 16)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unpadPKCS7() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, tt.want) {
				t.Errorf("unpadPKCS7() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCipherFor(t *testing.T) {
	if c, err := CipherFor("windows"); err != nil || c != (GCMCipher{}) {
		t.Errorf("CipherFor(windows) = %v, %v", c, err)
	}
	if c, err := CipherFor("darwin"); err != nil || c != (CBCCipher{}) {
		t.Errorf("CipherFor(darwin) = %v, %v", c, err)
	}
	if _, err := CipherFor("linux"); err == nil {
		t.Error("CipherFor(linux) error = nil, want error")
	}
}

func TestZeroize(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	zeroize(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("byte at index %d should be 0, got %d", i, b)
		}
	}
	zeroize(nil) // Should not panic
}
