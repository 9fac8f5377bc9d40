package keystore

import "runtime"

// zeroize overwrites a byte slice with zeros. Used for wrapped key blobs,
// storage passwords and intermediate derived keys once they are consumed.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
