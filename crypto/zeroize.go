package crypto

import "runtime"

// zeroize overwrites decrypted plaintext once it has been copied into a
// credential string or rejected.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b) // Prevent dead code elimination
}
