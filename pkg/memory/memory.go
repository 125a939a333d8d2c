// Package memory holds helpers for buffers that carry key material or
// decrypted payloads.
package memory

import "runtime"

// SecureZeroBytes overwrites b in place. KeepAlive stops the compiler from
// treating the writes as dead stores.
func SecureZeroBytes(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
