package interfaces

import "errors"

// ErrSealed is returned by a Sealer whose sealing key has not been reconstructed yet.
var ErrSealed = errors.New("sealer is locked")

// Sealer encrypts records before they reach a storage backend.
type Sealer interface {
	// Seal encrypts plaintext. associatedData binds the ciphertext to its storage key.
	Seal(plaintext, associatedData []byte) ([]byte, error)

	// Open reverses Seal.
	Open(ciphertext, associatedData []byte) ([]byte, error)

	// IsUnlocked reports whether Seal and Open can be used.
	IsUnlocked() bool
}
