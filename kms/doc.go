// Package kms seals recovery records at rest.
//
// ShamirSealer holds a 32-byte AES-256 sealing key that is never written to
// storage. At initialization the key is split with Shamir's Secret Sharing
// among registered operators; each share is ECIES-encrypted to its operator's
// public key. After a restart the sealer is locked until a threshold of
// operators submit their decrypted shares, each signed with the operator's
// ECDSA key. The reconstructed key then stays in memory only.
//
//	sealer, err := kms.NewShamirSealerRecovery(kms.SealerConfig{
//	    Threshold:       2,
//	    OperatorPubKeys: pems,
//	})
//	...
//	err = sealer.SubmitShare(share, signature, operatorPEM)
//	...
//	ciphertext, err := sealer.Seal(record, []byte(key))
//
// NoopSealer passes records through unchanged and is used when no operators
// are configured.
package kms
