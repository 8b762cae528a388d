package cryptoutils

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PersonalSignVerifier verifies EIP-191 personal_sign signatures.
type PersonalSignVerifier struct{}

// Verify reports whether signature over message was produced by address.
// Both 0/1 and 27/28 recovery ids are accepted.
func (PersonalSignVerifier) Verify(address common.Address, message []byte, signature []byte) bool {
	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return false
	}
	return signer == address
}

// RecoverSigner returns the address that produced a personal_sign signature.
func RecoverSigner(message []byte, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubkey, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// SignMessage produces a personal_sign signature with a 27/28 recovery id,
// the form returned by wallets.
func SignMessage(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
