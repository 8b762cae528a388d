package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/ruteri/guardian-recovery/interfaces"
)

var shareContext = []byte("guardian-recovery/share/v1")

// ParsePublicKey accepts an uncompressed (65 byte) or compressed (33 byte) secp256k1 public key.
func ParsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	switch len(raw) {
	case 65:
		return crypto.UnmarshalPubkey(raw)
	case 33:
		return crypto.DecompressPubkey(raw)
	default:
		return nil, fmt.Errorf("invalid public key length %d", len(raw))
	}
}

// PublicKeyAddress returns the Ethereum address controlled by a raw public key.
func PublicKeyAddress(raw []byte) (common.Address, error) {
	pub, err := ParsePublicKey(raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func macContext(wallet common.Address) []byte {
	return append(append([]byte{}, shareContext...), wallet.Bytes()...)
}

// SealShare encrypts share for the holder of guardianPubkey.
func SealShare(guardianPubkey []byte, wallet common.Address, share interfaces.SecretShare) ([]byte, error) {
	pub, err := ParsePublicKey(guardianPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse guardian public key: %w", err)
	}

	plaintext, err := json.Marshal(share)
	if err != nil {
		return nil, fmt.Errorf("failed to encode share: %w", err)
	}
	defer WipeBytes(plaintext)

	payload, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), plaintext, nil, macContext(wallet))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt share: %w", err)
	}
	return payload, nil
}

// OpenShare decrypts a payload produced by SealShare.
func OpenShare(guardianKey *ecdsa.PrivateKey, wallet common.Address, payload []byte) (interfaces.SecretShare, error) {
	if guardianKey == nil {
		return interfaces.SecretShare{}, errors.New("nil guardian key")
	}

	plaintext, err := ecies.ImportECDSA(guardianKey).Decrypt(payload, nil, macContext(wallet))
	if err != nil {
		return interfaces.SecretShare{}, fmt.Errorf("failed to decrypt share: %w", err)
	}
	defer WipeBytes(plaintext)

	var share interfaces.SecretShare
	if err := json.Unmarshal(plaintext, &share); err != nil {
		return interfaces.SecretShare{}, fmt.Errorf("failed to decode share: %w", err)
	}
	return share, nil
}

// ShareCommitment hashes a share together with the wallet it belongs to. It lets the
// service check a submitted share without keeping the share itself.
func ShareCommitment(wallet common.Address, share interfaces.SecretShare) []byte {
	var y []byte
	if share.Value != nil {
		y = common.LeftPadBytes(share.Value.Bytes(), 32)
	}
	index := make([]byte, 8)
	binary.BigEndian.PutUint64(index, uint64(share.Index))
	return crypto.Keccak256(shareContext, wallet.Bytes(), index, y)
}

// WipeBytes zeroes a buffer holding key material.
func WipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
