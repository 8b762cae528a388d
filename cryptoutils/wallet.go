package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/argon2"
)

// DeriveWallet validates a raw secp256k1 private key and returns its address.
func DeriveWallet(key []byte) (common.Address, error) {
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid wallet key: %w", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	priv.D.SetInt64(0)
	return addr, nil
}

const (
	passwordSaltSize = 16
	gcmNonceSize     = 12
)

// ErrDecryptionFailed is returned when a password envelope cannot be opened,
// either because the password is wrong or the data was tampered with.
var ErrDecryptionFailed = errors.New("decryption failed")

// passwordKey derives an AES-256 key with Argon2id.
// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
func passwordKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
}

// EncryptWithPassword seals data under a password.
// Format: [salt (16 bytes)][nonce (12 bytes)][ciphertext]
func EncryptWithPassword(password string, data []byte) ([]byte, error) {
	salt := make([]byte, passwordSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := passwordKey(password, salt)
	defer WipeBytes(key)

	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	result := make([]byte, 0, passwordSaltSize+gcmNonceSize+len(data)+aesGCM.Overhead())
	result = append(result, salt...)
	result = append(result, nonce...)
	return aesGCM.Seal(result, nonce, data, nil), nil
}

// DecryptWithPassword opens an envelope produced by EncryptWithPassword.
func DecryptWithPassword(password string, envelope []byte) ([]byte, error) {
	if len(envelope) < passwordSaltSize+gcmNonceSize {
		return nil, errors.New("encrypted data too short")
	}

	salt := envelope[:passwordSaltSize]
	nonce := envelope[passwordSaltSize : passwordSaltSize+gcmNonceSize]
	ciphertext := envelope[passwordSaltSize+gcmNonceSize:]

	key := passwordKey(password, salt)
	defer WipeBytes(key)

	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
