package kms

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// SealingKeySize is the size of the AES-256 sealing key.
const SealingKeySize = 32

var (
	ErrAlreadyUnlocked    = errors.New("sealer is already unlocked")
	ErrUnknownOperator    = errors.New("unregistered operator public key")
	ErrInvalidSignature   = errors.New("invalid share signature")
	ErrInvalidCiphertext  = errors.New("sealed record is malformed or was tampered with")
	ErrInvalidSealerSetup = errors.New("invalid sealer configuration")
)

// SealerConfig contains configuration parameters for a ShamirSealer.
type SealerConfig struct {
	// Threshold is the minimum number of operator shares required to unlock
	Threshold int
	// OperatorPubKeys are the PEM-encoded ECDSA public keys of the operators
	OperatorPubKeys [][]byte
}

// operator is a registered share holder.
type operator struct {
	pem    []byte
	pubkey *ecdsa.PublicKey
}

// ShamirSealer implements interfaces.Sealer with an operator-unlocked sealing key.
type ShamirSealer struct {
	mu             sync.RWMutex
	sealingKey     []byte
	aead           cipher.AEAD
	threshold      int
	operators      map[string]operator // fingerprint -> operator
	receivedShares map[string][]byte   // fingerprint -> share
	unlocked       chan struct{}
}

// SealStatus describes the unlock progress.
type SealStatus struct {
	Unlocked  bool `json:"unlocked"`
	Threshold int  `json:"threshold"`
	Operators int  `json:"operators"`
	Received  int  `json:"received"`
}

// OperatorShare is a sealing key share encrypted for one operator.
type OperatorShare struct {
	Fingerprint    string `json:"fingerprint"`
	EncryptedShare []byte `json:"encrypted_share"`
}

// NewShamirSealer creates an unlocked sealer from a fresh sealing key and returns
// one encrypted share per operator, in the order the operators were configured.
func NewShamirSealer(sealingKey []byte, config SealerConfig) (*ShamirSealer, []OperatorShare, error) {
	if len(sealingKey) != SealingKeySize {
		return nil, nil, fmt.Errorf("%w: sealing key must be %d bytes", ErrInvalidSealerSetup, SealingKeySize)
	}

	s, err := newSealer(config)
	if err != nil {
		return nil, nil, err
	}

	shares, err := shamir.Split(sealingKey, len(config.OperatorPubKeys), config.Threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split sealing key: %w", err)
	}

	out := make([]OperatorShare, 0, len(shares))
	for i, pemBytes := range config.OperatorPubKeys {
		fp := Fingerprint(pemBytes)
		encrypted, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(s.operators[fp].pubkey), shares[i], nil, nil)
		cryptoutils.WipeBytes(shares[i])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encrypt share for operator %s: %w", fp, err)
		}
		out = append(out, OperatorShare{Fingerprint: fp, EncryptedShare: encrypted})
	}

	if err := s.unlock(append([]byte(nil), sealingKey...)); err != nil {
		return nil, nil, err
	}
	return s, out, nil
}

// NewShamirSealerRecovery creates a locked sealer that waits for operator shares.
func NewShamirSealerRecovery(config SealerConfig) (*ShamirSealer, error) {
	return newSealer(config)
}

// GenerateSealingKey returns a fresh random sealing key.
func GenerateSealingKey() ([]byte, error) {
	key := make([]byte, SealingKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate sealing key: %w", err)
	}
	return key, nil
}

func newSealer(config SealerConfig) (*ShamirSealer, error) {
	if config.Threshold < 2 {
		return nil, fmt.Errorf("%w: threshold must be at least 2", ErrInvalidSealerSetup)
	}
	if len(config.OperatorPubKeys) < config.Threshold {
		return nil, fmt.Errorf("%w: fewer operators than threshold", ErrInvalidSealerSetup)
	}
	if len(config.OperatorPubKeys) > 255 {
		return nil, fmt.Errorf("%w: at most 255 operators", ErrInvalidSealerSetup)
	}

	s := &ShamirSealer{
		threshold:      config.Threshold,
		operators:      make(map[string]operator),
		receivedShares: make(map[string][]byte),
		unlocked:       make(chan struct{}),
	}

	for _, pemBytes := range config.OperatorPubKeys {
		pubkey, err := ParseOperatorPubKey(pemBytes)
		if err != nil {
			return nil, err
		}
		fp := Fingerprint(pemBytes)
		if _, dup := s.operators[fp]; dup {
			return nil, fmt.Errorf("%w: duplicate operator key %s", ErrInvalidSealerSetup, fp)
		}
		s.operators[fp] = operator{pem: pemBytes, pubkey: pubkey}
	}

	return s, nil
}

// SubmitShare records an operator's share. The signature is an ASN.1 ECDSA
// signature over the SHA-256 of the share. Once the threshold is reached the
// sealing key is reconstructed and the received shares are wiped.
func (s *ShamirSealer) SubmitShare(share, signature, operatorPubKeyPEM []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aead != nil {
		return ErrAlreadyUnlocked
	}

	fp := Fingerprint(operatorPubKeyPEM)
	op, found := s.operators[fp]
	if !found || !bytes.Equal(op.pem, operatorPubKeyPEM) {
		return ErrUnknownOperator
	}

	digest := sha256.Sum256(share)
	if !ecdsa.VerifyASN1(op.pubkey, digest[:], signature) {
		return ErrInvalidSignature
	}

	if prev, ok := s.receivedShares[fp]; ok {
		cryptoutils.WipeBytes(prev)
	}
	s.receivedShares[fp] = append([]byte(nil), share...)

	return s.tryReconstruct()
}

// tryReconstruct combines shares once enough have been received. Must be called with mu held.
func (s *ShamirSealer) tryReconstruct() error {
	if len(s.receivedShares) < s.threshold {
		return nil
	}

	shares := make([][]byte, 0, len(s.receivedShares))
	for _, share := range s.receivedShares {
		shares = append(shares, share)
	}

	key, err := shamir.Combine(shares)
	for fp, share := range s.receivedShares {
		cryptoutils.WipeBytes(share)
		delete(s.receivedShares, fp)
	}
	if err != nil {
		return fmt.Errorf("failed to reconstruct sealing key: %w", err)
	}
	if len(key) != SealingKeySize {
		cryptoutils.WipeBytes(key)
		return fmt.Errorf("%w: reconstructed key has wrong size", ErrInvalidSealerSetup)
	}

	return s.unlockLocked(key)
}

func (s *ShamirSealer) unlock(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlockLocked(key)
}

func (s *ShamirSealer) unlockLocked(key []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}
	s.sealingKey = key
	s.aead = aead
	close(s.unlocked)
	return nil
}

// IsUnlocked reports whether the sealing key has been reconstructed.
func (s *ShamirSealer) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aead != nil
}

// WaitUnlocked blocks until the sealer is unlocked or ctx is done.
func (s *ShamirSealer) WaitUnlocked(ctx context.Context) error {
	select {
	case <-s.unlocked:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the unlock progress.
func (s *ShamirSealer) Status() SealStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SealStatus{
		Unlocked:  s.aead != nil,
		Threshold: s.threshold,
		Operators: len(s.operators),
		Received:  len(s.receivedShares),
	}
}

// Operators returns the registered operator fingerprints in sorted order.
func (s *ShamirSealer) Operators() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.operators))
	for fp := range s.operators {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

// Seal encrypts plaintext with AES-256-GCM.
// Format: [nonce (12 bytes)][ciphertext]
func (s *ShamirSealer) Seal(plaintext, associatedData []byte) ([]byte, error) {
	s.mu.RLock()
	aead := s.aead
	s.mu.RUnlock()
	if aead == nil {
		return nil, interfaces.ErrSealed
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Open decrypts a record produced by Seal.
func (s *ShamirSealer) Open(ciphertext, associatedData []byte) ([]byte, error) {
	s.mu.RLock()
	aead := s.aead
	s.mu.RUnlock()
	if aead == nil {
		return nil, interfaces.ErrSealed
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrInvalidCiphertext
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, associatedData)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// Fingerprint identifies an operator by the SHA-256 of its PEM public key.
func Fingerprint(pubKeyPEM []byte) string {
	sum := sha256.Sum256(pubKeyPEM)
	return hex.EncodeToString(sum[:])
}

// ParseOperatorPubKey decodes a PEM PKIX ECDSA public key.
func ParseOperatorPubKey(pubKeyPEM []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pubKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode operator public key PEM", ErrInvalidSealerSetup)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse operator public key: %v", ErrInvalidSealerSetup, err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: operator public key is not ECDSA", ErrInvalidSealerSetup)
	}
	return ecdsaPub, nil
}

// SignShare produces the signature an operator submits alongside its share.
func SignShare(share []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(share)
	return ecdsa.SignASN1(rand.Reader, privateKey, digest[:])
}

// DecryptShare opens an OperatorShare with the operator's private key.
func DecryptShare(encryptedShare []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	share, err := ecies.ImportECDSA(privateKey).Decrypt(encryptedShare, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt share: %w", err)
	}
	return share, nil
}

// NoopSealer stores records unencrypted.
type NoopSealer struct{}

func (NoopSealer) Seal(plaintext, associatedData []byte) ([]byte, error) {
	return plaintext, nil
}

func (NoopSealer) Open(ciphertext, associatedData []byte) ([]byte, error) {
	return ciphertext, nil
}

func (NoopSealer) IsUnlocked() bool {
	return true
}
