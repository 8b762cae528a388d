package kms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

// OperatorKey is one entry of an operators file.
type OperatorKey struct {
	ID     string `json:"id"`
	PubKey string `json:"pubkey"`
}

// LoadOperatorKeys reads {"operators":[{"id":..., "pubkey":"<PEM>"}]} and returns the
// PEM keys in file order. Share i produced by NewShamirSealer belongs to operator i.
func LoadOperatorKeys(r io.Reader) ([]OperatorKey, error) {
	var data struct {
		Operators []OperatorKey `json:"operators"`
	}
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode operator keys JSON: %w", err)
	}
	if len(data.Operators) == 0 {
		return nil, errors.New("no operators configured")
	}

	for _, op := range data.Operators {
		if _, err := ParseOperatorPubKey([]byte(op.PubKey)); err != nil {
			return nil, fmt.Errorf("operator %s: %w", op.ID, err)
		}
	}
	return data.Operators, nil
}

// PubKeys returns the PEM bytes of every operator.
func PubKeys(ops []OperatorKey) [][]byte {
	out := make([][]byte, len(ops))
	for i, op := range ops {
		out[i] = []byte(op.PubKey)
	}
	return out
}

// GenerateOperatorKeyPair creates a P-256 key pair for an operator and returns
// the private and public keys as PEM.
func GenerateOperatorKeyPair() (privPEM, pubPEM []byte, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	privPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privateKeyBytes})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyBytes})
	return privPEM, pubPEM, nil
}

// ParseOperatorPrivateKey parses an EC PRIVATE KEY PEM block.
func ParseOperatorPrivateKey(privateKeyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block containing private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA private key: %w", err)
	}
	return privateKey, nil
}

// SharesFile is the output of a sealing key ceremony, handed to every operator.
type SharesFile struct {
	Threshold int             `json:"threshold"`
	Shares    []OperatorShare `json:"shares"`
}

// ShareFor returns the share encrypted for the operator holding pubKeyPEM.
func (f *SharesFile) ShareFor(pubKeyPEM []byte) (*OperatorShare, error) {
	fp := Fingerprint(pubKeyPEM)
	for i := range f.Shares {
		if f.Shares[i].Fingerprint == fp {
			return &f.Shares[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no share for operator %s", ErrUnknownOperator, fp)
}
