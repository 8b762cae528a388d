package interfaces

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidCredentials is returned by a KeyMaterialProvider when the password does not
// unlock the requested wallet key.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrWalletExists is returned when key material is stored under a wallet ID that is already taken.
var ErrWalletExists = errors.New("wallet id already in use")

// KeyMaterialProvider gives access to wallet private keys held outside the recovery core.
type KeyMaterialProvider interface {
	// PrivateKeyBytes unlocks the private key of walletID with password.
	// Returns ErrInvalidCredentials on a bad password and ErrContentNotFound for unknown wallets.
	PrivateKeyBytes(ctx context.Context, walletID string, password string) ([]byte, error)

	// StoreRecovered saves a reconstructed key under walletID protected by password.
	// Returns ErrWalletExists if walletID already holds a key.
	StoreRecovered(ctx context.Context, walletID string, key []byte, password string) error
}

// ShareTransport delivers opaque payloads and events to guardians.
type ShareTransport interface {
	// Deliver queues a notification for the guardian.
	Deliver(ctx context.Context, guardian common.Address, payload []byte, eventType EventType, data map[string]string) error

	// FetchPending returns and clears the guardian's pending notifications.
	FetchPending(ctx context.Context, guardian common.Address) ([]Notification, error)
}

// SignatureVerifier checks that signature over message was produced by address.
type SignatureVerifier interface {
	Verify(address common.Address, message []byte, signature []byte) bool
}

// ConfigStore persists one RecoveryConfig per wallet.
type ConfigStore interface {
	// Get returns nil, nil when the wallet has no configuration.
	Get(ctx context.Context, wallet common.Address) (*RecoveryConfig, error)
	Put(ctx context.Context, wallet common.Address, config *RecoveryConfig) error
}

// RequestStore persists the latest RecoveryRequest per wallet.
type RequestStore interface {
	// Get returns nil, nil when the wallet has no request.
	Get(ctx context.Context, wallet common.Address) (*RecoveryRequest, error)
	Put(ctx context.Context, wallet common.Address, request *RecoveryRequest) error
}
