// Package keystore holds wallet private keys encrypted under the owner's password.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// Keystore implements interfaces.KeyMaterialProvider on a storage backend.
// Each wallet ID maps to one Argon2id/AES-GCM envelope under keystore/<walletID>.
// An envelope is never overwritten without its current password.
type Keystore struct {
	mu      sync.Mutex
	backend interfaces.StorageBackend
	log     *slog.Logger
}

// NewKeystore creates a keystore persisting envelopes in backend.
func NewKeystore(backend interfaces.StorageBackend, log *slog.Logger) *Keystore {
	return &Keystore{backend: backend, log: log}
}

// Import encrypts key under password and stores it for a new walletID.
// The key must be a valid secp256k1 private key. Returns interfaces.ErrWalletExists
// if walletID already holds a key.
func (k *Keystore) Import(ctx context.Context, walletID string, key []byte, password string) error {
	if walletID == "" {
		return errors.New("wallet id is required")
	}
	if password == "" {
		return errors.New("password is required")
	}
	addr, err := cryptoutils.DeriveWallet(key)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	_, err = k.backend.Get(ctx, interfaces.KeystoreNamespace.Key(walletID))
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", interfaces.ErrWalletExists, walletID)
	case !errors.Is(err, interfaces.ErrContentNotFound):
		return fmt.Errorf("failed to check wallet key: %w", err)
	}

	if err := k.store(ctx, walletID, key, password); err != nil {
		return err
	}

	k.log.Info("Stored wallet key",
		slog.String("wallet_id", walletID),
		slog.String("address", addr.Hex()))
	return nil
}

// ChangePassword re-encrypts the key of walletID. The current password must unlock it.
func (k *Keystore) ChangePassword(ctx context.Context, walletID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return errors.New("password is required")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	key, err := k.PrivateKeyBytes(ctx, walletID, oldPassword)
	if err != nil {
		return err
	}
	defer cryptoutils.WipeBytes(key)

	if err := k.store(ctx, walletID, key, newPassword); err != nil {
		return err
	}
	k.log.Info("Changed wallet password", slog.String("wallet_id", walletID))
	return nil
}

func (k *Keystore) store(ctx context.Context, walletID string, key []byte, password string) error {
	envelope, err := cryptoutils.EncryptWithPassword(password, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt wallet key: %w", err)
	}
	if err := k.backend.Put(ctx, interfaces.KeystoreNamespace.Key(walletID), envelope); err != nil {
		return fmt.Errorf("failed to store wallet key: %w", err)
	}
	return nil
}

// PrivateKeyBytes unlocks the key of walletID. The caller owns the returned slice and should wipe it.
func (k *Keystore) PrivateKeyBytes(ctx context.Context, walletID string, password string) ([]byte, error) {
	envelope, err := k.backend.Get(ctx, interfaces.KeystoreNamespace.Key(walletID))
	if err != nil {
		return nil, err
	}

	key, err := cryptoutils.DecryptWithPassword(password, envelope)
	if errors.Is(err, cryptoutils.ErrDecryptionFailed) {
		return nil, interfaces.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt wallet key: %w", err)
	}
	return key, nil
}

// StoreRecovered saves a reconstructed key under the new credential. Like Import it
// refuses a wallet ID that is already in use.
func (k *Keystore) StoreRecovered(ctx context.Context, walletID string, key []byte, password string) error {
	return k.Import(ctx, walletID, key, password)
}
