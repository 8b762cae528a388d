package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// RecordStore persists recovery configs and requests as JSON documents.
// Each document is passed through the sealer with its storage key as associated data,
// so a sealed record cannot be moved to another wallet's key.
type RecordStore struct {
	backend interfaces.StorageBackend
	sealer  interfaces.Sealer
	log     *slog.Logger
}

// NewRecordStore wraps backend. A nil sealer stores records in the clear.
func NewRecordStore(backend interfaces.StorageBackend, sealer interfaces.Sealer, log *slog.Logger) *RecordStore {
	return &RecordStore{
		backend: backend,
		sealer:  sealer,
		log:     log,
	}
}

// Configs returns the ConfigStore view of the record store.
func (s *RecordStore) Configs() interfaces.ConfigStore {
	return configStore{s}
}

// Requests returns the RequestStore view of the record store.
func (s *RecordStore) Requests() interfaces.RequestStore {
	return requestStore{s}
}

// load reads and decodes the record under key into v. It reports false if the key is absent.
func (s *RecordStore) load(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read record %s: %w", key, err)
	}

	if s.sealer != nil {
		data, err = s.sealer.Open(data, []byte(key))
		if err != nil {
			return false, fmt.Errorf("failed to open record %s: %w", key, err)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return true, nil
}

func (s *RecordStore) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}

	if s.sealer != nil {
		data, err = s.sealer.Seal(data, []byte(key))
		if err != nil {
			return fmt.Errorf("failed to seal record %s: %w", key, err)
		}
	}

	if err := s.backend.Put(ctx, key, data); err != nil {
		s.log.Error("Failed to persist record", slog.String("key", key), "err", err)
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	return nil
}

type configStore struct{ *RecordStore }

func (s configStore) Get(ctx context.Context, wallet common.Address) (*interfaces.RecoveryConfig, error) {
	var config interfaces.RecoveryConfig
	found, err := s.load(ctx, interfaces.ConfigNamespace.Key(interfaces.AddressKey(wallet)), &config)
	if err != nil || !found {
		return nil, err
	}
	return &config, nil
}

func (s configStore) Put(ctx context.Context, wallet common.Address, config *interfaces.RecoveryConfig) error {
	return s.save(ctx, interfaces.ConfigNamespace.Key(interfaces.AddressKey(wallet)), config)
}

type requestStore struct{ *RecordStore }

func (s requestStore) Get(ctx context.Context, wallet common.Address) (*interfaces.RecoveryRequest, error) {
	var request interfaces.RecoveryRequest
	found, err := s.load(ctx, interfaces.RequestNamespace.Key(interfaces.AddressKey(wallet)), &request)
	if err != nil || !found {
		return nil, err
	}
	return &request, nil
}

func (s requestStore) Put(ctx context.Context, wallet common.Address, request *interfaces.RecoveryRequest) error {
	return s.save(ctx, interfaces.RequestNamespace.Key(interfaces.AddressKey(wallet)), request)
}
