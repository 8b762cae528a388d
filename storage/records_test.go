package storage

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prefixSealer tags records with their key so tests can see the associated data being applied.
type prefixSealer struct{}

func (prefixSealer) Seal(plaintext, ad []byte) ([]byte, error) {
	return append(append(append([]byte(nil), ad...), '|'), plaintext...), nil
}

func (prefixSealer) Open(ciphertext, ad []byte) ([]byte, error) {
	prefix := append(append([]byte(nil), ad...), '|')
	if !bytes.HasPrefix(ciphertext, prefix) {
		return nil, errors.New("associated data mismatch")
	}
	return ciphertext[len(prefix):], nil
}

func (prefixSealer) IsUnlocked() bool { return true }

func TestRecordStore_Configs(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewRecordStore(backend, nil, testLogger())
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000AA")

	config, err := store.Configs().Get(ctx, wallet)
	require.NoError(t, err)
	assert.Nil(t, config)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := &interfaces.RecoveryConfig{
		WalletID:      "w1",
		WalletAddress: wallet,
		Threshold:     2,
		Status:        interfaces.StatusNormal,
		CreatedAt:     now,
		Guardians: []interfaces.GuardianConfig{
			{Address: common.HexToAddress("0x01"), ShareIndex: 1, Status: interfaces.GuardianPending, AddedAt: now},
			{Address: common.HexToAddress("0x02"), ShareIndex: 2, Status: interfaces.GuardianAccepted, AddedAt: now},
		},
		InactivityPeriod:  365 * 24 * time.Hour,
		LastActivityCheck: now,
	}
	require.NoError(t, store.Configs().Put(ctx, wallet, in))

	out, err := store.Configs().Get(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// keys are lower-case so checksummed and plain addresses agree
	_, err = backend.Get(ctx, "config/0x00000000000000000000000000000000000000aa")
	assert.NoError(t, err)
}

func TestRecordStore_RequestsSealed(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewRecordStore(backend, prefixSealer{}, testLogger())
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	in := &interfaces.RecoveryRequest{
		ID:              "req-1",
		Kind:            interfaces.KindRecovery,
		WalletAddress:   wallet,
		Status:          interfaces.StatusWaitingGuardians,
		InitiatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		TimelockEnds:    time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Approvals:       []common.Address{common.HexToAddress("0x01")},
		SubmittedShares: []interfaces.SecretShare{{Index: 1, Value: big.NewInt(42)}},
	}
	require.NoError(t, store.Requests().Put(ctx, wallet, in))

	raw, err := backend.Get(ctx, interfaces.RequestNamespace.Key(interfaces.AddressKey(wallet)))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("request/0x")))

	out, err := store.Requests().Get(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Approvals, out.Approvals)
	require.Len(t, out.SubmittedShares, 1)
	assert.Equal(t, 0, out.SubmittedShares[0].Value.Cmp(big.NewInt(42)))

	// a record copied under another wallet's key fails to open
	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	require.NoError(t, backend.Put(ctx, interfaces.RequestNamespace.Key(interfaces.AddressKey(other)), raw))
	_, err = store.Requests().Get(ctx, other)
	assert.Error(t, err)
}

func TestRecordStore_BackendErrors(t *testing.T) {
	backend := &MockStorageBackend{name: "broken"}
	backend.On("Get", context.Background(), "config/0x00000000000000000000000000000000000000aa").Return(nil, interfaces.ErrBackendUnavailable)

	store := NewRecordStore(backend, nil, testLogger())
	_, err := store.Configs().Get(context.Background(), common.HexToAddress("0xaa"))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}
