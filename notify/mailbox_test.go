package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport() (*MailboxTransport, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewMailboxTransport(storage.NewMemoryBackend(), clk, slog.New(slog.NewTextHandler(io.Discard, nil))), clk
}

func TestMailboxTransport_DeliverAndFetch(t *testing.T) {
	ctx := context.Background()
	transport, clk := newTestTransport()
	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	empty, err := transport.FetchPending(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, transport.Deliver(ctx, alice, []byte("sealed-share"), interfaces.EventSetup, map[string]string{"wallet": "0xaa"}))
	clk.Add(time.Minute)
	require.NoError(t, transport.Deliver(ctx, alice, nil, interfaces.EventRecoveryInitiated, nil))
	require.NoError(t, transport.Deliver(ctx, bob, nil, interfaces.EventRecoveryInitiated, nil))

	pending, err := transport.FetchPending(ctx, alice)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, interfaces.EventSetup, pending[0].Type)
	assert.Equal(t, []byte("sealed-share"), pending[0].Payload)
	assert.Equal(t, "0xaa", pending[0].Data["wallet"])
	assert.Equal(t, interfaces.EventRecoveryInitiated, pending[1].Type)
	assert.True(t, pending[1].Timestamp.After(pending[0].Timestamp))
	assert.NotEqual(t, pending[0].ID, pending[1].ID)

	// mailbox is drained
	pending, err = transport.FetchPending(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = transport.FetchPending(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMailboxTransport_ConcurrentDeliver(t *testing.T) {
	ctx := context.Background()
	transport, _ := newTestTransport()
	guardian := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, transport.Deliver(ctx, guardian, nil, interfaces.EventRecoveryApproved, nil))
		}()
	}
	wg.Wait()

	pending, err := transport.FetchPending(ctx, guardian)
	require.NoError(t, err)
	assert.Len(t, pending, 20)
}
