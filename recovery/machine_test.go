package recovery

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/field"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecovery_FullScenario(t *testing.T) {
	f := newFixture(t, 5)
	f.setup(3)

	initiated, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)
	assert.Equal(t, interfaces.KindRecovery, initiated.Kind)
	assert.Equal(t, 3, initiated.RequiredApprovals)
	assert.Equal(t, 5, initiated.GuardianCount)
	assert.Equal(t, testStart.Add(24*time.Hour), initiated.TimelockEnds)
	assert.Equal(t, interfaces.StatusRecoveryInitiated, f.config().Status)

	for i := 0; i < 2; i++ {
		res, err := f.approve(i)
		require.NoError(t, err)
		assert.Equal(t, i+1, res.ApprovalCount)
		assert.False(t, res.CanRecover)
		assert.Equal(t, interfaces.StatusWaitingGuardians, f.request().Status)
	}

	res, err := f.approve(4)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ApprovalCount)
	assert.Equal(t, 3, res.Threshold)
	assert.True(t, res.CanRecover)
	assert.Equal(t, interfaces.StatusRecoveryApproved, f.request().Status)
	assert.Equal(t, interfaces.StatusRecoveryApproved, f.config().Status)

	_, err = f.approve(3)
	assert.ErrorIs(t, err, ErrConflict, "approved requests take no more approvals")

	f.clock.Add(time.Hour)
	_, err = f.complete(f.guardians[0], "new password")
	assert.ErrorIs(t, err, ErrTimelockActive)
	assert.EqualError(t, err, "timelock active: 23 hours remaining")
	wait, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 23*time.Hour, wait)

	f.clock.Add(24 * time.Hour)
	_, err = f.complete(f.guardians[0], "")
	assert.ErrorIs(t, err, ErrValidation)

	completed, err := f.complete(f.guardians[0], "new password")
	require.NoError(t, err)
	assert.Equal(t, initiated.RequestID, completed.RequestID)
	assert.Equal(t, f.wallet, completed.Address)
	assert.Equal(t, "recovered-"+initiated.RequestID, completed.WalletID)

	key, err := f.keys.PrivateKeyBytes(f.ctx, completed.WalletID, "new password")
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSA(f.owner), key)

	request := f.request()
	assert.Equal(t, interfaces.StatusCompleted, request.Status)
	require.NotNil(t, request.CompletedAt)
	assert.Empty(t, request.SubmittedShares, "shares are wiped once the key is rebuilt")
	assert.Equal(t, interfaces.StatusNormal, f.config().Status)

	_, err = f.complete(f.guardians[0], "new password")
	assert.ErrorIs(t, err, ErrConflict)

	events := []interfaces.EventType{}
	for _, n := range f.pending(1) {
		events = append(events, n.Type)
	}
	assert.Equal(t, []interfaces.EventType{
		interfaces.EventSetup,
		interfaces.EventRecoveryInitiated,
		interfaces.EventRecoveryApproved,
		interfaces.EventRecoveryCompleted,
	}, events)
}

func TestApproveRecovery_Rejections(t *testing.T) {
	f := newFixture(t, 4)
	f.setup(3)

	_, err := f.approve(0)
	assert.ErrorIs(t, err, ErrConflict, "no request yet")

	_, err = f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)
	request := f.request()

	t.Run("duplicate approval", func(t *testing.T) {
		_, err := f.approve(0)
		require.NoError(t, err)
		_, err = f.approve(0)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Len(t, f.request().Approvals, 1)
	})

	t.Run("bad signature leaves request untouched", func(t *testing.T) {
		share := f.share(1)
		sig := f.sign(f.guardians[2], ApprovalMessage(f.wallet, request.ID, share))
		_, err := f.svc.ApproveRecovery(f.ctx, f.wallet, f.guardianAddr(1), share, sig)
		assert.ErrorIs(t, err, ErrAuth)
		assert.Len(t, f.request().Approvals, 1)
	})

	t.Run("signature over another share", func(t *testing.T) {
		share := f.share(1)
		signed := interfaces.SecretShare{Index: share.Index, Value: new(big.Int).Add(share.Value, big.NewInt(1))}
		sig := f.sign(f.guardians[1], ApprovalMessage(f.wallet, request.ID, signed))
		_, err := f.svc.ApproveRecovery(f.ctx, f.wallet, f.guardianAddr(1), share, sig)
		assert.ErrorIs(t, err, ErrAuth)
	})

	t.Run("signature for another request", func(t *testing.T) {
		share := f.share(1)
		sig := f.sign(f.guardians[1], ApprovalMessage(f.wallet, "other-request", share))
		_, err := f.svc.ApproveRecovery(f.ctx, f.wallet, f.guardianAddr(1), share, sig)
		assert.ErrorIs(t, err, ErrAuth)
	})

	t.Run("share index of another guardian", func(t *testing.T) {
		share := f.share(2)
		sig := f.sign(f.guardians[1], ApprovalMessage(f.wallet, request.ID, share))
		_, err := f.svc.ApproveRecovery(f.ctx, f.wallet, f.guardianAddr(1), share, sig)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("non guardian", func(t *testing.T) {
		stranger, err := crypto.GenerateKey()
		require.NoError(t, err)
		share := f.share(1)
		sig := f.sign(stranger, ApprovalMessage(f.wallet, request.ID, share))
		_, err = f.svc.ApproveRecovery(f.ctx, f.wallet, crypto.PubkeyToAddress(stranger.PublicKey), share, sig)
		assert.ErrorIs(t, err, ErrAuth)
	})

	assert.Len(t, f.request().Approvals, 1)
	assert.Equal(t, interfaces.StatusWaitingGuardians, f.request().Status)
}

func TestCompleteRecovery_NotApproved(t *testing.T) {
	f := newFixture(t, 3)
	f.setup(2)

	_, err := f.complete(f.guardians[0], "pw")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)
	_, err = f.approve(0)
	require.NoError(t, err)

	f.clock.Add(48 * time.Hour)
	_, err = f.complete(f.guardians[0], "pw")
	assert.ErrorIs(t, err, ErrConflict, "the timelock alone is not enough")
}

func TestCompleteRecovery_OnlyRequestor(t *testing.T) {
	f := newFixture(t, 3)
	f.setup(2)

	_, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)
	request := f.request()
	for i := 0; i < 2; i++ {
		_, err := f.approve(i)
		require.NoError(t, err)
	}
	f.clock.Add(25 * time.Hour)

	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = f.complete(stranger, "attacker")
	assert.ErrorIs(t, err, ErrAuth)

	otherCredential := f.sign(f.guardians[0], CompleteMessage(f.wallet, request.ID, "something else"))
	_, err = f.svc.CompleteRecovery(f.ctx, f.wallet, "attacker", otherCredential)
	assert.ErrorIs(t, err, ErrAuth, "the signature covers the new credential")

	_, err = f.svc.CompleteRecovery(f.ctx, f.wallet, "attacker", nil)
	assert.ErrorIs(t, err, ErrAuth)

	assert.Equal(t, interfaces.StatusRecoveryApproved, f.request().Status)
	assert.Len(t, f.request().SubmittedShares, 2)
	_, err = f.keys.PrivateKeyBytes(f.ctx, "recovered-"+request.ID, "attacker")
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound, "nothing was stored for the stranger")

	completed, err := f.complete(f.guardians[0], "new password")
	require.NoError(t, err)
	key, err := f.keys.PrivateKeyBytes(f.ctx, completed.WalletID, "new password")
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSA(f.owner), key)
}

func TestApproveRecovery_TamperedShare(t *testing.T) {
	f := newFixture(t, 3)
	config := f.setup(2)

	for i, g := range config.Guardians {
		assert.Equal(t, cryptoutils.ShareCommitment(f.wallet, f.share(i)), g.ShareCommitment)
	}

	_, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)
	request := f.request()

	share := f.share(1)
	tampered := interfaces.SecretShare{Index: share.Index, Value: new(big.Int).Add(share.Value, big.NewInt(1))}
	if !field.InRange(tampered.Value) {
		tampered.Value = big.NewInt(0)
	}
	sig := f.sign(f.guardians[1], ApprovalMessage(f.wallet, request.ID, tampered))
	_, err = f.svc.ApproveRecovery(f.ctx, f.wallet, f.guardianAddr(1), tampered, sig)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.request().Approvals)
	assert.Equal(t, interfaces.StatusRecoveryInitiated, f.request().Status)

	// the remaining honest guardians still reach the threshold
	_, err = f.approve(0)
	require.NoError(t, err)
	res, err := f.approve(2)
	require.NoError(t, err)
	assert.True(t, res.CanRecover)

	f.clock.Add(25 * time.Hour)
	completed, err := f.complete(f.guardians[0], "new password")
	require.NoError(t, err)
	key, err := f.keys.PrivateKeyBytes(f.ctx, completed.WalletID, "new password")
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSA(f.owner), key)
}

func TestCancelRecovery(t *testing.T) {
	stages := []struct {
		name      string
		approvals int
	}{
		{"initiated", 0},
		{"waiting guardians", 1},
		{"approved", 2},
	}

	for _, stage := range stages {
		t.Run(stage.name, func(t *testing.T) {
			f := newFixture(t, 3)
			f.setup(2)

			_, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
			require.NoError(t, err)
			for i := 0; i < stage.approvals; i++ {
				_, err := f.approve(i)
				require.NoError(t, err)
			}
			f.clock.Add(time.Hour)

			request := f.request()
			_, err = f.svc.CancelRecovery(f.ctx, f.wallet, f.sign(f.guardians[0], CancelMessage(f.wallet, request.ID)))
			assert.ErrorIs(t, err, ErrAuth, "only the owner can cancel")

			id, err := f.cancel()
			require.NoError(t, err)
			assert.Equal(t, request.ID, id)

			cancelled := f.request()
			assert.Equal(t, interfaces.StatusCancelled, cancelled.Status)
			require.NotNil(t, cancelled.CancelledAt)
			assert.Empty(t, cancelled.SubmittedShares)
			assert.Equal(t, interfaces.StatusNormal, f.config().Status)

			_, err = f.svc.CancelRecovery(f.ctx, f.wallet, f.sign(f.owner, CancelMessage(f.wallet, request.ID)))
			assert.ErrorIs(t, err, ErrConflict)

			f.clock.Add(48 * time.Hour)
			_, err = f.complete(f.guardians[0], "pw")
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestCancelRecovery_AfterCompletion(t *testing.T) {
	f := newFixture(t, 2)
	f.setup(2)

	_, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)
	request := f.request()
	for i := range f.guardians {
		_, err := f.approve(i)
		require.NoError(t, err)
	}
	f.clock.Add(25 * time.Hour)
	_, err = f.complete(f.guardians[0], "pw")
	require.NoError(t, err)

	_, err = f.svc.CancelRecovery(f.ctx, f.wallet, f.sign(f.owner, CancelMessage(f.wallet, request.ID)))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, interfaces.StatusCompleted, f.request().Status)
}

func TestInitiateRecovery_SingleActiveRequest(t *testing.T) {
	f := newFixture(t, 3)

	_, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	assert.ErrorIs(t, err, ErrNotFound, "no guardians configured")

	f.setup(2)

	_, err = f.svc.InitiateRecovery(f.ctx, f.wallet, common.Address{})
	assert.ErrorIs(t, err, ErrValidation)

	first, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)

	_, err = f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(1))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, first.RequestID, f.request().ID)

	_, err = f.cancel()
	require.NoError(t, err)

	second, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(1))
	require.NoError(t, err)
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

func TestApproveRecovery_Concurrent(t *testing.T) {
	f := newFixture(t, 5)
	f.setup(3)

	_, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)
	request := f.request()

	type approval struct {
		guardian common.Address
		share    interfaces.SecretShare
		sig      []byte
	}
	approvals := make([]approval, len(f.guardians))
	for i := range f.guardians {
		share := f.share(i)
		approvals[i] = approval{f.guardianAddr(i), share, f.sign(f.guardians[i], ApprovalMessage(f.wallet, request.ID, share))}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for _, a := range approvals {
		wg.Add(1)
		go func(a approval) {
			defer wg.Done()
			_, err := f.svc.ApproveRecovery(context.Background(), f.wallet, a.guardian, a.share, a.sig)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(a)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, conflicts)
	assert.Len(t, f.request().Approvals, 3)
	assert.Equal(t, interfaces.StatusRecoveryApproved, f.request().Status)
	assert.Zero(t, f.svc.locks.size())
}

func TestCancelCompleteRace(t *testing.T) {
	f := newFixture(t, 2)
	f.setup(2)

	_, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)
	request := f.request()
	for i := range f.guardians {
		_, err := f.approve(i)
		require.NoError(t, err)
	}
	f.clock.Add(25 * time.Hour)
	cancelSig := f.sign(f.owner, CancelMessage(f.wallet, request.ID))
	completeSig := f.sign(f.guardians[0], CompleteMessage(f.wallet, request.ID, "pw"))

	var wg sync.WaitGroup
	var cancelErr, completeErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = f.svc.CancelRecovery(context.Background(), f.wallet, cancelSig)
	}()
	go func() {
		defer wg.Done()
		_, completeErr = f.svc.CompleteRecovery(context.Background(), f.wallet, "pw", completeSig)
	}()
	wg.Wait()

	assert.True(t, (cancelErr == nil) != (completeErr == nil), "exactly one of cancel and complete wins")
	final := f.request()
	if cancelErr == nil {
		assert.ErrorIs(t, completeErr, ErrConflict)
		assert.Equal(t, interfaces.StatusCancelled, final.Status)
	} else {
		assert.ErrorIs(t, cancelErr, ErrConflict)
		assert.Equal(t, interfaces.StatusCompleted, final.Status)
	}
	assert.Zero(t, f.svc.locks.size())
}
