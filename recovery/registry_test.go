package recovery

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/secretsharing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupGuardians_Validation(t *testing.T) {
	f := newFixture(t, 3)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*SetupGuardiansRequest)
		target error
	}{
		{
			name:   "too few guardians",
			mutate: func(r *SetupGuardiansRequest) { r.Guardians = r.Guardians[:1]; r.Threshold = 1 },
			target: ErrValidation,
		},
		{
			name: "too many guardians",
			mutate: func(r *SetupGuardiansRequest) {
				for len(r.Guardians) <= DefaultMaxGuardians {
					k, _ := crypto.GenerateKey()
					r.Guardians = append(r.Guardians, GuardianSpec{Address: crypto.PubkeyToAddress(k.PublicKey), PublicKey: crypto.FromECDSAPub(&k.PublicKey)})
				}
			},
			target: ErrValidation,
		},
		{
			name:   "threshold below two",
			mutate: func(r *SetupGuardiansRequest) { r.Threshold = 1 },
			target: ErrValidation,
		},
		{
			name:   "threshold above guardian count",
			mutate: func(r *SetupGuardiansRequest) { r.Threshold = 4 },
			target: ErrValidation,
		},
		{
			name:   "duplicate guardian",
			mutate: func(r *SetupGuardiansRequest) { r.Guardians[1] = r.Guardians[0] },
			target: ErrValidation,
		},
		{
			name:   "public key of someone else",
			mutate: func(r *SetupGuardiansRequest) { r.Guardians[0].PublicKey = crypto.FromECDSAPub(&other.PublicKey) },
			target: ErrValidation,
		},
		{
			name:   "wallet as its own guardian",
			mutate: func(r *SetupGuardiansRequest) { r.Guardians[0].Address = r.WalletAddress },
			target: ErrValidation,
		},
		{
			name:   "wrong password",
			mutate: func(r *SetupGuardiansRequest) { r.Password = "wrong" },
			target: ErrAuth,
		},
		{
			name:   "unknown wallet id",
			mutate: func(r *SetupGuardiansRequest) { r.WalletID = "missing" },
			target: ErrNotFound,
		},
		{
			name:   "key does not control wallet address",
			mutate: func(r *SetupGuardiansRequest) { r.WalletAddress = crypto.PubkeyToAddress(other.PublicKey) },
			target: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.setupRequest(2)
			req.Guardians = append([]GuardianSpec(nil), req.Guardians...)
			tt.mutate(&req)

			_, err := f.svc.SetupGuardians(f.ctx, req)
			assert.ErrorIs(t, err, tt.target)
			assert.Nil(t, f.config(), "nothing is persisted on failure")
		})
	}
}

func TestSetupGuardians_DeliversSealedShares(t *testing.T) {
	f := newFixture(t, 5)
	config := f.setup(3)

	assert.Equal(t, testWalletID, config.WalletID)
	assert.Equal(t, f.wallet, config.WalletAddress)
	assert.Equal(t, 3, config.Threshold)
	assert.Equal(t, interfaces.StatusNormal, config.Status)
	require.Len(t, config.Guardians, 5)

	var shares []interfaces.SecretShare
	for i := range f.guardians {
		g := config.Guardians[i]
		assert.Equal(t, f.guardianAddr(i), g.Address)
		assert.Equal(t, interfaces.GuardianPending, g.Status)
		assert.Equal(t, i+1, g.ShareIndex)

		notifications := f.pending(i)
		require.Len(t, notifications, 1)
		assert.Equal(t, interfaces.EventSetup, notifications[0].Type)
		assert.Equal(t, "3", notifications[0].Data["threshold"])

		share, err := cryptoutils.OpenShare(f.guardians[i], f.wallet, notifications[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, g.ShareIndex, share.Index)
		assert.NotZero(t, share.Index)
		shares = append(shares, share)

		// another guardian cannot read it
		_, err = cryptoutils.OpenShare(f.guardians[(i+1)%5], f.wallet, notifications[0].Payload)
		assert.Error(t, err)
	}

	key, err := secretsharing.ReconstructBytes([]interfaces.SecretShare{shares[4], shares[0], shares[2]}, 3)
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSA(f.owner), key)
}

func TestSetupGuardians_ReplacesConfigAndKeepsInheritance(t *testing.T) {
	f := newFixture(t, 3)
	f.setup(2)

	beneficiary := common.HexToAddress("0x00000000000000000000000000000000000000be")
	_, err := f.svc.SetupInheritance(f.ctx, f.wallet, beneficiary, 0, f.sign(f.owner, InheritanceMessage(f.wallet, beneficiary, 0)))
	require.NoError(t, err)

	config := f.setup(3)
	assert.Equal(t, 3, config.Threshold)
	assert.True(t, config.InheritanceEnabled)
	assert.Equal(t, beneficiary, *config.Beneficiary)
}

func TestSetupGuardians_ConflictWhileRecoveryActive(t *testing.T) {
	f := newFixture(t, 3)
	f.setup(2)

	_, err := f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(0))
	require.NoError(t, err)

	_, err = f.svc.SetupGuardians(f.ctx, f.setupRequest(2))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.cancel()
	require.NoError(t, err)

	_, err = f.svc.SetupGuardians(f.ctx, f.setupRequest(2))
	assert.NoError(t, err, "setup is allowed again once the request is terminal")
}

func TestAcceptGuardianship(t *testing.T) {
	f := newFixture(t, 3)
	f.setup(2)
	guardian := f.guardianAddr(1)

	_, err := f.svc.AcceptGuardianship(f.ctx, f.wallet, guardian, f.sign(f.guardians[0], AcceptMessage(f.wallet, guardian)))
	assert.ErrorIs(t, err, ErrAuth, "signed by another guardian")

	g, err := f.svc.AcceptGuardianship(f.ctx, f.wallet, guardian, f.sign(f.guardians[1], AcceptMessage(f.wallet, guardian)))
	require.NoError(t, err)
	assert.Equal(t, interfaces.GuardianAccepted, g.Status)
	require.NotNil(t, g.LastActivity)
	assert.Equal(t, interfaces.GuardianAccepted, f.config().Guardian(guardian).Status)

	_, err = f.svc.AcceptGuardianship(f.ctx, f.wallet, guardian, f.sign(f.guardians[1], AcceptMessage(f.wallet, guardian)))
	assert.ErrorIs(t, err, ErrConflict)

	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	strangerAddr := crypto.PubkeyToAddress(stranger.PublicKey)
	_, err = f.svc.AcceptGuardianship(f.ctx, f.wallet, strangerAddr, f.sign(stranger, AcceptMessage(f.wallet, strangerAddr)))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.AcceptGuardianship(f.ctx, common.HexToAddress("0x01"), guardian, f.sign(f.guardians[1], AcceptMessage(common.HexToAddress("0x01"), guardian)))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeGuardian(t *testing.T) {
	f := newFixture(t, 4)
	config := f.setup(2)
	revokeSig := func(i int) []byte {
		return f.sign(f.owner, RevokeMessage(f.wallet, f.guardianAddr(i), config.CreatedAt))
	}

	_, err := f.svc.RevokeGuardian(f.ctx, f.wallet, f.guardianAddr(0), f.sign(f.guardians[0], RevokeMessage(f.wallet, f.guardianAddr(0), config.CreatedAt)))
	assert.ErrorIs(t, err, ErrAuth, "only the owner can revoke")

	updated, err := f.svc.RevokeGuardian(f.ctx, f.wallet, f.guardianAddr(0), revokeSig(0))
	require.NoError(t, err)
	assert.Equal(t, interfaces.GuardianRevoked, updated.Guardian(f.guardianAddr(0)).Status)
	assert.Empty(t, updated.Guardian(f.guardianAddr(0)).DeliveryPayload)
	assert.Equal(t, 3, updated.ActiveGuardians())

	notifications := f.pending(0)
	require.Len(t, notifications, 2)
	assert.Equal(t, interfaces.EventGuardianRevoked, notifications[1].Type)

	_, err = f.svc.RevokeGuardian(f.ctx, f.wallet, f.guardianAddr(0), revokeSig(0))
	assert.ErrorIs(t, err, ErrConflict, "already revoked")

	_, err = f.svc.RevokeGuardian(f.ctx, f.wallet, f.guardianAddr(1), revokeSig(1))
	require.NoError(t, err)

	_, err = f.svc.RevokeGuardian(f.ctx, f.wallet, f.guardianAddr(2), revokeSig(2))
	assert.ErrorIs(t, err, ErrConflict, "would drop below threshold")
	assert.Equal(t, 2, f.config().ActiveGuardians())

	// a revoked guardian cannot approve
	_, err = f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(2))
	require.NoError(t, err)
	request := f.request()
	share := f.share(2)
	share.Index = 1
	_, err = f.svc.ApproveRecovery(f.ctx, f.wallet, f.guardianAddr(0), share, f.sign(f.guardians[0], ApprovalMessage(f.wallet, request.ID, share)))
	assert.ErrorIs(t, err, ErrAuth)

	// and no revocation while a request is active
	_, err = f.svc.RevokeGuardian(f.ctx, f.wallet, f.guardianAddr(3), revokeSig(3))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRevokeMessage_BoundToSetup(t *testing.T) {
	f := newFixture(t, 3)
	config := f.setup(2)
	oldSig := f.sign(f.owner, RevokeMessage(f.wallet, f.guardianAddr(0), config.CreatedAt))

	f.clock.Add(10 * time.Second)
	f.setup(2)

	_, err := f.svc.RevokeGuardian(f.ctx, f.wallet, f.guardianAddr(0), oldSig)
	assert.ErrorIs(t, err, ErrAuth, "signature for a previous guardian setup is not reusable")
}
