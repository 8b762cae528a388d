package recovery

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestInheritance_Scenario(t *testing.T) {
	f := newFixture(t, 3)
	f.setup(2)

	heir, err := crypto.GenerateKey()
	require.NoError(t, err)
	beneficiary := crypto.PubkeyToAddress(heir.PublicKey)

	res, err := f.svc.SetupInheritance(f.ctx, f.wallet, beneficiary, 0, f.sign(f.owner, InheritanceMessage(f.wallet, beneficiary, 0)))
	require.NoError(t, err)
	assert.Equal(t, 365*day, res.InactivityPeriod)
	assert.Equal(t, testStart.Add(365*day), res.NextCheckIn)

	claimSig := f.sign(heir, ClaimMessage(f.wallet, beneficiary))

	f.clock.Add(364 * day)
	_, err = f.svc.ClaimInheritance(f.ctx, f.wallet, beneficiary, claimSig)
	assert.ErrorIs(t, err, ErrOwnerStillActive)
	assert.EqualError(t, err, "owner still active: 1 days until inheritance available")
	_, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Nil(t, f.request())

	f.clock.Add(2 * day)
	claimed, err := f.svc.ClaimInheritance(f.ctx, f.wallet, beneficiary, claimSig)
	require.NoError(t, err)
	assert.Equal(t, interfaces.KindInheritance, claimed.Kind)
	assert.Equal(t, 2, claimed.RequiredApprovals)

	request := f.request()
	assert.Equal(t, interfaces.KindInheritance, request.Kind)
	assert.Equal(t, beneficiary, request.RequestorAddress)
	assert.Equal(t, interfaces.StatusRecoveryInitiated, request.Status)

	notifications := f.pending(0)
	require.Len(t, notifications, 2)
	assert.Equal(t, interfaces.EventInheritanceClaimed, notifications[1].Type)

	_, err = f.svc.ClaimInheritance(f.ctx, f.wallet, beneficiary, claimSig)
	assert.ErrorIs(t, err, ErrConflict, "a claim is already in flight")

	// the claim still needs guardians and the timelock
	for i := 0; i < 2; i++ {
		_, err := f.approve(i)
		require.NoError(t, err)
	}
	_, err = f.complete(heir, "heir password")
	assert.ErrorIs(t, err, ErrTimelockActive)

	f.clock.Add(day)
	_, err = f.complete(heir, "heir password")
	require.NoError(t, err)
}

func TestSetupInheritance_Validation(t *testing.T) {
	f := newFixture(t, 3)
	beneficiary := common.HexToAddress("0x00000000000000000000000000000000000000be")

	_, err := f.svc.SetupInheritance(f.ctx, f.wallet, beneficiary, 0, f.sign(f.owner, InheritanceMessage(f.wallet, beneficiary, 0)))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "setup guardians first")

	f.setup(2)

	_, err = f.svc.SetupInheritance(f.ctx, f.wallet, common.Address{}, 0, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SetupInheritance(f.ctx, f.wallet, f.wallet, 0, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SetupInheritance(f.ctx, f.wallet, beneficiary, -time.Hour, nil)
	assert.ErrorIs(t, err, ErrValidation)

	// the signature covers the requested period
	_, err = f.svc.SetupInheritance(f.ctx, f.wallet, beneficiary, 30*day, f.sign(f.owner, InheritanceMessage(f.wallet, beneficiary, 0)))
	assert.ErrorIs(t, err, ErrAuth)

	res, err := f.svc.SetupInheritance(f.ctx, f.wallet, beneficiary, 30*day, f.sign(f.owner, InheritanceMessage(f.wallet, beneficiary, 30*day)))
	require.NoError(t, err)
	assert.Equal(t, 30*day, res.InactivityPeriod)

	config := f.config()
	assert.True(t, config.InheritanceEnabled)
	assert.Equal(t, beneficiary, *config.Beneficiary)
	assert.Equal(t, 30*day, config.InactivityPeriod)
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t, 3)

	res, err := f.svc.CheckIn(f.ctx, f.wallet, nil)
	require.NoError(t, err)
	assert.Equal(t, "no inheritance configured", res.Message)
	assert.True(t, res.NextCheckIn.IsZero())

	f.setup(2)
	res, err = f.svc.CheckIn(f.ctx, f.wallet, nil)
	require.NoError(t, err)
	assert.Equal(t, "no inheritance configured", res.Message)

	heir, err := crypto.GenerateKey()
	require.NoError(t, err)
	beneficiary := crypto.PubkeyToAddress(heir.PublicKey)
	_, err = f.svc.SetupInheritance(f.ctx, f.wallet, beneficiary, 100*day, f.sign(f.owner, InheritanceMessage(f.wallet, beneficiary, 100*day)))
	require.NoError(t, err)

	f.clock.Add(90 * day)
	sig := f.sign(f.owner, CheckInMessage(f.wallet, f.config().LastActivityCheck))
	res, err = f.svc.CheckIn(f.ctx, f.wallet, sig)
	require.NoError(t, err)
	assert.Equal(t, "checked in", res.Message)
	assert.Equal(t, testStart.Add(190*day), res.NextCheckIn)
	assert.Equal(t, testStart.Add(90*day), f.config().LastActivityCheck)

	f.clock.Add(time.Minute)
	_, err = f.svc.CheckIn(f.ctx, f.wallet, sig)
	assert.ErrorIs(t, err, ErrAuth, "a check-in signature is single use")

	_, err = f.svc.CheckIn(f.ctx, f.wallet, f.sign(heir, CheckInMessage(f.wallet, f.config().LastActivityCheck)))
	assert.ErrorIs(t, err, ErrAuth)

	// the check-in pushed the claim window out
	f.clock.Add(20 * day)
	_, err = f.svc.ClaimInheritance(f.ctx, f.wallet, beneficiary, f.sign(heir, ClaimMessage(f.wallet, beneficiary)))
	assert.ErrorIs(t, err, ErrOwnerStillActive)
}

func TestClaimInheritance_Rejections(t *testing.T) {
	f := newFixture(t, 3)
	f.setup(2)

	heir, err := crypto.GenerateKey()
	require.NoError(t, err)
	beneficiary := crypto.PubkeyToAddress(heir.PublicKey)
	impostor, err := crypto.GenerateKey()
	require.NoError(t, err)
	impostorAddr := crypto.PubkeyToAddress(impostor.PublicKey)

	_, err = f.svc.ClaimInheritance(f.ctx, f.wallet, beneficiary, f.sign(heir, ClaimMessage(f.wallet, beneficiary)))
	assert.ErrorIs(t, err, ErrConflict, "inheritance not configured")

	_, err = f.svc.SetupInheritance(f.ctx, f.wallet, beneficiary, 10*day, f.sign(f.owner, InheritanceMessage(f.wallet, beneficiary, 10*day)))
	require.NoError(t, err)
	f.clock.Add(11 * day)

	_, err = f.svc.ClaimInheritance(f.ctx, f.wallet, impostorAddr, f.sign(impostor, ClaimMessage(f.wallet, impostorAddr)))
	assert.ErrorIs(t, err, ErrAuth)

	_, err = f.svc.ClaimInheritance(f.ctx, f.wallet, beneficiary, f.sign(impostor, ClaimMessage(f.wallet, beneficiary)))
	assert.ErrorIs(t, err, ErrAuth)

	assert.Nil(t, f.request())
}

func TestRecoveryStatus(t *testing.T) {
	f := newFixture(t, 3)

	status, err := f.svc.RecoveryStatus(f.ctx, f.wallet)
	require.NoError(t, err)
	assert.False(t, status.HasGuardians)
	assert.False(t, status.ActiveRecovery)
	assert.Nil(t, status.Request)

	f.setup(2)
	_, err = f.svc.InitiateRecovery(f.ctx, f.wallet, f.guardianAddr(2))
	require.NoError(t, err)
	_, err = f.approve(1)
	require.NoError(t, err)

	status, err = f.svc.RecoveryStatus(f.ctx, f.wallet)
	require.NoError(t, err)
	assert.True(t, status.HasGuardians)
	assert.Equal(t, 3, status.GuardianCount)
	assert.Equal(t, 3, status.ActiveGuardians)
	assert.Equal(t, 2, status.Threshold)
	require.Len(t, status.Guardians, 3)
	assert.Equal(t, interfaces.GuardianPending, status.Guardians[0].Status)
	assert.True(t, status.ActiveRecovery)
	require.NotNil(t, status.Request)
	assert.Equal(t, interfaces.StatusWaitingGuardians, status.Request.Status)
	assert.Empty(t, status.Request.SubmittedShares, "shares never leave the service")
	assert.Len(t, f.request().SubmittedShares, 1)

	_, err = f.approve(0)
	require.NoError(t, err)
	status, err = f.svc.RecoveryStatus(f.ctx, f.wallet)
	require.NoError(t, err)
	assert.True(t, status.ActiveRecovery, "approved requests are still active")

	_, err = f.cancel()
	require.NoError(t, err)
	status, err = f.svc.RecoveryStatus(f.ctx, f.wallet)
	require.NoError(t, err)
	assert.False(t, status.ActiveRecovery)
	assert.Equal(t, interfaces.StatusCancelled, status.Request.Status)
}
