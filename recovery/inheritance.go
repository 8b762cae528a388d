package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// InheritanceResult describes the configured dead man's switch.
type InheritanceResult struct {
	Beneficiary      common.Address
	InactivityPeriod time.Duration
	NextCheckIn      time.Time
}

// CheckInResult is returned by CheckIn. NextCheckIn is zero when no inheritance is configured.
type CheckInResult struct {
	Message     string
	NextCheckIn time.Time
}

const noInheritanceMessage = "no inheritance configured"

// SetupInheritance names a beneficiary who may claim the wallet after inactivityPeriod
// without a check-in. A zero period selects the default. The owner signs InheritanceMessage
// over the period as requested.
func (s *Service) SetupInheritance(ctx context.Context, wallet, beneficiary common.Address, inactivityPeriod time.Duration, ownerSignature []byte) (*InheritanceResult, error) {
	if beneficiary == (common.Address{}) {
		return nil, validationErrorf("beneficiary address is required")
	}
	if beneficiary == wallet {
		return nil, validationErrorf("wallet cannot be its own beneficiary")
	}
	if inactivityPeriod < 0 {
		return nil, validationErrorf("inactivity period cannot be negative")
	}

	unlock := s.locks.lock(wallet)
	defer unlock()

	config, err := s.loadConfig(ctx, wallet)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("setup guardians first: %w", err)
	}
	if err != nil {
		return nil, err
	}

	if !s.verify(config.WalletAddress, InheritanceMessage(wallet, beneficiary, inactivityPeriod), ownerSignature) {
		return nil, authErrorf("invalid owner signature")
	}

	period := inactivityPeriod
	if period == 0 {
		period = s.cfg.DefaultInactivityPeriod
	}

	now := s.clock.Now().UTC()
	updated := config.Clone()
	updated.InheritanceEnabled = true
	updated.Beneficiary = &beneficiary
	updated.InactivityPeriod = period
	updated.LastActivityCheck = now

	if err := s.configs.Put(ctx, wallet, updated); err != nil {
		return nil, fmt.Errorf("failed to save recovery config: %w", err)
	}

	s.log.Info("Inheritance configured",
		slog.String("wallet", wallet.Hex()),
		slog.String("beneficiary", beneficiary.Hex()),
		slog.Duration("inactivity_period", period))

	return &InheritanceResult{
		Beneficiary:      beneficiary,
		InactivityPeriod: period,
		NextCheckIn:      now.Add(period),
	}, nil
}

// CheckIn resets the inactivity timer. The owner signs CheckInMessage over the previous
// check-in time. Without inheritance configured it succeeds without doing anything.
func (s *Service) CheckIn(ctx context.Context, wallet common.Address, ownerSignature []byte) (*CheckInResult, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	config, err := s.configs.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery config: %w", err)
	}
	if config == nil || !config.InheritanceEnabled {
		return &CheckInResult{Message: noInheritanceMessage}, nil
	}

	if !s.verify(config.WalletAddress, CheckInMessage(wallet, config.LastActivityCheck), ownerSignature) {
		return nil, authErrorf("invalid owner signature")
	}

	now := s.clock.Now().UTC()
	updated := config.Clone()
	updated.LastActivityCheck = now

	if err := s.configs.Put(ctx, wallet, updated); err != nil {
		return nil, fmt.Errorf("failed to save recovery config: %w", err)
	}

	s.log.Debug("Owner checked in", slog.String("wallet", wallet.Hex()))

	return &CheckInResult{
		Message:     "checked in",
		NextCheckIn: now.Add(updated.InactivityPeriod),
	}, nil
}

// ClaimInheritance starts an inheritance recovery once the owner has been inactive for the
// full period. The beneficiary signs ClaimMessage. The resulting request goes through the
// same guardian approvals and timelock as any recovery.
func (s *Service) ClaimInheritance(ctx context.Context, wallet, beneficiary common.Address, signature []byte) (*InitiateResult, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	config, err := s.loadConfig(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !config.InheritanceEnabled || config.Beneficiary == nil {
		return nil, conflictErrorf("no inheritance configured for wallet %s", wallet.Hex())
	}
	if *config.Beneficiary != beneficiary {
		return nil, authErrorf("%s is not the designated beneficiary", beneficiary.Hex())
	}
	if !s.verify(beneficiary, ClaimMessage(wallet, beneficiary), signature) {
		return nil, authErrorf("invalid beneficiary signature")
	}

	elapsed := s.clock.Now().Sub(config.LastActivityCheck)
	if elapsed < config.InactivityPeriod {
		return nil, &OwnerStillActiveError{Remaining: config.InactivityPeriod - elapsed}
	}

	s.log.Info("Inheritance claimed",
		slog.String("wallet", wallet.Hex()),
		slog.String("beneficiary", beneficiary.Hex()),
		slog.Duration("inactive_for", elapsed))

	return s.initiateLocked(ctx, config, beneficiary, interfaces.KindInheritance)
}
