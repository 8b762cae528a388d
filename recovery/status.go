package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// GuardianSummary is the public view of a guardian.
type GuardianSummary struct {
	Address    common.Address
	ShareIndex int
	Status     interfaces.GuardianStatus
}

// StatusResult summarizes a wallet's recovery setup and current request.
type StatusResult struct {
	HasGuardians       bool
	GuardianCount      int
	ActiveGuardians    int
	Threshold          int
	Guardians          []GuardianSummary
	ActiveRecovery     bool
	InheritanceEnabled bool
	Beneficiary        *common.Address
	InactivityPeriod   time.Duration
	LastActivityCheck  time.Time
	// Request is the latest request with shares removed, if any
	Request *interfaces.RecoveryRequest
}

// RecoveryStatus reports the configuration and latest request of wallet.
// Unknown wallets yield an empty status rather than an error.
func (s *Service) RecoveryStatus(ctx context.Context, wallet common.Address) (*StatusResult, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	config, err := s.configs.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery config: %w", err)
	}
	request, err := s.requests.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery request: %w", err)
	}

	result := &StatusResult{}
	if config != nil {
		result.HasGuardians = true
		result.GuardianCount = len(config.Guardians)
		result.ActiveGuardians = config.ActiveGuardians()
		result.Threshold = config.Threshold
		result.InheritanceEnabled = config.InheritanceEnabled
		result.Beneficiary = config.Beneficiary
		result.InactivityPeriod = config.InactivityPeriod
		result.LastActivityCheck = config.LastActivityCheck
		for _, g := range config.Guardians {
			result.Guardians = append(result.Guardians, GuardianSummary{
				Address:    g.Address,
				ShareIndex: g.ShareIndex,
				Status:     g.Status,
			})
		}
	}
	if request != nil {
		result.ActiveRecovery = request.Status.IsActive()
		result.Request = request.Redacted()
		request.WipeShares()
	}
	return result, nil
}
