package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/field"
	"github.com/ruteri/guardian-recovery/interfaces"
)

// GuardianSpec names a guardian and the public key its share is encrypted to.
type GuardianSpec struct {
	Address   common.Address
	PublicKey []byte
}

// SetupGuardiansRequest configures guardians for a wallet.
type SetupGuardiansRequest struct {
	WalletID      string
	WalletAddress common.Address
	Guardians     []GuardianSpec
	Threshold     int
	// Password unlocks the wallet key through the KeyMaterialProvider
	Password string
}

// SetupResult is returned by SetupGuardians.
type SetupResult struct {
	Config *interfaces.RecoveryConfig
	// Undelivered lists guardians whose share could not be delivered
	Undelivered []common.Address
}

func (s *Service) validateSetup(req SetupGuardiansRequest) error {
	n := len(req.Guardians)
	if n < s.cfg.MinGuardians || n > s.cfg.MaxGuardians {
		return validationErrorf("invalid guardian count %d: must be between %d and %d", n, s.cfg.MinGuardians, s.cfg.MaxGuardians)
	}
	if req.Threshold < 2 || req.Threshold > n {
		return validationErrorf("invalid threshold %d: must be between 2 and %d", req.Threshold, n)
	}
	if req.WalletID == "" {
		return validationErrorf("wallet id is required")
	}
	if req.WalletAddress == (common.Address{}) {
		return validationErrorf("wallet address is required")
	}

	seen := make(map[common.Address]struct{}, n)
	for _, g := range req.Guardians {
		if g.Address == (common.Address{}) {
			return validationErrorf("guardian address is required")
		}
		if g.Address == req.WalletAddress {
			return validationErrorf("wallet cannot be its own guardian")
		}
		if _, dup := seen[g.Address]; dup {
			return validationErrorf("duplicate guardian %s", g.Address.Hex())
		}
		seen[g.Address] = struct{}{}

		owner, err := cryptoutils.PublicKeyAddress(g.PublicKey)
		if err != nil {
			return validationErrorf("guardian %s: %v", g.Address.Hex(), err)
		}
		if owner != g.Address {
			return validationErrorf("public key of guardian %s belongs to %s", g.Address.Hex(), owner.Hex())
		}
	}
	return nil
}

// SetupGuardians splits the wallet key among the guardians. Each share is encrypted to
// its guardian's public key and delivered with a setup event. Calling it again replaces
// the guardian set with freshly split shares; inheritance settings are kept.
func (s *Service) SetupGuardians(ctx context.Context, req SetupGuardiansRequest) (*SetupResult, error) {
	if err := s.validateSetup(req); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(req.WalletAddress)
	defer unlock()

	existingRequest, err := s.requests.Get(ctx, req.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery request: %w", err)
	}
	if existingRequest != nil && existingRequest.Status.IsActive() {
		return nil, conflictErrorf("recovery request %s is active, cancel it before changing guardians", existingRequest.ID)
	}

	previous, err := s.configs.Get(ctx, req.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery config: %w", err)
	}

	key, err := s.keys.PrivateKeyBytes(ctx, req.WalletID, req.Password)
	switch {
	case errors.Is(err, interfaces.ErrInvalidCredentials):
		return nil, authErrorf("wrong password for wallet %s", req.WalletID)
	case errors.Is(err, interfaces.ErrContentNotFound):
		return nil, notFoundErrorf("wallet %s has no key material", req.WalletID)
	case err != nil:
		return nil, fmt.Errorf("failed to load wallet key: %w", err)
	}
	defer cryptoutils.WipeBytes(key)

	derived, err := cryptoutils.DeriveWallet(key)
	if err != nil {
		return nil, validationErrorf("wallet key: %v", err)
	}
	if derived != req.WalletAddress {
		return nil, validationErrorf("key of wallet %s controls %s, not %s", req.WalletID, derived.Hex(), req.WalletAddress.Hex())
	}

	secret, err := field.FromBytes(key)
	if err != nil {
		return nil, validationErrorf("wallet key: %v", err)
	}
	defer secret.SetInt64(0)

	shares, err := s.splitter.Split(secret, len(req.Guardians), req.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split wallet key: %w", err)
	}
	defer func() {
		for i := range shares {
			shares[i].Wipe()
		}
	}()

	now := s.clock.Now().UTC()
	config := &interfaces.RecoveryConfig{
		WalletID:          req.WalletID,
		WalletAddress:     req.WalletAddress,
		Guardians:         make([]interfaces.GuardianConfig, len(req.Guardians)),
		Threshold:         req.Threshold,
		Status:            interfaces.StatusNormal,
		CreatedAt:         now,
		InactivityPeriod:  s.cfg.DefaultInactivityPeriod,
		LastActivityCheck: now,
	}
	if previous != nil && previous.InheritanceEnabled {
		config.InheritanceEnabled = true
		config.Beneficiary = previous.Beneficiary
		config.InactivityPeriod = previous.InactivityPeriod
		config.LastActivityCheck = previous.LastActivityCheck
	}

	for i, g := range req.Guardians {
		payload, err := cryptoutils.SealShare(g.PublicKey, req.WalletAddress, shares[i])
		if err != nil {
			return nil, fmt.Errorf("failed to seal share for guardian %s: %w", g.Address.Hex(), err)
		}
		config.Guardians[i] = interfaces.GuardianConfig{
			WalletID:        req.WalletID,
			Address:         g.Address,
			PublicKey:       append([]byte(nil), g.PublicKey...),
			ShareIndex:      shares[i].Index,
			DeliveryPayload: payload,
			ShareCommitment: cryptoutils.ShareCommitment(req.WalletAddress, shares[i]),
			Status:          interfaces.GuardianPending,
			AddedAt:         now,
		}
	}

	if err := s.configs.Put(ctx, req.WalletAddress, config); err != nil {
		return nil, fmt.Errorf("failed to save recovery config: %w", err)
	}

	result := &SetupResult{Config: config}
	for _, g := range config.Guardians {
		data := map[string]string{
			"wallet":      interfaces.AddressKey(req.WalletAddress),
			"share_index": strconv.Itoa(g.ShareIndex),
			"threshold":   strconv.Itoa(req.Threshold),
		}
		if err := s.transport.Deliver(ctx, g.Address, g.DeliveryPayload, interfaces.EventSetup, data); err != nil {
			s.log.Warn("Failed to deliver share",
				slog.String("wallet", req.WalletAddress.Hex()),
				slog.String("guardian", g.Address.Hex()),
				"err", err)
			result.Undelivered = append(result.Undelivered, g.Address)
		}
	}

	s.log.Info("Guardians configured",
		slog.String("wallet", req.WalletAddress.Hex()),
		slog.Int("guardians", len(config.Guardians)),
		slog.Int("threshold", config.Threshold))

	return result, nil
}

// AcceptGuardianship marks a pending guardian as accepted. The guardian signs AcceptMessage.
func (s *Service) AcceptGuardianship(ctx context.Context, wallet, guardian common.Address, signature []byte) (*interfaces.GuardianConfig, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	config, err := s.loadConfig(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if !s.verify(guardian, AcceptMessage(wallet, guardian), signature) {
		return nil, authErrorf("invalid guardian signature")
	}

	updated := config.Clone()
	g := updated.Guardian(guardian)
	if g == nil {
		return nil, notFoundErrorf("%s is not a guardian of wallet %s", guardian.Hex(), wallet.Hex())
	}
	if g.Status != interfaces.GuardianPending {
		return nil, conflictErrorf("guardian %s is %s", guardian.Hex(), g.Status)
	}

	now := s.clock.Now().UTC()
	g.Status = interfaces.GuardianAccepted
	g.LastActivity = &now

	if err := s.configs.Put(ctx, wallet, updated); err != nil {
		return nil, fmt.Errorf("failed to save recovery config: %w", err)
	}

	s.log.Info("Guardian accepted",
		slog.String("wallet", wallet.Hex()),
		slog.String("guardian", guardian.Hex()))

	out := *g
	return &out, nil
}

// RevokeGuardian revokes a guardian on the owner's behalf. The owner signs RevokeMessage.
// A revocation that would leave fewer active guardians than the threshold is refused.
func (s *Service) RevokeGuardian(ctx context.Context, wallet, guardian common.Address, ownerSignature []byte) (*interfaces.RecoveryConfig, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	config, err := s.loadConfig(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if !s.verify(config.WalletAddress, RevokeMessage(wallet, guardian, config.CreatedAt), ownerSignature) {
		return nil, authErrorf("invalid owner signature")
	}

	request, err := s.requests.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery request: %w", err)
	}
	if request != nil && request.Status.IsActive() {
		return nil, conflictErrorf("recovery request %s is active", request.ID)
	}

	updated := config.Clone()
	g := updated.Guardian(guardian)
	if g == nil {
		return nil, notFoundErrorf("%s is not a guardian of wallet %s", guardian.Hex(), wallet.Hex())
	}
	if g.Status == interfaces.GuardianRevoked {
		return nil, conflictErrorf("guardian %s is already revoked", guardian.Hex())
	}
	if updated.ActiveGuardians()-1 < updated.Threshold {
		return nil, conflictErrorf("revoking %s would leave fewer than %d active guardians", guardian.Hex(), updated.Threshold)
	}

	now := s.clock.Now().UTC()
	g.Status = interfaces.GuardianRevoked
	g.LastActivity = &now
	// a revoked share still interpolates; approvals are what gets refused
	g.DeliveryPayload = nil

	if err := s.configs.Put(ctx, wallet, updated); err != nil {
		return nil, fmt.Errorf("failed to save recovery config: %w", err)
	}

	if err := s.transport.Deliver(ctx, guardian, nil, interfaces.EventGuardianRevoked, map[string]string{
		"wallet": interfaces.AddressKey(wallet),
	}); err != nil {
		s.log.Warn("Failed to notify revoked guardian", slog.String("guardian", guardian.Hex()), "err", err)
	}

	s.log.Info("Guardian revoked",
		slog.String("wallet", wallet.Hex()),
		slog.String("guardian", guardian.Hex()))

	return updated, nil
}
