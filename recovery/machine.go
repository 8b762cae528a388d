package recovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/field"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/secretsharing"
)

// InitiateResult is returned when a recovery request is created.
type InitiateResult struct {
	RequestID         string
	Kind              interfaces.RequestKind
	TimelockEnds      time.Time
	RequiredApprovals int
	GuardianCount     int
}

// ApproveResult reports approval progress.
type ApproveResult struct {
	ApprovalCount int
	Threshold     int
	CanRecover    bool
}

// CompleteResult describes the recovered wallet.
type CompleteResult struct {
	RequestID string
	// WalletID is the key material identifier the recovered key was stored under
	WalletID string
	Address  common.Address
}

// InitiateRecovery opens a recovery request for wallet. Only one non-terminal request may exist per wallet.
func (s *Service) InitiateRecovery(ctx context.Context, wallet, requestor common.Address) (*InitiateResult, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	config, err := s.loadConfig(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return s.initiateLocked(ctx, config, requestor, interfaces.KindRecovery)
}

// initiateLocked creates the request. The caller holds the wallet lock.
func (s *Service) initiateLocked(ctx context.Context, config *interfaces.RecoveryConfig, requestor common.Address, kind interfaces.RequestKind) (*InitiateResult, error) {
	wallet := config.WalletAddress
	if requestor == (common.Address{}) {
		return nil, validationErrorf("requestor address is required")
	}

	existing, err := s.requests.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery request: %w", err)
	}
	if existing != nil && !existing.Status.IsTerminal() {
		return nil, conflictErrorf("recovery request %s is already %s", existing.ID, existing.Status)
	}

	now := s.clock.Now().UTC()
	request := &interfaces.RecoveryRequest{
		ID:               uuid.NewString(),
		Kind:             kind,
		WalletAddress:    wallet,
		RequestorAddress: requestor,
		InitiatedAt:      now,
		TimelockEnds:     now.Add(s.cfg.Timelock),
		Status:           interfaces.StatusRecoveryInitiated,
		Approvals:        []common.Address{},
	}

	if err := s.requests.Put(ctx, wallet, request); err != nil {
		return nil, fmt.Errorf("failed to save recovery request: %w", err)
	}
	s.mirrorStatus(ctx, config, request.Status)

	event := interfaces.EventRecoveryInitiated
	if kind == interfaces.KindInheritance {
		event = interfaces.EventInheritanceClaimed
	}
	s.notifyGuardians(ctx, config, event, map[string]string{
		"wallet":        interfaces.AddressKey(wallet),
		"request_id":    request.ID,
		"requestor":     interfaces.AddressKey(requestor),
		"kind":          string(kind),
		"timelock_ends": request.TimelockEnds.Format(time.RFC3339),
	})

	s.log.Info("Recovery initiated",
		slog.String("wallet", wallet.Hex()),
		slog.String("request_id", request.ID),
		slog.String("kind", string(kind)),
		slog.String("requestor", requestor.Hex()),
		slog.Time("timelock_ends", request.TimelockEnds))

	return &InitiateResult{
		RequestID:         request.ID,
		Kind:              kind,
		TimelockEnds:      request.TimelockEnds,
		RequiredApprovals: config.Threshold,
		GuardianCount:     config.ActiveGuardians(),
	}, nil
}

// ApproveRecovery records a guardian's approval together with its share. The guardian signs
// ApprovalMessage over the request id and the share. Reaching the threshold moves the request
// to recovery_approved.
func (s *Service) ApproveRecovery(ctx context.Context, wallet, guardian common.Address, share interfaces.SecretShare, signature []byte) (*ApproveResult, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	request, err := s.loadActiveRequest(ctx, wallet)
	if err != nil {
		return nil, err
	}
	defer request.WipeShares()

	if request.Status != interfaces.StatusRecoveryInitiated && request.Status != interfaces.StatusWaitingGuardians {
		return nil, conflictErrorf("recovery request %s is %s and takes no more approvals", request.ID, request.Status)
	}

	config, err := s.loadConfig(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if !s.verify(guardian, ApprovalMessage(wallet, request.ID, share), signature) {
		return nil, authErrorf("invalid guardian signature")
	}

	g := config.Guardian(guardian)
	if g == nil {
		return nil, authErrorf("%s is not a guardian of wallet %s", guardian.Hex(), wallet.Hex())
	}
	if g.Status == interfaces.GuardianRevoked {
		return nil, authErrorf("guardian %s has been revoked", guardian.Hex())
	}
	if request.HasApproved(guardian) {
		return nil, conflictErrorf("guardian %s already approved request %s", guardian.Hex(), request.ID)
	}
	if share.Index != g.ShareIndex {
		return nil, validationErrorf("share index %d does not belong to guardian %s", share.Index, guardian.Hex())
	}
	if share.Value == nil || !field.InRange(share.Value) {
		return nil, validationErrorf("share value out of range")
	}
	if !bytes.Equal(cryptoutils.ShareCommitment(wallet, share), g.ShareCommitment) {
		return nil, validationErrorf("share %d does not match the share issued to guardian %s", share.Index, guardian.Hex())
	}

	updated := request.Clone()
	defer updated.WipeShares()

	updated.Approvals = append(updated.Approvals, guardian)
	updated.SubmittedShares = append(updated.SubmittedShares, interfaces.SecretShare{
		Index: share.Index,
		Value: new(big.Int).Set(share.Value),
	})
	updated.Status = interfaces.StatusWaitingGuardians
	if len(updated.Approvals) >= config.Threshold {
		updated.Status = interfaces.StatusRecoveryApproved
	}

	if err := s.requests.Put(ctx, wallet, updated); err != nil {
		return nil, fmt.Errorf("failed to save recovery request: %w", err)
	}
	s.mirrorStatus(ctx, config, updated.Status)

	s.log.Info("Recovery approved by guardian",
		slog.String("wallet", wallet.Hex()),
		slog.String("request_id", updated.ID),
		slog.String("guardian", guardian.Hex()),
		slog.Int("approvals", len(updated.Approvals)),
		slog.Int("threshold", config.Threshold))

	canRecover := updated.Status == interfaces.StatusRecoveryApproved
	if canRecover && request.Status != interfaces.StatusRecoveryApproved {
		s.notifyGuardians(ctx, config, interfaces.EventRecoveryApproved, map[string]string{
			"wallet":        interfaces.AddressKey(wallet),
			"request_id":    updated.ID,
			"approvals":     strconv.Itoa(len(updated.Approvals)),
			"timelock_ends": updated.TimelockEnds.Format(time.RFC3339),
		})
	}

	return &ApproveResult{
		ApprovalCount: len(updated.Approvals),
		Threshold:     config.Threshold,
		CanRecover:    canRecover,
	}, nil
}

// CompleteRecovery reconstructs the wallet key once the request is approved and the
// timelock has passed, and stores it under newCredential. Only the requestor may complete:
// it signs CompleteMessage over the request id and the new credential.
func (s *Service) CompleteRecovery(ctx context.Context, wallet common.Address, newCredential string, signature []byte) (*CompleteResult, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	request, err := s.loadActiveRequest(ctx, wallet)
	if err != nil {
		return nil, err
	}
	defer request.WipeShares()

	if request.Status != interfaces.StatusRecoveryApproved {
		return nil, conflictErrorf("recovery not approved yet: request %s is %s", request.ID, request.Status)
	}

	if newCredential == "" {
		return nil, validationErrorf("new credential is required")
	}
	if !s.verify(request.RequestorAddress, CompleteMessage(wallet, request.ID, newCredential), signature) {
		return nil, authErrorf("recovery request %s can only be completed by its requestor %s", request.ID, request.RequestorAddress.Hex())
	}

	now := s.clock.Now()
	if now.Before(request.TimelockEnds) {
		return nil, &TimelockActiveError{Remaining: request.TimelockEnds.Sub(now)}
	}

	config, err := s.loadConfig(ctx, wallet)
	if err != nil {
		return nil, err
	}

	key, err := s.reconstruct(request.SubmittedShares, config.Threshold, config.WalletAddress)
	if err != nil {
		return nil, err
	}
	defer cryptoutils.WipeBytes(key)

	walletID := "recovered-" + request.ID
	if err := s.keys.StoreRecovered(ctx, walletID, key, newCredential); err != nil {
		return nil, fmt.Errorf("failed to store recovered wallet: %w", err)
	}

	completedAt := now.UTC()
	updated := request.Clone()
	updated.WipeShares()
	updated.Status = interfaces.StatusCompleted
	updated.CompletedAt = &completedAt

	if err := s.requests.Put(ctx, wallet, updated); err != nil {
		return nil, fmt.Errorf("failed to save recovery request: %w", err)
	}
	s.mirrorStatus(ctx, config, interfaces.StatusNormal)

	s.notifyGuardians(ctx, config, interfaces.EventRecoveryCompleted, map[string]string{
		"wallet":     interfaces.AddressKey(wallet),
		"request_id": updated.ID,
	})

	s.log.Info("Recovery completed",
		slog.String("wallet", wallet.Hex()),
		slog.String("request_id", updated.ID),
		slog.String("recovered_wallet_id", walletID))

	return &CompleteResult{
		RequestID: updated.ID,
		WalletID:  walletID,
		Address:   config.WalletAddress,
	}, nil
}

// reconstruct interpolates the wallet key and checks that it controls wallet.
func (s *Service) reconstruct(shares []interfaces.SecretShare, threshold int, wallet common.Address) ([]byte, error) {
	key, err := secretsharing.ReconstructBytes(shares, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct wallet key: %w", err)
	}
	addr, err := cryptoutils.DeriveWallet(key)
	if err != nil || addr != wallet {
		cryptoutils.WipeBytes(key)
		return nil, validationErrorf("submitted shares do not reconstruct the key of wallet %s", wallet.Hex())
	}
	return key, nil
}

// CancelRecovery cancels the active request. The wallet owner signs CancelMessage.
// Cancellation is allowed in any non-terminal state, timelock or not.
func (s *Service) CancelRecovery(ctx context.Context, wallet common.Address, ownerSignature []byte) (string, error) {
	unlock := s.locks.lock(wallet)
	defer unlock()

	request, err := s.loadActiveRequest(ctx, wallet)
	if err != nil {
		return "", err
	}
	defer request.WipeShares()

	if !s.verify(request.WalletAddress, CancelMessage(wallet, request.ID), ownerSignature) {
		return "", authErrorf("invalid owner signature")
	}

	cancelledAt := s.clock.Now().UTC()
	updated := request.Clone()
	updated.WipeShares()
	updated.Status = interfaces.StatusCancelled
	updated.CancelledAt = &cancelledAt

	if err := s.requests.Put(ctx, wallet, updated); err != nil {
		return "", fmt.Errorf("failed to save recovery request: %w", err)
	}

	config, err := s.configs.Get(ctx, wallet)
	if err != nil || config == nil {
		s.log.Warn("Cancelled recovery without wallet config", slog.String("wallet", wallet.Hex()), "err", err)
		return updated.ID, nil
	}
	s.mirrorStatus(ctx, config, interfaces.StatusNormal)

	s.notifyGuardians(ctx, config, interfaces.EventRecoveryCancelled, map[string]string{
		"wallet":     interfaces.AddressKey(wallet),
		"request_id": updated.ID,
	})

	s.log.Info("Recovery cancelled",
		slog.String("wallet", wallet.Hex()),
		slog.String("request_id", updated.ID))

	return updated.ID, nil
}
