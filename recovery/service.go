package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/secretsharing"
)

// Dependencies are the external collaborators of the service.
type Dependencies struct {
	Configs   interfaces.ConfigStore
	Requests  interfaces.RequestStore
	Keys      interfaces.KeyMaterialProvider
	Transport interfaces.ShareTransport
	Verifier  interfaces.SignatureVerifier

	// Clock defaults to the wall clock
	Clock clock.Clock
	// Rand is the source of polynomial coefficients; defaults to crypto/rand
	Rand io.Reader
}

// Service is the recovery core: guardian registry, recovery state machine and inheritance monitor.
type Service struct {
	cfg       Config
	configs   interfaces.ConfigStore
	requests  interfaces.RequestStore
	keys      interfaces.KeyMaterialProvider
	transport interfaces.ShareTransport
	verifier  interfaces.SignatureVerifier
	clock     clock.Clock
	splitter  *secretsharing.Splitter
	locks     *walletLocks
	log       *slog.Logger
}

// NewService validates cfg and wires the collaborators.
func NewService(cfg Config, deps Dependencies, log *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Configs == nil || deps.Requests == nil || deps.Keys == nil || deps.Transport == nil || deps.Verifier == nil {
		return nil, errors.New("recovery service requires config store, request store, key provider, transport and verifier")
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Service{
		cfg:       cfg,
		configs:   deps.Configs,
		requests:  deps.Requests,
		keys:      deps.Keys,
		transport: deps.Transport,
		verifier:  deps.Verifier,
		clock:     clk,
		splitter:  secretsharing.NewSplitter(deps.Rand),
		locks:     newWalletLocks(),
		log:       log,
	}, nil
}

// Config returns the service limits.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) loadConfig(ctx context.Context, wallet common.Address) (*interfaces.RecoveryConfig, error) {
	config, err := s.configs.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery config: %w", err)
	}
	if config == nil {
		return nil, notFoundErrorf("no recovery configuration found for wallet %s", wallet.Hex())
	}
	return config, nil
}

// loadActiveRequest returns the wallet's request if it is not terminal.
func (s *Service) loadActiveRequest(ctx context.Context, wallet common.Address) (*interfaces.RecoveryRequest, error) {
	request, err := s.requests.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery request: %w", err)
	}
	if request == nil {
		return nil, conflictErrorf("no active recovery request for wallet %s", wallet.Hex())
	}
	if request.Status.IsTerminal() {
		return nil, conflictErrorf("recovery request %s is %s", request.ID, request.Status)
	}
	return request, nil
}

// mirrorStatus records the request status on the wallet config. The request record is
// authoritative, so a failure here is logged rather than failing the transition.
func (s *Service) mirrorStatus(ctx context.Context, config *interfaces.RecoveryConfig, status interfaces.RecoveryStatus) {
	if config.Status == status {
		return
	}
	updated := config.Clone()
	updated.Status = status
	if err := s.configs.Put(ctx, updated.WalletAddress, updated); err != nil {
		s.log.Warn("Failed to update wallet status",
			slog.String("wallet", updated.WalletAddress.Hex()),
			slog.String("status", string(status)),
			"err", err)
	}
}

// notifyGuardians delivers an event to every non-revoked guardian and returns those it could not reach.
func (s *Service) notifyGuardians(ctx context.Context, config *interfaces.RecoveryConfig, event interfaces.EventType, data map[string]string) []common.Address {
	var failed []common.Address
	for _, g := range config.Guardians {
		if g.Status == interfaces.GuardianRevoked {
			continue
		}
		if err := s.transport.Deliver(ctx, g.Address, nil, event, data); err != nil {
			s.log.Warn("Failed to notify guardian",
				slog.String("wallet", config.WalletAddress.Hex()),
				slog.String("guardian", g.Address.Hex()),
				slog.String("event", string(event)),
				"err", err)
			failed = append(failed, g.Address)
		}
	}
	return failed
}

func (s *Service) verify(signer common.Address, message, signature []byte) bool {
	if len(signature) == 0 {
		return false
	}
	return s.verifier.Verify(signer, message, signature)
}
