package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/guardian-recovery/api"
	"github.com/ruteri/guardian-recovery/cryptoutils"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/metrics"
	"github.com/ruteri/guardian-recovery/recovery"
	"github.com/ruteri/guardian-recovery/secretsharing"
)

// Query parameters of the notifications route.
const (
	TimestampParam = "timestamp"
	SignatureParam = "signature"

	// notificationsMaxSkew bounds the age of a notifications signature
	notificationsMaxSkew = 5 * time.Minute
)

// KeyImporter stores wallet key material under a password.
type KeyImporter interface {
	Import(ctx context.Context, walletID string, key []byte, password string) error
	ChangePassword(ctx context.Context, walletID, oldPassword, newPassword string) error
}

// RequestError carries the HTTP status for an error raised by the handler itself.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...any) error {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf(format, args...)}
}

// Handler serves the recovery API on top of recovery.Service.
type Handler struct {
	svc          *recovery.Service
	keys         KeyImporter
	transport    interfaces.ShareTransport
	verifier     interfaces.SignatureVerifier
	clock        clock.Clock
	metrics      *metrics.Metrics
	maxBodyBytes int64
	log          *slog.Logger
}

// HandlerConfig lists the handler's collaborators. Clock and MaxBodyBytes are optional.
type HandlerConfig struct {
	Service      *recovery.Service
	Keys         KeyImporter
	Transport    interfaces.ShareTransport
	Verifier     interfaces.SignatureVerifier
	Clock        clock.Clock
	Metrics      *metrics.Metrics
	MaxBodyBytes int64
}

func NewHandler(cfg HandlerConfig, log *slog.Logger) *Handler {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = api.DefaultMaxBodyBytes
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewMetrics("")
	}
	return &Handler{
		svc:          cfg.Service,
		keys:         cfg.Keys,
		transport:    cfg.Transport,
		verifier:     cfg.Verifier,
		clock:        clk,
		metrics:      m,
		maxBodyBytes: maxBody,
		log:          log,
	}
}

// HandleImportKey stores a wallet key so guardians can be set up for it.
//
// URL format: POST /api/v1/keys
func (h *Handler) HandleImportKey(w http.ResponseWriter, r *http.Request) {
	var req api.ImportKeyRequest
	err := h.run(w, r, "import_key", &req, func() (any, error) {
		defer cryptoutils.WipeBytes(req.PrivateKey)
		address, err := cryptoutils.DeriveWallet(req.PrivateKey)
		if err != nil {
			return nil, badRequest("invalid private key: %v", err)
		}
		if req.WalletID == "" || req.Password == "" {
			return nil, badRequest("wallet_id and password are required")
		}
		if err := h.keys.Import(r.Context(), req.WalletID, req.PrivateKey, req.Password); err != nil {
			return nil, err
		}
		return &api.ImportKeyResponse{WalletID: req.WalletID, Address: address}, nil
	})
	h.logResult(r, "import_key", err)
}

// HandleChangePassword re-encrypts a stored key. The current password is required.
//
// URL format: POST /api/v1/keys/{walletID}/password
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req api.ChangePasswordRequest
	err := h.run(w, r, "change_password", &req, func() (any, error) {
		if req.OldPassword == "" || req.NewPassword == "" {
			return nil, badRequest("old_password and new_password are required")
		}
		walletID := chi.URLParam(r, "walletID")
		if err := h.keys.ChangePassword(r.Context(), walletID, req.OldPassword, req.NewPassword); err != nil {
			return nil, err
		}
		return &api.ImportKeyResponse{WalletID: walletID}, nil
	})
	h.logResult(r, "change_password", err)
}

// HandleSetupGuardians splits the wallet key among guardians.
//
// URL format: POST /api/v1/wallets/{wallet}/guardians
func (h *Handler) HandleSetupGuardians(w http.ResponseWriter, r *http.Request) {
	var req api.SetupGuardiansRequest
	err := h.run(w, r, "setup_guardians", &req, func() (any, error) {
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		specs := make([]recovery.GuardianSpec, len(req.Guardians))
		for i, g := range req.Guardians {
			specs[i] = recovery.GuardianSpec{Address: g.Address, PublicKey: g.PublicKey}
		}
		result, err := h.svc.SetupGuardians(r.Context(), recovery.SetupGuardiansRequest{
			WalletID:      req.WalletID,
			WalletAddress: wallet,
			Guardians:     specs,
			Threshold:     req.Threshold,
			Password:      req.Password,
		})
		if err != nil {
			return nil, err
		}
		resp := &api.SetupGuardiansResponse{
			WalletAddress: result.Config.WalletAddress,
			Threshold:     result.Config.Threshold,
			Undelivered:   result.Undelivered,
		}
		for _, g := range result.Config.Guardians {
			resp.Guardians = append(resp.Guardians, api.NewGuardianView(g))
		}
		return resp, nil
	})
	h.logResult(r, "setup_guardians", err)
}

// HandleAcceptGuardianship is called by a guardian confirming its role.
//
// URL format: POST /api/v1/wallets/{wallet}/guardians/{guardian}/accept
func (h *Handler) HandleAcceptGuardianship(w http.ResponseWriter, r *http.Request) {
	var req api.SignedRequest
	err := h.run(w, r, "accept_guardianship", &req, func() (any, error) {
		wallet, guardian, err := walletAndGuardianParams(r)
		if err != nil {
			return nil, err
		}
		g, err := h.svc.AcceptGuardianship(r.Context(), wallet, guardian, req.Signature)
		if err != nil {
			return nil, err
		}
		return &api.GuardianResponse{Guardian: api.NewGuardianView(*g)}, nil
	})
	h.logResult(r, "accept_guardianship", err)
}

// HandleRevokeGuardian is called by the owner.
//
// URL format: POST /api/v1/wallets/{wallet}/guardians/{guardian}/revoke
func (h *Handler) HandleRevokeGuardian(w http.ResponseWriter, r *http.Request) {
	var req api.SignedRequest
	err := h.run(w, r, "revoke_guardian", &req, func() (any, error) {
		wallet, guardian, err := walletAndGuardianParams(r)
		if err != nil {
			return nil, err
		}
		config, err := h.svc.RevokeGuardian(r.Context(), wallet, guardian, req.Signature)
		if err != nil {
			return nil, err
		}
		return &api.GuardianResponse{Guardian: api.NewGuardianView(*config.Guardian(guardian))}, nil
	})
	h.logResult(r, "revoke_guardian", err)
}

// HandleInitiateRecovery opens a recovery request.
//
// URL format: POST /api/v1/wallets/{wallet}/recovery
func (h *Handler) HandleInitiateRecovery(w http.ResponseWriter, r *http.Request) {
	var req api.InitiateRecoveryRequest
	err := h.run(w, r, "initiate_recovery", &req, func() (any, error) {
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		result, err := h.svc.InitiateRecovery(r.Context(), wallet, req.Requestor)
		if err != nil {
			return nil, err
		}
		return initiateResponse(result), nil
	})
	h.logResult(r, "initiate_recovery", err)
}

// HandleRecoveryStatus reports guardians, inheritance and the latest request. Shares are never included.
//
// URL format: GET /api/v1/wallets/{wallet}/recovery
func (h *Handler) HandleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	err := h.run(w, r, "recovery_status", nil, func() (any, error) {
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		status, err := h.svc.RecoveryStatus(r.Context(), wallet)
		if err != nil {
			return nil, err
		}
		resp := &api.RecoveryStatusResponse{
			WalletAddress:      wallet,
			HasGuardians:       status.HasGuardians,
			GuardianCount:      status.GuardianCount,
			ActiveGuardians:    status.ActiveGuardians,
			Threshold:          status.Threshold,
			Guardians:          []api.GuardianView{},
			ActiveRecovery:     status.ActiveRecovery,
			InheritanceEnabled: status.InheritanceEnabled,
			Beneficiary:        status.Beneficiary,
			Request:            status.Request,
		}
		for _, g := range status.Guardians {
			resp.Guardians = append(resp.Guardians, api.GuardianView{Address: g.Address, ShareIndex: g.ShareIndex, Status: g.Status})
		}
		if status.InheritanceEnabled {
			resp.InactivityPeriodSeconds = int64(status.InactivityPeriod / time.Second)
			last := status.LastActivityCheck
			resp.LastActivityCheck = &last
		}
		return resp, nil
	})
	h.logResult(r, "recovery_status", err)
}

// HandleApproveRecovery records a guardian approval with its share.
//
// URL format: POST /api/v1/wallets/{wallet}/recovery/approve
func (h *Handler) HandleApproveRecovery(w http.ResponseWriter, r *http.Request) {
	var req api.ApproveRecoveryRequest
	err := h.run(w, r, "approve_recovery", &req, func() (any, error) {
		defer req.Share.Wipe()
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		if req.Share.Value == nil {
			return nil, badRequest("share is required")
		}
		result, err := h.svc.ApproveRecovery(r.Context(), wallet, req.Guardian, req.Share, req.Signature)
		if err != nil {
			return nil, err
		}
		return &api.ApproveRecoveryResponse{
			ApprovalCount: result.ApprovalCount,
			Threshold:     result.Threshold,
			CanRecover:    result.CanRecover,
		}, nil
	})
	h.logResult(r, "approve_recovery", err)
}

// HandleCompleteRecovery rebuilds the wallet key after the timelock.
//
// URL format: POST /api/v1/wallets/{wallet}/recovery/complete
func (h *Handler) HandleCompleteRecovery(w http.ResponseWriter, r *http.Request) {
	var req api.CompleteRecoveryRequest
	err := h.run(w, r, "complete_recovery", &req, func() (any, error) {
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		result, err := h.svc.CompleteRecovery(r.Context(), wallet, req.NewPassword, req.Signature)
		if err != nil {
			return nil, err
		}
		return &api.CompleteRecoveryResponse{
			RequestID: result.RequestID,
			WalletID:  result.WalletID,
			Address:   result.Address,
		}, nil
	})
	h.logResult(r, "complete_recovery", err)
}

// HandleCancelRecovery is called by the owner.
//
// URL format: POST /api/v1/wallets/{wallet}/recovery/cancel
func (h *Handler) HandleCancelRecovery(w http.ResponseWriter, r *http.Request) {
	var req api.SignedRequest
	err := h.run(w, r, "cancel_recovery", &req, func() (any, error) {
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		id, err := h.svc.CancelRecovery(r.Context(), wallet, req.Signature)
		if err != nil {
			return nil, err
		}
		return &api.CancelRecoveryResponse{RequestID: id, Status: interfaces.StatusCancelled}, nil
	})
	h.logResult(r, "cancel_recovery", err)
}

// HandleSetupInheritance configures the dead man's switch.
//
// URL format: POST /api/v1/wallets/{wallet}/inheritance
func (h *Handler) HandleSetupInheritance(w http.ResponseWriter, r *http.Request) {
	var req api.SetupInheritanceRequest
	err := h.run(w, r, "setup_inheritance", &req, func() (any, error) {
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		if req.InactivityPeriodSeconds < 0 || req.InactivityPeriodSeconds > math.MaxInt64/int64(time.Second) {
			return nil, badRequest("inactivity_period_seconds out of range")
		}
		period := time.Duration(req.InactivityPeriodSeconds) * time.Second
		result, err := h.svc.SetupInheritance(r.Context(), wallet, req.Beneficiary, period, req.Signature)
		if err != nil {
			return nil, err
		}
		return &api.InheritanceResponse{
			Beneficiary:             result.Beneficiary,
			InactivityPeriodSeconds: int64(result.InactivityPeriod / time.Second),
			NextCheckIn:             result.NextCheckIn,
		}, nil
	})
	h.logResult(r, "setup_inheritance", err)
}

// HandleCheckIn resets the owner's inactivity timer.
//
// URL format: POST /api/v1/wallets/{wallet}/inheritance/checkin
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req api.SignedRequest
	err := h.run(w, r, "check_in", &req, func() (any, error) {
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		result, err := h.svc.CheckIn(r.Context(), wallet, req.Signature)
		if err != nil {
			return nil, err
		}
		resp := &api.CheckInResponse{Message: result.Message}
		if !result.NextCheckIn.IsZero() {
			next := result.NextCheckIn
			resp.NextCheckIn = &next
		}
		return resp, nil
	})
	h.logResult(r, "check_in", err)
}

// HandleClaimInheritance starts an inheritance recovery for the beneficiary.
//
// URL format: POST /api/v1/wallets/{wallet}/inheritance/claim
func (h *Handler) HandleClaimInheritance(w http.ResponseWriter, r *http.Request) {
	var req api.ClaimInheritanceRequest
	err := h.run(w, r, "claim_inheritance", &req, func() (any, error) {
		wallet, err := walletParam(r)
		if err != nil {
			return nil, err
		}
		result, err := h.svc.ClaimInheritance(r.Context(), wallet, req.Beneficiary, req.Signature)
		if err != nil {
			return nil, err
		}
		return initiateResponse(result), nil
	})
	h.logResult(r, "claim_inheritance", err)
}

// HandleNotifications drains a guardian's mailbox. The guardian signs
// recovery.NotificationsMessage over a recent unix timestamp.
//
// URL format: GET /api/v1/guardians/{guardian}/notifications?timestamp=<unix>&signature=<0x hex>
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	err := h.run(w, r, "fetch_notifications", nil, func() (any, error) {
		guardian, err := addressParam(r, "guardian")
		if err != nil {
			return nil, err
		}
		ts, err := strconv.ParseInt(r.URL.Query().Get(TimestampParam), 10, 64)
		if err != nil {
			return nil, badRequest("invalid %s", TimestampParam)
		}
		signedAt := time.Unix(ts, 0)
		if skew := h.clock.Now().Sub(signedAt); skew > notificationsMaxSkew || skew < -notificationsMaxSkew {
			return nil, fmt.Errorf("%w: notifications signature expired", recovery.ErrAuth)
		}
		sig, err := hexutil.Decode(r.URL.Query().Get(SignatureParam))
		if err != nil {
			return nil, badRequest("invalid %s", SignatureParam)
		}
		if !h.verifier.Verify(guardian, recovery.NotificationsMessage(guardian, signedAt), sig) {
			return nil, fmt.Errorf("%w: invalid guardian signature", recovery.ErrAuth)
		}

		pending, err := h.transport.FetchPending(r.Context(), guardian)
		if err != nil {
			return nil, err
		}
		return &api.NotificationsResponse{Notifications: pending}, nil
	})
	h.logResult(r, "fetch_notifications", err)
}

func initiateResponse(result *recovery.InitiateResult) *api.InitiateRecoveryResponse {
	return &api.InitiateRecoveryResponse{
		RequestID:         result.RequestID,
		Kind:              result.Kind,
		TimelockEnds:      result.TimelockEnds,
		RequiredApprovals: result.RequiredApprovals,
		GuardianCount:     result.GuardianCount,
	}
}

// run decodes the JSON body into req (when non-nil), calls fn, records metrics and
// writes either the result or the mapped error.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, operation string, req any, fn func() (any, error)) (err error) {
	started := time.Now()
	defer func() { h.metrics.Observe(operation, started, err) }()

	if req != nil {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
		if decodeErr := decodeJSON(r, req); decodeErr != nil {
			err = badRequest("invalid request body: %v", decodeErr)
			writeError(w, err)
			return err
		}
	}

	resp, err := fn()
	if err != nil {
		writeError(w, err)
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *Handler) logResult(r *http.Request, operation string, err error) {
	if err == nil {
		return
	}
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed",
			slog.String("operation", operation),
			slog.String("path", r.URL.Path),
			"err", err)
		return
	}
	h.log.Debug("Request rejected",
		slog.String("operation", operation),
		slog.Int("status", status),
		"err", err)
}

// StatusCode maps service errors onto HTTP statuses.
func StatusCode(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, recovery.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, recovery.ErrAuth), errors.Is(err, interfaces.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, recovery.ErrNotFound), errors.Is(err, interfaces.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, recovery.ErrConflict), errors.Is(err, interfaces.ErrWalletExists):
		return http.StatusConflict
	case errors.Is(err, recovery.ErrTimelockActive), errors.Is(err, recovery.ErrOwnerStillActive):
		return http.StatusTooEarly
	case errors.Is(err, secretsharing.ErrInsufficientShares), errors.Is(err, secretsharing.ErrInvalidShare):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrSealed), errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	resp := api.ErrorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	if wait, ok := recovery.RetryAfter(err); ok {
		seconds := int64(math.Ceil(wait.Seconds()))
		resp.RetryAfterSeconds = seconds
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func walletParam(r *http.Request) (common.Address, error) {
	return addressParam(r, "wallet")
}

func walletAndGuardianParams(r *http.Request) (common.Address, common.Address, error) {
	wallet, err := walletParam(r)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	guardian, err := addressParam(r, "guardian")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return wallet, guardian, nil
}

func addressParam(r *http.Request, name string) (common.Address, error) {
	addr, err := interfaces.NormalizeAddress(chi.URLParam(r, name))
	if err != nil {
		return common.Address{}, badRequest("%s: %v", name, err)
	}
	return addr, nil
}
