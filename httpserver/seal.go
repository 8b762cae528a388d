package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruteri/guardian-recovery/api"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/kms"
	"github.com/ruteri/guardian-recovery/metrics"
)

// SealHandler lets operators unlock at-rest sealing by submitting their key shares.
type SealHandler struct {
	sealer  *kms.ShamirSealer
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewSealHandler(sealer *kms.ShamirSealer, m *metrics.Metrics, log *slog.Logger) *SealHandler {
	if m == nil {
		m = metrics.NewMetrics("")
	}
	m.SetSealUnlocked(sealer.IsUnlocked())
	return &SealHandler{sealer: sealer, metrics: m, log: log}
}

// HandleStatus reports unlock progress.
//
// URL format: GET /api/v1/seal/status
func (h *SealHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.sealer.Status()
	writeJSON(w, http.StatusOK, &api.SealStatusResponse{
		Unlocked:  st.Unlocked,
		Threshold: st.Threshold,
		Operators: st.Operators,
		Received:  st.Received,
	})
}

// HandleSubmitShare accepts one operator share. The share is authenticated by the
// operator's signature, so no further credentials are needed.
//
// URL format: POST /api/v1/seal/share
func (h *SealHandler) HandleSubmitShare(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitSealShareRequest
	r.Body = http.MaxBytesReader(w, r.Body, api.DefaultMaxBodyBytes)
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}

	err := h.sealer.SubmitShare(req.Share, req.Signature, []byte(req.OperatorPubKey))
	h.metrics.SetSealUnlocked(h.sealer.IsUnlocked())
	switch {
	case errors.Is(err, kms.ErrAlreadyUnlocked):
		writeError(w, &RequestError{StatusCode: http.StatusConflict, Err: err})
		return
	case errors.Is(err, kms.ErrUnknownOperator), errors.Is(err, kms.ErrInvalidSignature):
		h.log.Warn("Rejected seal share", "err", err, slog.String("operator", kms.Fingerprint([]byte(req.OperatorPubKey))))
		writeError(w, &RequestError{StatusCode: http.StatusUnauthorized, Err: err})
		return
	case err != nil:
		h.log.Error("Seal share submission failed", "err", err)
		writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}

	st := h.sealer.Status()
	if st.Unlocked {
		h.log.Info("Storage sealer unlocked")
	} else {
		h.log.Info("Seal share accepted", slog.Int("received", st.Received), slog.Int("threshold", st.Threshold))
	}
	writeJSON(w, http.StatusOK, &api.SealStatusResponse{
		Unlocked:  st.Unlocked,
		Threshold: st.Threshold,
		Operators: st.Operators,
		Received:  st.Received,
	})
}

// RequireUnsealed answers 503 until the sealer is unlocked.
func RequireUnsealed(sealer interfaces.Sealer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sealer.IsUnlocked() {
				writeError(w, interfaces.ErrSealed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
