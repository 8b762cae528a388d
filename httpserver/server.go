package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ruteri/guardian-recovery/api"
	"github.com/ruteri/guardian-recovery/common"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/ruteri/guardian-recovery/metrics"
	"go.uber.org/atomic"
)

type Server struct {
	cfg     *api.HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer

	handler     *Handler
	sealHandler *SealHandler
	sealer      interfaces.Sealer
}

// Option customizes the server.
type Option func(*Server)

// WithSealing exposes the seal routes and rejects recovery routes with 503 until
// the sealer is unlocked.
func WithSealing(sealHandler *SealHandler, sealer interfaces.Sealer) Option {
	return func(s *Server) {
		s.sealHandler = sealHandler
		s.sealer = sealer
	}
}

// NewMetricsServer creates the metrics server whose meters the handlers record into.
func NewMetricsServer(cfg *api.HTTPServerConfig) (*metrics.MetricsServer, error) {
	return metrics.New(common.PackageName, cfg.MetricsAddr)
}

func New(cfg *api.HTTPServerConfig, metricsSrv *metrics.MetricsServer, handler *Handler, opts ...Option) (srv *Server, err error) {
	if metricsSrv == nil {
		metricsSrv, err = NewMetricsServer(cfg)
		if err != nil {
			return nil, err
		}
	}

	srv = &Server{
		cfg:        cfg,
		log:        cfg.Log,
		metricsSrv: metricsSrv,
		handler:    handler,
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()
	mux.Use(srv.httpLogger)

	mux.Route("/api/v1", func(r chi.Router) {
		if srv.sealHandler != nil {
			r.Get("/seal/status", srv.sealHandler.HandleStatus)
			r.Post("/seal/share", srv.sealHandler.HandleSubmitShare)
		}

		r.Group(func(r chi.Router) {
			if srv.sealer != nil {
				r.Use(RequireUnsealed(srv.sealer))
			}
			RegisterRoutes(r, srv.handler)
		})
	})

	// Health and diagnostic endpoints
	mux.Get("/livez", srv.handleLivenessCheck)
	mux.Get("/readyz", srv.handleReadinessCheck)
	mux.Get("/drain", srv.handleDrain)
	mux.Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

// RegisterRoutes mounts the recovery API on r. Paths are relative to /api/v1.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/keys", h.HandleImportKey)
	r.Post("/keys/{walletID}/password", h.HandleChangePassword)

	r.Route("/wallets/{wallet}", func(r chi.Router) {
		r.Post("/guardians", h.HandleSetupGuardians)
		r.Post("/guardians/{guardian}/accept", h.HandleAcceptGuardianship)
		r.Post("/guardians/{guardian}/revoke", h.HandleRevokeGuardian)

		r.Post("/recovery", h.HandleInitiateRecovery)
		r.Get("/recovery", h.HandleRecoveryStatus)
		r.Post("/recovery/approve", h.HandleApproveRecovery)
		r.Post("/recovery/complete", h.HandleCompleteRecovery)
		r.Post("/recovery/cancel", h.HandleCancelRecovery)

		r.Post("/inheritance", h.HandleSetupInheritance)
		r.Post("/inheritance/checkin", h.HandleCheckIn)
		r.Post("/inheritance/claim", h.HandleClaimInheritance)
	})

	r.Get("/guardians/{guardian}/notifications", h.HandleNotifications)
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	if srv.sealer != nil && !srv.sealer.IsUnlocked() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "sealed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if wasReady := srv.isReady.Swap(false); !wasReady {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already draining"})
		return
	}

	srv.log.Info("Server marked as not ready")

	// Wait for the drain duration so load balancers can detect the change
	select {
	case <-time.After(srv.cfg.DrainDuration):
		srv.log.Info("Drain period completed")
	case <-r.Context().Done():
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "draining"})
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if wasReady := srv.isReady.Swap(true); wasReady {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already ready"})
		return
	}
	srv.log.Info("Server marked as ready")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Handler returns the root router, mostly for tests.
func (srv *Server) Handler() http.Handler {
	return srv.srv.Handler
}

func (srv *Server) RunInBackground() {
	// metrics
	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			err := srv.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("HTTP server failed", "err", err)
			}
		}()
	}

	// api
	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

func (srv *Server) Shutdown() {
	// api
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}

	// metrics
	if len(srv.cfg.MetricsAddr) != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()

		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
}
