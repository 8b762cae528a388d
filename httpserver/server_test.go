package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruteri/guardian-recovery/api"
	"github.com/ruteri/guardian-recovery/kms"
	"github.com/ruteri/guardian-recovery/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServerConfig() *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func serve(h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewReader(body)))
	return w
}

func TestHealthEndpoints(t *testing.T) {
	cfg := testServerConfig()
	handler := NewHandler(HandlerConfig{}, cfg.Log)
	srv, err := New(cfg, nil, handler)
	require.NoError(t, err)
	router := srv.Handler()

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/livez", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/readyz", nil).Code)

	w := serve(router, http.MethodGet, "/drain", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "draining")
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/readyz", nil).Code)
	assert.Contains(t, serve(router, http.MethodGet, "/drain", nil).Body.String(), "already draining")

	assert.Contains(t, serve(router, http.MethodGet, "/undrain", nil).Body.String(), `"ready"`)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/readyz", nil).Code)
	assert.Contains(t, serve(router, http.MethodGet, "/undrain", nil).Body.String(), "already ready")

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/debug/pprof/", nil).Code, "pprof disabled by default")
}

func TestSealedServer(t *testing.T) {
	operatorKeys := make([]*ecdsa.PrivateKey, 3)
	pems := make([][]byte, 3)
	for i := range operatorKeys {
		privPEM, pubPEM, err := kms.GenerateOperatorKeyPair()
		require.NoError(t, err)
		operatorKeys[i], err = kms.ParseOperatorPrivateKey(privPEM)
		require.NoError(t, err)
		pems[i] = pubPEM
	}
	sealerConfig := kms.SealerConfig{Threshold: 2, OperatorPubKeys: pems}

	key, err := kms.GenerateSealingKey()
	require.NoError(t, err)
	_, shares, err := kms.NewShamirSealer(key, sealerConfig)
	require.NoError(t, err)

	sealer, err := kms.NewShamirSealerRecovery(sealerConfig)
	require.NoError(t, err)

	cfg := testServerConfig()
	m := metrics.NewMetrics("test")
	handler := NewHandler(HandlerConfig{Metrics: m}, cfg.Log)
	srv, err := New(cfg, nil, handler, WithSealing(NewSealHandler(sealer, m, cfg.Log), sealer))
	require.NoError(t, err)
	router := srv.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/readyz", nil).Code)
	w := serve(router, http.MethodGet, "/api/v1/wallets/0x0000000000000000000000000000000000000001/recovery", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	submit := func(i int, pubPEM []byte) *httptest.ResponseRecorder {
		share, err := kms.DecryptShare(shares[i].EncryptedShare, operatorKeys[i])
		require.NoError(t, err)
		sig, err := kms.SignShare(share, operatorKeys[i])
		require.NoError(t, err)
		body, err := json.Marshal(api.SubmitSealShareRequest{Share: share, Signature: sig, OperatorPubKey: string(pubPEM)})
		require.NoError(t, err)
		return serve(router, http.MethodPost, "/api/v1/seal/share", body)
	}

	// share signed by operator 0 but claimed for operator 1
	assert.Equal(t, http.StatusUnauthorized, submit(0, pems[1]).Code)

	w = submit(0, pems[0])
	require.Equal(t, http.StatusOK, w.Code)
	var st api.SealStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Unlocked)
	assert.Equal(t, 1, st.Received)

	w = submit(2, pems[2])
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Unlocked)

	assert.Equal(t, http.StatusConflict, submit(1, pems[1]).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/readyz", nil).Code)

	w = serve(router, http.MethodGet, "/api/v1/seal/status", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Unlocked)
	assert.Equal(t, 3, st.Operators)
}
