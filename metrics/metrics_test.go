package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := NewMetrics("test")

	m.Observe("approve", time.Now(), nil)
	m.Observe("approve", time.Now(), nil)
	m.Observe("approve", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("approve", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("approve", StatusError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))

	m.SetSealUnlocked(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SealUnlocked))
	m.SetSealUnlocked(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SealUnlocked))
}

func TestNewServer(t *testing.T) {
	srv, err := New("test", "127.0.0.1:0")
	require.NoError(t, err)
	require.NotNil(t, srv.Registry)

	families, err := srv.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
