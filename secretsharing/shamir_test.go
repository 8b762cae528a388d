package secretsharing

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/ruteri/guardian-recovery/field"
	"github.com/ruteri/guardian-recovery/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSecret(t *testing.T) *big.Int {
	s, err := field.Random(rand.Reader)
	require.NoError(t, err)
	return s
}

func TestSplitReconstruct_RoundTrip(t *testing.T) {
	cases := []struct{ n, threshold int }{
		{1, 1},
		{2, 2},
		{3, 2},
		{5, 3},
		{7, 7},
		{7, 4},
	}
	for _, c := range cases {
		secret := randomSecret(t)
		shares, err := Split(secret, c.n, c.threshold)
		require.NoError(t, err)
		require.Len(t, shares, c.n)

		got, err := Reconstruct(shares[:c.threshold], c.threshold)
		require.NoError(t, err)
		assert.Equal(t, 0, secret.Cmp(got), "n=%d t=%d", c.n, c.threshold)
	}
}

func TestSplit_EdgeSecrets(t *testing.T) {
	pm1 := new(big.Int).Sub(field.P, big.NewInt(1))
	for _, secret := range []*big.Int{big.NewInt(0), big.NewInt(1), pm1} {
		shares, err := Split(secret, 4, 3)
		require.NoError(t, err)
		got, err := Reconstruct(shares[1:], 3)
		require.NoError(t, err)
		assert.Equal(t, 0, secret.Cmp(got))
	}
}

func TestReconstruct_SubsetIndependence(t *testing.T) {
	secret := randomSecret(t)
	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	subsets := [][]int{
		{0, 1, 2},
		{2, 3, 4},
		{4, 0, 2},
		{1, 3, 4},
		{0, 1, 2, 3, 4},
	}
	for _, idx := range subsets {
		subset := make([]interfaces.SecretShare, 0, len(idx))
		for _, i := range idx {
			subset = append(subset, shares[i])
		}
		got, err := Reconstruct(subset, 3)
		require.NoError(t, err)
		assert.Equal(t, 0, secret.Cmp(got), "subset %v", idx)
	}
}

func TestReconstruct_InsufficientShares(t *testing.T) {
	secret := randomSecret(t)
	shares, err := Split(secret, 5, 3)
	require.NoError(t, err)

	for k := 0; k < 3; k++ {
		got, err := Reconstruct(shares[:k], 3)
		assert.ErrorIs(t, err, ErrInsufficientShares)
		assert.Nil(t, got)
	}
}

func TestSplit_NeverIssuesZeroIndex(t *testing.T) {
	shares, err := Split(randomSecret(t), 7, 4)
	require.NoError(t, err)
	for i, s := range shares {
		assert.Equal(t, i+1, s.Index)
		assert.NotZero(t, s.Index)
		assert.True(t, field.InRange(s.Value))
	}
}

func TestSplit_InvalidParameters(t *testing.T) {
	secret := randomSecret(t)

	_, err := Split(secret, 3, 4)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Split(secret, 3, 0)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Split(new(big.Int).Set(field.P), 3, 2)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Split(big.NewInt(-1), 3, 2)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestReconstruct_RejectsBadShares(t *testing.T) {
	shares, err := Split(randomSecret(t), 3, 2)
	require.NoError(t, err)

	dup := []interfaces.SecretShare{shares[0], shares[0]}
	_, err = Reconstruct(dup, 2)
	assert.ErrorIs(t, err, ErrInvalidShare)

	zero := []interfaces.SecretShare{{Index: 0, Value: big.NewInt(1)}, shares[1]}
	_, err = Reconstruct(zero, 2)
	assert.ErrorIs(t, err, ErrInvalidShare)

	outOfRange := []interfaces.SecretShare{{Index: 1, Value: new(big.Int).Set(field.P)}, shares[1]}
	_, err = Reconstruct(outOfRange, 2)
	assert.ErrorIs(t, err, ErrInvalidShare)
}

func TestSplit_SingleShareDoesNotRevealSecret(t *testing.T) {
	// The same secret split twice must give unrelated shares below threshold.
	secret := randomSecret(t)
	a, err := Split(secret, 3, 2)
	require.NoError(t, err)
	b, err := Split(secret, 3, 2)
	require.NoError(t, err)
	assert.NotEqual(t, 0, a[0].Value.Cmp(b[0].Value))
	assert.NotEqual(t, 0, a[0].Value.Cmp(secret))

	// Any candidate secret is consistent with a single share of a degree-1 polynomial:
	// the line through (0, s') and (1, y) always exists.
	candidate := randomSecret(t)
	slope := field.Sub(a[0].Value, candidate)
	line := []interfaces.SecretShare{
		a[0],
		{Index: 2, Value: field.Add(candidate, field.Mul(slope, big.NewInt(2)))},
	}
	got, err := Reconstruct(line, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, candidate.Cmp(got))
}

func TestSplitter_UsesRandomSource(t *testing.T) {
	secret := big.NewInt(42)
	seed := bytes.Repeat([]byte{7}, 4096)

	a, err := NewSplitter(bytes.NewReader(seed)).Split(secret, 3, 2)
	require.NoError(t, err)
	b, err := NewSplitter(bytes.NewReader(seed)).Split(secret, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, a[1].Value.Cmp(b[1].Value))

	_, err = NewSplitter(bytes.NewReader(nil)).Split(secret, 3, 2)
	assert.Error(t, err, "exhausted randomness must fail, not fall back")
}

func TestBytesHelpers(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	key[0] &= 0x7f // keep below P

	shares, err := SplitBytes(key, 5, 3)
	require.NoError(t, err)

	got, err := ReconstructBytes(shares[2:], 3)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = SplitBytes(make([]byte, 33), 3, 2)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
