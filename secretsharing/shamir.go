// Package secretsharing implements Shamir's Secret Sharing over the prime field
// defined in package field.
//
// A secret s is hidden as the constant term of a random polynomial
// f(x) = s + c1·x + ... + c(t-1)·x^(t-1). Share i is the point (i, f(i)) for
// i = 1..n, and any t shares recover s by Lagrange interpolation at x = 0.
// With fewer than t shares every candidate secret is equally likely, provided
// the coefficients are uniform over the field and x = 0 is never issued.
package secretsharing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ruteri/guardian-recovery/field"
	"github.com/ruteri/guardian-recovery/interfaces"
)

var (
	// ErrInsufficientShares is returned when fewer than threshold shares are supplied.
	ErrInsufficientShares = errors.New("insufficient shares to reconstruct secret")

	// ErrInvalidParameters is returned for an invalid (n, threshold) pair or an out-of-range secret.
	ErrInvalidParameters = errors.New("invalid secret sharing parameters")

	// ErrInvalidShare is returned for shares with a zero, out-of-range or duplicate x coordinate.
	ErrInvalidShare = errors.New("invalid share")
)

// Splitter splits secrets using a configurable randomness source.
type Splitter struct {
	rand io.Reader
}

// NewSplitter returns a Splitter drawing coefficients from source.
// A nil source uses crypto/rand.
func NewSplitter(source io.Reader) *Splitter {
	if source == nil {
		source = rand.Reader
	}
	return &Splitter{rand: source}
}

// Split is Splitter.Split with crypto/rand.
func Split(secret *big.Int, n, threshold int) ([]interfaces.SecretShare, error) {
	return NewSplitter(nil).Split(secret, n, threshold)
}

// Split divides secret into n shares, any threshold of which reconstruct it.
func (s *Splitter) Split(secret *big.Int, n, threshold int) ([]interfaces.SecretShare, error) {
	if threshold < 1 || threshold > n {
		return nil, fmt.Errorf("%w: threshold %d with %d shares", ErrInvalidParameters, threshold, n)
	}
	if !field.InRange(secret) {
		return nil, fmt.Errorf("%w: secret not a field element", ErrInvalidParameters)
	}

	coefficients := make([]*big.Int, threshold)
	coefficients[0] = new(big.Int).Set(secret)
	for i := 1; i < threshold; i++ {
		c, err := field.Random(s.rand)
		if err != nil {
			return nil, err
		}
		coefficients[i] = c
	}
	defer func() {
		for _, c := range coefficients {
			c.SetInt64(0)
		}
	}()

	shares := make([]interfaces.SecretShare, n)
	for x := 1; x <= n; x++ {
		shares[x-1] = interfaces.SecretShare{
			Index: x,
			Value: evaluate(coefficients, big.NewInt(int64(x))),
		}
	}
	return shares, nil
}

// evaluate computes f(x) with Horner's rule.
func evaluate(coefficients []*big.Int, x *big.Int) *big.Int {
	y := big.NewInt(0)
	for i := len(coefficients) - 1; i >= 0; i-- {
		y = field.Add(field.Mul(y, x), coefficients[i])
	}
	return y
}

// Reconstruct recovers the secret from at least threshold shares.
// Only the first threshold shares are used; any valid subset yields the same secret.
func Reconstruct(shares []interfaces.SecretShare, threshold int) (*big.Int, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("%w: threshold %d", ErrInvalidParameters, threshold)
	}
	if len(shares) < threshold {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, len(shares), threshold)
	}

	used := shares[:threshold]
	seen := make(map[int]struct{}, threshold)
	for _, share := range used {
		if share.Index < 1 || big.NewInt(int64(share.Index)).Cmp(field.P) >= 0 {
			return nil, fmt.Errorf("%w: x=%d", ErrInvalidShare, share.Index)
		}
		if !field.InRange(share.Value) {
			return nil, fmt.Errorf("%w: value of x=%d out of range", ErrInvalidShare, share.Index)
		}
		if _, dup := seen[share.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate x=%d", ErrInvalidShare, share.Index)
		}
		seen[share.Index] = struct{}{}
	}

	secret := big.NewInt(0)
	for i, si := range used {
		xi := big.NewInt(int64(si.Index))
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, sj := range used {
			if i == j {
				continue
			}
			xj := big.NewInt(int64(sj.Index))
			num = field.Mul(num, field.Sub(big.NewInt(0), xj))
			den = field.Mul(den, field.Sub(xi, xj))
		}
		basis, err := field.Div(num, den)
		if err != nil {
			return nil, fmt.Errorf("lagrange basis for x=%d: %w", si.Index, err)
		}
		secret = field.Add(secret, field.Mul(si.Value, basis))
	}
	return secret, nil
}

// SplitBytes splits a big-endian secret of at most 32 bytes.
func SplitBytes(secret []byte, n, threshold int) ([]interfaces.SecretShare, error) {
	v, err := field.FromBytes(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	defer v.SetInt64(0)
	return Split(v, n, threshold)
}

// ReconstructBytes recovers a secret as 32 big-endian bytes.
func ReconstructBytes(shares []interfaces.SecretShare, threshold int) ([]byte, error) {
	v, err := Reconstruct(shares, threshold)
	if err != nil {
		return nil, err
	}
	out := field.ToBytes(v)
	v.SetInt64(0)
	return out, nil
}
