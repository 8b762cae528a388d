// Package field implements modular arithmetic over the prime field used for
// secret sharing. The modulus is the secp256k1 group order, so any valid
// secp256k1 private key is a field element.
package field

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// ElementSize is the length in bytes of a serialized field element.
const ElementSize = 32

// P is the field modulus (secp256k1 group order).
var P, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

var (
	// ErrNoInverse is returned when the inverse of an element congruent to zero is requested.
	ErrNoInverse = errors.New("field: element has no multiplicative inverse")

	// ErrOutOfRange is returned when bytes decode to a value outside [0, P).
	ErrOutOfRange = errors.New("field: value out of range")
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
	two  = big.NewInt(2)
)

// Mod reduces a into [0, P).
func Mod(a *big.Int) *big.Int {
	r := new(big.Int).Mod(a, P)
	return r
}

// Add returns (a + b) mod P.
func Add(a, b *big.Int) *big.Int {
	return Mod(new(big.Int).Add(a, b))
}

// Sub returns (a - b) mod P, always non-negative.
func Sub(a, b *big.Int) *big.Int {
	return Mod(new(big.Int).Sub(a, b))
}

// Mul returns (a * b) mod P.
func Mul(a, b *big.Int) *big.Int {
	return Mod(new(big.Int).Mul(a, b))
}

// Pow computes base^exp mod m by square-and-multiply. It panics on a negative exp;
// use Inverse for negative powers.
func Pow(base, exp, m *big.Int) *big.Int {
	if exp.Sign() < 0 {
		panic("field: negative exponent")
	}
	if m.Cmp(one) == 0 {
		return big.NewInt(0)
	}
	result := big.NewInt(1)
	b := new(big.Int).Mod(base, m)
	e := new(big.Int).Set(exp)
	r := new(big.Int)
	for e.Sign() > 0 {
		if r.Mod(e, two).Cmp(one) == 0 {
			result.Mul(result, b).Mod(result, m)
		}
		e.Rsh(e, 1)
		b.Mul(b, b).Mod(b, m)
	}
	return result
}

// Inverse returns the multiplicative inverse of a modulo m using the extended
// Euclidean algorithm. Elements congruent to zero have no inverse.
func Inverse(a, m *big.Int) (*big.Int, error) {
	oldR := new(big.Int).Mod(a, m)
	if oldR.Sign() == 0 {
		return nil, ErrNoInverse
	}
	r := new(big.Int).Set(m)
	oldS, s := big.NewInt(1), big.NewInt(0)

	q := new(big.Int)
	tmp := new(big.Int)
	for r.Sign() != 0 {
		q.Div(oldR, r)

		tmp.Mul(q, r)
		oldR, r = r, new(big.Int).Sub(oldR, tmp)

		tmp.Mul(q, s)
		oldS, s = s, new(big.Int).Sub(oldS, tmp)
	}
	if oldR.Cmp(one) != 0 {
		// gcd(a, m) != 1, only possible for a composite modulus
		return nil, fmt.Errorf("%w: gcd is %s", ErrNoInverse, oldR.String())
	}
	return oldS.Mod(oldS, m), nil
}

// Div returns a / b mod P.
func Div(a, b *big.Int) (*big.Int, error) {
	inv, err := Inverse(b, P)
	if err != nil {
		return nil, err
	}
	return Mul(a, inv), nil
}

// Random draws a uniformly distributed element of [0, P) from the given source.
// A nil source uses crypto/rand.
func Random(source io.Reader) (*big.Int, error) {
	if source == nil {
		source = rand.Reader
	}
	n, err := rand.Int(source, P)
	if err != nil {
		return nil, fmt.Errorf("failed to sample field element: %w", err)
	}
	return n, nil
}

// FromBytes decodes a big-endian value and checks it is a field element.
func FromBytes(b []byte) (*big.Int, error) {
	if len(b) > ElementSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrOutOfRange, len(b))
	}
	v := new(big.Int).SetBytes(b)
	if v.Cmp(P) >= 0 {
		return nil, ErrOutOfRange
	}
	return v, nil
}

// ToBytes encodes a field element as 32 big-endian bytes.
func ToBytes(v *big.Int) []byte {
	out := make([]byte, ElementSize)
	Mod(v).FillBytes(out)
	return out
}

// InRange reports whether 0 <= v < P.
func InRange(v *big.Int) bool {
	return v != nil && v.Cmp(zero) >= 0 && v.Cmp(P) < 0
}
