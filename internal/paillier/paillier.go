// Package paillier implements the Paillier additively homomorphic cryptosystem
// with the g = n+1 simplification.
package paillier

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// MinKeyBits is the smallest modulus size GenerateKey accepts.
const MinKeyBits = 64

var (
	// ErrKeyGeneration is returned when a valid key pair cannot be produced.
	ErrKeyGeneration = errors.New("key generation failed")
	// ErrPlaintextOutOfRange is returned for plaintexts outside [0, n).
	ErrPlaintextOutOfRange = errors.New("plaintext out of range")
	// ErrCiphertextInvalid is returned for ciphertexts outside the group of units mod n².
	ErrCiphertextInvalid = errors.New("invalid ciphertext")
)

var one = big.NewInt(1)

// PublicKey encrypts plaintexts in [0, N).
type PublicKey struct {
	N        *big.Int
	NSquared *big.Int
}

// PrivateKey holds the decryption trapdoor for its embedded PublicKey.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int
	Mu     *big.Int
}

// NewPublicKey rebuilds a public key from its modulus.
func NewPublicKey(n *big.Int) *PublicKey {
	return &PublicKey{N: new(big.Int).Set(n), NSquared: new(big.Int).Mul(n, n)}
}

// GenerateKey returns a fresh key pair whose modulus is exactly bits long.
// A nil random uses crypto/rand.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < MinKeyBits || bits%2 != 0 {
		return nil, fmt.Errorf("%w: key size must be an even number of bits >= %d, got %d", ErrKeyGeneration, MinKeyBits, bits)
	}
	if random == nil {
		random = rand.Reader
	}

	for attempt := 0; attempt < 64; attempt++ {
		p, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
		}
		q, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}

		pm1 := new(big.Int).Sub(p, one)
		qm1 := new(big.Int).Sub(q, one)
		gcd := new(big.Int).GCD(nil, nil, pm1, qm1)
		lambda := new(big.Int).Mul(pm1, qm1)
		lambda.Div(lambda, gcd)

		mu := new(big.Int).ModInverse(lambda, n)
		if mu == nil {
			continue
		}

		return &PrivateKey{
			PublicKey: *NewPublicKey(n),
			Lambda:    lambda,
			Mu:        mu,
		}, nil
	}
	return nil, fmt.Errorf("%w: no suitable primes after repeated attempts", ErrKeyGeneration)
}

// Encrypt returns (1 + m·n)·rⁿ mod n² for a fresh random r coprime to n.
// Two encryptions of the same m differ with overwhelming probability.
func (pk *PublicKey) Encrypt(random io.Reader, m *big.Int) (*big.Int, error) {
	if m == nil || m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, fmt.Errorf("%w: plaintext must be in [0, n)", ErrPlaintextOutOfRange)
	}
	if random == nil {
		random = rand.Reader
	}

	r, err := pk.randomUnit(random)
	if err != nil {
		return nil, err
	}

	// g^m = (n+1)^m = 1 + m·n (mod n²)
	gm := new(big.Int).Mul(m, pk.N)
	gm.Add(gm, one)
	gm.Mod(gm, pk.NSquared)

	rn := new(big.Int).Exp(r, pk.N, pk.NSquared)
	c := gm.Mul(gm, rn)
	return c.Mod(c, pk.NSquared), nil
}

func (pk *PublicKey) randomUnit(random io.Reader) (*big.Int, error) {
	for {
		r, err := rand.Int(random, pk.N)
		if err != nil {
			return nil, fmt.Errorf("draw randomness: %w", err)
		}
		if r.Sign() == 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			return r, nil
		}
	}
}

// Add returns a ciphertext of m1+m2 mod n.
func (pk *PublicKey) Add(c1, c2 *big.Int) (*big.Int, error) {
	if err := pk.checkCiphertext(c1); err != nil {
		return nil, err
	}
	if err := pk.checkCiphertext(c2); err != nil {
		return nil, err
	}
	c := new(big.Int).Mul(c1, c2)
	return c.Mod(c, pk.NSquared), nil
}

// AddPlain returns a ciphertext of m+k mod n without re-randomizing c.
func (pk *PublicKey) AddPlain(c, k *big.Int) (*big.Int, error) {
	if err := pk.checkCiphertext(c); err != nil {
		return nil, err
	}
	gk := new(big.Int).Mod(k, pk.N)
	gk.Mul(gk, pk.N)
	gk.Add(gk, one)
	out := gk.Mul(gk, c)
	return out.Mod(out, pk.NSquared), nil
}

// MulPlain returns a ciphertext of m·k mod n.
func (pk *PublicKey) MulPlain(c, k *big.Int) (*big.Int, error) {
	if err := pk.checkCiphertext(c); err != nil {
		return nil, err
	}
	e := new(big.Int).Mod(k, pk.N)
	return new(big.Int).Exp(c, e, pk.NSquared), nil
}

// Decrypt returns L(c^λ mod n²)·μ mod n, where L(x) = (x-1)/n.
func (sk *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if err := sk.checkCiphertext(c); err != nil {
		return nil, err
	}
	x := new(big.Int).Exp(c, sk.Lambda, sk.NSquared)
	x.Sub(x, one)
	x.Div(x, sk.N)
	x.Mul(x, sk.Mu)
	return x.Mod(x, sk.N), nil
}

// Public returns the public half of the pair.
func (sk *PrivateKey) Public() *PublicKey {
	return &sk.PublicKey
}

func (pk *PublicKey) checkCiphertext(c *big.Int) error {
	if c == nil || c.Sign() <= 0 || c.Cmp(pk.NSquared) >= 0 {
		return fmt.Errorf("%w: ciphertext must be in [1, n²)", ErrCiphertextInvalid)
	}
	if new(big.Int).GCD(nil, nil, c, pk.N).Cmp(one) != 0 {
		return fmt.Errorf("%w: ciphertext shares a factor with n", ErrCiphertextInvalid)
	}
	return nil
}

type publicKeyJSON struct {
	N string `json:"n"`
}

// MarshalJSON encodes the modulus as a decimal string.
func (pk *PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(publicKeyJSON{N: pk.N.String()})
}

// UnmarshalJSON decodes a key written by MarshalJSON.
func (pk *PublicKey) UnmarshalJSON(b []byte) error {
	var raw publicKeyJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	n, ok := new(big.Int).SetString(raw.N, 10)
	if !ok || n.Sign() <= 0 {
		return fmt.Errorf("invalid public key modulus %q", raw.N)
	}
	*pk = *NewPublicKey(n)
	return nil
}
