// Package payload encrypts noised samples element by element and serializes
// the resulting ciphertext stream for transport.
package payload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/privgraph/modelhub/internal/paillier"
)

// DefaultKeyBits is the modulus size used when Options.KeyBits is zero.
const DefaultKeyBits = 512

// Format names a payload byte layout.
type Format string

const (
	// FormatLegacy renders each ciphertext as its decimal digits, one byte per
	// digit, with no delimiter between ciphertexts. It can only be split with
	// the digit lengths recorded at encryption time.
	FormatLegacy Format = "legacy"
	// FormatFramed prefixes each ciphertext's big-endian bytes with a 4-byte
	// big-endian length.
	FormatFramed Format = "framed"
)

var (
	// ErrEmptySample is returned when there is nothing to encrypt.
	ErrEmptySample = errors.New("empty sample")
	// ErrMalformedPayload is returned when a byte stream does not split into ciphertexts.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnknownFormat is returned for a format name other than legacy or framed.
	ErrUnknownFormat = errors.New("unknown payload format")
)

// ParseFormat accepts "legacy" or "framed"; empty means framed.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatFramed:
		return FormatFramed, nil
	case FormatLegacy:
		return FormatLegacy, nil
	}
	return "", fmt.Errorf("%w: %q (use legacy or framed)", ErrUnknownFormat, s)
}

// Payload is an encoded ciphertext stream.
type Payload struct {
	Format Format `json:"format"`
	Data   []byte `json:"-"`
	// DigitLengths holds the decimal length of every ciphertext, in order.
	// Only legacy payloads need it to be split again.
	DigitLengths []int `json:"digit_lengths,omitempty"`
}

// Count returns the number of ciphertexts in p.
func (p *Payload) Count() int {
	return len(p.DigitLengths)
}

// Options configures Encrypt.
type Options struct {
	KeyBits int
	Format  Format
	// Workers bounds per-element parallelism; zero means GOMAXPROCS.
	Workers int
	// Random is the entropy source for keys and ciphertexts; nil means
	// crypto/rand. Workers read it one at a time, so it need not be safe for
	// concurrent use.
	Random io.Reader
}

func (o Options) withDefaults() Options {
	if o.KeyBits == 0 {
		o.KeyBits = DefaultKeyBits
	}
	if o.Format == "" {
		o.Format = FormatFramed
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Encrypt generates a fresh key pair, encrypts every element of sample under
// it and returns the encoded stream with the public key. The private key is
// not returned.
func Encrypt(ctx context.Context, sample []float64, opts Options) (*Payload, *paillier.PublicKey, error) {
	opts = opts.withDefaults()
	if len(sample) == 0 {
		return nil, nil, ErrEmptySample
	}

	sk, err := paillier.GenerateKey(opts.Random, opts.KeyBits)
	if err != nil {
		return nil, nil, err
	}
	pub := sk.Public()

	p, err := EncryptWithKey(ctx, sample, pub, opts)
	if err != nil {
		return nil, nil, err
	}
	return p, pub, nil
}

// EncryptWithKey encrypts every element of sample under pub. Elements are
// coerced with Quantize and encrypted in parallel; the stream keeps the
// sample's order. Any element failure aborts the whole payload.
func EncryptWithKey(ctx context.Context, sample []float64, pub *paillier.PublicKey, opts Options) (*Payload, error) {
	opts = opts.withDefaults()
	if len(sample) == 0 {
		return nil, ErrEmptySample
	}

	stream, err := encryptAll(ctx, sample, pub, opts)
	if err != nil {
		return nil, err
	}
	return Encode(stream, opts.Format)
}

func encryptAll(ctx context.Context, sample []float64, pub *paillier.PublicKey, opts Options) ([]*big.Int, error) {
	stream := make([]*big.Int, len(sample))
	random := opts.Random
	if random != nil {
		random = &lockedReader{r: random}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, v := range sample {
		i, v := i, v
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := pub.Encrypt(random, Quantize(v, pub.N))
			if err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			stream[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stream, nil
}

// lockedReader serializes reads from a reader shared by the workers.
type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}

// Quantize is the fixed real-to-plaintext coercion: round half to even, then
// clamp into [0, n-1]. NaN maps to 0. Negative noised values therefore
// decrypt as 0 and values beyond the modulus as n-1.
func Quantize(v float64, n *big.Int) *big.Int {
	if math.IsNaN(v) || v <= 0 {
		return new(big.Int)
	}
	max := new(big.Int).Sub(n, big.NewInt(1))
	if math.IsInf(v, 1) {
		return max
	}

	r := math.RoundToEven(v)
	bf := new(big.Float).SetFloat64(r)
	out, _ := bf.Int(nil)
	if out.Cmp(max) > 0 {
		return max
	}
	return out
}
