package payload

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Encode serializes an ordered ciphertext stream in the given format.
func Encode(stream []*big.Int, format Format) (*Payload, error) {
	if len(stream) == 0 {
		return nil, ErrEmptySample
	}

	p := &Payload{Format: format, DigitLengths: make([]int, len(stream))}
	switch format {
	case FormatLegacy:
		for i, c := range stream {
			digits := c.String()
			p.DigitLengths[i] = len(digits)
			// each decimal digit is emitted as its character code
			p.Data = append(p.Data, digits...)
		}
	case FormatFramed:
		var hdr [4]byte
		for i, c := range stream {
			p.DigitLengths[i] = len(c.String())
			b := c.Bytes()
			binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
			p.Data = append(p.Data, hdr[:]...)
			p.Data = append(p.Data, b...)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return p, nil
}

// Split recovers the ciphertext stream of a legacy payload using the digit
// lengths recorded when it was encoded.
func Split(data []byte, digitLengths []int) ([]*big.Int, error) {
	stream := make([]*big.Int, 0, len(digitLengths))
	off := 0
	for i, n := range digitLengths {
		if n <= 0 || off+n > len(data) {
			return nil, fmt.Errorf("%w: ciphertext %d overruns payload", ErrMalformedPayload, i)
		}
		for _, d := range data[off : off+n] {
			if d < '0' || d > '9' {
				return nil, fmt.Errorf("%w: non-digit byte 0x%02x in ciphertext %d", ErrMalformedPayload, d, i)
			}
		}
		c, ok := new(big.Int).SetString(string(data[off:off+n]), 10)
		if !ok {
			return nil, fmt.Errorf("%w: ciphertext %d", ErrMalformedPayload, i)
		}
		stream = append(stream, c)
		off += n
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, len(data)-off)
	}
	return stream, nil
}

// Unframe parses a framed payload.
func Unframe(data []byte) ([]*big.Int, error) {
	var stream []*big.Int
	for off := 0; off < len(data); {
		if len(data)-off < 4 {
			return nil, fmt.Errorf("%w: truncated frame header at offset %d", ErrMalformedPayload, off)
		}
		n := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		if n == 0 || n > len(data)-off {
			return nil, fmt.Errorf("%w: frame of %d bytes at offset %d", ErrMalformedPayload, n, off-4)
		}
		stream = append(stream, new(big.Int).SetBytes(data[off:off+n]))
		off += n
	}
	return stream, nil
}

// Decode recovers the ordered ciphertext stream of p.
func Decode(p *Payload) ([]*big.Int, error) {
	switch p.Format {
	case FormatLegacy:
		if len(p.DigitLengths) == 0 {
			return nil, fmt.Errorf("%w: legacy payload without digit lengths", ErrMalformedPayload)
		}
		return Split(p.Data, p.DigitLengths)
	case FormatFramed:
		return Unframe(p.Data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, p.Format)
}
