// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitstream provides an append-only sequence of bits.
//
// Bit 0 is the first bit appended. Multi-bit values are appended and
// extracted LSB first: the least significant bit of a value is the
// earliest bit in the stream.
package bitstream // import "github.com/go-lpc/mch/internal/bitstream"

import (
	"fmt"
)

// Stream is an append-only sequence of bits.
// The zero value is an empty stream ready to use.
type Stream struct {
	words []uint64
	n     int
}

// New returns a new stream with room for n bits.
func New(n int) *Stream {
	return &Stream{words: make([]uint64, 0, (n+63)/64)}
}

// Len returns the number of bits in the stream.
func (s *Stream) Len() int { return s.n }

// Reset empties the stream, keeping its storage.
func (s *Stream) Reset() {
	for i := range s.words {
		s.words[i] = 0
	}
	s.words = s.words[:0]
	s.n = 0
}

// Append appends one bit.
func (s *Stream) Append(bit bool) {
	i := s.n >> 6
	if i == len(s.words) {
		s.words = append(s.words, 0)
	}
	if bit {
		s.words[i] |= 1 << uint(s.n&63)
	}
	s.n++
}

// AppendUint appends the n least significant bits of v, LSB first.
func (s *Stream) AppendUint(v uint64, n int) {
	for i := 0; i < n; i++ {
		s.Append((v>>uint(i))&1 == 1)
	}
}

// AppendStream appends all the bits of o.
func (s *Stream) AppendStream(o *Stream) {
	for i := 0; i < o.n; i++ {
		s.Append(o.Bit(i))
	}
}

// Bit returns the bit at position i.
// Bit panics if i is out of range.
func (s *Stream) Bit(i int) bool {
	if i < 0 || i >= s.n {
		panic(fmt.Errorf("bitstream: index %d out of range [0, %d)", i, s.n))
	}
	return (s.words[i>>6]>>uint(i&63))&1 == 1
}

// Uint returns the n-bit value (n <= 64) starting at bit pos.
// Uint panics if the window is out of range.
func (s *Stream) Uint(pos, n int) uint64 {
	v, err := s.UintErr(pos, n)
	if err != nil {
		panic(err)
	}
	return v
}

// UintErr returns the n-bit value (n <= 64) starting at bit pos.
func (s *Stream) UintErr(pos, n int) (uint64, error) {
	switch {
	case n < 0 || n > 64:
		return 0, fmt.Errorf("bitstream: invalid window width %d", n)
	case pos < 0 || pos+n > s.n:
		return 0, fmt.Errorf("bitstream: window [%d, %d) out of range [0, %d)", pos, pos+n, s.n)
	}
	var v uint64
	for i := 0; i < n; i++ {
		j := pos + i
		v |= ((s.words[j>>6] >> uint(j&63)) & 1) << uint(i)
	}
	return v, nil
}

// Bytes returns the stream packed into bytes, bit 0 being the least
// significant bit of the first byte. Trailing bits of the last byte are zero.
func (s *Stream) Bytes() []byte {
	out := make([]byte, (s.n+7)/8)
	for i := range out {
		out[i] = byte(s.words[i>>3] >> uint(8*(i&7)))
	}
	return out
}

// String returns the stream as a string of '0' and '1', first bit first.
func (s *Stream) String() string {
	o := make([]byte, s.n)
	for i := range o {
		o[i] = '0'
		if s.Bit(i) {
			o[i] = '1'
		}
	}
	return string(o)
}
