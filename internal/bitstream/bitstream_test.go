// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitstream

import (
	"bytes"
	"testing"
)

func TestStream(t *testing.T) {
	var s Stream
	s.AppendUint(0x1555540F00113, 50)
	s.AppendUint(0x3ff, 10)
	s.Append(true)

	if got, want := s.Len(), 61; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}

	for _, tc := range []struct {
		pos, n int
		want   uint64
	}{
		{0, 50, 0x1555540F00113},
		{0, 6, 0x13},
		{7, 3, 2},
		{50, 10, 0x3ff},
		{48, 13, 1 | 0x3ff<<2 | 1<<12},
		{60, 1, 1},
	} {
		got, err := s.UintErr(tc.pos, tc.n)
		if err != nil {
			t.Fatalf("could not extract [%d, %d): %+v", tc.pos, tc.pos+tc.n, err)
		}
		if got != tc.want {
			t.Fatalf("invalid window [%d, %d): got=0x%x, want=0x%x", tc.pos, tc.pos+tc.n, got, tc.want)
		}
	}

	for _, tc := range []struct {
		pos, n int
		want   string
	}{
		{-1, 2, "bitstream: window [-1, 1) out of range [0, 61)"},
		{60, 2, "bitstream: window [60, 62) out of range [0, 61)"},
		{0, 65, "bitstream: invalid window width 65"},
	} {
		_, err := s.UintErr(tc.pos, tc.n)
		if err == nil {
			t.Fatalf("expected an error for [%d, %d)", tc.pos, tc.pos+tc.n)
		}
		if got, want := err.Error(), tc.want; got != want {
			t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
		}
	}

	s.Reset()
	if got, want := s.Len(), 0; got != want {
		t.Fatalf("invalid length after reset: got=%d, want=%d", got, want)
	}
	s.AppendUint(0x5, 3)
	if got, want := s.String(), "101"; got != want {
		t.Fatalf("invalid stream after reset: got=%q, want=%q", got, want)
	}
}

func TestBytes(t *testing.T) {
	s := New(16)
	s.AppendUint(0xa5, 8)
	s.AppendUint(0x3, 3)

	if got, want := s.Bytes(), []byte{0xa5, 0x03}; !bytes.Equal(got, want) {
		t.Fatalf("invalid bytes: got=%x, want=%x", got, want)
	}

	var o Stream
	o.AppendStream(s)
	if got, want := o.String(), s.String(); got != want {
		t.Fatalf("invalid copy: got=%q, want=%q", got, want)
	}
}

func TestBitPanics(t *testing.T) {
	defer func() {
		e := recover()
		if e == nil {
			t.Fatalf("expected a panic")
		}
	}()
	var s Stream
	s.Bit(0)
}
