// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rdh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestHeaderCodec(t *testing.T) {
	for _, tc := range []struct {
		name string
		hdr  Header
	}{
		{
			name: "v4",
			hdr: Header{
				Version:       V4,
				FEEID:         7,
				Priority:      1,
				OffsetToNext:  Size + 32,
				MemorySize:    Size + 32,
				LinkID:        2,
				PacketCounter: 255,
				CRUID:         0xabc,
				Orbit:         0xdeadbeef,
				BunchCrossing: 4095,
				TriggerType:   TriggerOrbit | TriggerHB,
				PageCounter:   3,
				StopBit:       1,
				DetectorField: DetUserLogic,
				Par:           0x1234,
			},
		},
		{
			name: "v6",
			hdr: Header{
				Version:       V6,
				FEEID:         1023,
				SourceID:      SourceMCH,
				OffsetToNext:  Size + 48,
				MemorySize:    Size + 16,
				LinkID:        23,
				PacketCounter: 1,
				CRUID:         12,
				Orbit:         42,
				BunchCrossing: 12,
				TriggerType:   TriggerHB,
				DetectorField: 0x10000,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.hdr.MarshalBinary()
			if err != nil {
				t.Fatalf("could not marshal header: %+v", err)
			}
			if got, want := len(raw), Size; got != want {
				t.Fatalf("invalid size: got=%d, want=%d", got, want)
			}
			if got, want := raw[0], tc.hdr.Version; got != want {
				t.Fatalf("invalid version byte: got=%d, want=%d", got, want)
			}

			var got Header
			err = got.UnmarshalBinary(raw)
			if err != nil {
				t.Fatalf("could not unmarshal header: %+v", err)
			}
			if !reflect.DeepEqual(got, tc.hdr) {
				t.Fatalf("invalid round-trip:\ngot= %v\nwant=%v", got, tc.hdr)
			}
		})
	}
}

func TestHeaderLayout(t *testing.T) {
	hdr := Header{
		Version:       V6,
		FEEID:         0x0102,
		OffsetToNext:  Size,
		MemorySize:    Size,
		CRUID:         0x0304,
		Orbit:         0x05060708,
		BunchCrossing: 0x0a0b,
		DetectorField: DetUserLogic,
	}
	raw, err := hdr.MarshalBinary()
	if err != nil {
		t.Fatalf("could not marshal header: %+v", err)
	}

	le := binary.LittleEndian
	for _, tc := range []struct {
		name string
		got  uint64
		want uint64
	}{
		{"version", uint64(raw[0]), V6},
		{"header-size", uint64(raw[1]), Size},
		{"fee-id", uint64(le.Uint16(raw[2:])), 0x0102},
		{"memory-size", uint64(le.Uint16(raw[10:])), Size},
		{"cru-id", uint64(le.Uint16(raw[14:])), 0x0304},
		{"bc", uint64(le.Uint16(raw[16:])), 0x0a0b},
		{"orbit", uint64(le.Uint32(raw[20:])), 0x05060708},
		{"detector-field", uint64(le.Uint32(raw[48:])), DetUserLogic},
	} {
		if tc.got != tc.want {
			t.Fatalf("%s: got=0x%x, want=0x%x", tc.name, tc.got, tc.want)
		}
	}
	if !hdr.UserLogic() {
		t.Fatalf("user-logic flag not set")
	}
}

func TestHeaderErrors(t *testing.T) {
	valid := func(v uint8) []byte {
		raw, err := Header{Version: v, MemorySize: Size, OffsetToNext: Size}.MarshalBinary()
		if err != nil {
			t.Fatalf("could not marshal header: %+v", err)
		}
		return raw
	}

	for _, tc := range []struct {
		name string
		raw  func() []byte
		want error
	}{
		{
			name: "short",
			raw:  func() []byte { return valid(V4)[:Size-1] },
			want: ErrShortBuffer,
		},
		{
			name: "version",
			raw: func() []byte {
				p := valid(V6)
				p[0] = 5
				return p
			},
			want: ErrUnknownVersion,
		},
		{
			name: "header-size",
			raw: func() []byte {
				p := valid(V6)
				p[1] = 32
				return p
			},
		},
		{
			name: "memory-size",
			raw: func() []byte {
				p := valid(V4)
				binary.LittleEndian.PutUint16(p[10:], 10)
				return p
			},
		},
		{
			name: "offset-to-next",
			raw: func() []byte {
				p := valid(V6)
				binary.LittleEndian.PutUint16(p[8:], Size-1)
				return p
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var hdr Header
			err := hdr.UnmarshalBinary(tc.raw())
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
		})
	}

	_, err := Header{Version: 5}.MarshalBinary()
	if !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("invalid marshal error: %+v", err)
	}
}

func TestNext(t *testing.T) {
	var buf []byte
	for i, v := range []uint8{V4, V6, V4} {
		payload := bytes.Repeat([]byte{byte(i + 1)}, 16*(i+1))
		hdr := Header{
			Version:      v,
			FEEID:        uint16(i),
			MemorySize:   uint16(Size + len(payload)),
			OffsetToNext: uint16(Size + len(payload) + 8*i),
		}
		var err error
		buf, err = hdr.Append(buf)
		if err != nil {
			t.Fatalf("could not append header: %+v", err)
		}
		buf = append(buf, payload...)
		buf = append(buf, make([]byte, 8*i)...)
	}

	for i := 0; len(buf) > 0; i++ {
		hdr, payload, rest, err := Next(buf)
		if err != nil {
			t.Fatalf("could not decode record %d: %+v", i, err)
		}
		if got, want := int(hdr.FEEID), i; got != want {
			t.Fatalf("invalid fee id: got=%d, want=%d", got, want)
		}
		if got, want := payload, bytes.Repeat([]byte{byte(i + 1)}, 16*(i+1)); !bytes.Equal(got, want) {
			t.Fatalf("record %d: invalid payload:\ngot= %v\nwant=%v", i, got, want)
		}
		buf = rest
	}

	raw, _ := Header{Version: V6, MemorySize: Size + 10, OffsetToNext: Size + 10}.MarshalBinary()
	_, _, _, err := Next(raw)
	if !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("invalid error for truncated record: %+v", err)
	}
}

func TestStream(t *testing.T) {
	var (
		w   = new(bytes.Buffer)
		enc = NewEncoder(w)
	)

	payloads := [][]byte{
		[]byte("hello"),
		bytes.Repeat([]byte{0xff}, 300),
		nil,
	}
	for i, p := range payloads {
		hdr := Header{Version: V4 + 2*uint8(i%2), FEEID: uint16(i), Orbit: 12}
		if i == 1 {
			hdr.MemorySize = uint16(Size + len(p))
			hdr.OffsetToNext = hdr.MemorySize + 4
		}
		err := enc.Encode(hdr, p)
		if err != nil {
			t.Fatalf("could not encode record %d: %+v", i, err)
		}
	}

	err := enc.Encode(Header{Version: V4, MemorySize: Size}, []byte{1})
	if err == nil {
		t.Fatalf("expected an error for an invalid memory size")
	}

	dec := NewDecoder(bytes.NewReader(w.Bytes()))
	for i, want := range payloads {
		hdr, got, err := dec.Decode()
		if err != nil {
			t.Fatalf("could not decode record %d: %+v", i, err)
		}
		if hdr.FEEID != uint16(i) || hdr.Orbit != 12 {
			t.Fatalf("record %d: invalid header %v", i, hdr)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("record %d: invalid payload:\ngot= %q\nwant=%q", i, got, want)
		}
	}
	_, _, err = dec.Decode()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %+v", err)
	}

	raw := w.Bytes()
	dec = NewDecoder(bytes.NewReader(raw[:Size+2]))
	_, _, err = dec.Decode()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("invalid error for truncated stream: %+v", err)
	}
}
