// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rdh implements the raw data header (RDH) prefixed to each
// link group payload chunk of a frame unit.
//
// Versions 4 and 6 of the 64-byte little-endian header are supported;
// the version is read from the first byte.
package rdh // import "github.com/go-lpc/mch/rdh"

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/xerrors"
)

const (
	Size = 64 // size of a header, in bytes

	V4 = 4
	V6 = 6

	MaxBunchCrossing = 1<<12 - 1
	MaxCRUID         = 1<<12 - 1

	// DetUserLogic flags, in the detector field, a payload written in
	// the user-logic format.
	DetUserLogic = 1 << 0

	// SourceMCH is the v6 source identifier of the muon chambers.
	SourceMCH = 10

	TriggerOrbit = 1 << 0
	TriggerHB    = 1 << 1
)

var (
	ErrUnknownVersion = xerrors.New("rdh: unknown header version")
	ErrShortBuffer    = xerrors.New("rdh: short buffer")
)

// Header is a raw data header.
type Header struct {
	Version       uint8
	FEEID         uint16 // link group id
	Priority      uint8
	SourceID      uint8  // v6 only
	OffsetToNext  uint16 // offset to the next header, in bytes
	MemorySize    uint16 // header + payload size, in bytes
	LinkID        uint8
	PacketCounter uint8
	CRUID         uint16 // frame unit id (12 bits)
	Orbit         uint32
	BunchCrossing uint16 // 12 bits
	TriggerType   uint32
	PageCounter   uint16
	StopBit       uint8
	DetectorField uint32 // 16 bits in v4
	Par           uint16
}

func (h Header) String() string {
	return fmt.Sprintf(
		"RDH v%d fee=%d cru=%d link=%d orbit=%d bc=%d size=%d next=%d page=%d stop=%d",
		h.Version, h.FEEID, h.CRUID, h.LinkID, h.Orbit, h.BunchCrossing,
		h.MemorySize, h.OffsetToNext, h.PageCounter, h.StopBit,
	)
}

// PayloadSize returns the number of payload bytes following the header.
func (h Header) PayloadSize() int {
	return int(h.MemorySize) - Size
}

// UserLogic returns whether the payload is in the user-logic format.
func (h Header) UserLogic() bool {
	return h.DetectorField&DetUserLogic != 0
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.Append(make([]byte, 0, Size))
}

// Append appends the binary encoding of h to dst.
func (h Header) Append(dst []byte) ([]byte, error) {
	var p [Size]byte
	switch h.Version {
	case V4:
		h.putV4(p[:])
	case V6:
		h.putV6(p[:])
	default:
		return dst, xerrors.Errorf("could not encode version %d: %w", h.Version, ErrUnknownVersion)
	}
	return append(dst, p[:]...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Header) UnmarshalBinary(p []byte) error {
	if len(p) < Size {
		return xerrors.Errorf("could not decode header (%d bytes): %w", len(p), ErrShortBuffer)
	}

	switch p[0] {
	case V4:
		h.getV4(p)
	case V6:
		h.getV6(p)
	default:
		return xerrors.Errorf("could not decode version %d: %w", p[0], ErrUnknownVersion)
	}

	if hsz := p[1]; hsz != Size {
		return xerrors.Errorf("rdh: invalid header size %d", hsz)
	}
	if h.MemorySize < Size {
		return xerrors.Errorf("rdh: invalid memory size %d", h.MemorySize)
	}
	if h.OffsetToNext < h.MemorySize {
		return xerrors.Errorf("rdh: offset to next header (%d) smaller than memory size (%d)", h.OffsetToNext, h.MemorySize)
	}
	return nil
}

func (h *Header) putV4(p []byte) {
	le := binary.LittleEndian
	p[0] = V4
	p[1] = Size
	le.PutUint16(p[2:4], h.OffsetToNext) // block length
	le.PutUint16(p[4:6], h.FEEID)
	p[6] = h.Priority
	le.PutUint16(p[8:10], h.OffsetToNext)
	le.PutUint16(p[10:12], h.MemorySize)
	p[12] = h.LinkID
	p[13] = h.PacketCounter
	le.PutUint16(p[14:16], h.CRUID&MaxCRUID)
	le.PutUint32(p[16:20], h.Orbit) // trigger orbit
	le.PutUint32(p[20:24], h.Orbit) // heartbeat orbit
	le.PutUint16(p[32:34], h.BunchCrossing&MaxBunchCrossing)
	le.PutUint16(p[34:36], h.BunchCrossing&MaxBunchCrossing)
	le.PutUint32(p[36:40], h.TriggerType)
	le.PutUint16(p[48:50], uint16(h.DetectorField))
	le.PutUint16(p[50:52], h.Par)
	p[52] = h.StopBit
	le.PutUint16(p[53:55], h.PageCounter)
}

func (h *Header) getV4(p []byte) {
	le := binary.LittleEndian
	*h = Header{
		Version:       p[0],
		FEEID:         le.Uint16(p[4:6]),
		Priority:      p[6],
		OffsetToNext:  le.Uint16(p[8:10]),
		MemorySize:    le.Uint16(p[10:12]),
		LinkID:        p[12],
		PacketCounter: p[13],
		CRUID:         le.Uint16(p[14:16]) & MaxCRUID,
		Orbit:         le.Uint32(p[20:24]),
		BunchCrossing: le.Uint16(p[34:36]) & MaxBunchCrossing,
		TriggerType:   le.Uint32(p[36:40]),
		DetectorField: uint32(le.Uint16(p[48:50])),
		Par:           le.Uint16(p[50:52]),
		StopBit:       p[52],
		PageCounter:   le.Uint16(p[53:55]),
	}
}

func (h *Header) putV6(p []byte) {
	le := binary.LittleEndian
	p[0] = V6
	p[1] = Size
	le.PutUint16(p[2:4], h.FEEID)
	p[4] = h.Priority
	p[5] = h.SourceID
	le.PutUint16(p[8:10], h.OffsetToNext)
	le.PutUint16(p[10:12], h.MemorySize)
	p[12] = h.LinkID
	p[13] = h.PacketCounter
	le.PutUint16(p[14:16], h.CRUID&MaxCRUID)
	le.PutUint16(p[16:18], h.BunchCrossing&MaxBunchCrossing)
	le.PutUint32(p[20:24], h.Orbit)
	le.PutUint32(p[32:36], h.TriggerType)
	le.PutUint16(p[36:38], h.PageCounter)
	p[38] = h.StopBit
	le.PutUint32(p[48:52], h.DetectorField)
	le.PutUint16(p[52:54], h.Par)
}

func (h *Header) getV6(p []byte) {
	le := binary.LittleEndian
	*h = Header{
		Version:       p[0],
		FEEID:         le.Uint16(p[2:4]),
		Priority:      p[4],
		SourceID:      p[5],
		OffsetToNext:  le.Uint16(p[8:10]),
		MemorySize:    le.Uint16(p[10:12]),
		LinkID:        p[12],
		PacketCounter: p[13],
		CRUID:         le.Uint16(p[14:16]) & MaxCRUID,
		BunchCrossing: le.Uint16(p[16:18]) & MaxBunchCrossing,
		Orbit:         le.Uint32(p[20:24]),
		TriggerType:   le.Uint32(p[32:36]),
		PageCounter:   le.Uint16(p[36:38]),
		StopBit:       p[38],
		DetectorField: le.Uint32(p[48:52]),
		Par:           le.Uint16(p[52:54]),
	}
}

// Next decodes the header at the start of buf and returns it together
// with its payload and the remaining bytes after the record.
func Next(buf []byte) (hdr Header, payload, rest []byte, err error) {
	err = hdr.UnmarshalBinary(buf)
	if err != nil {
		return hdr, nil, buf, err
	}
	if len(buf) < int(hdr.OffsetToNext) {
		return hdr, nil, buf, xerrors.Errorf(
			"could not read record of %d bytes (have %d): %w",
			hdr.OffsetToNext, len(buf), ErrShortBuffer,
		)
	}
	return hdr, buf[Size:hdr.MemorySize], buf[hdr.OffsetToNext:], nil
}
