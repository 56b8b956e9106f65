// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gbt

import (
	"encoding/binary"

	"github.com/go-lpc/mch/sampa"
	"golang.org/x/xerrors"
)

// User-logic word layout (64 bits, little-endian):
//
//	bits  0-49: elink bits, earliest bit first
//	bits 50-55: elink index
//	bits 56-63: reserved, must be zero
const (
	ULWordSize = 8

	ulDataMask = 1<<sampa.HeaderSize - 1
	ulLinkPos  = 50
	ulLinkMask = 0x3f
	ulResPos   = 56
)

// UserLogicEncoder encodes the elinks of a group in the user-logic format.
// Each elink is padded with idle sync bits to a multiple of 50 bits and
// its words are written link after link, in ascending link order.
type UserLogicEncoder struct {
	group uint16
	links links
}

// NewUserLogicEncoder creates a user-logic encoder for the given link group.
func NewUserLogicEncoder(group uint16, mode sampa.Mode, opts ...Option) *UserLogicEncoder {
	return &UserLogicEncoder{
		group: group,
		links: links{mode: mode, cfg: newConfig(opts)},
	}
}

// Group returns the link group id of the encoder.
func (enc *UserLogicEncoder) Group() uint16 { return enc.group }

func (enc *UserLogicEncoder) AddChannelData(link int, chip, channel uint8, bx uint32, clusters []sampa.Cluster) error {
	e, ok := enc.links.get(link)
	if !ok {
		return xerrors.Errorf("gbt: invalid link index %d for group %d", link, enc.group)
	}
	err := e.AddChannelData(chip, channel, bx, clusters)
	if err != nil {
		return xerrors.Errorf("gbt: could not add channel data to link %d of group %d: %w", link, enc.group, err)
	}
	enc.links.dirty = true
	return nil
}

func (enc *UserLogicEncoder) AddHeartbeat(link int, chip uint8, bx uint32) error {
	e, ok := enc.links.get(link)
	if !ok {
		return xerrors.Errorf("gbt: invalid link index %d for group %d", link, enc.group)
	}
	e.AddHeartbeat(chip, bx)
	enc.links.dirty = true
	return nil
}

func (enc *UserLogicEncoder) Empty() bool { return !enc.links.dirty }

func (enc *UserLogicEncoder) MoveToBuffer(dst []byte) []byte {
	if enc.Empty() {
		return dst
	}

	var buf [ULWordSize]byte
	for i, e := range enc.links.elink {
		if e == nil || e.Len() == 0 {
			continue
		}
		if r := e.Len() % sampa.HeaderSize; r != 0 {
			e.FillWithSync(sampa.HeaderSize - r)
		}
		bits := e.Bits()
		for pos := 0; pos < bits.Len(); pos += sampa.HeaderSize {
			w := bits.Uint(pos, sampa.HeaderSize) | uint64(i)<<ulLinkPos
			binary.LittleEndian.PutUint64(buf[:], w)
			dst = append(dst, buf[:]...)
		}
		e.Clear()
	}
	enc.links.dirty = false
	return dst
}

// UserLogicDecoder decodes user-logic words into elink decoders.
type UserLogicDecoder struct {
	group uint16
	elink [NumLanes]*sampa.ElinkDecoder
	trunc int
	bad   int
}

// NewUserLogicDecoder creates a user-logic decoder for the given link group.
func NewUserLogicDecoder(group uint16, mode sampa.Mode, sink LaneSink) *UserLogicDecoder {
	dec := &UserLogicDecoder{group: group}
	for i := range dec.elink {
		dec.elink[i] = sampa.NewElinkDecoder(mode, laneSink(i, sink))
	}
	return dec
}

// Group returns the link group id of the decoder.
func (dec *UserLogicDecoder) Group() uint16 { return dec.group }

// Decode consumes the words of p. Words with a non-zero reserved field
// or an invalid link index are dropped and counted.
func (dec *UserLogicDecoder) Decode(p []byte) {
	for len(p) >= ULWordSize {
		w := binary.LittleEndian.Uint64(p)
		p = p[ULWordSize:]

		link := int((w >> ulLinkPos) & ulLinkMask)
		if w>>ulResPos != 0 || link >= NumLanes {
			dec.bad++
			continue
		}
		dec.elink[link].Append50(w & ulDataMask)
	}
	dec.trunc += len(p)
}

func (dec *UserLogicDecoder) Stats() Stats {
	st := Stats{TruncatedBytes: dec.trunc, BadWords: dec.bad}
	for i, e := range dec.elink {
		st.Lanes[i] = e.Stats()
	}
	return st
}

// Elink returns the decoder of the given lane.
func (dec *UserLogicDecoder) Elink(link int) *sampa.ElinkDecoder { return dec.elink[link] }

var (
	_ GroupEncoder = (*UserLogicEncoder)(nil)
	_ GroupDecoder = (*UserLogicDecoder)(nil)
)
