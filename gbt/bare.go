// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gbt

import (
	"github.com/go-lpc/mch/sampa"
	"golang.org/x/xerrors"
)

// Encoder multiplexes the elinks of a group into bare-format words.
type Encoder struct {
	group uint16
	links links
}

// NewEncoder creates a bare-format encoder for the given link group.
func NewEncoder(group uint16, mode sampa.Mode, opts ...Option) *Encoder {
	return &Encoder{
		group: group,
		links: links{mode: mode, cfg: newConfig(opts)},
	}
}

// Group returns the link group id of the encoder.
func (enc *Encoder) Group() uint16 { return enc.group }

func (enc *Encoder) AddChannelData(link int, chip, channel uint8, bx uint32, clusters []sampa.Cluster) error {
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

func (enc *Encoder) AddHeartbeat(link int, chip uint8, bx uint32) error {
	e, ok := enc.links.get(link)
	if !ok {
		return xerrors.Errorf("gbt: invalid link index %d for group %d", link, enc.group)
	}
	e.AddHeartbeat(chip, bx)
	enc.links.dirty = true
	return nil
}

func (enc *Encoder) Empty() bool { return !enc.links.dirty }

// MoveToBuffer aligns all the elinks of the group on a common length,
// padding with idle sync bits, and appends the resulting words to dst.
// Lanes without an elink encoder carry zero bits.
func (enc *Encoder) MoveToBuffer(dst []byte) []byte {
	if enc.Empty() {
		return dst
	}

	n := enc.links.maxLen()
	n += n & 1
	for _, e := range enc.links.elink {
		if e == nil {
			continue
		}
		e.FillWithSync(n - e.Len())
	}

	var w Word
	for tick := 0; tick < n; tick += 2 {
		w = Word{}
		for i, e := range enc.links.elink {
			if e == nil {
				continue
			}
			bits := e.Bits()
			w.SetLane(i, bits.Bit(tick), bits.Bit(tick+1))
		}
		dst = w.Append(dst)
	}

	for _, e := range enc.links.elink {
		if e != nil {
			e.Clear()
		}
	}
	enc.links.dirty = false
	return dst
}

// Decoder demultiplexes bare-format words into elink decoders.
type Decoder struct {
	group uint16
	elink [NumLanes]*sampa.ElinkDecoder
	trunc int
}

// NewDecoder creates a bare-format decoder for the given link group.
// Decoded clusters are sent to sink.
func NewDecoder(group uint16, mode sampa.Mode, sink LaneSink) *Decoder {
	dec := &Decoder{group: group}
	for i := range dec.elink {
		dec.elink[i] = sampa.NewElinkDecoder(mode, laneSink(i, sink))
	}
	return dec
}

// Group returns the link group id of the decoder.
func (dec *Decoder) Group() uint16 { return dec.group }

// Decode consumes the words of p. A trailing incomplete word is dropped
// and counted.
func (dec *Decoder) Decode(p []byte) {
	for len(p) >= WordSize {
		w := WordFrom(p)
		for i, e := range dec.elink {
			e.Append(w.Lane(i))
		}
		p = p[WordSize:]
	}
	dec.trunc += len(p)
}

func (dec *Decoder) Stats() Stats {
	st := Stats{TruncatedBytes: dec.trunc}
	for i, e := range dec.elink {
		st.Lanes[i] = e.Stats()
	}
	return st
}

// Elink returns the decoder of the given lane.
func (dec *Decoder) Elink(link int) *sampa.ElinkDecoder { return dec.elink[link] }

func laneSink(link int, sink LaneSink) sampa.ClusterSink {
	if sink == nil {
		return nil
	}
	return sampa.ClusterFunc(func(hdr sampa.ChannelHeader, c sampa.Cluster) {
		sink.Cluster(link, hdr, c)
	})
}

var (
	_ GroupEncoder = (*Encoder)(nil)
	_ GroupDecoder = (*Decoder)(nil)
)
