// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gbt multiplexes and demultiplexes the elinks of a link group.
//
// Two payload formats are supported:
//   - the bare format, where each clock tick is a 16-byte word carrying
//     2 bits for each of the 40 elinks of the group;
//   - the user-logic format, where each 8-byte word carries 50 bits of
//     a single elink, tagged with the elink index.
package gbt // import "github.com/go-lpc/mch/gbt"

import (
	"encoding/binary"

	"github.com/go-lpc/mch/sampa"
)

const (
	WordSize = 16 // size in bytes of a bare-format word
	NumLanes = 40 // number of elinks in a link group
)

// Word is one clock tick of the bare format: 128 bits stored as 4
// little-endian 32-bit words. Only the first 80 bits are used.
type Word [4]uint32

// WordFrom decodes a word from the first WordSize bytes of p.
func WordFrom(p []byte) Word {
	_ = p[WordSize-1]
	return Word{
		binary.LittleEndian.Uint32(p[0:4]),
		binary.LittleEndian.Uint32(p[4:8]),
		binary.LittleEndian.Uint32(p[8:12]),
		binary.LittleEndian.Uint32(p[12:16]),
	}
}

// Bit returns the value of bit i.
func (w *Word) Bit(i int) bool {
	return (w[i>>5]>>uint(i&31))&1 == 1
}

// SetBit sets bit i to v.
func (w *Word) SetBit(i int, v bool) {
	m := uint32(1) << uint(i&31)
	if v {
		w[i>>5] |= m
		return
	}
	w[i>>5] &^= m
}

// Lane returns the 2 bits of lane i. b0 is the earliest bit.
func (w *Word) Lane(i int) (b0, b1 bool) {
	return w.Bit(2 * i), w.Bit(2*i + 1)
}

// SetLane sets the 2 bits of lane i.
func (w *Word) SetLane(i int, b0, b1 bool) {
	w.SetBit(2*i, b0)
	w.SetBit(2*i+1, b1)
}

// Append appends the little-endian encoding of w to dst.
func (w *Word) Append(dst []byte) []byte {
	var buf [WordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], w[0])
	binary.LittleEndian.PutUint32(buf[4:8], w[1])
	binary.LittleEndian.PutUint32(buf[8:12], w[2])
	binary.LittleEndian.PutUint32(buf[12:16], w[3])
	return append(dst, buf[:]...)
}

// GroupEncoder multiplexes the elinks of one link group.
type GroupEncoder interface {
	// AddChannelData appends data packets on the given elink.
	AddChannelData(link int, chip, channel uint8, bx uint32, clusters []sampa.Cluster) error
	// AddHeartbeat appends a HeartBeat packet on the given elink.
	AddHeartbeat(link int, chip uint8, bx uint32) error
	// Empty returns whether data was added since the last call to MoveToBuffer.
	Empty() bool
	// MoveToBuffer appends the pending payload to dst and returns the
	// extended buffer.
	MoveToBuffer(dst []byte) []byte
}

// GroupDecoder demultiplexes the payload of one link group.
type GroupDecoder interface {
	// Decode consumes a payload chunk. Decoding anomalies are only
	// reported through Stats.
	Decode(p []byte)
	Stats() Stats
}

// LaneSink receives the clusters decoded on the elinks of a group.
type LaneSink interface {
	Cluster(link int, hdr sampa.ChannelHeader, c sampa.Cluster)
}

// LaneFunc adapts a function to the LaneSink interface.
type LaneFunc func(link int, hdr sampa.ChannelHeader, c sampa.Cluster)

func (f LaneFunc) Cluster(link int, hdr sampa.ChannelHeader, c sampa.Cluster) { f(link, hdr, c) }

// Stats holds the diagnostic counters of a group decoder.
type Stats struct {
	Lanes          [NumLanes]sampa.Stats
	TruncatedBytes int // trailing bytes that did not make a full word
	BadWords       int // user-logic words with an invalid link or reserved bits
}

// Total returns the sum of the per-lane counters.
func (st *Stats) Total() sampa.Stats {
	var tot sampa.Stats
	for _, v := range st.Lanes {
		tot.Add(v)
	}
	return tot
}

// Option configures a group encoder.
type Option func(cfg *config)

type config struct {
	phase     func(link int) int
	syncEvery int
}

// WithPhase sets the number of leading filler bits of each elink.
func WithPhase(f func(link int) int) Option {
	return func(cfg *config) {
		cfg.phase = f
	}
}

// WithSyncEvery inserts a Sync packet every n headers on each elink.
func WithSyncEvery(n int) Option {
	return func(cfg *config) {
		cfg.syncEvery = n
	}
}

func newConfig(opts []Option) config {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// links holds the lazily created elink encoders of a group.
type links struct {
	mode  sampa.Mode
	cfg   config
	elink [NumLanes]*sampa.ElinkEncoder
	dirty bool
}

func (ls *links) get(link int) (*sampa.ElinkEncoder, bool) {
	if link < 0 || link >= NumLanes {
		return nil, false
	}
	enc := ls.elink[link]
	if enc == nil {
		opts := []sampa.EncoderOption{sampa.WithSyncEvery(ls.cfg.syncEvery)}
		if ls.cfg.phase != nil {
			opts = append(opts, sampa.WithPhase(ls.cfg.phase(link)))
		}
		enc = sampa.NewElinkEncoder(ls.mode, opts...)
		ls.elink[link] = enc
	}
	return enc, true
}

func (ls *links) maxLen() int {
	n := 0
	for _, enc := range ls.elink {
		if enc != nil && enc.Len() > n {
			n = enc.Len()
		}
	}
	return n
}
