// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampa

import (
	"fmt"
	"math/bits"

	"github.com/go-lpc/mch/internal/bitstream"
)

// ClusterSink receives the clusters decoded on an elink.
type ClusterSink interface {
	Cluster(hdr ChannelHeader, c Cluster)
}

// ClusterFunc adapts a function to the ClusterSink interface.
type ClusterFunc func(hdr ChannelHeader, c Cluster)

func (f ClusterFunc) Cluster(hdr ChannelHeader, c Cluster) { f(hdr, c) }

// Stats holds the diagnostic counters of an elink decoder.
type Stats struct {
	BitsSeen            int
	SyncCount           int
	HeadersSeen         int
	HammingErrors       int
	ParityErrors        int
	PayloadParityErrors int
	ProtocolErrors      int
	HeartBeats          int
	Clusters            int
}

// Add accumulates o into st.
func (st *Stats) Add(o Stats) {
	st.BitsSeen += o.BitsSeen
	st.SyncCount += o.SyncCount
	st.HeadersSeen += o.HeadersSeen
	st.HammingErrors += o.HammingErrors
	st.ParityErrors += o.ParityErrors
	st.PayloadParityErrors += o.PayloadParityErrors
	st.ProtocolErrors += o.ProtocolErrors
	st.HeartBeats += o.HeartBeats
	st.Clusters += o.Clusters
}

// ProtocolError describes a packet that forced the decoder to reset
// the elink and look for a new sync.
type ProtocolError struct {
	State  State
	Header ChannelHeader
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("sampa: protocol error in state %v: %+v", e.State, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ElinkDecoder decodes the bit stream of a single elink.
// ElinkDecoder consumes 2 bits per clock tick.
//
// Decoding anomalies never escape the decoder: they are counted
// in Stats and the last one is available from LastError.
type ElinkDecoder struct {
	mode  Mode
	sink  ClusterSink
	state State

	win  uint64 // header or sync window
	nwin int    // number of bits in win

	hdr  ChannelHeader
	herr error
	pay  bitstream.Stream
	npay int // expected number of payload bits

	stats Stats
	err   error
}

// NewElinkDecoder creates a new elink decoder emitting clusters to sink.
func NewElinkDecoder(mode Mode, sink ClusterSink) *ElinkDecoder {
	return &ElinkDecoder{
		mode:  mode,
		sink:  sink,
		state: LookingForSync,
	}
}

// State returns the current state of the decoder.
func (dec *ElinkDecoder) State() State { return dec.state }

// Stats returns the diagnostic counters of the decoder.
func (dec *ElinkDecoder) Stats() Stats { return dec.stats }

// LastError returns the last protocol error seen by the decoder, if any.
func (dec *ElinkDecoder) LastError() error { return dec.err }

// Reset puts the decoder back in the LookingForSync state.
// Counters are kept.
func (dec *ElinkDecoder) Reset() {
	dec.state = LookingForSync
	dec.clear()
}

// Append consumes the two bits of one clock tick, b0 first.
func (dec *ElinkDecoder) Append(b0, b1 bool) {
	dec.append(b0)
	dec.append(b1)
}

// Append50 consumes the 50 least significant bits of v, LSB first.
func (dec *ElinkDecoder) Append50(v uint64) {
	for i := 0; i < HeaderSize; i += 2 {
		dec.Append(bitOf(v, uint(i)), bitOf(v, uint(i+1)))
	}
}

func (dec *ElinkDecoder) append(bit bool) {
	dec.stats.BitsSeen++

	switch dec.state {
	case ReadingPayload:
		dec.pay.Append(bit)
	default:
		if bit {
			dec.win |= 1 << uint(dec.nwin)
		}
		dec.nwin++
	}

	st, act := transition(dec.state, dec.event())
	dec.apply(st, act)
}

func (dec *ElinkDecoder) event() event {
	switch dec.state {
	case LookingForSync:
		if dec.nwin < HeaderSize {
			return evBit
		}
		if dec.win == SyncPattern {
			return evSyncFound
		}
		return evSyncMissed

	case LookingForHeader:
		return evBit

	case ReadingHeader:
		if dec.nwin < HeaderSize {
			return evBit
		}
		return dec.classify()

	case ReadingPayload:
		if dec.pay.Len() < dec.npay {
			return evBit
		}
		return evPayloadDone
	}
	return evBit
}

func (dec *ElinkDecoder) classify() event {
	hdr, err := DecodeHeader(dec.win)
	dec.hdr = hdr
	dec.herr = err
	dec.stats.HeadersSeen++
	if !hdr.HammingOK {
		dec.stats.HammingErrors++
	}
	if !hdr.ParityOK {
		dec.stats.ParityErrors++
	}

	if err != nil {
		return evBadHeader
	}

	switch hdr.PacketType {
	case Sync:
		return evSyncHeader
	case HeartBeat:
		return evHeartBeatHeader
	}

	if !nofWordsOK(dec.mode, int(hdr.NofWords)) {
		dec.herr = fmt.Errorf(
			"sampa: %v packet with %d words is invalid in %v mode",
			hdr.PacketType, hdr.NofWords, dec.mode,
		)
		return evBadHeader
	}
	return evDataHeader
}

func (dec *ElinkDecoder) apply(st State, act action) {
	prev := dec.state
	dec.state = st

	switch act {
	case actNone:
	case actSlide:
		dec.win >>= 1
		dec.nwin--
	case actSyncLocked, actSyncPacket:
		dec.stats.SyncCount++
		dec.clear()
	case actHeartBeat:
		dec.stats.HeartBeats++
		dec.clear()
	case actStartPayload:
		dec.npay = int(dec.hdr.NofWords) * WordSize
		dec.win = 0
		dec.nwin = 0
		dec.pay.Reset()
	case actEmitCluster:
		dec.emit()
		dec.clear()
	case actResetLink:
		dec.stats.ProtocolErrors++
		err := dec.herr
		if err == nil {
			err = fmt.Errorf("sampa: unexpected event in state %v", prev)
		}
		dec.err = &ProtocolError{State: prev, Header: dec.hdr, Err: err}
		dec.clear()
	}
}

func (dec *ElinkDecoder) clear() {
	dec.win = 0
	dec.nwin = 0
	dec.npay = 0
	dec.herr = nil
	dec.pay.Reset()
}

func (dec *ElinkDecoder) emit() {
	var (
		p = &dec.pay
		c = Cluster{Timestamp: uint16(p.Uint(0, WordSize))}
	)

	switch dec.mode {
	case ChargeSumMode:
		c.ChargeSum = uint32(p.Uint(WordSize, 2*WordSize))
	default:
		n := int(dec.hdr.NofWords) - 1
		c.Samples = make([]uint16, n)
		for i := range c.Samples {
			c.Samples[i] = uint16(p.Uint((i+1)*WordSize, WordSize))
		}
	}

	if payloadParity(p) != dec.hdr.PayloadParity {
		dec.stats.PayloadParityErrors++
	}

	dec.stats.Clusters++
	if dec.sink != nil {
		dec.sink.Cluster(dec.hdr, c)
	}
}

func payloadParity(p *bitstream.Stream) bool {
	var n int
	for i := 0; i < p.Len(); i += 64 {
		w := p.Len() - i
		if w > 64 {
			w = 64
		}
		n += bits.OnesCount64(p.Uint(i, w))
	}
	return n&1 == 1
}
