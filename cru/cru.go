// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cru assembles and splits the heartbeat frames of a frame unit.
//
// A heartbeat frame is made of one RDH record per non-empty link group,
// in ascending group id order. Each record carries the orbit and bunch
// crossing of the frame.
package cru // import "github.com/go-lpc/mch/cru"

import (
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/rdh"
	"github.com/go-lpc/mch/sampa"
)

const (
	// DefaultPageSize is the default maximum size of an RDH record.
	DefaultPageSize = 8192

	minPageSize = 2 * rdh.Size
	pageAlign   = 16
)

// Cluster is a cluster decoded from a frame unit stream.
type Cluster struct {
	Orbit         uint32 // orbit of the heartbeat frame
	BunchCrossing uint16 // bunch crossing of the heartbeat frame
	FrameUnit     uint16

	Wire    elecmap.WireAddress
	Det     elecmap.DetectorAddress
	Mapped  bool // whether Det was resolved by a mapper
	Chip    uint8
	Channel uint8
	SampaBX uint32 // bunch crossing field of the packet header
	Charge  uint32
	Sampa   sampa.Cluster
}

// AbsTimestamp returns the timestamp of the cluster, relative to the
// orbit of its heartbeat frame.
func (c Cluster) AbsTimestamp() uint32 {
	return uint32(c.BunchCrossing) + uint32(c.Sampa.Timestamp)
}

func (c Cluster) String() string {
	return fmt.Sprintf("chip-%d-ch-%d-ts-%d-q-%d", c.Chip, c.Channel, c.AbsTimestamp(), c.Charge)
}

// ClusterSink receives the decoded clusters.
type ClusterSink interface {
	Cluster(c Cluster)
}

// ClusterFunc adapts a function to the ClusterSink interface.
type ClusterFunc func(c Cluster)

func (f ClusterFunc) Cluster(c Cluster) { f(c) }

// FrameSink receives the RDH records seen by a decoder, in stream order.
type FrameSink interface {
	Frame(hdr rdh.Header, payload []byte)
}

// FrameFunc adapts a function to the FrameSink interface.
type FrameFunc func(hdr rdh.Header, payload []byte)

func (f FrameFunc) Frame(hdr rdh.Header, payload []byte) { f(hdr, payload) }

// Option configures an Encoder or a Decoder.
type Option func(cfg *config)

type config struct {
	userLogic  bool
	version    uint8
	mapper     *elecmap.Mapper
	pageSize   int
	phase      func(group uint16, link int) int
	syncEvery  int
	heartbeats bool
	nworkers   int
	msg        *log.Logger
	frames     FrameSink
}

func newConfig(opts []Option) config {
	cfg := config{
		version:  rdh.V6,
		pageSize: DefaultPageSize,
		nworkers: 1,
		msg:      log.New(io.Discard, "cru: ", 0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (cfg *config) validate() error {
	switch cfg.version {
	case rdh.V4, rdh.V6:
	default:
		return fmt.Errorf("cru: invalid RDH version %d", cfg.version)
	}
	if cfg.pageSize < minPageSize || cfg.pageSize > 1<<16-pageAlign || cfg.pageSize%pageAlign != 0 {
		return fmt.Errorf(
			"cru: invalid page size %d (must be a multiple of %d in [%d, %d])",
			cfg.pageSize, pageAlign, minPageSize, 1<<16-pageAlign,
		)
	}
	return nil
}

// WithUserLogic encodes group payloads in the user-logic format.
func WithUserLogic() Option {
	return func(cfg *config) {
		cfg.userLogic = true
	}
}

// WithRDHVersion sets the version of the RDH records written by an encoder.
func WithRDHVersion(v int) Option {
	return func(cfg *config) {
		cfg.version = uint8(v)
	}
}

// WithMapper restricts an encoder to the groups of its frame unit and
// makes a decoder resolve the detector address of the clusters.
func WithMapper(m *elecmap.Mapper) Option {
	return func(cfg *config) {
		cfg.mapper = m
	}
}

// WithPageSize sets the maximum size of the RDH records written by an
// encoder. Larger group payloads are split over several pages.
func WithPageSize(n int) Option {
	return func(cfg *config) {
		cfg.pageSize = n
	}
}

// WithPhase sets the number of leading filler bits of each elink.
func WithPhase(f func(group uint16, link int) int) Option {
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

// WithHeartbeatPackets makes an encoder write a HeartBeat packet on each
// known elink at the start of every heartbeat frame.
func WithHeartbeatPackets() Option {
	return func(cfg *config) {
		cfg.heartbeats = true
	}
}

// WithConcurrency processes up to n link groups concurrently.
func WithConcurrency(n int) Option {
	return func(cfg *config) {
		if n < 1 {
			n = 1
		}
		cfg.nworkers = n
	}
}

// WithLogger sets the logger used to report dropped data.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		if msg == nil {
			msg = log.New(io.Discard, "cru: ", 0)
		}
		cfg.msg = msg
	}
}

// WithFrameSink sets the sink receiving the RDH records seen by a decoder.
func WithFrameSink(sink FrameSink) Option {
	return func(cfg *config) {
		cfg.frames = sink
	}
}
