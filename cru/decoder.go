// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cru

import (
	"fmt"
	"sort"

	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/gbt"
	"github.com/go-lpc/mch/rdh"
	"github.com/go-lpc/mch/sampa"
	"golang.org/x/sync/errgroup"
)

// Stats holds the diagnostic counters of a decoder.
type Stats struct {
	Records  int // RDH records
	Frames   int // heartbeat frames
	Clusters int // clusters sent to the sink
	Unmapped int // clusters dropped for lack of a detector address

	Groups map[uint16]gbt.Stats
}

type groupDecoder struct {
	id        uint16
	userLogic bool
	dec       gbt.GroupDecoder

	// state of the record being decoded
	orbit uint32
	bc    uint16
	fu    uint16

	out      []Cluster
	unmapped int
	seen     map[elecmap.WireAddress]bool // unmapped wire addresses already logged
}

type chunk struct {
	group   *groupDecoder
	hdr     rdh.Header
	payload []byte
}

// Decoder splits frame unit buffers on RDH boundaries and decodes the
// payload of each link group.
//
// Elink decoders keep their state across calls to Decode, so a buffer
// may end in the middle of a packet.
type Decoder struct {
	mode sampa.Mode
	cfg  config
	sink ClusterSink

	groups map[uint16]*groupDecoder

	stats Stats
}

// NewDecoder creates a decoder sending the decoded clusters to sink.
func NewDecoder(mode sampa.Mode, sink ClusterSink, opts ...Option) *Decoder {
	return &Decoder{
		mode:   mode,
		cfg:    newConfig(opts),
		sink:   sink,
		groups: make(map[uint16]*groupDecoder),
	}
}

// Decode decodes the RDH records of buf.
//
// Decode returns an error for structural problems of the stream
// (truncated or unknown RDH). Records preceding the problem are decoded.
// Decoding anomalies of the elink streams are only reported by Stats.
func (dec *Decoder) Decode(buf []byte) error {
	var (
		frame []chunk
		key   [2]uint32 // orbit and bunch crossing of the current frame
	)
	for len(buf) > 0 {
		hdr, payload, rest, err := rdh.Next(buf)
		if err != nil {
			dec.process(frame)
			return fmt.Errorf("cru: could not decode RDH record #%d: %w", dec.stats.Records, err)
		}
		buf = rest
		dec.stats.Records++

		if dec.cfg.frames != nil {
			dec.cfg.frames.Frame(hdr, payload)
		}

		g, err := dec.group(hdr)
		if err != nil {
			dec.process(frame)
			return err
		}

		k := [2]uint32{hdr.Orbit, uint32(hdr.BunchCrossing)}
		if len(frame) > 0 && k != key {
			dec.process(frame)
			frame = frame[:0]
		}
		key = k
		frame = append(frame, chunk{group: g, hdr: hdr, payload: payload})
	}
	dec.process(frame)
	return nil
}

func (dec *Decoder) group(hdr rdh.Header) (*groupDecoder, error) {
	id := hdr.FEEID
	if id > elecmap.MaxGroupID {
		return nil, fmt.Errorf("cru: invalid group id %d in %v", id, hdr)
	}

	g, ok := dec.groups[id]
	if ok {
		if g.userLogic != hdr.UserLogic() {
			return nil, fmt.Errorf("cru: group %d switched payload format in %v", id, hdr)
		}
		return g, nil
	}

	g = &groupDecoder{
		id:        id,
		userLogic: hdr.UserLogic(),
		seen:      make(map[elecmap.WireAddress]bool),
	}
	sink := gbt.LaneFunc(func(link int, sh sampa.ChannelHeader, c sampa.Cluster) {
		dec.collect(g, link, sh, c)
	})
	switch {
	case g.userLogic:
		g.dec = gbt.NewUserLogicDecoder(id, dec.mode, sink)
	default:
		g.dec = gbt.NewDecoder(id, dec.mode, sink)
	}
	dec.groups[id] = g
	return g, nil
}

// collect is called from the goroutine owning g.
func (dec *Decoder) collect(g *groupDecoder, link int, sh sampa.ChannelHeader, c sampa.Cluster) {
	wire, err := elecmap.WireAddressFromLink(g.id, link)
	if err != nil {
		return
	}

	out := Cluster{
		Orbit:         g.orbit,
		BunchCrossing: g.bc,
		FrameUnit:     g.fu,
		Wire:          wire,
		Chip:          sh.ChipAddress,
		Channel:       sh.ChannelAddress,
		SampaBX:       sh.BunchCrossing,
		Charge:        c.Charge(dec.mode),
		Sampa:         c,
	}

	if m := dec.cfg.mapper; m != nil {
		det, ok := m.ToDetector(wire)
		if !ok {
			g.unmapped++
			if !g.seen[wire] {
				g.seen[wire] = true
				dec.cfg.msg.Printf("dropping data from unmapped elink %v", wire)
			}
			return
		}
		out.Det = det
		out.Mapped = true
	}

	g.out = append(g.out, out)
}

// process decodes the chunks of one heartbeat frame and sends the
// clusters to the sink, in ascending group order.
func (dec *Decoder) process(frame []chunk) {
	if len(frame) == 0 {
		return
	}
	dec.stats.Frames++

	// chunks of a group are decoded in stream order.
	byGroup := make(map[uint16][]chunk)
	var groups []*groupDecoder
	for _, c := range frame {
		if _, ok := byGroup[c.group.id]; !ok {
			groups = append(groups, c.group)
		}
		byGroup[c.group.id] = append(byGroup[c.group.id], c)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].id < groups[j].id })

	run := func(g *groupDecoder) {
		for _, c := range byGroup[g.id] {
			g.orbit = c.hdr.Orbit
			g.bc = c.hdr.BunchCrossing
			g.fu = c.hdr.CRUID
			g.dec.Decode(c.payload)
		}
	}

	switch {
	case dec.cfg.nworkers > 1 && len(groups) > 1:
		var grp errgroup.Group
		grp.SetLimit(dec.cfg.nworkers)
		for _, g := range groups {
			g := g
			grp.Go(func() error {
				run(g)
				return nil
			})
		}
		_ = grp.Wait() // group decoding can not fail.
	default:
		for _, g := range groups {
			run(g)
		}
	}

	for _, g := range groups {
		dec.stats.Unmapped += g.unmapped
		g.unmapped = 0
		for _, c := range g.out {
			dec.stats.Clusters++
			if dec.sink != nil {
				dec.sink.Cluster(c)
			}
		}
		g.out = g.out[:0]
	}
}

// Stats returns the diagnostic counters of the decoder.
func (dec *Decoder) Stats() Stats {
	st := dec.stats
	st.Groups = make(map[uint16]gbt.Stats, len(dec.groups))
	for id, g := range dec.groups {
		st.Groups[id] = g.dec.Stats()
	}
	return st
}

// Total returns the sum of the elink counters of all groups.
func (st Stats) Total() sampa.Stats {
	var tot sampa.Stats
	for _, g := range st.Groups {
		tot.Add(g.Total())
	}
	return tot
}
