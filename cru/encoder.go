// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cru

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/gbt"
	"github.com/go-lpc/mch/rdh"
	"github.com/go-lpc/mch/sampa"
	"golang.org/x/sync/errgroup"
)

type groupEncoder struct {
	id    uint16
	link  uint8 // index of the group within the frame unit
	pkt   uint8 // RDH packet counter
	enc   gbt.GroupEncoder
	chips map[int]uint8 // elink -> last chip address seen
}

// Encoder assembles the heartbeat frames of a frame unit.
type Encoder struct {
	id   uint16
	mode sampa.Mode
	cfg  config

	groups map[uint16]*groupEncoder

	open  bool
	orbit uint32
	bc    uint16

	buf []byte
}

// NewEncoder creates an encoder for the given frame unit.
func NewEncoder(frameUnitID uint16, mode sampa.Mode, opts ...Option) (*Encoder, error) {
	if frameUnitID > elecmap.MaxFrameUnitID {
		return nil, fmt.Errorf("cru: frame unit id %d not in [0, %d]", frameUnitID, elecmap.MaxFrameUnitID)
	}
	cfg := newConfig(opts)
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &Encoder{
		id:     frameUnitID,
		mode:   mode,
		cfg:    cfg,
		groups: make(map[uint16]*groupEncoder),
	}, nil
}

// FrameUnit returns the frame unit id of the encoder.
func (enc *Encoder) FrameUnit() uint16 { return enc.id }

// StartHeartbeatFrame closes the current heartbeat frame, if any, and
// starts a new one.
func (enc *Encoder) StartHeartbeatFrame(orbit uint32, bc uint16) error {
	if bc > rdh.MaxBunchCrossing {
		return fmt.Errorf("cru: bunch crossing %d not in [0, %d]", bc, rdh.MaxBunchCrossing)
	}

	err := enc.closeFrame()
	if err != nil {
		return fmt.Errorf("cru: could not close heartbeat frame: %w", err)
	}

	enc.open = true
	enc.orbit = orbit
	enc.bc = bc

	if !enc.cfg.heartbeats {
		return nil
	}
	for _, g := range enc.sortedGroups() {
		links := make([]int, 0, len(g.chips))
		for link := range g.chips {
			links = append(links, link)
		}
		sort.Ints(links)
		for _, link := range links {
			err := g.enc.AddHeartbeat(link, g.chips[link], uint32(bc))
			if err != nil {
				return fmt.Errorf("cru: could not add heartbeat to group %d: %w", g.id, err)
			}
		}
	}
	return nil
}

// AddChannelData appends the clusters of a chip channel to the elink
// selected by addr.
func (enc *Encoder) AddChannelData(addr elecmap.WireAddress, chip, channel uint8, clusters []sampa.Cluster) error {
	if !enc.open {
		return fmt.Errorf("cru: no open heartbeat frame")
	}

	g, err := enc.group(addr.GroupID())
	if err != nil {
		return err
	}

	link := addr.LinkIndex()
	err = g.enc.AddChannelData(link, chip, channel, uint32(enc.bc), clusters)
	if err != nil {
		return fmt.Errorf("cru: could not add channel data for %v: %w", addr, err)
	}
	g.chips[link] = chip
	return nil
}

func (enc *Encoder) group(id uint16) (*groupEncoder, error) {
	if g, ok := enc.groups[id]; ok {
		return g, nil
	}

	link := len(enc.groups)
	if m := enc.cfg.mapper; m != nil {
		fu, ok := m.GroupFrameUnit(id)
		if !ok || fu != enc.id {
			return nil, fmt.Errorf("cru: group %d does not belong to frame unit %d", id, enc.id)
		}
		groups := m.FrameUnitGroups(fu)
		link = sort.Search(len(groups), func(i int) bool { return groups[i] >= id })
	}
	if len(enc.groups) >= elecmap.MaxGroupsPerFrameUnit {
		return nil, fmt.Errorf(
			"cru: could not add group %d to frame unit %d: too many groups (max=%d)",
			id, enc.id, elecmap.MaxGroupsPerFrameUnit,
		)
	}

	opts := []gbt.Option{gbt.WithSyncEvery(enc.cfg.syncEvery)}
	if phase := enc.cfg.phase; phase != nil {
		opts = append(opts, gbt.WithPhase(func(link int) int { return phase(id, link) }))
	}

	g := &groupEncoder{
		id:    id,
		link:  uint8(link),
		chips: make(map[int]uint8),
	}
	switch {
	case enc.cfg.userLogic:
		g.enc = gbt.NewUserLogicEncoder(id, enc.mode, opts...)
	default:
		g.enc = gbt.NewEncoder(id, enc.mode, opts...)
	}
	enc.groups[id] = g
	return g, nil
}

func (enc *Encoder) sortedGroups() []*groupEncoder {
	groups := make([]*groupEncoder, 0, len(enc.groups))
	for _, g := range enc.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].id < groups[j].id })
	return groups
}

// closeFrame flushes the non-empty groups and appends their RDH records
// to the output buffer.
func (enc *Encoder) closeFrame() error {
	if !enc.open {
		return nil
	}
	enc.open = false

	var groups []*groupEncoder
	for _, g := range enc.sortedGroups() {
		if !g.enc.Empty() {
			groups = append(groups, g)
		}
	}

	payloads := make([][]byte, len(groups))
	switch {
	case enc.cfg.nworkers > 1 && len(groups) > 1:
		var grp errgroup.Group
		grp.SetLimit(enc.cfg.nworkers)
		for i := range groups {
			i := i
			grp.Go(func() error {
				payloads[i] = groups[i].enc.MoveToBuffer(nil)
				return nil
			})
		}
		_ = grp.Wait() // group flushes can not fail.
	default:
		for i, g := range groups {
			payloads[i] = g.enc.MoveToBuffer(nil)
		}
	}

	for i, g := range groups {
		err := enc.writePages(g, payloads[i])
		if err != nil {
			return fmt.Errorf("cru: could not write group %d: %w", g.id, err)
		}
	}
	return nil
}

func (enc *Encoder) writePages(g *groupEncoder, payload []byte) error {
	var (
		size  = enc.cfg.pageSize - rdh.Size
		npage = (len(payload) + size - 1) / size
		err   error
	)
	for page := 0; page < npage; page++ {
		beg := page * size
		end := beg + size
		if end > len(payload) {
			end = len(payload)
		}
		hdr := rdh.Header{
			Version:       enc.cfg.version,
			FEEID:         g.id,
			MemorySize:    uint16(rdh.Size + end - beg),
			OffsetToNext:  uint16(rdh.Size + end - beg),
			LinkID:        g.link,
			PacketCounter: g.pkt,
			CRUID:         enc.id,
			Orbit:         enc.orbit,
			BunchCrossing: enc.bc,
			TriggerType:   rdh.TriggerOrbit | rdh.TriggerHB,
			PageCounter:   uint16(page),
		}
		if enc.cfg.version == rdh.V6 {
			hdr.SourceID = rdh.SourceMCH
		}
		if enc.cfg.userLogic {
			hdr.DetectorField |= rdh.DetUserLogic
		}
		if page == npage-1 {
			hdr.StopBit = 1
		}
		g.pkt++

		enc.buf, err = hdr.Append(enc.buf)
		if err != nil {
			return err
		}
		enc.buf = append(enc.buf, payload[beg:end]...)
	}
	return nil
}

// MoveToBuffer closes the current heartbeat frame, appends all the
// pending bytes to dst and returns the extended buffer with the number
// of bytes appended.
//
// The elink streams are kept so that the next heartbeat frame continues
// them.
func (enc *Encoder) MoveToBuffer(dst []byte) ([]byte, int) {
	dst, n, err := enc.flush(dst)
	if err != nil {
		enc.cfg.msg.Printf("could not close heartbeat frame: %+v", err)
	}
	return dst, n
}

// flush closes the current heartbeat frame and moves the pending bytes
// to dst. Records written before a failure are still moved.
func (enc *Encoder) flush(dst []byte) ([]byte, int, error) {
	err := enc.closeFrame()
	n := len(enc.buf)
	dst = append(dst, enc.buf...)
	enc.buf = enc.buf[:0]
	return dst, n, err
}

// WriteTo writes all the pending bytes to w.
func (enc *Encoder) WriteTo(w io.Writer) (int64, error) {
	buf, _, cerr := enc.flush(nil)
	n, err := w.Write(buf)
	if err != nil {
		return int64(n), fmt.Errorf("cru: could not write frames: %w", err)
	}
	if cerr != nil {
		return int64(n), fmt.Errorf("cru: could not close heartbeat frame: %w", cerr)
	}
	return int64(n), nil
}
