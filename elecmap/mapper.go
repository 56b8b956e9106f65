// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elecmap

import (
	"fmt"
	"sort"
)

// Entry associates the wire address of a chip to its detector address.
type Entry struct {
	Wire WireAddress
	Det  DetectorAddress
}

// FrameUnit lists the link groups read out by a frame unit.
type FrameUnit struct {
	ID     uint16
	Groups []uint16
}

// MappingError describes an invalid mapping table.
type MappingError struct {
	Wire WireAddress
	Det  DetectorAddress
	Msg  string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("elecmap: invalid mapping (%v, %v): %s", e.Wire, e.Det, e.Msg)
}

// Mapper holds the electronic to detector mapping tables.
// A Mapper is immutable and safe for concurrent use.
type Mapper struct {
	toDet  map[WireAddress]DetectorAddress
	toWire map[DetectorAddress]WireAddress

	units   map[uint16][]uint16 // frame unit -> sorted groups
	groupFU map[uint16]uint16   // group -> frame unit
	deFU    map[uint16]uint16   // detection element -> frame unit

	entries []Entry
}

// New builds a mapper from its tables.
//
// New fails if a wire address is mapped to two different detector
// addresses (or vice versa), if a group belongs to two frame units or
// if a frame unit reads out more than MaxGroupsPerFrameUnit groups.
// Detection elements spanning several frame units are assigned to the
// frame unit with the lowest id.
func New(entries []Entry, units []FrameUnit) (*Mapper, error) {
	m := &Mapper{
		toDet:   make(map[WireAddress]DetectorAddress, len(entries)),
		toWire:  make(map[DetectorAddress]WireAddress, len(entries)),
		units:   make(map[uint16][]uint16, len(units)),
		groupFU: make(map[uint16]uint16),
		deFU:    make(map[uint16]uint16),
	}

	for _, e := range entries {
		if e.Wire.group > MaxGroupID || e.Wire.subgroup > MaxSubgroupID || e.Wire.index > MaxIndex {
			return nil, &MappingError{Wire: e.Wire, Det: e.Det, Msg: "wire address out of range"}
		}
		if det, dup := m.toDet[e.Wire]; dup {
			if det != e.Det {
				return nil, &MappingError{
					Wire: e.Wire, Det: e.Det,
					Msg: fmt.Sprintf("wire address already mapped to %v", det),
				}
			}
			continue
		}
		if wire, dup := m.toWire[e.Det]; dup {
			return nil, &MappingError{
				Wire: e.Wire, Det: e.Det,
				Msg: fmt.Sprintf("detector address already mapped to %v", wire),
			}
		}
		m.toDet[e.Wire] = e.Det
		m.toWire[e.Det] = e.Wire
		m.entries = append(m.entries, e)
	}
	sort.Slice(m.entries, func(i, j int) bool {
		wi := m.entries[i].Wire
		wj := m.entries[j].Wire
		if wi.group != wj.group {
			return wi.group < wj.group
		}
		return wi.LinkIndex() < wj.LinkIndex()
	})

	for _, fu := range units {
		if fu.ID > MaxFrameUnitID {
			return nil, fmt.Errorf("elecmap: frame unit id %d not in [0, %d]: %w", fu.ID, MaxFrameUnitID, ErrOutOfRange)
		}
		if _, dup := m.units[fu.ID]; dup {
			return nil, fmt.Errorf("elecmap: frame unit %d declared twice", fu.ID)
		}
		set := make(map[uint16]struct{}, len(fu.Groups))
		for _, g := range fu.Groups {
			if g > MaxGroupID {
				return nil, fmt.Errorf("elecmap: group id %d of frame unit %d not in [0, %d]: %w", g, fu.ID, MaxGroupID, ErrOutOfRange)
			}
			if id, dup := m.groupFU[g]; dup && id != fu.ID {
				return nil, fmt.Errorf("elecmap: group %d belongs to frame units %d and %d", g, id, fu.ID)
			}
			m.groupFU[g] = fu.ID
			set[g] = struct{}{}
		}
		if len(set) > MaxGroupsPerFrameUnit {
			return nil, fmt.Errorf(
				"elecmap: frame unit %d has %d groups (max=%d)",
				fu.ID, len(set), MaxGroupsPerFrameUnit,
			)
		}
		groups := make([]uint16, 0, len(set))
		for g := range set {
			groups = append(groups, g)
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
		m.units[fu.ID] = groups
	}

	for _, e := range m.entries {
		fu, ok := m.groupFU[e.Wire.group]
		if !ok {
			continue
		}
		if cur, ok := m.deFU[e.Det.DetElemID]; !ok || fu < cur {
			m.deFU[e.Det.DetElemID] = fu
		}
	}

	return m, nil
}

// ToWire returns the wire address of a chip.
func (m *Mapper) ToWire(det DetectorAddress) (WireAddress, bool) {
	wire, ok := m.toWire[det]
	return wire, ok
}

// ToDetector returns the detector address of an elink.
func (m *Mapper) ToDetector(wire WireAddress) (DetectorAddress, bool) {
	det, ok := m.toDet[wire]
	return det, ok
}

// FrameUnitGroups returns the sorted set of groups read out by a frame unit.
func (m *Mapper) FrameUnitGroups(id uint16) []uint16 {
	groups, ok := m.units[id]
	if !ok {
		return nil
	}
	return append([]uint16(nil), groups...)
}

// FrameUnitOf returns the frame unit reading out a detection element.
func (m *Mapper) FrameUnitOf(deID uint16) (uint16, bool) {
	fu, ok := m.deFU[deID]
	return fu, ok
}

// GroupFrameUnit returns the frame unit reading out a link group.
func (m *Mapper) GroupFrameUnit(group uint16) (uint16, bool) {
	fu, ok := m.groupFU[group]
	return fu, ok
}

// FrameUnits returns the sorted ids of all the frame units.
func (m *Mapper) FrameUnits() []uint16 {
	ids := make([]uint16, 0, len(m.units))
	for id := range m.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Entries returns the mapping entries, sorted by wire address.
func (m *Mapper) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// NewDummy creates a synthetic mapper for testing: the chips of each
// detection element are assigned consecutive elinks, and consecutive
// groups are assigned to frame units by blocks of MaxGroupsPerFrameUnit.
func NewDummy(deIDs []uint16, chipsPerDE int) (*Mapper, error) {
	if chipsPerDE <= 0 {
		return nil, fmt.Errorf("elecmap: invalid number of chips per detection element %d", chipsPerDE)
	}

	var (
		entries []Entry
		link    = 0
	)
	for _, de := range deIDs {
		for chip := 0; chip < chipsPerDE; chip++ {
			wire, err := WireAddressFromLink(uint16(link/NumLinks), link%NumLinks)
			if err != nil || link/NumLinks > MaxGroupID {
				return nil, fmt.Errorf("elecmap: too many chips for a dummy mapping (%d)", len(deIDs)*chipsPerDE)
			}
			entries = append(entries, Entry{
				Wire: wire,
				Det:  DetectorAddress{DetElemID: de, ChipID: uint16(chip)},
			})
			link++
		}
	}

	ngroups := (link + NumLinks - 1) / NumLinks
	var units []FrameUnit
	for g := 0; g < ngroups; g++ {
		id := g / MaxGroupsPerFrameUnit
		if id >= len(units) {
			units = append(units, FrameUnit{ID: uint16(id)})
		}
		units[id].Groups = append(units[id].Groups, uint16(g))
	}

	return New(entries, units)
}
