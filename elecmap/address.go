// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elecmap maps the electronic (wire) addresses of the front-end
// chips to their detector addresses.
package elecmap // import "github.com/go-lpc/mch/elecmap"

import (
	"errors"
	"fmt"
)

const (
	MaxGroupID    = 1<<10 - 1
	MaxSubgroupID = 7
	MaxIndex      = 4
	NumLinks      = (MaxSubgroupID + 1) * (MaxIndex + 1)

	// MaxGroupsPerFrameUnit is the maximum number of link groups
	// read out by a single frame unit.
	MaxGroupsPerFrameUnit = 24

	// MaxFrameUnitID is the largest frame unit id that fits in a frame header.
	MaxFrameUnitID = 1<<12 - 1
)

// ErrOutOfRange is returned when an address field is out of range.
var ErrOutOfRange = errors.New("elecmap: address field out of range")

// WireAddress identifies the elink of a chip: the link group, the
// subgroup within the group and the index within the subgroup.
//
// WireAddress values can only be created through NewWireAddress,
// WireAddressFromLink and DecodeWireAddress, which validate all fields.
type WireAddress struct {
	group    uint16
	subgroup uint8
	index    uint8
}

// NewWireAddress creates a new wire address.
func NewWireAddress(group uint16, subgroup, index uint8) (WireAddress, error) {
	switch {
	case group > MaxGroupID:
		return WireAddress{}, fmt.Errorf("elecmap: group id %d not in [0, %d]: %w", group, MaxGroupID, ErrOutOfRange)
	case subgroup > MaxSubgroupID:
		return WireAddress{}, fmt.Errorf("elecmap: subgroup id %d not in [0, %d]: %w", subgroup, MaxSubgroupID, ErrOutOfRange)
	case index > MaxIndex:
		return WireAddress{}, fmt.Errorf("elecmap: index %d not in [0, %d]: %w", index, MaxIndex, ErrOutOfRange)
	}
	return WireAddress{group: group, subgroup: subgroup, index: index}, nil
}

// WireAddressFromLink creates the wire address of the given elink of a group.
func WireAddressFromLink(group uint16, link int) (WireAddress, error) {
	if link < 0 || link >= NumLinks {
		return WireAddress{}, fmt.Errorf("elecmap: link index %d not in [0, %d): %w", link, NumLinks, ErrOutOfRange)
	}
	return NewWireAddress(group, uint8(link/(MaxIndex+1)), uint8(link%(MaxIndex+1)))
}

// DecodeWireAddress decodes the 16-bit compact form of a wire address.
func DecodeWireAddress(v uint16) (WireAddress, error) {
	return NewWireAddress(v&MaxGroupID, uint8((v>>10)&0x7), uint8(v>>13))
}

func (a WireAddress) GroupID() uint16   { return a.group }
func (a WireAddress) SubgroupID() uint8 { return a.subgroup }
func (a WireAddress) Index() uint8      { return a.index }

// LinkIndex returns the index of the elink within its group, in [0, 40).
func (a WireAddress) LinkIndex() int {
	return int(a.subgroup)*(MaxIndex+1) + int(a.index)
}

// Encode returns the 16-bit compact form of the address:
// bits 0-9 group, bits 10-12 subgroup, bits 13-15 index.
func (a WireAddress) Encode() uint16 {
	return a.group | uint16(a.subgroup)<<10 | uint16(a.index)<<13
}

func (a WireAddress) String() string {
	return fmt.Sprintf("group-%d-sub-%d-idx-%d", a.group, a.subgroup, a.index)
}

// DetectorAddress identifies a chip by its detection element and its
// chip id within that element.
type DetectorAddress struct {
	DetElemID uint16
	ChipID    uint16
}

// Encode returns the 32-bit compact form of the address.
func (a DetectorAddress) Encode() uint32 {
	return uint32(a.DetElemID)<<16 | uint32(a.ChipID)
}

// DecodeDetectorAddress decodes the 32-bit compact form of a detector address.
func DecodeDetectorAddress(v uint32) DetectorAddress {
	return DetectorAddress{
		DetElemID: uint16(v >> 16),
		ChipID:    uint16(v),
	}
}

func (a DetectorAddress) String() string {
	return fmt.Sprintf("de-%d-chip-%d", a.DetElemID, a.ChipID)
}

// NumDualSampaChannels is the number of channels of a dual sampa chip,
// the chip addressed by a DetectorAddress.
const NumDualSampaChannels = 64

// SampaAddress returns the sampa chip address and channel, as carried by
// a packet header, of the channel dsch of the dual sampa chip at wire.
func SampaAddress(wire WireAddress, dsch int) (chip, channel uint8, err error) {
	if dsch < 0 || dsch >= NumDualSampaChannels {
		return 0, 0, fmt.Errorf("elecmap: dual sampa channel %d not in [0, %d): %w", dsch, NumDualSampaChannels, ErrOutOfRange)
	}
	return 2*wire.index + uint8(dsch/32), uint8(dsch % 32), nil
}

// DualSampaChannel is the inverse of SampaAddress.
func DualSampaChannel(chip, channel uint8) int {
	return int(chip%2)*32 + int(channel)
}
