// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/internal/xcnv"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}.EncMode()
	if err != nil {
		panic(fmt.Errorf("daq: could not create CBOR encoding mode: %w", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Errorf("daq: could not create CBOR decoding mode: %w", err))
	}
}

// Batch holds the clusters of one heartbeat frame, as sent on the
// output port of a stage.
type Batch struct {
	Orbit         uint32  `cbor:"1,keyasint"`
	BunchCrossing uint16  `cbor:"2,keyasint"`
	Digits        []Digit `cbor:"3,keyasint"`
}

// Digit is a cluster of a batch.
type Digit struct {
	FrameUnit uint16   `cbor:"1,keyasint"`
	Wire      uint16   `cbor:"2,keyasint"` // compact wire address
	Det       uint32   `cbor:"3,keyasint"` // compact detector address
	Mapped    bool     `cbor:"4,keyasint"`
	Channel   uint8    `cbor:"5,keyasint"` // dual sampa channel
	Timestamp uint32   `cbor:"6,keyasint"` // relative to the orbit
	Charge    uint32   `cbor:"7,keyasint"`
	Samples   []uint16 `cbor:"8,keyasint,omitempty"`
}

// WireAddress returns the wire address of the digit.
func (d Digit) WireAddress() (elecmap.WireAddress, error) {
	return elecmap.DecodeWireAddress(d.Wire)
}

// DetectorAddress returns the detector address of the digit.
func (d Digit) DetectorAddress() elecmap.DetectorAddress {
	return elecmap.DecodeDetectorAddress(d.Det)
}

func batchFrom(frame xcnv.Frame) Batch {
	b := Batch{
		Orbit:         frame.Orbit,
		BunchCrossing: frame.BunchCrossing,
		Digits:        make([]Digit, len(frame.Clusters)),
	}
	for i, c := range frame.Clusters {
		b.Digits[i] = Digit{
			FrameUnit: c.FrameUnit,
			Wire:      c.Wire.Encode(),
			Det:       c.Det.Encode(),
			Mapped:    c.Mapped,
			Channel:   uint8(elecmap.DualSampaChannel(c.Chip, c.Channel)),
			Timestamp: c.AbsTimestamp(),
			Charge:    c.Charge,
			Samples:   c.Sampa.Samples,
		}
	}
	return b
}

// Marshal encodes a batch to CBOR.
func Marshal(b Batch) ([]byte, error) {
	return encMode.Marshal(b)
}

// Unmarshal decodes a CBOR-encoded batch.
func Unmarshal(p []byte) (Batch, error) {
	var b Batch
	err := decMode.Unmarshal(p, &b)
	return b, err
}
