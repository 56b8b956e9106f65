// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sampa holds functions to encode and decode the bit stream
// produced by Sampa chips on a single elink.
//
// An elink stream is a sequence of 50-bit packet headers, each
// optionally followed by a payload made of 10-bit words.
// Bits are transmitted LSB first.
package sampa // import "github.com/go-lpc/mch/sampa"

import (
	"fmt"
)

const (
	// SyncPattern is the 50-bit header of a Sync packet.
	SyncPattern uint64 = 0x1555540F00113

	HeaderSize = 50 // size of a packet header, in bits
	WordSize   = 10 // size of a payload word, in bits

	MaxTimestamp     = 1<<10 - 1
	MaxSample        = 1<<10 - 1
	MaxChargeSum     = 1<<20 - 1
	MaxNofWords      = 1<<10 - 1
	MaxNofSamples    = MaxNofWords - 1
	MaxChipAddress   = 1<<4 - 1
	MaxChannel       = 1<<5 - 1
	MaxBunchCrossing = 1<<20 - 1

	headerMask = 1<<HeaderSize - 1
)

// Mode describes how the payload of data packets is organized.
// The mode is fixed for a whole encoding or decoding session.
type Mode uint8

const (
	// SampleMode packets carry a timestamp and a list of 10-bit samples.
	SampleMode Mode = iota
	// ChargeSumMode packets carry a timestamp and a 20-bit charge sum.
	ChargeSumMode
)

func (m Mode) String() string {
	switch m {
	case SampleMode:
		return "sample"
	case ChargeSumMode:
		return "chargesum"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode returns the mode named by s.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "sample", "samples":
		return SampleMode, nil
	case "chargesum", "charge-sum", "cluster-sum":
		return ChargeSumMode, nil
	}
	return 0, fmt.Errorf("sampa: invalid mode %q", s)
}

// PacketType is the 3-bit packet type of a channel header.
type PacketType uint8

const (
	HeartBeat                    PacketType = 0
	DataTruncated                PacketType = 1
	Sync                         PacketType = 2
	DataTruncatedTriggerTooEarly PacketType = 3
	Data                         PacketType = 4
	DataNumWords                 PacketType = 5
	DataTriggerTooEarly          PacketType = 6
	DataTriggerTooEarlyNumWords  PacketType = 7
)

// IsData returns whether packets of that type carry a payload.
func (pt PacketType) IsData() bool {
	switch pt {
	case HeartBeat, Sync:
		return false
	}
	return true
}

func (pt PacketType) String() string {
	switch pt {
	case HeartBeat:
		return "HeartBeat"
	case DataTruncated:
		return "DataTruncated"
	case Sync:
		return "Sync"
	case DataTruncatedTriggerTooEarly:
		return "DataTruncatedTriggerTooEarly"
	case Data:
		return "Data"
	case DataNumWords:
		return "DataNumWords"
	case DataTriggerTooEarly:
		return "DataTriggerTooEarly"
	case DataTriggerTooEarlyNumWords:
		return "DataTriggerTooEarlyNumWords"
	}
	return fmt.Sprintf("PacketType(%d)", uint8(pt))
}

// Cluster is the payload of one data packet.
// Samples is used in SampleMode, ChargeSum in ChargeSumMode.
type Cluster struct {
	Timestamp uint16
	Samples   []uint16
	ChargeSum uint32
}

// Charge returns the charge sum of the cluster, summing the samples
// in SampleMode.
func (c Cluster) Charge(mode Mode) uint32 {
	if mode == ChargeSumMode {
		return c.ChargeSum
	}
	var q uint32
	for _, v := range c.Samples {
		q += uint32(v)
	}
	return q
}

// nofWords returns the number of 10-bit payload words needed to
// encode the cluster.
func (c Cluster) nofWords(mode Mode) int {
	if mode == ChargeSumMode {
		return 1 + 2
	}
	return 1 + len(c.Samples)
}

func (c Cluster) validate(mode Mode) error {
	if c.Timestamp > MaxTimestamp {
		return fmt.Errorf("sampa: timestamp %d out of range [0, %d]", c.Timestamp, MaxTimestamp)
	}
	switch mode {
	case ChargeSumMode:
		if c.ChargeSum > MaxChargeSum {
			return fmt.Errorf("sampa: charge sum %d out of range [0, %d]", c.ChargeSum, MaxChargeSum)
		}
	case SampleMode:
		n := len(c.Samples)
		if n == 0 || n > MaxNofSamples {
			return fmt.Errorf("sampa: number of samples %d out of range [1, %d]", n, MaxNofSamples)
		}
		for i, v := range c.Samples {
			if v > MaxSample {
				return fmt.Errorf("sampa: sample #%d (%d) out of range [0, %d]", i, v, MaxSample)
			}
		}
	default:
		return fmt.Errorf("sampa: invalid mode %v", mode)
	}
	return nil
}

// nofWordsOK returns whether a data packet with n words can hold a
// cluster in the given mode.
func nofWordsOK(mode Mode, n int) bool {
	if mode == ChargeSumMode {
		return n == 3
	}
	return n >= 2
}
