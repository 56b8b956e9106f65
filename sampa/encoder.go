// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampa

import (
	"fmt"

	"github.com/go-lpc/mch/internal/bitstream"
)

// EncoderOption configures an ElinkEncoder.
type EncoderOption func(cfg *encoderConfig)

type encoderConfig struct {
	phase     int
	syncEvery int
}

// WithPhase prepends n filler bits (modulo 50) to the stream, before
// the first sync packet.
func WithPhase(n int) EncoderOption {
	return func(cfg *encoderConfig) {
		if n < 0 {
			n = 0
		}
		cfg.phase = n % HeaderSize
	}
}

// WithSyncEvery inserts a Sync packet every n packet headers.
// A value of zero disables periodic sync packets.
func WithSyncEvery(n int) EncoderOption {
	return func(cfg *encoderConfig) {
		if n < 0 {
			n = 0
		}
		cfg.syncEvery = n
	}
}

// ElinkEncoder serializes packets into the bit stream of a single elink.
//
// Bits are accumulated until the owner drains them with Bits and Clear,
// so that all the elinks of a group can be aligned on the same clock.
type ElinkEncoder struct {
	mode Mode
	bits bitstream.Stream
	pay  bitstream.Stream

	syncEvery int
	nhdrs     int    // headers since last sync packet
	syncPos   int    // position of the next idle bit in the sync pattern
	chips     uint16 // mask of chip addresses seen so far
}

// NewElinkEncoder creates a new elink encoder.
// The stream starts with the phase filler bits followed by a Sync packet.
func NewElinkEncoder(mode Mode, opts ...EncoderOption) *ElinkEncoder {
	var cfg encoderConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	enc := &ElinkEncoder{
		mode:      mode,
		syncEvery: cfg.syncEvery,
	}
	enc.bits.AppendUint(0, cfg.phase)
	enc.bits.AppendUint(SyncPattern, HeaderSize)
	return enc
}

// Len returns the number of pending bits.
func (enc *ElinkEncoder) Len() int { return enc.bits.Len() }

// Bits returns the pending bits.
// The returned stream is only valid until the next call to a method
// of the encoder.
func (enc *ElinkEncoder) Bits() *bitstream.Stream { return &enc.bits }

// Clear drops the pending bits.
func (enc *ElinkEncoder) Clear() { enc.bits.Reset() }

// Chips returns the mask of the chip addresses used on this elink.
func (enc *ElinkEncoder) Chips() uint16 { return enc.chips }

// FillWithSync appends n idle bits. Idle bits cycle through the sync
// pattern; an incomplete sync word is completed before the next packet.
func (enc *ElinkEncoder) FillWithSync(n int) {
	for i := 0; i < n; i++ {
		enc.bits.Append(bitOf(SyncPattern, uint(enc.syncPos)))
		enc.syncPos++
		if enc.syncPos == HeaderSize {
			enc.syncPos = 0
		}
	}
}

// AddChannelData appends one data packet per cluster, for the given
// chip and channel addresses. The clusters are all validated before
// anything is written.
func (enc *ElinkEncoder) AddChannelData(chip, channel uint8, bx uint32, clusters []Cluster) error {
	if chip > MaxChipAddress {
		return fmt.Errorf("sampa: chip address %d out of range [0, %d]", chip, MaxChipAddress)
	}
	if channel > MaxChannel {
		return fmt.Errorf("sampa: channel %d out of range [0, %d]", channel, MaxChannel)
	}
	for i, c := range clusters {
		err := c.validate(enc.mode)
		if err != nil {
			return fmt.Errorf("sampa: invalid cluster #%d (chip=%d, ch=%d): %w", i, chip, channel, err)
		}
	}

	enc.chips |= 1 << chip
	for _, c := range clusters {
		enc.pay.Reset()
		enc.pay.AppendUint(uint64(c.Timestamp), WordSize)
		switch enc.mode {
		case ChargeSumMode:
			enc.pay.AppendUint(uint64(c.ChargeSum), 2*WordSize)
		default:
			for _, v := range c.Samples {
				enc.pay.AppendUint(uint64(v), WordSize)
			}
		}

		enc.writeHeader(ChannelHeader{
			PayloadParity:  payloadParity(&enc.pay),
			PacketType:     Data,
			NofWords:       uint16(c.nofWords(enc.mode)),
			ChipAddress:    chip,
			ChannelAddress: channel,
			BunchCrossing:  bx & MaxBunchCrossing,
		})
		enc.bits.AppendStream(&enc.pay)
	}
	return nil
}

// AddHeartbeat appends a HeartBeat packet for the given chip address.
func (enc *ElinkEncoder) AddHeartbeat(chip uint8, bx uint32) {
	enc.chips |= 1 << (chip & MaxChipAddress)
	enc.writeHeader(ChannelHeader{
		PacketType:    HeartBeat,
		ChipAddress:   chip,
		BunchCrossing: bx & MaxBunchCrossing,
	})
}

func (enc *ElinkEncoder) writeHeader(hdr ChannelHeader) {
	if enc.syncPos != 0 {
		enc.FillWithSync(HeaderSize - enc.syncPos)
	}
	if enc.syncEvery > 0 && enc.nhdrs >= enc.syncEvery {
		enc.bits.AppendUint(SyncPattern, HeaderSize)
		enc.nhdrs = 0
	}
	enc.bits.AppendUint(EncodeHeader(hdr), HeaderSize)
	enc.nhdrs++
}
