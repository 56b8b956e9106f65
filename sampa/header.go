// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampa

import (
	"fmt"
	"math/bits"
)

// Header bit layout.
//
//	bits  0- 5: hamming code over bits 7-48
//	bit      6: payload parity
//	bits  7- 9: packet type
//	bits 10-19: number of 10-bit words to follow
//	bits 20-23: chip address
//	bits 24-28: channel address
//	bits 29-48: bunch crossing
//	bit     49: header parity (even parity over the 50 bits)
const (
	posHamming  = 0
	posPayPar   = 6
	posPktType  = 7
	posNofWords = 10
	posChip     = 20
	posChannel  = 24
	posBX       = 29
	posParity   = 49

	hammingFirst = 7
	hammingLast  = 48
)

// ChannelHeader is a decoded 50-bit Sampa packet header.
type ChannelHeader struct {
	Hamming        uint8
	PayloadParity  bool
	PacketType     PacketType
	NofWords       uint16 // number of 10-bit words to follow
	ChipAddress    uint8
	ChannelAddress uint8
	BunchCrossing  uint32

	ParityOK  bool // header parity matched
	HammingOK bool // hamming syndrome was zero
}

func (h ChannelHeader) String() string {
	return fmt.Sprintf(
		"%v chip=%d ch=%d words=%d bx=%d hamming=0x%02x parity-ok=%v",
		h.PacketType, h.ChipAddress, h.ChannelAddress, h.NofWords,
		h.BunchCrossing, h.Hamming, h.ParityOK,
	)
}

// HeaderError describes a header that could not be decoded.
type HeaderError struct {
	Raw    uint64
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("sampa: invalid header 0x%013x: %s", e.Raw, e.Reason)
}

// codeword positions of the hamming-protected data bits.
var (
	hammingPos [hammingLast - hammingFirst + 1]uint8
	posToBit   [64]int8
)

func init() {
	for i := range posToBit {
		posToBit[i] = -1
	}
	for k := 0; k < 6; k++ {
		posToBit[1<<k] = int8(posHamming + k)
	}
	pos := 1
	for i := range hammingPos {
		for pos&(pos-1) == 0 {
			pos++
		}
		hammingPos[i] = uint8(pos)
		posToBit[pos] = int8(hammingFirst + i)
		pos++
	}
}

func computeHamming(v uint64) uint8 {
	var h uint8
	for i, pos := range hammingPos {
		if (v>>uint(hammingFirst+i))&1 == 1 {
			h ^= pos
		}
	}
	return h
}

func parity(v uint64) bool {
	return bits.OnesCount64(v)&1 == 1
}

func bitOf(v uint64, pos uint) bool {
	return (v>>pos)&1 == 1
}

// EncodeHeader returns the 50-bit encoding of h.
// The hamming code and header parity are computed; the Hamming,
// ParityOK and HammingOK fields of h are ignored.
func EncodeHeader(h ChannelHeader) uint64 {
	var v uint64
	if h.PayloadParity {
		v |= 1 << posPayPar
	}
	v |= uint64(h.PacketType&0x7) << posPktType
	v |= uint64(h.NofWords&MaxNofWords) << posNofWords
	v |= uint64(h.ChipAddress&MaxChipAddress) << posChip
	v |= uint64(h.ChannelAddress&MaxChannel) << posChannel
	v |= uint64(h.BunchCrossing&MaxBunchCrossing) << posBX
	v |= uint64(computeHamming(v)) << posHamming
	if parity(v) {
		v |= 1 << posParity
	}
	return v
}

// DecodeHeader decodes the 50-bit header v.
//
// Single bit errors are corrected and reported through the HammingOK
// and ParityOK fields. A mismatch of the header parity alone is reported
// with ParityOK=false. DecodeHeader returns a *HeaderError when the header
// can not be trusted; the returned header then holds the raw fields.
func DecodeHeader(v uint64) (ChannelHeader, error) {
	v &= headerMask
	var (
		raw = v
		syn = computeHamming(v) ^ uint8(v&0x3f)
		par = !parity(v)
		err error
	)

	switch {
	case syn == 0:
		// clean hamming. a parity mismatch is in bit 6 or 49.
	case !par:
		bit := posToBit[syn]
		if bit < 0 {
			err = &HeaderError{Raw: raw, Reason: fmt.Sprintf("invalid hamming syndrome %d", syn)}
			break
		}
		v ^= 1 << uint(bit)
	default:
		err = &HeaderError{Raw: raw, Reason: "uncorrectable hamming error"}
	}

	h := headerFrom(v)
	h.ParityOK = par
	h.HammingOK = syn == 0

	if err == nil {
		switch h.PacketType {
		case Sync, HeartBeat:
			if h.NofWords != 0 {
				err = &HeaderError{
					Raw:    raw,
					Reason: fmt.Sprintf("%v packet with %d words to follow", h.PacketType, h.NofWords),
				}
			}
		}
	}

	return h, err
}

func headerFrom(v uint64) ChannelHeader {
	return ChannelHeader{
		Hamming:        uint8(v & 0x3f),
		PayloadParity:  bitOf(v, posPayPar),
		PacketType:     PacketType((v >> posPktType) & 0x7),
		NofWords:       uint16((v >> posNofWords) & MaxNofWords),
		ChipAddress:    uint8((v >> posChip) & MaxChipAddress),
		ChannelAddress: uint8((v >> posChannel) & MaxChannel),
		BunchCrossing:  uint32((v >> posBX) & MaxBunchCrossing),
	}
}
