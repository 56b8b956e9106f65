// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampa

import "fmt"

// State is the state of an elink decoder.
type State uint8

const (
	LookingForSync State = iota
	LookingForHeader
	ReadingHeader
	ReadingPayload
)

func (s State) String() string {
	switch s {
	case LookingForSync:
		return "LookingForSync"
	case LookingForHeader:
		return "LookingForHeader"
	case ReadingHeader:
		return "ReadingHeader"
	case ReadingPayload:
		return "ReadingPayload"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// event is what the decoder observed after appending one bit.
type event uint8

const (
	evBit             event = iota // bit accumulated, nothing complete yet
	evSyncFound                    // 50-bit window matches the sync pattern
	evSyncMissed                   // 50-bit window does not match
	evSyncHeader                   // complete header of a Sync packet
	evHeartBeatHeader              // complete header of a HeartBeat packet
	evDataHeader                   // complete header of a data packet
	evBadHeader                    // complete header that can not be used
	evPayloadDone                  // all the payload bits of a data packet
)

// action is the side effect the decoder applies after a transition.
type action uint8

const (
	actNone         action = iota
	actSlide               // drop the oldest bit of the sync window
	actSyncLocked          // clear buffer, count sync
	actSyncPacket          // clear buffer, count sync
	actHeartBeat           // clear buffer
	actStartPayload        // clear buffer, expect payload
	actEmitCluster         // extract cluster, emit it, clear buffer
	actResetLink           // protocol error: clear everything
)

// transition is the state table of the elink decoder.
// Pairs absent from the table are protocol errors and reset the link.
func transition(s State, ev event) (State, action) {
	switch s {
	case LookingForSync:
		switch ev {
		case evBit:
			return LookingForSync, actNone
		case evSyncMissed:
			return LookingForSync, actSlide
		case evSyncFound:
			return LookingForHeader, actSyncLocked
		}
	case LookingForHeader:
		if ev == evBit {
			return ReadingHeader, actNone
		}
	case ReadingHeader:
		switch ev {
		case evBit:
			return ReadingHeader, actNone
		case evSyncHeader:
			return LookingForHeader, actSyncPacket
		case evHeartBeatHeader:
			return LookingForHeader, actHeartBeat
		case evDataHeader:
			return ReadingPayload, actStartPayload
		case evBadHeader:
			return LookingForSync, actResetLink
		}
	case ReadingPayload:
		switch ev {
		case evBit:
			return ReadingPayload, actNone
		case evPayloadDone:
			return LookingForHeader, actEmitCluster
		}
	}
	return LookingForSync, actResetLink
}
