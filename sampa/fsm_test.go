// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampa

import "testing"

func TestTransition(t *testing.T) {
	for _, tc := range []struct {
		state State
		ev    event
		want  State
		act   action
	}{
		{LookingForSync, evBit, LookingForSync, actNone},
		{LookingForSync, evSyncMissed, LookingForSync, actSlide},
		{LookingForSync, evSyncFound, LookingForHeader, actSyncLocked},
		{LookingForSync, evDataHeader, LookingForSync, actResetLink},

		{LookingForHeader, evBit, ReadingHeader, actNone},
		{LookingForHeader, evPayloadDone, LookingForSync, actResetLink},

		{ReadingHeader, evBit, ReadingHeader, actNone},
		{ReadingHeader, evSyncHeader, LookingForHeader, actSyncPacket},
		{ReadingHeader, evHeartBeatHeader, LookingForHeader, actHeartBeat},
		{ReadingHeader, evDataHeader, ReadingPayload, actStartPayload},
		{ReadingHeader, evBadHeader, LookingForSync, actResetLink},
		{ReadingHeader, evSyncFound, LookingForSync, actResetLink},

		{ReadingPayload, evBit, ReadingPayload, actNone},
		{ReadingPayload, evPayloadDone, LookingForHeader, actEmitCluster},
		{ReadingPayload, evSyncHeader, LookingForSync, actResetLink},

		{State(42), evBit, LookingForSync, actResetLink},
	} {
		t.Run(tc.state.String(), func(t *testing.T) {
			st, act := transition(tc.state, tc.ev)
			if st != tc.want {
				t.Fatalf("invalid state for event %d: got=%v, want=%v", tc.ev, st, tc.want)
			}
			if act != tc.act {
				t.Fatalf("invalid action for event %d: got=%d, want=%d", tc.ev, act, tc.act)
			}
		})
	}
}
