// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gbt

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/go-lpc/mch/sampa"
)

func TestWord(t *testing.T) {
	var w Word
	w.SetLane(0, true, false)
	w.SetLane(16, false, true)
	w.SetLane(39, true, true)
	w.SetBit(100, true)
	w.SetBit(100, false)

	if got, want := w, (Word{0x1, 0x2, 0xc000, 0}); got != want {
		t.Fatalf("invalid word: got=%#x, want=%#x", got, want)
	}

	for _, tc := range []struct {
		lane   int
		b0, b1 bool
	}{
		{0, true, false},
		{1, false, false},
		{16, false, true},
		{39, true, true},
	} {
		b0, b1 := w.Lane(tc.lane)
		if b0 != tc.b0 || b1 != tc.b1 {
			t.Fatalf("lane %d: got=(%v,%v), want=(%v,%v)", tc.lane, b0, b1, tc.b0, tc.b1)
		}
	}

	buf := w.Append(nil)
	if got, want := len(buf), WordSize; got != want {
		t.Fatalf("invalid encoded size: got=%d, want=%d", got, want)
	}
	if got, want := binary.LittleEndian.Uint32(buf[8:]), uint32(0xc000); got != want {
		t.Fatalf("invalid third word: got=0x%x, want=0x%x", got, want)
	}
	if got := WordFrom(buf); got != w {
		t.Fatalf("invalid round-trip: got=%#x, want=%#x", got, w)
	}
}

type hit struct {
	Link    int
	Chip    uint8
	Channel uint8
	BX      uint32
	Cluster sampa.Cluster
}

type hits []hit

func (hs *hits) Cluster(link int, hdr sampa.ChannelHeader, c sampa.Cluster) {
	*hs = append(*hs, hit{
		Link:    link,
		Chip:    hdr.ChipAddress,
		Channel: hdr.ChannelAddress,
		BX:      hdr.BunchCrossing,
		Cluster: c,
	})
}

func (hs hits) sort() {
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Link < hs[j].Link })
}

func testHits(frame int) []hit {
	var hs []hit
	for _, link := range []int{0, 3, 17, 39} {
		for i := 0; i < 1+link%3; i++ {
			hs = append(hs, hit{
				Link:    link,
				Chip:    uint8(link % 16),
				Channel: uint8((link + i) % 32),
				BX:      uint32(100*frame + i),
				Cluster: sampa.Cluster{
					Timestamp: uint16(10*i + frame),
					ChargeSum: uint32(1000*link + i),
				},
			})
		}
	}
	return hs
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		enc  func(opts ...Option) GroupEncoder
		dec  func(sink LaneSink) GroupDecoder
	}{
		{
			name: "bare",
			enc: func(opts ...Option) GroupEncoder {
				return NewEncoder(12, sampa.ChargeSumMode, opts...)
			},
			dec: func(sink LaneSink) GroupDecoder {
				return NewDecoder(12, sampa.ChargeSumMode, sink)
			},
		},
		{
			name: "user-logic",
			enc: func(opts ...Option) GroupEncoder {
				return NewUserLogicEncoder(12, sampa.ChargeSumMode, opts...)
			},
			dec: func(sink LaneSink) GroupDecoder {
				return NewUserLogicDecoder(12, sampa.ChargeSumMode, sink)
			},
		},
	} {
		for _, phase := range []int{0, 1, 7, 49} {
			t.Run(fmt.Sprintf("%s-phase-%d", tc.name, phase), func(t *testing.T) {
				enc := tc.enc(
					WithPhase(func(link int) int { return (link + phase) % sampa.HeaderSize }),
					WithSyncEvery(3),
				)
				var (
					got  hits
					want hits
					dec  = tc.dec(&got)
				)

				for frame := 0; frame < 3; frame++ {
					if !enc.Empty() {
						t.Fatalf("frame %d: encoder should be empty", frame)
					}
					hs := testHits(frame)
					for _, h := range hs {
						err := enc.AddChannelData(h.Link, h.Chip, h.Channel, h.BX, []sampa.Cluster{h.Cluster})
						if err != nil {
							t.Fatalf("could not add channel data: %+v", err)
						}
					}
					want = append(want, hs...)

					buf := enc.MoveToBuffer(nil)
					if len(buf) == 0 {
						t.Fatalf("frame %d: empty payload", frame)
					}
					dec.Decode(buf)
				}

				if got := enc.MoveToBuffer(nil); len(got) != 0 {
					t.Fatalf("second flush returned %d bytes", len(got))
				}

				got.sort()
				want.sort()
				if !reflect.DeepEqual(got, want) {
					t.Fatalf("invalid hits:\ngot= %+v\nwant=%+v", got, want)
				}

				st := dec.Stats()
				tot := st.Total()
				if tot.ProtocolErrors != 0 || tot.HammingErrors != 0 || tot.ParityErrors != 0 {
					t.Fatalf("unexpected decoding errors: %+v", tot)
				}
				if got, want := tot.Clusters, len(want); got != want {
					t.Fatalf("invalid number of clusters: got=%d, want=%d", got, want)
				}
				if st.TruncatedBytes != 0 || st.BadWords != 0 {
					t.Fatalf("invalid stats: %+v", st)
				}
			})
		}
	}
}

func TestBareLaneLayout(t *testing.T) {
	enc := NewEncoder(1, sampa.SampleMode)
	err := enc.AddHeartbeat(2, 1, 0)
	if err != nil {
		t.Fatalf("could not add heartbeat: %+v", err)
	}
	buf := enc.MoveToBuffer(nil)

	// one elink: sync + heartbeat header.
	if got, want := len(buf), 2*sampa.HeaderSize/2*WordSize; got != want {
		t.Fatalf("invalid payload size: got=%d, want=%d", got, want)
	}

	var sync uint64
	for tick := 0; tick < sampa.HeaderSize/2; tick++ {
		w := WordFrom(buf[tick*WordSize:])
		for i := 0; i < NumLanes; i++ {
			b0, b1 := w.Lane(i)
			if i != 2 {
				if b0 || b1 {
					t.Fatalf("tick %d: lane %d is not idle", tick, i)
				}
				continue
			}
			if b0 {
				sync |= 1 << uint(2*tick)
			}
			if b1 {
				sync |= 1 << uint(2*tick+1)
			}
		}
		if w[2]>>16 != 0 || w[3] != 0 {
			t.Fatalf("tick %d: unused bits are set: %#x", tick, w)
		}
	}
	if sync != sampa.SyncPattern {
		t.Fatalf("invalid sync on lane 2: got=0x%x, want=0x%x", sync, sampa.SyncPattern)
	}
}

func TestUserLogicLayout(t *testing.T) {
	enc := NewUserLogicEncoder(1, sampa.SampleMode, WithPhase(func(int) int { return 3 }))
	err := enc.AddHeartbeat(5, 1, 0)
	if err != nil {
		t.Fatalf("could not add heartbeat: %+v", err)
	}
	buf := enc.MoveToBuffer(nil)

	// 3 filler bits + sync + heartbeat, padded to 150 bits.
	if got, want := len(buf), 3*ULWordSize; got != want {
		t.Fatalf("invalid payload size: got=%d, want=%d", got, want)
	}
	for i := 0; i < 3; i++ {
		w := binary.LittleEndian.Uint64(buf[i*ULWordSize:])
		if got, want := (w>>ulLinkPos)&ulLinkMask, uint64(5); got != want {
			t.Fatalf("word %d: invalid link: got=%d, want=%d", i, got, want)
		}
		if w>>ulResPos != 0 {
			t.Fatalf("word %d: reserved bits set: 0x%x", i, w)
		}
	}
	w := binary.LittleEndian.Uint64(buf)
	if got, want := w&ulDataMask, (sampa.SyncPattern<<3)&ulDataMask; got != want {
		t.Fatalf("invalid first word: got=0x%x, want=0x%x", got, want)
	}
}

func TestDecoderAnomalies(t *testing.T) {
	t.Run("bare-truncated", func(t *testing.T) {
		dec := NewDecoder(0, sampa.SampleMode, nil)
		dec.Decode(make([]byte, 2*WordSize+5))
		st := dec.Stats()
		if got, want := st.TruncatedBytes, 5; got != want {
			t.Fatalf("invalid truncated bytes: got=%d, want=%d", got, want)
		}
		if got, want := st.Lanes[7].BitsSeen, 4; got != want {
			t.Fatalf("invalid bits seen: got=%d, want=%d", got, want)
		}
	})

	t.Run("user-logic-bad-words", func(t *testing.T) {
		dec := NewUserLogicDecoder(0, sampa.SampleMode, nil)
		var buf []byte
		for _, w := range []uint64{
			sampa.SyncPattern | 1<<ulLinkPos,
			sampa.SyncPattern | 40<<ulLinkPos,
			sampa.SyncPattern | 1<<ulLinkPos | 1<<60,
		} {
			buf = binary.LittleEndian.AppendUint64(buf, w)
		}
		buf = append(buf, 1, 2, 3)
		dec.Decode(buf)

		st := dec.Stats()
		if got, want := st.BadWords, 2; got != want {
			t.Fatalf("invalid bad words: got=%d, want=%d", got, want)
		}
		if got, want := st.TruncatedBytes, 3; got != want {
			t.Fatalf("invalid truncated bytes: got=%d, want=%d", got, want)
		}
		if got, want := st.Lanes[1].SyncCount, 1; got != want {
			t.Fatalf("invalid sync count: got=%d, want=%d", got, want)
		}
		if got, want := dec.Elink(1).State(), sampa.LookingForHeader; got != want {
			t.Fatalf("invalid state: got=%v, want=%v", got, want)
		}
	})
}

func TestEncoderErrors(t *testing.T) {
	for _, enc := range []GroupEncoder{
		NewEncoder(0, sampa.SampleMode),
		NewUserLogicEncoder(0, sampa.SampleMode),
	} {
		if err := enc.AddHeartbeat(NumLanes, 0, 0); err == nil {
			t.Fatalf("%T: expected an error for an invalid link", enc)
		}
		if err := enc.AddChannelData(-1, 0, 0, 0, nil); err == nil {
			t.Fatalf("%T: expected an error for an invalid link", enc)
		}
		if err := enc.AddChannelData(1, 0, 0, 0, []sampa.Cluster{{Timestamp: 1}}); err == nil {
			t.Fatalf("%T: expected an error for an empty sample cluster", enc)
		}
		if !enc.Empty() {
			t.Fatalf("%T: encoder should be empty", enc)
		}
	}
}

// flipLaneBit inverts the i-th bit carried by lane in a bare payload.
func flipLaneBit(buf []byte, lane, i int) {
	off := (i / 2) * WordSize
	w := WordFrom(buf[off:])
	bit := 2*lane + i%2
	w.SetBit(bit, !w.Bit(bit))
	copy(buf[off:], w.Append(nil))
}

func TestLinkErrorIsolation(t *testing.T) {
	const (
		bad  = 2
		good = 9
	)
	clusters := func(q uint32) []sampa.Cluster {
		return []sampa.Cluster{
			{Timestamp: 1, ChargeSum: q + 1},
			{Timestamp: 2, ChargeSum: q + 2},
			{Timestamp: 3, ChargeSum: q + 3},
		}
	}

	enc := NewEncoder(4, sampa.ChargeSumMode)
	for _, link := range []int{bad, good} {
		err := enc.AddChannelData(link, uint8(link), 5, 7, clusters(uint32(100*link)))
		if err != nil {
			t.Fatalf("could not add channel data: %+v", err)
		}
	}
	buf := enc.MoveToBuffer(nil)

	// the first header of each elink follows its leading sync packet.
	// a double bit error can not be corrected.
	flipLaneBit(buf, bad, sampa.HeaderSize+12)
	flipLaneBit(buf, bad, sampa.HeaderSize+30)

	var got hits
	dec := NewDecoder(4, sampa.ChargeSumMode, &got)
	dec.Decode(buf)

	var want hits
	for _, c := range clusters(100 * good) {
		want = append(want, hit{Link: good, Chip: good, Channel: 5, BX: 7, Cluster: c})
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid hits:\ngot= %+v\nwant=%+v", got, want)
	}

	st := dec.Stats()
	if got, want := st.Lanes[bad].ProtocolErrors, 1; got != want {
		t.Fatalf("invalid protocol errors on lane %d: got=%d, want=%d", bad, got, want)
	}
	if got, want := st.Lanes[bad].Clusters, 0; got != want {
		t.Fatalf("invalid clusters on lane %d: got=%d, want=%d", bad, got, want)
	}
	if got, want := dec.Elink(bad).State(), sampa.LookingForSync; got != want {
		t.Fatalf("invalid state of lane %d: got=%v, want=%v", bad, got, want)
	}
	if got, want := st.Lanes[good].ProtocolErrors, 0; got != want {
		t.Fatalf("invalid protocol errors on lane %d: got=%d, want=%d", good, got, want)
	}
	if got, want := st.Lanes[good].Clusters, 3; got != want {
		t.Fatalf("invalid clusters on lane %d: got=%d, want=%d", good, got, want)
	}
}
