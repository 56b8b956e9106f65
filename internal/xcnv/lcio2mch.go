// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/sampa"
	"go-hep.org/x/hep/lcio"
)

// LCIO2Clusters reads back the heartbeat frames written by Clusters2LCIO.
func LCIO2Clusters(r *lcio.Reader, mode sampa.Mode, freq int, msg *log.Logger) ([]Frame, error) {
	var (
		frames []Frame
		i      = 0
	)
	if freq <= 0 {
		freq = 1
	}

	for r.Next() {
		if i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		evt := r.Event()
		obj, ok := evt.Get(collName).(*lcio.GenericObject)
		if !ok {
			return frames, fmt.Errorf("could not find %q collection in event %d", collName, i)
		}

		frame, err := frameFrom(obj, mode)
		if err != nil {
			return frames, fmt.Errorf("could not decode event %d: %w", i, err)
		}
		frames = append(frames, frame)
		i++
	}

	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return frames, fmt.Errorf("could not read LCIO events: %w", err)
	}

	return frames, nil
}

func frameFrom(obj *lcio.GenericObject, mode sampa.Mode) (Frame, error) {
	var frame Frame
	if len(obj.Data) == 0 || len(obj.Data[0].I32s) != hdrLen {
		return frame, fmt.Errorf("invalid frame header")
	}

	hdr := obj.Data[0].I32s
	frame.Orbit = uint32(hdr[hdrOrbit])
	frame.BunchCrossing = uint16(hdr[hdrBC])

	for i, data := range obj.Data[1:] {
		vs := data.I32s
		if len(vs) < cluLen {
			return frame, fmt.Errorf("invalid cluster %d (len=%d)", i, len(vs))
		}
		wire, err := elecmap.DecodeWireAddress(uint16(vs[cluWire]))
		if err != nil {
			return frame, fmt.Errorf("invalid wire address of cluster %d: %w", i, err)
		}

		c := cru.Cluster{
			Orbit:         frame.Orbit,
			BunchCrossing: frame.BunchCrossing,
			FrameUnit:     uint16(vs[cluFrameUnit]),
			Wire:          wire,
			Det:           elecmap.DecodeDetectorAddress(uint32(vs[cluDet])),
			Mapped:        vs[cluMapped] != 0,
			Chip:          uint8(vs[cluChip]),
			Channel:       uint8(vs[cluChannel]),
			SampaBX:       uint32(vs[cluSampaBX]),
			Sampa: sampa.Cluster{
				Timestamp: uint16(vs[cluTimestamp]),
				ChargeSum: uint32(vs[cluChargeSum]),
			},
		}
		if n := len(vs) - cluLen; n > 0 {
			c.Sampa.Samples = make([]uint16, n)
			for j, v := range vs[cluLen:] {
				c.Sampa.Samples[j] = uint16(v)
			}
		}
		c.Charge = c.Sampa.Charge(mode)
		frame.Clusters = append(frame.Clusters, c)
	}

	return frame, nil
}
