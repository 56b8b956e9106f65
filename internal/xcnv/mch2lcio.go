// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"fmt"
	"log"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/sampa"
	"go-hep.org/x/hep/lcio"
)

// Layout of the frame header and of each cluster in the generic object
// of an event.
const (
	hdrOrbit = iota
	hdrBC
	hdrLen
)

const (
	cluFrameUnit = iota
	cluWire
	cluDet
	cluMapped
	cluChip
	cluChannel
	cluSampaBX
	cluTimestamp
	cluChargeSum
	cluLen // samples follow
)

// Raw2LCIO decodes the frame unit buffer raw and writes one LCIO event
// per heartbeat frame to w.
func Raw2LCIO(w *lcio.Writer, raw []byte, mode sampa.Mode, run int32, msg *log.Logger, opts ...cru.Option) error {
	var clusters []cru.Cluster
	dec := cru.NewDecoder(mode, cru.ClusterFunc(func(c cru.Cluster) {
		clusters = append(clusters, c)
	}), opts...)

	err := dec.Decode(raw)
	if err != nil {
		return fmt.Errorf("could not decode raw data: %w", err)
	}

	st := dec.Stats()
	tot := st.Total()
	msg.Printf(
		"decoded %d records, %d frames, %d clusters (unmapped=%d, parity-errors=%d, protocol-errors=%d)",
		st.Records, st.Frames, st.Clusters, st.Unmapped,
		tot.ParityErrors+tot.PayloadParityErrors, tot.ProtocolErrors,
	)

	return Clusters2LCIO(w, Frames(clusters), mode, run, msg)
}

// Clusters2LCIO writes one LCIO event per heartbeat frame to w.
func Clusters2LCIO(w *lcio.Writer, frames []Frame, mode sampa.Mode, run int32, msg *log.Logger) error {
	err := w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: run,
		Detector:  detector,
		Descr:     "",
		Params: lcio.Params{
			Strings: map[string][]string{
				"Mode": {mode.String()},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not write run header: %w", err)
	}

	for i, frame := range frames {
		if i%100 == 0 {
			msg.Printf("processing frame %d...", i)
		}

		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: int32(i),
			TimeStamp:   int64(frame.Orbit)<<12 | int64(frame.BunchCrossing),
			Detector:    detector,
		}
		evt.Add(collName, genericFrom(frame))

		err = w.WriteEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not write frame %d: %w", i, err)
		}
	}

	return nil
}

func genericFrom(frame Frame) *lcio.GenericObject {
	obj := &lcio.GenericObject{
		Data: make([]lcio.GenericObjectData, 0, 1+len(frame.Clusters)),
	}

	hdr := make([]int32, hdrLen)
	hdr[hdrOrbit] = int32(frame.Orbit)
	hdr[hdrBC] = int32(frame.BunchCrossing)
	obj.Data = append(obj.Data, lcio.GenericObjectData{I32s: hdr})

	for _, c := range frame.Clusters {
		vs := make([]int32, cluLen, cluLen+len(c.Sampa.Samples))
		vs[cluFrameUnit] = int32(c.FrameUnit)
		vs[cluWire] = int32(c.Wire.Encode())
		vs[cluDet] = int32(c.Det.Encode())
		if c.Mapped {
			vs[cluMapped] = 1
		}
		vs[cluChip] = int32(c.Chip)
		vs[cluChannel] = int32(c.Channel)
		vs[cluSampaBX] = int32(c.SampaBX)
		vs[cluTimestamp] = int32(c.Sampa.Timestamp)
		vs[cluChargeSum] = int32(c.Sampa.ChargeSum)
		for _, v := range c.Sampa.Samples {
			vs = append(vs, int32(v))
		}
		obj.Data = append(obj.Data, lcio.GenericObjectData{I32s: vs})
	}

	return obj
}
