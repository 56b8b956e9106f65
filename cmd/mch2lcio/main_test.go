// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"compress/flate"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/internal/xcnv"
	"github.com/go-lpc/mch/sampa"
	"go-hep.org/x/hep/lcio"
)

func TestRunNbrFrom(t *testing.T) {
	for _, tc := range []struct {
		fname string
		run   int32
	}{
		{
			fname: "./mch_063.000.raw",
			run:   63,
		},
		{
			fname: "/some/dir/mch_663.000.raw",
			run:   663,
		},
		{
			fname: "../some/dir/mch_009.001.raw",
			run:   9,
		},
	} {
		t.Run(tc.fname, func(t *testing.T) {
			got, err := runNbrFrom(tc.fname)
			if err != nil {
				t.Fatalf("could not infer run-nbr: %+v", err)
			}
			if got != tc.run {
				t.Fatalf("invalid run: got=%d, want=%d", got, tc.run)
			}
		})
	}

	_, err := runNbrFrom("data.raw")
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestMCH2LCIO(t *testing.T) {
	tmp := t.TempDir()

	m, err := elecmap.NewDummy([]uint16{300}, 10)
	if err != nil {
		t.Fatalf("could not create mapper: %+v", err)
	}
	emap := filepath.Join(tmp, "elecmap.yaml")
	{
		f, err := os.Create(emap)
		if err != nil {
			t.Fatalf("could not create mapping file: %+v", err)
		}
		defer f.Close()
		err = m.Save(f)
		if err != nil {
			t.Fatalf("could not save mapping: %+v", err)
		}
		err = f.Close()
		if err != nil {
			t.Fatalf("could not close mapping file: %+v", err)
		}
	}

	enc, err := cru.NewEncoder(0, sampa.SampleMode, cru.WithMapper(m))
	if err != nil {
		t.Fatalf("could not create encoder: %+v", err)
	}
	for orbit := uint32(0); orbit < 4; orbit++ {
		err = enc.StartHeartbeatFrame(orbit, 42)
		if err != nil {
			t.Fatalf("could not start frame: %+v", err)
		}
		wire, ok := m.ToWire(elecmap.DetectorAddress{DetElemID: 300, ChipID: uint16(orbit)})
		if !ok {
			t.Fatalf("could not find wire address")
		}
		err = enc.AddChannelData(wire, 0, 5, []sampa.Cluster{
			{Timestamp: 1, Samples: []uint16{1, 2, 3}},
			{Timestamp: 9, Samples: []uint16{4, 5}},
		})
		if err != nil {
			t.Fatalf("could not add channel data: %+v", err)
		}
	}
	buf, _ := enc.MoveToBuffer(nil)

	fname := filepath.Join(tmp, "mch_063.000.raw")
	err = os.WriteFile(fname, buf, 0644)
	if err != nil {
		t.Fatalf("could not write raw file: %+v", err)
	}

	oname := filepath.Join(tmp, "out.lcio")
	err = process(config{
		oname:   oname,
		lvl:     flate.DefaultCompression,
		mode:    "sample",
		elecmap: emap,
		run:     -1,
	}, fname)
	if err != nil {
		t.Fatalf("could not convert raw file: %+v", err)
	}

	r, err := lcio.Open(oname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer r.Close()

	frames, err := xcnv.LCIO2Clusters(r, sampa.SampleMode, 10, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("could not read LCIO file: %+v", err)
	}
	if got, want := len(frames), 4; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}
	for i, frame := range frames {
		if got, want := len(frame.Clusters), 2; got != want {
			t.Fatalf("frame %d: invalid number of clusters: got=%d, want=%d", i, got, want)
		}
		c := frame.Clusters[0]
		if c.Det != (elecmap.DetectorAddress{DetElemID: 300, ChipID: uint16(i)}) || c.Charge != 6 {
			t.Fatalf("frame %d: invalid cluster %v (det=%v)", i, c, c.Det)
		}
	}

	for _, tc := range []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"-h"}, 2},
		{"invalid-flag", []string{"-not-a-flag"}, 1},
		{"no-input", nil, 1},
		{"no-output", []string{"-o", "", fname}, 1},
		{"no-run", []string{"-o", oname, filepath.Join(tmp, "data.raw")}, 1},
		{"ok", []string{"-o", oname, "-mode", "sample", fname}, 0},
		{"ok-run", []string{"-o", oname, "-mode", "sample", "-run", "12", "-elecmap", emap, fname}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := xmain(tc.args); got != tc.want {
				t.Fatalf("invalid exit code: got=%d, want=%d", got, tc.want)
			}
		})
	}
}
