// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/internal/xcnv"
	"github.com/go-lpc/mch/sampa"
	"go-hep.org/x/hep/lcio"
)

func TestDump(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "mch.lcio")

	mkwire := func(group uint16, sub, idx uint8) elecmap.WireAddress {
		wire, err := elecmap.NewWireAddress(group, sub, idx)
		if err != nil {
			t.Fatalf("could not create wire address: %+v", err)
		}
		return wire
	}

	frames := []xcnv.Frame{
		{
			Orbit:         1,
			BunchCrossing: 12,
			Clusters: []cru.Cluster{
				{
					Orbit: 1, BunchCrossing: 12,
					Wire:   mkwire(0, 0, 0),
					Det:    elecmap.DetectorAddress{DetElemID: 100, ChipID: 0},
					Mapped: true,
					Chip:   0, Channel: 31,
					Charge: 160,
					Sampa:  sampa.Cluster{ChargeSum: 160},
				},
				{
					Orbit: 1, BunchCrossing: 12,
					FrameUnit: 2,
					Wire:      mkwire(3, 1, 4),
					Chip:      9, Channel: 2,
					Charge: 13,
					Sampa:  sampa.Cluster{Timestamp: 3, ChargeSum: 13},
				},
			},
		},
	}

	w, err := lcio.Create(fname)
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}
	defer w.Close()

	err = xcnv.Clusters2LCIO(w, frames, sampa.ChargeSumMode, 63, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("could not write LCIO file: %+v", err)
	}
	err = w.Close()
	if err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}

	out := new(bytes.Buffer)
	if code := xmain(out, []string{fname}); code != 0 {
		t.Fatalf("invalid exit code %d", code)
	}

	want := "=== orbit=1 bc=12 (clusters=2) ===\n" +
		"  fu=0 group-0-sub-0-idx-0   de-100-chip-0   chip-0-ch-31-ts-12-q-160\n" +
		"  fu=2 group-3-sub-1-idx-4   -               chip-9-ch-2-ts-15-q-13\n"
	if got := out.String(); got != want {
		t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestExitCodes(t *testing.T) {
	tmp := t.TempDir()

	for _, tc := range []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"-h"}, 2},
		{"invalid-flag", []string{"-not-a-flag"}, 1},
		{"no-input", nil, 1},
		{"invalid-mode", []string{"-mode", "foo", "in.lcio"}, 1},
		{"missing-file", []string{filepath.Join(tmp, "not-there.lcio")}, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := xmain(io.Discard, tc.args); got != tc.want {
				t.Fatalf("invalid exit code: got=%d, want=%d", got, tc.want)
			}
		})
	}
}
