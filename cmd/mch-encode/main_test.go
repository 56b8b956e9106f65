// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/rdh"
	"github.com/go-lpc/mch/sampa"
)

const digits = `
frames:
  - orbit: 1
    bc: 12
    digits:
      - {de: 100, chip: 0, channel: 0, ts: 0, q: 10}
      - {de: 100, chip: 0, channel: 31, ts: 0, q: 160}
      - {de: 100, chip: 3, channel: 35, ts: 1, q: 13}
      - {de: 101, chip: 3, channel: 45, ts: 2, q: 133}
  - orbit: 2
    bc: 100
    digits:
      - {de: 101, chip: 1, channel: 63, ts: 3, q: 163}
`

func TestExitCodes(t *testing.T) {
	tmp := t.TempDir()
	iname := filepath.Join(tmp, "digits.yaml")
	err := os.WriteFile(iname, []byte(digits), 0644)
	if err != nil {
		t.Fatalf("could not write digits file: %+v", err)
	}
	oname := filepath.Join(tmp, "out.raw")

	for _, tc := range []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, 2},
		{"help-short", []string{"-h"}, 2},
		{"invalid-flag", []string{"--not-a-flag"}, 1},
		{"invalid-value", []string{"-rdh", "six"}, 1},
		{"no-input", []string{"-d"}, 1},
		{"no-mapping", []string{"-i", iname, "-o", oname}, 1},
		{"both-mappings", []string{"-d", "-elecmap", "elecmap.yaml", "-i", iname, "-o", oname}, 1},
		{"missing-input", []string{"-d", "-i", filepath.Join(tmp, "not-there.yaml"), "-o", oname}, 1},
		{"invalid-mode", []string{"-d", "-mode", "foo", "-i", iname, "-o", oname}, 1},
		{"invalid-rdh", []string{"-d", "-rdh", "5", "-i", iname, "-o", oname}, 1},
		{"ok", []string{"-d", "-i", iname, "-o", oname}, 0},
		{"ok-long", []string{"--dummyElecMap", "--userLogic", "--infile", iname, "--outfile", oname}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := xmain(tc.args)
			if got != tc.want {
				t.Fatalf("invalid exit code: got=%d, want=%d", got, tc.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tmp := t.TempDir()
	iname := filepath.Join(tmp, "digits.yaml")
	err := os.WriteFile(iname, []byte(digits), 0644)
	if err != nil {
		t.Fatalf("could not write digits file: %+v", err)
	}

	in, err := load(iname)
	if err != nil {
		t.Fatalf("could not load digits: %+v", err)
	}
	m, err := dummyMapper(in)
	if err != nil {
		t.Fatalf("could not create dummy mapper: %+v", err)
	}

	var want []string
	for _, f := range in.Frames {
		for _, d := range f.Digits {
			want = append(want, fmt.Sprintf(
				"orbit=%d de=%d chip=%d ch=%d ts=%d q=%d",
				f.Orbit, d.DE, d.Chip, d.Channel, uint32(f.BC)+uint32(d.Timestamp), d.Charge,
			))
		}
	}
	sort.Strings(want)

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"bare", nil},
		{"user-logic", []string{"-u"}},
		{"rdh-v4", []string{"-rdh", "4"}},
		{"sync", []string{"-sync", "2", "-j", "4"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			oname := filepath.Join(tmp, tc.name+".raw")
			args := append([]string{"-d", "-i", iname, "-o", oname}, tc.args...)
			if code := xmain(args); code != 0 {
				t.Fatalf("invalid exit code %d", code)
			}

			raw, err := os.ReadFile(oname)
			if err != nil {
				t.Fatalf("could not read output file: %+v", err)
			}

			var got []string
			dec := cru.NewDecoder(sampa.ChargeSumMode, cru.ClusterFunc(func(c cru.Cluster) {
				got = append(got, fmt.Sprintf(
					"orbit=%d de=%d chip=%d ch=%d ts=%d q=%d",
					c.Orbit, c.Det.DetElemID, c.Det.ChipID,
					elecmap.DualSampaChannel(c.Chip, c.Channel),
					c.AbsTimestamp(), c.Charge,
				))
			}), cru.WithMapper(m))

			err = dec.Decode(raw)
			if err != nil {
				t.Fatalf("could not decode output file: %+v", err)
			}
			sort.Strings(got)

			if !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid round-trip:\ngot= %q\nwant=%q", got, want)
			}

			hdr, _, _, err := rdh.Next(raw)
			if err != nil {
				t.Fatalf("could not decode first RDH: %+v", err)
			}
			if got, want := hdr.UserLogic(), tc.name == "user-logic"; got != want {
				t.Fatalf("invalid payload format: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestEncodeWithElecMap(t *testing.T) {
	tmp := t.TempDir()
	iname := filepath.Join(tmp, "digits.yaml")
	err := os.WriteFile(iname, []byte(digits), 0644)
	if err != nil {
		t.Fatalf("could not write digits file: %+v", err)
	}

	m, err := elecmap.NewDummy([]uint16{100, 101, 102}, 4)
	if err != nil {
		t.Fatalf("could not create mapper: %+v", err)
	}
	mname := filepath.Join(tmp, "elecmap.yaml")
	f, err := os.Create(mname)
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

	oname := filepath.Join(tmp, "out.raw")
	if code := xmain([]string{"-elecmap", mname, "-cru", "0", "-i", iname, "-o", oname}); code != 0 {
		t.Fatalf("invalid exit code %d", code)
	}

	raw, err := os.ReadFile(oname)
	if err != nil {
		t.Fatalf("could not read output file: %+v", err)
	}

	dec := cru.NewDecoder(sampa.ChargeSumMode, nil, cru.WithMapper(m))
	err = dec.Decode(raw)
	if err != nil {
		t.Fatalf("could not decode output file: %+v", err)
	}
	st := dec.Stats()
	if st.Clusters != 5 || st.Unmapped != 0 || st.Frames != 2 {
		t.Fatalf("invalid stats: %+v", st)
	}
}

func TestEncodeUnmapped(t *testing.T) {
	tmp := t.TempDir()
	iname := filepath.Join(tmp, "digits.yaml")
	err := os.WriteFile(iname, []byte(`
frames:
  - orbit: 1
    bc: 12
    digits:
      - {de: 100, chip: 0, channel: 3, ts: 1, q: 10}
      - {de: 999, chip: 7, channel: 1, ts: 1, q: 5}
  - orbit: 2
    bc: 30
    digits:
      - {de: 999, chip: 7, channel: 2, ts: 2, q: 6}
      - {de: 100, chip: 1, channel: 40, ts: 2, q: 20}
`), 0644)
	if err != nil {
		t.Fatalf("could not write digits file: %+v", err)
	}

	m, err := elecmap.NewDummy([]uint16{100}, 4)
	if err != nil {
		t.Fatalf("could not create mapper: %+v", err)
	}
	mbuf := new(bytes.Buffer)
	err = m.Save(mbuf)
	if err != nil {
		t.Fatalf("could not save mapping: %+v", err)
	}
	mname := filepath.Join(tmp, "elecmap.yaml")
	err = os.WriteFile(mname, mbuf.Bytes(), 0644)
	if err != nil {
		t.Fatalf("could not write mapping file: %+v", err)
	}

	oname := filepath.Join(tmp, "out.raw")
	if code := xmain([]string{"-elecmap", mname, "-i", iname, "-o", oname}); code != 0 {
		t.Fatalf("invalid exit code %d", code)
	}

	logs := new(bytes.Buffer)
	err = process(log.New(logs, "", 0), config{
		elecmap:  mname,
		iname:    iname,
		oname:    oname,
		mode:     "chargesum",
		rdh:      rdh.V6,
		cru:      -1,
		nworkers: 1,
	})
	if err != nil {
		t.Fatalf("could not encode digits: %+v", err)
	}
	if got, want := strings.Count(logs.String(), "dropping digits of de-999-chip-7"), 1; got != want {
		t.Fatalf("invalid number of unmapped warnings: got=%d, want=%d\n%s", got, want, logs.String())
	}
	if !strings.Contains(logs.String(), "unmapped=2") {
		t.Fatalf("missing unmapped count in summary:\n%s", logs.String())
	}

	raw, err := os.ReadFile(oname)
	if err != nil {
		t.Fatalf("could not read output file: %+v", err)
	}

	var got []string
	dec := cru.NewDecoder(sampa.ChargeSumMode, cru.ClusterFunc(func(c cru.Cluster) {
		got = append(got, fmt.Sprintf(
			"orbit=%d de=%d chip=%d ch=%d ts=%d q=%d",
			c.Orbit, c.Det.DetElemID, c.Det.ChipID,
			elecmap.DualSampaChannel(c.Chip, c.Channel),
			c.AbsTimestamp(), c.Charge,
		))
	}), cru.WithMapper(m))
	err = dec.Decode(raw)
	if err != nil {
		t.Fatalf("could not decode output file: %+v", err)
	}
	sort.Strings(got)

	want := []string{
		"orbit=1 de=100 chip=0 ch=3 ts=13 q=10",
		"orbit=2 de=100 chip=1 ch=40 ts=32 q=20",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid digits:\ngot= %q\nwant=%q", got, want)
	}
}
