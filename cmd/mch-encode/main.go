// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mch-encode encodes digits into raw frame unit data.
//
// The input is a YAML file listing heartbeat frames:
//
//	frames:
//	  - orbit: 1
//	    bc: 12
//	    digits:
//	      - {de: 100, chip: 3, channel: 13, ts: 0, q: 133}
//	      - {de: 100, chip: 4, channel: 40, ts: 2, samples: [10, 20, 30]}
//
// Digits are addressed by detector address (detection element, dual
// sampa chip) and by the channel of the dual sampa chip, in [0, 64).
package main // import "github.com/go-lpc/mch/cmd/mch-encode"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/rdh"
	"github.com/go-lpc/mch/sampa"
	"gopkg.in/yaml.v3"
)

const usage = `mch-encode encodes digits into raw frame unit data.

Usage: mch-encode [OPTIONS]

Example:

 $> mch-encode -d -i digits.yaml -o out.raw
 $> mch-encode -u -elecmap elecmap.yaml -mode sample -i digits.yaml -o out.raw

Options:
`

func main() {
	os.Exit(xmain(os.Args[1:]))
}

type config struct {
	userLogic bool
	dummy     bool
	elecmap   string
	iname     string
	oname     string
	mode      string
	rdh       int
	cru       int
	syncEvery int
	nworkers  int
}

func xmain(args []string) int {
	var (
		msg  = log.New(os.Stdout, "mch-encode: ", 0)
		cfg  config
		fset = flag.NewFlagSet("mch-encode", flag.ContinueOnError)
	)

	fset.BoolVar(&cfg.userLogic, "userLogic", false, "use the user-logic payload format")
	fset.BoolVar(&cfg.userLogic, "u", false, "use the user-logic payload format (shorthand)")
	fset.BoolVar(&cfg.dummy, "dummyElecMap", false, "use a synthetic electronic mapping")
	fset.BoolVar(&cfg.dummy, "d", false, "use a synthetic electronic mapping (shorthand)")
	fset.StringVar(&cfg.iname, "infile", "", "path to input YAML digits file")
	fset.StringVar(&cfg.iname, "i", "", "path to input YAML digits file (shorthand)")
	fset.StringVar(&cfg.oname, "outfile", "out.raw", "path to output raw file")
	fset.StringVar(&cfg.oname, "o", "out.raw", "path to output raw file (shorthand)")
	fset.StringVar(&cfg.elecmap, "elecmap", "", "path to YAML electronic mapping file")
	fset.StringVar(&cfg.mode, "mode", "chargesum", "sampa mode (sample|chargesum)")
	fset.IntVar(&cfg.rdh, "rdh", rdh.V6, "RDH version (4|6)")
	fset.IntVar(&cfg.cru, "cru", -1, "only encode the given frame unit (-1: all)")
	fset.IntVar(&cfg.syncEvery, "sync", 0, "insert a sync packet every n packets (0: never)")
	fset.IntVar(&cfg.nworkers, "j", 1, "number of link groups encoded concurrently")

	fset.Usage = func() {
		fmt.Fprint(fset.Output(), usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 2
	case err != nil:
		msg.Printf("could not parse input arguments: %+v", err)
		return 1
	}

	if cfg.iname == "" {
		fset.Usage()
		msg.Printf("missing path to input digits file")
		return 1
	}

	err = process(msg, cfg)
	if err != nil {
		msg.Printf("could not encode %q: %+v", cfg.iname, err)
		return 1
	}

	return 0
}

type digit struct {
	DE        uint16   `yaml:"de"`
	Chip      uint16   `yaml:"chip"`
	Channel   int      `yaml:"channel"`
	Timestamp uint16   `yaml:"ts"`
	Charge    uint32   `yaml:"q,omitempty"`
	Samples   []uint16 `yaml:"samples,flow,omitempty"`
}

type frame struct {
	Orbit  uint32  `yaml:"orbit"`
	BC     uint16  `yaml:"bc"`
	Digits []digit `yaml:"digits"`
}

type input struct {
	Frames []frame `yaml:"frames"`
}

func load(fname string) (input, error) {
	var in input

	f, err := os.Open(fname)
	if err != nil {
		return in, fmt.Errorf("could not open digits file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	err = dec.Decode(&in)
	if err != nil && !errors.Is(err, io.EOF) {
		return in, fmt.Errorf("could not decode digits file: %w", err)
	}

	return in, nil
}

func mapper(cfg config, in input) (*elecmap.Mapper, error) {
	switch {
	case cfg.elecmap != "" && cfg.dummy:
		return nil, fmt.Errorf("options -elecmap and -dummyElecMap are mutually exclusive")
	case cfg.elecmap != "":
		return elecmap.Open(cfg.elecmap)
	case cfg.dummy:
		return dummyMapper(in)
	default:
		return nil, fmt.Errorf("missing electronic mapping (use -elecmap or -dummyElecMap)")
	}
}

// dummyMapper builds a synthetic mapping covering all the chips of in.
func dummyMapper(in input) (*elecmap.Mapper, error) {
	var (
		set   = make(map[uint16]struct{})
		chips = 1
	)
	for _, f := range in.Frames {
		for _, d := range f.Digits {
			set[d.DE] = struct{}{}
			if n := int(d.Chip) + 1; n > chips {
				chips = n
			}
		}
	}
	des := make([]uint16, 0, len(set))
	for de := range set {
		des = append(des, de)
	}
	sort.Slice(des, func(i, j int) bool { return des[i] < des[j] })

	return elecmap.NewDummy(des, chips)
}

func process(msg *log.Logger, cfg config) error {
	in, err := load(cfg.iname)
	if err != nil {
		return err
	}

	mode, err := sampa.ParseMode(cfg.mode)
	if err != nil {
		return err
	}

	m, err := mapper(cfg, in)
	if err != nil {
		return fmt.Errorf("could not create electronic mapping: %w", err)
	}

	opts := []cru.Option{
		cru.WithMapper(m),
		cru.WithRDHVersion(cfg.rdh),
		cru.WithSyncEvery(cfg.syncEvery),
		cru.WithConcurrency(cfg.nworkers),
		cru.WithLogger(msg),
	}
	if cfg.userLogic {
		opts = append(opts, cru.WithUserLogic())
	}

	var ids []uint16
	switch {
	case cfg.cru >= 0:
		ids = []uint16{uint16(cfg.cru)}
	default:
		ids = m.FrameUnits()
	}

	encs := make(map[uint16]*cru.Encoder, len(ids))
	for _, id := range ids {
		enc, err := cru.NewEncoder(id, mode, opts...)
		if err != nil {
			return fmt.Errorf("could not create encoder for frame unit %d: %w", id, err)
		}
		encs[id] = enc
	}

	o, err := os.Create(cfg.oname)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer o.Close()

	var (
		ndigits   int
		nskipped  int
		nunmapped int
		nbytes    int64
		unmapped  = make(map[elecmap.DetectorAddress]bool)
	)
	dropUnmapped := func(det elecmap.DetectorAddress, reason string) {
		nunmapped++
		if !unmapped[det] {
			unmapped[det] = true
			msg.Printf("dropping digits of %v: %s", det, reason)
		}
	}
	for i, f := range in.Frames {
		for _, id := range ids {
			err := encs[id].StartHeartbeatFrame(f.Orbit, f.BC)
			if err != nil {
				return fmt.Errorf("could not start frame %d: %w", i, err)
			}
		}

		for j, d := range f.Digits {
			det := elecmap.DetectorAddress{DetElemID: d.DE, ChipID: d.Chip}
			wire, ok := m.ToWire(det)
			if !ok {
				dropUnmapped(det, "no wire address")
				continue
			}
			fu, ok := m.GroupFrameUnit(wire.GroupID())
			if !ok {
				dropUnmapped(det, fmt.Sprintf("group %d is not read out by any frame unit", wire.GroupID()))
				continue
			}
			enc, ok := encs[fu]
			if !ok {
				nskipped++
				continue
			}
			chip, ch, err := elecmap.SampaAddress(wire, d.Channel)
			if err != nil {
				return fmt.Errorf("frame %d, digit %d: %w", i, j, err)
			}
			c := sampa.Cluster{
				Timestamp: d.Timestamp,
				ChargeSum: d.Charge,
				Samples:   d.Samples,
			}
			err = enc.AddChannelData(wire, chip, ch, []sampa.Cluster{c})
			if err != nil {
				return fmt.Errorf("frame %d, digit %d: %w", i, j, err)
			}
			ndigits++
		}

		for _, id := range ids {
			n, err := encs[id].WriteTo(o)
			nbytes += n
			if err != nil {
				return fmt.Errorf("could not write frame %d of frame unit %d: %w", i, id, err)
			}
		}
	}

	err = o.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}

	msg.Printf(
		"encoded %d frames, %d digits (skipped=%d, unmapped=%d) into %d bytes",
		len(in.Frames), ndigits, nskipped, nunmapped, nbytes,
	)
	return nil
}
