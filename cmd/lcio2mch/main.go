// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lcio2mch converts a LCIO file into a raw frame unit data file.
package main // import "github.com/go-lpc/mch/cmd/lcio2mch"

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/internal/xcnv"
	"github.com/go-lpc/mch/rdh"
	"github.com/go-lpc/mch/sampa"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "lcio2mch: ", 0)
)

func main() {
	os.Exit(xmain(os.Args[1:]))
}

type config struct {
	oname     string
	mode      string
	rdh       int
	userLogic bool
	freq      int
}

func xmain(args []string) int {
	var (
		cfg  config
		fset = flag.NewFlagSet("lcio2mch", flag.ContinueOnError)
	)

	fset.StringVar(&cfg.oname, "o", "out.raw", "path to output raw file")
	fset.StringVar(&cfg.mode, "mode", "chargesum", "sampa mode (sample|chargesum)")
	fset.IntVar(&cfg.rdh, "rdh", rdh.V6, "RDH version (4|6)")
	fset.BoolVar(&cfg.userLogic, "u", false, "use the user-logic payload format")
	fset.IntVar(&cfg.freq, "freq", 100, "event frequency for progress report")

	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), `Usage: lcio2mch [OPTIONS] file.lcio

ex:
 $> lcio2mch -o out.raw ./input.lcio
 $> lcio2mch -o out.raw -mode=sample -u ./input.lcio

options:
`)
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

	if fset.NArg() != 1 {
		fset.Usage()
		msg.Printf("missing input LCIO file")
		return 1
	}

	if cfg.oname == "" {
		fset.Usage()
		msg.Printf("invalid output raw file name")
		return 1
	}

	msg.Printf("input: %s", fset.Arg(0))

	err = process(cfg, fset.Arg(0))
	if err != nil {
		msg.Printf("could not convert LCIO file: %+v", err)
		return 1
	}

	return 0
}

func process(cfg config, fname string) error {
	mode, err := sampa.ParseMode(cfg.mode)
	if err != nil {
		return err
	}

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	frames, err := xcnv.LCIO2Clusters(r, mode, cfg.freq, msg)
	if err != nil {
		return fmt.Errorf("could not read clusters: %w", err)
	}

	opts := []cru.Option{
		cru.WithRDHVersion(cfg.rdh),
		cru.WithLogger(msg),
	}
	if cfg.userLogic {
		opts = append(opts, cru.WithUserLogic())
	}

	var (
		ids  []uint16
		encs = make(map[uint16]*cru.Encoder)
	)
	for _, frame := range frames {
		for _, c := range frame.Clusters {
			if _, dup := encs[c.FrameUnit]; dup {
				continue
			}
			enc, err := cru.NewEncoder(c.FrameUnit, mode, opts...)
			if err != nil {
				return fmt.Errorf("could not create encoder for frame unit %d: %w", c.FrameUnit, err)
			}
			encs[c.FrameUnit] = enc
			ids = append(ids, c.FrameUnit)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	f, err := os.Create(cfg.oname)
	if err != nil {
		return fmt.Errorf("could not create output raw file: %w", err)
	}
	defer f.Close()

	var nclusters int
	for i, frame := range frames {
		for _, id := range ids {
			err := encs[id].StartHeartbeatFrame(frame.Orbit, frame.BunchCrossing)
			if err != nil {
				return fmt.Errorf("could not start frame %d: %w", i, err)
			}
		}
		for _, c := range frame.Clusters {
			err := encs[c.FrameUnit].AddChannelData(c.Wire, c.Chip, c.Channel, []sampa.Cluster{c.Sampa})
			if err != nil {
				return fmt.Errorf("could not encode cluster %v of frame %d: %w", c, i, err)
			}
			nclusters++
		}
		for _, id := range ids {
			_, err := encs[id].WriteTo(f)
			if err != nil {
				return fmt.Errorf("could not write frame %d of frame unit %d: %w", i, id, err)
			}
		}
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output raw file: %w", err)
	}

	msg.Printf("frames:   %d", len(frames))
	msg.Printf("clusters: %d", nclusters)
	return nil
}
