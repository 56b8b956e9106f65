// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// mch-dump decodes and displays raw frame unit data files.
//
// Usage: mch-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> mch-dump -rdh ./testdata/out.raw
//	RDH v6 fee=0 cru=0 link=0 orbit=1 bc=12 size=240 next=240 page=0 stop=1
//	=== orbit=1 bc=12 ===
//	  group-0-sub-0-idx-0   de-100-chip-0   ch=  0 chip-0-ch-0-ts-12-q-10
//	  group-0-sub-0-idx-0   de-100-chip-0   ch= 31 chip-0-ch-31-ts-12-q-160
//	[...]
package main // import "github.com/go-lpc/mch/cmd/mch-dump"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/internal/mmap"
	"github.com/go-lpc/mch/rdh"
	"github.com/go-lpc/mch/sampa"
)

const usage = `mch-dump decodes and displays raw frame unit data files.

Usage: mch-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> mch-dump -rdh ./testdata/out.raw
 RDH v6 fee=0 cru=0 link=0 orbit=1 bc=12 size=240 next=240 page=0 stop=1
 === orbit=1 bc=12 ===
   group-0-sub-0-idx-0   de-100-chip-0   ch=  0 chip-0-ch-0-ts-12-q-10
   group-0-sub-0-idx-0   de-100-chip-0   ch= 31 chip-0-ch-31-ts-12-q-160
 [...]

Options:
`

func main() {
	os.Exit(xmain(os.Stdout, os.Args[1:]))
}

type config struct {
	mode     string
	elecmap  string
	rdh      bool
	nworkers int
}

func xmain(w io.Writer, args []string) int {
	var (
		msg  = log.New(os.Stdout, "mch-dump: ", 0)
		cfg  config
		fset = flag.NewFlagSet("mch-dump", flag.ContinueOnError)
	)

	fset.StringVar(&cfg.mode, "mode", "chargesum", "sampa mode (sample|chargesum)")
	fset.StringVar(&cfg.elecmap, "elecmap", "", "path to YAML electronic mapping file")
	fset.BoolVar(&cfg.rdh, "rdh", false, "display RDH records")
	fset.IntVar(&cfg.nworkers, "j", 1, "number of link groups decoded concurrently")

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

	if fset.NArg() == 0 {
		fset.Usage()
		msg.Printf("missing path to input raw file")
		return 1
	}

	for _, fname := range fset.Args() {
		err := process(w, msg, fname, cfg)
		if err != nil {
			msg.Printf("could not dump file %q: %+v", fname, err)
			return 1
		}
	}

	return 0
}

func process(w io.Writer, msg *log.Logger, fname string, cfg config) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	mode, err := sampa.ParseMode(cfg.mode)
	if err != nil {
		return err
	}

	opts := []cru.Option{
		cru.WithConcurrency(cfg.nworkers),
		cru.WithLogger(msg),
	}
	if cfg.elecmap != "" {
		m, err := elecmap.Open(cfg.elecmap)
		if err != nil {
			return fmt.Errorf("could not load electronic mapping: %w", err)
		}
		opts = append(opts, cru.WithMapper(m))
	}
	if cfg.rdh {
		opts = append(opts, cru.WithFrameSink(cru.FrameFunc(func(hdr rdh.Header, payload []byte) {
			fmt.Fprintf(wbuf, "%v\n", hdr)
		})))
	}

	f, err := mmap.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open raw file: %w", err)
	}
	defer f.Close()

	var (
		orbit uint32
		bc    uint16
		first = true
	)
	dec := cru.NewDecoder(mode, cru.ClusterFunc(func(c cru.Cluster) {
		if first || c.Orbit != orbit || c.BunchCrossing != bc {
			first = false
			orbit = c.Orbit
			bc = c.BunchCrossing
			fmt.Fprintf(wbuf, "=== orbit=%d bc=%d ===\n", orbit, bc)
		}
		det := "-"
		if c.Mapped {
			det = c.Det.String()
		}
		fmt.Fprintf(wbuf, "  %-21v %-15s ch=%3d %v\n",
			c.Wire, det, elecmap.DualSampaChannel(c.Chip, c.Channel), c,
		)
	}), opts...)

	err = dec.Decode(f.Bytes())
	if err != nil {
		return fmt.Errorf("could not decode raw file: %w", err)
	}

	st := dec.Stats()
	tot := st.Total()
	fmt.Fprintf(wbuf, "records:  %10d\n", st.Records)
	fmt.Fprintf(wbuf, "frames:   %10d\n", st.Frames)
	fmt.Fprintf(wbuf, "clusters: %10d\n", st.Clusters)
	fmt.Fprintf(wbuf, "unmapped: %10d\n", st.Unmapped)
	fmt.Fprintf(wbuf, "syncs:    %10d\n", tot.SyncCount)
	fmt.Fprintf(wbuf, "errors:   %10d (parity=%d, payload-parity=%d, protocol=%d)\n",
		tot.ParityErrors+tot.PayloadParityErrors+tot.ProtocolErrors,
		tot.ParityErrors, tot.PayloadParityErrors, tot.ProtocolErrors,
	)

	return nil
}
