// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lcio-dump displays the MCH clusters embedded in LCIO files.
//
// Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> lcio-dump ./testdata/mch_063.slcio
//	=== orbit=1 bc=12 (clusters=3) ===
//	  fu=0 group-0-sub-0-idx-0   de-100-chip-0   chip-0-ch-0-ts-12-q-10
//	  fu=0 group-0-sub-0-idx-0   de-100-chip-0   chip-0-ch-31-ts-12-q-160
//	[...]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/mch/internal/xcnv"
	"github.com/go-lpc/mch/sampa"
	"go-hep.org/x/hep/lcio"
)

const usage = `lcio-dump displays the MCH clusters embedded in LCIO files.

Usage: lcio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> lcio-dump ./testdata/mch_063.slcio
 === orbit=1 bc=12 (clusters=3) ===
   fu=0 group-0-sub-0-idx-0   de-100-chip-0   chip-0-ch-0-ts-12-q-10
   fu=0 group-0-sub-0-idx-0   de-100-chip-0   chip-0-ch-31-ts-12-q-160
 [...]

Options:
`

func main() {
	os.Exit(xmain(os.Stdout, os.Args[1:]))
}

func xmain(w io.Writer, args []string) int {
	var (
		msg  = log.New(os.Stdout, "lcio-dump: ", 0)
		fset = flag.NewFlagSet("lcio-dump", flag.ContinueOnError)

		mode = fset.String("mode", "chargesum", "sampa mode (sample|chargesum)")
	)

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
		msg.Printf("missing path to input LCIO file")
		return 1
	}

	m, err := sampa.ParseMode(*mode)
	if err != nil {
		msg.Printf("invalid mode: %+v", err)
		return 1
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, m)
		if err != nil {
			msg.Printf("could not dump file %q: %+v", fname, err)
			return 1
		}
	}

	return 0
}

func process(w io.Writer, fname string, mode sampa.Mode) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	r, err := lcio.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open LCIO file: %w", err)
	}
	defer r.Close()

	frames, err := xcnv.LCIO2Clusters(r, mode, 100, log.New(io.Discard, "", 0))
	if err != nil {
		return fmt.Errorf("could not read clusters: %w", err)
	}

	for _, frame := range frames {
		fmt.Fprintf(wbuf, "=== orbit=%d bc=%d (clusters=%d) ===\n",
			frame.Orbit, frame.BunchCrossing, len(frame.Clusters),
		)
		for _, c := range frame.Clusters {
			det := "-"
			if c.Mapped {
				det = c.Det.String()
			}
			fmt.Fprintf(wbuf, "  fu=%d %-21v %-15s %v\n", c.FrameUnit, c.Wire, det, c)
		}
	}

	return nil
}
