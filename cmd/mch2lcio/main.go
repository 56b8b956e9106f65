// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mch2lcio converts a raw frame unit data file to an LCIO one.
package main // import "github.com/go-lpc/mch/cmd/mch2lcio"

import (
	"compress/flate"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/internal/mmap"
	"github.com/go-lpc/mch/internal/xcnv"
	"github.com/go-lpc/mch/sampa"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "mch2lcio: ", 0)
)

func main() {
	os.Exit(xmain(os.Args[1:]))
}

type config struct {
	oname   string
	lvl     int
	mode    string
	elecmap string
	run     int
}

func xmain(args []string) int {
	var (
		cfg  config
		fset = flag.NewFlagSet("mch2lcio", flag.ContinueOnError)
	)

	fset.StringVar(&cfg.oname, "o", "out.lcio", "path to output LCIO file")
	fset.IntVar(&cfg.lvl, "lvl", flate.DefaultCompression, "compression level for output LCIO file")
	fset.StringVar(&cfg.mode, "mode", "chargesum", "sampa mode (sample|chargesum)")
	fset.StringVar(&cfg.elecmap, "elecmap", "", "path to YAML electronic mapping file")
	fset.IntVar(&cfg.run, "run", -1, "run number (default: inferred from the input file name)")

	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), `Usage: mch2lcio [OPTIONS] file.raw

ex:
 $> mch2lcio -o out.lcio -lvl=9 ./mch_063.000.raw
 $> mch2lcio -o out.lcio -run=63 -elecmap=elecmap.yaml ./input.raw

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
		msg.Printf("missing input raw file")
		return 1
	}

	if cfg.oname == "" {
		fset.Usage()
		msg.Printf("invalid output LCIO file name")
		return 1
	}

	err = process(cfg, fset.Arg(0))
	if err != nil {
		msg.Printf("could not convert raw file: %+v", err)
		return 1
	}

	return 0
}

func process(cfg config, fname string) error {
	mode, err := sampa.ParseMode(cfg.mode)
	if err != nil {
		return err
	}

	run := int32(cfg.run)
	if cfg.run < 0 {
		run, err = runNbrFrom(fname)
		if err != nil {
			return fmt.Errorf("could not infer run from %q: %w", fname, err)
		}
	}

	var opts []cru.Option
	if cfg.elecmap != "" {
		m, err := elecmap.Open(cfg.elecmap)
		if err != nil {
			return fmt.Errorf("could not load electronic mapping: %w", err)
		}
		opts = append(opts, cru.WithMapper(m))
	}

	f, err := mmap.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open raw file: %w", err)
	}
	defer f.Close()

	w, err := lcio.Create(cfg.oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(cfg.lvl)

	err = xcnv.Raw2LCIO(w, f.Bytes(), mode, run, msg, opts...)
	if err != nil {
		return fmt.Errorf("could not convert raw data to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

func runNbrFrom(fname string) (int32, error) {
	var (
		name = filepath.Base(fname)
		run  int32
		itr  int32
	)
	_, err := fmt.Sscanf(name, "mch_%d.%d.raw", &run, &itr)
	return run, err
}
