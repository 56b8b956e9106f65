// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mch-split splits a raw frame unit file into n raw files,
// one per link group (or one per frame unit).
package main // import "github.com/go-lpc/mch/cmd/mch-split"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/mch/rdh"
)

var (
	msg = log.New(os.Stdout, "mch-split: ", 0)
)

func main() {
	os.Exit(xmain(os.Args[1:]))
}

func xmain(args []string) int {
	var (
		fset = flag.NewFlagSet("mch-split", flag.ContinueOnError)

		oname = fset.String("o", "out.raw", "path to output raw file")
		byCRU = fset.Bool("cru", false, "split per frame unit instead of per link group")
	)

	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), `Usage: mch-split [OPTIONS] file.raw

ex:
 $> mch-split -o out.raw ./input.raw
 $> mch-split -cru -o out.raw ./input.raw

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

	if *oname == "" {
		fset.Usage()
		msg.Printf("invalid output raw file")
		return 1
	}

	err = process(*oname, *byCRU, fset.Arg(0))
	if err != nil {
		msg.Printf("could not split raw file %q: %+v", fset.Arg(0), err)
		return 1
	}

	return 0
}

func process(oname string, byCRU bool, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open raw file: %w", err)
	}
	defer f.Close()

	var (
		out   = make(map[uint16]*rdh.Encoder)
		files []*os.File
		dec   = rdh.NewDecoder(f)
	)
	defer func() {
		for _, o := range files {
			_ = o.Close()
		}
	}()

loop:
	for {
		hdr, payload, err := dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode RDH record: %w", err)
		}

		id := hdr.FEEID
		if byCRU {
			id = hdr.CRUID
		}

		enc, ok := out[id]
		if !ok {
			oid := outFileFrom(oname, id)
			msg.Printf("creating output file %q...", oid)
			o, err := os.Create(oid)
			if err != nil {
				return fmt.Errorf("could not create output file: %w", err)
			}
			files = append(files, o)

			enc = rdh.NewEncoder(o)
			out[id] = enc
		}

		err = enc.Encode(hdr, payload)
		if err != nil {
			return fmt.Errorf("could not encode RDH record: %w", err)
		}
	}

	for _, o := range files {
		err := o.Close()
		if err != nil {
			return fmt.Errorf("could not close output file %q: %w", o.Name(), err)
		}
	}
	files = nil

	return nil
}

func outFileFrom(fname string, id uint16) string {
	var (
		ext   = filepath.Ext(fname)
		oname = strings.TrimSuffix(fname, ext) + fmt.Sprintf("-%04d%s", id, ext)
	)
	return oname
}
