// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mch-sql retrieves an electronic mapping from the MCH condition
// database and saves it as a YAML file.
package main // import "github.com/go-lpc/mch/cmd/mch-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/mch/conddb"
)

func main() {
	log.SetPrefix("mch-sql: ")
	log.SetFlags(0)

	var (
		dbname  = flag.String("db", "mchsrv", "name of the condition database")
		elecmap = flag.String("elecmap", "", "electronic mapping to retrieve (default: most recent)")
		oname   = flag.String("o", "", "path to output YAML file (default: stdout)")
	)

	flag.Parse()

	db, err := conddb.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open MCH db: %+v", err)
	}
	defer db.Close()

	var w io.Writer = os.Stdout
	if *oname != "" {
		f, err := os.Create(*oname)
		if err != nil {
			log.Fatalf("could not create output file: %+v", err)
		}
		defer f.Close()
		w = f
	}

	err = doQuery(w, db, *elecmap)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}

	if f, ok := w.(*os.File); ok && f != os.Stdout {
		err = f.Close()
		if err != nil {
			log.Fatalf("could not close output file: %+v", err)
		}
	}
}

func doQuery(w io.Writer, db *conddb.DB, name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if name == "" {
		v, err := db.LastElecMap(ctx)
		if err != nil {
			return fmt.Errorf("could not get last elecmap value: %w", err)
		}
		name = v
		log.Printf("elecmap: %q", name)
	}

	m, err := db.Mapper(ctx, name)
	if err != nil {
		return fmt.Errorf("could not build mapper for elecmap %q: %w", name, err)
	}

	units := m.FrameUnits()
	log.Printf("frame units: %d", len(units))
	for _, id := range units {
		log.Printf(">>> cru=%03d, groups=%v", id, m.FrameUnitGroups(id))
	}
	log.Printf("chips: %d", len(m.Entries()))

	err = m.Save(w)
	if err != nil {
		return fmt.Errorf("could not save elecmap %q: %w", name, err)
	}

	return nil
}
