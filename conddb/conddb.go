// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to retrieve the electronic mapping of the
// MCH detector from the condition database.
package conddb // import "github.com/go-lpc/mch/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/mch/elecmap"
	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve conditions data
// from the MCH database.
type DB struct {
	db   *sql.DB
	name string // name of the MCH database
}

// Open opens a connection to the MCH database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastElecMap returns the name of the most recent electronic mapping.
func (db *DB) LastElecMap(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM elecmaps ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return name, fmt.Errorf("conddb: could not query elecmap name: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("conddb: could not get elecmap name: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("conddb: could not scan db for elecmap name: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("conddb: context error while retrieving elecmap name: %w", err)
	}

	if name == "" {
		return name, fmt.Errorf("conddb: no elecmap in %q db", db.name)
	}

	return name, nil
}

// Chips returns the chip entries of the named electronic mapping.
func (db *DB) Chips(ctx context.Context, elecMap string) ([]elecmap.TableEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var chips []elecmap.TableEntry
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT chips.group_id, chips.subgroup, chips.idx, chips.de_id, chips.chip_id
FROM elecmap_chips AS chips
JOIN elecmaps ON elecmaps.identifier=chips.elecmap
WHERE elecmaps.name=?
ORDER BY chips.group_id, chips.subgroup, chips.idx
`,
		elecMap,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not run chips query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var c elecmap.TableEntry
		err = rows.Scan(&c.Group, &c.Subgroup, &c.Index, &c.DE, &c.Chip)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan row %d for chips: %w", i, err)
		}
		i++
		chips = append(chips, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for chips: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving chips: %w", err)
	}

	return chips, nil
}

// FrameUnits returns the frame units of the named electronic mapping.
func (db *DB) FrameUnits(ctx context.Context, elecMap string) ([]elecmap.TableUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT fus.cru_id, fus.group_id
FROM elecmap_frame_units AS fus
JOIN elecmaps ON elecmaps.identifier=fus.elecmap
WHERE elecmaps.name=?
ORDER BY fus.cru_id, fus.group_id
`,
		elecMap,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not run frame units query: %w", err)
	}
	defer rows.Close()

	var units []elecmap.TableUnit
	for rows.Next() {
		var id, group uint16
		err = rows.Scan(&id, &group)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan frame units: %w", err)
		}
		if n := len(units); n == 0 || units[n-1].ID != id {
			units = append(units, elecmap.TableUnit{ID: id})
		}
		fu := &units[len(units)-1]
		fu.Groups = append(fu.Groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for frame units: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving frame units: %w", err)
	}

	return units, nil
}

// Table returns the named electronic mapping.
func (db *DB) Table(ctx context.Context, elecMap string) (elecmap.Table, error) {
	var (
		tbl elecmap.Table
		err error
	)

	tbl.FrameUnits, err = db.FrameUnits(ctx, elecMap)
	if err != nil {
		return tbl, err
	}

	tbl.Chips, err = db.Chips(ctx, elecMap)
	if err != nil {
		return tbl, err
	}

	return tbl, nil
}

// Mapper builds the mapper of the named electronic mapping.
func (db *DB) Mapper(ctx context.Context, elecMap string) (*elecmap.Mapper, error) {
	tbl, err := db.Table(ctx, elecMap)
	if err != nil {
		return nil, err
	}

	m, err := tbl.Mapper()
	if err != nil {
		return nil, fmt.Errorf("conddb: invalid elecmap %q: %w", elecMap, err)
	}
	return m, nil
}
