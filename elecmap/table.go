// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elecmap

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Table is the serialized form of the mapping tables.
type Table struct {
	FrameUnits []TableUnit  `yaml:"frame-units"`
	Chips      []TableEntry `yaml:"chips"`
}

// TableUnit is the serialized form of a FrameUnit.
type TableUnit struct {
	ID     uint16   `yaml:"id"`
	Groups []uint16 `yaml:"groups,flow"`
}

// TableEntry is the serialized form of an Entry.
type TableEntry struct {
	Group    uint16 `yaml:"group"`
	Subgroup uint8  `yaml:"subgroup"`
	Index    uint8  `yaml:"index"`
	DE       uint16 `yaml:"de"`
	Chip     uint16 `yaml:"chip"`
}

// Mapper validates the table and builds the corresponding mapper.
func (tbl Table) Mapper() (*Mapper, error) {
	entries := make([]Entry, len(tbl.Chips))
	for i, c := range tbl.Chips {
		wire, err := NewWireAddress(c.Group, c.Subgroup, c.Index)
		if err != nil {
			return nil, fmt.Errorf("elecmap: invalid chip entry #%d: %w", i, err)
		}
		entries[i] = Entry{
			Wire: wire,
			Det:  DetectorAddress{DetElemID: c.DE, ChipID: c.Chip},
		}
	}

	units := make([]FrameUnit, len(tbl.FrameUnits))
	for i, fu := range tbl.FrameUnits {
		units[i] = FrameUnit{ID: fu.ID, Groups: fu.Groups}
	}

	return New(entries, units)
}

// Table returns the serialized form of the mapper.
func (m *Mapper) Table() Table {
	var tbl Table
	for _, id := range m.FrameUnits() {
		tbl.FrameUnits = append(tbl.FrameUnits, TableUnit{
			ID:     id,
			Groups: m.FrameUnitGroups(id),
		})
	}
	for _, e := range m.entries {
		tbl.Chips = append(tbl.Chips, TableEntry{
			Group:    e.Wire.group,
			Subgroup: e.Wire.subgroup,
			Index:    e.Wire.index,
			DE:       e.Det.DetElemID,
			Chip:     e.Det.ChipID,
		})
	}
	return tbl
}

// Load reads a YAML mapping table from r and builds the mapper.
func Load(r io.Reader) (*Mapper, error) {
	var tbl Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&tbl)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("elecmap: could not decode mapping table: %w", err)
	}
	return tbl.Mapper()
}

// Open reads the YAML mapping table stored in the named file.
func Open(fname string) (*Mapper, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("elecmap: could not open mapping file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Save writes the mapper as a YAML mapping table to w.
func (m *Mapper) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(m.Table())
	if err != nil {
		return fmt.Errorf("elecmap: could not encode mapping table: %w", err)
	}
	err = enc.Close()
	if err != nil {
		return fmt.Errorf("elecmap: could not close mapping table encoder: %w", err)
	}
	return nil
}
