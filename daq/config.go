// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the configuration of a readout stage.
//
// Example of a TOML configuration file:
//
//	frame-unit  = 3
//	mode        = "sample"
//	concurrency = 4
//	queue       = 256
//
//	[elecmap]
//	file = "elecmap.yaml"
//
//	[log]
//	file        = "/var/log/mch-srv.log"
//	max-size    = 100
//	max-backups = 5
//	max-age     = 28
//	compress    = true
type Config struct {
	FrameUnit   int    `toml:"frame-unit"`  // frame unit to accept (-1: any)
	Mode        string `toml:"mode"`        // sampa mode (sample|chargesum)
	Concurrency int    `toml:"concurrency"` // number of link groups decoded concurrently
	Queue       int    `toml:"queue"`       // number of output batches buffered

	ElecMap ElecMapConfig `toml:"elecmap"`
	Log     LogConfig     `toml:"log"`
}

// ElecMapConfig describes where the electronic mapping is loaded from.
// File takes precedence over DB.
type ElecMapConfig struct {
	File string `toml:"file"` // path to a YAML mapping file
	DB   string `toml:"db"`   // name of the condition database
	Name string `toml:"name"` // mapping to retrieve from DB (default: most recent)
}

// LogConfig describes the rotating log file of a stage.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSize    int    `toml:"max-size"` // megabytes
	MaxBackups int    `toml:"max-backups"`
	MaxAge     int    `toml:"max-age"` // days
	Compress   bool   `toml:"compress"`
}

// DefaultConfig returns the default configuration of a stage.
func DefaultConfig() Config {
	return Config{
		FrameUnit:   -1,
		Mode:        "chargesum",
		Concurrency: 1,
		Queue:       1024,
		Log: LogConfig{
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
		},
	}
}

// LoadConfig reads a TOML configuration file.
// Values missing from the file keep their default value.
func LoadConfig(fname string) (Config, error) {
	cfg := DefaultConfig()

	meta, err := toml.DecodeFile(fname, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("daq: could not decode config file %q: %w", fname, err)
	}

	if keys := meta.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		sort.Strings(names)
		return cfg, fmt.Errorf("daq: unknown keys in config file %q: %s", fname, strings.Join(names, ", "))
	}

	err = cfg.validate()
	if err != nil {
		return cfg, fmt.Errorf("daq: invalid config file %q: %w", fname, err)
	}

	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.FrameUnit < -1 || cfg.FrameUnit > 0xffff {
		return fmt.Errorf("invalid frame unit %d", cfg.FrameUnit)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency %d", cfg.Concurrency)
	}
	if cfg.Queue < 1 {
		return fmt.Errorf("invalid queue size %d", cfg.Queue)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger creates a logger writing to w and, when cfg.File is set, to
// a size-rotated log file.
// The returned closer releases the log file.
func NewLogger(cfg LogConfig, w io.Writer, prefix string) (*log.Logger, io.Closer) {
	if cfg.File == "" {
		return log.New(w, prefix, 0), nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	return log.New(io.MultiWriter(w, rotator), prefix, log.LstdFlags|log.Lmicroseconds), rotator
}
