// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mch-srv starts a TDAQ server decoding MCH frame unit data.
//
// The server reads its configuration from the TOML file named by the
// MCH_SRV_CONFIG environment variable (default: ./mch-srv.toml).
// A missing default configuration file selects the default configuration.
package main // import "github.com/go-lpc/mch/cmd/mch-srv"

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/mch"
	"github.com/go-lpc/mch/daq"
)

const defaultConfig = "mch-srv.toml"

func main() {
	cmd := flags.New()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("could not load configuration: %+v", err)
	}

	msg, closer := daq.NewLogger(cfg.Log, os.Stdout, "mch-srv: ")
	defer closer.Close()

	if v, _ := mch.Version(); v != "" {
		msg.Printf("version: %s", v)
	}

	dev := daq.NewServer(cmd.Args[0], cfg, msg)

	srv := tdaq.New(cmd, os.Stdout)
	dev.Register(srv)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func loadConfig() (daq.Config, error) {
	fname := os.Getenv("MCH_SRV_CONFIG")
	if fname == "" {
		fname = defaultConfig
		_, err := os.Stat(fname)
		if errors.Is(err, fs.ErrNotExist) {
			return daq.DefaultConfig(), nil
		}
	}
	return daq.LoadConfig(fname)
}
