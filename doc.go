// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mch holds code to encode and decode the front-end data of the
// MCH detector.
//
// The data of a SAMPA chip channel travels on an elink as a bit stream of
// 50-bit packet headers and 10-bit payload words. The elinks of a link
// group are multiplexed into GBT words, and the GBT words of a heartbeat
// frame are wrapped in RDH records by the frame unit (CRU) reading out the
// link group.
//
//   - package sampa encodes and decodes elink bit streams,
//   - package gbt multiplexes elinks into link group payloads,
//   - package rdh reads and writes RDH records,
//   - package cru assembles and splits frame unit streams,
//   - package elecmap maps wire addresses to detector addresses.
package mch // import "github.com/go-lpc/mch"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of mch and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/mch"
	if b.Main.Path == root {
		return b.Main.Version, b.Main.Sum
	}
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
