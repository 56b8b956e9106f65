// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq holds the run-control stage decoding MCH frame unit data
// within a tdaq process.
//
// The stage receives CRU buffers on its /raw input port and sends
// CBOR-encoded batches of clusters on its /clusters output port, one
// batch per heartbeat frame.
package daq // import "github.com/go-lpc/mch/daq"
