// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert decoded MCH data to/from LCIO.
package xcnv // import "github.com/go-lpc/mch/internal/xcnv"

import (
	"github.com/go-lpc/mch/cru"
)

const (
	detector = "MCH"
	collName = "MCH_CLUSTERS"
)

// Frame holds the clusters of one heartbeat frame.
type Frame struct {
	Orbit         uint32
	BunchCrossing uint16
	Clusters      []cru.Cluster
}

// Frames groups consecutive clusters of the same heartbeat frame.
func Frames(clusters []cru.Cluster) []Frame {
	var frames []Frame
	for _, c := range clusters {
		n := len(frames)
		if n == 0 || frames[n-1].Orbit != c.Orbit || frames[n-1].BunchCrossing != c.BunchCrossing {
			frames = append(frames, Frame{Orbit: c.Orbit, BunchCrossing: c.BunchCrossing})
			n++
		}
		frames[n-1].Clusters = append(frames[n-1].Clusters, c)
	}
	return frames
}
