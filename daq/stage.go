// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/go-lpc/mch/conddb"
	"github.com/go-lpc/mch/cru"
	"github.com/go-lpc/mch/elecmap"
	"github.com/go-lpc/mch/internal/xcnv"
	"github.com/go-lpc/mch/sampa"
)

var (
	ErrNotConfigured  = errors.New("daq: stage not configured")
	ErrNotInitialized = errors.New("daq: stage not initialized")
)

// Stats holds the counters of a stage since its last initialization.
type Stats struct {
	Buffers  int // input buffers processed
	Batches  int // batches queued on the output port
	Clusters int // clusters queued on the output port
	Foreign  int // clusters dropped for coming from another frame unit
	Overflow int // batches dropped because the output queue was full
	Errors   int // input buffers with a structural decoding error
	Idle     int // input buffers received while not running
}

// Stage decodes the frame unit buffers it receives and queues the
// decoded clusters as CBOR-encoded batches, one per heartbeat frame.
//
// The decoding state is reset by Init and Reset.
type Stage struct {
	cfg Config
	msg *log.Logger

	// loadDB retrieves a mapping from the condition database.
	loadDB func(ctx context.Context, db, name string) (*elecmap.Mapper, error)

	mu      sync.Mutex
	cfgd    bool // whether Configure succeeded
	mode    sampa.Mode
	mapper  *elecmap.Mapper
	dec     *cru.Decoder
	buf     []cru.Cluster
	running bool
	stats   Stats

	out chan []byte
}

// NewStage creates a readout stage from the provided configuration.
func NewStage(cfg Config, msg *log.Logger) *Stage {
	return &Stage{
		cfg:    cfg,
		msg:    msg,
		loadDB: loadDB,
	}
}

func loadDB(ctx context.Context, dbname, name string) (*elecmap.Mapper, error) {
	db, err := conddb.Open(dbname)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if name == "" {
		name, err = db.LastElecMap(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not retrieve last elecmap: %w", err)
		}
	}

	return db.Mapper(ctx, name)
}

// Configure validates the configuration and loads the electronic mapping.
func (stage *Stage) Configure(ctx context.Context) error {
	err := stage.cfg.validate()
	if err != nil {
		return fmt.Errorf("daq: invalid configuration: %w", err)
	}

	mode, err := sampa.ParseMode(stage.cfg.Mode)
	if err != nil {
		return fmt.Errorf("daq: invalid configuration: %w", err)
	}

	var m *elecmap.Mapper
	switch emap := stage.cfg.ElecMap; {
	case emap.File != "":
		m, err = elecmap.Open(emap.File)
		if err != nil {
			return fmt.Errorf("daq: could not load elecmap file %q: %w", emap.File, err)
		}
	case emap.DB != "":
		m, err = stage.loadDB(ctx, emap.DB, emap.Name)
		if err != nil {
			return fmt.Errorf("daq: could not load elecmap from db %q: %w", emap.DB, err)
		}
	default:
		stage.msg.Printf("no electronic mapping configured: clusters will not be mapped")
	}

	stage.mu.Lock()
	defer stage.mu.Unlock()

	stage.cfgd = true
	stage.mode = mode
	stage.mapper = m
	stage.dec = nil
	stage.running = false

	stage.msg.Printf("configured stage (frame-unit=%d, mode=%v, concurrency=%d)",
		stage.cfg.FrameUnit, mode, stage.cfg.Concurrency,
	)
	return nil
}

// Init creates a new decoder and output queue.
func (stage *Stage) Init() error {
	stage.mu.Lock()
	defer stage.mu.Unlock()

	return stage.init()
}

// Reset discards the decoding state and the queued batches.
func (stage *Stage) Reset() error {
	stage.mu.Lock()
	defer stage.mu.Unlock()

	if stage.out == nil {
		return nil
	}
	return stage.init()
}

func (stage *Stage) init() error {
	if !stage.cfgd {
		return ErrNotConfigured
	}

	opts := []cru.Option{
		cru.WithConcurrency(stage.cfg.Concurrency),
		cru.WithLogger(stage.msg),
	}
	if stage.mapper != nil {
		opts = append(opts, cru.WithMapper(stage.mapper))
	}

	stage.dec = cru.NewDecoder(stage.mode, cru.ClusterFunc(stage.collect), opts...)
	stage.buf = stage.buf[:0]
	stage.running = false
	stage.stats = Stats{}
	stage.out = make(chan []byte, stage.cfg.Queue)
	return nil
}

// Start starts accepting input buffers.
func (stage *Stage) Start() error {
	stage.mu.Lock()
	defer stage.mu.Unlock()

	if stage.dec == nil {
		return ErrNotInitialized
	}
	stage.running = true
	return nil
}

// Stop stops accepting input buffers.
func (stage *Stage) Stop() error {
	stage.mu.Lock()
	defer stage.mu.Unlock()

	if stage.dec == nil {
		return ErrNotInitialized
	}
	stage.running = false

	st := stage.stats
	stage.msg.Printf(
		"stopped: buffers=%d batches=%d clusters=%d foreign=%d overflow=%d errors=%d",
		st.Buffers, st.Batches, st.Clusters, st.Foreign, st.Overflow, st.Errors,
	)
	return nil
}

// Stats returns the counters of the stage.
func (stage *Stage) Stats() Stats {
	stage.mu.Lock()
	defer stage.mu.Unlock()
	return stage.stats
}

// Decoder returns the counters of the underlying frame unit decoder.
func (stage *Stage) Decoder() cru.Stats {
	stage.mu.Lock()
	defer stage.mu.Unlock()
	if stage.dec == nil {
		return cru.Stats{}
	}
	return stage.dec.Stats()
}

func (stage *Stage) collect(c cru.Cluster) {
	if fu := stage.cfg.FrameUnit; fu >= 0 && c.FrameUnit != uint16(fu) {
		stage.stats.Foreign++
		return
	}
	stage.buf = append(stage.buf, c)
}

// Process decodes a frame unit buffer and queues the resulting batches.
// Buffers received while the stage is not running are dropped.
func (stage *Stage) Process(raw []byte) error {
	stage.mu.Lock()
	defer stage.mu.Unlock()

	if stage.dec == nil {
		return ErrNotInitialized
	}
	if !stage.running {
		stage.stats.Idle++
		return nil
	}

	stage.stats.Buffers++
	stage.buf = stage.buf[:0]
	err := stage.dec.Decode(raw)
	if err != nil {
		stage.stats.Errors++
	}

	for _, frame := range xcnv.Frames(stage.buf) {
		p, err := Marshal(batchFrom(frame))
		if err != nil {
			return fmt.Errorf("daq: could not encode batch (orbit=%d, bc=%d): %w",
				frame.Orbit, frame.BunchCrossing, err,
			)
		}
		select {
		case stage.out <- p:
			stage.stats.Batches++
			stage.stats.Clusters += len(frame.Clusters)
		default:
			stage.stats.Overflow++
		}
	}

	if err != nil {
		return fmt.Errorf("daq: could not decode buffer: %w", err)
	}
	return nil
}

// Next returns the next queued batch.
// Next returns nil when ctx is done before a batch is available.
func (stage *Stage) Next(ctx context.Context) ([]byte, error) {
	stage.mu.Lock()
	out := stage.out
	stage.mu.Unlock()

	if out == nil {
		return nil, ErrNotInitialized
	}

	select {
	case <-ctx.Done():
		return nil, nil
	case p := <-out:
		return p, nil
	}
}
