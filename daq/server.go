// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"log"

	"github.com/go-daq/tdaq"
	"golang.org/x/xerrors"
)

// Server exposes a Stage as a set of tdaq handlers.
type Server struct {
	name  string
	stage *Stage
}

// NewServer creates a tdaq server for a readout stage.
func NewServer(name string, cfg Config, msg *log.Logger) *Server {
	return &Server{
		name:  name,
		stage: NewStage(cfg, msg),
	}
}

// Register installs the command, port and run handlers on srv.
func (srv *Server) Register(s *tdaq.Server) {
	s.CmdHandle("/config", srv.OnConfig)
	s.CmdHandle("/init", srv.OnInit)
	s.CmdHandle("/reset", srv.OnReset)
	s.CmdHandle("/start", srv.OnStart)
	s.CmdHandle("/stop", srv.OnStop)
	s.CmdHandle("/quit", srv.OnQuit)

	s.InputHandle("/raw", srv.raw)
	s.OutputHandle("/clusters", srv.clusters)

	s.RunHandle(srv.run)
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	err := srv.stage.Configure(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not configure stage %q: %+v", srv.name, err)
		return xerrors.Errorf("could not configure stage %q: %w", srv.name, err)
	}
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := srv.stage.Init()
	if err != nil {
		ctx.Msg.Errorf("could not initialize stage %q: %+v", srv.name, err)
		return xerrors.Errorf("could not initialize stage %q: %w", srv.name, err)
	}
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := srv.stage.Reset()
	if err != nil {
		ctx.Msg.Errorf("could not reset stage %q: %+v", srv.name, err)
		return xerrors.Errorf("could not reset stage %q: %w", srv.name, err)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	err := srv.stage.Start()
	if err != nil {
		ctx.Msg.Errorf("could not start stage %q: %+v", srv.name, err)
		return xerrors.Errorf("could not start stage %q: %w", srv.name, err)
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	err := srv.stage.Stop()
	if err != nil {
		ctx.Msg.Errorf("could not stop stage %q: %+v", srv.name, err)
		return xerrors.Errorf("could not stop stage %q: %w", srv.name, err)
	}
	st := srv.stage.Stats()
	ctx.Msg.Infof("batches=%d clusters=%d overflow=%d", st.Batches, st.Clusters, st.Overflow)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

func (srv *Server) raw(ctx tdaq.Context, src tdaq.Frame) error {
	err := srv.stage.Process(src.Body)
	if err != nil {
		// a corrupted buffer must not stop the data taking.
		ctx.Msg.Errorf("could not process buffer: %+v", err)
	}
	return nil
}

func (srv *Server) clusters(ctx tdaq.Context, dst *tdaq.Frame) error {
	p, err := srv.stage.Next(ctx.Ctx)
	if err != nil {
		return xerrors.Errorf("could not retrieve next batch: %w", err)
	}
	dst.Body = p
	return nil
}

func (srv *Server) run(ctx tdaq.Context) error {
	<-ctx.Ctx.Done()
	return nil
}
