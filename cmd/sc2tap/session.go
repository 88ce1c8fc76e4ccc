package main

import (
	"context"

	"sc2tap.ai/internal/persistence/indexdb"
	"sc2tap.ai/internal/persistence/record"
	"sc2tap.ai/internal/relay"
	"sc2tap.ai/internal/tracker"
)

// session is the per-connection wiring: a fresh relay and tracker plus the
// optional recorder and index sink.
type session struct {
	relay    *relay.Relay
	tracker  *tracker.Tracker
	recorder *record.Recorder
	index    *indexdb.Session
}

func (a *app) runSession(ctx context.Context) error {
	rel := relay.New(relay.Config{
		ListenAddr:      a.cfg.ListenAddr,
		UpstreamURL:     a.cfg.UpstreamURL,
		ConnectAttempts: a.cfg.ConnectAttempts,
		ConnectDelay:    a.cfg.ConnectDelay(),
	}, a.log)
	s := &session{relay: rel}

	sinks := []tracker.Sink{a.viewer}
	if a.index != nil {
		s.index = a.index.BeginSession(rel.ID(), a.cfg.UpstreamURL)
		sinks = append(sinks, s.index)
	}
	s.tracker = tracker.New(rel.ID(), a.reg, a.cfg.StyleConfig(), a.log, sinks...)
	rel.OnResponse(a.cfg.SubscriberBuffer, s.tracker.Handle)

	if a.cfg.Record {
		rec, err := record.Open(a.cfg.DataDir, rel.ID(), a.log)
		if err != nil {
			a.log.Printf("session %s: recording disabled: %v", rel.ID(), err)
		} else {
			s.recorder = rec
			rel.SetFrameSink(rec)
		}
	}

	a.sessions.Add(1)
	a.current.Store(s)
	err := rel.Run(ctx)

	// Run has drained the callback, so the tracker is idle from here on.
	s.tracker.Close()
	if s.index != nil {
		s.index.End()
	}
	if s.recorder != nil {
		if cerr := s.recorder.Close(); cerr != nil {
			a.log.Printf("session %s: close recording: %v", rel.ID(), cerr)
		}
		st := s.recorder.Stats()
		a.log.Printf("session %s: recorded %d frames to %s (%d dropped)", rel.ID(), st.Written, s.recorder.Path(), st.Dropped)
		if st.Written > 0 {
			a.upload.Enqueue(s.recorder.Path())
		}
	}
	ts := s.tracker.Stats()
	a.log.Printf("session %s: %d game infos, %d observations, last game loop %d", rel.ID(), ts.GameInfos, ts.Observations, ts.LastGameLoop)
	return err
}
