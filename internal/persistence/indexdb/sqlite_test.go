package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"sc2tap.ai/internal/catalog"
	"sc2tap.ai/internal/entities"
	"sc2tap.ai/internal/protocol"
	"sc2tap.ai/internal/tracker"
)

func TestSQLiteIndex_SessionLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertCatalog("data.json", catalog.Empty()); err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}

	sess := idx.BeginSession("s1", "ws://127.0.0.1:5555/sc2api")
	sess.OnGameInfo(tracker.GameInfo{MapName: "Tiny", Width: 64, Height: 48})

	reg := entities.NewRegistry(16, 64, 48)
	scv := protocol.Unit{Tag: 10, HasTag: true, UnitType: 45, Pos: &protocol.Point{X: 1, Y: 1}}
	depot := protocol.Unit{Tag: 20, HasTag: true, UnitType: 19, Pos: &protocol.Point{X: 5, Y: 5}, BuildProgress: 0.5, HasBuildProgress: true}
	sess.OnEntities(1, reg.Sync(1, []protocol.Unit{scv, depot}))
	depot.BuildProgress = 1
	sess.OnEntities(30, reg.Sync(30, []protocol.Unit{scv, depot}))
	sess.OnEntities(40, reg.Sync(40, []protocol.Unit{depot}))
	sess.OnGameEnd(41, []protocol.PlayerResult{{PlayerID: 1, Result: protocol.ResultVictory}})
	sess.End()

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	sessions, err := idx.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions: %+v", sessions)
	}
	s := sessions[0]
	if s.ID != "s1" || s.MapName != "Tiny" || s.MapW != 64 || s.MapH != 48 || s.EndedAt == "" || s.LastLoop != 41 {
		t.Fatalf("session row: %+v", s)
	}

	units, err := idx.Units(ctx, "s1")
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("units: %+v", units)
	}
	if u := units[0]; u.Tag != 10 || u.TypeID != 45 || u.FirstLoop != 1 || u.LastLoop != 30 || u.Completed {
		t.Fatalf("scv row: %+v", u)
	}
	if u := units[1]; u.Tag != 20 || !u.Completed || u.CompletedLoop != 30 || u.FirstLoop != 1 {
		t.Fatalf("depot row: %+v", u)
	}

	results, err := idx.Results(ctx, "s1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if results[1] != "victory" {
		t.Fatalf("results: %v", results)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	sess := s.BeginSession("s1", "ws://x")

	sess.OnGameInfo(tracker.GameInfo{MapName: "m"})
	sess.OnEntities(1, []entities.Effect{{Kind: entities.EffectUpsert, Tag: 1}, {Kind: entities.EffectRemove, Tag: 2}})
	sess.OnGameEnd(1, []protocol.PlayerResult{{PlayerID: 1}})

	st := s.Stats()
	if st.DropSessionTotal != 1 {
		t.Fatalf("DropSessionTotal=%d want=1", st.DropSessionTotal)
	}
	if st.DropUnitTotal != 2 {
		t.Fatalf("DropUnitTotal=%d want=2", st.DropUnitTotal)
	}
	if st.DropResultTotal != 1 {
		t.Fatalf("DropResultTotal=%d want=1", st.DropResultTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
}
