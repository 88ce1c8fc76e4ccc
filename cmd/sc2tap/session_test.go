package main

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sc2tap.ai/internal/catalog"
	"sc2tap.ai/internal/config"
	"sc2tap.ai/internal/enginetest"
	"sc2tap.ai/internal/entities"
	"sc2tap.ai/internal/persistence/indexdb"
	"sc2tap.ai/internal/persistence/objstore"
	"sc2tap.ai/internal/persistence/record"
	"sc2tap.ai/internal/protocol"
	"sc2tap.ai/internal/transport/viewer"
)

func engineFrames() [][]byte {
	img := func(bpp int32, data []byte) *protocol.ImageData {
		return &protocol.ImageData{BitsPerPixel: bpp, Size: protocol.Size2DI{X: 8, Y: 8}, Data: data}
	}
	info := protocol.EncodeResponse(protocol.Response{
		Kind:   protocol.KindGameInfo,
		Status: protocol.StatusInGame,
		GameInfo: &protocol.ResponseGameInfo{
			MapName: "Tiny",
			StartRaw: &protocol.StartRaw{
				MapSize:       protocol.Size2DI{X: 8, Y: 8},
				PathingGrid:   img(1, make([]byte, 8)),
				PlacementGrid: img(1, make([]byte, 8)),
				TerrainHeight: img(8, make([]byte, 64)),
			},
		},
	})
	obs := protocol.EncodeResponse(protocol.Response{
		Kind:   protocol.KindObservation,
		Status: protocol.StatusInGame,
		Observation: &protocol.ResponseObservation{
			Observation: &protocol.Observation{
				GameLoop: 22,
				Raw: &protocol.ObservationRaw{Units: []protocol.Unit{{
					Tag: 7, HasTag: true, UnitType: 45,
					Pos:    &protocol.Point{X: 2, Y: 3},
					Health: 40, HealthMax: 45,
				}}},
			},
		},
	})
	return [][]byte{info, obs}
}

type keyPutter struct {
	mu   sync.Mutex
	keys []string
}

func (p *keyPutter) PutFile(_ context.Context, key, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func TestRunSession_WiresTrackerRecorderAndIndex(t *testing.T) {
	eng := enginetest.New(func([]byte) [][]byte { return engineFrames() })
	defer eng.Close()

	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.UpstreamURL = eng.URL()
	cfg.ConnectAttempts = 2
	cfg.ConnectDelayMS = 10
	cfg.DataDir = dir
	cfg.Record = true

	idxPath := filepath.Join(dir, "index.sqlite")
	idx, err := indexdb.OpenSQLite(idxPath)
	if err != nil {
		t.Fatal(err)
	}

	logger := log.New(io.Discard, "", 0)
	reg := entities.NewRegistry(cfg.TileSize, 0, 0)
	putter := &keyPutter{}
	a := &app{
		cfg:    cfg,
		log:    logger,
		cat:    catalog.Empty(),
		reg:    reg,
		viewer: viewer.NewServer(reg, nil, logger),
		index:  idx,
		upload: objstore.NewUploader(putter, objstore.UploaderConfig{}, logger),
	}

	done := make(chan error, 1)
	go func() { done <- a.runSession(context.Background()) }()

	var s *session
	deadline := time.Now().Add(5 * time.Second)
	for s = a.current.Load(); s == nil; s = a.current.Load() {
		if time.Now().After(deadline) {
			t.Fatalf("session never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-s.relay.Ready():
	case err := <-done:
		t.Fatalf("session exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("relay never became ready")
	}

	bot, _, err := websocket.DefaultDialer.Dial("ws://"+s.relay.Addr()+"/sc2api", nil)
	if err != nil {
		t.Fatalf("bot dial: %v", err)
	}
	req := protocol.EncodeRequest(protocol.Request{ID: 1, Kind: protocol.KindGameInfo})
	if err := bot.WriteMessage(websocket.BinaryMessage, req); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		_ = bot.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := bot.ReadMessage(); err != nil {
			t.Fatalf("bot read %d: %v", i, err)
		}
	}
	_ = bot.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = bot.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runSession: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not end")
	}

	ts := s.tracker.Stats()
	if ts.GameInfos != 1 || ts.Observations != 1 || ts.LastGameLoop != 22 {
		t.Fatalf("tracker stats: %+v", ts)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry should be empty after the session, has %d", reg.Len())
	}

	var frames int
	if err := record.ReadFrames(record.Path(dir, s.relay.ID()), func(record.Frame) error {
		frames++
		return nil
	}); err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if frames != 3 {
		t.Fatalf("recorded %d frames, want 3", frames)
	}
	a.upload.Close()
	if want := "sessions/" + s.relay.ID() + ".jsonl.zst"; len(putter.keys) != 1 || putter.keys[0] != want {
		t.Fatalf("uploaded %v, want %s", putter.keys, want)
	}

	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	idx, err = indexdb.OpenSQLite(idxPath)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	sessions, err := idx.Sessions(context.Background(), 10)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("sessions: %+v %v", sessions, err)
	}
	if got := sessions[0]; got.ID != s.relay.ID() || got.MapName != "Tiny" || got.EndedAt == "" {
		t.Fatalf("session row: %+v", got)
	}
	units, err := idx.Units(context.Background(), s.relay.ID())
	if err != nil || len(units) != 1 || units[0].Tag != 7 || units[0].LastLoop != 22 {
		t.Fatalf("units: %+v %v", units, err)
	}
}
