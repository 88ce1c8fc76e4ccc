package engineclient

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sc2tap.ai/internal/enginetest"
	"sc2tap.ai/internal/protocol"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestCall_RoundTrip(t *testing.T) {
	eng := enginetest.New(func(frame []byte) [][]byte {
		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			return nil
		}
		return [][]byte{protocol.EncodeResponse(protocol.Response{
			ID:     req.ID,
			Kind:   req.Kind,
			Status: protocol.StatusLaunched,
		})}
	})
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, eng.URL(), 1, 0, quiet())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		resp, err := c.Call(ctx, protocol.Request{Kind: protocol.KindPing})
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if resp.Kind != protocol.KindPing || resp.Status != protocol.StatusLaunched {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if resp.ID != uint32(i+1) {
			t.Fatalf("id: got %d want %d", resp.ID, i+1)
		}
	}
}

func TestDialConn_RetryExhaustion(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sc2api"
	srv.Close()

	start := time.Now()
	_, err := DialConn(context.Background(), url, 3, 20*time.Millisecond, quiet())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatalf("expected two delays between three attempts")
	}
}

func TestDialConn_ContextCancelStopsRetry(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sc2api"
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := DialConn(ctx, url, 100, time.Second, quiet())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSendCreateGame(t *testing.T) {
	seen := make(chan protocol.Request, 1)
	eng := enginetest.New(func(frame []byte) [][]byte {
		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			return nil
		}
		seen <- req
		return [][]byte{protocol.EncodeResponse(protocol.Response{
			ID:         req.ID,
			Kind:       protocol.KindCreateGame,
			Status:     protocol.StatusInitGame,
			CreateGame: &protocol.ResponseCreateGame{},
		})}
	})
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := SendCreateGame(ctx, eng.URL(), protocol.GameSetup{
		MapPath:      "Ladder/Test.SC2Map",
		PlayerName:   "bot",
		AIRace:       protocol.RaceZerg,
		AIDifficulty: "hard",
	}, 2, 10*time.Millisecond, quiet())
	if err != nil {
		t.Fatalf("SendCreateGame: %v", err)
	}
	if resp.Status != protocol.StatusInitGame {
		t.Fatalf("status: %v", resp.Status)
	}
	got := <-seen
	if got.CreateGame == nil || got.CreateGame.LocalMap == nil || got.CreateGame.LocalMap.MapPath != "Ladder/Test.SC2Map" {
		t.Fatalf("engine saw %+v", got)
	}
	if len(got.CreateGame.PlayerSetup) != 2 || got.CreateGame.PlayerSetup[1].Difficulty != protocol.DifficultyHard {
		t.Fatalf("player setup: %+v", got.CreateGame.PlayerSetup)
	}
}

func TestSendCreateGame_EngineError(t *testing.T) {
	eng := enginetest.New(func(frame []byte) [][]byte {
		req, _ := protocol.DecodeRequest(frame)
		return [][]byte{protocol.EncodeResponse(protocol.Response{
			ID:   req.ID,
			Kind: protocol.KindCreateGame,
			CreateGame: &protocol.ResponseCreateGame{
				Error:        2,
				ErrorDetails: "map not found",
			},
		})}
	})
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := SendCreateGame(ctx, eng.URL(), protocol.GameSetup{MapPath: "missing.SC2Map"}, 1, 0, quiet())
	if err == nil || !strings.Contains(err.Error(), "map not found") {
		t.Fatalf("expected engine error, got %v", err)
	}
}
