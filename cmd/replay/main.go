package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"sc2tap.ai/internal/entities"
	"sc2tap.ai/internal/persistence/record"
	"sc2tap.ai/internal/protocol"
	"sc2tap.ai/internal/terrain"
	"sc2tap.ai/internal/tracker"
)

func main() {
	var (
		path     = flag.String("recording", "", "path to <session>.jsonl.zst")
		tileSize = flag.Float64("tile", 16, "tile size in world units")
		verbose  = flag.Bool("v", false, "log tracker output")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -recording")
		os.Exit(2)
	}

	var logOut io.Writer = io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	logger := log.New(logOut, "[replay] ", log.LstdFlags|log.Lmicroseconds)

	style := terrain.DefaultStyle()
	style.TileSize = float32(*tileSize)
	reg := entities.NewRegistry(style.TileSize, 0, 0)
	sum := &summary{kinds: map[protocol.Kind]int{}}
	tr := tracker.New("replay", reg, style, logger, sum)

	err := record.ReadFrames(*path, func(f record.Frame) error {
		switch f.Dir {
		case "up":
			sum.framesUp++
			req, err := protocol.DecodeRequest(f.B)
			if err != nil {
				sum.decodeFailures++
				return nil
			}
			sum.kinds[req.Kind]++
		case "down":
			sum.framesDown++
			resp, err := protocol.DecodeResponse(f.B)
			if err != nil {
				sum.decodeFailures++
				return nil
			}
			tr.Handle(resp)
		}
		if sum.first == 0 {
			sum.first = f.T
		}
		sum.last = f.T
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read recording:", err)
		os.Exit(1)
	}
	live := reg.Len()
	tr.Close()

	st := tr.Stats()
	fmt.Printf("frames up=%d down=%d decode_failures=%d duration_ms=%d\n",
		sum.framesUp, sum.framesDown, sum.decodeFailures, sum.last-sum.first)
	if info, ok := tr.Info(); ok {
		fmt.Printf("map %q %dx%d\n", info.MapName, info.Width, info.Height)
	}
	fmt.Printf("observations=%d last_game_loop=%d terrain_frames=%d layer_errors=%d\n",
		st.Observations, st.LastGameLoop, st.TerrainSent, st.LayerErrors)
	fmt.Printf("entities live_at_end=%d created=%d completed=%d removed=%d skipped=%d\n",
		live, sum.created, sum.completed, sum.removed, reg.Skipped())
	for _, r := range sum.results {
		fmt.Printf("player %d: %s\n", r.PlayerID, r.Result)
	}

	kinds := make([]protocol.Kind, 0, len(sum.kinds))
	for k := range sum.kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Printf("request %s: %d\n", k, sum.kinds[k])
	}
}

// summary is a tracker.Sink that only counts.
type summary struct {
	framesUp, framesDown int
	decodeFailures       int
	first, last          int64
	kinds                map[protocol.Kind]int

	created, completed, removed int
	results                     []protocol.PlayerResult
}

func (s *summary) OnGameInfo(tracker.GameInfo) {}

func (s *summary) OnTerrain(tracker.TerrainFrame) {}

func (s *summary) OnGameEnd(_ uint32, r []protocol.PlayerResult) {
	s.results = append(s.results[:0], r...)
}

func (s *summary) OnEntities(_ uint32, effects []entities.Effect) {
	for _, e := range effects {
		switch {
		case e.Kind == entities.EffectRemove:
			s.removed++
		case e.Created:
			s.created++
		}
		if e.Completed {
			s.completed++
		}
	}
}
