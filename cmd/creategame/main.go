package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sc2tap.ai/internal/engineclient"
	"sc2tap.ai/internal/protocol"
)

func main() {
	_ = godotenv.Load(".env")

	defUpstream := strings.TrimSpace(os.Getenv("SC2TAP_UPSTREAM"))
	if defUpstream == "" {
		defUpstream = "ws://127.0.0.1:5555/sc2api"
	}

	var (
		upstream   = flag.String("upstream", defUpstream, "engine websocket url")
		mapPath    = flag.String("map", "", "map path as the engine sees it")
		player     = flag.String("name", "bot", "player name")
		vsBot      = flag.Bool("vs_bot", false, "second slot is another bot instead of the built-in AI")
		opponent   = flag.String("opponent", "", "second bot's name (with -vs_bot)")
		aiRace     = flag.String("ai_race", "random", "built-in AI race: terran, zerg, protoss, random")
		difficulty = flag.String("difficulty", "medium", "built-in AI difficulty")
		noFog      = flag.Bool("disable_fog", false, "disable fog of war")
		realtime   = flag.Bool("realtime", false, "run the game in real time")
		seed       = flag.Int64("seed", -1, "random seed (negative: engine picks)")
		attempts   = flag.Int("attempts", engineclient.DefaultAttempts, "connection attempts")
		delay      = flag.Duration("delay", engineclient.DefaultDelay, "delay between connection attempts")
		timeout    = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	)
	flag.Parse()

	if *mapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -map")
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "[creategame] ", log.LstdFlags|log.Lmicroseconds)

	setup := protocol.GameSetup{
		MapPath:      *mapPath,
		PlayerName:   *player,
		VsBot:        *vsBot,
		OpponentName: *opponent,
		AIRace:       protocol.ParseRace(*aiRace),
		AIDifficulty: *difficulty,
		DisableFog:   *noFog,
		Realtime:     *realtime,
	}
	if *seed >= 0 {
		s := uint32(*seed)
		setup.RandomSeed = &s
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := engineclient.SendCreateGame(ctx, *upstream, setup, *attempts, *delay, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Printf("game created on %s (status %s)", *upstream, resp.Status)
}
