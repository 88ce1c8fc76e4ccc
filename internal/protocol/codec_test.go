package protocol

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestGameInfo_RoundTrip(t *testing.T) {
	in := Response{
		ID:     3,
		Status: StatusInGame,
		Kind:   KindGameInfo,
		GameInfo: &ResponseGameInfo{
			MapName:      "Abyssal Reef LE",
			LocalMapPath: "AbyssalReefAIE.SC2Map",
			StartRaw: &StartRaw{
				MapSize: Size2DI{X: 4, Y: 1},
				PathingGrid: &ImageData{
					BitsPerPixel: 1,
					Size:         Size2DI{X: 4, Y: 1},
					Data:         []byte{0b10100000},
				},
				TerrainHeight: &ImageData{
					BitsPerPixel: 8,
					Size:         Size2DI{X: 4, Y: 1},
					Data:         []byte{10, 20, 30, 40},
				},
				PlayableArea:   RectangleI{P0: PointI{X: 0, Y: 0}, P1: PointI{X: 4, Y: 1}},
				StartLocations: []Point2D{{X: 1.5, Y: 0.5}},
			},
		},
	}

	out, err := DecodeResponse(EncodeResponse(in))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if out.ID != 3 || out.Status != StatusInGame || out.Kind != KindGameInfo {
		t.Fatalf("envelope mismatch: %+v", out)
	}
	gi := out.GameInfo
	if gi == nil || gi.StartRaw == nil {
		t.Fatalf("missing game info: %+v", out)
	}
	if gi.MapName != "Abyssal Reef LE" || gi.LocalMapPath != "AbyssalReefAIE.SC2Map" {
		t.Fatalf("names: %+v", gi)
	}
	sr := gi.StartRaw
	if sr.MapSize != (Size2DI{X: 4, Y: 1}) {
		t.Fatalf("map size: %+v", sr.MapSize)
	}
	if sr.PathingGrid == nil || sr.PathingGrid.BitsPerPixel != 1 || !bytes.Equal(sr.PathingGrid.Data, []byte{0b10100000}) {
		t.Fatalf("pathing: %+v", sr.PathingGrid)
	}
	if sr.TerrainHeight == nil || !bytes.Equal(sr.TerrainHeight.Data, []byte{10, 20, 30, 40}) {
		t.Fatalf("height: %+v", sr.TerrainHeight)
	}
	if sr.PlacementGrid != nil {
		t.Fatalf("placement should be absent")
	}
	if sr.PlayableArea.P1 != (PointI{X: 4, Y: 1}) {
		t.Fatalf("playable: %+v", sr.PlayableArea)
	}
	if len(sr.StartLocations) != 1 || sr.StartLocations[0] != (Point2D{X: 1.5, Y: 0.5}) {
		t.Fatalf("start locations: %+v", sr.StartLocations)
	}
}

func TestObservation_RoundTrip(t *testing.T) {
	in := Response{
		Kind:   KindObservation,
		Status: StatusInGame,
		Observation: &ResponseObservation{
			Observation: &Observation{
				GameLoop: 224,
				Raw: &ObservationRaw{
					PowerSources: []PowerSource{{Pos: Point{X: 10, Y: 12}, Radius: 6.5, Tag: 99}},
					Units: []Unit{
						{
							Tag: 7, HasTag: true, UnitType: 41, Alliance: AllianceSelf, Owner: 1,
							Pos:           &Point{X: 30.5, Y: 40.25, Z: 11},
							BuildProgress: 0.5, HasBuildProgress: true,
							Health: 50, HealthMax: 100, Shield: 20, ShieldMax: 40,
							Orders: []UnitOrder{{AbilityID: 880, Progress: 0.25}},
						},
						{UnitType: 341, Alliance: AllianceNeutral},
					},
					MapState: &MapState{
						Creep: &ImageData{BitsPerPixel: 1, Size: Size2DI{X: 8, Y: 1}, Data: []byte{0xf0}},
					},
				},
			},
			PlayerResults: []PlayerResult{{PlayerID: 1, Result: ResultVictory}},
		},
	}

	out, err := DecodeResponse(EncodeResponse(in))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if out.Observation == nil || out.Observation.Observation == nil {
		t.Fatalf("missing observation")
	}
	obs := out.Observation.Observation
	if obs.GameLoop != 224 || obs.Raw == nil {
		t.Fatalf("observation: %+v", obs)
	}
	if len(obs.Raw.PowerSources) != 1 || obs.Raw.PowerSources[0].Radius != 6.5 || obs.Raw.PowerSources[0].Tag != 99 {
		t.Fatalf("power: %+v", obs.Raw.PowerSources)
	}
	if len(obs.Raw.Units) != 2 {
		t.Fatalf("units: got %d", len(obs.Raw.Units))
	}
	u := obs.Raw.Units[0]
	if !u.HasTag || u.Tag != 7 || u.UnitType != 41 || u.Alliance != AllianceSelf || u.Owner != 1 {
		t.Fatalf("unit ids: %+v", u)
	}
	if u.Pos == nil || *u.Pos != (Point{X: 30.5, Y: 40.25, Z: 11}) {
		t.Fatalf("unit pos: %+v", u.Pos)
	}
	if !u.HasBuildProgress || u.BuildProgress != 0.5 || u.Health != 50 || u.HealthMax != 100 || u.Shield != 20 || u.ShieldMax != 40 {
		t.Fatalf("unit vitals: %+v", u)
	}
	if len(u.Orders) != 1 || u.Orders[0].AbilityID != 880 {
		t.Fatalf("orders: %+v", u.Orders)
	}
	tagless := obs.Raw.Units[1]
	if tagless.HasTag || tagless.Pos != nil {
		t.Fatalf("second unit should have no tag/pos: %+v", tagless)
	}
	if obs.Raw.MapState == nil || obs.Raw.MapState.Creep == nil || obs.Raw.MapState.Creep.Data[0] != 0xf0 {
		t.Fatalf("creep: %+v", obs.Raw.MapState)
	}
	if len(out.Observation.PlayerResults) != 1 || out.Observation.PlayerResults[0].Result != ResultVictory {
		t.Fatalf("results: %+v", out.Observation.PlayerResults)
	}
}

func TestDecodeResponse_SkipsUnknownFields(t *testing.T) {
	b := EncodeResponse(Response{Kind: KindPing, Status: StatusLaunched})
	// Unknown varint, fixed64 and bytes fields appended after the known ones.
	b = protowire.AppendTag(b, 500, protowire.VarintType)
	b = protowire.AppendVarint(b, 12345)
	b = protowire.AppendTag(b, 501, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = protowire.AppendTag(b, 502, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	out, err := DecodeResponse(b)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if out.Kind != KindPing || out.Status != StatusLaunched {
		t.Fatalf("got %+v", out)
	}
}

func TestResponse_ErrorsAndCreateGame(t *testing.T) {
	in := Response{
		Kind:       KindCreateGame,
		Errors:     []string{"first", "second"},
		CreateGame: &ResponseCreateGame{Error: 2, ErrorDetails: "map not found"},
	}
	out, err := DecodeResponse(EncodeResponse(in))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if len(out.Errors) != 2 || out.Errors[1] != "second" {
		t.Fatalf("errors: %+v", out.Errors)
	}
	if out.CreateGame == nil || out.CreateGame.Error != 2 || out.CreateGame.ErrorDetails != "map not found" {
		t.Fatalf("create game: %+v", out.CreateGame)
	}
}

func TestRequest_RoundTrip(t *testing.T) {
	seed := uint32(42)
	req, err := NewCreateGameRequest(GameSetup{
		MapPath:      "AbyssalReefAIE.SC2Map",
		PlayerName:   "tap",
		AIRace:       RaceProtoss,
		AIDifficulty: "Hard",
		Realtime:     true,
		RandomSeed:   &seed,
	})
	if err != nil {
		t.Fatalf("NewCreateGameRequest: %v", err)
	}
	req.ID = 1

	out, err := DecodeRequest(EncodeRequest(req))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if out.ID != 1 || out.Kind != KindCreateGame || out.CreateGame == nil {
		t.Fatalf("got %+v", out)
	}
	cg := out.CreateGame
	if cg.LocalMap == nil || cg.LocalMap.MapPath != "AbyssalReefAIE.SC2Map" {
		t.Fatalf("map: %+v", cg.LocalMap)
	}
	if len(cg.PlayerSetup) != 2 {
		t.Fatalf("setups: %+v", cg.PlayerSetup)
	}
	if cg.PlayerSetup[0].Type != PlayerParticipant || cg.PlayerSetup[0].PlayerName != "tap" {
		t.Fatalf("player: %+v", cg.PlayerSetup[0])
	}
	ai := cg.PlayerSetup[1]
	if ai.Type != PlayerComputer || ai.Race != RaceProtoss || ai.Difficulty != DifficultyHard {
		t.Fatalf("ai: %+v", ai)
	}
	if !cg.Realtime || cg.DisableFog || !cg.HasRandomSeed || cg.RandomSeed != 42 {
		t.Fatalf("options: %+v", cg)
	}

	step, err := DecodeRequest(EncodeRequest(Request{Kind: KindStep, Step: &RequestStep{Count: 2}}))
	if err != nil || step.Step == nil || step.Step.Count != 2 {
		t.Fatalf("step: %+v err=%v", step, err)
	}
	ping, err := DecodeRequest(EncodeRequest(Request{Kind: KindPing}))
	if err != nil || ping.Kind != KindPing {
		t.Fatalf("ping: %+v err=%v", ping, err)
	}
}

func TestNewCreateGameRequest(t *testing.T) {
	if _, err := NewCreateGameRequest(GameSetup{}); err == nil {
		t.Fatalf("expected error without map")
	}
	req, err := NewCreateGameRequest(GameSetup{MapPath: "m.SC2Map", VsBot: true, OpponentName: "other"})
	if err != nil {
		t.Fatalf("NewCreateGameRequest: %v", err)
	}
	opp := req.CreateGame.PlayerSetup[1]
	if opp.Type != PlayerParticipant || opp.PlayerName != "other" {
		t.Fatalf("opponent: %+v", opp)
	}
	if ParseDifficulty("nonsense") != DifficultyMedium || ParseDifficulty("Cheat") != DifficultyCheatInsane {
		t.Fatalf("ParseDifficulty mapping")
	}
	if ParseRace("Zerg") != RaceZerg || ParseRace("") != RaceRandom {
		t.Fatalf("ParseRace mapping")
	}
}
