// Package tracker is the single consumer of a relay session's decoded
// responses. It rebuilds terrain and entity state and hands the results to
// sinks.
package tracker

import (
	"io"
	"log"
	"sync/atomic"

	"sc2tap.ai/internal/entities"
	"sc2tap.ai/internal/protocol"
	"sc2tap.ai/internal/terrain"
)

// GameInfo describes the map of the running game.
type GameInfo struct {
	SessionID      string
	MapName        string
	Width, Height  int
	TileSize       float32
	PlayableArea   protocol.RectangleI
	StartLocations []protocol.Point2D
}

// TerrainFrame is the blended terrain after a layer change.
type TerrainFrame struct {
	GameLoop uint32
	Colors   terrain.ColorGrid
}

// Sink receives tracker output. Calls come from one goroutine and must not
// block for long.
type Sink interface {
	OnGameInfo(info GameInfo)
	OnTerrain(frame TerrainFrame)
	OnEntities(gameLoop uint32, effects []entities.Effect)
	OnGameEnd(gameLoop uint32, results []protocol.PlayerResult)
}

type Stats struct {
	GameInfos    uint64
	Observations uint64
	LayerErrors  uint64
	TerrainSent  uint64
	LastGameLoop uint32
}

// Tracker is not safe for concurrent Handle calls; wire it to exactly one
// relay callback.
type Tracker struct {
	sessionID string
	log       *log.Logger
	style     terrain.Style
	reg       *entities.Registry
	sinks     []Sink

	layers   *terrain.LayerSet
	info     *GameInfo
	lastLoop uint32
	ended    bool

	gameInfos    atomic.Uint64
	observations atomic.Uint64
	layerErrors  atomic.Uint64
	terrainSent  atomic.Uint64
	lastLoopSeen atomic.Uint32
}

func New(sessionID string, reg *entities.Registry, style terrain.Style, logger *log.Logger, sinks ...Sink) *Tracker {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Tracker{
		sessionID: sessionID,
		log:       logger,
		style:     style,
		reg:       reg,
		sinks:     sinks,
		layers:    terrain.NewLayerSet(),
	}
}

func (t *Tracker) Stats() Stats {
	return Stats{
		GameInfos:    t.gameInfos.Load(),
		Observations: t.observations.Load(),
		LayerErrors:  t.layerErrors.Load(),
		TerrainSent:  t.terrainSent.Load(),
		LastGameLoop: t.lastLoopSeen.Load(),
	}
}

// Info returns the current game info, if one has arrived.
func (t *Tracker) Info() (GameInfo, bool) {
	if t.info == nil {
		return GameInfo{}, false
	}
	return *t.info, true
}

// Terrain blends the current layers.
func (t *Tracker) Terrain() terrain.ColorGrid {
	return terrain.Colorize(t.layers, t.style)
}

// Handle consumes one decoded response. It has the relay callback
// signature.
func (t *Tracker) Handle(resp protocol.Response) {
	switch {
	case resp.GameInfo != nil:
		t.handleGameInfo(resp.GameInfo)
	case resp.Observation != nil:
		t.handleObservation(resp.Observation)
	}
}

func (t *Tracker) handleGameInfo(gi *protocol.ResponseGameInfo) {
	t.gameInfos.Add(1)
	sr := gi.StartRaw
	if sr == nil {
		t.log.Printf("game info for %q carries no start_raw", gi.MapName)
		return
	}

	w, h := int(sr.MapSize.X), int(sr.MapSize.Y)
	if t.info != nil && (t.info.Width != w || t.info.Height != h || t.info.MapName != gi.MapName) {
		t.log.Printf("map changed to %q (%dx%d); resetting state", gi.MapName, w, h)
		t.layers = terrain.NewLayerSet()
		t.emitEntities(t.lastLoop, t.reg.Sync(t.lastLoop, nil))
	}

	static := terrain.NewLayerSet()
	for _, l := range []struct {
		kind terrain.LayerKind
		img  *protocol.ImageData
	}{
		{terrain.Pathing, sr.PathingGrid},
		{terrain.Placement, sr.PlacementGrid},
		{terrain.Height, sr.TerrainHeight},
	} {
		if l.img == nil {
			continue
		}
		g, err := terrain.DecodeImage(l.kind, l.img)
		if err != nil {
			t.layerErrors.Add(1)
			t.log.Printf("terrain: dropping %s layer: %v", l.kind, err)
			continue
		}
		if err := static.Add(g); err != nil {
			t.layerErrors.Add(1)
			t.log.Printf("terrain: dropping %s layer: %v", l.kind, err)
		}
	}
	if w == 0 || h == 0 {
		w, h = static.Dimensions()
	}
	// Dynamic layers from a previous info of the same game survive if they
	// still fit.
	for _, k := range []terrain.LayerKind{terrain.Creep, terrain.Energy} {
		if g := t.layers.Layer(k); g != nil {
			_ = static.Add(g)
		}
	}
	t.layers = static
	t.reg.SetMapSize(w, h)

	info := GameInfo{
		SessionID:      t.sessionID,
		MapName:        gi.MapName,
		Width:          w,
		Height:         h,
		TileSize:       t.style.TileSize,
		PlayableArea:   sr.PlayableArea,
		StartLocations: sr.StartLocations,
	}
	t.info = &info
	t.log.Printf("game info: map=%q size=%dx%d", info.MapName, w, h)
	for _, s := range t.sinks {
		s.OnGameInfo(info)
	}
	t.emitTerrain()
}

func (t *Tracker) handleObservation(ro *protocol.ResponseObservation) {
	obs := ro.Observation
	if obs != nil {
		t.observations.Add(1)
		t.lastLoop = obs.GameLoop
		t.lastLoopSeen.Store(obs.GameLoop)

		if raw := obs.Raw; raw != nil {
			dirty := false
			if raw.MapState != nil && raw.MapState.Creep != nil {
				dirty = t.replaceDynamic(terrain.DecodeImage(terrain.Creep, raw.MapState.Creep)) || dirty
			}
			if w, h := t.layers.Dimensions(); w > 0 && h > 0 {
				dirty = t.replaceDynamic(terrain.RasterizePower(w, h, raw.PowerSources), nil) || dirty
			}
			if dirty && t.info != nil {
				t.emitTerrain()
			}
			t.emitEntities(obs.GameLoop, t.reg.Sync(obs.GameLoop, raw.Units))
		}
	}

	if len(ro.PlayerResults) > 0 && !t.ended {
		t.ended = true
		t.log.Printf("game ended at loop %d: %d results", t.lastLoop, len(ro.PlayerResults))
		for _, s := range t.sinks {
			s.OnGameEnd(t.lastLoop, ro.PlayerResults)
		}
	}
}

// replaceDynamic stores g when it differs from the current layer of its kind.
func (t *Tracker) replaceDynamic(g *terrain.Grid, err error) bool {
	if err != nil {
		t.layerErrors.Add(1)
		t.log.Printf("terrain: dropping dynamic layer: %v", err)
		return false
	}
	if g.Equal(t.layers.Layer(g.Kind())) {
		return false
	}
	if err := t.layers.Add(g); err != nil {
		t.layerErrors.Add(1)
		t.log.Printf("terrain: %v", err)
		return false
	}
	return true
}

func (t *Tracker) emitTerrain() {
	if t.layers.Empty() {
		return
	}
	frame := TerrainFrame{GameLoop: t.lastLoop, Colors: terrain.Colorize(t.layers, t.style)}
	t.terrainSent.Add(1)
	for _, s := range t.sinks {
		s.OnTerrain(frame)
	}
}

func (t *Tracker) emitEntities(gameLoop uint32, effects []entities.Effect) {
	if len(effects) == 0 {
		return
	}
	for _, s := range t.sinks {
		s.OnEntities(gameLoop, effects)
	}
}

// Close ends the session: every remaining entity is removed and sinks see
// the removals.
func (t *Tracker) Close() {
	t.emitEntities(t.lastLoop, t.reg.Sync(t.lastLoop, nil))
}
