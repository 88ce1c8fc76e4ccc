// Package entities keeps the set of units the engine currently reports,
// keyed by tag, and turns each tick's snapshot into upsert and remove
// effects.
package entities

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"sc2tap.ai/internal/protocol"
)

// Vec2 is a position in world units.
type Vec2 struct {
	X, Y float32
}

// Entity is a plain copy of one tracked unit.
type Entity struct {
	Tag      uint64
	TypeID   uint32
	Alliance protocol.Alliance
	Owner    int32

	// MapPos is the engine's cell position; Pos is the world position.
	MapPos protocol.Point
	Pos    Vec2
	Facing float32
	Radius float32

	Health, HealthMax float32
	Shield, ShieldMax float32
	Energy, EnergyMax float32

	// BuildProgress is in [0, 1]; units the engine reports without one are
	// complete.
	BuildProgress float32
	Flying        bool

	OrderAbility uint32
	HasOrder     bool

	FirstSeen uint32
}

// UnderConstruction reports whether a progress indicator should replace the
// health bar.
func (e Entity) UnderConstruction() bool { return e.BuildProgress < 1 }

type EffectKind int

const (
	EffectUpsert EffectKind = iota + 1
	EffectRemove
)

func (k EffectKind) String() string {
	switch k {
	case EffectUpsert:
		return "upsert"
	case EffectRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Effect is one registry change produced by Sync.
type Effect struct {
	Kind   EffectKind
	Tag    uint64
	Entity Entity

	// Created is set on the first sighting of a tag.
	Created bool
	// Completed is set once, on the tick build progress reaches 1.
	Completed bool
	// LastSeen is the last game loop the tag was present (removals only).
	LastSeen uint32
}

type record struct {
	Entity
	seen      uint64
	lastSeen  uint32
	completed bool
}

// Registry is written by a single goroutine through Sync; readers may call
// the accessors concurrently.
type Registry struct {
	mu     sync.RWMutex
	byTag  map[uint64]*record
	byType map[uint32]map[uint64]struct{}
	epoch  uint64

	tileSize     float32
	mapW, mapH   int
	skippedTotal atomic.Uint64
}

// NewRegistry returns an empty registry. World positions are cell positions
// scaled by tileSize and shifted so the map centre is the origin.
func NewRegistry(tileSize float32, mapW, mapH int) *Registry {
	if tileSize <= 0 {
		tileSize = 1
	}
	return &Registry{
		byTag:    make(map[uint64]*record),
		byType:   make(map[uint32]map[uint64]struct{}),
		tileSize: tileSize,
		mapW:     mapW,
		mapH:     mapH,
	}
}

// SetMapSize changes the centring offset. Existing entities are moved on
// their next sighting.
func (r *Registry) SetMapSize(w, h int) {
	r.mu.Lock()
	r.mapW, r.mapH = w, h
	r.mu.Unlock()
}

func (r *Registry) MapSize() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mapW, r.mapH
}

// WorldPos maps a cell position to world units.
func (r *Registry) WorldPos(x, y float32) Vec2 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.worldPos(x, y)
}

func (r *Registry) worldPos(x, y float32) Vec2 {
	t := r.tileSize
	return Vec2{
		X: x*t - float32(r.mapW)*t/2,
		Y: y*t - float32(r.mapH)*t/2,
	}
}

// Sync applies one complete snapshot. Every valid record ends up in the
// registry; every tag missing from units is removed. Records without a tag
// or position are skipped. Upserts are emitted for new and changed
// entities in snapshot order, then removals in tag order.
func (r *Registry) Sync(gameLoop uint32, units []protocol.Unit) []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.epoch++
	var effects []Effect
	pending := make(map[uint64]int)

	for i := range units {
		u := &units[i]
		if !u.HasTag || u.Pos == nil {
			r.skippedTotal.Add(1)
			continue
		}
		next := r.entityFrom(u)

		rec, ok := r.byTag[u.Tag]
		if !ok {
			next.FirstSeen = gameLoop
			rec = &record{Entity: next, seen: r.epoch, lastSeen: gameLoop, completed: next.BuildProgress >= 1}
			r.byTag[u.Tag] = rec
			r.index(u.Tag, next.TypeID)
			pending[u.Tag] = len(effects)
			effects = append(effects, Effect{Kind: EffectUpsert, Tag: u.Tag, Entity: next, Created: true})
			continue
		}

		next.FirstSeen = rec.FirstSeen
		if next.TypeID != rec.TypeID {
			r.unindex(u.Tag, rec.TypeID)
			r.index(u.Tag, next.TypeID)
		}
		changed := next != rec.Entity
		completed := !rec.completed && next.BuildProgress >= 1
		rec.Entity = next
		rec.seen = r.epoch
		rec.lastSeen = gameLoop
		if completed {
			rec.completed = true
		}
		if !changed && !completed {
			continue
		}

		if at, dup := pending[u.Tag]; dup {
			// Listed twice in one snapshot: the last record wins.
			effects[at].Entity = next
			effects[at].Completed = effects[at].Completed || completed
			continue
		}
		pending[u.Tag] = len(effects)
		effects = append(effects, Effect{Kind: EffectUpsert, Tag: u.Tag, Entity: next, Completed: completed})
	}

	var gone []uint64
	for tag, rec := range r.byTag {
		if rec.seen != r.epoch {
			gone = append(gone, tag)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
	for _, tag := range gone {
		rec := r.byTag[tag]
		delete(r.byTag, tag)
		r.unindex(tag, rec.TypeID)
		effects = append(effects, Effect{Kind: EffectRemove, Tag: tag, Entity: rec.Entity, LastSeen: rec.lastSeen})
	}
	return effects
}

func (r *Registry) entityFrom(u *protocol.Unit) Entity {
	progress := float32(1)
	if u.HasBuildProgress {
		progress = clamp01(finite(u.BuildProgress))
	}
	pos := protocol.Point{X: finite(u.Pos.X), Y: finite(u.Pos.Y), Z: finite(u.Pos.Z)}
	e := Entity{
		Tag:           u.Tag,
		TypeID:        u.UnitType,
		Alliance:      u.Alliance,
		Owner:         u.Owner,
		MapPos:        pos,
		Pos:           r.worldPos(pos.X, pos.Y),
		Facing:        finite(u.Facing),
		Radius:        finite(u.Radius),
		Health:        finite(u.Health),
		HealthMax:     finite(u.HealthMax),
		Shield:        finite(u.Shield),
		ShieldMax:     finite(u.ShieldMax),
		Energy:        finite(u.Energy),
		EnergyMax:     finite(u.EnergyMax),
		BuildProgress: progress,
		Flying:        u.IsFlying,
	}
	if len(u.Orders) > 0 {
		e.OrderAbility = u.Orders[0].AbilityID
		e.HasOrder = true
	}
	return e
}

func (r *Registry) index(tag uint64, typeID uint32) {
	set := r.byType[typeID]
	if set == nil {
		set = make(map[uint64]struct{})
		r.byType[typeID] = set
	}
	set[tag] = struct{}{}
}

func (r *Registry) unindex(tag uint64, typeID uint32) {
	set := r.byType[typeID]
	delete(set, tag)
	if len(set) == 0 {
		delete(r.byType, typeID)
	}
}

// Get returns a copy of the entity with tag.
func (r *Registry) Get(tag uint64) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byTag[tag]
	if !ok {
		return Entity{}, false
	}
	return rec.Entity, true
}

// Snapshot copies every entity, ordered by tag.
func (r *Registry) Snapshot() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, 0, len(r.byTag))
	for _, rec := range r.byTag {
		out = append(out, rec.Entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// ByType copies the entities of one unit type, ordered by tag.
func (r *Registry) ByType(typeID uint32) []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byType[typeID]
	out := make([]Entity, 0, len(set))
	for tag := range set {
		out = append(out, r.byTag[tag].Entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTag)
}

// Skipped counts records dropped for a missing tag or position.
func (r *Registry) Skipped() uint64 { return r.skippedTotal.Load() }

// Reset forgets every entity, for a new game on the same registry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTag = make(map[uint64]*record)
	r.byType = make(map[uint32]map[uint64]struct{})
}

// finite maps NaN and infinities to 0 so entity values stay comparable.
func finite(v float32) float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0
	}
	return v
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
