package entities

import (
	"math"
	"reflect"
	"sync"
	"testing"

	"sc2tap.ai/internal/protocol"
)

func unit(tag uint64, typeID uint32, x, y float32) protocol.Unit {
	return protocol.Unit{
		Tag:       tag,
		HasTag:    true,
		UnitType:  typeID,
		Alliance:  protocol.AllianceSelf,
		Pos:       &protocol.Point{X: x, Y: y},
		Health:    40,
		HealthMax: 40,
	}
}

func countKind(effects []Effect, k EffectKind) int {
	n := 0
	for _, e := range effects {
		if e.Kind == k {
			n++
		}
	}
	return n
}

func TestSync_TagSevenScenario(t *testing.T) {
	r := NewRegistry(16, 200, 176)
	u := protocol.Unit{
		Tag: 7, HasTag: true, UnitType: 41,
		Pos:    &protocol.Point{X: 10, Y: 10},
		Health: 50, HealthMax: 100,
		BuildProgress: 1, HasBuildProgress: true,
	}
	effects := r.Sync(1, []protocol.Unit{u})
	if len(effects) != 1 || effects[0].Kind != EffectUpsert || !effects[0].Created {
		t.Fatalf("first tick effects: %+v", effects)
	}
	e, ok := r.Get(7)
	if !ok || e.TypeID != 41 || e.Health != 50 || e.HealthMax != 100 || e.UnderConstruction() {
		t.Fatalf("entity: %+v ok=%v", e, ok)
	}

	effects = r.Sync(2, nil)
	if _, ok := r.Get(7); ok || r.Len() != 0 {
		t.Fatalf("tag 7 should be gone")
	}
	if len(effects) != 1 || effects[0].Kind != EffectRemove || effects[0].Tag != 7 || effects[0].LastSeen != 1 {
		t.Fatalf("second tick effects: %+v", effects)
	}
	if len(r.ByType(41)) != 0 {
		t.Fatalf("type index not cleaned")
	}
}

func TestSync_Idempotent(t *testing.T) {
	r := NewRegistry(16, 64, 64)
	snap := []protocol.Unit{unit(1, 10, 1, 1), unit(2, 11, 2, 2), unit(3, 10, 3, 3)}

	first := r.Sync(5, snap)
	if countKind(first, EffectUpsert) != 3 {
		t.Fatalf("first pass: %+v", first)
	}
	before := r.Snapshot()

	second := r.Sync(5, snap)
	if len(second) != 0 {
		t.Fatalf("unchanged snapshot should produce no effects: %+v", second)
	}
	if after := r.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("registry changed:\n%+v\n%+v", before, after)
	}
}

func TestSync_RemovalAndUpdate(t *testing.T) {
	r := NewRegistry(1, 0, 0)
	r.Sync(1, []protocol.Unit{unit(1, 10, 0, 0), unit(2, 10, 0, 0)})

	moved := unit(1, 10, 5, 5)
	effects := r.Sync(2, []protocol.Unit{moved})
	if r.Len() != 1 {
		t.Fatalf("len: %d", r.Len())
	}
	if _, ok := r.Get(2); ok {
		t.Fatalf("tag 2 should be removed")
	}
	if countKind(effects, EffectUpsert) != 1 || countKind(effects, EffectRemove) != 1 {
		t.Fatalf("effects: %+v", effects)
	}
	if effects[0].Created {
		t.Fatalf("update must not be flagged as created")
	}
	e, _ := r.Get(1)
	if e.Pos != (Vec2{5, 5}) || e.FirstSeen != 1 {
		t.Fatalf("entity: %+v", e)
	}
	if got := r.ByType(10); len(got) != 1 || got[0].Tag != 1 {
		t.Fatalf("type index: %+v", got)
	}
}

func TestSync_DuplicateInOneSnapshot(t *testing.T) {
	r := NewRegistry(1, 0, 0)
	a := unit(9, 10, 1, 1)
	b := unit(9, 10, 2, 2)
	effects := r.Sync(1, []protocol.Unit{a, b})
	if r.Len() != 1 {
		t.Fatalf("duplicate tag created %d entries", r.Len())
	}
	if len(effects) != 1 || !effects[0].Created {
		t.Fatalf("effects: %+v", effects)
	}
	if effects[0].Entity.MapPos.X != 2 {
		t.Fatalf("last record should win: %+v", effects[0].Entity)
	}
}

func TestSync_SkipsPartialRecords(t *testing.T) {
	r := NewRegistry(1, 0, 0)
	noTag := unit(0, 10, 1, 1)
	noTag.HasTag = false
	noPos := unit(4, 10, 0, 0)
	noPos.Pos = nil

	r.Sync(1, []protocol.Unit{unit(3, 10, 1, 1)})
	effects := r.Sync(2, []protocol.Unit{noTag, unit(3, 10, 1, 1), noPos})
	if len(effects) != 0 {
		t.Fatalf("effects: %+v", effects)
	}
	if r.Len() != 1 || r.Skipped() != 2 {
		t.Fatalf("len=%d skipped=%d", r.Len(), r.Skipped())
	}
}

func TestSync_CompletedOnce(t *testing.T) {
	r := NewRegistry(1, 0, 0)
	building := func(p float32) protocol.Unit {
		u := unit(50, 21, 4, 4)
		u.BuildProgress = p
		u.HasBuildProgress = true
		return u
	}

	effects := r.Sync(1, []protocol.Unit{building(0.25)})
	if effects[0].Completed || !effects[0].Entity.UnderConstruction() {
		t.Fatalf("new building: %+v", effects[0])
	}
	effects = r.Sync(2, []protocol.Unit{building(0.5)})
	if len(effects) != 1 || effects[0].Completed || effects[0].Entity.BuildProgress != 0.5 {
		t.Fatalf("progress tick: %+v", effects)
	}
	effects = r.Sync(3, []protocol.Unit{building(1)})
	if len(effects) != 1 || !effects[0].Completed {
		t.Fatalf("completion tick: %+v", effects)
	}
	effects = r.Sync(4, []protocol.Unit{building(1)})
	if len(effects) != 0 {
		t.Fatalf("completion must be flagged once: %+v", effects)
	}

	// A unit first seen complete never reports a crossing.
	r.Sync(5, []protocol.Unit{building(1), unit(51, 21, 0, 0)})
	if e, _ := r.Get(51); e.BuildProgress != 1 {
		t.Fatalf("missing build progress should mean complete: %+v", e)
	}
}

func TestSync_TypeChangeMovesIndex(t *testing.T) {
	r := NewRegistry(1, 0, 0)
	r.Sync(1, []protocol.Unit{unit(8, 86, 0, 0)})
	r.Sync(2, []protocol.Unit{unit(8, 100, 0, 0)})
	if len(r.ByType(86)) != 0 || len(r.ByType(100)) != 1 {
		t.Fatalf("type index after morph: %v %v", r.ByType(86), r.ByType(100))
	}
}

func TestWorldPos_CentresMap(t *testing.T) {
	r := NewRegistry(16, 200, 176)
	if got := r.WorldPos(100, 88); got != (Vec2{0, 0}) {
		t.Fatalf("centre: %+v", got)
	}
	if got := r.WorldPos(0, 0); got != (Vec2{-1600, -1408}) {
		t.Fatalf("corner: %+v", got)
	}
	r.SetMapSize(10, 10)
	if got := r.WorldPos(5, 5); got != (Vec2{0, 0}) {
		t.Fatalf("after resize: %+v", got)
	}
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r := NewRegistry(1, 0, 0)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					for _, e := range r.Snapshot() {
						_, _ = r.Get(e.Tag)
					}
					_ = r.ByType(10)
				}
			}
		}()
	}
	for tick := uint32(0); tick < 200; tick++ {
		var snap []protocol.Unit
		for tag := uint64(1); tag <= uint64(tick%17); tag++ {
			snap = append(snap, unit(tag, 10, float32(tick), 0))
		}
		r.Sync(tick, snap)
	}
	close(stop)
	wg.Wait()
}

func TestSync_NonFiniteValuesAreStable(t *testing.T) {
	r := NewRegistry(1, 0, 0)
	nan := float32(math.NaN())
	u := unit(9, 48, 2, 2)
	u.Health = nan
	u.Facing = float32(math.Inf(1))
	u.BuildProgress = nan
	u.HasBuildProgress = true

	if effects := r.Sync(1, []protocol.Unit{u}); len(effects) != 1 || !effects[0].Created {
		t.Fatalf("first sync: %+v", effects)
	}
	if effects := r.Sync(2, []protocol.Unit{u}); len(effects) != 0 {
		t.Fatalf("identical snapshot produced %d effects", len(effects))
	}
	e, ok := r.Get(9)
	if !ok || e.Health != 0 || e.Facing != 0 || e.BuildProgress != 0 {
		t.Fatalf("entity: %+v", e)
	}
}
