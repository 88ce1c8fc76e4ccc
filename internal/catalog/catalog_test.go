package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = `{
  "Ability": [{"id": 16, "name": "MOVE"}, {"id": 524, "name": "TRAIN_SCV", "remaining": 1}],
  "Unit": [
    {"id": 45, "name": "SCV", "radius": 0.375, "race": "Terran"},
    {"id": 18, "name": "CommandCenter", "radius": 2.75},
    {"id": 1000, "name": "Mystery"}
  ]
}`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Units() != 3 || c.Abilities() != 2 {
		t.Fatalf("counts: units=%d abilities=%d", c.Units(), c.Abilities())
	}
	if c.UnitName(45) != "SCV" || c.UnitName(7) != "unit#7" {
		t.Fatalf("unit names: %q %q", c.UnitName(45), c.UnitName(7))
	}
	if c.AbilityName(16) != "MOVE" || c.AbilityName(1) != "ability#1" {
		t.Fatalf("ability names")
	}
	if r, ok := c.Radius(18); !ok || r != 2.75 {
		t.Fatalf("radius: %v %v", r, ok)
	}
	if _, ok := c.Radius(1000); ok {
		t.Fatalf("unit without radius should report unknown")
	}
	if got := c.DisplaySize(45, 0, 16); got != 12 {
		t.Fatalf("display size from catalog: %v", got)
	}
	if got := c.DisplaySize(45, 1, 16); got != 32 {
		t.Fatalf("observed radius should win: %v", got)
	}
	if ids := c.UnitIDs(); len(ids) != 3 || ids[0] != 18 || ids[2] != 1000 {
		t.Fatalf("ids: %v", ids)
	}
	if c.Digest == "" || c.Digest == Empty().Digest {
		t.Fatalf("digest not set")
	}
}

func TestParse_RejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":       `{`,
		"unit no name":   `{"Unit":[{"id":1}]}`,
		"negative id":    `{"Unit":[{"id":-1,"name":"x"}]}`,
		"string id":      `{"Ability":[{"id":"1","name":"x"}]}`,
		"unit not array": `{"Unit":{}}`,
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEmpty(t *testing.T) {
	c := Empty()
	if c.UnitName(45) != "unit#45" || c.Units() != 0 {
		t.Fatalf("empty catalog lookups")
	}
	if got := c.DisplaySize(45, 0, 10); got != 10 {
		t.Fatalf("default size: %v", got)
	}
}
