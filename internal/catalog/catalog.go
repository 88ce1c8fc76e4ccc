// Package catalog loads the engine's static unit and ability data
// (data.json) used to label entities.
package catalog

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed data.schema.json
var schemaJSON []byte

const schemaURL = "data.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

type UnitDef struct {
	ID     uint32   `json:"id"`
	Name   string   `json:"name"`
	Radius *float32 `json:"radius,omitempty"`
}

type AbilityDef struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

type dataFile struct {
	Ability []AbilityDef `json:"Ability"`
	Unit    []UnitDef    `json:"Unit"`
}

// Catalog is read-only after Load.
type Catalog struct {
	units     map[uint32]UnitDef
	abilities map[uint32]AbilityDef
	Digest    string
}

// Empty returns a catalog that knows nothing; lookups fall back to ids.
func Empty() *Catalog {
	return &Catalog{units: map[uint32]UnitDef{}, abilities: map[uint32]AbilityDef{}, Digest: sha256Hex(nil)}
}

// Load reads and validates a data.json file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse validates raw against the data.json schema and indexes it.
func Parse(raw []byte) (*Catalog, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("data.json schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("data.json: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("data.json: %w", err)
	}

	var f dataFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("data.json: %w", err)
	}
	c := &Catalog{
		units:     make(map[uint32]UnitDef, len(f.Unit)),
		abilities: make(map[uint32]AbilityDef, len(f.Ability)),
		Digest:    sha256Hex(raw),
	}
	for _, u := range f.Unit {
		c.units[u.ID] = u
	}
	for _, a := range f.Ability {
		c.abilities[a.ID] = a
	}
	return c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// UnitName returns the unit's name, or "unit#<id>" when unknown.
func (c *Catalog) UnitName(id uint32) string {
	if u, ok := c.units[id]; ok && u.Name != "" {
		return u.Name
	}
	return fmt.Sprintf("unit#%d", id)
}

// AbilityName returns the ability's name, or "ability#<id>" when unknown.
func (c *Catalog) AbilityName(id uint32) string {
	if a, ok := c.abilities[id]; ok && a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("ability#%d", id)
}

// Radius returns the unit's footprint radius in cells, if known.
func (c *Catalog) Radius(id uint32) (float32, bool) {
	u, ok := c.units[id]
	if !ok || u.Radius == nil {
		return 0, false
	}
	return *u.Radius, true
}

// DisplaySize is the sprite diameter in world units for a unit type. The
// observed radius wins over the catalog one.
func (c *Catalog) DisplaySize(id uint32, observedRadius, tileSize float32) float32 {
	r := observedRadius
	if r <= 0 {
		r, _ = c.Radius(id)
	}
	if r <= 0 {
		r = 0.5
	}
	return r * 2 * tileSize
}

// UnitIDs lists known unit ids in ascending order.
func (c *Catalog) UnitIDs() []uint32 {
	ids := make([]uint32, 0, len(c.units))
	for id := range c.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Catalog) Units() int     { return len(c.units) }
func (c *Catalog) Abilities() int { return len(c.abilities) }
