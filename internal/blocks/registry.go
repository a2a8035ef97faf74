// Package blocks holds the internal block-type registry: the fixed vocabulary
// the renderer understands. Every mapped blueprint block resolves to one of
// these ids, with "air" pinned to palette index 0.
package blocks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Air is the sentinel type for empty cells. It never counts toward
// completion and is never required by a tracker session.
const Air = "air"

// Fallback is the deterministic default for block keys that cannot be
// resolved to a registry entry.
const Fallback = "stone"

type Registry struct {
	Palette []string
	Index   map[string]uint16
	Defs    map[string]Def

	DefsDigest string
}

type Def struct {
	ID       string `json:"id"`
	Solid    bool   `json:"solid"`
	Material string `json:"material,omitempty"`
}

// Has reports whether id names a registered block type.
func (r *Registry) Has(id string) bool {
	_, ok := r.Index[id]
	return ok
}

// Load reads block definitions from a JSON file (an array of Def). The
// registry always places "air" at palette index 0 and requires both "air"
// and "stone" to be defined.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []Def
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	r, err := fromDefs(defs)
	if err != nil {
		return nil, err
	}
	r.DefsDigest = sha256Hex(raw)
	return r, nil
}

// Builtin returns the compiled-in registry used when no blocks.json is
// supplied. It matches configs/blocks.json.
func Builtin() *Registry {
	r, err := fromDefs(builtinDefs)
	if err != nil {
		panic(err)
	}
	b, _ := json.Marshal(builtinDefs)
	r.DefsDigest = sha256Hex(b)
	return r
}

func fromDefs(defs []Def) (*Registry, error) {
	r := &Registry{Defs: map[string]Def{}}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("blocks: empty id")
		}
		if _, dup := r.Defs[d.ID]; dup {
			return nil, fmt.Errorf("blocks: duplicate id %q", d.ID)
		}
		r.Defs[d.ID] = d
	}
	if _, ok := r.Defs[Air]; !ok {
		return nil, fmt.Errorf("blocks: missing %q", Air)
	}
	if _, ok := r.Defs[Fallback]; !ok {
		return nil, fmt.Errorf("blocks: missing %q", Fallback)
	}

	ids := make([]string, 0, len(r.Defs))
	for id := range r.Defs {
		if id == Air {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	r.Palette = append([]string{Air}, ids...)
	r.Index = make(map[string]uint16, len(r.Palette))
	for i, id := range r.Palette {
		r.Index[id] = uint16(i)
	}
	return r, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

var builtinDefs = []Def{
	{ID: "air", Solid: false},
	{ID: "stone", Solid: true, Material: "rock"},
	{ID: "cobblestone", Solid: true, Material: "rock"},
	{ID: "brick", Solid: true, Material: "rock"},
	{ID: "dirt", Solid: true, Material: "soil"},
	{ID: "grass", Solid: true, Material: "soil"},
	{ID: "sand", Solid: true, Material: "soil"},
	{ID: "gravel", Solid: true, Material: "soil"},
	{ID: "plank", Solid: true, Material: "wood"},
	{ID: "log", Solid: true, Material: "wood"},
	{ID: "leaves", Solid: true, Material: "plant"},
	{ID: "glass", Solid: true, Material: "glass"},
	{ID: "wool", Solid: true, Material: "cloth"},
	{ID: "water", Solid: false, Material: "liquid"},
	{ID: "lava", Solid: false, Material: "liquid"},
	{ID: "sandstone", Solid: true, Material: "rock"},
	{ID: "obsidian", Solid: true, Material: "rock"},
	{ID: "ice", Solid: true, Material: "glass"},
	{ID: "snow", Solid: true, Material: "soil"},
	{ID: "gold_block", Solid: true, Material: "metal"},
	{ID: "iron_block", Solid: true, Material: "metal"},
	{ID: "diamond_block", Solid: true, Material: "metal"},
	{ID: "slab", Solid: true, Material: "rock"},
	{ID: "stairs", Solid: true, Material: "wood"},
	{ID: "door", Solid: true, Material: "wood"},
	{ID: "torch", Solid: false, Material: "light"},
	{ID: "glowstone", Solid: true, Material: "light"},
	{ID: "fence", Solid: true, Material: "wood"},
}
