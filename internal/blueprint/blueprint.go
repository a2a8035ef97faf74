// Package blueprint normalizes parser+mapper output into immutable,
// validated Blueprints and owns the id-keyed blueprint cache.
package blueprint

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"blockforge.app/internal/blocks"
	"blockforge.app/internal/schematic"
)

// Block is one required cell of a blueprint. Type is either a registry
// entry or the "air" sentinel.
type Block struct {
	Type string
	Pos  schematic.Position
}

// Blueprint is the normalized shape of a structure. Immutable once built;
// accessors hand out copies.
type Blueprint struct {
	ID         string
	Name       string
	Difficulty int
	Dims       schematic.Dimensions

	FromFile         bool
	OriginalFilename string

	blocks      []Block
	totalNonAir int
}

// Blocks returns a copy of the block list.
func (bp *Blueprint) Blocks() []Block {
	out := make([]Block, len(bp.blocks))
	copy(out, bp.blocks)
	return out
}

// TotalNonAir is the number of blocks required for completion. Air cells
// never count.
func (bp *Blueprint) TotalNonAir() int { return bp.totalNonAir }

// ValidationError enumerates every check a candidate blueprint failed.
type ValidationError struct {
	BlueprintID string
	Reasons     []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("blueprint %q invalid: %s", e.BlueprintID, strings.Join(e.Reasons, "; "))
}

// Meta carries the identity of a blueprint under construction.
type Meta struct {
	ID               string
	Name             string
	Difficulty       int
	FromFile         bool
	OriginalFilename string
}

type Builder struct {
	reg *blocks.Registry

	mu    sync.RWMutex
	cache map[string]*Blueprint
}

func NewBuilder(reg *blocks.Registry) *Builder {
	return &Builder{
		reg:   reg,
		cache: make(map[string]*Blueprint),
	}
}

// Build validates and registers a blueprint. A failed validation is
// returned as *ValidationError and nothing enters the cache.
func (b *Builder) Build(dims schematic.Dimensions, mapped []Block, meta Meta) (*Blueprint, error) {
	bp, err := b.Compose(dims, mapped, meta)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.cache[bp.ID] = bp
	b.mu.Unlock()
	return bp, nil
}

// Compose validates without touching the cache. Reload uses it to stage a
// full replacement set before swapping.
func (b *Builder) Compose(dims schematic.Dimensions, mapped []Block, meta Meta) (*Blueprint, error) {
	var reasons []string
	if meta.ID == "" {
		reasons = append(reasons, "empty blueprint id")
	}
	if dims.W <= 0 || dims.H <= 0 || dims.L <= 0 {
		reasons = append(reasons, fmt.Sprintf("dimensions must be positive, got %dx%dx%d", dims.W, dims.H, dims.L))
	}
	if len(mapped) == 0 {
		reasons = append(reasons, "empty block list")
	}

	nonAir := 0
	for i, blk := range mapped {
		p := blk.Pos
		if p.X < 0 || p.X >= dims.W || p.Y < 0 || p.Y >= dims.H || p.Z < 0 || p.Z >= dims.L {
			reasons = append(reasons, fmt.Sprintf("block %d at (%d,%d,%d) outside %dx%dx%d", i, p.X, p.Y, p.Z, dims.W, dims.H, dims.L))
			continue
		}
		if blk.Type != blocks.Air && !b.reg.Has(blk.Type) {
			reasons = append(reasons, fmt.Sprintf("block %d has unregistered type %q", i, blk.Type))
			continue
		}
		if blk.Type != blocks.Air {
			nonAir++
		}
	}
	if len(reasons) > 0 {
		return nil, &ValidationError{BlueprintID: meta.ID, Reasons: reasons}
	}

	bl := make([]Block, len(mapped))
	copy(bl, mapped)
	return &Blueprint{
		ID:               meta.ID,
		Name:             meta.Name,
		Difficulty:       meta.Difficulty,
		Dims:             dims,
		FromFile:         meta.FromFile,
		OriginalFilename: meta.OriginalFilename,
		blocks:           bl,
		totalNonAir:      nonAir,
	}, nil
}

// Get returns the cached blueprint for id.
func (b *Builder) Get(id string) (*Blueprint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bp, ok := b.cache[id]
	return bp, ok
}

// All returns the cached blueprints sorted by id.
func (b *Builder) All() []*Blueprint {
	b.mu.RLock()
	out := make([]*Blueprint, 0, len(b.cache))
	for _, bp := range b.cache {
		out = append(out, bp)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the cache size.
func (b *Builder) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cache)
}

// ReplaceAll swaps the entire cache in one step. Readers observe either the
// old set or the new set, never a partial mix.
func (b *Builder) ReplaceAll(bps []*Blueprint) {
	next := make(map[string]*Blueprint, len(bps))
	for _, bp := range bps {
		next[bp.ID] = bp
	}
	b.mu.Lock()
	b.cache = next
	b.mu.Unlock()
}
