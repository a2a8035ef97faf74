// Package grid assigns collision-free world positions for completed
// structures. A fixed W x L cell grid holds at most one structure per cell;
// check-and-reserve happens inside a single critical section, so bursty
// placement requests can never select the same cell.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrGridFull is returned when no free cell remains. Callers surface it;
// the grid never drops a request silently.
var ErrGridFull = errors.New("placement grid full")

// WorldPos is a world-space position (the renderer's coordinate system).
type WorldPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Cell struct {
	GridX int
	GridZ int

	Occupied    bool
	StructureID string
}

type Config struct {
	Width  int
	Length int

	// CellSize is the world-space edge length of one cell.
	CellSize float64
	OriginX  float64
	OriginZ  float64
}

type Grid struct {
	cfg Config

	mu    sync.Mutex
	cells []Cell         // row-major, len = Width*Length
	byID  map[string]int // structure id -> cell index
}

func New(cfg Config) (*Grid, error) {
	if cfg.Width <= 0 || cfg.Length <= 0 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", cfg.Width, cfg.Length)
	}
	if cfg.CellSize <= 0 {
		return nil, fmt.Errorf("grid cell size must be positive, got %v", cfg.CellSize)
	}
	g := &Grid{
		cfg:   cfg,
		cells: make([]Cell, cfg.Width*cfg.Length),
		byID:  make(map[string]int),
	}
	for i := range g.cells {
		g.cells[i].GridX = i % cfg.Width
		g.cells[i].GridZ = i / cfg.Width
	}
	return g, nil
}

// Reserve assigns a cell to structureID. A preferred world position is
// honored when its cell is free; otherwise cells are scanned in row-major
// order for the first free one. The cell is marked occupied before
// returning, making check-and-reserve atomic. A structure that already
// holds a cell keeps it.
func (g *Grid) Reserve(structureID string, preferred *WorldPos) (Cell, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.byID[structureID]; ok {
		return g.cells[idx], nil
	}

	if preferred != nil {
		if idx, ok := g.cellIndexAt(*preferred); ok && !g.cells[idx].Occupied {
			return g.reserveLocked(idx, structureID), nil
		}
	}
	for idx := range g.cells {
		if !g.cells[idx].Occupied {
			return g.reserveLocked(idx, structureID), nil
		}
	}
	return Cell{}, ErrGridFull
}

func (g *Grid) reserveLocked(idx int, structureID string) Cell {
	g.cells[idx].Occupied = true
	g.cells[idx].StructureID = structureID
	g.byID[structureID] = idx
	return g.cells[idx]
}

// Release frees the cell held by structureID. Unknown ids are a no-op.
func (g *Grid) Release(structureID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.byID[structureID]
	if !ok {
		return
	}
	g.cells[idx].Occupied = false
	g.cells[idx].StructureID = ""
	delete(g.byID, structureID)
}

// ReleaseAll clears the whole grid.
func (g *Grid) ReleaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cells {
		g.cells[i].Occupied = false
		g.cells[i].StructureID = ""
	}
	g.byID = make(map[string]int)
}

// IsOccupied reports whether the cell containing pos is occupied and by
// which structure. Positions outside the grid are never occupied.
func (g *Grid) IsOccupied(pos WorldPos) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.cellIndexAt(pos)
	if !ok {
		return false, ""
	}
	c := g.cells[idx]
	return c.Occupied, c.StructureID
}

// OccupiedCount returns the number of reserved cells.
func (g *Grid) OccupiedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byID)
}

// Cells returns a snapshot of the grid in row-major order.
func (g *Grid) Cells() []Cell {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Cell, len(g.cells))
	copy(out, g.cells)
	return out
}

// WorldPosition is the world-space center of a cell.
func (g *Grid) WorldPosition(c Cell) WorldPos {
	return WorldPos{
		X: g.cfg.OriginX + (float64(c.GridX)+0.5)*g.cfg.CellSize,
		Y: 0,
		Z: g.cfg.OriginZ + (float64(c.GridZ)+0.5)*g.cfg.CellSize,
	}
}

func (g *Grid) cellIndexAt(pos WorldPos) (int, bool) {
	gx := int(math.Floor((pos.X - g.cfg.OriginX) / g.cfg.CellSize))
	gz := int(math.Floor((pos.Z - g.cfg.OriginZ) / g.cfg.CellSize))
	if gx < 0 || gx >= g.cfg.Width || gz < 0 || gz >= g.cfg.Length {
		return 0, false
	}
	return gz*g.cfg.Width + gx, true
}
