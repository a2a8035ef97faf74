// Package forge owns the pipeline: parse structure files, map their block
// keys, build blueprints, track build sessions, place finished structures
// on the grid and persist them. Everything is wired through one explicit
// Service value; there are no package-level singletons.
package forge

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"blockforge.app/internal/auditlog"
	"blockforge.app/internal/blocks"
	"blockforge.app/internal/blueprint"
	"blockforge.app/internal/grid"
	"blockforge.app/internal/mapping"
	"blockforge.app/internal/schematic"
	"blockforge.app/internal/store"
	"blockforge.app/internal/tracker"
	"blockforge.app/internal/tuning"
)

// Emitter receives pipeline events as direct typed calls. Implementations
// must not block.
type Emitter interface {
	StructureBuilt(id, blueprintID, name string, difficulty int, pos grid.WorldPos)
	StructureDeleted(id string)
	AllStructuresDeleted()
	StructuresReloaded(blueprints int)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) StructureBuilt(string, string, string, int, grid.WorldPos) {}
func (NopEmitter) StructureDeleted(string)                                   {}
func (NopEmitter) AllStructuresDeleted()                                     {}
func (NopEmitter) StructuresReloaded(int)                                    {}

// auditFan copies each mapping decision to the sqlite audit tables and,
// when configured, the JSONL trail.
type auditFan struct {
	store *store.Store
	trail *auditlog.Logger
	log   *log.Logger
}

func (f auditFan) WriteMapping(e mapping.AuditEntry) {
	f.store.WriteMapping(e)
	if f.trail != nil {
		if err := f.trail.WriteAudit(e); err != nil {
			f.log.Printf("audit trail: %v", err)
		}
	}
}

type Service struct {
	log *log.Logger
	cfg tuning.Tuning

	reg     *blocks.Registry
	mapper  *mapping.Mapper
	builder *blueprint.Builder
	grid    *grid.Grid
	store   *store.Store
	emit    Emitter

	mu       sync.Mutex
	sessions map[string]*tracker.Session // one active session per blueprint
	sources  map[string]string           // blueprint id -> source path

	parseFailures atomic.Uint64
}

func New(cfg tuning.Tuning, reg *blocks.Registry, st *store.Store, trail *auditlog.Logger, emit Emitter, logger *log.Logger) (*Service, error) {
	g, err := grid.New(grid.Config{
		Width:    cfg.Grid.Width,
		Length:   cfg.Grid.Length,
		CellSize: cfg.Grid.CellSize,
		OriginX:  cfg.Grid.OriginX,
		OriginZ:  cfg.Grid.OriginZ,
	})
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	if emit == nil {
		emit = NopEmitter{}
	}
	s := &Service{
		log:      logger,
		cfg:      cfg,
		reg:      reg,
		builder:  blueprint.NewBuilder(reg),
		grid:     g,
		store:    st,
		emit:     emit,
		sessions: make(map[string]*tracker.Session),
		sources:  make(map[string]string),
	}
	s.mapper = mapping.New(reg, auditFan{store: st, trail: trail, log: logger})
	return s, nil
}

func (s *Service) Registry() *blocks.Registry  { return s.reg }
func (s *Service) Builder() *blueprint.Builder { return s.builder }
func (s *Service) Grid() *grid.Grid            { return s.grid }

// ImportFile parses one structure file, maps its blocks and caches the
// resulting blueprint. Parse and validation failures are returned to the
// caller with their diagnostics; nothing is cached for a rejected file.
func (s *Service) ImportFile(path string) (*blueprint.Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	parsed, err := schematic.Parse(data, name)
	if err != nil {
		s.parseFailures.Add(1)
		return nil, err
	}

	mapped := s.mapRecords(parsed.Records)
	meta := blueprint.Meta{
		ID:               blueprintID(name),
		Name:             displayName(name),
		Difficulty:       difficultyFor(countNonAir(mapped)),
		FromFile:         true,
		OriginalFilename: name,
	}
	bp, err := s.builder.Build(parsed.Dims, mapped, meta)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sources[bp.ID] = path
	s.mu.Unlock()

	s.log.Printf("imported %s: %s %dx%dx%d, %d blocks (%d non-air)",
		name, bp.ID, bp.Dims.W, bp.Dims.H, bp.Dims.L, len(mapped), bp.TotalNonAir())
	return bp, nil
}

// ImportDir imports every structure file in dir. A rejected file is logged
// and skipped; only a directory read failure aborts the walk.
func (s *Service) ImportDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isStructureFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	imported := 0
	for _, n := range names {
		if _, err := s.ImportFile(filepath.Join(dir, n)); err != nil {
			s.log.Printf("skip %s: %v", n, err)
			continue
		}
		imported++
	}
	return imported, nil
}

func (s *Service) mapRecords(records []schematic.RawBlockRecord) []blueprint.Block {
	out := make([]blueprint.Block, 0, len(records))
	for _, r := range records {
		key := mapping.Key{ID: r.ID, Name: r.Name}
		switch r.Kind {
		case schematic.KindID:
			key.Kind = mapping.KindID
		case schematic.KindName:
			key.Kind = mapping.KindName
		}
		out = append(out, blueprint.Block{
			Type: s.mapper.Map(key, r.SourceFile),
			Pos:  r.Pos,
		})
	}
	return out
}

// StartSession begins (or restarts) a build session for a cached
// blueprint. There is at most one session per blueprint id.
func (s *Service) StartSession(blueprintID string) (*tracker.Session, error) {
	bp, ok := s.builder.Get(blueprintID)
	if !ok {
		return nil, fmt.Errorf("no blueprint %q: no data available", blueprintID)
	}
	sess := tracker.NewSession(bp)
	s.mu.Lock()
	s.sessions[blueprintID] = sess
	s.mu.Unlock()
	return sess, nil
}

// Session returns the active session for a blueprint, if any.
func (s *Service) Session(blueprintID string) (*tracker.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[blueprintID]
	return sess, ok
}

// BlockCollected forwards a collected block to the blueprint's session.
func (s *Service) BlockCollected(blueprintID, blockType string, pos schematic.Position) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[blueprintID]
	if !ok {
		return false, fmt.Errorf("no session for blueprint %q", blueprintID)
	}
	return sess.OnBlockCollected(blockType, pos), nil
}

// BlockRemoved forwards a removed block to the blueprint's session.
func (s *Service) BlockRemoved(blueprintID, blockType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[blueprintID]
	if !ok {
		return false, fmt.Errorf("no session for blueprint %q", blueprintID)
	}
	return sess.OnBlockRemoved(blockType), nil
}

// ConfirmBuild finalizes a completed session: the structure gets a grid
// cell (preferred position honored when free), a durable record and a
// structure_built event. Only a session in the Complete state confirms.
func (s *Service) ConfirmBuild(blueprintID string, preferred *grid.WorldPos) (store.BuiltStructure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[blueprintID]
	if !ok {
		return store.BuiltStructure{}, fmt.Errorf("no session for blueprint %q", blueprintID)
	}
	bp, ok := s.builder.Get(blueprintID)
	if !ok {
		return store.BuiltStructure{}, fmt.Errorf("no blueprint %q: no data available", blueprintID)
	}
	if sess.IsPermanentlyPlaced() {
		return store.BuiltStructure{}, fmt.Errorf("blueprint %q already placed", blueprintID)
	}
	if !sess.IsComplete() {
		return store.BuiltStructure{}, fmt.Errorf("blueprint %q not complete (state %s)", blueprintID, sess.State())
	}

	// Reserve before flipping the session state so a full grid or a failed
	// write leaves the session Complete and retryable.
	id := uuid.NewString()
	cell, err := s.grid.Reserve(id, preferred)
	if err != nil {
		return store.BuiltStructure{}, err
	}
	rec := store.BuiltStructure{
		ID:          id,
		BlueprintID: bp.ID,
		Name:        bp.Name,
		Difficulty:  bp.Difficulty,
		Position:    s.grid.WorldPosition(cell),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveStructure(rec); err != nil {
		s.grid.Release(id)
		return store.BuiltStructure{}, fmt.Errorf("persist structure: %w", err)
	}
	sess.OnBuildConfirmed()
	s.emit.StructureBuilt(rec.ID, rec.BlueprintID, rec.Name, rec.Difficulty, rec.Position)
	return rec, nil
}

// DeleteStructure frees a structure's cell and removes its record.
func (s *Service) DeleteStructure(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteStructure(id); err != nil {
		return err
	}
	s.grid.Release(id)
	s.emit.StructureDeleted(id)
	return nil
}

// DeleteAllStructures wipes every record and frees the whole grid.
func (s *Service) DeleteAllStructures() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteAllStructures(); err != nil {
		return err
	}
	s.grid.ReleaseAll()
	s.emit.AllStructuresDeleted()
	return nil
}

// Structures returns all persisted records, oldest first.
func (s *Service) Structures() ([]store.BuiltStructure, error) {
	return s.store.LoadStructures()
}

// Reload re-runs parse, map and build over every registered source file
// into a staging set, then swaps the blueprint cache atomically. A file
// that fails is dropped from the cache with a log line; readers never see
// a partially rebuilt cache.
func (s *Service) Reload(ctx context.Context) (int, error) {
	s.mu.Lock()
	paths := make(map[string]string, len(s.sources))
	for id, p := range s.sources {
		paths[id] = p
	}
	s.mu.Unlock()

	var staged []*blueprint.Blueprint
	for id, path := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Printf("reload %s: %v", id, err)
			continue
		}
		name := filepath.Base(path)
		parsed, err := schematic.Parse(data, name)
		if err != nil {
			s.parseFailures.Add(1)
			s.log.Printf("reload %s: %v", id, err)
			continue
		}
		mapped := s.mapRecords(parsed.Records)
		meta := blueprint.Meta{
			ID:               id,
			Name:             displayName(name),
			Difficulty:       difficultyFor(countNonAir(mapped)),
			FromFile:         true,
			OriginalFilename: name,
		}
		bp, err := s.builder.Compose(parsed.Dims, mapped, meta)
		if err != nil {
			s.log.Printf("reload %s: %v", id, err)
			continue
		}
		staged = append(staged, bp)
	}

	s.builder.ReplaceAll(staged)
	s.emit.StructuresReloaded(len(staged))
	return len(staged), nil
}

// Restore rehydrates grid occupancy from persisted records, oldest first.
// A record whose stored position lands on an occupied cell is relocated to
// the next free cell and its row updated; no record is lost. Geometry is
// regenerated from the owning blueprint, never stored.
func (s *Service) Restore(ctx context.Context) (restored, relocated int, err error) {
	recs, err := s.store.LoadStructures()
	if err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return restored, relocated, err
		}
		pos := rec.Position
		cell, rerr := s.grid.Reserve(rec.ID, &pos)
		if rerr != nil {
			s.log.Printf("restore %s: %v", rec.ID, rerr)
			continue
		}
		got := s.grid.WorldPosition(cell)
		if got != rec.Position {
			if uerr := s.store.UpdateStructurePosition(rec.ID, got); uerr != nil {
				s.log.Printf("restore %s: update position: %v", rec.ID, uerr)
			} else {
				s.log.Printf("restore %s: relocated %v -> %v", rec.ID, rec.Position, got)
				relocated++
			}
		}
		restored++
	}
	return restored, relocated, nil
}

// IsPositionOccupied reports whether the cell under a world position holds
// a structure, and which one.
func (s *Service) IsPositionOccupied(pos grid.WorldPos) (bool, string) {
	return s.grid.IsOccupied(pos)
}

// FindNewPosition returns the world position of the first free cell in
// scan order without reserving it.
func (s *Service) FindNewPosition() (grid.WorldPos, error) {
	for _, c := range s.grid.Cells() {
		if !c.Occupied {
			return s.grid.WorldPosition(c), nil
		}
	}
	return grid.WorldPos{}, grid.ErrGridFull
}

// Stats is the metrics snapshot served on /metrics.
type Stats struct {
	Blueprints       int
	Sessions         int
	OccupiedCells    int
	Structures       int
	ParseFailures    uint64
	MappingFallbacks uint64
	DroppedAudits    uint64
}

func (s *Service) Stats() Stats {
	recs, err := s.store.LoadStructures()
	if err != nil {
		s.log.Printf("stats: %v", err)
	}
	s.mu.Lock()
	sessions := len(s.sessions)
	s.mu.Unlock()
	return Stats{
		Blueprints:       s.builder.Len(),
		Sessions:         sessions,
		OccupiedCells:    s.grid.OccupiedCount(),
		Structures:       len(recs),
		ParseFailures:    s.parseFailures.Load(),
		MappingFallbacks: s.mapper.Fallbacks(),
		DroppedAudits:    s.store.DroppedAudits(),
	}
}

func isStructureFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".schematic", ".schem", ".nbt":
		return true
	}
	return false
}

func blueprintID(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	base = strings.ToLower(base)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, base)
}

func displayName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return strings.TrimSpace(base)
}

func countNonAir(bs []blueprint.Block) int {
	n := 0
	for _, b := range bs {
		if b.Type != blocks.Air {
			n++
		}
	}
	return n
}

// difficultyFor buckets a blueprint by its non-air block count.
func difficultyFor(nonAir int) int {
	switch {
	case nonAir <= 16:
		return 1
	case nonAir <= 64:
		return 2
	case nonAir <= 256:
		return 3
	case nonAir <= 1024:
		return 4
	default:
		return 5
	}
}
