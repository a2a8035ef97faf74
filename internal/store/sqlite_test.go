package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"blockforge.app/internal/grid"
	"blockforge.app/internal/mapping"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "forge.db"), 64)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStructures_SaveLoadOrderedOldestFirst(t *testing.T) {
	s := openTest(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order; LoadStructures must sort by creation time.
	recs := []BuiltStructure{
		{ID: "b", BlueprintID: "bp1", Name: "Second", Difficulty: 2, Position: grid.WorldPos{X: 12}, CreatedAt: base.Add(time.Minute)},
		{ID: "a", BlueprintID: "bp1", Name: "First", Difficulty: 1, Position: grid.WorldPos{X: 36}, CreatedAt: base},
		{ID: "c", BlueprintID: "bp2", Name: "Third", Difficulty: 3, Position: grid.WorldPos{Z: 12}, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range recs {
		if err := s.SaveStructure(r); err != nil {
			t.Fatalf("save %s: %v", r.ID, err)
		}
	}

	got, err := s.LoadStructures()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d records", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Fatalf("order[%d]: got %q want %q", i, got[i].ID, want)
		}
	}
	if got[0].Name != "First" || got[0].Difficulty != 1 || got[0].Position.X != 36 {
		t.Fatalf("record fields mangled: %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(base) {
		t.Fatalf("created_at: got %v want %v", got[0].CreatedAt, base)
	}
}

func TestStructures_UpdatePosition(t *testing.T) {
	s := openTest(t)
	r := BuiltStructure{ID: "s1", BlueprintID: "bp", Name: "n", CreatedAt: time.Now().UTC()}
	if err := s.SaveStructure(r); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.UpdateStructurePosition("s1", grid.WorldPos{X: 60, Z: 84}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.LoadStructures()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got[0].Position.X != 60 || got[0].Position.Z != 84 {
		t.Fatalf("position: %+v", got[0].Position)
	}
}

func TestStructures_DeleteAndDeleteAll(t *testing.T) {
	s := openTest(t)
	now := time.Now().UTC()
	_ = s.SaveStructure(BuiltStructure{ID: "x", BlueprintID: "bp", Name: "n", CreatedAt: now})
	_ = s.SaveStructure(BuiltStructure{ID: "y", BlueprintID: "bp", Name: "n", CreatedAt: now})

	if err := s.DeleteStructure("x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := s.LoadStructures()
	if len(got) != 1 || got[0].ID != "y" {
		t.Fatalf("after delete: %+v", got)
	}
	if err := s.DeleteAllStructures(); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	got, _ = s.LoadStructures()
	if len(got) != 0 {
		t.Fatalf("after delete all: %+v", got)
	}
}

func TestMappings_WriteDedupeAndReadBack(t *testing.T) {
	s := openTest(t)
	e := mapping.AuditEntry{Kind: "name", SourceName: "mystery_block", MappedType: "stone", Fallback: true, SourceFile: "ruin.nbt"}
	s.WriteMapping(e)
	s.WriteMapping(e) // same key: INSERT OR IGNORE keeps one row
	s.WriteMapping(mapping.AuditEntry{Kind: "id", SourceID: 17, MappedType: "log", SourceFile: "hut.schematic"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	names, err := s.NameMappings()
	if err != nil {
		t.Fatalf("name mappings: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("name rows: got %d want 1", len(names))
	}
	if names[0].SourceName != "mystery_block" || names[0].MappedType != "stone" || !names[0].Fallback || names[0].SourceFile != "ruin.nbt" {
		t.Fatalf("name row: %+v", names[0])
	}

	ids, err := s.IDMappings()
	if err != nil {
		t.Fatalf("id mappings: %v", err)
	}
	if len(ids) != 1 || ids[0].SourceID != 17 || ids[0].MappedType != "log" {
		t.Fatalf("id rows: %+v", ids)
	}
}

func TestMappings_SurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.db")

	s, err := Open(path, 64)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.WriteMapping(mapping.AuditEntry{Kind: "id", SourceID: 1, MappedType: "stone", SourceFile: "f"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path, 64)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	ids, err := s2.IDMappings()
	if err != nil {
		t.Fatalf("id mappings: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("id rows after reopen: %d", len(ids))
	}
}

func TestWriteMapping_AfterCloseIsNoop(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "forge.db"), 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Close()
	// Must not panic on a closed store.
	s.WriteMapping(mapping.AuditEntry{Kind: "id", SourceID: 1, MappedType: "stone", SourceFile: "f"})
}
