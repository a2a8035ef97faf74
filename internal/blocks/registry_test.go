package blocks

import "testing"

func TestBuiltin_AirIsPaletteZero(t *testing.T) {
	r := Builtin()
	if got := r.Palette[0]; got != Air {
		t.Fatalf("palette[0]: got %q want %q", got, Air)
	}
	if got := r.Index[Air]; got != 0 {
		t.Fatalf("index[air]: got %d want 0", got)
	}
	if !r.Has(Fallback) {
		t.Fatalf("builtin registry missing %q", Fallback)
	}
}

func TestBuiltin_PaletteMatchesIndex(t *testing.T) {
	r := Builtin()
	if len(r.Palette) != len(r.Index) {
		t.Fatalf("palette/index size mismatch: %d vs %d", len(r.Palette), len(r.Index))
	}
	for i, id := range r.Palette {
		if r.Index[id] != uint16(i) {
			t.Fatalf("index[%q]: got %d want %d", id, r.Index[id], i)
		}
	}
}

func TestFromDefs_RejectsMissingAir(t *testing.T) {
	if _, err := fromDefs([]Def{{ID: "stone"}}); err == nil {
		t.Fatalf("expected error for defs without air")
	}
}
