package tracker

import (
	"testing"

	"blockforge.app/internal/blocks"
	"blockforge.app/internal/blueprint"
	"blockforge.app/internal/schematic"
)

func mustBlueprint(t *testing.T, dims schematic.Dimensions, bl []blueprint.Block, id string) *blueprint.Blueprint {
	t.Helper()
	bp, err := blueprint.NewBuilder(blocks.Builtin()).Build(dims, bl, blueprint.Meta{ID: id, Name: id})
	if err != nil {
		t.Fatalf("build %s: %v", id, err)
	}
	return bp
}

func stoneSquare(t *testing.T) *blueprint.Blueprint {
	// 2x1x2 with 4 stone blocks.
	return mustBlueprint(t, schematic.Dimensions{W: 2, H: 1, L: 2}, []blueprint.Block{
		{Type: "stone", Pos: schematic.Position{X: 0, Y: 0, Z: 0}},
		{Type: "stone", Pos: schematic.Position{X: 1, Y: 0, Z: 0}},
		{Type: "stone", Pos: schematic.Position{X: 0, Y: 0, Z: 1}},
		{Type: "stone", Pos: schematic.Position{X: 1, Y: 0, Z: 1}},
	}, "square")
}

func TestSession_CollectAllCompletes(t *testing.T) {
	s := NewSession(stoneSquare(t))
	if s.State() != Empty {
		t.Fatalf("initial state: %v", s.State())
	}
	for i := 0; i < 4; i++ {
		if !s.OnBlockCollected("stone", schematic.Position{}) {
			t.Fatalf("collect %d rejected", i)
		}
	}
	if !s.IsComplete() || s.State() != Complete {
		t.Fatalf("state after 4 collects: %v", s.State())
	}
	if got := s.Progress(); got != 1 {
		t.Fatalf("progress: got %v want 1", got)
	}
}

func TestSession_PartialProgress(t *testing.T) {
	s := NewSession(stoneSquare(t))
	for i := 0; i < 3; i++ {
		s.OnBlockCollected("stone", schematic.Position{})
	}
	if got := s.Progress(); got != 0.75 {
		t.Fatalf("progress: got %v want 0.75", got)
	}
	if s.IsComplete() {
		t.Fatalf("complete after 3 of 4")
	}
	if s.State() != InProgress {
		t.Fatalf("state: %v", s.State())
	}
}

func TestSession_AirNeverCounted(t *testing.T) {
	// 10 cells: 6 air + 4 stone. Air neither counts nor is required.
	bl := []blueprint.Block{
		{Type: "stone", Pos: schematic.Position{X: 0, Y: 0, Z: 0}},
		{Type: "stone", Pos: schematic.Position{X: 1, Y: 0, Z: 0}},
		{Type: "stone", Pos: schematic.Position{X: 2, Y: 0, Z: 0}},
		{Type: "stone", Pos: schematic.Position{X: 3, Y: 0, Z: 0}},
	}
	for i := 4; i < 10; i++ {
		bl = append(bl, blueprint.Block{Type: "air", Pos: schematic.Position{X: i % 5, Y: 0, Z: i / 5}})
	}
	bp := mustBlueprint(t, schematic.Dimensions{W: 5, H: 1, L: 2}, bl, "airy")

	s := NewSession(bp)
	if got := s.TotalNonAir(); got != 4 {
		t.Fatalf("total non-air: got %d want 4", got)
	}
	if s.OnBlockCollected("air", schematic.Position{}) {
		t.Fatalf("air collection must be ignored")
	}
	for i := 0; i < 4; i++ {
		s.OnBlockCollected("stone", schematic.Position{})
	}
	if !s.IsComplete() {
		t.Fatalf("expected completion independent of air cells")
	}
}

func TestSession_WrongTypeIgnored(t *testing.T) {
	s := NewSession(stoneSquare(t))
	if s.OnBlockCollected("plank", schematic.Position{}) {
		t.Fatalf("collect of unrequired type must not change progress")
	}
	if s.Progress() != 0 {
		t.Fatalf("progress: %v", s.Progress())
	}
}

func TestSession_RemoveRevertsCompletion(t *testing.T) {
	s := NewSession(stoneSquare(t))
	for i := 0; i < 4; i++ {
		s.OnBlockCollected("stone", schematic.Position{})
	}
	if !s.OnBlockRemoved("stone") {
		t.Fatalf("remove rejected")
	}
	if s.State() != InProgress {
		t.Fatalf("state after removal: %v", s.State())
	}
	if got := s.Progress(); got != 0.75 {
		t.Fatalf("progress after removal: got %v", got)
	}
	if s.OnBlockRemoved("plank") {
		t.Fatalf("removal of uncollected type must be a no-op")
	}
}

func TestSession_ConfirmOnlyFromComplete(t *testing.T) {
	s := NewSession(stoneSquare(t))
	if s.OnBuildConfirmed() {
		t.Fatalf("confirm from empty must fail")
	}
	for i := 0; i < 4; i++ {
		s.OnBlockCollected("stone", schematic.Position{})
	}
	if !s.OnBuildConfirmed() {
		t.Fatalf("confirm from complete must transition")
	}
	if !s.IsPermanentlyPlaced() {
		t.Fatalf("state: %v", s.State())
	}
	// Duplicate confirmation is a guarded no-op.
	if s.OnBuildConfirmed() {
		t.Fatalf("duplicate confirm must not re-trigger placement")
	}
	// Terminal state ignores further events.
	if s.OnBlockRemoved("stone") {
		t.Fatalf("placed session must ignore removals")
	}
	if s.OnBlockCollected("stone", schematic.Position{}) {
		t.Fatalf("placed session must ignore collections")
	}
}

func TestSession_Reset(t *testing.T) {
	s := NewSession(stoneSquare(t))
	for i := 0; i < 4; i++ {
		s.OnBlockCollected("stone", schematic.Position{})
	}
	s.Reset()
	if s.State() != Empty || s.CompletedCount() != 0 || s.Progress() != 0 {
		t.Fatalf("reset left state=%v completed=%d", s.State(), s.CompletedCount())
	}
	// The session is reusable after reset.
	s.OnBlockCollected("stone", schematic.Position{})
	if s.State() != InProgress {
		t.Fatalf("state after re-collect: %v", s.State())
	}
}

func TestSession_PositionPreferredWhenMatching(t *testing.T) {
	s := NewSession(stoneSquare(t))
	target := schematic.Position{X: 1, Y: 0, Z: 1}
	if !s.OnBlockCollected("stone", target) {
		t.Fatalf("collect rejected")
	}
	got := s.CompletedPositions()
	if len(got) != 1 || got[0] != target {
		t.Fatalf("completed positions: %v", got)
	}
}

func TestSession_DuplicatePositionsSkipped(t *testing.T) {
	// Two entries sharing one cell: the duplicate is a malformed entry and
	// is skipped rather than double-counted.
	bp := mustBlueprint(t, schematic.Dimensions{W: 2, H: 1, L: 1}, []blueprint.Block{
		{Type: "stone", Pos: schematic.Position{X: 0, Y: 0, Z: 0}},
		{Type: "plank", Pos: schematic.Position{X: 0, Y: 0, Z: 0}},
		{Type: "stone", Pos: schematic.Position{X: 1, Y: 0, Z: 0}},
	}, "dup")
	s := NewSession(bp)
	if got := s.TotalNonAir(); got != 2 {
		t.Fatalf("total non-air: got %d want 2", got)
	}
	if got := s.GuardViolations(); got != 1 {
		t.Fatalf("guard violations: got %d want 1", got)
	}
	s.OnBlockCollected("stone", schematic.Position{})
	s.OnBlockCollected("stone", schematic.Position{})
	if !s.IsComplete() {
		t.Fatalf("completion must depend only on well-formed cells")
	}
}
