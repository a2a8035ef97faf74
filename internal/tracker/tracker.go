// Package tracker runs the per-blueprint completion state machine, fed by
// externally reported block collected/removed events.
package tracker

import (
	"blockforge.app/internal/blocks"
	"blockforge.app/internal/blueprint"
	"blockforge.app/internal/schematic"
)

type State int

const (
	Empty State = iota
	InProgress
	Complete
	PermanentlyPlaced
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	case PermanentlyPlaced:
		return "permanently_placed"
	default:
		return "unknown"
	}
}

type cell struct {
	typ  string
	pos  schematic.Position
	done bool
}

// Session tracks one in-progress build of a blueprint. All recomputation is
// a bounded pass over the fixed cell list; malformed entries are skipped and
// counted, never recursed into.
type Session struct {
	bp    *blueprint.Blueprint
	state State

	cells     []cell
	completed int

	guardViolations int
}

// NewSession builds a session over bp. Air cells are excluded from the
// requirement list. Entries with an empty type, an out-of-bounds position,
// or a duplicate position are treated as malformed and skipped.
func NewSession(bp *blueprint.Blueprint) *Session {
	s := &Session{bp: bp, state: Empty}
	seen := make(map[schematic.Position]struct{})
	for _, b := range bp.Blocks() {
		if b.Type == blocks.Air {
			continue
		}
		if b.Type == "" {
			s.guardViolations++
			continue
		}
		p := b.Pos
		d := bp.Dims
		if p.X < 0 || p.X >= d.W || p.Y < 0 || p.Y >= d.H || p.Z < 0 || p.Z >= d.L {
			s.guardViolations++
			continue
		}
		if _, dup := seen[p]; dup {
			s.guardViolations++
			continue
		}
		seen[p] = struct{}{}
		s.cells = append(s.cells, cell{typ: b.Type, pos: p})
	}
	return s
}

func (s *Session) BlueprintID() string { return s.bp.ID }
func (s *Session) State() State        { return s.state }

// TotalNonAir is the number of blocks required for completion.
func (s *Session) TotalNonAir() int { return len(s.cells) }

// CompletedCount is how many required blocks have been collected.
func (s *Session) CompletedCount() int { return s.completed }

// GuardViolations counts malformed blueprint entries skipped at session
// construction.
func (s *Session) GuardViolations() int { return s.guardViolations }

// Progress is in [0,1]. A session with nothing to build reports 0.
func (s *Session) Progress() float64 {
	if len(s.cells) == 0 {
		return 0
	}
	return float64(s.completed) / float64(len(s.cells))
}

func (s *Session) IsComplete() bool {
	return s.state == Complete || s.state == PermanentlyPlaced
}

func (s *Session) IsPermanentlyPlaced() bool {
	return s.state == PermanentlyPlaced
}

// OnBlockCollected records a collected block. Air is ignored. The cell at
// pos is completed when it requires blockType; otherwise the first
// uncompleted cell of that type (in blueprint order) is used. Returns true
// when the event changed progress.
func (s *Session) OnBlockCollected(blockType string, pos schematic.Position) bool {
	if blockType == blocks.Air || blockType == "" {
		return false
	}
	if s.state == PermanentlyPlaced {
		return false
	}

	idx := -1
	for i := range s.cells {
		if s.cells[i].done || s.cells[i].typ != blockType {
			continue
		}
		if s.cells[i].pos == pos {
			idx = i
			break
		}
		if idx == -1 {
			idx = i
		}
	}
	if idx == -1 {
		return false
	}
	s.cells[idx].done = true
	s.completed++
	s.recomputeState()
	return true
}

// OnBlockRemoved revokes one completed block of blockType, if any. Used
// when a gameplay event takes back a previously collected block. May move
// the session from Complete back to InProgress.
func (s *Session) OnBlockRemoved(blockType string) bool {
	if blockType == blocks.Air || blockType == "" {
		return false
	}
	if s.state == PermanentlyPlaced {
		return false
	}
	for i := len(s.cells) - 1; i >= 0; i-- {
		if s.cells[i].done && s.cells[i].typ == blockType {
			s.cells[i].done = false
			s.completed--
			s.recomputeState()
			return true
		}
	}
	return false
}

// OnBuildConfirmed moves Complete to PermanentlyPlaced and reports whether
// the transition happened. Repeat confirmations while already placed are
// no-ops, so duplicate build requests cannot re-trigger placement.
func (s *Session) OnBuildConfirmed() bool {
	if s.state != Complete {
		return false
	}
	s.state = PermanentlyPlaced
	return true
}

// Reset returns the session to Empty, discarding all collected blocks.
func (s *Session) Reset() {
	for i := range s.cells {
		s.cells[i].done = false
	}
	s.completed = 0
	s.state = Empty
}

// CompletedPositions returns the positions collected so far, in blueprint
// order.
func (s *Session) CompletedPositions() []schematic.Position {
	out := make([]schematic.Position, 0, s.completed)
	for i := range s.cells {
		if s.cells[i].done {
			out = append(out, s.cells[i].pos)
		}
	}
	return out
}

func (s *Session) recomputeState() {
	switch {
	case s.completed >= len(s.cells) && len(s.cells) > 0:
		s.state = Complete
	case s.completed > 0:
		s.state = InProgress
	default:
		s.state = Empty
	}
}
