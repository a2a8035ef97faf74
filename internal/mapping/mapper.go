// Package mapping converts external block keys (legacy numeric ids or
// namespaced names) into the internal block vocabulary. Resolution is
// deterministic: air-equivalents collapse to "air", everything unresolved
// falls back to "stone", and every distinct lookup leaves exactly one audit
// entry.
package mapping

import (
	"strings"
	"sync"
	"sync/atomic"

	"blockforge.app/internal/blocks"
)

type Kind int

const (
	KindID Kind = iota + 1
	KindName
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindName:
		return "name"
	default:
		return "unknown"
	}
}

// Key is an external block identifier. ID is meaningful for KindID, Name
// for KindName.
type Key struct {
	Kind Kind
	ID   int
	Name string
}

// AuditEntry is the append-only record of one mapping decision. Entries are
// deduplicated upstream by (kind, source key, source file).
type AuditEntry struct {
	Kind       string `json:"kind"`
	SourceID   int    `json:"source_id,omitempty"`
	SourceName string `json:"source_name,omitempty"`
	MappedType string `json:"mapped_type"`
	Fallback   bool   `json:"fallback"`
	SourceFile string `json:"source_file"`
}

// AuditSink receives audit entries. Implementations must not block; a full
// sink drops entries rather than stalling the mapper.
type AuditSink interface {
	WriteMapping(AuditEntry)
}

type cacheKey struct {
	kind Kind
	id   int
	name string
	file string
}

type Mapper struct {
	reg  *blocks.Registry
	sink AuditSink

	mu    sync.Mutex
	cache map[cacheKey]string

	fallbacks atomic.Uint64
}

// New builds a mapper over the given registry. sink may be nil, in which
// case audit entries are discarded.
func New(reg *blocks.Registry, sink AuditSink) *Mapper {
	return &Mapper{
		reg:   reg,
		sink:  sink,
		cache: make(map[cacheKey]string),
	}
}

// Map resolves key to an internal block type id. Repeated lookups with the
// same (kind, key, sourceFile) hit the cache and produce no further audit
// entries.
func (m *Mapper) Map(key Key, sourceFile string) string {
	ck := cacheKey{kind: key.Kind, id: key.ID, name: normalizeName(key.Name), file: sourceFile}
	if key.Kind == KindID {
		ck.name = ""
	}

	m.mu.Lock()
	if mapped, ok := m.cache[ck]; ok {
		m.mu.Unlock()
		return mapped
	}
	mapped, fallback := m.resolve(key)
	m.cache[ck] = mapped
	m.mu.Unlock()

	if fallback {
		m.fallbacks.Add(1)
	}
	if m.sink != nil {
		m.sink.WriteMapping(AuditEntry{
			Kind:       key.Kind.String(),
			SourceID:   key.ID,
			SourceName: key.Name,
			MappedType: mapped,
			Fallback:   fallback,
			SourceFile: sourceFile,
		})
	}
	return mapped
}

// Fallbacks returns how many distinct lookups resolved via the fallback.
func (m *Mapper) Fallbacks() uint64 { return m.fallbacks.Load() }

func (m *Mapper) resolve(key Key) (mapped string, fallback bool) {
	switch key.Kind {
	case KindID:
		if key.ID == 0 {
			return blocks.Air, false
		}
		if t, ok := idTable[key.ID]; ok && m.reg.Has(t) {
			return t, false
		}
		return blocks.Fallback, true
	case KindName:
		name := normalizeName(key.Name)
		if _, air := airNames[name]; air {
			return blocks.Air, false
		}
		if t, ok := nameAliases[name]; ok && m.reg.Has(t) {
			return t, false
		}
		if m.reg.Has(name) {
			return name, false
		}
		return blocks.Fallback, true
	default:
		return blocks.Fallback, true
	}
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "minecraft:")
	return name
}

var airNames = map[string]struct{}{
	"air":      {},
	"cave_air": {},
	"void_air": {},
}

// idTable covers the legacy numeric vocabulary. Keys absent here (or whose
// target is missing from the registry) fall back to "stone".
var idTable = map[int]string{
	1:   "stone",
	2:   "grass",
	3:   "dirt",
	4:   "cobblestone",
	5:   "plank",
	8:   "water",
	9:   "water",
	10:  "lava",
	11:  "lava",
	12:  "sand",
	13:  "gravel",
	17:  "log",
	18:  "leaves",
	20:  "glass",
	24:  "sandstone",
	35:  "wool",
	41:  "gold_block",
	42:  "iron_block",
	43:  "slab",
	44:  "slab",
	45:  "brick",
	49:  "obsidian",
	50:  "torch",
	53:  "stairs",
	57:  "diamond_block",
	64:  "door",
	78:  "snow",
	79:  "ice",
	85:  "fence",
	89:  "glowstone",
	98:  "brick",
	126: "slab",
	134: "stairs",
}

// nameAliases maps external spellings onto registry ids. Names that already
// match a registry id verbatim need no entry here.
var nameAliases = map[string]string{
	"planks":        "plank",
	"oak_planks":    "plank",
	"spruce_planks": "plank",
	"birch_planks":  "plank",
	"wood":          "log",
	"oak_log":       "log",
	"spruce_log":    "log",
	"birch_log":     "log",
	"grass_block":   "grass",
	"bricks":        "brick",
	"brick_block":   "brick",
	"stone_bricks":  "brick",
	"stone_slab":    "slab",
	"oak_slab":      "slab",
	"oak_stairs":    "stairs",
	"stone_stairs":  "stairs",
	"oak_door":      "door",
	"wooden_door":   "door",
	"oak_fence":     "fence",
	"white_wool":    "wool",
	"snow_block":    "snow",
	"flowing_water": "water",
	"flowing_lava":  "lava",
	"stonebrick":    "brick",
	"lit_pumpkin":   "glowstone",
}
