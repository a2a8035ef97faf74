package protocol

import (
	"time"

	"blockforge.app/internal/blueprint"
	"blockforge.app/internal/grid"
	"blockforge.app/internal/store"
)

// BlueprintDoc is the exchange shape consumed by the renderer.
type BlueprintDoc struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Difficulty       int        `json:"difficulty"`
	Dimensions       DimsDoc    `json:"dimensions"`
	Blocks           []BlockDoc `json:"blocks"`
	FromFile         bool       `json:"fromFile"`
	OriginalFilename string     `json:"originalFilename,omitempty"`
}

type DimsDoc struct {
	W int `json:"w"`
	H int `json:"h"`
	L int `json:"l"`
}

type BlockDoc struct {
	BlockTypeID string `json:"blockTypeId"`
	Position    PosDoc `json:"position"`
}

type PosDoc struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// StructureDoc is the persisted-record shape exposed over HTTP.
type StructureDoc struct {
	ID          string        `json:"id"`
	BlueprintID string        `json:"blueprintId"`
	Name        string        `json:"name"`
	Difficulty  int           `json:"difficulty"`
	Position    grid.WorldPos `json:"position"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// FromBlueprint flattens a blueprint into its exchange document.
func FromBlueprint(bp *blueprint.Blueprint) BlueprintDoc {
	blocks := bp.Blocks()
	doc := BlueprintDoc{
		ID:               bp.ID,
		Name:             bp.Name,
		Difficulty:       bp.Difficulty,
		Dimensions:       DimsDoc{W: bp.Dims.W, H: bp.Dims.H, L: bp.Dims.L},
		Blocks:           make([]BlockDoc, 0, len(blocks)),
		FromFile:         bp.FromFile,
		OriginalFilename: bp.OriginalFilename,
	}
	for _, b := range blocks {
		doc.Blocks = append(doc.Blocks, BlockDoc{
			BlockTypeID: b.Type,
			Position:    PosDoc{X: b.Pos.X, Y: b.Pos.Y, Z: b.Pos.Z},
		})
	}
	return doc
}

// FromStructure converts a store record into its exchange document.
func FromStructure(b store.BuiltStructure) StructureDoc {
	return StructureDoc{
		ID:          b.ID,
		BlueprintID: b.BlueprintID,
		Name:        b.Name,
		Difficulty:  b.Difficulty,
		Position:    b.Position,
		CreatedAt:   b.CreatedAt,
	}
}

// StructureBuiltMsg announces a confirmed, persisted build.
type StructureBuiltMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	StructureID     string        `json:"structure_id"`
	BlueprintID     string        `json:"blueprint_id"`
	Name            string        `json:"name"`
	Difficulty      int           `json:"difficulty"`
	Position        grid.WorldPos `json:"position"`
}

// StructureDeletedMsg announces removal of one structure.
type StructureDeletedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	StructureID     string `json:"structure_id"`
}

// AllStructuresDeletedMsg announces a full wipe.
type AllStructuresDeletedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// StructuresReloadedMsg announces that the blueprint cache was rebuilt.
type StructuresReloadedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Blueprints      int    `json:"blueprints"`
}

// ErrorDoc is the HTTP error envelope.
type ErrorDoc struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
