package protocol

import "encoding/json"

const Version = "1.0"

// Event types pushed to renderer collaborators.
const (
	TypeStructureBuilt       = "structure_built"
	TypeStructureDeleted     = "structure_deleted"
	TypeAllStructuresDeleted = "all_structures_deleted"
	TypeStructuresReloaded   = "structures_reloaded"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
