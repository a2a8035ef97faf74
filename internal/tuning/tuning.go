package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Grid GridConfig `yaml:"grid"`

	StructuresDir string `yaml:"structures_dir"`
	DataDir       string `yaml:"data_dir"`

	// AuditBuffer is the capacity of the mapping-audit queue. Writes beyond
	// it are dropped rather than stalling the mapper.
	AuditBuffer int `yaml:"audit_buffer"`
}

type GridConfig struct {
	Width  int `yaml:"width"`
	Length int `yaml:"length"`

	// CellSize is the world-space edge length of one grid cell.
	CellSize float64 `yaml:"cell_size"`

	OriginX float64 `yaml:"origin_x"`
	OriginZ float64 `yaml:"origin_z"`
}

func Defaults() Tuning {
	return Tuning{
		Grid: GridConfig{
			Width:    8,
			Length:   8,
			CellSize: 24,
			OriginX:  -96,
			OriginZ:  -96,
		},
		StructuresDir: "./structures",
		DataDir:       "./data",
		AuditBuffer:   8192,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.Grid.Width <= 0 || t.Grid.Length <= 0 {
		return t, fmt.Errorf("tuning.yaml: grid dimensions must be positive")
	}
	if t.Grid.CellSize <= 0 {
		return t, fmt.Errorf("tuning.yaml: grid cell_size must be positive")
	}
	return t, nil
}
