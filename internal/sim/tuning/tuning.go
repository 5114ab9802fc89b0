package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	GridSize  int     `yaml:"grid_size"`
	GridDepth int     `yaml:"grid_depth"`
	SoilDepth int     `yaml:"soil_depth"`
	AirDepth  int     `yaml:"air_depth"`
	TileSize  float32 `yaml:"tile_size"`
	ChunkSize []int   `yaml:"chunk_size"`

	Seed         int64    `yaml:"seed"`
	SeedTree     *bool    `yaml:"seed_tree"`
	ClearOnStart []string `yaml:"clear_on_start"`

	StartingResources map[string]int `yaml:"starting_resources"`

	Growth Growth `yaml:"growth"`

	SnapshotOnExit bool `yaml:"snapshot_on_exit"`
}

type Growth struct {
	IntervalMs int     `yaml:"interval_ms"`
	MaxPct     float64 `yaml:"max_pct"`
	Source     string  `yaml:"source"`
	Grows      string  `yaml:"grows"`
}

// Defaults mirrors configs/tuning.yaml.
func Defaults() Tuning {
	seedTree := true
	return Tuning{
		GridSize:     16,
		GridDepth:    40,
		SoilDepth:    4,
		AirDepth:     16,
		TileSize:     4,
		ChunkSize:    []int{8, 8, 40},
		Seed:         1337,
		SeedTree:     &seedTree,
		ClearOnStart: []string{"hay"},
		StartingResources: map[string]int{
			"hay":    50,
			"stone":  50,
			"grass":  50,
			"soil":   50,
			"wood":   50,
			"leaves": 50,
		},
		Growth: Growth{
			IntervalMs: 5000,
			MaxPct:     0.001,
			Source:     "grass",
			Grows:      "hay",
		},
		SnapshotOnExit: true,
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
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if len(t.ChunkSize) != 3 {
		return fmt.Errorf("chunk_size must have 3 entries, got %d", len(t.ChunkSize))
	}
	if t.SoilDepth < 0 || t.AirDepth < 0 {
		return fmt.Errorf("soil_depth and air_depth must not be negative")
	}
	if t.SoilDepth+t.AirDepth > t.GridDepth {
		return fmt.Errorf("soil_depth+air_depth (%d) exceeds grid_depth (%d)", t.SoilDepth+t.AirDepth, t.GridDepth)
	}
	if t.Growth.MaxPct < 0 || t.Growth.MaxPct > 1 {
		return fmt.Errorf("growth.max_pct must be within [0,1], got %v", t.Growth.MaxPct)
	}
	return nil
}

func (t Tuning) ChunkSize3() [3]int {
	var out [3]int
	copy(out[:], t.ChunkSize)
	return out
}

func (t Tuning) SeedTreeEnabled() bool {
	return t.SeedTree == nil || *t.SeedTree
}
