package world

import "voxelgarden.ai/internal/sim/grid"

type WorldConfig struct {
	ID        string
	GridSize  int
	GridDepth int
	SoilDepth int
	AirDepth  int
	TileSize  float32
	ChunkSize [3]int
	Seed      int64

	// SeedTree plants one tree over the first grass cell of the center column during Populate.
	SeedTree bool
	// ClearOnStart removes every instance of these types right after the strata fill.
	ClearOnStart []string

	// StartingResources seeds the player ledger. Nil means an empty ledger.
	StartingResources map[string]int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.GridSize <= 0 {
		c.GridSize = 16
	}
	if c.GridDepth <= 0 {
		c.GridDepth = 40
	}
	if c.SoilDepth <= 0 {
		c.SoilDepth = 4
	}
	if c.AirDepth < 0 {
		c.AirDepth = 0
	}
	if c.TileSize <= 0 {
		c.TileSize = 4
	}
	if c.ChunkSize == ([3]int{}) {
		c.ChunkSize = [3]int{8, 8, c.GridDepth}
	}
}

func (c WorldConfig) Dims() grid.Dims {
	return grid.Dims{
		GridSize:  c.GridSize,
		GridDepth: c.GridDepth,
		ChunkSize: c.ChunkSize,
		TileSize:  c.TileSize,
	}
}

// SoilStart is the first soil layer. Everything below it is stone.
func (c WorldConfig) SoilStart() int {
	ground := c.GridDepth - c.AirDepth
	return ground - c.SoilDepth
}
