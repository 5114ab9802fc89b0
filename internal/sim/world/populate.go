package world

import (
	"fmt"

	"voxelgarden.ai/internal/sim/grid"
)

// Strata names used by the fill rule. They must exist in the block catalog.
const (
	BlockStone = "stone"
	BlockSoil  = "soil"
	BlockGrass = "grass"
	BlockHay   = "hay"
	BlockTree  = "tree"
)

type PopulateReport struct {
	Filled  map[string]int
	Cleared map[string]int
	Tree    Result
}

// StratumAt returns the block the fill rule places at depth k, or "" outside the grid.
// Hay fills everything from soil+3 to the top; AirDepth only moves the soil line.
func (c WorldConfig) StratumAt(k int) string {
	soil := c.SoilStart()
	switch {
	case k < 0 || k >= c.GridDepth:
		return ""
	case k >= soil+3:
		return BlockHay
	case k == soil+2:
		return BlockGrass
	case k >= soil:
		return BlockSoil
	default:
		return BlockStone
	}
}

// Populate runs the startup fill on an empty world: strata by depth, the ClearOnStart
// removals, then one tree over the first grass cell of the center column.
func (w *World) Populate() (PopulateReport, error) {
	rep := PopulateReport{Filled: map[string]int{}, Cleared: map[string]int{}}

	w.mu.Lock()
	for _, ch := range w.chunks {
		if ch.Len() > 0 {
			w.mu.Unlock()
			return rep, fmt.Errorf("world: populate: chunk %d is not empty", ch.Index)
		}
	}
	for k := 0; k < w.dims.GridDepth; k++ {
		block := w.cfg.StratumAt(k)
		if block == "" {
			continue
		}
		for j := 0; j < w.dims.GridSize; j++ {
			for i := 0; i < w.dims.GridSize; i++ {
				cell := grid.Cell{I: i, J: j, K: k}
				if _, err := w.chunkAtLocked(cell).AddBlock(cell, block); err != nil {
					w.mu.Unlock()
					return rep, fmt.Errorf("world: populate %v: %w", cell, err)
				}
				rep.Filled[block]++
			}
		}
	}
	for _, ch := range w.chunks {
		ch.Finalize()
	}
	w.mu.Unlock()

	for _, block := range w.cfg.ClearOnStart {
		res := w.ClearType(block)
		rep.Cleared[block] += res.Removed
	}

	if w.cfg.SeedTree {
		if base, ok := w.firstGrassAtCenter(); ok {
			rep.Tree = w.PlantTree(ActorSystem, base)
		}
	}
	return rep, nil
}

func (w *World) firstGrassAtCenter() (grid.Cell, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	mid := w.dims.GridSize / 2
	for k := 0; k < w.dims.GridDepth; k++ {
		c := grid.Cell{I: mid, J: mid, K: k}
		if b, ok := w.chunkAtLocked(c).TypeAt(c); ok && b == BlockGrass {
			return c, true
		}
	}
	return grid.Cell{}, false
}
