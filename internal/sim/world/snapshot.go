package world

import (
	"errors"
	"fmt"
	"time"

	"voxelgarden.ai/internal/persistence/snapshot"
	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/grid"
)

var ErrPaletteMismatch = errors.New("snapshot palette digest does not match catalog")

func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Seq:     w.seq.Load(),
			UnixMs:  time.Now().UnixMilli(),
		},
		Seed:          w.cfg.Seed,
		GridSize:      w.cfg.GridSize,
		GridDepth:     w.cfg.GridDepth,
		SoilDepth:     w.cfg.SoilDepth,
		AirDepth:      w.cfg.AirDepth,
		TileSize:      w.cfg.TileSize,
		ChunkSize:     w.cfg.ChunkSize,
		PaletteDigest: w.catalogs.Blocks.PaletteDigest,
		Ledger:        w.ledger.snapshot(),
	}
	for _, ch := range w.chunks {
		if ch.Len() == 0 {
			continue
		}
		cv := snapshot.ChunkV1{Index: ch.Index}
		for ti, block := range w.layout.names {
			coords := ch.tables[ti].coords
			if len(coords) == 0 {
				continue
			}
			tv := snapshot.TableV1{Block: block, Cells: make([][3]int, len(coords))}
			for i, c := range coords {
				tv.Cells[i] = c.Array()
			}
			cv.Tables = append(cv.Tables, tv)
		}
		snap.Chunks = append(snap.Chunks, cv)
	}
	return snap
}

// ConfigFromSnapshot rebuilds the world parameters a snapshot was taken with. Startup-only
// settings (tree seeding, clears) are left off since the instance tables already reflect them.
func ConfigFromSnapshot(snap snapshot.SnapshotV1) WorldConfig {
	return WorldConfig{
		ID:                snap.Header.WorldID,
		GridSize:          snap.GridSize,
		GridDepth:         snap.GridDepth,
		SoilDepth:         snap.SoilDepth,
		AirDepth:          snap.AirDepth,
		TileSize:          snap.TileSize,
		ChunkSize:         snap.ChunkSize,
		Seed:              snap.Seed,
		StartingResources: snap.Ledger,
	}
}

// ImportSnapshot creates a world from snap. Instances are re-added in slot order, so slot
// indices match the exporting world.
func ImportSnapshot(snap snapshot.SnapshotV1, cats *catalogs.Catalogs) (*World, error) {
	if snap.PaletteDigest != "" && snap.PaletteDigest != cats.Blocks.PaletteDigest {
		return nil, fmt.Errorf("world: import: %w", ErrPaletteMismatch)
	}
	w, err := New(ConfigFromSnapshot(snap), cats)
	if err != nil {
		return nil, err
	}
	for _, cv := range snap.Chunks {
		if cv.Index < 0 || cv.Index >= len(w.chunks) {
			return nil, fmt.Errorf("world: import: chunk index %d of %d", cv.Index, len(w.chunks))
		}
		ch := w.chunks[cv.Index]
		for _, tv := range cv.Tables {
			for _, a := range tv.Cells {
				cell := grid.CellFromArray(a)
				if !w.dims.InBounds(cell) {
					return nil, fmt.Errorf("world: import: %w: %v", ErrOutOfBounds, cell)
				}
				if _, err := ch.AddBlock(cell, tv.Block); err != nil {
					return nil, fmt.Errorf("world: import chunk %d: %w", cv.Index, err)
				}
			}
		}
		ch.Finalize()
	}
	w.seq.Store(snap.Header.Seq)
	return w, nil
}
