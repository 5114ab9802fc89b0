package world

import (
	"sync"
	"testing"

	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/grid"
)

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	w, err := New(cfg, loadCatalogs(t))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

// newPopulatedWorld builds the default 16x16x40 world and runs the startup fill.
func newPopulatedWorld(t *testing.T) *World {
	t.Helper()
	w := newTestWorld(t, WorldConfig{
		Seed:              42,
		AirDepth:          16,
		SeedTree:          true,
		ClearOnStart:      []string{"hay"},
		StartingResources: map[string]int{"stone": 50, "hay": 50},
	})
	if _, err := w.Populate(); err != nil {
		t.Fatalf("populate: %v", err)
	}
	return w
}

func mustApply(t *testing.T, res Result) {
	t.Helper()
	if !res.OK() {
		t.Fatalf("%s %s at %v: %s (%s)", res.Action, res.Block, res.Cell, res.Outcome, res.Reason)
	}
}

func mustInvariants(t *testing.T, w *World) {
	t.Helper()
	if err := w.checkInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func cell(i, j, k int) grid.Cell { return grid.Cell{I: i, J: j, K: k} }

// trunkCells lists where the bottom layer of tt lands when planted on base.
func trunkCells(tt catalogs.TreeTemplate, base grid.Cell) []grid.Cell {
	layer := tt.Layers[0]
	k := base.K + treeLayerOffset(len(tt.Layers), 0)
	var out []grid.Cell
	for r, row := range layer {
		for c, block := range row {
			if block != "" {
				out = append(out, grid.Cell{I: base.I + c - len(layer[0])/2, J: base.J + r - len(layer)/2, K: k})
			}
		}
	}
	return out
}

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *memAudit) WriteAudit(e AuditEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *memAudit) all() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.entries...)
}
