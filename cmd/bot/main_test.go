package main

import (
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelgarden.ai/internal/protocol"
	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/grid"
	"voxelgarden.ai/internal/sim/interact"
	"voxelgarden.ai/internal/sim/world"
)

func TestPointerAbove_HitsColumnSurface(t *testing.T) {
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := world.New(world.WorldConfig{AirDepth: 16, ClearOnStart: []string{"hay"}}, cats)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if _, err := w.Populate(); err != nil {
		t.Fatalf("populate: %v", err)
	}

	for _, col := range [][2]int{{0, 0}, {5, 6}, {15, 15}} {
		p := pointerAbove(w.Dims(), col[0], col[1])
		ray, ok := interact.RayFromNDC(mgl32.Vec2(p.NDC), mgl32.Mat4(p.View), mgl32.Mat4(p.Proj))
		if !ok {
			t.Fatalf("singular camera for %v", col)
		}
		tgt, out := interact.NewResolver(w).Resolve(interact.ModeDig, ray)
		if out != world.Applied {
			t.Fatalf("column %v: %s", col, out)
		}
		if want := (grid.Cell{I: col[0], J: col[1], K: 22}); tgt.Cell != want {
			t.Fatalf("column %v: got %v want %v", col, tgt.Cell, want)
		}
	}
}

func TestBot_NextFollowsWelcomeAndLedger(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	b := &bot{r: rand.New(rand.NewSource(1)), ledger: map[string]int{}}
	if _, ok := b.next(); ok {
		t.Fatalf("acted before WELCOME")
	}

	welcome, _ := json.Marshal(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		WorldParams:     protocol.WorldParams{GridSize: 16, GridDepth: 40, ChunkSize: [3]int{8, 8, 40}, NumChunks: 4, TileSize: 4},
		Blocks: []protocol.BlockRule{
			{ID: "stone", Placeable: true, Breakable: true},
			{ID: "tree", Placeable: true, Structure: true},
		},
	})
	b.handle(quiet, welcome)
	if len(b.blocks) != 1 || b.blocks[0] != "stone" {
		t.Fatalf("placeable blocks: %v", b.blocks)
	}

	// Nothing to spend: every act is a dig.
	for n := 0; n < 10; n++ {
		act, ok := b.next()
		if !ok || act.Action != protocol.ActDig || act.Pointer == nil || act.Cell != nil {
			t.Fatalf("act %d: %+v", n, act)
		}
	}

	ledger, _ := json.Marshal(protocol.LedgerMsg{Type: protocol.TypeLedger, ProtocolVersion: protocol.Version, Resources: map[string]int{"stone": 3}})
	b.handle(quiet, ledger)
	builds := 0
	for n := 0; n < 50; n++ {
		if act, _ := b.next(); act.Action == protocol.ActBuild {
			if act.Block != "stone" {
				t.Fatalf("build block: %q", act.Block)
			}
			builds++
		}
	}
	if builds == 0 {
		t.Fatalf("no builds once stone was affordable")
	}
}
