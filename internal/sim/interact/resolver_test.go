package interact

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/grid"
	"voxelgarden.ai/internal/sim/world"
)

func newWorld(t *testing.T, ledger map[string]int) *world.World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := world.New(world.WorldConfig{
		Seed:              9,
		AirDepth:          16,
		ClearOnStart:      []string{"hay"},
		StartingResources: ledger,
	}, cats)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if _, err := w.Populate(); err != nil {
		t.Fatalf("populate: %v", err)
	}
	return w
}

// downRay points straight down through the center of column (i,j).
func downRay(w *world.World, i, j int) Ray {
	top := w.Dims().WorldPosition(grid.Cell{I: i, J: j, K: w.Dims().GridDepth - 1})
	return Ray{Origin: top, Dir: mgl32.Vec3{0, -1, 0}}
}

func TestSlab_EntryFaceNormal(t *testing.T) {
	min, max := mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}
	cases := []struct {
		name   string
		ray    Ray
		hit    bool
		t      float32
		normal mgl32.Vec3
	}{
		{"from above", Ray{mgl32.Vec3{0.5, 5, 0.5}, mgl32.Vec3{0, -1, 0}}, true, 4, mgl32.Vec3{0, 1, 0}},
		{"from -x", Ray{mgl32.Vec3{-2, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}}, true, 2, mgl32.Vec3{-1, 0, 0}},
		{"from +z", Ray{mgl32.Vec3{0.5, 0.5, 3}, mgl32.Vec3{0, 0, -1}}, true, 2, mgl32.Vec3{0, 0, 1}},
		{"miss", Ray{mgl32.Vec3{2, 5, 2}, mgl32.Vec3{0, -1, 0}}, false, 0, mgl32.Vec3{}},
		{"behind", Ray{mgl32.Vec3{0.5, -5, 0.5}, mgl32.Vec3{0, -1, 0}}, false, 0, mgl32.Vec3{}},
		{"inside", Ray{mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{0, -1, 0}}, false, 0, mgl32.Vec3{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, n, ok := slab(tc.ray, min, max)
			if ok != tc.hit {
				t.Fatalf("hit: got %v want %v", ok, tc.hit)
			}
			if !ok {
				return
			}
			if got != tc.t || n != tc.normal {
				t.Fatalf("got t=%v n=%v want t=%v n=%v", got, n, tc.t, tc.normal)
			}
		})
	}
}

func TestTopmost(t *testing.T) {
	if _, ok := Topmost(nil); ok {
		t.Fatalf("empty hits should not resolve")
	}
	hits := []Hit{
		{Cell: grid.Cell{K: 1}, Point: mgl32.Vec3{0, 2, 0}, Distance: 5},
		{Cell: grid.Cell{K: 3}, Point: mgl32.Vec3{0, 6, 0}, Distance: 9},
		{Cell: grid.Cell{I: 1, K: 3}, Point: mgl32.Vec3{1, 6, 0}, Distance: 3},
		{Cell: grid.Cell{I: 2, K: 3}, Point: mgl32.Vec3{2, 6, 0}, Distance: 3},
	}
	h, _ := Topmost(hits)
	if h.Cell != (grid.Cell{I: 1, K: 3}) {
		t.Fatalf("got %v", h.Cell)
	}
}

func TestTargetCell(t *testing.T) {
	c := grid.Cell{I: 4, J: 5, K: 6}
	cases := []struct {
		normal mgl32.Vec3
		want   grid.Cell
	}{
		{mgl32.Vec3{0, 1, 0}, grid.Cell{I: 4, J: 5, K: 7}},
		{mgl32.Vec3{0, -1, 0}, grid.Cell{I: 4, J: 5, K: 5}},
		{mgl32.Vec3{1, 0, 0}, grid.Cell{I: 5, J: 5, K: 6}},
		{mgl32.Vec3{-1, 0, 0}, grid.Cell{I: 3, J: 5, K: 6}},
		{mgl32.Vec3{0, 0, 1}, grid.Cell{I: 4, J: 6, K: 6}},
		{mgl32.Vec3{0, 0, -1}, grid.Cell{I: 4, J: 4, K: 6}},
		// y dominates when several components pass the threshold
		{mgl32.Vec3{0.7, 0.7, 0}, grid.Cell{I: 4, J: 5, K: 7}},
	}
	for _, tc := range cases {
		h := Hit{Cell: c, Normal: tc.normal}
		if got := TargetCell(ModeBuild, h); got != tc.want {
			t.Fatalf("normal %v: got %v want %v", tc.normal, got, tc.want)
		}
		if got := TargetCell(ModeDig, h); got != c {
			t.Fatalf("dig target moved: %v", got)
		}
	}
}

func TestResolve_DownRayHitsSurface(t *testing.T) {
	w := newWorld(t, nil)
	r := NewResolver(w)

	tgt, out := r.Resolve(ModeDig, downRay(w, 3, 3))
	if out != world.Applied {
		t.Fatalf("dig outcome: %s", out)
	}
	if want := (grid.Cell{I: 3, J: 3, K: 22}); tgt.Cell != want || tgt.Hit.Block != "grass" {
		t.Fatalf("dig target: %v %s", tgt.Cell, tgt.Hit.Block)
	}

	tgt, out = r.Resolve(ModeBuild, downRay(w, 3, 3))
	if out != world.Applied || tgt.Cell != (grid.Cell{I: 3, J: 3, K: 23}) {
		t.Fatalf("build target: %v %s", tgt.Cell, out)
	}
}

func TestResolve_NoHitAndOutOfBounds(t *testing.T) {
	w := newWorld(t, nil)
	r := NewResolver(w)

	up := Ray{Origin: w.Dims().WorldPosition(grid.Cell{I: 3, J: 3, K: 30}), Dir: mgl32.Vec3{0, 1, 0}}
	if _, out := r.Resolve(ModeDig, up); out != world.RefusedNoHit {
		t.Fatalf("up ray: got %s", out)
	}

	// Horizontal ray entering the grass layer from outside the -i edge.
	p := w.Dims().WorldPosition(grid.Cell{I: 0, J: 3, K: 22})
	side := Ray{Origin: mgl32.Vec3{p.X() - 50, p.Y(), p.Z()}, Dir: mgl32.Vec3{1, 0, 0}}
	tgt, out := r.Resolve(ModeBuild, side)
	if out != world.RefusedOutOfBounds || tgt.Cell != (grid.Cell{I: -1, J: 3, K: 22}) {
		t.Fatalf("side build: %v %s", tgt.Cell, out)
	}
	if res := r.Build(world.ActorPlayer, "stone", side); res.Outcome != world.RefusedOutOfBounds {
		t.Fatalf("build via ray: %s", res.Outcome)
	}
}

func TestResolver_DigAndBuildThroughRay(t *testing.T) {
	w := newWorld(t, map[string]int{"hay": 1})
	r := NewResolver(w)

	res := r.Dig(world.ActorPlayer, downRay(w, 2, 2))
	if !res.OK() || res.Block != "grass" {
		t.Fatalf("dig: %s %s", res.Outcome, res.Reason)
	}
	// The next ray down the same column lands on soil.
	tgt, _ := r.Resolve(ModeDig, downRay(w, 2, 2))
	if tgt.Hit.Block != "soil" || tgt.Cell.K != 21 {
		t.Fatalf("after dig: %v %s", tgt.Cell, tgt.Hit.Block)
	}

	res = r.Build(world.ActorPlayer, "hay", downRay(w, 2, 2))
	if !res.OK() || res.Cell != (grid.Cell{I: 2, J: 2, K: 22}) {
		t.Fatalf("build: %v %s %s", res.Cell, res.Outcome, res.Reason)
	}
	if got := w.LedgerCount("hay"); got != 0 {
		t.Fatalf("hay ledger: got %d want 0", got)
	}
}

func TestPreview(t *testing.T) {
	w := newWorld(t, map[string]int{"stone": 1})
	r := NewResolver(w)
	ray := downRay(w, 5, 5)

	p := r.Preview(ModeDig, "", ray)
	if !p.Allowed || p.Tool != "shovel" || p.Block != "grass" {
		t.Fatalf("dig preview: %+v", p)
	}
	if want := w.Dims().WorldPosition(grid.Cell{I: 5, J: 5, K: 22}); p.Position != want {
		t.Fatalf("preview position: got %v want %v", p.Position, want)
	}

	if p := r.Preview(ModeBuild, "stone", ray); !p.Allowed {
		t.Fatalf("build stone preview: %+v", p)
	}
	if p := r.Preview(ModeBuild, "wood", ray); p.Allowed || p.Outcome != world.RefusedInsufficientResource {
		t.Fatalf("build wood preview: %+v", p)
	}
	if p := r.Preview(ModeBuild, "tree", ray); !p.Allowed {
		t.Fatalf("build tree preview: %+v", p)
	}
	if w.MutationSeq() != 1 {
		// only the startup hay clear
		t.Fatalf("preview mutated world: seq %d", w.MutationSeq())
	}
}

func TestPreviewCell(t *testing.T) {
	w := newWorld(t, map[string]int{"stone": 1})
	r := NewResolver(w)

	cases := []struct {
		name    string
		mode    Mode
		block   string
		cell    grid.Cell
		outcome world.Outcome
	}{
		{"dig buried stone", ModeDig, "", grid.Cell{I: 2, J: 2, K: 5}, world.Applied},
		{"dig air", ModeDig, "", grid.Cell{I: 2, J: 2, K: 30}, world.RefusedEmptyCell},
		{"dig outside", ModeDig, "", grid.Cell{I: -1, J: 2, K: 5}, world.RefusedOutOfBounds},
		{"build into air", ModeBuild, "stone", grid.Cell{I: 2, J: 2, K: 30}, world.Applied},
		{"build onto grass", ModeBuild, "stone", grid.Cell{I: 2, J: 2, K: 22}, world.RefusedOccupied},
		{"build above top", ModeBuild, "stone", grid.Cell{I: 2, J: 2, K: 40}, world.RefusedOutOfBounds},
		{"build air", ModeBuild, "air", grid.Cell{I: 2, J: 2, K: 30}, world.RefusedUnknownType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := r.PreviewCell(tc.mode, tc.block, tc.cell)
			if p.Outcome != tc.outcome || p.Allowed != (tc.outcome == world.Applied) {
				t.Fatalf("preview: %+v", p)
			}
			if p.Target.Cell != tc.cell {
				t.Fatalf("target: got %v want %v", p.Target.Cell, tc.cell)
			}
		})
	}
	if p := r.PreviewCell(ModeDig, "", grid.Cell{I: 2, J: 2, K: 5}); p.Block != "stone" || p.Tool == "" {
		t.Fatalf("dig stone preview: %+v", p)
	}
}

func TestRayFromNDC_LookingDown(t *testing.T) {
	w := newWorld(t, nil)
	target := w.Dims().WorldPosition(grid.Cell{I: 6, J: 9, K: 22})
	eye := target.Add(mgl32.Vec3{0, 200, 0})
	view := mgl32.LookAtV(eye, target, mgl32.Vec3{0, 0, -1})
	proj := mgl32.Perspective(mgl32.DegToRad(45), 1, 0.1, 1000)

	ray, ok := RayFromNDC(mgl32.Vec2{0, 0}, view, proj)
	if !ok {
		t.Fatalf("singular camera")
	}
	if ray.Dir.Y() > -0.999 {
		t.Fatalf("direction: %v", ray.Dir)
	}
	if d := ray.Origin.Sub(eye).Len(); d > 1 {
		t.Fatalf("origin %v too far from eye %v", ray.Origin, eye)
	}

	tgt, out := NewResolver(w).Resolve(ModeDig, ray)
	if out != world.Applied || tgt.Cell != (grid.Cell{I: 6, J: 9, K: 22}) {
		t.Fatalf("resolved %v %s", tgt.Cell, out)
	}

	if _, ok := RayFromNDC(mgl32.Vec2{}, mgl32.Mat4{}, proj); ok {
		t.Fatalf("zero view should be singular")
	}
}
