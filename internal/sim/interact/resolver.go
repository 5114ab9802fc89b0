package interact

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/grid"
	"voxelgarden.ai/internal/sim/world"
)

type Mode int

const (
	ModeDig Mode = iota
	ModeBuild
)

func (m Mode) String() string {
	if m == ModeBuild {
		return "BUILD"
	}
	return "DIG"
}

// Hit is one ray/instance intersection. Slot is only valid at the time of the test;
// mutations resolve the instance again by Cell.
type Hit struct {
	Chunk    int
	Block    string
	Slot     int
	Cell     grid.Cell
	Point    mgl32.Vec3
	Normal   mgl32.Vec3
	Distance float32
}

// Intersect returns every live instance the ray enters. Chunks whose bounds the ray misses
// are skipped without visiting their instances.
func Intersect(w *world.World, r Ray) []Hit {
	dims := w.Dims()
	var hits []Hit
	w.VisitInstances(
		func(_ int, min, max mgl32.Vec3) bool { return overlaps(r, min, max) },
		func(ref world.InstanceRef) bool {
			min, max := dims.CellBounds(ref.Cell)
			t, n, ok := slab(r, min, max)
			if !ok {
				return true
			}
			hits = append(hits, Hit{
				Chunk:    ref.Chunk,
				Block:    ref.Block,
				Slot:     ref.Slot,
				Cell:     ref.Cell,
				Point:    r.At(t),
				Normal:   n,
				Distance: t,
			})
			return true
		},
	)
	return hits
}

const topEps = 1e-4

// Topmost picks the hit with the greatest vertical coordinate. Equal heights go to the
// nearer hit, then to the earlier one.
func Topmost(hits []Hit) (Hit, bool) {
	if len(hits) == 0 {
		return Hit{}, false
	}
	best := hits[0]
	for _, h := range hits[1:] {
		dy := h.Point.Y() - best.Point.Y()
		if dy > topEps || (dy > -topEps && h.Distance < best.Distance) {
			best = h
		}
	}
	return best, true
}

// TargetCell is the hit cell for digging. For building it is the neighbour across the hit
// face; the vertical axis is checked first, then i, then j.
func TargetCell(mode Mode, h Hit) grid.Cell {
	c := h.Cell
	if mode != ModeBuild {
		return c
	}
	n := h.Normal
	switch {
	case abs32(n.Y()) > 0.5:
		return c.Offset(0, 0, sign32(n.Y()))
	case abs32(n.X()) > 0.5:
		return c.Offset(sign32(n.X()), 0, 0)
	case abs32(n.Z()) > 0.5:
		return c.Offset(0, sign32(n.Z()), 0)
	}
	return c
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func sign32(v float32) int {
	if v < 0 {
		return -1
	}
	return 1
}

type Target struct {
	Hit  Hit
	Cell grid.Cell
}

type Resolver struct {
	w *world.World
}

func NewResolver(w *world.World) *Resolver { return &Resolver{w: w} }

// Resolve finds the target cell for mode. The outcome is Applied when a target exists.
func (r *Resolver) Resolve(mode Mode, ray Ray) (Target, world.Outcome) {
	h, ok := Topmost(Intersect(r.w, ray))
	if !ok {
		return Target{}, world.RefusedNoHit
	}
	t := Target{Hit: h, Cell: TargetCell(mode, h)}
	if !r.w.Dims().InBounds(t.Cell) {
		return t, world.RefusedOutOfBounds
	}
	return t, world.Applied
}

// Preview is the hover state: either a highlighted target or a not-allowed marker.
type Preview struct {
	Mode     Mode
	Allowed  bool
	Outcome  world.Outcome
	Reason   string
	Target   Target
	Block    string
	Tool     string
	Position mgl32.Vec3
}

// Preview evaluates mode at the ray without mutating. block is only used for building.
func (r *Resolver) Preview(mode Mode, block string, ray Ray) Preview {
	t, out := r.Resolve(mode, ray)
	return r.preview(mode, block, t, out)
}

// PreviewCell is Preview for an already chosen target cell.
func (r *Resolver) PreviewCell(mode Mode, block string, cell grid.Cell) Preview {
	out := world.Applied
	if !r.w.Dims().InBounds(cell) {
		out = world.RefusedOutOfBounds
	}
	return r.preview(mode, block, Target{Cell: cell}, out)
}

func (r *Resolver) preview(mode Mode, block string, t Target, out world.Outcome) Preview {
	p := Preview{Mode: mode, Outcome: out, Target: t, Block: block}
	if out == world.RefusedNoHit {
		p.Reason = "no block under pointer"
		return p
	}
	p.Position = r.w.Dims().WorldPosition(t.Cell)
	if out != world.Applied {
		p.Reason = fmt.Sprintf("target %v outside world", t.Cell)
		return p
	}

	switch mode {
	case ModeDig:
		res := r.w.CanDig(t.Cell)
		p.Outcome, p.Reason, p.Block = res.Outcome, res.Reason, res.Block
		if def, ok := r.w.Catalogs().Block(res.Block); ok {
			p.Tool = def.Tool
		}
	case ModeBuild:
		def, ok := r.w.Catalogs().Block(block)
		switch {
		case !ok || !def.Placeable || block == catalogs.Air:
			p.Outcome, p.Reason = world.RefusedUnknownType, fmt.Sprintf("block %q cannot be placed", block)
		case def.Structure:
			// Trees are free and stamp around occupied cells.
		case r.w.IsOccupied(t.Cell):
			p.Outcome, p.Reason = world.RefusedOccupied, fmt.Sprintf("cell %v occupied", t.Cell)
		case r.w.LedgerCount(block) <= 0:
			p.Outcome, p.Reason = world.RefusedInsufficientResource, fmt.Sprintf("no %s left", block)
		}
	}
	p.Allowed = p.Outcome == world.Applied
	return p
}

// Dig resolves the ray and digs the hit cell.
func (r *Resolver) Dig(actor world.Actor, ray Ray) world.Result {
	t, out := r.Resolve(ModeDig, ray)
	if out != world.Applied {
		return unresolved(world.ActionDig, "", t, out)
	}
	return r.w.Dig(actor, t.Cell)
}

// Build resolves the ray and places block against the hit face.
func (r *Resolver) Build(actor world.Actor, block string, ray Ray) world.Result {
	t, out := r.Resolve(ModeBuild, ray)
	if out != world.Applied {
		return unresolved(world.ActionBuild, block, t, out)
	}
	return r.w.Build(actor, block, t.Cell)
}

func unresolved(action, block string, t Target, out world.Outcome) world.Result {
	reason := "no block under pointer"
	if out == world.RefusedOutOfBounds {
		reason = fmt.Sprintf("target %v outside world", t.Cell)
	}
	return world.Result{Outcome: out, Reason: reason, Action: action, Block: block, Cell: t.Cell}
}
