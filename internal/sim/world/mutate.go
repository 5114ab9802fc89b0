package world

import (
	"fmt"
	"sort"

	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/grid"
)

type Outcome string

const (
	Applied                     Outcome = "APPLIED"
	RefusedOutOfBounds          Outcome = "REFUSED_OUT_OF_BOUNDS"
	RefusedNoHit                Outcome = "REFUSED_NO_HIT"
	RefusedOccupied             Outcome = "REFUSED_OCCUPIED"
	RefusedEmptyCell            Outcome = "REFUSED_EMPTY_CELL"
	RefusedInsufficientResource Outcome = "REFUSED_INSUFFICIENT_RESOURCE"
	RefusedScarcityFloor        Outcome = "REFUSED_SCARCITY_FLOOR"
	RefusedUnknownType          Outcome = "REFUSED_UNKNOWN_TYPE"
	RefusedNotBreakable         Outcome = "REFUSED_NOT_BREAKABLE"
)

// Actor names who initiated a mutation. Only the player writes the ledger; the system
// actor never reads it.
type Actor string

const (
	ActorPlayer Actor = "player"
	ActorGrowth Actor = "growth"
	ActorSystem Actor = "system"
)

const (
	ActionBuild = "BUILD"
	ActionDig   = "DIG"
	ActionPlant = "PLANT"
	ActionClear = "CLEAR"
)

// Result reports what a mutation did, or why it was refused.
type Result struct {
	Outcome  Outcome
	Reason   string
	Action   string
	Block    string
	Cell     grid.Cell
	Template string

	Added    int
	Skipped  int
	Removed  int
	Credited map[string]int

	// Chunks lists the chunk indices whose tables changed, ascending.
	Chunks []int
}

func (r Result) OK() bool { return r.Outcome == Applied }

func refuse(action, block string, cell grid.Cell, o Outcome, format string, args ...any) Result {
	return Result{Outcome: o, Reason: fmt.Sprintf(format, args...), Action: action, Block: block, Cell: cell}
}

// Build places one block of type block at cell. Building the structure type plants a tree
// whose trunk base sits at cell. Player and growth builds need the type in the ledger;
// only player builds spend it.
func (w *World) Build(actor Actor, block string, cell grid.Cell) Result {
	return w.mutate(func() Result {
		res := w.buildLocked(actor, block, cell)
		w.record(actor, res)
		return res
	})
}

func (w *World) buildLocked(actor Actor, block string, cell grid.Cell) Result {
	def, ok := w.catalogs.Block(block)
	if !ok || !def.Placeable || (!def.Stored() && !def.Structure) {
		return refuse(ActionBuild, block, cell, RefusedUnknownType, "block %q cannot be placed", block)
	}
	if !w.dims.InBounds(cell) {
		return refuse(ActionBuild, block, cell, RefusedOutOfBounds, "cell %v outside world", cell)
	}
	if def.Structure {
		res := w.plantLocked(cell.Down(), "")
		res.Action = ActionBuild
		res.Block = block
		res.Cell = cell
		return res
	}
	if w.isOccupiedLocked(cell) {
		return refuse(ActionBuild, block, cell, RefusedOccupied, "cell %v occupied", cell)
	}
	// Growth needs stock on hand like a player but never draws it down.
	if actor != ActorSystem && w.ledger.Count(block) <= 0 {
		return refuse(ActionBuild, block, cell, RefusedInsufficientResource, "no %s left", block)
	}
	ch := w.chunkAtLocked(cell)
	if _, err := ch.AddBlock(cell, block); err != nil {
		return refuse(ActionBuild, block, cell, RefusedOccupied, "%v", err)
	}
	ch.Finalize()
	if actor == ActorPlayer {
		w.ledger.spend(block)
	}
	return Result{Outcome: Applied, Action: ActionBuild, Block: block, Cell: cell, Added: 1, Chunks: []int{ch.Index}}
}

// Dig removes the block at cell. The instance is resolved by coordinate at the moment of
// removal, never by a slot captured earlier.
func (w *World) Dig(actor Actor, cell grid.Cell) Result {
	return w.mutate(func() Result {
		res := w.digLocked(actor, cell)
		w.record(actor, res)
		return res
	})
}

// CanDig evaluates the dig rules for cell without mutating anything.
func (w *World) CanDig(cell grid.Cell) Result {
	w.mu.RLock()
	defer w.mu.RUnlock()
	block, _, res, ok := w.digCheckLocked(cell)
	if !ok {
		return res
	}
	return Result{Outcome: Applied, Action: ActionDig, Block: block, Cell: cell}
}

func (w *World) digCheckLocked(cell grid.Cell) (string, catalogs.BlockDef, Result, bool) {
	ch := w.chunkAtLocked(cell)
	if ch == nil {
		return "", catalogs.BlockDef{}, refuse(ActionDig, "", cell, RefusedOutOfBounds, "cell %v outside world", cell), false
	}
	block, ok := ch.TypeAt(cell)
	if !ok {
		return "", catalogs.BlockDef{}, refuse(ActionDig, catalogs.Air, cell, RefusedEmptyCell, "nothing at %v", cell), false
	}
	def, ok := w.catalogs.Block(block)
	if !ok {
		return "", def, refuse(ActionDig, block, cell, RefusedUnknownType, "block %q has no rule", block), false
	}
	if !def.Breakable {
		return "", def, refuse(ActionDig, block, cell, RefusedNotBreakable, "%s cannot be dug", block), false
	}
	if floor, limited := def.DigFloor(); limited {
		if total := w.totalOfLocked(block); total <= floor {
			return "", def, refuse(ActionDig, block, cell, RefusedScarcityFloor, "%s total %d at floor %d", block, total, floor), false
		}
	}
	return block, def, Result{}, true
}

func (w *World) digLocked(actor Actor, cell grid.Cell) Result {
	block, def, res, ok := w.digCheckLocked(cell)
	if !ok {
		return res
	}
	ch := w.chunkAtLocked(cell)
	if _, ok := ch.RemoveAt(cell); !ok {
		return refuse(ActionDig, block, cell, RefusedEmptyCell, "nothing at %v", cell)
	}
	ch.Finalize()
	out := Result{Outcome: Applied, Action: ActionDig, Block: block, Cell: cell, Removed: 1, Chunks: []int{ch.Index}}
	if actor == ActorPlayer {
		out.Credited = def.YieldOf()
		for res, n := range out.Credited {
			w.ledger.credit(res, n)
		}
	}
	return out
}

// PlantTree stamps a randomly chosen tree template with its trunk base one layer above base.
func (w *World) PlantTree(actor Actor, base grid.Cell) Result {
	return w.PlantTemplate(actor, "", base)
}

// PlantTemplate is PlantTree with a fixed template. An empty id picks one at random.
func (w *World) PlantTemplate(actor Actor, templateID string, base grid.Cell) Result {
	return w.mutate(func() Result {
		res := w.plantLocked(base, templateID)
		w.record(actor, res)
		return res
	})
}

// treeLayerOffset is the vertical offset of layer l of an n-layer template from its base.
func treeLayerOffset(n, l int) int {
	return n + l - ((n+1)/2 + 2)
}

func (w *World) plantLocked(base grid.Cell, templateID string) Result {
	trees := w.catalogs.Trees
	var tt catalogs.TreeTemplate
	switch {
	case templateID != "":
		t, ok := trees.ByID[templateID]
		if !ok {
			res := refuse(ActionPlant, "", base, RefusedUnknownType, "unknown tree template %q", templateID)
			res.Template = templateID
			return res
		}
		tt = t
	case len(trees.Templates) == 0:
		return refuse(ActionPlant, "", base, RefusedUnknownType, "no tree templates loaded")
	default:
		tt = trees.Templates[w.rng.Intn(len(trees.Templates))]
	}

	res := Result{Action: ActionPlant, Cell: base, Template: tt.ID}
	touched := map[int]struct{}{}
	layers := len(tt.Layers)
	for l, layer := range tt.Layers {
		k := base.K + treeLayerOffset(layers, l)
		midRow := len(layer) / 2
		midCol := len(layer[0]) / 2
		for r, row := range layer {
			for c, block := range row {
				if block == "" {
					continue
				}
				cell := grid.Cell{I: base.I + c - midCol, J: base.J + r - midRow, K: k}
				if w.isOccupiedLocked(cell) {
					res.Skipped++
					continue
				}
				ch := w.chunkAtLocked(cell)
				if _, err := ch.AddBlock(cell, block); err != nil {
					res.Skipped++
					continue
				}
				touched[ch.Index] = struct{}{}
				res.Added++
			}
		}
	}
	for idx := range touched {
		w.chunks[idx].Finalize()
		res.Chunks = append(res.Chunks, idx)
	}
	sort.Ints(res.Chunks)
	if res.Added == 0 {
		res.Outcome = RefusedOccupied
		res.Reason = fmt.Sprintf("no free cell for tree %s", tt.ID)
		return res
	}
	res.Outcome = Applied
	return res
}

// ClearType removes every instance of block. Used right after the strata fill.
func (w *World) ClearType(block string) Result {
	return w.mutate(func() Result {
		res := w.clearLocked(block)
		w.record(ActorSystem, res)
		return res
	})
}

func (w *World) clearLocked(block string) Result {
	if _, ok := w.layout.index[block]; !ok {
		return refuse(ActionClear, block, grid.Cell{}, RefusedUnknownType, "block %q has no table", block)
	}
	res := Result{Outcome: Applied, Action: ActionClear, Block: block}
	for _, ch := range w.chunks {
		n := ch.Count(block)
		if n == 0 {
			continue
		}
		// Removing the last slot first never moves another instance.
		for slot := n - 1; slot >= 0; slot-- {
			if err := ch.RemoveInstance(block, slot); err != nil {
				break
			}
			res.Removed++
		}
		ch.Finalize()
		res.Chunks = append(res.Chunks, ch.Index)
	}
	return res
}
