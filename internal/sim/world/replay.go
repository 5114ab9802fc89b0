package world

import (
	"errors"
	"fmt"

	"voxelgarden.ai/internal/sim/grid"
)

var ErrReplayDiverged = errors.New("replay diverged")

// Replay re-executes one audited mutation and checks that it lands on the same sequence
// number with the same outcome and counts. Tree plants reuse the recorded template, so the
// world rng state does not need to match the recording world.
func (w *World) Replay(e AuditEntry) (Result, error) {
	if want := w.MutationSeq() + 1; e.Seq != want {
		return Result{}, fmt.Errorf("%w: entry seq %d, world expects %d", ErrReplayDiverged, e.Seq, want)
	}
	actor := Actor(e.Actor)
	cell := grid.CellFromArray(e.Pos)

	var res Result
	switch e.Action {
	case ActionBuild:
		if e.Template != "" {
			res = w.mutate(func() Result {
				r := w.plantLocked(cell.Down(), e.Template)
				r.Action, r.Block, r.Cell = ActionBuild, e.Block, cell
				w.record(actor, r)
				return r
			})
		} else {
			res = w.Build(actor, e.Block, cell)
		}
	case ActionDig:
		res = w.Dig(actor, cell)
	case ActionPlant:
		res = w.PlantTemplate(actor, e.Template, cell)
	case ActionClear:
		res = w.ClearType(e.Block)
	default:
		return Result{}, fmt.Errorf("replay: unknown action %q at seq %d", e.Action, e.Seq)
	}

	if string(res.Outcome) != e.Outcome || res.Added != e.Added || res.Removed != e.Removed {
		return res, fmt.Errorf("%w at seq %d: %s %s added=%d removed=%d, recorded %s added=%d removed=%d",
			ErrReplayDiverged, e.Seq, e.Action, res.Outcome, res.Added, res.Removed, e.Outcome, e.Added, e.Removed)
	}
	return res, nil
}
