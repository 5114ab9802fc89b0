package world

import (
	"errors"
	"reflect"
	"testing"
)

func TestReplay_ReproducesWorld(t *testing.T) {
	w := newPopulatedWorld(t)
	snap := w.ExportSnapshot()
	audit := &memAudit{}
	w.SetAuditLogger(audit)

	mustApply(t, w.Dig(ActorPlayer, cell(3, 3, 22)))
	mustApply(t, w.Build(ActorPlayer, "stone", cell(3, 3, 22)))
	mustApply(t, w.Build(ActorPlayer, BlockTree, cell(1, 13, 23)))
	mustApply(t, w.PlantTemplate(ActorSystem, "small_pine", cell(13, 2, 22)))
	mustApply(t, w.Build(ActorGrowth, "hay", cell(5, 10, 23)))
	mustApply(t, w.Dig(ActorPlayer, cell(5, 10, 23)))
	if res := w.Dig(ActorPlayer, cell(0, 0, 30)); res.Outcome != RefusedEmptyCell {
		t.Fatalf("dig air: %+v", res)
	}
	if res := w.PlantTemplate(ActorPlayer, "baobab", cell(2, 2, 22)); res.Outcome != RefusedUnknownType {
		t.Fatalf("unknown template: %+v", res)
	}

	entries := audit.all()
	if len(entries) != 8 {
		t.Fatalf("audit entries: %d", len(entries))
	}

	r, err := ImportSnapshot(snap, loadCatalogs(t))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	for _, e := range entries {
		if _, err := r.Replay(e); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	mustInvariants(t, r)

	if r.MutationSeq() != w.MutationSeq() {
		t.Fatalf("seq: got %d want %d", r.MutationSeq(), w.MutationSeq())
	}
	got, want := r.ExportSnapshot(), w.ExportSnapshot()
	if !reflect.DeepEqual(got.Chunks, want.Chunks) {
		t.Fatalf("replayed instance tables differ")
	}
	if !reflect.DeepEqual(got.Ledger, want.Ledger) {
		t.Fatalf("ledger: got %v want %v", got.Ledger, want.Ledger)
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	w := newPopulatedWorld(t)
	snap := w.ExportSnapshot()
	audit := &memAudit{}
	w.SetAuditLogger(audit)
	mustApply(t, w.Dig(ActorPlayer, cell(3, 3, 22)))
	e := audit.all()[0]

	r, err := ImportSnapshot(snap, loadCatalogs(t))
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	gap := e
	gap.Seq += 5
	if _, err := r.Replay(gap); !errors.Is(err, ErrReplayDiverged) {
		t.Fatalf("seq gap: %v", err)
	}

	// The cell is already empty in r, so the recorded APPLIED dig cannot be reproduced.
	mustApply(t, r.ClearType("grass"))
	e.Seq = r.MutationSeq() + 1
	if _, err := r.Replay(e); !errors.Is(err, ErrReplayDiverged) {
		t.Fatalf("expected divergence, got %v", err)
	}

	bad := AuditEntry{Seq: r.MutationSeq() + 1, Action: "TELEPORT"}
	if _, err := r.Replay(bad); err == nil || errors.Is(err, ErrReplayDiverged) {
		t.Fatalf("unknown action: %v", err)
	}
}
