package main

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voxelgarden.ai/internal/persistence/indexdb"
	"voxelgarden.ai/internal/persistence/snapshot"
	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/grid"
	"voxelgarden.ai/internal/sim/tuning"
	"voxelgarden.ai/internal/sim/world"
)

func testTuning(t *testing.T) tuning.Tuning {
	t.Helper()
	tune, err := tuning.Load("../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	return tune
}

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func TestLoadWorld_FreshThenResume(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	tune := testTuning(t)
	cats := testCatalogs(t)

	w, err := loadWorld("w1", "", tune, cats, quiet)
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	if w.TotalOf("hay") != 0 || w.TotalOf("stone") == 0 {
		t.Fatalf("fresh totals: hay=%d stone=%d", w.TotalOf("hay"), w.TotalOf("stone"))
	}
	if res := w.Dig(world.ActorPlayer, grid.Cell{I: 0, J: 0, K: 22}); !res.OK() {
		t.Fatalf("dig: %+v", res)
	}

	dir := t.TempDir()
	snap := w.ExportSnapshot()
	path := filepath.Join(dir, "snapshots", "7.snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	r, err := loadWorld("w1", path, tuning.Defaults(), cats, quiet)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if r.MutationSeq() != w.MutationSeq() || r.IsOccupied(grid.Cell{I: 0, J: 0, K: 22}) {
		t.Fatalf("resumed world differs: seq %d/%d", r.MutationSeq(), w.MutationSeq())
	}
	if r.LedgerCount("grass") != w.LedgerCount("grass") {
		t.Fatalf("ledger: got %d want %d", r.LedgerCount("grass"), w.LedgerCount("grass"))
	}

	if _, err := loadWorld("other", path, tune, cats, quiet); err == nil {
		t.Fatalf("expected world id mismatch")
	}
}

func TestLatestSnapshot_PicksHighestSeq(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "15.snap.zst", "junk.snap.zst", "200.txt"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "120.snap.zst" {
		t.Fatalf("latest: %q", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir: %q", got)
	}
}

type countingSink struct {
	n   int
	err error
}

func (c *countingSink) WriteAudit(world.AuditEntry) error { c.n++; return c.err }

func TestMultiAuditLogger_FansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := multiAuditLogger{a, nil, b}
	_ = m.WriteAudit(world.AuditEntry{Seq: 1})
	_ = m.WriteAudit(world.AuditEntry{Seq: 2})
	if a.n != 2 || b.n != 2 {
		t.Fatalf("counts: a=%d b=%d", a.n, b.n)
	}

	diskFull := errors.New("disk full")
	failing := &countingSink{err: diskFull}
	m = multiAuditLogger{failing, b}
	if err := m.WriteAudit(world.AuditEntry{Seq: 3}); !errors.Is(err, diskFull) {
		t.Fatalf("err: %v", err)
	}
	if b.n != 3 {
		t.Fatalf("sink after a failure was skipped")
	}
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, "w1", metricsSources{
		World: world.WorldMetrics{
			Chunks:  4,
			Totals:  map[string]int{"stone": 5120, "grass": 256},
			Ledger:  map[string]int{"stone": 2},
			Applied: 3, Refused: 1, Mutations: 4,
		},
		Index: &indexdb.Stats{DropAuditTotal: 5},
	})
	out := buf.String()
	for _, want := range []string{
		`voxelgarden_world_chunks{world="w1"} 4`,
		`voxelgarden_world_mutations_total{world="w1",result="refused"} 1`,
		`voxelgarden_world_blocks{world="w1",block="grass"} 256`,
		`voxelgarden_ledger_resources{world="w1",block="stone"} 2`,
		`voxelgarden_index_dropped_total{world="w1",kind="audit"} 5`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, `block="grass"} 256`) > strings.Index(out, `block="stone"} 5120`) {
		t.Fatalf("block series not sorted")
	}

	buf.Reset()
	writeMetrics(&buf, "w1", metricsSources{})
	if strings.Contains(buf.String(), "voxelgarden_index_") {
		t.Fatalf("index series without an index")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:5000":  false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
