package tuning

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_RepoTuningMatchesDefaults(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("configs/tuning.yaml drifted from Defaults():\n got %+v\nwant %+v", got, Defaults())
	}
}

func TestLoad_PartialOverridesKeepDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("grid_size: 32\ngrowth:\n  max_pct: 0.05\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.GridSize != 32 || got.Growth.MaxPct != 0.05 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.GridDepth != 40 || got.Growth.IntervalMs != 5000 || got.Growth.Source != "grass" {
		t.Fatalf("defaults lost: %+v", got)
	}
	if !got.SeedTreeEnabled() {
		t.Fatalf("seed tree should default on")
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad chunk size": "chunk_size: [8, 8]\n",
		"depth overflow": "grid_depth: 10\nsoil_depth: 6\nair_depth: 6\n",
		"bad pct":        "growth:\n  max_pct: 2\n",
		"bad yaml":       "grid_size: [\n",
	}
	for name, body := range cases {
		p := filepath.Join(t.TempDir(), "tuning.yaml")
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
