package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_RepoConfigs(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if cats.Blocks.Palette[0] != Air {
		t.Fatalf("palette[0]: got %q want %q", cats.Blocks.Palette[0], Air)
	}
	if len(cats.Trees.Templates) != 2 {
		t.Fatalf("tree templates: got %d want 2", len(cats.Trees.Templates))
	}
	for _, id := range cats.StoredPalette() {
		if id == Air || id == "tree" {
			t.Fatalf("stored palette must not contain %q", id)
		}
	}
	if cats.Blocks.PaletteDigest == "" || cats.Trees.Digest == "" {
		t.Fatalf("missing digests")
	}
}

func TestBlockDef_DigFloor(t *testing.T) {
	two, zero, neg := 2, 0, -1
	cases := []struct {
		name    string
		min     *int
		floor   int
		limited bool
	}{
		{"unset", nil, 1, true},
		{"zero", &zero, 1, true},
		{"explicit", &two, 2, true},
		{"unlimited", &neg, 0, false},
	}
	for _, tc := range cases {
		floor, limited := BlockDef{ID: "x", MinRemainingBlocks: tc.min}.DigFloor()
		if floor != tc.floor || limited != tc.limited {
			t.Fatalf("%s: got (%d,%v) want (%d,%v)", tc.name, floor, limited, tc.floor, tc.limited)
		}
	}
}

func TestBlockDef_YieldDefaultsToSelf(t *testing.T) {
	y := BlockDef{ID: "stone"}.YieldOf()
	if len(y) != 1 || y["stone"] != 1 {
		t.Fatalf("default yield: got %v", y)
	}
	y = BlockDef{ID: "hay", Yield: map[string]int{"hay": 3}}.YieldOf()
	if y["hay"] != 3 {
		t.Fatalf("explicit yield: got %v", y)
	}
}

func TestTreeTemplate_BlockCount(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	pine := cats.Trees.ByID["small_pine"]
	// 1 + 1 + 3 + 21 + 13 + 5
	if got := pine.BlockCount(); got != 44 {
		t.Fatalf("small_pine block count: got %d want 44", got)
	}
	if row := pine.Layers[0][1]; row[2] != "wood" {
		t.Fatalf("small_pine trunk row: %v", row)
	}
}

func writeConfig(t *testing.T, blocks string, trees map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blocks.json"), []byte(blocks), 0o644); err != nil {
		t.Fatalf("write blocks: %v", err)
	}
	if len(trees) > 0 {
		if err := os.MkdirAll(filepath.Join(dir, "trees"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		for name, body := range trees {
			if err := os.WriteFile(filepath.Join(dir, "trees", name), []byte(body), 0o644); err != nil {
				t.Fatalf("write tree: %v", err)
			}
		}
	}
	return dir
}

func TestLoad_RejectsInvalidCatalogs(t *testing.T) {
	cases := []struct {
		name   string
		blocks string
		trees  map[string]string
		want   string
	}{
		{"missing air", `[{"id":"stone"}]`, nil, "missing air"},
		{"schema violation", `[{"id":"air"},{"id":"stone","min_remaining_blocks":-5}]`, nil, "schema"},
		{"unknown field", `[{"id":"air","colour":"red"}]`, nil, "schema"},
		{"unknown yield", `[{"id":"air"},{"id":"stone","yield":{"gold":1}}]`, nil, "unknown block"},
		{"tree uses structure", `[{"id":"air"},{"id":"tree","structure":true}]`,
			map[string]string{"t.json": `{"id":"t","layers":[[["tree"]]]}`}, "not storable"},
		{"tree bad shape", `[{"id":"air"}]`,
			map[string]string{"t.json": `{"id":"t","layers":[]}`}, "schema"},
	}
	for _, tc := range cases {
		dir := writeConfig(t, tc.blocks, tc.trees)
		_, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLoad_MissingTreesDirIsAllowed(t *testing.T) {
	dir := writeConfig(t, `[{"id":"air"},{"id":"stone","placeable":true,"breakable":true}]`, nil)
	cats, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cats.Trees.Templates) != 0 {
		t.Fatalf("expected no templates")
	}
}
