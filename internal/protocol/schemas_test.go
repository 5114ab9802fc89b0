package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelgarden.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips v through encoding/json so the validator sees what goes on the wire.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	var hello any
	_ = json.Unmarshal([]byte(`{"type":"HELLO","protocol_version":"1.0","client_name":"web","max_queue":16}`), &hello)
	validate(compile(t, "hello.schema.json"), hello)

	validate(compile(t, "welcome.schema.json"), asJSON(t, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "2f8c4a0e-7d7b-4c1e-9a55-0f3c1b0f9a11",
		WorldID:         "world_1",
		WorldParams: protocol.WorldParams{
			GridSize: 16, GridDepth: 40, ChunkSize: [3]int{8, 8, 40}, NumChunks: 4, TileSize: 4, Seed: 1337,
		},
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: "deadbeef", Count: 8},
			BlockDefs:    "deadbeef",
			Trees:        "deadbeef",
		},
		Blocks: []protocol.BlockRule{
			{ID: "stone", Tool: "pickaxe", Yield: map[string]int{"stone": 1}, MinRemainingBlocks: 2, Breakable: true, Placeable: true},
			{ID: "tree", MinRemainingBlocks: 1, Placeable: true, Structure: true},
		},
		Trees:  []string{"broad_oak", "small_pine"},
		Ledger: map[string]int{"stone": 50},
	}))

	actSchema := compile(t, "act.schema.json")
	var act any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"a1",
	  "action":"BUILD",
	  "block":"stone",
	  "pointer":{"ndc":[0.1,-0.3],"view":[1,0,0,0,0,1,0,0,0,0,1,0,0,0,-5,1],"proj":[1,0,0,0,0,1,0,0,0,0,-1,-1,0,0,-0.2,0]}
	}`), &act)
	validate(actSchema, act)
	cell := [3]int{1, 2, 3}
	validate(actSchema, asJSON(t, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "a2", Action: protocol.ActDig, Cell: &cell}))

	var both any
	_ = json.Unmarshal([]byte(`{"type":"ACT","protocol_version":"1.0","id":"a3","action":"DIG","cell":[0,0,0],"pointer":{"ndc":[0,0],"view":[1,0,0,0,0,1,0,0,0,0,1,0,0,0,0,1],"proj":[1,0,0,0,0,1,0,0,0,0,1,0,0,0,0,1]}}`), &both)
	if err := actSchema.Validate(both); err == nil {
		t.Fatalf("act with both pointer and cell should be rejected")
	}

	validate(compile(t, "result.schema.json"), asJSON(t, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ActID:           "a1",
		Action:          protocol.ActDig,
		Outcome:         "REFUSED_SCARCITY_FLOOR",
		Code:            protocol.CodeForOutcome("REFUSED_SCARCITY_FLOOR"),
		Reason:          "stone total 2 at floor 2",
		Block:           "stone",
		Cell:            [3]int{3, 3, 0},
	}))

	validate(compile(t, "ledger.schema.json"), asJSON(t, protocol.LedgerMsg{
		Type: protocol.TypeLedger, ProtocolVersion: protocol.Version, Seq: 7, Resources: map[string]int{"hay": 2},
	}))

	validate(compile(t, "chunk.schema.json"), asJSON(t, protocol.ChunkMsg{
		Type:            protocol.TypeChunk,
		ProtocolVersion: protocol.Version,
		Seq:             7,
		Index:           1,
		Origin:          [3]int{0, 8, 0},
		BoundsMin:       [3]float32{-30, -78, 2},
		BoundsMax:       [3]float32{2, 82, 34},
		Tables: []protocol.ChunkTable{
			{Block: "stone", Count: 1, Transforms: [][16]float32{{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, -28, -76, 4, 1}}},
			{Block: "hay", Count: 0, Transforms: [][16]float32{}},
		},
	}))
}
