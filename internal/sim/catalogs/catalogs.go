package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Air is the reserved empty block id. It is always palette index 0.
const Air = "air"

//go:embed schema/*.json
var schemaFS embed.FS

const (
	blocksSchemaURL = "https://voxelgarden.ai/schemas/catalogs/blocks.schema.json"
	treeSchemaURL   = "https://voxelgarden.ai/schemas/catalogs/tree.schema.json"
)

type Catalogs struct {
	Blocks BlockCatalog
	Trees  TreeCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

// BlockDef carries the interaction rules for one block type.
type BlockDef struct {
	ID    string         `json:"id"`
	Tool  string         `json:"tool,omitempty"`
	Yield map[string]int `json:"yield,omitempty"`
	// MinRemainingBlocks is the global scarcity floor for digging. Unset and 0 mean 1, -1 means no floor.
	MinRemainingBlocks *int `json:"min_remaining_blocks,omitempty"`
	Breakable          bool `json:"breakable,omitempty"`
	Placeable          bool `json:"placeable,omitempty"`
	// Structure types are never stored as single instances; building one runs a generator.
	Structure bool `json:"structure,omitempty"`
}

// Stored reports whether instances of this type live in chunk instance tables.
func (d BlockDef) Stored() bool {
	return d.ID != Air && !d.Structure
}

// DigFloor returns the scarcity floor and whether one applies at all.
func (d BlockDef) DigFloor() (floor int, limited bool) {
	if d.MinRemainingBlocks == nil || *d.MinRemainingBlocks == 0 {
		return 1, true
	}
	if *d.MinRemainingBlocks < 0 {
		return 0, false
	}
	return *d.MinRemainingBlocks, true
}

// YieldOf returns the resources credited when the block is dug.
func (d BlockDef) YieldOf() map[string]int {
	if len(d.Yield) == 0 {
		return map[string]int{d.ID: 1}
	}
	out := make(map[string]int, len(d.Yield))
	for k, v := range d.Yield {
		out[k] = v
	}
	return out
}

type TreeCatalog struct {
	Templates []TreeTemplate
	ByID      map[string]TreeTemplate
	Digest    string
}

// TreeTemplate is a stack of horizontal layers. Layer 0 is the trunk base; each layer is
// rows (j axis) of columns (i axis). Empty strings mark empty cells.
type TreeTemplate struct {
	ID     string       `json:"id"`
	Layers [][][]string `json:"layers"`
}

func (t TreeTemplate) BlockCount() int {
	n := 0
	for _, layer := range t.Layers {
		for _, row := range layer {
			for _, b := range row {
				if b != "" {
					n++
				}
			}
		}
	}
	return n
}

func (c *Catalogs) Block(id string) (BlockDef, bool) {
	d, ok := c.Blocks.Defs[id]
	return d, ok
}

// StoredPalette lists the block ids that own instance tables, in palette order.
func (c *Catalogs) StoredPalette() []string {
	out := make([]string, 0, len(c.Blocks.Palette))
	for _, id := range c.Blocks.Palette {
		if c.Blocks.Defs[id].Stored() {
			out = append(out, id)
		}
	}
	return out
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadTrees(filepath.Join(configDir, "trees"), &c.Trees); err != nil {
		return nil, err
	}
	if err := c.checkTrees(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func compileSchema(url, file string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schema/" + file)
	if err != nil {
		return nil, err
	}
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return comp.Compile(url)
}

func validateRaw(s *jsonschema.Schema, name string, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: schema: %w", name, err)
	}
	return nil
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	schema, err := compileSchema(blocksSchemaURL, "blocks.schema.json")
	if err != nil {
		return fmt.Errorf("blocks schema: %w", err)
	}
	if err := validateRaw(schema, "blocks.json", raw); err != nil {
		return err
	}

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}
	for _, d := range out.Defs {
		for res := range d.Yield {
			if _, ok := out.Defs[res]; !ok {
				return fmt.Errorf("blocks.json: %s yields unknown block %q", d.ID, res)
			}
		}
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure air exists and is palette id 0.
	if _, ok := out.Defs[Air]; !ok {
		return fmt.Errorf("blocks.json: missing %s", Air)
	}
	ids = append([]string{Air}, filterOut(ids, Air)...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadTrees(dir string, out *TreeCatalog) error {
	out.ByID = map[string]TreeTemplate{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// No trees directory means no templates; planting then refuses.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	schema, err := compileSchema(treeSchemaURL, "tree.schema.json")
	if err != nil {
		return fmt.Errorf("tree schema: %w", err)
	}

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		if err := validateRaw(schema, "tree "+filepath.Base(p), b); err != nil {
			return err
		}
		var tt TreeTemplate
		if err := json.Unmarshal(b, &tt); err != nil {
			return fmt.Errorf("tree %s: %w", filepath.Base(p), err)
		}
		if _, dup := out.ByID[tt.ID]; dup {
			return fmt.Errorf("tree %s: duplicate id %q", filepath.Base(p), tt.ID)
		}
		out.ByID[tt.ID] = tt
		out.Templates = append(out.Templates, tt)
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func (c *Catalogs) checkTrees() error {
	for _, tt := range c.Trees.Templates {
		for l, layer := range tt.Layers {
			for r, row := range layer {
				for col, id := range row {
					if id == "" {
						continue
					}
					d, ok := c.Blocks.Defs[id]
					if !ok || !d.Stored() {
						return fmt.Errorf("tree %s: layer %d row %d col %d: block %q is not storable", tt.ID, l, r, col, id)
					}
				}
			}
		}
	}
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
