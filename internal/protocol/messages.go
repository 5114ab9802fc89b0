package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// MaxQueue bounds the per-session outbound queue.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldID         string         `json:"world_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
	Blocks          []BlockRule    `json:"blocks"`
	Trees           []string       `json:"trees"`
	Ledger          map[string]int `json:"ledger"`
}

type WorldParams struct {
	GridSize  int     `json:"grid_size"`
	GridDepth int     `json:"grid_depth"`
	ChunkSize [3]int  `json:"chunk_size"`
	NumChunks int     `json:"num_chunks"`
	TileSize  float32 `json:"tile_size"`
	Seed      int64   `json:"seed"`
}

type CatalogDigests struct {
	BlockPalette DigestRef `json:"block_palette"`
	BlockDefs    string    `json:"block_defs_digest"`
	Trees        string    `json:"trees_digest"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// BlockRule is the client view of one block type's interaction rules.
type BlockRule struct {
	ID                 string         `json:"id"`
	Tool               string         `json:"tool,omitempty"`
	Yield              map[string]int `json:"yield,omitempty"`
	MinRemainingBlocks int            `json:"min_remaining_blocks"`
	Breakable          bool           `json:"breakable"`
	Placeable          bool           `json:"placeable"`
	Structure          bool           `json:"structure,omitempty"`
}

// Pointer is a normalized device coordinate plus the camera that produced it.
// Matrices are column-major, as mgl32 stores them.
type Pointer struct {
	NDC  [2]float32  `json:"ndc"`
	View [16]float32 `json:"view"`
	Proj [16]float32 `json:"proj"`
}

// ACT (client -> server). Exactly one of Pointer or Cell selects the target.
type ActMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id"`
	Action          string   `json:"action"`
	Mode            string   `json:"mode,omitempty"` // PREVIEW only: DIG or BUILD
	Block           string   `json:"block,omitempty"`
	Pointer         *Pointer `json:"pointer,omitempty"`
	Cell            *[3]int  `json:"cell,omitempty"`
}

// RESULT (server -> client), one per ACT.
type ResultMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ActID           string         `json:"act_id"`
	Action          string         `json:"action"`
	Outcome         string         `json:"outcome"`
	Code            string         `json:"code,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Block           string         `json:"block,omitempty"`
	Cell            [3]int         `json:"cell"`
	Template        string         `json:"template,omitempty"`
	Added           int            `json:"added,omitempty"`
	Removed         int            `json:"removed,omitempty"`
	Credited        map[string]int `json:"credited,omitempty"`

	// Preview fields.
	Allowed  bool       `json:"allowed,omitempty"`
	Tool     string     `json:"tool,omitempty"`
	Position [3]float32 `json:"position,omitempty"`
}

// LEDGER (server -> client)
type LedgerMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Seq             uint64         `json:"seq"`
	Resources       map[string]int `json:"resources"`
}

// CHUNK (server -> client): the render tables of one chunk.
type ChunkMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Seq             uint64       `json:"seq"`
	Index           int          `json:"index"`
	Origin          [3]int       `json:"origin"`
	BoundsMin       [3]float32   `json:"bounds_min"`
	BoundsMax       [3]float32   `json:"bounds_max"`
	Tables          []ChunkTable `json:"tables"`
}

type ChunkTable struct {
	Block      string        `json:"block"`
	Count      int           `json:"count"`
	Transforms [][16]float32 `json:"transforms"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
