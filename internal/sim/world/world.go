package world

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelgarden.ai/internal/sim/catalogs"
	"voxelgarden.ai/internal/sim/grid"
)

// World owns every chunk and the player ledger. All mutations run under one exclusive
// lock so a background growth tick can never interleave with a player action.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	dims     grid.Dims
	layout   *layout

	mu     sync.RWMutex
	chunks []*Chunk
	ledger Ledger
	rng    *rand.Rand

	// Audit entries produced under mu, flushed after unlock.
	pending []AuditEntry

	seq       atomic.Uint64
	applied   atomic.Uint64
	refused   atomic.Uint64
	// auditLock is taken before mu is released so entries reach the logger in seq order.
	auditLock sync.Mutex
	audit     AuditLogger
	logger    *log.Logger
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	cfg.applyDefaults()
	dims := cfg.Dims()
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if cfg.SoilStart() < 0 {
		return nil, fmt.Errorf("world: soil depth %d + air depth %d exceeds grid depth %d", cfg.SoilDepth, cfg.AirDepth, cfg.GridDepth)
	}
	for _, id := range cfg.ClearOnStart {
		if d, ok := cats.Block(id); !ok || !d.Stored() {
			return nil, fmt.Errorf("world: clear_on_start: %w: %q", ErrUnknownType, id)
		}
	}

	l := newLayout(cats.StoredPalette())
	w := &World{
		cfg:      cfg,
		catalogs: cats,
		dims:     dims,
		layout:   l,
		chunks:   make([]*Chunk, dims.NumChunks()),
		ledger:   newLedger(cfg.StartingResources),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		logger:   log.New(os.Stderr, "[world] ", log.LstdFlags|log.Lmicroseconds),
	}
	for i := range w.chunks {
		w.chunks[i] = newChunk(i, dims, l)
	}
	return w, nil
}

func (w *World) SetAuditLogger(l AuditLogger) {
	w.auditLock.Lock()
	w.audit = l
	w.auditLock.Unlock()
}

// SetLogger replaces the logger that reports audit write failures.
func (w *World) SetLogger(l *log.Logger) {
	if l == nil {
		return
	}
	w.auditLock.Lock()
	w.logger = l
	w.auditLock.Unlock()
}

func (w *World) Config() WorldConfig           { return w.cfg }
func (w *World) Dims() grid.Dims               { return w.dims }
func (w *World) Catalogs() *catalogs.Catalogs  { return w.catalogs }
func (w *World) StoredBlocks() []string        { return append([]string(nil), w.layout.names...) }
func (w *World) MutationSeq() uint64           { return w.seq.Load() }

// chunkAtLocked returns the owning chunk or nil when any axis is out of range.
func (w *World) chunkAtLocked(c grid.Cell) *Chunk {
	if !w.dims.InBounds(c) {
		return nil
	}
	return w.chunks[w.dims.ChunkIndexOf(c)]
}

// ChunkAt returns the index of the chunk owning c.
func (w *World) ChunkAt(c grid.Cell) (int, bool) {
	if !w.dims.InBounds(c) {
		return 0, false
	}
	return w.dims.ChunkIndexOf(c), true
}

func (w *World) isOccupiedLocked(c grid.Cell) bool {
	ch := w.chunkAtLocked(c)
	if ch == nil {
		return true
	}
	_, ok := ch.TypeAt(c)
	return ok
}

// IsOccupied is true for any stored instance at c and for every out-of-bounds cell.
func (w *World) IsOccupied(c grid.Cell) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isOccupiedLocked(c)
}

// BlockAt returns the block type at c, or catalogs.Air when the cell is empty.
func (w *World) BlockAt(c grid.Cell) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ch := w.chunkAtLocked(c)
	if ch == nil {
		return "", false
	}
	if b, ok := ch.TypeAt(c); ok {
		return b, true
	}
	return catalogs.Air, true
}

func (w *World) totalOfLocked(block string) int {
	n := 0
	for _, ch := range w.chunks {
		n += ch.Count(block)
	}
	return n
}

// TotalOf sums the instance count of block over all chunks.
func (w *World) TotalOf(block string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.totalOfLocked(block)
}

// CellsOf returns every cell currently holding block, in chunk then slot order.
func (w *World) CellsOf(block string) []grid.Cell {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []grid.Cell
	for _, ch := range w.chunks {
		out = append(out, ch.Coords(block)...)
	}
	return out
}

func (w *World) Ledger() map[string]int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ledger.snapshot()
}

func (w *World) LedgerCount(block string) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ledger.Count(block)
}

// SetLedger replaces the ledger. Negative counts are dropped.
func (w *World) SetLedger(counts map[string]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ledger = newLedger(counts)
}

// InstanceRef identifies one live instance at the time of a visit.
type InstanceRef struct {
	Chunk int
	Block string
	Slot  int
	Cell  grid.Cell
}

// VisitInstances calls fn for every stored instance of every chunk accepted by keep.
// A nil keep accepts all chunks. Returning false from fn stops the walk.
func (w *World) VisitInstances(keep func(chunk int, min, max mgl32.Vec3) bool, fn func(InstanceRef) bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, ch := range w.chunks {
		if ch.Len() == 0 {
			continue
		}
		if keep != nil {
			min, max := ch.Bounds()
			if !keep(ch.Index, min, max) {
				continue
			}
		}
		for ti := range ch.tables {
			block := ch.layout.names[ti]
			for slot, cell := range ch.tables[ti].coords {
				if !fn(InstanceRef{Chunk: ch.Index, Block: block, Slot: slot, Cell: cell}) {
					return
				}
			}
		}
	}
}

// TableView is the render boundary: live transforms of one block type in one chunk.
type TableView struct {
	Block      string
	Count      int
	Transforms []mgl32.Mat4
}

type ChunkView struct {
	Index     int
	Origin    grid.Cell
	BoundsMin mgl32.Vec3
	BoundsMax mgl32.Vec3
	Tables    []TableView
}

func (w *World) NumChunks() int { return len(w.chunks) }

func (w *World) ChunkView(idx int) (ChunkView, bool) {
	if idx < 0 || idx >= len(w.chunks) {
		return ChunkView{}, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	ch := w.chunks[idx]
	min, max := ch.Bounds()
	v := ChunkView{Index: idx, Origin: ch.Origin(), BoundsMin: min, BoundsMax: max}
	for _, block := range w.layout.names {
		v.Tables = append(v.Tables, TableView{
			Block:      block,
			Count:      ch.Live(block),
			Transforms: ch.Transforms(block),
		})
	}
	return v, true
}

type WorldMetrics struct {
	Chunks    int            `json:"chunks"`
	Totals    map[string]int `json:"totals"`
	Ledger    map[string]int `json:"ledger"`
	Mutations uint64         `json:"mutations"`
	Applied   uint64         `json:"applied"`
	Refused   uint64         `json:"refused"`
}

func (w *World) Metrics() WorldMetrics {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m := WorldMetrics{
		Chunks:    len(w.chunks),
		Totals:    map[string]int{},
		Ledger:    w.ledger.snapshot(),
		Mutations: w.seq.Load(),
		Applied:   w.applied.Load(),
		Refused:   w.refused.Load(),
	}
	for _, b := range w.layout.names {
		m.Totals[b] = w.totalOfLocked(b)
	}
	return m
}

// mutate runs fn under the exclusive lock and flushes the audit entries it queued.
func (w *World) mutate(fn func() Result) Result {
	w.mu.Lock()
	res := fn()
	entries := w.pending
	w.pending = nil
	w.auditLock.Lock()
	w.mu.Unlock()
	defer w.auditLock.Unlock()

	if w.audit == nil {
		return res
	}
	for _, e := range entries {
		if err := w.audit.WriteAudit(e); err != nil {
			w.logger.Printf("audit seq=%d %s %s: %v", e.Seq, e.Action, e.Outcome, err)
		}
	}
	return res
}

func (w *World) record(actor Actor, res Result) {
	seq := w.seq.Add(1)
	if res.OK() {
		w.applied.Add(1)
	} else {
		w.refused.Add(1)
	}
	w.pending = append(w.pending, AuditEntry{
		Seq:      seq,
		Actor:    string(actor),
		Action:   res.Action,
		Block:    res.Block,
		Pos:      res.Cell.Array(),
		Outcome:  string(res.Outcome),
		Reason:   res.Reason,
		Template: res.Template,
		Added:    res.Added,
		Removed:  res.Removed,
		Credited: res.Credited,
		Chunks:   res.Chunks,
		UnixMs:   time.Now().UnixMilli(),
	})
}

// checkInvariants verifies every chunk. Used by tests.
func (w *World) checkInvariants() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, ch := range w.chunks {
		if err := ch.checkInvariants(); err != nil {
			return fmt.Errorf("chunk %d: %w", ch.Index, err)
		}
		for cell := range ch.occupant {
			if !ch.Owns(cell) || w.dims.ChunkIndexOf(cell) != ch.Index {
				return fmt.Errorf("chunk %d holds foreign cell %v", ch.Index, cell)
			}
		}
	}
	return nil
}
