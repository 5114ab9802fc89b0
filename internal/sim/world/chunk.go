package world

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelgarden.ai/internal/sim/grid"
)

var (
	ErrUnknownType = errors.New("unknown block type")
	ErrOutOfBounds = errors.New("cell out of bounds")
	ErrForeignCell = errors.New("cell not owned by chunk")
	ErrChunkFull   = errors.New("instance table full")
	ErrSlotRange   = errors.New("slot out of range")
	ErrOccupied    = errors.New("cell already occupied")
)

// layout is the shared mapping from stored block ids to table positions.
type layout struct {
	names []string
	index map[string]int
}

func newLayout(names []string) *layout {
	l := &layout{names: append([]string(nil), names...), index: make(map[string]int, len(names))}
	for i, n := range names {
		l.index[n] = i
	}
	return l
}

// instanceTable is the dense per-type table. Slots [0, len(coords)) are live.
type instanceTable struct {
	transforms []mgl32.Mat4 // len == capacity
	coords     []grid.Cell  // slot -> cell
	slotOf     map[grid.Cell]int
	live       int // count published by Finalize
}

func (t *instanceTable) count() int { return len(t.coords) }

// Chunk owns the block instances of one fixed spatial region.
// It is not safe for concurrent use; World serializes access.
type Chunk struct {
	Index  int
	origin grid.Cell
	dims   grid.Dims
	layout *layout

	tables   []instanceTable
	occupant map[grid.Cell]int // cell -> table position
}

func newChunk(idx int, dims grid.Dims, l *layout) *Chunk {
	c := &Chunk{
		Index:    idx,
		origin:   dims.ChunkOrigin(idx),
		dims:     dims,
		layout:   l,
		tables:   make([]instanceTable, len(l.names)),
		occupant: map[grid.Cell]int{},
	}
	capacity := dims.ChunkCapacity()
	for i := range c.tables {
		c.tables[i] = instanceTable{
			transforms: make([]mgl32.Mat4, capacity),
			slotOf:     map[grid.Cell]int{},
		}
	}
	return c
}

func (c *Chunk) Origin() grid.Cell { return c.origin }

func (c *Chunk) Bounds() (min, max mgl32.Vec3) { return c.dims.ChunkBounds(c.Index) }

// Owns reports whether cell lies in this chunk's region.
func (c *Chunk) Owns(cell grid.Cell) bool {
	return cell.I >= c.origin.I && cell.I < c.origin.I+c.dims.ChunkSize[0] &&
		cell.J >= c.origin.J && cell.J < c.origin.J+c.dims.ChunkSize[1] &&
		cell.K >= c.origin.K && cell.K < c.origin.K+c.dims.ChunkSize[2]
}

func (c *Chunk) table(block string) (*instanceTable, int, error) {
	ti, ok := c.layout.index[block]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownType, block)
	}
	return &c.tables[ti], ti, nil
}

// AddBlock appends an instance at the next free slot and returns that slot.
func (c *Chunk) AddBlock(cell grid.Cell, block string) (int, error) {
	t, ti, err := c.table(block)
	if err != nil {
		return 0, err
	}
	if !c.Owns(cell) {
		return 0, fmt.Errorf("%w: chunk %d cell %v", ErrForeignCell, c.Index, cell)
	}
	if _, taken := c.occupant[cell]; taken {
		return 0, fmt.Errorf("%w: %v", ErrOccupied, cell)
	}
	slot := t.count()
	if slot >= len(t.transforms) {
		return 0, fmt.Errorf("%w: chunk %d %s", ErrChunkFull, c.Index, block)
	}
	p := c.dims.WorldPosition(cell)
	t.transforms[slot] = mgl32.Translate3D(p.X(), p.Y(), p.Z())
	t.coords = append(t.coords, cell)
	t.slotOf[cell] = slot
	c.occupant[cell] = ti
	return slot, nil
}

// RemoveInstance swap-removes the instance at slot. The previous last slot moves into
// slot, so slot indices held by callers are invalid after any removal of the same type.
func (c *Chunk) RemoveInstance(block string, slot int) error {
	t, _, err := c.table(block)
	if err != nil {
		return err
	}
	last := t.count() - 1
	if slot < 0 || slot > last {
		return fmt.Errorf("%w: %s slot %d of %d", ErrSlotRange, block, slot, t.count())
	}
	removed := t.coords[slot]
	if slot != last {
		moved := t.coords[last]
		t.transforms[slot] = t.transforms[last]
		t.coords[slot] = moved
		t.slotOf[moved] = slot
	}
	t.coords = t.coords[:last]
	delete(t.slotOf, removed)
	delete(c.occupant, removed)
	if t.live > last {
		t.live = last
	}
	return nil
}

// RemoveAt removes whatever instance occupies cell, resolving the slot by coordinate.
func (c *Chunk) RemoveAt(cell grid.Cell) (string, bool) {
	ti, ok := c.occupant[cell]
	if !ok {
		return "", false
	}
	block := c.layout.names[ti]
	slot := c.tables[ti].slotOf[cell]
	if err := c.RemoveInstance(block, slot); err != nil {
		return "", false
	}
	return block, true
}

// Finalize publishes every table's count as its live length for readers.
func (c *Chunk) Finalize() {
	for i := range c.tables {
		c.tables[i].live = c.tables[i].count()
	}
}

func (c *Chunk) TypeAt(cell grid.Cell) (string, bool) {
	ti, ok := c.occupant[cell]
	if !ok {
		return "", false
	}
	return c.layout.names[ti], true
}

func (c *Chunk) SlotOf(block string, cell grid.Cell) (int, bool) {
	t, _, err := c.table(block)
	if err != nil {
		return 0, false
	}
	slot, ok := t.slotOf[cell]
	return slot, ok
}

func (c *Chunk) Count(block string) int {
	t, _, err := c.table(block)
	if err != nil {
		return 0
	}
	return t.count()
}

// Live is the count last published by Finalize.
func (c *Chunk) Live(block string) int {
	t, _, err := c.table(block)
	if err != nil {
		return 0
	}
	return t.live
}

func (c *Chunk) Len() int { return len(c.occupant) }

// Coords returns a copy of the slot -> cell list for block.
func (c *Chunk) Coords(block string) []grid.Cell {
	t, _, err := c.table(block)
	if err != nil {
		return nil
	}
	return append([]grid.Cell(nil), t.coords...)
}

// Transforms returns a copy of the published instance transforms for block.
func (c *Chunk) Transforms(block string) []mgl32.Mat4 {
	t, _, err := c.table(block)
	if err != nil {
		return nil
	}
	return append([]mgl32.Mat4(nil), t.transforms[:t.live]...)
}

// checkInvariants verifies the table bookkeeping. Used by tests.
func (c *Chunk) checkInvariants() error {
	total := 0
	for ti := range c.tables {
		t := &c.tables[ti]
		name := c.layout.names[ti]
		if len(t.slotOf) != t.count() {
			return fmt.Errorf("%s: index size %d != count %d", name, len(t.slotOf), t.count())
		}
		for slot, cell := range t.coords {
			if got, ok := t.slotOf[cell]; !ok || got != slot {
				return fmt.Errorf("%s: slot %d cell %v indexed as %d", name, slot, cell, got)
			}
			if occ, ok := c.occupant[cell]; !ok || occ != ti {
				return fmt.Errorf("%s: cell %v missing from occupant map", name, cell)
			}
			p := c.dims.WorldPosition(cell)
			if !t.transforms[slot].Col(3).Vec3().ApproxEqual(p) {
				return fmt.Errorf("%s: slot %d transform does not match cell %v", name, slot, cell)
			}
		}
		total += t.count()
	}
	if total != len(c.occupant) {
		return fmt.Errorf("occupant map size %d != instances %d", len(c.occupant), total)
	}
	return nil
}
