// Package grid maps between integer world cells, chunk indices and render-space positions.
// Every other package goes through these helpers so the conversions cannot drift apart.
package grid

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Cell is an integer world coordinate. I and J span the horizontal plane, K is vertical.
type Cell struct {
	I, J, K int
}

func (c Cell) Offset(di, dj, dk int) Cell { return Cell{I: c.I + di, J: c.J + dj, K: c.K + dk} }
func (c Cell) Up() Cell                   { return c.Offset(0, 0, 1) }
func (c Cell) Down() Cell                 { return c.Offset(0, 0, -1) }
func (c Cell) Array() [3]int              { return [3]int{c.I, c.J, c.K} }
func (c Cell) String() string             { return fmt.Sprintf("(%d,%d,%d)", c.I, c.J, c.K) }

func CellFromArray(a [3]int) Cell { return Cell{I: a[0], J: a[1], K: a[2]} }

// Dims describes the world extent and how it is partitioned into chunks.
// ChunkSize is ordered (i, j, k).
type Dims struct {
	GridSize  int
	GridDepth int
	ChunkSize [3]int
	TileSize  float32
}

func (d Dims) Validate() error {
	if d.GridSize <= 0 || d.GridDepth <= 0 {
		return fmt.Errorf("grid: invalid extent %dx%dx%d", d.GridSize, d.GridSize, d.GridDepth)
	}
	for axis, n := range d.ChunkSize {
		if n <= 0 {
			return fmt.Errorf("grid: chunk size axis %d must be positive, got %d", axis, n)
		}
	}
	if d.TileSize <= 0 {
		return fmt.Errorf("grid: tile size must be positive, got %v", d.TileSize)
	}
	return nil
}

func (d Dims) Extent() [3]int { return [3]int{d.GridSize, d.GridSize, d.GridDepth} }

// ChunkCount is ceil(extent / chunk size) per axis.
func (d Dims) ChunkCount() [3]int {
	ext := d.Extent()
	var out [3]int
	for a := 0; a < 3; a++ {
		out[a] = (ext[a] + d.ChunkSize[a] - 1) / d.ChunkSize[a]
	}
	return out
}

func (d Dims) NumChunks() int {
	cc := d.ChunkCount()
	return cc[0] * cc[1] * cc[2]
}

// ChunkCapacity is the number of cells one chunk can hold.
func (d Dims) ChunkCapacity() int {
	return d.ChunkSize[0] * d.ChunkSize[1] * d.ChunkSize[2]
}

func (d Dims) InBounds(c Cell) bool {
	return c.I >= 0 && c.I < d.GridSize &&
		c.J >= 0 && c.J < d.GridSize &&
		c.K >= 0 && c.K < d.GridDepth
}

// ChunkCoordOf returns the chunk coordinate owning c. Total over all integers.
func (d Dims) ChunkCoordOf(c Cell) [3]int {
	return [3]int{
		FloorDiv(c.I, d.ChunkSize[0]),
		FloorDiv(c.J, d.ChunkSize[1]),
		FloorDiv(c.K, d.ChunkSize[2]),
	}
}

// ChunkIndexOf linearizes the owning chunk coordinate. It performs no bounds check:
// cells outside the world produce indices that do not name a real chunk.
func (d Dims) ChunkIndexOf(c Cell) int {
	return d.IndexOfChunkCoord(d.ChunkCoordOf(c))
}

func (d Dims) IndexOfChunkCoord(cc [3]int) int {
	n := d.ChunkCount()
	return cc[0]*n[1]*n[2] + cc[1]*n[2] + cc[2]
}

// ChunkCoordOfIndex is the inverse of IndexOfChunkCoord for indices in [0, NumChunks).
func (d Dims) ChunkCoordOfIndex(idx int) [3]int {
	n := d.ChunkCount()
	return [3]int{idx / (n[1] * n[2]), (idx / n[2]) % n[1], idx % n[2]}
}

// ChunkOrigin is the first cell covered by the chunk at idx.
func (d Dims) ChunkOrigin(idx int) Cell {
	cc := d.ChunkCoordOfIndex(idx)
	return Cell{I: cc[0] * d.ChunkSize[0], J: cc[1] * d.ChunkSize[1], K: cc[2] * d.ChunkSize[2]}
}

func (d Dims) halfExtents() (halfX, halfY float32) {
	ts := d.TileSize
	halfX = float32(d.GridSize)*ts/2 - ts/2
	halfY = float32(d.GridDepth)*ts/2 - ts/2
	return halfX, halfY
}

// WorldPosition maps a cell to its render-space center. Render y is the vertical axis,
// so x comes from i, y from k and z from j.
func (d Dims) WorldPosition(c Cell) mgl32.Vec3 {
	ts := d.TileSize
	halfX, halfY := d.halfExtents()
	return mgl32.Vec3{
		float32(c.I)*ts - halfX + ts/2,
		float32(c.K)*ts - halfY + ts/2,
		float32(c.J)*ts - halfX + ts/2,
	}
}

// CellBounds is the render-space box occupied by one cell.
func (d Dims) CellBounds(c Cell) (min, max mgl32.Vec3) {
	center := d.WorldPosition(c)
	h := d.TileSize / 2
	return center.Sub(mgl32.Vec3{h, h, h}), center.Add(mgl32.Vec3{h, h, h})
}

// ChunkBounds is the render-space bounding volume of the chunk at idx, used for culling.
func (d Dims) ChunkBounds(idx int) (min, max mgl32.Vec3) {
	o := d.ChunkOrigin(idx)
	ts := d.TileSize
	halfX, halfY := d.halfExtents()
	min = mgl32.Vec3{
		float32(o.I)*ts - halfX,
		float32(o.K)*ts - halfY,
		float32(o.J)*ts - halfX,
	}
	max = min.Add(mgl32.Vec3{
		float32(d.ChunkSize[0]) * ts,
		float32(d.ChunkSize[2]) * ts,
		float32(d.ChunkSize[1]) * ts,
	})
	return min, max
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
