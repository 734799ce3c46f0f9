package quadtree

import (
	"math/bits"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/qtree/models"
)

// ErrTypeShapeMismatch is the error type returned when the tree buffer does
// not match the grid dimensions.
const ErrTypeShapeMismatch = "shape_mismatch"

// Leaf is an unsplit block of a frame. Y and X are the pixel coordinates of
// its top-left corner.
type Leaf struct {
	Y    int
	X    int
	Size int
}

// Block returns the leaf as a block of the frame lattice. Rows of the frame
// grow downwards so block Y follows leaf Y.
func (l Leaf) Block(frameLevel int) models.Block {
	return models.Block{
		Level: frameLevel + depth(l.Size),
		X:     l.X / l.Size,
		Y:     l.Y / l.Size,
	}
}

// FrameLevel returns the smallest level whose block grid covers a
// gridHeight x gridWidth CTU grid with one block per CTU.
func FrameLevel(gridHeight, gridWidth int) int {
	n := max(gridHeight, gridWidth)
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Leaves walks the CTUs of a frame in raster order and returns their leaves,
// each CTU in Z order.
func Leaves(trees []byte, gridHeight, gridWidth int) ([]Leaf, error) {
	if gridHeight <= 0 || gridWidth <= 0 {
		return nil, errors.New("grid dimensions must be positive").
			WithType(ErrTypeShapeMismatch).
			WithTag("grid_height", gridHeight).
			WithTag("grid_width", gridWidth)
	}

	// Compared by division so huge dimensions cannot overflow the product.
	if gridHeight > len(trees)/TreeBytes/gridWidth {
		return nil, errors.New("tree buffer is too short").
			WithType(ErrTypeShapeMismatch).
			WithTag("grid_height", gridHeight).
			WithTag("grid_width", gridWidth).
			WithTag("len", len(trees)).
			WithTag("tree_bytes", TreeBytes)
	}

	leaves := make([]Leaf, 0, gridHeight*gridWidth)
	for i := 0; i < gridHeight*gridWidth; i++ {
		tree := trees[i*TreeBytes : (i+1)*TreeBytes]
		y := (i / gridWidth) * CTUSize
		x := (i % gridWidth) * CTUSize
		leaves = walk(leaves, tree, 0, 0, y, x, CTUSize)
	}
	return leaves, nil
}

func walk(leaves []Leaf, tree []byte, pos, d, y, x, size int) []Leaf {
	if !IsSplit(tree, pos) {
		return append(leaves, Leaf{Y: y, X: x, Size: size})
	}

	half := size / 2
	for k := 0; k < 4; k++ {
		cy := y + (k/2)*half
		cx := x + (k%2)*half

		if d == maxDepth {
			leaves = append(leaves, Leaf{Y: cy, X: cx, Size: half})
			continue
		}
		leaves = walk(leaves, tree, ChildBitIdx(pos)+k, d+1, cy, cx, half)
	}
	return leaves
}

// depth returns how many times a CTU is split to get blocks of size.
func depth(size int) int {
	return bits.TrailingZeros(uint(CTUSize)) - bits.TrailingZeros(uint(size))
}
