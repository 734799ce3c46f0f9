package models

// MaxLevel is the deepest level a block or corner can live at. Corner
// coordinates go up to 2^MaxLevel and must fit in the 29 bits reserved for
// each axis of a corner key.
const MaxLevel = 28

// Block is a quadtree cell. At level L the domain is split into 2^L x 2^L
// blocks and X, Y are in [0, 2^L).
type Block struct {
	Level int
	X     int
	Y     int
}

func NewBlock(level, x, y int) Block {
	return Block{Level: level, X: x, Y: y}
}

// Side returns the number of blocks per axis at the block level.
func (b Block) Side() int {
	return 1 << b.Level
}

func (b Block) Valid() bool {
	if b.Level < 0 || b.Level > MaxLevel {
		return false
	}
	side := b.Side()
	return b.X >= 0 && b.X < side && b.Y >= 0 && b.Y < side
}

// Corners returns the four lattice corners of the block, indexed by
// CornerPosition.
func (b Block) Corners() [4]Corner {
	return [4]Corner{
		BottomLeft:  {Level: b.Level, X: b.X, Y: b.Y},
		BottomRight: {Level: b.Level, X: b.X + 1, Y: b.Y},
		TopLeft:     {Level: b.Level, X: b.X, Y: b.Y + 1},
		TopRight:    {Level: b.Level, X: b.X + 1, Y: b.Y + 1},
	}
}

// Parent returns the block one level up that contains b. The parent of a
// level 0 block is itself.
func (b Block) Parent() Block {
	if b.Level == 0 {
		return b
	}
	return Block{Level: b.Level - 1, X: b.X >> 1, Y: b.Y >> 1}
}

// Children returns the four blocks one level down in Z order: low-y row
// first, low-x first within a row.
func (b Block) Children() [4]Block {
	l, x, y := b.Level+1, b.X<<1, b.Y<<1
	return [4]Block{
		{Level: l, X: x, Y: y},
		{Level: l, X: x + 1, Y: y},
		{Level: l, X: x, Y: y + 1},
		{Level: l, X: x + 1, Y: y + 1},
	}
}
