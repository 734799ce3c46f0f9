package models

// CornerPosition is the position of a corner within its block. Consumers
// rely on it to assign bilinear weights, so the order never changes.
type CornerPosition int

const (
	BottomLeft CornerPosition = iota
	BottomRight
	TopLeft
	TopRight
)

func (p CornerPosition) String() string {
	switch p {
	case BottomLeft:
		return "bottom_left"
	case BottomRight:
		return "bottom_right"
	case TopLeft:
		return "top_left"
	case TopRight:
		return "top_right"
	default:
		return "unknown"
	}
}

const (
	keyAxisBits   = 29
	keyAxisMask   = 1<<keyAxisBits - 1
	keyLevelShift = 2 * keyAxisBits
)

// Corner is a vertex of the level L corner lattice. X and Y are in
// [0, 2^L], one more point per axis than there are blocks.
type Corner struct {
	Level int
	X     int
	Y     int
}

func (c Corner) Valid() bool {
	if c.Level < 0 || c.Level > MaxLevel {
		return false
	}
	side := 1 << c.Level
	return c.X >= 0 && c.X <= side && c.Y >= 0 && c.Y <= side
}

// Key packs the corner into a single integer. Keys compare in the same
// order as (Level, X, Y) tuples. The corner must be valid.
func (c Corner) Key() uint64 {
	return uint64(c.Level)<<keyLevelShift | uint64(c.X)<<keyAxisBits | uint64(c.Y)
}

// CornerFromKey is the inverse of Corner.Key.
func CornerFromKey(k uint64) Corner {
	return Corner{
		Level: int(k >> keyLevelShift),
		X:     int(k >> keyAxisBits & keyAxisMask),
		Y:     int(k & keyAxisMask),
	}
}
