// Package quadtree decodes the packed quadtrees that partition a frame into
// coding blocks.
//
// A frame is a grid of 64x64 coding tree units (CTU). Each CTU carries a
// TreeBytes long bit field. Node pos stores its split flag at bit 2*pos and
// its type flag at bit 2*pos+1, least significant bit first within a byte.
// The root is node 0 and the children of node i are nodes 4*i+1 to 4*i+4,
// ordered top-left, top-right, bottom-left, bottom-right.
package quadtree

const (
	// TreeBytes is the size of the bit field of one CTU.
	TreeBytes = 128

	// CTUSize is the edge of a CTU in pixels.
	CTUSize = 64

	// MinLeafSize is the edge of the smallest block. A split node of size
	// 8 yields four leaves of this size without further flags.
	MinLeafSize = 4

	maxDepth = 3
)

// NewTrees returns zeroed bit fields for a gridHeight x gridWidth frame. A
// zeroed CTU is a single 64x64 leaf.
func NewTrees(gridHeight, gridWidth int) []byte {
	return make([]byte, gridHeight*gridWidth*TreeBytes)
}

// IsSplit reports whether node pos of tree is split into four children.
func IsSplit(tree []byte, pos int) bool {
	return isSet(tree, 2*pos)
}

// IsTypeSet reports whether the type flag of node pos is set.
func IsTypeSet(tree []byte, pos int) bool {
	return isSet(tree, 2*pos+1)
}

func SetSplit(tree []byte, pos int, v bool) {
	set(tree, 2*pos, v)
}

func SetType(tree []byte, pos int, v bool) {
	set(tree, 2*pos+1, v)
}

// ParentBitIdx returns the parent of node pos. The root has no parent and
// pos must be greater than zero.
func ParentBitIdx(pos int) int {
	return (pos - 1) / 4
}

// ChildBitIdx returns the first child of node pos.
func ChildBitIdx(pos int) int {
	return 4*pos + 1
}

func isSet(tree []byte, bit int) bool {
	return tree[bit/8]&(1<<(bit%8)) != 0
}

func set(tree []byte, bit int, v bool) {
	if v {
		tree[bit/8] |= 1 << (bit % 8)
		return
	}
	tree[bit/8] &^= 1 << (bit % 8)
}
