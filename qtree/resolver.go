package qtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/qtree/models"
)

// Resolver maps points to the block containing them at a given level. It
// holds no mutable state and is safe for concurrent use.
type Resolver struct {
	domain    Domain
	maxLevel  int
	tolerance float64
	policy    Policy
}

func NewResolver(conf Config) Resolver {
	return Resolver{
		domain:    conf.Domain,
		maxLevel:  conf.MaxLevel,
		tolerance: conf.Tolerance,
		policy:    conf.OutOfDomain,
	}
}

// Resolve returns the block containing p at the given level. The second
// result reports whether p was outside the domain and got clamped onto it,
// which only happens under PolicyClamp.
//
// Cells cover [min, min+size) so a point on the max edge of the domain lands
// in the last row or column rather than past the grid.
func (r Resolver) Resolve(p models.Point, level int) (models.Block, bool, error) {
	if level < 0 || level > r.maxLevel {
		return models.Block{}, false, errors.New("level is out of range").
			WithType(ErrTypeInvalidLevel).
			WithTag("level", level).
			WithTag("max_level", r.maxLevel)
	}

	if p.IsNaN() {
		return models.Block{}, false, errors.New("point is not a number").
			WithType(ErrTypeOutOfDomain).
			WithTag("x", p.X).
			WithTag("y", p.Y)
	}

	outsideX := r.outside(p.X, r.domain.XMin, r.domain.XMax)
	outsideY := r.outside(p.Y, r.domain.YMin, r.domain.YMax)
	clamped := outsideX || outsideY
	if clamped && r.policy == PolicyReject {
		return models.Block{}, false, errors.New("point is outside the domain").
			WithType(ErrTypeOutOfDomain).
			WithTag("x", p.X).
			WithTag("y", p.Y).
			WithTag("tolerance", r.tolerance)
	}

	side := 1 << level
	return models.Block{
		Level: level,
		X:     cell(p.X, r.domain.XMin, r.domain.XMax, side),
		Y:     cell(p.Y, r.domain.YMin, r.domain.YMax, side),
	}, clamped, nil
}

func (r Resolver) outside(v, lo, hi float64) bool {
	return v < lo-r.tolerance || v > hi+r.tolerance
}

// cell floors v onto a grid of side cells spanning [lo, hi], clamping the
// result into [0, side-1].
func cell(v, lo, hi float64, side int) int {
	v = math.Max(lo, math.Min(hi, v))
	i := int(math.Floor((v - lo) / (hi - lo) * float64(side)))
	if i < 0 {
		return 0
	}
	if i > side-1 {
		return side - 1
	}
	return i
}
