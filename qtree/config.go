package qtree

import (
	"math"
	"runtime"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/qtree/models"
)

// Domain is the rectangle the quadtree covers. Points are scaled from the
// domain onto the block grid of the requested level.
type Domain struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

func UnitDomain() Domain {
	return Domain{XMin: 0, YMin: 0, XMax: 1, YMax: 1}
}

func (d Domain) Width() float64 {
	return d.XMax - d.XMin
}

func (d Domain) Height() float64 {
	return d.YMax - d.YMin
}

func (d Domain) valid() bool {
	for _, v := range []float64{d.XMin, d.YMin, d.XMax, d.YMax, d.Width(), d.Height()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return d.Width() > 0 && d.Height() > 0
}

// Position returns the domain coordinates of a lattice corner.
func (d Domain) Position(c models.Corner) models.Point {
	side := float64(int(1) << c.Level)
	return models.Point{
		X: d.XMin + float64(c.X)/side*d.Width(),
		Y: d.YMin + float64(c.Y)/side*d.Height(),
	}
}

// Policy decides what happens to points that fall outside the domain by
// more than the configured tolerance.
type Policy int

const (
	// PolicyReject fails the whole batch with an out_of_domain error.
	PolicyReject Policy = iota
	// PolicyClamp moves the point onto the nearest domain edge and reports
	// it in Result.Clamped.
	PolicyClamp
)

func (p Policy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyClamp:
		return "clamp"
	default:
		return "unknown"
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject":
		return PolicyReject, nil
	case "clamp":
		return PolicyClamp, nil
	default:
		return 0, errors.New("unknown out of domain policy").
			WithType(ErrTypeInvalidConfig).
			WithTag("policy", s)
	}
}

// IndexMode decides the lifetime of corner indices.
type IndexMode int

const (
	// IndexStateless scopes indices to a single call.
	IndexStateless IndexMode = iota
	// IndexPersistent draws indices from a Registry that outlives calls.
	IndexPersistent
)

func (m IndexMode) String() string {
	switch m {
	case IndexStateless:
		return "stateless"
	case IndexPersistent:
		return "persistent"
	default:
		return "unknown"
	}
}

func ParseIndexMode(s string) (IndexMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stateless":
		return IndexStateless, nil
	case "persistent":
		return IndexPersistent, nil
	default:
		return 0, errors.New("unknown index mode").
			WithType(ErrTypeInvalidConfig).
			WithTag("index_mode", s)
	}
}

// Strategy decides how corners are deduplicated.
type Strategy int

const (
	// StrategySorted ranks corners by (level, x, y). Indices do not depend
	// on the order of the points in a batch.
	StrategySorted Strategy = iota
	// StrategyHashed numbers corners in the order they are first met.
	StrategyHashed
)

func (s Strategy) String() string {
	switch s {
	case StrategySorted:
		return "sorted"
	case StrategyHashed:
		return "hashed"
	default:
		return "unknown"
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sorted":
		return StrategySorted, nil
	case "hashed":
		return StrategyHashed, nil
	default:
		return 0, errors.New("unknown dedup strategy").
			WithType(ErrTypeInvalidConfig).
			WithTag("strategy", s)
	}
}

// Config holds the settings of an Engine. They are fixed for the life of
// the engine.
type Config struct {
	Domain Domain

	// MaxLevel is the deepest level a batch may request.
	MaxLevel int

	// Tolerance is how far, in domain units, a point may sit outside the
	// domain and still be absorbed into the edge blocks without being
	// treated as out of domain.
	Tolerance float64

	OutOfDomain Policy
	IndexMode   IndexMode
	Strategy    Strategy

	// MaxCorners bounds the number of corners a persistent registry may
	// hold. Zero means unbounded.
	MaxCorners int

	// Workers is the number of goroutines resolving points. Zero means
	// GOMAXPROCS.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		Domain:      UnitDomain(),
		MaxLevel:    16,
		OutOfDomain: PolicyReject,
		IndexMode:   IndexStateless,
		Strategy:    StrategySorted,
		MaxCorners:  1 << 24,
		Workers:     runtime.GOMAXPROCS(0),
	}
}

func (c Config) Validate() error {
	if !c.Domain.valid() {
		return errors.New("domain must be finite with a positive extent").
			WithType(ErrTypeInvalidConfig).
			WithTag("domain", c.Domain)
	}

	if c.MaxLevel < 0 || c.MaxLevel > models.MaxLevel {
		return errors.New("max level is out of range").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_level", c.MaxLevel).
			WithTag("limit", models.MaxLevel)
	}

	if c.Tolerance < 0 || math.IsNaN(c.Tolerance) || math.IsInf(c.Tolerance, 0) {
		return errors.New("tolerance must be a non-negative number").
			WithType(ErrTypeInvalidConfig).
			WithTag("tolerance", c.Tolerance)
	}

	if c.OutOfDomain.String() == "unknown" ||
		c.IndexMode.String() == "unknown" ||
		c.Strategy.String() == "unknown" {
		return errors.New("unknown policy, index mode or strategy").
			WithType(ErrTypeInvalidConfig).
			WithTag("policy", int(c.OutOfDomain)).
			WithTag("index_mode", int(c.IndexMode)).
			WithTag("strategy", int(c.Strategy))
	}

	if c.MaxCorners < 0 {
		return errors.New("max corners must not be negative").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_corners", c.MaxCorners)
	}

	if c.Workers < 0 {
		return errors.New("workers must not be negative").
			WithType(ErrTypeInvalidConfig).
			WithTag("workers", c.Workers)
	}

	return nil
}
