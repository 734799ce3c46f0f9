package qtree

import (
	"cmp"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/qtree/models"
	"golang.org/x/sync/errgroup"
)

// minChunkRows is the smallest number of rows handed to a worker. Smaller
// batches are resolved on the calling goroutine.
const minChunkRows = 256

// Batch is the input of one engine call.
type Batch struct {
	Points []models.Point

	// Level applies to every point when neither Levels nor LevelSet is set.
	Level int

	// Levels holds one level per point.
	Levels []int

	// LevelSet evaluates every point at every listed level. Rows are point
	// major: row p*len(LevelSet)+k is point p at LevelSet[k].
	LevelSet []int
}

// Rows returns the number of (point, level) rows the batch expands to.
func (b Batch) Rows() (int, error) {
	switch {
	case b.Levels != nil && len(b.LevelSet) != 0:
		return 0, errors.New("levels and level set are mutually exclusive").
			WithType(ErrTypeShapeMismatch).
			WithTag("levels", len(b.Levels)).
			WithTag("level_set", len(b.LevelSet))

	case b.Levels != nil && len(b.Levels) != len(b.Points):
		return 0, errors.New("levels and points have different lengths").
			WithType(ErrTypeShapeMismatch).
			WithTag("points", len(b.Points)).
			WithTag("levels", len(b.Levels))

	case len(b.LevelSet) != 0:
		return len(b.Points) * len(b.LevelSet), nil

	default:
		return len(b.Points), nil
	}
}

func (b Batch) row(r int) (point int, level int) {
	switch {
	case len(b.LevelSet) != 0:
		return r / len(b.LevelSet), b.LevelSet[r%len(b.LevelSet)]
	case b.Levels != nil:
		return r, b.Levels[r]
	default:
		return r, b.Level
	}
}

// TableEntry is a distinct corner referenced by a batch.
type TableEntry struct {
	Index  int
	Corner models.Corner
}

// Result is the output of one engine call.
type Result struct {
	// Blocks holds the block of every row.
	Blocks []models.Block

	// Corners holds, for every row, the indices of the block corners in
	// models.CornerPosition order.
	Corners [][4]int

	// Table lists every corner referenced by Corners exactly once, ordered
	// by index. Without a registry Table[i].Index is i.
	Table []TableEntry

	// Clamped is the number of points moved onto the domain edge under
	// PolicyClamp.
	Clamped int
}

// Positions returns the domain coordinates of every table entry.
func (r *Result) Positions(d Domain) []models.Point {
	points := make([]models.Point, len(r.Table))
	for i, e := range r.Table {
		points[i] = d.Position(e.Corner)
	}
	return points
}

// Engine computes block corners for batches of points.
type Engine struct {
	conf     Config
	resolver Resolver
	registry *Registry
}

// New creates an engine. In persistent mode the engine owns a registry
// bounded by Config.MaxCorners, released by Close.
func New(conf Config) (*Engine, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	if conf.Workers == 0 {
		conf.Workers = runtime.GOMAXPROCS(0)
	}

	e := &Engine{
		conf:     conf,
		resolver: NewResolver(conf),
	}

	if conf.IndexMode == IndexPersistent {
		e.registry = NewRegistry(conf.MaxCorners)
	}
	return e, nil
}

func (e *Engine) Config() Config {
	return e.conf
}

func (e *Engine) Resolver() Resolver {
	return e.resolver
}

// Registry returns the engine registry, nil in stateless mode.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Position returns the domain coordinates of a lattice corner.
func (e *Engine) Position(c models.Corner) models.Point {
	return e.conf.Domain.Position(c)
}

// Close releases the engine registry.
func (e *Engine) Close() {
	if e.registry != nil {
		e.registry.Close()
	}
}

// Compute resolves a batch, indexing corners with the engine registry in
// persistent mode and per call otherwise.
func (e *Engine) Compute(b Batch) (*Result, error) {
	return e.ComputeIn(e.registry, b)
}

// ComputeIn resolves a batch, indexing corners with reg. A nil reg indexes
// corners for this call only.
//
// The call is atomic: on error nothing is returned and reg is unchanged.
func (e *Engine) ComputeIn(reg *Registry, b Batch) (*Result, error) {
	start := time.Now()
	res, err := e.compute(reg, b)
	instrumentBatch(modeOf(reg), e.conf.Strategy, start, res, err)
	if err != nil {
		return nil, err
	}

	if res.Clamped > 0 {
		logs.WithTag("clamped_points", res.Clamped).
			WithTag("points", len(b.Points)).
			WithTag("tolerance", e.conf.Tolerance).
			Warn("points clamped into domain")
	}

	logs.WithTag("rows", len(res.Blocks)).
		WithTag("corners", len(res.Table)).
		WithTag("index_mode", modeOf(reg).String()).
		Debug("corner batch computed")
	return res, nil
}

// ComputeBlocks indexes the corners of blocks that are already known, for
// example the leaves of a decoded quadtree.
func (e *Engine) ComputeBlocks(reg *Registry, blocks []models.Block) (*Result, error) {
	start := time.Now()
	res, err := e.computeBlocks(reg, blocks)
	instrumentBatch(modeOf(reg), e.conf.Strategy, start, res, err)
	if err != nil {
		return nil, err
	}

	logs.WithTag("rows", len(res.Blocks)).
		WithTag("corners", len(res.Table)).
		WithTag("index_mode", modeOf(reg).String()).
		Debug("block corners computed")
	return res, nil
}

func (e *Engine) compute(reg *Registry, b Batch) (*Result, error) {
	rows, err := b.Rows()
	if err != nil {
		return nil, err
	}

	if err := e.checkLevels(b); err != nil {
		return nil, err
	}

	blocks := make([]models.Block, rows)
	keys := make([]uint64, 4*rows)
	var clamped atomic.Int64

	err = e.parallel(rows, func(lo, hi int) error {
		var n int64
		for r := lo; r < hi; r++ {
			p, level := b.row(r)

			block, c, err := e.resolver.Resolve(b.Points[p], level)
			if err != nil {
				return errors.Newf("resolving point %d failed", p).
					WithType(errors.Type(err)).
					WithTag("point_index", p).
					Wrap(err)
			}

			// A point clamps at every level of a level set; count it once.
			if c && (len(b.LevelSet) == 0 || r%len(b.LevelSet) == 0) {
				n++
			}

			blocks[r] = block
			putCornerKeys(keys[4*r:4*r+4], block)
		}
		clamped.Add(n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res, err := e.index(reg, blocks, keys)
	if err != nil {
		return nil, err
	}
	res.Clamped = int(clamped.Load())
	return res, nil
}

// checkLevels validates the levels shared by every point, so they are
// rejected even when the batch has no points. Per point levels are checked
// while resolving.
func (e *Engine) checkLevels(b Batch) error {
	levels := b.LevelSet
	if b.Levels == nil && len(b.LevelSet) == 0 {
		levels = []int{b.Level}
	}

	for _, level := range levels {
		if level < 0 || level > e.conf.MaxLevel {
			return errors.New("level is out of range").
				WithType(ErrTypeInvalidLevel).
				WithTag("level", level).
				WithTag("max_level", e.conf.MaxLevel)
		}
	}
	return nil
}

func (e *Engine) computeBlocks(reg *Registry, blocks []models.Block) (*Result, error) {
	keys := make([]uint64, 4*len(blocks))

	err := e.parallel(len(blocks), func(lo, hi int) error {
		for r := lo; r < hi; r++ {
			b := blocks[r]

			if b.Level < 0 || b.Level > e.conf.MaxLevel {
				return errors.New("level is out of range").
					WithType(ErrTypeInvalidLevel).
					WithTag("block_index", r).
					WithTag("level", b.Level).
					WithTag("max_level", e.conf.MaxLevel)
			}

			if !b.Valid() {
				return errors.New("block is outside its level grid").
					WithType(ErrTypeOutOfDomain).
					WithTag("block_index", r).
					WithTag("level", b.Level).
					WithTag("x", b.X).
					WithTag("y", b.Y)
			}

			putCornerKeys(keys[4*r:4*r+4], b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.index(reg, slices.Clone(blocks), keys)
}

// index deduplicates the corner keys of blocks and assigns their indices.
// keys holds four keys per block in models.CornerPosition order.
func (e *Engine) index(reg *Registry, blocks []models.Block, keys []uint64) (*Result, error) {
	unique, pos := dedup(keys, e.conf.Strategy)

	var indices []int
	if reg != nil {
		var err error
		if indices, err = reg.assign(unique); err != nil {
			return nil, err
		}
	} else {
		indices = make([]int, len(unique))
		for i := range indices {
			indices[i] = i
		}
	}

	res := &Result{
		Blocks:  blocks,
		Corners: make([][4]int, len(blocks)),
		Table:   make([]TableEntry, len(unique)),
	}

	for r := range res.Corners {
		for j := 0; j < 4; j++ {
			res.Corners[r][j] = indices[pos[4*r+j]]
		}
	}

	for u, k := range unique {
		res.Table[u] = TableEntry{
			Index:  indices[u],
			Corner: models.CornerFromKey(k),
		}
	}

	if reg != nil {
		slices.SortFunc(res.Table, func(a, b TableEntry) int {
			return cmp.Compare(a.Index, b.Index)
		})
	}
	return res, nil
}

// parallel runs fn over [0, rows) split into contiguous chunks, one
// goroutine per chunk and at most Config.Workers at a time. The error of the
// lowest failing chunk is returned.
func (e *Engine) parallel(rows int, fn func(lo, hi int) error) error {
	chunk := (rows + e.conf.Workers - 1) / e.conf.Workers
	if chunk < minChunkRows {
		chunk = minChunkRows
	}
	if rows <= chunk {
		return fn(0, rows)
	}

	n := (rows + chunk - 1) / chunk
	errs := make([]error, n)

	var g errgroup.Group
	g.SetLimit(e.conf.Workers)
	for i := 0; i < n; i++ {
		lo := i * chunk
		hi := min(lo+chunk, rows)
		g.Go(func() error {
			errs[i] = fn(lo, hi)
			return errs[i]
		})
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func putCornerKeys(dst []uint64, b models.Block) {
	for i, c := range b.Corners() {
		dst[i] = c.Key()
	}
}

func modeOf(reg *Registry) IndexMode {
	if reg == nil {
		return IndexStateless
	}
	return IndexPersistent
}
