package qtree

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/qtree/models"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, conf Config) *Engine {
	e, err := New(conf)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func randomPoints(n int, seed int64) []models.Point {
	rnd := rand.New(rand.NewSource(seed))
	points := make([]models.Point, n)
	for i := range points {
		points[i] = models.Point{X: rnd.Float64(), Y: rnd.Float64()}
	}
	return points
}

func TestEngineSharedCorners(t *testing.T) {
	points := []models.Point{
		{X: 0.25, Y: 0.25},
		{X: 0.75, Y: 0.25},
	}

	t.Run("sorted", func(t *testing.T) {
		e := newTestEngine(t, DefaultConfig())

		res, err := e.Compute(Batch{Points: points, Level: 1})
		require.NoError(t, err)
		require.Equal(t, []models.Block{
			{Level: 1, X: 0, Y: 0},
			{Level: 1, X: 1, Y: 0},
		}, res.Blocks)
		require.Equal(t, [][4]int{
			{0, 2, 1, 3},
			{2, 4, 3, 5},
		}, res.Corners)
		require.Len(t, res.Table, 6)
		require.Zero(t, res.Clamped)

		// Bottom right and top right of the first block are the bottom left
		// and top left of the second one.
		require.Equal(t, res.Corners[0][models.BottomRight], res.Corners[1][models.BottomLeft])
		require.Equal(t, res.Corners[0][models.TopRight], res.Corners[1][models.TopLeft])
	})

	t.Run("hashed", func(t *testing.T) {
		conf := DefaultConfig()
		conf.Strategy = StrategyHashed
		e := newTestEngine(t, conf)

		res, err := e.Compute(Batch{Points: points, Level: 1})
		require.NoError(t, err)
		require.Equal(t, [][4]int{
			{0, 1, 2, 3},
			{1, 4, 3, 5},
		}, res.Corners)
	})
}

func TestEngineTable(t *testing.T) {
	for _, strategy := range []Strategy{StrategySorted, StrategyHashed} {
		t.Run(strategy.String(), func(t *testing.T) {
			conf := DefaultConfig()
			conf.Strategy = strategy
			conf.Workers = 4
			e := newTestEngine(t, conf)

			points := randomPoints(3000, 42)
			res, err := e.Compute(Batch{Points: points, LevelSet: []int{0, 3, 7}})
			require.NoError(t, err)
			require.Len(t, res.Blocks, 9000)
			require.Len(t, res.Corners, 9000)

			for i, entry := range res.Table {
				require.Equal(t, i, entry.Index)
			}

			for r, block := range res.Blocks {
				corners := block.Corners()
				for j, idx := range res.Corners[r] {
					require.Equal(t, corners[j], res.Table[idx].Corner)
				}
			}

			seen := make(map[models.Corner]bool, len(res.Table))
			for _, entry := range res.Table {
				require.False(t, seen[entry.Corner], "corner %v listed twice", entry.Corner)
				seen[entry.Corner] = true
			}
		})
	}
}

func TestEngineSortedIsOrderIndependent(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	points := randomPoints(500, 7)
	res, err := e.Compute(Batch{Points: points, Level: 5})
	require.NoError(t, err)

	reversed := make([]models.Point, len(points))
	for i, p := range points {
		reversed[len(points)-1-i] = p
	}
	resReversed, err := e.Compute(Batch{Points: reversed, Level: 5})
	require.NoError(t, err)

	require.Equal(t, res.Table, resReversed.Table)
	for i := range points {
		require.Equal(t, res.Corners[i], resReversed.Corners[len(points)-1-i])
	}
}

func TestEngineIdempotent(t *testing.T) {
	conf := DefaultConfig()
	conf.Workers = 3
	e := newTestEngine(t, conf)

	b := Batch{Points: randomPoints(2000, 1), Level: 9}
	first, err := e.Compute(b)
	require.NoError(t, err)

	second, err := e.Compute(b)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEngineRoundTrip(t *testing.T) {
	conf := DefaultConfig()
	conf.Domain = Domain{XMin: -2, YMin: 3, XMax: 6, YMax: 5}
	e := newTestEngine(t, conf)

	points := []models.Point{{X: -1.3, Y: 3.2}, {X: 5.99, Y: 4.999}, {X: 2, Y: 4}}
	res, err := e.Compute(Batch{Points: points, Level: 4})
	require.NoError(t, err)

	positions := res.Positions(conf.Domain)
	for r, p := range points {
		bl := positions[res.Corners[r][models.BottomLeft]]
		tr := positions[res.Corners[r][models.TopRight]]
		require.LessOrEqual(t, bl.X, p.X)
		require.LessOrEqual(t, bl.Y, p.Y)
		require.Less(t, p.X, tr.X)
		require.Less(t, p.Y, tr.Y)
		require.Equal(t, bl, e.Position(res.Table[res.Corners[r][models.BottomLeft]].Corner))
	}
}

func TestEngineLevels(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	points := []models.Point{{X: 0.6, Y: 0.6}, {X: 0.1, Y: 0.9}}

	t.Run("per point levels", func(t *testing.T) {
		res, err := e.Compute(Batch{Points: points, Levels: []int{1, 3}})
		require.NoError(t, err)
		require.Equal(t, []models.Block{
			{Level: 1, X: 1, Y: 1},
			{Level: 3, X: 0, Y: 7},
		}, res.Blocks)
	})

	t.Run("level set rows are point major", func(t *testing.T) {
		res, err := e.Compute(Batch{Points: points, LevelSet: []int{0, 2}})
		require.NoError(t, err)
		require.Equal(t, []models.Block{
			{Level: 0, X: 0, Y: 0},
			{Level: 2, X: 2, Y: 2},
			{Level: 0, X: 0, Y: 0},
			{Level: 2, X: 0, Y: 3},
		}, res.Blocks)
		require.Equal(t, res.Corners[0], res.Corners[2])
	})

	t.Run("levels never share corners", func(t *testing.T) {
		res, err := e.Compute(Batch{Points: []models.Point{{X: 0, Y: 0}}, LevelSet: []int{0, 1}})
		require.NoError(t, err)
		require.Len(t, res.Table, 8)
		require.NotEqual(t, res.Corners[0][models.BottomLeft], res.Corners[1][models.BottomLeft])
	})
}

func TestEngineErrors(t *testing.T) {
	conf := DefaultConfig()
	conf.MaxLevel = 3
	e := newTestEngine(t, conf)

	tests := []struct {
		name    string
		batch   Batch
		errType string
	}{
		{
			name:    "level above max level",
			batch:   Batch{Points: []models.Point{{X: 0.5, Y: 0.5}}, Level: 5},
			errType: ErrTypeInvalidLevel,
		},
		{
			name:    "level set above max level",
			batch:   Batch{Points: []models.Point{{X: 0.5, Y: 0.5}}, LevelSet: []int{1, 4}},
			errType: ErrTypeInvalidLevel,
		},
		{
			name:    "levels length mismatch",
			batch:   Batch{Points: []models.Point{{X: 0.5, Y: 0.5}}, Levels: []int{1, 2}},
			errType: ErrTypeShapeMismatch,
		},
		{
			name: "levels and level set",
			batch: Batch{
				Points:   []models.Point{{X: 0.5, Y: 0.5}},
				Levels:   []int{1},
				LevelSet: []int{1},
			},
			errType: ErrTypeShapeMismatch,
		},
		{
			name:    "point outside domain",
			batch:   Batch{Points: []models.Point{{X: 0.5, Y: 0.5}, {X: 2, Y: 0.5}}, Level: 2},
			errType: ErrTypeOutOfDomain,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := e.Compute(test.batch)
			require.Error(t, err)
			require.Nil(t, res)
			require.Equal(t, test.errType, errors.Type(err))
		})
	}

	t.Run("empty batch", func(t *testing.T) {
		res, err := e.Compute(Batch{Level: 2})
		require.NoError(t, err)
		require.Empty(t, res.Blocks)
		require.Empty(t, res.Table)
	})

	t.Run("empty batch with invalid levels", func(t *testing.T) {
		batches := []Batch{
			{Level: 99},
			{Level: -1},
			{LevelSet: []int{0, 4}},
			{Points: []models.Point{}, LevelSet: []int{-2}},
		}

		for _, b := range batches {
			res, err := e.Compute(b)
			require.Error(t, err)
			require.Nil(t, res)
			require.Equal(t, ErrTypeInvalidLevel, errors.Type(err))
		}
	})

	t.Run("empty batch with per point levels", func(t *testing.T) {
		res, err := e.Compute(Batch{Levels: []int{}, Level: 99})
		require.NoError(t, err)
		require.Empty(t, res.Blocks)
	})
}

func TestEngineFirstErrorIsDeterministic(t *testing.T) {
	conf := DefaultConfig()
	conf.Workers = 8
	e := newTestEngine(t, conf)

	points := randomPoints(5000, 3)
	points[1200] = models.Point{X: 9, Y: 0.5}
	points[4800] = models.Point{X: 0.5, Y: -9}

	for i := 0; i < 5; i++ {
		_, err := e.Compute(Batch{Points: points, Level: 6})
		require.Error(t, err)
		require.Contains(t, err.Error(), "resolving point 1200 failed")
		require.NotContains(t, err.Error(), "4800")
		require.Equal(t, ErrTypeOutOfDomain, errors.Type(err))
	}
}

func TestEngineClamp(t *testing.T) {
	conf := DefaultConfig()
	conf.OutOfDomain = PolicyClamp
	e := newTestEngine(t, conf)

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	res, err := e.Compute(Batch{
		Points:   []models.Point{{X: 1.5, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: -1, Y: -1}},
		LevelSet: []int{1, 2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Clamped)
	require.Equal(t, models.Block{Level: 1, X: 1, Y: 1}, res.Blocks[0])
	require.Equal(t, models.Block{Level: 2, X: 0, Y: 0}, res.Blocks[5])

	logString := b.String()
	require.Contains(t, logString, "points clamped into domain")
	require.Contains(t, logString, `"clamped_points":2`)
	t.Log(logString)
}

func TestEnginePersistent(t *testing.T) {
	conf := DefaultConfig()
	conf.IndexMode = IndexPersistent
	e := newTestEngine(t, conf)
	require.NotNil(t, e.Registry())

	first, err := e.Compute(Batch{Points: []models.Point{{X: 0.25, Y: 0.25}}, Level: 1})
	require.NoError(t, err)
	require.Equal(t, [][4]int{{0, 2, 1, 3}}, first.Corners)

	second, err := e.Compute(Batch{Points: []models.Point{{X: 0.75, Y: 0.25}}, Level: 1})
	require.NoError(t, err)
	require.Equal(t, [][4]int{{2, 4, 3, 5}}, second.Corners)
	require.Equal(t, 6, e.Registry().Len())

	// The table only lists the corners the batch references.
	require.Len(t, second.Table, 4)
	for i := 1; i < len(second.Table); i++ {
		require.Less(t, second.Table[i-1].Index, second.Table[i].Index)
	}

	third, err := e.Compute(Batch{Points: []models.Point{{X: 0.25, Y: 0.25}}, Level: 1})
	require.NoError(t, err)
	require.Equal(t, first.Corners, third.Corners)
	require.Equal(t, 6, e.Registry().Len())

	t.Run("stateless call on a persistent engine", func(t *testing.T) {
		res, err := e.ComputeIn(nil, Batch{Points: []models.Point{{X: 0.75, Y: 0.25}}, Level: 1})
		require.NoError(t, err)
		require.Equal(t, [][4]int{{0, 2, 1, 3}}, res.Corners)
		require.Equal(t, 6, e.Registry().Len())
	})

	t.Run("closed engine", func(t *testing.T) {
		e := newTestEngine(t, conf)
		e.Close()

		_, err := e.Compute(Batch{Points: []models.Point{{X: 0.25, Y: 0.25}}, Level: 1})
		require.Error(t, err)
		require.Equal(t, ErrTypeRegistryClosed, errors.Type(err))
	})
}

func TestEngineCapacity(t *testing.T) {
	conf := DefaultConfig()
	conf.IndexMode = IndexPersistent
	conf.MaxCorners = 6
	e := newTestEngine(t, conf)

	_, err := e.Compute(Batch{Points: []models.Point{{X: 0.25, Y: 0.25}}, Level: 1})
	require.NoError(t, err)

	_, err = e.Compute(Batch{Points: []models.Point{{X: 0.25, Y: 0.75}, {X: 0.75, Y: 0.75}}, Level: 1})
	require.Error(t, err)
	require.Equal(t, ErrTypeCapacityExceeded, errors.Type(err))
	require.Equal(t, 4, e.Registry().Len())

	_, err = e.Compute(Batch{Points: []models.Point{{X: 0.75, Y: 0.25}}, Level: 1})
	require.NoError(t, err)
	require.Equal(t, 6, e.Registry().Len())
}

func TestEngineComputeBlocks(t *testing.T) {
	conf := DefaultConfig()
	conf.MaxLevel = 4
	e := newTestEngine(t, conf)

	t.Run("mixed levels", func(t *testing.T) {
		blocks := []models.Block{
			{Level: 1, X: 0, Y: 0},
			{Level: 2, X: 2, Y: 0},
			{Level: 2, X: 3, Y: 0},
		}
		res, err := e.ComputeBlocks(nil, blocks)
		require.NoError(t, err)
		require.Equal(t, blocks, res.Blocks)
		require.Len(t, res.Table, 10)
		require.Equal(t, res.Corners[1][models.BottomRight], res.Corners[2][models.BottomLeft])
	})

	t.Run("invalid blocks", func(t *testing.T) {
		_, err := e.ComputeBlocks(nil, []models.Block{{Level: 5}})
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidLevel, errors.Type(err))

		_, err = e.ComputeBlocks(nil, []models.Block{{Level: 2, X: 4, Y: 0}})
		require.Error(t, err)
		require.Equal(t, ErrTypeOutOfDomain, errors.Type(err))
	})

	t.Run("registry", func(t *testing.T) {
		reg := NewRegistry(0)
		defer reg.Close()

		res, err := e.ComputeBlocks(reg, []models.Block{{Level: 0}})
		require.NoError(t, err)
		require.Equal(t, [][4]int{{0, 2, 1, 3}}, res.Corners)
		require.Equal(t, 4, reg.Len())
	})
}

func TestNewInvalidConfig(t *testing.T) {
	conf := DefaultConfig()
	conf.MaxLevel = models.MaxLevel + 1

	_, err := New(conf)
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidConfig, errors.Type(err))
}

func BenchmarkEngineCompute(b *testing.B) {
	for _, strategy := range []Strategy{StrategySorted, StrategyHashed} {
		b.Run(strategy.String(), func(b *testing.B) {
			conf := DefaultConfig()
			conf.Strategy = strategy
			e, err := New(conf)
			require.NoError(b, err)
			defer e.Close()

			batch := Batch{Points: randomPoints(100000, 5), LevelSet: []int{4, 8, 12, 16}}
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if _, err := e.Compute(batch); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
