package models

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCornerValid(t *testing.T) {
	require.True(t, Corner{Level: 1, X: 2, Y: 2}.Valid())
	require.False(t, Corner{Level: 1, X: 3, Y: 0}.Valid())
	require.False(t, Corner{Level: 1, X: 0, Y: -1}.Valid())
	require.True(t, Corner{Level: MaxLevel, X: 1 << MaxLevel, Y: 1 << MaxLevel}.Valid())
	require.False(t, Corner{Level: MaxLevel + 1}.Valid())
}

func TestCornerKey(t *testing.T) {
	t.Run("key round trips", func(t *testing.T) {
		corners := []Corner{
			{},
			{Level: 1, X: 2, Y: 1},
			{Level: 12, X: 4096, Y: 17},
			{Level: MaxLevel, X: 1 << MaxLevel, Y: 1 << MaxLevel},
		}
		for _, c := range corners {
			require.Equal(t, c, CornerFromKey(c.Key()))
		}
	})

	t.Run("keys sort like tuples", func(t *testing.T) {
		corners := []Corner{
			{Level: 2, X: 0, Y: 4},
			{Level: 1, X: 2, Y: 2},
			{Level: 2, X: 1, Y: 0},
			{Level: 0, X: 1, Y: 1},
			{Level: 2, X: 0, Y: 3},
		}

		byKey := append([]Corner(nil), corners...)
		sort.Slice(byKey, func(i, j int) bool { return byKey[i].Key() < byKey[j].Key() })

		byTuple := append([]Corner(nil), corners...)
		sort.Slice(byTuple, func(i, j int) bool {
			a, b := byTuple[i], byTuple[j]
			if a.Level != b.Level {
				return a.Level < b.Level
			}
			if a.X != b.X {
				return a.X < b.X
			}
			return a.Y < b.Y
		})

		require.Equal(t, byTuple, byKey)
	})
}

func TestCornerPositionString(t *testing.T) {
	require.Equal(t, "bottom_left", BottomLeft.String())
	require.Equal(t, "top_right", TopRight.String())
	require.Equal(t, "unknown", CornerPosition(9).String())
}
