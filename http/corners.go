package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/qtree/models"
	"github.com/aukilabs/qtree/qtree"
)

type CornersRequest struct {
	Points     [][2]float64 `json:"points"`
	Level      int          `json:"level"`
	Levels     []int        `json:"levels,omitempty"`
	LevelSet   []int        `json:"level_set,omitempty"`
	RegistryID string       `json:"registry_id,omitempty"`
}

type CornersResponse struct {
	Blocks  [][3]int     `json:"blocks"`
	Corners [][4]int     `json:"corners"`
	Table   []TableEntry `json:"table"`
	Clamped int          `json:"clamped"`
}

// TableEntry is a distinct corner with its lattice coordinates and its
// position in the domain.
type TableEntry struct {
	Index int     `json:"index"`
	Level int     `json:"level"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	PX    float64 `json:"px"`
	PY    float64 `json:"py"`
}

// HandleCorners serves corner batches. Requests without a registry ID use
// the engine registry, which is none for a stateless engine.
func HandleCorners(engine *qtree.Engine, registries *qtree.Registries, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CornersRequest
		if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
			writeError(w, r, err)
			return
		}

		reg, err := registryOf(engine, registries, req.RegistryID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		points := make([]models.Point, len(req.Points))
		for i, p := range req.Points {
			points[i] = models.NewPoint(p[0], p[1])
		}

		res, err := engine.ComputeIn(reg, qtree.Batch{
			Points:   points,
			Level:    req.Level,
			Levels:   req.Levels,
			LevelSet: req.LevelSet,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CornersResponse{
			Blocks:  blocksResponse(res.Blocks),
			Corners: res.Corners,
			Table:   tableResponse(res, engine.Position),
			Clamped: res.Clamped,
		})
	}
}

func registryOf(engine *qtree.Engine, registries *qtree.Registries, id string) (*qtree.Registry, error) {
	if id == "" {
		return engine.Registry(), nil
	}
	if registries == nil {
		return nil, errors.New("registry not found").
			WithType(qtree.ErrTypeRegistryNotFound).
			WithTag("registry_id", id)
	}
	return registries.Get(id)
}

func blocksResponse(blocks []models.Block) [][3]int {
	res := make([][3]int, len(blocks))
	for i, b := range blocks {
		res[i] = [3]int{b.Level, b.X, b.Y}
	}
	return res
}

func tableResponse(res *qtree.Result, position func(models.Corner) models.Point) []TableEntry {
	table := make([]TableEntry, len(res.Table))
	for i, e := range res.Table {
		p := position(e.Corner)
		table[i] = TableEntry{
			Index: e.Index,
			Level: e.Corner.Level,
			X:     e.Corner.X,
			Y:     e.Corner.Y,
			PX:    p.X,
			PY:    p.Y,
		}
	}
	return table
}
