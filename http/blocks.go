package http

import (
	"net/http"

	"github.com/aukilabs/qtree/models"
	"github.com/aukilabs/qtree/qtree"
	"github.com/aukilabs/qtree/quadtree"
)

type BlocksRequest struct {
	// Tree holds the packed CTU quadtrees in raster order, base64 encoded in
	// JSON.
	Tree       []byte `json:"tree"`
	GridHeight int    `json:"grid_height"`
	GridWidth  int    `json:"grid_width"`
	Corners    bool   `json:"corners,omitempty"`
	RegistryID string `json:"registry_id,omitempty"`
}

type BlocksResponse struct {
	Leaves     [][3]int `json:"leaves"`
	FrameLevel int      `json:"frame_level"`

	Blocks  [][3]int     `json:"blocks,omitempty"`
	Corners [][4]int     `json:"corners,omitempty"`
	Table   []TableEntry `json:"table,omitempty"`
}

// HandleBlocks decodes CTU quadtrees into their leaf blocks. Corner
// positions are pixel coordinates in the frame.
func HandleBlocks(engine *qtree.Engine, registries *qtree.Registries, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BlocksRequest
		if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
			writeError(w, r, err)
			return
		}

		leaves, err := quadtree.Leaves(req.Tree, req.GridHeight, req.GridWidth)
		if err != nil {
			writeError(w, r, err)
			return
		}

		frameLevel := quadtree.FrameLevel(req.GridHeight, req.GridWidth)
		res := BlocksResponse{
			Leaves:     make([][3]int, len(leaves)),
			FrameLevel: frameLevel,
		}
		for i, l := range leaves {
			res.Leaves[i] = [3]int{l.Y, l.X, l.Size}
		}

		if !req.Corners {
			writeJSON(w, http.StatusOK, res)
			return
		}

		reg, err := registryOf(engine, registries, req.RegistryID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		blocks := make([]models.Block, len(leaves))
		for i, l := range leaves {
			blocks[i] = l.Block(frameLevel)
		}

		corners, err := engine.ComputeBlocks(reg, blocks)
		if err != nil {
			writeError(w, r, err)
			return
		}

		res.Blocks = blocksResponse(corners.Blocks)
		res.Corners = corners.Corners
		res.Table = tableResponse(corners, func(c models.Corner) models.Point {
			return pixelPosition(frameLevel, c)
		})
		writeJSON(w, http.StatusOK, res)
	}
}

// pixelPosition returns the pixel coordinates of a corner of the lattice
// whose level frameLevel has one block per CTU.
func pixelPosition(frameLevel int, c models.Corner) models.Point {
	side := float64(int(quadtree.CTUSize)<<frameLevel) / float64(int(1)<<c.Level)
	return models.Point{
		X: float64(c.X) * side,
		Y: float64(c.Y) * side,
	}
}
