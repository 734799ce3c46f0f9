package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/qtree/qtree"
)

type CreateRegistryRequest struct {
	Capacity int `json:"capacity"`
}

type RegistryResponse struct {
	ID       string `json:"id"`
	Len      int    `json:"len"`
	Capacity int    `json:"capacity"`
}

func registryResponse(r *qtree.Registry) RegistryResponse {
	return RegistryResponse{
		ID:       r.ID(),
		Len:      r.Len(),
		Capacity: r.Capacity(),
	}
}

func HandleCreateRegistry(registries *qtree.Registries, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRegistryRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
				writeError(w, r, err)
				return
			}
		}

		reg, err := registries.Create(req.Capacity)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, registryResponse(reg))
	}
}

func HandleGetRegistry(registries *qtree.Registries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg, err := registries.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, registryResponse(reg))
	}
}

func HandleResetRegistry(registries *qtree.Registries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg, err := registries.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		if err := reg.Reset(); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, registryResponse(reg))
	}
}

func HandleDeleteRegistry(registries *qtree.Registries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !registries.Destroy(id) {
			writeError(w, r, errors.New("registry not found").
				WithType(qtree.ErrTypeRegistryNotFound).
				WithTag("registry_id", id))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
