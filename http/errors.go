package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/qtree/qtree"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest      = "bad_request"
	ErrTypeFeatureDisabled = "feature_disabled"
)

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// StatusCode returns the HTTP status matching the type of err.
func StatusCode(err error) int {
	switch errors.Type(err) {
	case qtree.ErrTypeInvalidLevel,
		qtree.ErrTypeOutOfDomain,
		qtree.ErrTypeShapeMismatch,
		qtree.ErrTypeInvalidConfig,
		ErrTypeBadRequest:
		return http.StatusBadRequest

	case qtree.ErrTypeRegistryNotFound:
		return http.StatusNotFound

	case qtree.ErrTypeRegistryClosed:
		return http.StatusGone

	case qtree.ErrTypeCapacityExceeded:
		return http.StatusConflict

	case ErrTypeFeatureDisabled:
		return http.StatusForbidden

	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)

	l := logs.WithTag("method", r.Method).
		WithTag("path", r.URL.Path).
		WithTag("status", status).
		WithTag("error_type", errors.Type(err))
	if status >= http.StatusInternalServerError {
		l.Error(err)
	} else {
		l.Warn(err)
	}

	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Type:  errors.Type(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
	}
}

// decodeJSON decodes the request body into v, reading at most maxBytes when
// maxBytes is positive.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.New("decoding request body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return nil
}
