package http

import (
	"net/http"

	"github.com/aukilabs/qtree/featureflag"
	"github.com/aukilabs/qtree/qtree"
)

type Options struct {
	Engine       *qtree.Engine
	Registries   *qtree.Registries
	FeatureFlags featureflag.FeatureFlag
	MaxBodyBytes int64
	Version      string

	// ReadinessCheck reports whether the service accepts batches. Nil means
	// always ready.
	ReadinessCheck func() bool
}

// RegisterRoutes adds the service endpoints to mux. Endpoints behind a set
// disable flag answer with a feature_disabled error.
func RegisterRoutes(mux *http.ServeMux, opts Options) {
	readinessCheck := opts.ReadinessCheck
	if readinessCheck == nil {
		readinessCheck = func() bool { return true }
	}

	mux.HandleFunc("GET /health", HandleHealthCheck)
	mux.HandleFunc("GET /ready", HandleReadyCheck(readinessCheck))
	mux.HandleFunc("GET /version", HandleVersion(opts.Version))

	mux.HandleFunc("POST /v1/corners", HandleCorners(opts.Engine, opts.Registries, opts.MaxBodyBytes))

	opts.FeatureFlags.IfSet(featureflag.FlagDisableBlockEndpoint, func() {
		mux.HandleFunc("POST /v1/blocks", HandleFeatureDisabled(featureflag.FlagDisableBlockEndpoint))
	})
	opts.FeatureFlags.IfNotSet(featureflag.FlagDisableBlockEndpoint, func() {
		mux.HandleFunc("POST /v1/blocks", HandleBlocks(opts.Engine, opts.Registries, opts.MaxBodyBytes))
	})

	opts.FeatureFlags.IfSet(featureflag.FlagDisableRegistryEndpoints, func() {
		disabled := HandleFeatureDisabled(featureflag.FlagDisableRegistryEndpoints)
		mux.HandleFunc("/v1/registries", disabled)
		mux.HandleFunc("/v1/registries/", disabled)
	})
	opts.FeatureFlags.IfNotSet(featureflag.FlagDisableRegistryEndpoints, func() {
		mux.HandleFunc("POST /v1/registries", HandleCreateRegistry(opts.Registries, opts.MaxBodyBytes))
		mux.HandleFunc("GET /v1/registries/{id}", HandleGetRegistry(opts.Registries))
		mux.HandleFunc("POST /v1/registries/{id}/reset", HandleResetRegistry(opts.Registries))
		mux.HandleFunc("DELETE /v1/registries/{id}", HandleDeleteRegistry(opts.Registries))
	})
}
