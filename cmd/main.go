package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/qtree/featureflag"
	qtreehttp "github.com/aukilabs/qtree/http"
	"github.com/aukilabs/qtree/qtree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The qtree version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "qtree_info",
		Help:        "qtree information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// Keeps the config field names readable by the cli package when the binary
// is obfuscated.
var _ = reflect.TypeOf(config{})

type config struct {
	Addr            string        `cli:""        env:"QTREE_ADDR"             help:"Listening address for batch requests."`
	AdminAddr       string        `cli:""        env:"QTREE_ADMIN_ADDR"       help:"Admin listening address."`
	LogLevel        string        `cli:""        env:"QTREE_LOG_LEVEL"        help:"Log level (debug|info|warning|error)."`
	LogIndent       bool          `cli:""        env:"QTREE_LOG_INDENT"       help:"Indent logs."`
	DomainXMin      float64       `cli:""        env:"QTREE_DOMAIN_XMIN"      help:"Lower x bound of the domain."`
	DomainYMin      float64       `cli:""        env:"QTREE_DOMAIN_YMIN"      help:"Lower y bound of the domain."`
	DomainXMax      float64       `cli:""        env:"QTREE_DOMAIN_XMAX"      help:"Upper x bound of the domain."`
	DomainYMax      float64       `cli:""        env:"QTREE_DOMAIN_YMAX"      help:"Upper y bound of the domain."`
	MaxLevel        int           `cli:""        env:"QTREE_MAX_LEVEL"        help:"Deepest quadtree level a batch may request."`
	Tolerance       float64       `cli:""        env:"QTREE_TOLERANCE"        help:"Distance outside the domain absorbed into the edge blocks."`
	OutOfDomain     string        `cli:""        env:"QTREE_OUT_OF_DOMAIN"    help:"Out of domain policy (reject|clamp)."`
	IndexMode       string        `cli:""        env:"QTREE_INDEX_MODE"       help:"Corner index mode (stateless|persistent)."`
	Strategy        string        `cli:""        env:"QTREE_STRATEGY"         help:"Corner dedup strategy (sorted|hashed)."`
	MaxCorners      int           `cli:""        env:"QTREE_MAX_CORNERS"      help:"Corner capacity of the engine registry, 0 for unbounded."`
	Workers         int           `cli:",hidden" env:"QTREE_WORKERS"          help:"Goroutines resolving a batch."`
	MaxRegistries   int           `cli:",hidden" env:"QTREE_MAX_REGISTRIES"   help:"Maximum number of registries created through the API."`
	MaxBodyBytes    int64         `cli:",hidden" env:"QTREE_MAX_BODY_BYTES"   help:"Maximum request body size."`
	ShutdownTimeout time.Duration `cli:",hidden" env:"QTREE_SHUTDOWN_TIMEOUT" help:"Time given to in-flight requests on shutdown."`
	FeatureFlags    []string      `cli:",hidden" env:"QTREE_FEATURE_FLAGS"    help:"Comma separated feature flags"`
	Version         bool          `cli:""        env:"-"                      help:"Show version."`
	Help            bool          `cli:""        env:"-"                      help:"Show help."`
}

func main() {
	defaults := qtree.DefaultConfig()
	conf := config{
		Addr:            ":4100",
		AdminAddr:       ":18191",
		LogLevel:        logs.InfoLevel.String(),
		DomainXMin:      defaults.Domain.XMin,
		DomainYMin:      defaults.Domain.YMin,
		DomainXMax:      defaults.Domain.XMax,
		DomainYMax:      defaults.Domain.YMax,
		MaxLevel:        defaults.MaxLevel,
		Tolerance:       defaults.Tolerance,
		OutOfDomain:     defaults.OutOfDomain.String(),
		IndexMode:       defaults.IndexMode.String(),
		Strategy:        defaults.Strategy.String(),
		MaxCorners:      defaults.MaxCorners,
		Workers:         runtime.GOMAXPROCS(0),
		MaxRegistries:   64,
		MaxBodyBytes:    32 << 20,
		ShutdownTimeout: time.Second * 10,
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the qtree corner server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	engineConf, err := engineConfig(conf)
	if err != nil {
		logs.Fatal(err)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	engine, err := qtree.New(engineConf)
	if err != nil {
		logs.Fatal(errors.New("creating engine failed").Wrap(err))
	}
	defer engine.Close()

	registries := qtree.NewRegistries(conf.MaxRegistries, engineConf.MaxCorners)
	defer registries.Close()

	var service http.ServeMux
	qtreehttp.RegisterRoutes(&service, qtreehttp.Options{
		Engine:       engine,
		Registries:   registries,
		FeatureFlags: featureflag.New(conf.FeatureFlags),
		MaxBodyBytes: conf.MaxBodyBytes,
		Version:      version,
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", qtreehttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("index_mode", engineConf.IndexMode.String()).
		WithTag("strategy", engineConf.Strategy.String()).
		WithTag("max_level", engineConf.MaxLevel).
		WithTag("workers", engineConf.Workers).
		Info("starting qtree server")

	qtreehttp.ListenAndServe(ctx, conf.ShutdownTimeout,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(
			qtreehttp.HandleWithCORS(&service),
			qtreehttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func engineConfig(conf config) (qtree.Config, error) {
	policy, err := qtree.ParsePolicy(conf.OutOfDomain)
	if err != nil {
		return qtree.Config{}, err
	}

	indexMode, err := qtree.ParseIndexMode(conf.IndexMode)
	if err != nil {
		return qtree.Config{}, err
	}

	strategy, err := qtree.ParseStrategy(conf.Strategy)
	if err != nil {
		return qtree.Config{}, err
	}

	engineConf := qtree.Config{
		Domain: qtree.Domain{
			XMin: conf.DomainXMin,
			YMin: conf.DomainYMin,
			XMax: conf.DomainXMax,
			YMax: conf.DomainYMax,
		},
		MaxLevel:    conf.MaxLevel,
		Tolerance:   conf.Tolerance,
		OutOfDomain: policy,
		IndexMode:   indexMode,
		Strategy:    strategy,
		MaxCorners:  conf.MaxCorners,
		Workers:     conf.Workers,
	}
	return engineConf, engineConf.Validate()
}

func validateConfig(conf config) error {
	if conf.Addr == "" {
		return errors.New("address is empty")
	}

	if conf.AdminAddr == "" {
		return errors.New("admin address is empty")
	}

	if conf.Addr == conf.AdminAddr {
		return errors.New("address and admin address must differ").
			WithTag("addr", conf.Addr)
	}

	if conf.MaxRegistries < 0 {
		return errors.New("max registries must not be negative").
			WithTag("max_registries", conf.MaxRegistries)
	}

	if conf.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive").
			WithTag("max_body_bytes", conf.MaxBodyBytes)
	}

	return nil
}
