package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/hagall-spatial/featureflag"
	spatialhttp "github.com/aukilabs/hagall-spatial/http"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/simulation"
	"github.com/aukilabs/hagall-spatial/smoketest"
	swebsocket "github.com/aukilabs/hagall-spatial/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The server version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "spatial_info",
		Help:        "Spatial server information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string         `cli:""        env:"SPATIAL_ADDR"                 help:"Listening address for viewer connections."`
	AdminAddr          string         `cli:""        env:"SPATIAL_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string         `cli:""        env:"SPATIAL_PUBLIC_ENDPOINT"      help:"The public endpoint where this server is reachable."`
	AuthToken          string         `cli:",hidden" env:"SPATIAL_AUTH_TOKEN"           help:"The bearer token required by the stream, despawn and smoke test endpoints."`
	LogLevel           string         `cli:""        env:"SPATIAL_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool           `cli:""        env:"SPATIAL_LOG_INDENT"           help:"Indent logs."`
	Index              string         `cli:""        env:"SPATIAL_INDEX"                help:"The spatial index (quadtree|loose_quadtree|uniform_grid|double_grid)."`
	Width              float64        `cli:""        env:"SPATIAL_WIDTH"                help:"The width of the world."`
	Height             float64        `cli:""        env:"SPATIAL_HEIGHT"               help:"The height of the world."`
	Agents             int            `cli:""        env:"SPATIAL_AGENTS"               help:"The number of spawned agents."`
	AgentSize          float64        `cli:""        env:"SPATIAL_AGENT_SIZE"           help:"The size of the agents."`
	Speed              float64        `cli:""        env:"SPATIAL_SPEED"                help:"The largest distance an agent moves in a frame."`
	QueryRadius        float64        `cli:""        env:"SPATIAL_QUERY_RADIUS"         help:"The distance around an agent where other agents are its neighbours."`
	Seed               int            `cli:""        env:"SPATIAL_SEED"                 help:"The seed of the random agent generator."`
	FrameDuration      time.Duration  `cli:",hidden" env:"SPATIAL_FRAME_DURATION"       help:"The duration of a simulation frame."`
	ClientIdleTimeout  time.Duration  `cli:",hidden" env:"SPATIAL_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle viewer will be disconnected."`
	LogSummaryInterval time.Duration  `cli:",hidden" env:"SPATIAL_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary."`
	Quadtree           quadtreeConfig `cli:",hidden" env:"-"                            help:"Quadtree configuration."`
	Grid               gridConfig     `cli:",hidden" env:"-"                            help:"Grid configuration."`
	Events             eventsConfig   `cli:",hidden" env:"-"                            help:"Event pusher configuration."`
	FeatureFlags       []string       `cli:",hidden" env:"SPATIAL_FEATURE_FLAGS"        help:"Comma separated feature flags."`
	Version            bool           `cli:""        env:"-"                            help:"Show version."`
	Help               bool           `cli:""        env:"-"                            help:"Show help."`
}

type quadtreeConfig struct {
	AutoConfig  bool `cli:",hidden" env:"SPATIAL_QUADTREE_AUTO_CONFIG"  help:"Derive the quadtree limits from the average element size."`
	AvgEltSize  int  `cli:",hidden" env:"SPATIAL_QUADTREE_AVG_ELT_SIZE" help:"The average element size used by the auto configuration."`
	MaxElements int  `cli:",hidden" env:"SPATIAL_QUADTREE_MAX_ELEMENTS" help:"The number of elements a leaf holds before splitting."`
	MaxDepth    int  `cli:",hidden" env:"SPATIAL_QUADTREE_MAX_DEPTH"    help:"The maximum depth of the quadtree."`
}

type gridConfig struct {
	CellSize       float64 `cli:",hidden" env:"SPATIAL_GRID_CELL_SIZE"        help:"The size of the grid cells."`
	CoarseCellSize float64 `cli:",hidden" env:"SPATIAL_GRID_COARSE_CELL_SIZE" help:"The size of the coarse cells of the double grid."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"SPATIAL_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"SPATIAL_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"SPATIAL_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"SPATIAL_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		Index:              simulation.KindLooseQuadtree,
		Width:              1000,
		Height:             1000,
		Agents:             1000,
		AgentSize:          4,
		Speed:              2,
		QueryRadius:        8,
		FrameDuration:      time.Millisecond * 50,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Quadtree: quadtreeConfig{
			AvgEltSize:  4,
			MaxElements: 8,
			MaxDepth:    6,
		},
		Grid: gridConfig{
			CellSize:       20,
			CoarseCellSize: 100,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the spatial index simulation server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "hagall-spatial",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	flags := featureflag.New(conf.FeatureFlags)
	for _, f := range flags.Unknown() {
		logs.Warn(errors.New("unknown feature flag").WithTag("flag", f))
	}

	indexConf := newIndexConfig(conf)
	idx, err := simulation.NewIndex(indexConf)
	if err != nil {
		logs.Fatal(errors.New("creating index failed").Wrap(err))
	}
	idx = simulation.IndexWithMetrics(idx)
	idx = simulation.IndexWithLogs(idx, conf.LogSummaryInterval)
	defer idx.Close()

	world := models.NewWorld(conf.Index, conf.Width, conf.Height, conf.FrameDuration)
	sim := simulation.New(world, idx, simulation.Config{
		AgentSize:        conf.AgentSize,
		Speed:            conf.Speed,
		QueryRadius:      conf.QueryRadius,
		Seed:             int64(conf.Seed),
		BulkLoad:         flags.IsSet(featureflag.FlagBulkLoad),
		DisableQueries:   flags.IsSet(featureflag.FlagDisableQueries),
		DisableSnapshots: flags.IsSet(featureflag.FlagDisableSnapshots),
	})

	var ready atomic.Bool
	readinessCheck := func() bool {
		return ready.Load()
	}

	var service http.ServeMux
	service.Handle("/health", spatialhttp.HandleWithCORS(http.HandlerFunc(spatialhttp.HandleHealthCheck)))
	service.Handle("/version", spatialhttp.HandleWithCORS(http.HandlerFunc(spatialhttp.HandleVersion(version))))
	service.Handle("/ready", spatialhttp.HandleWithCORS(http.HandlerFunc(spatialhttp.HandleReadyCheck(readinessCheck))))
	service.Handle("/snapshot", spatialhttp.HandleWithCORS(http.HandlerFunc(spatialhttp.HandleSnapshot(sim.Snapshot))))

	service.HandleFunc("/despawn", spatialhttp.VerifyAuthTokenHandler(conf.AuthToken, spatialhttp.HandleDespawn(sim.Despawn)))

	service.HandleFunc("/smoke-test", spatialhttp.VerifyAuthTokenHandler(conf.AuthToken, smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Config: indexConf,
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			entry := logs.WithTag("smoke_test_id", res.ID).
				WithTag("index", res.Index).
				WithTag("status", res.Status).
				WithTag("checks", res.Checks).
				WithTag("mismatches", res.Mismatches).
				WithTag("duration_ms", res.DurationMs)
			if res.Error != "" {
				entry = entry.WithTag("error", res.Error)
			}
			entry.Info("smoke test finished")
			return nil
		},
	})))

	service.Handle("/stream", spatialhttp.HandleWithCORS(websocket.Server{
		Handshake: spatialhttp.VerifyAuthToken(conf.AuthToken),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h swebsocket.Handler = &swebsocket.SnapshotHandler{
				World:             world,
				Source:            sim,
				ClientIdleTimeout: conf.ClientIdleTimeout,
			}
			h = swebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = swebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			swebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", spatialhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", spatialhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("index", conf.Index).
		WithTag("world_id", world.ID).
		WithTag("agents", conf.Agents).
		Info("starting spatial server")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := sim.Spawn(conf.Agents); err != nil {
			logs.Fatal(errors.New("spawning agents failed").Wrap(err))
		}
		ready.Store(true)

		sim.Run(ctx)
	}()

	spatialhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			spatialhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	cancel()
	wg.Wait()
}

func newIndexConfig(conf config) simulation.IndexConfig {
	return simulation.IndexConfig{
		Kind:           conf.Index,
		Width:          conf.Width,
		Height:         conf.Height,
		AgentSize:      conf.AgentSize,
		AutoConfig:     conf.Quadtree.AutoConfig,
		AvgEltSize:     conf.Quadtree.AvgEltSize,
		MaxElements:    conf.Quadtree.MaxElements,
		MaxDepth:       conf.Quadtree.MaxDepth,
		CellSize:       conf.Grid.CellSize,
		CoarseCellSize: conf.Grid.CoarseCellSize,
	}
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if !slices.Contains(simulation.Kinds(), conf.Index) {
		return errors.New("unknown index").
			WithTag("index", conf.Index).
			WithTag("supported", simulation.Kinds())
	}

	if conf.Width <= 0 || conf.Height <= 0 {
		return errors.New("world width and height must be positive").
			WithTag("width", conf.Width).
			WithTag("height", conf.Height)
	}

	if conf.Agents < 0 {
		return errors.New("agent count cannot be negative").
			WithTag("agents", conf.Agents)
	}

	if conf.AgentSize <= 0 || conf.AgentSize >= conf.Width || conf.AgentSize >= conf.Height {
		return errors.New("agent size must be positive and smaller than the world").
			WithTag("agent_size", conf.AgentSize)
	}

	if conf.Speed < 0 || conf.QueryRadius < 0 {
		return errors.New("speed and query radius cannot be negative").
			WithTag("speed", conf.Speed).
			WithTag("query_radius", conf.QueryRadius)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	switch conf.Index {
	case simulation.KindQuadtree, simulation.KindLooseQuadtree:
		if conf.Quadtree.AutoConfig && conf.Quadtree.AvgEltSize <= 0 {
			return errors.New("average element size must be positive").
				WithTag("avg_elt_size", conf.Quadtree.AvgEltSize)
		}

	case simulation.KindUniformGrid:
		if conf.Grid.CellSize <= 0 {
			return errors.New("grid cell size must be positive").
				WithTag("cell_size", conf.Grid.CellSize)
		}

	case simulation.KindDoubleGrid:
		if conf.Grid.CellSize <= 0 || conf.Grid.CoarseCellSize <= conf.Grid.CellSize {
			return errors.New("coarse cells must be bigger than loose cells").
				WithTag("cell_size", conf.Grid.CellSize).
				WithTag("coarse_cell_size", conf.Grid.CoarseCellSize)
		}
	}

	return nil
}
