package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/eihwaz/featureflag"
	eihwazhttp "github.com/aukilabs/eihwaz/http"
	"github.com/aukilabs/eihwaz/models"
	"github.com/aukilabs/eihwaz/octree"
	ewebsocket "github.com/aukilabs/eihwaz/websocket"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Eihwaz version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "eihwaz_info",
		Help:        "Eihwaz information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"EIHWAZ_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"EIHWAZ_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"EIHWAZ_PUBLIC_ENDPOINT"      help:"The public endpoint where this Eihwaz server is reachable."`
	ServerID           string        `cli:""        env:"EIHWAZ_SERVER_ID"            help:"The server id used as global scene id prefix."`
	LogLevel           string        `cli:""        env:"EIHWAZ_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"EIHWAZ_LOG_INDENT"           help:"Indent logs."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"EIHWAZ_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected"`
	FrameDuration      time.Duration `cli:",hidden" env:"EIHWAZ_FRAME_DURATION"       help:"The duration of a scene frame."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"EIHWAZ_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Octree             octreeConfig  `cli:",hidden" env:"-"                           help:"Scene octree configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                           help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"EIHWAZ_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                           help:"Show version."`
	Help               bool          `cli:""        env:"-"                           help:"Show help."`
}

type octreeConfig struct {
	InitialSize float64 `cli:",hidden" env:"EIHWAZ_OCTREE_INITIAL_SIZE"  help:"The edge length of a new scene octree, in meters."`
	Looseness   float64 `cli:",hidden" env:"EIHWAZ_OCTREE_LOOSENESS"     help:"The factor octree node bounds are inflated by."`
	MinNodeSize float64 `cli:",hidden" env:"EIHWAZ_OCTREE_MIN_NODE_SIZE" help:"The edge length under which octree nodes are not split."`
	MaxObjects  int     `cli:",hidden" env:"EIHWAZ_OCTREE_MAX_OBJECTS"   help:"The number of entities an octree node holds before being split."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"EIHWAZ_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"EIHWAZ_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"EIHWAZ_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"EIHWAZ_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		ServerID:           "eihwaz",
		LogLevel:           logs.InfoLevel.String(),
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Millisecond * 15,
		LogSummaryInterval: time.Minute,
		Octree: octreeConfig{
			InitialSize: 64,
			Looseness:   1.25,
			MinNodeSize: 1,
			MaxObjects:  8,
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
		Help("Starts Eihwaz server.").
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
			SDKType:          "eihwaz",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	sceneConfig := newSceneConfig(conf, featureFlags)

	// Fails early on options rejected by the octree.
	if _, err := octree.New(sceneConfig.Octree); err != nil {
		logs.Fatal(errors.New("invalid octree configuration").Wrap(err))
	}

	scenes := models.SceneStore{
		ServerID: conf.ServerID,
	}

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}

	var service http.ServeMux
	service.Handle("/health", eihwazhttp.HandleWithCORS(http.HandlerFunc(eihwazhttp.HandleHealthCheck)))
	service.Handle("/ready", eihwazhttp.HandleWithCORS(eihwazhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", eihwazhttp.HandleWithCORS(eihwazhttp.HandleVersion(version)))
	service.Handle("/scenes", eihwazhttp.HandleWithCORS(eihwazhttp.HandleScenes(&scenes)))
	service.Handle("/scenes/debug", eihwazhttp.HandleWithCORS(eihwazhttp.HandleSceneDebug(&scenes)))

	service.Handle("/", eihwazhttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh ewebsocket.Handler = &ewebsocket.RealtimeHandler{
				ClientIdleTimeout: conf.ClientIdleTimeout,
				SceneConfig:       sceneConfig,
				Scenes:            &scenes,
				FeatureFlags:      featureFlags,
			}
			h := ewebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = ewebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			ewebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", eihwazhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", eihwazhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("server_id", conf.ServerID).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting eihwaz server")

	eihwazhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			eihwazhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func newSceneConfig(conf config, featureFlags featureflag.FeatureFlag) models.SceneConfig {
	c := models.SceneConfig{
		FrameDuration: conf.FrameDuration,
		Octree: octree.Options{
			Center:      r3.Vector{},
			InitialSize: conf.Octree.InitialSize,
			Looseness:   conf.Octree.Looseness,
			MinNodeSize: conf.Octree.MinNodeSize,
			MaxObjects:  conf.Octree.MaxObjects,
		},
	}

	featureFlags.IfSet(featureflag.FlagEnableBoxCulling, func() {
		c.Octree.BoxCulling = true
	})
	featureFlags.IfSet(featureflag.FlagEnableOctreeShrink, func() {
		c.Octree.Shrink = true
	})
	return c
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.ServerID == "" {
		return errors.New("server id is empty")
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}
	return nil
}
