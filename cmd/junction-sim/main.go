// Command junction-sim runs the adaptive junction controller against a traffic source:
// the fallback pair, a JSONL replay of snapshots or detections, or live MQTT snapshots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/config"
	"github.com/anggasct/junction/pkg/feed"
	"github.com/anggasct/junction/pkg/mqttbus"
	"github.com/anggasct/junction/pkg/observers"
	"github.com/anggasct/junction/pkg/report"
	"github.com/anggasct/junction/pkg/sim"
	"github.com/anggasct/junction/pkg/store"
	"github.com/anggasct/junction/pkg/tracker"
	"github.com/anggasct/junction/visualization"
)

type flags struct {
	configPath  string
	envFile     string
	source      string
	replay      string
	duration    time.Duration
	earlySwitch bool
	quiet       bool
	panelEvery  time.Duration
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to JSON config file")
	flag.StringVar(&f.envFile, "env", ".env", "dotenv file with JUNCTION_* overrides")
	flag.StringVar(&f.source, "source", "", "traffic source: fallback, replay, detections or mqtt")
	flag.StringVar(&f.replay, "replay", "", "JSONL replay file for replay and detections sources")
	flag.DurationVar(&f.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	flag.BoolVar(&f.earlySwitch, "early-switch", false, "enable the early switch rule")
	flag.BoolVar(&f.quiet, "quiet", false, "do not print the info panel")
	flag.DurationVar(&f.panelEvery, "panel-every", time.Second, "minimum interval between info panels")
	flag.Parse()

	cfg, err := loadConfig(f)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	if err := run(ctx, cfg, f, logger); err != nil {
		logger.Error("junction-sim failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(f flags) (*config.Config, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", f.envFile, err)
	}

	cfg := config.Empty()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	// explicit flags win over file and environment
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "source":
			cfg.Source = &f.source
		case "replay":
			cfg.ReplayPath = &f.replay
		case "early-switch":
			cfg.EarlySwitch = &f.earlySwitch
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: observers.ParseLogLevel(cfg.GetLogLevel()).SlogLevel()}
	if cfg.GetLogFormat() == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *slog.Logger) error {
	th := cfg.Thresholds()
	name := cfg.GetJunction()

	logger.Info("starting junction-sim",
		"junction", name,
		"source", cfg.GetSource(),
		"tick_rate_hz", cfg.GetTickRate(),
		"min_green", th.MinGreen,
		"max_green", th.MaxGreen,
		"default_green", th.DefaultGreen,
		"vehicle_threshold", th.VehicleThreshold,
		"early_switch", th.EarlySwitch,
	)

	metrics := observers.NewMetricsObserver()
	validation := observers.NewValidationObserver(th)
	collector := report.NewCollector(int(cfg.GetTickRate() / 10))

	controllerOpts := []junction.Option{
		junction.WithObserver(observers.NewLoggingObserver(logger, observers.ParseLogLevel(cfg.GetLogLevel()), "junction")),
		junction.WithObserver(metrics),
		junction.WithObserver(validation),
		junction.WithObserver(collector),
	}

	reg := prometheus.NewRegistry()
	if cfg.GetMetricsAddr() != "" {
		controllerOpts = append(controllerOpts, junction.WithObserver(observers.NewPrometheusObserver(reg, name)))
	}

	controller, err := junction.NewController(th, controllerOpts...)
	if err != nil {
		return err
	}

	var mqttClient *mqttbus.Client
	if cfg.GetSource() == config.SourceMQTT || cfg.GetPublish() {
		mqttClient, err = mqttbus.NewClient(mqttbus.ClientConfig{
			Broker:   cfg.GetMQTTBroker(),
			ClientID: cfg.GetMQTTClientID(),
			Username: cfg.GetMQTTUsername(),
			Password: cfg.GetMQTTPassword(),
		}, logger)
		if err != nil {
			return err
		}
		defer mqttClient.Close()
	}

	source, closeSource, err := openSource(cfg, mqttClient, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	runnerOpts := []sim.Option{
		sim.WithInterval(cfg.GetTickInterval()),
		sim.WithLogger(logger),
	}
	if !f.quiet {
		runnerOpts = append(runnerOpts, sim.WithRenderer(sim.NewTextRenderer(os.Stdout, f.panelEvery)))
	}

	recorder, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer recorder.Close()
		meta := store.NewRun(name, cfg.GetSource(), time.Now(), th)
		runnerOpts = append(runnerOpts, sim.WithRecorder(recorder, meta, cfg.GetSampleInterval()))
		logger.Info("recording run", "run_id", meta.ID)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.GetPublish() {
		frames := make(chan junction.Frame, 64)
		publisher := mqttbus.NewPublisher(mqttClient.GetNativeClient(), mqttbus.PublisherConfig{
			Junction:   name,
			FrameTopic: cfg.GetFrameTopic(),
			PhaseTopic: cfg.GetPhaseTopic(),
		}, frames, logger)
		controller.AddObserver(publisher)
		runnerOpts = append(runnerOpts, sim.WithFrames(frames))
		g.Go(func() error {
			publisher.Start(gctx)
			return nil
		})
	}

	if addr := cfg.GetMetricsAddr(); addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, addr, reg, logger)
		})
	}

	runner := sim.NewRunner(controller, source, runnerOpts...)
	g.Go(func() error {
		err := runner.Run(gctx)
		// the runner ending stops the metrics server and publisher too
		if err == nil {
			err = errStopped
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errStopped) {
		return err
	}

	writeOutputs(cfg, controller, collector, logger)
	logSummary(metrics, validation, logger)
	return nil
}

var errStopped = errors.New("runner stopped")

func openSource(cfg *config.Config, client *mqttbus.Client, logger *slog.Logger) (feed.Source, func(), error) {
	noop := func() {}
	path := cfg.GetReplayPath()

	switch cfg.GetSource() {
	case config.SourceReplay:
		if cfg.GetLoop() {
			src := feed.NewReopenSource(func() (feed.Source, error) { return feed.OpenSnapshotReplay(path) })
			return src, func() { src.Close() }, nil
		}
		src, err := feed.OpenSnapshotReplay(path)
		if err != nil {
			return nil, noop, err
		}
		return src, func() { src.Close() }, nil

	case config.SourceDetections:
		if cfg.GetLoop() {
			src := feed.NewReopenSource(func() (feed.Source, error) {
				return feed.OpenDetectionReplay(path, tracker.DefaultConfig())
			})
			return src, func() { src.Close() }, nil
		}
		src, err := feed.OpenDetectionReplay(path, tracker.DefaultConfig())
		if err != nil {
			return nil, noop, err
		}
		return src, func() { src.Close() }, nil

	case config.SourceMQTT:
		latch := feed.NewLatch(feed.WithLatchLogger(logger))
		subscriber := mqttbus.NewSubscriber(client.GetNativeClient(), mqttbus.SubscriberConfig{
			SnapshotTopic: cfg.GetSnapshotTopic(),
			QoS:           1,
		}, latch, logger)
		if err := subscriber.Subscribe(); err != nil {
			return nil, noop, err
		}
		return latch, func() { subscriber.Unsubscribe() }, nil

	default:
		logger.Warn("no camera source configured, using fallback traffic")
		return feed.FallbackSource{}, noop, nil
	}
}

func openRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Recorder, error) {
	var recorders store.Multi

	if path := cfg.GetSQLitePath(); path != "" {
		db, err := store.OpenSQLite(path, logger)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, db)
	}

	if addr := cfg.GetClickHouseAddr(); addr != "" {
		ch, err := store.NewClickHouse(ctx, store.ClickHouseConfig{
			Addr:     addr,
			Database: cfg.GetClickHouseDB(),
			Username: cfg.GetClickHouseUser(),
			Password: cfg.GetClickHousePass(),
		}, logger)
		if err != nil {
			recorders.Close()
			return nil, err
		}
		recorders = append(recorders, ch)
	}

	switch len(recorders) {
	case 0:
		return nil, nil
	case 1:
		return recorders[0], nil
	default:
		return recorders, nil
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("metrics server started", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func writeOutputs(cfg *config.Config, controller *junction.Controller, collector *report.Collector, logger *slog.Logger) {
	if path := cfg.GetReportHTML(); path != "" {
		if err := writeFile(path, func(f *os.File) error {
			return collector.WriteHTML(f, report.HTMLOptions{Title: cfg.GetJunction() + " timing"})
		}); err != nil {
			logger.Error("failed to write HTML report", "path", path, "error", err)
		} else {
			logger.Info("wrote HTML report", "path", path)
		}
	}

	if path := cfg.GetReportPNG(); path != "" {
		if err := collector.SavePNG(path); err != nil {
			logger.Error("failed to write PNG report", "path", path, "error", err)
		} else {
			logger.Info("wrote PNG report", "path", path)
		}
	}

	if path := cfg.GetDOTPath(); path != "" {
		if err := visualization.NewDOTGenerator(controller).GenerateToFile(path); err != nil {
			logger.Error("failed to write phase diagram", "path", path, "error", err)
		} else {
			logger.Info("wrote phase diagram", "path", path)
		}
	}

	if err := collector.Summary().WriteText(os.Stdout); err != nil {
		logger.Warn("failed to print summary", "error", err)
	}
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func logSummary(metrics *observers.MetricsObserver, validation *observers.ValidationObserver, logger *slog.Logger) {
	for _, a := range []junction.Approach{junction.ApproachA, junction.ApproachB} {
		s := metrics.GreenSummary(a)
		logger.Info("green time summary",
			"approach", a.String(),
			"count", s.Count,
			"mean", s.Mean,
			"stddev", s.StdDev,
			"p90", s.P90,
		)
	}
	logger.Info("junction-sim stopped",
		"ticks", metrics.GetTickCount(),
		"transitions", metrics.GetTransitionCounts(),
		"errors", metrics.GetErrorCount(),
	)
	for _, v := range validation.GetViolations() {
		logger.Warn("timing violation", "detail", v)
	}
}
