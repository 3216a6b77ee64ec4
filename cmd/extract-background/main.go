package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"extract-background/internal/classifier"
	"extract-background/internal/config"
	"extract-background/internal/debug/eventbus"
	"extract-background/internal/debug/overlay"
	"extract-background/internal/logger"
	"extract-background/internal/pipeline"
	"extract-background/internal/shutdown"
	"extract-background/internal/video/capture"
)

const (
	AppName    = "extract-background"
	AppVersion = "1.0.0"

	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

type options struct {
	video       string
	out         string
	configPath  string
	classifier  string
	model       string
	reference   string
	concurrency int
	start       string
	end         string
	step        string
	debug       bool
	settlement  string
	logLevel    string
	logFormat   string
	version     bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.StringVar(&opts.video, "video", "", "input video file (required)")
	fs.StringVar(&opts.out, "out", "", "output image path, .png or .jpg")
	fs.StringVar(&opts.configPath, "config", "", "YAML or JSON run configuration")
	fs.StringVar(&opts.classifier, "classifier", "", "segmentation or difference")
	fs.StringVar(&opts.model, "model", "", "segmentation model file")
	fs.StringVar(&opts.reference, "reference", "", "empty scene image for the difference classifier")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "classification workers (default: CPU count)")
	fs.StringVar(&opts.start, "start", "", "skip this much of the beginning, e.g. 2s")
	fs.StringVar(&opts.end, "end", "", "skip this much of the end, e.g. 1s")
	fs.StringVar(&opts.step, "step", "", "playback advance between sampled frames")
	fs.BoolVar(&opts.debug, "debug", false, "log per-frame events and timings")
	fs.StringVar(&opts.settlement, "settlement", "", "write a false-color settlement map to this path")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&opts.logFormat, "log-format", "", "console or json")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// loadConfig merges the optional file with flag overrides
func loadConfig(opts *options) (*config.FileConfig, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrides := []struct {
		value string
		dst   *string
	}{
		{opts.classifier, &cfg.Classifier.Kind},
		{opts.model, &cfg.Classifier.Model},
		{opts.reference, &cfg.Classifier.Reference},
		{opts.start, &cfg.Run.Start},
		{opts.end, &cfg.Run.End},
		{opts.step, &cfg.Run.Step},
		{opts.out, &cfg.Output.Path},
		{opts.settlement, &cfg.Output.Settlement},
		{opts.logLevel, &cfg.Logging.Level},
		{opts.logFormat, &cfg.Logging.Format},
	}
	for _, o := range overrides {
		if o.value != "" {
			*o.dst = o.value
		}
	}
	if opts.concurrency > 0 {
		cfg.Run.Concurrency = opts.concurrency
	}
	if opts.debug {
		cfg.Run.Debug = true
		cfg.Logging.Level = "debug"
	}
	if cfg.Output.Path == "" {
		cfg.Output.Path = "background.png"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "json" {
		return logger.NewZerolog(os.Stderr, level), nil
	}
	return logger.NewConsoleLogger(level), nil
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.version {
		fmt.Printf("%s %s (%s)\n", AppName, AppVersion, runtime.Version())
		return exitOK
	}
	if opts.video == "" {
		fmt.Fprintln(os.Stderr, "missing -video")
		return exitUsage
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		return exitUsage
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return exitUsage
	}

	mgr := shutdown.NewManager(context.Background(), log)
	mgr.Listen()
	defer mgr.Shutdown()

	bus := eventbus.NewBus(256)
	mgr.Register("eventbus", bus)

	runCfg, err := cfg.ToRunConfig()
	if err != nil {
		log.Error(AppName, err, nil)
		return exitUsage
	}
	step, err := cfg.SamplingStep()
	if err != nil {
		log.Error(AppName, err, nil)
		return exitUsage
	}

	if runCfg.Debug {
		subscribeDebug(bus, log)
	}

	source, err := capture.Open(opts.video,
		capture.WithStep(step),
		capture.WithSize(runCfg.Width, runCfg.Height),
		capture.WithLogger(log))
	if err != nil {
		log.Error(AppName, err, map[string]interface{}{"video": opts.video})
		return exitFailure
	}
	mgr.Register("capture", source)

	runCfg.Width, runCfg.Height = source.Width(), source.Height()

	factory, err := classifier.NewFactory(cfg.Classifier, runCfg.Width, runCfg.Height, log)
	if err != nil {
		log.Error(AppName, err, nil)
		return exitUsage
	}

	coordinator, err := pipeline.NewCoordinator(runCfg, factory, log, bus)
	if err != nil {
		log.Error(AppName, err, nil)
		return exitUsage
	}

	status, err := coordinator.Run(mgr.Context(), source, pipeline.NewLogSink(log, 10))
	if err != nil {
		if mgr.Interrupted() {
			return exitInterrupted
		}
		return exitFailure
	}

	if err := writeOutputs(cfg.Output, coordinator, log); err != nil {
		log.Error(AppName, err, nil)
		return exitFailure
	}

	stats := coordinator.Stats()
	log.Info(AppName, "background written", map[string]interface{}{
		"path":    cfg.Output.Path,
		"status":  status.String(),
		"percent": stats.Percent(),
		"elapsed": stats.Elapsed.Round(time.Millisecond).String(),
	})
	return exitOK
}

func writeOutputs(out config.OutputConfig, coordinator *pipeline.Coordinator, log logger.Logger) error {
	saver := pipeline.NewSaver(log, nil)

	if err := saver.SaveToPath(out.Path, coordinator.Output()); err != nil {
		return fmt.Errorf("save background: %w", err)
	}

	if out.Settlement == "" {
		return nil
	}
	runCfg := coordinator.Config()
	img, err := overlay.Render(coordinator.SettlementMap(), runCfg.Width, runCfg.Height, len(runCfg.Thresholds))
	if err != nil {
		return fmt.Errorf("render settlement map: %w", err)
	}
	if err := saver.SaveToPath(out.Settlement, img); err != nil {
		return fmt.Errorf("save settlement map: %w", err)
	}
	return nil
}

// subscribeDebug logs per-frame failures and classifier timings
func subscribeDebug(bus *eventbus.Bus, log logger.Logger) {
	handler := eventbus.HandlerFunc{
		ID: "debug-log",
		Fn: func(event eventbus.Event) {
			log.Debug("Events", event.Type, event.Data)
		},
	}
	bus.Subscribe(eventbus.EventFrameFailed, handler)
	bus.Subscribe(eventbus.EventTimingCompleted, handler)
	bus.Subscribe(eventbus.EventPassStarted, handler)
}
