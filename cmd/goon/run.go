package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/goon/internal/config"
	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
	"github.com/mattjoyce/goon/internal/handlers"
	"github.com/mattjoyce/goon/internal/history"
	"github.com/mattjoyce/goon/internal/log"
	"github.com/mattjoyce/goon/internal/metrics"
	"github.com/mattjoyce/goon/internal/protocol"
	"github.com/mattjoyce/goon/internal/report"
	"github.com/mattjoyce/goon/internal/storage"
	"github.com/mattjoyce/goon/internal/telemetry"
)

// defaultDemoEvents matches the sample run when neither --events nor --demo
// is given.
const defaultDemoEvents = 10

// demoHandlers are registered when the config declares none.
var demoHandlers = []config.HandlerConfig{
	{Name: "echo", Kind: handlers.KindEcho},
	{Name: "logger", Kind: handlers.KindLogger},
	{Name: "counter", Kind: handlers.KindCounter},
	{Name: "cache", Kind: handlers.KindCacheWriter},
	{Name: "validator", Kind: handlers.KindValidator},
	{Name: "stats", Kind: handlers.KindStatistics},
}

type runOptions struct {
	configPath  string
	envFile     string
	envExplicit bool
	eventsPath  string
	demo        int
	linger      time.Duration
	jsonOut     bool
	metrics     bool
	diagnostics bool
	telemetry   bool
	history     bool
	watch       bool
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var opts runOptions
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before config expansion")
	fs.StringVar(&opts.eventsPath, "events", "", "File of EVENT{...} lines, or - for stdin")
	fs.IntVar(&opts.demo, "demo", 0, "Number of generated events to emit")
	fs.DurationVar(&opts.linger, "linger", 0, "Keep ticking the worker for this long before stopping")
	fs.BoolVar(&opts.jsonOut, "json", false, "Print the final snapshot as JSON")
	fs.BoolVar(&opts.metrics, "metrics", false, "Print Prometheus metrics after the run")
	fs.BoolVar(&opts.diagnostics, "diagnostics", false, "Print buffered diagnostics as JSON lines")
	fs.BoolVar(&opts.telemetry, "telemetry", false, "Print an OpenTelemetry summary")
	fs.BoolVar(&opts.history, "history", false, "Record the run in the history database")
	fs.BoolVar(&opts.watch, "watch", false, "Show a live view while the worker ticks (until q, or for --linger)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Unexpected arguments: %v\n", fs.Args())
		return 1
	}
	if opts.demo < 0 {
		fmt.Fprintln(os.Stderr, "--demo must not be negative")
		return 1
	}
	if opts.watch && opts.jsonOut {
		fmt.Fprintln(os.Stderr, "--watch and --json both need stdout; pick one")
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "env-file" {
			opts.envExplicit = true
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := executeRun(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func executeRun(ctx context.Context, opts runOptions, stdout io.Writer) error {
	if err := loadEnvFile(opts.envFile, opts.envExplicit); err != nil {
		return err
	}
	cfg, err := resolveConfig(opts.configPath)
	if err != nil {
		return err
	}

	// The watch view owns the terminal; log lines would tear it.
	var logOut io.Writer = os.Stderr
	if opts.watch {
		logOut = io.Discard
	}
	log.SetupWithWriter(logOut, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("cli")

	hub := diag.NewHub(0)
	engOpts := append(cfg.EngineOptions(nil), engine.WithHub(hub))

	var local *telemetry.Local
	if opts.telemetry {
		local = telemetry.NewLocal()
		defer func() { _ = local.Shutdown(context.WithoutCancel(ctx)) }()
		rec, spans, err := local.Instruments()
		if err != nil {
			return err
		}
		engOpts = append(engOpts, engine.WithMetrics(rec), engine.WithTracer(spans))
	}

	eng, err := engine.New(cfg.Service.Name, engOpts...)
	if err != nil {
		return err
	}
	defer eng.Destroy()

	// Handler console output would corrupt JSON on stdout.
	handlerOut := stdout
	switch {
	case opts.watch:
		handlerOut = io.Discard
	case opts.jsonOut:
		handlerOut = os.Stderr
	}
	handlerCfgs := cfg.Handlers
	if len(handlerCfgs) == 0 {
		handlerCfgs = demoHandlers
	}
	built, err := registerHandlers(eng, handlerCfgs, handlerOut)
	defer func() {
		for _, h := range built {
			handlers.Close(h)
		}
	}()
	if err != nil {
		return err
	}

	w, err := engine.NewWorker(eng)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	started := time.Now()
	emitted, err := emitEvents(ctx, eng, w, opts)
	if err != nil {
		_, _ = w.Stop(context.WithoutCancel(ctx))
		return err
	}

	switch {
	case opts.watch:
		err = watchRun(ctx, w, eng, hub, cfg.Worker.TickInterval, opts.linger, stdout)
	case opts.linger > 0:
		lctx, cancel := context.WithTimeout(ctx, opts.linger)
		_, err = w.Run(lctx, cfg.Worker.TickInterval)
		cancel()
	default:
		if _, err = w.Tick(ctx); err == nil {
			_, err = w.Stop(ctx)
		}
	}
	if err != nil {
		return err
	}

	snap := eng.Snapshot()
	logger.Info("run complete",
		"context", snap.Name,
		"emitted", emitted,
		"processed", snap.Processed,
		"elapsed", time.Since(started).String(),
	)

	if err := printRun(ctx, stdout, snap, hub, local, opts); err != nil {
		return err
	}

	if opts.history || cfg.History.Enabled {
		return recordRun(ctx, cfg, snap, stdout, opts.jsonOut)
	}
	return nil
}

func registerHandlers(eng *engine.Engine, hcs []config.HandlerConfig, out io.Writer) ([]engine.Handler, error) {
	var built []engine.Handler
	for _, hc := range hcs {
		h, err := handlers.Build(hc.Kind, hc.Config, out)
		if err != nil {
			return built, err
		}
		built = append(built, h)

		reg, err := engine.NewRegistration(hc.Name, h)
		if err != nil {
			return built, err
		}
		if err := eng.Register(reg); err != nil {
			return built, err
		}
		if !hc.IsEnabled() {
			if err := eng.DisableHandler(hc.Name); err != nil {
				return built, err
			}
		}
	}
	return built, nil
}

// emitEvents feeds the engine from the events file or the demo generator.
// When the queue fills up the worker drains it and the emit is retried once.
func emitEvents(ctx context.Context, eng *engine.Engine, w *engine.Worker, opts runOptions) (int, error) {
	var evs []*event.Event
	if opts.eventsPath != "" {
		decoded, err := readEvents(opts.eventsPath)
		if err != nil {
			return 0, err
		}
		evs = decoded
	}

	n := opts.demo
	if n == 0 && opts.eventsPath == "" {
		n = defaultDemoEvents
	}
	for i := 0; i < n; i++ {
		ev, err := demoEvent(eng, i)
		if err != nil {
			return 0, err
		}
		evs = append(evs, ev)
	}

	emitted := 0
	for _, ev := range evs {
		err := eng.Emit(ev)
		if errors.Is(err, errs.ErrOverflow) {
			if _, terr := w.Tick(ctx); terr != nil {
				return emitted, terr
			}
			err = eng.Emit(ev)
		}
		if err != nil {
			return emitted, err
		}
		emitted++
	}
	return emitted, nil
}

func readEvents(path string) ([]*event.Event, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open events file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return protocol.DecodeAll(r)
}

// demoEvent builds the i-th generated event: priorities rotate, even events
// carry an integer and odd ones a string.
func demoEvent(eng *engine.Engine, i int) (*event.Event, error) {
	ev, err := eng.NewEvent(fmt.Sprintf("test_event_%d", i), event.Priority(i%4))
	if err != nil {
		return nil, err
	}
	if i%2 == 0 {
		ev.SetPayload(event.Int{Value: int64(i * 100)})
	} else {
		ev.SetPayload(event.Text{Value: fmt.Sprintf("Event number %d", i)})
	}
	return ev, nil
}

func printRun(ctx context.Context, w io.Writer, snap engine.Snapshot, hub *diag.Hub, local *telemetry.Local, opts runOptions) error {
	if opts.jsonOut {
		if err := report.JSON(w, snap); err != nil {
			return err
		}
	} else if err := report.Stats(w, snap, report.NewDefaultTheme()); err != nil {
		return err
	}

	if opts.metrics {
		reg, err := metrics.NewRegistry(metrics.NewCollector(metrics.DefaultNamespace, func() engine.Snapshot { return snap }))
		if err != nil {
			return err
		}
		if err := metrics.WriteText(w, reg); err != nil {
			return err
		}
	}

	if opts.diagnostics {
		for _, d := range hub.SnapshotSince(0) {
			fmt.Fprintf(w, "{\"id\":%d,\"kind\":%q,\"at\":%q,\"data\":%s}\n",
				d.ID, d.Kind, d.At.Format(time.RFC3339Nano), d.Data)
		}
	}

	if local != nil {
		sum, err := local.Summarize(ctx)
		if err != nil {
			return err
		}
		if err := report.JSON(w, sum); err != nil {
			return err
		}
	}
	return nil
}

func recordRun(ctx context.Context, cfg *config.Config, snap engine.Snapshot, w io.Writer, quiet bool) error {
	db, err := storage.OpenSQLite(ctx, cfg.History.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	run := history.FromSnapshot(snap, time.Now(), nil)
	run.ConfigPath = cfg.SourcePath
	run.ConfigHash = cfg.Checksum
	if run.ConfigHash == "" && cfg.SourcePath != "" {
		if fp, err := config.Fingerprint(cfg.SourcePath); err == nil {
			run.ConfigHash = fp
		}
	}

	id, err := history.NewStore(db).Record(ctx, run)
	if err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(w, "Recorded run %s in %s\n", id, cfg.History.Path)
	}
	return nil
}
