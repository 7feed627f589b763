package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattjoyce/goon/internal/history"
	"github.com/mattjoyce/goon/internal/report"
	"github.com/mattjoyce/goon/internal/storage"
)

func runHistoryNoun(args []string) int {
	if len(args) < 1 {
		printHistoryNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printHistoryNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	if hasHelpFlag(actionArgs) {
		printHistoryNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "list":
		return runHistoryList(actionArgs)
	case "show":
		return runHistoryShow(actionArgs)
	case "prune":
		return runHistoryPrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		return 1
	}
}

type historyFlags struct {
	configPath string
	dbPath     string
	jsonOut    bool
}

func (h *historyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&h.configPath, "config", "", "Path to configuration file (for history.path)")
	fs.StringVar(&h.dbPath, "db", "", "History database path (overrides config)")
	fs.BoolVar(&h.jsonOut, "json", false, "Output in structured JSON format")
}

func (h *historyFlags) open(ctx context.Context) (*history.Store, func(), error) {
	path := h.dbPath
	if path == "" {
		cfg, err := resolveConfig(h.configPath)
		if err != nil {
			return nil, nil, err
		}
		path = cfg.History.Path
	}
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return history.NewStore(db), func() { _ = db.Close() }, nil
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var hf historyFlags
	hf.register(fs)
	limit := fs.Int("limit", history.DefaultListLimit, "Maximum runs to list")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, closeDB, err := hf.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "History error: %v\n", err)
		return exitCode(err)
	}
	defer closeDB()

	runs, err := store.List(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "History error: %v\n", err)
		return exitCode(err)
	}

	if hf.jsonOut {
		if runs == nil {
			runs = []history.Run{}
		}
		err = report.JSON(os.Stdout, runs)
	} else {
		err = report.History(os.Stdout, runs, report.NewDefaultTheme())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
		return 1
	}
	return 0
}

func runHistoryShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	var hf historyFlags
	hf.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: goon history show [--db PATH] [--json] <run-id>")
		return 1
	}

	ctx := context.Background()
	store, closeDB, err := hf.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "History error: %v\n", err)
		return exitCode(err)
	}
	defer closeDB()

	run, err := store.Get(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "History error: %v\n", err)
		return exitCode(err)
	}

	if hf.jsonOut {
		err = report.JSON(os.Stdout, run)
	} else {
		err = report.Run(os.Stdout, run, report.NewDefaultTheme())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
		return 1
	}
	return 0
}

// parseCutoff accepts an age ("720h") or an absolute time (RFC 3339 or
// YYYY-MM-DD, UTC).
func parseCutoff(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("negative age %q", s)
		}
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --before %q: want a duration, RFC 3339 time or YYYY-MM-DD", s)
}

func runHistoryPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	var hf historyFlags
	hf.register(fs)
	before := fs.String("before", "", "Delete runs started before this time or age (e.g. 720h, 2026-01-01)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *before == "" {
		fmt.Fprintln(os.Stderr, "Usage: goon history prune --before AGE|TIME [--db PATH] [--json]")
		return 1
	}
	cutoff, err := parseCutoff(*before, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, closeDB, err := hf.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "History error: %v\n", err)
		return exitCode(err)
	}
	defer closeDB()

	n, err := store.Prune(ctx, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "History error: %v\n", err)
		return exitCode(err)
	}

	if hf.jsonOut {
		err = report.JSON(os.Stdout, map[string]any{"pruned": n, "before": cutoff})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(os.Stdout, "Pruned %d run(s) started before %s\n", n, cutoff.Format(time.RFC3339))
	return 0
}
