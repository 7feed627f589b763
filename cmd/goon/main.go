package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mattjoyce/goon/internal/config"
	"github.com/mattjoyce/goon/internal/errs"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// defaultConfigPath is used by run when --config is not given and the file
// exists.
const defaultConfigPath = "goon.yaml"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "run":
		if hasHelpFlag(args) {
			printRunHelp()
			return 0
		}
		return runRun(args)
	case "config":
		return runConfigNoun(args)
	case "history":
		return runHistoryNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// exitCode maps an engine error onto a positive process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if code := -errs.Code(err); code > 0 {
		return code
	}
	return 1
}

// loadEnvFile loads KEY=VALUE pairs before config expansion. Variables
// already set in the environment win. A missing default .env is fine.
func loadEnvFile(path string, explicit bool) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// resolveConfig loads path, or the default file when present, or built-in
// defaults.
func resolveConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := strings.TrimSpace(os.Getenv("GOON_CONFIG")); env != "" {
			path = env
		} else if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: goon version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("goon %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`goon - in-process prioritized event dispatcher

Usage:
  goon <command> [flags]
  goon <noun> <action> [flags]

Commands:
  run               Build an engine from config, emit events, drain and report

Config Commands:
  config check      Validate syntax, handler kinds and integrity
  config lock       Write the BLAKE3 checksum sidecar for a config file
  config show       Print the effective configuration

History Commands:
  history list      List recorded runs, newest first
  history show <id> Show one run with per-handler statistics
  history prune     Delete runs started before --before AGE|TIME

General:
  version           Show version information (--json for metadata)
  help              Show this help message

Use 'goon <command> --help' for flags.
`)
}

func printRunHelp() {
	fmt.Print(`Usage: goon run [flags]

Flags:
  --config PATH     Config file (default: $GOON_CONFIG, then ./goon.yaml, then built-in defaults)
  --env-file PATH   Load environment variables before config expansion (default .env)
  --events PATH     Read EVENT{...} lines from PATH ("-" for stdin)
  --demo N          Emit N generated events (default 10 when no --events)
  --linger D        Keep the worker ticking for D after emitting, then stop
  --watch           Live view of handlers and diagnostics while ticking (q stops; bounded by --linger)
  --json            Print the final snapshot as JSON instead of the table
  --metrics         Print Prometheus text exposition after the run
  --diagnostics     Print buffered diagnostics as JSON lines
  --telemetry       Print an OpenTelemetry metric and span summary
  --history         Record the run in the history database
`)
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: goon config <check|lock|show> [--config PATH] [--json]
`)
}

func printHistoryNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: goon history <list|show|prune> [--config PATH] [--db PATH] [--limit N] [--before AGE|TIME] [--json] [id]
`)
}
