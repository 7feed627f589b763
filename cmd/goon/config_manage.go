package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/goon/internal/config"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	if hasHelpFlag(actionArgs) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

type configCheckResult struct {
	Valid       bool   `json:"valid"`
	Path        string `json:"path"`
	Locked      bool   `json:"locked"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Handlers    int    `json:"handlers"`
	Error       string `json:"error,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	res := configCheckResult{Path: *configPath}
	cfg, err := config.Load(*configPath)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Valid = true
		res.Path = cfg.SourcePath
		res.Locked = cfg.Checksum != ""
		res.Handlers = len(cfg.Handlers)
		res.Fingerprint, _ = config.Fingerprint(cfg.SourcePath)
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
	} else if res.Valid {
		lock := "unlocked"
		if res.Locked {
			lock = "locked"
		}
		fmt.Printf("OK %s (%s, %s, %d handlers)\n", res.Path, res.Fingerprint, lock, res.Handlers)
	} else {
		fmt.Fprintf(os.Stderr, "Config error: %s\n", res.Error)
	}

	if !res.Valid {
		return exitCode(err)
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	// Refuse to lock a config that would not load, ignoring any stale sidecar.
	data, err := os.ReadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		return 1
	}
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return exitCode(err)
	}

	sum, err := config.WriteChecksum(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock error: %v\n", err)
		return 1
	}
	fmt.Printf("Locked %s\nblake3: %s\n", config.ChecksumPath(*configPath), sum)
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file (default: built-in defaults)")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return exitCode(err)
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(cfg)
		fmt.Print(string(data))
	}
	return 0
}
