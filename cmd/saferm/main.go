package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"saferm/internal/config"
	"saferm/internal/engine"
	"saferm/internal/exitcodes"
	"saferm/internal/history"
	"saferm/internal/logging"
	"saferm/internal/metrics"
	"saferm/internal/safety"
)

func main() {
	var (
		recursive       bool
		unmountFlag     bool
		dryRun          bool
		allowAboveStart bool
		enterSymlinks   bool
		removeSymlinks  bool
		allowHidden     bool
		verbose         bool
	)

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	boolFlag(&recursive, "r", "recursive", "delete directories and their contents")
	boolFlag(&unmountFlag, "u", "unmount", "unmount discovered mount points instead of skipping them")
	boolFlag(&dryRun, "d", "dry-run", "decide and narrate but delete nothing")
	boolFlag(&allowAboveStart, "a", "allow-above-start", "allow deleting paths that resolve outside the target")
	boolFlag(&enterSymlinks, "s", "enter-symlinks", "allow traversing symbolic links")
	boolFlag(&verbose, "v", "verbose", "narrate traversal progress")
	flag.BoolVar(&removeSymlinks, "remove-symlinks", false, "delete symbolic links themselves, never their targets")
	flag.BoolVar(&allowHidden, "allow-hidden", false, "allow deleting hidden files and directories")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(exitcodes.InvalidPath)
	}
	target := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load config: %v\n", err)
		os.Exit(exitcodes.InvalidPath)
	}

	logger := logging.NewWithConfig(cfg)
	if dryRun {
		logger.Println("DRY RUN MODE: nothing will be deleted")
	}

	// Resolve the target and fix the starting directory, once, before any
	// decision is made. Everything the walk visits is judged against it.
	target, startingDir, err := resolveTarget(target)
	if err != nil {
		logger.Printf("ERROR: %v", err)
		os.Exit(exitcodes.InvalidPath)
	}

	// A protected system root is never a valid target, whatever the flags say.
	if safety.IsProtectedPath(startingDir, safety.DefaultProtected(cfg.ProtectedPaths)) {
		logger.Printf("ERROR: refusing to delete protected path %s", startingDir)
		os.Exit(exitcodes.SafetyViolation)
	}

	metrics.Init()
	if cfg.Prometheus.Port > 0 {
		metrics.StartServer(fmt.Sprintf(":%d", cfg.Prometheus.Port), logger)
	}

	opts := config.Options{
		Recursive:       recursive,
		Unmount:         unmountFlag,
		DryRun:          dryRun,
		AllowAboveStart: allowAboveStart,
		EnterSymlinks:   enterSymlinks,
		RemoveSymlinks:  removeSymlinks,
		AllowHidden:     allowHidden,
		Verbose:         verbose,
		StartingDir:     startingDir,
	}

	eng := engine.New(opts, logger)

	if cfg.History.DatabasePath != "" {
		db, err := history.Open(cfg.History.DatabasePath)
		if err != nil {
			logger.Printf("WARN: deletion history disabled: %v", err)
		} else {
			defer func() {
				if err := db.Close(); err != nil {
					logger.Printf("ERROR: failed to close history database: %v", err)
				}
			}()
			if err := db.BeginRun(target, dryRun); err != nil {
				logger.Printf("WARN: deletion history disabled: %v", err)
			} else {
				eng.SetRecorder(db)
			}
		}
	}

	results, err := eng.Run(target)
	if err != nil {
		logger.Printf("ERROR: %v", err)
		os.Exit(exitcodes.InvalidPath)
	}

	summary := engine.Summarize(results)
	logger.Printf("walk complete: deleted=%d symlinks_removed=%d unmounted=%d skipped=%d errors=%d",
		summary.Deleted, summary.SymlinksRemoved, summary.Unmounted, summary.Skipped, summary.Errors)

	if summary.HasErrors() {
		os.Exit(exitcodes.DeletionErrors)
	}
}

// resolveTarget makes the target absolute and derives the canonical starting
// directory. A target that exists but cannot be fully resolved (a broken
// symlink) still gets a starting directory, from its parent's canonical form.
func resolveTarget(target string) (absTarget, startingDir string, err error) {
	if !filepath.IsAbs(target) {
		wd, err := os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("cannot determine working directory: %w", err)
		}
		target = filepath.Join(wd, target)
	}
	target = filepath.Clean(target)

	if _, err := os.Lstat(target); err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("path does not exist: %s", target)
		}
		return "", "", fmt.Errorf("path is invalid: %w", err)
	}

	startingDir, err = safety.Canonicalize(target)
	if err != nil {
		parent, err := safety.Canonicalize(filepath.Dir(target))
		if err != nil {
			return "", "", fmt.Errorf("cannot resolve %s: %w", target, err)
		}
		startingDir = filepath.Join(parent, filepath.Base(target))
	}
	return target, startingDir, nil
}

func boolFlag(p *bool, short, long, usage string) {
	flag.BoolVar(p, short, false, usage)
	flag.BoolVar(p, long, false, usage)
}

func usage() {
	fmt.Fprintf(os.Stderr, "saferm: delete files with less worry of destroying your system\n\n")
	fmt.Fprintf(os.Stderr, "usage: saferm [flags] <path>\n\n")
	flag.PrintDefaults()
}
