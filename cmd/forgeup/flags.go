package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrmorin/forgeup/internal/config"
)

type runOptions struct {
	ConfigPath string
	Target     string
	ForceClean bool
	Skip       []string
	DryRun     bool
	Verbose    bool
}

func validateRunOptions(opts runOptions) error {
	hasConfig := strings.TrimSpace(opts.ConfigPath) != ""
	hasTarget := strings.TrimSpace(opts.Target) != ""

	if hasConfig && hasTarget {
		return fmt.Errorf("--config and --target are mutually exclusive")
	}
	if !hasConfig && !hasTarget {
		return fmt.Errorf("either --config or --target is required")
	}

	if hasTarget {
		for _, known := range config.BuiltinTargets() {
			if opts.Target == known {
				return nil
			}
		}
		return fmt.Errorf("unknown target %q (available: %s)", opts.Target, strings.Join(config.BuiltinTargets(), ", "))
	}

	abs, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("config file does not exist: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", abs)
	}

	return nil
}

func loadManifest(opts runOptions) (*config.Manifest, error) {
	if strings.TrimSpace(opts.ConfigPath) != "" {
		return config.ParseManifest(opts.ConfigPath)
	}
	return config.LoadBuiltin(opts.Target)
}
