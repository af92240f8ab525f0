package engine

import (
	"context"
	"os"

	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/logger"
	"github.com/jrmorin/forgeup/internal/runner"
)

// ExecutionContext contains runtime state shared across one pipeline run.
type ExecutionContext struct {
	Manifest *config.Manifest
	Registry *runner.Registry
	Logger   *logger.Logger
	DryRun   bool
	// SkipSteps holds explicit --skip overrides by step id.
	SkipSteps map[string]bool
	// FileExists answers creates-path probes. Defaults to the real
	// filesystem; tests inject a fake.
	FileExists func(path string) bool
	Context    context.Context
}

func (c *ExecutionContext) fileExists(path string) bool {
	if c.FileExists != nil {
		return c.FileExists(path)
	}
	_, err := os.Stat(path)
	return err == nil
}
