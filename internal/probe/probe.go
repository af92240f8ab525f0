package probe

import (
	"context"
	"os/exec"
	"strings"

	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/execstream"
	"github.com/jrmorin/forgeup/internal/logger"
	"github.com/jrmorin/forgeup/internal/model"
)

// CommandRunner executes a probe command and captures its output.
type CommandRunner func(ctx context.Context, name string, args ...string) (execstream.Result, error)

// Options configures a Prober.
type Options struct {
	Logger *logger.Logger
	// Runner overrides command execution (tests only).
	Runner CommandRunner
	// LookPath overrides tool lookup (tests only).
	LookPath func(file string) (string, error)
}

// Prober queries installed tools for their version strings. It is purely
// observational: it never fails a run and has no side effects.
type Prober struct {
	log      *logger.Logger
	run      CommandRunner
	lookPath func(string) (string, error)
}

// New creates a Prober.
func New(opts Options) *Prober {
	run := opts.Runner
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) (execstream.Result, error) {
			return execstream.Run(exec.CommandContext(ctx, name, args...))
		}
	}
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	return &Prober{log: opts.Logger, run: run, lookPath: lookPath}
}

// Run probes every configured target and records the detected version or
// "not found". Runs unconditionally at the end of a pipeline, aborted or not.
func (p *Prober) Run(ctx context.Context, probes []config.Probe) []model.ProbeResult {
	results := make([]model.ProbeResult, 0, len(probes))

	for _, target := range probes {
		results = append(results, p.probeOne(ctx, target))
	}

	return results
}

func (p *Prober) probeOne(ctx context.Context, target config.Probe) model.ProbeResult {
	if _, err := p.lookPath(target.Command); err != nil {
		p.log.Debugf("probe %s: %s not on PATH", target.Name, target.Command)
		return model.ProbeResult{Name: target.Name, Version: model.NotFound}
	}

	args := target.Args
	if len(args) == 0 {
		args = []string{"--version"}
	}

	res, err := p.run(ctx, target.Command, args...)
	// Some tools print the version to stderr, and some exit non-zero when
	// asked for it. Any output counts.
	output := firstLine(execstream.PrimaryOutput(res))
	if output == "" {
		if err != nil {
			p.log.Debugf("probe %s: %v", target.Name, err)
			return model.ProbeResult{Name: target.Name, Version: model.NotFound}
		}
		return model.ProbeResult{Name: target.Name, Version: "unknown"}
	}

	return model.ProbeResult{Name: target.Name, Version: output}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
