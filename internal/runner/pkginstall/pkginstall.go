package pkginstall

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/execstream"
	"github.com/jrmorin/forgeup/internal/logger"
	"github.com/jrmorin/forgeup/internal/model"
	"github.com/jrmorin/forgeup/internal/runner"
	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

// CommandRunner executes a package-manager command and captures its output.
type CommandRunner func(ctx context.Context, name string, args ...string) (execstream.Result, error)

// Options configures the package runner.
type Options struct {
	Logger *logger.Logger
	// Runner overrides command execution (tests only).
	Runner CommandRunner
	// LookPath overrides manager detection (tests only).
	LookPath func(file string) (string, error)
	// GOOS overrides the host OS (tests only).
	GOOS string
	// AssumeRoot skips sudo elevation (tests, containers).
	AssumeRoot bool
}

// Runner installs system packages through the host package manager. It never
// retries: retry policy belongs to the orchestrator, which runs each step at
// most once per pipeline execution.
type Runner struct {
	log      *logger.Logger
	run      CommandRunner
	lookPath func(string) (string, error)
	goos     string
	root     bool
}

var _ runner.Runner = (*Runner)(nil)

// New creates a package runner.
func New(opts Options) *Runner {
	run := opts.Runner
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) (execstream.Result, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Env = os.Environ()
			return execstream.RunStreaming(cmd)
		}
	}
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	root := opts.AssumeRoot
	if !root && goos != "windows" {
		root = os.Geteuid() == 0
	}
	return &Runner{log: opts.Logger, run: run, lookPath: lookPath, goos: goos, root: root}
}

type managerOps struct {
	name string
	tool string
	// sudo marks managers that need elevation for non-root users.
	sudo bool
	// queryByOutput marks managers whose query exits zero either way and
	// signals presence through stdout.
	queryByOutput bool
	queryArgv     func(pkg string) []string
	installArgv   func(pkg string) []string
	updateArgv    []string
}

var managers = []managerOps{
	{
		name:        "apt",
		tool:        "apt-get",
		sudo:        true,
		queryArgv:   func(pkg string) []string { return []string{"dpkg-query", "-W", pkg} },
		installArgv: func(pkg string) []string { return []string{"apt-get", "install", "-y", pkg} },
		updateArgv:  []string{"apt-get", "update"},
	},
	{
		name:        "dnf",
		tool:        "dnf",
		sudo:        true,
		queryArgv:   func(pkg string) []string { return []string{"rpm", "-q", pkg} },
		installArgv: func(pkg string) []string { return []string{"dnf", "install", "-y", pkg} },
		updateArgv:  []string{"dnf", "makecache"},
	},
	{
		name:        "brew",
		tool:        "brew",
		queryArgv:   func(pkg string) []string { return []string{"brew", "list", "--versions", pkg} },
		installArgv: func(pkg string) []string { return []string{"brew", "install", pkg} },
		updateArgv:  []string{"brew", "update"},
	},
	{
		name:          "choco",
		tool:          "choco",
		queryByOutput: true,
		queryArgv:     func(pkg string) []string { return []string{"choco", "list", "-e", pkg, "-r"} },
		installArgv:   func(pkg string) []string { return []string{"choco", "install", "-y", pkg} },
		updateArgv:    nil,
	},
}

func (r *Runner) resolveManager(cfg *config.PackageStep) (*managerOps, error) {
	want := cfg.Manager
	if want == "" {
		want = "auto"
	}

	if want != "auto" {
		for i := range managers {
			if managers[i].name == want {
				if _, err := r.lookPath(managers[i].tool); err != nil {
					return nil, fmt.Errorf("package manager %q not found on PATH: %w", want, err)
				}
				return &managers[i], nil
			}
		}
		return nil, fmt.Errorf("unknown package manager %q", want)
	}

	for i := range managers {
		if _, err := r.lookPath(managers[i].tool); err == nil {
			return &managers[i], nil
		}
	}
	return nil, fmt.Errorf("no supported package manager found on PATH")
}

// Evaluate reports whether every requested package is already installed.
// Strictly read-only.
func (r *Runner) Evaluate(ctx context.Context, step *config.Step) (*runner.Evaluation, error) {
	cfg := step.Package
	if cfg == nil {
		return nil, forgeerrors.NewValidationError(step.ID, "package configuration missing", nil)
	}

	ops, err := r.resolveManager(cfg)
	if err != nil {
		return nil, forgeerrors.NewInstallError("", cfg.Packages, err)
	}

	missing, err := r.missingPackages(ctx, ops, cfg.Packages)
	if err != nil {
		return nil, err
	}

	if len(missing) == 0 {
		return &runner.Evaluation{
			Satisfied: true,
			Reason:    fmt.Sprintf("all packages installed: %s", strings.Join(cfg.Packages, ", ")),
		}, nil
	}

	return &runner.Evaluation{
		Satisfied: false,
		Reason:    fmt.Sprintf("packages not installed: %s", strings.Join(missing, ", ")),
	}, nil
}

// Apply installs the missing packages one at a time, continuing past
// individual failures. The step fails only when every requested package
// fails; already-installed packages count as satisfied.
func (r *Runner) Apply(ctx context.Context, step *config.Step) (*model.StepResult, error) {
	cfg := step.Package
	if cfg == nil {
		return nil, forgeerrors.NewValidationError(step.ID, "package configuration missing", nil)
	}

	ops, err := r.resolveManager(cfg)
	if err != nil {
		installErr := forgeerrors.NewInstallError("", cfg.Packages, err)
		return failedResult(step.ID, installErr), installErr
	}

	if cfg.Update && len(ops.updateArgv) > 0 {
		if _, err := r.elevated(ctx, ops, ops.updateArgv); err != nil {
			r.log.Warnf("package index update failed: %v", err)
		}
	}

	missing, err := r.missingPackages(ctx, ops, cfg.Packages)
	if err != nil {
		installErr := forgeerrors.NewInstallError(ops.name, cfg.Packages, err)
		return failedResult(step.ID, installErr), installErr
	}

	var installed, failed []string
	for _, pkg := range missing {
		if res, err := r.elevated(ctx, ops, ops.installArgv(pkg)); err != nil {
			r.log.Warnf("failed to install %s: %v: %s", pkg, err, execstream.PrimaryOutput(res))
			failed = append(failed, pkg)
			continue
		}
		installed = append(installed, pkg)
	}

	// Packages that were already present count as satisfied; the step fails
	// only when every requested package ends up failed.
	if len(failed) == len(cfg.Packages) {
		installErr := forgeerrors.NewInstallError(ops.name, failed, fmt.Errorf("all requested packages failed to install"))
		return failedResult(step.ID, installErr), installErr
	}

	reason := fmt.Sprintf("installed packages: %s", strings.Join(installed, ", "))
	if len(failed) > 0 {
		reason = fmt.Sprintf("%s (failed: %s)", reason, strings.Join(failed, ", "))
	}

	return &model.StepResult{StepID: step.ID, Status: model.StatusSucceeded, Reason: reason}, nil
}

func (r *Runner) missingPackages(ctx context.Context, ops *managerOps, packages []string) ([]string, error) {
	var missing []string
	for _, pkg := range packages {
		argv := ops.queryArgv(pkg)
		res, err := r.run(ctx, argv[0], argv[1:]...)
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				missing = append(missing, pkg)
				continue
			}
			return nil, forgeerrors.NewInstallError(ops.name, []string{pkg}, fmt.Errorf("failed to query package %s: %w", pkg, err))
		}
		if ops.queryByOutput && strings.TrimSpace(res.Stdout) == "" {
			missing = append(missing, pkg)
		}
	}
	return missing, nil
}

func (r *Runner) elevated(ctx context.Context, ops *managerOps, argv []string) (execstream.Result, error) {
	if ops.sudo && !r.root && r.goos != "windows" {
		argv = append([]string{"sudo"}, argv...)
	}
	return r.run(ctx, argv[0], argv[1:]...)
}

func failedResult(stepID string, err error) *model.StepResult {
	return &model.StepResult{StepID: stepID, Status: model.StatusFailed, Reason: err.Error(), Error: err}
}
