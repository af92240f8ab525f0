package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/execstream"
	"github.com/jrmorin/forgeup/internal/logger"
	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

// Phase names one transition of the build state machine. A failed phase
// short-circuits the remaining ones.
const (
	PhaseBootstrap = "bootstrap"
	PhaseConfigure = "configure"
	PhaseBuild     = "build"
	PhaseInstall   = "install"
	PhaseLdconfig  = "ldconfig"
)

// CommandRunner executes a tool in dir and returns its captured output.
// Production use shells out; tests substitute a fake.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (execstream.Result, error)

// Options configures an Executor.
type Options struct {
	Logger *logger.Logger
	// Jobs sets build parallelism. Zero means host core count.
	Jobs int
	// GOOS overrides the host OS (tests only).
	GOOS string
	// Runner overrides command execution (tests only).
	Runner CommandRunner
}

// Executor drives configure/build/install for a native project.
type Executor struct {
	run  CommandRunner
	log  *logger.Logger
	jobs int
	goos string
}

// New creates a build executor.
func New(opts Options) *Executor {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	run := opts.Runner
	if run == nil {
		run = streamingRunner
	}
	return &Executor{run: run, log: opts.Logger, jobs: jobs, goos: goos}
}

func streamingRunner(ctx context.Context, dir, name string, args ...string) (execstream.Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	return execstream.RunStreaming(cmd)
}

// Build takes src through Unconfigured -> Configured -> Built -> Installed.
// After install it refreshes the dynamic-linker cache when requested, so
// steps that link against the fresh library see it. The returned error is
// always a BuildError naming the failed phase.
func (e *Executor) Build(ctx context.Context, src *config.SourceStep) error {
	if src == nil {
		return forgeerrors.NewBuildError(PhaseConfigure, "", fmt.Errorf("source configuration is nil"))
	}

	var err error
	switch src.BuildSystem {
	case "cmake":
		err = e.buildCMake(ctx, src)
	case "autotools":
		err = e.buildAutotools(ctx, src)
	default:
		return forgeerrors.NewBuildError(PhaseConfigure, "", fmt.Errorf("unknown build system %q", src.BuildSystem))
	}
	if err != nil {
		return err
	}

	return e.refreshLinkerCache(ctx, src)
}

func (e *Executor) buildAutotools(ctx context.Context, src *config.SourceStep) error {
	if script := bootstrapScript(src); script != "" {
		if res, err := e.run(ctx, src.Destination, script); err != nil {
			return forgeerrors.NewBuildError(PhaseBootstrap, execstream.PrimaryOutput(res), err)
		}
	}

	var lastRes execstream.Result
	var lastErr error
	configured := false
	for _, candidate := range configureCandidates(src) {
		args := make([]string, 0, len(candidate)+1)
		if src.Prefix != "" {
			args = append(args, "--prefix="+src.Prefix)
		}
		args = append(args, flagArgs(candidate, "--")...)

		lastRes, lastErr = e.run(ctx, src.Destination, "./configure", args...)
		if lastErr == nil {
			configured = true
			break
		}
		e.log.Warnf("configure candidate failed, trying next: %v", lastErr)
	}
	if !configured {
		return forgeerrors.NewBuildError(PhaseConfigure, execstream.PrimaryOutput(lastRes), lastErr)
	}

	if res, err := e.run(ctx, src.Destination, "make", fmt.Sprintf("-j%d", e.jobs)); err != nil {
		return forgeerrors.NewBuildError(PhaseBuild, execstream.PrimaryOutput(res), err)
	}

	install := []string{"make", "install"}
	if res, err := e.runElevated(ctx, src, src.Destination, install); err != nil {
		return forgeerrors.NewBuildError(PhaseInstall, execstream.PrimaryOutput(res), err)
	}

	return nil
}

func (e *Executor) buildCMake(ctx context.Context, src *config.SourceStep) error {
	// Some projects keep CMakeLists.txt below the checkout root.
	sourceDir := src.Destination
	if src.SourceDir != "" {
		sourceDir = filepath.Join(src.Destination, src.SourceDir)
	}

	buildDir := src.BuildDir
	if buildDir == "" {
		// Out-of-source by default; the source checkout stays reusable.
		buildDir = filepath.Join(sourceDir, "build")
	}
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return forgeerrors.NewBuildError(PhaseConfigure, "", err)
	}

	var lastRes execstream.Result
	var lastErr error
	configured := false
	for _, candidate := range configureCandidates(src) {
		args := []string{"-S", sourceDir, "-B", buildDir}
		if src.Prefix != "" {
			args = append(args, "-DCMAKE_INSTALL_PREFIX="+src.Prefix)
		}
		for _, flag := range flagArgs(candidate, "") {
			args = append(args, "-D"+flag)
		}

		lastRes, lastErr = e.run(ctx, src.Destination, "cmake", args...)
		if lastErr == nil {
			configured = true
			break
		}
		e.log.Warnf("configure candidate failed, trying next: %v", lastErr)
	}
	if !configured {
		return forgeerrors.NewBuildError(PhaseConfigure, execstream.PrimaryOutput(lastRes), lastErr)
	}

	buildArgs := []string{"--build", buildDir, "--parallel", fmt.Sprintf("%d", e.jobs)}
	if res, err := e.run(ctx, src.Destination, "cmake", buildArgs...); err != nil {
		return forgeerrors.NewBuildError(PhaseBuild, execstream.PrimaryOutput(res), err)
	}

	install := []string{"cmake", "--install", buildDir}
	if res, err := e.runElevated(ctx, src, src.Destination, install); err != nil {
		return forgeerrors.NewBuildError(PhaseInstall, execstream.PrimaryOutput(res), err)
	}

	return nil
}

func (e *Executor) runElevated(ctx context.Context, src *config.SourceStep, dir string, argv []string) (execstream.Result, error) {
	if src.Elevate && e.goos != "windows" {
		argv = append([]string{"sudo"}, argv...)
	}
	return e.run(ctx, dir, argv[0], argv[1:]...)
}

func (e *Executor) refreshLinkerCache(ctx context.Context, src *config.SourceStep) error {
	if !src.Ldconfig || e.goos != "linux" {
		return nil
	}

	argv := []string{"ldconfig"}
	if src.Elevate {
		argv = append([]string{"sudo"}, argv...)
	}
	if res, err := e.run(ctx, src.Destination, argv[0], argv[1:]...); err != nil {
		return forgeerrors.NewBuildError(PhaseLdconfig, execstream.PrimaryOutput(res), err)
	}
	return nil
}

func bootstrapScript(src *config.SourceStep) string {
	if src.Bootstrap != "" {
		return src.Bootstrap
	}
	if _, err := os.Stat(filepath.Join(src.Destination, "autogen.sh")); err == nil {
		return "./autogen.sh"
	}
	return ""
}

// configureCandidates returns the ordered flag sets to try. Without explicit
// candidates the plain options map is the single candidate.
func configureCandidates(src *config.SourceStep) []map[string]string {
	if len(src.Candidates) > 0 {
		return src.Candidates
	}
	return []map[string]string{src.Options}
}

// flagArgs renders a flag map as sorted prefix+key=value arguments. Keys
// with empty values render as bare flags.
func flagArgs(flags map[string]string, prefix string) []string {
	keys := make([]string, 0, len(flags))
	for key := range flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, key := range keys {
		if flags[key] == "" {
			args = append(args, prefix+key)
			continue
		}
		args = append(args, prefix+key+"="+flags[key])
	}
	return args
}
