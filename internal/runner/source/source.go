package source

import (
	"context"
	"fmt"
	"os"

	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/fetch"
	"github.com/jrmorin/forgeup/internal/logger"
	"github.com/jrmorin/forgeup/internal/model"
	"github.com/jrmorin/forgeup/internal/runner"
	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

// Fetcher acquires source artifacts. Satisfied by *fetch.Fetcher.
type Fetcher interface {
	Archive(ctx context.Context, url, dest string) error
	Extract(ctx context.Context, archive, destDir string) error
	Repository(ctx context.Context, spec fetch.RepoSpec) error
}

// Builder drives configure/build/install. Satisfied by *build.Executor.
type Builder interface {
	Build(ctx context.Context, src *config.SourceStep) error
}

// Options configures the source runner.
type Options struct {
	Fetcher    Fetcher
	Builder    Builder
	Logger     *logger.Logger
	ForceClean bool
	// FileExists overrides filesystem probes (tests only).
	FileExists func(path string) bool
}

// Runner acquires a source artifact and builds it. The step-level creates
// path is the install marker; without one the step always rebuilds, which
// the fetcher keeps cheap by reusing on-disk checkouts.
type Runner struct {
	fetcher    Fetcher
	builder    Builder
	log        *logger.Logger
	forceClean bool
	fileExists func(path string) bool
}

var _ runner.Runner = (*Runner)(nil)

// New creates a source runner.
func New(opts Options) *Runner {
	fileExists := opts.FileExists
	if fileExists == nil {
		fileExists = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	return &Runner{
		fetcher:    opts.Fetcher,
		builder:    opts.Builder,
		log:        opts.Logger,
		forceClean: opts.ForceClean,
		fileExists: fileExists,
	}
}

// Evaluate is read-only: it inspects the install marker and the checkout
// without touching the network.
func (r *Runner) Evaluate(_ context.Context, step *config.Step) (*runner.Evaluation, error) {
	cfg := step.Source
	if cfg == nil {
		return nil, forgeerrors.NewValidationError(step.ID, "source configuration missing", nil)
	}

	if step.Creates != "" && r.fileExists(step.Creates) {
		return &runner.Evaluation{Satisfied: true, Reason: fmt.Sprintf("%s exists", step.Creates)}, nil
	}

	if r.fileExists(cfg.Destination) {
		return &runner.Evaluation{
			Satisfied: false,
			Reason:    fmt.Sprintf("source present at %s but no installed artifact", cfg.Destination),
		}, nil
	}

	return &runner.Evaluation{
		Satisfied: false,
		Reason:    fmt.Sprintf("source missing; will fetch %s and build", origin(cfg)),
	}, nil
}

// Apply fetches the artifact and takes it through the build state machine.
func (r *Runner) Apply(ctx context.Context, step *config.Step) (*model.StepResult, error) {
	cfg := step.Source
	if cfg == nil {
		return nil, forgeerrors.NewValidationError(step.ID, "source configuration missing", nil)
	}

	if err := r.fetchSource(ctx, cfg); err != nil {
		return failedResult(step.ID, err), forgeerrors.NewExecutionError(step.ID, err)
	}

	if err := r.builder.Build(ctx, cfg); err != nil {
		return failedResult(step.ID, err), forgeerrors.NewExecutionError(step.ID, err)
	}

	return &model.StepResult{
		StepID: step.ID,
		Status: model.StatusSucceeded,
		Reason: fmt.Sprintf("built and installed from %s", origin(cfg)),
	}, nil
}

func (r *Runner) fetchSource(ctx context.Context, cfg *config.SourceStep) error {
	if cfg.ArchiveURL != "" {
		archive := cfg.ArchivePath
		if archive == "" {
			archive = cfg.Destination + ".tar.gz"
		}
		if err := r.fetcher.Archive(ctx, cfg.ArchiveURL, archive); err != nil {
			return err
		}
		return r.fetcher.Extract(ctx, archive, cfg.Destination)
	}

	return r.fetcher.Repository(ctx, fetch.RepoSpec{
		URL:        cfg.URL,
		Dest:       cfg.Destination,
		Branch:     cfg.Branch,
		Depth:      cfg.Depth,
		Refresh:    cfg.Refresh,
		ForceClean: r.forceClean,
	})
}

func origin(cfg *config.SourceStep) string {
	if cfg.ArchiveURL != "" {
		return cfg.ArchiveURL
	}
	return cfg.URL
}

func failedResult(stepID string, err error) *model.StepResult {
	return &model.StepResult{StepID: stepID, Status: model.StatusFailed, Reason: err.Error(), Error: err}
}
