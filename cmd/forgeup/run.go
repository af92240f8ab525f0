package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jrmorin/forgeup/internal/build"
	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/engine"
	"github.com/jrmorin/forgeup/internal/fetch"
	"github.com/jrmorin/forgeup/internal/logger"
	"github.com/jrmorin/forgeup/internal/probe"
	"github.com/jrmorin/forgeup/internal/report"
	"github.com/jrmorin/forgeup/internal/runner"
	"github.com/jrmorin/forgeup/internal/runner/pkginstall"
	"github.com/jrmorin/forgeup/internal/runner/source"
)

var runCmdRunner = executeRun

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a provisioning manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.DryRun = root.dryRun
			opts.Verbose = root.verbose

			if err := validateRunOptions(opts); err != nil {
				return err
			}

			return runCmdRunner(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a manifest file")
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "Built-in manifest to run (posix, windows)")
	cmd.Flags().BoolVar(&opts.ForceClean, "force-clean", false, "Replace source checkouts that do not match the manifest")
	cmd.Flags().StringArrayVar(&opts.Skip, "skip", nil, "Step id to skip (repeatable)")

	return cmd
}

func executeRun(cmd *cobra.Command, opts runOptions) error {
	manifest, err := loadManifest(opts)
	if err != nil {
		return err
	}

	graph, err := engine.BuildDAG(manifest.Steps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	effectiveDryRun := opts.DryRun || manifest.Settings.DryRun
	effectiveVerbose := opts.Verbose || manifest.Settings.Verbose

	level := "info"
	if effectiveVerbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true})
	if err != nil {
		return err
	}

	registry, err := buildRegistry(log, opts.ForceClean)
	if err != nil {
		return err
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, id := range opts.Skip {
		skip[id] = true
	}

	execCtx := &engine.ExecutionContext{
		Manifest:  manifest,
		Registry:  registry,
		Logger:    log,
		DryRun:    effectiveDryRun,
		SkipSteps: skip,
		Context:   ctx,
	}

	rep, err := engine.Execute(execCtx, graph)
	if err != nil {
		return err
	}

	if len(manifest.Probes) > 0 {
		// Verification is observational and runs even after an abort.
		prober := probe.New(probe.Options{Logger: log})
		rep.Verification = prober.Run(context.Background(), manifest.Probes)
	}

	renderer := report.NewRenderer(cmd.OutOrStdout())
	if err := renderer.Render(cmd.OutOrStdout(), manifest.Name, rep); err != nil {
		return err
	}

	if rep.Aborted {
		return errRunAborted
	}

	return nil
}

func buildRegistry(log *logger.Logger, forceClean bool) (*runner.Registry, error) {
	registry := runner.NewRegistry()

	if err := registry.Register(config.StepTypePackage, pkginstall.New(pkginstall.Options{Logger: log})); err != nil {
		return nil, err
	}

	fetcher := fetch.New(nil, log)
	builder := build.New(build.Options{Logger: log})
	src := source.New(source.Options{
		Fetcher:    fetcher,
		Builder:    builder,
		Logger:     log,
		ForceClean: forceClean,
	})
	if err := registry.Register(config.StepTypeSource, src); err != nil {
		return nil, err
	}

	return registry, nil
}
