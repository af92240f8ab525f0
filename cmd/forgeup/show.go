package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrmorin/forgeup/internal/engine"
)

func newShowCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved execution plan without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRunOptions(opts); err != nil {
				return err
			}
			return runShow(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a manifest file")
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "Built-in manifest to show (posix, windows)")

	return cmd
}

func runShow(cmd *cobra.Command, opts runOptions) error {
	manifest, err := loadManifest(opts)
	if err != nil {
		return err
	}

	graph, err := engine.BuildDAG(manifest.Steps)
	if err != nil {
		return err
	}

	plan, err := engine.GeneratePlan(graph)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Manifest: %s\n", manifest.Name)
	if strings.TrimSpace(manifest.Description) != "" {
		fmt.Fprintf(out, "%s\n", manifest.Description)
	}
	fmt.Fprintf(out, "\n%s\n", plan.String())

	if len(manifest.Probes) > 0 {
		names := make([]string, 0, len(manifest.Probes))
		for _, p := range manifest.Probes {
			names = append(names, p.Name)
		}
		fmt.Fprintf(out, "\nVerification probes: %s\n", strings.Join(names, ", "))
	}

	return nil
}
