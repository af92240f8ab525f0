package main

import (
	"errors"
	"fmt"
	"os"

	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

// errRunAborted marks a fatal step failure after the report has already been
// rendered.
var errRunAborted = errors.New("run aborted")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunAborted) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to process exit codes: 2 for an unusable manifest or
// step graph, 1 for everything else.
func exitCode(err error) int {
	var (
		parseErr *forgeerrors.ParseError
		valErr   *forgeerrors.ValidationError
		cycleErr *forgeerrors.CycleError
	)
	if errors.As(err, &parseErr) || errors.As(err, &valErr) || errors.As(err, &cycleErr) {
		return 2
	}
	return 1
}
