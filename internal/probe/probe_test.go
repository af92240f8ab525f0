package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/execstream"
	"github.com/jrmorin/forgeup/internal/model"
)

func TestRun_RecordsVersions(t *testing.T) {
	t.Parallel()

	prober := New(Options{
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
		Runner: func(_ context.Context, name string, args ...string) (execstream.Result, error) {
			require.Equal(t, []string{"--version"}, args)
			switch name {
			case "tesseract":
				// tesseract prints its version to stderr
				return execstream.Result{Stderr: "tesseract 4.1.1\n leptonica-1.82.0\n"}, nil
			case "alpr":
				return execstream.Result{Stdout: "alpr version: 2.3.0\n"}, nil
			}
			return execstream.Result{}, errors.New("unexpected command")
		},
	})

	results := prober.Run(context.Background(), []config.Probe{
		{Name: "tesseract", Command: "tesseract"},
		{Name: "openalpr", Command: "alpr"},
	})

	require.Equal(t, []model.ProbeResult{
		{Name: "tesseract", Version: "tesseract 4.1.1"},
		{Name: "openalpr", Version: "alpr version: 2.3.0"},
	}, results)
}

func TestRun_CommandNotOnPath(t *testing.T) {
	t.Parallel()

	prober := New(Options{
		LookPath: func(string) (string, error) { return "", errors.New("not found in $PATH") },
		Runner: func(context.Context, string, ...string) (execstream.Result, error) {
			t.Fatal("runner should not be called for a missing command")
			return execstream.Result{}, nil
		},
	})

	results := prober.Run(context.Background(), []config.Probe{
		{Name: "opencv", Command: "pkg-config", Args: []string{"--modversion", "opencv4"}},
	})

	require.Len(t, results, 1)
	require.Equal(t, model.NotFound, results[0].Version)
}

func TestRun_CustomArgs(t *testing.T) {
	t.Parallel()

	var gotArgs []string
	prober := New(Options{
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
		Runner: func(_ context.Context, _ string, args ...string) (execstream.Result, error) {
			gotArgs = args
			return execstream.Result{Stdout: "4.5.5\n"}, nil
		},
	})

	results := prober.Run(context.Background(), []config.Probe{
		{Name: "opencv", Command: "pkg-config", Args: []string{"--modversion", "opencv4"}},
	})

	require.Equal(t, []string{"--modversion", "opencv4"}, gotArgs)
	require.Equal(t, "4.5.5", results[0].Version)
}

func TestRun_NonZeroExitWithOutputStillCounts(t *testing.T) {
	t.Parallel()

	prober := New(Options{
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
		Runner: func(context.Context, string, ...string) (execstream.Result, error) {
			return execstream.Result{Stderr: "gcc (Ubuntu 11.4.0) 11.4.0\n"}, errors.New("exit status 1")
		},
	})

	results := prober.Run(context.Background(), []config.Probe{{Name: "gcc", Command: "gcc"}})

	require.Equal(t, "gcc (Ubuntu 11.4.0) 11.4.0", results[0].Version)
}

func TestRun_NonZeroExitNoOutput(t *testing.T) {
	t.Parallel()

	prober := New(Options{
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
		Runner: func(context.Context, string, ...string) (execstream.Result, error) {
			return execstream.Result{}, errors.New("exit status 127")
		},
	})

	results := prober.Run(context.Background(), []config.Probe{{Name: "broken", Command: "broken"}})

	require.Equal(t, model.NotFound, results[0].Version)
}

func TestRun_EmptyProbeList(t *testing.T) {
	t.Parallel()

	prober := New(Options{})
	results := prober.Run(context.Background(), nil)
	require.Empty(t, results)
}
