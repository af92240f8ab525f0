package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

func packageStep(id string, deps ...string) Step {
	return Step{
		ID:          id,
		Type:        "package",
		DependsOn:   deps,
		Enabled:     true,
		FailureMode: FailureRecoverable,
		Package:     &PackageStep{Packages: []string{"git"}},
	}
}

func sourceStep(id string, deps ...string) Step {
	return Step{
		ID:          id,
		Type:        "source",
		DependsOn:   deps,
		Enabled:     true,
		FailureMode: FailureFatal,
		Source: &SourceStep{
			URL:         "https://github.com/example/lib.git",
			Destination: "/tmp/lib-" + id,
			BuildSystem: "cmake",
			Ldconfig:    true,
		},
	}
}

func validTestManifest(steps ...Step) *Manifest {
	return &Manifest{Version: "1.0", Name: "test", Steps: steps}
}

func TestValidateManifest_Valid(t *testing.T) {
	t.Parallel()

	manifest := validTestManifest(packageStep("toolchain"), sourceStep("build_lib", "toolchain"))
	require.NoError(t, ValidateManifest(manifest))
}

func TestValidateManifest_DuplicateStepID(t *testing.T) {
	t.Parallel()

	manifest := validTestManifest(packageStep("dup"), packageStep("dup"))
	err := ValidateManifest(manifest)

	var validationErr *forgeerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Message, "duplicate step id")
}

func TestValidateManifest_UnknownDependency(t *testing.T) {
	t.Parallel()

	manifest := validTestManifest(packageStep("a", "ghost"))
	err := ValidateManifest(manifest)

	var validationErr *forgeerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Message, `unknown step "ghost"`)
}

func TestValidateManifest_CycleIsRejected(t *testing.T) {
	t.Parallel()

	manifest := validTestManifest(
		packageStep("a", "c"),
		packageStep("b", "a"),
		packageStep("c", "b"),
	)
	err := ValidateManifest(manifest)

	var cycleErr *forgeerrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.NotEmpty(t, cycleErr.Cycle)
}

func TestValidateManifest_DisabledStepsBreakCycles(t *testing.T) {
	t.Parallel()

	stepC := packageStep("c", "b")
	stepC.Enabled = false

	manifest := validTestManifest(packageStep("a"), packageStep("b", "a"), stepC)
	require.NoError(t, ValidateManifest(manifest))
}

func TestValidateStep_RejectsBadStepID(t *testing.T) {
	t.Parallel()

	step := packageStep("Bad-ID")
	err := ValidateStep(step)

	var validationErr *forgeerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestValidateStep_SourceRequiresExactlyOneOrigin(t *testing.T) {
	t.Parallel()

	t.Run("no origin", func(t *testing.T) {
		t.Parallel()
		step := sourceStep("build_lib")
		step.Source.URL = ""
		err := ValidateStep(step)
		require.Error(t, err)
		require.Contains(t, err.Error(), "exactly one of url or archive_url")
	})

	t.Run("both origins", func(t *testing.T) {
		t.Parallel()
		step := sourceStep("build_lib")
		step.Source.ArchiveURL = "https://example.com/lib.tar.gz"
		err := ValidateStep(step)
		require.Error(t, err)
	})

	t.Run("archive origin rejects repo-only fields", func(t *testing.T) {
		t.Parallel()
		step := sourceStep("build_lib")
		step.Source.URL = ""
		step.Source.ArchiveURL = "https://example.com/lib.tar.gz"
		step.Source.Branch = "main"
		err := ValidateStep(step)
		require.Error(t, err)
		require.Contains(t, err.Error(), "only apply to repository origins")
	})
}

func TestValidateStep_UnknownBuildSystem(t *testing.T) {
	t.Parallel()

	step := sourceStep("build_lib")
	step.Source.BuildSystem = "scons"
	err := ValidateStep(step)

	var validationErr *forgeerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestValidateManifest_RequiresSteps(t *testing.T) {
	t.Parallel()

	manifest := &Manifest{Version: "1.0", Name: "empty"}
	err := ValidateManifest(manifest)

	var validationErr *forgeerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}
