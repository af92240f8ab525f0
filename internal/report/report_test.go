package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrmorin/forgeup/internal/model"
)

func sampleReport() *model.RunReport {
	return &model.RunReport{
		StepResults: []model.StepResult{
			{StepID: "toolchain", Status: model.StatusSatisfied, Reason: "all packages present"},
			{StepID: "build_leptonica", Status: model.StatusSucceeded, Duration: 90 * time.Second},
			{StepID: "build_tesseract", Status: model.StatusFailed, Reason: "configure failed"},
			{StepID: "build_openalpr", Status: model.StatusSkipped, Reason: "dependency build_tesseract failed"},
		},
		Verification: []model.ProbeResult{
			{Name: "tesseract", Version: model.NotFound},
			{Name: "opencv", Version: "4.5.5"},
		},
		Duration: 2 * time.Minute,
	}
}

func TestRender_PlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := &Renderer{Plain: true}
	require.NoError(t, r.Render(&buf, "openalpr", sampleReport()))

	out := buf.String()
	require.Contains(t, out, "forgeup • openalpr")
	require.Contains(t, out, "= toolchain: all packages present")
	require.Contains(t, out, "✓ build_leptonica (1m30s)")
	require.Contains(t, out, "✗ build_tesseract: configure failed")
	require.Contains(t, out, "⊘ build_openalpr: dependency build_tesseract failed")
	require.Contains(t, out, "tesseract: not found")
	require.Contains(t, out, "opencv: 4.5.5")
	require.Contains(t, out, "1 satisfied, 1 applied, 1 skipped, 1 failed in 2m0s")
	require.NotContains(t, out, "\x1b[", "plain output must not carry ANSI escapes")
}

func TestRender_AbortedSummary(t *testing.T) {
	t.Parallel()

	rep := sampleReport()
	rep.Aborted = true

	var buf bytes.Buffer
	r := &Renderer{Plain: true}
	require.NoError(t, r.Render(&buf, "openalpr", rep))

	require.Contains(t, buf.String(), "aborted:")
}

func TestRender_DryRunCounts(t *testing.T) {
	t.Parallel()

	rep := &model.RunReport{
		StepResults: []model.StepResult{
			{StepID: "toolchain", Status: model.StatusSatisfied},
			{StepID: "build_jasper", Status: model.StatusWouldRun, Reason: "source missing"},
			{StepID: "build_leptonica", Status: model.StatusWouldRun},
		},
	}

	var buf bytes.Buffer
	r := &Renderer{Plain: true}
	require.NoError(t, r.Render(&buf, "openalpr", rep))

	out := buf.String()
	require.Contains(t, out, "→ build_jasper: source missing")
	require.Contains(t, out, "2 would run")
}

func TestRender_EmptyReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := &Renderer{Plain: true}
	require.NoError(t, r.Render(&buf, "empty", &model.RunReport{}))

	out := buf.String()
	require.Contains(t, out, "(no steps)")
	require.NotContains(t, out, "Verification")
}

func TestNewRenderer_NonFileWriterIsPlain(t *testing.T) {
	t.Parallel()

	r := NewRenderer(&bytes.Buffer{})
	require.True(t, r.Plain)
}
