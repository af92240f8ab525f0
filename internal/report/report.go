package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/jrmorin/forgeup/internal/model"
)

// Renderer formats a run report for the terminal. With Plain set it emits
// unstyled text, for pipes and CI logs.
type Renderer struct {
	Plain bool
}

// NewRenderer creates a renderer, choosing plain output when w is not a TTY.
func NewRenderer(w io.Writer) *Renderer {
	plain := true
	if f, ok := w.(*os.File); ok {
		plain = !term.IsTerminal(int(f.Fd()))
	}
	return &Renderer{Plain: plain}
}

// Render writes the full report for a named pipeline to w.
func (r *Renderer) Render(w io.Writer, name string, rep *model.RunReport) error {
	var sections []string

	sections = append(sections, r.style(titleStyle, fmt.Sprintf("forgeup • %s", name)))

	sections = append(sections, r.style(sectionStyle, "Steps"))
	sections = append(sections, r.renderSteps(rep.StepResults))

	if len(rep.Verification) > 0 {
		sections = append(sections, r.style(sectionStyle, "Verification"))
		sections = append(sections, r.renderVerification(rep.Verification))
	}

	sections = append(sections, r.style(summaryStyle, r.renderSummary(rep)))

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, sections...))
	return err
}

func (r *Renderer) renderSteps(results []model.StepResult) string {
	var lines []string
	for _, res := range results {
		line := fmt.Sprintf(" %s %s", r.statusIcon(res.Status), res.StepID)
		if strings.TrimSpace(res.Reason) != "" {
			line = fmt.Sprintf("%s: %s", line, res.Reason)
		}
		if res.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", line, res.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return " (no steps)"
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) renderVerification(probes []model.ProbeResult) string {
	var lines []string
	for _, p := range probes {
		if p.Version == model.NotFound {
			lines = append(lines, fmt.Sprintf(" %s %s: %s", r.style(failureStyle, "✗"), p.Name, p.Version))
			continue
		}
		lines = append(lines, fmt.Sprintf(" %s %s: %s", r.style(successStyle, "✓"), p.Name, p.Version))
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) renderSummary(rep *model.RunReport) string {
	counts := rep.Counts()
	parts := []string{
		fmt.Sprintf("%d satisfied", counts[model.StatusSatisfied]),
		fmt.Sprintf("%d applied", counts[model.StatusSucceeded]),
	}
	if n := counts[model.StatusWouldRun]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d would run", n))
	}
	if n := counts[model.StatusSkipped]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", n))
	}
	if n := counts[model.StatusFailed]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", n))
	}

	line := strings.Join(parts, ", ")
	if rep.Duration > 0 {
		line = fmt.Sprintf("%s in %s", line, rep.Duration.Truncate(10*time.Millisecond))
	}
	if rep.Aborted {
		line = fmt.Sprintf("%s %s", r.style(failureStyle, "aborted:"), line)
	}
	return line
}

func (r *Renderer) statusIcon(status model.Status) string {
	switch status {
	case model.StatusSatisfied:
		return r.style(satisfiedStyle, "=")
	case model.StatusSucceeded:
		return r.style(successStyle, "✓")
	case model.StatusFailed:
		return r.style(failureStyle, "✗")
	case model.StatusSkipped:
		return r.style(skippedStyle, "⊘")
	case model.StatusWouldRun:
		return r.style(pendingStyle, "→")
	default:
		return r.style(pendingStyle, "…")
	}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.Plain {
		return text
	}
	return s.Render(text)
}
