package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/abimat/abimat/internal/rules"
	"github.com/abimat/abimat/internal/spanlog"
)

var (
	passedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	bustedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func conclusionStyle(c Conclusion) lipgloss.Style {
	switch c {
	case ConclusionPassed:
		return passedStyle
	case ConclusionBusted:
		return bustedStyle
	case ConclusionFailed:
		return failedStyle
	default:
		return skippedStyle
	}
}

// WriteHuman renders the report for operators: one status line per run,
// the span excerpt for each failure (pulled from the execution log), the
// summary, and a paste-ready candidate-rules block when uncovered failures
// exist. Color follows the colorize flag so piped output stays clean.
func (r *FullReport) WriteHuman(w io.Writer, log *spanlog.Logger, target string, colorize bool) error {
	styled := func(style lipgloss.Style, s string) string {
		if !colorize {
			return s
		}
		return style.Render(s)
	}

	for _, test := range r.Tests {
		status := strings.ToUpper(string(test.Conclusion))
		if _, err := fmt.Fprintf(w, "%s %s\n", styled(conclusionStyle(test.Conclusion), status), test.Key); err != nil {
			return err
		}
		if test.Conclusion != ConclusionFailed {
			continue
		}
		excerpt, err := log.Render(spanlog.ForSpan(test.Span))
		if err != nil {
			// A failed unit always opened a span; losing the excerpt is
			// not worth losing the report.
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(excerpt, "\n"), "\n") {
			if _, err := fmt.Fprintf(w, "    %s\n", line); err != nil {
				return err
			}
		}
		for _, sub := range subtestsWithMinimized(test) {
			if _, err := fmt.Fprintf(w, "    minimized %s:\n", sub.Name); err != nil {
				return err
			}
			for _, line := range strings.Split(strings.TrimRight(sub.Minimized, "\n"), "\n") {
				if _, err := fmt.Fprintf(w, "      %s\n", line); err != nil {
					return err
				}
			}
		}
	}

	if _, err := fmt.Fprintf(w, "\n%s\n", r.Summary); err != nil {
		return err
	}

	if len(r.PatternOrder) > 0 {
		data, err := rules.Marshal(target, r.CandidateEntries())
		if err != nil {
			return fmt.Errorf("failed to render candidate rules: %w", err)
		}
		header := styled(failedStyle, "uncovered failures; add to the rule file to acknowledge:")
		if _, err := fmt.Fprintf(w, "\n%s\n%s", header, data); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON emits the machine-readable report.
func (r *FullReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func subtestsWithMinimized(test TestReport) []struct{ Name, Minimized string } {
	if test.Results.Check == nil {
		return nil
	}
	var out []struct{ Name, Minimized string }
	for _, sub := range test.Results.Check.Subtests {
		if sub.Minimized != "" {
			out = append(out, struct{ Name, Minimized string }{sub.Name, sub.Minimized})
		}
	}
	return out
}
