package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nvr-ai/go-firewatch/live"
	"github.com/nvr-ai/go-firewatch/models"
	"github.com/nvr-ai/go-firewatch/training"
)

var (
	colorFire = lipgloss.AdaptiveColor{Light: "#e45649", Dark: "#f07178"}
	colorSafe = lipgloss.AdaptiveColor{Light: "#50a14f", Dark: "#c2d94c"}
	colorDim  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}

	styleTitle = lipgloss.NewStyle().Bold(true).Underline(true)
	styleFire  = lipgloss.NewStyle().Foreground(colorFire).Bold(true)
	styleSafe  = lipgloss.NewStyle().Foreground(colorSafe).Bold(true)
	styleDim   = lipgloss.NewStyle().Foreground(colorDim)
	styleBest  = lipgloss.NewStyle().Foreground(colorSafe)
	styleCell  = lipgloss.NewStyle().PaddingRight(2)
)

func renderVerdict(path string, v live.Verdict) string {
	style := styleSafe
	if v.Fire {
		style = styleFire
	}
	return fmt.Sprintf("%s  %s", style.Render(v.Text()), styleDim.Render(path))
}

// table renders rows as left-aligned columns.
func table(rows [][]string) string {
	widths := make([]int, 0)
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, len(rows))
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = styleCell.Width(widths[i] + 2).Render(cell)
		}
		lines[r] = strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " ")
	}
	return strings.Join(lines, "\n")
}

func writeTrainingSummary(w io.Writer, layers []models.Layer, res *training.Result) {
	rows := [][]string{{"layer", "output", "params", "trainable"}}
	for _, l := range layers {
		trainable := styleDim.Render("frozen")
		if l.Trainable {
			trainable = "yes"
		}
		rows = append(rows, []string{l.Name, l.Output, fmt.Sprintf("%d", l.Params), trainable})
	}
	fmt.Fprintln(w, styleTitle.Render("Model"))
	fmt.Fprintln(w, table(rows))
	fmt.Fprintln(w)

	h := res.History
	rows = [][]string{{"epoch", "loss", "accuracy", "val_loss", "val_accuracy"}}
	for _, m := range h.Epochs {
		row := []string{
			fmt.Sprintf("%d", m.Epoch),
			fmt.Sprintf("%.4f", m.Loss),
			fmt.Sprintf("%.4f", m.Accuracy),
			fmt.Sprintf("%.4f", m.ValLoss),
			fmt.Sprintf("%.4f", m.ValAccuracy),
		}
		if m.Epoch == h.BestEpoch {
			for i := range row {
				row[i] = styleBest.Render(row[i])
			}
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(w, styleTitle.Render("Training"))
	fmt.Fprintln(w, table(rows))
	fmt.Fprintln(w)

	stopped := "completed"
	if h.StoppedEarly {
		stopped = "stopped early"
	}
	fmt.Fprintf(w, "run %s %s, best epoch %d, exported to %s\n",
		res.RunID, stopped, h.BestEpoch, res.ArtifactPath)
}

func writeDetectionSummary(w io.Writer, stats live.Stats) {
	fire := styleSafe.Render("0")
	if stats.Fire > 0 {
		fire = styleFire.Render(fmt.Sprintf("%d", stats.Fire))
	}
	fmt.Fprintf(w, "%s frames=%d fire=%s skipped=%d snapshots=%d fps=%.1f (%s)\n",
		styleTitle.Render("Detection"), stats.Frames, fire, stats.Failures, stats.Snapshots, stats.FPS,
		stats.Reason)
}
