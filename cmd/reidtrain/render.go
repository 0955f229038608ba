package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/DreamCats/reidtrain/internal/metrics"
	"github.com/DreamCats/reidtrain/internal/runindex"
	"github.com/DreamCats/reidtrain/internal/store"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	succeededStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	labelStyle     = lipgloss.NewStyle().Bold(true).Width(12)
)

const shortIDLen = 8

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func statusText(status string) string {
	switch status {
	case store.StatusSucceeded:
		return succeededStyle.Render(status)
	case store.StatusFailed:
		return failedStyle.Render(status)
	case store.StatusRunning:
		return runningStyle.Render(status)
	}
	return status
}

func percentOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return metrics.Percent(*v)
}

func rankOrDash(cmc []float64, r int) string {
	if r > len(cmc) {
		return "-"
	}
	return metrics.Percent(cmc[r-1])
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func renderRuns(runs []store.Run, now time.Time) string {
	t := newTable("ID", "STARTED", "DATASET", "FOLDS", "STATUS", "mAP", "RANK-1", "OUTPUT")
	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Dataset,
			strconv.Itoa(r.NumTrials),
			statusText(r.Status),
			percentOrDash(r.MAP),
			rankOrDash(r.CMC, 1),
			r.OutputDir,
		)
	}
	return t.String()
}

func renderFolds(folds []store.Fold) string {
	t := newTable("FOLD", "mAP", "RANK-1", "CHECKPOINT", "ERROR")
	for _, f := range folds {
		ckpt := "-"
		if f.Test {
			ckpt = f.Checkpoint
		}
		t.Row(strconv.Itoa(f.Fold+1), percentOrDash(f.MAP), rankOrDash(f.CMC, 1), ckpt, f.Error)
	}
	return t.String()
}

func renderRun(r *store.Run) string {
	line := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value) + "\n"
	}
	out := line("Run", r.ID)
	out += line("Status", statusText(r.Status))
	out += line("Dataset", fmt.Sprintf("%s (%d folds)", r.Dataset, r.NumTrials))
	if r.ConfigFile != "" {
		out += line("Config", r.ConfigFile)
	}
	out += line("Output", r.OutputDir)
	if r.GitRev != "" {
		out += line("Revision", r.GitRev)
	}
	out += line("Started", r.StartedAt.Local().Format(time.DateTime))
	if r.FinishedAt != nil {
		out += line("Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String())
	}
	if r.Error != "" {
		out += line("Error", failedStyle.Render(r.Error))
	}
	return out
}

// summaryLines repeats the aggregated report written to the train log.
func summaryLines(r *store.Run) []string {
	if r.MAP == nil {
		return nil
	}
	s := metrics.Summary{NumTrials: r.NumTrials, MAP: *r.MAP, CMC: r.CMC}
	if r.MAPStd != nil {
		s.MAPStd = *r.MAPStd
	}
	return metrics.ReportLines(s)
}

func renderHits(hits []runindex.Hit) string {
	t := newTable("ID", "DATASET", "STATUS", "CONFIG", "OUTPUT", "SCORE")
	for _, h := range hits {
		t.Row(shortID(h.ID), h.Dataset, statusText(h.Status), h.ConfigFile, h.OutputDir, fmt.Sprintf("%.3f", h.Score))
	}
	return t.String()
}

func renderStats(stats *store.DBStats) string {
	return fmt.Sprintf("%d runs, %d folds, %d scalars, %s on disk",
		stats.RunCount, stats.FoldCount, stats.ScalarCount, humanize.Bytes(uint64(stats.SizeBytes)))
}
