package trainer

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressReporter follows a fold's training progress.
type ProgressReporter interface {
	Observe(ev Event)
	Finish()
}

// EpochProgress draws one bar per epoch from the trainer's progress events.
type EpochProgress struct {
	label string
	epoch int
	w     io.Writer
	bar   *progressbar.ProgressBar
}

// NewEpochProgress returns nil when progress output is disabled.
// A nil writer draws on stderr.
func NewEpochProgress(enabled bool, w io.Writer, fold, numTrials int) ProgressReporter {
	if !enabled {
		return nil
	}
	if w == nil {
		w = os.Stderr
	}
	return &EpochProgress{
		label: fmt.Sprintf("fold %d/%d", fold+1, numTrials),
		epoch: -1,
		w:     w,
	}
}

func (p *EpochProgress) Observe(ev Event) {
	if ev.Type != EventProgress || ev.Iters <= 0 {
		return
	}
	if p.bar == nil || ev.Epoch != p.epoch {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		p.epoch = ev.Epoch
		p.bar = progressbar.NewOptions(ev.Iters,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(fmt.Sprintf("%s epoch %d", p.label, ev.Epoch+1)),
			progressbar.OptionSetWidth(32),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	_ = p.bar.Set(ev.Iter)
}

func (p *EpochProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

// DefaultProgressEnabled reports whether stderr is a terminal.
func DefaultProgressEnabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
