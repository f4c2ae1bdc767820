package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// stageProgress shows one bar per pipeline stage, replacing the bar
// whenever the stage changes.
type stageProgress struct {
	w     io.Writer
	stage string
	bar   *progressbar.ProgressBar
}

func newStageProgress(w io.Writer) *stageProgress {
	return &stageProgress{w: w}
}

// Update matches pipeline.ProgressFunc.
func (p *stageProgress) Update(stage string, done, total int) {
	if stage != p.stage || p.bar == nil {
		p.Finish()
		p.stage = stage
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(stage),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionOnCompletion(func() { io.WriteString(p.w, "\n") }),
		)
	}
	_ = p.bar.Set(done)
}

func (p *stageProgress) Finish() {
	if p.bar != nil && !p.bar.IsFinished() {
		_ = p.bar.Finish()
	}
	p.bar = nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
