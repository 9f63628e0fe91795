package diagnostics

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// ProgressReporter draws the current dataset stage as a progress bar and
// ignores every other event
type ProgressReporter struct {
	Nop

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewProgressReporter creates a progress bar writing to w
func NewProgressReporter(w io.Writer) *ProgressReporter {
	bar := progressbar.NewOptions(1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &ProgressReporter{bar: bar}
}

func (r *ProgressReporter) Progress(dataset string, stage Stage, done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar.Describe(fmt.Sprintf("%s %s", dataset, stage))
	r.bar.ChangeMax(total)
	r.bar.Set(done)
}

// Finish clears the bar
func (r *ProgressReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar.Finish()
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
