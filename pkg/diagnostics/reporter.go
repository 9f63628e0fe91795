// Package diagnostics receives the structured events the stacking pipeline
// reports: skipped entries, dropped particles, skipped or failed datasets,
// progress and written outputs. The pipeline never logs on its own; callers
// choose how events are presented by injecting a Reporter.
package diagnostics

import (
	"context"
	"log/slog"
	"sync"
)

// Stage names a per-dataset processing step for progress events
type Stage string

const (
	StageStatistics Stage = "statistics"
	StageAssembly   Stage = "assembly"
	StageWrite      Stage = "write"
)

// Reporter is notified of pipeline events. Implementations must be safe for
// concurrent use because datasets may be processed in parallel.
type Reporter interface {
	// EntrySkipped is called for archive entries whose names cannot be parsed
	EntrySkipped(entry string, err error)

	// EntryIgnored is called for archive entries without the input suffix
	EntryIgnored(entry string)

	// ParticleDropped is called for a particle lacking a required channel
	ParticleDropped(dataset, particle string, channels []int)

	// ValidationFinished reports how many particles a dataset lost and kept
	ValidationFinished(dataset string, removed, retained int)

	// DatasetSkipped is called when a dataset has nothing to write, such as no valid channels
	DatasetSkipped(dataset string, err error)

	// DatasetFailed is called when a dataset aborts on an error
	DatasetFailed(dataset string, err error)

	// DatasetWritten is called after the output file has been written
	DatasetWritten(dataset, path string)

	// Progress reports done of total units for a dataset stage
	Progress(dataset string, stage Stage, done, total int)
}

// Nop discards all events
type Nop struct{}

func (Nop) EntrySkipped(string, error) {}
func (Nop) EntryIgnored(string) {}
func (Nop) ParticleDropped(string, string, []int) {}
func (Nop) ValidationFinished(string, int, int) {}
func (Nop) DatasetSkipped(string, error) {}
func (Nop) DatasetFailed(string, error) {}
func (Nop) DatasetWritten(string, string) {}
func (Nop) Progress(string, Stage, int, int) {}

// SlogReporter writes every event as a structured log record
type SlogReporter struct {
	logger *slog.Logger
}

// NewSlogReporter wraps a logger. A nil logger uses slog.Default().
func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{logger: logger}
}

func (r *SlogReporter) EntrySkipped(entry string, err error) {
	r.logger.Warn("skipping archive entry", slog.String("entry", entry), slog.Any("error", err))
}

func (r *SlogReporter) EntryIgnored(entry string) {
	r.logger.Debug("ignoring archive entry", slog.String("entry", entry))
}

func (r *SlogReporter) ParticleDropped(dataset, particle string, channels []int) {
	r.logger.Warn("particle is missing channels",
		slog.String("dataset", dataset),
		slog.String("particle", particle),
		slog.Any("channels", channels))
}

func (r *SlogReporter) ValidationFinished(dataset string, removed, retained int) {
	level := slog.LevelInfo
	if removed > 0 {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "removed incomplete particles",
		slog.String("dataset", dataset),
		slog.Int("removed", removed),
		slog.Int("retained", retained))
}

func (r *SlogReporter) DatasetSkipped(dataset string, err error) {
	r.logger.Warn("skipping dataset", slog.String("dataset", dataset), slog.Any("error", err))
}

func (r *SlogReporter) DatasetFailed(dataset string, err error) {
	r.logger.Error("dataset failed", slog.String("dataset", dataset), slog.Any("error", err))
}

func (r *SlogReporter) DatasetWritten(dataset, path string) {
	r.logger.Info("wrote stack", slog.String("dataset", dataset), slog.String("path", path))
}

func (r *SlogReporter) Progress(dataset string, stage Stage, done, total int) {
	if done != total {
		return
	}
	r.logger.Debug("stage finished",
		slog.String("dataset", dataset),
		slog.String("stage", string(stage)),
		slog.Int("items", total))
}

// Multi fans events out to several reporters in order
type Multi []Reporter

func (m Multi) EntrySkipped(entry string, err error) {
	for _, r := range m {
		r.EntrySkipped(entry, err)
	}
}

func (m Multi) EntryIgnored(entry string) {
	for _, r := range m {
		r.EntryIgnored(entry)
	}
}

func (m Multi) ParticleDropped(dataset, particle string, channels []int) {
	for _, r := range m {
		r.ParticleDropped(dataset, particle, channels)
	}
}

func (m Multi) ValidationFinished(dataset string, removed, retained int) {
	for _, r := range m {
		r.ValidationFinished(dataset, removed, retained)
	}
}

func (m Multi) DatasetSkipped(dataset string, err error) {
	for _, r := range m {
		r.DatasetSkipped(dataset, err)
	}
}

func (m Multi) DatasetFailed(dataset string, err error) {
	for _, r := range m {
		r.DatasetFailed(dataset, err)
	}
}

func (m Multi) DatasetWritten(dataset, path string) {
	for _, r := range m {
		r.DatasetWritten(dataset, path)
	}
}

func (m Multi) Progress(dataset string, stage Stage, done, total int) {
	for _, r := range m {
		r.Progress(dataset, stage, done, total)
	}
}

// Locked serializes calls into a reporter that is not safe for concurrent use
type Locked struct {
	mu   sync.Mutex
	next Reporter
}

// NewLocked wraps next so that only one event is delivered at a time
func NewLocked(next Reporter) *Locked {
	return &Locked{next: next}
}

func (l *Locked) EntrySkipped(entry string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.EntrySkipped(entry, err)
}

func (l *Locked) EntryIgnored(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.EntryIgnored(entry)
}

func (l *Locked) ParticleDropped(dataset, particle string, channels []int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.ParticleDropped(dataset, particle, channels)
}

func (l *Locked) ValidationFinished(dataset string, removed, retained int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.ValidationFinished(dataset, removed, retained)
}

func (l *Locked) DatasetSkipped(dataset string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.DatasetSkipped(dataset, err)
}

func (l *Locked) DatasetFailed(dataset string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.DatasetFailed(dataset, err)
}

func (l *Locked) DatasetWritten(dataset, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.DatasetWritten(dataset, path)
}

func (l *Locked) Progress(dataset string, stage Stage, done, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.Progress(dataset, stage, done, total)
}
