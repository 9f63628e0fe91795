package diagnostics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
)

// DroppedParticle is a particle removed for missing channels
type DroppedParticle struct {
	Dataset  string
	Particle string
	Channels []int
}

// DatasetIssue is a dataset that produced no output
type DatasetIssue struct {
	Dataset string
	Err     error
}

// WrittenStack is an output file produced by the run
type WrittenStack struct {
	Dataset string
	Path    string
}

// Summary collects the events of one run for the end-of-run report
type Summary struct {
	mu             sync.Mutex
	skippedEntries []string
	ignoredEntries []string
	dropped        []DroppedParticle
	skipped        []DatasetIssue
	failed         []DatasetIssue
	written        []WrittenStack
}

// NewSummary creates an empty run summary
func NewSummary() *Summary {
	return &Summary{}
}

func (s *Summary) EntrySkipped(entry string, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skippedEntries = append(s.skippedEntries, entry)
}

func (s *Summary) EntryIgnored(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoredEntries = append(s.ignoredEntries, entry)
}

func (s *Summary) ParticleDropped(dataset, particle string, channels []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, DroppedParticle{
		Dataset:  dataset,
		Particle: particle,
		Channels: append([]int(nil), channels...),
	})
}

func (s *Summary) ValidationFinished(string, int, int) {}

func (s *Summary) DatasetSkipped(dataset string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, DatasetIssue{Dataset: dataset, Err: err})
}

func (s *Summary) DatasetFailed(dataset string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, DatasetIssue{Dataset: dataset, Err: err})
}

func (s *Summary) DatasetWritten(dataset, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, WrittenStack{Dataset: dataset, Path: path})
}

func (s *Summary) Progress(string, Stage, int, int) {}

// SkippedEntries returns the archive entries whose names could not be parsed
func (s *Summary) SkippedEntries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.skippedEntries...)
}

// IgnoredEntries returns the archive entries that lacked the input suffix
func (s *Summary) IgnoredEntries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ignoredEntries...)
}

// Dropped returns the removed particles sorted by dataset and particle
func (s *Summary) Dropped() []DroppedParticle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]DroppedParticle(nil), s.dropped...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Dataset != out[j].Dataset {
			return out[i].Dataset < out[j].Dataset
		}
		return out[i].Particle < out[j].Particle
	})
	return out
}

// Skipped returns the datasets skipped without output, sorted by dataset
func (s *Summary) Skipped() []DatasetIssue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedIssues(s.skipped)
}

// Failed returns the datasets that aborted on an error, sorted by dataset
func (s *Summary) Failed() []DatasetIssue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedIssues(s.failed)
}

// FailedMatching returns the failed datasets whose error satisfies match,
// e.g. every datatype mismatch of the run
func (s *Summary) FailedMatching(match func(error) bool) []DatasetIssue {
	var out []DatasetIssue
	for _, issue := range s.Failed() {
		if match(issue.Err) {
			out = append(out, issue)
		}
	}
	return out
}

// Written returns the output files sorted by dataset
func (s *Summary) Written() []WrittenStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]WrittenStack(nil), s.written...)
	sort.Slice(out, func(i, j int) bool { return out[i].Dataset < out[j].Dataset })
	return out
}

func sortedIssues(in []DatasetIssue) []DatasetIssue {
	out := append([]DatasetIssue(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Dataset < out[j].Dataset })
	return out
}

// Render formats the summary as a table of datasets followed by the removed
// particles. A dataset that was written but then failed, such as during plane
// export, gets a single "incomplete" row carrying both the path and the error.
func (s *Summary) Render() string {
	written, failed := s.Written(), s.Failed()
	late := make(map[string]error, len(failed))
	for _, w := range written {
		for _, issue := range failed {
			if issue.Dataset == w.Dataset {
				late[w.Dataset] = issue.Err
			}
		}
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Dataset", "Status", "Detail"})
	for _, w := range written {
		if err, ok := late[w.Dataset]; ok {
			tw.AppendRow(table.Row{w.Dataset, "incomplete", w.Path + "\n" + errorText(err)})
			continue
		}
		tw.AppendRow(table.Row{w.Dataset, "written", w.Path})
	}
	for _, issue := range s.Skipped() {
		tw.AppendRow(table.Row{issue.Dataset, "skipped", errorText(issue.Err)})
	}
	for _, issue := range failed {
		if _, ok := late[issue.Dataset]; ok {
			continue
		}
		tw.AppendRow(table.Row{issue.Dataset, "failed", errorText(issue.Err)})
	}

	var b strings.Builder
	b.WriteString(tw.Render())
	b.WriteString("\n")

	dropped := s.Dropped()
	if len(dropped) > 0 {
		pt := table.NewWriter()
		pt.SetStyle(table.StyleRounded)
		pt.AppendHeader(table.Row{"Dataset", "Removed particle", "Channels present"})
		for _, d := range dropped {
			pt.AppendRow(table.Row{d.Dataset, d.Particle, formatChannels(d.Channels)})
		}
		b.WriteString(pt.Render())
		b.WriteString("\n")
	}
	if entries := s.SkippedEntries(); len(entries) > 0 {
		fmt.Fprintf(&b, "%d archive entries could not be parsed\n", len(entries))
	}
	return b.String()
}

func formatChannels(channels []int) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = fmt.Sprint(ch)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
