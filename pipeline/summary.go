package pipeline

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/poiesic/refinery/clean"
	"github.com/poiesic/refinery/metrics"
)

// Stage names a pipeline stage in the run summary.
type Stage string

const (
	StageIngest Stage = "ingest"
	StageClean  Stage = "clean"
	StageEnrich Stage = "enrich"
	StageChunk  Stage = "chunk"
	StageEmbed  Stage = "embed"
	StageIndex  Stage = "index"
	StageExport Stage = "export"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageIngest, StageClean, StageEnrich, StageChunk, StageEmbed, StageIndex, StageExport}

// StageStats counts what a stage did. Ingest counts files, embed and index
// count chunks, export counts sources and the other stages count records.
type StageStats struct {
	Processed int
	Skipped   int
	Failed    int
}

// Failure is one per-record or per-file failure.
type Failure struct {
	Stage    Stage
	Source   string
	Name     string
	Position int
	Row      int
	Err      error
}

func (f Failure) String() string {
	if f.Row > 0 {
		return fmt.Sprintf("%s %s/%s row %d: %v", f.Stage, f.Source, f.Name, f.Row, f.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", f.Stage, f.Source, f.Name, f.Err)
}

// Summary is the outcome of a run. It is safe for concurrent use.
type Summary struct {
	mu        sync.Mutex
	stages    map[Stage]*StageStats
	failures  []Failure
	audit     clean.AuditCounts
	sources   []string
	indexSize int
	started   time.Time
	finished  time.Time
	metrics   *metrics.Metrics
}

func newSummary(m *metrics.Metrics) *Summary {
	s := &Summary{stages: make(map[Stage]*StageStats, len(Stages)), started: time.Now(), metrics: m}
	for _, st := range Stages {
		s.stages[st] = &StageStats{}
	}
	return s
}

func (s *Summary) add(stage Stage, processed, skipped, failed int) {
	s.mu.Lock()
	st := s.stages[stage]
	st.Processed += processed
	st.Skipped += skipped
	st.Failed += failed
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Add(string(stage), metrics.OutcomeProcessed, processed)
		s.metrics.Add(string(stage), metrics.OutcomeSkipped, skipped)
		s.metrics.Add(string(stage), metrics.OutcomeFailed, failed)
	}
}

// fail records f and counts one failure for its stage.
func (s *Summary) fail(f Failure) {
	s.record(f)
	s.add(f.Stage, 0, 0, 1)
}

// record lists f without counting it.
func (s *Summary) record(f Failure) {
	s.mu.Lock()
	s.failures = append(s.failures, f)
	s.mu.Unlock()
}

func (s *Summary) observe(stage Stage, since time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStage(string(stage), time.Since(since).Seconds())
	}
}

func (s *Summary) setAudit(counts clean.AuditCounts) {
	s.mu.Lock()
	s.audit = counts
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetAudit(counts.Map())
	}
}

func (s *Summary) setIndexSize(n int) {
	s.mu.Lock()
	s.indexSize = n
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetIndexSize(n)
	}
}

func (s *Summary) addSource(source string) {
	s.mu.Lock()
	s.sources = append(s.sources, source)
	s.mu.Unlock()
}

func (s *Summary) finish() {
	s.mu.Lock()
	s.finished = time.Now()
	s.mu.Unlock()
}

// Stats returns the counts of stage.
func (s *Summary) Stats(stage Stage) StageStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stages[stage]; ok {
		return *st
	}
	return StageStats{}
}

// Failures returns the recorded failures in the order they happened.
func (s *Summary) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Failure(nil), s.failures...)
}

// Audit returns the Cleaner's audit counts for the run.
func (s *Summary) Audit() clean.AuditCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audit
}

// Sources returns the sources the run visited.
func (s *Summary) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sources...)
}

// IndexSize returns the live chunk count of the index after the run.
func (s *Summary) IndexSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexSize
}

// Duration returns how long the run took.
func (s *Summary) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished.IsZero() {
		return time.Since(s.started)
	}
	return s.finished.Sub(s.started)
}

// WriteTo prints the summary as aligned text.
func (s *Summary) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tPROCESSED\tSKIPPED\tFAILED")
	for _, stage := range Stages {
		st := s.Stats(stage)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", stage, st.Processed, st.Skipped, st.Failed)
	}
	fmt.Fprintln(tw)
	audit := s.Audit()
	fmt.Fprintln(tw, "AUDIT\tCOUNT")
	for _, name := range auditOrder {
		fmt.Fprintf(tw, "%s\t%d\n", name, audit.Map()[name])
	}
	if err := tw.Flush(); err != nil {
		return cw.n, err
	}
	fmt.Fprintf(cw, "\nindex chunks: %d, duration: %s\n", s.IndexSize(), s.Duration().Round(time.Millisecond))
	for _, f := range s.Failures() {
		fmt.Fprintf(cw, "failed: %s\n", f)
	}
	return cw.n, cw.err
}

var auditOrder = []string{
	"duplicates_dropped", "fields_dropped", "fields_defaulted", "fields_flagged",
	"dates_normalized", "dates_unresolved", "emails_redacted", "phones_redacted",
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
