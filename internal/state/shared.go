package state

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/harvey-licitacoes/harvey/internal/ids"
	"github.com/harvey-licitacoes/harvey/internal/store"
)

// CaseLookup resolves case ids. *cases.Registry satisfies it.
type CaseLookup interface {
	Find(id string) (cases.Case, bool)
}

// Shared is the cross-section state: the current case, stored analysis
// results, document templates and workflow progress. Each mutation builds the
// next document, persists it, and only then swaps it in, so a failed write
// leaves memory untouched.
type Shared struct {
	mu        sync.RWMutex
	docs      store.Documents
	lookup    CaseLookup
	doc       Document
	seq       *ids.Sequence
	now       func() time.Time
	listeners []func()
	logger    *log.Logger
}

// Option customizes a Shared instance.
type Option func(*Shared)

// WithClock overrides the time source used for dates and ids.
func WithClock(now func() time.Time) Option {
	return func(s *Shared) {
		s.now = now
		s.seq = ids.NewSequenceWithClock(now)
	}
}

// New loads the shared document (migrating older layouts) and the report
// templates. Absent or malformed content yields the empty shape.
func New(ctx context.Context, docs store.Documents, lookup CaseLookup, logger *log.Logger, opts ...Option) *Shared {
	if logger == nil {
		logger = log.New(log.Writer(), "[state] ", log.LstdFlags)
	}
	s := &Shared{
		docs:   docs,
		lookup: lookup,
		seq:    ids.NewSequence(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.doc = s.load(ctx)
	return s
}

// Reload re-reads the shared document and templates written by another
// process. Listeners are not notified.
func (s *Shared) Reload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = s.load(ctx)
}

func (s *Shared) load(ctx context.Context) Document {
	doc := emptyDocument()
	var raw rawDocument
	if s.docs.Load(ctx, store.KeySharedData, &raw) {
		doc = migrate(raw)
	}

	var templates map[string]string
	if s.docs.Load(ctx, store.KeyReportTemplates, &templates) {
		for name, body := range templates {
			doc.DocumentTemplates[name] = body
		}
	}

	for _, r := range doc.AnalysisResults {
		s.seq.Observe(r.ID)
	}
	return doc
}

// OnChange registers fn to run after every committed mutation.
func (s *Shared) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// commit persists next and swaps it in. Callers hold s.mu.
func (s *Shared) commit(ctx context.Context, next Document) error {
	next.Version = CurrentVersion
	if err := s.docs.Save(ctx, store.KeySharedData, next); err != nil {
		return fmt.Errorf("persist shared data: %w", err)
	}
	s.doc = next
	return nil
}

// mutate runs fn against a copy of the document and commits the result.
func (s *Shared) mutate(ctx context.Context, fn func(*Document) error) error {
	s.mu.Lock()
	next := s.doc.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l()
	}
	return nil
}

// SetCurrentCase points the shared state at an existing case.
func (s *Shared) SetCurrentCase(ctx context.Context, caseID string) error {
	if _, ok := s.lookup.Find(caseID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}
	return s.mutate(ctx, func(d *Document) error {
		d.CurrentCaseID = caseID
		return nil
	})
}

// ClearCurrentCase drops the current case reference.
func (s *Shared) ClearCurrentCase(ctx context.Context) error {
	return s.mutate(ctx, func(d *Document) error {
		d.CurrentCaseID = ""
		return nil
	})
}

// CurrentCaseID returns the stored reference, which may no longer resolve.
func (s *Shared) CurrentCaseID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.CurrentCaseID
}

// CurrentCase resolves the current case through the registry. A dangling
// reference reads as no current case.
func (s *Shared) CurrentCase() (cases.Case, bool) {
	id := s.CurrentCaseID()
	if id == "" {
		return cases.Case{}, false
	}
	return s.lookup.Find(id)
}

// AppendAnalysisResult stores a new result for caseID. An empty user is
// recorded as SystemUser.
func (s *Shared) AppendAnalysisResult(ctx context.Context, caseID, content string, typ AnalysisType, user string) (AnalysisResult, error) {
	if !typ.Valid() {
		return AnalysisResult{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if _, ok := s.lookup.Find(caseID); !ok {
		return AnalysisResult{}, fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}
	if strings.TrimSpace(user) == "" {
		user = SystemUser
	}

	result := AnalysisResult{
		ID:      s.seq.Next(),
		CaseID:  caseID,
		Type:    typ,
		Content: content,
		Date:    FormatTime(s.now()),
		User:    user,
	}
	err := s.mutate(ctx, func(d *Document) error {
		d.AnalysisResults = append(d.AnalysisResults, result)
		return nil
	})
	if err != nil {
		return AnalysisResult{}, err
	}
	return result, nil
}

// AnalysisResults returns every stored result in insertion order.
func (s *Shared) AnalysisResults() []AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AnalysisResult, len(s.doc.AnalysisResults))
	copy(out, s.doc.AnalysisResults)
	return out
}

// ResultsForCase returns the results attached to caseID in insertion order.
func (s *Shared) ResultsForCase(caseID string) []AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AnalysisResult
	for _, r := range s.doc.AnalysisResults {
		if r.CaseID == caseID {
			out = append(out, r)
		}
	}
	return out
}

// FirstResultForCase returns the earliest result attached to caseID.
func (s *Shared) FirstResultForCase(caseID string) (AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.doc.AnalysisResults {
		if r.CaseID == caseID {
			return r, true
		}
	}
	return AnalysisResult{}, false
}

// FirstResultDates maps each case id with at least one result to the date of its first result.
func (s *Shared) FirstResultDates() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for _, r := range s.doc.AnalysisResults {
		if _, seen := out[r.CaseID]; !seen {
			out[r.CaseID] = r.Date
		}
	}
	return out
}

// CountResults counts results satisfying keep.
func (s *Shared) CountResults(keep func(AnalysisResult) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.doc.AnalysisResults {
		if keep(r) {
			n++
		}
	}
	return n
}

// RecordWorkflow replaces the workflow with steps, pointing at the first one.
func (s *Shared) RecordWorkflow(ctx context.Context, steps []WorkflowStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("workflow needs at least one step")
	}
	return s.mutate(ctx, func(d *Document) error {
		d.WorkflowState = Workflow{
			Steps:       append([]WorkflowStep(nil), steps...),
			CurrentStep: 0,
			Completed:   false,
			StartDate:   FormatTime(s.now()),
		}
		return nil
	})
}

// AdvanceWorkflow moves to the next step and returns it with advanced=true.
// On the last step it marks the workflow completed and returns advanced=false.
func (s *Shared) AdvanceWorkflow(ctx context.Context) (WorkflowStep, bool, error) {
	var step WorkflowStep
	var advanced bool
	err := s.mutate(ctx, func(d *Document) error {
		w := &d.WorkflowState
		if !w.Recorded() {
			return ErrNoWorkflow
		}
		if w.CurrentStep < len(w.Steps)-1 {
			w.CurrentStep++
			step = w.Steps[w.CurrentStep]
			advanced = true
			return nil
		}
		w.Completed = true
		return nil
	})
	if err != nil {
		return WorkflowStep{}, false, err
	}
	return step, advanced, nil
}

// Workflow returns a copy of the workflow state.
func (s *Shared) Workflow() Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := s.doc.WorkflowState
	w.Steps = append([]WorkflowStep(nil), w.Steps...)
	return w
}

// SetTemplate stores a named report template in the shared document and
// under its own key.
func (s *Shared) SetTemplate(ctx context.Context, name, body string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("template name is required")
	}
	var templates map[string]string
	err := s.mutate(ctx, func(d *Document) error {
		d.DocumentTemplates[name] = body
		templates = d.DocumentTemplates
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.docs.Save(ctx, store.KeyReportTemplates, templates); err != nil {
		return fmt.Errorf("persist report templates: %w", err)
	}
	return nil
}

// Templates returns a copy of the document templates.
func (s *Shared) Templates() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.doc.DocumentTemplates))
	for k, v := range s.doc.DocumentTemplates {
		out[k] = v
	}
	return out
}

// Snapshot returns a deep copy of the whole shared document.
func (s *Shared) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.clone()
}
