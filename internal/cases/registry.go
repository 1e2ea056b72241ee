package cases

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/harvey-licitacoes/harvey/internal/ids"
	"github.com/harvey-licitacoes/harvey/internal/store"
)

// Registry owns the ordered collection of cases and keeps it persisted under
// store.KeyCases. Every mutation persists before it becomes visible.
type Registry struct {
	mu        sync.RWMutex
	docs      store.Documents
	cases     []Case
	seq       *ids.Sequence
	listeners []func()
	logger    *log.Logger
}

// NewRegistry loads persisted cases, falling back to DefaultCases when the
// document is absent or unreadable.
func NewRegistry(ctx context.Context, docs store.Documents, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(log.Writer(), "[cases] ", log.LstdFlags)
	}
	r := &Registry{
		docs:   docs,
		seq:    ids.NewSequence(),
		logger: logger,
	}
	r.cases = r.load(ctx)
	return r
}

// Reload replaces the in-memory collection with the persisted one. It is
// used when another process has written the document. Listeners are not
// notified.
func (r *Registry) Reload(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases = r.load(ctx)
}

func (r *Registry) load(ctx context.Context) []Case {
	var loaded []Case
	if !r.docs.Load(ctx, store.KeyCases, &loaded) || loaded == nil {
		loaded = DefaultCases()
	}
	for _, c := range loaded {
		if n, err := strconv.ParseInt(c.ID, 10, 64); err == nil {
			r.seq.Observe(n)
		}
	}
	return loaded
}

// OnChange registers fn to run after every committed mutation.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Create validates f, appends a new case and persists the collection.
func (r *Registry) Create(ctx context.Context, f Fields) (Case, error) {
	if err := f.Validate(); err != nil {
		return Case{}, err
	}

	status := StatusOpen
	if f.Status != "" {
		status, _ = ParseStatus(f.Status)
	}

	c := Case{
		ID:             r.seq.NextString(),
		Numero:         strings.TrimSpace(f.Numero),
		Objeto:         strings.TrimSpace(f.Objeto),
		Modalidade:     strings.TrimSpace(f.Modalidade),
		Orgao:          strings.TrimSpace(f.Orgao),
		DataPublicacao: strings.TrimSpace(f.DataPublicacao),
		Status:         status,
	}

	r.mu.Lock()
	next := make([]Case, len(r.cases), len(r.cases)+1)
	copy(next, r.cases)
	next = append(next, c)
	if err := r.docs.Save(ctx, store.KeyCases, next); err != nil {
		r.mu.Unlock()
		return Case{}, fmt.Errorf("persist cases: %w", err)
	}
	r.cases = next
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	r.logger.Printf("created case %s (%s)", c.ID, c.Numero)
	notifyAll(listeners)
	return c, nil
}

// Find returns the case with the given id.
func (r *Registry) Find(id string) (Case, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cases {
		if c.ID == id {
			return c, true
		}
	}
	return Case{}, false
}

// FindByNumero returns the first case with the given process number.
func (r *Registry) FindByNumero(numero string) (Case, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	numero = strings.TrimSpace(numero)
	for _, c := range r.cases {
		if c.Numero == numero {
			return c, true
		}
	}
	return Case{}, false
}

// Search filters cases by a case-insensitive substring of numero, objeto or
// orgao, keeping the original order. A blank query returns every case.
func (r *Registry) Search(query string) []Case {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return r.List()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Case, 0, len(r.cases))
	for _, c := range r.cases {
		if c.matches(q) {
			out = append(out, c)
		}
	}
	return out
}

// List returns a copy of every case in insertion order.
func (r *Registry) List() []Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Case, len(r.cases))
	copy(out, r.cases)
	return out
}

// CountByStatus counts cases carrying status s.
func (r *Registry) CountByStatus(s Status) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.cases {
		if c.Status == s {
			n++
		}
	}
	return n
}

// ApplyAnalysisTags marks each case listed in dates (case id -> analysis date)
// as analysed and persists the collection. Cases not listed keep their tags.
func (r *Registry) ApplyAnalysisTags(ctx context.Context, dates map[string]string) error {
	r.mu.Lock()
	next := make([]Case, len(r.cases))
	copy(next, r.cases)
	changed := false
	for i := range next {
		date, ok := dates[next[i].ID]
		if !ok {
			continue
		}
		if !next[i].HasAnalysis || next[i].AnalysisDate != date {
			next[i].HasAnalysis = true
			next[i].AnalysisDate = date
			changed = true
		}
	}
	if !changed {
		r.mu.Unlock()
		return nil
	}
	if err := r.docs.Save(ctx, store.KeyCases, next); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("persist cases: %w", err)
	}
	r.cases = next
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	notifyAll(listeners)
	return nil
}

func (r *Registry) snapshotListeners() []func() {
	out := make([]func(), len(r.listeners))
	copy(out, r.listeners)
	return out
}

func notifyAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
