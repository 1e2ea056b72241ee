// Package app wires the registry, shared state, navigator, chat, analysis,
// session and notification components into one explicitly constructed
// application object. Front-ends (HTTP server, terminal UI) hold a *App and
// call its operations; they learn about changes through the bus.
package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/harvey-licitacoes/harvey/internal/analysis"
	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/harvey-licitacoes/harvey/internal/chat"
	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/harvey-licitacoes/harvey/internal/nav"
	"github.com/harvey-licitacoes/harvey/internal/notify"
	"github.com/harvey-licitacoes/harvey/internal/session"
	"github.com/harvey-licitacoes/harvey/internal/state"
	"github.com/harvey-licitacoes/harvey/internal/store"
)

var (
	// ErrNotFound is returned when a case reference does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrEmptyMessage is returned for blank chat input.
	ErrEmptyMessage = errors.New("empty message")
	// ErrNoGenerator is returned when text generation is requested without a configured provider.
	ErrNoGenerator = errors.New("no generative provider configured")
)

// Storage is what the application needs from the persistence layer.
// *store.Store satisfies it.
type Storage interface {
	store.Documents
	Delete(ctx context.Context, key string) error
	RecordActivity(ctx context.Context, entry store.ActivityEntry) error
	ListActivity(ctx context.Context, limit int) ([]store.ActivityEntry, error)
}

// Options configures New. Store is required.
type Options struct {
	Store Storage
	Bus   bus.Bus
	// Analysis runs edital analyses; defaults to the simulated backend.
	Analysis analysis.Backend
	// Generator backs draft generation and the text proxy. Optional.
	Generator llm.Generator
	// ChatEndpoint is used when the saved API config names no endpoint.
	ChatEndpoint string
	ChatTimeout  time.Duration
	Logger       *log.Logger
}

// App is the application state object.
type App struct {
	store      Storage
	bus        bus.Bus
	cases      *cases.Registry
	shared     *state.Shared
	nav        *nav.Navigator
	responder  *chat.Responder
	transcript *chat.Transcript
	analyzer   *analysis.Analyzer
	sessions   *session.Manager
	notifier   *notify.Notifier
	generator  llm.Generator
	chatURL    string
	logger     *log.Logger

	mu    sync.RWMutex
	views Views

	background sync.WaitGroup
}

// New loads every persisted document and wires the section hooks.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("app: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[app] ", log.LstdFlags)
	}
	b := opts.Bus
	if b == nil {
		b = bus.NewLocalBus(logger)
	}
	backend := opts.Analysis
	if backend == nil {
		backend = analysis.NewSimulatedBackend()
	}

	registry := cases.NewRegistry(ctx, opts.Store, logger)
	a := &App{
		store:      opts.Store,
		bus:        b,
		cases:      registry,
		shared:     state.New(ctx, opts.Store, registry, logger),
		nav:        nav.New(),
		responder:  chat.NewResponder(opts.ChatTimeout, logger),
		transcript: chat.NewTranscript(),
		analyzer:   analysis.NewAnalyzer(backend, logger),
		sessions:   session.NewManager(ctx, opts.Store, logger),
		notifier:   notify.New(opts.Store, logger),
		generator:  opts.Generator,
		chatURL:    opts.ChatEndpoint,
		logger:     logger,
	}
	a.views.Section = a.nav.Active()

	// Subscribed first so front-ends re-render from reloaded documents.
	a.bus.Subscribe(a.reloadRemote)

	a.cases.OnChange(func() {
		a.refreshStats()
		a.publish(context.Background(), bus.TopicCases, nil)
	})
	a.shared.OnChange(func() {
		a.refreshStats()
		a.publish(context.Background(), bus.TopicShared, nil)
	})
	a.nav.OnChange(func(from, to string) {
		a.mu.Lock()
		a.views.Section = to
		a.mu.Unlock()
		a.publish(context.Background(), bus.TopicSection, map[string]string{"from": from, "section": to})
	})
	a.notifier.Subscribe(func(n notify.Notification) {
		a.publish(context.Background(), bus.TopicNotification, map[string]string{"level": string(n.Level), "message": n.Message})
	})

	a.nav.OnEnter(nav.Analise, a.enterAnalise)
	a.nav.OnEnter(nav.Relatorios, a.enterRelatorios)
	a.nav.OnEnter(nav.Casos, a.enterCasos)
	a.nav.OnEnter(nav.Dashboard, a.enterDashboard)

	a.refreshStats()
	return a, nil
}

// Bus returns the change bus front-ends subscribe to.
func (a *App) Bus() bus.Bus { return a.bus }

// Notifier exposes the toast queue.
func (a *App) Notifier() *notify.Notifier { return a.notifier }

// Generator is the configured generative provider, or nil.
func (a *App) Generator() llm.Generator { return a.generator }

// Sessions exposes the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// WaitIdle blocks until background work started by the app (analysis
// attachment) has finished.
func (a *App) WaitIdle() {
	a.background.Wait()
}

func (a *App) publish(ctx context.Context, topic string, payload map[string]string) {
	if err := a.bus.Publish(ctx, bus.NewChange(topic, payload)); err != nil {
		a.logger.Printf("publish %s: %v", topic, err)
	}
}

// reloadRemote re-reads the documents another process wrote. The API
// config and prompt are read from the store on every access and need nothing.
func (a *App) reloadRemote(c bus.Change) {
	if !c.Remote {
		return
	}
	ctx := context.Background()
	switch c.Topic {
	case bus.TopicCases:
		a.cases.Reload(ctx)
	case bus.TopicShared:
		a.shared.Reload(ctx)
	case bus.TopicSession:
		a.sessions.Reload(ctx)
		return
	case bus.TopicConfig:
		if c.Payload["key"] != store.KeyReportTemplates {
			return
		}
		a.shared.Reload(ctx)
	default:
		return
	}
	a.logger.Printf("reloaded %s after a change from %s", c.Topic, c.Origin)
	a.refreshStats()
}

// record appends to the activity log; failures are only logged.
func (a *App) record(ctx context.Context, action, caseID string, details map[string]interface{}) {
	err := a.store.RecordActivity(ctx, store.ActivityEntry{
		Action:  action,
		CaseID:  caseID,
		Actor:   a.actor(),
		Details: details,
	})
	if err != nil {
		a.logger.Printf("record %s: %v", action, err)
	}
}

// actor is the display name of the logged-in user, or the system user.
func (a *App) actor() string {
	if u, ok := a.sessions.Current(); ok {
		return u.DisplayName()
	}
	return state.SystemUser
}

// Activity returns the most recent activity entries.
func (a *App) Activity(ctx context.Context, limit int) ([]store.ActivityEntry, error) {
	return a.store.ListActivity(ctx, limit)
}
