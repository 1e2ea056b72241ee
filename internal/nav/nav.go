package nav

import (
	"context"
	"sync"
)

// Section names, one per dashboard page.
const (
	Dashboard     = "dashboard"
	Chat          = "chat"
	Casos         = "casos"
	Analise       = "analise"
	Relatorios    = "relatorios"
	Configuracoes = "configuracoes"
	IAJuridica    = "ia-juridica"
)

var sections = []string{Dashboard, Chat, Casos, Analise, Relatorios, Configuracoes, IAJuridica}

// Sections returns every known section in menu order.
func Sections() []string {
	return append([]string(nil), sections...)
}

// Known reports whether name is a section.
func Known(name string) bool {
	for _, s := range sections {
		if s == name {
			return true
		}
	}
	return false
}

// Hook runs when its section becomes active.
type Hook func(ctx context.Context)

// Listener observes section changes (previous, next).
type Listener func(from, to string)

// Navigator keeps exactly one active section.
type Navigator struct {
	mu        sync.Mutex
	active    string
	hooks     map[string][]Hook
	listeners []Listener
}

// New returns a navigator positioned on the dashboard.
func New() *Navigator {
	return &Navigator{active: Dashboard, hooks: make(map[string][]Hook)}
}

// Active returns the current section.
func (n *Navigator) Active() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// OnEnter registers hook for section. Unknown sections are ignored.
func (n *Navigator) OnEnter(section string, hook Hook) {
	if !Known(section) {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hooks[section] = append(n.hooks[section], hook)
}

// OnChange registers a listener called on every successful switch.
func (n *Navigator) OnChange(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Switch activates name. An unknown name is a no-op returning false.
// Switching to the active section still runs its entry hooks.
func (n *Navigator) Switch(ctx context.Context, name string) bool {
	if !Known(name) {
		return false
	}
	n.mu.Lock()
	prev := n.active
	n.active = name
	listeners := append([]Listener(nil), n.listeners...)
	hooks := append([]Hook(nil), n.hooks[name]...)
	n.mu.Unlock()

	for _, l := range listeners {
		l(prev, name)
	}
	for _, h := range hooks {
		h(ctx)
	}
	return true
}
