package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harvey-licitacoes/harvey/internal/store"
)

// User-facing messages.
const (
	MsgLoginOK          = "Login realizado com sucesso!"
	MsgLoginFailed      = "Erro ao fazer login. Tente novamente."
	MsgRegisterOK       = "Cadastro realizado com sucesso!"
	MsgRegisterFailed   = "Erro ao fazer cadastro. Tente novamente."
	MsgPasswordMismatch = "As senhas não coincidem."
	MsgLogoutOK         = "Logout realizado com sucesso!"
	MsgEditProfile      = "Funcionalidade de edição de perfil em desenvolvimento."
)

// FallbackName is displayed when a session has no usable name.
const FallbackName = "Usuário"

var (
	// ErrMissingFields is returned when a required form field is blank.
	ErrMissingFields = errors.New("missing required fields")
	// ErrPasswordMismatch is returned when the confirmation differs.
	ErrPasswordMismatch = errors.New(MsgPasswordMismatch)
)

// User is the logged-in identity. Credentials are never checked or stored.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	LoginTime string `json:"loginTime"`
}

// DisplayName returns Name or FallbackName.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) == "" {
		return FallbackName
	}
	return u.Name
}

// Manager holds the current session and persists it.
type Manager struct {
	mu      sync.RWMutex
	docs    store.Documents
	deleter func(ctx context.Context, key string) error
	current *User
	now     func() time.Time
	logger  *log.Logger
}

// Deleter is implemented by stores that can drop a key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// NewManager restores a persisted session, if any.
func NewManager(ctx context.Context, docs store.Documents, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[session] ", log.LstdFlags)
	}
	m := &Manager{docs: docs, now: time.Now, logger: logger}
	if d, ok := docs.(Deleter); ok {
		m.deleter = d.Delete
	}
	m.current = m.load(ctx)
	return m
}

// Reload re-reads the persisted session, picking up a login or logout made
// by another process.
func (m *Manager) Reload(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.load(ctx)
}

func (m *Manager) load(ctx context.Context) *User {
	var u User
	if m.docs.Load(ctx, store.KeyUserSession, &u) && u.Email != "" {
		return &u
	}
	return nil
}

// Current returns the logged-in user.
func (m *Manager) Current() (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return User{}, false
	}
	return *m.current, true
}

// Login starts a session named after the local part of email.
func (m *Manager) Login(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, ErrMissingFields
	}
	name := email
	if i := strings.Index(email, "@"); i >= 0 {
		name = email[:i]
	}
	return m.start(ctx, name, email)
}

// Register starts a session for a new user. Nothing is kept besides the session.
func (m *Manager) Register(ctx context.Context, name, email, password, confirm string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return User{}, ErrMissingFields
	}
	if password != confirm {
		return User{}, ErrPasswordMismatch
	}
	return m.start(ctx, name, email)
}

func (m *Manager) start(ctx context.Context, name, email string) (User, error) {
	u := User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		LoginTime: m.now().UTC().Format(time.RFC3339),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.docs.Save(ctx, store.KeyUserSession, u); err != nil {
		return User{}, fmt.Errorf("persist session: %w", err)
	}
	m.current = &u
	return u, nil
}

// Logout clears the session in memory and in the store.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleter != nil {
		if err := m.deleter(ctx, store.KeyUserSession); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	} else if err := m.docs.Save(ctx, store.KeyUserSession, User{}); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.current = nil
	return nil
}
