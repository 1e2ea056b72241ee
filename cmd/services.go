package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/harvey-licitacoes/harvey/internal/analysis"
	"github.com/harvey-licitacoes/harvey/internal/app"
	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/harvey-licitacoes/harvey/internal/store"
)

// errMissingAPIKey is fatal for serve: the proxy cannot work without it.
var errMissingAPIKey = errors.New("generative provider API key missing: set HARVEY_GENAI_API_KEY or genai.api_key")

// services holds the components shared by serve, tui and the one-shot commands.
type services struct {
	store *store.Store
	bus   bus.Bus
	app   *app.App
}

func (rt *services) Close() {
	rt.app.WaitIdle()
	rt.bus.Close()
	rt.store.Close()
}

type servicesOptions struct {
	// Generator is optional; without it drafts and the proxy report unavailable.
	Generator llm.Generator
	// BusLogger is separate so the TUI can silence Redis noise.
	BusLogger *log.Logger
}

// openServices opens the store, connects the bus and builds the application.
func openServices(ctx context.Context, config Config, logger *log.Logger, opts servicesOptions) (*services, error) {
	st, err := openStore(config, logger)
	if err != nil {
		return nil, err
	}

	busLogger := opts.BusLogger
	if busLogger == nil {
		busLogger = logger
	}
	changes := bus.NewBus(config.Redis.URL, busLogger)

	var backend analysis.Backend
	if strings.EqualFold(config.Analysis.Backend, "llm") {
		if opts.Generator == nil {
			logger.Println("analysis.backend=llm needs a generator; using the simulated backend")
		} else {
			backend = analysis.NewLLMBackend(opts.Generator, logger)
		}
	}

	a, err := app.New(ctx, app.Options{
		Store:        st,
		Bus:          changes,
		Analysis:     backend,
		Generator:    opts.Generator,
		ChatEndpoint: config.Chat.Endpoint,
		ChatTimeout:  config.Chat.Timeout,
		Logger:       logger,
	})
	if err != nil {
		changes.Close()
		st.Close()
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return &services{store: st, bus: changes, app: a}, nil
}

func openStore(config Config, logger *log.Logger) (*store.Store, error) {
	resolved := resolvePathRelativeToBase(getWorkingDir(), config.Database.Path)
	logger.Printf("Using database at %s", resolved)
	st, err := store.NewStoreWithLogger(resolved, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, nil
}

// buildGenerator returns nil without an API key.
func buildGenerator(config Config, logger *log.Logger) (llm.Generator, error) {
	if strings.TrimSpace(config.GenAI.APIKey) == "" {
		return nil, nil
	}
	gen, err := llm.Build(config.GenAI, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s provider: %w", config.GenAI.Provider, err)
	}
	return gen, nil
}

func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}

// resolvePathRelativeToBase resolves a possibly relative path against a base directory.
// Absolute paths and ":memory:" are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	p = strings.TrimPrefix(p, "./")
	return filepath.Join(base, p)
}

// setupFileLogger opens logs/<name> for modes that own the terminal.
func setupFileLogger(name string) *os.File {
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}
	return f
}

// errorFilterWriter only writes error messages to the underlying writer
type errorFilterWriter struct {
	writer io.Writer
}

func (w *errorFilterWriter) Write(p []byte) (int, error) {
	lc := strings.ToLower(string(p))
	if strings.Contains(lc, "error") ||
		strings.Contains(lc, "failed") ||
		strings.Contains(lc, "panic") {
		return w.writer.Write(p)
	}
	return len(p), nil
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}
