// Package ingest watches an uploads directory and hands every new edital
// file to the analysis pipeline, the same way the dashboard upload does.
package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/harvey-licitacoes/harvey/internal/analysis"
)

// DefaultPatterns match the document types accepted by the upload form.
var DefaultPatterns = []string{"**/*.pdf", "**/*.doc", "**/*.docx", "**/*.txt"}

// Analyzer starts the analysis of an uploaded file. *app.App satisfies it.
type Analyzer interface {
	AnalyzeUpload(ctx context.Context, name string, content []byte) (*analysis.Job, error)
}

// UploadOptions controls the watcher.
type UploadOptions struct {
	Dir   string
	Watch bool
	// Patterns are doublestar globs relative to Dir, matched case-insensitively.
	Patterns []string
	// ScanExisting submits files already present at startup.
	ScanExisting bool
	// Settle is how long a file must stay quiet before it is read.
	Settle time.Duration
	// MaxFileBytes skips larger files; defaults to 20 MiB.
	MaxFileBytes int64
	Logger       *log.Logger
}

type fileSig struct {
	size    int64
	modTime time.Time
}

// UploadWatcher submits matching files in Dir for analysis.
type UploadWatcher struct {
	analyzer Analyzer
	opts     UploadOptions

	mu      sync.Mutex
	seen    map[string]fileSig
	pending map[string]time.Time

	submitted int
	errors    int
}

// NewUploadWatcher constructs a watcher.
func NewUploadWatcher(analyzer Analyzer, opts UploadOptions) (*UploadWatcher, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[uploads] ", log.LstdFlags)
	}
	if opts.Dir == "" {
		opts.Dir = "data/uploads"
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = DefaultPatterns
	}
	for _, p := range opts.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 20 * 1024 * 1024
	}
	return &UploadWatcher{
		analyzer: analyzer,
		opts:     opts,
		seen:     make(map[string]fileSig),
		pending:  make(map[string]time.Time),
	}, nil
}

// Stats returns how many files were submitted and how many failed.
func (uw *UploadWatcher) Stats() (submitted, failed int) {
	uw.mu.Lock()
	defer uw.mu.Unlock()
	return uw.submitted, uw.errors
}

// Run performs the initial pass and, in watch mode, blocks until ctx is done.
func (uw *UploadWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(uw.opts.Dir, 0755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	if err := uw.scanOnce(ctx, !uw.opts.ScanExisting); err != nil {
		return err
	}
	if !uw.opts.Watch {
		submitted, failed := uw.Stats()
		uw.opts.Logger.Printf("Completed one-shot scan: submitted=%d errors=%d", submitted, failed)
		return nil
	}
	return uw.watchLoop(ctx)
}

func (uw *UploadWatcher) matches(path string) bool {
	rel, err := filepath.Rel(uw.opts.Dir, path)
	if err != nil {
		return false
	}
	rel = strings.ToLower(filepath.ToSlash(rel))
	for _, pat := range uw.opts.Patterns {
		if ok, _ := doublestar.Match(strings.ToLower(pat), rel); ok {
			return true
		}
	}
	return false
}

// scanOnce walks Dir. With markOnly the files are remembered but not submitted.
func (uw *UploadWatcher) scanOnce(ctx context.Context, markOnly bool) error {
	return filepath.WalkDir(uw.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !uw.matches(path) {
			return nil
		}
		if markOnly {
			if sig, err := statSig(path); err == nil {
				uw.mu.Lock()
				uw.seen[path] = sig
				uw.mu.Unlock()
			}
			return nil
		}
		uw.process(ctx, path)
		return nil
	})
}

func (uw *UploadWatcher) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	err = filepath.WalkDir(uw.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch add: %w", err)
	}

	uw.opts.Logger.Printf("Watching directory: %s (patterns: %s)", uw.opts.Dir, strings.Join(uw.opts.Patterns, ","))
	ticker := time.NewTicker(uw.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			submitted, failed := uw.Stats()
			uw.opts.Logger.Printf("Watch stopping: submitted=%d errors=%d", submitted, failed)
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					if err := w.Add(ev.Name); err != nil {
						uw.opts.Logger.Printf("watch add %s: %v", ev.Name, err)
					}
					continue
				}
			}
			if !uw.matches(ev.Name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				uw.mu.Lock()
				uw.pending[ev.Name] = time.Now()
				uw.mu.Unlock()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				uw.mu.Lock()
				delete(uw.pending, ev.Name)
				delete(uw.seen, ev.Name)
				uw.mu.Unlock()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			uw.opts.Logger.Printf("watch error: %v", err)
		case now := <-ticker.C:
			for _, path := range uw.settled(now) {
				uw.process(ctx, path)
			}
		}
	}
}

const minPollInterval = 10 * time.Millisecond

// pollInterval is how often pending files are checked for quiet.
func (uw *UploadWatcher) pollInterval() time.Duration {
	return max(uw.opts.Settle/2, minPollInterval)
}

// settled pops the pending files that have been quiet for Settle.
func (uw *UploadWatcher) settled(now time.Time) []string {
	uw.mu.Lock()
	defer uw.mu.Unlock()
	var ready []string
	for path, last := range uw.pending {
		if now.Sub(last) >= uw.opts.Settle {
			ready = append(ready, path)
			delete(uw.pending, path)
		}
	}
	return ready
}

// process submits path unless this exact version was already submitted.
func (uw *UploadWatcher) process(ctx context.Context, path string) {
	sig, err := statSig(path)
	if err != nil {
		// File might be transiently missing (rename/rotate)
		return
	}
	uw.mu.Lock()
	prev, known := uw.seen[path]
	uw.mu.Unlock()
	if known && prev == sig {
		return
	}
	if sig.size > uw.opts.MaxFileBytes {
		uw.fail(path, fmt.Errorf("file too large: %d bytes", sig.size))
		return
	}

	content, err := readFile(path, uw.opts.MaxFileBytes)
	if err != nil {
		uw.fail(path, err)
		return
	}
	job, err := uw.analyzer.AnalyzeUpload(ctx, filepath.Base(path), content)
	if err != nil {
		uw.fail(path, err)
		return
	}

	uw.mu.Lock()
	uw.seen[path] = sig
	uw.submitted++
	uw.mu.Unlock()
	if job != nil {
		uw.opts.Logger.Printf("submitted %s as job %s", path, job.ID)
	}
}

func (uw *UploadWatcher) fail(path string, err error) {
	uw.opts.Logger.Printf("error processing %s: %v", path, err)
	uw.mu.Lock()
	uw.errors++
	uw.mu.Unlock()
}

func statSig(path string) (fileSig, error) {
	st, err := os.Stat(path)
	if err != nil {
		return fileSig{}, err
	}
	return fileSig{size: st.Size(), modTime: st.ModTime()}, nil
}

func readFile(path string, max int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, max))
}
