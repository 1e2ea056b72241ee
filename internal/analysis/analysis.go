package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MissingInputMessage is reported when neither company data nor a file was given.
const MissingInputMessage = "Por favor, forneça os dados da empresa ou faça upload do edital."

// ValidationError reports unusable input; nothing was started.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

// Kind distinguishes the analysis form from an uploaded edital.
type Kind string

const (
	KindForm   Kind = "form"
	KindUpload Kind = "upload"
)

// Request is the input of one analysis.
type Request struct {
	Kind        Kind
	CompanyData string
	FileName    string
	FileContent []byte
}

// Result is a finished analysis.
type Result struct {
	Kind            Kind      `json:"kind"`
	Status          string    `json:"status,omitempty"`
	Compatibility   string    `json:"compatibility,omitempty"`
	AttentionPoints []string  `json:"attentionPoints,omitempty"`
	Content         string    `json:"content"`
	Source          string    `json:"source"` // simulated | llm | fallback
	CompletedAt     time.Time `json:"completedAt"`
}

// Backend performs the analysis itself.
type Backend interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// State of a job.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is a started analysis.
type Job struct {
	ID        string
	Kind      Kind
	StartedAt time.Time

	done   chan struct{}
	mu     sync.Mutex
	state  State
	result Result
	err    error
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} { return j.done }

// State returns the current job state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Wait blocks until the job finishes or ctx is done. Giving up on the wait
// does not stop the job.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

func (j *Job) finish(res Result, err error) {
	j.mu.Lock()
	if err != nil {
		j.state = StateFailed
	} else {
		j.state = StateCompleted
	}
	j.result = res
	j.err = err
	j.mu.Unlock()
	close(j.done)
}

// Analyzer validates requests and runs them on a backend in the background.
type Analyzer struct {
	backend Backend
	logger  *log.Logger
}

// NewAnalyzer returns an analyzer over backend.
func NewAnalyzer(backend Backend, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.New(log.Writer(), "[analysis] ", log.LstdFlags)
	}
	return &Analyzer{backend: backend, logger: logger}
}

// Analyze starts an analysis and returns at once with a running job.
// Started jobs are not cancellable: ctx only carries values to the backend.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Job, error) {
	if strings.TrimSpace(req.CompanyData) == "" && req.FileName == "" && len(req.FileContent) == 0 {
		return nil, &ValidationError{Message: MissingInputMessage}
	}
	if req.Kind == "" {
		req.Kind = KindForm
	}
	job := &Job{
		ID:        uuid.New().String(),
		Kind:      req.Kind,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
		state:     StateRunning,
	}
	runCtx := context.WithoutCancel(ctx)
	go func() {
		res, err := a.backend.Run(runCtx, req)
		if err != nil {
			a.logger.Printf("analysis %s failed: %v", job.ID, err)
			job.finish(Result{}, fmt.Errorf("analysis %s: %w", job.ID, err))
			return
		}
		if res.Kind == "" {
			res.Kind = req.Kind
		}
		if res.CompletedAt.IsZero() {
			res.CompletedAt = time.Now()
		}
		job.finish(res, nil)
	}()
	return job, nil
}
