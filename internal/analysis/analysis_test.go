package analysis

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = log.New(io.Discard, "", 0)

type fakeGenerator struct {
	text string
	err  error
	got  llm.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

// gatedBackend blocks until release is closed.
type gatedBackend struct{ release chan struct{} }

func (g gatedBackend) Run(ctx context.Context, req Request) (Result, error) {
	<-g.release
	return Result{Content: "ok"}, nil
}

func TestAnalyzeRequiresInput(t *testing.T) {
	a := NewAnalyzer(&SimulatedBackend{}, quiet)
	job, err := a.Analyze(context.Background(), Request{CompanyData: "   "})
	assert.Nil(t, job)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MissingInputMessage, verr.Message)
}

func TestAnalyzeReturnsRunningJob(t *testing.T) {
	gate := gatedBackend{release: make(chan struct{})}
	job, err := NewAnalyzer(gate, quiet).Analyze(context.Background(), Request{CompanyData: "Empresa"})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, job.State())
	assert.Equal(t, KindForm, job.Kind)

	close(gate.release)
	res, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, KindForm, res.Kind)
	assert.False(t, res.CompletedAt.IsZero())
	assert.Equal(t, StateCompleted, job.State())
}

func TestJobSurvivesCallerCancellation(t *testing.T) {
	gate := gatedBackend{release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	job, err := NewAnalyzer(gate, quiet).Analyze(ctx, Request{FileName: "edital.pdf"})
	require.NoError(t, err)
	cancel()

	waitCtx, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	_, err = job.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate.release)
	<-job.Done()
	assert.Equal(t, StateCompleted, job.State())
}

func TestSimulatedBackendPayloads(t *testing.T) {
	a := NewAnalyzer(&SimulatedBackend{}, quiet)

	job, err := a.Analyze(context.Background(), Request{CompanyData: "Empresa X"})
	require.NoError(t, err)
	res, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SimulatedStatus, res.Status)
	assert.Equal(t, SimulatedCompatibility, res.Compatibility)
	assert.Equal(t, SimulatedAttentionPoints, res.AttentionPoints)
	assert.Contains(t, res.Content, "Compatibilidade: 85% compatível com os requisitos")
	assert.Contains(t, res.Content, "- Revisar garantia técnica")

	job, err = a.Analyze(context.Background(), Request{Kind: KindUpload, FileName: "e.pdf", FileContent: []byte("x")})
	require.NoError(t, err)
	res, err = job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UploadSummary, res.Content)
}

func TestSimulatedBackendDelay(t *testing.T) {
	b := &SimulatedBackend{FormDelay: 30 * time.Millisecond}
	start := time.Now()
	_, err := b.Run(context.Background(), Request{Kind: KindForm})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestLLMBackend(t *testing.T) {
	gen := &fakeGenerator{text: "## Vícios\n- nenhum"}
	res, err := NewLLMBackend(gen, quiet).Run(context.Background(), Request{CompanyData: "Empresa", FileContent: []byte("Edital 1")})
	require.NoError(t, err)
	assert.Equal(t, "llm", res.Source)
	assert.Equal(t, "## Vícios\n- nenhum", res.Content)
	assert.Equal(t, llm.AnalysisSystemPrompt, gen.got.System)
	assert.True(t, strings.HasSuffix(gen.got.Prompt, "Edital: Edital 1"))
}

func TestLLMBackendFallback(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("unauthorized")}
	res, err := NewLLMBackend(gen, quiet).Run(context.Background(), Request{CompanyData: "Empresa", FileContent: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Source)
	assert.Contains(t, res.Content, "# Análise Básica do Edital")
	assert.Contains(t, res.Content, "3 caracteres analisados")
}
