package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/harvey-licitacoes/harvey/internal/llm"
)

// Delays of the simulated backend.
const (
	DefaultFormDelay   = 3 * time.Second
	DefaultUploadDelay = 2 * time.Second
)

// Canned payload of the simulated form analysis.
const (
	SimulatedStatus        = "Análise concluída"
	SimulatedCompatibility = "85% compatível com os requisitos"
)

// SimulatedAttentionPoints are the fixed attention points of the form analysis.
var SimulatedAttentionPoints = []string{
	"Verificar certificação ISO 9001",
	"Confirmar prazo de entrega",
	"Revisar garantia técnica",
}

// UploadSummary is the fixed reply to an uploaded edital.
const UploadSummary = "Análise do edital concluída. Principais pontos identificados: 1) Especificações técnicas compatíveis; 2) Documentação exigida conforme; 3) Prazos adequados. Deseja uma análise mais detalhada de algum aspecto específico?"

// SimulatedBackend ignores the input and returns the canned payload after a delay.
type SimulatedBackend struct {
	FormDelay   time.Duration
	UploadDelay time.Duration
}

// NewSimulatedBackend uses the default delays.
func NewSimulatedBackend() *SimulatedBackend {
	return &SimulatedBackend{FormDelay: DefaultFormDelay, UploadDelay: DefaultUploadDelay}
}

// Run waits for the kind's delay and returns the fixed result.
func (b *SimulatedBackend) Run(ctx context.Context, req Request) (Result, error) {
	delay := b.FormDelay
	if req.Kind == KindUpload {
		delay = b.UploadDelay
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if req.Kind == KindUpload {
		return Result{Kind: KindUpload, Content: UploadSummary, Source: "simulated"}, nil
	}
	return Result{
		Kind:            KindForm,
		Status:          SimulatedStatus,
		Compatibility:   SimulatedCompatibility,
		AttentionPoints: append([]string(nil), SimulatedAttentionPoints...),
		Content:         RenderForm(SimulatedStatus, SimulatedCompatibility, SimulatedAttentionPoints),
		Source:          "simulated",
	}, nil
}

// RenderForm formats a form result as text.
func RenderForm(status, compatibility string, points []string) string {
	var sb strings.Builder
	sb.WriteString("Resultado da Análise\n")
	fmt.Fprintf(&sb, "Status: %s\n", status)
	fmt.Fprintf(&sb, "Compatibilidade: %s\n", compatibility)
	sb.WriteString("Pontos de atenção:\n")
	for _, p := range points {
		fmt.Fprintf(&sb, "- %s\n", p)
	}
	return sb.String()
}

// LLMBackend asks a generator for the analysis and degrades to the static
// checklist when the call fails.
type LLMBackend struct {
	gen    llm.Generator
	logger *log.Logger
}

// NewLLMBackend wraps gen.
func NewLLMBackend(gen llm.Generator, logger *log.Logger) *LLMBackend {
	if logger == nil {
		logger = log.New(log.Writer(), "[analysis] ", log.LstdFlags)
	}
	return &LLMBackend{gen: gen, logger: logger}
}

// Run never fails; provider errors produce the fallback analysis.
func (b *LLMBackend) Run(ctx context.Context, req Request) (Result, error) {
	edital := string(req.FileContent)
	resp, err := b.gen.Generate(ctx, llm.AnalysisRequest(req.CompanyData, edital))
	if err != nil {
		b.logger.Printf("llm analysis failed, using fallback: %v", err)
		return Result{Kind: req.Kind, Status: SimulatedStatus, Content: llm.FallbackAnalysis(req.CompanyData, edital), Source: "fallback"}, nil
	}
	return Result{Kind: req.Kind, Status: SimulatedStatus, Content: resp.Text, Source: "llm"}, nil
}
