package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/harvey-licitacoes/harvey/internal/analysis"
	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/harvey-licitacoes/harvey/internal/state"
)

// Stats are the dashboard counters.
type Stats struct {
	CasosAtivos       int `json:"casosAtivos"`
	EditaisAnalisados int `json:"editaisAnalisados"`
	DefesasElaboradas int `json:"defesasElaboradas"`
}

// AnalysisView is what the analise section shows.
type AnalysisView struct {
	CaseID   string                `json:"caseId,omitempty"`
	FormText string                `json:"formText"`
	Prior    *state.AnalysisResult `json:"prior,omitempty"`
	Running  bool                  `json:"running"`
	Last     *analysis.Result      `json:"last,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// ReportSection is one heading of the report view.
type ReportSection struct {
	Title   string   `json:"title"`
	Lines   []string `json:"lines,omitempty"`
	Content string   `json:"content,omitempty"`
}

// ReportView is the relatorios section content, rebuilt on every entry.
type ReportView struct {
	CaseID   string          `json:"caseId,omitempty"`
	Sections []ReportSection `json:"sections"`
}

// Text renders the report as plain text.
func (r ReportView) Text() string {
	var b strings.Builder
	for i, s := range r.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.Title)
		b.WriteString("\n")
		for _, l := range s.Lines {
			b.WriteString(l)
			b.WriteString("\n")
		}
		if s.Content != "" {
			b.WriteString(s.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Views is the rendered state of every section that has derived content.
type Views struct {
	Section  string       `json:"section"`
	Stats    Stats        `json:"stats"`
	Analysis AnalysisView `json:"analysis"`
	Report   ReportView   `json:"report"`
}

// Views returns a copy of the current derived views.
func (a *App) Views() Views {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v := a.views
	v.Report.Sections = append([]ReportSection(nil), v.Report.Sections...)
	return v
}

// DashboardStats recomputes the counters from the registry and the results.
// Results whose case no longer resolves are left out, as in the report.
func (a *App) DashboardStats() Stats {
	return Stats{
		CasosAtivos: a.cases.CountByStatus(cases.StatusOpen),
		EditaisAnalisados: a.shared.CountResults(func(r state.AnalysisResult) bool {
			return r.Type == state.TypeEdital && a.resolves(r)
		}),
		DefesasElaboradas: a.shared.CountResults(func(r state.AnalysisResult) bool {
			return r.Type.IsDefense() && a.resolves(r)
		}),
	}
}

func (a *App) resolves(r state.AnalysisResult) bool {
	_, ok := a.cases.Find(r.CaseID)
	return ok
}

func (a *App) refreshStats() {
	stats := a.DashboardStats()
	a.mu.Lock()
	a.views.Stats = stats
	a.mu.Unlock()
}

func (a *App) updateViews(ctx context.Context, fn func(*Views)) {
	a.mu.Lock()
	fn(&a.views)
	a.mu.Unlock()
	a.publish(ctx, bus.TopicViews, nil)
}

func (a *App) enterDashboard(ctx context.Context) {
	a.refreshStats()
	a.publish(ctx, bus.TopicViews, map[string]string{"view": "stats"})
}

// enterAnalise fills the analysis form from the current case. Without a
// current case the form keeps whatever it had.
func (a *App) enterAnalise(ctx context.Context) {
	c, ok := a.shared.CurrentCase()
	if !ok {
		return
	}
	text := fmt.Sprintf("Processo: %s\nObjeto: %s\nÓrgão: %s\nModalidade: %s", c.Numero, c.Objeto, c.Orgao, c.Modalidade)
	var prior *state.AnalysisResult
	if r, found := a.shared.FirstResultForCase(c.ID); found {
		prior = &r
	}
	a.updateViews(ctx, func(v *Views) {
		v.Analysis.CaseID = c.ID
		v.Analysis.FormText = text
		v.Analysis.Prior = prior
	})
}

// enterRelatorios rebuilds the report from scratch.
func (a *App) enterRelatorios(ctx context.Context) {
	a.updateViews(ctx, func(v *Views) { v.Report = a.buildReport() })
}

func (a *App) buildReport() ReportView {
	var r ReportView
	if c, ok := a.shared.CurrentCase(); ok {
		r.CaseID = c.ID
		r.Sections = append(r.Sections, ReportSection{
			Title: "Informações do Caso",
			Lines: []string{
				"Processo: " + c.Numero,
				"Objeto: " + c.Objeto,
				"Órgão: " + c.Orgao,
				"Modalidade: " + c.Modalidade,
				"Data de Publicação: " + c.DataPublicacao,
				"Status: " + c.Status.Label(),
			},
		})
	}
	for _, res := range a.shared.AnalysisResults() {
		if !a.resolves(res) {
			continue
		}
		r.Sections = append(r.Sections, ReportSection{
			Title:   fmt.Sprintf("Análise %s - %s", res.Type, displayDate(res.Date)),
			Content: res.Content,
		})
	}
	return r
}

// displayDate turns a stored timestamp into dd/mm/yyyy.
func displayDate(stamp string) string {
	t, err := state.ParseTime(stamp)
	if err != nil {
		return stamp
	}
	return t.Format("02/01/2006")
}

func (a *App) enterCasos(ctx context.Context) {
	if err := a.cases.ApplyAnalysisTags(ctx, a.shared.FirstResultDates()); err != nil {
		a.logger.Printf("tag cases: %v", err)
	}
}
