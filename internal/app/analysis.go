package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harvey-licitacoes/harvey/internal/analysis"
	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/state"
)

// Analysis messages.
const (
	MsgAnalysisDone   = "Análise concluída com sucesso!"
	MsgAnalysisFailed = "Erro ao realizar a análise. Tente novamente."
)

// AnalyzeEdital starts a form analysis of the company data. It returns as
// soon as the job is running; the result lands in Views().Analysis and, when
// a case is selected at completion time, in the shared results.
func (a *App) AnalyzeEdital(ctx context.Context, companyData string) (*analysis.Job, error) {
	job, err := a.startAnalysis(ctx, analysis.Request{Kind: analysis.KindForm, CompanyData: companyData})
	if err != nil {
		return nil, err
	}
	a.updateViews(ctx, func(v *Views) {
		v.Analysis.Running = true
		v.Analysis.Error = ""
	})

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		bg := context.WithoutCancel(ctx)
		res, err := job.Wait(bg)
		if err != nil {
			a.updateViews(bg, func(v *Views) {
				v.Analysis.Running = false
				v.Analysis.Error = err.Error()
			})
			a.notifier.Error(bg, MsgAnalysisFailed)
			return
		}
		a.updateViews(bg, func(v *Views) {
			v.Analysis.Running = false
			v.Analysis.Last = &res
		})
		a.attach(bg, res.Content)
		a.notifier.Success(bg, MsgAnalysisDone)
	}()
	return job, nil
}

// AnalyzeUpload starts the analysis of an uploaded edital. Progress and the
// summary are posted to the chat transcript.
func (a *App) AnalyzeUpload(ctx context.Context, name string, content []byte) (*analysis.Job, error) {
	name = strings.TrimSpace(name)
	job, err := a.startAnalysis(ctx, analysis.Request{Kind: analysis.KindUpload, FileName: name, FileContent: content})
	if err != nil {
		return nil, err
	}
	a.say(ctx, fmt.Sprintf("Arquivo %s carregado com sucesso. Iniciando análise...", name))

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		bg := context.WithoutCancel(ctx)
		res, err := job.Wait(bg)
		if err != nil {
			a.say(bg, chatErrorFor(err))
			return
		}
		a.say(bg, res.Content)
		a.attach(bg, res.Content)
	}()
	return job, nil
}

func (a *App) startAnalysis(ctx context.Context, req analysis.Request) (*analysis.Job, error) {
	job, err := a.analyzer.Analyze(ctx, req)
	if err != nil {
		var verr *analysis.ValidationError
		if errors.As(err, &verr) {
			a.notifier.Error(ctx, verr.Message)
		}
		return nil, err
	}
	a.record(ctx, "analysis_started", a.shared.CurrentCaseID(), map[string]interface{}{
		"job":  job.ID,
		"kind": string(job.Kind),
		"file": req.FileName,
	})
	a.publish(ctx, bus.TopicAnalysis, map[string]string{"job": job.ID, "state": string(analysis.StateRunning)})
	return job, nil
}

// attach stores content as an edital result of the case selected now, if any.
func (a *App) attach(ctx context.Context, content string) {
	caseID := a.shared.CurrentCaseID()
	if caseID == "" {
		return
	}
	if _, err := a.SaveAnalysisResult(ctx, caseID, content, state.TypeEdital); err != nil {
		a.logger.Printf("attach analysis to case %s: %v", caseID, err)
	}
}

// SaveAnalysisResult appends a result to a case on behalf of the current user.
func (a *App) SaveAnalysisResult(ctx context.Context, caseID, content string, typ state.AnalysisType) (state.AnalysisResult, error) {
	res, err := a.shared.AppendAnalysisResult(ctx, caseID, content, typ, a.actor())
	if err != nil {
		return state.AnalysisResult{}, err
	}
	a.record(ctx, "analysis_saved", caseID, map[string]interface{}{"type": string(typ), "result": res.ID})
	a.publish(ctx, bus.TopicAnalysis, map[string]string{"case": caseID, "state": string(analysis.StateCompleted)})
	return res, nil
}

// AnalysisResults returns every stored result in insertion order.
func (a *App) AnalysisResults() []state.AnalysisResult {
	return a.shared.AnalysisResults()
}

func chatErrorFor(err error) string {
	return fmt.Sprintf("Não foi possível analisar o arquivo: %v", err)
}
