package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/harvey-licitacoes/harvey/internal/session"
	"github.com/harvey-licitacoes/harvey/internal/state"
	"github.com/harvey-licitacoes/harvey/internal/store"
)

// DefaultChatModel is used when the API config names no model.
const DefaultChatModel = "gpt-3.5-turbo"

// User-facing messages of the configuration and generation operations.
const (
	MsgConfigSaved    = "Configurações salvas com sucesso!"
	MsgPromptSaved    = "Prompt salvo com sucesso!"
	MsgTemplateSaved  = "Modelo salvo com sucesso!"
	MsgReportPending  = "Funcionalidade de geração de relatório será implementada com a integração do Google Docs API."
	MsgWorkflowDone   = "Workflow concluído!"
	MsgGenerateFailed = "Ocorreu um erro ao se comunicar com a IA."
)

// APIConfig is the persisted API configuration.
type APIConfig struct {
	OpenAIAPIKey  string `json:"openaiApiKey"`
	GoogleDocsAPI string `json:"googleDocsApi"`
	Model         string `json:"model"`
	Endpoint      string `json:"endpoint,omitempty"`
}

// APIConfig returns the saved API configuration with the default model filled in.
func (a *App) APIConfig() APIConfig {
	var cfg APIConfig
	a.store.Load(context.Background(), store.KeyAPIConfig, &cfg)
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultChatModel
	}
	return cfg
}

// SaveAPIConfig persists cfg.
func (a *App) SaveAPIConfig(ctx context.Context, cfg APIConfig) error {
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.GoogleDocsAPI = strings.TrimSpace(cfg.GoogleDocsAPI)
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultChatModel
	}
	if err := a.store.Save(ctx, store.KeyAPIConfig, cfg); err != nil {
		a.notifier.Error(ctx, "Erro ao salvar configurações.")
		return fmt.Errorf("save api config: %w", err)
	}
	a.notifier.Success(ctx, MsgConfigSaved)
	a.publish(ctx, bus.TopicConfig, map[string]string{"key": store.KeyAPIConfig})
	return nil
}

// Prompt returns the saved assistant prompt or the default one.
func (a *App) Prompt() string {
	var p string
	if !a.store.Load(context.Background(), store.KeyAIPrompt, &p) || strings.TrimSpace(p) == "" {
		return llm.DefaultHarveyPrompt
	}
	return p
}

// SavePrompt persists the assistant prompt.
func (a *App) SavePrompt(ctx context.Context, prompt string) error {
	if err := a.store.Save(ctx, store.KeyAIPrompt, prompt); err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}
	a.notifier.Success(ctx, MsgPromptSaved)
	a.publish(ctx, bus.TopicConfig, map[string]string{"key": store.KeyAIPrompt})
	return nil
}

// SaveTemplate stores a named report template.
func (a *App) SaveTemplate(ctx context.Context, name, body string) error {
	if err := a.shared.SetTemplate(ctx, name, body); err != nil {
		return err
	}
	a.notifier.Success(ctx, MsgTemplateSaved)
	a.publish(ctx, bus.TopicConfig, map[string]string{"key": store.KeyReportTemplates, "template": name})
	return nil
}

// Templates returns the stored report templates.
func (a *App) Templates() map[string]string {
	return a.shared.Templates()
}

// Login starts a session.
func (a *App) Login(ctx context.Context, email, password string) (session.User, error) {
	u, err := a.sessions.Login(ctx, email, password)
	if err != nil {
		a.notifier.Error(ctx, session.MsgLoginFailed)
		return session.User{}, err
	}
	a.notifier.Success(ctx, session.MsgLoginOK)
	a.publish(ctx, bus.TopicSession, map[string]string{"user": u.ID})
	return u, nil
}

// Register creates a session for a new user.
func (a *App) Register(ctx context.Context, name, email, password, confirm string) (session.User, error) {
	u, err := a.sessions.Register(ctx, name, email, password, confirm)
	switch {
	case errors.Is(err, session.ErrPasswordMismatch):
		a.notifier.Error(ctx, session.MsgPasswordMismatch)
		return session.User{}, err
	case err != nil:
		a.notifier.Error(ctx, session.MsgRegisterFailed)
		return session.User{}, err
	}
	a.notifier.Success(ctx, session.MsgRegisterOK)
	a.publish(ctx, bus.TopicSession, map[string]string{"user": u.ID})
	return u, nil
}

// Logout ends the session.
func (a *App) Logout(ctx context.Context) error {
	if err := a.sessions.Logout(ctx); err != nil {
		return err
	}
	a.notifier.Success(ctx, session.MsgLogoutOK)
	a.publish(ctx, bus.TopicSession, nil)
	return nil
}

// EditProfile is not available yet.
func (a *App) EditProfile(ctx context.Context) {
	a.notifier.Info(ctx, session.MsgEditProfile)
}

// RecordWorkflow starts a workflow over steps.
func (a *App) RecordWorkflow(ctx context.Context, steps []state.WorkflowStep) error {
	return a.shared.RecordWorkflow(ctx, steps)
}

// Workflow returns the recorded workflow.
func (a *App) Workflow() state.Workflow {
	return a.shared.Workflow()
}

// AdvanceWorkflow moves to the next step, announcing it and opening its
// section. Past the last step the workflow is marked completed.
func (a *App) AdvanceWorkflow(ctx context.Context) (state.WorkflowStep, bool, error) {
	step, advanced, err := a.shared.AdvanceWorkflow(ctx)
	if err != nil {
		return state.WorkflowStep{}, false, err
	}
	if !advanced {
		a.notifier.Success(ctx, MsgWorkflowDone)
		return step, false, nil
	}
	a.notifier.Info(ctx, "Próximo passo: "+step.Name)
	if step.Section != "" {
		a.SwitchSection(ctx, step.Section)
	}
	return step, true, nil
}

// GenerateReport is a placeholder until document export exists.
func (a *App) GenerateReport(ctx context.Context) {
	a.notifier.Info(ctx, MsgReportPending)
}

// GenerateText sends prompt to the configured generative provider.
func (a *App) GenerateText(ctx context.Context, prompt string) (string, error) {
	if a.generator == nil {
		return "", ErrNoGenerator
	}
	resp, err := a.generator.Generate(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// GenerateDraft builds the legal draft prompt and sends it to the provider.
func (a *App) GenerateDraft(ctx context.Context, tipoPeca, fatos, pontos string) (string, error) {
	prompt, err := llm.BuildDraftPrompt(tipoPeca, fatos, pontos)
	if err != nil {
		a.notifier.Error(ctx, llm.DraftFieldsMessage)
		return "", err
	}
	text, err := a.GenerateText(ctx, prompt)
	if err != nil {
		a.logger.Printf("generate draft: %v", err)
		a.notifier.Error(ctx, MsgGenerateFailed)
		return "", fmt.Errorf("generate draft: %w", err)
	}
	a.record(ctx, "draft_generated", a.shared.CurrentCaseID(), map[string]interface{}{"tipo": tipoPeca})
	return text, nil
}
