package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/harvey-licitacoes/harvey/internal/chat"
	"github.com/harvey-licitacoes/harvey/internal/nav"
)

// CreateCase validates and stores a new case. A validation failure is shown
// as an error toast and nothing changes.
func (a *App) CreateCase(ctx context.Context, f cases.Fields) (cases.Case, error) {
	c, err := a.cases.Create(ctx, f)
	if err != nil {
		var verr *cases.ValidationError
		if errors.As(err, &verr) {
			a.notifier.Error(ctx, verr.Message)
		} else {
			a.notifier.Error(ctx, "Erro ao salvar o caso.")
		}
		return cases.Case{}, err
	}
	a.say(ctx, fmt.Sprintf("Novo caso criado: %s - %s", c.Numero, c.Objeto))
	a.notifier.Success(ctx, "Caso criado com sucesso!")
	a.record(ctx, "case_created", c.ID, map[string]interface{}{"numero": c.Numero})
	return c, nil
}

// ListCases returns every case in insertion order.
func (a *App) ListCases() []cases.Case {
	return a.cases.List()
}

// SearchCases filters cases by numero, objeto or orgao.
func (a *App) SearchCases(query string) []cases.Case {
	return a.cases.Search(query)
}

// Case resolves ref as a case id first, then as a process number.
func (a *App) Case(ref string) (cases.Case, error) {
	if c, ok := a.cases.Find(ref); ok {
		return c, nil
	}
	if c, ok := a.cases.FindByNumero(ref); ok {
		return c, nil
	}
	return cases.Case{}, fmt.Errorf("case %q: %w", ref, ErrNotFound)
}

// CurrentCase is the case selected for cross-section work.
func (a *App) CurrentCase() (cases.Case, bool) {
	return a.shared.CurrentCase()
}

// OpenCaseDetails selects the case and announces it in the chat.
func (a *App) OpenCaseDetails(ctx context.Context, ref string) (cases.Case, error) {
	c, err := a.selectCase(ctx, ref)
	if err != nil {
		return cases.Case{}, err
	}
	a.say(ctx, fmt.Sprintf("Abrindo detalhes do caso: %s - %s", c.Numero, c.Objeto))
	return c, nil
}

// TransferCaseToAnalysis selects the case and opens the analise section.
func (a *App) TransferCaseToAnalysis(ctx context.Context, ref string) (cases.Case, error) {
	return a.transfer(ctx, ref, nav.Analise, "Caso %s transferido para análise jurídica.")
}

// TransferCaseToReports selects the case and opens the relatorios section.
func (a *App) TransferCaseToReports(ctx context.Context, ref string) (cases.Case, error) {
	return a.transfer(ctx, ref, nav.Relatorios, "Caso %s transferido para relatórios.")
}

func (a *App) transfer(ctx context.Context, ref, section, format string) (cases.Case, error) {
	c, err := a.selectCase(ctx, ref)
	if err != nil {
		return cases.Case{}, err
	}
	a.SwitchSection(ctx, section)
	a.notifier.Success(ctx, fmt.Sprintf(format, c.Numero))
	a.record(ctx, "case_transferred", c.ID, map[string]interface{}{"section": section})
	return c, nil
}

func (a *App) selectCase(ctx context.Context, ref string) (cases.Case, error) {
	c, err := a.Case(ref)
	if err != nil {
		return cases.Case{}, err
	}
	if err := a.shared.SetCurrentCase(ctx, c.ID); err != nil {
		return cases.Case{}, fmt.Errorf("select case %s: %w", c.ID, err)
	}
	return c, nil
}

// Sections lists the navigable sections in display order.
func (a *App) Sections() []string {
	return nav.Sections()
}

// ActiveSection is the section currently shown.
func (a *App) ActiveSection() string {
	return a.nav.Active()
}

// SwitchSection activates name and runs its entry hooks. Unknown names are
// ignored and reported as false.
func (a *App) SwitchSection(ctx context.Context, name string) bool {
	return a.nav.Switch(ctx, name)
}

// say appends an assistant message to the chat transcript.
func (a *App) say(ctx context.Context, text string) {
	a.transcript.Append(chat.RoleAssistant, text)
	a.publish(ctx, bus.TopicChat, nil)
}
