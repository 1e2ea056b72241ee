package ui

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/harvey-licitacoes/harvey/internal/analysis"
	"github.com/harvey-licitacoes/harvey/internal/app"
	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/harvey-licitacoes/harvey/internal/nav"
	"github.com/harvey-licitacoes/harvey/internal/store"
	"github.com/rivo/tview"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: "Esboço: " + req.Prompt[:10], Model: "stub"}, nil
}

func newTestUI(t *testing.T) *UI {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	st, err := store.NewStoreWithLogger(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	harvey, err := app.New(context.Background(), app.Options{
		Store:     st,
		Analysis:  &analysis.SimulatedBackend{},
		Generator: stubGenerator{},
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	return NewUI(context.Background(), harvey, logger)
}

func TestNewUI(t *testing.T) {
	ui := newTestUI(t)

	if got := ui.sidebar.GetItemCount(); got != len(nav.Sections()) {
		t.Fatalf("sidebar has %d items, want %d", got, len(nav.Sections()))
	}
	main, _ := ui.sidebar.GetItemText(1)
	if main != "Chat Harvey" {
		t.Errorf("second sidebar item = %q", main)
	}
	if name, _ := ui.pages.GetFrontPage(); name != nav.Dashboard {
		t.Errorf("front page = %q, want dashboard", name)
	}
	if !strings.Contains(ui.dashboard.view.GetText(true), "Casos Ativos          1") {
		t.Errorf("dashboard should count the one open sample case:\n%s", ui.dashboard.view.GetText(true))
	}
	// header plus three sample cases
	if rows := ui.cases.table.GetRowCount(); rows != 4 {
		t.Errorf("cases table has %d rows, want 4", rows)
	}
}

func TestSwitchSectionShowsPage(t *testing.T) {
	ui := newTestUI(t)

	ui.switchSection(nav.Configuracoes)
	if name, _ := ui.pages.GetFrontPage(); name != nav.Configuracoes {
		t.Fatalf("front page = %q", name)
	}
	if ui.sidebar.GetCurrentItem() != 5 {
		t.Errorf("sidebar selection = %d, want 5", ui.sidebar.GetCurrentItem())
	}

	ui.switchSection("nope")
	if name, _ := ui.pages.GetFrontPage(); name != nav.Configuracoes {
		t.Errorf("unknown section changed the page to %q", name)
	}
	if !strings.Contains(ui.statusBar.GetText(true), "Seção desconhecida") {
		t.Errorf("status bar = %q", ui.statusBar.GetText(true))
	}
}

func TestCaseSearchFiltersTable(t *testing.T) {
	ui := newTestUI(t)

	ui.cases.search.SetText("limpeza")
	if rows := ui.cases.table.GetRowCount(); rows != 2 {
		t.Fatalf("filtered table has %d rows, want 2", rows)
	}
	if got := ui.cases.table.GetCell(1, 0).Text; got != "14876/2023" {
		t.Errorf("first row = %q", got)
	}

	ui.cases.search.SetText("inexistente")
	if got := ui.cases.table.GetCell(1, 0).Text; got != "Nenhum caso encontrado" {
		t.Errorf("empty search row = %q", got)
	}
}

func TestNewCaseForm(t *testing.T) {
	ui := newTestUI(t)

	form := ui.cases.showNewCaseForm()
	if !ui.isDialogActive() {
		t.Fatal("form should mark a dialog as active")
	}

	// Missing objeto keeps the form open.
	form.GetFormItemByLabel("Número do processo").(*tview.InputField).SetText("999/2024")
	if ui.cases.submit(form) {
		t.Fatal("submit without objeto should fail")
	}
	if n, ok := ui.harvey.Notifier().Latest(); !ok || n.Level != "error" {
		t.Fatalf("expected an error toast, got %+v", n)
	}

	form.GetFormItemByLabel("Objeto").(*tview.InputField).SetText("Teste")
	if !ui.cases.submit(form) {
		t.Fatal("submit should succeed")
	}
	if rows := ui.cases.table.GetRowCount(); rows != 5 {
		t.Errorf("table has %d rows after create, want 5", rows)
	}
	if !strings.Contains(ui.statusBar.GetText(true), "Caso criado com sucesso!") {
		t.Errorf("status bar = %q", ui.statusBar.GetText(true))
	}
}

func TestTransferPrefillsAnalysis(t *testing.T) {
	ui := newTestUI(t)

	c, ok := ui.cases.at(1)
	if !ok {
		t.Fatal("expected a case on row 1")
	}
	ui.cases.transfer(c, true)

	if name, _ := ui.pages.GetFrontPage(); name != nav.Analise {
		t.Fatalf("front page = %q, want analise", name)
	}
	if got := ui.analysis.input.GetText(); !strings.HasPrefix(got, "Processo: "+c.Numero) {
		t.Fatalf("analysis input = %q", got)
	}

	ui.analysis.analyze()
	ui.harvey.WaitIdle()
	ui.analysis.render()
	if got := ui.analysis.result.GetText(true); strings.Contains(got, "Analisando") || strings.TrimSpace(got) == "" {
		t.Errorf("unexpected analysis result %q", got)
	}

	ui.cases.transfer(c, false)
	if got := ui.reports.view.GetText(true); !strings.Contains(got, "Informações do Caso") || !strings.Contains(got, "Análise edital") {
		t.Errorf("report = %q", got)
	}
}

func TestTableKeysTransfer(t *testing.T) {
	ui := newTestUI(t)
	ui.cases.table.Select(2, 0)

	handler := ui.cases.table.GetInputCapture()
	if ev := handler(tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)); ev != nil {
		t.Fatal("'r' should be consumed")
	}
	cur, ok := ui.harvey.CurrentCase()
	if !ok || cur.Numero != "14876/2023" {
		t.Fatalf("current case = %+v", cur)
	}
	if ui.harvey.ActiveSection() != nav.Relatorios {
		t.Errorf("active section = %q", ui.harvey.ActiveSection())
	}
}

func TestChatSend(t *testing.T) {
	ui := newTestUI(t)

	ui.chat.send("   ")
	if n := len(ui.harvey.Messages()); n != 1 {
		t.Fatalf("blank send added messages: %d", n)
	}

	ui.chat.send("Qual o prazo para recurso?")
	msgs := ui.harvey.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected welcome, question and reply, got %d", len(msgs))
	}
	if !strings.Contains(ui.chat.transcript.GetText(true), "Qual o prazo para recurso?") {
		t.Error("transcript should show the question")
	}
	if ui.chat.input.GetText() != "" {
		t.Error("input should be cleared after send")
	}
}

func TestConfigPageSaves(t *testing.T) {
	ui := newTestUI(t)

	ui.config.form.GetFormItemByLabel(labelModel).(*tview.InputField).SetText("gpt-4")
	ui.config.saveConfig()
	if got := ui.harvey.APIConfig().Model; got != "gpt-4" {
		t.Fatalf("saved model = %q", got)
	}

	ui.config.form.GetFormItemByLabel(labelPrompt).(*tview.TextArea).SetText("Seja breve.", false)
	ui.config.savePrompt()
	if got := ui.harvey.Prompt(); got != "Seja breve." {
		t.Errorf("saved prompt = %q", got)
	}
}

func TestDraftGeneration(t *testing.T) {
	ui := newTestUI(t)

	ui.drafts.generate()
	if got := ui.drafts.result.GetText(true); got != "" {
		t.Errorf("incomplete form should leave no draft, got %q", got)
	}

	ui.drafts.form.GetFormItemByLabel(labelFatos).(*tview.TextArea).SetText("Inabilitação indevida", false)
	ui.drafts.form.GetFormItemByLabel(labelPontos).(*tview.TextArea).SetText("Atestado aceito", false)
	ui.drafts.generate()
	if got := ui.drafts.result.GetText(true); !strings.HasPrefix(got, "Esboço:") {
		t.Errorf("draft = %q", got)
	}
}

func TestCycleTheme(t *testing.T) {
	ui := newTestUI(t)
	start := ui.themeName
	for range themeNames {
		ui.cycleTheme()
	}
	if ui.themeName != start {
		t.Errorf("theme after full cycle = %q, want %q", ui.themeName, start)
	}
}

func TestGenerateReportShowsPendingModal(t *testing.T) {
	ui := newTestUI(t)

	handler := ui.reports.view.GetInputCapture()
	if ev := handler(tcell.NewEventKey(tcell.KeyRune, 'g', tcell.ModNone)); ev != nil {
		t.Fatal("'g' should be consumed")
	}
	if !ui.pages.HasPage("modal") || !ui.isDialogActive() {
		t.Fatal("expected the pending-report modal")
	}
	if n, ok := ui.harvey.Notifier().Latest(); !ok || n.Message != app.MsgReportPending {
		t.Errorf("latest notification = %+v", n)
	}
}

func TestStartRendersChangesOnEventLoop(t *testing.T) {
	ui := newTestUI(t)
	ui.app.SetScreen(tcell.NewSimulationScreen("UTF-8"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ui.Start(ctx) }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Start did not return after cancel")
		}
	}()

	if _, err := ui.harvey.CreateCase(ctx, cases.Fields{Numero: "300/2024", Objeto: "Reforma"}); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rows := make(chan int, 1)
		ui.app.QueueUpdate(func() { rows <- ui.cases.table.GetRowCount() })
		select {
		case n := <-rows:
			if n == 5 {
				return
			}
		case <-time.After(time.Second):
		}
		if time.Now().After(deadline) {
			t.Fatal("cases table was not re-rendered on the event loop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
