package app

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/harvey-licitacoes/harvey/internal/analysis"
	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/harvey-licitacoes/harvey/internal/chat"
	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/harvey-licitacoes/harvey/internal/nav"
	"github.com/harvey-licitacoes/harvey/internal/notify"
	"github.com/harvey-licitacoes/harvey/internal/session"
	"github.com/harvey-licitacoes/harvey/internal/state"
	"github.com/harvey-licitacoes/harvey/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = log.New(io.Discard, "", 0)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, req.Prompt)
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Response{Text: "Esboço gerado", Model: "fake"}, nil
}

func newTestApp(t *testing.T, gen llm.Generator) (*App, *store.Store) {
	t.Helper()
	st, err := store.NewStoreWithLogger(":memory:", quiet)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	opts := Options{
		Store:    st,
		Analysis: &analysis.SimulatedBackend{},
		Logger:   quiet,
	}
	if gen != nil {
		opts.Generator = gen
	}
	a, err := New(context.Background(), opts)
	require.NoError(t, err)
	return a, st
}

func lastToast(t *testing.T, a *App) notify.Notification {
	t.Helper()
	n, ok := a.Notifier().Latest()
	require.True(t, ok, "expected a notification")
	return n
}

func TestCreateTransferAndAnalyseEndToEnd(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	c, err := a.CreateCase(ctx, cases.Fields{Numero: "999/2024", Objeto: "Teste"})
	require.NoError(t, err)

	list := a.ListCases()
	require.Len(t, list, 4)
	assert.Equal(t, "999/2024", list[3].Numero)

	_, err = a.TransferCaseToAnalysis(ctx, c.ID)
	require.NoError(t, err)

	current, ok := a.CurrentCase()
	require.True(t, ok)
	assert.Equal(t, c.ID, current.ID)
	assert.Equal(t, nav.Analise, a.ActiveSection())

	v := a.Views()
	assert.Contains(t, v.Analysis.FormText, "Processo: 999/2024")
	assert.Contains(t, v.Analysis.FormText, "Objeto: Teste")
	assert.Nil(t, v.Analysis.Prior)
	assert.Equal(t, "Caso 999/2024 transferido para análise jurídica.", lastToast(t, a).Message)
}

func TestCreateCaseValidation(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.CreateCase(ctx, cases.Fields{Numero: "  ", Objeto: "x"})
	var verr *cases.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, a.ListCases(), 3)
	assert.Equal(t, notify.LevelError, lastToast(t, a).Level)

	c, err := a.CreateCase(ctx, cases.Fields{Numero: "1/2025", Objeto: "Papel"})
	require.NoError(t, err)
	msgs := a.Messages()
	assert.Equal(t, "Novo caso criado: 1/2025 - Papel", msgs[len(msgs)-1].Text)
	assert.Equal(t, "Caso criado com sucesso!", lastToast(t, a).Message)
	assert.Equal(t, cases.StatusOpen, c.Status)
	assert.Equal(t, 2, a.DashboardStats().CasosAtivos)
	assert.Equal(t, 2, a.Views().Stats.CasosAtivos)
}

func TestCaseReferenceResolution(t *testing.T) {
	a, _ := newTestApp(t, nil)

	byID, err := a.Case("2")
	require.NoError(t, err)
	byNumero, err := a.Case("14876/2023")
	require.NoError(t, err)
	assert.Equal(t, byID, byNumero)

	_, err = a.Case("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = a.TransferCaseToReports(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, nav.Dashboard, a.ActiveSection())
}

func TestOpenCaseDetailsPostsToChat(t *testing.T) {
	a, _ := newTestApp(t, nil)

	c, err := a.OpenCaseDetails(context.Background(), "1")
	require.NoError(t, err)
	msgs := a.Messages()
	assert.Equal(t, "Abrindo detalhes do caso: "+c.Numero+" - "+c.Objeto, msgs[len(msgs)-1].Text)
	assert.Equal(t, chat.RoleAssistant, msgs[len(msgs)-1].Role)
	cur, ok := a.CurrentCase()
	require.True(t, ok)
	assert.Equal(t, "1", cur.ID)
}

func TestAnalysisAttachesToCurrentCase(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.AnalyzeEdital(ctx, "   ")
	var verr *analysis.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, analysis.MissingInputMessage, lastToast(t, a).Message)

	_, err = a.TransferCaseToAnalysis(ctx, "1")
	require.NoError(t, err)

	job, err := a.AnalyzeEdital(ctx, "Empresa X, CNPJ 00.000.000/0001-00")
	require.NoError(t, err)
	_, err = job.Wait(ctx)
	require.NoError(t, err)
	a.WaitIdle()

	results := a.AnalysisResults()
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].CaseID)
	assert.Equal(t, state.TypeEdital, results[0].Type)
	assert.Equal(t, state.SystemUser, results[0].User)
	assert.Contains(t, results[0].Content, analysis.SimulatedCompatibility)

	v := a.Views()
	assert.False(t, v.Analysis.Running)
	require.NotNil(t, v.Analysis.Last)
	assert.Equal(t, 1, v.Stats.EditaisAnalisados)
	assert.Equal(t, MsgAnalysisDone, lastToast(t, a).Message)

	// re-entering shows the first prior result
	a.SwitchSection(ctx, nav.Dashboard)
	a.SwitchSection(ctx, nav.Analise)
	require.NotNil(t, a.Views().Analysis.Prior)
	assert.Equal(t, results[0].ID, a.Views().Analysis.Prior.ID)
}

func TestAnalysisWithoutCurrentCaseIsNotStored(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	job, err := a.AnalyzeEdital(ctx, "dados")
	require.NoError(t, err)
	_, err = job.Wait(ctx)
	require.NoError(t, err)
	a.WaitIdle()

	assert.Empty(t, a.AnalysisResults())
	assert.NotNil(t, a.Views().Analysis.Last)
}

func TestUploadPostsSummaryToChat(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()
	_, err := a.OpenCaseDetails(ctx, "3")
	require.NoError(t, err)

	_, err = a.AnalyzeUpload(ctx, "edital.pdf", []byte("%PDF"))
	require.NoError(t, err)
	a.WaitIdle()

	msgs := a.Messages()
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	assert.Contains(t, texts, "Arquivo edital.pdf carregado com sucesso. Iniciando análise...")
	assert.Equal(t, analysis.UploadSummary, texts[len(texts)-1])

	results := a.AnalysisResults()
	require.Len(t, results, 1)
	assert.Equal(t, "3", results[0].CaseID)
}

func TestReportRebuiltOnEntry(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.SaveAnalysisResult(ctx, "2", "Recurso pronto", state.TypeRecurso)
	require.NoError(t, err)
	_, err = a.SaveAnalysisResult(ctx, "1", "Edital ok", state.TypeEdital)
	require.NoError(t, err)
	_, err = a.SaveAnalysisResult(ctx, "404", "x", state.TypeEdital)
	assert.ErrorIs(t, err, state.ErrUnknownCase)

	_, err = a.TransferCaseToReports(ctx, "14876/2023")
	require.NoError(t, err)
	assert.Equal(t, nav.Relatorios, a.ActiveSection())

	report := a.Views().Report
	require.Len(t, report.Sections, 3)
	assert.Equal(t, "Informações do Caso", report.Sections[0].Title)
	assert.Contains(t, report.Sections[0].Lines, "Processo: 14876/2023")
	assert.True(t, strings.HasPrefix(report.Sections[1].Title, "Análise recurso - "))
	assert.Equal(t, "Recurso pronto", report.Sections[1].Content)
	assert.Contains(t, report.Text(), "Edital ok")

	stats := a.DashboardStats()
	assert.Equal(t, 1, stats.EditaisAnalisados)
	assert.Equal(t, 1, stats.DefesasElaboradas)
}

func TestCasosEntryTagsAnalysedCases(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.SaveAnalysisResult(ctx, "2", "ok", state.TypeEdital)
	require.NoError(t, err)
	require.True(t, a.SwitchSection(ctx, nav.Casos))

	c, err := a.Case("2")
	require.NoError(t, err)
	assert.True(t, c.HasAnalysis)
	assert.NotEmpty(t, c.AnalysisDate)

	other, err := a.Case("1")
	require.NoError(t, err)
	assert.False(t, other.HasAnalysis)
}

func TestUnknownSectionIsIgnored(t *testing.T) {
	a, _ := newTestApp(t, nil)
	assert.False(t, a.SwitchSection(context.Background(), "financeiro"))
	assert.Equal(t, nav.Dashboard, a.ActiveSection())
}

func TestSendMessageUsesLocalResponder(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.SendMessage(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	reply, err := a.SendMessage(ctx, "Preciso analisar um edital")
	require.NoError(t, err)
	assert.Equal(t, chat.ReplyEditalAnalysis, reply.Text)
	assert.Len(t, a.Messages(), 3)
	assert.False(t, a.ChatBusy())

	a.ClearChat(ctx)
	require.Len(t, a.Messages(), 1)
	assert.Equal(t, chat.WelcomeMessage, a.Messages()[0].Text)
}

func TestWorkflowAdvance(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, _, err := a.AdvanceWorkflow(ctx)
	assert.ErrorIs(t, err, state.ErrNoWorkflow)

	require.NoError(t, a.RecordWorkflow(ctx, []state.WorkflowStep{
		{Name: "Cadastro"},
		{Name: "Análise", Section: nav.Analise},
	}))

	step, advanced, err := a.AdvanceWorkflow(ctx)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, "Análise", step.Name)
	assert.Equal(t, nav.Analise, a.ActiveSection())
	assert.Equal(t, "Próximo passo: Análise", lastToast(t, a).Message)

	_, advanced, err = a.AdvanceWorkflow(ctx)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.True(t, a.Workflow().Completed)
	assert.Equal(t, MsgWorkflowDone, lastToast(t, a).Message)
}

func TestSessionAttributesResults(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Register(ctx, "Ana", "ana@x.com", "a", "b")
	assert.ErrorIs(t, err, session.ErrPasswordMismatch)
	assert.Equal(t, "As senhas não coincidem.", lastToast(t, a).Message)

	u, err := a.Login(ctx, "maria@escritorio.adv.br", "segredo")
	require.NoError(t, err)
	assert.Equal(t, "maria", u.Name)

	res, err := a.SaveAnalysisResult(ctx, "1", "ok", state.TypeDefesa)
	require.NoError(t, err)
	assert.Equal(t, "maria", res.User)

	require.NoError(t, a.Logout(ctx))
	_, ok := a.Sessions().Current()
	assert.False(t, ok)
}

func TestConfigAndPrompt(t *testing.T) {
	a, st := newTestApp(t, nil)
	ctx := context.Background()

	assert.Equal(t, DefaultChatModel, a.APIConfig().Model)
	assert.Equal(t, llm.DefaultHarveyPrompt, a.Prompt())

	require.NoError(t, a.SaveAPIConfig(ctx, APIConfig{OpenAIAPIKey: " sk-1 ", Model: "gpt-4"}))
	assert.Equal(t, MsgConfigSaved, lastToast(t, a).Message)
	require.NoError(t, a.SavePrompt(ctx, "Você é Harvey."))
	assert.Equal(t, MsgPromptSaved, lastToast(t, a).Message)

	var raw APIConfig
	require.True(t, st.Load(ctx, store.KeyAPIConfig, &raw))
	assert.Equal(t, "sk-1", raw.OpenAIAPIKey)
	assert.Equal(t, "Você é Harvey.", a.Prompt())

	require.NoError(t, a.SaveTemplate(ctx, "recurso", "Modelo de recurso"))
	assert.Equal(t, "Modelo de recurso", a.Templates()["recurso"])
}

func TestGenerateDraft(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()
	_, err := a.GenerateDraft(ctx, "Recurso Administrativo", "fatos", "pontos")
	assert.ErrorIs(t, err, ErrNoGenerator)
	assert.Equal(t, MsgGenerateFailed, lastToast(t, a).Message)

	gen := &fakeGenerator{}
	a, _ = newTestApp(t, gen)
	_, err = a.GenerateDraft(ctx, "Recurso Administrativo", "", "pontos")
	assert.ErrorIs(t, err, llm.ErrDraftFields)
	assert.Empty(t, gen.prompts)

	text, err := a.GenerateDraft(ctx, "Contrarrazões", "Desclassificação indevida", "Preço exequível")
	require.NoError(t, err)
	assert.Equal(t, "Esboço gerado", text)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `"Contrarrazões"`)
	assert.Contains(t, gen.prompts[0], "Preço exequível")

	gen.err = errors.New("boom")
	_, err = a.GenerateText(ctx, "x")
	assert.Error(t, err)
}

func TestChangesArePublished(t *testing.T) {
	a, _ := newTestApp(t, nil)
	var mu sync.Mutex
	seen := map[string]int{}
	a.Bus().Subscribe(func(c bus.Change) {
		mu.Lock()
		seen[c.Topic]++
		mu.Unlock()
	})

	ctx := context.Background()
	_, err := a.CreateCase(ctx, cases.Fields{Numero: "5/2025", Objeto: "Obra"})
	require.NoError(t, err)
	a.SwitchSection(ctx, nav.Chat)

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, seen[bus.TopicCases])
	assert.Positive(t, seen[bus.TopicSection])
	assert.Positive(t, seen[bus.TopicNotification])
	assert.Positive(t, seen[bus.TopicChat])
}

// linkedBus joins two apps the way the Redis stream joins two processes:
// local subscribers see every change and the peer sees it as remote.
type linkedBus struct {
	*bus.LocalBus
	origin string
	peer   *linkedBus
}

func (b *linkedBus) Publish(ctx context.Context, c bus.Change) error {
	c.Origin = b.origin
	if err := b.LocalBus.Publish(ctx, c); err != nil {
		return err
	}
	if b.peer == nil {
		return nil
	}
	c.Remote = true
	return b.peer.LocalBus.Publish(ctx, c)
}

func TestRemoteChangesReloadDocuments(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "harvey.db")

	serveBus := &linkedBus{LocalBus: bus.NewLocalBus(quiet), origin: "serve"}
	tuiBus := &linkedBus{LocalBus: bus.NewLocalBus(quiet), origin: "tui"}
	serveBus.peer, tuiBus.peer = tuiBus, serveBus

	open := func(b bus.Bus) *App {
		st, err := store.NewStoreWithLogger(dbPath, quiet)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		a, err := New(ctx, Options{Store: st, Bus: b, Logger: quiet})
		require.NoError(t, err)
		return a
	}
	serve := open(serveBus)
	tui := open(tuiBus)

	// A front-end subscribed after New re-renders from reloaded state.
	var rendered int
	tuiBus.Subscribe(func(c bus.Change) {
		if c.Topic == bus.TopicCases {
			rendered = len(tui.ListCases())
		}
	})

	_, err := serve.CreateCase(ctx, cases.Fields{Numero: "100/2024", Objeto: "Serviços de vigilância"})
	require.NoError(t, err)
	assert.Equal(t, 4, rendered)
	assert.Len(t, tui.ListCases(), 4)
	assert.Equal(t, 2, tui.DashboardStats().CasosAtivos)

	_, err = tui.CreateCase(ctx, cases.Fields{Numero: "200/2024", Objeto: "Material de escritório"})
	require.NoError(t, err)
	assert.Len(t, serve.ListCases(), 5)

	_, err = serve.TransferCaseToReports(ctx, "100/2024")
	require.NoError(t, err)
	cur, ok := tui.CurrentCase()
	require.True(t, ok)
	assert.Equal(t, "100/2024", cur.Numero)

	_, err = serve.Login(ctx, "ana@exemplo.com.br", "segredo")
	require.NoError(t, err)
	u, ok := tui.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, "ana", u.Name)

	st, err := store.NewStoreWithLogger(dbPath, quiet)
	require.NoError(t, err)
	defer st.Close()
	reopened, err := New(ctx, Options{Store: st, Logger: quiet})
	require.NoError(t, err)
	for _, numero := range []string{"100/2024", "200/2024"} {
		_, err := reopened.Case(numero)
		assert.NoError(t, err, numero)
	}
}

func TestLocalChangesDoNotReload(t *testing.T) {
	a, st := newTestApp(t, nil)
	ctx := context.Background()

	// Written behind the app's back; only a remote notice may pick it up.
	require.NoError(t, st.Save(ctx, store.KeyCases, []cases.Case{{ID: "1", Numero: "1/2025", Objeto: "X"}}))
	require.NoError(t, a.Bus().Publish(ctx, bus.NewChange(bus.TopicCases, nil)))
	assert.Len(t, a.ListCases(), 3)

	remote := bus.NewChange(bus.TopicCases, nil)
	remote.Remote = true
	require.NoError(t, a.Bus().Publish(ctx, remote))
	assert.Len(t, a.ListCases(), 1)
}

func TestDanglingResultsLeftOutOfStatsAndReport(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewStoreWithLogger(":memory:", quiet)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Save(ctx, store.KeySharedData, map[string]interface{}{
		"version": state.CurrentVersion,
		"analysisResults": []state.AnalysisResult{
			{ID: 1, CaseID: "1", Type: state.TypeEdital, Content: "Edital ok", Date: "2024-03-01T10:00:00.000Z"},
			{ID: 2, CaseID: "999", Type: state.TypeEdital, Content: "Caso removido", Date: "2024-03-02T10:00:00.000Z"},
			{ID: 3, CaseID: "999", Type: state.TypeDefesa, Content: "Defesa órfã", Date: "2024-03-02T11:00:00.000Z"},
		},
	}))
	a, err := New(ctx, Options{Store: st, Logger: quiet})
	require.NoError(t, err)

	stats := a.DashboardStats()
	assert.Equal(t, 1, stats.EditaisAnalisados)
	assert.Zero(t, stats.DefesasElaboradas)

	a.SwitchSection(ctx, nav.Relatorios)
	report := a.Views().Report
	require.Len(t, report.Sections, 1)
	assert.Equal(t, "Edital ok", report.Sections[0].Content)
}
