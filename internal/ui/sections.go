package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/harvey-licitacoes/harvey/internal/app"
	"github.com/harvey-licitacoes/harvey/internal/cases"
	"github.com/harvey-licitacoes/harvey/internal/chat"
	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/rivo/tview"
)

// runAsync runs work off the event loop and then done on it. Outside Run
// (tests) both execute inline.
func (ui *UI) runAsync(work func(), done func()) {
	if !ui.isRunning() {
		work()
		done()
		return
	}
	go func() {
		work()
		ui.app.QueueUpdateDraw(done)
	}()
}

// --- dashboard ---

type dashboardPage struct {
	ui   *UI
	root *tview.Flex
	view *tview.TextView
}

func newDashboardPage(ui *UI) *dashboardPage {
	p := &dashboardPage{ui: ui}
	p.view = tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	p.view.SetBorder(true)
	p.view.SetTitle(" Dashboard ")
	p.view.SetTitleAlign(tview.AlignLeft)
	p.root = tview.NewFlex().SetDirection(tview.FlexRow).AddItem(p.view, 0, 1, true)
	return p
}

func (p *dashboardPage) render() {
	th := p.ui.theme
	stats := p.ui.harvey.DashboardStats()
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]Casos Ativos[-]          %d\n", th.TagMuted, stats.CasosAtivos)
	fmt.Fprintf(&b, "[%s]Editais Analisados[-]    %d\n", th.TagMuted, stats.EditaisAnalisados)
	fmt.Fprintf(&b, "[%s]Defesas Elaboradas[-]    %d\n\n", th.TagMuted, stats.DefesasElaboradas)

	if c, ok := p.ui.harvey.CurrentCase(); ok {
		fmt.Fprintf(&b, "[%s]Caso atual:[-] %s - %s\n", th.TagAccent, tview.Escape(c.Numero), tview.Escape(c.Objeto))
	} else {
		fmt.Fprintf(&b, "[%s]Nenhum caso selecionado[-]\n", th.TagMuted)
	}

	if wf := p.ui.harvey.Workflow(); wf.Recorded() {
		b.WriteString("\n")
		if wf.Completed {
			fmt.Fprintf(&b, "[%s]Workflow concluído[-]\n", th.TagSuccess)
		} else if step, ok := wf.Current(); ok {
			fmt.Fprintf(&b, "[%s]Workflow:[-] passo %d/%d - %s\n", th.TagAccent, wf.CurrentStep+1, len(wf.Steps), tview.Escape(step.Name))
		}
	}
	p.view.SetText(b.String())
}

// --- chat ---

type chatPage struct {
	ui         *UI
	root       *tview.Flex
	transcript *tview.TextView
	input      *tview.InputField
}

func newChatPage(ui *UI) *chatPage {
	p := &chatPage{ui: ui}
	p.transcript = tview.NewTextView().SetDynamicColors(true).SetWrap(true).SetScrollable(true)
	p.transcript.SetBorder(true)
	p.transcript.SetTitle(" Chat Harvey ")
	p.transcript.SetTitleAlign(tview.AlignLeft)

	p.input = tview.NewInputField().SetLabel("> ").SetPlaceholder("Digite sua pergunta sobre licitações...")
	p.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			p.send(p.input.GetText())
		}
	})

	p.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.transcript, 0, 1, false).
		AddItem(p.input, 1, 0, true)
	return p
}

func (p *chatPage) send(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	p.input.SetText("")
	var err error
	p.ui.runAsync(func() {
		_, err = p.ui.harvey.SendMessage(p.ui.ctx, text)
	}, func() {
		if errors.Is(err, app.ErrChatBusy) {
			p.ui.setStatus(p.ui.theme.TagWarning, "Aguarde a resposta anterior.")
		}
		p.render()
	})
	// The user line is already in the transcript while the reply is pending.
	p.render()
}

func (p *chatPage) render() {
	th := p.ui.theme
	var b strings.Builder
	for _, m := range p.ui.harvey.Messages() {
		who, tag := "Harvey", th.TagAccent
		if m.Role == chat.RoleUser {
			who, tag = "Você", th.TagSuccess
		}
		fmt.Fprintf(&b, "[%s]%s[-] [%s]%s[-]\n%s\n\n", tag, who, th.TagMuted, m.Time.Format("15:04"), tview.Escape(m.Text))
	}
	if p.ui.harvey.ChatBusy() {
		fmt.Fprintf(&b, "[%s]Harvey está digitando...[-]\n", th.TagMuted)
	}
	p.transcript.SetText(b.String())
	p.transcript.ScrollToEnd()
}

// --- casos ---

type casesPage struct {
	ui     *UI
	root   *tview.Flex
	search *tview.InputField
	table  *tview.Table
	rows   []cases.Case
}

func newCasesPage(ui *UI) *casesPage {
	p := &casesPage{ui: ui}
	p.search = tview.NewInputField().SetLabel("Buscar: ")
	p.search.SetChangedFunc(func(string) { p.render() })
	p.search.SetDoneFunc(func(tcell.Key) { ui.app.SetFocus(p.table) })

	p.table = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	p.table.SetBorder(true)
	p.table.SetTitle(" Casos  [Enter] abrir  [a] analisar  [r] relatório  [n] novo  [/] buscar ")
	p.table.SetTitleAlign(tview.AlignLeft)
	p.table.SetSelectedFunc(func(row, _ int) {
		if c, ok := p.at(row); ok {
			p.open(c)
		}
	})
	p.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune {
			return event
		}
		row, _ := p.table.GetSelection()
		switch event.Rune() {
		case 'a':
			if c, ok := p.at(row); ok {
				p.transfer(c, true)
			}
			return nil
		case 'r':
			if c, ok := p.at(row); ok {
				p.transfer(c, false)
			}
			return nil
		case 'n':
			p.showNewCaseForm()
			return nil
		case '/':
			ui.app.SetFocus(p.search)
			return nil
		}
		return event
	})

	p.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.search, 1, 0, false).
		AddItem(p.table, 0, 1, true)
	return p
}

// at maps a table row (row 0 is the header) to a case.
func (p *casesPage) at(row int) (cases.Case, bool) {
	if row < 1 || row > len(p.rows) {
		return cases.Case{}, false
	}
	return p.rows[row-1], true
}

func (p *casesPage) render() {
	th := p.ui.theme
	p.rows = p.ui.harvey.SearchCases(p.search.GetText())
	current, _ := p.ui.harvey.CurrentCase()

	p.table.Clear()
	for col, h := range []string{"Processo", "Objeto", "Órgão", "Publicação", "Status", "Análise"} {
		p.table.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(th.TableHeader).
			SetBackgroundColor(th.TableHeaderBg).
			SetSelectable(false))
	}
	for i, c := range p.rows {
		row := i + 1
		bg := th.TableZebra1
		if row%2 == 0 {
			bg = th.TableZebra2
		}
		numero := c.Numero
		if c.ID == current.ID {
			numero = "● " + numero
		}
		analysed := ""
		if c.HasAnalysis {
			analysed = "Analisado " + c.AnalysisDate
		}
		cells := []*tview.TableCell{
			tview.NewTableCell(numero),
			tview.NewTableCell(c.Objeto).SetExpansion(1),
			tview.NewTableCell(c.Orgao),
			tview.NewTableCell(c.DataPublicacao),
			tview.NewTableCell(c.Status.Label()).SetTextColor(statusColor(th, c.Status)),
			tview.NewTableCell(analysed).SetTextColor(th.TextMuted),
		}
		for col, cell := range cells {
			if col != 4 && col != 5 {
				cell.SetTextColor(th.TextPrimary)
			}
			p.table.SetCell(row, col, cell.SetBackgroundColor(bg))
		}
	}
	if len(p.rows) == 0 {
		p.table.SetCell(1, 0, tview.NewTableCell("Nenhum caso encontrado").SetTextColor(th.TextMuted).SetSelectable(false))
	} else if r, _ := p.table.GetSelection(); r < 1 || r > len(p.rows) {
		p.table.Select(1, 0)
	}
}

func statusColor(th Theme, s cases.Status) tcell.Color {
	switch s {
	case cases.StatusOpen:
		return th.StatusOpen
	case cases.StatusAnalysis:
		return th.StatusAnalysis
	default:
		return th.StatusCompleted
	}
}

func (p *casesPage) open(c cases.Case) {
	if _, err := p.ui.harvey.OpenCaseDetails(p.ui.ctx, c.ID); err != nil {
		p.ui.setStatus(p.ui.theme.TagError, "%v", err)
		return
	}
	p.ui.switchSection(p.ui.harvey.ActiveSection())
	p.ui.refreshAll()
}

func (p *casesPage) transfer(c cases.Case, toAnalysis bool) {
	var err error
	if toAnalysis {
		_, err = p.ui.harvey.TransferCaseToAnalysis(p.ui.ctx, c.ID)
	} else {
		_, err = p.ui.harvey.TransferCaseToReports(p.ui.ctx, c.ID)
	}
	if err != nil {
		p.ui.setStatus(p.ui.theme.TagError, "%v", err)
		return
	}
	p.ui.refreshAll()
}

// showNewCaseForm overlays the "Novo Caso" form on the pages.
func (p *casesPage) showNewCaseForm() *tview.Form {
	form := tview.NewForm()
	form.AddInputField("Número do processo", "", 30, nil, nil)
	form.AddInputField("Objeto", "", 50, nil, nil)
	form.AddDropDown("Modalidade", cases.Modalidades(), 0, nil)
	form.AddInputField("Órgão", "", 40, nil, nil)
	form.AddInputField("Data de publicação", "", 12, nil, nil)
	form.AddDropDown("Status", []string{string(cases.StatusOpen), string(cases.StatusAnalysis), string(cases.StatusCompleted)}, 0, nil)

	closeForm := func() {
		p.ui.modalActive = false
		p.ui.pages.RemovePage("novo-caso")
		p.ui.app.SetFocus(p.table)
	}
	form.AddButton("Salvar", func() {
		if p.submit(form) {
			closeForm()
		}
	})
	form.AddButton("Cancelar", closeForm)
	form.SetCancelFunc(closeForm)
	form.SetBorder(true)
	form.SetTitle(" Novo Caso ")
	form.SetTitleAlign(tview.AlignLeft)

	p.ui.modalActive = true
	p.ui.pages.AddPage("novo-caso", centered(form, 70, 19), true, true)
	p.ui.app.SetFocus(form)
	return form
}

// submit creates the case from form; it reports whether the form can close.
func (p *casesPage) submit(form *tview.Form) bool {
	_, modalidade := form.GetFormItemByLabel("Modalidade").(*tview.DropDown).GetCurrentOption()
	_, status := form.GetFormItemByLabel("Status").(*tview.DropDown).GetCurrentOption()
	f := cases.Fields{
		Numero:         form.GetFormItemByLabel("Número do processo").(*tview.InputField).GetText(),
		Objeto:         form.GetFormItemByLabel("Objeto").(*tview.InputField).GetText(),
		Modalidade:     modalidade,
		Orgao:          form.GetFormItemByLabel("Órgão").(*tview.InputField).GetText(),
		DataPublicacao: form.GetFormItemByLabel("Data de publicação").(*tview.InputField).GetText(),
		Status:         status,
	}
	if _, err := p.ui.harvey.CreateCase(p.ui.ctx, f); err != nil {
		// The notifier already carries the user-facing message.
		p.ui.renderStatus()
		return false
	}
	p.render()
	p.ui.renderStatus()
	return true
}

func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

// --- análise jurídica ---

type analysisPage struct {
	ui     *UI
	root   *tview.Flex
	input  *tview.TextArea
	result *tview.TextView
}

func newAnalysisPage(ui *UI) *analysisPage {
	p := &analysisPage{ui: ui}
	p.input = tview.NewTextArea().SetPlaceholder("Dados da empresa...")
	p.input.SetBorder(true)
	p.input.SetTitle(" Dados da empresa  [Ctrl-S] analisar ")
	p.input.SetTitleAlign(tview.AlignLeft)
	p.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlS {
			p.analyze()
			return nil
		}
		return event
	})

	p.result = tview.NewTextView().SetDynamicColors(true).SetWrap(true).SetScrollable(true)
	p.result.SetBorder(true)
	p.result.SetTitle(" Resultado ")
	p.result.SetTitleAlign(tview.AlignLeft)

	p.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.input, 8, 0, true).
		AddItem(p.result, 0, 1, false)
	return p
}

func (p *analysisPage) analyze() {
	if _, err := p.ui.harvey.AnalyzeEdital(p.ui.ctx, p.input.GetText()); err != nil {
		p.ui.renderStatus()
	}
	p.render()
}

func (p *analysisPage) render() {
	th := p.ui.theme
	v := p.ui.harvey.Views().Analysis
	// Prefill only when the user has not typed anything else.
	if v.FormText != "" && strings.TrimSpace(p.input.GetText()) == "" {
		p.input.SetText(v.FormText, false)
	}

	var b strings.Builder
	switch {
	case v.Running:
		fmt.Fprintf(&b, "[%s]Analisando...[-]\n", th.TagWarning)
	case v.Error != "":
		fmt.Fprintf(&b, "[%s]%s[-]\n", th.TagError, tview.Escape(v.Error))
	case v.Last != nil:
		if v.Last.Status != "" {
			fmt.Fprintf(&b, "[%s]Status:[-] %s\n", th.TagAccent, tview.Escape(v.Last.Status))
		}
		if v.Last.Compatibility != "" {
			fmt.Fprintf(&b, "[%s]Compatibilidade:[-] %s\n", th.TagAccent, tview.Escape(v.Last.Compatibility))
		}
		for _, pt := range v.Last.AttentionPoints {
			fmt.Fprintf(&b, "  - %s\n", tview.Escape(pt))
		}
		if v.Last.Content != "" {
			b.WriteString("\n" + tview.Escape(v.Last.Content) + "\n")
		}
	case v.Prior != nil:
		fmt.Fprintf(&b, "[%s]Análise anterior (%s)[-]\n\n%s\n", th.TagMuted, displayDay(v.Prior.Date), tview.Escape(v.Prior.Content))
	default:
		fmt.Fprintf(&b, "[%s]Nenhuma análise para o caso atual.[-]\n", th.TagMuted)
	}
	p.result.SetText(b.String())
}

func displayDay(stamp string) string {
	if len(stamp) >= 10 {
		return stamp[8:10] + "/" + stamp[5:7] + "/" + stamp[0:4]
	}
	return stamp
}

// --- relatórios ---

type reportsPage struct {
	ui   *UI
	root *tview.Flex
	view *tview.TextView
}

func newReportsPage(ui *UI) *reportsPage {
	p := &reportsPage{ui: ui}
	p.view = tview.NewTextView().SetDynamicColors(true).SetWrap(true).SetScrollable(true)
	p.view.SetBorder(true)
	p.view.SetTitle(" Relatórios  [g] gerar ")
	p.view.SetTitleAlign(tview.AlignLeft)
	p.view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'g' {
			ui.harvey.GenerateReport(ui.ctx)
			ui.renderStatus()
			ui.showModal(app.MsgReportPending)
			return nil
		}
		return event
	})
	p.root = tview.NewFlex().SetDirection(tview.FlexRow).AddItem(p.view, 0, 1, true)
	return p
}

func (p *reportsPage) render() {
	th := p.ui.theme
	r := p.ui.harvey.Views().Report
	if len(r.Sections) == 0 {
		p.view.SetText(fmt.Sprintf("[%s]Selecione um caso para ver o relatório.[-]", th.TagMuted))
		return
	}
	var b strings.Builder
	for _, s := range r.Sections {
		fmt.Fprintf(&b, "[%s::b]%s[-::-]\n", th.TagAccent, tview.Escape(s.Title))
		for _, l := range s.Lines {
			b.WriteString(tview.Escape(l) + "\n")
		}
		if s.Content != "" {
			b.WriteString(tview.Escape(s.Content) + "\n")
		}
		b.WriteString("\n")
	}
	p.view.SetText(b.String())
}

// --- configurações ---

type configPage struct {
	ui   *UI
	root *tview.Flex
	form *tview.Form
}

const (
	labelAPIKey   = "OpenAI API key"
	labelModel    = "Modelo"
	labelEndpoint = "Endpoint do chat"
	labelDocs     = "Google Docs API"
	labelPrompt   = "Prompt do Harvey"
)

func newConfigPage(ui *UI) *configPage {
	p := &configPage{ui: ui}
	p.form = tview.NewForm()
	p.form.AddPasswordField(labelAPIKey, "", 50, '*', nil)
	p.form.AddInputField(labelModel, "", 30, nil, nil)
	p.form.AddInputField(labelEndpoint, "", 50, nil, nil)
	p.form.AddPasswordField(labelDocs, "", 50, '*', nil)
	p.form.AddTextArea(labelPrompt, "", 0, 8, 0, nil)
	p.form.AddButton("Salvar configuração", p.saveConfig)
	p.form.AddButton("Salvar prompt", p.savePrompt)
	p.form.SetBorder(true)
	p.form.SetTitle(" Configurações ")
	p.form.SetTitleAlign(tview.AlignLeft)
	p.root = tview.NewFlex().SetDirection(tview.FlexRow).AddItem(p.form, 0, 1, true)
	return p
}

func (p *configPage) text(label string) string {
	switch item := p.form.GetFormItemByLabel(label).(type) {
	case *tview.InputField:
		return item.GetText()
	case *tview.TextArea:
		return item.GetText()
	}
	return ""
}

func (p *configPage) saveConfig() {
	cfg := app.APIConfig{
		OpenAIAPIKey:  p.text(labelAPIKey),
		GoogleDocsAPI: p.text(labelDocs),
		Model:         p.text(labelModel),
		Endpoint:      p.text(labelEndpoint),
	}
	if err := p.ui.harvey.SaveAPIConfig(p.ui.ctx, cfg); err != nil {
		p.ui.logger.Printf("save config: %v", err)
	}
	p.ui.renderStatus()
}

func (p *configPage) savePrompt() {
	if err := p.ui.harvey.SavePrompt(p.ui.ctx, p.text(labelPrompt)); err != nil {
		p.ui.logger.Printf("save prompt: %v", err)
	}
	p.ui.renderStatus()
}

func (p *configPage) render() {
	cfg := p.ui.harvey.APIConfig()
	p.form.GetFormItemByLabel(labelAPIKey).(*tview.InputField).SetText(cfg.OpenAIAPIKey)
	p.form.GetFormItemByLabel(labelModel).(*tview.InputField).SetText(cfg.Model)
	p.form.GetFormItemByLabel(labelEndpoint).(*tview.InputField).SetText(cfg.Endpoint)
	p.form.GetFormItemByLabel(labelDocs).(*tview.InputField).SetText(cfg.GoogleDocsAPI)
	p.form.GetFormItemByLabel(labelPrompt).(*tview.TextArea).SetText(p.ui.harvey.Prompt(), false)
}

// --- IA jurídica ---

type draftPage struct {
	ui     *UI
	root   *tview.Flex
	form   *tview.Form
	result *tview.TextView
}

const (
	labelTipo   = "Tipo de peça"
	labelFatos  = "Fatos"
	labelPontos = "Pontos a contestar"
)

func newDraftPage(ui *UI) *draftPage {
	p := &draftPage{ui: ui}
	p.form = tview.NewForm()
	p.form.AddDropDown(labelTipo, llm.DraftTypes, 0, nil)
	p.form.AddTextArea(labelFatos, "", 0, 5, 0, nil)
	p.form.AddTextArea(labelPontos, "", 0, 5, 0, nil)
	p.form.AddButton("Gerar esboço", p.generate)
	p.form.SetBorder(true)
	p.form.SetTitle(" IA Jurídica ")
	p.form.SetTitleAlign(tview.AlignLeft)

	p.result = tview.NewTextView().SetWrap(true).SetScrollable(true)
	p.result.SetBorder(true)
	p.result.SetTitle(" Esboço ")
	p.result.SetTitleAlign(tview.AlignLeft)

	p.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(p.form, 17, 0, true).
		AddItem(p.result, 0, 1, false)
	return p
}

func (p *draftPage) generate() {
	_, tipo := p.form.GetFormItemByLabel(labelTipo).(*tview.DropDown).GetCurrentOption()
	fatos := p.form.GetFormItemByLabel(labelFatos).(*tview.TextArea).GetText()
	pontos := p.form.GetFormItemByLabel(labelPontos).(*tview.TextArea).GetText()

	p.result.SetText("Gerando esboço...")
	var (
		text string
		err  error
	)
	p.ui.runAsync(func() {
		text, err = p.ui.harvey.GenerateDraft(p.ui.ctx, tipo, fatos, pontos)
	}, func() {
		if err != nil {
			p.result.SetText("")
			p.ui.renderStatus()
			return
		}
		p.result.SetText(text)
	})
}
