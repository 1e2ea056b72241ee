// Package ui is the terminal dashboard: a sidebar of sections, one page per
// section and a status bar showing the latest notification. It drives the
// same *app.App as the HTTP server and re-renders on bus changes.
package ui

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/harvey-licitacoes/harvey/internal/app"
	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/nav"
	"github.com/rivo/tview"
)

// sectionTitles are the sidebar labels, in nav.Sections() order.
var sectionTitles = map[string]string{
	nav.Dashboard:     "Dashboard",
	nav.Chat:          "Chat Harvey",
	nav.Casos:         "Casos",
	nav.Analise:       "Análise Jurídica",
	nav.Relatorios:    "Relatórios",
	nav.Configuracoes: "Configurações",
	nav.IAJuridica:    "IA Jurídica",
}

// UI is the tview application bound to one *app.App.
type UI struct {
	app    *tview.Application
	harvey *app.App
	logger *log.Logger

	// Layout components
	root      *tview.Flex
	appTitle  *tview.TextView
	sidebar   *tview.List
	pages     *tview.Pages
	statusBar *tview.TextView

	// Section pages
	dashboard *dashboardPage
	chat      *chatPage
	cases     *casesPage
	analysis  *analysisPage
	reports   *reportsPage
	config    *configPage
	drafts    *draftPage

	// Theme state
	theme        Theme
	themeName    string
	hasTrueColor bool

	// Runtime
	running     int32
	modalActive bool
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewUI builds every page from the current application state.
func NewUI(ctx context.Context, harvey *app.App, logger *log.Logger) *UI {
	if logger == nil {
		logger = log.New(log.Writer(), "[UI] ", log.LstdFlags)
	}
	uiCtx, cancel := context.WithCancel(ctx)

	ui := &UI{
		app:          tview.NewApplication(),
		harvey:       harvey,
		logger:       logger,
		ctx:          uiCtx,
		cancel:       cancel,
		hasTrueColor: detectTrueColor(),
	}
	ui.themeName = "dark"
	if !ui.hasTrueColor {
		ui.themeName = "high-contrast"
	}
	ui.theme = themeByName(ui.themeName)

	ui.setupLayout()
	ui.setupKeybindings()
	ui.applyTheme()
	ui.refreshAll()
	return ui
}

// Start subscribes to the bus and runs the event loop until ctx is done or
// the user quits.
func (ui *UI) Start(ctx context.Context) error {
	ui.logger.Println("Starting TUI application")
	atomic.StoreInt32(&ui.running, 1)
	ui.unsubscribe = ui.harvey.Bus().Subscribe(ui.onChange)

	go func() {
		select {
		case <-ctx.Done():
			ui.logger.Println("External context cancelled, stopping TUI")
		case <-ui.ctx.Done():
			ui.logger.Println("UI context cancelled, stopping TUI")
		}
		ui.cancel()
		ui.app.Stop()
	}()
	ui.startRedrawHeartbeat()

	err := ui.app.Run()
	ui.unsubscribe()
	atomic.StoreInt32(&ui.running, 0)
	ui.logger.Printf("app.Run() returned with error: %v", err)
	return err
}

// Stop stops the TUI application
func (ui *UI) Stop() {
	ui.logger.Println("Stopping TUI application")
	ui.cancel()
	ui.app.Stop()
}

// onChange re-renders the widgets a change touches. Widgets are only touched
// on the event loop. Changes may be published from inside it, so the update
// is queued from a separate goroutine and never blocks the publisher.
func (ui *UI) onChange(c bus.Change) {
	go ui.app.QueueUpdateDraw(func() { ui.refresh(c.Topic) })
}

func (ui *UI) isRunning() bool { return atomic.LoadInt32(&ui.running) == 1 }

// queue runs fn on the event loop when running, or inline otherwise (tests).
func (ui *UI) queue(fn func()) {
	if ui.isRunning() {
		ui.app.QueueUpdateDraw(fn)
		return
	}
	fn()
}

func (ui *UI) setupLayout() {
	ui.appTitle = tview.NewTextView().SetDynamicColors(true)

	ui.sidebar = tview.NewList().ShowSecondaryText(false)
	ui.sidebar.SetTitle(" Seções ")
	ui.sidebar.SetBorder(true)
	ui.sidebar.SetTitleAlign(tview.AlignLeft)
	for i, name := range nav.Sections() {
		section := name
		shortcut := rune('1' + i)
		ui.sidebar.AddItem(sectionTitles[section], section, shortcut, func() {
			ui.switchSection(section)
		})
	}

	ui.dashboard = newDashboardPage(ui)
	ui.chat = newChatPage(ui)
	ui.cases = newCasesPage(ui)
	ui.analysis = newAnalysisPage(ui)
	ui.reports = newReportsPage(ui)
	ui.config = newConfigPage(ui)
	ui.drafts = newDraftPage(ui)

	ui.pages = tview.NewPages().
		AddPage(nav.Dashboard, ui.dashboard.root, true, true).
		AddPage(nav.Chat, ui.chat.root, true, false).
		AddPage(nav.Casos, ui.cases.root, true, false).
		AddPage(nav.Analise, ui.analysis.root, true, false).
		AddPage(nav.Relatorios, ui.reports.root, true, false).
		AddPage(nav.Configuracoes, ui.config.root, true, false).
		AddPage(nav.IAJuridica, ui.drafts.root, true, false)

	ui.statusBar = tview.NewTextView().SetDynamicColors(true)

	body := tview.NewFlex().
		AddItem(ui.sidebar, 24, 0, true).
		AddItem(ui.pages, 0, 1, false)

	ui.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.appTitle, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)
	ui.app.SetRoot(ui.root, true).SetFocus(ui.sidebar)
}

func (ui *UI) setupKeybindings() {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.isDialogActive() {
			return event
		}
		switch event.Key() {
		case tcell.KeyCtrlC:
			ui.Stop()
			return nil
		case tcell.KeyTab:
			ui.cycleFocus()
			return nil
		case tcell.KeyEsc:
			ui.app.SetFocus(ui.sidebar)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				ui.Stop()
				return nil
			case 't', 'T':
				ui.cycleTheme()
				return nil
			}
		}
		return event
	})
}

// isDialogActive returns true when a form field or modal has focus so that
// global shortcuts do not eat typed characters.
func (ui *UI) isDialogActive() bool {
	if ui.modalActive {
		return true
	}
	switch ui.app.GetFocus().(type) {
	case *tview.Form, *tview.Modal, *tview.InputField, *tview.TextArea, *tview.DropDown, *tview.Button:
		return true
	default:
		return false
	}
}

// cycleFocus toggles between the sidebar and the active page.
func (ui *UI) cycleFocus() {
	if ui.app.GetFocus() == ui.sidebar {
		_, page := ui.pages.GetFrontPage()
		if page != nil {
			ui.app.SetFocus(page)
		}
		return
	}
	ui.app.SetFocus(ui.sidebar)
}

func (ui *UI) switchSection(name string) {
	if !ui.harvey.SwitchSection(ui.ctx, name) {
		ui.setStatus(ui.theme.TagError, "Seção desconhecida: %s", name)
		return
	}
	// The bus change re-renders asynchronously; show the page right away.
	ui.showSection(name)
}

// showSection brings the page of name to the front and syncs the sidebar.
func (ui *UI) showSection(name string) {
	ui.pages.SwitchToPage(name)
	for i, s := range nav.Sections() {
		if s == name && ui.sidebar.GetCurrentItem() != i {
			ui.sidebar.SetCurrentItem(i)
		}
	}
}

// refresh re-renders what a change on topic can affect.
func (ui *UI) refresh(topic string) {
	switch topic {
	case bus.TopicCases:
		ui.cases.render()
		ui.dashboard.render()
	case bus.TopicShared, bus.TopicAnalysis:
		ui.dashboard.render()
		ui.analysis.render()
		ui.reports.render()
	case bus.TopicSection:
		ui.showSection(ui.harvey.ActiveSection())
		ui.renderTitle()
	case bus.TopicViews:
		ui.dashboard.render()
		ui.analysis.render()
		ui.reports.render()
	case bus.TopicChat:
		ui.chat.render()
	case bus.TopicConfig:
		ui.config.render()
	case bus.TopicSession:
		ui.renderTitle()
	case bus.TopicNotification:
		ui.renderStatus()
	default:
		ui.refreshAll()
	}
}

func (ui *UI) refreshAll() {
	ui.renderTitle()
	ui.dashboard.render()
	ui.chat.render()
	ui.cases.render()
	ui.analysis.render()
	ui.reports.render()
	ui.config.render()
	ui.renderStatus()
	ui.showSection(ui.harvey.ActiveSection())
}

func (ui *UI) renderTitle() {
	user := "não autenticado"
	if u, ok := ui.harvey.Sessions().Current(); ok {
		user = u.DisplayName()
	}
	ui.appTitle.SetText(fmt.Sprintf(" [%s]Harvey[-] [%s]| %s | %s[-]",
		ui.theme.TagAccent, ui.theme.TagMuted, sectionTitles[ui.harvey.ActiveSection()], user))
}

// renderStatus shows the newest live notification, or the key hints.
func (ui *UI) renderStatus() {
	n, ok := ui.harvey.Notifier().Latest()
	if !ok {
		ui.statusBar.SetText(fmt.Sprintf("[%s]1-7[-]:seções [%s]Tab[-]:foco [%s]t[-]:tema [%s]q[-]:sair",
			ui.theme.TagAccent, ui.theme.TagAccent, ui.theme.TagAccent, ui.theme.TagAccent))
		return
	}
	tag := ui.theme.TagAccent
	switch n.Level {
	case "success":
		tag = ui.theme.TagSuccess
	case "error":
		tag = ui.theme.TagError
	}
	ui.statusBar.SetText(fmt.Sprintf("[%s]%s[-] [%s]%s[-]",
		ui.theme.TagMuted, n.CreatedAt.Format("15:04:05"), tag, tview.Escape(n.Message)))
}

// setStatus writes a transient local message.
func (ui *UI) setStatus(tag, format string, args ...interface{}) {
	ui.statusBar.SetText(fmt.Sprintf("[%s]%s[-] [%s]%s[-]",
		ui.theme.TagMuted, time.Now().Format("15:04:05"), tag, tview.Escape(fmt.Sprintf(format, args...))))
}

// startRedrawHeartbeat expires toasts from the status bar once their
// lifetime is over.
func (ui *UI) startRedrawHeartbeat() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ui.ctx.Done():
				return
			case <-ticker.C:
				if ui.isRunning() {
					ui.app.QueueUpdateDraw(ui.renderStatus)
				}
			}
		}
	}()
}

// showModal displays a message over the current page.
func (ui *UI) showModal(text string) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) {
			ui.modalActive = false
			ui.pages.RemovePage("modal")
			ui.app.SetFocus(ui.sidebar)
		})
	ui.modalActive = true
	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) applyTheme() {
	tview.Styles.PrimitiveBackgroundColor = ui.theme.Surface
	tview.Styles.ContrastBackgroundColor = ui.theme.SelectionBg
	tview.Styles.PrimaryTextColor = ui.theme.TextPrimary
	tview.Styles.BorderColor = ui.theme.Border

	ui.appTitle.SetBackgroundColor(ui.theme.Surface)
	ui.sidebar.SetMainTextColor(ui.theme.TextPrimary)
	ui.sidebar.SetSelectedTextColor(ui.theme.SelectionFg)
	ui.sidebar.SetSelectedBackgroundColor(ui.theme.SelectionBg)
	ui.sidebar.SetShortcutColor(ui.theme.FocusBorder)
	ui.sidebar.SetBorderColor(ui.theme.Border)
	ui.sidebar.SetBackgroundColor(ui.theme.Surface)
	ui.statusBar.SetTextColor(ui.theme.TextPrimary)
	ui.statusBar.SetBackgroundColor(ui.theme.Surface)

	for _, box := range []*tview.Box{
		ui.dashboard.view.Box, ui.chat.transcript.Box, ui.cases.table.Box,
		ui.analysis.result.Box, ui.reports.view.Box, ui.config.form.Box, ui.drafts.result.Box,
	} {
		box.SetBorderColor(ui.theme.Border)
		box.SetBackgroundColor(ui.theme.Surface)
	}
	ui.cases.table.SetSelectedStyle(tcell.StyleDefault.Background(ui.theme.SelectionBg).Foreground(ui.theme.SelectionFg))
}

// cycleTheme moves to the next theme in sequence
func (ui *UI) cycleTheme() {
	next := themeNames[0]
	for i, name := range themeNames {
		if name == ui.themeName {
			next = themeNames[(i+1)%len(themeNames)]
		}
	}
	ui.themeName = next
	ui.theme = themeByName(next)
	ui.applyTheme()
	ui.refreshAll()
	ui.setStatus(ui.theme.TagAccent, "Tema: %s", next)
}
