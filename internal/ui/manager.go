package ui

import (
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"farmacia/client/internal/logging"
	"farmacia/client/internal/notify"
	"farmacia/client/internal/state"
	"farmacia/client/internal/ui/present"
)

// Options configures the UI Manager.
type Options struct {
	AppID    string
	AppName  string
	Logger   *logging.Logger
	Dispatch func(state.Event) error
	// Notices feeds the notification banner of both windows.
	Notices *notify.Broadcaster
}

// Manager owns the Fyne windows and forwards user actions to the state machine.
type Manager struct {
	app                fyne.App
	appName            string
	logger             *logging.Logger
	dispatch           func(state.Event) error
	notices            *notify.Broadcaster
	unsubscribe        func()
	loginWin           fyne.Window
	mainWin            fyne.Window
	loginWinVisible    bool
	mainWinVisible     bool
	emailEntry         *widget.Entry
	senhaEntry         *widget.Entry
	loginStatus        *widget.Label
	loginBtn           *widget.Button
	forgotBtn          *widget.Button
	loginBanner        *banner
	mainBanner         *banner
	mainStatus         *widget.Label
	userLabel          *widget.Label
	pageLabel          *widget.Label
	homeLabel          *widget.Label
	spinner            *widget.ProgressBarInfinite
	searchEntry        *widget.Entry
	list               *widget.List
	listArea           *fyne.Container
	homeArea           *fyne.Container
	newBtn             *widget.Button
	editBtn            *widget.Button
	deleteBtn          *widget.Button
	refreshBtn         *widget.Button
	navButtons         map[state.Page]*widget.Button
	snap               uiSnapshot
	rows               []present.Row
	selected           int
	suppressCredEvents bool
	updateCh           chan uiSnapshot
	stopCh             chan struct{}
	runOnce            sync.Once
	shutdownOnce       sync.Once
	wg                 sync.WaitGroup
}

// uiSnapshot carries the UI slice of the machine state to the Fyne goroutine.
type uiSnapshot struct {
	LoginVisible bool
	MainVisible  bool
	StatusText   string
	CanLogin     bool
	Busy         bool
	EmailInput   string
	SenhaInput   string
	Page         state.Page
	User         *state.UserProfile
	Records      state.Records
}

// NewManager creates the Fyne app and both windows.
func NewManager(opts Options) *Manager {
	appID := strings.TrimSpace(opts.AppID)
	if appID == "" {
		appID = "farmacia.client"
	}
	name := strings.TrimSpace(opts.AppName)
	if name == "" {
		name = "Farmácia"
	}
	fyneApp := fyneapp.NewWithID(appID)
	fyneApp.Settings().SetTheme(newClinicTheme())
	m := &Manager{
		app:        fyneApp,
		appName:    name,
		logger:     opts.Logger,
		dispatch:   opts.Dispatch,
		notices:    opts.Notices,
		navButtons: make(map[state.Page]*widget.Button),
		selected:   -1,
		updateCh:   make(chan uiSnapshot, 16),
		stopCh:     make(chan struct{}),
	}
	m.buildLoginWindow()
	m.buildMainWindow()
	if m.notices != nil {
		m.unsubscribe = m.notices.Subscribe(m.onNotification)
	}
	return m
}

// Start runs the snapshot consumer.
func (m *Manager) Start() {
	m.runOnce.Do(func() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.processUpdates()
		}()
	})
}

// RunMainLoop blocks until the Fyne loop ends.
func (m *Manager) RunMainLoop() {
	if m.app == nil {
		return
	}
	m.app.Run()
}

// Shutdown stops updates and closes the Fyne app.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.stopCh)
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		// the Fyne loop may already be gone, so never wait here
		fyne.Do(func() {
			if m.mainWin != nil {
				m.mainWin.Close()
			}
			if m.loginWin != nil {
				m.loginWin.Close()
			}
			m.mainWinVisible = false
			m.loginWinVisible = false
			if m.app != nil {
				m.app.Quit()
			}
		})
	})
}

// Quit ends the Fyne main loop.
func (m *Manager) Quit() {
	if m.app == nil {
		return
	}
	fyne.Do(func() {
		if m.app != nil {
			m.app.Quit()
		}
	})
}

// WaitAsync waits for the background UI goroutines.
func (m *Manager) WaitAsync(timeout time.Duration) bool {
	if m == nil {
		return true
	}
	if timeout <= 0 {
		m.wg.Wait()
		return true
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ShowLoginWindow shows the login window and hides the main one.
func (m *Manager) ShowLoginWindow(_ *state.AppContext) {
	m.callOnUI(func() {
		if m.mainWin != nil {
			m.mainWin.Hide()
			m.mainWinVisible = false
		}
		if m.loginWin != nil {
			wasVisible := m.loginWinVisible
			if !wasVisible {
				m.loginWin.Show()
			}
			if !wasVisible && m.emailEntry != nil {
				if canvas := m.loginWin.Canvas(); canvas != nil {
					canvas.Focus(m.emailEntry)
				}
			}
			m.loginWinVisible = true
		}
	})
}

// ShowMainWindow shows the main window and hides the login one.
func (m *Manager) ShowMainWindow(_ *state.AppContext) {
	m.callOnUI(func() {
		if m.loginWin != nil {
			m.loginWin.Hide()
			m.loginWinVisible = false
		}
		if m.mainWin != nil {
			m.mainWin.Show()
			m.mainWin.RequestFocus()
			m.mainWinVisible = true
		}
	})
}

// UpdateUI hands a snapshot of ctx to the Fyne goroutine. It runs on the
// machine loop, which owns ctx; record slices are replaced, never mutated, so
// sharing them is safe.
func (m *Manager) UpdateUI(ctx *state.AppContext) {
	if ctx == nil {
		return
	}
	snap := uiSnapshot{
		LoginVisible: ctx.UI.IsLoginVisible,
		MainVisible:  ctx.UI.IsMainVisible,
		StatusText:   ctx.UI.StatusText,
		CanLogin:     ctx.UI.CanLogin,
		Busy:         ctx.UI.Busy,
		EmailInput:   ctx.UI.EmailInput,
		SenhaInput:   ctx.UI.SenhaInput,
		Page:         ctx.Page,
		Records:      ctx.Records,
	}
	if ctx.User != nil {
		user := *ctx.User
		snap.User = &user
	}
	select {
	case <-m.stopCh:
		return
	case m.updateCh <- snap:
	default:
		select {
		case <-m.updateCh:
		default:
		}
		m.updateCh <- snap
	}
}

func (m *Manager) processUpdates() {
	for {
		select {
		case <-m.stopCh:
			return
		case snap := <-m.updateCh:
			m.applySnapshot(snap)
		}
	}
}

func (m *Manager) applySnapshot(snap uiSnapshot) {
	m.callOnUI(func() {
		pageChanged := snap.Page != m.snap.Page
		m.snap = snap
		m.updateLoginControls(snap)
		m.updateCredentials(snap.EmailInput, snap.SenhaInput)
		if m.mainStatus != nil {
			m.mainStatus.SetText(snap.StatusText)
		}
		if m.userLabel != nil {
			m.userLabel.SetText(present.UserCaption(snap.User))
		}
		if pageChanged && m.searchEntry != nil {
			m.searchEntry.SetText("")
		}
		m.updatePage(snap)
		m.updateButtons(snap)
	})
}

// onNotification runs on whatever goroutine changed the broadcaster,
// possibly the Fyne one, so it must not wait.
func (m *Manager) onNotification(n notify.Notification) {
	fyne.Do(func() {
		if m.loginBanner != nil {
			m.loginBanner.render(n)
		}
		if m.mainBanner != nil {
			m.mainBanner.render(n)
		}
	})
}

func (m *Manager) dismissNotification() {
	if m.notices == nil {
		return
	}
	if err := m.notices.Hide(); err != nil {
		m.logger.Debugf("hide notification: %v", err)
	}
}

func (m *Manager) updateCredentials(email, senha string) {
	if m.emailEntry == nil || m.senhaEntry == nil {
		return
	}
	m.suppressCredEvents = true
	if m.emailEntry.Text != email {
		m.emailEntry.SetText(email)
	}
	if m.senhaEntry.Text != senha {
		m.senhaEntry.SetText(senha)
	}
	m.suppressCredEvents = false
}

func (m *Manager) updateLoginControls(snap uiSnapshot) {
	if m.loginStatus != nil {
		m.loginStatus.SetText(snap.StatusText)
	}
	for _, btn := range []*widget.Button{m.loginBtn, m.forgotBtn} {
		if btn == nil {
			continue
		}
		if snap.CanLogin {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
}

func (m *Manager) updatePage(snap uiSnapshot) {
	if m.pageLabel != nil {
		m.pageLabel.SetText(present.PageTitle(snap.Page))
	}
	for page, btn := range m.navButtons {
		if page == snap.Page {
			btn.Importance = widget.HighImportance
		} else {
			btn.Importance = widget.MediumImportance
		}
		btn.Refresh()
	}
	_, isResource := state.ResourceForPage(snap.Page)
	if m.homeArea != nil && m.listArea != nil {
		if isResource {
			m.homeArea.Hide()
			m.listArea.Show()
		} else {
			m.homeLabel.SetText(present.HomeSummary(snap.User, &snap.Records))
			m.listArea.Hide()
			m.homeArea.Show()
		}
	}
	m.refreshRows()
	if m.spinner != nil {
		if snap.Busy {
			m.spinner.Show()
			m.spinner.Start()
		} else {
			m.spinner.Stop()
			m.spinner.Hide()
		}
	}
}

func (m *Manager) refreshRows() {
	res, ok := state.ResourceForPage(m.snap.Page)
	if !ok {
		m.rows = nil
	} else {
		query := ""
		if m.searchEntry != nil {
			query = m.searchEntry.Text
		}
		m.rows = present.RowsFor(&m.snap.Records, res, query)
	}
	m.selected = -1
	if m.list != nil {
		m.list.UnselectAll()
		m.list.Refresh()
	}
	m.updateButtons(m.snap)
}

func (m *Manager) updateButtons(snap uiSnapshot) {
	_, isResource := state.ResourceForPage(snap.Page)
	canEdit := snap.MainVisible && isResource && !snap.Busy
	hasSelection := m.selected >= 0 && m.selected < len(m.rows)
	setEnabled(m.newBtn, canEdit)
	setEnabled(m.refreshBtn, snap.MainVisible && isResource)
	setEnabled(m.editBtn, canEdit && hasSelection)
	setEnabled(m.deleteBtn, canEdit && hasSelection)
}

func setEnabled(btn *widget.Button, enabled bool) {
	if btn == nil {
		return
	}
	if enabled {
		btn.Enable()
	} else {
		btn.Disable()
	}
}

func (m *Manager) buildLoginWindow() {
	if m.app == nil {
		return
	}
	win := m.app.NewWindow(m.appName + " | Entrar")
	win.Resize(fyne.NewSize(460, 520))
	win.CenterOnScreen()
	win.SetFixedSize(true)

	title := widget.NewLabelWithStyle(m.appName, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	subtitle := widget.NewLabel("Acesse sua conta")

	m.emailEntry = widget.NewEntry()
	m.emailEntry.SetPlaceHolder("seu@email.com")
	m.emailEntry.OnChanged = func(string) { m.handleCredentialsEdited() }
	m.emailEntry.OnSubmitted = func(string) { m.handleLoginClicked() }

	m.senhaEntry = widget.NewPasswordEntry()
	m.senhaEntry.SetPlaceHolder("Senha")
	m.senhaEntry.OnChanged = func(string) { m.handleCredentialsEdited() }
	m.senhaEntry.OnSubmitted = func(string) { m.handleLoginClicked() }

	m.loginBtn = widget.NewButton("Entrar", m.handleLoginClicked)
	m.loginBtn.Importance = widget.HighImportance
	m.loginBtn.Disable()
	m.forgotBtn = widget.NewButton("Esqueci minha senha", m.handleForgotPassword)
	m.forgotBtn.Importance = widget.LowImportance

	m.loginStatus = widget.NewLabel("")
	m.loginStatus.Wrapping = fyne.TextWrapWord
	m.loginBanner = newBanner(m.dismissNotification)

	fields := container.NewVBox(
		widget.NewLabelWithStyle("Email", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		m.emailEntry,
		widget.NewLabelWithStyle("Senha", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		m.senhaEntry,
	)
	header := container.NewVBox(title, subtitle, m.loginBanner.object())
	form := container.NewVBox(fields, m.loginBtn, m.forgotBtn, layout.NewSpacer())
	statusArea := container.NewVBox(widget.NewSeparator(), m.loginStatus)
	win.SetContent(container.NewPadded(container.NewBorder(header, statusArea, nil, nil, form)))
	win.SetCloseIntercept(m.handleExitRequested)
	win.Show()
	m.loginWin = win
	m.loginWinVisible = true
}

func (m *Manager) buildMainWindow() {
	if m.app == nil {
		return
	}
	win := m.app.NewWindow(m.appName)
	win.Resize(fyne.NewSize(1000, 640))

	nav := container.NewVBox()
	for _, page := range []state.Page{state.PageHome, state.PagePaciente, state.PageMedicamento, state.PageFarmaceutico, state.PageTratamento} {
		target := page
		btn := widget.NewButton(present.PageTitle(page), func() { m.handleNavigate(target) })
		m.navButtons[page] = btn
		nav.Add(btn)
	}
	nav.Add(layout.NewSpacer())
	nav.Add(widget.NewButton("Sair", func() { m.sendSimpleEvent(state.EventUIClickLogout) }))

	m.pageLabel = widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	m.userLabel = widget.NewLabel("")
	m.spinner = widget.NewProgressBarInfinite()
	m.spinner.Hide()
	m.mainBanner = newBanner(m.dismissNotification)

	m.searchEntry = widget.NewEntry()
	m.searchEntry.SetPlaceHolder("Buscar...")
	m.searchEntry.OnChanged = func(string) { m.refreshRows() }
	m.newBtn = widget.NewButton("Novo", func() { m.openForm(nil) })
	m.newBtn.Importance = widget.HighImportance
	m.editBtn = widget.NewButton("Editar", m.handleEdit)
	m.deleteBtn = widget.NewButton("Excluir", m.handleDelete)
	m.deleteBtn.Importance = widget.DangerImportance
	m.refreshBtn = widget.NewButton("Atualizar", func() { m.sendSimpleEvent(state.EventUIRefresh) })

	m.list = widget.NewList(
		func() int { return len(m.rows) },
		func() fyne.CanvasObject {
			title := widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
			detail := widget.NewLabel("")
			detail.Truncation = fyne.TextTruncateEllipsis
			return container.NewVBox(title, detail)
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			box := obj.(*fyne.Container)
			title := box.Objects[0].(*widget.Label)
			detail := box.Objects[1].(*widget.Label)
			if id < 0 || id >= len(m.rows) {
				title.SetText("-")
				detail.SetText("")
				return
			}
			title.SetText(m.rows[id].Title)
			detail.SetText(m.rows[id].Detail)
		},
	)
	m.list.OnSelected = func(id widget.ListItemID) {
		m.selected = id
		m.updateButtons(m.snap)
	}
	m.list.OnUnselected = func(widget.ListItemID) {
		m.selected = -1
		m.updateButtons(m.snap)
	}

	toolbar := container.NewBorder(nil, nil, nil,
		container.NewHBox(m.newBtn, m.editBtn, m.deleteBtn, m.refreshBtn),
		m.searchEntry)
	m.listArea = container.NewBorder(toolbar, nil, nil, nil, m.list)
	m.homeLabel = widget.NewLabel("")
	m.homeLabel.Wrapping = fyne.TextWrapWord
	m.homeArea = container.NewVBox(m.homeLabel)
	m.listArea.Hide()

	header := container.NewVBox(
		container.NewHBox(m.pageLabel, layout.NewSpacer(), m.userLabel),
		m.mainBanner.object(),
	)
	m.mainStatus = widget.NewLabel("")
	statusBar := container.NewHBox(widget.NewLabel("Status:"), m.mainStatus, layout.NewSpacer(), m.spinner)
	body := container.NewStack(m.homeArea, m.listArea)
	content := container.NewBorder(header, statusBar, nil, nil, body)
	split := container.NewHSplit(container.NewPadded(nav), content)
	split.SetOffset(0.18)
	win.SetContent(container.NewPadded(split))
	win.SetCloseIntercept(m.handleExitRequested)
	win.Hide()
	m.mainWin = win
}

func (m *Manager) handleLoginClicked() {
	m.dispatchEvent(state.Event{Type: state.EventUIClickLogin, Payload: m.credentials(), TS: time.Now()})
}

func (m *Manager) handleForgotPassword() {
	m.dispatchEvent(state.Event{Type: state.EventUIForgotPassword, Payload: m.credentials(), TS: time.Now()})
}

func (m *Manager) handleCredentialsEdited() {
	if m.suppressCredEvents {
		return
	}
	m.dispatchEvent(state.Event{Type: state.EventUICredentialsChanged, Payload: m.credentials(), TS: time.Now()})
}

func (m *Manager) credentials() state.CredentialsPayload {
	if m.emailEntry == nil || m.senhaEntry == nil {
		return state.CredentialsPayload{}
	}
	return state.CredentialsPayload{Email: m.emailEntry.Text, Senha: m.senhaEntry.Text}
}

func (m *Manager) handleNavigate(page state.Page) {
	m.dispatchEvent(state.Event{Type: state.EventUINavigate, Payload: state.NavigatePayload{Page: page}, TS: time.Now()})
}

func (m *Manager) handleEdit() {
	if r, ok := m.selectedRow(); ok {
		m.openForm(r.Record)
	}
}

func (m *Manager) handleExitRequested() {
	m.sendSimpleEvent(state.EventUIExit)
}

func (m *Manager) selectedRow() (present.Row, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return present.Row{}, false
	}
	return m.rows[m.selected], true
}

func (m *Manager) sendSimpleEvent(t state.EventType) {
	m.dispatchEvent(state.Event{Type: t, TS: time.Now()})
}

func (m *Manager) dispatchEvent(evt state.Event) {
	if m.dispatch == nil {
		return
	}
	if err := m.dispatch(evt); err != nil {
		m.logger.Errorf("ui dispatch %s failed: %v", evt.Type, err)
	}
}

func (m *Manager) activeWindow() fyne.Window {
	if m.loginWinVisible && m.loginWin != nil {
		return m.loginWin
	}
	if m.mainWinVisible && m.mainWin != nil {
		return m.mainWin
	}
	if m.loginWin != nil {
		return m.loginWin
	}
	return m.mainWin
}

func (m *Manager) callOnUI(fn func()) {
	if m.app == nil || fn == nil {
		return
	}
	fyne.DoAndWait(fn)
}
