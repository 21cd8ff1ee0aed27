package state

import (
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"farmacia/client/internal/logging"
	"farmacia/client/internal/notify"
)

// State is a state of the application machine.
type State string

const (
	StateAppStarting    State = "AppStarting"
	StateWaitingLogin   State = "WaitingLogin"
	StateAuthInProgress State = "AuthInProgress"
	StateReady          State = "Ready"
	StateExiting        State = "Exiting"
)

// EventType is the kind of an event in the machine queue.
type EventType string

const (
	EventUILaunch             EventType = "UI_LAUNCH"
	EventUICredentialsChanged EventType = "UI_CREDENTIALS_CHANGED"
	EventUIClickLogin         EventType = "UI_CLICK_LOGIN"
	EventUIForgotPassword     EventType = "UI_FORGOT_PASSWORD"
	EventUIClickLogout        EventType = "UI_CLICK_LOGOUT"
	EventUINavigate           EventType = "UI_NAVIGATE"
	EventUIRefresh            EventType = "UI_REFRESH"
	EventUISave               EventType = "UI_SAVE"
	EventUIDelete             EventType = "UI_DELETE"
	EventUIPrescribe          EventType = "UI_PRESCRIBE"
	EventUIExit               EventType = "UI_EXIT"

	EventSysAuthSuccess     EventType = "SYS_AUTH_SUCCESS"
	EventSysAuthFailure     EventType = "SYS_AUTH_FAILURE"
	EventSysSessionExpired  EventType = "SYS_SESSION_EXPIRED"
	EventSysDataLoaded      EventType = "SYS_DATA_LOADED"
	EventSysDataFailed      EventType = "SYS_DATA_FAILED"
	EventSysMutationDone    EventType = "SYS_MUTATION_DONE"
	EventSysMutationFailure EventType = "SYS_MUTATION_FAILURE"
)

// User-facing messages.
const (
	MsgLoginSuccess     = "Login realizado com sucesso!"
	MsgLoginFailed      = "Não foi possível fazer login. Verifique suas credenciais."
	MsgLogoutSuccess    = "Logout realizado com sucesso!"
	MsgSessionExpired   = "Sua sessão expirou. Faça login novamente."
	MsgMissingLogin     = "Informe email e senha."
	MsgMissingEmail     = "Informe seu email para recuperar a senha."
	MsgLoadFailed       = "Não foi possível carregar os dados."
	MsgSaveFailed       = "Erro ao salvar. Tente novamente."
	MsgDeleteFailed     = "Erro ao excluir."
	MsgSaved            = "Salvo com sucesso!"
	MsgDeleted          = "Excluído com sucesso!"
	statusLoggingIn     = "Entrando..."
	statusWaitingLogin  = "Informe suas credenciais"
	statusLoading       = "Carregando..."
	statusReady         = "Pronto"
	statusSaving        = "Salvando..."
	statusDeleting      = "Excluindo..."
	statusSessionClosed = "Sessão encerrada"
)

// Event is a queued event with an arbitrary payload.
type Event struct {
	Type    EventType
	Payload any
	TS      time.Time
}

// LaunchPayload tells the machine whether a stored session already exists.
type LaunchPayload struct {
	Authenticated bool
	User          *UserProfile
}

// CredentialsPayload carries the login form.
type CredentialsPayload struct {
	Email string
	Senha string
}

// NavigatePayload selects a page.
type NavigatePayload struct {
	Page Page
}

// SavePayload carries a record to create (empty ID) or update.
type SavePayload struct {
	Resource Resource
	Record   any
}

// DeletePayload identifies a record to delete.
type DeletePayload struct {
	Resource Resource
	ID       string
}

// PrescribePayload starts one treatment per medication for a patient.
type PrescribePayload struct {
	PacienteID   string
	Medicamentos []Medicamento
}

// AuthSuccessPayload carries the profile from the login response, if any.
type AuthSuccessPayload struct {
	User *UserProfile
}

// DataLoadedPayload carries a freshly loaded list; Records must be the
// matching slice type ([]Paciente for ResourcePaciente, ...).
type DataLoadedPayload struct {
	Resource Resource
	Records  any
}

// MutationPayload reports a finished save or delete.
type MutationPayload struct {
	Resource Resource
	Message  string
}

// ScenarioResultPayload describes a failed background operation.
type ScenarioResultPayload struct {
	Kind             ErrorKind
	Resource         Resource
	Message          string
	TechnicalMessage string
	// Stale marks a mutation that was partly applied; Resource is reloaded.
	Stale bool
}

// Callbacks are the side effects the machine triggers. Start* callbacks run
// on their own goroutine and report back with Dispatch.
type Callbacks struct {
	StartAuth            func(email, senha string)
	StartRecoverPassword func(email string)
	StartLogout          func()
	StartLoad            func(res Resource)
	StartSave            func(res Resource, record any)
	StartDelete          func(res Resource, id string)
	StartPrescribe       func(p PrescribePayload)
	CleanupAndExit       func(ctx *AppContext)
	ShowLoginWindow      func(ctx *AppContext)
	ShowMainWindow       func(ctx *AppContext)
	UpdateUI             func(ctx *AppContext)
	ShowNotification     func(kind notify.Kind, message string)
}

// Machine owns the event loop and the application state.
type Machine struct {
	ctx       *AppContext
	callbacks Callbacks
	logger    *logging.Logger
	events    chan Event
	priority  chan Event
	done      chan struct{}
	stopped   atomic.Bool
	loopOnce  sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	page      atomic.Value
	state     atomic.Value
}

// ErrMachineStopped is returned by Dispatch after the loop has stopped.
var ErrMachineStopped = errors.New("state machine stopped")

// NewMachine creates a machine in AppStarting.
func NewMachine(ctx *AppContext, logger *logging.Logger, callbacks Callbacks) *Machine {
	m := &Machine{
		ctx:       ctx,
		callbacks: callbacks,
		logger:    logger,
		events:    make(chan Event, 64),
		priority:  make(chan Event, 8),
		done:      make(chan struct{}),
	}
	m.page.Store(ctx.Page)
	m.state.Store(ctx.State)
	return m
}

// Start runs the event loop on its own goroutine.
func (m *Machine) Start() {
	m.loopOnce.Do(func() {
		go m.loopSafely()
	})
}

// Stop ends the event loop.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		m.stopped.Store(true)
		close(m.done)
		close(m.priority)
		close(m.events)
	})
}

// CurrentPage is safe to call from any goroutine.
func (m *Machine) CurrentPage() Page {
	page, _ := m.page.Load().(Page)
	return page
}

// CurrentState is safe to call from any goroutine.
func (m *Machine) CurrentState() State {
	st, _ := m.state.Load().(State)
	return st
}

// WaitAsync waits for background tasks started by the machine.
func (m *Machine) WaitAsync(timeout time.Duration) bool {
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

// Dispatch queues an event.
func (m *Machine) Dispatch(evt Event) error {
	if m.stopped.Load() {
		return ErrMachineStopped
	}
	m.logger.Debugf("event queued: %s", evt.Type)
	ch := m.events
	if m.isPriorityEvent(evt.Type) {
		ch = m.priority
	}
	select {
	case <-m.done:
		return ErrMachineStopped
	default:
	}
	// blocks while the queue is full; a concurrent Stop turns into ErrMachineStopped
	if m.safeSend(ch, evt) {
		return nil
	}
	return ErrMachineStopped
}

func (m *Machine) loop() {
	for {
		if m.stopped.Load() {
			return
		}

		select {
		case evt, ok := <-m.priority:
			if !ok {
				return
			}
			m.handleEvent(evt)
			continue
		default:
		}

		select {
		case evt, ok := <-m.priority:
			if !ok {
				return
			}
			m.handleEvent(evt)
		case evt, ok := <-m.events:
			if !ok {
				return
			}
			m.handleEvent(evt)
		}
	}
}

func (m *Machine) loopSafely() {
	defer m.logPanic("state loop")
	m.loop()
}

func (m *Machine) handleEvent(evt Event) {
	if evt.TS.IsZero() {
		evt.TS = time.Now()
	}
	m.logger.Debugf("event handle: %s state=%s", evt.Type, m.ctx.State)
	if evt.Type == EventUIExit {
		m.transition(StateExiting)
		m.invokeCleanup()
		return
	}
	if evt.Type == EventSysSessionExpired {
		m.handleSessionExpired()
		return
	}

	switch m.ctx.State {
	case StateAppStarting:
		m.handleAppStarting(evt)
	case StateWaitingLogin:
		m.handleWaitingLogin(evt)
	case StateAuthInProgress:
		m.handleAuthInProgress(evt)
	case StateReady:
		m.handleReady(evt)
	case StateExiting:
		// ignored
	default:
		m.logger.Debugf("state machine: unknown state %s", m.ctx.State)
	}
}

func (m *Machine) handleAppStarting(evt Event) {
	switch evt.Type {
	case EventUILaunch:
		payload, _ := evt.Payload.(LaunchPayload)
		if payload.Authenticated {
			m.ctx.User = payload.User
			m.enterReady()
			return
		}
		m.enterWaitingLogin()
	case EventUICredentialsChanged:
		m.applyCredentials(evt)
	default:
		m.logger.Debugf("appStarting: ignored %s", evt.Type)
	}
}

func (m *Machine) handleWaitingLogin(evt Event) {
	switch evt.Type {
	case EventUICredentialsChanged:
		m.applyCredentials(evt)
	case EventUIClickLogin:
		m.applyCredentials(evt)
		if strings.TrimSpace(m.ctx.UI.EmailInput) == "" || m.ctx.UI.SenhaInput == "" {
			m.notify(notify.KindWarning, MsgMissingLogin)
			return
		}
		m.ctx.UI.StatusText = statusLoggingIn
		m.transition(StateAuthInProgress)
		m.invokeAuth()
	case EventUIForgotPassword:
		m.applyCredentials(evt)
		email := strings.TrimSpace(m.ctx.UI.EmailInput)
		if email == "" {
			m.notify(notify.KindWarning, MsgMissingEmail)
			return
		}
		if m.callbacks.StartRecoverPassword != nil {
			m.runAsync(func() { m.callbacks.StartRecoverPassword(email) })
		}
	default:
		m.logger.Debugf("waitingLogin: ignored %s", evt.Type)
	}
}

func (m *Machine) handleAuthInProgress(evt Event) {
	switch evt.Type {
	case EventSysAuthSuccess:
		payload, _ := evt.Payload.(AuthSuccessPayload)
		if payload.User != nil {
			m.ctx.User = payload.User
		}
		m.ctx.LastError = nil
		m.ctx.UI.SenhaInput = ""
		m.enterReady()
		m.notify(notify.KindSuccess, MsgLoginSuccess)
	case EventSysAuthFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.recordError(payload, ErrorKindAuthFailed, MsgLoginFailed, "auth failed")
		m.ctx.UI.StatusText = statusWaitingLogin
		m.transition(StateWaitingLogin)
		m.notify(notify.KindError, m.ctx.LastError.UserMessage)
	default:
		m.logger.Debugf("auth: ignored %s", evt.Type)
	}
}

func (m *Machine) handleReady(evt Event) {
	switch evt.Type {
	case EventUINavigate:
		payload, _ := evt.Payload.(NavigatePayload)
		if !payload.Page.Valid() || payload.Page == PageLogin {
			m.logger.Debugf("ready: ignored navigation to %q", payload.Page)
			return
		}
		m.setPage(payload.Page)
		m.loadPage()
		m.refreshUI()
	case EventUIRefresh:
		m.loadPage()
		m.refreshUI()
	case EventUISave:
		payload, _ := evt.Payload.(SavePayload)
		if !payload.Resource.Valid() || payload.Record == nil {
			m.logger.Debugf("ready: invalid save payload %+v", payload)
			return
		}
		m.ctx.UI.Busy = true
		m.ctx.UI.StatusText = statusSaving
		m.refreshUI()
		if m.callbacks.StartSave != nil {
			m.runAsync(func() { m.callbacks.StartSave(payload.Resource, payload.Record) })
		}
	case EventUIDelete:
		payload, _ := evt.Payload.(DeletePayload)
		if !payload.Resource.Valid() || strings.TrimSpace(payload.ID) == "" {
			m.logger.Debugf("ready: invalid delete payload %+v", payload)
			return
		}
		m.ctx.UI.Busy = true
		m.ctx.UI.StatusText = statusDeleting
		m.refreshUI()
		if m.callbacks.StartDelete != nil {
			m.runAsync(func() { m.callbacks.StartDelete(payload.Resource, payload.ID) })
		}
	case EventUIPrescribe:
		payload, _ := evt.Payload.(PrescribePayload)
		if strings.TrimSpace(payload.PacienteID) == "" || len(payload.Medicamentos) == 0 {
			m.logger.Debugf("ready: invalid prescribe payload %+v", payload)
			return
		}
		m.ctx.UI.Busy = true
		m.ctx.UI.StatusText = statusSaving
		m.refreshUI()
		if m.callbacks.StartPrescribe != nil {
			m.runAsync(func() { m.callbacks.StartPrescribe(payload) })
		}
	case EventSysDataLoaded:
		payload, _ := evt.Payload.(DataLoadedPayload)
		if !m.storeRecords(payload) {
			m.logger.Errorf("ready: unexpected records %T for %s", payload.Records, payload.Resource)
			return
		}
		m.ctx.UI.Busy = false
		m.ctx.UI.StatusText = statusReady
		m.refreshUI()
	case EventSysDataFailed:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.recordError(payload, ErrorKindLoadFailed, MsgLoadFailed, "load failed")
		m.ctx.UI.Busy = false
		m.ctx.UI.StatusText = m.ctx.LastError.UserMessage
		m.refreshUI()
		m.notify(notify.KindError, m.ctx.LastError.UserMessage)
	case EventSysMutationDone:
		payload, _ := evt.Payload.(MutationPayload)
		m.ctx.UI.Busy = false
		m.ctx.UI.StatusText = statusReady
		message := payload.Message
		if message == "" {
			message = MsgSaved
		}
		m.notify(notify.KindSuccess, message)
		if payload.Resource.Valid() {
			m.invokeLoad(payload.Resource)
		}
		m.refreshUI()
	case EventSysMutationFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.recordError(payload, ErrorKindSaveFailed, MsgSaveFailed, "mutation failed")
		m.ctx.UI.Busy = false
		m.ctx.UI.StatusText = statusReady
		if payload.Stale && payload.Resource.Valid() {
			m.invokeLoad(payload.Resource)
		}
		m.refreshUI()
		m.notify(notify.KindError, m.ctx.LastError.UserMessage)
	case EventUIClickLogout:
		if m.callbacks.StartLogout != nil {
			m.runAsync(m.callbacks.StartLogout)
		}
		m.resetSession()
		m.enterWaitingLogin()
		m.notify(notify.KindSuccess, MsgLogoutSuccess)
	default:
		m.logger.Debugf("ready: ignored %s", evt.Type)
	}
}

// handleSessionExpired moves any live state back to the login screen.
func (m *Machine) handleSessionExpired() {
	switch m.ctx.State {
	case StateExiting:
		return
	case StateWaitingLogin:
		m.logger.Debugf("session expired while already waiting for login")
		return
	}
	m.resetSession()
	m.ctx.LastError = &ErrorInfo{
		Kind:             ErrorKindSessionExpired,
		UserMessage:      MsgSessionExpired,
		TechnicalMessage: "backend rejected the session token",
		OccurredAt:       time.Now(),
	}
	m.enterWaitingLogin()
	m.notify(notify.KindWarning, MsgSessionExpired)
}

func (m *Machine) enterReady() {
	m.setPage(PageHome)
	m.ctx.UI.StatusText = statusReady
	m.transition(StateReady)
	m.invokeShowMain()
}

func (m *Machine) enterWaitingLogin() {
	m.setPage(PageLogin)
	m.ctx.UI.StatusText = statusWaitingLogin
	m.transition(StateWaitingLogin)
	m.invokeShowLogin()
}

func (m *Machine) resetSession() {
	m.ctx.User = nil
	m.ctx.Records = Records{}
	m.ctx.UI.SenhaInput = ""
	m.ctx.UI.Busy = false
	m.ctx.UI.StatusText = statusSessionClosed
}

// pageRelations lists the extra lists a page's forms pick from.
var pageRelations = map[Resource][]Resource{
	ResourcePaciente:   {ResourceFarmaceutico},
	ResourceTratamento: {ResourcePaciente, ResourceMedicamento},
}

// loadPage reloads what the current page shows plus the lists its forms
// pick from: pharmacists for patients, patients and medications for
// treatments.
func (m *Machine) loadPage() {
	res, ok := ResourceForPage(m.ctx.Page)
	if !ok {
		return
	}
	m.invokeLoad(res)
	for _, related := range pageRelations[res] {
		m.invokeLoad(related)
	}
}

func (m *Machine) storeRecords(payload DataLoadedPayload) bool {
	switch payload.Resource {
	case ResourcePaciente:
		records, ok := payload.Records.([]Paciente)
		if ok {
			m.ctx.Records.Pacientes = records
		}
		return ok
	case ResourceMedicamento:
		records, ok := payload.Records.([]Medicamento)
		if ok {
			m.ctx.Records.Medicamentos = records
		}
		return ok
	case ResourceFarmaceutico:
		records, ok := payload.Records.([]Farmaceutico)
		if ok {
			m.ctx.Records.Farmaceuticos = records
		}
		return ok
	case ResourceTratamento:
		records, ok := payload.Records.([]Tratamento)
		if ok {
			m.ctx.Records.Tratamentos = records
		}
		return ok
	}
	return false
}

func (m *Machine) recordError(payload ScenarioResultPayload, kind ErrorKind, message, technical string) {
	if payload.Kind != "" {
		kind = payload.Kind
	}
	if strings.TrimSpace(payload.Message) != "" {
		message = payload.Message
	}
	if payload.TechnicalMessage != "" {
		technical = payload.TechnicalMessage
	}
	m.ctx.LastError = &ErrorInfo{
		Kind:             kind,
		UserMessage:      message,
		TechnicalMessage: technical,
		OccurredAt:       time.Now(),
	}
	m.logger.Warnf("%s: %s (%s)", kind, message, technical)
}

func (m *Machine) applyCredentials(evt Event) {
	if payload, ok := evt.Payload.(CredentialsPayload); ok {
		m.ctx.UI.EmailInput = payload.Email
		m.ctx.UI.SenhaInput = payload.Senha
	}
}

func (m *Machine) setPage(p Page) {
	m.ctx.Page = p
	m.page.Store(p)
}

func (m *Machine) transition(next State) {
	if m.ctx.State == next {
		return
	}
	prev := m.ctx.State
	m.ctx.State = next
	m.state.Store(next)
	m.logger.Debugf("state transition %s → %s", prev, next)
	m.updateUIForState(next)
}

func (m *Machine) updateUIForState(state State) {
	m.ctx.UI.CanLogin = false
	switch state {
	case StateWaitingLogin:
		m.ctx.UI.IsLoginVisible = true
		m.ctx.UI.IsMainVisible = false
		m.ctx.UI.CanLogin = true
		m.ctx.UI.Busy = false
	case StateAuthInProgress:
		m.ctx.UI.Busy = true
	case StateReady:
		m.ctx.UI.IsLoginVisible = false
		m.ctx.UI.IsMainVisible = true
		m.ctx.UI.Busy = false
	case StateExiting:
		m.ctx.UI.IsLoginVisible = false
		m.ctx.UI.IsMainVisible = false
	}
	m.refreshUI()
}

func (m *Machine) invokeAuth() {
	if m.callbacks.StartAuth != nil {
		email := strings.TrimSpace(m.ctx.UI.EmailInput)
		senha := m.ctx.UI.SenhaInput
		m.runAsync(func() { m.callbacks.StartAuth(email, senha) })
	}
}

func (m *Machine) invokeLoad(res Resource) {
	m.ctx.UI.Busy = true
	m.ctx.UI.StatusText = statusLoading
	if m.callbacks.StartLoad != nil {
		m.runAsync(func() { m.callbacks.StartLoad(res) })
	}
}

func (m *Machine) runAsync(fn func()) {
	if fn == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.logPanic("async task")
		fn()
	}()
}

func (m *Machine) logPanic(scope string) {
	if r := recover(); r != nil {
		m.logger.Errorf("panic in %s: %v\n%s", scope, r, debug.Stack())
		panic(r)
	}
}

func (m *Machine) invokeCleanup() {
	if m.callbacks.CleanupAndExit != nil {
		m.callbacks.CleanupAndExit(m.ctx)
		return
	}
	if !m.stopped.Load() {
		m.Stop()
	}
}

func (m *Machine) invokeShowLogin() {
	if m.callbacks.ShowLoginWindow != nil {
		m.callbacks.ShowLoginWindow(m.ctx)
	}
}

func (m *Machine) invokeShowMain() {
	if m.callbacks.ShowMainWindow != nil {
		m.callbacks.ShowMainWindow(m.ctx)
	}
}

func (m *Machine) notify(kind notify.Kind, message string) {
	if m.callbacks.ShowNotification != nil {
		m.callbacks.ShowNotification(kind, message)
		return
	}
	m.logger.Infof("notice (%s): %s", kind, message)
}

func (m *Machine) refreshUI() {
	if m.callbacks.UpdateUI != nil {
		m.callbacks.UpdateUI(m.ctx)
	}
}

func (m *Machine) isPriorityEvent(t EventType) bool {
	return t == EventUIExit || t == EventSysSessionExpired
}

func (m *Machine) safeSend(ch chan Event, evt Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	ch <- evt
	return true
}
