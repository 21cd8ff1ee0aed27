package state

import (
	"sync"
	"testing"
	"time"

	"farmacia/client/internal/notify"
)

type notice struct {
	kind    notify.Kind
	message string
}

type recorder struct {
	mu      sync.Mutex
	auths   []CredentialsPayload
	loads   []Resource
	saves   []SavePayload
	deletes []DeletePayload
	rx      []PrescribePayload
	recover []string
	logouts int
	logins  int
	mains   int
	notices []notice
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		StartAuth: func(email, senha string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.auths = append(r.auths, CredentialsPayload{Email: email, Senha: senha})
		},
		StartRecoverPassword: func(email string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.recover = append(r.recover, email)
		},
		StartLogout: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.logouts++
		},
		StartLoad: func(res Resource) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.loads = append(r.loads, res)
		},
		StartSave: func(res Resource, record any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.saves = append(r.saves, SavePayload{Resource: res, Record: record})
		},
		StartDelete: func(res Resource, id string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.deletes = append(r.deletes, DeletePayload{Resource: res, ID: id})
		},
		StartPrescribe: func(p PrescribePayload) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.rx = append(r.rx, p)
		},
		ShowLoginWindow: func(*AppContext) { r.logins++ },
		ShowMainWindow:  func(*AppContext) { r.mains++ },
		ShowNotification: func(kind notify.Kind, message string) {
			r.notices = append(r.notices, notice{kind, message})
		},
	}
}

func (r *recorder) lastNotice(t *testing.T) notice {
	t.Helper()
	if len(r.notices) == 0 {
		t.Fatal("no notification shown")
	}
	return r.notices[len(r.notices)-1]
}

func newTestMachine() (*Machine, *recorder) {
	rec := &recorder{}
	m := NewMachine(NewAppContext(nil), nil, rec.callbacks())
	return m, rec
}

func (m *Machine) handleSync(t *testing.T, evt Event) {
	t.Helper()
	m.handleEvent(evt)
	if !m.WaitAsync(time.Second) {
		t.Fatal("async callbacks did not finish")
	}
}

func loggedIn(t *testing.T) (*Machine, *recorder) {
	m, rec := newTestMachine()
	m.handleSync(t, Event{Type: EventUILaunch, Payload: LaunchPayload{Authenticated: true}})
	if m.ctx.State != StateReady {
		t.Fatalf("state = %s", m.ctx.State)
	}
	return m, rec
}

func TestLaunchWithoutSessionShowsLogin(t *testing.T) {
	m, rec := newTestMachine()
	m.handleSync(t, Event{Type: EventUILaunch})
	if m.CurrentState() != StateWaitingLogin || m.CurrentPage() != PageLogin {
		t.Fatalf("state=%s page=%s", m.CurrentState(), m.CurrentPage())
	}
	if rec.logins != 1 || !m.ctx.UI.IsLoginVisible || !m.ctx.UI.CanLogin {
		t.Fatalf("login window not shown: %+v", m.ctx.UI)
	}
}

func TestLaunchWithSessionGoesHome(t *testing.T) {
	m, rec := newTestMachine()
	user := &UserProfile{Email: "ana@clinica.com", Nome: "Ana"}
	m.handleSync(t, Event{Type: EventUILaunch, Payload: LaunchPayload{Authenticated: true, User: user}})
	if m.CurrentState() != StateReady || m.CurrentPage() != PageHome {
		t.Fatalf("state=%s page=%s", m.CurrentState(), m.CurrentPage())
	}
	if rec.mains != 1 || m.ctx.User != user {
		t.Fatal("main window or user missing")
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	m, rec := newTestMachine()
	m.handleSync(t, Event{Type: EventUILaunch})
	m.handleSync(t, Event{Type: EventUIClickLogin, Payload: CredentialsPayload{Email: " ", Senha: ""}})
	if m.ctx.State != StateWaitingLogin || len(rec.auths) != 0 {
		t.Fatalf("login started without credentials")
	}
	if n := rec.lastNotice(t); n.kind != notify.KindWarning || n.message != MsgMissingLogin {
		t.Fatalf("notice = %+v", n)
	}
}

func TestLoginSuccess(t *testing.T) {
	m, rec := newTestMachine()
	m.handleSync(t, Event{Type: EventUILaunch})
	m.handleSync(t, Event{Type: EventUIClickLogin, Payload: CredentialsPayload{Email: " ana@clinica.com ", Senha: "123"}})
	if m.ctx.State != StateAuthInProgress {
		t.Fatalf("state = %s", m.ctx.State)
	}
	if len(rec.auths) != 1 || rec.auths[0].Email != "ana@clinica.com" || rec.auths[0].Senha != "123" {
		t.Fatalf("auth calls = %+v", rec.auths)
	}
	m.handleSync(t, Event{Type: EventSysAuthSuccess, Payload: AuthSuccessPayload{User: &UserProfile{Nome: "Ana"}}})
	if m.ctx.State != StateReady || m.ctx.Page != PageHome {
		t.Fatalf("state=%s page=%s", m.ctx.State, m.ctx.Page)
	}
	if m.ctx.UI.SenhaInput != "" {
		t.Fatal("password kept after login")
	}
	if n := rec.lastNotice(t); n.kind != notify.KindSuccess || n.message != MsgLoginSuccess {
		t.Fatalf("notice = %+v", n)
	}
}

func TestLoginFailureUsesServerMessage(t *testing.T) {
	m, rec := newTestMachine()
	m.handleSync(t, Event{Type: EventUILaunch})
	m.handleSync(t, Event{Type: EventUIClickLogin, Payload: CredentialsPayload{Email: "a@b.c", Senha: "x"}})
	m.handleSync(t, Event{Type: EventSysAuthFailure, Payload: ScenarioResultPayload{Message: "Senha incorreta"}})
	if m.ctx.State != StateWaitingLogin {
		t.Fatalf("state = %s", m.ctx.State)
	}
	if n := rec.lastNotice(t); n.kind != notify.KindError || n.message != "Senha incorreta" {
		t.Fatalf("notice = %+v", n)
	}

	m.handleSync(t, Event{Type: EventUIClickLogin, Payload: CredentialsPayload{Email: "a@b.c", Senha: "x"}})
	m.handleSync(t, Event{Type: EventSysAuthFailure})
	if n := rec.lastNotice(t); n.message != MsgLoginFailed {
		t.Fatalf("fallback notice = %+v", n)
	}
	if m.ctx.LastError == nil || m.ctx.LastError.Kind != ErrorKindAuthFailed {
		t.Fatalf("last error = %+v", m.ctx.LastError)
	}
}

func TestForgotPassword(t *testing.T) {
	m, rec := newTestMachine()
	m.handleSync(t, Event{Type: EventUILaunch})
	m.handleSync(t, Event{Type: EventUIForgotPassword})
	if len(rec.recover) != 0 || rec.lastNotice(t).message != MsgMissingEmail {
		t.Fatal("recovery started without email")
	}
	m.handleSync(t, Event{Type: EventUIForgotPassword, Payload: CredentialsPayload{Email: "ana@clinica.com"}})
	if len(rec.recover) != 1 || rec.recover[0] != "ana@clinica.com" {
		t.Fatalf("recover calls = %v", rec.recover)
	}
}

func TestNavigateLoadsPage(t *testing.T) {
	m, rec := loggedIn(t)
	m.handleSync(t, Event{Type: EventUINavigate, Payload: NavigatePayload{Page: PageTratamento}})
	if m.CurrentPage() != PageTratamento {
		t.Fatalf("page = %s", m.CurrentPage())
	}
	if len(rec.loads) != 3 {
		t.Fatalf("loads = %v", rec.loads)
	}
	seen := map[Resource]bool{}
	for _, res := range rec.loads {
		seen[res] = true
	}
	if !seen[ResourceTratamento] || !seen[ResourcePaciente] || !seen[ResourceMedicamento] {
		t.Fatalf("loads = %v", rec.loads)
	}

	m.handleSync(t, Event{Type: EventUINavigate, Payload: NavigatePayload{Page: Page("/desconhecida")}})
	if m.CurrentPage() != PageTratamento {
		t.Fatal("unknown page accepted")
	}
}

func TestDataLoadedStoresRecords(t *testing.T) {
	m, _ := loggedIn(t)
	m.handleSync(t, Event{Type: EventUINavigate, Payload: NavigatePayload{Page: PageMedicamento}})
	records := []Medicamento{{ID: "1", Nome: "DIPIRONA"}}
	m.handleSync(t, Event{Type: EventSysDataLoaded, Payload: DataLoadedPayload{Resource: ResourceMedicamento, Records: records}})
	if m.ctx.Records.Count(ResourceMedicamento) != 1 || m.ctx.UI.Busy {
		t.Fatalf("records not stored: %+v busy=%v", m.ctx.Records, m.ctx.UI.Busy)
	}
	// mismatched slice type is rejected
	m.handleSync(t, Event{Type: EventSysDataLoaded, Payload: DataLoadedPayload{Resource: ResourceMedicamento, Records: []Paciente{}}})
	if m.ctx.Records.Count(ResourceMedicamento) != 1 {
		t.Fatal("mismatched records replaced the list")
	}
}

func TestSaveAndDelete(t *testing.T) {
	m, rec := loggedIn(t)
	draft := Paciente{NomeCompleto: "Ana Souza", CPF: "123"}
	m.handleSync(t, Event{Type: EventUISave, Payload: SavePayload{Resource: ResourcePaciente, Record: draft}})
	if len(rec.saves) != 1 || rec.saves[0].Record.(Paciente).CPF != "123" {
		t.Fatalf("saves = %+v", rec.saves)
	}
	m.handleSync(t, Event{Type: EventSysMutationDone, Payload: MutationPayload{Resource: ResourcePaciente, Message: "Adicionado com sucesso!"}})
	if n := rec.lastNotice(t); n.kind != notify.KindSuccess || n.message != "Adicionado com sucesso!" {
		t.Fatalf("notice = %+v", n)
	}
	if len(rec.loads) != 1 || rec.loads[0] != ResourcePaciente {
		t.Fatalf("list not reloaded: %v", rec.loads)
	}

	m.handleSync(t, Event{Type: EventUIDelete, Payload: DeletePayload{Resource: ResourcePaciente, ID: ""}})
	if len(rec.deletes) != 0 {
		t.Fatal("delete without id dispatched")
	}
	m.handleSync(t, Event{Type: EventUIDelete, Payload: DeletePayload{Resource: ResourcePaciente, ID: "7"}})
	if len(rec.deletes) != 1 || rec.deletes[0].ID != "7" {
		t.Fatalf("deletes = %+v", rec.deletes)
	}
	m.handleSync(t, Event{Type: EventSysMutationFailure, Payload: ScenarioResultPayload{Kind: ErrorKindDeleteFailed, Message: MsgDeleteFailed}})
	if n := rec.lastNotice(t); n.kind != notify.KindError || n.message != MsgDeleteFailed {
		t.Fatalf("notice = %+v", n)
	}
	if m.ctx.UI.Busy {
		t.Fatal("still busy after failure")
	}
}

func TestPacientePageLoadsFarmaceuticos(t *testing.T) {
	m, rec := loggedIn(t)
	m.handleSync(t, Event{Type: EventUINavigate, Payload: NavigatePayload{Page: PagePaciente}})
	seen := map[Resource]bool{}
	for _, res := range rec.loads {
		seen[res] = true
	}
	if len(rec.loads) != 2 || !seen[ResourcePaciente] || !seen[ResourceFarmaceutico] {
		t.Fatalf("loads = %v", rec.loads)
	}
}

func TestPrescribe(t *testing.T) {
	m, rec := loggedIn(t)
	m.handleSync(t, Event{Type: EventUIPrescribe, Payload: PrescribePayload{PacienteID: "2"}})
	if len(rec.rx) != 0 || m.ctx.UI.Busy {
		t.Fatal("prescription without medications dispatched")
	}
	meds := []Medicamento{{ID: "5", Nome: "DIPIRONA"}, {ID: "6", Nome: "Amoxicilina"}}
	m.handleSync(t, Event{Type: EventUIPrescribe, Payload: PrescribePayload{PacienteID: "2", Medicamentos: meds}})
	if len(rec.rx) != 1 || rec.rx[0].PacienteID != "2" || len(rec.rx[0].Medicamentos) != 2 {
		t.Fatalf("prescriptions = %+v", rec.rx)
	}
	if !m.ctx.UI.Busy {
		t.Fatal("not busy while prescribing")
	}

	m.handleSync(t, Event{Type: EventSysMutationFailure, Payload: ScenarioResultPayload{
		Kind: ErrorKindSaveFailed, Resource: ResourceTratamento, Message: "Erro ao salvar alguns tratamentos.", Stale: true,
	}})
	if n := rec.lastNotice(t); n.kind != notify.KindError || n.message != "Erro ao salvar alguns tratamentos." {
		t.Fatalf("notice = %+v", n)
	}
	if len(rec.loads) != 1 || rec.loads[0] != ResourceTratamento {
		t.Fatalf("partial batch not reloaded: %v", rec.loads)
	}
}

func TestLogout(t *testing.T) {
	m, rec := loggedIn(t)
	m.ctx.Records.Pacientes = []Paciente{{ID: "1"}}
	m.handleSync(t, Event{Type: EventUIClickLogout})
	if m.ctx.State != StateWaitingLogin || m.CurrentPage() != PageLogin {
		t.Fatalf("state=%s page=%s", m.ctx.State, m.CurrentPage())
	}
	if rec.logouts != 1 || m.ctx.Records.Count(ResourcePaciente) != 0 || m.ctx.User != nil {
		t.Fatal("session state not reset")
	}
	if n := rec.lastNotice(t); n.kind != notify.KindSuccess || n.message != MsgLogoutSuccess {
		t.Fatalf("notice = %+v", n)
	}
}

func TestSessionExpiredFromAnyState(t *testing.T) {
	m, rec := loggedIn(t)
	m.handleSync(t, Event{Type: EventUINavigate, Payload: NavigatePayload{Page: PagePaciente}})
	m.handleSync(t, Event{Type: EventSysSessionExpired})
	if m.ctx.State != StateWaitingLogin || m.CurrentPage() != PageLogin {
		t.Fatalf("state=%s page=%s", m.ctx.State, m.CurrentPage())
	}
	if n := rec.lastNotice(t); n.kind != notify.KindWarning || n.message != MsgSessionExpired {
		t.Fatalf("notice = %+v", n)
	}
	notices := len(rec.notices)
	m.handleSync(t, Event{Type: EventSysSessionExpired})
	if len(rec.notices) != notices {
		t.Fatal("second expiry notified again")
	}

	// a late load result after expiry is ignored
	m.handleSync(t, Event{Type: EventSysDataLoaded, Payload: DataLoadedPayload{Resource: ResourcePaciente, Records: []Paciente{{ID: "1"}}}})
	if m.ctx.Records.Count(ResourcePaciente) != 0 {
		t.Fatal("stale records stored after expiry")
	}

	auth, _ := newTestMachine()
	auth.handleSync(t, Event{Type: EventUILaunch})
	auth.handleSync(t, Event{Type: EventUIClickLogin, Payload: CredentialsPayload{Email: "a@b.c", Senha: "x"}})
	auth.handleSync(t, Event{Type: EventSysSessionExpired})
	if auth.ctx.State != StateWaitingLogin {
		t.Fatalf("state = %s", auth.ctx.State)
	}
}

func TestExitStopsLoop(t *testing.T) {
	m, _ := newTestMachine()
	m.Start()
	if err := m.Dispatch(Event{Type: EventUIExit}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for m.CurrentState() != StateExiting && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.CurrentState() != StateExiting {
		t.Fatalf("state = %s", m.CurrentState())
	}
	for time.Now().Before(deadline) {
		if err := m.Dispatch(Event{Type: EventUIRefresh}); err == ErrMachineStopped {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("machine still accepts events after exit")
}
