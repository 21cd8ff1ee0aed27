package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"farmacia/client/internal/apiclient"
	"farmacia/client/internal/backend"
	"farmacia/client/internal/config"
	"farmacia/client/internal/logging"
	"farmacia/client/internal/session"
	"farmacia/client/internal/state"
)

type fakeView struct {
	logins  atomic.Int32
	mains   atomic.Int32
	updates atomic.Int32
	quits   atomic.Int32
}

func (v *fakeView) Start()                            {}
func (v *fakeView) RunMainLoop()                      {}
func (v *fakeView) Shutdown()                         {}
func (v *fakeView) Quit()                             { v.quits.Add(1) }
func (v *fakeView) WaitAsync(time.Duration) bool      { return true }
func (v *fakeView) ShowLoginWindow(*state.AppContext) { v.logins.Add(1) }
func (v *fakeView) ShowMainWindow(*state.AppContext)  { v.mains.Add(1) }
func (v *fakeView) UpdateUI(*state.AppContext)        { v.updates.Add(1) }

// fakeBackend is a tiny stand-in of the REST API.
type fakeBackend struct {
	mu          sync.Mutex
	rejectToken bool
	posts       []map[string]any
	tratamentos []map[string]any
	deleted     []string
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/auth/login":
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["senha"] != "certa" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Credenciais inválidas"}`)
			return
		}
		fmt.Fprint(w, `{"token":"tok-1","user":{"email":"ana@exemplo.com","nome":"Ana","perfil":"farmaceutico"}}`)
	case r.Header.Get("Authorization") != "Bearer tok-1" || b.rejectToken:
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Token inválido"}`)
	case r.URL.Path == "/paciente" && r.Method == http.MethodGet:
		fmt.Fprint(w, `[{"id":1,"Nome_paciente":"José","CPF":"111"}]`)
	case r.URL.Path == "/paciente" && r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.posts = append(b.posts, body)
		if body["Nome_paciente"] == "Falha" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":2,"Nome_paciente":"Novo","CPF":"222"}`)
	case r.URL.Path == "/tratamento" && r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.tratamentos = append(b.tratamentos, body)
		if body["Diagnostico"] == "Falha" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet:
		fmt.Fprint(w, `[]`)
	case r.Method == http.MethodDelete:
		b.deleted = append(b.deleted, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeBackend) reject() {
	b.mu.Lock()
	b.rejectToken = true
	b.mu.Unlock()
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		APIURL:         apiURL,
		Env:            "development",
		SessionFile:    filepath.Join(t.TempDir(), "session.yaml"),
		SessionTTLDays: 1,
		NotificationMs: 60000,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startApp(t *testing.T, cfg *config.Config, v View) *Application {
	t.Helper()
	var factory ViewFactory
	if v != nil {
		factory = func(*Core, func(state.Event) error) View { return v }
	}
	app, err := newApplication(cfg, logging.Nop(), CoreOptions{}, factory)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(app.Stop)
	if err := app.Run(); err != nil {
		t.Fatal(err)
	}
	return app
}

func seedSession(t *testing.T, path string) {
	t.Helper()
	store, err := session.Open(session.Options{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetToken("tok-1", 1); err != nil {
		t.Fatal(err)
	}
	store.Close()
}

func TestLoginThenRejectedTokenReturnsToLogin(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	fv := &fakeView{}
	app := startApp(t, testConfig(t, srv.URL), fv)

	waitFor(t, "login screen", func() bool { return app.machine.CurrentState() == state.StateWaitingLogin })
	_ = app.dispatch(state.Event{Type: state.EventUIClickLogin, Payload: state.CredentialsPayload{Email: "ana@exemplo.com", Senha: "certa"}})
	waitFor(t, "ready", func() bool { return app.machine.CurrentState() == state.StateReady })

	if token, ok := app.core.Session.Token(); !ok || token != "tok-1" {
		t.Fatalf("token = %q, %v", token, ok)
	}
	if user, ok := app.core.CurrentUser(); !ok || user.Nome != "Ana" {
		t.Fatalf("user = %+v, %v", user, ok)
	}
	waitFor(t, "login notice", func() bool { return app.core.Notices.Current().Message == state.MsgLoginSuccess })

	fb.reject()
	app.Navigate(string(state.PagePaciente))
	waitFor(t, "forced login", func() bool { return app.machine.CurrentState() == state.StateWaitingLogin })
	if app.core.Authenticated() {
		t.Fatal("token must be cleared after 401")
	}
	if got := testutil.ToFloat64(app.core.Metrics.ForcedLogins); got != 1 {
		t.Errorf("forced logins = %v", got)
	}
	waitFor(t, "expired notice", func() bool { return app.core.Notices.Current().Message == state.MsgSessionExpired })
	if fv.mains.Load() != 1 || fv.logins.Load() < 2 {
		t.Errorf("windows: main=%d login=%d", fv.mains.Load(), fv.logins.Load())
	}
}

func TestWrongPasswordShowsServerMessage(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{})
	defer srv.Close()
	app := startApp(t, testConfig(t, srv.URL), &fakeView{})

	waitFor(t, "login screen", func() bool { return app.machine.CurrentState() == state.StateWaitingLogin })
	_ = app.dispatch(state.Event{Type: state.EventUIClickLogin, Payload: state.CredentialsPayload{Email: "ana@exemplo.com", Senha: "errada"}})
	waitFor(t, "error notice", func() bool { return app.core.Notices.Current().Message == "Credenciais inválidas" })
	if app.machine.CurrentState() != state.StateWaitingLogin {
		t.Errorf("state = %s", app.machine.CurrentState())
	}
	if got := testutil.ToFloat64(app.core.Metrics.ForcedLogins); got != 0 {
		t.Errorf("login 401 must not force navigation, got %v", got)
	}
}

func TestStoredSessionSkipsLoginAndSaves(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	cfg := testConfig(t, srv.URL)
	seedSession(t, cfg.SessionFile)
	app := startApp(t, cfg, &fakeView{})

	waitFor(t, "ready", func() bool { return app.machine.CurrentState() == state.StateReady })
	app.Navigate(string(state.PagePaciente))
	waitFor(t, "paciente page", func() bool { return app.machine.CurrentPage() == state.PagePaciente })

	_ = app.dispatch(state.Event{Type: state.EventUISave, Payload: state.SavePayload{
		Resource: state.ResourcePaciente,
		Record:   state.Paciente{NomeCompleto: "Falha", CPF: "999"},
	}})
	waitFor(t, "create failure", func() bool {
		return app.core.Notices.Current().Message == "Erro ao cadastrar paciente. Tente novamente."
	})

	_ = app.dispatch(state.Event{Type: state.EventUISave, Payload: state.SavePayload{
		Resource: state.ResourcePaciente,
		Record:   state.Paciente{NomeCompleto: "Novo", CPF: "222"},
	}})
	waitFor(t, "created notice", func() bool { return app.core.Notices.Current().Message == msgCreated })

	_ = app.dispatch(state.Event{Type: state.EventUIDelete, Payload: state.DeletePayload{Resource: state.ResourcePaciente, ID: "1"}})
	waitFor(t, "deleted notice", func() bool { return app.core.Notices.Current().Message == state.MsgDeleted })
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.deleted) != 1 || fb.deleted[0] != "/paciente/1" {
		t.Errorf("deleted = %v", fb.deleted)
	}
}

func TestPrescribeReportsOneNotice(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	cfg := testConfig(t, srv.URL)
	seedSession(t, cfg.SessionFile)
	app := startApp(t, cfg, &fakeView{})

	waitFor(t, "ready", func() bool { return app.machine.CurrentState() == state.StateReady })
	app.Navigate(string(state.PageTratamento))
	waitFor(t, "tratamento page", func() bool { return app.machine.CurrentPage() == state.PageTratamento })

	meds := []state.Medicamento{{ID: "5", Nome: "DIPIRONA"}, {ID: "6", Nome: "Amoxicilina"}}
	_ = app.dispatch(state.Event{Type: state.EventUIPrescribe, Payload: state.PrescribePayload{PacienteID: "1", Medicamentos: meds}})
	waitFor(t, "prescribed notice", func() bool {
		return app.core.Notices.Current().Message == "2 tratamentos adicionados com sucesso!"
	})

	meds = []state.Medicamento{{ID: "7", Nome: "Ibuprofeno"}, {ID: "8", Nome: "Falha"}, {ID: "9", Nome: "Nunca"}}
	_ = app.dispatch(state.Event{Type: state.EventUIPrescribe, Payload: state.PrescribePayload{PacienteID: "1", Medicamentos: meds}})
	waitFor(t, "partial failure notice", func() bool { return app.core.Notices.Current().Message == prescribeFailed })

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.tratamentos) != 4 {
		t.Fatalf("posted %d treatments, want 4", len(fb.tratamentos))
	}
	first := fb.tratamentos[0]
	if first["Diagnostico"] != "DIPIRONA" || first["Status"] != state.StatusAtivo || first["Observacoes"] != "Medicamento ID: 5" {
		t.Errorf("first treatment = %+v", first)
	}
}

func TestPrescribedMessage(t *testing.T) {
	if got := prescribedMessage(1); got != "Tratamento adicionado com sucesso!" {
		t.Errorf("one = %q", got)
	}
	if got := prescribedMessage(3); got != "3 tratamentos adicionados com sucesso!" {
		t.Errorf("three = %q", got)
	}
}

func TestHeadlessNavigatorDoesNotRedirect(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	cfg := testConfig(t, srv.URL)
	seedSession(t, cfg.SessionFile)
	app := startApp(t, cfg, nil)

	waitFor(t, "ready", func() bool { return app.machine.CurrentState() == state.StateReady })
	if app.Visible() {
		t.Fatal("app without windows must not be visible")
	}
	fb.reject()
	_, err := app.core.List(context.Background(), state.ResourcePaciente)
	if !apiclient.IsUnauthenticated(err) {
		t.Fatalf("err = %v", err)
	}
	if app.core.Authenticated() {
		t.Error("token must be cleared")
	}
	time.Sleep(50 * time.Millisecond)
	if app.machine.CurrentState() != state.StateReady {
		t.Errorf("state = %s", app.machine.CurrentState())
	}
}

func TestExitStopsApplication(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{})
	defer srv.Close()
	fv := &fakeView{}
	app := startApp(t, testConfig(t, srv.URL), fv)
	_ = app.dispatch(state.Event{Type: state.EventUIExit})
	select {
	case <-app.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("application did not stop")
	}
	if fv.quits.Load() != 1 {
		t.Errorf("quits = %d", fv.quits.Load())
	}
}

func TestCoreHeadlessCRUD(t *testing.T) {
	fb := &fakeBackend{}
	srv := httptest.NewServer(fb)
	defer srv.Close()
	core, err := NewCore(testConfig(t, srv.URL), logging.Nop(), CoreOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer core.Close()
	ctx := context.Background()

	if _, err := core.Login(ctx, "ana@exemplo.com", "certa"); err != nil {
		t.Fatal(err)
	}
	records, err := core.List(ctx, state.ResourcePaciente)
	if err != nil {
		t.Fatal(err)
	}
	pacientes, ok := records.([]state.Paciente)
	if !ok || len(pacientes) != 1 || pacientes[0].ID != "1" {
		t.Fatalf("records = %#v", records)
	}
	created, err := core.Save(ctx, state.ResourcePaciente, state.Paciente{NomeCompleto: "Novo", CPF: "222"})
	if err != nil || !created {
		t.Fatalf("created = %v, err = %v", created, err)
	}
	if _, err := core.Save(ctx, state.ResourcePaciente, "not a record"); err == nil {
		t.Error("expected error for unknown record type")
	}
	if err := core.Delete(ctx, state.ResourcePaciente, "1"); err != nil {
		t.Fatal(err)
	}
	if err := core.Logout(); err != nil {
		t.Fatal(err)
	}
	if _, ok := core.CurrentUser(); ok {
		t.Error("profile must be cleared on logout")
	}
}

func TestBuildFailurePayload(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantKind state.ErrorKind
		wantMsg  string
	}{
		{"validation", &backend.ValidationError{Message: "CPF do paciente é obrigatório"}, state.ErrorKindSaveFailed, "CPF do paciente é obrigatório"},
		{"no connection", &apiclient.NetworkError{Op: "POST /paciente", Err: errors.New("connection refused")}, state.ErrorKindNetworkUnavailable, msgNetworkUnavailable},
		{"deadline", fmt.Errorf("save: %w", context.DeadlineExceeded), state.ErrorKindNetworkUnavailable, msgNetworkUnavailable},
		{"server message", &apiclient.NetworkError{Status: 409, Message: "CPF já cadastrado"}, state.ErrorKindSaveFailed, "CPF já cadastrado"},
		{"fallback", &apiclient.NetworkError{Status: 500}, state.ErrorKindSaveFailed, "Erro ao salvar tratamento."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := buildFailurePayload(tc.err, state.ErrorKindSaveFailed, state.ResourceTratamento, "Erro ao salvar tratamento.")
			if got.Kind != tc.wantKind || got.Message != tc.wantMsg {
				t.Errorf("got %+v", got)
			}
			if got.Resource != state.ResourceTratamento || got.TechnicalMessage == "" {
				t.Errorf("missing context: %+v", got)
			}
		})
	}
}
