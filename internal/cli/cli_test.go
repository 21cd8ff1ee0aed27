package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"farmacia/client/internal/notify"
	"farmacia/client/internal/ui/present"
)

func apiStub() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/auth/login":
			fmt.Fprint(w, `{"token":"tok-cli","user":{"email":"ana@exemplo.com","nome":"Ana","perfil":"admin"}}`)
		case r.Header.Get("Authorization") != "Bearer tok-cli":
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/medicamento":
			fmt.Fprint(w, `{"data":[{"id":7,"Nome_Medicamento":"DIPIRONA","Dosagem":"500","Tipo":"Analgesico","Tarja":"Sem Tarja","Via_consumo":"Oral"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func writeConfig(t *testing.T, apiURL string) string {
	t.Helper()
	t.Setenv("FARMACIA_API_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("api_url: %s\nlog_file: %s\nsession_file: %s\nlog_level: debug\n",
		apiURL, filepath.Join(dir, "logs", "client.log"), filepath.Join(dir, "session.yaml"))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd(nil)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestLoginWhoamiListLogout(t *testing.T) {
	srv := httptest.NewServer(apiStub())
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)

	if _, _, err := execute(t, "whoami", "--config", cfg); err == nil {
		t.Fatal("whoami without session must fail")
	}

	out, errOut, err := execute(t, "login", "--config", cfg, "--email", "ana@exemplo.com", "--senha", "x")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Ana (admin)") || !strings.Contains(errOut, "Login realizado com sucesso!") {
		t.Errorf("out=%q err=%q", out, errOut)
	}

	out, _, err = execute(t, "whoami", "--config", cfg)
	if err != nil || !strings.Contains(out, "ana@exemplo.com") {
		t.Fatalf("whoami: %q, %v", out, err)
	}

	out, _, err = execute(t, "list", "medicamento", "--config", cfg)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "DIPIRONA 500") || !strings.Contains(out, "Tarja Sem Tarja") {
		t.Errorf("list output:\n%s", out)
	}

	_, errOut, err = execute(t, "logout", "--config", cfg)
	if err != nil || !strings.Contains(errOut, "Logout realizado com sucesso!") {
		t.Fatalf("logout: %q, %v", errOut, err)
	}
	if _, _, err := execute(t, "list", "medicamento", "--config", cfg); err != errNotAuthenticated {
		t.Errorf("list after logout: %v", err)
	}
}

func TestListPacienteAndPrescribe(t *testing.T) {
	var (
		mu     sync.Mutex
		posted []map[string]any
	)
	base := apiStub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-cli" {
			switch {
			case r.URL.Path == "/paciente":
				fmt.Fprint(w, `[{"id":1,"Nome_paciente":"José","CPF":"111","farmaceutico_id":3}]`)
				return
			case r.URL.Path == "/farmaceutico":
				fmt.Fprint(w, `[{"id":3,"Nome_Farmaceutico":"Rita","Sobrenome_Farmaceutico":"Lima","CPF":"333"}]`)
				return
			case r.URL.Path == "/tratamento" && r.Method == http.MethodPost:
				var body map[string]any
				_ = json.NewDecoder(r.Body).Decode(&body)
				mu.Lock()
				posted = append(posted, body)
				mu.Unlock()
				w.WriteHeader(http.StatusCreated)
				return
			}
		}
		base(w, r)
	}))
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)
	if _, _, err := execute(t, "login", "--config", cfg, "--email", "ana@exemplo.com", "--senha", "x"); err != nil {
		t.Fatalf("login: %v", err)
	}

	out, _, err := execute(t, "list", "paciente", "--config", cfg)
	if err != nil || !strings.Contains(out, "Farmacêutico Rita Lima") {
		t.Fatalf("list paciente: %v\n%s", err, out)
	}

	if _, _, err := execute(t, "prescrever", "--config", cfg, "--paciente", "1", "--medicamento", "7,99"); err == nil || !strings.Contains(err.Error(), "99") {
		t.Fatalf("unknown medication accepted: %v", err)
	}
	out, _, err = execute(t, "prescrever", "--config", cfg, "--paciente", "1", "--medicamento", "7")
	if err != nil || !strings.Contains(out, "1 de 1 tratamentos criados") {
		t.Fatalf("prescrever: %q, %v", out, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(posted) != 1 || posted[0]["Diagnostico"] != "DIPIRONA" || posted[0]["Observacoes"] != "Medicamento ID: 7" {
		t.Fatalf("posted = %+v", posted)
	}
}

func TestListRejectsUnknownResource(t *testing.T) {
	if _, _, err := execute(t, "list", "receita"); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	t.Setenv("FARMACIA_SENHA", "")
	if _, _, err := execute(t, "login", "--email", "ana@exemplo.com"); err == nil {
		t.Fatal("expected missing password error")
	}
}

func TestPrintNoticeSkipsHidden(t *testing.T) {
	var buf bytes.Buffer
	show := printNotice(&buf)
	show(notify.Notification{Kind: notify.KindError, Message: "falhou", Visible: true})
	show(notify.Notification{Kind: notify.KindError, Message: "falhou", Visible: false})
	if got := buf.String(); got != "[error] falhou\n" {
		t.Errorf("got %q", got)
	}
}

func TestWriteRows(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRows(&buf, []present.Row{{ID: "1", Title: "José", Detail: "CPF 111"}}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "1 ") || !strings.Contains(lines[1], "CPF 111") {
		t.Errorf("rows:\n%s", buf.String())
	}
}
