package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"farmacia/client/internal/apiclient"
	"farmacia/client/internal/state"
)

// prescriptionServer records every POST /tratamento body and fails the
// request numbered failAt (1-based); zero never fails.
func prescriptionServer(t *testing.T, failAt int) (*Services, func() []map[string]any) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tratamento" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		mu.Lock()
		bodies = append(bodies, body)
		n := len(bodies)
		mu.Unlock()
		if n == failAt {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"message":"falhou"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	client, err := apiclient.New(srv.URL, apiclient.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return New(client, nil), func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return append([]map[string]any(nil), bodies...)
	}
}

func TestPrescribePostsOneTratamentoPerMedicamento(t *testing.T) {
	svc, bodies := prescriptionServer(t, 0)
	inicio := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	created, err := svc.Prescribe(context.Background(), Prescription{
		PacienteID:   "2",
		Medicamentos: []state.Medicamento{{ID: "5", Nome: "DIPIRONA"}, {ID: "6"}},
		Inicio:       inicio,
	})
	if err != nil || created != 2 {
		t.Fatalf("Prescribe = %d, %v", created, err)
	}
	got := bodies()
	if len(got) != 2 {
		t.Fatalf("posted %d treatments", len(got))
	}
	want := []struct{ diagnostico, obs string }{
		{"DIPIRONA", "Medicamento ID: 5"},
		{"Medicamento", "Medicamento ID: 6"},
	}
	for i, w := range want {
		b := got[i]
		if b["Diagnostico"] != w.diagnostico || b["Observacoes"] != w.obs {
			t.Errorf("body %d = %+v", i, b)
		}
		if b["Data_inicio"] != "2025-03-10" || b["Status"] != state.StatusAtivo {
			t.Errorf("body %d = %+v", i, b)
		}
		// both spellings of the patient key go out
		if b["pacienteId"] != float64(2) || b["paciente_id"] != float64(2) {
			t.Errorf("body %d patient = %v / %v", i, b["pacienteId"], b["paciente_id"])
		}
	}
}

func TestPrescribeStopsAtFirstFailure(t *testing.T) {
	svc, bodies := prescriptionServer(t, 2)
	meds := []state.Medicamento{{ID: "5", Nome: "A"}, {ID: "6", Nome: "B"}, {ID: "7", Nome: "C"}}
	created, err := svc.Prescribe(context.Background(), Prescription{PacienteID: "2", Medicamentos: meds})
	if created != 1 || apiclient.StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("Prescribe = %d, %v", created, err)
	}
	if n := len(bodies()); n != 2 {
		t.Fatalf("posted %d treatments after a failure", n)
	}
}

func TestPrescribeValidation(t *testing.T) {
	svc, bodies := prescriptionServer(t, 0)
	var vErr *ValidationError
	if _, err := svc.Prescribe(context.Background(), Prescription{Medicamentos: []state.Medicamento{{ID: "5"}}}); !errors.As(err, &vErr) {
		t.Fatalf("missing patient: %v", err)
	}
	if _, err := svc.Prescribe(context.Background(), Prescription{PacienteID: "2"}); !errors.As(err, &vErr) {
		t.Fatalf("no medications: %v", err)
	}
	if n := len(bodies()); n != 0 {
		t.Fatalf("server called %d times", n)
	}
}
