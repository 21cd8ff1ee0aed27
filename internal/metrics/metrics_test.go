package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResource(t *testing.T) {
	cases := map[string]string{
		"/medicamento/5":         "medicamento",
		"/medicamento?_t=123":    "medicamento",
		"/paciente":              "paciente",
		"/auth/login":            "auth_login",
		"/":                      "root",
		"tratamento/9/historico": "tratamento",
	}
	for in, want := range cases {
		if got := Resource(in); got != want {
			t.Errorf("Resource(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObserveRequest(t *testing.T) {
	c := New()
	c.ObserveRequest("PUT", "/medicamento/5", 401, 30*time.Millisecond)
	c.ObserveRequest("PUT", "/medicamento/7", 401, 10*time.Millisecond)
	c.ObserveRequest("GET", "/paciente", 0, time.Millisecond)

	if got := testutil.ToFloat64(c.RequestTotals.WithLabelValues("PUT", "medicamento", "401")); got != 2 {
		t.Fatalf("PUT medicamento 401 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.RequestTotals.WithLabelValues("GET", "paciente", "error")); got != 1 {
		t.Fatalf("transport failures = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.RequestDuration); n != 2 {
		t.Fatalf("duration series = %d, want 2", n)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	c.ObserveRequest("GET", "/x", 200, time.Millisecond)
	c.ObserveForcedLogin()
	c.ObserveNotification("success")
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.ObserveForcedLogin()
	c.ObserveNotification("error")
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"farmacia_client_forced_logins_total 1", `farmacia_client_notifications_total{kind="error"} 1`} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
