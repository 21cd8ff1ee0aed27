// Package metrics collects Prometheus metrics for backend calls made by the client:
//   - farmacia_client_requests_total: counter by method, resource and status
//   - farmacia_client_request_duration_seconds: histogram by method and resource
//   - farmacia_client_forced_logins_total: 401 responses that sent the user to login
//   - farmacia_client_notifications_total: notifications shown, by kind
//
// Metrics live on a private registry so tests and multiple clients never collide.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client holds the collectors of one client instance.
type Client struct {
	Registry         *prometheus.Registry
	RequestTotals    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ForcedLogins     prometheus.Counter
	NotificationsTot *prometheus.CounterVec
}

// New creates and registers the client collectors.
func New() *Client {
	c := &Client{
		Registry: prometheus.NewRegistry(),
		RequestTotals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmacia_client_requests_total",
				Help: "Backend requests issued by the client",
			},
			[]string{"method", "resource", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farmacia_client_request_duration_seconds",
				Help:    "Backend request latency",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "resource"},
		),
		ForcedLogins: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "farmacia_client_forced_logins_total",
				Help: "Unauthenticated responses that cleared the session",
			},
		),
		NotificationsTot: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmacia_client_notifications_total",
				Help: "Notifications shown to the user",
			},
			[]string{"kind"},
		),
	}
	c.Registry.MustRegister(c.RequestTotals, c.RequestDuration, c.ForcedLogins, c.NotificationsTot)
	return c
}

// ObserveRequest records one finished request. status 0 means transport failure.
func (c *Client) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	resource := Resource(path)
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.RequestTotals.WithLabelValues(method, resource, label).Inc()
	c.RequestDuration.WithLabelValues(method, resource).Observe(elapsed.Seconds())
}

// ObserveForcedLogin counts a session cleared by an unauthenticated response.
func (c *Client) ObserveForcedLogin() {
	if c == nil {
		return
	}
	c.ForcedLogins.Inc()
}

// ObserveNotification counts a notification shown to the user.
func (c *Client) ObserveNotification(kind string) {
	if c == nil {
		return
	}
	c.NotificationsTot.WithLabelValues(kind).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// Resource reduces a request path to its first segment so ids do not explode
// label cardinality: "/medicamento/5?x=1" -> "medicamento", "/auth/login" -> "auth_login".
func Resource(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}
	parts := strings.SplitN(path, "/", 3)
	if parts[0] == "auth" && len(parts) > 1 {
		return "auth_" + parts[1]
	}
	return parts[0]
}
