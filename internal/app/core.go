package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"farmacia/client/internal/apiclient"
	"farmacia/client/internal/backend"
	"farmacia/client/internal/config"
	"farmacia/client/internal/logging"
	"farmacia/client/internal/metrics"
	"farmacia/client/internal/notify"
	"farmacia/client/internal/session"
	"farmacia/client/internal/state"
)

// CoreOptions tunes NewCore.
type CoreOptions struct {
	// Navigator receives forced redirects to the login page. Nil means headless.
	Navigator  apiclient.Navigator
	HTTPClient *http.Client
}

// Core owns the components shared by the desktop UI and the CLI.
type Core struct {
	Config   *config.Config
	Logger   *logging.Logger
	Session  *session.Store
	Notices  *notify.Broadcaster
	Metrics  *metrics.Client
	API      *apiclient.Client
	Services *backend.Services

	unsubscribe func()
	metricsSrv  *http.Server
}

// NewCore opens the session and builds the API stack on top of it.
func NewCore(cfg *config.Config, logger *logging.Logger, opts CoreOptions) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	store, err := session.Open(session.Options{
		Path:   cfg.SessionFile,
		Secure: cfg.IsProduction(),
		Logger: logger.With("session"),
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	collector := metrics.New()
	guard := &apiclient.AuthGuard{
		Session:   store,
		Navigator: opts.Navigator,
		Logger:    logger.With("auth"),
		Metrics:   collector,
	}
	client, err := apiclient.New(cfg.APIURL, apiclient.Options{
		HTTPClient: opts.HTTPClient,
		Logger:     logger.With("api"),
		Metrics:    collector,
		Throttle:   apiclient.NewThrottle(cfg.RequestsPerSecond),
		Stages:     []apiclient.RequestStage{apiclient.BearerAuth(store)},
		Inspectors: []apiclient.ResponseInspector{guard},
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init api client: %w", err)
	}
	notices := notify.New(notify.Options{
		DefaultDuration: time.Duration(cfg.NotificationMs) * time.Millisecond,
		Logger:          logger.With("notify"),
	})
	c := &Core{
		Config:   cfg,
		Logger:   logger,
		Session:  store,
		Notices:  notices,
		Metrics:  collector,
		API:      client,
		Services: backend.New(client, logger.With("backend")),
	}
	c.unsubscribe = notices.Subscribe(func(n notify.Notification) {
		if n.Visible {
			collector.ObserveNotification(string(n.Kind))
		}
	})
	return c, nil
}

// Authenticated reports whether a live token is stored.
func (c *Core) Authenticated() bool {
	_, ok := c.Session.Token()
	return ok
}

// CurrentUser returns the cached profile of the signed-in user.
func (c *Core) CurrentUser() (*state.UserProfile, bool) {
	if !c.Authenticated() {
		return nil, false
	}
	profile, ok := c.Session.Profile()
	if !ok {
		return nil, false
	}
	return &state.UserProfile{Email: profile.Email, Nome: profile.Nome, Perfil: profile.Perfil}, true
}

// Login authenticates and persists the token plus the profile when the
// backend sent one.
func (c *Core) Login(ctx context.Context, email, senha string) (backend.LoginResult, error) {
	result, err := c.Services.Auth.Login(ctx, email, senha)
	if err != nil {
		return result, err
	}
	if err := c.Session.SetToken(result.Token, c.Config.SessionTTLDays); err != nil {
		return result, fmt.Errorf("store token: %w", err)
	}
	if result.User != nil {
		profile := &session.UserProfile{Email: result.User.Email, Nome: result.User.Nome, Perfil: result.User.Perfil}
		if err := c.Session.SaveProfile(profile); err != nil {
			c.Logger.Warnf("save profile failed: %v", err)
		}
	}
	return result, nil
}

// Logout forgets the token and the cached profile.
func (c *Core) Logout() error {
	_, err := c.Session.ClearToken()
	return errors.Join(err, c.Session.ClearProfile())
}

// List loads every record of res. The result is the matching slice type
// ([]state.Paciente for state.ResourcePaciente, ...).
func (c *Core) List(ctx context.Context, res state.Resource) (any, error) {
	switch res {
	case state.ResourcePaciente:
		return c.Services.Pacientes.List(ctx)
	case state.ResourceMedicamento:
		return c.Services.Medicamentos.List(ctx)
	case state.ResourceFarmaceutico:
		return c.Services.Farmaceuticos.List(ctx)
	case state.ResourceTratamento:
		return c.Services.Tratamentos.List(ctx)
	}
	return nil, fmt.Errorf("unknown resource %q", res)
}

// Save creates or updates record. created is true when record had no ID.
func (c *Core) Save(ctx context.Context, res state.Resource, record any) (created bool, err error) {
	switch r := record.(type) {
	case state.Paciente:
		created = r.ID == ""
		_, err = c.Services.Pacientes.Save(ctx, r)
	case state.Medicamento:
		created = r.ID == ""
		_, err = c.Services.Medicamentos.Save(ctx, r)
	case state.Farmaceutico:
		created = r.ID == ""
		_, err = c.Services.Farmaceuticos.Save(ctx, r)
	case state.Tratamento:
		created = r.ID == ""
		_, err = c.Services.Tratamentos.Save(ctx, r)
	default:
		return false, fmt.Errorf("save %s: unexpected record %T", res, record)
	}
	return created, err
}

// Delete removes the record id of res.
func (c *Core) Delete(ctx context.Context, res state.Resource, id string) error {
	switch res {
	case state.ResourcePaciente:
		return c.Services.Pacientes.Delete(ctx, id)
	case state.ResourceMedicamento:
		return c.Services.Medicamentos.Delete(ctx, id)
	case state.ResourceFarmaceutico:
		return c.Services.Farmaceuticos.Delete(ctx, id)
	case state.ResourceTratamento:
		return c.Services.Tratamentos.Delete(ctx, id)
	}
	return fmt.Errorf("unknown resource %q", res)
}

// Prescribe starts one active treatment per medication for the patient,
// dated today. created counts the treatments stored before any failure.
func (c *Core) Prescribe(ctx context.Context, pacienteID string, meds []state.Medicamento) (created int, err error) {
	return c.Services.Prescribe(ctx, backend.Prescription{
		PacienteID:   pacienteID,
		Medicamentos: meds,
		Inicio:       time.Now(),
	})
}

// ServeMetrics starts the Prometheus endpoint when metrics_addr is set.
func (c *Core) ServeMetrics() {
	if c.Config.MetricsAddr == "" || c.metricsSrv != nil {
		return
	}
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", c.Metrics.Handler())
	c.metricsSrv = &http.Server{
		Addr:              c.Config.MetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := c.metricsSrv
	go func() {
		c.Logger.Infof("metrics listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger.Errorf("metrics server failed: %v", err)
		}
	}()
}

// Close releases timers, files and the metrics listener.
func (c *Core) Close() {
	if c.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.metricsSrv.Shutdown(ctx); err != nil {
			c.Logger.Warnf("metrics shutdown: %v", err)
		}
		cancel()
		c.metricsSrv = nil
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.Notices.Close()
	c.Session.Close()
}
