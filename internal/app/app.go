package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"farmacia/client/internal/config"
	"farmacia/client/internal/logging"
	"farmacia/client/internal/notify"
	"farmacia/client/internal/state"
)

// View is the window layer driven by the state machine.
type View interface {
	Start()
	RunMainLoop()
	Shutdown()
	Quit()
	WaitAsync(timeout time.Duration) bool
	ShowLoginWindow(ctx *state.AppContext)
	ShowMainWindow(ctx *state.AppContext)
	UpdateUI(ctx *state.AppContext)
}

// ViewFactory builds the View once the core exists. dispatch feeds user
// actions to the state machine.
type ViewFactory func(core *Core, dispatch func(state.Event) error) View

// Application binds the state machine, the backend core and the windows.
// It is also the apiclient.Navigator of the core.
type Application struct {
	cfg         *config.Config
	logger      *logging.Logger
	core        *Core
	machine     *state.Machine
	ctx         *state.AppContext
	ui          View
	cleanupOnce sync.Once
	shutdown    chan struct{}
	runCtx      context.Context
	runCancel   context.CancelFunc
	stopOnce    sync.Once
}

// New builds the application; newView may be nil for a run without windows.
func New(cfg *config.Config, logger *logging.Logger, newView ViewFactory) (*Application, error) {
	return newApplication(cfg, logger, CoreOptions{}, newView)
}

func newApplication(cfg *config.Config, logger *logging.Logger, opts CoreOptions, newView ViewFactory) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	app := &Application{
		cfg:      cfg,
		logger:   logger,
		ctx:      state.NewAppContext(cfg),
		shutdown: make(chan struct{}),
	}
	opts.Navigator = app
	core, err := NewCore(cfg, logger, opts)
	if err != nil {
		return nil, err
	}
	app.core = core
	base := notify.WithContext(logging.WithContext(context.Background(), logger), core.Notices)
	app.runCtx, app.runCancel = context.WithCancel(base)
	if newView != nil {
		app.ui = newView(core, app.dispatch)
	}
	callbacks := state.Callbacks{
		StartAuth:            app.startAuth,
		StartRecoverPassword: app.startRecoverPassword,
		StartLogout:          app.startLogout,
		StartLoad:            app.startLoad,
		StartSave:            app.startSave,
		StartDelete:          app.startDelete,
		StartPrescribe:       app.startPrescribe,
		CleanupAndExit:       app.cleanupAndExit,
		ShowNotification:     app.showNotification,
	}
	if app.ui != nil {
		callbacks.ShowLoginWindow = app.ui.ShowLoginWindow
		callbacks.ShowMainWindow = app.ui.ShowMainWindow
		callbacks.UpdateUI = app.ui.UpdateUI
	}
	app.machine = state.NewMachine(app.ctx, logger.With("state"), callbacks)
	return app, nil
}

// Run starts the state machine and reports whether a stored session exists.
func (a *Application) Run() error {
	if a.machine == nil {
		return fmt.Errorf("machine is not initialized")
	}
	a.core.ServeMetrics()
	if a.ui != nil {
		a.ui.Start()
		a.ui.UpdateUI(a.ctx)
	}
	a.machine.Start()
	user, _ := a.core.CurrentUser()
	payload := state.LaunchPayload{Authenticated: a.core.Authenticated(), User: user}
	return a.dispatch(state.Event{Type: state.EventUILaunch, Payload: payload, TS: time.Now()})
}

// RunUILoop runs the Fyne main loop and blocks until it exits.
func (a *Application) RunUILoop() {
	if a.ui == nil {
		return
	}
	a.ui.RunMainLoop()
}

// Stop shuts everything down; it is safe to call more than once.
func (a *Application) Stop() {
	a.stopOnce.Do(func() {
		if a.runCancel != nil {
			a.runCancel()
		}
		if a.ui != nil {
			a.ui.Shutdown()
			if !a.ui.WaitAsync(3 * time.Second) {
				a.logger.Errorf("ui background tasks did not finish before timeout")
			}
		}
		if a.machine != nil {
			a.machine.Stop()
			if !a.machine.WaitAsync(3 * time.Second) {
				a.logger.Errorf("state machine background tasks did not finish before timeout")
			}
		}
		a.core.Close()
		close(a.shutdown)
	})
}

// Done is closed once the application has fully stopped.
func (a *Application) Done() <-chan struct{} {
	return a.shutdown
}

// Visible reports whether there is a page surface to redirect.
func (a *Application) Visible() bool {
	return a.ui != nil && !a.isStopping()
}

// CurrentPage is the page the machine currently shows.
func (a *Application) CurrentPage() string {
	if a.machine == nil {
		return string(state.PageLogin)
	}
	return string(a.machine.CurrentPage())
}

// Navigate switches pages. Going to the login page means the session is gone.
func (a *Application) Navigate(page string) {
	if state.Page(page) == state.PageLogin {
		_ = a.dispatch(state.Event{Type: state.EventSysSessionExpired, TS: time.Now()})
		return
	}
	_ = a.dispatch(state.Event{Type: state.EventUINavigate, Payload: state.NavigatePayload{Page: state.Page(page)}, TS: time.Now()})
}

func (a *Application) dispatch(evt state.Event) error {
	if a.machine == nil {
		return state.ErrMachineStopped
	}
	if err := a.machine.Dispatch(evt); err != nil {
		a.logger.Errorf("dispatch %s failed: %v", evt.Type, err)
		return err
	}
	return nil
}

func (a *Application) showNotification(kind notify.Kind, message string) {
	if err := notify.Show(a.runCtx, kind, message); err != nil {
		a.logger.Warnf("notification dropped (%s): %v", message, err)
	}
}

func (a *Application) cleanupAndExit(_ *state.AppContext) {
	a.logger.Infof("state machine requested shutdown")
	a.cleanupOnce.Do(func() {
		if err := a.core.Notices.Hide(); err != nil {
			a.logger.Debugf("hide notification on exit: %v", err)
		}
	})
	if a.ui != nil {
		a.ui.Quit()
	}
	a.Stop()
}
