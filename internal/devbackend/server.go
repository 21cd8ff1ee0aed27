package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron"

	"farmacia/client/internal/logging"
	"farmacia/client/internal/state"
)

const (
	msgUnauthorized       = "Sessão expirada. Faça login novamente."
	msgInvalidCredentials = "Email ou senha inválidos."
	msgBadBody            = "Corpo da requisição inválido."
	msgRecoverSent        = "Se o email estiver cadastrado, enviaremos as instruções."
	msgEmailTaken         = "Email já cadastrado."

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Server serves the REST API from memory.
type Server struct {
	cfg    *Config
	logger *logging.Logger
	store  *Store
	auth   *Authenticator
	router chi.Router
}

// New seeds the users and records from cfg and builds the router.
func New(cfg *Config, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  NewStore(),
		auth:   NewAuthenticator(cfg.SigningKey, cfg.TokenTTL),
	}
	for _, u := range cfg.Users {
		if err := s.auth.Register(u); err != nil {
			return nil, fmt.Errorf("register %s: %w", u.Email, err)
		}
	}
	for name, items := range cfg.Records {
		res, ok := resourceByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown resource %q", name)
		}
		if err := s.store.Seed(res, items); err != nil {
			return nil, err
		}
	}
	s.router = s.routes()
	logger.Infof("seeded %d users, %d pacientes, %d medicamentos, %d farmaceuticos, %d tratamentos",
		len(cfg.Users), s.store.Count(state.ResourcePaciente), s.store.Count(state.ResourceMedicamento),
		s.store.Count(state.ResourceFarmaceutico), s.store.Count(state.ResourceTratamento))
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Auth exposes the authenticator.
func (s *Server) Auth() *Authenticator {
	return s.auth
}

// Store exposes the record store.
func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/recuperar-senha", s.handleRecoverPassword)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/auth/me", s.handleMe)
		r.Post("/auth/logout", s.handleLogout)
		for _, res := range state.Resources {
			r.Route(res.Path(), s.collectionRoutes(res))
		}
	})
	return r
}

func (s *Server) collectionRoutes(res state.Resource) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", s.handleList(res))
		r.Post("/", s.handleCreate(res))
		r.Get("/{id}", s.handleGet(res))
		r.Put("/{id}", s.handleUpdate(res))
		r.Delete("/{id}", s.handleDelete(res))
	}
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln, prunes expired sessions on a schedule, and
// shuts down gracefully once ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(s.cfg.PruneInterval).Do(s.pruneSessions); err != nil {
		ln.Close()
		return fmt.Errorf("schedule session pruning: %w", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("listening on %s", ln.Addr())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Infof("server exited")
	return nil
}

func (s *Server) pruneSessions() {
	if n := s.auth.PruneExpired(); n > 0 {
		s.logger.Infof("pruned %d expired sessions", n)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "OK")
}

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type loginResponse struct {
	Token string  `json:"token"`
	User  Account `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}
	token, acc, err := s.auth.Login(req.Email, req.Senha)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.Infof("login failed for %s", normalizeEmail(req.Email))
			writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		s.logger.Errorf("login %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "Erro interno.")
		return
	}
	s.logger.Infof("login succeeded for %s", acc.Email)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: acc})
}

func (s *Server) handleRecoverPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &req); err != nil || normalizeEmail(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Informe seu email.")
		return
	}
	// same answer for unknown emails
	if s.auth.Exists(req.Email) {
		s.logger.Infof("password recovery requested for %s", normalizeEmail(req.Email))
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msgRecoverSent})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, Account{Email: claims.Email, Nome: claims.Nome, Perfil: claims.Perfil})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	s.auth.Revoke(claims.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(res state.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		items := s.store.List(res)
		out := make([]Record, 0, len(items))
		for _, rec := range items {
			out = append(out, s.expand(res, rec))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGet(res state.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, res)
		if !ok {
			return
		}
		rec, found := s.store.Get(res, id)
		if !found {
			writeError(w, http.StatusNotFound, notFound(res))
			return
		}
		writeJSON(w, http.StatusOK, s.expand(res, rec))
	}
}

func (s *Server) handleCreate(res state.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body Record
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, msgBadBody)
			return
		}
		if msg := s.validate(res, body, true); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		if res == state.ResourceFarmaceutico {
			if status, msg := s.registerFarmaceutico(body); status != 0 {
				writeError(w, status, msg)
				return
			}
		}
		rec := s.store.Create(res, body)
		s.logger.Infof("created %s %d", res, rec.ID())
		writeJSON(w, http.StatusCreated, s.expand(res, rec))
	}
}

func (s *Server) handleUpdate(res state.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, res)
		if !ok {
			return
		}
		var body Record
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, msgBadBody)
			return
		}
		if msg := s.validate(res, body, false); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		current, found := s.store.Get(res, id)
		if !found {
			writeError(w, http.StatusNotFound, notFound(res))
			return
		}
		if res == state.ResourceFarmaceutico {
			if senha := body.Text("senha"); senha != "" {
				if err := s.auth.SetPassword(current.Text("Email"), senha); err != nil {
					s.logger.Warnf("farmaceutico %d: %v", id, err)
				}
			}
			delete(body, "senha")
		}
		rec, _ := s.store.Update(res, id, body)
		s.logger.Infof("updated %s %d", res, id)
		writeJSON(w, http.StatusOK, s.expand(res, rec))
	}
}

func (s *Server) handleDelete(res state.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, res)
		if !ok {
			return
		}
		current, found := s.store.Get(res, id)
		if !found {
			writeError(w, http.StatusNotFound, notFound(res))
			return
		}
		if res == state.ResourcePaciente && s.hasTratamentos(id) {
			writeError(w, http.StatusConflict, "Paciente possui tratamentos cadastrados.")
			return
		}
		s.store.Delete(res, id)
		if res == state.ResourceFarmaceutico {
			s.auth.Remove(current.Text("Email"))
		}
		s.logger.Infof("deleted %s %d", res, id)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Registro removido."})
	}
}

// registerFarmaceutico turns a new pharmacist into a login account and keeps
// the password out of the stored record.
func (s *Server) registerFarmaceutico(body Record) (int, string) {
	senha, _ := body["senha"].(string)
	delete(body, "senha")
	email := body.Text("Email")
	if email == "" {
		return 0, ""
	}
	nome := strings.TrimSpace(body.Text("Nome_Farmaceutico") + " " + body.Text("Sobrenome_Farmaceutico"))
	err := s.auth.Register(UserSeed{Email: email, Nome: nome, Perfil: "farmaceutico", Senha: senha})
	switch {
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict, msgEmailTaken
	case err != nil:
		s.logger.Errorf("register farmaceutico %s: %v", email, err)
		return http.StatusInternalServerError, "Erro interno."
	}
	return 0, ""
}

// validate returns the user-facing reason body is rejected, or "".
func (s *Server) validate(res state.Resource, body Record, creating bool) string {
	required := map[state.Resource][][2]string{
		state.ResourcePaciente:     {{"Nome_paciente", "nome do paciente"}, {"CPF", "CPF"}},
		state.ResourceMedicamento:  {{"Nome_Medicamento", "nome do medicamento"}},
		state.ResourceFarmaceutico: {{"Nome_Farmaceutico", "nome do farmacêutico"}, {"CPF", "CPF"}},
		state.ResourceTratamento:   {{"Diagnostico", "diagnóstico"}, {"Data_inicio", "data de início"}},
	}
	for _, field := range required[res] {
		if _, present := body[field[0]]; (creating || present) && body.Text(field[0]) == "" {
			return fmt.Sprintf("Campo obrigatório: %s.", field[1])
		}
	}
	switch res {
	case state.ResourceFarmaceutico:
		if creating && body.Text("senha") == "" {
			return "Campo obrigatório: senha."
		}
	case state.ResourceTratamento:
		raw, present := body["pacienteId"]
		if !present {
			raw, present = body["paciente_id"]
		}
		if !present && !creating {
			return ""
		}
		id, ok := toInt(raw)
		if !ok {
			return "Selecione um paciente."
		}
		if _, found := s.store.Get(state.ResourcePaciente, id); !found {
			return "Paciente não encontrado."
		}
	}
	return ""
}

// expand embeds the patient summary into treatments, the way list views
// expect them.
func (s *Server) expand(res state.Resource, rec Record) Record {
	if res != state.ResourceTratamento {
		return rec
	}
	raw, ok := rec["pacienteId"]
	if !ok {
		raw = rec["paciente_id"]
	}
	id, ok := toInt(raw)
	if !ok {
		return rec
	}
	if p, found := s.store.Get(state.ResourcePaciente, id); found {
		rec["paciente"] = map[string]any{idKey: id, "Nome_paciente": p["Nome_paciente"]}
	}
	return rec
}

func (s *Server) hasTratamentos(pacienteID int) bool {
	for _, t := range s.store.List(state.ResourceTratamento) {
		for _, key := range []string{"pacienteId", "paciente_id"} {
			if id, ok := toInt(t[key]); ok && id == pacienteID {
				return true
			}
		}
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request, res state.Resource) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, notFound(res))
		return 0, false
	}
	return id, true
}

func notFound(res state.Resource) string {
	return fmt.Sprintf("Registro de %s não encontrado.", res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
