package state

import (
	"time"

	"farmacia/client/internal/config"
)

// ErrorKind classifies failures shown to the user and used by the state logic.
type ErrorKind string

const (
	ErrorKindNetworkUnavailable ErrorKind = "NetworkUnavailable"
	ErrorKindAuthFailed         ErrorKind = "AuthFailed"
	ErrorKindSessionExpired     ErrorKind = "SessionExpired"
	ErrorKindLoadFailed         ErrorKind = "LoadFailed"
	ErrorKindSaveFailed         ErrorKind = "SaveFailed"
	ErrorKindDeleteFailed       ErrorKind = "DeleteFailed"
	ErrorKindConfigFailed       ErrorKind = "ConfigFailed"
	ErrorKindUnknown            ErrorKind = "Unknown"
)

// Page identifies a screen of the client.
type Page string

const (
	PageLogin        Page = "/login"
	PageHome         Page = "/home"
	PagePaciente     Page = "/paciente"
	PageMedicamento  Page = "/medicamento"
	PageFarmaceutico Page = "/farmaceutico"
	PageTratamento   Page = "/tratamento"
)

// Resource names a backend collection.
type Resource string

const (
	ResourcePaciente     Resource = "paciente"
	ResourceMedicamento  Resource = "medicamento"
	ResourceFarmaceutico Resource = "farmaceutico"
	ResourceTratamento   Resource = "tratamento"
)

// Resources lists every collection in navigation order.
var Resources = []Resource{ResourcePaciente, ResourceMedicamento, ResourceFarmaceutico, ResourceTratamento}

// Path is the REST collection path, e.g. "/paciente".
func (r Resource) Path() string {
	return "/" + string(r)
}

// Page is the screen that lists the resource.
func (r Resource) Page() Page {
	return Page(r.Path())
}

// Valid reports whether r is a known collection.
func (r Resource) Valid() bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}

// ResourceForPage maps a list page back to its resource.
func ResourceForPage(p Page) (Resource, bool) {
	for _, r := range Resources {
		if r.Page() == p {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether p is a screen the client knows.
func (p Page) Valid() bool {
	if p == PageLogin || p == PageHome {
		return true
	}
	_, ok := ResourceForPage(p)
	return ok
}

// Treatment statuses offered by the forms.
const (
	StatusNaoIniciado = "Nao_iniciado"
	StatusAtivo       = "Ativo"
	StatusPausado     = "Pausado"
	StatusCancelado   = "Cancelado"
	StatusConcluido   = "Concluido"
)

// TratamentoStatuses lists the statuses in form order.
var TratamentoStatuses = []string{StatusNaoIniciado, StatusAtivo, StatusPausado, StatusCancelado, StatusConcluido}

// Paciente is a patient record in canonical form.
type Paciente struct {
	ID             string `json:"id"`
	NomeCompleto   string `json:"nome_completo"`
	CPF            string `json:"cpf"`
	Telefone       string `json:"telefone,omitempty"`
	Email          string `json:"email,omitempty"`
	DataNascimento string `json:"data_nascimento,omitempty"`
	Genero         string `json:"genero,omitempty"`
	Profissao      string `json:"profissao,omitempty"`
	FarmaceuticoID string `json:"farmaceutico_id,omitempty"`
}

// Medicamento is a medication record in canonical form.
type Medicamento struct {
	ID             string `json:"id"`
	Nome           string `json:"nome"`
	Dosagem        string `json:"dosagem,omitempty"`
	Tipo           string `json:"tipo,omitempty"`
	Tarja          string `json:"tarja,omitempty"`
	ViaConsumo     string `json:"via_consumo,omitempty"`
	MgMl           string `json:"mg_ml,omitempty"`
	Alertas        string `json:"alertas,omitempty"`
	PrincipioAtivo string `json:"principio_ativo,omitempty"`
}

// Farmaceutico is a pharmacist record in canonical form. Senha is only sent,
// never read back.
type Farmaceutico struct {
	ID        string `json:"id"`
	Nome      string `json:"nome"`
	Sobrenome string `json:"sobrenome,omitempty"`
	CPF       string `json:"cpf"`
	Telefone  string `json:"telefone,omitempty"`
	Email     string `json:"email,omitempty"`
	Matricula string `json:"matricula,omitempty"`
	Genero    string `json:"genero,omitempty"`
	Senha     string `json:"-"`
}

// NomeCompleto joins first and last name.
func (f Farmaceutico) NomeCompleto() string {
	if f.Sobrenome == "" {
		return f.Nome
	}
	if f.Nome == "" {
		return f.Sobrenome
	}
	return f.Nome + " " + f.Sobrenome
}

// Tratamento is a treatment record in canonical form.
type Tratamento struct {
	ID           string `json:"id"`
	PacienteID   string `json:"paciente_id"`
	PacienteNome string `json:"paciente_nome"`
	Diagnostico  string `json:"diagnostico"`
	DataInicio   string `json:"data_inicio"`
	DataTermino  string `json:"data_termino,omitempty"`
	Status       string `json:"status"`
	Observacoes  string `json:"observacoes,omitempty"`
}

// UserProfile is the logged-in user as reported by the login response.
type UserProfile struct {
	Email  string `json:"email"`
	Nome   string `json:"nome"`
	Perfil string `json:"perfil"`
}

// ErrorInfo describes a failure for the UI and the logs.
type ErrorInfo struct {
	Kind             ErrorKind
	UserMessage      string
	TechnicalMessage string
	OccurredAt       time.Time
}

// UIState holds what the windows need to render.
type UIState struct {
	IsLoginVisible bool
	IsMainVisible  bool
	StatusText     string
	EmailInput     string
	SenhaInput     string
	CanLogin       bool
	Busy           bool
}

// Records holds the last loaded list of every resource.
type Records struct {
	Pacientes     []Paciente
	Medicamentos  []Medicamento
	Farmaceuticos []Farmaceutico
	Tratamentos   []Tratamento
}

// Count returns how many records of r are loaded.
func (r *Records) Count(res Resource) int {
	switch res {
	case ResourcePaciente:
		return len(r.Pacientes)
	case ResourceMedicamento:
		return len(r.Medicamentos)
	case ResourceFarmaceutico:
		return len(r.Farmaceuticos)
	case ResourceTratamento:
		return len(r.Tratamentos)
	}
	return 0
}

// AppContext is the whole application state, owned by the machine loop.
type AppContext struct {
	Config    *config.Config
	User      *UserProfile
	Page      Page
	Records   Records
	LastError *ErrorInfo
	UI        UIState
	State     State
}

// NewAppContext creates the context in AppStarting.
func NewAppContext(cfg *config.Config) *AppContext {
	return &AppContext{
		Config: cfg,
		Page:   PageLogin,
		State:  StateAppStarting,
	}
}

// PacienteNome resolves a patient name from the loaded list.
func (ctx *AppContext) PacienteNome(id string) string {
	for _, p := range ctx.Records.Pacientes {
		if p.ID == id {
			return p.NomeCompleto
		}
	}
	return ""
}
