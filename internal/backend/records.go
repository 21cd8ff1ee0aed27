package backend

import (
	"fmt"
	"strconv"
	"strings"

	"farmacia/client/internal/state"
)

// Incoming records are mapped from fields; every accepted spelling of a field
// is listed once here and nowhere else.

func toPaciente(f fields) (state.Paciente, error) {
	id := f.str("ID", "id")
	if id == "" {
		return state.Paciente{}, fmt.Errorf("paciente id is empty")
	}
	return state.Paciente{
		ID:             id,
		NomeCompleto:   f.str("Nome_paciente", "nome_completo", "nome"),
		CPF:            f.str("CPF"),
		Telefone:       f.str("Telefone"),
		Email:          f.str("Email"),
		DataNascimento: DateOnly(f.str("Data_Nascimento")),
		Genero:         f.str("Genero"),
		Profissao:      f.str("Profissao"),
		FarmaceuticoID: f.str("farmaceutico_id", "FarmaceuticoID"),
	}, nil
}

func toMedicamento(f fields) (state.Medicamento, error) {
	id := f.str("ID", "id")
	if id == "" {
		return state.Medicamento{}, fmt.Errorf("medicamento id is empty")
	}
	return state.Medicamento{
		ID:             id,
		Nome:           f.str("Nome_Medicamento", "nome"),
		Dosagem:        f.str("Dosagem"),
		Tipo:           f.str("Tipo"),
		Tarja:          f.str("Tarja"),
		ViaConsumo:     f.str("Via_Consumo"),
		MgMl:           f.str("Mg_Ml"),
		Alertas:        f.str("Alertas"),
		PrincipioAtivo: f.str("Principio_Ativo"),
	}, nil
}

func toFarmaceutico(f fields) (state.Farmaceutico, error) {
	id := f.str("ID", "id")
	if id == "" {
		return state.Farmaceutico{}, fmt.Errorf("farmaceutico id is empty")
	}
	nome := f.str("Nome_Farmaceutico", "nome")
	sobrenome := f.str("Sobrenome_Farmaceutico", "sobrenome")
	if nome == "" && sobrenome == "" {
		nome = f.str("nome_completo")
	}
	return state.Farmaceutico{
		ID:        id,
		Nome:      nome,
		Sobrenome: sobrenome,
		CPF:       f.str("CPF"),
		Telefone:  f.str("Telefone"),
		Email:     f.str("Email"),
		Matricula: f.str("RN", "matricula"),
		Genero:    f.str("Genero"),
	}, nil
}

func toTratamento(f fields) (state.Tratamento, error) {
	id := f.str("ID", "id")
	if id == "" {
		return state.Tratamento{}, fmt.Errorf("tratamento id is empty")
	}
	t := state.Tratamento{
		ID:          id,
		Diagnostico: f.str("Diagnostico"),
		DataInicio:  DateOnly(f.str("Data_inicio")),
		DataTermino: DateOnly(f.str("Data_termino")),
		Status:      f.str("Status"),
		Observacoes: f.str("Observacoes"),
	}
	if p := f.sub("paciente"); p != nil {
		t.PacienteID = p.str("ID", "id")
		t.PacienteNome = p.str("Nome_paciente", "nome_completo", "nome")
	}
	if t.PacienteID == "" {
		t.PacienteID = f.str("pacienteId", "paciente_id")
	}
	if t.PacienteNome == "" {
		t.PacienteNome = f.str("pacienteNome")
	}
	if t.Status == "" {
		t.Status = state.StatusNaoIniciado
	}
	return t, nil
}

func toUserProfile(f fields) *state.UserProfile {
	if f == nil {
		return nil
	}
	return &state.UserProfile{
		Email:  f.str("email"),
		Nome:   f.str("nome"),
		Perfil: f.str("perfil"),
	}
}

// Outgoing payloads use the backend's own field names.

type pacientePayload struct {
	NomePaciente   string  `json:"Nome_paciente"`
	CPF            string  `json:"CPF"`
	Telefone       *string `json:"Telefone"`
	Email          *string `json:"Email,omitempty"`
	Genero         string  `json:"Genero"`
	DataNascimento *string `json:"Data_Nascimento"`
	Profissao      *string `json:"Profissao,omitempty"`
	FarmaceuticoID *int    `json:"farmaceutico_id"`
}

func fromPaciente(p state.Paciente) (any, error) {
	nome := strings.TrimSpace(p.NomeCompleto)
	if nome == "" {
		return nil, invalid("nome do paciente é obrigatório")
	}
	cpf := strings.TrimSpace(p.CPF)
	if cpf == "" {
		return nil, invalid("CPF do paciente é obrigatório")
	}
	genero := strings.TrimSpace(p.Genero)
	if genero == "" {
		genero = "NB"
	}
	payload := pacientePayload{
		NomePaciente:   nome,
		CPF:            cpf,
		Telefone:       optional(p.Telefone),
		Email:          optional(p.Email),
		Genero:         genero,
		DataNascimento: optional(isoTimestamp(p.DataNascimento)),
		Profissao:      optional(p.Profissao),
	}
	if id := strings.TrimSpace(p.FarmaceuticoID); id != "" {
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, invalid("farmacêutico inválido: %q", id)
		}
		payload.FarmaceuticoID = &n
	}
	return payload, nil
}

type medicamentoPayload struct {
	NomeMedicamento string `json:"Nome_Medicamento"`
	Dosagem         string `json:"Dosagem"`
	Tipo            string `json:"Tipo"`
	Tarja           string `json:"Tarja"`
	ViaConsumo      string `json:"Via_Consumo"`
	MgMl            string `json:"Mg_Ml"`
	Alertas         string `json:"Alertas"`
	PrincipioAtivo  string `json:"Principio_Ativo,omitempty"`
}

func fromMedicamento(m state.Medicamento) (any, error) {
	nome := strings.ToUpper(strings.TrimSpace(m.Nome))
	if nome == "" {
		return nil, invalid("nome do medicamento é obrigatório")
	}
	return medicamentoPayload{
		NomeMedicamento: nome,
		Dosagem:         CleanNumeric(strings.TrimSpace(m.Dosagem)),
		Tipo:            strings.TrimSpace(m.Tipo),
		Tarja:           NormalizeTarja(m.Tarja),
		ViaConsumo:      NormalizeVia(m.ViaConsumo),
		MgMl:            CleanNumeric(strings.TrimSpace(m.MgMl)),
		Alertas:         strings.TrimSpace(m.Alertas),
		PrincipioAtivo:  strings.ToUpper(strings.TrimSpace(m.PrincipioAtivo)),
	}, nil
}

type farmaceuticoPayload struct {
	Nome      string `json:"Nome_Farmaceutico"`
	Sobrenome string `json:"Sobrenome_Farmaceutico"`
	Email     string `json:"Email"`
	CPF       string `json:"CPF"`
	RN        string `json:"RN"`
	Telefone  string `json:"Telefone"`
	Genero    string `json:"Genero"`
	Senha     string `json:"senha,omitempty"`
	PerfilID  int    `json:"Perfil_ID"`
}

// defaultPerfilID is the pharmacist profile in the backend.
const defaultPerfilID = 1

func fromFarmaceutico(f state.Farmaceutico) (any, error) {
	nome := strings.TrimSpace(f.Nome)
	if nome == "" {
		return nil, invalid("nome do farmacêutico é obrigatório")
	}
	if strings.TrimSpace(f.CPF) == "" {
		return nil, invalid("CPF do farmacêutico é obrigatório")
	}
	if f.ID == "" && f.Senha == "" {
		return nil, invalid("senha é obrigatória no cadastro")
	}
	return farmaceuticoPayload{
		Nome:      nome,
		Sobrenome: strings.TrimSpace(f.Sobrenome),
		Email:     strings.TrimSpace(f.Email),
		CPF:       strings.TrimSpace(f.CPF),
		RN:        strings.TrimSpace(f.Matricula),
		Telefone:  strings.TrimSpace(f.Telefone),
		Genero:    strings.TrimSpace(f.Genero),
		Senha:     f.Senha,
		PerfilID:  defaultPerfilID,
	}, nil
}

type tratamentoPayload struct {
	PacienteID    int     `json:"pacienteId"`
	PacienteIDAlt int     `json:"paciente_id"`
	Diagnostico   string  `json:"Diagnostico"`
	DataInicio    string  `json:"Data_inicio"`
	DataTermino   *string `json:"Data_termino,omitempty"`
	Status        string  `json:"Status"`
	Observacoes   *string `json:"Observacoes,omitempty"`
}

func fromTratamento(t state.Tratamento) (any, error) {
	pacienteID, err := strconv.Atoi(strings.TrimSpace(t.PacienteID))
	if err != nil || pacienteID <= 0 {
		return nil, invalid("selecione um paciente")
	}
	if strings.TrimSpace(t.Diagnostico) == "" {
		return nil, invalid("diagnóstico é obrigatório")
	}
	inicio := DateOnly(t.DataInicio)
	if _, ok := ParseDate(inicio); !ok {
		return nil, invalid("data de início inválida: %q", t.DataInicio)
	}
	status := strings.TrimSpace(t.Status)
	if status == "" {
		status = state.StatusNaoIniciado
	}
	return tratamentoPayload{
		PacienteID:    pacienteID,
		PacienteIDAlt: pacienteID,
		Diagnostico:   strings.TrimSpace(t.Diagnostico),
		DataInicio:    inicio,
		DataTermino:   optional(DateOnly(t.DataTermino)),
		Status:        status,
		Observacoes:   optional(t.Observacoes),
	}, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// ValidationError is a record the client refuses to send. Message is meant
// for the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
