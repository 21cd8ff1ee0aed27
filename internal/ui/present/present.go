// Package present turns loaded records into list rows and form values for
// the windows, independent of the widget toolkit.
package present

import (
	"fmt"
	"strings"

	"farmacia/client/internal/backend"
	"farmacia/client/internal/state"
	"farmacia/client/internal/textutil"
)

// Row is one line of a resource list.
type Row struct {
	ID     string
	Title  string
	Detail string
	Record any
}

var pageTitles = map[state.Page]string{
	state.PageHome:         "Início",
	state.PagePaciente:     "Pacientes",
	state.PageMedicamento:  "Medicamentos",
	state.PageFarmaceutico: "Farmacêuticos",
	state.PageTratamento:   "Tratamentos",
}

var resourceNames = map[state.Resource]string{
	state.ResourcePaciente:     "paciente",
	state.ResourceMedicamento:  "medicamento",
	state.ResourceFarmaceutico: "farmacêutico",
	state.ResourceTratamento:   "tratamento",
}

var statusLabels = map[string]string{
	state.StatusNaoIniciado: "Não iniciado",
	state.StatusAtivo:       "Ativo",
	state.StatusPausado:     "Pausado",
	state.StatusCancelado:   "Cancelado",
	state.StatusConcluido:   "Concluído",
}

func PageTitle(p state.Page) string {
	if title, ok := pageTitles[p]; ok {
		return title
	}
	return string(p)
}

// ResourceName is the singular, lower-case name of res.
func ResourceName(res state.Resource) string {
	if name, ok := resourceNames[res]; ok {
		return name
	}
	return string(res)
}

// UserCaption is the header line for the signed-in user.
func UserCaption(user *state.UserProfile) string {
	if user == nil {
		return ""
	}
	name := strings.TrimSpace(user.Nome)
	if name == "" {
		name = user.Email
	}
	if user.Perfil != "" {
		return name + " (" + user.Perfil + ")"
	}
	return name
}

func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// RowsFor lists the loaded records of res that match query, accent- and
// case-insensitively.
func RowsFor(recs *state.Records, res state.Resource, query string) []Row {
	var rows []Row
	add := func(r Row, fields ...string) {
		if textutil.MatchAny(query, fields...) {
			rows = append(rows, r)
		}
	}
	switch res {
	case state.ResourcePaciente:
		for _, p := range recs.Pacientes {
			add(Row{
				ID:    p.ID,
				Title: p.NomeCompleto,
				Detail: joinDetail("CPF "+p.CPF, p.Telefone, p.Email, "Nasc. "+backend.FormatDate(p.DataNascimento),
					pacienteFarmaceutico(recs, p)),
				Record: p,
			}, p.NomeCompleto, p.CPF, p.Email, p.Telefone)
		}
	case state.ResourceMedicamento:
		for _, med := range recs.Medicamentos {
			add(Row{
				ID:     med.ID,
				Title:  strings.TrimSpace(med.Nome + " " + med.Dosagem),
				Detail: joinDetail(med.PrincipioAtivo, med.Tipo, "Tarja "+strings.ReplaceAll(med.Tarja, "_", " "), med.ViaConsumo),
				Record: med,
			}, med.Nome, med.PrincipioAtivo, med.Tipo, med.Tarja, med.ViaConsumo)
		}
	case state.ResourceFarmaceutico:
		for _, f := range recs.Farmaceuticos {
			add(Row{
				ID:     f.ID,
				Title:  f.NomeCompleto(),
				Detail: joinDetail("CPF "+f.CPF, f.Email, f.Matricula),
				Record: f,
			}, f.NomeCompleto(), f.CPF, f.Email, f.Matricula)
		}
	case state.ResourceTratamento:
		for _, t := range recs.Tratamentos {
			nome := tratamentoPaciente(recs, t)
			add(Row{
				ID:    t.ID,
				Title: nome,
				Detail: joinDetail(t.Diagnostico,
					"Início "+backend.FormatDate(t.DataInicio),
					"Término "+backend.FormatDate(t.DataTermino),
					StatusLabel(t.Status)),
				Record: t,
			}, nome, t.Diagnostico, StatusLabel(t.Status))
		}
	}
	return rows
}

func tratamentoPaciente(recs *state.Records, t state.Tratamento) string {
	if t.PacienteNome != "" {
		return t.PacienteNome
	}
	for _, p := range recs.Pacientes {
		if p.ID == t.PacienteID {
			return p.NomeCompleto
		}
	}
	return "Paciente #" + t.PacienteID
}

func pacienteFarmaceutico(recs *state.Records, p state.Paciente) string {
	if p.FarmaceuticoID == "" {
		return ""
	}
	for _, f := range recs.Farmaceuticos {
		if f.ID == p.FarmaceuticoID {
			return "Farmacêutico " + f.NomeCompleto()
		}
	}
	return ""
}

func joinDetail(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasSuffix(p, " -") || p == "CPF" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, " | ")
}

func HomeSummary(user *state.UserProfile, recs *state.Records) string {
	var b strings.Builder
	if user != nil && user.Nome != "" {
		fmt.Fprintf(&b, "Bem-vindo, %s!\n", user.Nome)
	} else {
		b.WriteString("Bem-vindo!\n")
	}
	if user != nil && user.Email != "" {
		fmt.Fprintf(&b, "%s\n", user.Email)
	}
	b.WriteString("\nEscolha uma seção no menu para gerenciar os cadastros.")
	for _, res := range state.Resources {
		if n := recs.Count(res); n > 0 {
			fmt.Fprintf(&b, "\n%s: %d", PageTitle(res.Page()), n)
		}
	}
	return b.String()
}

// FieldKind selects the widget of a form field.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldPassword
	FieldMultiline
	FieldSelect
)

// Field is one input of a resource form.
type Field struct {
	Key      string
	Label    string
	Kind     FieldKind
	Options  []string
	Required bool
	Hint     string
}

var generos = []string{"M", "F", "NB"}

// Fields describes the form of res. Patients pick their pharmacist and
// treatments their patient from the loaded lists; recs may be nil.
func Fields(res state.Resource, recs *state.Records) []Field {
	if recs == nil {
		recs = &state.Records{}
	}
	switch res {
	case state.ResourcePaciente:
		return []Field{
			{Key: "nome", Label: "Nome completo", Required: true},
			{Key: "cpf", Label: "CPF", Required: true},
			{Key: "telefone", Label: "Telefone"},
			{Key: "email", Label: "Email"},
			{Key: "nascimento", Label: "Data de nascimento", Hint: "AAAA-MM-DD"},
			{Key: "genero", Label: "Gênero", Kind: FieldSelect, Options: generos},
			{Key: "profissao", Label: "Profissão"},
			{Key: "farmaceutico", Label: "Farmacêutico responsável", Kind: FieldSelect, Options: FarmaceuticoOptions(recs)},
		}
	case state.ResourceMedicamento:
		return []Field{
			{Key: "nome", Label: "Nome", Required: true},
			{Key: "principio", Label: "Princípio ativo"},
			{Key: "dosagem", Label: "Dosagem", Hint: "ex.: 500"},
			{Key: "mgml", Label: "mg/ml"},
			{Key: "tipo", Label: "Tipo", Kind: FieldSelect, Options: backend.Tipos},
			{Key: "tarja", Label: "Tarja", Kind: FieldSelect, Options: backend.Tarjas},
			{Key: "via", Label: "Via de consumo", Kind: FieldSelect, Options: backend.Vias},
			{Key: "alertas", Label: "Alertas", Kind: FieldMultiline},
		}
	case state.ResourceFarmaceutico:
		return []Field{
			{Key: "nome", Label: "Nome", Required: true},
			{Key: "sobrenome", Label: "Sobrenome"},
			{Key: "cpf", Label: "CPF", Required: true},
			{Key: "email", Label: "Email", Required: true},
			{Key: "telefone", Label: "Telefone"},
			{Key: "matricula", Label: "Registro (RN)"},
			{Key: "genero", Label: "Gênero", Kind: FieldSelect, Options: generos},
			{Key: "senha", Label: "Senha", Kind: FieldPassword},
		}
	case state.ResourceTratamento:
		return []Field{
			{Key: "paciente", Label: "Paciente", Kind: FieldSelect, Options: PacienteOptions(recs), Required: true},
			{Key: "diagnostico", Label: "Diagnóstico", Required: true},
			{Key: "inicio", Label: "Data de início", Hint: "AAAA-MM-DD", Required: true},
			{Key: "termino", Label: "Data de término", Hint: "AAAA-MM-DD"},
			{Key: "status", Label: "Status", Kind: FieldSelect, Options: state.TratamentoStatuses},
			{Key: "observacoes", Label: "Observações", Kind: FieldMultiline},
		}
	}
	return nil
}

// PacienteOptions lists the loaded patients as select options.
func PacienteOptions(recs *state.Records) []string {
	options := make([]string, 0, len(recs.Pacientes))
	for _, p := range recs.Pacientes {
		options = append(options, option(p.ID, p.NomeCompleto))
	}
	return options
}

// FarmaceuticoOptions lists the loaded pharmacists as select options.
func FarmaceuticoOptions(recs *state.Records) []string {
	options := make([]string, 0, len(recs.Farmaceuticos))
	for _, f := range recs.Farmaceuticos {
		options = append(options, option(f.ID, f.NomeCompleto()))
	}
	return options
}

// MedicamentoOptions lists the loaded medications as select options.
func MedicamentoOptions(recs *state.Records) []string {
	options := make([]string, 0, len(recs.Medicamentos))
	for _, med := range recs.Medicamentos {
		options = append(options, option(med.ID, strings.TrimSpace(med.Nome+" "+med.Dosagem)))
	}
	return options
}

// option renders "Nome #id", or "#id" when the name is unknown.
func option(id, nome string) string {
	nome = strings.TrimSpace(nome)
	if nome == "" {
		return "#" + id
	}
	return fmt.Sprintf("%s #%s", nome, id)
}

func idFromOption(option string) string {
	if i := strings.LastIndex(option, "#"); i >= 0 {
		return strings.TrimSpace(option[i+1:])
	}
	return ""
}

// MatchOption returns the entry of options that stands for value: the same
// text, or failing that the same id. Empty when nothing matches.
func MatchOption(options []string, value string) string {
	if value == "" {
		return ""
	}
	for _, o := range options {
		if o == value {
			return o
		}
	}
	id := idFromOption(value)
	if id == "" {
		return ""
	}
	for _, o := range options {
		if idFromOption(o) == id {
			return o
		}
	}
	return ""
}

// ValuesOf fills a form from an existing record; nil gives an empty form.
func ValuesOf(record any) map[string]string {
	switch r := record.(type) {
	case state.Paciente:
		values := map[string]string{
			"id": r.ID, "nome": r.NomeCompleto, "cpf": r.CPF, "telefone": r.Telefone,
			"email": r.Email, "nascimento": backend.DateOnly(r.DataNascimento),
			"genero": r.Genero, "profissao": r.Profissao,
		}
		if r.FarmaceuticoID != "" {
			values["farmaceutico"] = option(r.FarmaceuticoID, "")
		}
		return values
	case state.Medicamento:
		return map[string]string{
			"id": r.ID, "nome": r.Nome, "principio": r.PrincipioAtivo, "dosagem": r.Dosagem,
			"mgml": r.MgMl, "tipo": r.Tipo, "tarja": r.Tarja, "via": r.ViaConsumo, "alertas": r.Alertas,
		}
	case state.Farmaceutico:
		return map[string]string{
			"id": r.ID, "nome": r.Nome, "sobrenome": r.Sobrenome, "cpf": r.CPF, "email": r.Email,
			"telefone": r.Telefone, "matricula": r.Matricula, "genero": r.Genero,
		}
	case state.Tratamento:
		values := map[string]string{
			"id": r.ID, "diagnostico": r.Diagnostico, "inicio": backend.DateOnly(r.DataInicio),
			"termino": backend.DateOnly(r.DataTermino), "status": r.Status, "observacoes": r.Observacoes,
		}
		if r.PacienteID != "" {
			values["paciente"] = option(r.PacienteID, r.PacienteNome)
		}
		return values
	}
	return map[string]string{}
}

// RecordFrom builds the record of res from form values. Required fields are
// checked here; the backend mapping validates the rest. Missing input is
// reported as a *backend.ValidationError.
func RecordFrom(res state.Resource, values map[string]string) (any, error) {
	for _, f := range Fields(res, nil) {
		if f.Required && strings.TrimSpace(values[f.Key]) == "" {
			return nil, &backend.ValidationError{Message: "Preencha o campo " + f.Label + "."}
		}
	}
	v := func(key string) string { return strings.TrimSpace(values[key]) }
	switch res {
	case state.ResourcePaciente:
		return state.Paciente{
			ID: v("id"), NomeCompleto: v("nome"), CPF: v("cpf"), Telefone: v("telefone"),
			Email: v("email"), DataNascimento: v("nascimento"), Genero: v("genero"), Profissao: v("profissao"),
			FarmaceuticoID: idFromOption(v("farmaceutico")),
		}, nil
	case state.ResourceMedicamento:
		return state.Medicamento{
			ID: v("id"), Nome: v("nome"), PrincipioAtivo: v("principio"), Dosagem: v("dosagem"),
			MgMl: v("mgml"), Tipo: v("tipo"), Tarja: v("tarja"), ViaConsumo: v("via"), Alertas: v("alertas"),
		}, nil
	case state.ResourceFarmaceutico:
		return state.Farmaceutico{
			ID: v("id"), Nome: v("nome"), Sobrenome: v("sobrenome"), CPF: v("cpf"), Email: v("email"),
			Telefone: v("telefone"), Matricula: v("matricula"), Genero: v("genero"), Senha: values["senha"],
		}, nil
	case state.ResourceTratamento:
		status := v("status")
		if status == "" {
			status = state.StatusNaoIniciado
		}
		pacienteID := idFromOption(v("paciente"))
		if pacienteID == "" {
			return nil, errMissingPaciente
		}
		return state.Tratamento{
			ID: v("id"), PacienteID: pacienteID, Diagnostico: v("diagnostico"), DataInicio: v("inicio"),
			DataTermino: v("termino"), Status: status, Observacoes: v("observacoes"),
		}, nil
	}
	return nil, fmt.Errorf("unknown resource %q", res)
}

var (
	errMissingPaciente     = &backend.ValidationError{Message: "Selecione um paciente."}
	errMissingMedicamentos = &backend.ValidationError{Message: "Selecione ao menos um medicamento."}
)

// PrescriptionFrom resolves the new-treatment dialog: the chosen patient
// option and the checked medication options, kept in the order checked.
// Options that no longer match a loaded medication are dropped.
func PrescriptionFrom(recs *state.Records, paciente string, checked []string) (state.PrescribePayload, error) {
	pacienteID := idFromOption(paciente)
	if pacienteID == "" {
		return state.PrescribePayload{}, errMissingPaciente
	}
	byID := make(map[string]state.Medicamento, len(recs.Medicamentos))
	for _, med := range recs.Medicamentos {
		byID[med.ID] = med
	}
	var meds []state.Medicamento
	seen := make(map[string]bool, len(checked))
	for _, o := range checked {
		id := idFromOption(o)
		med, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		meds = append(meds, med)
	}
	if len(meds) == 0 {
		return state.PrescribePayload{}, errMissingMedicamentos
	}
	return state.PrescribePayload{PacienteID: pacienteID, Medicamentos: meds}, nil
}
