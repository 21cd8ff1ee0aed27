package backend

import (
	"context"
	"strings"
	"time"

	"farmacia/client/internal/state"
)

const defaultPrescriptionName = "Medicamento"

// Prescription starts treatments for one patient, one per medication.
type Prescription struct {
	PacienteID   string
	Medicamentos []state.Medicamento
	Inicio       time.Time
}

// PrescriptionTratamento is the treatment created for med: named after the
// medication, active from inicio, with the medication id in the notes.
func PrescriptionTratamento(pacienteID string, med state.Medicamento, inicio time.Time) state.Tratamento {
	nome := strings.TrimSpace(med.Nome)
	if nome == "" {
		nome = defaultPrescriptionName
	}
	return state.Tratamento{
		PacienteID:  strings.TrimSpace(pacienteID),
		Diagnostico: nome,
		DataInicio:  inicio.Format(time.DateOnly),
		Status:      state.StatusAtivo,
		Observacoes: "Medicamento ID: " + med.ID,
	}
}

// Prescribe posts one treatment per medication, in order, and stops at the
// first failure. created counts the treatments stored before it.
func (s *Services) Prescribe(ctx context.Context, p Prescription) (created int, err error) {
	if strings.TrimSpace(p.PacienteID) == "" {
		return 0, invalid("selecione um paciente")
	}
	if len(p.Medicamentos) == 0 {
		return 0, invalid("selecione ao menos um medicamento")
	}
	inicio := p.Inicio
	if inicio.IsZero() {
		inicio = time.Now()
	}
	for _, med := range p.Medicamentos {
		if _, err := s.Tratamentos.Create(ctx, PrescriptionTratamento(p.PacienteID, med, inicio)); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
