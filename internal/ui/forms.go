package ui

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"farmacia/client/internal/state"
	"farmacia/client/internal/ui/present"
)

// openForm shows the create (record == nil) or edit dialog of the current
// page. New treatments go through the prescription dialog instead.
func (m *Manager) openForm(record any) {
	res, ok := state.ResourceForPage(m.snap.Page)
	if !ok || m.mainWin == nil {
		return
	}
	if res == state.ResourceTratamento && record == nil {
		m.openPrescription()
		return
	}
	values := present.ValuesOf(record)
	fields := present.Fields(res, &m.snap.Records)
	items := make([]*widget.FormItem, 0, len(fields))
	getters := make(map[string]func() string, len(fields))
	for _, f := range fields {
		var obj fyne.CanvasObject
		switch f.Kind {
		case present.FieldSelect:
			options := f.Options
			current := present.MatchOption(options, values[f.Key])
			if current == "" && values[f.Key] != "" {
				// linked record not loaded yet; keep the link on save
				current = values[f.Key]
				options = append(append([]string(nil), options...), current)
			}
			sel := widget.NewSelect(options, nil)
			if current != "" {
				sel.SetSelected(current)
			}
			getters[f.Key] = func() string { return sel.Selected }
			obj = sel
		case present.FieldPassword:
			entry := widget.NewPasswordEntry()
			getters[f.Key] = func() string { return entry.Text }
			obj = entry
		case present.FieldMultiline:
			entry := widget.NewMultiLineEntry()
			entry.SetText(values[f.Key])
			entry.SetMinRowsVisible(3)
			getters[f.Key] = func() string { return entry.Text }
			obj = entry
		default:
			entry := widget.NewEntry()
			entry.SetText(values[f.Key])
			if f.Hint != "" {
				entry.SetPlaceHolder(f.Hint)
			}
			getters[f.Key] = func() string { return entry.Text }
			obj = entry
		}
		label := f.Label
		if f.Required {
			label += " *"
		}
		items = append(items, widget.NewFormItem(label, obj))
	}

	id := values["id"]
	title := "Novo " + present.ResourceName(res)
	if id != "" {
		title = "Editar " + present.ResourceName(res)
	}
	dlg := dialog.NewForm(title, "Salvar", "Cancelar", items, func(confirmed bool) {
		if !confirmed {
			return
		}
		collected := map[string]string{"id": id}
		for key, get := range getters {
			collected[key] = get()
		}
		rec, err := present.RecordFrom(res, collected)
		if err != nil {
			dialog.ShowError(err, m.mainWin)
			return
		}
		m.dispatchEvent(state.Event{
			Type:    state.EventUISave,
			Payload: state.SavePayload{Resource: res, Record: rec},
			TS:      time.Now(),
		})
	}, m.mainWin)
	dlg.Resize(fyne.NewSize(520, 0))
	dlg.Show()
}

// openPrescription starts treatments for one patient, one per checked
// medication.
func (m *Manager) openPrescription() {
	recs := m.snap.Records
	paciente := widget.NewSelect(present.PacienteOptions(&recs), nil)
	meds := widget.NewCheckGroup(present.MedicamentoOptions(&recs), nil)
	medsScroll := container.NewVScroll(meds)
	medsScroll.SetMinSize(fyne.NewSize(0, 200))
	items := []*widget.FormItem{
		widget.NewFormItem("Paciente *", paciente),
		widget.NewFormItem("Medicamentos *", medsScroll),
	}
	dlg := dialog.NewForm("Novo tratamento", "Salvar", "Cancelar", items, func(confirmed bool) {
		if !confirmed {
			return
		}
		payload, err := present.PrescriptionFrom(&recs, paciente.Selected, meds.Selected)
		if err != nil {
			dialog.ShowError(err, m.mainWin)
			return
		}
		m.dispatchEvent(state.Event{Type: state.EventUIPrescribe, Payload: payload, TS: time.Now()})
	}, m.mainWin)
	dlg.Resize(fyne.NewSize(520, 0))
	dlg.Show()
}

func (m *Manager) handleDelete() {
	res, ok := state.ResourceForPage(m.snap.Page)
	if !ok {
		return
	}
	r, ok := m.selectedRow()
	if !ok {
		return
	}
	message := fmt.Sprintf("Deseja excluir %s %q? Esta ação não pode ser desfeita.", present.ResourceName(res), r.Title)
	dialog.ShowConfirm("Excluir", message, func(confirmed bool) {
		if !confirmed {
			return
		}
		m.dispatchEvent(state.Event{
			Type:    state.EventUIDelete,
			Payload: state.DeletePayload{Resource: res, ID: r.ID},
			TS:      time.Now(),
		})
	}, m.activeWindow())
}
