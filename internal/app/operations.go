package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"farmacia/client/internal/apiclient"
	"farmacia/client/internal/backend"
	"farmacia/client/internal/notify"
	"farmacia/client/internal/state"
)

const (
	requestTimeout = 15 * time.Second

	msgNetworkUnavailable = "Não foi possível conectar ao servidor. Verifique sua conexão."
	msgRecoverSent        = "Enviamos um email com instruções para redefinir sua senha."
	msgRecoverFailed      = "Não foi possível processar sua solicitação."
	msgCreated            = "Adicionado com sucesso!"
	msgUpdated            = "Atualizado com sucesso!"
)

var saveFailed = map[state.Resource]string{
	state.ResourcePaciente:     "Erro ao atualizar paciente",
	state.ResourceMedicamento:  "Erro ao salvar medicamento. Tente novamente.",
	state.ResourceFarmaceutico: "Erro ao salvar farmacêutico.",
	state.ResourceTratamento:   "Erro ao salvar tratamento.",
}

const (
	createPacienteFailed = "Erro ao cadastrar paciente. Tente novamente."
	prescribeFailed      = "Erro ao salvar alguns tratamentos."
)

var deleteFailed = map[state.Resource]string{
	state.ResourcePaciente:     "Erro ao excluir paciente.",
	state.ResourceMedicamento:  "Erro ao excluir medicamento.",
	state.ResourceFarmaceutico: "Erro ao excluir farmacêutico.",
	state.ResourceTratamento:   "Erro ao excluir tratamento.",
}

func (a *Application) startAuth(email, senha string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(requestTimeout)
	defer cancel()
	result, err := a.core.Login(ctx, email, senha)
	if err != nil {
		a.logger.Errorf("auth request failed: %v", err)
		payload := buildFailurePayload(err, state.ErrorKindAuthFailed, "", state.MsgLoginFailed)
		_ = a.dispatch(state.Event{Type: state.EventSysAuthFailure, Payload: payload})
		return
	}
	a.logger.Infof("auth succeeded, token length %d", len(result.Token))
	_ = a.dispatch(state.Event{Type: state.EventSysAuthSuccess, Payload: state.AuthSuccessPayload{User: result.User}})
}

func (a *Application) startRecoverPassword(email string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(requestTimeout)
	defer cancel()
	if err := a.core.Services.Auth.RecoverPassword(ctx, email); err != nil {
		a.logger.Warnf("password recovery failed: %v", err)
		payload := buildFailurePayload(err, state.ErrorKindUnknown, "", msgRecoverFailed)
		a.notifyCtx(ctx, notify.KindError, payload.Message)
		return
	}
	a.notifyCtx(ctx, notify.KindSuccess, msgRecoverSent)
}

func (a *Application) startLogout() {
	if err := a.core.Logout(); err != nil {
		a.logger.Errorf("logout cleanup failed: %v", err)
	}
}

func (a *Application) startLoad(res state.Resource) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(requestTimeout)
	defer cancel()
	records, err := a.core.List(ctx, res)
	if err != nil {
		if apiclient.IsUnauthenticated(err) {
			// the auth guard already sent the machine back to the login page
			a.logger.Debugf("load %s rejected: session expired", res)
			return
		}
		a.logger.Errorf("load %s failed: %v", res, err)
		payload := buildFailurePayload(err, state.ErrorKindLoadFailed, res, state.MsgLoadFailed)
		_ = a.dispatch(state.Event{Type: state.EventSysDataFailed, Payload: payload})
		return
	}
	_ = a.dispatch(state.Event{Type: state.EventSysDataLoaded, Payload: state.DataLoadedPayload{Resource: res, Records: records}})
}

func (a *Application) startSave(res state.Resource, record any) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(requestTimeout)
	defer cancel()
	created, err := a.core.Save(ctx, res, record)
	if err != nil {
		a.logger.Errorf("save %s failed: %v", res, err)
		fallback := saveFailed[res]
		if created && res == state.ResourcePaciente {
			fallback = createPacienteFailed
		}
		if fallback == "" {
			fallback = state.MsgSaveFailed
		}
		payload := buildFailurePayload(err, state.ErrorKindSaveFailed, res, fallback)
		_ = a.dispatch(state.Event{Type: state.EventSysMutationFailure, Payload: payload})
		return
	}
	message := msgUpdated
	if created {
		message = msgCreated
	}
	_ = a.dispatch(state.Event{Type: state.EventSysMutationDone, Payload: state.MutationPayload{Resource: res, Message: message}})
}

func (a *Application) startDelete(res state.Resource, id string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(requestTimeout)
	defer cancel()
	if err := a.core.Delete(ctx, res, id); err != nil {
		a.logger.Errorf("delete %s/%s failed: %v", res, id, err)
		fallback := deleteFailed[res]
		if fallback == "" {
			fallback = state.MsgDeleteFailed
		}
		payload := buildFailurePayload(err, state.ErrorKindDeleteFailed, res, fallback)
		_ = a.dispatch(state.Event{Type: state.EventSysMutationFailure, Payload: payload})
		return
	}
	_ = a.dispatch(state.Event{Type: state.EventSysMutationDone, Payload: state.MutationPayload{Resource: res, Message: state.MsgDeleted}})
}

func (a *Application) startPrescribe(p state.PrescribePayload) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(requestTimeout)
	defer cancel()
	created, err := a.core.Prescribe(ctx, p.PacienteID, p.Medicamentos)
	if err != nil {
		a.logger.Errorf("prescribe for paciente %s failed after %d of %d: %v", p.PacienteID, created, len(p.Medicamentos), err)
		payload := buildFailurePayload(err, state.ErrorKindSaveFailed, state.ResourceTratamento, prescribeFailed)
		if created > 0 {
			payload.Message = prescribeFailed
			payload.Stale = true
		}
		_ = a.dispatch(state.Event{Type: state.EventSysMutationFailure, Payload: payload})
		return
	}
	_ = a.dispatch(state.Event{Type: state.EventSysMutationDone, Payload: state.MutationPayload{
		Resource: state.ResourceTratamento,
		Message:  prescribedMessage(created),
	}})
}

func prescribedMessage(n int) string {
	if n == 1 {
		return "Tratamento adicionado com sucesso!"
	}
	return fmt.Sprintf("%d tratamentos adicionados com sucesso!", n)
}

// buildFailurePayload turns err into what the user sees: a validation
// message, a connectivity hint, the server's reason or fallback.
func buildFailurePayload(err error, kind state.ErrorKind, res state.Resource, fallback string) state.ScenarioResultPayload {
	payload := state.ScenarioResultPayload{Kind: kind, Resource: res, Message: fallback}
	if err == nil {
		return payload
	}
	payload.TechnicalMessage = err.Error()
	var validation *backend.ValidationError
	var netErr *apiclient.NetworkError
	switch {
	case errors.As(err, &validation):
		payload.Message = validation.Message
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Status == 0:
		payload.Kind = state.ErrorKindNetworkUnavailable
		payload.Message = msgNetworkUnavailable
	default:
		payload.Message = apiclient.UserMessage(err, fallback)
	}
	return payload
}

func (a *Application) notifyCtx(ctx context.Context, kind notify.Kind, message string) {
	if err := notify.Show(ctx, kind, message); err != nil {
		a.logger.Warnf("notification dropped (%s): %v", message, err)
	}
}

func (a *Application) requestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = requestTimeout
	}
	parent := a.runCtx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

func (a *Application) isStopping() bool {
	if a.runCtx == nil {
		return false
	}
	select {
	case <-a.runCtx.Done():
		return true
	default:
		return false
	}
}
