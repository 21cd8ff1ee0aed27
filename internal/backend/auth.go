package backend

import (
	"context"
	"errors"
	"strings"

	"farmacia/client/internal/apiclient"
	"farmacia/client/internal/logging"
	"farmacia/client/internal/state"
)

// RecoverPasswordPath is the password recovery endpoint.
const RecoverPasswordPath = "/recuperar-senha"

// ErrNoToken is returned when a login response carries no token.
var ErrNoToken = errors.New("login response has no token")

// Auth talks to the authentication endpoints.
type Auth struct {
	api    API
	logger *logging.Logger
}

// LoginResult is the outcome of a successful login. User is nil when the
// backend did not send one.
type LoginResult struct {
	Token string
	User  *state.UserProfile
}

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// Login exchanges credentials for a token. A 401 here never triggers the
// forced-login policy.
func (a *Auth) Login(ctx context.Context, email, senha string) (LoginResult, error) {
	resp, err := a.api.Post(ctx, apiclient.LoginEndpoint, loginRequest{Email: strings.TrimSpace(email), Senha: senha})
	if err != nil {
		return LoginResult{}, err
	}
	obj, err := decodeObject(resp.Body)
	if err != nil {
		return LoginResult{}, &apiclient.DecodeError{Op: "login", Err: err}
	}
	token := obj.str("token", "accessToken", "authToken")
	if token == "" {
		return LoginResult{}, &apiclient.DecodeError{Op: "login", Err: ErrNoToken}
	}
	result := LoginResult{Token: token, User: toUserProfile(obj.sub("user"))}
	if result.User == nil {
		a.logger.Debugf("login response without user object")
	}
	return result, nil
}

// RecoverPassword asks the backend to email reset instructions.
func (a *Auth) RecoverPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("informe seu email")
	}
	_, err := a.api.Post(ctx, RecoverPasswordPath, map[string]string{"email": email}, apiclient.SkipAuthRedirect())
	return err
}
