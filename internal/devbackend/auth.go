package devbackend

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password; callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers malformed, expired and revoked tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmailTaken is returned when registering an email twice.
	ErrEmailTaken = errors.New("email already registered")
)

// Claims is the payload of the tokens issued by Login.
type Claims struct {
	Email  string `json:"email"`
	Nome   string `json:"nome,omitempty"`
	Perfil string `json:"perfil,omitempty"`
	jwt.RegisteredClaims
}

// Account is a user that can log in.
type Account struct {
	Email  string `json:"email"`
	Nome   string `json:"nome"`
	Perfil string `json:"perfil"`
	hash   []byte
}

// Authenticator checks passwords and issues HS256 tokens. Every issued token
// id is tracked until it expires or is revoked.
type Authenticator struct {
	mu       sync.Mutex
	key      []byte
	ttl      time.Duration
	cost     int
	now      func() time.Time
	accounts map[string]Account
	sessions map[string]time.Time
}

// NewAuthenticator signs tokens with key; each lives for ttl.
func NewAuthenticator(key string, ttl time.Duration) *Authenticator {
	return &Authenticator{
		key:      []byte(key),
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		accounts: make(map[string]Account),
		sessions: make(map[string]time.Time),
	}
}

// Register hashes the password and adds the account.
func (a *Authenticator) Register(u UserSeed) error {
	email := normalizeEmail(u.Email)
	if email == "" || u.Senha == "" {
		return errors.New("email and senha are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Senha), a.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.accounts[email]; exists {
		return ErrEmailTaken
	}
	a.accounts[email] = Account{Email: email, Nome: u.Nome, Perfil: u.Perfil, hash: hash}
	return nil
}

// SetPassword replaces the password of an existing account.
func (a *Authenticator) SetPassword(email, senha string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(senha), a.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.accounts[normalizeEmail(email)]
	if !ok {
		return fmt.Errorf("unknown account %s", email)
	}
	acc.hash = hash
	a.accounts[acc.Email] = acc
	return nil
}

// Remove deletes the account. Tokens already issued stay valid until they
// expire.
func (a *Authenticator) Remove(email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.accounts, normalizeEmail(email))
}

// Exists reports whether an account uses email.
func (a *Authenticator) Exists(email string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.accounts[normalizeEmail(email)]
	return ok
}

// Login checks the credentials and issues a token.
func (a *Authenticator) Login(email, senha string) (string, Account, error) {
	a.mu.Lock()
	acc, ok := a.accounts[normalizeEmail(email)]
	a.mu.Unlock()
	if !ok {
		return "", Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(senha)); err != nil {
		return "", Account{}, ErrInvalidCredentials
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		Email:  acc.Email,
		Nome:   acc.Nome,
		Perfil: acc.Perfil,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   acc.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", Account{}, fmt.Errorf("sign token: %w", err)
	}
	a.mu.Lock()
	a.sessions[claims.ID] = expires
	a.mu.Unlock()
	return token, acc, nil
}

// Verify parses the token and checks that its session is still tracked.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	expires, ok := a.sessions[claims.ID]
	if !ok || !a.now().Before(expires) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke forgets the session with the given token id.
func (a *Authenticator) Revoke(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, id)
}

// PruneExpired drops expired sessions and returns how many were removed.
func (a *Authenticator) PruneExpired() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	removed := 0
	for id, expires := range a.sessions {
		if !now.Before(expires) {
			delete(a.sessions, id)
			removed++
		}
	}
	return removed
}

// ActiveSessions returns the number of tracked sessions.
func (a *Authenticator) ActiveSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
