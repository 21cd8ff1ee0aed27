// Package session keeps the bearer token cookie and the cached user profile.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"farmacia/client/internal/lifecycle"
	"farmacia/client/internal/logging"
)

const (
	component = "session"
	// CookieName matches the cookie the backend's web client uses.
	CookieName = "token"
	day        = 24 * time.Hour
)

// UserProfile is the snapshot cached after login for display code.
type UserProfile struct {
	Email  string `yaml:"email" json:"email"`
	Nome   string `yaml:"nome" json:"nome"`
	Perfil string `yaml:"perfil" json:"perfil"`
}

// Options configures a Store.
type Options struct {
	// Path of the backing file; empty keeps everything in memory.
	Path string
	// Secure sets the cookie Secure flag (production-like environments).
	Secure bool
	Logger *logging.Logger
	Now    func() time.Time
}

// Store is the single source of truth for "is the user authenticated".
type Store struct {
	mu      sync.Mutex
	path    string
	secure  bool
	logger  *logging.Logger
	now     func() time.Time
	cookie  *http.Cookie
	profile *UserProfile
	closed  bool
	// lapsed is set when a read purged an expired token; the next ClearToken
	// reports it as the end of the session.
	lapsed bool
}

type fileState struct {
	Token   *cookieRecord `yaml:"token,omitempty"`
	Profile *UserProfile  `yaml:"profile,omitempty"`
}

type cookieRecord struct {
	Name     string    `yaml:"name"`
	Value    string    `yaml:"value"`
	Path     string    `yaml:"path"`
	Expires  time.Time `yaml:"expires"`
	Secure   bool      `yaml:"secure"`
	SameSite string    `yaml:"same_site"`
}

// Open creates a store, loading any persisted cookie from opts.Path.
func Open(opts Options) (*Store, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{path: opts.Path, secure: opts.Secure, logger: opts.Logger, now: now}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetToken stores token with a lifetime of ttlDays days.
func (s *Store) SetToken(token string, ttlDays int) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("session: token is empty")
	}
	if ttlDays <= 0 {
		return fmt.Errorf("session: ttl must be positive, got %d days", ttlDays)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lifecycle.Closed(component)
	}
	s.lapsed = false
	s.cookie = &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.now().Add(time.Duration(ttlDays) * day),
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}
	s.logger.Debugf("session token stored, expires %s", s.cookie.Expires.Format(time.RFC3339))
	return s.persistLocked()
}

// Token returns the current token. Expired cookies read as absent and are
// purged from storage. After Close it reads as absent; LookupToken reports
// the closed store instead.
func (s *Store) Token() (string, bool) {
	token, ok, _ := s.LookupToken()
	return token, ok
}

// LookupToken is Token with the lifetime check: after Close it fails with a
// *lifecycle.ConfigurationError.
func (s *Store) LookupToken() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, lifecycle.Closed(component)
	}
	if s.cookie == nil {
		return "", false, nil
	}
	if !s.now().Before(s.expiryLocked()) {
		s.logger.Infof("session token expired")
		s.cookie = nil
		s.lapsed = true
		if err := s.persistLocked(); err != nil {
			s.logger.Errorf("purge expired session: %v", err)
		}
		return "", false, nil
	}
	return s.cookie.Value, true, nil
}

// Cookie returns a copy of the stored cookie, if any.
func (s *Store) Cookie() (http.Cookie, bool) {
	if _, ok := s.Token(); !ok {
		return http.Cookie{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cookie == nil {
		return http.Cookie{}, false
	}
	return *s.cookie, true
}

// ClearToken removes the token immediately. removed reports whether this call
// ended the session: true once for a stored token, or for one that expired on
// read since; false when a concurrent caller already cleared it.
func (s *Store) ClearToken() (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, lifecycle.Closed(component)
	}
	if s.cookie == nil {
		removed, s.lapsed = s.lapsed, false
		return removed, nil
	}
	s.lapsed = false
	s.cookie = nil
	s.logger.Infof("session token cleared")
	return true, s.persistLocked()
}

// SaveProfile caches the user snapshot. A nil profile is ignored, matching a
// login response without a user object.
func (s *Store) SaveProfile(profile *UserProfile) error {
	if profile == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lifecycle.Closed(component)
	}
	copied := *profile
	s.profile = &copied
	return s.persistLocked()
}

// Profile returns the cached user snapshot, if any.
func (s *Store) Profile() (UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.profile == nil {
		return UserProfile{}, false
	}
	return *s.profile, true
}

// ClearProfile drops the cached user snapshot.
func (s *Store) ClearProfile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return lifecycle.Closed(component)
	}
	s.profile = nil
	return s.persistLocked()
}

// Close ends the store's lifetime; later writes fail with a ConfigurationError.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// expiryLocked is the cookie expiry, shortened by the JWT exp claim when the
// token is a JWT that expires earlier.
func (s *Store) expiryLocked() time.Time {
	expires := s.cookie.Expires
	if exp, ok := jwtExpiry(s.cookie.Value); ok && exp.Before(expires) {
		return exp
	}
	return expires
}

// jwtExpiry reads the exp claim without verifying the signature; the client
// never holds the signing key.
func jwtExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file %s: %w", s.path, err)
	}
	var state fileState
	if err := yaml.Unmarshal(data, &state); err != nil {
		// a corrupt session file only costs a new login
		s.logger.Warnf("discarding unreadable session file %s: %v", s.path, err)
		return nil
	}
	if state.Token != nil && state.Token.Value != "" {
		s.cookie = state.Token.toCookie()
	}
	s.profile = state.Profile
	return nil
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	state := fileState{Profile: s.profile}
	if s.cookie != nil {
		state.Token = fromCookie(s.cookie)
	}
	data, err := yaml.Marshal(&state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func fromCookie(c *http.Cookie) *cookieRecord {
	sameSite := "lax"
	switch c.SameSite {
	case http.SameSiteStrictMode:
		sameSite = "strict"
	case http.SameSiteNoneMode:
		sameSite = "none"
	}
	return &cookieRecord{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}

func (r *cookieRecord) toCookie() *http.Cookie {
	sameSite := http.SameSiteLaxMode
	switch r.SameSite {
	case "strict":
		sameSite = http.SameSiteStrictMode
	case "none":
		sameSite = http.SameSiteNoneMode
	}
	name := r.Name
	if name == "" {
		name = CookieName
	}
	return &http.Cookie{
		Name:     name,
		Value:    r.Value,
		Path:     r.Path,
		Expires:  r.Expires,
		Secure:   r.Secure,
		SameSite: sameSite,
	}
}
