package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autocatch/internal/domain"
)

// Authenticator exchanges login details for a token and checks tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (string, error)
	Validate(ctx context.Context, token string) (domain.Identity, error)
}

// Manager resolves the token a source runs with: an explicit token first,
// then the cached one, then a login with the configured email and password.
// A token obtained or confirmed this way is written back to the store.
type Manager struct {
	mu       sync.Mutex
	store    Store
	auth     Authenticator
	token    string
	login    string
	password string
	logger   *slog.Logger
	now      func() time.Time
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store    Store
	Auth     Authenticator
	Token    string // explicit token from configuration
	Login    string
	Password string
	Logger   *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Store == nil {
		cfg.Store = NopStore{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:    cfg.Store,
		auth:     cfg.Auth,
		token:    cfg.Token,
		login:    cfg.Login,
		password: cfg.Password,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Acquire returns a validated credential. Each candidate token is validated
// once; when every token is rejected and a login is configured, a single
// login is attempted. A validation that fails for any other reason, such as
// a network error, ends the attempt without logging in.
func (m *Manager) Acquire(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		c, err := m.try(ctx, m.token, "config")
		if err == nil {
			return c, nil
		}
		if !rejected(err) {
			return Credential{}, fmt.Errorf("validate configured token: %w", err)
		}
	}

	cached, err := m.store.Load(ctx)
	switch {
	case err == nil && cached.Token != m.token:
		c, err := m.try(ctx, cached.Token, "cache")
		if err == nil {
			return c, nil
		}
		if !rejected(err) {
			return Credential{}, fmt.Errorf("validate cached token: %w", err)
		}
	case err != nil && !errors.Is(err, ErrNotFound):
		m.logger.Warn("cannot read cached credential", "err", err)
	}

	if m.login == "" || m.password == "" {
		return Credential{}, fmt.Errorf("%w: no usable token and no login configured", ErrInvalidToken)
	}
	return m.loginLocked(ctx)
}

// Login always authenticates with the configured email and password,
// replacing whatever is cached.
func (m *Manager) Login(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.login == "" || m.password == "" {
		return Credential{}, fmt.Errorf("%w: email and password are not configured", ErrInvalidCredentials)
	}
	return m.loginLocked(ctx)
}

func (m *Manager) loginLocked(ctx context.Context) (Credential, error) {
	m.logger.Info("logging in", "login", m.login)
	token, err := m.auth.Authenticate(ctx, m.login, m.password)
	if err != nil {
		m.logger.Error("login failed", "err", err)
		if rejected(err) {
			return Credential{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return Credential{}, fmt.Errorf("login: %w", err)
	}
	c, err := m.try(ctx, token, "login")
	if err != nil {
		if rejected(err) {
			return Credential{}, fmt.Errorf("%w: token from login rejected: %w", ErrInvalidToken, err)
		}
		return Credential{}, fmt.Errorf("validate token from login: %w", err)
	}
	return c, nil
}

// rejected reports whether the platform refused the token or login, as
// opposed to not answering.
func rejected(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized)
}

// try validates token and, on success, records and persists it.
func (m *Manager) try(ctx context.Context, token, source string) (Credential, error) {
	id, err := m.auth.Validate(ctx, token)
	if err != nil {
		m.logger.Warn("token validation failed", "source", source, "err", err)
		return Credential{}, err
	}

	c := Credential{
		UserID:    id.ID,
		Username:  id.Username,
		Token:     token,
		UpdatedAt: m.now(),
	}
	m.logger.Info("account connected", "user", id.Username, "user_id", id.ID, "source", source)

	if source != "cache" {
		if err := m.store.Save(ctx, c); err != nil {
			m.logger.Warn("cannot cache credential", "err", err)
		}
	}
	return c, nil
}
