package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"stockroute/internal/domain"
	"stockroute/internal/engine/auth"
	"stockroute/internal/events"
	"stockroute/internal/repo"
)

type AuthResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// Register creates an account and signs the user in. An existing email yields
// repo.ErrConflict.
func (e Engine) Register(ctx context.Context, email, password, name string) (AuthResult, error) {
	return e.CreateUser(ctx, email, password, name, domain.RoleUser)
}

// CreateUser creates an account with the given role and returns a token for it.
func (e Engine) CreateUser(ctx context.Context, email, password, name, role string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AuthResult{}, invalid("email and password are required")
	}
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return AuthResult{}, invalid("unknown role %q", role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return AuthResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AuthResult{}, err
	}
	defer tx.Rollback()
	u, err := e.Repo.InsertUser(ctx, tx, domain.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         role,
		CreatedAt:    e.timestamp(),
	})
	if err != nil {
		return AuthResult{}, err
	}
	if err := e.events().Append(ctx, tx, events.TypeUserRegistered, "user", UserActor(u.ID), UserActor(u.ID), events.EventPayload{"email": u.Email, "role": u.Role}); err != nil {
		return AuthResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return AuthResult{}, err
	}
	token, err := e.tokens().Issue(u)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, User: u}, nil
}

// Login checks the password and issues a fresh token.
func (e Engine) Login(ctx context.Context, email, password string) (AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return AuthResult{}, invalid("email and password are required")
	}
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return AuthResult{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return AuthResult{}, err
	}
	token, err := e.tokens().Issue(u)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, User: u}, nil
}

func (e Engine) Me(ctx context.Context, userID int64) (domain.User, error) {
	return e.Repo.GetUser(ctx, userID)
}

// Authenticate resolves a bearer token to its user.
func (e Engine) Authenticate(ctx context.Context, token string) (domain.User, error) {
	claims, err := e.tokens().Parse(token)
	if err != nil {
		return domain.User{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return domain.User{}, auth.ErrInvalidToken
	}
	u, err := e.Repo.GetUser(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidToken
	}
	return u, err
}

// AuthenticateAPIKey resolves an API key to its owner.
func (e Engine) AuthenticateAPIKey(ctx context.Context, key string) (domain.User, error) {
	if strings.TrimSpace(key) == "" {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, k.UserID)
}

// CreateAPIKey stores a new key for a user. The plaintext key is only returned here.
func (e Engine) CreateAPIKey(ctx context.Context, userID int64, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "sr_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
