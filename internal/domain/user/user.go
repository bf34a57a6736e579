package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired          = errors.New("user: id is required")
	ErrEmailRequired       = errors.New("user: email is required")
	ErrPasswordHashMissing = errors.New("user: password hash is required")
	ErrNameRequired        = errors.New("user: name is required")
	ErrInvalidRole         = errors.New("user: invalid role")
	ErrEmailAlreadyUsed    = errors.New("user: email already used")
	ErrNotFound            = errors.New("user: not found")
)

type ID string

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID           ID
	Email        string
	Name         string
	PasswordHash string
	Roles        []Role
	Blocked      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, user *User) error
}

type CreateParams struct {
	ID           ID
	Email        string
	Name         string
	PasswordHash string
	Roles        []Role
	CreatedAt    time.Time
}

func NewUser(params CreateParams) (*User, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	email := normalizeEmail(params.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if strings.TrimSpace(params.PasswordHash) == "" {
		return nil, ErrPasswordHashMissing
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	roles, err := normalizeRoles(params.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []Role{RoleBuyer}
	}

	return &User{
		ID:           ID(id),
		Email:        email,
		Name:         name,
		PasswordHash: params.PasswordHash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) HasRole(role Role) bool {
	role = normalizeRole(role)
	if role == "" {
		return false
	}
	for _, current := range u.Roles {
		if normalizeRole(current) == role {
			return true
		}
	}
	return false
}

func normalizeRoles(roles []Role) ([]Role, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	seen := make(map[Role]struct{}, len(roles))
	normalized := make([]Role, 0, len(roles))
	for _, role := range roles {
		normalizedRole := normalizeRole(role)
		if normalizedRole == "" {
			return nil, ErrInvalidRole
		}
		if _, ok := seen[normalizedRole]; ok {
			continue
		}
		seen[normalizedRole] = struct{}{}
		normalized = append(normalized, normalizedRole)
	}
	return normalized, nil
}

func normalizeRole(role Role) Role {
	return Role(strings.ToLower(strings.TrimSpace(string(role))))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
