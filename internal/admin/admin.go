// Package admin manages administrator accounts and password login.
package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/auth"
)

// BootstrapUsername is the only username that may create the first admin by logging in.
const BootstrapUsername = "admin"

var (
	ErrNotFound           = errors.New("admin not found")
	ErrLastAdmin          = errors.New("cannot delete the last admin account")
	ErrDuplicate          = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("username and password are required")
)

// Admin is an administrator account.
type Admin struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// Store persists admin accounts.
type Store interface {
	// CreateAdmin returns ErrDuplicate when the username is taken.
	CreateAdmin(ctx context.Context, a Admin) error
	GetAdminByUsername(ctx context.Context, username string) (Admin, error)
	ListAdmins(ctx context.Context) ([]Admin, error)
	CountAdmins(ctx context.Context) (int, error)
	// DeleteAdmin refuses with ErrLastAdmin while one or fewer admins exist,
	// otherwise returns ErrNotFound for unknown ids.
	DeleteAdmin(ctx context.Context, id string) error
}

// Manager implements admin login and account management.
type Manager struct {
	store Store
}

// NewManager creates a manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Login verifies credentials. While no admin exists at all, logging in as
// BootstrapUsername creates that account from the submitted password.
// The second return value reports whether the account was just created.
func (m *Manager) Login(ctx context.Context, username, password string) (Admin, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Admin{}, false, ErrMissingCredentials
	}

	a, err := m.store.GetAdminByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		if username != BootstrapUsername {
			return Admin{}, false, ErrInvalidCredentials
		}
		n, err := m.store.CountAdmins(ctx)
		if err != nil {
			return Admin{}, false, err
		}
		if n > 0 {
			return Admin{}, false, ErrInvalidCredentials
		}
		created, err := m.Create(ctx, username, password)
		if errors.Is(err, ErrDuplicate) {
			// lost a race with another bootstrap login
			return Admin{}, false, ErrInvalidCredentials
		}
		return created, err == nil, err
	}
	if err != nil {
		return Admin{}, false, err
	}
	if !auth.CheckPassword(password, a.PasswordHash) {
		return Admin{}, false, ErrInvalidCredentials
	}
	return a, false, nil
}

// Create adds an admin account.
func (m *Manager) Create(ctx context.Context, username, password string) (Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Admin{}, ErrMissingCredentials
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Admin{}, err
	}
	a := Admin{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.CreateAdmin(ctx, a); err != nil {
		return Admin{}, err
	}
	return a, nil
}

// List returns all admins; hashes never leave the package via JSON.
func (m *Manager) List(ctx context.Context) ([]Admin, error) {
	return m.store.ListAdmins(ctx)
}

// Delete removes an admin unless it is the last one.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.DeleteAdmin(ctx, id)
}
