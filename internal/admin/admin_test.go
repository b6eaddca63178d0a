package admin_test

import (
	"context"
	"errors"
	"testing"

	"rollcall/internal/admin"
	"rollcall/internal/store"
)

func TestBootstrapLogin(t *testing.T) {
	ctx := context.Background()
	m := admin.NewManager(store.NewMemory())

	if _, _, err := m.Login(ctx, "root", "pw"); !errors.Is(err, admin.ErrInvalidCredentials) {
		t.Fatalf("non-bootstrap username: got %v", err)
	}

	a, created, err := m.Login(ctx, "admin", "first-password")
	if err != nil || !created {
		t.Fatalf("bootstrap: created=%v err=%v", created, err)
	}
	if a.Username != "admin" {
		t.Fatalf("username = %q", a.Username)
	}

	_, created, err = m.Login(ctx, "admin", "first-password")
	if err != nil || created {
		t.Fatalf("second login: created=%v err=%v", created, err)
	}
	if _, _, err := m.Login(ctx, "admin", "wrong"); !errors.Is(err, admin.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, _, err := m.Login(ctx, "", "x"); !errors.Is(err, admin.ErrMissingCredentials) {
		t.Fatalf("missing username: got %v", err)
	}
}

func TestNoBootstrapOnceAdminsExist(t *testing.T) {
	ctx := context.Background()
	m := admin.NewManager(store.NewMemory())
	if _, err := m.Create(ctx, "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Login(ctx, "admin", "anything"); !errors.Is(err, admin.ErrInvalidCredentials) {
		t.Fatalf("bootstrap with existing admins: got %v", err)
	}
}

func TestCreateListDelete(t *testing.T) {
	ctx := context.Background()
	m := admin.NewManager(store.NewMemory())

	alice, err := m.Create(ctx, "alice", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, "alice", "other"); !errors.Is(err, admin.ErrDuplicate) {
		t.Fatalf("duplicate: got %v", err)
	}
	if _, err := m.Create(ctx, "bob", ""); !errors.Is(err, admin.ErrMissingCredentials) {
		t.Fatalf("missing password: got %v", err)
	}
	bob, err := m.Create(ctx, "bob", "pw")
	if err != nil {
		t.Fatal(err)
	}

	list, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Username != "alice" || list[0].PasswordHash != "" {
		t.Fatalf("list = %+v", list)
	}

	if err := m.Delete(ctx, "missing"); !errors.Is(err, admin.ErrNotFound) {
		t.Fatalf("delete unknown: got %v", err)
	}
	if err := m.Delete(ctx, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, alice.ID); !errors.Is(err, admin.ErrLastAdmin) {
		t.Fatalf("delete last: got %v", err)
	}
	list, _ = m.List(ctx)
	if len(list) != 1 {
		t.Fatalf("admin count = %d, want 1", len(list))
	}
}
