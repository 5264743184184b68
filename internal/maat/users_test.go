package maat_test

import (
	"context"
	"errors"
	"testing"

	"maat-go/internal/maat"
	"maat-go/internal/model"
)

func TestService_Users(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users.SetUsers(
		model.UserRecord{Username: "bob"},
		model.UserRecord{Username: "alice", Admin: true, Extra: map[string]any{"mail": "a@example.org"}},
		model.UserRecord{Username: ""},
		model.UserRecord{Username: "bob"},
	)

	users, err := f.svc.Users(ctx)
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Fatalf("Users() = %+v, want alice and bob", users)
	}

	alice, ok, err := f.svc.User(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("User(alice) = ok %v, err %v", ok, err)
	}
	if !alice.Admin {
		t.Error("alice.Admin = false, want true")
	}
	alice.Extra["mail"] = "changed"
	again, _, _ := f.svc.User(ctx, "alice")
	if again.Extra["mail"] != "a@example.org" {
		t.Errorf("Extra[mail] = %v after caller mutation", again.Extra["mail"])
	}

	if _, ok, err := f.svc.User(ctx, "zed"); err != nil || ok {
		t.Errorf("User(zed) = ok %v, err %v; want not found", ok, err)
	}
	if got := f.users.Loads(); got != 1 {
		t.Errorf("LoadUsers calls = %d, want 1", got)
	}
}

func TestService_UserExtraIsDeepCopied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users.SetUsers(model.UserRecord{
		Username: "alice",
		Extra: map[string]any{
			"prefs":  map[string]any{"theme": "dark"},
			"groups": []any{"staff", map[string]any{"name": "lab"}},
		},
	})

	alice, ok, err := f.svc.User(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("User(alice) = ok %v, err %v", ok, err)
	}
	alice.Extra["prefs"].(map[string]any)["theme"] = "light"
	groups := alice.Extra["groups"].([]any)
	groups[0] = "guest"
	groups[1].(map[string]any)["name"] = "changed"

	users, err := f.svc.Users(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("Users() = %+v, %v", users, err)
	}
	again := users[0]
	if got := again.Extra["prefs"].(map[string]any)["theme"]; got != "dark" {
		t.Errorf("prefs.theme = %v after caller mutation, want dark", got)
	}
	groups = again.Extra["groups"].([]any)
	if groups[0] != "staff" {
		t.Errorf("groups[0] = %v after caller mutation, want staff", groups[0])
	}
	if got := groups[1].(map[string]any)["name"]; got != "lab" {
		t.Errorf("groups[1].name = %v after caller mutation, want lab", got)
	}
}

func TestService_UsersLoadFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	unreadable := errors.New("users file unreadable")
	f.users.SetError(unreadable)

	users, err := f.svc.Users(ctx)
	var se *maat.ScanError
	if !errors.As(err, &se) || !errors.Is(err, unreadable) {
		t.Fatalf("Users() error = %v, want scan error wrapping %v", err, unreadable)
	}
	if se.Namespace != maat.NamespaceUsers {
		t.Errorf("ScanError.Namespace = %q, want users", se.Namespace)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("Users() = %v, want empty non-nil slice", users)
	}

	// Without a collection directory alice owns nothing while the store is
	// down, and the users failure does not leak into collections.
	got, err := f.svc.UserCollection(ctx, "alice")
	if err != nil || got.Len() != 0 {
		t.Errorf("UserCollection() = %+v, %v; want empty without error", got, err)
	}

	f.users.SetError(nil)
	f.users.SetUsers(model.UserRecord{Username: "alice"})
	if _, ok, err := f.svc.User(ctx, "alice"); err != nil || !ok {
		t.Errorf("User(alice) after recovery = ok %v, err %v", ok, err)
	}
}
