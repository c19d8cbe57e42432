package server

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/hackmesh/termhack/pkg/boltstore"
)

func TestParseLogin(t *testing.T) {
	tests := []struct {
		input                   string
		command, user, password string
	}{
		{"connect alice hunter2", "connect", "alice", "hunter2"},
		{"CONNECT alice hunter2", "connect", "alice", "hunter2"},
		{"co alice hunter2", "co", "alice", "hunter2"},
		{"create bob s3cret", "create", "bob", "s3cret"},
		{`connect "Agent Smith" hunter2`, "connect", "Agent Smith", "hunter2"},
		{"connect", "connect", "", ""},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		command, user, password := ParseLogin(tt.input)
		if command != tt.command || user != tt.user || password != tt.password {
			t.Errorf("ParseLogin(%q) = %q/%q/%q, want %q/%q/%q",
				tt.input, command, user, password, tt.command, tt.user, tt.password)
		}
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"alice", "Agent-7", "under_score", "xy"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"a", "has space", `qu"ote`, "semi;colon", "waaaaaaaaaaaaaaaaaaaaaaaaay-too-long"} {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) accepted", name)
		}
	}
}

func testStore(t *testing.T) *boltstore.Store {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("boltstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAccountRoundTrip(t *testing.T) {
	store := testStore(t)

	if err := CreateAccount(store, "alice", "hunter2"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := CreateAccount(store, "Alice", "other"); err != ErrNameTaken {
		t.Errorf("case-insensitive duplicate: err = %v", err)
	}
	if err := CheckPassword(store, "alice", "hunter2"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := CheckPassword(store, "ALICE", "hunter2"); err != nil {
		t.Errorf("case-insensitive login rejected: %v", err)
	}
	if err := CheckPassword(store, "alice", "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
	if err := CheckPassword(store, "nobody", "hunter2"); err == nil {
		t.Error("unknown account accepted")
	}
}

func TestAuthTokenRoundTrip(t *testing.T) {
	store := testStore(t)
	if err := CreateAccount(store, "alice", "hunter2"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	auth := NewAuthService(store, "test-secret")

	if _, err := auth.Login("alice", "wrong"); err == nil {
		t.Error("login with wrong password issued a token")
	}

	token, err := auth.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Player != "alice" || claims.Admin {
		t.Errorf("claims = %+v", claims)
	}
	if _, err := auth.ValidateToken(token + "x"); err == nil {
		t.Error("tampered token accepted")
	}

	// A different key cannot validate the token.
	other := NewAuthService(store, "other-secret")
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token accepted across keys")
	}
}

func TestConnManagerSingleLoginPerPlayer(t *testing.T) {
	cm := NewConnManager()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	d1 := NewDescriptor(cm.NextID(), a, 3)
	d2 := NewDescriptor(cm.NextID(), b, 3)
	cm.Add(d1)
	cm.Add(d2)

	if !cm.Login(d1, "alice") {
		t.Fatal("first login refused")
	}
	if cm.Login(d2, "alice") {
		t.Error("second login for the same player accepted")
	}
	if got := cm.GetByPlayer("alice"); got != d1 {
		t.Errorf("GetByPlayer = %v", got)
	}

	cm.Remove(d1)
	if cm.GetByPlayer("alice") != nil {
		t.Error("player still registered after remove")
	}
	if !cm.Login(d2, "alice") {
		t.Error("relogin refused after disconnect")
	}
}

func TestDescriptorCloseIdempotent(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	d := NewDescriptor(1, a, 3)

	called := 0
	d.addUnsub(func() { called++ })
	d.Close()
	d.Close()

	if !d.IsClosed() {
		t.Error("descriptor not closed")
	}
	if called != 1 {
		t.Errorf("unsubs ran %d times", called)
	}
	// Send after close must not block or panic.
	done := make(chan struct{})
	go func() { d.Send("late line"); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Send after close blocked")
	}
}
