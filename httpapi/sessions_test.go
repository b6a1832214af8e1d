package httpapi

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSessionStoreCreateAndGet(t *testing.T) {
	store := newSessionStore(time.Hour, "")
	token, entry := store.create("user-1")
	if token == "" {
		t.Fatal("expected a token")
	}
	if entry.id == "" {
		t.Fatal("expected a session id")
	}
	got, ok := store.get(token)
	if !ok {
		t.Fatal("expected session")
	}
	if got.userID != "user-1" {
		t.Errorf("userID = %q, want user-1", got.userID)
	}
	if _, ok := store.get("bogus"); ok {
		t.Error("unknown token should not resolve")
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store := newSessionStore(time.Millisecond, "")
	token, _ := store.create("user-1")
	time.Sleep(5 * time.Millisecond)
	if _, ok := store.get(token); ok {
		t.Fatal("expired session should not resolve")
	}
	// Expiry is one-shot: the entry is gone.
	if _, ok := store.items[token]; ok {
		t.Error("expired session should be deleted")
	}
}

func TestSessionStoreDelete(t *testing.T) {
	store := newSessionStore(time.Hour, "")
	token, _ := store.create("user-1")
	store.delete(token)
	if _, ok := store.get(token); ok {
		t.Fatal("deleted session should not resolve")
	}
	// Deleting twice is harmless.
	store.delete(token)
}

func TestSessionStoreDeleteForUser(t *testing.T) {
	store := newSessionStore(time.Hour, "")
	t1, _ := store.create("user-1")
	t2, _ := store.create("user-1")
	t3, _ := store.create("user-2")
	if n := store.deleteForUser("user-1"); n != 2 {
		t.Fatalf("deleteForUser = %d, want 2", n)
	}
	if _, ok := store.get(t1); ok {
		t.Error("first session should be gone")
	}
	if _, ok := store.get(t2); ok {
		t.Error("second session should be gone")
	}
	if _, ok := store.get(t3); !ok {
		t.Error("other user's session should survive")
	}
	if n := store.deleteForUser("user-1"); n != 0 {
		t.Errorf("second revoke = %d, want 0", n)
	}
}

func TestSessionStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sessions.json")
	store := newSessionStore(time.Hour, path)
	token, entry := store.create("user-1")

	reloaded := newSessionStore(time.Hour, path)
	got, ok := reloaded.get(token)
	if !ok {
		t.Fatal("expected persisted session after reload")
	}
	if got.userID != "user-1" {
		t.Errorf("userID = %q, want user-1", got.userID)
	}
	if got.id != entry.id {
		t.Errorf("session id = %q, want %q", got.id, entry.id)
	}
}

func TestSessionStoreLoadDropsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	records := []sessionRecord{
		{Token: "live", SessionID: "a", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
		{Token: "stale", SessionID: "b", UserID: "user-1", ExpiresAt: time.Now().Add(-time.Hour)},
		{Token: "", SessionID: "c", UserID: "user-2", ExpiresAt: time.Now().Add(time.Hour)},
	}
	if err := writeSessionFile(path, records); err != nil {
		t.Fatalf("write session file: %v", err)
	}
	store := newSessionStore(time.Hour, path)
	if _, ok := store.get("live"); !ok {
		t.Error("live session should load")
	}
	if _, ok := store.get("stale"); ok {
		t.Error("stale session should be dropped at load")
	}
	if len(store.items) != 1 {
		t.Errorf("loaded %d sessions, want 1", len(store.items))
	}
}

func TestRandomTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 64 {
		token := randomToken(32)
		if token == "" {
			t.Fatal("empty token")
		}
		if seen[token] {
			t.Fatal("duplicate token")
		}
		seen[token] = true
	}
}
