package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"github.com/inframind/inframind/internal/appconfig"
	"github.com/inframind/inframind/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewStoreWithLogger(path, nil, DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func addTestUser(t *testing.T, store *Store, email, password string) User {
	t.Helper()
	user, err := store.AddUser(User{
		Email:        email,
		Name:         "Test User",
		Role:         schema.RoleAnalyst,
		PasswordHash: mustHash(t, password),
	})
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	return user
}

func TestStoreRejectsInvalidSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	_, err := NewStoreWithLogger(path, []appconfig.SeedUser{
		{Email: "not-an-email", PasswordHash: "hash"},
	}, DefaultPolicy(), nil)
	if err == nil {
		t.Fatalf("expected error for invalid seed email")
	}
}

func TestStoreSeedsUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewStoreWithLogger(path, []appconfig.SeedUser{
		{Email: "Ops@Example.com", Name: "Ops", Role: "admin", PasswordHash: mustHash(t, "pass")},
	}, DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	user, ok := store.Lookup("ops@example.com")
	if !ok {
		t.Fatalf("expected seeded user")
	}
	if user.Role != schema.RoleAdmin {
		t.Errorf("Role = %q, want admin", user.Role)
	}
	if user.ID == "" {
		t.Error("seeded user should get an ID")
	}
}

func TestStoreAddUserDuplicate(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "alice@example.com", "pass")
	_, err := store.AddUser(User{
		Email:        "ALICE@example.com",
		Role:         schema.RoleViewer,
		PasswordHash: "hash",
	})
	if !errors.Is(err, schema.ErrUserExists) {
		t.Fatalf("err = %v, want ErrUserExists", err)
	}
}

func TestStoreAuthenticate(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "alice@example.com", "correct-horse")
	user, err := store.Authenticate("Alice@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q", user.Email)
	}
	if _, err := store.Authenticate("alice@example.com", "wrong"); !errors.Is(err, schema.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := store.Authenticate("nobody@example.com", "whatever"); !errors.Is(err, schema.ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestStoreLockout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewStoreWithLogger(path, nil, Policy{LockoutThreshold: 3, LockoutWindow: 15 * time.Minute}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	addTestUser(t, store, "alice@example.com", "pass")

	for range 2 {
		if _, err := store.Authenticate("alice@example.com", "wrong"); !errors.Is(err, schema.ErrInvalidCredentials) {
			t.Fatalf("err = %v, want ErrInvalidCredentials", err)
		}
	}
	// Third failure crosses the threshold.
	if _, err := store.Authenticate("alice@example.com", "wrong"); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := store.Authenticate("alice@example.com", "pass"); !errors.Is(err, schema.ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked even with correct password", err)
	}
	locked, until := store.Locked("alice@example.com")
	if !locked {
		t.Fatal("expected account to be locked")
	}
	if want := now.Add(15 * time.Minute); !until.Equal(want) {
		t.Errorf("until = %v, want %v", until, want)
	}

	now = now.Add(16 * time.Minute)
	if _, err := store.Authenticate("alice@example.com", "pass"); err != nil {
		t.Fatalf("authenticate after lockout expired: %v", err)
	}
}

func TestStoreLockoutWindowSlides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewStoreWithLogger(path, nil, Policy{LockoutThreshold: 3, LockoutWindow: 15 * time.Minute}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	addTestUser(t, store, "alice@example.com", "pass")

	_, _ = store.Authenticate("alice@example.com", "wrong")
	_, _ = store.Authenticate("alice@example.com", "wrong")
	// Old failures age out before the third arrives.
	now = now.Add(20 * time.Minute)
	_, _ = store.Authenticate("alice@example.com", "wrong")
	if locked, _ := store.Locked("alice@example.com"); locked {
		t.Fatal("stale failures should not lock the account")
	}
}

func TestStoreBackupCodes(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "alice@example.com", "pass")

	codes, hashes, err := GenerateBackupCodes(10)
	if err != nil {
		t.Fatalf("generate backup codes: %v", err)
	}
	if len(codes) != 10 || len(hashes) != 10 {
		t.Fatalf("got %d codes, %d hashes", len(codes), len(hashes))
	}
	for _, code := range codes {
		if len(code) != schema.BackupCodeLength {
			t.Errorf("code %q length = %d", code, len(code))
		}
		for _, c := range code {
			if !strings.ContainsRune(schema.BackupCodeAlphabet, c) {
				t.Errorf("code %q contains %q outside alphabet", code, c)
			}
		}
	}
	if err := store.SetBackupCodes("alice@example.com", hashes); err != nil {
		t.Fatalf("set backup codes: %v", err)
	}
	remaining, err := store.BackupCodesRemaining("alice@example.com")
	if err != nil || remaining != 10 {
		t.Fatalf("remaining = %d, err = %v", remaining, err)
	}

	// Codes are accepted with cosmetic dashes and lowercase.
	dashed := strings.ToLower(codes[0][:4] + "-" + codes[0][4:])
	if err := store.ConsumeBackupCode("alice@example.com", dashed); err != nil {
		t.Fatalf("consume backup code: %v", err)
	}
	if err := store.ConsumeBackupCode("alice@example.com", codes[0]); !errors.Is(err, schema.ErrInvalidBackupCode) {
		t.Fatalf("second consume err = %v, want ErrInvalidBackupCode", err)
	}
	remaining, _ = store.BackupCodesRemaining("alice@example.com")
	if remaining != 9 {
		t.Fatalf("remaining = %d, want 9", remaining)
	}
}

func TestStoreTOTPLifecycle(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "alice@example.com", "pass")

	if err := store.ValidateTOTP("alice@example.com", "123456"); !errors.Is(err, schema.ErrMFANotEnrolled) {
		t.Fatalf("err = %v, want ErrMFANotEnrolled", err)
	}
	secret := "JBSWY3DPEHPK3PXP"
	if err := store.UpdateTOTP("alice@example.com", secret, true); err != nil {
		t.Fatalf("update totp: %v", err)
	}
	if err := store.ValidateTOTP("alice@example.com", mustTOTP(t, secret)); err != nil {
		t.Fatalf("validate totp: %v", err)
	}
	if err := store.ValidateTOTP("alice@example.com", "000000"); !errors.Is(err, schema.ErrInvalidMFACode) {
		t.Fatalf("err = %v, want ErrInvalidMFACode", err)
	}

	_, hashes, err := GenerateBackupCodes(10)
	if err != nil {
		t.Fatalf("generate backup codes: %v", err)
	}
	if err := store.SetBackupCodes("alice@example.com", hashes); err != nil {
		t.Fatalf("set backup codes: %v", err)
	}
	// Disabling MFA invalidates outstanding backup codes.
	if err := store.UpdateTOTP("alice@example.com", "", false); err != nil {
		t.Fatalf("disable totp: %v", err)
	}
	remaining, err := store.BackupCodesRemaining("alice@example.com")
	if err != nil || remaining != 0 {
		t.Fatalf("remaining = %d, err = %v, want 0", remaining, err)
	}
}

func TestStoreChangePassword(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "alice@example.com", "old-pass")
	if err := store.ChangePassword("alice@example.com", "old-pass", "new-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := store.Authenticate("alice@example.com", "new-pass"); err != nil {
		t.Fatalf("authenticate new password: %v", err)
	}
	if _, err := store.Authenticate("alice@example.com", "old-pass"); err == nil {
		t.Fatalf("expected old password to fail")
	}
}

func TestStoreReloadsPasswordChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	writer, err := NewStoreWithLogger(path, nil, DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	addTestUser(t, writer, "alice@example.com", "old-pass")
	reader, err := NewStoreWithLogger(path, nil, DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new store reader: %v", err)
	}
	if _, err := reader.Authenticate("alice@example.com", "old-pass"); err != nil {
		t.Fatalf("authenticate old password: %v", err)
	}
	if err := writer.UpdatePassword("alice@example.com", mustHash(t, "new-pass")); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if _, err := reader.Authenticate("alice@example.com", "new-pass"); err != nil {
		t.Fatalf("authenticate new password: %v", err)
	}
	if _, err := reader.Authenticate("alice@example.com", "old-pass"); err == nil {
		t.Fatalf("expected old password to fail after refresh")
	}
}

func TestStoreReloadsUserAddDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	writer, err := NewStoreWithLogger(path, nil, DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reader, err := NewStoreWithLogger(path, nil, DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new store reader: %v", err)
	}
	addTestUser(t, writer, "bob@example.com", "pass")
	if _, err := reader.Authenticate("bob@example.com", "pass"); err != nil {
		t.Fatalf("authenticate new user: %v", err)
	}
	if err := writer.DeleteUser("bob@example.com"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := reader.Authenticate("bob@example.com", "pass"); err == nil {
		t.Fatalf("expected deleted user login to fail")
	}
}

func TestStoreGoogleSubject(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "alice@example.com", "pass")
	if _, ok := store.LookupByGoogleSubject("sub-123"); ok {
		t.Fatal("unexpected match before linking")
	}
	if err := store.LinkGoogleSubject("alice@example.com", "sub-123"); err != nil {
		t.Fatalf("link google subject: %v", err)
	}
	user, ok := store.LookupByGoogleSubject("sub-123")
	if !ok {
		t.Fatal("expected match after linking")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q", user.Email)
	}
}

func TestStoreLoginPubKeys(t *testing.T) {
	store := newTestStore(t)
	addTestUser(t, store, "ops@example.com", "pass")

	first := mustAuthorizedKey(t)
	second := mustAuthorizedKey(t)

	id, err := store.AddLoginPubKey("ops@example.com", first.line)
	if err != nil {
		t.Fatalf("add pubkey: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
	if _, err := store.AddLoginPubKey("ops@example.com", first.line); err == nil {
		t.Fatal("expected duplicate pubkey to fail")
	}
	if _, err := store.AddLoginPubKey("ops@example.com", "not a key"); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}

	ok, err := store.HasLoginPubKey("ops@example.com", first.key)
	if err != nil || !ok {
		t.Fatalf("HasLoginPubKey = %v, %v, want true", ok, err)
	}
	ok, err = store.HasLoginPubKey("ops@example.com", second.key)
	if err != nil || ok {
		t.Fatalf("HasLoginPubKey(other) = %v, %v, want false", ok, err)
	}

	keys, err := store.ListLoginPubKeys("ops@example.com")
	if err != nil {
		t.Fatalf("list pubkeys: %v", err)
	}
	if len(keys) != 1 || keys[0] != first.line {
		t.Errorf("keys = %v", keys)
	}

	if err := store.RemoveLoginPubKey("ops@example.com", 2); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("remove out of range err = %v", err)
	}
	if err := store.RemoveLoginPubKey("ops@example.com", 1); err != nil {
		t.Fatalf("remove pubkey: %v", err)
	}
	ok, err = store.HasLoginPubKey("ops@example.com", first.key)
	if err != nil || ok {
		t.Fatalf("HasLoginPubKey after remove = %v, %v, want false", ok, err)
	}
}

type testKey struct {
	line string
	key  ssh.PublicKey
}

func mustAuthorizedKey(t *testing.T) testKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("ssh public key: %v", err)
	}
	return testKey{
		line: strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))),
		key:  sshPub,
	}
}

func TestStoreGetByID(t *testing.T) {
	store := newTestStore(t)
	added := addTestUser(t, store, "alice@example.com", "pass")
	user, ok := store.Get(added.ID)
	if !ok {
		t.Fatal("expected user by id")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q", user.Email)
	}
	if _, ok := store.Get("missing"); ok {
		t.Error("unexpected match for unknown id")
	}
}

func TestGenerateTOTPKey(t *testing.T) {
	key, err := GenerateTOTPKey("Infra Mind", "alice@example.com")
	if err != nil {
		t.Fatalf("generate totp key: %v", err)
	}
	if key.Secret == "" {
		t.Error("expected secret")
	}
	if !strings.HasPrefix(key.URL, "otpauth://totp/") {
		t.Errorf("URL = %q", key.URL)
	}
	if !VerifyTOTPCode(key.Secret, mustTOTP(t, key.Secret)) {
		t.Error("expected generated code to verify")
	}
	if qr := QRCode(key.URL); qr == "" {
		t.Error("expected QR rendering")
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func mustTOTP(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate totp: %v", err)
	}
	return code
}
