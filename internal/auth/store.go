package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"github.com/inframind/inframind/internal/appconfig"
	"github.com/inframind/inframind/internal/persist"
	"github.com/inframind/inframind/schema"
	"pkt.systems/pslog"
)

// User represents a stored user account.
type User struct {
	ID               schema.UserID `json:"id"`
	Email            string        `json:"email"`
	Name             string        `json:"name"`
	Role             schema.Role   `json:"role"`
	PasswordHash     string        `json:"password_hash"`
	TOTPSecret       string        `json:"totp_secret,omitempty"`
	TOTPEnabled      bool          `json:"totp_enabled,omitempty"`
	BackupCodeHashes []string      `json:"backup_code_hashes,omitempty"`
	GoogleSubject    string        `json:"google_subject,omitempty"`
	LoginPubKeys     []string      `json:"login_pubkeys,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	LastLoginAt      *time.Time    `json:"last_login_at,omitempty"`
}

// Policy controls the failed-login lockout.
type Policy struct {
	LockoutThreshold int
	LockoutWindow    time.Duration
}

// DefaultPolicy locks an account for 15 minutes after 5 failures.
func DefaultPolicy() Policy {
	return Policy{LockoutThreshold: 5, LockoutWindow: 15 * time.Minute}
}

// Store manages users stored on disk. The backing file is re-read when
// it changes on disk so external edits take effect without restart.
type Store struct {
	file      *persist.Store
	policy    Policy
	now       func() time.Time
	mu        sync.RWMutex
	users     map[string]User
	failures  map[string][]time.Time
	lockedTil map[string]time.Time
	fileState fileState
	log       pslog.Logger
}

// NewStore loads or seeds the user store.
func NewStore(path string, seeds []appconfig.SeedUser, policy Policy) (*Store, error) {
	return NewStoreWithLogger(path, seeds, policy, nil)
}

// NewStoreWithLogger loads or seeds the user store with logging.
func NewStoreWithLogger(path string, seeds []appconfig.SeedUser, policy Policy, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("user file path is required")
	}
	if policy.LockoutThreshold <= 0 || policy.LockoutWindow <= 0 {
		policy = DefaultPolicy()
	}
	if logger != nil {
		logger = logger.With("user_file", path)
	}
	file, err := persist.NewStore(path)
	if err != nil {
		return nil, err
	}
	store := &Store{
		file:      file,
		policy:    policy,
		now:       time.Now,
		users:     make(map[string]User),
		failures:  make(map[string][]time.Time),
		lockedTil: make(map[string]time.Time),
		log:       logger,
	}
	if err := store.ensureFile(seeds); err != nil {
		return nil, err
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Authenticate verifies email and password. Failures count toward the
// lockout; a locked account fails with schema.ErrAccountLocked even
// when the password is correct.
func (s *Store) Authenticate(email, password string) (User, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return User{}, err
	}
	email = canonicalEmail(email)
	if locked, until := s.lockedUntil(email); locked {
		if s.log != nil {
			s.log.Warn("auth locked out", "email", email, "until", until)
		}
		return User{}, schema.ErrAccountLocked
	}
	s.mu.RLock()
	user, ok := s.users[email]
	s.mu.RUnlock()
	if !ok {
		// Burn a bcrypt round so unknown emails cost the same.
		_ = bcrypt.CompareHashAndPassword(phantomHash, []byte(password))
		s.recordFailure(email)
		return User{}, schema.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(email)
		if locked, _ := s.lockedUntil(email); locked {
			return User{}, schema.ErrAccountLocked
		}
		return User{}, schema.ErrInvalidCredentials
	}
	s.resetFailures(email)
	return user, nil
}

// phantomHash is a bcrypt hash of random bytes, compared against when
// the email is unknown so timing does not reveal account existence.
var phantomHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("inframind-phantom"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// ValidateTOTP verifies a TOTP code against the user's enabled secret.
func (s *Store) ValidateTOTP(email, code string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	email = canonicalEmail(email)
	s.mu.RLock()
	user, ok := s.users[email]
	s.mu.RUnlock()
	if !ok {
		return schema.ErrUserNotFound
	}
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		return schema.ErrMFANotEnrolled
	}
	if err := schema.ValidateMFACode(code); err != nil {
		return schema.ErrInvalidMFACode
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return schema.ErrInvalidMFACode
	}
	return nil
}

// ConsumeBackupCode validates a backup code and removes it so it can
// never be used again.
func (s *Store) ConsumeBackupCode(email, code string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	email = canonicalEmail(email)
	normalized, err := schema.NormalizeBackupCode(code)
	if err != nil {
		return schema.ErrInvalidBackupCode
	}
	want := HashBackupCode(normalized)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return schema.ErrUserNotFound
	}
	idx := -1
	for i, h := range user.BackupCodeHashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(want)) == 1 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return schema.ErrInvalidBackupCode
	}
	user.BackupCodeHashes = append(user.BackupCodeHashes[:idx], user.BackupCodeHashes[idx+1:]...)
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth backup code consume failed", "email", email, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth backup code consumed", "email", email, "remaining", len(user.BackupCodeHashes))
	}
	return nil
}

// SetBackupCodes replaces the user's backup code hashes.
func (s *Store) SetBackupCodes(email string, hashes []string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return schema.ErrUserNotFound
	}
	user.BackupCodeHashes = append([]string{}, hashes...)
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth backup codes update failed", "email", email, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth backup codes updated", "email", email, "count", len(hashes))
	}
	return nil
}

// BackupCodesRemaining reports how many unused backup codes remain.
func (s *Store) BackupCodesRemaining(email string) (int, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[canonicalEmail(email)]
	if !ok {
		return 0, schema.ErrUserNotFound
	}
	return len(user.BackupCodeHashes), nil
}

// Lookup returns the user with the given email.
func (s *Store) Lookup(email string) (User, bool) {
	if err := s.refreshIfNeeded(); err != nil && s.log != nil {
		s.log.Warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[canonicalEmail(email)]
	return user, ok
}

// Get returns the user with the given ID.
func (s *Store) Get(id schema.UserID) (User, bool) {
	if err := s.refreshIfNeeded(); err != nil && s.log != nil {
		s.log.Warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.ID == id {
			return user, true
		}
	}
	return User{}, false
}

// LookupByGoogleSubject returns the user linked to a Google account.
func (s *Store) LookupByGoogleSubject(sub string) (User, bool) {
	if sub == "" {
		return User{}, false
	}
	if err := s.refreshIfNeeded(); err != nil && s.log != nil {
		s.log.Warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.GoogleSubject == sub {
			return user, true
		}
	}
	return User{}, false
}

// LinkGoogleSubject attaches a Google subject to an account.
func (s *Store) LinkGoogleSubject(email, sub string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	if strings.TrimSpace(sub) == "" {
		return fmt.Errorf("%w: google subject is required", schema.ErrInvalidRequest)
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return schema.ErrUserNotFound
	}
	user.GoogleSubject = sub
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth google link failed", "email", email, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth google linked", "email", email)
	}
	return nil
}

// TouchLogin stamps the account's last login time. Called once a login
// flow fully completes, after any second factor.
func (s *Store) TouchLogin(email string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return schema.ErrUserNotFound
	}
	at := s.now().UTC()
	user.LastLoginAt = &at
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth login stamp failed", "email", email, "err", err)
		}
		return err
	}
	return nil
}

// AddLoginPubKey authorizes an SSH public key for console login and
// returns its 1-based index.
func (s *Store) AddLoginPubKey(email, pubKey string) (int, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return 0, err
	}
	normalized, parsed, err := normalizeLoginPubKey(pubKey)
	if err != nil {
		return 0, err
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return 0, schema.ErrUserNotFound
	}
	for idx, existing := range user.LoginPubKeys {
		if keyEqual(existing, parsed) {
			return idx + 1, fmt.Errorf("%w: login pubkey already exists", schema.ErrInvalidRequest)
		}
	}
	user.LoginPubKeys = append(user.LoginPubKeys, normalized)
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth pubkey add failed", "email", email, "err", err)
		}
		return 0, err
	}
	if s.log != nil {
		s.log.Info("auth pubkey added", "email", email, "id", len(user.LoginPubKeys))
	}
	return len(user.LoginPubKeys), nil
}

// ListLoginPubKeys returns the user's authorized console login keys.
func (s *Store) ListLoginPubKeys(email string) ([]string, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	user, ok := s.users[canonicalEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, schema.ErrUserNotFound
	}
	return append([]string{}, user.LoginPubKeys...), nil
}

// RemoveLoginPubKey removes the login key at the provided 1-based index.
func (s *Store) RemoveLoginPubKey(email string, index int) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	if index <= 0 {
		return fmt.Errorf("%w: login pubkey id must be positive", schema.ErrInvalidRequest)
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return schema.ErrUserNotFound
	}
	if index > len(user.LoginPubKeys) {
		return fmt.Errorf("%w: login pubkey id out of range", schema.ErrInvalidRequest)
	}
	user.LoginPubKeys = append(user.LoginPubKeys[:index-1], user.LoginPubKeys[index:]...)
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth pubkey remove failed", "email", email, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth pubkey removed", "email", email, "id", index)
	}
	return nil
}

// HasLoginPubKey reports whether the key is authorized for the user.
func (s *Store) HasLoginPubKey(email string, key ssh.PublicKey) (bool, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return false, err
	}
	s.mu.RLock()
	user, ok := s.users[canonicalEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return false, schema.ErrUserNotFound
	}
	for _, raw := range user.LoginPubKeys {
		if keyEqual(raw, key) {
			return true, nil
		}
	}
	return false, nil
}

func normalizeLoginPubKey(raw string) (string, ssh.PublicKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil, fmt.Errorf("%w: pubkey is required", schema.ErrInvalidRequest)
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(trimmed))
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid pubkey", schema.ErrInvalidRequest)
	}
	return trimmed, key, nil
}

func keyEqual(raw string, key ssh.PublicKey) bool {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(raw)))
	if err != nil {
		return false
	}
	return bytes.Equal(parsed.Marshal(), key.Marshal())
}

// LoadUsers returns a snapshot of users sorted by email.
func (s *Store) LoadUsers() []User {
	if err := s.refreshIfNeeded(); err != nil && s.log != nil {
		s.log.Warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users
}

// AddUser inserts a new user and persists the store. A missing ID is
// minted.
func (s *Store) AddUser(user User) (User, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return User{}, err
	}
	if err := schema.ValidateEmail(user.Email); err != nil {
		return User{}, err
	}
	user.Email = canonicalEmail(user.Email)
	if strings.TrimSpace(user.PasswordHash) == "" {
		return User{}, fmt.Errorf("%w: password hash is required", schema.ErrInvalidRequest)
	}
	role, err := schema.NormalizeRole(string(user.Role))
	if err != nil {
		return User{}, err
	}
	user.Role = role
	if user.ID == "" {
		user.ID = schema.UserID(uuid.NewString())
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return User{}, schema.ErrUserExists
	}
	s.users[user.Email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth user add failed", "email", user.Email, "err", err)
		}
		return User{}, err
	}
	if s.log != nil {
		s.log.Info("auth user added", "email", user.Email, "role", user.Role)
	}
	return user, nil
}

// ChangePassword verifies the current password and replaces the hash.
func (s *Store) ChangePassword(email, currentPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: new password is required", schema.ErrInvalidRequest)
	}
	if _, err := s.Authenticate(email, currentPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.UpdatePassword(email, hash)
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(email, passwordHash string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return fmt.Errorf("%w: password hash is required", schema.ErrInvalidRequest)
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return schema.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth password update failed", "email", email, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth password updated", "email", email)
	}
	return nil
}

// UpdateTOTP replaces the stored TOTP secret and enablement.
func (s *Store) UpdateTOTP(email, secret string, enabled bool) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	if enabled && strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%w: totp secret is required", schema.ErrInvalidRequest)
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return schema.ErrUserNotFound
	}
	user.TOTPSecret = secret
	user.TOTPEnabled = enabled
	if !enabled {
		user.BackupCodeHashes = nil
	}
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth totp update failed", "email", email, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth totp updated", "email", email, "enabled", enabled)
	}
	return nil
}

// SetRole changes a user's role.
func (s *Store) SetRole(email string, role schema.Role) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := schema.NormalizeRole(string(role))
	if err != nil {
		return err
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return schema.ErrUserNotFound
	}
	user.Role = normalized
	s.users[email] = user
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth role update failed", "email", email, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth role updated", "email", email, "role", normalized)
	}
	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(email string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	email = canonicalEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; !ok {
		return schema.ErrUserNotFound
	}
	delete(s.users, email)
	if err := s.saveLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("auth user delete failed", "email", email, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth user deleted", "email", email)
	}
	return nil
}

// Locked reports whether the account is locked and until when.
func (s *Store) Locked(email string) (bool, time.Time) {
	return s.lockedUntil(canonicalEmail(email))
}

func (s *Store) lockedUntil(email string) (bool, time.Time) {
	s.mu.RLock()
	until, ok := s.lockedTil[email]
	s.mu.RUnlock()
	if !ok {
		return false, time.Time{}
	}
	if s.now().After(until) {
		s.mu.Lock()
		delete(s.lockedTil, email)
		delete(s.failures, email)
		s.mu.Unlock()
		return false, time.Time{}
	}
	return true, until
}

func (s *Store) recordFailure(email string) {
	now := s.now()
	cutoff := now.Add(-s.policy.LockoutWindow)
	s.mu.Lock()
	defer s.mu.Unlock()
	recent := s.failures[email][:0:0]
	for _, t := range s.failures[email] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	s.failures[email] = recent
	if len(recent) >= s.policy.LockoutThreshold {
		s.lockedTil[email] = now.Add(s.policy.LockoutWindow)
		if s.log != nil {
			s.log.Warn("auth account locked", "email", email, "failures", len(recent), "until", s.lockedTil[email])
		}
	}
}

func (s *Store) resetFailures(email string) {
	s.mu.Lock()
	delete(s.failures, email)
	delete(s.lockedTil, email)
	s.mu.Unlock()
}

// canonicalEmail is the map key form of an email. Validation happens
// where accounts are created; lookups only need the canonical form.
func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: password is required", schema.ErrInvalidRequest)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashBackupCode hashes a normalized backup code for storage.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// GenerateBackupCodes mints n single-use backup codes. The plaintext
// codes are returned for one-time display alongside their hashes.
func GenerateBackupCodes(n int) (codes []string, hashes []string, err error) {
	codes = make([]string, 0, n)
	hashes = make([]string, 0, n)
	buf := make([]byte, schema.BackupCodeLength)
	for range n {
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, err
		}
		var b strings.Builder
		for _, c := range buf {
			b.WriteByte(schema.BackupCodeAlphabet[int(c)%len(schema.BackupCodeAlphabet)])
		}
		code := b.String()
		codes = append(codes, code)
		hashes = append(hashes, HashBackupCode(code))
	}
	return codes, hashes, nil
}

func (s *Store) ensureFile(seeds []appconfig.SeedUser) error {
	if _, statErr := os.Stat(s.file.Path()); statErr == nil {
		return nil
	} else if !os.IsNotExist(statErr) {
		if s.log != nil {
			s.log.Warn("auth store init failed", "err", statErr)
		}
		return statErr
	}
	users := make([]User, 0, len(seeds))
	for _, seed := range seeds {
		if err := schema.ValidateEmail(seed.Email); err != nil {
			return fmt.Errorf("seed user %q: %w", seed.Email, err)
		}
		role := schema.RoleViewer
		if seed.Role != "" {
			normalized, err := schema.NormalizeRole(seed.Role)
			if err != nil {
				return fmt.Errorf("seed user %q: %w", seed.Email, err)
			}
			role = normalized
		}
		user := User{
			ID:           schema.UserID(uuid.NewString()),
			Email:        canonicalEmail(seed.Email),
			Name:         seed.Name,
			Role:         role,
			PasswordHash: seed.PasswordHash,
			CreatedAt:    s.now().UTC(),
		}
		if seed.TOTPSecret != "" {
			user.TOTPSecret = seed.TOTPSecret
			user.TOTPEnabled = true
		}
		users = append(users, user)
	}
	if err := s.file.Save(users); err != nil {
		if s.log != nil {
			s.log.Warn("auth store init failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("auth store initialized", "users", len(users))
	}
	return nil
}

func (s *Store) saveLocked() error {
	emails := make([]string, 0, len(s.users))
	for email := range s.users {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	users := make([]User, 0, len(emails))
	for _, email := range emails {
		users = append(users, s.users[email])
	}
	if err := s.file.Save(users); err != nil {
		return err
	}
	if info, err := os.Stat(s.file.Path()); err == nil {
		s.fileState = fileStateFromInfo(info)
	} else if s.log != nil {
		s.log.Warn("auth store save failed to stat", "err", err)
	}
	if s.log != nil {
		s.log.Debug("auth store save ok", "users", len(users))
	}
	return nil
}

type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.file.Path())
	if err != nil {
		if s.log != nil {
			s.log.Warn("auth store stat failed", "err", err)
		}
		return err
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

func (s *Store) loadFromDisk() error {
	var users []User
	ok, err := s.file.Load(&users)
	if err != nil {
		if s.log != nil {
			s.log.Warn("auth store load failed", "err", err)
		}
		return err
	}
	if !ok {
		users = nil
	}
	info, err := os.Stat(s.file.Path())
	if err != nil {
		if s.log != nil {
			s.log.Warn("auth store load failed", "err", err)
		}
		return err
	}
	next := make(map[string]User, len(users))
	for _, user := range users {
		if err := schema.ValidateEmail(user.Email); err != nil {
			if s.log != nil {
				s.log.Warn("auth store load failed", "email", user.Email, "err", err)
			}
			return err
		}
		next[canonicalEmail(user.Email)] = user
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = next
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("auth store load ok", "users", len(users))
	}
	return nil
}
