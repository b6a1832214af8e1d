package httpapi

import (
	"sync"
	"time"

	"github.com/inframind/inframind/schema"
)

// challengeAttempts is how many wrong second-factor codes consume a
// login challenge.
const challengeAttempts = 5

// enrollmentTTL bounds an MFA enrollment from begin to complete. It is
// longer than the login challenge TTL because the user has to install
// an authenticator app and copy backup codes.
const enrollmentTTL = 15 * time.Minute

// challenge is a pending second factor for a password (or OAuth) login
// that already succeeded.
type challenge struct {
	email     string
	attempts  int
	expiresAt time.Time
}

type challengeStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]*challenge
}

func newChallengeStore(ttl time.Duration) *challengeStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &challengeStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*challenge),
	}
}

func (c *challengeStore) create(email string) string {
	token := randomToken(24)
	c.mu.Lock()
	c.items[token] = &challenge{email: email, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return token
}

// email resolves a challenge token to the pending login's email.
func (c *challengeStore) email(token string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[token]
	if !ok {
		return "", schema.ErrChallengeExpired
	}
	if c.now().After(entry.expiresAt) {
		delete(c.items, token)
		return "", schema.ErrChallengeExpired
	}
	return entry.email, nil
}

// fail counts a wrong code. The challenge is consumed once the attempt
// budget is spent.
func (c *challengeStore) fail(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[token]
	if !ok {
		return
	}
	entry.attempts++
	if entry.attempts >= challengeAttempts {
		delete(c.items, token)
	}
}

func (c *challengeStore) consume(token string) {
	c.mu.Lock()
	delete(c.items, token)
	c.mu.Unlock()
}

// enrollment tracks a user's in-flight MFA setup. The secret becomes
// active only at complete; until then logins keep working without MFA.
type enrollment struct {
	secret     string
	url        string
	confirmed  bool
	codeHashes []string
	expiresAt  time.Time
}

type enrollmentStore struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[schema.UserID]*enrollment
}

func newEnrollmentStore() *enrollmentStore {
	return &enrollmentStore{
		now:   time.Now,
		items: make(map[schema.UserID]*enrollment),
	}
}

func (e *enrollmentStore) begin(userID schema.UserID, secret, url string) {
	e.mu.Lock()
	e.items[userID] = &enrollment{
		secret:    secret,
		url:       url,
		expiresAt: e.now().Add(enrollmentTTL),
	}
	e.mu.Unlock()
}

func (e *enrollmentStore) get(userID schema.UserID) (*enrollment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.items[userID]
	if !ok {
		return nil, schema.ErrChallengeExpired
	}
	if e.now().After(entry.expiresAt) {
		delete(e.items, userID)
		return nil, schema.ErrChallengeExpired
	}
	copied := *entry
	return &copied, nil
}

func (e *enrollmentStore) confirm(userID schema.UserID, codeHashes []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.items[userID]
	if !ok || e.now().After(entry.expiresAt) {
		delete(e.items, userID)
		return schema.ErrChallengeExpired
	}
	entry.confirmed = true
	entry.codeHashes = append([]string(nil), codeHashes...)
	return nil
}

func (e *enrollmentStore) drop(userID schema.UserID) {
	e.mu.Lock()
	delete(e.items, userID)
	e.mu.Unlock()
}
