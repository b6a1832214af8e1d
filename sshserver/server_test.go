package sshserver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/schema"
)

type scriptedHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *scriptedHandler) Handle(_ context.Context, _ schema.UserID, role schema.Role, input string) ([]string, error) {
	h.mu.Lock()
	h.calls = append(h.calls, strings.TrimSpace(input))
	h.mu.Unlock()
	switch strings.TrimSpace(input) {
	case "status":
		return []string{"provider mode: live"}, nil
	case "whoami":
		return []string{string(role)}, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", strings.TrimSpace(input))
	}
}

func newConsoleStore(t *testing.T, email string) (*auth.Store, ssh.Signer) {
	t.Helper()
	store, err := auth.NewStoreWithLogger(filepath.Join(t.TempDir(), "users.json"), nil, auth.DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := store.AddUser(auth.User{
		Email:        email,
		Name:         "Ops",
		Role:         schema.RoleAdmin,
		PasswordHash: string(hash),
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("ssh public key: %v", err)
	}
	if _, err := store.AddLoginPubKey(email, string(ssh.MarshalAuthorizedKey(sshPub))); err != nil {
		t.Fatalf("add pubkey: %v", err)
	}
	return store, signer
}

func startConsole(t *testing.T, store *auth.Store, handler CommandHandler) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &Server{
		HostKeyPath: filepath.Join(t.TempDir(), "hostkey"),
		Listener:    listener,
		Handler:     handler,
		AuthStore:   store,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return listener.Addr().String()
}

func dialConsole(t *testing.T, addr, email string, signer ssh.Signer, code func() (string, error)) (*ssh.Client, error) {
	t.Helper()
	challenge := func(_, _ string, questions []string, _ []bool) ([]string, error) {
		if len(questions) == 0 {
			return nil, nil
		}
		if code == nil {
			return nil, errors.New("unexpected challenge")
		}
		answer, err := code()
		if err != nil {
			return nil, err
		}
		return []string{answer}, nil
	}
	cfg := &ssh.ClientConfig{
		User:            email,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer), ssh.KeyboardInteractive(challenge)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	return ssh.Dial("tcp", addr, cfg)
}

type outputBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func collectOutput(r io.Reader) *outputBuffer {
	out := &outputBuffer{}
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				out.mu.Lock()
				out.buf.Write(buf[:n])
				out.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func (o *outputBuffer) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func waitForOutput(t *testing.T, out *outputBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output:\n%s", want, out.String())
}

func TestConsoleSession(t *testing.T) {
	email := "ops@example.com"
	store, signer := newConsoleStore(t, email)
	handler := &scriptedHandler{}
	addr := startConsole(t, store, handler)

	client, err := dialConsole(t, addr, email, signer, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout: %v", err)
	}
	if err := session.RequestPty("xterm", 40, 120, ssh.TerminalModes{ssh.ECHO: 0}); err != nil {
		t.Fatalf("request pty: %v", err)
	}
	if err := session.Shell(); err != nil {
		t.Fatalf("shell: %v", err)
	}

	out := collectOutput(stdout)
	waitForOutput(t, out, "ops console")
	waitForOutput(t, out, "ops@example.com")

	fmt.Fprint(stdin, "status\r")
	waitForOutput(t, out, "provider mode: live")

	fmt.Fprint(stdin, "bogus\r")
	waitForOutput(t, out, "error: unknown command: bogus")

	fmt.Fprint(stdin, "exit\r")
	done := make(chan error, 1)
	go func() { done <- session.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close after exit")
	}

	handler.mu.Lock()
	calls := append([]string{}, handler.calls...)
	handler.mu.Unlock()
	if len(calls) != 2 || calls[0] != "status" || calls[1] != "bogus" {
		t.Errorf("calls = %v", calls)
	}
}

func TestConsoleRejectsUnknownKey(t *testing.T) {
	email := "ops@example.com"
	store, _ := newConsoleStore(t, email)
	addr := startConsole(t, store, &scriptedHandler{})

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	stranger, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if _, err := dialConsole(t, addr, email, stranger, nil); err == nil {
		t.Fatal("expected dial to fail with unauthorized key")
	}
}

func TestConsoleTOTPChallenge(t *testing.T) {
	email := "ops@example.com"
	store, signer := newConsoleStore(t, email)
	key, err := auth.GenerateTOTPKey("Infra Mind", email)
	if err != nil {
		t.Fatalf("generate totp key: %v", err)
	}
	if err := store.UpdateTOTP(email, key.Secret, true); err != nil {
		t.Fatalf("update totp: %v", err)
	}
	addr := startConsole(t, store, &scriptedHandler{})

	if _, err := dialConsole(t, addr, email, signer, func() (string, error) {
		return "000000", nil
	}); err == nil {
		t.Fatal("expected dial to fail with a wrong code")
	}

	client, err := dialConsole(t, addr, email, signer, func() (string, error) {
		return totp.GenerateCode(key.Secret, time.Now())
	})
	if err != nil {
		t.Fatalf("dial with totp: %v", err)
	}
	_ = client.Close()
}
