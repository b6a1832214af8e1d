// Package sshserver exposes a line-oriented ops console over SSH.
// Operators sign in with an authorized public key, answer a TOTP
// challenge when enrolled, and drive the same service the dashboard
// uses through short commands.
package sshserver

import (
	"context"
	"errors"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/schema"
	"pkt.systems/pslog"
)

// CommandHandler executes console commands and returns output lines.
type CommandHandler interface {
	Handle(ctx context.Context, userID schema.UserID, role schema.Role, input string) ([]string, error)
}

// ConsoleAuth validates SSH console logins. The SSH username is the
// account email.
type ConsoleAuth interface {
	HasLoginPubKey(email string, key ssh.PublicKey) (bool, error)
	ValidateTOTP(email, code string) error
	Lookup(email string) (auth.User, bool)
}

// Server hosts the ops console.
type Server struct {
	Addr        string
	HostKeyPath string
	Listener    net.Listener
	Handler     CommandHandler
	AuthStore   ConsoleAuth
	IdlePrompt  string
	logger      pslog.Logger
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// ListenAndServe starts the SSH console and shuts down on context
// cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.IdlePrompt == "" {
		s.IdlePrompt = "> "
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	if s.AuthStore == nil {
		return errors.New("auth store is required for SSH")
	}
	if s.Handler == nil {
		return errors.New("command handler is required for SSH")
	}

	server := &gliderssh.Server{
		Addr:                       s.Addr,
		Handler:                    s.handleSession,
		PublicKeyHandler:           s.handlePublicKey,
		KeyboardInteractiveHandler: s.handleKeyboardInteractive,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

// handlePublicKey validates the offered key but always reports failure
// so the connection proceeds to keyboard-interactive, which completes
// the login once any second factor passes.
func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	fingerprint := ssh.FingerprintSHA256(key)
	remote := remoteAddr(ctx)
	email := ctx.User()
	sshSession := ctx.SessionID()
	if email == "" {
		log.Warn("ssh pubkey rejected", "reason", "missing user", "remote", remote, "ssh_session", sshSession, "fingerprint", fingerprint)
		return false
	}
	log = log.With("email", email, "remote", remote, "fingerprint", fingerprint)
	if sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ok, err := s.AuthStore.HasLoginPubKey(email, key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	ctx.SetValue(loginPubKeyOK, true)
	log.Info("ssh pubkey accepted")
	return false
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	if ctx.Value(loginPubKeyOK) != true {
		return false
	}
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	email := ctx.User()
	remote := remoteAddr(ctx)
	sshSession := ctx.SessionID()
	log = log.With("email", email, "remote", remote)
	if sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	user, ok := s.AuthStore.Lookup(email)
	if !ok {
		log.Warn("ssh totp rejected", "reason", "unknown user")
		return false
	}
	if !user.TOTPEnabled {
		log.Info("ssh login accepted", "second_factor", "none")
		return true
	}
	answers, err := challenger(email, "", []string{"Verification code: "}, []bool{false})
	if err != nil {
		log.Warn("ssh totp rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != 1 {
		log.Warn("ssh totp rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	if err := s.AuthStore.ValidateTOTP(email, answers[0]); err != nil {
		log.Warn("ssh totp rejected", "reason", "invalid code", "err", err)
		return false
	}
	log.Info("ssh login accepted", "second_factor", "totp")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}
