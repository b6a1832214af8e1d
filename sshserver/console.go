package sshserver

import (
	"fmt"
	"io"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/term"

	"github.com/inframind/inframind/internal/logx"
	"pkt.systems/pslog"
)

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	email := sess.User()
	remote := sess.RemoteAddr().String()
	sshSession := sess.Context().SessionID()
	log = log.With("email", email, "remote", remote)
	if sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}

	user, ok := s.AuthStore.Lookup(email)
	if !ok {
		log.Info("ssh session rejected", "reason", "unknown user")
		_, _ = io.WriteString(sess, "unknown user\n")
		return
	}
	pty, winCh, hasPty := sess.Pty()
	if !hasPty {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		return
	}
	ctx := logx.ContextWithUserLogger(sess.Context(), log, user.ID)

	log.Info("ssh console opened", "term", pty.Term)
	console := term.NewTerminal(sess, s.IdlePrompt)
	_ = console.SetSize(pty.Window.Width, pty.Window.Height)
	go func() {
		for win := range winCh {
			_ = console.SetSize(win.Width, win.Height)
		}
	}()

	fmt.Fprintf(console, "Infra Mind ops console\n")
	fmt.Fprintf(console, "signed in as %s (%s), type help for commands\n", user.Email, user.Role)

	for {
		line, err := console.ReadLine()
		if err != nil {
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isExit(trimmed) {
			break
		}
		lines, err := s.Handler.Handle(ctx, user.ID, user.Role, line)
		if err != nil {
			fmt.Fprintf(console, "error: %s\n", err)
			continue
		}
		for _, out := range lines {
			fmt.Fprintln(console, out)
		}
	}
	log.Info("ssh console closed")
}

func isExit(line string) bool {
	switch strings.ToLower(line) {
	case "exit", "quit", "logout":
		return true
	}
	return false
}
