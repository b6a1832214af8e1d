package main

import (
	"testing"
)

func TestRootSubcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"serve", "users", "gitops", "doctor", "config", "version"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}

func TestUsersSubcommands(t *testing.T) {
	users := newUsersCmd()
	want := []string{
		"list", "add", "delete", "set-role", "rotate-totp", "backup-codes",
		"chpasswd", "add-login-pubkey", "list-login-pubkeys", "rm-login-pubkey",
	}
	for _, name := range want {
		found := false
		for _, cmd := range users.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected users command to include %s", name)
		}
	}
}
