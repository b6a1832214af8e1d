package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/inframind/inframind/internal/appconfig"
	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/internal/format"
	"github.com/inframind/inframind/schema"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
)

const defaultPasswordLength = 20

func newUsersCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage Infra Mind accounts",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newUsersListCmd(&cfgPath))
	cmd.AddCommand(newUsersAddCmd(&cfgPath))
	cmd.AddCommand(newUsersDeleteCmd(&cfgPath))
	cmd.AddCommand(newUsersSetRoleCmd(&cfgPath))
	cmd.AddCommand(newUsersRotateTOTP(&cfgPath))
	cmd.AddCommand(newUsersBackupCodes(&cfgPath))
	cmd.AddCommand(newUsersChpasswd(&cfgPath))
	cmd.AddCommand(newUsersAddLoginPubKey(&cfgPath))
	cmd.AddCommand(newUsersListLoginPubKeys(&cfgPath))
	cmd.AddCommand(newUsersRemoveLoginPubKey(&cfgPath))

	return cmd
}

func openUserStore(cmd *cobra.Command, cfgPath string) (appconfig.Config, *auth.Store, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return appconfig.Config{}, nil, err
	}
	logger := pslog.Ctx(cmd.Context())
	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, cfg.Auth.SeedUsers, auth.Policy{}, logger)
	if err != nil {
		return appconfig.Config{}, nil, err
	}
	return cfg, store, nil
}

func newUsersListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			users := store.LoadUsers()
			rows := make([]schema.User, 0, len(users))
			for _, user := range users {
				rows = append(rows, schema.User{
					ID:          user.ID,
					Email:       user.Email,
					Name:        user.Name,
					Role:        user.Role,
					MFAEnabled:  user.TOTPEnabled,
					CreatedAt:   user.CreatedAt,
					LastLoginAt: user.LastLoginAt,
				})
			}
			out := cmd.OutOrStdout()
			for _, line := range format.NewPlainRenderer().Users(rows) {
				_, _ = fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newUsersAddCmd(cfgPath *string) *cobra.Command {
	var name string
	var role string
	var passwordFromStdin bool
	var autoPassword bool
	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Add an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			if err := schema.ValidateEmail(email); err != nil {
				return err
			}
			password, generated, err := resolvePassword(cmd, passwordFromStdin, autoPassword)
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(name) == "" {
				name = email[:strings.Index(email, "@")]
			}
			user, err := store.AddUser(auth.User{
				Email:        email,
				Name:         name,
				Role:         schema.Role(role),
				PasswordHash: string(hash),
			})
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), user.Email, password, generated, "", "")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the email local part)")
	cmd.Flags().StringVar(&role, "role", string(schema.RoleViewer), "account role (admin, analyst, or viewer)")
	cmd.Flags().BoolVar(&passwordFromStdin, "password-from-stdin", false, "read password from stdin")
	cmd.Flags().BoolVar(&autoPassword, "auto-password", false, "generate a random password")
	return cmd
}

func newUsersDeleteCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <email>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.DeleteUser(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted account: %s\n", args[0])
			return nil
		},
	}
}

func newUsersSetRoleCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := schema.NormalizeRole(args[1])
			if err != nil {
				return err
			}
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.SetRole(args[0], role); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "role updated: %s is now %s\n", args[0], role)
			return nil
		},
	}
}

func newUsersRotateTOTP(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-totp <email>",
		Short: "Rotate the TOTP secret for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			cfg, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			key, err := auth.GenerateTOTPKey(cfg.Auth.TOTPIssuer, email)
			if err != nil {
				return err
			}
			if err := store.UpdateTOTP(email, key.Secret, true); err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), email, "", false, key.Secret, key.URL)
			return nil
		},
	}
}

func newUsersBackupCodes(cfgPath *string) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "backup-codes <email>",
		Short: "Issue fresh MFA backup codes for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			codes, hashes, err := auth.GenerateBackupCodes(count)
			if err != nil {
				return err
			}
			if err := store.SetBackupCodes(email, hashes); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "backup codes for %s (each works once):\n", email)
			for _, code := range codes {
				_, _ = fmt.Fprintf(out, "  %s\n", code)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 10, "number of codes to issue")
	return cmd
}

func newUsersChpasswd(cfgPath *string) *cobra.Command {
	var passwordFromStdin bool
	var autoPassword bool
	cmd := &cobra.Command{
		Use:   "chpasswd <email>",
		Short: "Change an account's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			password, generated, err := resolvePassword(cmd, passwordFromStdin, autoPassword)
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.UpdatePassword(email, string(hash)); err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), email, password, generated, "", "")
			return nil
		},
	}
	cmd.Flags().BoolVar(&passwordFromStdin, "password-from-stdin", false, "read password from stdin")
	cmd.Flags().BoolVar(&autoPassword, "auto-password", false, "generate a random password")
	return cmd
}

func newUsersAddLoginPubKey(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add-login-pubkey <email> <pubkey>",
		Short: "Add an SSH console login key to an account",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			pubKey := strings.TrimSpace(strings.Join(args[1:], " "))
			if pubKey == "" {
				return errors.New("pubkey is required")
			}
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			id, err := store.AddLoginPubKey(email, pubKey)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "login pubkey added (id %d)\n", id)
			return nil
		},
	}
}

func newUsersListLoginPubKeys(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-login-pubkeys <email>",
		Short: "List SSH console login keys for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			keys, err := store.ListLoginPubKeys(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				_, _ = fmt.Fprintln(out, "no login pubkeys")
				return nil
			}
			for idx, key := range keys {
				_, _ = fmt.Fprintf(out, "%d) %s\n", idx+1, strings.TrimSpace(key))
			}
			return nil
		},
	}
}

func newUsersRemoveLoginPubKey(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm-login-pubkey <email> <id>",
		Short: "Remove an SSH console login key from an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[1])
			if err != nil || id <= 0 {
				return errors.New("invalid pubkey id")
			}
			_, store, err := openUserStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.RemoveLoginPubKey(args[0], id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "login pubkey removed (id %d)\n", id)
			return nil
		},
	}
}

func resolvePassword(cmd *cobra.Command, fromStdin, auto bool) (string, bool, error) {
	if fromStdin && auto {
		return "", false, errors.New("choose one of --password-from-stdin or --auto-password")
	}
	if fromStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", false, err
		}
		pass := strings.TrimSpace(string(data))
		if pass == "" {
			return "", false, errors.New("password from stdin is empty")
		}
		return pass, false, nil
	}
	if auto {
		pass, err := generatePassword(defaultPasswordLength)
		if err != nil {
			return "", false, err
		}
		return pass, true, nil
	}
	passphrase, err := keymgmt.PromptPassphrase(cmd.InOrStdin(), "Password: ", cmd.ErrOrStderr())
	if err != nil {
		return "", false, err
	}
	confirm, err := keymgmt.PromptPassphrase(cmd.InOrStdin(), "Confirm password: ", cmd.ErrOrStderr())
	if err != nil {
		return "", false, err
	}
	if string(passphrase) != string(confirm) {
		return "", false, errors.New("passwords do not match")
	}
	pass := string(passphrase)
	if pass == "" {
		return "", false, errors.New("password is empty")
	}
	return pass, false, nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		length = defaultPasswordLength
	}
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for i, b := range bytes {
		bytes[i] = charset[int(b)%len(charset)]
	}
	return string(bytes), nil
}

func printAccount(w io.Writer, email, password string, showPassword bool, secret, url string) {
	_, _ = fmt.Fprintf(w, "email: %s\n", email)
	if showPassword && password != "" {
		_, _ = fmt.Fprintf(w, "password: %s\n", password)
	}
	if secret != "" {
		_, _ = fmt.Fprintf(w, "totp_secret: %s\n", secret)
	}
	if url != "" {
		_, _ = fmt.Fprintf(w, "otpauth_url: %s\n", url)
		_, _ = fmt.Fprintln(w, "totp_qr:")
		qrterminal.GenerateHalfBlock(url, qrterminal.L, w)
	}
}
