package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inframind/inframind/internal/appconfig"
	"github.com/inframind/inframind/internal/gitops"
	"github.com/inframind/inframind/schema"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
)

func newGitopsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gitops",
		Short: "Manage GitOps provider access",
	}
	cmd.AddCommand(newGitopsTokenCmd())
	return cmd
}

func newGitopsTokenCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage provider API tokens",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.AddCommand(newGitopsTokenSetCmd(&cfgPath))
	cmd.AddCommand(newGitopsTokenListCmd(&cfgPath))
	return cmd
}

func newGitopsTokenSetCmd(cfgPath *string) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API token for github or gitlab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := schema.NormalizeGitProvider(args[0])
			if err != nil {
				return err
			}
			var token string
			if fromStdin {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				token = strings.TrimSpace(string(data))
			} else {
				pass, err := keymgmt.PromptPassphrase(cmd.InOrStdin(), "Token: ", cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				token = strings.TrimSpace(string(pass))
			}
			if token == "" {
				return errors.New("token is empty")
			}
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := pslog.Ctx(cmd.Context())
			store, err := gitops.NewTokenStore(cfg.GitOps.TokenStorePath, logger)
			if err != nil {
				return err
			}
			if err := store.SetToken(provider, token); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "token stored for %s\n", provider)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "token-from-stdin", false, "read token from stdin")
	return cmd
}

func newGitopsTokenListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers with stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := pslog.Ctx(cmd.Context())
			store, err := gitops.NewTokenStore(cfg.GitOps.TokenStorePath, logger)
			if err != nil {
				return err
			}
			providers, err := store.Providers()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(providers) == 0 {
				_, _ = fmt.Fprintln(out, "no tokens stored")
				return nil
			}
			for _, provider := range providers {
				_, _ = fmt.Fprintln(out, provider)
			}
			return nil
		},
	}
}
