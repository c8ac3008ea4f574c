package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/tariel-x/lookbook/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func newVAPIDKeysCmd(configPath *string) *cobra.Command {
	var (
		rotate  bool
		subject string
	)
	cmd := &cobra.Command{
		Use:   "vapid-keys",
		Short: "Print the VAPID key pair, generating it if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			keys := cfg.VAPIDKeys
			if rotate {
				if subject == "" {
					subject = keys.Subject
				}
				keys, err = config.GenerateVAPIDKeys(subject)
				if err != nil {
					return err
				}
				if err := config.SaveVAPIDKeys(cfg.KeysDir, keys); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", keys.PublicKey)
			fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", keys.PrivateKey)
			fmt.Fprintf(out, "VAPID_SUBJECT=%s\n", keys.Subject)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rotate, "rotate", false, "generate a new pair and overwrite the stored one (existing subscriptions stop working)")
	cmd.Flags().StringVar(&subject, "subject", "", "contact URI for the new pair (mailto: or https:)")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
