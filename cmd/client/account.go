package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/steamguard/internal/app"
	"github.com/harrylevesque/steamguard/internal/files"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage stored account secrets",
	}

	importCmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Store an account's secrets, encrypting them when a master key is configured",
		Long: `Import a JSON file with account_id, shared_secret and identity_secret
(device_id, account_name and revocation_code are optional) into the secrets
directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var acct files.Account
			if err := json.Unmarshal(raw, &acct); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if acct.Secrets().Shared == "" && acct.Secrets().Identity == "" {
				return fmt.Errorf("%s has neither shared_secret nor identity_secret", args[0])
			}

			var masterKey []byte
			if cfg.EncryptAccountFiles {
				if masterKey, err = app.MasterKey(cfg); err != nil {
					return err
				}
				if masterKey == nil {
					return fmt.Errorf("encryption is enabled but no master key is configured (set MASTER_KEY_HEX or run genmasterkey)")
				}
			}
			path, err := files.WriteAccountFile(cfg.SecretsDir, &acct, masterKey)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "stored %s\n", path)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored account ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ids, err := files.ListAccounts(cfg.SecretsDir)
			if err != nil {
				return err
			}
			for _, id := range ids {
				printf(cmd.OutOrStdout(), "%s\n", id)
			}
			return nil
		},
	}

	resetDeviceCmd := &cobra.Command{
		Use:   "reset-device",
		Short: "Forget the device id stored for the account",
		Long: `Remove the account's binding from the configured device store (file or
redis). The next run resolves a device id again with the configured strategy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			removed, err := app.ResetDevice(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if !removed {
				printf(cmd.OutOrStdout(), "no device store configured\n")
				return nil
			}
			printf(cmd.OutOrStdout(), "device id reset for %s\n", strings.TrimSpace(cfg.AccountID))
			return nil
		},
	}

	cmd.AddCommand(importCmd, listCmd, resetDeviceCmd)
	return cmd
}
