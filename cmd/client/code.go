package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harrylevesque/steamguard/internal/app"
	"github.com/harrylevesque/steamguard/internal/utils"
)

func newCodeCmd() *cobra.Command {
	var unique bool
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Print the current auth code",
		Long: `Print the current 5-character auth code.

With --unique the current code is treated as already used, so the command
always waits for the next 30 second window and prints that code. Use it after
a login failed because the current code was a duplicate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App, _ logrus.FieldLogger) error {
				g, err := a.Guard()
				if err != nil {
					return err
				}
				// Code marks the current window's code as issued, so Next below
				// always moves on to the following window.
				code, err := g.Code()
				if err != nil {
					return err
				}
				if unique {
					if code, err = g.Next(cmd.Context()); err != nil {
						return err
					}
				}
				printf(cmd.OutOrStdout(), "%s\n", code)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unique, "unique", false, "wait for the next window and print its code")
	return cmd
}

func newDeviceIDCmd() *cobra.Command {
	var (
		salt         string
		hardwareSalt bool
	)
	cmd := &cobra.Command{
		Use:   "deviceid [account-id]",
		Short: "Print the derived device id for an account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id := cfg.AccountID
			if len(args) == 1 {
				id = args[0]
			}
			if hardwareSalt {
				fps, err := utils.GetDeviceFingerprints()
				if err != nil {
					return err
				}
				if len(fps) == 0 {
					return fmt.Errorf("no hardware fingerprint available on this host")
				}
				salt = fps[0]
			}
			if salt == "" {
				salt = cfg.DeviceSalt
			}
			deviceID, err := utils.Derived{AccountID: id, Salt: salt}.Resolve("")
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", deviceID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&hardwareSalt, "salt-from-hardware", false, "use the host hardware UUID as the salt")
	cmd.Flags().StringVar(&salt, "salt", "", "salt mixed into the hash (default: config, then STEAM_TOTP_SALT)")
	return cmd
}
