package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harrylevesque/steamguard/internal/app"
	"github.com/harrylevesque/steamguard/internal/mobileconf"
)

func newConfirmationsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "confirmations",
		Aliases: []string{"conf"},
		Short:   "List, accept or deny pending confirmations",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print machine-readable output")

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending confirmations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App, _ logrus.FieldLogger) error {
				c, err := a.Confirmations()
				if err != nil {
					return err
				}
				confs, err := c.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), confs)
				}
				printConfirmations(cmd.OutOrStdout(), confs)
				return nil
			})
		},
	}

	acceptAll := &cobra.Command{
		Use:   "accept-all",
		Short: "Accept every confirmation pending right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App, _ logrus.FieldLogger) error {
				c, err := a.Confirmations()
				if err != nil {
					return err
				}
				res, err := c.AcceptAll(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				} else {
					printf(cmd.OutOrStdout(), "accepted %d confirmation(s)\n", len(res.Confirmations))
				}
				if !res.Success {
					return fmt.Errorf("server rejected the accept request")
				}
				return nil
			})
		},
	}

	var deny bool
	act := &cobra.Command{
		Use:   "act <id>...",
		Short: "Accept (default) or deny the named confirmations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App, _ logrus.FieldLogger) error {
				c, err := a.Confirmations()
				if err != nil {
					return err
				}
				acted, missing, ok, err := c.ActOnIDs(cmd.Context(), args, !deny)
				if err != nil {
					return err
				}
				verb := "accepted"
				if deny {
					verb = "denied"
				}
				printf(cmd.OutOrStdout(), "%s %d confirmation(s)\n", verb, len(acted))
				if len(missing) > 0 {
					printf(cmd.ErrOrStderr(), "not pending: %s\n", strings.Join(missing, ", "))
				}
				if len(acted) == 0 {
					return fmt.Errorf("none of the given confirmations are pending")
				}
				if !ok {
					return fmt.Errorf("server rejected the request")
				}
				return nil
			})
		},
	}
	act.Flags().BoolVar(&deny, "deny", false, "deny instead of accept")

	cmd.AddCommand(list, acceptAll, act)
	return cmd
}

func printConfirmations(w io.Writer, confs []mobileconf.Confirmation) {
	if len(confs) == 0 {
		printf(w, "no pending confirmations\n")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	printf(tw, "ID\tTYPE\tCREATED\tHEADLINE\n")
	for _, c := range confs {
		created := time.Unix(c.CreationTime, 0).Local().Format(time.DateTime)
		printf(tw, "%s\t%s\t%s\t%s\n", c.ID, typeLabel(c), created, c.Headline)
	}
	_ = tw.Flush()
}

func typeLabel(c mobileconf.Confirmation) string {
	if c.TypeName != "" {
		return c.TypeName
	}
	switch c.Type {
	case mobileconf.TypeTrade:
		return "trade"
	case mobileconf.TypeMarketListing:
		return "market"
	case mobileconf.TypeAccountChange:
		return "account"
	case mobileconf.TypeAPIKey:
		return "api-key"
	default:
		return fmt.Sprintf("type %d", c.Type)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
