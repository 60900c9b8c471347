package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/deepworx/go-auth0/pkg/jwks"
)

var errNoAuthority = errors.New("no authority: set --authority, verify.authority or domain")

func newJWKSCmd(a *app) *cobra.Command {
	var (
		authority string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "jwks",
		Short: "Fetch and list the authority's signing keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if authority != "" {
				cfg.Verify.Authority = authority
			}
			base := cfg.AuthorityURL()
			if base == "" {
				return errNoAuthority
			}

			url := jwks.WellKnownURL(base)
			set, err := jwks.NewFetcher(jwks.WithHTTPClient(a.httpClient())).Fetch(cmd.Context(), url)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				raw, err := set.MarshalJSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(raw))
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KID\tKTY\tALG\tUSE\tUSABLE")
			for _, rec := range set.Keys() {
				usable := a.ui.ok("yes")
				if _, err := jwks.BuildKey(rec); err != nil {
					usable = a.ui.warn("no")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.KeyID, rec.KeyType, orDash(rec.Algorithm), orDash(rec.Use), usable)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&authority, "authority", "", "Issuer base URL (defaults to verify.authority or the domain)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the key set as JSON")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
