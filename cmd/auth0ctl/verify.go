package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deepworx/go-auth0/pkg/verify"
)

func newVerifyCmd(a *app) *cobra.Command {
	var (
		authority string
		audience  []string
		issuer    []string
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "verify [TOKEN|-]",
		Short: "Verify a bearer token and print its claims",
		Long:  "Verify a JWT against the authority's JWKS and the configured policy. The token is read from stdin when omitted or \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tokenArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg := a.cfg
			if authority != "" {
				cfg.Verify.Authority = authority
			}
			if cmd.Flags().Changed("audience") {
				cfg.Verify.Audience = audience
			}
			if cmd.Flags().Changed("issuer") {
				cfg.Verify.Issuer = issuer
			}
			if err := cfg.RequireVerify(); err != nil {
				return err
			}

			v := verify.New(verify.WithHTTPClient(a.httpClient()))
			data, set, err := v.Verify(cmd.Context(), token, cfg.AuthorityURL(), cfg.Policy(), nil)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", a.ui.fail("invalid"), a.ui.dim("reason="+verify.Result(err)))
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", a.ui.ok("valid"),
				a.ui.dim(fmt.Sprintf("alg=%s kid=%s keys=%d", data.Header.Algorithm, data.Header.KeyID, set.Len())))
			if quiet {
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data.Claims)
		},
	}

	cmd.Flags().StringVar(&authority, "authority", "", "Issuer base URL (defaults to verify.authority or the domain)")
	cmd.Flags().StringSliceVar(&audience, "audience", nil, "Accepted audiences")
	cmd.Flags().StringSliceVar(&issuer, "issuer", nil, "Accepted issuers")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only report validity")
	return cmd
}

func tokenArg(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}
	raw, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", errors.New("no token given")
	}
	return token, nil
}
