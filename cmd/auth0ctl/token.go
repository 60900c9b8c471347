package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/deepworx/go-auth0/pkg/oauth"
	"github.com/deepworx/go-auth0/pkg/slogutil"
)

var errPasswordRequired = errors.New("password required: pass --password-stdin or run in a terminal")

func newTokenCmd(a *app) *cobra.Command {
	var (
		username      string
		passwordStdin bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Request an access token",
		Long:  "Request an access token with the configured grant. With --username the password grant is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.RequireClient(); err != nil {
				return err
			}
			grant, err := oauth.ParseGrantType(a.cfg.GrantType)
			if err != nil {
				return err
			}

			var password string
			if username != "" {
				password, err = readPassword(cmd, passwordStdin)
				if err != nil {
					return err
				}
			}

			client := oauth.NewClient(a.cfg.ClientID, a.cfg.ClientSecret, a.cfg.DomainURL(), a.cfg.Audience,
				oauth.WithGrantType(grant),
				oauth.WithHTTPClient(a.httpClient()),
			)
			resp, err := client.AuthenticateWithBody(cmd.Context(), client.TokenRequest(username, password))
			if err != nil {
				return err
			}

			slog.InfoContext(cmd.Context(), "access token issued",
				slog.String("token_type", resp.TokenType),
				slog.Int64("expires_in", resp.ExpiresIn),
				slogutil.Secret("access_token", resp.AccessToken),
			)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			_, err = fmt.Fprintln(out, resp.AccessToken)
			return err
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Resource owner username (password grant)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full token response as JSON")
	return cmd
}

func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		return readLine(cmd.InOrStdin())
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errPasswordRequired
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errPasswordRequired
	}
	return line, nil
}
