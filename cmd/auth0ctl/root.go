package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepworx/go-auth0/pkg/config"
	"github.com/deepworx/go-auth0/pkg/slogutil"
	"github.com/deepworx/go-auth0/pkg/telemetry"
)

// app carries state shared by all subcommands.
type app struct {
	cfgPath  string
	logLevel string
	cfg      config.Config
	ui       *ui
}

func newRootCmd() *cobra.Command {
	a := &app{ui: newUI()}

	root := &cobra.Command{
		Use:           "auth0ctl",
		Short:         "Acquire and verify Auth0 access tokens",
		Long:          "auth0ctl requests access tokens from an Auth0 tenant, verifies bearer JWTs against the tenant's JWKS, and serves token introspection over Connect.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", os.Getenv("AUTH0_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		newTokenCmd(a),
		newVerifyCmd(a),
		newJWKSCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := slogutil.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)

	if err := telemetry.Setup(cmd.Context(), cfg.Telemetry); err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	a.cfg = cfg
	return nil
}

func (a *app) httpClient() *http.Client {
	return &http.Client{Timeout: a.cfg.HTTPTimeout}
}
