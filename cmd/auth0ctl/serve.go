package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/deepworx/go-auth0/pkg/config"
	"github.com/deepworx/go-auth0/pkg/connectrpc/interceptor"
	"github.com/deepworx/go-auth0/pkg/connectrpc/jwtauth"
	"github.com/deepworx/go-auth0/pkg/health"
	"github.com/deepworx/go-auth0/pkg/introspect"
	"github.com/deepworx/go-auth0/pkg/jwks"
	"github.com/deepworx/go-auth0/pkg/shutdown"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve token introspection and health over Connect",
		Long:  "Serve auth0.v1.TokenService/Introspect behind bearer token verification, plus the gRPC health service. Runs until SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.RequireVerify(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	server, agg, err := buildServer(runCtx, cfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	go func() {
		_ = agg.Run(runCtx)
	}()
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop(fmt.Errorf("serve: %w", err))
		}
	}()

	// LIFO: the HTTP server drains before background work stops.
	shutdown.Register("background", func(context.Context) error {
		stop(nil)
		return nil
	})
	shutdown.Register("http", server.Shutdown)

	slog.InfoContext(ctx, "serving",
		slog.String("addr", ln.Addr().String()),
		slog.String("procedure", introspect.IntrospectProcedure),
	)

	if err := shutdown.WaitForSignalWithTimeout(runCtx, cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// buildServer wires the authenticator, interceptor chain, introspection
// handler, and health checks. ctx bounds background key refresh.
func buildServer(ctx context.Context, cfg config.Config) (*http.Server, *health.Aggregator, error) {
	auth, err := jwtauth.NewAuthenticator(ctx, jwtauth.Config{
		Authority:       cfg.AuthorityURL(),
		Policy:          cfg.Policy(),
		HTTPTimeout:     cfg.HTTPTimeout,
		RefreshInterval: cfg.Verify.RefreshInterval,
	})
	if err != nil {
		return nil, nil, err
	}

	chain, err := interceptor.Build(cfg.Server.RPC, auth)
	if err != nil {
		return nil, nil, err
	}

	agg := health.NewAggregator(cfg.Server.Health)
	agg.Register("jwks", health.JWKSReachable(
		jwks.NewFetcher(jwks.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout})),
		auth.JWKSURL(),
	))
	if every := cfg.Verify.RefreshInterval; every > 0 {
		agg.Register("keyset", health.KeySetFresh(auth.KeySetUpdated, 3*every))
	}

	mux := http.NewServeMux()
	mux.Handle(introspect.NewHandler(connect.WithInterceptors(chain...)))
	mux.Handle(agg.Handler())

	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		Protocols:         protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}, agg, nil
}
