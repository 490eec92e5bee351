// Command devapi serves the buyMove REST API from memory, seeded with the
// bundled vehicle dataset. It exists for local development and end-to-end
// tests of the client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/normalize"
	"github.com/buymove/buymove-client/engine/source"
	"github.com/buymove/buymove-client/pkg/config"
	"github.com/buymove/buymove-client/pkg/logging"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envPath    string
		addr       string
		demo       string
	)
	cmd := &cobra.Command{
		Use:          "devapi",
		Short:        "In-memory buyMove backend for development",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.DevAPI.Addr = addr
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err := run(cmd.Context(), cfg, demo, log); err != nil {
				log.Error("server exited with error", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&envPath, "env-file", ".env", "dotenv file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides BUYMOVE_DEVAPI_ADDR)")
	cmd.Flags().StringVar(&demo, "demo-user", "demo@buymove.app:buymove123", "email:password account created at start; empty for none")
	return cmd
}

func run(ctx context.Context, cfg config.Config, demo string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed, err := source.Seed(normalize.New(log))
	if err != nil {
		return err
	}
	srv, err := newServer(serverOptions{
		Secret:     cfg.DevAPI.JWTSecret,
		TokenTTL:   cfg.DevAPI.TokenTTL,
		CORSOrigin: cfg.DevAPI.CORSOrigin,
		Seed:       seed,
	}, log)
	if err != nil {
		return err
	}
	if demo != "" {
		email, password, ok := strings.Cut(demo, ":")
		if !ok {
			return fmt.Errorf("demo user %q: want email:password", demo)
		}
		u, err := srv.addUser(domain.RegisterRequest{Email: email, Password: password, FullName: "Demo"})
		if err != nil {
			return fmt.Errorf("demo user: %w", err)
		}
		log.Info("demo account ready", zap.String("email", u.Email))
	}

	httpSrv := &http.Server{
		Addr:         cfg.DevAPI.Addr,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("devapi starting", zap.String("addr", cfg.DevAPI.Addr), zap.Int("vehicles", len(seed)))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
