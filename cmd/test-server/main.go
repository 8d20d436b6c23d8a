package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/resolwe/resolwetest"
)

type options struct {
	addr        string
	accounts    map[string]string
	requireCSRF bool
}

func main() {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "test-server",
		Short: "Serve a fake Resolwe API with vaccine survey fixture samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8001", "listen address")
	cmd.Flags().StringToStringVar(&opts.accounts, "account", map[string]string{"admin": "admin"}, "username=password pairs accepted by the login endpoint")
	cmd.Flags().BoolVar(&opts.requireCSRF, "require-csrf", false, "reject logins that carry a csrftoken cookie but no X-CSRFToken header")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	var fake *resolwetest.Fake
	for user, pass := range opts.accounts {
		if fake == nil {
			fake = resolwetest.NewFake(user, pass)
			continue
		}
		fake.AddAccount(user, pass)
	}
	if fake == nil {
		return errors.New("at least one account is required")
	}
	if opts.requireCSRF {
		fake.RequireCSRF()
	}
	resolwetest.Populate(fake)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(fake))
	mux.Handle("/", fake)

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving fake Resolwe API",
			zap.String("addr", opts.addr),
			zap.Int("samples", len(resolwetest.VaccineSurveyFixtures())),
			zap.Int("accounts", len(opts.accounts)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped",
		zap.Int64("logins", fake.Logins()),
		zap.Int64("sample_lists", fake.SampleLists()))
	return nil
}

func healthHandler(fake *resolwetest.Fake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":       "ok",
			"timestamp":    time.Now().Format(time.RFC3339),
			"logins":       fake.Logins(),
			"sample_lists": fake.SampleLists(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		gojson.NewEncoder(w).Encode(status)
	}
}
