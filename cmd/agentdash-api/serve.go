package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/agent-dash/internal/adapters/http"
	"github.com/PabloGalante/agent-dash/internal/app/conversation"
	"github.com/PabloGalante/agent-dash/internal/app/dashboards"
	"github.com/PabloGalante/agent-dash/internal/app/generation"
	"github.com/PabloGalante/agent-dash/internal/config"
	"github.com/PabloGalante/agent-dash/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "Listen port (overrides AGENTDASH_PORT)")
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := observability.Logger()
	metrics := observability.NewMetrics()

	var toClose closers
	defer toClose.Close()

	docs, docsCloser, err := buildDocumentStore(ctx, cfg)
	if err != nil {
		return err
	}
	if docsCloser != nil {
		toClose = append(toClose, docsCloser)
	}

	sessions, sessCloser, err := buildSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	if sessCloser != nil {
		toClose = append(toClose, sessCloser)
	}

	opts := []conversation.Option{
		conversation.WithMetrics(metrics),
		conversation.WithDesignPromptDelay(cfg.DesignPromptDelay),
		conversation.WithMaxFiles(cfg.MaxUploadFiles),
		conversation.WithOverwriteOnSave(cfg.SavePolicy == config.SaveOverwrite),
		conversation.WithIdleTTL(cfg.SessionTTL),
	}

	// A nil Generator must stay an untyped nil interface.
	var gen conversation.Generator
	backend, reason := buildBackend(ctx, cfg)
	if backend != nil {
		gen = generation.NewClient(backend,
			generation.WithRetryPolicy(retryPolicy(cfg)),
			generation.WithMetrics(metrics),
		)
	} else {
		opts = append(opts, conversation.WithUnavailableGenerator(reason))
	}

	convSvc := conversation.NewService(gen, docs, sessions, opts...)
	if cfg.SessionTTL > 0 {
		go convSvc.RunJanitor(ctx, time.Minute)
	}
	handler := httpadapter.NewServer(convSvc, dashboards.NewService(docs), metrics)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("agent dash API listening", "port", cfg.Port, "storage", cfg.StorageBackend, "sessions", cfg.SessionBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
