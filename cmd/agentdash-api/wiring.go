package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/PabloGalante/agent-dash/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/agent-dash/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/agent-dash/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/agent-dash/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/agent-dash/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/agent-dash/internal/app/generation"
	"github.com/PabloGalante/agent-dash/internal/config"
	"github.com/PabloGalante/agent-dash/internal/domain"
	"github.com/PabloGalante/agent-dash/internal/observability"
)

// closers collects resources to release on shutdown.
type closers []io.Closer

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			observability.Logger().Warn("close failed", "error", err)
		}
	}
}

// buildBackend returns the generation backend, or nil and the reason AI
// features are unavailable.
func buildBackend(ctx context.Context, cfg *config.Config) (domain.GenerationBackend, string) {
	log := observability.WithFields("component", "llm", "backend", cfg.LLMBackend)

	if err := cfg.ValidateAI(); err != nil {
		log.Error("generation backend unavailable", "error", err)
		return nil, err.Error()
	}

	if cfg.LLMBackend == config.LLMMock {
		log.Info("using mock generation backend")
		return llm.NewMockLLM(), ""
	}

	client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:            cfg.GeminiAPIKey,
		Project:           cfg.GCPProjectID,
		Location:          cfg.GCPLocation,
		Vertex:            cfg.LLMBackend == config.LLMVertex,
		ReasoningModel:    cfg.ReasoningModel,
		CodingModel:       cfg.CodingModel,
		RequestsPerSecond: cfg.LLMRPS,

		ReasoningMaxTokens: int32(cfg.ReasoningMaxTokens),
		CodingMaxTokens:    int32(cfg.CodingMaxTokens),
	})
	if err != nil {
		log.Error("generation backend unavailable", "error", err)
		return nil, err.Error()
	}
	log.Info("using gemini generation backend",
		"reasoning_model", cfg.ReasoningModel,
		"coding_model", cfg.CodingModel,
	)
	return client, ""
}

func retryPolicy(cfg *config.Config) generation.RetryPolicy {
	p := generation.DefaultRetryPolicy()
	p.MaxRetries = cfg.RetryMax
	p.InitialDelay = cfg.RetryInitialDelay
	return p
}

// buildDocumentStore picks the persistence gateway from AGENTDASH_STORAGE_BACKEND.
func buildDocumentStore(ctx context.Context, cfg *config.Config) (domain.DocumentStore, io.Closer, error) {
	log := observability.WithFields("component", "store")

	switch cfg.StorageBackend {
	case "firestore":
		if cfg.GCPProjectID == "" {
			return nil, nil, fmt.Errorf("AGENTDASH_GCP_PROJECT is required for Firestore storage backend")
		}
		store, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing Firestore store: %w", err)
		}
		log.Info("using Firestore storage", "project", cfg.GCPProjectID)
		return store, store, nil

	case "sqlite":
		store, err := sqlitestore.NewStore(cfg.SQLiteDir)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing SQLite store: %w", err)
		}
		log.Info("using SQLite storage", "path", store.Path())
		return store, store, nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewDocumentStore(), nil, nil
	}
}

// buildSessionStore picks the snapshot store from AGENTDASH_SESSION_BACKEND.
func buildSessionStore(ctx context.Context, cfg *config.Config) (domain.SessionStore, io.Closer, error) {
	log := observability.WithFields("component", "sessions")

	if cfg.SessionBackend != "redis" {
		log.Info("using in-memory session store")
		return memstore.NewSessionStore(), nil, nil
	}

	store := redisStore(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := store.ListSessions(pingCtx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Info("using redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	return store, store, nil
}

func redisStore(cfg *config.Config) *redisstore.SessionStore {
	return redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		redisstore.WithTTL(cfg.SessionTTL),
	)
}
