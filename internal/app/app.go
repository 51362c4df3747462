// Package app wires the application together.
//
// Setup constructs every service exactly once; App carries them and owns
// their shutdown.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent/internal/chatlog"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/conversation"
	"github.com/docent-ai/docent/internal/graph"
	"github.com/docent-ai/docent/internal/ingest"
	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/rag"
	"github.com/docent-ai/docent/internal/tools"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Conversations *conversation.Store
	ChatLog       *chatlog.Store
	Knowledge     *knowledge.Store
	Ingest        *ingest.Service
	Retriever     *rag.ContextRetriever
	Tools         *tools.Registry
	Engine        *graph.Engine

	otelCleanup func()
}

// Close releases all resources.
func (a *App) Close() error {
	a.logger().Info("shutting down application")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.logger().Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
