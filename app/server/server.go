package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"placement-ai/app/agent"
	"placement-ai/app/api"
	"placement-ai/app/rag"
	"placement-ai/index"
	"placement-ai/ingest"
	"placement-ai/model"
	"placement-ai/store"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
	app        *fiber.App
	pipeline   *ingest.Pipeline
	storage    *store.PostgresStore
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Run() {
	ctx := context.Background()

	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
	storage, err := store.NewPostgresStore(ctx, connStr)
	if err != nil {
		log.Fatal("error to connect to Postgres database: ", err)
		return
	}
	s.storage = storage

	embedder := buildEmbedder()
	idx, rebuildAtBoot, err := buildIndex(ctx, storage, embedder)
	if err != nil {
		log.Fatal("error to build index backend: ", err)
		return
	}

	chunker := ingest.NewChunker(envInt("CHUNK_SIZE", ingest.DefaultChunkSize), envInt("CHUNK_OVERLAP", ingest.DefaultChunkOverlap))
	pipeline := ingest.NewPipeline(embedder, idx, storage, chunker)
	s.pipeline = pipeline

	// A memory index is a derived cache: refill it from the approved
	// experience set before serving.
	if rebuildAtBoot {
		s.logger.Info("rebuilding in-memory index from experience store")
		if err := pipeline.ReindexAll(ctx); err != nil {
			log.Fatal("error to rebuild index: ", err)
			return
		}
	}
	pipeline.Start(envInt("INGEST_WORKERS", 4))

	retriever, err := rag.NewRetriever(embedder, idx)
	if err != nil {
		log.Fatal("embedder/index mismatch: ", err)
		return
	}
	var generator rag.Generator
	if url := os.Getenv("LLM_URL"); url != "" {
		generator = agent.New(url, os.Getenv("LLM_MODEL"))
		s.logger.Info("answer generation enabled", "model", os.Getenv("LLM_MODEL"))
	}
	synth := rag.NewSynthesizer(envFloat("SIMILARITY_THRESHOLD", rag.DefaultRelevanceThreshold), generator)
	timeout := time.Duration(envInt("QUERY_TIMEOUT_MS", int(rag.DefaultQueryTimeout/time.Millisecond))) * time.Millisecond
	svc := rag.NewService(retriever, synth, storage, timeout)

	var (
		app            = fiber.New(config)
		checkHandler   = api.NewCheckHandler(svc)
		requestHandler = api.NewRequestHandler(svc)
		embedHandler   = api.NewEmbedHandler(pipeline, storage)
		archiveHandler = api.NewArchiveHandler(svc)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)
	s.app = app

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/query", requestHandler.HandleQuery)
	apiv1.Post("/embed", embedHandler.HandleEmbed)
	apiv1.Delete("/embed/:experience_id", embedHandler.HandleRemove)
	apiv1.Get("/embed/:experience_id/status", embedHandler.HandleStatus)
	apiv1.Post("/reindex", embedHandler.HandleReindex)
	apiv1.Get("/similar", archiveHandler.HandleSimilar)
	apiv1.Get("/trends", archiveHandler.HandleTrends)
	apiv1.Get("/stats", archiveHandler.HandleStats)

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
	}
}

func (s *Server) Stop() {
	if s.app != nil {
		_ = s.app.Shutdown()
	}
	if s.pipeline != nil {
		s.pipeline.Stop()
	}
	if s.storage != nil {
		_ = s.storage.Close()
	}
	s.logger.Info("server stopped")
}

func buildEmbedder() model.Embedder {
	dimension := envInt("EMBEDDING_DIMENSION", 768)
	switch os.Getenv("EMBEDDING_BACKEND") {
	case "openai":
		return model.NewOpenAIEmbedder(os.Getenv("OPENAI_EMBEDDING_MODEL"), dimension)
	case "local":
		return model.NewLocalEmbedder(dimension)
	default:
		return model.NewOllamaEmbedder(os.Getenv("OLLAMA_EMBEDDING_URL"), os.Getenv("OLLAMA_EMBEDDING_MODEL"), dimension)
	}
}

// buildIndex picks the index backend. The second return reports whether
// the backend is volatile and must be rebuilt from the store at boot.
func buildIndex(ctx context.Context, storage *store.PostgresStore, embedder model.Embedder) (index.Index, bool, error) {
	switch os.Getenv("INDEX_BACKEND") {
	case "pgvector":
		idx, err := store.NewPostgresIndex(ctx, storage.Pool(), embedder.Dimension(), embedder.Signature())
		return idx, false, err
	case "qdrant":
		idx, err := index.NewQdrant(
			os.Getenv("QDRANT_HOST"),
			envInt("QDRANT_PORT", 6334),
			getenvDefault("QDRANT_COLLECTION", "placement_chunks"),
			embedder.Dimension(),
			embedder.Signature(),
		)
		return idx, false, err
	default:
		return index.NewMemory(embedder.Dimension(), embedder.Signature()), true, nil
	}
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v > 0 {
		return v
	}
	return fallback
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
