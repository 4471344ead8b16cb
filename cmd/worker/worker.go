package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"coremind-platform/internal/ai"
	"coremind-platform/internal/config"
	"coremind-platform/internal/knowledge"
	"coremind-platform/internal/logger"
	"coremind-platform/internal/queue"
	"coremind-platform/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.InitTracer("coremind-worker", cfg.TelemetryEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracing:", err)
		}
		defer shutdown()

		metrics, err = telemetry.InitMetrics()
		if err != nil {
			log.Fatal("Failed to initialize metrics:", err)
		}
	}

	embedder, err := ai.NewEmbedder(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to initialize embeddings:", err)
	}
	if metrics != nil {
		embedder = ai.NewMeasuredEmbedder(embedder, metrics)
	}

	if cfg.EmbeddingCacheEnabled {
		rdb, err := config.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		defer rdb.Close()
		embedder = ai.NewCachedEmbedder(embedder, rdb, cfg.EmbeddingCacheTTL)
	}

	db, err := knowledge.OpenDB(cfg.ChromaPersistDir)
	if err != nil {
		log.Fatal("Failed to open vector database:", err)
	}

	splitter := knowledge.NewSplitter(cfg.MaxChunkSize, cfg.ChunkOverlap)
	ingestor := queue.NewIngestor(db, embedder, splitter, metrics)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIndexDocument, ingestor.HandleIndexDocument)
	mux.HandleFunc(queue.TaskDropCollection, ingestor.HandleDropCollection)

	logger.Info("starting ingestion worker",
		"redis", cfg.RedisURL,
		"persist_dir", cfg.ChromaPersistDir,
		"embedding_model", embedder.Model())

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
