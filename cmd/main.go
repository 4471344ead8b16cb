package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"

	"coremind-platform/internal/ai"
	"coremind-platform/internal/assistant"
	"coremind-platform/internal/config"
	"coremind-platform/internal/crypto"
	"coremind-platform/internal/knowledge"
	"coremind-platform/internal/llm"
	"coremind-platform/internal/logger"
	"coremind-platform/internal/queue"
	"coremind-platform/internal/telemetry"
)

func main() {
	collectionsFlag := flag.String("collections", "default", "comma-separated knowledge collections to search")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.InitTracer("coremind-platform", cfg.TelemetryEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracing:", err)
		}
		defer shutdown()

		metrics, err = telemetry.InitMetrics()
		if err != nil {
			log.Fatal("Failed to initialize metrics:", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keeper, err := crypto.NewKeeper(cfg.CredentialMasterKey)
	if err != nil {
		log.Fatal("Failed to initialize credential keeper:", err)
	}

	// The plaintext key from the environment is sealed immediately; the
	// pipeline only ever sees the sealed form.
	sealed := ""
	if cfg.LLMAPIKey != "" {
		sealed, err = keeper.Seal(cfg.LLMAPIKey)
		if err != nil {
			log.Fatal("Failed to seal provider credential:", err)
		}
	}

	gateway, err := llm.NewGateway(llm.ProviderConfig{
		Provider:    cfg.LLMProvider,
		Model:       cfg.LLMModel,
		Credential:  sealed,
		BaseURL:     cfg.LLMBaseURL,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Extra:       cfg.LLMExtra,
		Headers:     cfg.LLMHeaders,
	}, keeper, metrics)
	if err != nil {
		log.Fatal("Failed to initialize LLM gateway:", err)
	}

	embedder, err := ai.NewEmbedder(ctx, cfg)
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

	var retrievers []assistant.Retriever
	var services []assistant.Service
	for _, name := range strings.Split(*collectionsFlag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		store, err := knowledge.NewStore(db, name, embedder)
		if err != nil {
			log.Fatal("Failed to open collection:", err)
		}
		retrievers = append(retrievers, store)
		services = append(services, assistant.Service{
			Type: assistant.RouteKnowledgeBase,
			ID:   name,
			Name: name,
		})
	}

	router := assistant.NewKeywordRouter(cfg.AutoRoute)
	engine, err := assistant.NewEngine(assistant.EngineOptions{
		Gateway:      gateway,
		Classifier:   router,
		Memory:       assistant.NewMemory(cfg.MaxHistoryMessages),
		Retrievers:   retrievers,
		Capabilities: assistant.Capabilities{KnowledgeBase: len(retrievers) > 0},
		Services:     services,
		SystemPrompt: cfg.SystemPrompt,
		TopK:         cfg.RetrievalTopK,
		Metrics:      metrics,
	})
	if err != nil {
		log.Fatal("Failed to initialize engine:", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	logger.Info("chat session started",
		"provider", gateway.Provider(),
		"embedding_model", embedder.Model(),
		"collections", *collectionsFlag)

	repl(ctx, engine, retrievers, asynqClient)
}

// repl runs the interactive loop. Replies stream to stdout as the model
// produces them; Ctrl-C cancels the in-flight turn and keeps whatever
// was produced in the conversation history.
func repl(ctx context.Context, engine *assistant.Engine, retrievers []assistant.Retriever, client *asynq.Client) {
	fmt.Println("CoreMind chat. /index <collection> <file>, /stats, /quit.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return

		case line == "/stats":
			for _, r := range retrievers {
				if store, ok := r.(*knowledge.Store); ok {
					s := store.Stats()
					fmt.Printf("%s: %d documents\n", s.CollectionName, s.TotalDocuments)
				}
			}

		case strings.HasPrefix(line, "/index "):
			parts := strings.Fields(line)
			if len(parts) != 3 {
				fmt.Println("usage: /index <collection> <file>")
				continue
			}
			if err := enqueueIndex(client, parts[1], parts[2]); err != nil {
				fmt.Println("index failed:", err)
			}

		default:
			result, err := engine.ChatStream(ctx, line, func(chunk string) {
				fmt.Print(chunk)
			})
			fmt.Println()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fmt.Println("turn failed:", err)
				continue
			}
			if result.UsedKnowledge {
				fmt.Printf("[route=%s confidence=%.2f sources=%d]\n",
					result.Route.Type, result.Route.Confidence, len(result.KnowledgeHits))
			}
		}
	}
}

// enqueueIndex reads a plain-text file and hands it to the ingestion
// worker.
func enqueueIndex(client *asynq.Client, collection, path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	task, err := queue.NewIndexDocumentTask(collection, title, string(text), nil)
	if err != nil {
		return err
	}

	info, err := client.Enqueue(task)
	if err != nil {
		return err
	}

	fmt.Printf("queued %s into %s (task %s)\n", title, collection, info.ID)
	return nil
}
