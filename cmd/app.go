package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xhad/ragdesk/internal/types"
	cfgPkg "github.com/xhad/ragdesk/pkg/config"
	"github.com/xhad/ragdesk/pkg/index"
	"github.com/xhad/ragdesk/pkg/llm"
	"github.com/xhad/ragdesk/pkg/logger"
	"github.com/xhad/ragdesk/pkg/processor"
	"github.com/xhad/ragdesk/pkg/rag"
	"github.com/xhad/ragdesk/pkg/scraper"
	"github.com/xhad/ragdesk/pkg/store"
	"github.com/xhad/ragdesk/pkg/tasks"
	"github.com/xhad/ragdesk/server"
)

// App holds the wired components for one command invocation.
type App struct {
	cfg    *cfgPkg.Config
	log    *logger.Logger
	svc    *rag.Service
	engine *tasks.Engine
	db     *store.Store
}

func newApp(ctx context.Context, cfg *cfgPkg.Config) (*App, error) {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Backend:    cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, err
	}

	var reranker types.Reranker = index.Lexical{}
	if cfg.Rerank.Provider == "cross-encoder" {
		reranker = index.NewCrossEncoder(index.CrossEncoderConfig{
			BaseURL: cfg.Rerank.BaseURL,
			Model:   cfg.Rerank.Model,
			APIKey:  cfg.Rerank.APIKey,
			Timeout: cfg.Rerank.Timeout,
		})
	}

	gateway := llm.NewGateway(llm.GatewayConfig{
		Endpoints:  cfg.Generation.Endpoints,
		MaxTokens:  cfg.Generation.MaxTokens,
		Timeout:    cfg.Generation.Timeout,
		OtherModel: cfg.Generation.OtherModel,
	}, log)

	documents, err := rag.NewDocumentStore(cfg.Storage.DocumentsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %v", err)
	}

	app := &App{cfg: cfg, log: log}

	var taskStore types.TaskStore = tasks.NewMemoryStore()
	var history types.ChatHistory = rag.NewMemoryHistory()
	var providers types.ProviderConfigs = rag.NewMemoryProviderConfigs()
	if cfg.Storage.DatabaseURL != "" {
		db, err := store.NewWithConfig(ctx, store.StoreConfig{
			ConnString:  cfg.Storage.DatabaseURL,
			TablePrefix: cfg.Storage.TablePrefix,
		})
		if err != nil {
			return nil, err
		}
		app.db = db
		taskStore = db.Tasks()
		history = db.Chats()
		providers = db.Providers()
	} else {
		log.Info("no database configured, tasks, chats and provider settings are kept in memory")
	}

	app.engine = tasks.NewEngine(taskStore, tasks.Config{Workers: cfg.Tasks.Workers}, log)

	app.svc = rag.New(rag.Config{
		TopK:              cfg.Search.TopK,
		InitialK:          cfg.Search.InitialK,
		FinalK:            cfg.Search.FinalK,
		MaxUploadBytes:    cfg.Storage.MaxUploadBytes,
		HistoryTurns:      *cfg.Search.HistoryTurns,
		DefaultProvider:   cfg.Generation.DefaultProvider,
		DefaultModel:      cfg.Generation.DefaultModel,
		DefaultCredential: cfg.Generation.APIKey,
	}, rag.Components{
		Documents: documents,
		Extractor: processor.NewExtractor(processor.ExtractorConfig{PDFToText: cfg.Processor.PDFToText}),
		Chunker:   processor.NewWithConfig(processor.ProcessorConfig{MinChunkLength: cfg.Processor.MinChunkLength}),
		Embedder:  embedder,
		Reranker:  reranker,
		Gateway:   gateway,
		Fetcher: scraper.NewWithConfig(scraper.ScraperConfig{
			RateLimit: cfg.Scraper.RateLimit,
			Timeout:   cfg.Scraper.Timeout,
			MaxBytes:  cfg.Scraper.MaxBytes,
			UserAgent: cfg.Scraper.UserAgent,
		}),
		Engine:    app.engine,
		History:   history,
		Providers: providers,
		Logger:    log,
	})

	return app, nil
}

// Close drains the task engine and releases the database pool.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.engine.Shutdown(ctx); err != nil {
		a.log.Warn("task engine did not drain", "error", err)
	}
	if a.db != nil {
		a.db.Close()
	}
	a.log.Sync()
}

func (a *App) serve(ctx context.Context) error {
	// Indexes live in memory, so the default scope is rebuilt from disk on boot.
	if _, err := a.svc.SubmitReindex(ctx, "default"); err != nil {
		a.log.Warn("initial reindex not scheduled", "error", err)
	}

	srv := server.NewServer(server.Config{
		Addr:           a.cfg.Server.Addr,
		Mode:           a.cfg.Server.Mode,
		MaxUploadBytes: a.cfg.Storage.MaxUploadBytes,
	}, a.svc, a.log)
	return srv.Run(ctx)
}
