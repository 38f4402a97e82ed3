package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/index"
	"github.com/xhad/ragdesk/pkg/llm"
	"github.com/xhad/ragdesk/pkg/logger"
	"github.com/xhad/ragdesk/pkg/processor"
	"github.com/xhad/ragdesk/pkg/scraper"
	"github.com/xhad/ragdesk/pkg/tasks"
)

type Config struct {
	// TopK is how many chunks an answer is grounded on.
	TopK     int
	InitialK int
	FinalK   int
	// MaxUploadBytes caps uploaded file size. Zero means no cap.
	MaxUploadBytes int64
	// HistoryTurns is how many stored exchanges are replayed into a chat
	// prompt when the caller sends none.
	HistoryTurns int

	DefaultProvider   string
	DefaultModel      string
	DefaultCredential string
}

// Components are the collaborators a Service is built from. Reranker,
// Fetcher, History and Providers are optional.
type Components struct {
	Documents *DocumentStore
	Extractor types.Extractor
	Chunker   processor.Processor
	Embedder  types.Embedder
	Reranker  types.Reranker
	Gateway   *llm.Gateway
	Fetcher   *scraper.Scraper
	Engine    *tasks.Engine
	History   types.ChatHistory
	Providers types.ProviderConfigs
	Logger    *logger.Logger
}

// Service composes the chunker, the per-scope index and the generation
// gateway into ingest jobs and synchronous queries.
type Service struct {
	config    Config
	docs      *DocumentStore
	extractor types.Extractor
	chunker   processor.Processor
	embedder  types.Embedder
	reranker  types.Reranker
	gateway   *llm.Gateway
	fetcher   *scraper.Scraper
	engine    *tasks.Engine
	history   types.ChatHistory
	providers types.ProviderConfigs
	log       *logger.Logger

	scopes *index.Scopes

	mu       sync.Mutex
	rebuilds map[string]*sync.Mutex
}

func New(config Config, c Components) *Service {
	if config.TopK <= 0 {
		config.TopK = 3
	}
	if config.InitialK <= 0 {
		config.InitialK = 10
	}
	if config.FinalK <= 0 {
		config.FinalK = 3
	}
	if config.HistoryTurns < 0 {
		config.HistoryTurns = 0
	}
	if c.Reranker == nil {
		c.Reranker = index.Lexical{}
	}
	if c.History == nil {
		c.History = NewMemoryHistory()
	}
	if c.Providers == nil {
		c.Providers = NewMemoryProviderConfigs()
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Service{
		config:    config,
		docs:      c.Documents,
		extractor: c.Extractor,
		chunker:   c.Chunker,
		embedder:  c.Embedder,
		reranker:  c.Reranker,
		gateway:   c.Gateway,
		fetcher:   c.Fetcher,
		engine:    c.Engine,
		history:   c.History,
		providers: c.Providers,
		log:       log.With("component", "rag"),
		scopes:    index.NewScopes(),
		rebuilds:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) Engine() *tasks.Engine { return s.engine }

func (s *Service) Gateway() *llm.Gateway { return s.gateway }

func (s *Service) rebuildLock(scope string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rebuilds[scope]
	if !ok {
		m = &sync.Mutex{}
		s.rebuilds[scope] = m
	}
	return m
}

// Reindex re-chunks every supported document of scope and publishes a new
// index. It is a tasks.Body once bound to a scope.
func (s *Service) Reindex(ctx context.Context, scope string, rep tasks.Reporter) (map[string]any, error) {
	lock := s.rebuildLock(scope)
	lock.Lock()
	defer lock.Unlock()

	if err := rep.Update(tasks.Progress(55), tasks.Message("Extracting documents...")); err != nil {
		return nil, err
	}

	files, err := s.docs.List(scope)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for i, f := range files {
		if rep.IsCancelled() {
			return nil, tasks.ErrCancelled
		}

		text, err := s.extractor.Extract(ctx, s.docs.Path(scope, f.Name), filepath.Ext(f.Name))
		if err != nil {
			s.log.Warn("skipping unreadable document", "scope", scope, "file", f.Name, "error", err)
		} else {
			chunks = append(chunks, s.chunker.Process(f.Name, text)...)
		}

		progress := 55 + 35*(i+1)/len(files)
		if err := rep.Update(tasks.Progress(progress)); err != nil {
			return nil, err
		}
	}

	if rep.IsCancelled() {
		return nil, tasks.ErrCancelled
	}
	if err := rep.Update(tasks.Progress(95), tasks.Message("Building index...")); err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	ix, err := index.Build(ctx, s.embedder, texts)
	if err != nil {
		s.scopes.Drop(scope)
		return nil, err
	}

	snap := &index.Snapshot{Chunks: chunks, Index: ix}
	s.scopes.Swap(scope, snap)

	stats := snap.Stats()
	s.log.Info("index rebuilt", "scope", scope, "chunks", stats.TotalChunks, "documents", stats.TotalDocuments)
	return map[string]any{
		"total_chunks":    stats.TotalChunks,
		"total_documents": stats.TotalDocuments,
		"documents":       stats.Documents,
	}, nil
}

// UploadAndIndex stores content as filename, then rebuilds the scope's index.
func (s *Service) UploadAndIndex(ctx context.Context, scope, filename string, content []byte, rep tasks.Reporter) (map[string]any, error) {
	if err := rep.Update(tasks.Progress(10), tasks.Message("Saving file...")); err != nil {
		return nil, err
	}
	if err := s.docs.Save(scope, filename, content); err != nil {
		return nil, err
	}
	if err := rep.Update(tasks.Progress(50), tasks.Message("File saved.")); err != nil {
		return nil, err
	}

	result, err := s.Reindex(ctx, scope, rep)
	if err != nil {
		return nil, err
	}
	result["filename"] = filename
	return result, nil
}

// FetchAndIndex downloads rawURL through the safety policy, stores it, then
// rebuilds the scope's index.
func (s *Service) FetchAndIndex(ctx context.Context, scope, rawURL string, rep tasks.Reporter) (map[string]any, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("url import is not configured")
	}
	if err := rep.Update(tasks.Progress(10), tasks.Message("Downloading...")); err != nil {
		return nil, err
	}
	fetched, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := rep.Update(tasks.Progress(30), tasks.Message("Saving file...")); err != nil {
		return nil, err
	}
	if err := s.docs.Save(scope, fetched.Filename, fetched.Data); err != nil {
		return nil, err
	}
	if err := rep.Update(tasks.Progress(50), tasks.Message("File saved.")); err != nil {
		return nil, err
	}

	result, err := s.Reindex(ctx, scope, rep)
	if err != nil {
		return nil, err
	}
	result["filename"] = fetched.Filename
	result["source_url"] = rawURL
	return result, nil
}

func (s *Service) SubmitReindex(ctx context.Context, scope string) (models.TaskRecord, error) {
	return s.engine.Submit(ctx, scope, models.TaskReindex, "Re-index queued.",
		func(ctx context.Context, rep tasks.Reporter) (map[string]any, error) {
			return s.Reindex(ctx, scope, rep)
		})
}

// SubmitUpload validates the upload synchronously and queues the
// upload-and-index job.
func (s *Service) SubmitUpload(ctx context.Context, scope, filename string, content []byte) (models.TaskRecord, error) {
	if err := CheckName(filename); err != nil {
		return models.TaskRecord{}, err
	}
	if s.config.MaxUploadBytes > 0 && int64(len(content)) > s.config.MaxUploadBytes {
		return models.TaskRecord{}, invalid("file", "file exceeds %d bytes", s.config.MaxUploadBytes)
	}
	return s.engine.Submit(ctx, scope, models.TaskUploadIndex, fmt.Sprintf("Upload of %q queued.", filename),
		func(ctx context.Context, rep tasks.Reporter) (map[string]any, error) {
			return s.UploadAndIndex(ctx, scope, filename, content, rep)
		})
}

// SubmitFetch rejects unsafe URLs up front and queues the fetch-and-index
// job. The job checks the URL again before downloading.
func (s *Service) SubmitFetch(ctx context.Context, scope, rawURL string) (models.TaskRecord, error) {
	if rawURL == "" {
		return models.TaskRecord{}, invalid("url", "please provide a URL")
	}
	if s.fetcher == nil {
		return models.TaskRecord{}, invalid("url", "url import is not configured")
	}
	if err := s.fetcher.Check(ctx, rawURL); err != nil {
		return models.TaskRecord{}, invalid("url", "%v", err)
	}
	return s.engine.Submit(ctx, scope, models.TaskURLIndex, "URL import queued.",
		func(ctx context.Context, rep tasks.Reporter) (map[string]any, error) {
			return s.FetchAndIndex(ctx, scope, rawURL, rep)
		})
}
