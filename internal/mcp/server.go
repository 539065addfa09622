// Package mcp exposes search and ingest over the Model Context
// Protocol on stdio. Stdout carries the protocol; all logging goes to
// stderr.
package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/nexushq/nexus/internal/ann"
	"github.com/nexushq/nexus/internal/bruteforce"
	"github.com/nexushq/nexus/internal/embedder"
	"github.com/nexushq/nexus/internal/ingest"
	"github.com/nexushq/nexus/internal/lexical"
	"github.com/nexushq/nexus/internal/router"
	"github.com/nexushq/nexus/internal/searcher"
	"github.com/nexushq/nexus/internal/storage"
)

const (
	ServerName    = "nexus"
	ServerVersion = "1.0.0"
)

// Config wires the server's dependencies.
type Config struct {
	DBPath      string
	QdrantAddr  string
	Collection  string
	Threshold   int64
	LivenessTTL time.Duration
	Logger      *zap.Logger
}

// Server owns the full search stack behind the MCP tool surface.
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	adapter  *ann.Adapter
	router   *router.Router
	searcher *searcher.Searcher
	pipeline *ingest.Pipeline
	embedder embedder.Embedder
	logger   *zap.Logger

	closeOnce sync.Once
}

// NewServer builds the stack: storage, engines, router, searcher, and
// the ingest pipeline. The external adapter is optional; without a
// Qdrant address every semantic query uses the exact scan.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".nexus", "nexus.db")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	var adapter *ann.Adapter
	var external router.External
	if cfg.QdrantAddr != "" {
		collection := cfg.Collection
		if collection == "" {
			collection = "nexus_chunks"
		}
		adapter, err = ann.Dial(cfg.QdrantAddr, collection, cfg.LivenessTTL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("dial external index: %w", err)
		}
		external = adapter
	}

	exact := bruteforce.NewEngine(store)
	routerOpts := []router.Option{router.WithLogger(logger)}
	if cfg.Threshold > 0 {
		routerOpts = append(routerOpts, router.WithThreshold(cfg.Threshold))
	}
	rt := router.New(exact, external, store, routerOpts...)

	srch := searcher.New(lexical.NewIndex(store), rt, emb, store, logger)

	ingestOpts := []ingest.Option{ingest.WithLogger(logger)}
	if adapter != nil {
		ingestOpts = append(ingestOpts, ingest.WithMirror(adapter))
	}
	pipeline := ingest.New(store, emb, ingestOpts...)

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		adapter:  adapter,
		router:   rt,
		searcher: srch,
		pipeline: pipeline,
		embedder: emb,
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until the transport closes.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()

	if s.adapter != nil {
		if err := s.adapter.EnsureCollection(ctx, s.embedder.Dimension()); err != nil {
			s.logger.Warn("external index not ready at startup", zap.Error(err))
		}
	}
	return server.ServeStdio(s.mcp)
}

// Close releases storage, the embedder, and the external adapter. Safe
// to call more than once; Serve closes on its own exit, and main closes
// on the signal path where stdio keeps Serve blocked.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.adapter != nil {
			_ = s.adapter.Close()
		}
		_ = s.embedder.Close()
		_ = s.storage.Close()
	})
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(ingestEmbeddingsTool(), s.handleIngestEmbeddings)
	s.mcp.AddTool(indexStatsTool(), s.handleIndexStats)
}
