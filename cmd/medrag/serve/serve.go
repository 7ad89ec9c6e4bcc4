// Package servecmder provides the serve command that runs the medrag API
// server with all of its collaborators wired from configuration.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clidram/medrag/api"
	"github.com/clidram/medrag/api/mcp"
	"github.com/clidram/medrag/pkg/config"
	"github.com/clidram/medrag/pkg/connector"
	"github.com/clidram/medrag/pkg/credentials"
	embeddingutils "github.com/clidram/medrag/pkg/embeddings/utils"
	"github.com/clidram/medrag/pkg/etl"
	"github.com/clidram/medrag/pkg/eventstream"
	kafkapub "github.com/clidram/medrag/pkg/eventstream/kafka"
	noppub "github.com/clidram/medrag/pkg/eventstream/nop"
	"github.com/clidram/medrag/pkg/flatten"
	"github.com/clidram/medrag/pkg/llm/google"
	"github.com/clidram/medrag/pkg/logger"
	"github.com/clidram/medrag/pkg/rag"
	"github.com/clidram/medrag/pkg/session"
	"github.com/clidram/medrag/pkg/vector/postgres"
	vectorutils "github.com/clidram/medrag/pkg/vector/utils"
	"github.com/clidram/medrag/pkg/watermark"
)

type ServeCommander struct {
	listen         string
	sourceURL      string
	sourceKey      string
	vectorProvider string
	vectorTarget   string
	sqlitePath     string
	embeddingTgt   string
	embeddingModel string
	embeddingDims  uint
	llmModel       string

	cfg    *config.Config
	debug  bool
	logger *zap.Logger
}

const serveLongDesc string = `Run the medrag API server.

Wires the EMR connector, embedder, vector store, generation client, and
session cache from configuration, then serves query, chat, indexing, and
MCP endpoints.

Examples:
  medrag serve
  medrag serve --listen :9000 --vector-provider sqlite --sqlite medrag.db
  MEDRAG_SOURCE_API_KEY=... medrag serve --source-url http://emr.local:8069`

const serveShortDesc string = "Run the medrag API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagListen,
				config.FlagSourceURL,
				config.FlagSourceKey,
				config.FlagVectorProvider,
				config.FlagVectorTarget,
				config.FlagSQLitePath,
				config.FlagEmbeddingTgt,
				config.FlagEmbeddingModel,
				config.FlagEmbeddingDims,
				config.FlagLLMModel,
			})
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagSourceURL, &cmder.sourceURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagSourceKey, &cmder.sourceKey)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorProvider, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorTarget, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embeddingTgt)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, config.Flags, config.FlagLLMModel, &cmder.llmModel)

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	cfg := c.cfg
	ctx := context.Background()

	// Vector store, shared by the pipeline and the engine.
	store, err := vectorutils.NewDriver(ctx, cfg.VectorStore, cfg.Embedding.Dimensions, c.logger)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	defer store.Close()

	// Watermarks share the postgres handle when available.
	pgDriver, _ := store.(*postgres.Driver)
	var marks watermark.Store
	if pgDriver != nil {
		marks, err = watermark.NewPostgresStore(ctx, pgDriver.DB())
		if err != nil {
			return fmt.Errorf("creating watermark store: %w", err)
		}
	} else {
		marks = watermark.NewMemoryStore()
	}
	defer marks.Close()

	embedder, err := embeddingutils.NewEmbedder(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	source := connector.NewClient(connector.Config{
		BaseURL: cfg.Source.URL,
		APIKey:  cfg.Source.APIKey,
		Timeout: time.Duration(cfg.Source.TimeoutSeconds) * time.Second,
	})

	var publisher eventstream.Publisher
	if cfg.Events.Enabled {
		publisher = kafkapub.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		c.logger.Info("publishing index events",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic),
		)
	} else {
		publisher = noppub.NewPublisher()
	}
	defer publisher.Close()

	pipeline, err := etl.NewPipeline(&etl.Config{
		Source:     source,
		Embedder:   embedder,
		Store:      store,
		Watermarks: marks,
		Publisher:  publisher,
		Flatten: flatten.Config{
			ChunkSize: uint(cfg.ETL.ChunkSize),
			Overlap:   uint(cfg.ETL.ChunkOverlap),
			Threshold: uint(cfg.ETL.ChunkThreshold),
		},
		EmbedBatch:  cfg.ETL.EmbedBatch,
		UpsertBatch: cfg.ETL.UpsertBatch,
		Workers:     cfg.ETL.Workers,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	creds, err := credentials.NewManager("")
	if err != nil {
		return fmt.Errorf("creating credentials manager: %w", err)
	}

	generator, err := c.newGenerator(creds)
	if err != nil {
		return err
	}
	defer generator.Close()

	// Hot-reload the generation credential when the file changes.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		err := creds.Watch(watchCtx, func(updated *credentials.Credentials) {
			if err := generator.Reconfigure(updated.Google.APIKey, updated.Google.Model); err != nil {
				c.logger.Warn("applying rotated credentials failed", zap.Error(err))
				return
			}
			c.logger.Info("applied rotated generation credentials",
				zap.String("model", generator.ActiveModel()),
			)
		})
		if err != nil {
			c.logger.Debug("credentials watch stopped", zap.Error(err))
		}
	}()

	sessions := session.NewStore(time.Duration(cfg.Session.TTLSeconds) * time.Second)

	engine, err := rag.NewEngine(&rag.Config{
		Embedder:  embedder,
		Store:     store,
		Generator: generator,
		Sessions:  sessions,
		TopK:      cfg.RAG.TopK,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating rag engine: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		VectorDriver: store,
		Embedder:     embedder,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}

	apiServer, err := api.NewServer(
		api.Config{ListenAddr: cfg.Server.Listen},
		api.Options{
			Engine:      engine,
			Pipeline:    pipeline,
			Generator:   generator,
			Credentials: creds,
			MCP:         mcpServer.Handler(),
		},
		c.logger,
	)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}

// newGenerator builds the Google generation client, preferring the persisted
// credential (or GOOGLE_API_KEY) over an unset key. Serving still starts
// without a key; queries degrade to retrieval-only until one is configured.
func (c *ServeCommander) newGenerator(creds *credentials.Manager) (*google.Client, error) {
	cfg := c.cfg

	apiKey, err := creds.Resolve()
	if err != nil {
		c.logger.Warn("resolving generation API key failed", zap.Error(err))
	}
	if apiKey == "" {
		c.logger.Warn("no generation API key configured; queries will degrade to retrieval-only")
	}

	model := cfg.LLM.Model
	if stored, err := creds.Load(); err == nil && stored.Google.Model != "" {
		model = stored.Google.Model
	}

	return google.NewClient(google.Config{
		APIKey:         apiKey,
		Model:          model,
		FallbackFamily: cfg.LLM.FallbackFamily,
		BaseURL:        cfg.LLM.Target,
		Timeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Logger:         c.logger,
	}), nil
}
