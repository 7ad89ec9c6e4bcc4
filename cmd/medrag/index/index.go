// Package indexcmder provides the index command that pulls records from the
// EMR and indexes them into the vector store.
package indexcmder

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/cliui"
	"github.com/clidram/medrag/pkg/config"
	"github.com/clidram/medrag/pkg/connector"
	embeddingutils "github.com/clidram/medrag/pkg/embeddings/utils"
	"github.com/clidram/medrag/pkg/etl"
	noppub "github.com/clidram/medrag/pkg/eventstream/nop"
	"github.com/clidram/medrag/pkg/flatten"
	"github.com/clidram/medrag/pkg/logger"
	"github.com/clidram/medrag/pkg/vector/postgres"
	vectorutils "github.com/clidram/medrag/pkg/vector/utils"
	"github.com/clidram/medrag/pkg/watermark"
)

type indexCommander struct {
	kinds       []string
	incremental bool
	limit       int

	sourceURL      string
	sourceKey      string
	vectorProvider string
	vectorTarget   string
	sqlitePath     string
	embeddingTgt   string
	embeddingModel string
	embeddingDims  uint

	cfg    *config.Config
	debug  bool
	logger *zap.Logger
}

const indexLongDesc string = `Pull clinical records from the EMR and index them into the vector store.

Without arguments all supported source kinds are indexed:
  appointment, prescription, patient, disease

With --incremental only records the EMR has not yet marked as synced are
fetched, and they are marked synced after a successful index.

Examples:
  medrag index
  medrag index prescription patient
  medrag index --incremental
  medrag index disease --limit 500`

const indexShortDesc string = "Index EMR records into the vector store"

func NewIndexCmd() *cobra.Command {
	cmder := &indexCommander{}

	cmd := &cobra.Command{
		Use:   "index [kinds...]",
		Short: indexShortDesc,
		Long:  indexLongDesc,
		Args:  cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagSourceURL,
				config.FlagSourceKey,
				config.FlagVectorProvider,
				config.FlagVectorTarget,
				config.FlagSQLitePath,
				config.FlagEmbeddingTgt,
				config.FlagEmbeddingModel,
				config.FlagEmbeddingDims,
			})
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kind := range args {
				if !connector.IsKind(kind) {
					return fmt.Errorf("unknown source kind %q (supported: %s)",
						kind, strings.Join(connector.Kinds(), ", "))
				}
			}
			cmder.kinds = args

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().BoolVarP(&cmder.incremental, "incremental", "i", false, "Only index records not yet marked synced")
	cmd.Flags().IntVar(&cmder.limit, "limit", 0, "Maximum records to fetch per kind (0 = no limit)")
	config.AddStringFlag(cmd, config.Flags, config.FlagSourceURL, &cmder.sourceURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagSourceKey, &cmder.sourceKey)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorProvider, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorTarget, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embeddingTgt)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embeddingDims)

	return cmd
}

func (c *indexCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	cfg := c.cfg
	ctx := context.Background()

	store, err := vectorutils.NewDriver(ctx, cfg.VectorStore, cfg.Embedding.Dimensions, c.logger)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	defer store.Close()

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

	pipeline, err := etl.NewPipeline(&etl.Config{
		Source:     source,
		Embedder:   embedder,
		Store:      store,
		Watermarks: marks,
		Publisher:  noppub.NewPublisher(),
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

	var result *etl.RunResult
	err = cliui.Step(os.Stdout, "Indexing records", func() error {
		var runErr error
		result, runErr = pipeline.Run(ctx, etl.RunOptions{
			Kinds:       c.kinds,
			Limit:       c.limit,
			Incremental: c.incremental,
		})
		return runErr
	})
	if err != nil {
		return err
	}

	fmt.Println()
	failed := 0
	for _, kr := range result.Kinds {
		if kr.Error != "" {
			failed++
			fmt.Printf("  %s %-13s %s\n", cliui.FailMark, kr.SourceKind, cliui.DimStyle.Render(kr.Error))
			continue
		}
		fmt.Printf("  %s %-13s %s\n",
			cliui.SuccessMark,
			kr.SourceKind,
			cliui.ValueStyle.Render(fmt.Sprintf("%d records, %d chunks", kr.RecordsIndexed, kr.ChunksCreated)),
		)
	}
	fmt.Printf("\n  %s  %d records, %d chunks %s\n\n",
		cliui.KeyStyle.Render("Total:"),
		result.RecordsIndexed,
		result.ChunksCreated,
		cliui.DimStyle.Render(fmt.Sprintf("(%s)", cliui.FormatDuration(result.Elapsed))),
	)

	if failed > 0 {
		return fmt.Errorf("%d of %d kinds failed", failed, len(result.Kinds))
	}
	return nil
}
