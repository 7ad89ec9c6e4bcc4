package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/clidram/medrag/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the MEDRAG_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MEDRAG_SERVER_LISTEN, MEDRAG_SOURCE_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: MEDRAG_SERVER_LISTEN, MEDRAG_LLM_MODEL, etc.
	v.SetEnvPrefix("MEDRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper builds a fully-populated Config from the resolved viper state.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Server: ServerConfig{
			Listen: v.GetString("server.listen"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
		Source: SourceConfig{
			URL:            v.GetString("source.url"),
			APIKey:         v.GetString("source.api_key"),
			TimeoutSeconds: v.GetInt("source.timeout_seconds"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			SQLitePath: v.GetString("vector_store.sqlite_path"),
		},
		ETL: ETLConfig{
			ChunkSize:      v.GetInt("etl.chunk_size"),
			ChunkOverlap:   v.GetInt("etl.chunk_overlap"),
			ChunkThreshold: v.GetInt("etl.chunk_threshold"),
			EmbedBatch:     v.GetInt("etl.embed_batch"),
			UpsertBatch:    v.GetInt("etl.upsert_batch"),
			Workers:        v.GetInt("etl.workers"),
		},
		LLM: LLMConfig{
			Provider:       v.GetString("llm.provider"),
			Target:         v.GetString("llm.target"),
			Model:          v.GetString("llm.model"),
			FallbackFamily: v.GetString("llm.fallback_family"),
			TimeoutSeconds: v.GetInt("llm.timeout_seconds"),
		},
		Session: SessionConfig{
			TTLSeconds: v.GetInt("session.ttl_seconds"),
		},
		Events: EventsConfig{
			Enabled: v.GetBool("events.enabled"),
			Brokers: v.GetStringSlice("events.brokers"),
			Topic:   v.GetString("events.topic"),
		},
		RAG: RAGConfig{
			TopK: v.GetInt("rag.top_k"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Source
	v.SetDefault("source.url", d.Source.URL)
	v.SetDefault("source.api_key", d.Source.APIKey)
	v.SetDefault("source.timeout_seconds", d.Source.TimeoutSeconds)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.sqlite_path", d.VectorStore.SQLitePath)

	// ETL
	v.SetDefault("etl.chunk_size", d.ETL.ChunkSize)
	v.SetDefault("etl.chunk_overlap", d.ETL.ChunkOverlap)
	v.SetDefault("etl.chunk_threshold", d.ETL.ChunkThreshold)
	v.SetDefault("etl.embed_batch", d.ETL.EmbedBatch)
	v.SetDefault("etl.upsert_batch", d.ETL.UpsertBatch)
	v.SetDefault("etl.workers", d.ETL.Workers)

	// LLM
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.target", d.LLM.Target)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.fallback_family", d.LLM.FallbackFamily)
	v.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)

	// Session
	v.SetDefault("session.ttl_seconds", d.Session.TTLSeconds)

	// Events
	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// RAG
	v.SetDefault("rag.top_k", d.RAG.TopK)
}
