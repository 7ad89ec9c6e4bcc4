package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent medrag configuration stored as config.toml
// in the .medrag/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Server      ServerConfig      `toml:"server"`
	Client      ClientConfig      `toml:"client"`
	Source      SourceConfig      `toml:"source"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	ETL         ETLConfig         `toml:"etl"`
	LLM         LLMConfig         `toml:"llm"`
	Session     SessionConfig     `toml:"session"`
	Events      EventsConfig      `toml:"events"`
	RAG         RAGConfig         `toml:"rag"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// medrag server (e.g. medrag status, medrag query). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// SourceConfig holds settings for the EMR bulk-export endpoint records are
// pulled from.
type SourceConfig struct {
	URL            string `toml:"url,omitempty"`
	APIKey         string `toml:"api_key,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// VectorStoreConfig holds vector store settings. Target is the Postgres DSN
// for the postgres provider; SQLitePath is used by the sqlite provider.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// ETLConfig holds chunking and batching settings for the indexing pipeline.
type ETLConfig struct {
	ChunkSize      int `toml:"chunk_size,omitempty"`
	ChunkOverlap   int `toml:"chunk_overlap,omitempty"`
	ChunkThreshold int `toml:"chunk_threshold,omitempty"`
	EmbedBatch     int `toml:"embed_batch,omitempty"`
	UpsertBatch    int `toml:"upsert_batch,omitempty"`
	Workers        int `toml:"workers,omitempty"`
}

// LLMConfig holds generation provider settings.
type LLMConfig struct {
	Provider       string `toml:"provider,omitempty"`
	Target         string `toml:"target,omitempty"`
	Model          string `toml:"model,omitempty"`
	FallbackFamily string `toml:"fallback_family,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// SessionConfig holds chat session cache settings.
type SessionConfig struct {
	TTLSeconds int `toml:"ttl_seconds,omitempty"`
}

// EventsConfig holds indexing event stream settings.
type EventsConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// RAGConfig holds retrieval settings.
type RAGConfig struct {
	TopK int `toml:"top_k,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) int, set func(c *Config, n int)) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.Itoa(get(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer value %q: %w", v, err)
			}
			set(c, n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"source.url": {
		get: func(c *Config) string { return c.Source.URL },
		set: func(c *Config, v string) error { c.Source.URL = v; return nil },
	},
	"source.api_key": {
		get: func(c *Config) string { return c.Source.APIKey },
		set: func(c *Config, v string) error { c.Source.APIKey = v; return nil },
	},
	"source.timeout_seconds": intKey(
		func(c *Config) int { return c.Source.TimeoutSeconds },
		func(c *Config, n int) { c.Source.TimeoutSeconds = n },
	),
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.sqlite_path": {
		get: func(c *Config) string { return c.VectorStore.SQLitePath },
		set: func(c *Config, v string) error { c.VectorStore.SQLitePath = v; return nil },
	},
	"etl.chunk_size": intKey(
		func(c *Config) int { return c.ETL.ChunkSize },
		func(c *Config, n int) { c.ETL.ChunkSize = n },
	),
	"etl.chunk_overlap": intKey(
		func(c *Config) int { return c.ETL.ChunkOverlap },
		func(c *Config, n int) { c.ETL.ChunkOverlap = n },
	),
	"etl.chunk_threshold": intKey(
		func(c *Config) int { return c.ETL.ChunkThreshold },
		func(c *Config, n int) { c.ETL.ChunkThreshold = n },
	),
	"etl.embed_batch": intKey(
		func(c *Config) int { return c.ETL.EmbedBatch },
		func(c *Config, n int) { c.ETL.EmbedBatch = n },
	),
	"etl.upsert_batch": intKey(
		func(c *Config) int { return c.ETL.UpsertBatch },
		func(c *Config, n int) { c.ETL.UpsertBatch = n },
	),
	"etl.workers": intKey(
		func(c *Config) int { return c.ETL.Workers },
		func(c *Config, n int) { c.ETL.Workers = n },
	),
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.target": {
		get: func(c *Config) string { return c.LLM.Target },
		set: func(c *Config, v string) error { c.LLM.Target = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"llm.fallback_family": {
		get: func(c *Config) string { return c.LLM.FallbackFamily },
		set: func(c *Config, v string) error { c.LLM.FallbackFamily = v; return nil },
	},
	"llm.timeout_seconds": intKey(
		func(c *Config) int { return c.LLM.TimeoutSeconds },
		func(c *Config, n int) { c.LLM.TimeoutSeconds = n },
	),
	"session.ttl_seconds": intKey(
		func(c *Config) int { return c.Session.TTLSeconds },
		func(c *Config, n int) { c.Session.TTLSeconds = n },
	),
	"events.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Events.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for events.enabled: %w", err)
			}
			c.Events.Enabled = b
			return nil
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			if v == "" {
				c.Events.Brokers = nil
				return nil
			}
			c.Events.Brokers = strings.Split(v, ",")
			return nil
		},
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"rag.top_k": intKey(
		func(c *Config) int { return c.RAG.TopK },
		func(c *Config, n int) { c.RAG.TopK = n },
	),
}
