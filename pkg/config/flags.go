package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --source-url
// on both "medrag serve" and "medrag index").
type Flag struct {
	// Name is the long flag name (e.g. "source-url").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "source.url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag registry keys to Flag structs.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen         = "listen"
	FlagAPITarget      = "api-target"
	FlagSourceURL      = "source-url"
	FlagSourceKey      = "source-key"
	FlagVectorProvider = "vector-provider"
	FlagVectorTarget   = "vector-target"
	FlagSQLitePath     = "sqlite"
	FlagEmbeddingProv  = "embedding-provider"
	FlagEmbeddingTgt   = "embedding-target"
	FlagEmbeddingModel = "embedding-model"
	FlagEmbeddingDims  = "embedding-dimensions"
	FlagLLMModel       = "model"
	FlagTopK           = "top-k"
)

// Flags is the shared flag registry used by the medrag commands.
var Flags = FlagSet{
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "server.listen",
		Description: "Address for the API server to listen on",
	},
	FlagAPITarget: {
		Name:        "api-target",
		ViperKey:    "client.api_target",
		Description: "Base URL of a running medrag server",
	},
	FlagSourceURL: {
		Name:        "source-url",
		Shorthand:   "s",
		ViperKey:    "source.url",
		Description: "Base URL of the EMR bulk-export endpoint",
	},
	FlagSourceKey: {
		Name:        "source-key",
		ViperKey:    "source.api_key",
		Description: "API key for the EMR bulk-export endpoint",
	},
	FlagVectorProvider: {
		Name:        "vector-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store provider (postgres, sqlite, memory)",
	},
	FlagVectorTarget: {
		Name:        "vector-target",
		ViperKey:    "vector_store.target",
		Description: "Postgres DSN for the postgres vector store",
	},
	FlagSQLitePath: {
		Name:        "sqlite",
		ViperKey:    "vector_store.sqlite_path",
		Description: "Path to the SQLite vector database file",
	},
	FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider type",
	},
	FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	FlagLLMModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "llm.model",
		Description: "Generation model name",
	},
	FlagTopK: {
		Name:        "top-k",
		Shorthand:   "k",
		ViperKey:    "rag.top_k",
		Description: "Number of context documents to retrieve",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
