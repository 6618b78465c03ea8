package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on both "reverie serve" and "reverie summarize").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen       = "api-listen"
	FlagStorageProvider = "storage-provider"
	FlagSQLite          = "sqlite"
	FlagPostgresDSN     = "postgres-dsn"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagLLMProvider     = "llm-provider"
	FlagLLMTarget       = "llm-target"
	FlagLLMModel        = "llm-model"
)

// DefaultFlagSet returns the flag registry shared by the reverie commands.
func DefaultFlagSet() FlagSet {
	return FlagSet{
		FlagAPIListen: {
			Name: "listen", Shorthand: "l", ViperKey: "api.listen",
			Description: "address for the HTTP API server to listen on",
		},
		FlagStorageProvider: {
			Name: "storage-provider", ViperKey: "storage.provider",
			Description: "memory store backend (inmemory, sqlite, postgres)",
		},
		FlagSQLite: {
			Name: "sqlite", ViperKey: "storage.sqlite_path",
			Description: "path to the sqlite database file",
		},
		FlagPostgresDSN: {
			Name: "postgres-dsn", ViperKey: "storage.postgres_dsn",
			Description: "postgres connection string",
		},
		FlagVectorStoreProv: {
			Name: "vector-store-provider", ViperKey: "vector_store.provider",
			Description: "vector store backend (sqlite-vec, chroma)",
		},
		FlagVectorStoreTgt: {
			Name: "vector-store-target", ViperKey: "vector_store.target",
			Description: "vector store target (path or URL)",
		},
		FlagEmbeddingProv: {
			Name: "embedding-provider", ViperKey: "embedding.provider",
			Description: "embedding provider (ollama)",
		},
		FlagEmbeddingTgt: {
			Name: "embedding-target", ViperKey: "embedding.target",
			Description: "embedding provider base URL",
		},
		FlagEmbeddingModel: {
			Name: "embedding-model", ViperKey: "embedding.model",
			Description: "embedding model name",
		},
		FlagEmbeddingDims: {
			Name: "embedding-dimensions", ViperKey: "embedding.dimensions",
			Description: "embedding vector dimensionality",
		},
		FlagLLMProvider: {
			Name: "llm-provider", ViperKey: "llm.provider",
			Description: "summarization LLM provider (openai, anthropic, ollama)",
		},
		FlagLLMTarget: {
			Name: "llm-target", ViperKey: "llm.target",
			Description: "summarization LLM base URL",
		},
		FlagLLMModel: {
			Name: "llm-model", ViperKey: "llm.model",
			Description: "summarization LLM model name",
		},
	}
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
