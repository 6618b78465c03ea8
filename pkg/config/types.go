package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent reverie configuration stored as
// config.toml in the .reverie/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	LLM         LLMConfig         `toml:"llm"`
	Summary     SummaryConfig     `toml:"summary"`
	Recall      RecallConfig      `toml:"recall"`
	Budget      BudgetConfig      `toml:"budget"`
	EventStream EventStreamConfig `toml:"event_stream"`
}

// StorageConfig holds memory store settings.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// LLMConfig holds the summarization/extraction LLM settings. The API key is
// read from the provider's environment variable, never from the file.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// SummaryConfig holds summarizer settings.
type SummaryConfig struct {
	MaxFloorsPerRun int `toml:"max_floors_per_run,omitempty"`
}

// RecallConfig holds recall ranking settings.
type RecallConfig struct {
	DirectThreshold float64 `toml:"direct_threshold,omitempty"`
	TopKEvents      int     `toml:"top_k_events,omitempty"`
	TopKAtoms       int     `toml:"top_k_atoms,omitempty"`
	TopKChunks      int     `toml:"top_k_chunks,omitempty"`
}

// BudgetConfig holds the assembler's token budget.
type BudgetConfig struct {
	Total           int `toml:"total,omitempty"`
	Constraints     int `toml:"constraints,omitempty"`
	DirectEvents    int `toml:"direct_events,omitempty"`
	RelatedEvents   int `toml:"related_events,omitempty"`
	DistantEvidence int `toml:"distant_evidence,omitempty"`
	RecentEvidence  int `toml:"recent_evidence,omitempty"`
	Arcs            int `toml:"arcs,omitempty"`
}

// EventStreamConfig holds lifecycle event publishing settings.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.Itoa(*get(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer value %q: %w", v, err)
			}
			*get(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
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
	"summary.max_floors_per_run": intKey(func(c *Config) *int { return &c.Summary.MaxFloorsPerRun }),
	"recall.direct_threshold": {
		get: func(c *Config) string {
			if c.Recall.DirectThreshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Recall.DirectThreshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for recall.direct_threshold: %w", err)
			}
			c.Recall.DirectThreshold = f
			return nil
		},
	},
	"recall.top_k_events": intKey(func(c *Config) *int { return &c.Recall.TopKEvents }),
	"recall.top_k_atoms":  intKey(func(c *Config) *int { return &c.Recall.TopKAtoms }),
	"recall.top_k_chunks": intKey(func(c *Config) *int { return &c.Recall.TopKChunks }),
	"budget.total":        intKey(func(c *Config) *int { return &c.Budget.Total }),
	"budget.constraints":  intKey(func(c *Config) *int { return &c.Budget.Constraints }),
	"budget.direct_events": intKey(func(c *Config) *int {
		return &c.Budget.DirectEvents
	}),
	"budget.related_events": intKey(func(c *Config) *int {
		return &c.Budget.RelatedEvents
	}),
	"budget.distant_evidence": intKey(func(c *Config) *int {
		return &c.Budget.DistantEvidence
	}),
	"budget.recent_evidence": intKey(func(c *Config) *int {
		return &c.Budget.RecentEvidence
	}),
	"budget.arcs": intKey(func(c *Config) *int { return &c.Budget.Arcs }),
	"event_stream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"event_stream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			var brokers []string
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					brokers = append(brokers, b)
				}
			}
			c.EventStream.Brokers = brokers
			return nil
		},
	},
	"event_stream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}
