package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/reveriehq/reverie/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).NotTo(BeNil())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Version).To(Equal(defaults.Version))
			Expect(cfg.Storage.Provider).To(Equal(defaults.Storage.Provider))
			Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
			Expect(cfg.VectorStore.Provider).To(Equal(defaults.VectorStore.Provider))
			Expect(cfg.Embedding.Provider).To(Equal(defaults.Embedding.Provider))
			Expect(cfg.Embedding.Target).To(Equal(defaults.Embedding.Target))
			Expect(cfg.Embedding.Model).To(Equal(defaults.Embedding.Model))
			Expect(cfg.Embedding.Dimensions).To(Equal(defaults.Embedding.Dimensions))
			Expect(cfg.LLM.Provider).To(Equal(defaults.LLM.Provider))
			Expect(cfg.Summary.MaxFloorsPerRun).To(Equal(defaults.Summary.MaxFloorsPerRun))
			Expect(cfg.Recall.DirectThreshold).To(Equal(defaults.Recall.DirectThreshold))
			Expect(cfg.Budget.Total).To(Equal(defaults.Budget.Total))
			Expect(cfg.EventStream.Provider).To(Equal(defaults.EventStream.Provider))
		})

		It("loads a valid config file", func() {
			data := `version = 0

[storage]
provider = "postgres"
postgres_dsn = "postgres://localhost/reverie"

[embedding]
dimensions = 768
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).NotTo(BeNil())
			Expect(cfg.Version).To(Equal(0))
			Expect(cfg.Storage.Provider).To(Equal("postgres"))
			Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://localhost/reverie"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(768)))
		})

		It("loads all config fields", func() {
			data := `version = 0

[storage]
provider = "sqlite"
sqlite_path = "/tmp/reverie.sqlite"

[api]
listen = ":9091"

[vector_store]
provider = "chroma"
target = "http://localhost:8000"

[embedding]
provider = "ollama"
target = "http://localhost:11434"
model = "nomic-embed-text"
dimensions = 1024

[llm]
provider = "openai"
target = "https://api.openai.com"
model = "gpt-4o-mini"

[summary]
max_floors_per_run = 50

[recall]
direct_threshold = 0.7
top_k_events = 8
top_k_atoms = 16
top_k_chunks = 32

[budget]
total = 2000
constraints = 500
direct_events = 600
related_events = 300
distant_evidence = 200
recent_evidence = 200
arcs = 200

[event_stream]
provider = "kafka"
brokers = ["localhost:9092", "localhost:9093"]
topic = "reverie.test"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Version).To(Equal(0))
			Expect(cfg.Storage.Provider).To(Equal("sqlite"))
			Expect(cfg.Storage.SQLitePath).To(Equal("/tmp/reverie.sqlite"))
			Expect(cfg.API.Listen).To(Equal(":9091"))
			Expect(cfg.VectorStore.Provider).To(Equal("chroma"))
			Expect(cfg.VectorStore.Target).To(Equal("http://localhost:8000"))
			Expect(cfg.Embedding.Provider).To(Equal("ollama"))
			Expect(cfg.Embedding.Target).To(Equal("http://localhost:11434"))
			Expect(cfg.Embedding.Model).To(Equal("nomic-embed-text"))
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(1024)))
			Expect(cfg.LLM.Provider).To(Equal("openai"))
			Expect(cfg.LLM.Model).To(Equal("gpt-4o-mini"))
			Expect(cfg.Summary.MaxFloorsPerRun).To(Equal(50))
			Expect(cfg.Recall.DirectThreshold).To(Equal(0.7))
			Expect(cfg.Recall.TopKEvents).To(Equal(8))
			Expect(cfg.Budget.Total).To(Equal(2000))
			Expect(cfg.EventStream.Provider).To(Equal("kafka"))
			Expect(cfg.EventStream.Brokers).To(Equal([]string{"localhost:9092", "localhost:9093"}))
			Expect(cfg.EventStream.Topic).To(Equal("reverie.test"))
		})

		It("returns error for malformed TOML", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not valid toml [[["), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(cfg).To(BeNil())
		})

		It("returns error for unsupported config version", func() {
			data := `version = 99
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported config version"))
			Expect(cfg).To(BeNil())
		})

		It("accepts config with version 0 (omitted)", func() {
			data := `[storage]
provider = "inmemory"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Provider).To(Equal("inmemory"))
		})
	})

	Describe("SaveConfig", func() {
		It("persists config to disk", func() {
			cfg := &config.Config{
				Version: config.CurrentV,
				Storage: config.StorageConfig{
					Provider:   "sqlite",
					SQLitePath: "/tmp/mem.sqlite",
				},
				Embedding: config.EmbeddingConfig{
					Dimensions: 768,
				},
			}

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SaveConfig(cfg)
			Expect(err).NotTo(HaveOccurred())

			// Verify the file exists
			_, err = os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())

			// Load it back and verify
			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Storage.Provider).To(Equal("sqlite"))
			Expect(loaded.Storage.SQLitePath).To(Equal("/tmp/mem.sqlite"))
			Expect(loaded.Embedding.Dimensions).To(Equal(uint(768)))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SaveConfig(nil)
			Expect(err).To(HaveOccurred())
		})

		It("overwrites existing config", func() {
			first := &config.Config{
				Version: config.CurrentV,
				Storage: config.StorageConfig{Provider: "inmemory"},
			}
			second := &config.Config{
				Version: config.CurrentV,
				Storage: config.StorageConfig{Provider: "postgres"},
			}

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SaveConfig(first)
			Expect(err).NotTo(HaveOccurred())

			err = c.SaveConfig(second)
			Expect(err).NotTo(HaveOccurred())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Storage.Provider).To(Equal("postgres"))
		})
	})

	Describe("SetConfigValue", func() {
		It("sets a string config key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("llm.provider", "anthropic")
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.LLM.Provider).To(Equal("anthropic"))
		})

		It("sets a uint config key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("embedding.dimensions", "1024")
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Embedding.Dimensions).To(Equal(uint(1024)))
		})

		It("sets an int config key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("summary.max_floors_per_run", "50")
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Summary.MaxFloorsPerRun).To(Equal(50))
		})

		It("sets a float config key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("recall.direct_threshold", "0.75")
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Recall.DirectThreshold).To(Equal(0.75))
		})

		It("sets event stream brokers from a comma-separated list", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("event_stream.brokers", "k1:9092, k2:9092")
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.EventStream.Brokers).To(Equal([]string{"k1:9092", "k2:9092"}))
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("nonexistent_key", "value")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown config key"))
		})

		It("returns error for invalid uint value", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("embedding.dimensions", "not-a-number")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid value"))
		})

		It("preserves existing values when setting a new key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("llm.provider", "anthropic")
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("llm.model", "claude-sonnet-4-5")
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.LLM.Provider).To(Equal("anthropic"))
			Expect(cfg.LLM.Model).To(Equal("claude-sonnet-4-5"))
		})
	})

	Describe("GetConfigValue", func() {
		It("gets a set config value", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("llm.provider", "anthropic")
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("llm.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("anthropic"))
		})

		It("returns default value when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("llm.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal(config.NewDefaultConfig().LLM.Provider))
		})

		It("returns empty string for key with no default", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("storage.sqlite_path")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(BeEmpty())
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.GetConfigValue("nonexistent_key")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown config key"))
		})

		It("gets a uint config value as string", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SetConfigValue("embedding.dimensions", "512")
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("embedding.dimensions")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("512"))
		})
	})

	Describe("ValidConfigKeys", func() {
		It("returns all expected keys", func() {
			keys := config.ValidConfigKeys()
			Expect(keys).To(ContainElements(
				"storage.provider",
				"storage.sqlite_path",
				"storage.postgres_dsn",
				"api.listen",
				"vector_store.provider",
				"vector_store.target",
				"embedding.provider",
				"embedding.target",
				"embedding.model",
				"embedding.dimensions",
				"llm.provider",
				"llm.target",
				"llm.model",
				"summary.max_floors_per_run",
				"recall.direct_threshold",
				"budget.total",
				"event_stream.provider",
				"event_stream.brokers",
				"event_stream.topic",
			))
		})

		It("returns keys in stable order", func() {
			keys1 := config.ValidConfigKeys()
			keys2 := config.ValidConfigKeys()
			Expect(keys1).To(Equal(keys2))
		})
	})

	Describe("IsValidConfigKey", func() {
		It("returns true for valid keys", func() {
			Expect(config.IsValidConfigKey("storage.provider")).To(BeTrue())
			Expect(config.IsValidConfigKey("embedding.dimensions")).To(BeTrue())
			Expect(config.IsValidConfigKey("budget.direct_events")).To(BeTrue())
		})

		It("returns false for invalid keys", func() {
			Expect(config.IsValidConfigKey("nonexistent")).To(BeFalse())
			Expect(config.IsValidConfigKey("")).To(BeFalse())
		})

		It("returns false for old flat key names", func() {
			Expect(config.IsValidConfigKey("provider")).To(BeFalse())
			Expect(config.IsValidConfigKey("embedding_dimensions")).To(BeFalse())
		})
	})

	Describe("round-trip", func() {
		It("saves and loads config correctly with all fields", func() {
			cfg := &config.Config{
				Version: config.CurrentV,
				Storage: config.StorageConfig{
					Provider:   "sqlite",
					SQLitePath: "/tmp/test.sqlite",
				},
				API: config.APIConfig{
					Listen: ":9091",
				},
				VectorStore: config.VectorStoreConfig{
					Provider: "chroma",
					Target:   "http://localhost:8000",
				},
				Embedding: config.EmbeddingConfig{
					Provider:   "ollama",
					Target:     "http://localhost:11434",
					Model:      "nomic-embed-text",
					Dimensions: 1024,
				},
				LLM: config.LLMConfig{
					Provider: "anthropic",
					Target:   "https://api.anthropic.com",
					Model:    "claude-sonnet-4-5",
				},
				Summary: config.SummaryConfig{
					MaxFloorsPerRun: 40,
				},
				Recall: config.RecallConfig{
					DirectThreshold: 0.7,
					TopKEvents:      8,
					TopKAtoms:       16,
					TopKChunks:      32,
				},
				Budget: config.BudgetConfig{
					Total:           2000,
					Constraints:     500,
					DirectEvents:    600,
					RelatedEvents:   300,
					DistantEvidence: 200,
					RecentEvidence:  200,
					Arcs:            200,
				},
				EventStream: config.EventStreamConfig{
					Provider: "kafka",
					Brokers:  []string{"localhost:9092"},
					Topic:    "reverie.memory",
				},
			}

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = c.SaveConfig(cfg)
			Expect(err).NotTo(HaveOccurred())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("parses valid TOML into a Config", func() {
		data := []byte(`version = 0

[storage]
provider = "postgres"
postgres_dsn = "postgres://localhost/reverie"

[embedding]
dimensions = 512
`)
		cfg, err := config.ParseConfigTOML(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Version).To(Equal(0))
		Expect(cfg.Storage.Provider).To(Equal("postgres"))
		Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://localhost/reverie"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(512)))
	})

	It("returns error for invalid TOML", func() {
		cfg, err := config.ParseConfigTOML([]byte("not valid [[["))
		Expect(err).To(HaveOccurred())
		Expect(cfg).To(BeNil())
	})

	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).NotTo(BeNil())
		Expect(cfg.Storage.Provider).To(BeEmpty())
	})

	It("rejects unsupported config version", func() {
		data := []byte(`version = 2
`)
		cfg, err := config.ParseConfigTOML(data)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unsupported config version"))
		Expect(cfg).To(BeNil())
	})
})

var _ = Describe("NewDefaultConfig", func() {
	It("returns fully-populated defaults", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Storage.Provider).To(Equal("sqlite"))
		Expect(cfg.API.Listen).To(Equal(":8090"))
		Expect(cfg.VectorStore.Provider).To(Equal("sqlite-vec"))
		Expect(cfg.Embedding.Provider).To(Equal("ollama"))
		Expect(cfg.Embedding.Target).To(Equal("http://localhost:11434"))
		Expect(cfg.Embedding.Model).To(Equal("embeddinggemma"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(768)))
		Expect(cfg.LLM.Provider).To(Equal("ollama"))
		Expect(cfg.Summary.MaxFloorsPerRun).To(Equal(30))
		Expect(cfg.Recall.DirectThreshold).To(Equal(0.62))
		Expect(cfg.Budget.Total).To(Equal(1600))
		Expect(cfg.EventStream.Provider).To(Equal("nop"))
		Expect(cfg.EventStream.Topic).To(Equal("reverie.memory"))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).NotTo(BeNil())

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("storage.provider")).To(Equal(defaults.Storage.Provider))
		Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
		Expect(v.GetString("embedding.model")).To(Equal(defaults.Embedding.Model))
		Expect(v.GetInt("summary.max_floors_per_run")).To(Equal(defaults.Summary.MaxFloorsPerRun))
		Expect(v.GetFloat64("recall.direct_threshold")).To(Equal(defaults.Recall.DirectThreshold))
	})

	It("reads config file values over defaults", func() {
		data := `[storage]
provider = "postgres"
postgres_dsn = "postgres://localhost/reverie"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("storage.provider")).To(Equal("postgres"))
		Expect(v.GetString("storage.postgres_dsn")).To(Equal("postgres://localhost/reverie"))
		// Unset fields should still get defaults
		defaults := config.NewDefaultConfig()
		Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
	})

	It("respects environment variables with REVERIE_ prefix", func() {
		os.Setenv("REVERIE_STORAGE_PROVIDER", "postgres")
		defer os.Unsetenv("REVERIE_STORAGE_PROVIDER")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("storage.provider")).To(Equal("postgres"))
	})

	It("env vars take precedence over config file values", func() {
		data := `[storage]
provider = "sqlite"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		os.Setenv("REVERIE_STORAGE_PROVIDER", "postgres")
		defer os.Unsetenv("REVERIE_STORAGE_PROVIDER")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("storage.provider")).To(Equal("postgres"))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "bindflag-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := config.DefaultFlagSet()

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, fs, config.FlagAPIListen, &listen)

		// Simulate flag being set by user
		err = cmd.Flags().Set("listen", ":7777")
		Expect(err).NotTo(HaveOccurred())

		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		data := `[api]
listen = ":5555"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := config.DefaultFlagSet()

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, fs, config.FlagAPIListen, &listen)

		// Do NOT set the flag -- should fall through to config file value
		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagAPIListen})

		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := config.FlagSet{}

		cmd := &cobra.Command{Use: "test"}

		// "nonexistent" is not in the FlagSet -- should be safely skipped
		config.BindRegisteredFlags(v, cmd, fs, []string{"nonexistent"})

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
	})

	It("AddStringFlag pulls name, shorthand, and description from FlagSet", func() {
		fs := config.DefaultFlagSet()

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, fs, config.FlagAPIListen, &listen)

		f := cmd.Flags().Lookup("listen")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("l"))

		defaults := config.NewDefaultConfig()
		Expect(f.DefValue).To(Equal(defaults.API.Listen))
	})

	It("AddUintFlag works for embedding-dimensions", func() {
		fs := config.DefaultFlagSet()

		cmd := &cobra.Command{Use: "test"}
		var dims uint
		config.AddUintFlag(cmd, fs, config.FlagEmbeddingDims, &dims)

		f := cmd.Flags().Lookup("embedding-dimensions")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("768"))
	})
})

var _ = Describe("default merging via LoadConfig", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-defaults-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("fills in defaults for unset fields in a partial config", func() {
		// Config file only sets storage.provider; everything else should get defaults.
		data := `version = 0

[storage]
provider = "postgres"
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		c, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := c.LoadConfig()
		Expect(err).NotTo(HaveOccurred())

		// Explicitly set value should be preserved.
		Expect(cfg.Storage.Provider).To(Equal("postgres"))

		// Unset fields should get defaults.
		defaults := config.NewDefaultConfig()
		Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
		Expect(cfg.VectorStore.Provider).To(Equal(defaults.VectorStore.Provider))
		Expect(cfg.Embedding.Provider).To(Equal(defaults.Embedding.Provider))
		Expect(cfg.Embedding.Dimensions).To(Equal(defaults.Embedding.Dimensions))
		Expect(cfg.LLM.Model).To(Equal(defaults.LLM.Model))
		Expect(cfg.Summary.MaxFloorsPerRun).To(Equal(defaults.Summary.MaxFloorsPerRun))
		Expect(cfg.Recall.DirectThreshold).To(Equal(defaults.Recall.DirectThreshold))
		Expect(cfg.Budget).To(Equal(defaults.Budget))
		Expect(cfg.EventStream.Provider).To(Equal(defaults.EventStream.Provider))
	})

	It("does not overwrite explicitly set values", func() {
		data := `version = 0

[storage]
provider = "sqlite"
sqlite_path = "/tmp/custom.sqlite"

[api]
listen = ":9091"

[embedding]
provider = "openai"
target = "https://api.openai.com"
model = "text-embedding-3-small"
dimensions = 1536

[budget]
total = 2400
constraints = 600
direct_events = 700
related_events = 400
distant_evidence = 300
recent_evidence = 200
arcs = 200
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		c, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := c.LoadConfig()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Storage.Provider).To(Equal("sqlite"))
		Expect(cfg.Storage.SQLitePath).To(Equal("/tmp/custom.sqlite"))
		Expect(cfg.API.Listen).To(Equal(":9091"))
		Expect(cfg.Embedding.Provider).To(Equal("openai"))
		Expect(cfg.Embedding.Target).To(Equal("https://api.openai.com"))
		Expect(cfg.Embedding.Model).To(Equal("text-embedding-3-small"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
		Expect(cfg.Budget.Total).To(Equal(2400))
		Expect(cfg.Budget.DirectEvents).To(Equal(700))
	})
})
