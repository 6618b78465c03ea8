// Package wiring builds a configured MemoryEngine from viper settings. It is
// shared by the reverie commands so they all resolve providers the same way.
package wiring

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/assemble"
	"github.com/reveriehq/reverie/pkg/dotdir"
	"github.com/reveriehq/reverie/pkg/embeddings"
	"github.com/reveriehq/reverie/pkg/embeddings/ollama"
	"github.com/reveriehq/reverie/pkg/engine"
	"github.com/reveriehq/reverie/pkg/eventstream"
	"github.com/reveriehq/reverie/pkg/eventstream/kafka"
	"github.com/reveriehq/reverie/pkg/eventstream/nop"
	"github.com/reveriehq/reverie/pkg/llm"
	"github.com/reveriehq/reverie/pkg/recall"
	"github.com/reveriehq/reverie/pkg/store"
	"github.com/reveriehq/reverie/pkg/store/inmemory"
	"github.com/reveriehq/reverie/pkg/store/postgres"
	"github.com/reveriehq/reverie/pkg/store/sqlite"
	"github.com/reveriehq/reverie/pkg/summarizer"
	"github.com/reveriehq/reverie/pkg/vector"
	vectorutils "github.com/reveriehq/reverie/pkg/vector/utils"
)

const (
	storeFileName   = "reverie.sqlite"
	vectorsFileName = "vectors.sqlite"
)

// BuildEngine constructs a MemoryEngine from the resolved viper settings.
// The caller owns the engine and must Close it.
func BuildEngine(ctx context.Context, v *viper.Viper, configDir string, logger *zap.Logger) (*engine.MemoryEngine, error) {
	storer, err := newStoreDriver(ctx, v, configDir, logger)
	if err != nil {
		return nil, err
	}

	vectors, embedder, err := newVectorStack(v, configDir, logger)
	if err != nil {
		storer.Close()
		return nil, err
	}

	call, err := llm.NewCaller(llm.CallerConfig{
		Provider: v.GetString("llm.provider"),
		Model:    v.GetString("llm.model"),
		BaseURL:  v.GetString("llm.target"),
	})
	if err != nil {
		storer.Close()
		return nil, fmt.Errorf("creating LLM caller: %w", err)
	}

	publisher, err := newPublisher(v)
	if err != nil {
		storer.Close()
		return nil, err
	}

	return engine.New(engine.Config{
		Store:     storer,
		Vectors:   vectors,
		Embedder:  embedder,
		Call:      call,
		Publisher: publisher,
		Summarizer: summarizer.Config{
			MaxFloorsPerRun: v.GetInt("summary.max_floors_per_run"),
		},
		Recall: recall.Config{
			DirectThreshold: v.GetFloat64("recall.direct_threshold"),
			TopKEvents:      v.GetInt("recall.top_k_events"),
			TopKAtoms:       v.GetInt("recall.top_k_atoms"),
			TopKChunks:      v.GetInt("recall.top_k_chunks"),
		},
		Budget: assemble.Budget{
			Total:           v.GetInt("budget.total"),
			Constraints:     v.GetInt("budget.constraints"),
			DirectEvents:    v.GetInt("budget.direct_events"),
			RelatedEvents:   v.GetInt("budget.related_events"),
			DistantEvidence: v.GetInt("budget.distant_evidence"),
			RecentEvidence:  v.GetInt("budget.recent_evidence"),
			Arcs:            v.GetInt("budget.arcs"),
		},
		Logger: logger,
	})
}

func newStoreDriver(ctx context.Context, v *viper.Viper, configDir string, logger *zap.Logger) (store.Driver, error) {
	provider := v.GetString("storage.provider")

	switch provider {
	case "inmemory":
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case "sqlite":
		path := v.GetString("storage.sqlite_path")
		if path == "" {
			target, err := dotdir.NewManager().Target(configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
			path = filepath.Join(target, storeFileName)
		}
		logger.Info("using sqlite storage", zap.String("path", path))
		return sqlite.NewDriver(path, logger)

	case "postgres":
		dsn := v.GetString("storage.postgres_dsn")
		if dsn == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the postgres provider")
		}
		logger.Info("using postgres storage")
		return postgres.NewDriver(ctx, dsn, logger)

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", provider)
	}
}

// newVectorStack resolves the vector driver and embedder pair. The "none"
// provider selects text mode: both come back nil.
func newVectorStack(v *viper.Viper, configDir string, logger *zap.Logger) (vector.Driver, embeddings.Embedder, error) {
	provider := v.GetString("vector_store.provider")
	if provider == "none" {
		logger.Info("vector store disabled, running in text mode")
		return nil, nil, nil
	}

	dims := v.GetUint("embedding.dimensions")

	dbPath := v.GetString("vector_store.target")
	if provider == "sqlite-vec" && dbPath == "" {
		target, err := dotdir.NewManager().Target(configDir)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving vector store path: %w", err)
		}
		dbPath = filepath.Join(target, vectorsFileName)
	}

	vectors, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
		ProviderType: provider,
		TargetURL:    v.GetString("vector_store.target"),
		DBPath:       dbPath,
		Dimensions:   dims,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating vector driver: %w", err)
	}

	embedder, err := ollama.NewEmbedder(ollama.EmbedderConfig{
		BaseURL:    v.GetString("embedding.target"),
		Model:      v.GetString("embedding.model"),
		Dimensions: int(dims),
	})
	if err != nil {
		vectors.Close()
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}

	return vectors, embedder, nil
}

func newPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	provider := v.GetString("event_stream.provider")

	switch provider {
	case "", "nop":
		return nop.NewPublisher(), nil

	case "kafka":
		brokers := v.GetStringSlice("event_stream.brokers")
		if len(brokers) == 0 {
			return nil, fmt.Errorf("event_stream.brokers is required for the kafka provider")
		}
		return kafka.NewPublisher(kafka.Config{
			Brokers: brokers,
			Topic:   v.GetString("event_stream.topic"),
		})

	default:
		return nil, fmt.Errorf("unsupported event stream provider: %s", provider)
	}
}
