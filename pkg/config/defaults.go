package config

const (
	defaultStorageProvider = "sqlite"
	defaultAPIListen       = ":8090"

	defaultVectorProvider = "sqlite-vec"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"
	defaultLLMModel    = "qwen3"

	defaultMaxFloorsPerRun = 30

	defaultDirectThreshold = 0.62
	defaultTopKEvents      = 12
	defaultTopKAtoms       = 24
	defaultTopKChunks      = 40

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "reverie.memory"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Target:   defaultLLMTarget,
			Model:    defaultLLMModel,
		},
		Summary: SummaryConfig{
			MaxFloorsPerRun: defaultMaxFloorsPerRun,
		},
		Recall: RecallConfig{
			DirectThreshold: defaultDirectThreshold,
			TopKEvents:      defaultTopKEvents,
			TopKAtoms:       defaultTopKAtoms,
			TopKChunks:      defaultTopKChunks,
		},
		Budget: BudgetConfig{
			Total:           1600,
			Constraints:     400,
			DirectEvents:    500,
			RelatedEvents:   300,
			DistantEvidence: 200,
			RecentEvidence:  200,
			Arcs:            200,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
