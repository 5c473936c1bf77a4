package config

const (
	defaultVectorProvider = "sqlite"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultReasoningProvider = "ollama"
	defaultReasoningTarget   = "http://localhost:11434"
	defaultReasoningModel    = "llama3.2"

	defaultRetrieveLimit     = 10
	defaultSearchLimit       = 10
	defaultMaxRetries        = 2
	defaultSchemaRetries     = 2
	defaultStageTimeoutSecs  = 30
	defaultCommitConcurrency = 4

	defaultLockProvider = "inprocess"
	defaultLockTTLSecs  = 120

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "engram.windows"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Reasoning: ReasoningConfig{
			Provider: defaultReasoningProvider,
			Target:   defaultReasoningTarget,
			Model:    defaultReasoningModel,
		},
		Pipeline: PipelineConfig{
			RetrieveLimit:     defaultRetrieveLimit,
			SearchLimit:       defaultSearchLimit,
			MaxRetries:        defaultMaxRetries,
			SchemaRetries:     defaultSchemaRetries,
			StageTimeoutSecs:  defaultStageTimeoutSecs,
			CommitConcurrency: defaultCommitConcurrency,
		},
		Lock: LockConfig{
			Provider: defaultLockProvider,
			TTLSecs:  defaultLockTTLSecs,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
