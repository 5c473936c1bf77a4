package runtime

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/engramlabs/engram/pkg/config"
)

// PipelineFlags holds the flag targets for commands that build the full
// pipeline stack. The values themselves are read back through viper after
// binding, so the struct exists to give cobra somewhere to write.
type PipelineFlags struct {
	SQLitePath string

	VectorProvider string
	VectorTarget   string

	EmbeddingProvider string
	EmbeddingTarget   string
	EmbeddingModel    string
	EmbeddingDims     uint

	ReasoningProvider string
	ReasoningTarget   string
	ReasoningModel    string

	LockProvider string
	LockTarget   string

	EventsProvider string
	EventsBrokers  string
	EventsTopic    string
}

// pipelineFlagSet is the shared flag registry for pipeline-building
// commands, so names and descriptions cannot drift between them.
func pipelineFlagSet() config.FlagSet {
	return config.FlagSet{
		config.FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite fact database"},
		config.FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (inmemory, sqlite, postgres, qdrant, chroma)"},
		config.FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store target (URL, conn string, or host:port)"},
		config.FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, openai)"},
		config.FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
		config.FlagEmbeddingModel:  {Name: "embedding-model", Shorthand: "m", ViperKey: "embedding.model", Description: "Embedding model name"},
		config.FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensionality"},
		config.FlagReasoningProv:   {Name: "reasoning-provider", ViperKey: "reasoning.provider", Description: "Reasoning provider (ollama, openai, anthropic)"},
		config.FlagReasoningTgt:    {Name: "reasoning-target", ViperKey: "reasoning.target", Description: "Reasoning provider URL"},
		config.FlagReasoningModel:  {Name: "reasoning-model", ViperKey: "reasoning.model", Description: "Reasoning model name"},
		config.FlagLockProv:        {Name: "lock-provider", ViperKey: "lock.provider", Description: "Owner lock provider (inprocess, redis)"},
		config.FlagLockTgt:         {Name: "lock-target", ViperKey: "lock.target", Description: "Owner lock backend URL"},
		config.FlagEventsProv:      {Name: "events-provider", ViperKey: "events.provider", Description: "Event stream provider (nop, kafka)"},
		config.FlagEventsBrokers:   {Name: "events-brokers", ViperKey: "events.brokers", Description: "Comma-separated Kafka broker addresses"},
		config.FlagEventsTopic:     {Name: "events-topic", ViperKey: "events.topic", Description: "Event stream topic"},
	}
}

// pipelineFlagKeys is the registry key list in registration order.
var pipelineFlagKeys = []string{
	config.FlagSQLite,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagReasoningProv,
	config.FlagReasoningTgt,
	config.FlagReasoningModel,
	config.FlagLockProv,
	config.FlagLockTgt,
	config.FlagEventsProv,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

// AddPipelineFlags registers the full pipeline flag set on a command.
func AddPipelineFlags(cmd *cobra.Command, f *PipelineFlags) {
	fs := pipelineFlagSet()

	config.AddStringFlag(cmd, fs, config.FlagSQLite, &f.SQLitePath)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreProv, &f.VectorProvider)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreTgt, &f.VectorTarget)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingProv, &f.EmbeddingProvider)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingTgt, &f.EmbeddingTarget)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingModel, &f.EmbeddingModel)
	config.AddUintFlag(cmd, fs, config.FlagEmbeddingDims, &f.EmbeddingDims)
	config.AddStringFlag(cmd, fs, config.FlagReasoningProv, &f.ReasoningProvider)
	config.AddStringFlag(cmd, fs, config.FlagReasoningTgt, &f.ReasoningTarget)
	config.AddStringFlag(cmd, fs, config.FlagReasoningModel, &f.ReasoningModel)
	config.AddStringFlag(cmd, fs, config.FlagLockProv, &f.LockProvider)
	config.AddStringFlag(cmd, fs, config.FlagLockTgt, &f.LockTarget)
	config.AddStringFlag(cmd, fs, config.FlagEventsProv, &f.EventsProvider)
	config.AddStringFlag(cmd, fs, config.FlagEventsBrokers, &f.EventsBrokers)
	config.AddStringFlag(cmd, fs, config.FlagEventsTopic, &f.EventsTopic)
}

// InitPipelineViper resolves the command's configuration: defaults, then
// config.toml, then ENGRAM_ environment variables, then any flags the user
// set. Call from PreRunE after flags are parsed.
func InitPipelineViper(cmd *cobra.Command) (*viper.Viper, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}

	config.BindRegisteredFlags(v, cmd, pipelineFlagSet(), pipelineFlagKeys)

	return v, nil
}
