package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/engramlabs/engram/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the ENGRAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (ENGRAM_EMBEDDING_MODEL, ENGRAM_LOCK_PROVIDER, etc.)
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

	// 3. Environment variables: ENGRAM_VECTOR_STORE_PROVIDER, ENGRAM_EVENTS_TOPIC, etc.
	v.SetEnvPrefix("ENGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Reasoning
	v.SetDefault("reasoning.provider", d.Reasoning.Provider)
	v.SetDefault("reasoning.target", d.Reasoning.Target)
	v.SetDefault("reasoning.model", d.Reasoning.Model)

	// Pipeline
	v.SetDefault("pipeline.retrieve_limit", d.Pipeline.RetrieveLimit)
	v.SetDefault("pipeline.search_limit", d.Pipeline.SearchLimit)
	v.SetDefault("pipeline.max_retries", d.Pipeline.MaxRetries)
	v.SetDefault("pipeline.schema_retries", d.Pipeline.SchemaRetries)
	v.SetDefault("pipeline.stage_timeout_secs", d.Pipeline.StageTimeoutSecs)
	v.SetDefault("pipeline.commit_concurrency", d.Pipeline.CommitConcurrency)

	// Owner lock
	v.SetDefault("lock.provider", d.Lock.Provider)
	v.SetDefault("lock.target", d.Lock.Target)
	v.SetDefault("lock.ttl_secs", d.Lock.TTLSecs)

	// Event stream
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
