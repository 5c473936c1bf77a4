package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Reasoning   ReasoningConfig   `toml:"reasoning"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Lock        LockConfig        `toml:"lock"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig holds file-backed storage settings.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
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

// ReasoningConfig holds completion provider settings for the extraction and
// consolidation stages.
type ReasoningConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// PipelineConfig holds orchestrator tuning knobs. Durations are whole
// seconds so the TOML stays plain integers.
type PipelineConfig struct {
	RetrieveLimit     int `toml:"retrieve_limit,omitempty"`
	SearchLimit       int `toml:"search_limit,omitempty"`
	MaxRetries        int `toml:"max_retries,omitempty"`
	SchemaRetries     int `toml:"schema_retries,omitempty"`
	StageTimeoutSecs  int `toml:"stage_timeout_secs,omitempty"`
	CommitConcurrency int `toml:"commit_concurrency,omitempty"`
}

// LockConfig holds owner lock settings.
type LockConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	TTLSecs  int    `toml:"ttl_secs,omitempty"`
}

// EventsConfig holds audit event stream settings. Brokers is a
// comma-separated list so it stays a single TOML string.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// BrokerList splits the comma-separated Brokers value into addresses,
// trimming whitespace and dropping empties.
func (e EventsConfig) BrokerList() []string {
	if e.Brokers == "" {
		return nil
	}

	parts := strings.Split(e.Brokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}

	return brokers
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// intKey builds a getter/setter pair for an int field.
func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
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
	"reasoning.provider": {
		get: func(c *Config) string { return c.Reasoning.Provider },
		set: func(c *Config, v string) error { c.Reasoning.Provider = v; return nil },
	},
	"reasoning.target": {
		get: func(c *Config) string { return c.Reasoning.Target },
		set: func(c *Config, v string) error { c.Reasoning.Target = v; return nil },
	},
	"reasoning.model": {
		get: func(c *Config) string { return c.Reasoning.Model },
		set: func(c *Config, v string) error { c.Reasoning.Model = v; return nil },
	},
	"pipeline.retrieve_limit":     intKey("pipeline.retrieve_limit", func(c *Config) *int { return &c.Pipeline.RetrieveLimit }),
	"pipeline.search_limit":       intKey("pipeline.search_limit", func(c *Config) *int { return &c.Pipeline.SearchLimit }),
	"pipeline.max_retries":        intKey("pipeline.max_retries", func(c *Config) *int { return &c.Pipeline.MaxRetries }),
	"pipeline.schema_retries":     intKey("pipeline.schema_retries", func(c *Config) *int { return &c.Pipeline.SchemaRetries }),
	"pipeline.stage_timeout_secs": intKey("pipeline.stage_timeout_secs", func(c *Config) *int { return &c.Pipeline.StageTimeoutSecs }),
	"pipeline.commit_concurrency": intKey("pipeline.commit_concurrency", func(c *Config) *int { return &c.Pipeline.CommitConcurrency }),
	"lock.provider": {
		get: func(c *Config) string { return c.Lock.Provider },
		set: func(c *Config, v string) error { c.Lock.Provider = v; return nil },
	},
	"lock.target": {
		get: func(c *Config) string { return c.Lock.Target },
		set: func(c *Config, v string) error { c.Lock.Target = v; return nil },
	},
	"lock.ttl_secs": intKey("lock.ttl_secs", func(c *Config) *int { return &c.Lock.TTLSecs }),
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
