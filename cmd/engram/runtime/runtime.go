// Package runtime assembles the memory pipeline from resolved configuration.
//
// Every command that runs windows through the pipeline or reads the fact
// store (process, search, facts, backfill, watch, seed) builds the same
// stack: embedder, reasoner, vector store, owner lock, event publisher, and
// the orchestrator on top. This package is that one assembly point so the
// commands cannot drift in how they wire providers.
package runtime

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/cmd/engram/sqlitepath"
	"github.com/engramlabs/engram/pkg/commit"
	"github.com/engramlabs/engram/pkg/consolidate"
	"github.com/engramlabs/engram/pkg/credentials"
	"github.com/engramlabs/engram/pkg/embeddings"
	embeddingutils "github.com/engramlabs/engram/pkg/embeddings/utils"
	eventutils "github.com/engramlabs/engram/pkg/eventstream/utils"
	"github.com/engramlabs/engram/pkg/extract"
	lockutils "github.com/engramlabs/engram/pkg/ownerlock/utils"
	"github.com/engramlabs/engram/pkg/pipeline"
	"github.com/engramlabs/engram/pkg/reasoning"
	reasoningutils "github.com/engramlabs/engram/pkg/reasoning/utils"
	"github.com/engramlabs/engram/pkg/retrieve"
	"github.com/engramlabs/engram/pkg/vector"
	vectorutils "github.com/engramlabs/engram/pkg/vector/utils"
)

const (
	// defaultCollection names the fact collection in remote stores
	// (qdrant, chroma) that namespace by collection.
	defaultCollection = "engram_facts"

	defaultQdrantPort = 6334
)

// Runtime is the assembled pipeline stack. Close it when done.
type Runtime struct {
	Orchestrator *pipeline.Orchestrator
	Store        vector.Driver
	Embedder     embeddings.Embedder

	logger  *zap.Logger
	closers []func() error
}

// Build assembles the runtime from a resolved viper configuration.
// configDir overrides the .engram/ directory used for credentials and the
// default sqlite path; empty selects the standard dotdir resolution.
func Build(ctx context.Context, v *viper.Viper, configDir string, logger *zap.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	creds, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	dims := v.GetInt("embedding.dimensions")
	stageTimeout := time.Duration(v.GetInt("pipeline.stage_timeout_secs")) * time.Second

	embedder, err := rt.buildEmbedder(v, creds, dims)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.Embedder = embedder
	rt.closers = append(rt.closers, embedder.Close)

	reasoner, err := rt.buildReasoner(v, creds, stageTimeout)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.closers = append(rt.closers, reasoner.Close)

	store, err := rt.buildStore(ctx, v, dims)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.Store = store
	rt.closers = append(rt.closers, store.Close)

	locker, err := lockutils.NewLocker(ctx, &lockutils.NewLockerOpts{
		ProviderType: v.GetString("lock.provider"),
		TargetURL:    v.GetString("lock.target"),
		TTL:          time.Duration(v.GetInt("lock.ttl_secs")) * time.Second,
		Logger:       logger,
	})
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("creating owner lock: %w", err)
	}
	rt.closers = append(rt.closers, locker.Close)

	events, err := eventutils.NewPublisher(&eventutils.NewPublisherOpts{
		ProviderType: v.GetString("events.provider"),
		Brokers:      brokerList(v.GetString("events.brokers")),
		Topic:        v.GetString("events.topic"),
		Logger:       logger,
	})
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}
	rt.closers = append(rt.closers, events.Close)

	schemaRetries := v.GetInt("pipeline.schema_retries")

	rt.Orchestrator = pipeline.NewOrchestrator(pipeline.Deps{
		Extractor: extract.NewExtractor(reasoner, extract.Config{
			SchemaRetries: schemaRetries,
		}, logger),
		Retriever: retrieve.NewRetriever(embedder, store, retrieve.Config{
			Limit: v.GetInt("pipeline.retrieve_limit"),
		}, logger),
		Consolidator: consolidate.NewConsolidator(reasoner, consolidate.Config{
			SchemaRetries: schemaRetries,
		}, logger),
		Writer: commit.NewWriter(embedder, store, commit.Config{
			Concurrency: v.GetInt("pipeline.commit_concurrency"),
		}, logger),
		Store:  store,
		Locks:  locker,
		Events: events,
		Logger: logger,
	}, pipeline.Config{
		StageTimeout: stageTimeout,
		MaxRetries:   v.GetInt("pipeline.max_retries"),
	})

	return rt, nil
}

// Close releases every resource the runtime holds, last-built first.
func (r *Runtime) Close() error {
	return r.close()
}

func (r *Runtime) close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}

func (r *Runtime) buildEmbedder(v *viper.Viper, creds *credentials.Manager, dims int) (embeddings.Embedder, error) {
	provider := v.GetString("embedding.provider")

	apiKey, err := creds.ResolveKey(provider, "")
	if err != nil {
		return nil, fmt.Errorf("resolving %s credentials: %w", provider, err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: provider,
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
		APIKey:       apiKey,
		Dimensions:   dims,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

func (r *Runtime) buildReasoner(v *viper.Viper, creds *credentials.Manager, timeout time.Duration) (reasoning.Reasoner, error) {
	provider := v.GetString("reasoning.provider")

	apiKey, err := creds.ResolveKey(provider, "")
	if err != nil {
		return nil, fmt.Errorf("resolving %s credentials: %w", provider, err)
	}

	rsn, err := reasoningutils.NewReasoner(&reasoningutils.NewReasonerOpts{
		ProviderType: provider,
		TargetURL:    v.GetString("reasoning.target"),
		Model:        v.GetString("reasoning.model"),
		APIKey:       apiKey,
		Timeout:      timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating reasoner: %w", err)
	}
	return rsn, nil
}

func (r *Runtime) buildStore(ctx context.Context, v *viper.Viper, dims int) (vector.Driver, error) {
	provider := v.GetString("vector_store.provider")
	target := v.GetString("vector_store.target")

	opts := &vectorutils.NewDriverOpts{
		ProviderType: provider,
		Collection:   defaultCollection,
		Dimensions:   dims,
		Logger:       r.logger,
	}

	switch provider {
	case "sqlite":
		dbPath, err := sqlitepath.ResolveSQLitePath(v.GetString("storage.sqlite_path"))
		if err != nil {
			return nil, fmt.Errorf("resolving sqlite path: %w", err)
		}
		opts.DBPath = dbPath
	case "postgres":
		opts.ConnString = target
	case "qdrant":
		host, port, err := splitQdrantTarget(target)
		if err != nil {
			return nil, err
		}
		opts.Host = host
		opts.Port = port
		opts.APIKey = os.Getenv("QDRANT_API_KEY")
	case "chroma":
		opts.TargetURL = target
	}

	store, err := vectorutils.NewDriver(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	return store, nil
}

// splitQdrantTarget parses a host:port target, defaulting the port to the
// qdrant gRPC port when absent.
func splitQdrantTarget(target string) (string, int, error) {
	if target == "" {
		return "localhost", defaultQdrantPort, nil
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// No port in the target; use the whole value as host.
		return target, defaultQdrantPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

// brokerList splits a comma-separated broker string into addresses.
func brokerList(s string) []string {
	var brokers []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
