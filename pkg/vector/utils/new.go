package vectorutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/vector"
	"github.com/engramlabs/engram/pkg/vector/chroma"
	"github.com/engramlabs/engram/pkg/vector/inmemory"
	"github.com/engramlabs/engram/pkg/vector/postgres"
	"github.com/engramlabs/engram/pkg/vector/qdrant"
	"github.com/engramlabs/engram/pkg/vector/sqlitevec"
)

type NewDriverOpts struct {
	ProviderType string

	// TargetURL is the server URL for HTTP-based stores (chroma).
	TargetURL string

	// ConnString is the connection string for postgres.
	ConnString string

	// DBPath is the database file path for sqlite.
	DBPath string

	// Host and Port address gRPC-based stores (qdrant).
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	Collection string
	Dimensions int

	Logger *zap.Logger
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (vector.Driver, error) {
	if o.Dimensions <= 0 {
		return nil, fmt.Errorf("vector store dimensions must be positive, got %d", o.Dimensions)
	}

	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewDriver(inmemory.Config{
			Dimensions: o.Dimensions,
		}), nil
	case "sqlite":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.DBPath,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "postgres":
		return postgres.NewDriver(ctx, postgres.Config{
			ConnString: o.ConnString,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:       o.Host,
			Port:       o.Port,
			APIKey:     o.APIKey,
			UseTLS:     o.UseTLS,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
