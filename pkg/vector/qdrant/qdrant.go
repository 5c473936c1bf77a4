// Package qdrant provides a Qdrant-backed vector driver over gRPC.
//
// Facts are stored as points in a single cosine-distance collection. The
// fact fields live in the point payload so owner filtering happens
// server-side.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/vector"
)

const (
	// DefaultHost is the default Qdrant gRPC host.
	DefaultHost = "localhost"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultCollection is the collection facts are stored in.
	DefaultCollection = "facts"
)

// Config holds the settings for the Qdrant driver.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string

	// Dimensions is the vector size of the collection. Every stored
	// embedding must have exactly this many dimensions.
	Dimensions int
}

// Driver implements vector.Driver on top of a Qdrant collection.
type Driver struct {
	client     *qdrant.Client
	collection string
	dims       int
	logger     *zap.Logger
}

var _ vector.Driver = (*Driver)(nil)

// NewDriver connects to Qdrant and creates the facts collection if it does
// not exist.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", c.Dimensions)
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", vector.ErrUnavailable, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %v", vector.ErrUnavailable, err)
	}
	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: creating collection: %v", vector.ErrUnavailable, err)
		}
	}

	logger.Debug("qdrant vector driver initialized",
		zap.String("collection", c.Collection),
		zap.Int("dimensions", c.Dimensions),
	)

	return &Driver{
		client:     client,
		collection: c.Collection,
		dims:       c.Dimensions,
		logger:     logger,
	}, nil
}

// Upsert inserts or replaces facts by point id.
func (d *Driver) Upsert(ctx context.Context, facts []fact.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(facts))
	for _, f := range facts {
		if len(f.Embedding) != d.dims {
			return fmt.Errorf("%w: fact %s has %d dimensions, store expects %d",
				vector.ErrDimensionMismatch, f.ID, len(f.Embedding), d.dims)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(f.ID),
			Vectors: qdrant.NewVectors(f.Embedding...),
			Payload: factPayload(f),
		})
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: upserting points: %v", vector.ErrUnavailable, err)
	}

	d.logger.Debug("upserted facts", zap.Int("count", len(facts)))
	return nil
}

// Query returns the owner's nearest facts by cosine distance.
func (d *Driver) Query(ctx context.Context, owner string, embedding []float32, limit int) ([]vector.QueryResult, error) {
	if len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, store expects %d",
			vector.ErrDimensionMismatch, len(embedding), d.dims)
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         ownerFilter(owner),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying points: %v", vector.ErrUnavailable, err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		f, err := pointToFact(p.GetId().GetUuid(), p.GetPayload(), p.GetVectors().GetVector().GetData())
		if err != nil {
			return nil, fmt.Errorf("%w: decoding point: %v", vector.ErrUnavailable, err)
		}
		// Qdrant reports cosine similarity; the driver contract is distance.
		results = append(results, vector.QueryResult{Fact: f, Distance: 1 - p.GetScore()})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Fact.CreatedAt.After(results[j].Fact.CreatedAt)
	})

	return results, nil
}

// Get fetches the owner's facts with the given ids. Unknown ids and foreign
// owners are skipped.
func (d *Driver) Get(ctx context.Context, owner string, ids []string) ([]fact.Fact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching points: %v", vector.ErrUnavailable, err)
	}

	var facts []fact.Fact
	for _, p := range points {
		f, err := pointToFact(p.GetId().GetUuid(), p.GetPayload(), p.GetVectors().GetVector().GetData())
		if err != nil {
			return nil, fmt.Errorf("%w: decoding point: %v", vector.ErrUnavailable, err)
		}
		if f.Owner != owner {
			continue
		}
		facts = append(facts, f)
	}

	return facts, nil
}

// UpdateStatus sets the status and updated_at of a single fact.
func (d *Driver) UpdateStatus(ctx context.Context, id string, status fact.Status, updatedAt time.Time) error {
	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
	})
	if err != nil {
		return fmt.Errorf("%w: fetching point: %v", vector.ErrUnavailable, err)
	}
	if len(points) == 0 {
		return fmt.Errorf("%w: fact %s", vector.ErrNotFound, id)
	}

	_, err = d.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: d.collection,
		Payload: qdrant.NewValueMap(map[string]any{
			"status":     string(status),
			"updated_at": updatedAt.UTC().Format(time.RFC3339Nano),
		}),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(id)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: setting payload for %s: %v", vector.ErrUnavailable, id, err)
	}

	return nil
}

// List returns all of the owner's facts, newest first.
func (d *Driver) List(ctx context.Context, owner string) ([]fact.Fact, error) {
	count, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: d.collection,
		Filter:         ownerFilter(owner),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: counting points: %v", vector.ErrUnavailable, err)
	}
	if count == 0 {
		return nil, nil
	}

	points, err := d.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: d.collection,
		Filter:         ownerFilter(owner),
		Limit:          qdrant.PtrOf(uint32(count)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scrolling points: %v", vector.ErrUnavailable, err)
	}

	facts := make([]fact.Fact, 0, len(points))
	for _, p := range points {
		f, err := pointToFact(p.GetId().GetUuid(), p.GetPayload(), p.GetVectors().GetVector().GetData())
		if err != nil {
			return nil, fmt.Errorf("%w: decoding point: %v", vector.ErrUnavailable, err)
		}
		facts = append(facts, f)
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})

	return facts, nil
}

// Purge deletes all of the owner's facts.
func (d *Driver) Purge(ctx context.Context, owner string) error {
	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Points:         qdrant.NewPointsSelectorFilter(ownerFilter(owner)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: deleting points: %v", vector.ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

func ownerFilter(owner string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("owner", owner),
		},
	}
}

func factPayload(f fact.Fact) map[string]*qdrant.Value {
	return qdrant.NewValueMap(map[string]any{
		"owner":      f.Owner,
		"content":    f.Content,
		"category":   string(f.Category),
		"status":     string(f.Status),
		"created_at": f.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": f.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func pointToFact(id string, payload map[string]*qdrant.Value, embedding []float32) (fact.Fact, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, payload["created_at"].GetStringValue())
	if err != nil {
		return fact.Fact{}, fmt.Errorf("parsing created_at for %s: %w", id, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, payload["updated_at"].GetStringValue())
	if err != nil {
		return fact.Fact{}, fmt.Errorf("parsing updated_at for %s: %w", id, err)
	}

	return fact.Fact{
		ID:        id,
		Owner:     payload["owner"].GetStringValue(),
		Content:   payload["content"].GetStringValue(),
		Category:  fact.Category(payload["category"].GetStringValue()),
		Status:    fact.Status(payload["status"].GetStringValue()),
		Embedding: embedding,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
