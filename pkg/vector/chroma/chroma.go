// Package chroma provides a Chroma-backed vector driver using its REST API.
//
// Facts map onto Chroma documents: the fact content is the document body and
// the remaining fields live in the document metadata, which also carries the
// owner for server-side filtering.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/fact"
	"github.com/engramlabs/engram/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing facts.
	DefaultCollectionName = "facts"

	// DefaultMaxRetries is how many times the driver attempts to reach
	// Chroma on startup before giving up.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between startup attempts.
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay caps the exponential backoff between attempts.
	DefaultMaxRetryDelay = 10 * time.Second
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	dims           int
	httpClient     *http.Client
	logger         *zap.Logger
}

var _ vector.Driver = (*Driver)(nil)

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the expected embedding width. Every stored embedding
	// must have exactly this many dimensions.
	Dimensions int

	// MaxRetries is how many times to attempt the initial connection.
	// Chroma is often still starting when the pipeline comes up.
	MaxRetries int

	// RetryDelay is the initial delay between connection attempts.
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff between attempts.
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver, retrying the initial
// collection lookup until Chroma is reachable or retries are exhausted.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", c.Dimensions)
	}
	if c.CollectionName == "" {
		c.CollectionName = DefaultCollectionName
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}

	d := &Driver{
		baseURL:        c.URL,
		collectionName: c.CollectionName,
		dims:           c.Dimensions,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	var (
		collectionID string
		err          error
	)
	delay := c.RetryDelay
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		collectionID, err = d.getOrCreateCollection(context.Background())
		if err == nil {
			break
		}
		if attempt < c.MaxRetries {
			logger.Warn("chroma not ready, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			time.Sleep(delay)
			delay *= 2
			if delay > c.MaxRetryDelay {
				delay = c.MaxRetryDelay
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to chroma after %d attempts: %v",
			vector.ErrUnavailable, c.MaxRetries, err)
	}
	d.collectionID = collectionID

	logger.Info("connected to Chroma",
		zap.String("url", c.URL),
		zap.String("collection", c.CollectionName),
		zap.String("collection_id", collectionID),
	)

	return d, nil
}

// getOrCreateCollection gets an existing collection or creates a new one
// configured for cosine distance.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	// Try to get existing collection first
	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s", d.baseURL, d.collectionName)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		return collection.ID, nil
	}

	// Collection doesn't exist, create it
	createURL := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections", d.baseURL)
	createBody := chromaCreateCollectionRequest{
		Name:     d.collectionName,
		Metadata: map[string]any{"hnsw:space": "cosine"},
	}
	jsonBody, err := json.Marshal(createBody)
	if err != nil {
		return "", fmt.Errorf("marshaling create request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, "POST", createURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending create request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to create collection: status %d: %s", resp.StatusCode, string(body))
	}

	var collection chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}

	return collection.ID, nil
}

// Upsert inserts or replaces facts by id.
func (d *Driver) Upsert(ctx context.Context, facts []fact.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	ids := make([]string, len(facts))
	embeddings := make([][]float32, len(facts))
	metadatas := make([]map[string]any, len(facts))
	documents := make([]string, len(facts))

	for i, f := range facts {
		if len(f.Embedding) != d.dims {
			return fmt.Errorf("%w: fact %s has %d dimensions, store expects %d",
				vector.ErrDimensionMismatch, f.ID, len(f.Embedding), d.dims)
		}
		ids[i] = f.ID
		embeddings[i] = f.Embedding
		metadatas[i] = factMetadata(f)
		documents[i] = f.Content
	}

	reqBody := chromaUpsertRequest{
		IDs:        ids,
		Embeddings: embeddings,
		Metadatas:  metadatas,
		Documents:  documents,
	}

	if err := d.post(ctx, "upsert", reqBody, nil); err != nil {
		return fmt.Errorf("%w: upserting facts: %v", vector.ErrUnavailable, err)
	}

	d.logger.Debug("upserted facts to chroma", zap.Int("count", len(facts)))
	return nil
}

// Query returns the owner's nearest facts by cosine distance.
func (d *Driver) Query(ctx context.Context, owner string, embedding []float32, limit int) ([]vector.QueryResult, error) {
	if len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, store expects %d",
			vector.ErrDimensionMismatch, len(embedding), d.dims)
	}

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        limit,
		Where:           ownerWhere(owner),
		Include:         []string{"metadatas", "documents", "distances", "embeddings"},
	}

	var queryResp chromaQueryResponse
	if err := d.post(ctx, "query", reqBody, &queryResp); err != nil {
		return nil, fmt.Errorf("%w: querying facts: %v", vector.ErrUnavailable, err)
	}

	var results []vector.QueryResult

	// Process first group (we only query with one embedding)
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return results, nil
	}

	ids := queryResp.IDs[0]
	distances := queryResp.Distances[0]

	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}
	var documents []string
	if len(queryResp.Documents) > 0 {
		documents = queryResp.Documents[0]
	}
	var embeddings [][]float32
	if len(queryResp.Embeddings) > 0 {
		embeddings = queryResp.Embeddings[0]
	}

	for i, id := range ids {
		var (
			md      map[string]any
			content string
			emb     []float32
		)
		if i < len(metadatas) {
			md = metadatas[i]
		}
		if i < len(documents) {
			content = documents[i]
		}
		if i < len(embeddings) {
			emb = embeddings[i]
		}

		f, err := metadataToFact(id, content, md, emb)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding fact %s: %v", vector.ErrUnavailable, id, err)
		}

		result := vector.QueryResult{Fact: f}
		if i < len(distances) {
			result.Distance = distances[i]
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Fact.CreatedAt.After(results[j].Fact.CreatedAt)
	})

	d.logger.Debug("queried chroma", zap.Int("results", len(results)))
	return results, nil
}

// Get fetches the owner's facts with the given ids. Unknown ids are skipped.
func (d *Driver) Get(ctx context.Context, owner string, ids []string) ([]fact.Fact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	reqBody := chromaGetRequest{
		IDs:     ids,
		Where:   ownerWhere(owner),
		Include: []string{"metadatas", "documents", "embeddings"},
	}

	var getResp chromaGetResponse
	if err := d.post(ctx, "get", reqBody, &getResp); err != nil {
		return nil, fmt.Errorf("%w: fetching facts: %v", vector.ErrUnavailable, err)
	}

	return d.respToFacts(getResp)
}

// UpdateStatus sets the status and updated_at of a single fact. Chroma's
// update replaces the whole metadata document, so the existing metadata is
// read first and written back with the two fields changed.
func (d *Driver) UpdateStatus(ctx context.Context, id string, status fact.Status, updatedAt time.Time) error {
	reqBody := chromaGetRequest{
		IDs:     []string{id},
		Include: []string{"metadatas"},
	}

	var getResp chromaGetResponse
	if err := d.post(ctx, "get", reqBody, &getResp); err != nil {
		return fmt.Errorf("%w: fetching fact %s: %v", vector.ErrUnavailable, id, err)
	}
	if len(getResp.IDs) == 0 {
		return fmt.Errorf("%w: fact %s", vector.ErrNotFound, id)
	}

	md := map[string]any{}
	if len(getResp.Metadatas) > 0 && getResp.Metadatas[0] != nil {
		md = getResp.Metadatas[0]
	}
	md["status"] = string(status)
	md["updated_at"] = updatedAt.UTC().Format(time.RFC3339Nano)

	updateBody := chromaUpdateRequest{
		IDs:       []string{id},
		Metadatas: []map[string]any{md},
	}
	if err := d.post(ctx, "update", updateBody, nil); err != nil {
		return fmt.Errorf("%w: updating fact %s: %v", vector.ErrUnavailable, id, err)
	}

	return nil
}

// List returns all of the owner's facts, newest first.
func (d *Driver) List(ctx context.Context, owner string) ([]fact.Fact, error) {
	reqBody := chromaGetRequest{
		Where:   ownerWhere(owner),
		Include: []string{"metadatas", "documents", "embeddings"},
	}

	var getResp chromaGetResponse
	if err := d.post(ctx, "get", reqBody, &getResp); err != nil {
		return nil, fmt.Errorf("%w: listing facts: %v", vector.ErrUnavailable, err)
	}

	facts, err := d.respToFacts(getResp)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].CreatedAt.After(facts[j].CreatedAt)
	})

	return facts, nil
}

// Purge deletes all of the owner's facts.
func (d *Driver) Purge(ctx context.Context, owner string) error {
	reqBody := chromaDeleteRequest{
		Where: ownerWhere(owner),
	}
	if err := d.post(ctx, "delete", reqBody, nil); err != nil {
		return fmt.Errorf("%w: purging facts: %v", vector.ErrUnavailable, err)
	}

	d.logger.Debug("purged owner facts from chroma", zap.String("owner", owner))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// post sends a JSON request to a collection endpoint and optionally decodes
// the response body into out.
func (d *Driver) post(ctx context.Context, endpoint string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", endpoint, err)
	}

	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s/%s",
		d.baseURL, d.collectionID, endpoint)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed: status %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
	}

	return nil
}

func (d *Driver) respToFacts(resp chromaGetResponse) ([]fact.Fact, error) {
	facts := make([]fact.Fact, 0, len(resp.IDs))
	for i, id := range resp.IDs {
		var (
			md      map[string]any
			content string
			emb     []float32
		)
		if i < len(resp.Metadatas) {
			md = resp.Metadatas[i]
		}
		if i < len(resp.Documents) {
			content = resp.Documents[i]
		}
		if i < len(resp.Embeddings) {
			emb = resp.Embeddings[i]
		}

		f, err := metadataToFact(id, content, md, emb)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding fact %s: %v", vector.ErrUnavailable, id, err)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func ownerWhere(owner string) map[string]any {
	return map[string]any{"owner": map[string]any{"$eq": owner}}
}

func factMetadata(f fact.Fact) map[string]any {
	return map[string]any{
		"owner":      f.Owner,
		"category":   string(f.Category),
		"status":     string(f.Status),
		"created_at": f.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": f.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func metadataToFact(id, content string, md map[string]any, embedding []float32) (fact.Fact, error) {
	str := func(key string) string {
		if md == nil {
			return ""
		}
		v, _ := md[key].(string)
		return v
	}

	createdAt, err := time.Parse(time.RFC3339Nano, str("created_at"))
	if err != nil {
		return fact.Fact{}, fmt.Errorf("parsing created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, str("updated_at"))
	if err != nil {
		return fact.Fact{}, fmt.Errorf("parsing updated_at: %w", err)
	}

	return fact.Fact{
		ID:        id,
		Owner:     str("owner"),
		Content:   content,
		Category:  fact.Category(str("category")),
		Status:    fact.Status(str("status")),
		Embedding: embedding,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
