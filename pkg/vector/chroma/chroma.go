// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/vector"
)

const (
	// DefaultCollectionPrefix is the default prefix for the per-set
	// collection names.
	DefaultCollectionPrefix = "reverie"

	// fingerprintsSuffix names the collection that carries the per-chat
	// embedding fingerprint. Chroma documents need an embedding, so
	// fingerprint records use a 1-dim placeholder.
	fingerprintsSuffix = "fingerprints"
)

// ChromaDriver implements vector.Driver using Chroma's REST API.
// Each vector set maps to its own collection; documents carry chat_id and
// floor metadata so chat filtering and rollback deletes go through Chroma's
// where filters.
type ChromaDriver struct {
	baseURL          string
	collectionPrefix string
	httpClient       *http.Client
	logger           *zap.Logger

	mu          sync.Mutex
	collections map[string]string // collection name -> collection ID
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionPrefix prefixes the per-set collection names.
	// Defaults to DefaultCollectionPrefix if empty.
	CollectionPrefix string
}

// NewChromaDriver creates a new Chroma vector driver.
func NewChromaDriver(c Config, logger *zap.Logger) (*ChromaDriver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	prefix := c.CollectionPrefix
	if prefix == "" {
		prefix = DefaultCollectionPrefix
	}

	d := &ChromaDriver{
		baseURL:          c.URL,
		collectionPrefix: prefix,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:      logger,
		collections: make(map[string]string),
	}

	logger.Info("connected to Chroma",
		zap.String("url", c.URL),
		zap.String("collection_prefix", prefix),
	)

	return d, nil
}

func (d *ChromaDriver) setCollectionName(set vector.Set) string {
	return fmt.Sprintf("%s_%s", d.collectionPrefix, string(set))
}

// collectionID resolves a collection name to its ID, creating the collection
// on first use.
func (d *ChromaDriver) collectionID(ctx context.Context, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.collections[name]; ok {
		return id, nil
	}

	id, err := d.getOrCreateCollection(ctx, name)
	if err != nil {
		return "", err
	}
	d.collections[name] = id
	return id, nil
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (d *ChromaDriver) getOrCreateCollection(ctx context.Context, name string) (string, error) {
	// Try to get existing collection first
	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s", d.baseURL, name)

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
	createBody := map[string]string{"name": name}
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

// post issues a JSON POST against a collection endpoint and decodes the
// response into out when out is non-nil.
func (d *ChromaDriver) post(ctx context.Context, collectionID, action string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", action, err)
	}

	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s/%s", d.baseURL, collectionID, action)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s request: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to %s: status %d: %s", action, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", action, err)
		}
	}

	return nil
}

// chromaDocID namespaces a document ID by chat so two chats can store the
// same atom/chunk/event ID in one collection.
func chromaDocID(chatID, docID string) string {
	return chatID + "/" + docID
}

// Add stores documents with their embeddings into a set.
func (d *ChromaDriver) Add(ctx context.Context, chatID string, set vector.Set, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	collID, err := d.collectionID(ctx, d.setCollectionName(set))
	if err != nil {
		return err
	}

	// Chroma add fails on existing IDs, so clear them first.
	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	metadatas := make([]map[string]any, len(docs))

	for i, doc := range docs {
		ids[i] = chromaDocID(chatID, doc.ID)
		embeddings[i] = doc.Embedding
		metadatas[i] = map[string]any{
			"chat_id": chatID,
			"doc_id":  doc.ID,
			"floor":   doc.Floor,
		}
	}

	if err := d.post(ctx, collID, "delete", chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return err
	}

	if err := d.post(ctx, collID, "add", chromaAddRequest{
		IDs:        ids,
		Embeddings: embeddings,
		Metadatas:  metadatas,
	}, nil); err != nil {
		return err
	}

	d.logger.Debug("added documents to chroma",
		zap.String("chat_id", chatID),
		zap.String("set", string(set)),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *ChromaDriver) Query(ctx context.Context, chatID string, set vector.Set, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	collID, err := d.collectionID(ctx, d.setCollectionName(set))
	if err != nil {
		return nil, err
	}

	var queryResp chromaQueryResponse
	if err := d.post(ctx, collID, "query", chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "distances"},
		Where:           map[string]any{"chat_id": chatID},
	}, &queryResp); err != nil {
		return nil, err
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

	for i, id := range ids {
		result := vector.QueryResult{
			Document: vector.Document{ID: id},
		}

		if i < len(metadatas) && metadatas[i] != nil {
			if docID, ok := metadatas[i]["doc_id"].(string); ok {
				result.ID = docID
			}
			if floor, ok := metadatas[i]["floor"].(float64); ok {
				result.Floor = int(floor)
			}
		}

		// Convert distance to similarity score
		// Lower distance = higher similarity
		if i < len(distances) {
			result.Score = 1.0 / (1.0 + distances[i])
		}

		results = append(results, result)
	}

	d.logger.Debug("queried chroma",
		zap.String("chat_id", chatID),
		zap.String("set", string(set)),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// All returns every document of a set with its embedding, ID ascending.
func (d *ChromaDriver) All(ctx context.Context, chatID string, set vector.Set) ([]vector.Document, error) {
	collID, err := d.collectionID(ctx, d.setCollectionName(set))
	if err != nil {
		return nil, err
	}

	var getResp chromaGetResponse
	if err := d.post(ctx, collID, "get", chromaGetRequest{
		Include: []string{"metadatas", "embeddings"},
		Where:   map[string]any{"chat_id": chatID},
	}, &getResp); err != nil {
		return nil, err
	}

	docs := make([]vector.Document, 0, len(getResp.IDs))
	for i := range getResp.IDs {
		doc := vector.Document{ID: getResp.IDs[i]}

		if i < len(getResp.Metadatas) && getResp.Metadatas[i] != nil {
			if docID, ok := getResp.Metadatas[i]["doc_id"].(string); ok {
				doc.ID = docID
			}
			if floor, ok := getResp.Metadatas[i]["floor"].(float64); ok {
				doc.Floor = int(floor)
			}
		}

		if i < len(getResp.Embeddings) {
			doc.Embedding = getResp.Embeddings[i]
		}

		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	return docs, nil
}

// Count returns the number of documents in a set.
func (d *ChromaDriver) Count(ctx context.Context, chatID string, set vector.Set) (int, error) {
	collID, err := d.collectionID(ctx, d.setCollectionName(set))
	if err != nil {
		return 0, err
	}

	var getResp chromaGetResponse
	if err := d.post(ctx, collID, "get", chromaGetRequest{
		Include: []string{"metadatas"},
		Where:   map[string]any{"chat_id": chatID},
	}, &getResp); err != nil {
		return 0, err
	}

	return len(getResp.IDs), nil
}

// Delete removes documents by their IDs.
func (d *ChromaDriver) Delete(ctx context.Context, chatID string, set vector.Set, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	collID, err := d.collectionID(ctx, d.setCollectionName(set))
	if err != nil {
		return err
	}

	scoped := make([]string, len(ids))
	for i, id := range ids {
		scoped[i] = chromaDocID(chatID, id)
	}

	if err := d.post(ctx, collID, "delete", chromaDeleteRequest{IDs: scoped}, nil); err != nil {
		return err
	}

	d.logger.Debug("deleted documents from chroma",
		zap.String("chat_id", chatID),
		zap.String("set", string(set)),
		zap.Int("count", len(ids)),
	)

	return nil
}

// DeleteFloorsFrom removes documents with floor >= floor from a set.
func (d *ChromaDriver) DeleteFloorsFrom(ctx context.Context, chatID string, set vector.Set, floor int) error {
	collID, err := d.collectionID(ctx, d.setCollectionName(set))
	if err != nil {
		return err
	}

	return d.post(ctx, collID, "delete", chromaDeleteRequest{
		Where: map[string]any{"$and": []map[string]any{
			{"chat_id": chatID},
			{"floor": map[string]any{"$gte": floor}},
		}},
	}, nil)
}

// DeleteFloorAt removes documents at exactly the given floor from a set.
func (d *ChromaDriver) DeleteFloorAt(ctx context.Context, chatID string, set vector.Set, floor int) error {
	collID, err := d.collectionID(ctx, d.setCollectionName(set))
	if err != nil {
		return err
	}

	return d.post(ctx, collID, "delete", chromaDeleteRequest{
		Where: map[string]any{"$and": []map[string]any{
			{"chat_id": chatID},
			{"floor": floor},
		}},
	}, nil)
}

// Fingerprint returns the embedding fingerprint recorded for the chat.
func (d *ChromaDriver) Fingerprint(ctx context.Context, chatID string) (string, error) {
	collID, err := d.collectionID(ctx, d.collectionPrefix+"_"+fingerprintsSuffix)
	if err != nil {
		return "", err
	}

	var getResp chromaGetResponse
	if err := d.post(ctx, collID, "get", chromaGetRequest{
		IDs:     []string{chatID},
		Include: []string{"metadatas"},
	}, &getResp); err != nil {
		return "", err
	}

	if len(getResp.IDs) == 0 {
		return "", nil
	}
	if len(getResp.Metadatas) > 0 && getResp.Metadatas[0] != nil {
		if fp, ok := getResp.Metadatas[0]["fingerprint"].(string); ok {
			return fp, nil
		}
	}

	return "", nil
}

// SetFingerprint records the embedding fingerprint for the chat.
func (d *ChromaDriver) SetFingerprint(ctx context.Context, chatID string, fingerprint string) error {
	collID, err := d.collectionID(ctx, d.collectionPrefix+"_"+fingerprintsSuffix)
	if err != nil {
		return err
	}

	if err := d.post(ctx, collID, "delete", chromaDeleteRequest{IDs: []string{chatID}}, nil); err != nil {
		return err
	}

	return d.post(ctx, collID, "add", chromaAddRequest{
		IDs:        []string{chatID},
		Embeddings: [][]float32{{0}},
		Metadatas:  []map[string]any{{"fingerprint": fingerprint}},
	}, nil)
}

// DropChat removes all vector state for the chat, fingerprint included.
func (d *ChromaDriver) DropChat(ctx context.Context, chatID string) error {
	for _, set := range vector.Sets {
		collID, err := d.collectionID(ctx, d.setCollectionName(set))
		if err != nil {
			return err
		}
		if err := d.post(ctx, collID, "delete", chromaDeleteRequest{
			Where: map[string]any{"chat_id": chatID},
		}, nil); err != nil {
			return err
		}
	}

	collID, err := d.collectionID(ctx, d.collectionPrefix+"_"+fingerprintsSuffix)
	if err != nil {
		return err
	}
	return d.post(ctx, collID, "delete", chromaDeleteRequest{IDs: []string{chatID}}, nil)
}

// Close releases resources held by the driver.
func (d *ChromaDriver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// Ensure ChromaDriver implements vector.Driver
var _ vector.Driver = (*ChromaDriver)(nil)
