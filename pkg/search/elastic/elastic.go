// Package elastic implements search.Driver on Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/search"
)

const defaultIndex = "strata-knowledge"

// Config holds Elasticsearch connection settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string

	// Index is the knowledge document index name. Defaults to
	// "strata-knowledge".
	Index string
}

// Driver implements search.Driver on Elasticsearch.
type Driver struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

// indexMapping keeps topic exact-match while body stays analyzed.
const indexMapping = `{
	"mappings": {
		"properties": {
			"document_id":        {"type": "keyword"},
			"topic":              {"type": "keyword"},
			"body":               {"type": "text"},
			"source_episode_ids": {"type": "keyword"},
			"superseded_by":      {"type": "keyword"},
			"created_at":         {"type": "date"}
		}
	}
}`

// NewDriver connects to Elasticsearch and ensures the index exists.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: c.Addresses,
		Username:  c.Username,
		Password:  c.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	index := c.Index
	if index == "" {
		index = defaultIndex
	}

	d := &Driver{client: client, index: index, logger: logger}
	if err := d.ensureIndex(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Driver) ensureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{d.index}}.Do(ctx, d.client)
	if err != nil {
		return &memory.BackendUnavailable{Backend: "elasticsearch", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	create, err := esapi.IndicesCreateRequest{
		Index: d.index,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", d.index, err)
	}
	defer create.Body.Close()

	if create.IsError() {
		return fmt.Errorf("creating index %s: %s", d.index, create.String())
	}

	d.logger.Debug("created elasticsearch index", "index", d.index)

	return nil
}

func (d *Driver) Index(ctx context.Context, doc *memory.KnowledgeDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", doc.DocumentID, err)
	}

	res, err := esapi.IndexRequest{
		Index:      d.index,
		DocumentID: doc.DocumentID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("indexing document %s: %w", doc.DocumentID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing document %s: %s", doc.DocumentID, res.String())
	}

	return nil
}

func (d *Driver) Get(ctx context.Context, documentID string) (*memory.KnowledgeDocument, error) {
	res, err := esapi.GetRequest{Index: d.index, DocumentID: documentID}.Do(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", documentID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, fmt.Errorf("document %s: %w", documentID, memory.ErrNotFound)
	}
	if res.IsError() {
		return nil, fmt.Errorf("getting document %s: %s", documentID, res.String())
	}

	var envelope struct {
		Source memory.KnowledgeDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", documentID, err)
	}

	return &envelope.Source, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64                  `json:"_score"`
			Source memory.KnowledgeDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (d *Driver) Search(ctx context.Context, query, topic string, limit int) ([]search.Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	must := []map[string]any{
		{"match": map[string]any{"body": query}},
	}
	if topic != "" {
		must = append(must, map[string]any{"term": map[string]any{"topic": topic}})
	}

	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": must,
				"must_not": []map[string]any{
					{"exists": map[string]any{"field": "superseded_by"}},
				},
			},
		},
	}

	hits, err := d.runSearch(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	return hits, nil
}

func (d *Driver) Latest(ctx context.Context, topic string) (*memory.KnowledgeDocument, error) {
	body := map[string]any{
		"size": 1,
		"sort": []map[string]any{{"created_at": map[string]any{"order": "desc"}}},
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{"term": map[string]any{"topic": topic}},
				},
				"must_not": []map[string]any{
					{"exists": map[string]any{"field": "superseded_by"}},
				},
			},
		},
	}

	hits, err := d.runSearch(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("looking up topic %q: %w", topic, err)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("topic %q: %w", topic, memory.ErrNotFound)
	}

	doc := hits[0].Document
	return &doc, nil
}

func (d *Driver) runSearch(ctx context.Context, body map[string]any) ([]search.Hit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	res, err := d.client.Search(
		d.client.Search.WithContext(ctx),
		d.client.Search.WithIndex(d.index),
		d.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", string(raw))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	hits := make([]search.Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, search.Hit{Document: h.Source, Score: h.Score})
	}

	return hits, nil
}

func (d *Driver) MarkSuperseded(ctx context.Context, documentID, supersededBy string) error {
	update := map[string]any{
		"doc": map[string]any{"superseded_by": supersededBy},
	}
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encoding update: %w", err)
	}

	res, err := esapi.UpdateRequest{
		Index:      d.index,
		DocumentID: documentID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}.Do(ctx, d.client)
	if err != nil {
		return fmt.Errorf("superseding document %s: %w", documentID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return fmt.Errorf("document %s: %w", documentID, memory.ErrNotFound)
	}
	if res.IsError() {
		return fmt.Errorf("superseding document %s: %s", documentID, res.String())
	}

	return nil
}

func (d *Driver) HealthCheck(ctx context.Context) error {
	res, err := d.client.Ping(d.client.Ping.WithContext(ctx))
	if err != nil {
		return &memory.BackendUnavailable{Backend: "elasticsearch", Err: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return &memory.BackendUnavailable{Backend: "elasticsearch", Err: fmt.Errorf("ping: %s", res.Status())}
	}

	return nil
}

func (d *Driver) Close() error {
	return nil
}
