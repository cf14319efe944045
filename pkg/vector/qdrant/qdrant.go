// Package qdrant implements vector.Driver against a Qdrant server over
// its gRPC client.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	sessionField = "session_id"
	payloadField = "payload"
)

// Config holds Qdrant connection settings.
type Config struct {
	Host string
	Port int

	// Collection is the episode collection name.
	Collection string

	// Dimensions is the embedding dimensionality, used when the
	// collection has to be created.
	Dimensions uint
}

// Driver implements vector.Driver on Qdrant.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and ensures the collection exists.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: c.Host,
		Port: c.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", c.Collection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", c.Collection, err)
		}
		logger.Debug("created qdrant collection", "collection", c.Collection, "dimensions", c.Dimensions)
	}

	return &Driver{client: client, collection: c.Collection, logger: logger}, nil
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				sessionField: doc.SessionID,
				payloadField: doc.Payload,
			}),
		})
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}

	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, sessionID string) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	query := &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if sessionID != "" {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(sessionField, sessionID)},
		}
	}

	points, err := d.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", d.collection, err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, point := range points {
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:        point.GetId().GetUuid(),
				SessionID: point.GetPayload()[sessionField].GetStringValue(),
				Payload:   point.GetPayload()[payloadField].GetStringValue(),
			},
			Score: point.GetScore(),
		})
	}

	return results, nil
}

func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting %d points: %w", len(ids), err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, point := range points {
		doc := vector.Document{
			ID:        point.GetId().GetUuid(),
			SessionID: point.GetPayload()[sessionField].GetStringValue(),
			Payload:   point.GetPayload()[payloadField].GetStringValue(),
		}
		if v := point.GetVectors().GetVector(); v != nil {
			doc.Embedding = v.GetData()
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (d *Driver) List(ctx context.Context, sessionID string, limit int) ([]vector.Document, error) {
	if limit <= 0 {
		limit = 100
	}

	scroll := &qdrant.ScrollPoints{
		CollectionName: d.collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if sessionID != "" {
		scroll.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(sessionField, sessionID)},
		}
	}

	points, err := d.client.Scroll(ctx, scroll)
	if err != nil {
		return nil, fmt.Errorf("scrolling collection %s: %w", d.collection, err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, point := range points {
		docs = append(docs, vector.Document{
			ID:        point.GetId().GetUuid(),
			SessionID: point.GetPayload()[sessionField].GetStringValue(),
			Payload:   point.GetPayload()[payloadField].GetStringValue(),
		})
	}

	return docs, nil
}

func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("deleting %d points: %w", len(ids), err)
	}

	return nil
}

func (d *Driver) HealthCheck(ctx context.Context) error {
	if _, err := d.client.HealthCheck(ctx); err != nil {
		return &memory.BackendUnavailable{Backend: "qdrant", Err: err}
	}
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}
