// Package neo4j implements graph.Driver on a Neo4j server. Episode and
// entity nodes are MERGEd so writes are idempotent, and every traversal
// template maps to a fixed, parameterized Cypher query.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"

	"github.com/papercomputeco/strata/pkg/graph"
	"github.com/papercomputeco/strata/pkg/memory"
)

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
}

// Driver implements graph.Driver on Neo4j.
type Driver struct {
	driver neo4j.Driver
	logger *slog.Logger
}

// NewDriver connects to Neo4j and verifies connectivity.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	drv, err := neo4j.NewDriver(c.URI, neo4j.BasicAuth(c.Username, c.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrConnection, err)
	}

	if err := drv.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrConnection, err)
	}

	logger.Debug("neo4j graph driver connected", "uri", c.URI)

	return &Driver{driver: drv, logger: logger}, nil
}

func (d *Driver) UpsertEpisode(ctx context.Context, episode *memory.Episode) error {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		episodeQuery := `
			MERGE (e:Episode {id: $id})
			SET e.session_id = $session_id,
				e.summary = $summary,
				e.member_fact_ids = $member_fact_ids,
				e.range_start = $range_start,
				e.range_end = $range_end,
				e.created_at = $created_at
		`
		_, err := tx.Run(ctx, episodeQuery, map[string]any{
			"id":              episode.EpisodeID,
			"session_id":      episode.SessionID,
			"summary":         episode.Summary,
			"member_fact_ids": episode.MemberFactIDs,
			"range_start":     episode.TimeRange.Start.Format(time.RFC3339),
			"range_end":       episode.TimeRange.End.Format(time.RFC3339),
			"created_at":      episode.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("merging episode %s: %w", episode.EpisodeID, err)
		}

		for _, edge := range episode.EntityEdges {
			switch edge.Relation {
			case memory.RelationCausal:
				causalQuery := `
					MERGE (s:Entity {name: $source})
					MERGE (t:Entity {name: $target})
					MERGE (s)-[r:CAUSES]->(t)
					SET r.weight = $weight
					WITH s
					MATCH (e:Episode {id: $episode_id})
					MERGE (e)-[:MENTIONS]->(s)
				`
				_, err = tx.Run(ctx, causalQuery, map[string]any{
					"source":     edge.Source,
					"target":     edge.Target,
					"weight":     edge.Weight,
					"episode_id": episode.EpisodeID,
				})
			default:
				entityQuery := `
					MERGE (n:Entity {name: $name})
					WITH n
					MATCH (e:Episode {id: $episode_id})
					MERGE (e)-[r:MENTIONS]->(n)
					SET r.relation = $relation, r.weight = $weight
				`
				_, err = tx.Run(ctx, entityQuery, map[string]any{
					"name":       edge.Source,
					"relation":   string(edge.Relation),
					"weight":     edge.Weight,
					"episode_id": episode.EpisodeID,
				})
			}
			if err != nil {
				return nil, fmt.Errorf("merging entity edge %s: %w", edge.Source, err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("upserting episode %s: %w", episode.EpisodeID, err)
	}

	return nil
}

func (d *Driver) LinkDocument(ctx context.Context, doc *memory.KnowledgeDocument) error {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		docQuery := `
			MERGE (d:Document {id: $id})
			SET d.topic = $topic,
				d.created_at = $created_at
		`
		_, err := tx.Run(ctx, docQuery, map[string]any{
			"id":         doc.DocumentID,
			"topic":      doc.Topic,
			"created_at": doc.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("merging document %s: %w", doc.DocumentID, err)
		}

		linkQuery := `
			MATCH (d:Document {id: $document_id})
			MATCH (e:Episode {id: $episode_id})
			MERGE (d)-[:DERIVED_FROM]->(e)
		`
		for _, episodeID := range doc.SourceEpisodeIDs {
			_, err := tx.Run(ctx, linkQuery, map[string]any{
				"document_id": doc.DocumentID,
				"episode_id":  episodeID,
			})
			if err != nil {
				return nil, fmt.Errorf("linking document %s to episode %s: %w", doc.DocumentID, episodeID, err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("linking document %s: %w", doc.DocumentID, err)
	}

	return nil
}

// traversalQueries maps template names to fixed Cypher. Only these run.
var traversalQueries = map[string]string{
	graph.TemplateEpisodesForEntity: `
		MATCH (e:Episode)-[:MENTIONS]->(n:Entity {name: $entity})
		RETURN e.id AS episode_id, e.session_id AS session_id, e.summary AS summary
		ORDER BY e.created_at DESC
		LIMIT $limit
	`,
	graph.TemplateEntitiesForEpisode: `
		MATCH (e:Episode {id: $episode_id})-[r:MENTIONS]->(n:Entity)
		RETURN n.name AS entity, r.relation AS relation
	`,
	graph.TemplateSessionTimeline: `
		MATCH (e:Episode {session_id: $session_id})
		RETURN e.id AS episode_id, e.summary AS summary, e.range_start AS range_start, e.range_end AS range_end
		ORDER BY e.range_start ASC
		LIMIT $limit
	`,
	graph.TemplateDocumentProvenance: `
		MATCH (d:Document {id: $document_id})-[:DERIVED_FROM]->(e:Episode)
		RETURN e.id AS episode_id, e.session_id AS session_id, e.summary AS summary
	`,
}

func (d *Driver) Traverse(ctx context.Context, template string, params map[string]any) ([]graph.Row, error) {
	query, ok := traversalQueries[template]
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrUnknownTemplate, template)
	}

	// Bound every limited template even when the caller omits a limit.
	if _, ok := params["limit"]; !ok {
		params["limit"] = 50
	}

	session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}

		var rows []graph.Row
		for res.Next(ctx) {
			record := res.Record()
			row := make(graph.Row, len(record.Keys))
			for _, key := range record.Keys {
				value, _ := record.Get(key)
				row[key] = value
			}
			rows = append(rows, row)
		}

		return rows, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("traversing %s: %w", template, err)
	}

	return result.([]graph.Row), nil
}

func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return &memory.BackendUnavailable{Backend: "neo4j", Err: err}
	}
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}
