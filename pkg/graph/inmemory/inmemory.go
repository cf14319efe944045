// Package inmemory implements graph.Driver on in-process maps. It backs
// tests and single-node deployments where a Neo4j server is overkill.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/papercomputeco/strata/pkg/graph"
	"github.com/papercomputeco/strata/pkg/memory"
)

type episodeNode struct {
	episode memory.Episode
	// entities maps entity name to the mention relation.
	entities map[string]memory.Relation
}

type documentNode struct {
	doc memory.KnowledgeDocument
}

// Driver implements graph.Driver in memory.
type Driver struct {
	mu        sync.RWMutex
	episodes  map[string]*episodeNode
	documents map[string]*documentNode
	// order records episode insertion order for stable traversal output.
	order []string
}

// NewDriver returns an empty in-memory graph.
func NewDriver() *Driver {
	return &Driver{
		episodes:  make(map[string]*episodeNode),
		documents: make(map[string]*documentNode),
	}
}

func (d *Driver) UpsertEpisode(_ context.Context, episode *memory.Episode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, ok := d.episodes[episode.EpisodeID]
	if !ok {
		node = &episodeNode{entities: make(map[string]memory.Relation)}
		d.order = append(d.order, episode.EpisodeID)
		d.episodes[episode.EpisodeID] = node
	}

	node.episode = *episode
	for _, edge := range episode.EntityEdges {
		node.entities[edge.Source] = edge.Relation
		if edge.Relation == memory.RelationCausal && edge.Target != "" {
			node.entities[edge.Target] = edge.Relation
		}
	}

	return nil
}

func (d *Driver) LinkDocument(_ context.Context, doc *memory.KnowledgeDocument) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.documents[doc.DocumentID] = &documentNode{doc: *doc}
	return nil
}

func (d *Driver) Traverse(_ context.Context, template string, params map[string]any) ([]graph.Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	limit := 50
	if v, ok := params["limit"].(int); ok && v > 0 {
		limit = v
	}

	switch template {
	case graph.TemplateEpisodesForEntity:
		entity, _ := params["entity"].(string)
		var rows []graph.Row
		for _, id := range d.order {
			node := d.episodes[id]
			if _, ok := node.entities[entity]; !ok {
				continue
			}
			rows = append(rows, graph.Row{
				"episode_id": node.episode.EpisodeID,
				"session_id": node.episode.SessionID,
				"summary":    node.episode.Summary,
			})
		}
		// Most recent first, matching the server-backed driver.
		sort.SliceStable(rows, func(i, j int) bool {
			a := d.episodes[rows[i]["episode_id"].(string)].episode.CreatedAt
			b := d.episodes[rows[j]["episode_id"].(string)].episode.CreatedAt
			return a.After(b)
		})
		if len(rows) > limit {
			rows = rows[:limit]
		}
		return rows, nil

	case graph.TemplateEntitiesForEpisode:
		episodeID, _ := params["episode_id"].(string)
		node, ok := d.episodes[episodeID]
		if !ok {
			return nil, nil
		}
		names := make([]string, 0, len(node.entities))
		for name := range node.entities {
			names = append(names, name)
		}
		sort.Strings(names)
		rows := make([]graph.Row, 0, len(names))
		for _, name := range names {
			rows = append(rows, graph.Row{
				"entity":   name,
				"relation": string(node.entities[name]),
			})
		}
		return rows, nil

	case graph.TemplateSessionTimeline:
		sessionID, _ := params["session_id"].(string)
		var nodes []*episodeNode
		for _, id := range d.order {
			node := d.episodes[id]
			if node.episode.SessionID == sessionID {
				nodes = append(nodes, node)
			}
		}
		sort.SliceStable(nodes, func(i, j int) bool {
			return nodes[i].episode.TimeRange.Start.Before(nodes[j].episode.TimeRange.Start)
		})
		if len(nodes) > limit {
			nodes = nodes[:limit]
		}
		rows := make([]graph.Row, 0, len(nodes))
		for _, node := range nodes {
			rows = append(rows, graph.Row{
				"episode_id":  node.episode.EpisodeID,
				"summary":     node.episode.Summary,
				"range_start": node.episode.TimeRange.Start,
				"range_end":   node.episode.TimeRange.End,
			})
		}
		return rows, nil

	case graph.TemplateDocumentProvenance:
		documentID, _ := params["document_id"].(string)
		node, ok := d.documents[documentID]
		if !ok {
			return nil, nil
		}
		var rows []graph.Row
		for _, episodeID := range node.doc.SourceEpisodeIDs {
			ep, ok := d.episodes[episodeID]
			if !ok {
				continue
			}
			rows = append(rows, graph.Row{
				"episode_id": ep.episode.EpisodeID,
				"session_id": ep.episode.SessionID,
				"summary":    ep.episode.Summary,
			})
		}
		return rows, nil

	default:
		return nil, fmt.Errorf("%w: %s", graph.ErrUnknownTemplate, template)
	}
}

func (d *Driver) HealthCheck(_ context.Context) error {
	return nil
}

func (d *Driver) Close(_ context.Context) error {
	return nil
}
