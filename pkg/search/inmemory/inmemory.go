// Package inmemory implements search.Driver with token-overlap scoring.
// Good enough for tests and single-node use; no stemming or ranking
// beyond term frequency.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/search"
)

// Driver implements search.Driver in memory.
type Driver struct {
	mu   sync.RWMutex
	docs map[string]memory.KnowledgeDocument
	// order records insertion order so Latest can break created_at ties.
	order []string
}

// NewDriver returns an empty in-memory search index.
func NewDriver() *Driver {
	return &Driver{docs: make(map[string]memory.KnowledgeDocument)}
}

func (d *Driver) Index(_ context.Context, doc *memory.KnowledgeDocument) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.docs[doc.DocumentID]; !ok {
		d.order = append(d.order, doc.DocumentID)
	}
	d.docs[doc.DocumentID] = *doc

	return nil
}

func (d *Driver) Get(_ context.Context, documentID string) (*memory.KnowledgeDocument, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, memory.ErrNotFound)
	}

	return &doc, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// score counts query tokens present in the body, normalized by query
// length.
func score(queryTokens []string, body string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	bodyTokens := make(map[string]struct{})
	for _, t := range tokenize(body) {
		bodyTokens[t] = struct{}{}
	}

	matched := 0
	for _, t := range queryTokens {
		if _, ok := bodyTokens[t]; ok {
			matched++
		}
	}

	return float64(matched) / float64(len(queryTokens))
}

func (d *Driver) Search(_ context.Context, query, topic string, limit int) ([]search.Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	queryTokens := tokenize(query)

	var hits []search.Hit
	for _, id := range d.order {
		doc := d.docs[id]
		if doc.SupersededBy != "" {
			continue
		}
		if topic != "" && doc.Topic != topic {
			continue
		}
		s := score(queryTokens, doc.Body)
		if s == 0 {
			continue
		}
		hits = append(hits, search.Hit{Document: doc, Score: s})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

func (d *Driver) Latest(_ context.Context, topic string) (*memory.KnowledgeDocument, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var latest *memory.KnowledgeDocument
	for _, id := range d.order {
		doc := d.docs[id]
		if doc.Topic != topic || doc.SupersededBy != "" {
			continue
		}
		if latest == nil || doc.CreatedAt.After(latest.CreatedAt) || doc.CreatedAt.Equal(latest.CreatedAt) {
			copied := doc
			latest = &copied
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("topic %q: %w", topic, memory.ErrNotFound)
	}

	return latest, nil
}

func (d *Driver) MarkSuperseded(_ context.Context, documentID, supersededBy string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.docs[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, memory.ErrNotFound)
	}

	doc.SupersededBy = supersededBy
	d.docs[documentID] = doc

	return nil
}

func (d *Driver) HealthCheck(_ context.Context) error {
	return nil
}

func (d *Driver) Close() error {
	return nil
}
