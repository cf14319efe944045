// Package inmemory implements facts.Driver with maps for tests and local
// runs, mirroring the relational backend's uniqueness guards.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/strata/pkg/facts"
	"github.com/papercomputeco/strata/pkg/memory"
)

type sourceKey struct {
	sessionID string
	turnID    string
}

// Driver is an in-process facts.Driver.
type Driver struct {
	mu      sync.RWMutex
	facts   map[string]memory.Fact
	sources map[sourceKey]string // -> fact ID
}

// NewDriver creates an empty in-memory fact store.
func NewDriver() *Driver {
	return &Driver{
		facts:   make(map[string]memory.Fact),
		sources: make(map[sourceKey]string),
	}
}

func (d *Driver) Store(_ context.Context, fact *memory.Fact) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.facts[fact.FactID]; exists {
		return "", memory.ErrDuplicateFact
	}
	for _, turnID := range fact.SourceTurnIDs {
		if _, exists := d.sources[sourceKey{fact.SessionID, turnID}]; exists {
			return "", memory.ErrDuplicateFact
		}
	}

	d.facts[fact.FactID] = *fact
	for _, turnID := range fact.SourceTurnIDs {
		d.sources[sourceKey{fact.SessionID, turnID}] = fact.FactID
	}

	return fact.FactID, nil
}

func (d *Driver) Query(_ context.Context, sessionID string, q facts.Query) ([]memory.Fact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []memory.Fact
	for _, fact := range d.facts {
		if fact.SessionID != sessionID {
			continue
		}
		if q.MinScore > 0 && fact.Score.Composite < q.MinScore {
			continue
		}
		if !q.IncludeConsolidated && fact.EpisodeID != "" {
			continue
		}
		out = append(out, fact)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score.Composite != out[j].Score.Composite {
			return out[i].Score.Composite > out[j].Score.Composite
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

func (d *Driver) Unconsolidated(_ context.Context, sessionID string, since, until time.Time) ([]memory.Fact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []memory.Fact
	for _, fact := range d.facts {
		if fact.SessionID != sessionID || fact.EpisodeID != "" {
			continue
		}
		if fact.CreatedAt.Before(since) || !fact.CreatedAt.Before(until) {
			continue
		}
		out = append(out, fact)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (d *Driver) MarkConsolidated(_ context.Context, factIDs []string, episodeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range factIDs {
		fact, ok := d.facts[id]
		if !ok || fact.EpisodeID != "" {
			continue
		}
		fact.EpisodeID = episodeID
		d.facts[id] = fact
	}

	return nil
}

func (d *Driver) TouchAccessed(_ context.Context, factIDs []string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range factIDs {
		fact, ok := d.facts[id]
		if !ok {
			continue
		}
		touched := at
		fact.LastAccessed = &touched
		d.facts[id] = fact
	}

	return nil
}

func (d *Driver) HasSourceTurn(_ context.Context, sessionID, turnID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.sources[sourceKey{sessionID, turnID}]
	return ok, nil
}

func (d *Driver) HealthCheck(_ context.Context) error { return nil }

func (d *Driver) Close() error { return nil }
