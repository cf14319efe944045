// Package workspace implements the shared, version-guarded scratchpad
// for multi-agent collaboration. A workspace is one JSON object per
// session guarded by a monotonically increasing version; updates are
// compare-and-swap only, so two agents can never silently clobber each
// other. On conflict the caller re-reads and retries; the manager never
// retries on its own.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/strata/pkg/cache"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/telemetry"
)

// DefaultTTL is how long an untouched workspace survives.
const DefaultTTL = 7 * 24 * time.Hour

// VersionAny lets an update apply regardless of the current version.
// Only for callers that genuinely cannot conflict, such as one-time
// initialization.
const VersionAny = cache.VersionAny

// Config holds workspace retention tuning.
type Config struct {
	TTL time.Duration
}

// Manager reads and updates session workspaces.
type Manager struct {
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
	events *telemetry.Emitter
}

// New creates the manager. A zero TTL falls back to DefaultTTL.
func New(store cache.Store, c Config, logger *slog.Logger, events *telemetry.Emitter) *Manager {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}

	return &Manager{
		store:  store,
		ttl:    c.TTL,
		logger: logger,
		events: events,
	}
}

func workspaceKey(sessionID string) string {
	return "strata:session:" + sessionID + ":workspace"
}

// Get returns the session workspace. A session with no workspace yet
// gets an empty one at version 0.
func (m *Manager) Get(ctx context.Context, sessionID string) (*memory.Workspace, error) {
	// Version and data must come from the same read, or a concurrent
	// CAS between two field reads would hand back a torn pair.
	fields, err := m.store.HashGetAll(ctx, workspaceKey(sessionID))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return &memory.Workspace{SessionID: sessionID, Data: map[string]any{}, Version: 0}, nil
		}
		return nil, fmt.Errorf("reading workspace for %s: %w", sessionID, err)
	}

	var version int64
	if _, err := fmt.Sscanf(fields["version"], "%d", &version); err != nil {
		return nil, fmt.Errorf("corrupt workspace version for %s: %w", sessionID, err)
	}

	data := map[string]any{}
	if raw := fields["data"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("decoding workspace data for %s: %w", sessionID, err)
		}
	}

	return &memory.Workspace{SessionID: sessionID, Data: data, Version: version}, nil
}

// Update replaces the workspace data iff expectedVersion matches the
// current version. Returns the workspace at its new version, or
// memory.ErrVersionConflict when the expectation was stale.
func (m *Manager) Update(ctx context.Context, sessionID string, data map[string]any, expectedVersion int64) (*memory.Workspace, error) {
	if data == nil {
		data = map[string]any{}
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding workspace data for %s: %w", sessionID, err)
	}

	result, err := m.store.CompareAndSwap(ctx, workspaceKey(sessionID), expectedVersion, string(body), m.ttl)
	if err != nil {
		if errors.Is(err, memory.ErrVersionConflict) {
			m.logger.Debug("workspace version conflict",
				"session_id", sessionID,
				"expected_version", expectedVersion,
			)
			m.events.Emit(telemetry.NewEvent(telemetry.EventWorkspaceConflict, sessionID, map[string]any{
				"expected_version": expectedVersion,
			}))
			return nil, err
		}
		return nil, fmt.Errorf("updating workspace for %s: %w", sessionID, err)
	}

	m.events.Emit(telemetry.NewEvent(telemetry.EventWorkspaceUpdated, sessionID, map[string]any{
		"version": result.Version,
	}))

	return &memory.Workspace{SessionID: sessionID, Data: data, Version: result.Version}, nil
}

// HealthCheck verifies the cache backend is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return &memory.BackendUnavailable{Backend: "cache", Err: err}
	}
	return nil
}
