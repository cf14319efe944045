// Package gormstore implements the facts.Driver on a relational database
// through gorm. SQLite serves single-node deployments; Postgres serves
// shared ones. The (session_id, turn_id) unique index on fact_sources is
// the idempotency guard that makes promotion safe to re-run.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/papercomputeco/strata/pkg/facts"
	"github.com/papercomputeco/strata/pkg/memory"
)

// Dialect names accepted by Config.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Config holds relational store settings.
type Config struct {
	// Dialect is "sqlite" or "postgres".
	Dialect string

	// DSN is the database path (sqlite) or connection string (postgres).
	DSN string
}

// factRecord is the facts table row.
type factRecord struct {
	FactID        string `gorm:"primaryKey;size:64"`
	SessionID     string `gorm:"index:idx_facts_session;size:128;not null"`
	Content       string `gorm:"not null"`
	Certainty     float64
	Impact        float64
	Actionability float64
	Relevance     float64
	Composite     float64 `gorm:"index:idx_facts_score"`
	Justification string
	SourceTurns   string `gorm:"not null"` // JSON array of turn IDs
	EpisodeID     string `gorm:"index:idx_facts_episode;size:64"`
	CreatedAt     time.Time
	LastAccessed  *time.Time
}

func (factRecord) TableName() string { return "facts" }

// sourceRecord indexes every (session, turn) pair a fact derives from.
// The unique composite index prevents re-promotion of the same turn.
type sourceRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"uniqueIndex:idx_sources_session_turn;size:128;not null"`
	TurnID    string `gorm:"uniqueIndex:idx_sources_session_turn;size:64;not null"`
	FactID    string `gorm:"index;size:64;not null"`
}

func (sourceRecord) TableName() string { return "fact_sources" }

// Store implements facts.Driver.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore opens the database and migrates the schema.
func NewStore(c Config, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch c.Dialect {
	case DialectSQLite, "":
		if c.DSN == "" {
			return nil, fmt.Errorf("sqlite fact store requires a database path")
		}
		dialector = sqlite.Open(c.DSN)
	case DialectPostgres:
		dialector = postgres.Open(c.DSN)
	default:
		return nil, fmt.Errorf("unknown fact store dialect %q", c.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening fact store: %w", err)
	}

	if err := db.AutoMigrate(&factRecord{}, &sourceRecord{}); err != nil {
		return nil, fmt.Errorf("migrating fact store: %w", err)
	}

	logger.Debug("fact store opened", "dialect", c.Dialect)

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Store(ctx context.Context, fact *memory.Fact) (string, error) {
	if fact.FactID == "" {
		return "", fmt.Errorf("fact has no fact_id")
	}
	if len(fact.SourceTurnIDs) == 0 {
		return "", fmt.Errorf("fact %s has no source turns", fact.FactID)
	}

	sources, err := json.Marshal(fact.SourceTurnIDs)
	if err != nil {
		return "", fmt.Errorf("marshaling source turns: %w", err)
	}

	record := factRecord{
		FactID:        fact.FactID,
		SessionID:     fact.SessionID,
		Content:       fact.Content,
		Certainty:     fact.Score.Certainty,
		Impact:        fact.Score.Impact,
		Actionability: fact.Score.Actionability,
		Relevance:     fact.Score.Relevance,
		Composite:     fact.Score.Composite,
		Justification: fact.Justification,
		SourceTurns:   string(sources),
		EpisodeID:     fact.EpisodeID,
		CreatedAt:     fact.CreatedAt,
		LastAccessed:  fact.LastAccessed,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		for _, turnID := range fact.SourceTurnIDs {
			src := sourceRecord{
				SessionID: fact.SessionID,
				TurnID:    turnID,
				FactID:    fact.FactID,
			}
			if err := tx.Create(&src).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return "", memory.ErrDuplicateFact
		}
		return "", fmt.Errorf("storing fact %s: %w", fact.FactID, err)
	}

	return fact.FactID, nil
}

func (s *Store) Query(ctx context.Context, sessionID string, q facts.Query) ([]memory.Fact, error) {
	tx := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("composite DESC, created_at ASC")

	if q.MinScore > 0 {
		tx = tx.Where("composite >= ?", q.MinScore)
	}
	if !q.IncludeConsolidated {
		tx = tx.Where("episode_id = ''")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var records []factRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("querying facts for %s: %w", sessionID, err)
	}

	return toFacts(records)
}

func (s *Store) Unconsolidated(ctx context.Context, sessionID string, since, until time.Time) ([]memory.Fact, error) {
	var records []factRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND episode_id = '' AND created_at >= ? AND created_at < ?", sessionID, since, until).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("querying unconsolidated facts for %s: %w", sessionID, err)
	}

	return toFacts(records)
}

func (s *Store) MarkConsolidated(ctx context.Context, factIDs []string, episodeID string) error {
	if len(factIDs) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Model(&factRecord{}).
		Where("fact_id IN ? AND episode_id = ''", factIDs).
		Update("episode_id", episodeID).Error
	if err != nil {
		return fmt.Errorf("marking facts consolidated into %s: %w", episodeID, err)
	}

	return nil
}

func (s *Store) TouchAccessed(ctx context.Context, factIDs []string, at time.Time) error {
	if len(factIDs) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Model(&factRecord{}).
		Where("fact_id IN ?", factIDs).
		Update("last_accessed", at).Error
	if err != nil {
		return fmt.Errorf("touching facts: %w", err)
	}

	return nil
}

func (s *Store) HasSourceTurn(ctx context.Context, sessionID, turnID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&sourceRecord{}).
		Where("session_id = ? AND turn_id = ?", sessionID, turnID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking source turn %s: %w", turnID, err)
	}

	return count > 0, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &memory.BackendUnavailable{Backend: "facts", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &memory.BackendUnavailable{Backend: "facts", Err: err}
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toFacts(records []factRecord) ([]memory.Fact, error) {
	out := make([]memory.Fact, 0, len(records))
	for _, r := range records {
		var sources []string
		if err := json.Unmarshal([]byte(r.SourceTurns), &sources); err != nil {
			return nil, fmt.Errorf("decoding source turns for %s: %w", r.FactID, err)
		}

		out = append(out, memory.Fact{
			FactID:    r.FactID,
			SessionID: r.SessionID,
			Content:   r.Content,
			Score: memory.CIARScore{
				Certainty:     r.Certainty,
				Impact:        r.Impact,
				Actionability: r.Actionability,
				Relevance:     r.Relevance,
				Composite:     r.Composite,
			},
			Justification: r.Justification,
			SourceTurnIDs: sources,
			EpisodeID:     r.EpisodeID,
			CreatedAt:     r.CreatedAt,
			LastAccessed:  r.LastAccessed,
		})
	}

	return out, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique failed")
}
