package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// ReportRecord is the archived form of a final report.
type ReportRecord struct {
	bun.BaseModel `bun:"table:final_reports"`

	ID                string    `bun:"id,pk"`
	SessionID         string    `bun:"session_id,notnull"`
	ScamDetected      bool      `bun:"scam_detected,notnull"`
	TotalMessages     int       `bun:"total_messages,notnull"`
	EngagementSeconds int64     `bun:"engagement_seconds,notnull"`
	Intelligence      string    `bun:"intelligence,type:jsonb"`
	AgentNotes        string    `bun:"agent_notes"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// PostgresArchive persists delivered reports to Postgres. The archive is
// optional; when no database is configured the dispatcher runs without one.
type PostgresArchive struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPostgresArchive connects to Postgres and ensures the reports table
// exists.
func NewPostgresArchive(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresArchive, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := db.NewCreateTable().Model((*ReportRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create final_reports table: %w", err)
	}

	logger.Info("Report archive ready")
	return &PostgresArchive{db: db, logger: logger}, nil
}

// Archive stores one delivered report.
func (a *PostgresArchive) Archive(ctx context.Context, r FinalReport) error {
	intelligence, err := json.Marshal(r.ExtractedIntelligence)
	if err != nil {
		return fmt.Errorf("failed to serialize intelligence: %w", err)
	}

	record := &ReportRecord{
		ID:                uuid.New().String(),
		SessionID:         r.SessionID,
		ScamDetected:      r.ScamDetected,
		TotalMessages:     r.TotalMessagesExchanged,
		EngagementSeconds: r.EngagementDurationSeconds,
		Intelligence:      string(intelligence),
		AgentNotes:        r.AgentNotes,
		CreatedAt:         time.Now().UTC(),
	}

	if _, err := a.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive report for session %s: %w", r.SessionID, err)
	}
	return nil
}

// Close releases the database connection.
func (a *PostgresArchive) Close() error {
	return a.db.Close()
}
