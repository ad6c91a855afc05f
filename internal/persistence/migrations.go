package persistence

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS ticket_archive (
    ticket_id             TEXT PRIMARY KEY,
    numeric_id            TEXT NOT NULL,
    guild_id              TEXT NOT NULL,
    user_id               TEXT NOT NULL,
    user_tag              TEXT,
    assigned_to           TEXT,
    category              TEXT,
    priority              TEXT,
    tags                  TEXT[],
    close_reason          TEXT,
    created_at            TIMESTAMPTZ NOT NULL,
    closed_at             TIMESTAMPTZ NOT NULL,
    first_response_at     TIMESTAMPTZ,
    message_count         INT NOT NULL DEFAULT 0,
    staff_message_count   INT NOT NULL DEFAULT 0,
    user_message_count    INT NOT NULL DEFAULT 0,
    satisfaction_rating   INT,
    satisfaction_feedback TEXT,
    messages              JSONB
);
CREATE INDEX IF NOT EXISTS idx_ticket_archive_guild ON ticket_archive (guild_id, created_at);
CREATE INDEX IF NOT EXISTS idx_ticket_archive_user ON ticket_archive (user_id);
`

// RunMigrations creates the archive-mirror schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}
	if _, err := pool.Exec(ctx, archiveSchema); err != nil {
		return err
	}
	logger.Info("archive mirror schema ready")
	return nil
}
