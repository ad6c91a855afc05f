package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/config"
	"github.com/spec-kit/modmail-service/internal/domain"
)

// Postgres wraps access to a pgx connection pool. It serves as an optional
// mirror of the closed-ticket archive; the JSON history store remains the
// source of truth.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool when DSN is provided.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; skipping archive mirror")
		return &Postgres{Pool: nil}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres archive mirror")
	return &Postgres{Pool: pool}, nil
}

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// Enabled reports whether a pool is configured.
func (p *Postgres) Enabled() bool {
	return p != nil && p.Pool != nil
}

// InsertRecord mirrors one closed-ticket record into the archive table.
func (p *Postgres) InsertRecord(ctx context.Context, record *domain.HistoryRecord) error {
	if !p.Enabled() {
		return nil
	}
	messages, err := json.Marshal(record.Messages)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_archive (ticket_id, numeric_id, guild_id, user_id, user_tag,
            assigned_to, category, priority, tags, close_reason, created_at, closed_at,
            first_response_at, message_count, staff_message_count, user_message_count, messages)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        ON CONFLICT (ticket_id) DO NOTHING`
	_, err = p.Pool.Exec(ctx, query,
		record.ID,
		record.NumericID,
		record.GuildID,
		record.UserID,
		record.UserTag,
		nullable(record.AssignedTo),
		nullable(record.Category),
		string(record.Priority),
		record.Tags,
		nullable(record.CloseReason),
		record.CreatedAt,
		record.ClosedAt,
		record.FirstResponseTime,
		record.MessageCount,
		record.StaffMessageCount,
		record.UserMessageCount,
		messages,
	)
	return err
}

// UpdateRating mirrors a late-arriving satisfaction patch.
func (p *Postgres) UpdateRating(ctx context.Context, ticketID string, rating int, feedback string) error {
	if !p.Enabled() {
		return nil
	}
	const query = `
        UPDATE ticket_archive SET satisfaction_rating=$1, satisfaction_feedback=$2
        WHERE ticket_id=$3`
	_, err := p.Pool.Exec(ctx, query, rating, nullable(feedback), ticketID)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
