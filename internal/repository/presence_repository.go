package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// PresenceRepository stores liveness rows in active_users, one per session.
type PresenceRepository struct {
	db *sqlx.DB
}

// NewPresenceRepository constructs the repository.
func NewPresenceRepository(db *sqlx.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// Upsert inserts or refreshes the row for record.SessionID.
func (r *PresenceRepository) Upsert(ctx context.Context, record *models.PresenceRecord) error {
	const query = `INSERT INTO active_users (session_id, page_name, last_seen_at, updated_at, user_agent)
VALUES (:session_id, :page_name, :last_seen_at, :updated_at, :user_agent)
ON CONFLICT (session_id) DO UPDATE SET page_name = EXCLUDED.page_name, last_seen_at = EXCLUDED.last_seen_at,
updated_at = EXCLUDED.updated_at, user_agent = EXCLUDED.user_agent`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

// Delete removes the row for sessionID and reports whether one existed.
func (r *PresenceRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM active_users WHERE session_id = $1", sessionID)
	if err != nil {
		return false, fmt.Errorf("delete presence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete presence rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteStale removes rows whose updated_at is strictly before cutoff.
func (r *PresenceRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM active_users WHERE updated_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune presence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune presence rows: %w", err)
	}
	return affected, nil
}

// CountByPage returns the number of rows for page.
func (r *PresenceRepository) CountByPage(ctx context.Context, page string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM active_users WHERE page_name = $1", page); err != nil {
		return 0, fmt.Errorf("count presence: %w", err)
	}
	return total, nil
}

// CountGrouped returns row counts keyed by page name.
func (r *PresenceRepository) CountGrouped(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		PageName string `db:"page_name"`
		Total    int    `db:"total"`
	}
	const query = `SELECT page_name, COUNT(*) AS total FROM active_users GROUP BY page_name`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count presence by page: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.PageName] = row.Total
	}
	return counts, nil
}
