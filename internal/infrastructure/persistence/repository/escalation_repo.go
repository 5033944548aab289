package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/workflow"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
)

// EscalationRepository implements port.EscalationRepository.
// The mark row per version is the idempotency guard of the scheduler and
// escalation_records is the delivery outbox.
type EscalationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEscalationRepository creates a new escalation repository
func NewEscalationRepository(db *sql.DB, logger *zap.Logger) port.EscalationRepository {
	return &EscalationRepository{
		db:     db,
		logger: logger,
	}
}

// LastNotified returns the highest notified threshold in days, or
// entity.NoEscalationMark when the version has no mark
func (r *EscalationRepository) LastNotified(ctx context.Context, versionID string) (int, error) {
	var days int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT last_days_after FROM escalation_marks WHERE version_id = ?`, versionID,
	).Scan(&days)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.NoEscalationMark, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get escalation mark: %w", err)
	}
	return days, nil
}

// AdvanceMark moves the mark with a conditional write. An expected value
// below zero inserts the first mark.
func (r *EscalationRepository) AdvanceMark(ctx context.Context, versionID string, expected, next int, at time.Time) error {
	exec := sqlite.Conn(ctx, r.db)

	var (
		result sql.Result
		err    error
	)
	if expected < 0 {
		result, err = exec.ExecContext(ctx, `
			INSERT INTO escalation_marks (version_id, last_days_after, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(version_id) DO NOTHING
		`, versionID, next, at.UTC())
	} else {
		result, err = exec.ExecContext(ctx, `
			UPDATE escalation_marks SET last_days_after = ?, updated_at = ?
			WHERE version_id = ? AND last_days_after = ?
		`, next, at.UTC(), versionID, expected)
	}
	if err != nil {
		r.logger.Error("Failed to advance escalation mark", zap.String("version_id", versionID), zap.Error(err))
		return fmt.Errorf("failed to advance escalation mark: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("escalation mark of %s moved from %d: %w", versionID, expected, workflow.ErrStaleState)
	}
	return nil
}

// Create inserts an outbox record. UNIQUE(version_id, days_after, level) refuses a second insert.
func (r *EscalationRepository) Create(ctx context.Context, rec *entity.EscalationRecord) error {
	users, err := json.Marshal(nonNil(rec.NotifyUsers))
	if err != nil {
		return fmt.Errorf("failed to encode notify users: %w", err)
	}

	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO escalation_records (
			id, version_id, document_id, project_id, level, days_after, notify_role,
			notify_users, triggered_at, status, attempts, last_error, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.VersionID,
		rec.DocumentID,
		rec.ProjectID,
		rec.Level,
		rec.DaysAfter,
		string(rec.NotifyRole),
		string(users),
		rec.TriggeredAt.UTC(),
		rec.Status,
		rec.Attempts,
		rec.LastError,
		nullTime(rec.SentAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("escalation level %d (day %d) of %s: %w", rec.Level, rec.DaysAfter, rec.VersionID, workflow.ErrStaleState)
		}
		r.logger.Error("Failed to create escalation record", zap.String("version_id", rec.VersionID), zap.Error(err))
		return fmt.Errorf("failed to create escalation record: %w", err)
	}
	return nil
}

const escalationColumns = `id, version_id, document_id, project_id, level, days_after, notify_role,
	notify_users, triggered_at, status, attempts, last_error, sent_at`

func (r *EscalationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.EscalationRecord, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation records: %w", err)
	}
	defer rows.Close()

	var records []*entity.EscalationRecord
	for rows.Next() {
		var rec entity.EscalationRecord
		var role, users string
		var sentAt sql.NullTime
		err := rows.Scan(
			&rec.ID,
			&rec.VersionID,
			&rec.DocumentID,
			&rec.ProjectID,
			&rec.Level,
			&rec.DaysAfter,
			&role,
			&users,
			&rec.TriggeredAt,
			&rec.Status,
			&rec.Attempts,
			&rec.LastError,
			&sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation record: %w", err)
		}
		rec.NotifyRole = entity.RoleCode(role)
		if err := json.Unmarshal([]byte(users), &rec.NotifyUsers); err != nil {
			return nil, fmt.Errorf("failed to decode notify users of %s: %w", rec.ID, err)
		}
		rec.TriggeredAt = rec.TriggeredAt.UTC()
		rec.SentAt = timePtr(sentAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// ListPending returns undelivered records below the attempt limit, oldest first
func (r *EscalationRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]*entity.EscalationRecord, error) {
	return r.list(ctx, `SELECT `+escalationColumns+` FROM escalation_records
		WHERE status NOT IN (?, ?) AND attempts < ?
		ORDER BY triggered_at, level
		LIMIT ?`, entity.EscalationSent, entity.EscalationSkipped, maxAttempts, limit)
}

// ListByVersion returns the records of a version by level
func (r *EscalationRepository) ListByVersion(ctx context.Context, versionID string) ([]*entity.EscalationRecord, error) {
	return r.list(ctx, `SELECT `+escalationColumns+` FROM escalation_records
		WHERE version_id = ? ORDER BY level`, versionID)
}

// MarkSent records a successful delivery
func (r *EscalationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE escalation_records
		SET status = ?, attempts = attempts + 1, last_error = '', sent_at = ?
		WHERE id = ?
	`, entity.EscalationSent, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark escalation sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery round
func (r *EscalationRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE escalation_records
		SET status = ?, attempts = attempts + 1, last_error = ?
		WHERE id = ?
	`, entity.EscalationFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark escalation failed: %w", err)
	}
	return nil
}

// MarkSkipped closes a record without delivering it
func (r *EscalationRepository) MarkSkipped(ctx context.Context, id string, reason string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		UPDATE escalation_records SET status = ?, last_error = ?
		WHERE id = ? AND status != ?
	`, entity.EscalationSkipped, reason, id, entity.EscalationSent)
	if err != nil {
		return fmt.Errorf("failed to mark escalation skipped: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ port.EscalationRepository = (*EscalationRepository)(nil)
