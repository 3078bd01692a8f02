// Copyright (C) 2025 timevault.app <dev@timevault.app>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/timevaultapp/timevault/backend/models"
	"github.com/timevaultapp/timevault/backend/storage"
)

func (s *Store) CreateCapsule(ctx context.Context, capsule *models.Capsule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO capsules (id, user_id, title, content, type, unlock_date,
			is_locked, tags, mood, is_opened, reminder_sent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		capsule.ID, capsule.UserID, capsule.Title, capsule.Content,
		capsule.Type, capsule.UnlockDate, capsule.IsLocked,
		pq.Array(capsule.Tags), capsule.Mood, capsule.IsOpened,
		capsule.ReminderSent, capsule.CreatedAt)
	if err != nil {
		return mapErr(err)
	}

	for i, media := range capsule.MediaURLs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO capsule_media (capsule_id, position, url, media_type, storage_key)
			VALUES ($1, $2, $3, $4, $5)`,
			capsule.ID, i, media.URL, media.MediaType, media.StorageKey)
		if err != nil {
			return mapErr(err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetCapsule(ctx context.Context, id, userID string) (*models.Capsule, error) {
	capsule, err := s.scanCapsule(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, type, unlock_date, is_locked,
			tags, mood, is_opened, opened_at, reminder_sent, created_at
		FROM capsules WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, err
	}
	if err := s.loadMedia(ctx, capsule); err != nil {
		return nil, err
	}
	return capsule, nil
}

// GetCapsuleForShare skips the ownership filter: the caller already proved
// entitlement through a share's access code.
func (s *Store) GetCapsuleForShare(ctx context.Context, capsuleID string) (*models.Capsule, error) {
	capsule, err := s.scanCapsule(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, type, unlock_date, is_locked,
			tags, mood, is_opened, opened_at, reminder_sent, created_at
		FROM capsules WHERE id = $1`, capsuleID))
	if err != nil {
		return nil, err
	}
	if err := s.loadMedia(ctx, capsule); err != nil {
		return nil, err
	}
	return capsule, nil
}

func (s *Store) ListCapsules(ctx context.Context, userID, status string) ([]models.Capsule, error) {
	query := `
		SELECT id, user_id, title, '', type, unlock_date, is_locked,
			tags, mood, is_opened, opened_at, reminder_sent, created_at
		FROM capsules WHERE user_id = $1`
	args := []any{userID}

	switch status {
	case "locked":
		query += ` AND is_locked = TRUE`
	case "unlocked":
		query += ` AND is_locked = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var capsules []models.Capsule
	for rows.Next() {
		capsule, err := s.scanCapsule(rows)
		if err != nil {
			return nil, err
		}
		capsules = append(capsules, *capsule)
	}
	return capsules, rows.Err()
}

func (s *Store) DeleteCapsule(ctx context.Context, id, userID string) (*models.Capsule, error) {
	capsule, err := s.GetCapsule(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	// capsule_media and shares go with it via ON DELETE CASCADE
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM capsules WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}
	return capsule, nil
}

func (s *Store) MarkCapsuleOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	// Guarded by the flag, not a timestamp comparison: only the first call
	// writes opened_at, repeats affect zero rows.
	res, err := s.db.ExecContext(ctx, `
		UPDATE capsules SET is_opened = TRUE, opened_at = $2
		WHERE id = $1 AND is_opened = FALSE`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) MarkCapsuleUnlocked(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE capsules SET is_locked = FALSE
		WHERE id = $1 AND is_locked = TRUE`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) CapsulesDueForUnlock(ctx context.Context, now time.Time) ([]storage.UnlockDue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.title, c.unlock_date, c.created_at,
			u.name, u.email
		FROM capsules c
		JOIN users u ON u.id = c.user_id
		WHERE c.unlock_date <= $1 AND c.is_locked = TRUE
		ORDER BY c.unlock_date`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []storage.UnlockDue
	for rows.Next() {
		var d storage.UnlockDue
		d.Capsule.IsLocked = true
		err := rows.Scan(&d.Capsule.ID, &d.Capsule.UserID, &d.Capsule.Title,
			&d.Capsule.UnlockDate, &d.Capsule.CreatedAt, &d.OwnerName, &d.OwnerEmail)
		if err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (s *Store) DashboardStats(ctx context.Context, userID string) (*storage.DashboardStats, error) {
	stats := &storage.DashboardStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_locked),
			COUNT(*) FILTER (WHERE NOT is_locked),
			COUNT(*) FILTER (WHERE is_opened)
		FROM capsules WHERE user_id = $1`, userID).Scan(
		&stats.TotalCapsules, &stats.LockedCapsules,
		&stats.UnlockedCapsules, &stats.OpenedCapsules)
	if err != nil {
		return nil, err
	}

	next := &storage.UpcomingEntry{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, title, unlock_date FROM capsules
		WHERE user_id = $1 AND is_locked = TRUE
		ORDER BY unlock_date LIMIT 1`, userID).Scan(
		&next.ID, &next.Title, &next.UnlockDate)
	switch {
	case err == sql.ErrNoRows:
		// no locked capsules left
	case err != nil:
		return nil, err
	default:
		stats.NextCapsule = next
	}

	return stats, nil
}

func (s *Store) MoodTimeline(ctx context.Context, userID string) ([]storage.MoodPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, mood, is_opened FROM capsules
		WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []storage.MoodPoint
	for rows.Next() {
		var p storage.MoodPoint
		if err := rows.Scan(&p.Date, &p.Mood, &p.IsOpened); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanCapsule(row rowScanner) (*models.Capsule, error) {
	capsule := &models.Capsule{}
	var openedAt sql.NullTime
	err := row.Scan(&capsule.ID, &capsule.UserID, &capsule.Title,
		&capsule.Content, &capsule.Type, &capsule.UnlockDate,
		&capsule.IsLocked, pq.Array(&capsule.Tags), &capsule.Mood,
		&capsule.IsOpened, &openedAt, &capsule.ReminderSent, &capsule.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if openedAt.Valid {
		capsule.OpenedAt = &openedAt.Time
	}
	return capsule, nil
}

func (s *Store) loadMedia(ctx context.Context, capsule *models.Capsule) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, media_type, storage_key FROM capsule_media
		WHERE capsule_id = $1 ORDER BY position`, capsule.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m models.CapsuleMedia
		if err := rows.Scan(&m.URL, &m.MediaType, &m.StorageKey); err != nil {
			return err
		}
		capsule.MediaURLs = append(capsule.MediaURLs, m)
	}
	return rows.Err()
}
