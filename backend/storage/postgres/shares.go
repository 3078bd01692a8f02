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

	"github.com/timevaultapp/timevault/backend/models"
	"github.com/timevaultapp/timevault/backend/storage"
)

const shareColumns = `id, capsule_id, sender_id, recipient_email,
	recipient_user_id, message, delivery_date, is_delivered, delivered_at,
	access_code, is_opened, opened_at, require_password, password_hash,
	require_milestone, milestone_description, milestone_completed, created_at`

func (s *Store) CreateShare(ctx context.Context, share *models.Share) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (`+shareColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18)`,
		share.ID, share.CapsuleID, share.SenderID, share.RecipientEmail,
		share.RecipientUserID, share.Message, share.DeliveryDate,
		share.IsDelivered, share.DeliveredAt, share.AccessCode,
		share.IsOpened, share.OpenedAt, share.Rules.RequirePassword,
		share.Rules.PasswordHash, share.Rules.RequireMilestone,
		share.Rules.MilestoneDescription, share.Rules.IsMilestoneCompleted,
		share.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetShareByAccessCode(ctx context.Context, code string) (*models.Share, error) {
	return scanShare(s.db.QueryRowContext(ctx, `
		SELECT `+shareColumns+` FROM shares WHERE access_code = $1`, code))
}

func (s *Store) ListSharesBySender(ctx context.Context, senderID string) ([]storage.SentShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.capsule_id, s.sender_id, s.recipient_email,
			s.recipient_user_id, s.message, s.delivery_date, s.is_delivered,
			s.delivered_at, s.access_code, s.is_opened, s.opened_at,
			s.require_password, s.password_hash, s.require_milestone,
			s.milestone_description, s.milestone_completed, s.created_at,
			c.title, c.type
		FROM shares s
		JOIN capsules c ON c.id = s.capsule_id
		WHERE s.sender_id = $1
		ORDER BY s.created_at DESC`, senderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sent []storage.SentShare
	for rows.Next() {
		var item storage.SentShare
		share, err := scanShareInto(rows, &item.CapsuleTitle, &item.CapsuleType)
		if err != nil {
			return nil, err
		}
		item.Share = *share
		sent = append(sent, item)
	}
	return sent, rows.Err()
}

func (s *Store) ListSharesForRecipient(ctx context.Context, email string) ([]storage.ReceivedShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.capsule_id, s.sender_id, s.recipient_email,
			s.recipient_user_id, s.message, s.delivery_date, s.is_delivered,
			s.delivered_at, s.access_code, s.is_opened, s.opened_at,
			s.require_password, s.password_hash, s.require_milestone,
			s.milestone_description, s.milestone_completed, s.created_at,
			c.title, c.type, u.name, u.email
		FROM shares s
		JOIN capsules c ON c.id = s.capsule_id
		JOIN users u ON u.id = s.sender_id
		WHERE s.recipient_email = $1 AND s.is_delivered = TRUE
		ORDER BY s.delivered_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var received []storage.ReceivedShare
	for rows.Next() {
		var item storage.ReceivedShare
		share, err := scanShareInto(rows, &item.CapsuleTitle, &item.CapsuleType,
			&item.SenderName, &item.SenderEmail)
		if err != nil {
			return nil, err
		}
		item.Share = *share
		received = append(received, item)
	}
	return received, rows.Err()
}

func (s *Store) MarkShareOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shares SET is_opened = TRUE, opened_at = $2
		WHERE id = $1 AND is_opened = FALSE`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) MarkShareDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shares SET is_delivered = TRUE, delivered_at = $2
		WHERE id = $1 AND is_delivered = FALSE`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) CompleteMilestone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shares SET milestone_completed = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SharesDueForDelivery(ctx context.Context, now time.Time) ([]storage.DeliveryDue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.recipient_email, s.message, s.access_code,
			s.delivery_date, u.name, c.title
		FROM shares s
		JOIN users u ON u.id = s.sender_id
		JOIN capsules c ON c.id = s.capsule_id
		WHERE s.delivery_date <= $1 AND s.is_delivered = FALSE
		ORDER BY s.delivery_date`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []storage.DeliveryDue
	for rows.Next() {
		var d storage.DeliveryDue
		err := rows.Scan(&d.Share.ID, &d.Share.RecipientEmail, &d.Share.Message,
			&d.Share.AccessCode, &d.Share.DeliveryDate, &d.SenderName, &d.CapsuleTitle)
		if err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func scanShare(row rowScanner) (*models.Share, error) {
	return scanShareInto(row)
}

// scanShareInto scans the shared column set plus any extra join columns.
func scanShareInto(row rowScanner, extra ...any) (*models.Share, error) {
	share := &models.Share{}
	var recipientUser sql.NullString
	var deliveredAt, openedAt sql.NullTime

	dest := []any{&share.ID, &share.CapsuleID, &share.SenderID,
		&share.RecipientEmail, &recipientUser, &share.Message,
		&share.DeliveryDate, &share.IsDelivered, &deliveredAt,
		&share.AccessCode, &share.IsOpened, &openedAt,
		&share.Rules.RequirePassword, &share.Rules.PasswordHash,
		&share.Rules.RequireMilestone, &share.Rules.MilestoneDescription,
		&share.Rules.IsMilestoneCompleted, &share.CreatedAt}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, mapErr(err)
	}
	if recipientUser.Valid {
		share.RecipientUserID = &recipientUser.String
	}
	if deliveredAt.Valid {
		share.DeliveredAt = &deliveredAt.Time
	}
	if openedAt.Valid {
		share.OpenedAt = &openedAt.Time
	}
	return share, nil
}
