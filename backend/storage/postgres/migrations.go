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

func (s *Store) Migrate() error {
	migrations := []string{
		// Users table
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Capsules table. Content is ciphertext; reminder_sent is reserved
		// for a reminder feature that never shipped.
		`CREATE TABLE IF NOT EXISTS capsules (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			type VARCHAR(20) NOT NULL DEFAULT 'text',
			unlock_date TIMESTAMPTZ NOT NULL,
			is_locked BOOLEAN NOT NULL DEFAULT TRUE,
			tags TEXT[] NOT NULL DEFAULT '{}',
			mood VARCHAR(20) NOT NULL DEFAULT 'reflective',
			is_opened BOOLEAN NOT NULL DEFAULT FALSE,
			opened_at TIMESTAMPTZ,
			reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Listing order for a user's capsules
		`CREATE INDEX IF NOT EXISTS idx_capsules_user_created
		ON capsules(user_id, created_at DESC)`,

		// Sweep predicate: locked capsules whose unlock instant has passed
		`CREATE INDEX IF NOT EXISTS idx_capsules_due
		ON capsules(unlock_date)
		WHERE is_locked = TRUE`,

		// Media attachments, ordered per capsule. storage_key is the
		// handle needed to delete the remote blob.
		`CREATE TABLE IF NOT EXISTS capsule_media (
			capsule_id VARCHAR(255) NOT NULL,
			position INTEGER NOT NULL,
			url TEXT NOT NULL,
			media_type VARCHAR(20) NOT NULL DEFAULT 'image',
			storage_key TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (capsule_id, position),
			FOREIGN KEY (capsule_id) REFERENCES capsules(id) ON DELETE CASCADE
		)`,

		// Shares table. access_code is the sole recipient capability, so
		// it carries the uniqueness constraint the generator relies on.
		`CREATE TABLE IF NOT EXISTS shares (
			id VARCHAR(255) PRIMARY KEY,
			capsule_id VARCHAR(255) NOT NULL,
			sender_id VARCHAR(255) NOT NULL,
			recipient_email VARCHAR(255) NOT NULL,
			recipient_user_id VARCHAR(255),
			message TEXT NOT NULL DEFAULT '',
			delivery_date TIMESTAMPTZ NOT NULL,
			is_delivered BOOLEAN NOT NULL DEFAULT FALSE,
			delivered_at TIMESTAMPTZ,
			access_code VARCHAR(64) NOT NULL UNIQUE,
			is_opened BOOLEAN NOT NULL DEFAULT FALSE,
			opened_at TIMESTAMPTZ,
			require_password BOOLEAN NOT NULL DEFAULT FALSE,
			password_hash TEXT NOT NULL DEFAULT '',
			require_milestone BOOLEAN NOT NULL DEFAULT FALSE,
			milestone_description TEXT NOT NULL DEFAULT '',
			milestone_completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (capsule_id) REFERENCES capsules(id) ON DELETE CASCADE,
			FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Sweep predicate: undelivered shares whose delivery date passed
		`CREATE INDEX IF NOT EXISTS idx_shares_due
		ON shares(delivery_date)
		WHERE is_delivered = FALSE`,

		`CREATE INDEX IF NOT EXISTS idx_shares_sender
		ON shares(sender_id, created_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_shares_recipient
		ON shares(recipient_email, delivered_at DESC)
		WHERE is_delivered = TRUE`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
