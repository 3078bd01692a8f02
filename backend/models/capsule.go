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

package models

import "time"

// Capsule types
const (
	CapsuleTypeText  = "text"
	CapsuleTypeImage = "image"
	CapsuleTypeVideo = "video"
	CapsuleTypeMixed = "mixed"
)

// Media types
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeAudio = "audio"
	MediaTypeOther = "other"
)

// Moods a capsule can be tagged with at creation time.
var Moods = []string{
	"happy", "sad", "excited", "nostalgic", "hopeful",
	"grateful", "reflective", "anxious", "peaceful",
}

const DefaultMood = "reflective"

// Capsule is a user's time-locked message. Content is stored encrypted and
// is only ever decrypted behind the disclosure policy checks.
type Capsule struct {
	ID         string         `json:"id" db:"id"`
	UserID     string         `json:"user_id" db:"user_id"`
	Title      string         `json:"title" db:"title"`
	Content    string         `json:"-" db:"content"` // ciphertext, never serialized directly
	Type       string         `json:"type" db:"type"`
	MediaURLs  []CapsuleMedia `json:"media_urls"`
	UnlockDate time.Time      `json:"unlock_date" db:"unlock_date"`
	IsLocked   bool           `json:"is_locked" db:"is_locked"`
	Tags       []string       `json:"tags" db:"tags"`
	Mood       string         `json:"mood" db:"mood"`
	IsOpened   bool           `json:"is_opened" db:"is_opened"`
	OpenedAt   *time.Time     `json:"opened_at,omitempty" db:"opened_at"`
	// ReminderSent is reserved for a reminder feature that was never built.
	// Nothing reads or writes it.
	ReminderSent bool      `json:"-" db:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CapsuleMedia is one remote media attachment. StorageKey is the handle
// needed to delete the blob when the owning capsule is deleted.
type CapsuleMedia struct {
	URL        string `json:"url" db:"url"`
	MediaType  string `json:"type" db:"media_type"`
	StorageKey string `json:"storage_id,omitempty" db:"storage_key"`
}

func ValidCapsuleType(t string) bool {
	switch t {
	case CapsuleTypeText, CapsuleTypeImage, CapsuleTypeVideo, CapsuleTypeMixed:
		return true
	}
	return false
}

func ValidMediaType(t string) bool {
	switch t {
	case MediaTypeImage, MediaTypeVideo, MediaTypeAudio, MediaTypeOther:
		return true
	}
	return false
}

func ValidMood(m string) bool {
	for _, mood := range Moods {
		if m == mood {
			return true
		}
	}
	return false
}
