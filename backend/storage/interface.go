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

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/timevaultapp/timevault/backend/models"
)

var (
	// ErrNotFound also covers ownership mismatches: a capsule that exists
	// but belongs to someone else is indistinguishable from one that does
	// not exist, so lookups never leak existence.
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// DashboardStats aggregates one user's capsules for the dashboard screen.
type DashboardStats struct {
	TotalCapsules    int            `json:"total_capsules"`
	LockedCapsules   int            `json:"locked_capsules"`
	UnlockedCapsules int            `json:"unlocked_capsules"`
	OpenedCapsules   int            `json:"opened_capsules"`
	NextCapsule      *UpcomingEntry `json:"next_capsule,omitempty"`
}

// UpcomingEntry is the nearest still-locked capsule.
type UpcomingEntry struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	UnlockDate time.Time `json:"unlock_date"`
}

// MoodPoint is one capsule's mood on the emotion timeline.
type MoodPoint struct {
	Date     time.Time `json:"date"`
	Mood     string    `json:"mood"`
	IsOpened bool      `json:"is_opened"`
}

// UnlockDue joins a sweep-eligible capsule with the owner contact details
// the notification needs.
type UnlockDue struct {
	Capsule    models.Capsule
	OwnerName  string
	OwnerEmail string
}

// DeliveryDue joins a sweep-eligible share with sender and capsule details
// for the recipient's notification.
type DeliveryDue struct {
	Share        models.Share
	SenderName   string
	CapsuleTitle string
}

// SentShare is a share as listed for its sender.
type SentShare struct {
	models.Share
	CapsuleTitle string `json:"capsule_title"`
	CapsuleType  string `json:"capsule_type"`
}

// ReceivedShare is a delivered share as listed for its recipient.
type ReceivedShare struct {
	models.Share
	CapsuleTitle string `json:"capsule_title"`
	CapsuleType  string `json:"capsule_type"`
	SenderName   string `json:"sender_name"`
	SenderEmail  string `json:"sender_email"`
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type CapsuleStore interface {
	CreateCapsule(ctx context.Context, capsule *models.Capsule) error
	// GetCapsule is owner-scoped; a wrong owner gets ErrNotFound.
	GetCapsule(ctx context.Context, id, userID string) (*models.Capsule, error)
	// ListCapsules returns capsules without content. status is "locked",
	// "unlocked" or "" for all.
	ListCapsules(ctx context.Context, userID, status string) ([]models.Capsule, error)
	DeleteCapsule(ctx context.Context, id, userID string) (*models.Capsule, error)

	// MarkCapsuleOpened and MarkCapsuleUnlocked are guarded one-way flips:
	// they return true only for the call that actually changed the flag, so
	// repeat calls never rewrite timestamps or re-trigger side effects.
	MarkCapsuleOpened(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCapsuleUnlocked(ctx context.Context, id string) (bool, error)

	CapsulesDueForUnlock(ctx context.Context, now time.Time) ([]UnlockDue, error)

	DashboardStats(ctx context.Context, userID string) (*DashboardStats, error)
	MoodTimeline(ctx context.Context, userID string) ([]MoodPoint, error)
}

type ShareStore interface {
	CreateShare(ctx context.Context, share *models.Share) error
	GetShareByAccessCode(ctx context.Context, code string) (*models.Share, error)
	ListSharesBySender(ctx context.Context, senderID string) ([]SentShare, error)
	ListSharesForRecipient(ctx context.Context, email string) ([]ReceivedShare, error)

	MarkShareOpened(ctx context.Context, id string, at time.Time) (bool, error)
	MarkShareDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	CompleteMilestone(ctx context.Context, id string) error

	SharesDueForDelivery(ctx context.Context, now time.Time) ([]DeliveryDue, error)

	// GetCapsuleForShare fetches the underlying capsule without an
	// ownership check; the access code already proved entitlement.
	GetCapsuleForShare(ctx context.Context, capsuleID string) (*models.Capsule, error)
}

type Store interface {
	UserStore
	CapsuleStore
	ShareStore
}
