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

// Package memory is an in-memory storage.Store for local development and
// tests. Single process only; everything is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/timevaultapp/timevault/backend/models"
	"github.com/timevaultapp/timevault/backend/storage"
)

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	capsules map[string]*models.Capsule
	shares   map[string]*models.Share
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*models.User),
		capsules: make(map[string]*models.Capsule),
		shares:   make(map[string]*models.Share),
	}
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Capsules

func (s *Store) CreateCapsule(ctx context.Context, capsule *models.Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capsules[capsule.ID] = cloneCapsule(capsule)
	return nil
}

func (s *Store) GetCapsule(ctx context.Context, id, userID string) (*models.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	capsule, ok := s.capsules[id]
	if !ok || capsule.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return cloneCapsule(capsule), nil
}

func (s *Store) GetCapsuleForShare(ctx context.Context, capsuleID string) (*models.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	capsule, ok := s.capsules[capsuleID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCapsule(capsule), nil
}

func (s *Store) ListCapsules(ctx context.Context, userID, status string) ([]models.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var capsules []models.Capsule
	for _, capsule := range s.capsules {
		if capsule.UserID != userID {
			continue
		}
		if status == "locked" && !capsule.IsLocked {
			continue
		}
		if status == "unlocked" && capsule.IsLocked {
			continue
		}
		clone := cloneCapsule(capsule)
		clone.Content = ""
		capsules = append(capsules, *clone)
	}
	sort.Slice(capsules, func(i, j int) bool {
		return capsules[i].CreatedAt.After(capsules[j].CreatedAt)
	})
	return capsules, nil
}

func (s *Store) DeleteCapsule(ctx context.Context, id, userID string) (*models.Capsule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capsule, ok := s.capsules[id]
	if !ok || capsule.UserID != userID {
		return nil, storage.ErrNotFound
	}
	delete(s.capsules, id)
	for shareID, share := range s.shares {
		if share.CapsuleID == id {
			delete(s.shares, shareID)
		}
	}
	return capsule, nil
}

func (s *Store) MarkCapsuleOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capsule, ok := s.capsules[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if capsule.IsOpened {
		return false, nil
	}
	capsule.IsOpened = true
	capsule.OpenedAt = &at
	return true, nil
}

func (s *Store) MarkCapsuleUnlocked(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capsule, ok := s.capsules[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if !capsule.IsLocked {
		return false, nil
	}
	capsule.IsLocked = false
	return true, nil
}

func (s *Store) CapsulesDueForUnlock(ctx context.Context, now time.Time) ([]storage.UnlockDue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []storage.UnlockDue
	for _, capsule := range s.capsules {
		if !capsule.IsLocked || capsule.UnlockDate.After(now) {
			continue
		}
		d := storage.UnlockDue{Capsule: *cloneCapsule(capsule)}
		if owner, ok := s.users[capsule.UserID]; ok {
			d.OwnerName = owner.Name
			d.OwnerEmail = owner.Email
		}
		due = append(due, d)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Capsule.UnlockDate.Before(due[j].Capsule.UnlockDate)
	})
	return due, nil
}

func (s *Store) DashboardStats(ctx context.Context, userID string) (*storage.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.DashboardStats{}
	for _, capsule := range s.capsules {
		if capsule.UserID != userID {
			continue
		}
		stats.TotalCapsules++
		if capsule.IsLocked {
			stats.LockedCapsules++
			if stats.NextCapsule == nil || capsule.UnlockDate.Before(stats.NextCapsule.UnlockDate) {
				stats.NextCapsule = &storage.UpcomingEntry{
					ID:         capsule.ID,
					Title:      capsule.Title,
					UnlockDate: capsule.UnlockDate,
				}
			}
		} else {
			stats.UnlockedCapsules++
		}
		if capsule.IsOpened {
			stats.OpenedCapsules++
		}
	}
	return stats, nil
}

func (s *Store) MoodTimeline(ctx context.Context, userID string) ([]storage.MoodPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []storage.MoodPoint
	for _, capsule := range s.capsules {
		if capsule.UserID != userID {
			continue
		}
		points = append(points, storage.MoodPoint{
			Date:     capsule.CreatedAt,
			Mood:     capsule.Mood,
			IsOpened: capsule.IsOpened,
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}

// Shares

func (s *Store) CreateShare(ctx context.Context, share *models.Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.shares {
		if existing.AccessCode == share.AccessCode {
			return storage.ErrDuplicate
		}
	}
	clone := *share
	s.shares[share.ID] = &clone
	return nil
}

func (s *Store) GetShareByAccessCode(ctx context.Context, code string) (*models.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, share := range s.shares {
		if share.AccessCode == code {
			clone := *share
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListSharesBySender(ctx context.Context, senderID string) ([]storage.SentShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sent []storage.SentShare
	for _, share := range s.shares {
		if share.SenderID != senderID {
			continue
		}
		item := storage.SentShare{Share: *share}
		if capsule, ok := s.capsules[share.CapsuleID]; ok {
			item.CapsuleTitle = capsule.Title
			item.CapsuleType = capsule.Type
		}
		sent = append(sent, item)
	}
	sort.Slice(sent, func(i, j int) bool {
		return sent[i].CreatedAt.After(sent[j].CreatedAt)
	})
	return sent, nil
}

func (s *Store) ListSharesForRecipient(ctx context.Context, email string) ([]storage.ReceivedShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var received []storage.ReceivedShare
	for _, share := range s.shares {
		if share.RecipientEmail != email || !share.IsDelivered {
			continue
		}
		item := storage.ReceivedShare{Share: *share}
		if capsule, ok := s.capsules[share.CapsuleID]; ok {
			item.CapsuleTitle = capsule.Title
			item.CapsuleType = capsule.Type
		}
		if sender, ok := s.users[share.SenderID]; ok {
			item.SenderName = sender.Name
			item.SenderEmail = sender.Email
		}
		received = append(received, item)
	}
	sort.Slice(received, func(i, j int) bool {
		return received[i].CreatedAt.After(received[j].CreatedAt)
	})
	return received, nil
}

func (s *Store) MarkShareOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, ok := s.shares[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if share.IsOpened {
		return false, nil
	}
	share.IsOpened = true
	share.OpenedAt = &at
	return true, nil
}

func (s *Store) MarkShareDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, ok := s.shares[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if share.IsDelivered {
		return false, nil
	}
	share.IsDelivered = true
	share.DeliveredAt = &at
	return true, nil
}

func (s *Store) CompleteMilestone(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	share, ok := s.shares[id]
	if !ok {
		return storage.ErrNotFound
	}
	share.Rules.IsMilestoneCompleted = true
	return nil
}

func (s *Store) SharesDueForDelivery(ctx context.Context, now time.Time) ([]storage.DeliveryDue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []storage.DeliveryDue
	for _, share := range s.shares {
		if share.IsDelivered || share.DeliveryDate.After(now) {
			continue
		}
		d := storage.DeliveryDue{Share: *share}
		if sender, ok := s.users[share.SenderID]; ok {
			d.SenderName = sender.Name
		}
		if capsule, ok := s.capsules[share.CapsuleID]; ok {
			d.CapsuleTitle = capsule.Title
		}
		due = append(due, d)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Share.DeliveryDate.Before(due[j].Share.DeliveryDate)
	})
	return due, nil
}

func cloneCapsule(c *models.Capsule) *models.Capsule {
	clone := *c
	clone.Tags = append([]string(nil), c.Tags...)
	clone.MediaURLs = append([]models.CapsuleMedia(nil), c.MediaURLs...)
	return &clone
}
