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

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/timevaultapp/timevault/backend/models"
	"github.com/timevaultapp/timevault/backend/storage"
)

var baseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func addCapsule(t *testing.T, s *Store, id, userID string, unlockDate time.Time) {
	t.Helper()
	err := s.CreateCapsule(context.Background(), &models.Capsule{
		ID:         id,
		UserID:     userID,
		Title:      "Capsule " + id,
		Content:    "ciphertext",
		Type:       models.CapsuleTypeText,
		UnlockDate: unlockDate,
		IsLocked:   true,
		Mood:       models.DefaultMood,
		CreatedAt:  baseTime,
	})
	if err != nil {
		t.Fatalf("create capsule %s: %v", id, err)
	}
}

func TestGetCapsuleOwnerScoped(t *testing.T) {
	s := NewStore()
	addCapsule(t, s, "c1", "alice", baseTime.Add(time.Hour))

	if _, err := s.GetCapsule(context.Background(), "c1", "alice"); err != nil {
		t.Fatalf("owner fetch failed: %v", err)
	}
	if _, err := s.GetCapsule(context.Background(), "c1", "bob"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign fetch = %v, want ErrNotFound", err)
	}
}

func TestGetCapsuleReturnsCopy(t *testing.T) {
	s := NewStore()
	addCapsule(t, s, "c1", "alice", baseTime.Add(time.Hour))

	got, err := s.GetCapsule(context.Background(), "c1", "alice")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got.Title = "mutated"

	again, _ := s.GetCapsule(context.Background(), "c1", "alice")
	if again.Title != "Capsule c1" {
		t.Error("store handed out a shared pointer instead of a copy")
	}
}

func TestMarkCapsuleUnlockedFlipsOnce(t *testing.T) {
	s := NewStore()
	addCapsule(t, s, "c1", "alice", baseTime.Add(-time.Hour))

	flipped, err := s.MarkCapsuleUnlocked(context.Background(), "c1")
	if err != nil || !flipped {
		t.Fatalf("first flip = %v, %v; want true, nil", flipped, err)
	}
	flipped, err = s.MarkCapsuleUnlocked(context.Background(), "c1")
	if err != nil || flipped {
		t.Fatalf("second flip = %v, %v; want false, nil", flipped, err)
	}
	if _, err := s.MarkCapsuleUnlocked(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing id = %v, want ErrNotFound", err)
	}
}

func TestMarkCapsuleOpenedKeepsFirstTimestamp(t *testing.T) {
	s := NewStore()
	addCapsule(t, s, "c1", "alice", baseTime.Add(-time.Hour))

	first := baseTime
	if flipped, _ := s.MarkCapsuleOpened(context.Background(), "c1", first); !flipped {
		t.Fatal("first open should flip")
	}
	if flipped, _ := s.MarkCapsuleOpened(context.Background(), "c1", first.Add(time.Hour)); flipped {
		t.Fatal("second open should not flip")
	}

	c, _ := s.GetCapsule(context.Background(), "c1", "alice")
	if c.OpenedAt == nil || !c.OpenedAt.Equal(first) {
		t.Errorf("OpenedAt = %v, want %v", c.OpenedAt, first)
	}
}

func TestCapsulesDueForUnlock(t *testing.T) {
	s := NewStore()
	if err := s.CreateUser(context.Background(), &models.User{
		ID: "alice", Name: "Alice", Email: "alice@example.com", CreatedAt: baseTime,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	addCapsule(t, s, "past", "alice", baseTime.Add(-time.Hour))
	addCapsule(t, s, "now", "alice", baseTime)
	addCapsule(t, s, "future", "alice", baseTime.Add(time.Hour))

	due, err := s.CapsulesDueForUnlock(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("due query: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d capsules, want 2 (boundary is inclusive)", len(due))
	}
	for _, d := range due {
		if d.OwnerEmail != "alice@example.com" {
			t.Errorf("OwnerEmail = %q, want joined owner contact", d.OwnerEmail)
		}
	}

	// Flipped capsules drop out of the next sweep's result.
	if _, err := s.MarkCapsuleUnlocked(context.Background(), "past"); err != nil {
		t.Fatalf("flip: %v", err)
	}
	due, _ = s.CapsulesDueForUnlock(context.Background(), baseTime)
	if len(due) != 1 || due[0].Capsule.ID != "now" {
		t.Errorf("after flip due = %+v, want only 'now'", due)
	}
}

func TestCreateShareRejectsDuplicateAccessCode(t *testing.T) {
	s := NewStore()

	share := &models.Share{ID: "s1", AccessCode: "code123", CreatedAt: baseTime}
	if err := s.CreateShare(context.Background(), share); err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := &models.Share{ID: "s2", AccessCode: "code123", CreatedAt: baseTime}
	if err := s.CreateShare(context.Background(), dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("duplicate create = %v, want ErrDuplicate", err)
	}
}

func TestSharesDueForDeliveryExcludesDelivered(t *testing.T) {
	s := NewStore()
	for _, sh := range []*models.Share{
		{ID: "due", AccessCode: "a", DeliveryDate: baseTime.Add(-time.Minute), CreatedAt: baseTime},
		{ID: "future", AccessCode: "b", DeliveryDate: baseTime.Add(time.Hour), CreatedAt: baseTime},
	} {
		if err := s.CreateShare(context.Background(), sh); err != nil {
			t.Fatalf("create %s: %v", sh.ID, err)
		}
	}

	due, err := s.SharesDueForDelivery(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("due query: %v", err)
	}
	if len(due) != 1 || due[0].Share.ID != "due" {
		t.Fatalf("due = %+v, want only 'due'", due)
	}

	if flipped, _ := s.MarkShareDelivered(context.Background(), "due", baseTime); !flipped {
		t.Fatal("deliver should flip")
	}
	due, _ = s.SharesDueForDelivery(context.Background(), baseTime)
	if len(due) != 0 {
		t.Errorf("delivered share still due: %+v", due)
	}
}

func TestDashboardStatsCounts(t *testing.T) {
	s := NewStore()
	addCapsule(t, s, "locked", "alice", baseTime.Add(time.Hour))
	addCapsule(t, s, "unlocked", "alice", baseTime.Add(-time.Hour))
	addCapsule(t, s, "other-user", "bob", baseTime.Add(time.Hour))

	if _, err := s.MarkCapsuleUnlocked(context.Background(), "unlocked"); err != nil {
		t.Fatalf("flip: %v", err)
	}
	if _, err := s.MarkCapsuleOpened(context.Background(), "unlocked", baseTime); err != nil {
		t.Fatalf("open: %v", err)
	}

	stats, err := s.DashboardStats(context.Background(), "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCapsules != 2 || stats.LockedCapsules != 1 || stats.UnlockedCapsules != 1 || stats.OpenedCapsules != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.NextCapsule == nil || stats.NextCapsule.ID != "locked" {
		t.Errorf("NextCapsule = %+v, want the locked capsule", stats.NextCapsule)
	}
}
