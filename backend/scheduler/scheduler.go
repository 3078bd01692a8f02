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

// Package scheduler runs the unlock and delivery sweeps. The two sweeps
// are independent tasks on their own tickers; they share nothing but the
// store and the mailer. Each record transition is a guarded one-way flag
// flip in the store, so repeating a sweep is harmless: a record that
// already flipped affects zero rows and sends no second mail, and a crash
// between select and flip just leaves the record eligible for the next
// tick.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/timevaultapp/timevault/backend/mail"
	"github.com/timevaultapp/timevault/backend/storage"
)

// Clock lets tests drive sweep time directly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// UnlockStore is the slice of the capsule store the unlock sweep needs.
type UnlockStore interface {
	CapsulesDueForUnlock(ctx context.Context, now time.Time) ([]storage.UnlockDue, error)
	MarkCapsuleUnlocked(ctx context.Context, id string) (bool, error)
}

// DeliveryStore is the slice of the share store the delivery sweep needs.
type DeliveryStore interface {
	SharesDueForDelivery(ctx context.Context, now time.Time) ([]storage.DeliveryDue, error)
	MarkShareDelivered(ctx context.Context, id string, at time.Time) (bool, error)
}

type Scheduler struct {
	unlocks    UnlockStore
	deliveries DeliveryStore
	mailer     mail.Mailer
	clock      Clock
	interval   time.Duration
}

func New(unlocks UnlockStore, deliveries DeliveryStore, mailer mail.Mailer, clock Clock, interval time.Duration) *Scheduler {
	return &Scheduler{
		unlocks:    unlocks,
		deliveries: deliveries,
		mailer:     mailer,
		clock:      clock,
		interval:   interval,
	}
}

// Start launches both sweep loops. They run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, "unlock", s.RunUnlockSweep)
	go s.loop(ctx, "delivery", s.RunDeliverySweep)
	log.Printf("Scheduler started (interval %s)", s.interval)
}

func (s *Scheduler) loop(ctx context.Context, name string, sweep func(context.Context) error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				// Whole-sweep failures (store unreachable) are logged and
				// retried on the next tick, never fatal.
				log.Printf("%s sweep failed: %v", name, err)
			}
		}
	}
}

// RunUnlockSweep flips every capsule whose unlock instant has passed and
// notifies each owner at most once per actual transition.
func (s *Scheduler) RunUnlockSweep(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.unlocks.CapsulesDueForUnlock(ctx, now)
	if err != nil {
		return err
	}

	unlocked := 0
	for _, d := range due {
		flipped, err := s.unlocks.MarkCapsuleUnlocked(ctx, d.Capsule.ID)
		if err != nil {
			log.Printf("failed to unlock capsule %s: %v", d.Capsule.ID, err)
			continue
		}
		if !flipped {
			// Someone else (a concurrent replica's sweep) got here first.
			continue
		}
		unlocked++

		if d.OwnerEmail == "" {
			continue
		}
		if err := s.mailer.SendUnlockNotice(ctx, d.OwnerEmail, d.OwnerName, d.Capsule.Title, d.Capsule.ID); err != nil {
			// The flip is the durable fact; mail is best-effort.
			log.Printf("unlock mail for capsule %s failed: %v", d.Capsule.ID, err)
		}
	}

	if unlocked > 0 {
		log.Printf("Unlocked %d capsules", unlocked)
	}
	return nil
}

// RunDeliverySweep flips every share whose delivery date has passed and
// mails each recipient their access code, at most once per transition.
func (s *Scheduler) RunDeliverySweep(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.deliveries.SharesDueForDelivery(ctx, now)
	if err != nil {
		return err
	}

	delivered := 0
	for _, d := range due {
		flipped, err := s.deliveries.MarkShareDelivered(ctx, d.Share.ID, now)
		if err != nil {
			log.Printf("failed to deliver share %s: %v", d.Share.ID, err)
			continue
		}
		if !flipped {
			continue
		}
		delivered++

		if err := s.mailer.SendDeliveryNotice(ctx, d.Share.RecipientEmail, d.SenderName,
			d.CapsuleTitle, d.Share.Message, d.Share.AccessCode); err != nil {
			log.Printf("delivery mail for share %s failed: %v", d.Share.ID, err)
		}
	}

	if delivered > 0 {
		log.Printf("Delivered %d shared capsules", delivered)
	}
	return nil
}
