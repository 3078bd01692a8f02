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

// Package policy decides, at read time, whether encrypted capsule content
// may be revealed. Every function here is pure: stores, clocks and
// credentials come in as arguments and nothing is mutated.
package policy

import (
	"time"

	"github.com/timevaultapp/timevault/backend/models"
)

// CapsuleVisible reports whether a capsule's content may be disclosed to
// its owner at the given instant.
//
// The check is evaluated live against UnlockDate, not against the stored
// IsLocked flag alone: a capsule whose unlock instant has passed reads as
// unlocked even if the sweep has not flipped the flag yet. The flag only
// matters while it agrees with the date.
func CapsuleVisible(c *models.Capsule, now time.Time) bool {
	if !c.IsLocked {
		return true
	}
	return !now.Before(c.UnlockDate)
}

// WithheldReason says which gate is currently blocking a share's content.
type WithheldReason string

const (
	ReasonNone      WithheldReason = ""
	ReasonPending   WithheldReason = "pending_delivery"
	ReasonPassword  WithheldReason = "password_required"
	ReasonMilestone WithheldReason = "milestone_incomplete"
)

// ShareDecision is the outcome of evaluating a share's gates.
type ShareDecision struct {
	CanView  bool
	Withheld []WithheldReason
}

// EvaluateShare computes visibility for a share fetch. passwordOK must only
// be true when the caller has already proven the password for this request;
// a plain fetch passes false. All gates are independent AND-conditions: an
// undelivered share never discloses, and completing a milestone does not
// waive a password.
func EvaluateShare(s *models.Share, passwordOK bool) ShareDecision {
	var withheld []WithheldReason

	if !s.IsDelivered {
		withheld = append(withheld, ReasonPending)
	}
	if s.Rules.RequirePassword && !passwordOK {
		withheld = append(withheld, ReasonPassword)
	}
	if s.Rules.RequireMilestone && !s.Rules.IsMilestoneCompleted {
		withheld = append(withheld, ReasonMilestone)
	}

	return ShareDecision{CanView: len(withheld) == 0, Withheld: withheld}
}

// RuleDescriptors is what a recipient may see about a share's gates before
// satisfying them: which gates exist and the milestone text, never secrets.
type RuleDescriptors struct {
	RequirePassword      bool   `json:"require_password"`
	RequireMilestone     bool   `json:"require_milestone"`
	MilestoneDescription string `json:"milestone_description,omitempty"`
	IsMilestoneCompleted bool   `json:"is_milestone_completed"`
}

func DescribeRules(s *models.Share) RuleDescriptors {
	return RuleDescriptors{
		RequirePassword:      s.Rules.RequirePassword,
		RequireMilestone:     s.Rules.RequireMilestone,
		MilestoneDescription: s.Rules.MilestoneDescription,
		IsMilestoneCompleted: s.Rules.IsMilestoneCompleted,
	}
}
