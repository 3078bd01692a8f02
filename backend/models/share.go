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

// Share grants one capsule's content to a recipient, gated by a delivery
// date and optional conditional rules. The access code is the only
// credential a recipient needs.
type Share struct {
	ID             string     `json:"id" db:"id"`
	CapsuleID      string     `json:"capsule_id" db:"capsule_id"`
	SenderID       string     `json:"sender_id" db:"sender_id"`
	RecipientEmail string     `json:"recipient_email" db:"recipient_email"`
	// RecipientUserID is resolved from the email once at creation time and
	// never re-resolved, so a recipient who registers later stays nil here.
	RecipientUserID *string          `json:"recipient_user_id,omitempty" db:"recipient_user_id"`
	Message         string           `json:"message" db:"message"`
	DeliveryDate    time.Time        `json:"delivery_date" db:"delivery_date"`
	IsDelivered     bool             `json:"is_delivered" db:"is_delivered"`
	DeliveredAt     *time.Time       `json:"delivered_at,omitempty" db:"delivered_at"`
	AccessCode      string           `json:"-" db:"access_code"`
	IsOpened        bool             `json:"is_opened" db:"is_opened"`
	OpenedAt        *time.Time       `json:"opened_at,omitempty" db:"opened_at"`
	Rules           ConditionalRules `json:"conditional_rules"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
}

// ConditionalRules are extra gates layered on top of delivery. Both gates
// are independent AND-conditions; satisfying one never satisfies the other.
type ConditionalRules struct {
	RequirePassword      bool   `json:"require_password" db:"require_password"`
	PasswordHash         string `json:"-" db:"password_hash"` // bcrypt, never plaintext
	RequireMilestone     bool   `json:"require_milestone" db:"require_milestone"`
	MilestoneDescription string `json:"milestone_description,omitempty" db:"milestone_description"`
	IsMilestoneCompleted bool   `json:"is_milestone_completed" db:"milestone_completed"`
}
