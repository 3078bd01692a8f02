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

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/timevaultapp/timevault/backend/crypto"
	"github.com/timevaultapp/timevault/backend/middleware"
	"github.com/timevaultapp/timevault/backend/models"
	"github.com/timevaultapp/timevault/backend/policy"
	"github.com/timevaultapp/timevault/backend/storage"
)

// AttemptLimiter caps password guesses per access code. A nil limiter
// (memory mode, tests) means no cap.
type AttemptLimiter interface {
	Allow(ctx context.Context, accessCode string) (bool, error)
	RecordFailure(ctx context.Context, accessCode string) error
	Reset(ctx context.Context, accessCode string) error
}

type ShareHandler struct {
	shares   storage.ShareStore
	capsules storage.CapsuleStore
	users    storage.UserStore
	cipher   *crypto.Cipher
	limiter  AttemptLimiter
	clock    func() time.Time
}

func NewShareHandler(shares storage.ShareStore, capsules storage.CapsuleStore, users storage.UserStore, cipher *crypto.Cipher, limiter AttemptLimiter) *ShareHandler {
	return &ShareHandler{
		shares:   shares,
		capsules: capsules,
		users:    users,
		cipher:   cipher,
		limiter:  limiter,
		clock:    time.Now,
	}
}

type createShareRequest struct {
	CapsuleID      string                `json:"capsule_id"`
	RecipientEmail string                `json:"recipient_email"`
	Message        string                `json:"message"`
	DeliveryDate   string                `json:"delivery_date"`
	Rules          *shareRulesPayload    `json:"conditional_rules"`
}

type shareRulesPayload struct {
	RequirePassword      bool   `json:"require_password"`
	Password             string `json:"password"`
	RequireMilestone     bool   `json:"require_milestone"`
	MilestoneDescription string `json:"milestone_description"`
}

// sharedCapsulePayload is the gated part of a share response; it only
// appears once every gate has passed.
type sharedCapsulePayload struct {
	Title     string                `json:"title"`
	Content   string                `json:"content"`
	Type      string                `json:"type"`
	MediaURLs []models.CapsuleMedia `json:"media_urls"`
	Mood      string                `json:"mood"`
	Tags      []string              `json:"tags"`
	CreatedAt time.Time             `json:"created_at"`
}

type sharedViewResponse struct {
	ID          string                 `json:"id"`
	SenderName  string                 `json:"sender_name"`
	SenderEmail string                 `json:"sender_email"`
	Message     string                 `json:"message"`
	DeliveredAt *time.Time             `json:"delivered_at,omitempty"`
	IsOpened    bool                   `json:"is_opened"`
	Rules       policy.RuleDescriptors `json:"conditional_rules"`
	CanView     bool                   `json:"can_view"`
	Capsule     *sharedCapsulePayload  `json:"capsule"`
}

func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.RecipientEmail = strings.ToLower(strings.TrimSpace(req.RecipientEmail))
	if req.CapsuleID == "" || req.RecipientEmail == "" || req.DeliveryDate == "" {
		respondError(w, http.StatusBadRequest, "Capsule ID, recipient email, and delivery date are required")
		return
	}

	deliveryDate, err := time.Parse(time.RFC3339, req.DeliveryDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid delivery date format, want RFC 3339")
		return
	}
	if !deliveryDate.After(h.clock()) {
		respondError(w, http.StatusBadRequest, "Delivery date must be in the future")
		return
	}

	// Ownership check doubles as existence check; a foreign capsule reads
	// as not found.
	if _, err := h.capsules.GetCapsule(r.Context(), req.CapsuleID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Capsule not found")
			return
		}
		log.Printf("failed to fetch capsule for share: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	var rules models.ConditionalRules
	if req.Rules != nil {
		if req.Rules.RequirePassword {
			if req.Rules.Password == "" {
				respondError(w, http.StatusBadRequest, "A password is required when require_password is set")
				return
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(req.Rules.Password), bcrypt.DefaultCost)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "Server error")
				return
			}
			rules.RequirePassword = true
			rules.PasswordHash = string(hash)
		}
		if req.Rules.RequireMilestone {
			if req.Rules.MilestoneDescription == "" {
				respondError(w, http.StatusBadRequest, "A milestone description is required when require_milestone is set")
				return
			}
			rules.RequireMilestone = true
			rules.MilestoneDescription = req.Rules.MilestoneDescription
		}
	}

	// Resolved once, now; a recipient who registers later is not linked.
	var recipientUserID *string
	if recipient, err := h.users.GetUserByEmail(r.Context(), req.RecipientEmail); err == nil {
		recipientUserID = &recipient.ID
	}

	share := &models.Share{
		ID:              uuid.New().String(),
		CapsuleID:       req.CapsuleID,
		SenderID:        userID,
		RecipientEmail:  req.RecipientEmail,
		RecipientUserID: recipientUserID,
		Message:         req.Message,
		DeliveryDate:    deliveryDate.UTC(),
		AccessCode:      crypto.GenerateAccessCode(),
		Rules:           rules,
		CreatedAt:       h.clock().UTC(),
	}

	err = h.shares.CreateShare(r.Context(), share)
	if errors.Is(err, storage.ErrDuplicate) {
		// Access code collision. Astronomically unlikely; retry once with
		// a fresh code, then give up loudly.
		share.AccessCode = crypto.GenerateAccessCode()
		err = h.shares.CreateShare(r.Context(), share)
		if errors.Is(err, storage.ErrDuplicate) {
			respondError(w, http.StatusConflict, "Could not allocate a unique access code")
			return
		}
	}
	if err != nil {
		log.Printf("failed to save share: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to share capsule")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"message":     "Capsule shared successfully",
		"access_code": share.AccessCode,
	})
}

func (h *ShareHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	shares, err := h.shares.ListSharesBySender(r.Context(), userID)
	if err != nil {
		log.Printf("failed to list sent shares: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if shares == nil {
		shares = []storage.SentShare{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "shared_capsules": shares})
}

func (h *ShareHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	shares, err := h.shares.ListSharesForRecipient(r.Context(), user.Email)
	if err != nil {
		log.Printf("failed to list received shares: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if shares == nil {
		shares = []storage.ReceivedShare{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "shared_capsules": shares})
}

// GetByAccessCode is the public share fetch: metadata always, content
// only when every gate has passed.
func (h *ShareHandler) GetByAccessCode(w http.ResponseWriter, r *http.Request) {
	share, ok := h.fetchShare(w, r)
	if !ok {
		return
	}

	resp, err := h.buildView(r.Context(), share)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	decision := policy.EvaluateShare(share, false)
	resp.CanView = decision.CanView
	if decision.CanView {
		capsule, err := h.disclose(r.Context(), share, resp)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Server error")
			return
		}
		resp.Capsule = capsule
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "shared_capsule": resp})
}

// VerifyPassword checks a password attempt against the share's hash and
// on success re-evaluates the remaining gates before disclosing.
func (h *ShareHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	share, ok := h.fetchShare(w, r)
	if !ok {
		return
	}

	if !share.Rules.RequirePassword {
		respondError(w, http.StatusBadRequest, "No password required")
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), share.AccessCode)
		if err != nil {
			log.Printf("attempt limiter unavailable: %v", err)
		} else if !allowed {
			respondError(w, http.StatusTooManyRequests, "Too many password attempts, try again later")
			return
		}
	}

	// bcrypt's comparison is constant-time over the attempt
	if bcrypt.CompareHashAndPassword([]byte(share.Rules.PasswordHash), []byte(req.Password)) != nil {
		if h.limiter != nil {
			if err := h.limiter.RecordFailure(r.Context(), share.AccessCode); err != nil {
				log.Printf("failed to record password attempt: %v", err)
			}
		}
		respondError(w, http.StatusUnauthorized, "Incorrect password")
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Reset(r.Context(), share.AccessCode); err != nil {
			log.Printf("failed to reset attempt counter: %v", err)
		}
	}

	// The password is one gate of three; delivery and milestone still
	// apply independently.
	decision := policy.EvaluateShare(share, true)
	if !decision.CanView {
		respondJSON(w, http.StatusForbidden, map[string]any{
			"success":  false,
			"message":  "Password accepted, but the capsule is not viewable yet",
			"withheld": decision.Withheld,
		})
		return
	}

	resp, err := h.buildView(r.Context(), share)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	resp.CanView = true

	capsule, err := h.disclose(r.Context(), share, resp)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	resp.Capsule = capsule

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "shared_capsule": resp})
}

// CompleteMilestone marks the milestone done. There is deliberately no
// proof step here (honor system, matching the product behavior); the
// password gate, if any, stays in force.
func (h *ShareHandler) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	share, ok := h.fetchShare(w, r)
	if !ok {
		return
	}

	if !share.Rules.RequireMilestone {
		respondError(w, http.StatusBadRequest, "No milestone required")
		return
	}

	if err := h.shares.CompleteMilestone(r.Context(), share.ID); err != nil {
		log.Printf("failed to complete milestone for share %s: %v", share.ID, err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	share.Rules.IsMilestoneCompleted = true

	resp, err := h.buildView(r.Context(), share)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	decision := policy.EvaluateShare(share, false)
	resp.CanView = decision.CanView
	if decision.CanView {
		capsule, err := h.disclose(r.Context(), share, resp)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Server error")
			return
		}
		resp.Capsule = capsule
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        "Milestone completed",
		"shared_capsule": resp,
	})
}

func (h *ShareHandler) fetchShare(w http.ResponseWriter, r *http.Request) (*models.Share, bool) {
	share, err := h.shares.GetShareByAccessCode(r.Context(), mux.Vars(r)["accessCode"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Shared capsule not found")
			return nil, false
		}
		log.Printf("failed to fetch share: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return nil, false
	}
	return share, true
}

func (h *ShareHandler) buildView(ctx context.Context, share *models.Share) (*sharedViewResponse, error) {
	resp := &sharedViewResponse{
		ID:          share.ID,
		Message:     share.Message,
		DeliveredAt: share.DeliveredAt,
		IsOpened:    share.IsOpened,
		Rules:       policy.DescribeRules(share),
	}

	sender, err := h.users.GetUserByID(ctx, share.SenderID)
	if err != nil {
		log.Printf("failed to resolve sender %s: %v", share.SenderID, err)
		return nil, err
	}
	resp.SenderName = sender.Name
	resp.SenderEmail = sender.Email

	return resp, nil
}

// disclose decrypts the underlying capsule and applies the share-level
// first-disclosure flip. Callers must have already passed the policy
// check.
func (h *ShareHandler) disclose(ctx context.Context, share *models.Share, resp *sharedViewResponse) (*sharedCapsulePayload, error) {
	capsule, err := h.shares.GetCapsuleForShare(ctx, share.CapsuleID)
	if err != nil {
		log.Printf("failed to fetch capsule %s for share %s: %v", share.CapsuleID, share.ID, err)
		return nil, err
	}

	content, err := h.cipher.Decrypt(capsule.Content)
	if err != nil {
		log.Printf("decrypt failed for capsule %s via share %s: %v", capsule.ID, share.ID, err)
		return nil, err
	}

	if !share.IsOpened {
		openedAt := h.clock().UTC()
		flipped, err := h.shares.MarkShareOpened(ctx, share.ID, openedAt)
		if err != nil {
			log.Printf("failed to mark share %s opened: %v", share.ID, err)
		} else if flipped {
			resp.IsOpened = true
		}
	}

	return &sharedCapsulePayload{
		Title:     capsule.Title,
		Content:   content,
		Type:      capsule.Type,
		MediaURLs: capsule.MediaURLs,
		Mood:      capsule.Mood,
		Tags:      capsule.Tags,
		CreatedAt: capsule.CreatedAt,
	}, nil
}
