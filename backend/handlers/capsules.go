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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/timevaultapp/timevault/backend/blob"
	"github.com/timevaultapp/timevault/backend/crypto"
	"github.com/timevaultapp/timevault/backend/middleware"
	"github.com/timevaultapp/timevault/backend/models"
	"github.com/timevaultapp/timevault/backend/policy"
	"github.com/timevaultapp/timevault/backend/storage"
)

const (
	maxMediaFiles    = 5
	maxMediaFileSize = 10 << 20 // 10MB per file
	maxFormMemory    = 32 << 20
)

type CapsuleHandler struct {
	store  storage.CapsuleStore
	cipher *crypto.Cipher
	media  blob.Storage
	clock  func() time.Time
}

func NewCapsuleHandler(store storage.CapsuleStore, cipher *crypto.Cipher, media blob.Storage) *CapsuleHandler {
	return &CapsuleHandler{store: store, cipher: cipher, media: media, clock: time.Now}
}

// createCapsuleRequest is the strict request schema. The legacy client sent
// tags and media as stringified JSON inside form fields; malformed values
// are a 400 here instead of being parsed best-effort and dropped.
type createCapsuleRequest struct {
	Title      string              `json:"title"`
	Content    string              `json:"content"`
	UnlockDate string              `json:"unlock_date"`
	Type       string              `json:"type"`
	Mood       string              `json:"mood"`
	Tags       []string            `json:"tags"`
	MediaURLs  []mediaURLPayload   `json:"media_urls"`
	files      []*multipart.FileHeader
}

type mediaURLPayload struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// capsuleResponse is the externally visible shape. Content is nil while
// the capsule is locked; the ciphertext itself never leaves the server.
type capsuleResponse struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Content    *string               `json:"content"`
	Type       string                `json:"type"`
	MediaURLs  []models.CapsuleMedia `json:"media_urls"`
	UnlockDate time.Time             `json:"unlock_date"`
	IsLocked   bool                  `json:"is_locked"`
	IsOpened   bool                  `json:"is_opened"`
	OpenedAt   *time.Time            `json:"opened_at,omitempty"`
	Tags       []string              `json:"tags"`
	Mood       string                `json:"mood"`
	CreatedAt  time.Time             `json:"created_at"`
}

func (h *CapsuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, err := h.parseCreateRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Title == "" || req.Content == "" || req.UnlockDate == "" {
		respondError(w, http.StatusBadRequest, "Title, content, and unlock date are required")
		return
	}

	unlockDate, err := time.Parse(time.RFC3339, req.UnlockDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid unlock date format, want RFC 3339")
		return
	}
	if !unlockDate.After(h.clock()) {
		respondError(w, http.StatusBadRequest, "Unlock date must be in the future")
		return
	}

	mood := req.Mood
	if mood == "" {
		mood = models.DefaultMood
	}
	if !models.ValidMood(mood) {
		respondError(w, http.StatusBadRequest, "Unknown mood: "+mood)
		return
	}

	var media []models.CapsuleMedia
	for _, m := range req.MediaURLs {
		if m.URL == "" || !models.ValidMediaType(m.Type) {
			respondError(w, http.StatusBadRequest, "Invalid media entry")
			return
		}
		media = append(media, models.CapsuleMedia{URL: m.URL, MediaType: m.Type})
	}

	// All uploads happen before the capsule row exists; a failed upload
	// aborts the whole create so no capsule ever points at missing media.
	uploaded, err := h.uploadFiles(r, userID, req.files)
	if err != nil {
		log.Printf("media upload failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to upload media")
		return
	}
	media = append(uploaded, media...)

	capsuleType := req.Type
	if capsuleType == "" {
		capsuleType = models.CapsuleTypeText
		if len(media) > 0 {
			capsuleType = models.CapsuleTypeMixed
		}
	}
	if !models.ValidCapsuleType(capsuleType) {
		respondError(w, http.StatusBadRequest, "Unknown capsule type: "+capsuleType)
		return
	}

	encrypted, err := h.cipher.Encrypt(req.Content)
	if err != nil {
		log.Printf("content encryption failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	capsule := &models.Capsule{
		ID:         uuid.New().String(),
		UserID:     userID,
		Title:      req.Title,
		Content:    encrypted,
		Type:       capsuleType,
		MediaURLs:  media,
		UnlockDate: unlockDate.UTC(),
		IsLocked:   true,
		Tags:       req.Tags,
		Mood:       mood,
		CreatedAt:  h.clock().UTC(),
	}

	if err := h.store.CreateCapsule(r.Context(), capsule); err != nil {
		log.Printf("failed to save capsule: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save capsule")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Time capsule created successfully",
		"capsule": capsuleResponse{
			ID:         capsule.ID,
			Title:      capsule.Title,
			Type:       capsule.Type,
			UnlockDate: capsule.UnlockDate,
			IsLocked:   capsule.IsLocked,
			Tags:       capsule.Tags,
			Mood:       capsule.Mood,
			CreatedAt:  capsule.CreatedAt,
		},
	})
}

func (h *CapsuleHandler) parseCreateRequest(r *http.Request) (*createCapsuleRequest, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/json") {
		var req createCapsuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.New("invalid request body")
		}
		return &req, nil
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, errors.New("invalid multipart form")
	}

	req := &createCapsuleRequest{
		Title:      r.FormValue("title"),
		Content:    r.FormValue("content"),
		UnlockDate: r.FormValue("unlock_date"),
		Type:       r.FormValue("type"),
		Mood:       r.FormValue("mood"),
	}

	if tags := r.FormValue("tags"); tags != "" {
		if err := json.Unmarshal([]byte(tags), &req.Tags); err != nil {
			return nil, errors.New("tags must be a JSON array of strings")
		}
	}

	if r.MultipartForm != nil {
		req.files = r.MultipartForm.File["media"]
		if len(req.files) > maxMediaFiles {
			return nil, fmt.Errorf("at most %d media files allowed", maxMediaFiles)
		}
	}

	return req, nil
}

func (h *CapsuleHandler) uploadFiles(r *http.Request, userID string, files []*multipart.FileHeader) ([]models.CapsuleMedia, error) {
	if len(files) > 0 && h.media == nil {
		return nil, fmt.Errorf("media uploads are not configured")
	}

	var uploaded []models.CapsuleMedia

	for _, header := range files {
		if header.Size > maxMediaFileSize {
			return nil, fmt.Errorf("file %s exceeds the 10MB limit", header.Filename)
		}

		contentType := header.Header.Get("Content-Type")
		var mediaType string
		switch {
		case strings.HasPrefix(contentType, "image/"):
			mediaType = models.MediaTypeImage
		case strings.HasPrefix(contentType, "video/"):
			mediaType = models.MediaTypeVideo
		default:
			return nil, fmt.Errorf("only images and videos allowed, got %s", contentType)
		}

		file, err := header.Open()
		if err != nil {
			return nil, err
		}

		key := fmt.Sprintf("%s/%s", userID, uuid.New().String())
		url, err := h.media.Upload(r.Context(), key, contentType, file)
		file.Close()
		if err != nil {
			return nil, err
		}

		uploaded = append(uploaded, models.CapsuleMedia{
			URL:        url,
			MediaType:  mediaType,
			StorageKey: key,
		})
	}

	return uploaded, nil
}

func (h *CapsuleHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" && status != "locked" && status != "unlocked" {
		respondError(w, http.StatusBadRequest, "status must be 'locked' or 'unlocked'")
		return
	}

	capsules, err := h.store.ListCapsules(r.Context(), userID, status)
	if err != nil {
		log.Printf("failed to list capsules: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	list := make([]capsuleResponse, 0, len(capsules))
	for i := range capsules {
		c := &capsules[i]
		list = append(list, capsuleResponse{
			ID:         c.ID,
			Title:      c.Title,
			Type:       c.Type,
			UnlockDate: c.UnlockDate,
			IsLocked:   c.IsLocked,
			IsOpened:   c.IsOpened,
			OpenedAt:   c.OpenedAt,
			Tags:       c.Tags,
			Mood:       c.Mood,
			CreatedAt:  c.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "capsules": list})
}

func (h *CapsuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	capsule, err := h.store.GetCapsule(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Capsule not found")
			return
		}
		log.Printf("failed to fetch capsule: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	now := h.clock()
	resp := capsuleResponse{
		ID:         capsule.ID,
		Title:      capsule.Title,
		Type:       capsule.Type,
		UnlockDate: capsule.UnlockDate,
		IsLocked:   capsule.IsLocked,
		IsOpened:   capsule.IsOpened,
		OpenedAt:   capsule.OpenedAt,
		Tags:       capsule.Tags,
		Mood:       capsule.Mood,
		CreatedAt:  capsule.CreatedAt,
		MediaURLs:  []models.CapsuleMedia{},
	}

	// The gate is checked live against the unlock instant; the stored flag
	// may lag behind until the next sweep.
	if !policy.CapsuleVisible(capsule, now) {
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "capsule": resp})
		return
	}

	content, err := h.cipher.Decrypt(capsule.Content)
	if err != nil {
		// An eligible read that fails to decrypt means corrupt data, not
		// a control-flow branch. Detail stays in the log.
		log.Printf("decrypt failed for capsule %s: %v", capsule.ID, err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	if !capsule.IsOpened {
		openedAt := now.UTC()
		flipped, err := h.store.MarkCapsuleOpened(r.Context(), capsule.ID, openedAt)
		if err != nil {
			log.Printf("failed to mark capsule %s opened: %v", capsule.ID, err)
		} else if flipped {
			resp.IsOpened = true
			resp.OpenedAt = &openedAt
		}
	}

	resp.Content = &content
	resp.MediaURLs = capsule.MediaURLs
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "capsule": resp})
}

func (h *CapsuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	capsule, err := h.store.DeleteCapsule(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Capsule not found")
			return
		}
		log.Printf("failed to delete capsule: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	// Blob deletes are best-effort and not transactional with the row
	// delete; a stale blob is a warning, not a failed request.
	for _, media := range capsule.MediaURLs {
		if media.StorageKey == "" || h.media == nil {
			continue
		}
		if err := h.media.Delete(r.Context(), media.StorageKey); err != nil {
			log.Printf("warning: failed to delete media %s: %v", media.StorageKey, err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Capsule deleted successfully"})
}

func (h *CapsuleHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	stats, err := h.store.DashboardStats(r.Context(), userID)
	if err != nil {
		log.Printf("failed to load dashboard stats: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

type moodTrend struct {
	Mood       string  `json:"mood"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

func (h *CapsuleHandler) EmotionTimeline(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	points, err := h.store.MoodTimeline(r.Context(), userID)
	if err != nil {
		log.Printf("failed to load mood timeline: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	counts := make(map[string]int)
	for _, p := range points {
		counts[p.Mood]++
	}

	trends := make([]moodTrend, 0, len(counts))
	for _, mood := range models.Moods {
		count := counts[mood]
		if count == 0 {
			continue
		}
		trends = append(trends, moodTrend{
			Mood:       mood,
			Count:      count,
			Percentage: float64(count) / float64(len(points)) * 100,
		})
	}
	// Most common mood first
	for i := 0; i < len(trends); i++ {
		for j := i + 1; j < len(trends); j++ {
			if trends[j].Count > trends[i].Count {
				trends[i], trends[j] = trends[j], trends[i]
			}
		}
	}

	if points == nil {
		points = []storage.MoodPoint{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"timeline":      points,
			"moodTrends":    trends,
			"totalCapsules": len(points),
		},
	})
}
