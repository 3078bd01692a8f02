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
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/timevaultapp/timevault/backend/crypto"
	"github.com/timevaultapp/timevault/backend/middleware"
	"github.com/timevaultapp/timevault/backend/storage/memory"
)

const testUserID = "user-1"

type capsuleEnv struct {
	handler *CapsuleHandler
	store   *memory.Store
	now     time.Time
}

func newCapsuleEnv(t *testing.T) *capsuleEnv {
	t.Helper()
	env := &capsuleEnv{
		store: memory.NewStore(),
		now:   time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	env.handler = NewCapsuleHandler(env.store, crypto.NewCipher("capsule-test-key"), nil)
	env.handler.clock = func() time.Time { return env.now }
	return env
}

func (env *capsuleEnv) do(t *testing.T, handler http.HandlerFunc, method, path string, body any, vars map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithUserID(req.Context(), testUserID))
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func (env *capsuleEnv) create(t *testing.T, title, content string, unlockDate time.Time) string {
	t.Helper()
	w := env.do(t, env.handler.Create, "POST", "/api/capsules", map[string]any{
		"title":       title,
		"content":     content,
		"unlock_date": unlockDate.Format(time.RFC3339),
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Capsule capsuleResponse `json:"capsule"`
	}
	decodeBody(t, w, &resp)
	return resp.Capsule.ID
}

func TestCreateCapsuleValidation(t *testing.T) {
	env := newCapsuleEnv(t)
	future := env.now.Add(24 * time.Hour).Format(time.RFC3339)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"content": "x", "unlock_date": future}},
		{"missing content", map[string]any{"title": "x", "unlock_date": future}},
		{"missing date", map[string]any{"title": "x", "content": "x"}},
		{"bad date format", map[string]any{"title": "x", "content": "x", "unlock_date": "tomorrow"}},
		{"past date", map[string]any{"title": "x", "content": "x", "unlock_date": env.now.Add(-time.Hour).Format(time.RFC3339)}},
		{"unknown mood", map[string]any{"title": "x", "content": "x", "unlock_date": future, "mood": "smug"}},
		{"unknown type", map[string]any{"title": "x", "content": "x", "unlock_date": future, "type": "hologram"}},
	}
	for _, tc := range cases {
		if w := env.do(t, env.handler.Create, "POST", "/api/capsules", tc.body, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, w.Code)
		}
	}
}

func TestCreateCapsuleDefaults(t *testing.T) {
	env := newCapsuleEnv(t)
	w := env.do(t, env.handler.Create, "POST", "/api/capsules", map[string]any{
		"title":       "Dear future me",
		"content":     "remember this",
		"unlock_date": env.now.Add(24 * time.Hour).Format(time.RFC3339),
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Capsule capsuleResponse `json:"capsule"`
	}
	decodeBody(t, w, &resp)
	if resp.Capsule.Type != "text" {
		t.Errorf("type = %q, want text", resp.Capsule.Type)
	}
	if resp.Capsule.Mood != "reflective" {
		t.Errorf("mood = %q, want reflective", resp.Capsule.Mood)
	}
	if !resp.Capsule.IsLocked {
		t.Error("new capsule should be locked")
	}
}

func TestCreateCapsuleStoresCiphertext(t *testing.T) {
	env := newCapsuleEnv(t)
	id := env.create(t, "Secret", "the plaintext", env.now.Add(24*time.Hour))

	stored, err := env.store.GetCapsuleForShare(context.Background(), id)
	if err != nil {
		t.Fatalf("fetch stored capsule: %v", err)
	}
	if stored.Content == "the plaintext" {
		t.Fatal("capsule content stored as plaintext")
	}
}

func TestCapsuleLifecycle(t *testing.T) {
	env := newCapsuleEnv(t)
	id := env.create(t, "Dear future me", "remember this", env.now.Add(24*time.Hour))
	vars := map[string]string{"id": id}

	// Still locked: metadata only.
	w := env.do(t, env.handler.Get, "GET", "/api/capsules/"+id, nil, vars)
	if w.Code != http.StatusOK {
		t.Fatalf("locked get status = %d", w.Code)
	}
	var locked struct {
		Capsule capsuleResponse `json:"capsule"`
	}
	decodeBody(t, w, &locked)
	if locked.Capsule.Content != nil {
		t.Fatal("locked capsule disclosed content")
	}
	if locked.Capsule.Title != "Dear future me" {
		t.Error("metadata should be visible while locked")
	}
	if locked.Capsule.IsOpened {
		t.Error("locked capsule cannot be opened")
	}

	// Past the unlock instant the content discloses even though no sweep
	// has flipped the stored flag yet.
	env.now = env.now.Add(25 * time.Hour)
	w = env.do(t, env.handler.Get, "GET", "/api/capsules/"+id, nil, vars)
	var opened struct {
		Capsule capsuleResponse `json:"capsule"`
	}
	decodeBody(t, w, &opened)
	if opened.Capsule.Content == nil || *opened.Capsule.Content != "remember this" {
		t.Fatalf("content = %v, want decrypted plaintext", opened.Capsule.Content)
	}
	if !opened.Capsule.IsOpened || opened.Capsule.OpenedAt == nil {
		t.Fatal("first eligible read should mark the capsule opened")
	}
	firstOpened := *opened.Capsule.OpenedAt

	// A later read keeps the original opened timestamp.
	env.now = env.now.Add(time.Hour)
	w = env.do(t, env.handler.Get, "GET", "/api/capsules/"+id, nil, vars)
	var again struct {
		Capsule capsuleResponse `json:"capsule"`
	}
	decodeBody(t, w, &again)
	if again.Capsule.OpenedAt == nil || !again.Capsule.OpenedAt.Equal(firstOpened) {
		t.Errorf("OpenedAt = %v, want unchanged %v", again.Capsule.OpenedAt, firstOpened)
	}
}

func TestGetCapsuleNotFound(t *testing.T) {
	env := newCapsuleEnv(t)
	id := env.create(t, "Mine", "content", env.now.Add(time.Hour))

	// Unknown ID
	w := env.do(t, env.handler.Get, "GET", "/api/capsules/nope", nil, map[string]string{"id": "nope"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}

	// Someone else's capsule reads the same as a missing one.
	req := httptest.NewRequest("GET", "/api/capsules/"+id, nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), "intruder"))
	req = mux.SetURLVars(req, map[string]string{"id": id})
	rec := httptest.NewRecorder()
	env.handler.Get(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign capsule status = %d, want 404", rec.Code)
	}
}

func TestListCapsulesStatusFilter(t *testing.T) {
	env := newCapsuleEnv(t)
	env.create(t, "Locked one", "a", env.now.Add(24*time.Hour))
	unlockedID := env.create(t, "Unlocked one", "b", env.now.Add(time.Minute))

	// Flip the second capsule the way the sweep would.
	if _, err := env.store.MarkCapsuleUnlocked(context.Background(), unlockedID); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	w := env.do(t, env.handler.List, "GET", "/api/capsules?status=locked", nil, nil)
	var resp struct {
		Capsules []capsuleResponse `json:"capsules"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Capsules) != 1 || resp.Capsules[0].Title != "Locked one" {
		t.Errorf("locked filter returned %+v", resp.Capsules)
	}

	if w := env.do(t, env.handler.List, "GET", "/api/capsules?status=sideways", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", w.Code)
	}
}

func TestListCapsulesOmitsContent(t *testing.T) {
	env := newCapsuleEnv(t)
	env.create(t, "Secret", "the plaintext", env.now.Add(time.Hour))

	w := env.do(t, env.handler.List, "GET", "/api/capsules", nil, nil)
	if bytes.Contains(w.Body.Bytes(), []byte("the plaintext")) {
		t.Error("list response leaked capsule content")
	}
}

func TestDeleteCapsule(t *testing.T) {
	env := newCapsuleEnv(t)
	id := env.create(t, "Doomed", "content", env.now.Add(time.Hour))
	vars := map[string]string{"id": id}

	if w := env.do(t, env.handler.Delete, "DELETE", "/api/capsules/"+id, nil, vars); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := env.do(t, env.handler.Get, "GET", "/api/capsules/"+id, nil, vars); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := env.do(t, env.handler.Delete, "DELETE", "/api/capsules/"+id, nil, vars); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestCreateCapsuleMultipartBadTags(t *testing.T) {
	env := newCapsuleEnv(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	form.WriteField("title", "With tags")
	form.WriteField("content", "x")
	form.WriteField("unlock_date", env.now.Add(time.Hour).Format(time.RFC3339))
	form.WriteField("tags", "not-json")
	form.Close()

	req := httptest.NewRequest("POST", "/api/capsules", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req = req.WithContext(middleware.WithUserID(req.Context(), testUserID))
	w := httptest.NewRecorder()
	env.handler.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed tags status = %d, want 400", w.Code)
	}
}

func TestDashboardStats(t *testing.T) {
	env := newCapsuleEnv(t)
	env.create(t, "Near", "a", env.now.Add(time.Hour))
	env.create(t, "Far", "b", env.now.Add(48*time.Hour))

	w := env.do(t, env.handler.DashboardStats, "GET", "/api/capsules/dashboard", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Stats struct {
			TotalCapsules  int `json:"total_capsules"`
			LockedCapsules int `json:"locked_capsules"`
			NextCapsule    *struct {
				Title string `json:"title"`
			} `json:"next_capsule"`
		} `json:"stats"`
	}
	decodeBody(t, w, &resp)
	if resp.Stats.TotalCapsules != 2 || resp.Stats.LockedCapsules != 2 {
		t.Errorf("stats = %+v", resp.Stats)
	}
	if resp.Stats.NextCapsule == nil || resp.Stats.NextCapsule.Title != "Near" {
		t.Errorf("next capsule = %+v, want the nearest locked one", resp.Stats.NextCapsule)
	}
}

func TestEmotionTimeline(t *testing.T) {
	env := newCapsuleEnv(t)
	for i, mood := range []string{"happy", "happy", "nostalgic"} {
		w := env.do(t, env.handler.Create, "POST", "/api/capsules", map[string]any{
			"title":       "Entry",
			"content":     "x",
			"unlock_date": env.now.Add(time.Duration(i+1) * time.Hour).Format(time.RFC3339),
			"mood":        mood,
		}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("create status = %d", w.Code)
		}
	}

	w := env.do(t, env.handler.EmotionTimeline, "GET", "/api/capsules/emotions", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Data struct {
			MoodTrends    []moodTrend `json:"moodTrends"`
			TotalCapsules int         `json:"totalCapsules"`
		} `json:"data"`
	}
	decodeBody(t, w, &resp)
	if resp.Data.TotalCapsules != 3 {
		t.Errorf("totalCapsules = %d, want 3", resp.Data.TotalCapsules)
	}
	if len(resp.Data.MoodTrends) != 2 || resp.Data.MoodTrends[0].Mood != "happy" {
		t.Fatalf("moodTrends = %+v, want happy first", resp.Data.MoodTrends)
	}
	if p := resp.Data.MoodTrends[0].Percentage; p < 66 || p > 67 {
		t.Errorf("happy percentage = %f, want about 66.7", p)
	}
}
