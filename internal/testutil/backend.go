// Package testutil provides test helper utilities for medchat tests.
// This file implements an in-memory fake of the MedChat backend.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Convo is one conversation held by the fake backend.
type Convo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Msg is one stored message held by the fake backend.
type Msg struct {
	Role      string `json:"role"`
	MType     string `json:"mtype"`
	Content   string `json:"content"`
	ImagePath string `json:"image_path,omitempty"`
}

// RenameCall records one PATCH /conversations/{id}.
type RenameCall struct {
	ID    string
	Title string
}

// Backend is an in-memory MedChat backend for tests. Fields may be mutated
// between requests; all access is mutex-guarded.
type Backend struct {
	Server *httptest.Server

	mu          sync.Mutex
	convos      []Convo
	messages    map[string][]Msg
	renameCalls []RenameCall
	answer      string
	imagePath   string
	chatStatus  int
	lastChat    map[string]any
	nextID      int
}

// NewBackend starts a fake backend that answers every chat turn with answer.
// The server is shut down when the test finishes.
func NewBackend(t *testing.T, answer string) *Backend {
	t.Helper()

	b := &Backend{
		messages:  make(map[string][]Msg),
		answer:    answer,
		imagePath: "/uploads/stored.png",
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the fake backend's base URL.
func (b *Backend) URL() string {
	return b.Server.URL
}

// AddConvo seeds a conversation and returns its id.
func (b *Backend) AddConvo(title, createdAt, updatedAt string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := fmt.Sprintf("c%d", b.nextID)
	b.convos = append(b.convos, Convo{ID: id, Title: title, CreatedAt: createdAt, UpdatedAt: updatedAt})
	return id
}

// AddMessage seeds a stored message in a conversation.
func (b *Backend) AddMessage(convoID string, m Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[convoID] = append(b.messages[convoID], m)
}

// Title returns the current title of a conversation.
func (b *Backend) Title(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.convos {
		if c.ID == id {
			return c.Title
		}
	}
	return ""
}

// SetChatStatus forces /chat and /chat-image to answer with the given status.
// Zero restores normal behaviour.
func (b *Backend) SetChatStatus(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatStatus = code
}

// LastChatRequest returns the body of the most recent POST /chat.
func (b *Backend) LastChatRequest() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastChat
}

// RenameCalls returns every rename request received so far.
func (b *Backend) RenameCalls() []RenameCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RenameCall, len(b.renameCalls))
	copy(out, b.renameCalls)
	return out
}

func (b *Backend) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/conversations" && r.Method == http.MethodGet:
		b.mu.Lock()
		convos := append([]Convo(nil), b.convos...)
		b.mu.Unlock()
		writeJSON(w, convos)

	case path == "/conversations" && r.Method == http.MethodPost:
		var body struct {
			Title string `json:"title"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		title := strings.TrimSpace(body.Title)
		if title == "" {
			title = "conversation"
		}
		id := b.AddConvo(title, "2024-01-01T00:00:00", "2024-01-01T00:00:00")
		writeJSON(w, map[string]string{"id": id, "title": title})

	case strings.HasPrefix(path, "/conversations/") && strings.HasSuffix(path, "/messages"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/conversations/"), "/messages")
		b.mu.Lock()
		msgs := append([]Msg(nil), b.messages[id]...)
		b.mu.Unlock()
		writeJSON(w, msgs)

	case strings.HasPrefix(path, "/conversations/") && r.Method == http.MethodPatch:
		id := strings.TrimPrefix(path, "/conversations/")
		var body struct {
			Title string `json:"title"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.renameCalls = append(b.renameCalls, RenameCall{ID: id, Title: body.Title})
		for i := range b.convos {
			if b.convos[i].ID == id {
				b.convos[i].Title = body.Title
			}
		}
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)

	case strings.HasPrefix(path, "/conversations/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(path, "/conversations/")
		b.mu.Lock()
		kept := b.convos[:0]
		for _, c := range b.convos {
			if c.ID != id {
				kept = append(kept, c)
			}
		}
		b.convos = kept
		delete(b.messages, id)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case path == "/chat" && r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.lastChat = body
		answer, status := b.answer, b.chatStatus
		b.mu.Unlock()
		if status != 0 && status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			writeJSON(w, map[string]string{"detail": "chat unavailable"})
			return
		}
		convoID, _ := body["convo_id"].(string)
		writeJSON(w, map[string]string{"answer": answer, "convo_id": convoID})

	case path == "/chat-image" && r.Method == http.MethodPost:
		_ = r.ParseMultipartForm(1 << 20)
		b.mu.Lock()
		answer, imagePath, status := b.answer, b.imagePath, b.chatStatus
		b.mu.Unlock()
		if status != 0 && status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			writeJSON(w, map[string]string{"detail": "chat unavailable"})
			return
		}
		writeJSON(w, map[string]string{
			"answer":     answer,
			"image_path": imagePath,
			"convo_id":   r.FormValue("convo_id"),
		})

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
