package chat

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/medchat-dev/medchat/internal/api"
	"github.com/medchat-dev/medchat/internal/auth"
	"github.com/medchat-dev/medchat/internal/store"
	"github.com/medchat-dev/medchat/internal/testutil"
)

func newTestService(t *testing.T, backend *testutil.Backend) (*Service, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	creds, err := auth.LoadCredentials(st)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if err := creds.SetTokens("acc", "ref"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	client := api.NewClient(backend.URL(), creds)
	opts := Options{TopK: 6, Lang: "vi", Trace: true, BackfillLimit: 10}
	return NewService(client, st, nil, opts), st
}

func TestRefreshConversationsSortsByRecency(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	oldest := b.AddConvo("a", "2024-01-01T00:00:00", "2024-01-01T00:00:00")
	newest := b.AddConvo("b", "2024-01-02T00:00:00", "2024-03-01T00:00:00")
	// No updated_at: created_at is the fallback ordering key.
	middle := b.AddConvo("c", "2024-02-01T00:00:00", "")

	svc, _ := newTestService(t, b)
	if err := svc.RefreshConversations(context.Background()); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}

	got := svc.Conversations()
	if len(got) != 3 {
		t.Fatalf("conversations: got %d, want 3", len(got))
	}
	wantOrder := []string{newest, middle, oldest}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestSendTurnAutoTitlesExactlyOnce(t *testing.T) {
	b := testutil.NewBackend(t, "an answer")
	svc, _ := newTestService(t, b)

	ctx := context.Background()
	if _, err := svc.SendTurn(ctx, "Hello", false); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}

	id := svc.CurrentID()
	if id == "" {
		t.Fatal("SendTurn should auto-create a conversation")
	}
	if got := b.Title(id); got != "Hello" {
		t.Errorf("title after first turn: got %q, want %q", got, "Hello")
	}

	if _, err := svc.SendTurn(ctx, "Second question", false); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}
	if got := b.Title(id); got != "Hello" {
		t.Errorf("title after second turn: got %q, want %q", got, "Hello")
	}
	if calls := b.RenameCalls(); len(calls) != 1 {
		t.Errorf("rename calls: got %d, want 1", len(calls))
	}
}

func TestSendTurnTruncatesTitleTo60Runes(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	svc, _ := newTestService(t, b)

	long := strings.Repeat("q", 80)
	if _, err := svc.SendTurn(context.Background(), long, false); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}

	got := b.Title(svc.CurrentID())
	if len([]rune(got)) != TitleMaxRunes {
		t.Errorf("title length: got %d runes, want %d", len([]rune(got)), TitleMaxRunes)
	}
}

func TestSendTurnBuildsHistoryPairs(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	id := b.AddConvo("Seeded", "2024-01-01T00:00:00", "2024-01-01T00:00:00")
	b.AddMessage(id, testutil.Msg{Role: "user", MType: "text", Content: "first q"})
	b.AddMessage(id, testutil.Msg{Role: "bot", MType: "text", Content: "first a"})
	b.AddMessage(id, testutil.Msg{Role: "user", MType: "image", Content: "caption", ImagePath: "/uploads/x.png"})
	b.AddMessage(id, testutil.Msg{Role: "bot", MType: "text", Content: "image a"})

	svc, _ := newTestService(t, b)
	ctx := context.Background()
	if err := svc.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}
	if err := svc.SelectConversation(ctx, id); err != nil {
		t.Fatalf("SelectConversation failed: %v", err)
	}
	if _, err := svc.SendTurn(ctx, "next q", false); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}

	req := b.LastChatRequest()
	hist, ok := req["history"].([]any)
	if !ok {
		t.Fatalf("history missing from request: %v", req)
	}
	// Image turns are excluded; only the text pair survives.
	if len(hist) != 1 {
		t.Fatalf("history pairs: got %d, want 1", len(hist))
	}
	pair := hist[0].([]any)
	if pair[0] != "first q" || pair[1] != "first a" {
		t.Errorf("history pair: got %v", pair)
	}
}

func TestSelectConversationAbsolutizesImagePaths(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	id := b.AddConvo("x", "2024-01-01T00:00:00", "")
	b.AddMessage(id, testutil.Msg{Role: "user", MType: "image", ImagePath: "/uploads/pic.png"})

	svc, _ := newTestService(t, b)
	ctx := context.Background()
	if err := svc.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}
	if err := svc.SelectConversation(ctx, id); err != nil {
		t.Fatalf("SelectConversation failed: %v", err)
	}

	msgs := svc.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages: got %d, want 1", len(msgs))
	}
	want := b.URL() + "/uploads/pic.png"
	if msgs[0].ImagePath != want {
		t.Errorf("image path: got %q, want %q", msgs[0].ImagePath, want)
	}
}

func TestSelectConversationPersistsLastActive(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	id := b.AddConvo("x", "2024-01-01T00:00:00", "")

	svc, st := newTestService(t, b)
	ctx := context.Background()
	if err := svc.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}
	if err := svc.SelectConversation(ctx, id); err != nil {
		t.Fatalf("SelectConversation failed: %v", err)
	}

	got, err := st.Get(store.KeyLastConvo)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != id {
		t.Errorf("last-active: got %q, want %q", got, id)
	}
}

func TestSelectConversationFallsBackToMirrorWhenOffline(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	id := b.AddConvo("x", "2024-01-01T00:00:00", "")
	b.AddMessage(id, testutil.Msg{Role: "user", MType: "text", Content: "cached q"})

	svc, _ := newTestService(t, b)
	ctx := context.Background()
	if err := svc.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}
	if err := svc.SelectConversation(ctx, id); err != nil {
		t.Fatalf("SelectConversation failed: %v", err)
	}

	// Backend gone: the mirrored history still renders.
	b.Server.Close()
	if err := svc.SelectConversation(ctx, id); err != nil {
		t.Fatalf("SelectConversation offline failed: %v", err)
	}
	if !svc.Offline() {
		t.Error("Offline should report true after mirror fallback")
	}
	msgs := svc.Messages()
	if len(msgs) != 1 || msgs[0].Content != "cached q" {
		t.Errorf("mirrored messages: got %+v", msgs)
	}
}

func TestAttachImageKeepsSinglePendingBubble(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	svc, _ := newTestService(t, b)

	svc.AttachImage("first.png", []byte{1})
	svc.AttachImage("second.png", []byte{2})

	msgs := svc.Messages()
	pending := 0
	for _, m := range msgs {
		if m.Pending {
			pending++
			if m.ImagePath != "local:second.png" {
				t.Errorf("pending preview: got %q, want %q", m.ImagePath, "local:second.png")
			}
		}
	}
	if pending != 1 {
		t.Errorf("pending bubbles: got %d, want 1", pending)
	}
}

func TestImageTurnReconcilesPendingBubble(t *testing.T) {
	b := testutil.NewBackend(t, "looks benign")
	svc, _ := newTestService(t, b)
	ctx := context.Background()

	svc.AttachImage("rash.png", []byte{0x89})
	answer, err := svc.SendTurn(ctx, "", false)
	if err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}
	if answer != "looks benign" {
		t.Errorf("answer: got %q", answer)
	}

	msgs := svc.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want image bubble + bot reply", len(msgs))
	}
	img := msgs[0]
	if img.Pending {
		t.Error("image bubble should be reconciled, not pending")
	}
	want := b.URL() + "/uploads/stored.png"
	if img.ImagePath != want {
		t.Errorf("reconciled path: got %q, want %q", img.ImagePath, want)
	}
	if svc.HasAttachment() {
		t.Error("attachment should be consumed by the send")
	}
}

func TestFailedTurnKeepsOptimisticBubbleAndAppendsError(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	b.SetChatStatus(http.StatusInternalServerError)
	svc, _ := newTestService(t, b)

	if _, err := svc.SendTurn(context.Background(), "does this fail", false); err == nil {
		t.Fatal("expected send error, got nil")
	}

	msgs := svc.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want user bubble + error bubble", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "does this fail" {
		t.Errorf("optimistic bubble rolled back: %+v", msgs[0])
	}
	if msgs[1].Role != RoleBot || !strings.HasPrefix(msgs[1].Content, errorBubblePrefix) {
		t.Errorf("error bubble: %+v", msgs[1])
	}
}

func TestFailedImageTurnMarksBubbleFailed(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	b.SetChatStatus(http.StatusBadGateway)
	svc, _ := newTestService(t, b)

	svc.AttachImage("rash.png", []byte{1})
	if _, err := svc.SendTurn(context.Background(), "", false); err == nil {
		t.Fatal("expected send error, got nil")
	}

	msgs := svc.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want image bubble + error bubble", len(msgs))
	}
	if !msgs[0].Failed {
		t.Error("pending image bubble should be marked failed")
	}
	if !msgs[0].Pending {
		t.Error("failed image bubble stays pending until a successful send")
	}
}

func TestBackfillProcessesAtMostLimit(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	for i := 0; i < 12; i++ {
		id := b.AddConvo("conversation", "2024-01-01T00:00:00", "")
		b.AddMessage(id, testutil.Msg{Role: "user", MType: "text", Content: "question"})
	}

	svc, _ := newTestService(t, b)
	ctx := context.Background()
	if err := svc.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}

	renamed := svc.BackfillTitles(ctx, 10)
	if renamed != 10 {
		t.Errorf("renamed: got %d, want 10", renamed)
	}

	remaining := 0
	for _, c := range svc.Conversations() {
		if IsPlaceholderTitle(c.Title) {
			remaining++
		}
	}
	if remaining != 2 {
		t.Errorf("untouched placeholders: got %d, want 2", remaining)
	}
}

func TestBackfillFallsBackToImageCaption(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	id := b.AddConvo("conversation", "2024-01-01T00:00:00", "")
	b.AddMessage(id, testutil.Msg{Role: "user", MType: "image", Content: "what is this rash", ImagePath: "/uploads/x.png"})
	b.AddMessage(id, testutil.Msg{Role: "bot", MType: "text", Content: "an answer"})

	// A conversation with no usable user text is skipped, not fatal.
	empty := b.AddConvo("conversation", "2024-01-01T00:00:00", "")
	b.AddMessage(empty, testutil.Msg{Role: "bot", MType: "text", Content: "orphan"})

	svc, _ := newTestService(t, b)
	ctx := context.Background()
	if err := svc.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}

	renamed := svc.BackfillTitles(ctx, 0)
	if renamed != 1 {
		t.Errorf("renamed: got %d, want 1", renamed)
	}
	if got := b.Title(id); got != "what is this rash" {
		t.Errorf("backfilled title: got %q", got)
	}
}

type recordingSpeaker struct {
	spoken []string
}

func (r *recordingSpeaker) Speak(text string) {
	r.spoken = append(r.spoken, text)
}

func TestVoiceOriginatedTurnTriggersPlayback(t *testing.T) {
	b := testutil.NewBackend(t, "spoken answer")
	svc, _ := newTestService(t, b)
	svc.opts.TTS = true
	sp := &recordingSpeaker{}
	svc.SetSpeaker(sp)

	ctx := context.Background()
	if _, err := svc.SendTurn(ctx, "typed question", false); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}
	if len(sp.spoken) != 0 {
		t.Errorf("typed turn should not speak, got %v", sp.spoken)
	}

	if _, err := svc.SendTurn(ctx, "voiced question", true); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}
	if len(sp.spoken) != 1 || sp.spoken[0] != "spoken answer" {
		t.Errorf("voice turn playback: got %v", sp.spoken)
	}
}

func TestDeleteActiveConversationClearsState(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	id := b.AddConvo("x", "2024-01-01T00:00:00", "")

	svc, st := newTestService(t, b)
	ctx := context.Background()
	if err := svc.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}
	if err := svc.SelectConversation(ctx, id); err != nil {
		t.Fatalf("SelectConversation failed: %v", err)
	}

	if err := svc.DeleteConversation(ctx, id); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if svc.CurrentID() != "" {
		t.Error("active conversation should be cleared after delete")
	}
	if last, _ := st.Get(store.KeyLastConvo); last != "" {
		t.Errorf("last-active after delete: got %q, want empty", last)
	}
}

func TestRestoreLastSelectsPersistedConversation(t *testing.T) {
	b := testutil.NewBackend(t, "ok")
	id := b.AddConvo("x", "2024-01-01T00:00:00", "")
	b.AddMessage(id, testutil.Msg{Role: "user", MType: "text", Content: "hello"})

	svc, st := newTestService(t, b)
	ctx := context.Background()
	if err := st.Set(store.KeyLastConvo, id); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := svc.RefreshConversations(ctx); err != nil {
		t.Fatalf("RefreshConversations failed: %v", err)
	}
	if err := svc.RestoreLast(ctx); err != nil {
		t.Fatalf("RestoreLast failed: %v", err)
	}
	if svc.CurrentID() != id {
		t.Errorf("current: got %q, want %q", svc.CurrentID(), id)
	}
	if len(svc.Messages()) != 1 {
		t.Errorf("messages: got %d, want 1", len(svc.Messages()))
	}

	// A stale last-active id pointing at a deleted conversation is ignored.
	if err := st.Set(store.KeyLastConvo, "gone"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := svc.RestoreLast(ctx); err != nil {
		t.Fatalf("RestoreLast with stale id failed: %v", err)
	}
	if svc.CurrentID() != id {
		t.Errorf("stale restore changed current to %q", svc.CurrentID())
	}
}
