// service.go implements the conversation store and the chat orchestrator:
// list synchronization, optimistic sends, reconciliation, and title upkeep.
package chat

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/medchat-dev/medchat/internal/api"
	"github.com/medchat-dev/medchat/internal/log"
	"github.com/medchat-dev/medchat/internal/store"
)

// errorBubblePrefix marks inline failure bubbles in the message stream.
const errorBubblePrefix = "❌ "

// Options carries the chat request parameters from config.
type Options struct {
	TopK          int
	Lang          string
	Trace         bool
	TTS           bool
	BackfillLimit int
}

// attachment is an image the user selected but has not sent yet.
type attachment struct {
	name string
	data []byte
}

// Service owns the in-memory conversation list and the active conversation's
// message sequence. All state is guarded by one mutex; network calls happen
// outside it so the UI can keep reading while a send is in flight.
type Service struct {
	client  *api.Client
	store   *store.Store
	logger  *log.Logger
	opts    Options
	speaker Speaker

	mu        sync.Mutex
	convos    []Conversation
	messages  []Message
	currentID string
	pending   *attachment
	offline   bool
}

// NewService constructs the conversation store over the given backend client
// and local state store.
func NewService(client *api.Client, st *store.Store, logger *log.Logger, opts Options) *Service {
	return &Service{client: client, store: st, logger: logger, opts: opts}
}

// SetSpeaker installs the text-to-speech sink used for voice-originated turns.
func (s *Service) SetSpeaker(sp Speaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaker = sp
}

// Conversations returns a copy of the cached conversation list, most recently
// updated first.
func (s *Service) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.convos))
	copy(out, s.convos)
	return out
}

// Messages returns a copy of the active conversation's message sequence.
func (s *Service) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// CurrentID returns the active conversation id, or "".
func (s *Service) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Current returns the active conversation, if any.
func (s *Service) Current() (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findConvoLocked(s.currentID)
}

// Reset drops all cached state. Used on logout so a following login starts
// from a clean slate.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convos = nil
	s.messages = nil
	s.currentID = ""
	s.pending = nil
	s.offline = false
}

// Offline reports whether the last message load fell back to the local mirror.
func (s *Service) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

func (s *Service) findConvoLocked(id string) (Conversation, bool) {
	for _, c := range s.convos {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// RefreshConversations fetches and replaces the conversation list, sorted by
// updated_at falling back to created_at, descending.
func (s *Service) RefreshConversations(ctx context.Context) error {
	raw, err := s.client.Conversations(ctx)
	if err != nil {
		return err
	}

	convos := make([]Conversation, 0, len(raw))
	for _, c := range raw {
		convos = append(convos, Conversation{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	sort.SliceStable(convos, func(i, j int) bool {
		return convos[i].recency().After(convos[j].recency())
	})

	s.mu.Lock()
	s.convos = convos
	s.mu.Unlock()
	return nil
}

// SelectConversation makes id the active conversation: fetches its history,
// normalizes image paths against the backend origin, replaces the in-memory
// sequence, and records id as last-active. If the backend is unreachable the
// locally mirrored history is shown instead.
func (s *Service) SelectConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	s.currentID = id
	s.mu.Unlock()
	_ = s.store.Set(store.KeyLastConvo, id)

	raw, err := s.client.Messages(ctx, id)
	if err != nil {
		if cached, cacheErr := s.store.CachedMessages(id); cacheErr == nil && len(cached) > 0 {
			msgs := make([]Message, 0, len(cached))
			for _, m := range cached {
				msgs = append(msgs, Message{Role: m.Role, MType: m.MType, Content: m.Content, ImagePath: m.ImagePath})
			}
			s.mu.Lock()
			s.messages = msgs
			s.offline = true
			s.mu.Unlock()
			return nil
		}
		return err
	}

	msgs := make([]Message, 0, len(raw))
	mirror := make([]store.CachedMessage, 0, len(raw))
	for _, m := range raw {
		path := m.ImagePath
		if m.MType == TypeImage {
			path = s.absolutize(path)
		}
		msgs = append(msgs, Message{Role: m.Role, MType: m.MType, Content: m.Content, ImagePath: path})
		mirror = append(mirror, store.CachedMessage{Role: m.Role, MType: m.MType, Content: m.Content, ImagePath: path})
	}
	_ = s.store.ReplaceMessages(id, mirror)

	s.mu.Lock()
	s.messages = msgs
	s.offline = false
	s.mu.Unlock()
	return nil
}

// RestoreLast reselects the conversation persisted as last-active, when it
// still exists in the fetched list.
func (s *Service) RestoreLast(ctx context.Context) error {
	last, err := s.store.Get(store.KeyLastConvo)
	if err != nil || last == "" {
		return err
	}
	s.mu.Lock()
	_, ok := s.findConvoLocked(last)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.SelectConversation(ctx, last)
}

// NewConversation creates a fresh conversation and makes it active.
func (s *Service) NewConversation(ctx context.Context) (string, error) {
	convo, err := s.client.CreateConversation(ctx, "")
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.currentID = convo.ID
	s.messages = nil
	s.offline = false
	s.mu.Unlock()
	_ = s.store.Set(store.KeyLastConvo, convo.ID)

	if err := s.RefreshConversations(ctx); err != nil {
		return convo.ID, err
	}
	return convo.ID, nil
}

// DeleteConversation removes a conversation server-side. Deleting the active
// conversation clears the active state and the last-active record.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	if err := s.client.DeleteConversation(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	wasActive := s.currentID == id
	if wasActive {
		s.currentID = ""
		s.messages = nil
	}
	s.mu.Unlock()
	if wasActive {
		_ = s.store.Delete(store.KeyLastConvo)
	}

	return s.RefreshConversations(ctx)
}

// AttachImage stages an image for the next turn and inserts its optimistic
// bubble. At most one pending image bubble exists per conversation: selecting
// another image replaces the staged bytes and the bubble in place.
func (s *Service) AttachImage(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &attachment{name: name, data: data}

	if idx := s.pendingImageIndexLocked(); idx != -1 {
		s.messages[idx].ImagePath = localPreviewPath(name)
		return
	}
	s.messages = append(s.messages, Message{
		Role:      RoleUser,
		MType:     TypeImage,
		ImagePath: localPreviewPath(name),
		Pending:   true,
		LocalID:   uuid.New().String(),
	})
}

// HasAttachment reports whether an image is staged for the next turn.
func (s *Service) HasAttachment() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// pendingImageIndexLocked finds the optimistic image bubble, scanning from
// the end. Returns -1 when none exists.
func (s *Service) pendingImageIndexLocked() int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.Pending && m.Role == RoleUser && m.MType == TypeImage {
			return i
		}
	}
	return -1
}

func localPreviewPath(name string) string {
	return "local:" + name
}

// SendTurn performs one user turn. The optimistic local update lands before
// any network call, a failed exchange appends an inline error bubble without
// rolling the optimistic entry back, and a successful reply triggers the
// one-time auto-title. voice marks the turn as voice-originated, which gates
// speech playback of the answer.
func (s *Service) SendTurn(ctx context.Context, text string, voice bool) (string, error) {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	att := s.pending
	s.mu.Unlock()
	hasImage := att != nil

	if text == "" && !hasImage {
		return "", nil
	}

	if _, err := s.ensureConversation(ctx); err != nil {
		return "", err
	}

	// Optimistic update, applied before the network call is issued.
	s.mu.Lock()
	if hasImage {
		if idx := s.pendingImageIndexLocked(); idx != -1 {
			if text != "" {
				s.messages[idx].Content = text
			}
		} else {
			s.messages = append(s.messages, Message{
				Role:      RoleUser,
				MType:     TypeImage,
				Content:   text,
				ImagePath: localPreviewPath(att.name),
				Pending:   true,
				LocalID:   uuid.New().String(),
			})
		}
	} else {
		s.messages = append(s.messages, Message{Role: RoleUser, MType: TypeText, Content: text})
	}
	history := s.buildHistoryLocked()
	convoID := s.currentID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
	}()

	var answer string
	if hasImage {
		resp, err := s.client.ChatImage(ctx, api.ChatImageRequest{
			Question:  text,
			ImageName: att.name,
			ImageData: att.data,
			ConvoID:   convoID,
			TopK:      s.opts.TopK,
			Lang:      s.opts.Lang,
			Trace:     s.opts.Trace,
		})
		if err != nil {
			s.appendFailure(convoID, err)
			return "", err
		}
		answer = resp.Answer

		s.mu.Lock()
		if idx := s.pendingImageIndexLocked(); idx != -1 {
			if serverPath := resp.ServerImagePath(); serverPath != "" {
				s.messages[idx].ImagePath = s.absolutize(serverPath)
			}
			s.messages[idx].Pending = false
		}
		s.mu.Unlock()
	} else {
		resp, err := s.client.Chat(ctx, api.ChatRequest{
			Question: text,
			History:  history,
			ConvoID:  convoID,
			TopK:     s.opts.TopK,
			Lang:     s.opts.Lang,
			Trace:    s.opts.Trace,
		})
		if err != nil {
			s.appendFailure(convoID, err)
			return "", err
		}
		answer = resp.Answer
	}

	s.maybeRenameFrom(ctx, text)

	s.mu.Lock()
	s.messages = append(s.messages, Message{Role: RoleBot, MType: TypeText, Content: answer})
	speaker := s.speaker
	s.mu.Unlock()

	if voice && s.opts.TTS && speaker != nil {
		speaker.Speak(answer)
	}

	s.logEvent(log.LogEvent{Event: log.EventSend, ConvoID: convoID})
	_ = s.RefreshConversations(ctx)

	return answer, nil
}

// appendFailure records an inline error bubble. The optimistic user entry
// stays in place for retry; a pending image bubble is additionally marked
// failed.
func (s *Service) appendFailure(convoID string, cause error) {
	s.mu.Lock()
	if idx := s.pendingImageIndexLocked(); idx != -1 {
		s.messages[idx].Failed = true
	}
	s.messages = append(s.messages, Message{
		Role:    RoleBot,
		MType:   TypeText,
		Content: errorBubblePrefix + cause.Error(),
	})
	s.mu.Unlock()

	s.logEvent(log.LogEvent{Event: log.EventSendFailed, ConvoID: convoID, Error: cause.Error()})
}

// ensureConversation auto-creates a conversation when none is active.
func (s *Service) ensureConversation(ctx context.Context) (string, error) {
	s.mu.Lock()
	id := s.currentID
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}
	return s.NewConversation(ctx)
}

// buildHistoryLocked reconstructs prior turns as [question, answer] pairs,
// oldest-first: each user text message paired with the next bot reply.
func (s *Service) buildHistoryLocked() [][2]string {
	var hist [][2]string
	for i, m := range s.messages {
		if m.Role != RoleUser || m.MType == TypeImage || m.Content == "" {
			continue
		}
		for _, next := range s.messages[i+1:] {
			if next.Role == RoleBot && next.Content != "" {
				hist = append(hist, [2]string{m.Content, next.Content})
				break
			}
		}
	}
	return hist
}

// maybeRenameFrom applies the one-time auto-title: if the active conversation
// still carries a placeholder title, rename it from the user's text. Failures
// are swallowed; the next turn simply tries again.
func (s *Service) maybeRenameFrom(ctx context.Context, text string) {
	title := TitleFromText(text)
	if title == "" {
		return
	}

	s.mu.Lock()
	cur, ok := s.findConvoLocked(s.currentID)
	s.mu.Unlock()
	if !ok || !IsPlaceholderTitle(cur.Title) {
		return
	}

	if err := s.client.RenameConversation(ctx, cur.ID, title); err != nil {
		return
	}

	s.mu.Lock()
	for i := range s.convos {
		if s.convos[i].ID == cur.ID {
			s.convos[i].Title = title
		}
	}
	s.mu.Unlock()

	s.logEvent(log.LogEvent{Event: log.EventTitleRenamed, ConvoID: cur.ID, Title: title})
}

// BackfillTitles sweeps up to limit conversations still carrying a
// placeholder title and names each from its first real user turn. Best
// effort: a failure for one conversation does not block the rest. Returns
// the number of conversations renamed.
func (s *Service) BackfillTitles(ctx context.Context, limit int) int {
	if limit <= 0 {
		limit = s.opts.BackfillLimit
	}

	s.mu.Lock()
	var targets []Conversation
	for _, c := range s.convos {
		if IsPlaceholderTitle(c.Title) {
			targets = append(targets, c)
			if len(targets) == limit {
				break
			}
		}
	}
	s.mu.Unlock()

	renamed := 0
	for _, c := range targets {
		msgs, err := s.client.Messages(ctx, c.ID)
		if err != nil {
			continue
		}
		title := TitleFromText(firstUserText(msgs))
		if title == "" {
			continue
		}
		if err := s.client.RenameConversation(ctx, c.ID, title); err != nil {
			continue
		}

		s.mu.Lock()
		for i := range s.convos {
			if s.convos[i].ID == c.ID {
				s.convos[i].Title = title
			}
		}
		s.mu.Unlock()
		renamed++
	}

	s.logEvent(log.LogEvent{Event: log.EventBackfillComplete, Count: renamed})
	return renamed
}

// firstUserText picks the text to backfill a title from: the first user text
// turn, falling back to the first image turn's caption.
func firstUserText(msgs []api.Message) string {
	for _, m := range msgs {
		if m.Role == RoleUser && m.MType != TypeImage && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	for _, m := range msgs {
		if m.Role == RoleUser && m.MType == TypeImage && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}

// absoluteSchemes matches paths that are already resolvable as-is.
var absoluteSchemes = regexp.MustCompile(`(?i)^(data:|blob:|local:|https?://)`)

// absolutize resolves a relative image path against the backend origin.
func (s *Service) absolutize(p string) string {
	if p == "" || absoluteSchemes.MatchString(p) {
		return p
	}
	return fmt.Sprintf("%s/%s", s.client.BaseURL(), strings.TrimLeft(p, "/"))
}

func (s *Service) logEvent(event log.LogEvent) {
	if s.logger != nil {
		_ = s.logger.Append(event)
	}
}
