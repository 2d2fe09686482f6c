// endpoints.go contains the thin per-endpoint wrappers over the dispatcher
// and the wire types they exchange with the backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
)

// TokenPair is the credential pair returned by login, register and refresh.
// Refresh responses may omit the refresh token; callers must treat an empty
// field as "leave unchanged".
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserInfo is the authenticated user as reported by /me.
type UserInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Conversation is one entry of the server-side conversation list.
// Timestamps stay as the backend's strings; ordering is handled client-side.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Message is one turn of a conversation's stored history.
type Message struct {
	Role      string `json:"role"`  // "user" | "bot"
	MType     string `json:"mtype"` // "text" | "image"
	Content   string `json:"content"`
	ImagePath string `json:"image_path,omitempty"`
}

// ChatRequest is the body of POST /chat. History is [question, answer] pairs
// oldest-first.
type ChatRequest struct {
	Question string      `json:"question"`
	History  [][2]string `json:"history"`
	ConvoID  string      `json:"convo_id"`
	TopK     int         `json:"top_k"`
	Lang     string      `json:"lang"`
	Trace    bool        `json:"trace"`
}

// ChatResponse is the answer to a text turn.
type ChatResponse struct {
	Answer  string `json:"answer"`
	ConvoID string `json:"convo_id"`
	Trace   any    `json:"trace,omitempty"`
}

// ChatImageRequest is the multipart form for POST /chat-image.
type ChatImageRequest struct {
	Question  string
	ImageName string
	ImageData []byte
	ConvoID   string
	TopK      int
	Lang      string
	Trace     bool
}

// ChatImageResponse is the answer to an image turn. Backends have shipped the
// stored image location under several names.
type ChatImageResponse struct {
	Answer        string `json:"answer"`
	ConvoID       string `json:"convo_id"`
	ImagePath     string `json:"image_path"`
	ImageURL      string `json:"image_url"`
	SavedImageURL string `json:"saved_image_url"`
}

// ServerImagePath returns the first populated image location field.
func (r *ChatImageResponse) ServerImagePath() string {
	for _, p := range []string{r.ImagePath, r.ImageURL, r.SavedImageURL} {
		if p != "" {
			return p
		}
	}
	return ""
}

func convoPath(id string) string {
	return PathConversations + "/" + id
}

func messagesPath(id string) string {
	return convoPath(id) + "/messages"
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	payload := map[string]string{"username": username, "password": password}
	var pair TokenPair
	if err := c.doJSON(ctx, http.MethodPost, PathLogin, payload, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Register creates an account and returns its first token pair.
func (c *Client) Register(ctx context.Context, username, password string) (TokenPair, error) {
	payload := map[string]string{"username": username, "password": password}
	var pair TokenPair
	if err := c.doJSON(ctx, http.MethodPost, PathRegister, payload, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Logout notifies the backend that a refresh token is retired. The response
// is ignored; callers are expected to discard the error as well.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	payload := map[string]string{"refresh_token": refreshToken}
	return c.doJSON(ctx, http.MethodPost, PathLogout, payload, nil)
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (UserInfo, error) {
	var user UserInfo
	if err := c.doJSON(ctx, http.MethodGet, PathMe, nil, &user); err != nil {
		return UserInfo{}, err
	}
	return user, nil
}

// Conversations lists the user's conversations.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var convos []Conversation
	if err := c.doJSON(ctx, http.MethodGet, PathConversations, nil, &convos); err != nil {
		return nil, err
	}
	return convos, nil
}

// CreateConversation creates a conversation and returns its id and title.
func (c *Client) CreateConversation(ctx context.Context, title string) (Conversation, error) {
	payload := map[string]string{"title": title}
	var convo Conversation
	if err := c.doJSON(ctx, http.MethodPost, PathConversations, payload, &convo); err != nil {
		return Conversation{}, err
	}
	return convo, nil
}

// RenameConversation sets a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	payload := map[string]string{"title": title}
	return c.doJSON(ctx, http.MethodPatch, convoPath(id), payload, nil)
}

// DeleteConversation removes a conversation server-side.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, convoPath(id), nil, nil)
}

// Messages fetches the full stored history of a conversation.
func (c *Client) Messages(ctx context.Context, id string) ([]Message, error) {
	var msgs []Message
	if err := c.doJSON(ctx, http.MethodGet, messagesPath(id), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Chat sends a text turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var out ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, PathChat, req, &out); err != nil {
		return ChatResponse{}, err
	}
	return out, nil
}

// ChatImage sends an image turn as a multipart form.
func (c *Client) ChatImage(ctx context.Context, req ChatImageRequest) (ChatImageResponse, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if req.Question != "" {
		if err := form.WriteField("question", req.Question); err != nil {
			return ChatImageResponse{}, fmt.Errorf("build form: %w", err)
		}
	}
	if len(req.ImageData) > 0 {
		part, err := form.CreateFormFile("image", req.ImageName)
		if err != nil {
			return ChatImageResponse{}, fmt.Errorf("build form: %w", err)
		}
		if _, err := part.Write(req.ImageData); err != nil {
			return ChatImageResponse{}, fmt.Errorf("build form: %w", err)
		}
	}
	fields := map[string]string{
		"convo_id": req.ConvoID,
		"top_k":    strconv.Itoa(req.TopK),
		"lang":     req.Lang,
		"trace":    strconv.FormatBool(req.Trace),
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return ChatImageResponse{}, fmt.Errorf("build form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return ChatImageResponse{}, fmt.Errorf("build form: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.do(ctx, http.MethodPost, PathChatImage, header, buf.Bytes())
	if err != nil {
		return ChatImageResponse{}, err
	}
	if !resp.OK() {
		return ChatImageResponse{}, &APIError{Status: resp.Status, Payload: resp.Payload()}
	}

	var out ChatImageResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return ChatImageResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
