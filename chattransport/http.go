// Package chattransport implements supervisor.ChatTransport against the
// JSON/HTTP contract in spec §6: GET /chat-messages, GET /participants,
// POST /messages/send, POST /reactions, POST /typing.
package chattransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// HTTPTransport is the default ChatTransport, a thin JSON/HTTP client.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// New returns an HTTPTransport rooted at baseURL (no trailing slash).
func New(baseURL string) *HTTPTransport {
	return &HTTPTransport{baseURL: baseURL, client: &http.Client{Timeout: 30 * time.Second}}
}

type wireReactionUser struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type wireReaction struct {
	Emoji string              `json:"emoji"`
	Count int                 `json:"count"`
	Users []wireReactionUser `json:"users"`
}

type wireMessage struct {
	ID               string         `json:"id"`
	SenderID         string         `json:"senderId"`
	SenderUsername   string         `json:"senderUsername"`
	SenderFirstName  string         `json:"senderFirstName"`
	SenderLastName   string         `json:"senderLastName"`
	Text             string         `json:"text"`
	Date             time.Time      `json:"date"`
	Reactions        []wireReaction `json:"reactions"`
	ReplyToMessageID string         `json:"replyToMessageId"`
}

type chatMessagesResponse struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error"`
	Messages []wireMessage `json:"messages"`
}

// FetchMessages calls GET /chat-messages.
func (t *HTTPTransport) FetchMessages(ctx context.Context, phone, chatID string, limit int) ([]supervisor.Message, error) {
	q := url.Values{}
	q.Set("phone", phone)
	q.Set("chatId", chatID)
	q.Set("limit", strconv.Itoa(limit))

	var resp chatMessagesResponse
	if err := t.get(ctx, "/chat-messages?"+q.Encode(), &resp); err != nil {
		return nil, supervisor.WrapTransportError(err, "fetch messages")
	}
	if !resp.Success {
		return nil, supervisor.WrapTransportError(fmt.Errorf("%s", resp.Error), "fetch messages")
	}

	out := make([]supervisor.Message, 0, len(resp.Messages))
	for _, wm := range resp.Messages {
		m := supervisor.Message{
			MessageID:        wm.ID,
			SenderID:         wm.SenderID,
			SenderUsername:   wm.SenderUsername,
			SenderFirstName:  wm.SenderFirstName,
			SenderLastName:   wm.SenderLastName,
			Text:             wm.Text,
			Date:             wm.Date,
			Timestamp:        wm.Date.Format("2006-01-02T15:04:05.000Z"),
			ReplyToMessageID: wm.ReplyToMessageID,
		}
		if m.MessageID == "" {
			m.MessageID = "UNKNOWN_" + wm.Date.Format("20060102")
		}
		for _, wr := range wm.Reactions {
			r := supervisor.Reaction{Emoji: wr.Emoji, Count: wr.Count}
			for _, u := range wr.Users {
				r.Users = append(r.Users, u.Username)
			}
			m.Reactions = append(m.Reactions, r)
		}
		out = append(out, m)
	}
	return out, nil
}

type participantsResponse struct {
	Success            bool   `json:"success"`
	Error              string `json:"error"`
	ChatTitle          string `json:"chatTitle"`
	ChatDescription    string `json:"chatDescription"`
	ParticipantsCount  int    `json:"participantsCount"`
}

// FetchParticipants calls GET /participants.
func (t *HTTPTransport) FetchParticipants(ctx context.Context, phone, chatID string) (supervisor.GroupMetadata, error) {
	q := url.Values{}
	q.Set("phone", phone)
	q.Set("chatId", chatID)

	var resp participantsResponse
	if err := t.get(ctx, "/participants?"+q.Encode(), &resp); err != nil {
		return supervisor.GroupMetadata{}, supervisor.WrapTransportError(err, "fetch participants")
	}
	if !resp.Success {
		return supervisor.GroupMetadata{}, supervisor.WrapTransportError(fmt.Errorf("%s", resp.Error), "fetch participants")
	}
	return supervisor.GroupMetadata{
		ID:    chatID,
		Name:  resp.ChatTitle,
		Topic: resp.ChatDescription,
	}, nil
}

type sendRequest struct {
	FromPhone        string `json:"fromPhone"`
	ToTarget         string `json:"toTarget"`
	Content          struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
	ReplyToTimestamp string `json:"replyToTimestamp,omitempty"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SendMessage calls POST /messages/send.
func (t *HTTPTransport) SendMessage(ctx context.Context, fromPhone, toChatID, content string, replyToTimestamp string) error {
	req := sendRequest{FromPhone: fromPhone, ToTarget: toChatID, ReplyToTimestamp: replyToTimestamp}
	req.Content.Type = "text"
	req.Content.Value = content

	var resp successResponse
	if err := t.post(ctx, "/messages/send", req, &resp); err != nil {
		return supervisor.WrapTransportError(err, "send message")
	}
	if !resp.Success {
		return supervisor.WrapTransportError(fmt.Errorf("%s", resp.Error), "send message")
	}
	return nil
}

type reactionRequest struct {
	Phone            string `json:"phone"`
	ChatID           string `json:"chatId"`
	MessageTimestamp string `json:"messageTimestamp"`
	Emoji            string `json:"emoji"`
}

// AddReaction calls POST /reactions. messageTimestamp must already be
// ISO-8601 with milliseconds and a trailing Z (spec §6).
func (t *HTTPTransport) AddReaction(ctx context.Context, phone, chatID, messageTimestamp, emoji string) error {
	req := reactionRequest{Phone: phone, ChatID: chatID, MessageTimestamp: messageTimestamp, Emoji: emoji}
	var resp successResponse
	if err := t.post(ctx, "/reactions", req, &resp); err != nil {
		return supervisor.WrapTransportError(err, "add reaction")
	}
	if !resp.Success {
		return supervisor.WrapTransportError(fmt.Errorf("%s", resp.Error), "add reaction")
	}
	return nil
}

type typingRequest struct {
	Phone    string `json:"phone"`
	ChatID   string `json:"chatId"`
	Duration int64  `json:"duration"`
}

// ShowTyping calls POST /typing with duration in milliseconds.
func (t *HTTPTransport) ShowTyping(ctx context.Context, phone, chatID string, duration time.Duration) error {
	req := typingRequest{Phone: phone, ChatID: chatID, Duration: duration.Milliseconds()}
	var resp successResponse
	if err := t.post(ctx, "/typing", req, &resp); err != nil {
		return supervisor.WrapTransportError(err, "show typing")
	}
	return nil
}

func (t *HTTPTransport) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return err
	}
	return t.do(req, out)
}

func (t *HTTPTransport) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, out)
}

func (t *HTTPTransport) do(req *http.Request, out any) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("chattransport: %s returned %d", req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
