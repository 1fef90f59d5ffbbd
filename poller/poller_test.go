package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

type fakeTransport struct {
	messages []supervisor.Message
	err      error
}

func (f *fakeTransport) FetchMessages(ctx context.Context, phone, chatID string, limit int) ([]supervisor.Message, error) {
	return f.messages, f.err
}
func (f *fakeTransport) FetchParticipants(ctx context.Context, phone, chatID string) (supervisor.GroupMetadata, error) {
	return supervisor.GroupMetadata{}, nil
}
func (f *fakeTransport) SendMessage(ctx context.Context, fromPhone, toChatID, content, replyToTimestamp string) error {
	return nil
}
func (f *fakeTransport) AddReaction(ctx context.Context, phone, chatID, messageTimestamp, emoji string) error {
	return nil
}
func (f *fakeTransport) ShowTyping(ctx context.Context, phone, chatID string, duration time.Duration) error {
	return nil
}

func personas() []supervisor.Persona {
	return []supervisor.Persona{{Name: "Nova", Username: "nova_bot"}}
}

func TestPollSkipsAlreadySeenIDs(t *testing.T) {
	transport := &fakeTransport{messages: []supervisor.Message{
		{MessageID: "m1", Text: "hi"},
		{MessageID: "m2", Text: "there"},
	}}
	p := New(transport, personas(), 0)
	ring := supervisor.NewSeenIDRing(1000)
	ring.Add("m1")

	out, err := p.Poll(context.Background(), "+1555", "chat-1", ring)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "m2", out[0].MessageID)
}

func TestPollMarksAgentAuthoredMessagesProcessed(t *testing.T) {
	transport := &fakeTransport{messages: []supervisor.Message{
		{MessageID: "m1", SenderUsername: "nova_bot", Text: "agent said hi"},
		{MessageID: "m2", SenderUsername: "human1", Text: "human said hi"},
	}}
	p := New(transport, personas(), 0)
	ring := supervisor.NewSeenIDRing(1000)

	out, err := p.Poll(context.Background(), "+1555", "chat-1", ring)
	require.NoError(t, err)
	require.True(t, out[0].Processed)
	require.False(t, out[1].Processed)
}

func TestPollSurfacesTransportFailure(t *testing.T) {
	transport := &fakeTransport{err: context.DeadlineExceeded}
	p := New(transport, personas(), 0)
	ring := supervisor.NewSeenIDRing(1000)

	_, err := p.Poll(context.Background(), "+1555", "chat-1", ring)
	require.Error(t, err)
}
