package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	events []string
}

func (r *recordingObserver) OnTickStart(ctx context.Context, chatID string, newMessages int) {
	r.events = append(r.events, "tick_start")
}
func (r *recordingObserver) OnTickEnd(ctx context.Context, chatID string, dispatched int, err error) {
	r.events = append(r.events, "tick_end")
}
func (r *recordingObserver) OnLLMCall(ctx context.Context, component, model string, dur time.Duration, err error) {
	r.events = append(r.events, "llm_call")
}
func (r *recordingObserver) OnNodeTransition(ctx context.Context, persona, from, to string) {
	r.events = append(r.events, "node_transition")
}
func (r *recordingObserver) OnSuspend(ctx context.Context, chatID string, pending int) {
	r.events = append(r.events, "suspend")
}
func (r *recordingObserver) OnResume(ctx context.Context, chatID string, decisions int) {
	r.events = append(r.events, "resume")
}
func (r *recordingObserver) OnError(ctx context.Context, component string, err error) {
	r.events = append(r.events, "error")
}

func TestCompositeForwardsToEveryItemAndSkipsNil(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	c := NewComposite(a, nil, b)

	c.OnTickStart(context.Background(), "chat-1", 3)
	c.OnError(context.Background(), "poller", errors.New("boom"))

	require.Equal(t, []string{"tick_start", "error"}, a.events)
	require.Equal(t, []string{"tick_start", "error"}, b.events)
}

func TestCompositeAddAppends(t *testing.T) {
	a := &recordingObserver{}
	c := NewComposite()
	c.Add(a)
	c.OnResume(context.Background(), "chat-1", 2)
	require.Equal(t, []string{"resume"}, a.events)
}

func TestJSONObserverEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	o := NewJSONObserver(&buf)

	o.OnTickStart(context.Background(), "chat-1", 4)
	o.OnLLMCall(context.Background(), "emotion", "gpt-4o", 120*time.Millisecond, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "tick_start", first["event"])
	require.Equal(t, "chat-1", first["chat_id"])
	require.Equal(t, float64(4), first["new_messages"])
}

func TestJSONObserverRecordsLLMErrors(t *testing.T) {
	var buf bytes.Buffer
	o := NewJSONObserver(&buf)

	o.OnLLMCall(context.Background(), "personality", "gpt-4o", 50*time.Millisecond, errors.New("rate limited"))

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &fields))
	require.Equal(t, "llm_error", fields["event"])
	require.Equal(t, "rate limited", fields["error"])
}

func TestMetricsObserverRecordsTickDurationAndDispatchCount(t *testing.T) {
	inst, err := newInstruments()
	require.NoError(t, err)
	m := NewMetricsObserver(inst)

	m.OnTickStart(context.Background(), "chat-1", 2)
	m.OnTickEnd(context.Background(), "chat-1", 3, nil)

	m.OnLLMCall(context.Background(), "personality", "gpt-4o", 200*time.Millisecond, nil)
	m.OnLLMCall(context.Background(), "emotion", "gpt-4o", 200*time.Millisecond, nil)

	m.OnNodeTransition(context.Background(), "nova", "validator", "text_generator")
	m.OnNodeTransition(context.Background(), "nova", "decision_maker", "text_generator")
}
