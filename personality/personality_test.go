package personality

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses map[string]string // keyed by substring of the system prompt (trait name)
	err       error
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, system, user, model string, temperature float64) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for trait, resp := range f.responses {
		if strings.Contains(system, trait) {
			return resp, nil
		}
	}
	return `{"score":3,"confidence":0.5,"justification":"default"}`, nil
}

func uniformResponses(score int, confidence float64) map[string]string {
	out := map[string]string{}
	for _, trait := range Traits {
		out[trait] = fmt.Sprintf(`{"score":%d,"confidence":%.2f,"justification":"ok"}`, score, confidence)
	}
	return out
}

type fakeMemory struct {
	participants map[string]*supervisor.ParticipantRecord
	saved        int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{participants: map[string]*supervisor.ParticipantRecord{}}
}

func (f *fakeMemory) LoadGroupMetadata(ctx context.Context, chatID string) (*supervisor.PersistedGroupMetadata, error) {
	return nil, nil
}
func (f *fakeMemory) SaveGroupMetadata(ctx context.Context, chatID string, meta supervisor.PersistedGroupMetadata) error {
	return nil
}
func (f *fakeMemory) LoadGroupHistory(ctx context.Context, chatID string) ([]supervisor.Message, error) {
	return nil, nil
}
func (f *fakeMemory) SaveGroupHistory(ctx context.Context, chatID string, messages []supervisor.Message) error {
	return nil
}
func (f *fakeMemory) LoadParticipant(ctx context.Context, chatID, userID string) (*supervisor.ParticipantRecord, error) {
	return f.participants[userID], nil
}
func (f *fakeMemory) SaveParticipant(ctx context.Context, chatID string, rec supervisor.ParticipantRecord) error {
	f.saved++
	r := rec
	f.participants[rec.UserID] = &r
	return nil
}
func (f *fakeMemory) LoadAgentActions(ctx context.Context, chatID, agentName string, limit int) ([]supervisor.ActionRecord, error) {
	return nil, nil
}
func (f *fakeMemory) SaveAgentActions(ctx context.Context, chatID, agentName string, records []supervisor.ActionRecord) error {
	return nil
}
func (f *fakeMemory) AppendOperatorDecision(ctx context.Context, groupID string, decision supervisor.OperatorDecisionLogEntry) error {
	return nil
}

var _ supervisor.MemoryStore = (*fakeMemory)(nil)

func optsWithMinMessages(min int) supervisor.Options {
	o := supervisor.DefaultOptions()
	o.MinMessagesForAnalysis = min
	return o
}

func TestAnalyzeSavesSnapshotWhenAboveThreshold(t *testing.T) {
	llm := &fakeLLM{responses: uniformResponses(4, 0.8)}
	mem := newFakeMemory()
	opts := optsWithMinMessages(1)

	a := New(llm, mem, nil, opts)
	messages := []supervisor.Message{
		{MessageID: "m1", SenderID: "u1", SenderUsername: "alice", Text: "hi"},
	}
	cache := map[string]supervisor.Big5{}

	err := a.Analyze(context.Background(), "chat-1", messages, cache)
	require.NoError(t, err)
	require.Equal(t, 1, mem.saved)
	require.Contains(t, cache, "u1")
	require.Equal(t, 4, cache["u1"]["openness"].Score)
	require.NotNil(t, messages[0].SenderPersonality)
	require.Equal(t, len(Traits), llm.calls)
}

func TestAnalyzeSkipsAgentAuthoredMessages(t *testing.T) {
	llm := &fakeLLM{responses: uniformResponses(4, 0.8)}
	mem := newFakeMemory()
	personas := []supervisor.Persona{{Name: "Nova", Username: "nova_bot"}}
	a := New(llm, mem, personas, optsWithMinMessages(1))

	messages := []supervisor.Message{
		{MessageID: "m1", SenderID: "agent-1", SenderUsername: "nova_bot", Text: "agent talking"},
	}
	cache := map[string]supervisor.Big5{}

	err := a.Analyze(context.Background(), "chat-1", messages, cache)
	require.NoError(t, err)
	require.Empty(t, cache)
	require.Equal(t, 0, llm.calls)
}

func TestAnalyzeBelowMinMessagesDoesNotSave(t *testing.T) {
	llm := &fakeLLM{responses: uniformResponses(4, 0.8)}
	mem := newFakeMemory()
	a := New(llm, mem, nil, optsWithMinMessages(5))

	messages := []supervisor.Message{
		{MessageID: "m1", SenderID: "u1", SenderUsername: "alice", Text: "hi"},
	}
	cache := map[string]supervisor.Big5{}

	err := a.Analyze(context.Background(), "chat-1", messages, cache)
	require.NoError(t, err)
	require.Equal(t, 0, mem.saved)
	require.NotContains(t, cache, "u1")
}

func TestAnalyzeSkipsWhenAlreadyConfidentAndStopReanalysisOn(t *testing.T) {
	mem := newFakeMemory()
	previous := supervisor.Big5{}
	for _, trait := range Traits {
		previous[trait] = supervisor.TraitScore{Score: 4, Confidence: 0.95, Justification: "stable"}
	}
	mem.participants["u1"] = &supervisor.ParticipantRecord{
		UserID: "u1", Username: "alice",
		PersonalitySnapshots: []supervisor.PersonalitySnapshot{{
			PersonalityAnalysis: struct {
				Big5 supervisor.Big5 `json:"big5"`
			}{Big5: previous},
		}},
	}

	opts := optsWithMinMessages(1)
	opts.StopReanalysisWhenConfident = true
	opts.ConfidenceThresholds = map[string]float64{
		"openness": 0.9, "conscientiousness": 0.9, "extraversion": 0.9, "agreeableness": 0.9, "neuroticism": 0.9,
	}

	llm := &fakeLLM{}
	a := New(llm, mem, nil, opts)

	messages := []supervisor.Message{
		{MessageID: "m1", SenderID: "u1", SenderUsername: "alice", Text: "hi again"},
	}
	cache := map[string]supervisor.Big5{}

	err := a.Analyze(context.Background(), "chat-1", messages, cache)
	require.NoError(t, err)
	require.Equal(t, 0, llm.calls)
	require.Equal(t, 0, mem.saved)
	require.Equal(t, 4, cache["u1"]["openness"].Score)
	require.NotNil(t, messages[0].SenderPersonality)
}

func TestAnalyzeAppliesConfidencePenaltyBelowFullConfidenceThreshold(t *testing.T) {
	llm := &fakeLLM{responses: uniformResponses(3, 0.9)}
	mem := newFakeMemory()
	opts := optsWithMinMessages(1)
	opts.ConfidencePenalty = supervisor.ConfidencePenaltyConfig{Enabled: true, MinMessagesFullConfidence: 15, PenaltyFactor: 0.03}

	a := New(llm, mem, nil, opts)
	messages := []supervisor.Message{
		{MessageID: "m1", SenderID: "u1", SenderUsername: "alice", Text: "hi"},
	}
	cache := map[string]supervisor.Big5{}

	err := a.Analyze(context.Background(), "chat-1", messages, cache)
	require.NoError(t, err)

	score := cache["u1"]["openness"]
	require.True(t, score.HasRawConfidence)
	require.Equal(t, 0.9, score.RawConfidence)
	require.Less(t, score.Confidence, 0.9)
}

func TestAnalyzeFallsBackToPreviousTraitOnLLMFailure(t *testing.T) {
	mem := newFakeMemory()
	previous := supervisor.Big5{}
	for _, trait := range Traits {
		previous[trait] = supervisor.TraitScore{Score: 2, Confidence: 0.4, Justification: "prior"}
	}
	mem.participants["u1"] = &supervisor.ParticipantRecord{
		UserID: "u1", Username: "alice",
		PersonalitySnapshots: []supervisor.PersonalitySnapshot{{
			PersonalityAnalysis: struct {
				Big5 supervisor.Big5 `json:"big5"`
			}{Big5: previous},
		}},
	}

	llm := &fakeLLM{err: fmt.Errorf("boom")}
	a := New(llm, mem, nil, optsWithMinMessages(1))

	messages := []supervisor.Message{
		{MessageID: "m1", SenderID: "u1", SenderUsername: "alice", Text: "hi"},
	}
	cache := map[string]supervisor.Big5{}

	err := a.Analyze(context.Background(), "chat-1", messages, cache)
	require.NoError(t, err)
	require.Equal(t, 2, cache["u1"]["openness"].Score)
}

// TestDecodeTraitResponseRejectsSchemaInvalidResponse covers a reply that is
// valid JSON but omits a required field ("justification"); schema validation
// must reject it the same way a JSON-parse failure would.
func TestDecodeTraitResponseRejectsSchemaInvalidResponse(t *testing.T) {
	_, err := decodeTraitResponse(`{"score":4,"confidence":0.8}`)
	require.Error(t, err)
}

func TestAnalyzeSkipsUserWithNoPreviousSnapshotOnTotalFailure(t *testing.T) {
	mem := newFakeMemory()
	llm := &fakeLLM{err: fmt.Errorf("boom")}
	a := New(llm, mem, nil, optsWithMinMessages(1))

	messages := []supervisor.Message{
		{MessageID: "m1", SenderID: "u1", SenderUsername: "alice", Text: "hi"},
	}
	cache := map[string]supervisor.Big5{}

	err := a.Analyze(context.Background(), "chat-1", messages, cache)
	require.NoError(t, err)
	require.NotContains(t, cache, "u1")
	require.Equal(t, 0, mem.saved)
	require.Nil(t, messages[0].SenderPersonality)
}
