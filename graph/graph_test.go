package graph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/persona-supervisor/executor"
	"github.com/kestrelhq/persona-supervisor/hitl"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

type fakeConfigStore struct {
	personas []supervisor.Persona
	triggers map[string][]supervisor.TriggerDef
	actions  map[string][]supervisor.ActionDef
	opts     supervisor.Options
}

func (f *fakeConfigStore) LoadPersonas(ctx context.Context) ([]supervisor.Persona, error) {
	return f.personas, nil
}
func (f *fakeConfigStore) LoadTriggers(ctx context.Context, persona string) ([]supervisor.TriggerDef, error) {
	return f.triggers[persona], nil
}
func (f *fakeConfigStore) LoadActions(ctx context.Context, persona string) ([]supervisor.ActionDef, error) {
	return f.actions[persona], nil
}
func (f *fakeConfigStore) LoadPromptTemplate(ctx context.Context, path string) (string, error) {
	return "", nil
}
func (f *fakeConfigStore) Options() supervisor.Options { return f.opts }

type fakeMemory struct {
	mu        sync.Mutex
	decisions []supervisor.OperatorDecisionLogEntry
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
	return nil, nil
}
func (f *fakeMemory) SaveParticipant(ctx context.Context, chatID string, rec supervisor.ParticipantRecord) error {
	return nil
}
func (f *fakeMemory) LoadAgentActions(ctx context.Context, chatID, agentName string, limit int) ([]supervisor.ActionRecord, error) {
	return nil, nil
}
func (f *fakeMemory) SaveAgentActions(ctx context.Context, chatID, agentName string, records []supervisor.ActionRecord) error {
	return nil
}
func (f *fakeMemory) AppendOperatorDecision(ctx context.Context, groupID string, decision supervisor.OperatorDecisionLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, decision)
	return nil
}

type fakeEmotion struct {
	sentiment string
	err       error
}

func (f *fakeEmotion) Analyze(ctx context.Context, messages []supervisor.Message, personas []supervisor.Persona, currentSentiment string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.sentiment, nil
}

type fakePersonality struct{}

func (f *fakePersonality) Analyze(ctx context.Context, chatID string, messages []supervisor.Message, cache map[string]supervisor.Big5) error {
	return nil
}

// fakeSubgraph lets each test script what each persona's subgraph run
// should produce, dispatched by the persona name on AgentState.
type fakeSubgraph struct {
	mu       sync.Mutex
	behavior map[string]func(*supervisor.AgentState)
	calls    map[string]int
}

func newFakeSubgraph() *fakeSubgraph {
	return &fakeSubgraph{behavior: map[string]func(*supervisor.AgentState){}, calls: map[string]int{}}
}

func (f *fakeSubgraph) Run(ctx context.Context, state *supervisor.AgentState) error {
	f.mu.Lock()
	f.calls[state.SelectedPersona.Name]++
	fn := f.behavior[state.SelectedPersona.Name]
	f.mu.Unlock()
	if fn != nil {
		fn(state)
	}
	return nil
}

type recordingTransport struct {
	mu    sync.Mutex
	sent  []string
}

func (t *recordingTransport) FetchMessages(ctx context.Context, phone, chatID string, limit int) ([]supervisor.Message, error) {
	return nil, nil
}
func (t *recordingTransport) FetchParticipants(ctx context.Context, phone, chatID string) (supervisor.GroupMetadata, error) {
	return supervisor.GroupMetadata{}, nil
}
func (t *recordingTransport) SendMessage(ctx context.Context, fromPhone, toChatID, content, replyToTimestamp string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, content)
	return nil
}
func (t *recordingTransport) AddReaction(ctx context.Context, phone, chatID, messageTimestamp, emoji string) error {
	return nil
}
func (t *recordingTransport) ShowTyping(ctx context.Context, phone, chatID string, duration time.Duration) error {
	return nil
}

func testOpts() supervisor.Options {
	o := supervisor.DefaultOptions()
	o.ChatID = "chat-1"
	o.ExecutorCooldown = time.Millisecond
	o.TypingSleepDivisor = 100000
	return o
}

func buildGraph(t *testing.T, personas []supervisor.Persona, sub *fakeSubgraph, sentiment string, opts supervisor.Options) (*Graph, *recordingTransport, *fakeMemory) {
	t.Helper()
	cfg := &fakeConfigStore{personas: personas, triggers: map[string][]supervisor.TriggerDef{}, actions: map[string][]supervisor.ActionDef{}, opts: opts}
	mem := &fakeMemory{}
	transport := &recordingTransport{}
	exec := executor.New(transport, nil, opts)
	gate := hitl.NewGate(opts.HITLEnabled, nil)
	g := New(cfg, mem, &fakeEmotion{sentiment: sentiment}, &fakePersonality{}, sub, gate, exec, nil, nil, opts)
	require.NoError(t, g.Load(context.Background()))
	return g, transport, mem
}

func approvedAction(content string) func(*supervisor.AgentState) {
	return func(s *supervisor.AgentState) {
		s.SelectedAction = &supervisor.SelectedAction{
			ID: "wave_back", Purpose: "ack", Status: supervisor.StatusSuccess,
			StyledResponse: content, AgentName: s.SelectedPersona.Name, AgentType: s.AgentType,
			PhoneNumber: s.SelectedPersona.PhoneNumber,
		}
		s.DetectedTrigger = &supervisor.DetectedTrigger{ID: "greet", Justification: "said hi"}
	}
}

func noActionNeeded() func(*supervisor.AgentState) {
	return func(s *supervisor.AgentState) {
		s.SelectedAction = &supervisor.SelectedAction{Status: supervisor.StatusNoActionNeeded, AgentName: s.SelectedPersona.Name}
	}
}

func TestInvokeDispatchesApprovedActionWhenHITLDisabled(t *testing.T) {
	sub := newFakeSubgraph()
	sub.behavior["nova"] = approvedAction("hi there")
	personas := []supervisor.Persona{{Name: "nova", Type: "companion", PhoneNumber: "+1555"}}
	opts := testOpts()
	opts.HITLEnabled = false
	g, transport, _ := buildGraph(t, personas, sub, "positive", opts)

	state := supervisor.NewSupervisorState()
	state.RecentMessages = []supervisor.Message{{MessageID: "m1", Text: "hi", Timestamp: "t1"}}

	dispatched, err := g.Invoke(context.Background(), "thread-1", state)
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)
	require.Equal(t, []string{"hi there"}, transport.sent)
	require.Equal(t, "positive", state.GroupSentiment)
	require.Len(t, state.AgentsRecentActions["nova"], 1)
	require.Empty(t, state.SelectedActions, "selected_actions must be cleared after scheduling")
}

func TestInvokeSkipsDispatchWhenNoActionNeeded(t *testing.T) {
	sub := newFakeSubgraph()
	sub.behavior["nova"] = noActionNeeded()
	personas := []supervisor.Persona{{Name: "nova", Type: "companion", PhoneNumber: "+1555"}}
	g, transport, _ := buildGraph(t, personas, sub, "neutral", testOpts())

	state := supervisor.NewSupervisorState()
	dispatched, err := g.Invoke(context.Background(), "thread-1", state)
	require.NoError(t, err)
	require.Equal(t, 0, dispatched)
	require.Empty(t, transport.sent)
	require.Empty(t, state.AgentsRecentActions["nova"])
}

func TestInvokeAppliesPerPersonaActionHistoryIndependently(t *testing.T) {
	sub := newFakeSubgraph()
	sub.behavior["nova"] = approvedAction("nova says hi")
	sub.behavior["rio"] = noActionNeeded()
	personas := []supervisor.Persona{
		{Name: "nova", Type: "companion", PhoneNumber: "+1555"},
		{Name: "rio", Type: "moderator", PhoneNumber: "+1556"},
	}
	g, transport, _ := buildGraph(t, personas, sub, "neutral", testOpts())

	state := supervisor.NewSupervisorState()
	dispatched, err := g.Invoke(context.Background(), "thread-1", state)
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)
	require.Len(t, transport.sent, 1)
	require.Len(t, state.AgentsRecentActions["nova"], 1)
	require.Empty(t, state.AgentsRecentActions["rio"])
}

func TestInvokeTrimsRecentMessagesToMax(t *testing.T) {
	sub := newFakeSubgraph()
	personas := []supervisor.Persona{{Name: "nova", Type: "companion"}}
	opts := testOpts()
	opts.MaxRecentMessages = 2
	g, _, _ := buildGraph(t, personas, sub, "neutral", opts)

	state := supervisor.NewSupervisorState()
	state.RecentMessages = []supervisor.Message{
		{MessageID: "newest", Timestamp: "t5"},
		{MessageID: "m4", Timestamp: "t4"},
		{MessageID: "m3", Timestamp: "t3"},
		{MessageID: "oldest", Timestamp: "t1"},
	}

	_, err := g.Invoke(context.Background(), "thread-1", state)
	require.NoError(t, err)
	require.Len(t, state.RecentMessages, 2)
	require.Equal(t, "newest", state.RecentMessages[0].MessageID)
	require.Equal(t, "m4", state.RecentMessages[1].MessageID)
}

func TestInvokePropagatesEmotionAnalysisError(t *testing.T) {
	sub := newFakeSubgraph()
	personas := []supervisor.Persona{{Name: "nova", Type: "companion"}}
	cfg := &fakeConfigStore{personas: personas, opts: testOpts()}
	mem := &fakeMemory{}
	transport := &recordingTransport{}
	opts := testOpts()
	exec := executor.New(transport, nil, opts)
	gate := hitl.NewGate(false, nil)
	g := New(cfg, mem, &fakeEmotion{err: context.DeadlineExceeded}, &fakePersonality{}, sub, gate, exec, nil, nil, opts)
	require.NoError(t, g.Load(context.Background()))

	_, err := g.Invoke(context.Background(), "thread-1", supervisor.NewSupervisorState())
	require.Error(t, err)
}

func TestInvokeRecordsOperatorDecisionWhenHITLEnabled(t *testing.T) {
	sub := newFakeSubgraph()
	sub.behavior["nova"] = approvedAction("pending approval")
	personas := []supervisor.Persona{{Name: "nova", Type: "companion", PhoneNumber: "+1555"}}

	dir := t.TempDir()
	store, err := hitl.NewFileApprovalStore(dir)
	require.NoError(t, err)
	manager := hitl.NewManager(store, 10*time.Millisecond)

	cfg := &fakeConfigStore{personas: personas}
	mem := &fakeMemory{}
	transport := &recordingTransport{}
	opts := testOpts()
	opts.HITLEnabled = true
	exec := executor.New(transport, nil, opts)
	gate := hitl.NewGate(true, manager)
	g := New(cfg, mem, &fakeEmotion{sentiment: "neutral"}, &fakePersonality{}, sub, gate, exec, nil, nil, opts)
	require.NoError(t, g.Load(context.Background()))

	go func() {
		time.Sleep(30 * time.Millisecond)
		req, ok, err := store.LoadPending()
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, req.Data.PendingMessages, 1)
		resp := hitl.OperatorResponse{}
		resp.Response.Decisions = []supervisor.ApprovalDecision{{AgentName: "nova", Decision: "approved"}}
		raw, err := json.Marshal(resp)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "response.json"), raw, 0o644))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dispatched, err := g.Invoke(ctx, "thread-1", supervisor.NewSupervisorState())
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)
	require.Equal(t, []string{"pending approval"}, transport.sent)
	require.Len(t, mem.decisions, 1)
	require.Len(t, mem.decisions[0].Approved, 1)
}
