package subgraph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

type scriptedLLM struct {
	responses []string
	calls     int
}

func (f *scriptedLLM) Complete(ctx context.Context, system, user, model string, temperature float64) (string, error) {
	if f.calls >= len(f.responses) {
		return "", fmt.Errorf("scriptedLLM: no more responses scripted (call %d)", f.calls)
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func baseState() *supervisor.AgentState {
	return &supervisor.AgentState{
		SelectedPersona: supervisor.Persona{Name: "Nova", Username: "nova_bot"},
		AgentType:       "companion",
		AgentGoal:       "keep the conversation friendly",
		Triggers: []supervisor.TriggerDef{
			{ID: "greeting", Description: "someone says hello", ActionIDs: []string{"wave_back"}},
		},
		Actions: []supervisor.ActionDef{
			{ID: "wave_back", Description: "wave back", Purpose: "acknowledge the greeting"},
		},
		RecentMessages: []supervisor.Message{
			{MessageID: "m1", SenderUsername: "alice", Text: "hi everyone"},
		},
		GroupSentiment: "friendly",
	}
}

func TestRunEndsNoActionNeededOnNeutralTrigger(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"id":"neutral","justification":"nothing actionable"}`,
	}}
	s := New(llm, nil, supervisor.DefaultOptions())
	state := baseState()

	err := s.Run(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, supervisor.StatusNoActionNeeded, state.SelectedAction.Status)
}

func TestRunEndsErrorOnTriggerErrorSentinel(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"id":"ERROR","justification":"model failed"}`,
	}}
	s := New(llm, nil, supervisor.DefaultOptions())
	state := baseState()

	err := s.Run(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, supervisor.StatusError, state.SelectedAction.Status)
}

func TestRunFullHappyPathApprovesOnFirstPass(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"id":"greeting","justification":"alice said hi"}`,
		`{"action_id":"wave_back","purpose":"acknowledge the greeting"}`,
		"Hey Alice, great to see you!",
		"Heyyy Alice!! good to see ya :)",
		`{"approved":true,"explanation":"on persona, on goal"}`,
	}}
	s := New(llm, nil, supervisor.DefaultOptions())
	state := baseState()

	err := s.Run(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, supervisor.StatusSuccess, state.SelectedAction.Status)
	require.Equal(t, "Heyyy Alice!! good to see ya :)", state.SelectedAction.StyledResponse)
	require.Equal(t, 0, state.RetryCount)
}

func TestRunRetriesOnRejectionThenSucceeds(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"id":"greeting","justification":"alice said hi"}`,
		`{"action_id":"wave_back","purpose":"acknowledge the greeting"}`,
		"Hey.",
		"Hey.",
		`{"approved":false,"explanation":"too curt, add warmth"}`,
		"Hey Alice! So good to have you here!",
		"Heyyy Alice, so good to have you here!!",
		`{"approved":true,"explanation":"warm and on persona now"}`,
	}}
	s := New(llm, nil, supervisor.DefaultOptions())
	state := baseState()

	err := s.Run(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, supervisor.StatusSuccess, state.SelectedAction.Status)
	require.Equal(t, "Heyyy Alice, so good to have you here!!", state.SelectedAction.StyledResponse)
}

func TestRunReachesMaxRetries(t *testing.T) {
	responses := []string{
		`{"id":"greeting","justification":"alice said hi"}`,
		`{"action_id":"wave_back","purpose":"acknowledge the greeting"}`,
	}
	// MaxRetries rejected rounds, each a real scripted draft/style/validator
	// verdict. That brings RetryCount to MaxRetries, so the 4th entry into
	// text_generator/styler happens but its validator pass never reaches the
	// model: runValidator's fail-open branch fires on entry and auto-approves
	// the 4th draft, flagged as max_retries_reached instead of success.
	for i := 0; i < MaxRetries; i++ {
		responses = append(responses, "draft", "styled", `{"approved":false,"explanation":"still not right"}`)
	}
	responses = append(responses, "final draft", "final styled")
	llm := &scriptedLLM{responses: responses}
	s := New(llm, nil, supervisor.DefaultOptions())
	state := baseState()

	err := s.Run(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, supervisor.StatusMaxRetriesReached, state.SelectedAction.Status)
	require.Equal(t, "final styled", state.SelectedAction.StyledResponse)
	require.Equal(t, 0, state.RetryCount)
}

func TestRunEndsErrorOnMalformedLLMResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"not json at all"}}
	s := New(llm, nil, supervisor.DefaultOptions())
	state := baseState()

	err := s.Run(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, supervisor.StatusError, state.SelectedAction.Status)
}

// TestRunEndsErrorOnSchemaInvalidTriggerResponse covers a reply that parses
// as JSON but is missing the required "justification" field; it must be
// rejected the same way malformed JSON is.
func TestRunEndsErrorOnSchemaInvalidTriggerResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"id":"greeting"}`}}
	s := New(llm, nil, supervisor.DefaultOptions())
	state := baseState()

	err := s.Run(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, supervisor.StatusError, state.SelectedAction.Status)
}
