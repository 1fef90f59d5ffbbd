package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplySelectedActionsAppendAndClear(t *testing.T) {
	current := []SelectedAction{{AgentName: "nova", Status: StatusSuccess}}

	appended := ApplySelectedActions(current, []SelectedAction{{AgentName: "quill", Status: StatusNoActionNeeded}})
	require.Len(t, appended, 2)
	require.Equal(t, "nova", appended[0].AgentName)
	require.Equal(t, "quill", appended[1].AgentName)

	cleared := ApplySelectedActions(appended, Clear)
	require.Empty(t, cleared)
}

func TestMergeAgentsRecentActionsPerKeyAppend(t *testing.T) {
	current := map[string][]ActionRecord{
		"nova": {{ActionID: "answer_question"}},
	}
	deltas := []ActionsDelta{
		{AgentName: "nova", Record: &ActionRecord{ActionID: "expand_discussion"}},
		{AgentName: "quill", Record: &ActionRecord{ActionID: "add_reaction"}},
		{AgentName: "drift"}, // no record: persona took no action this tick
	}

	merged := MergeAgentsRecentActions(current, deltas)
	require.Len(t, merged["nova"], 2)
	require.Len(t, merged["quill"], 1)
	require.NotContains(t, merged, "drift")
}

func TestApplyPersonaDeltasAtMostOnePerPersona(t *testing.T) {
	state := NewSupervisorState()
	deltas := []ActionsDelta{
		{AgentName: "nova", Action: &SelectedAction{AgentName: "nova", Status: StatusSuccess}, Record: &ActionRecord{ActionID: "x"}},
		{AgentName: "quill", Action: &SelectedAction{AgentName: "quill", Status: StatusNoActionNeeded}},
	}
	ApplyPersonaDeltas(state, deltas)

	require.Len(t, state.SelectedActions, 2)
	counts := map[string]int{}
	for _, a := range state.SelectedActions {
		counts[a.AgentName]++
	}
	for name, c := range counts {
		require.LessOrEqualf(t, c, 1, "persona %s contributed more than one action", name)
	}
	require.Len(t, state.AgentsRecentActions["nova"], 1)
}
