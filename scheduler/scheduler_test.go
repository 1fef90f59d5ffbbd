package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

func TestScheduleFiltersNoActionAndError(t *testing.T) {
	actions := []supervisor.SelectedAction{
		{AgentName: "nova", Status: supervisor.StatusSuccess, StyledResponse: "hi"},
		{AgentName: "rio", Status: supervisor.StatusNoActionNeeded},
		{AgentName: "zed", Status: supervisor.StatusError},
		{AgentName: "kai", Status: supervisor.StatusMaxRetriesReached, StyledResponse: "best effort"},
	}
	result := Schedule(actions, nil)

	require.Len(t, result.Queue, 2)
	require.Equal(t, "nova", result.Queue[0].AgentName)
	require.Equal(t, "kai", result.Queue[1].AgentName)
}

func TestScheduleProducesPendingQueueItemsWithFullIdentity(t *testing.T) {
	target := &supervisor.TargetMessage{Timestamp: "2024-01-01T00:00:00.000Z", Text: "hi"}
	actions := []supervisor.SelectedAction{
		{
			AgentName: "nova", AgentType: "companion", Status: supervisor.StatusSuccess,
			ID: "wave_back", Purpose: "acknowledge", StyledResponse: "hey!",
			PhoneNumber: "+1555", TargetMessage: target,
		},
	}
	result := Schedule(actions, nil)

	require.Len(t, result.Queue, 1)
	item := result.Queue[0]
	require.Equal(t, supervisor.QueueItemPending, item.Status)
	require.Equal(t, "wave_back", item.ActionID)
	require.Equal(t, "acknowledge", item.ActionPurpose)
	require.Equal(t, "hey!", item.ActionContent)
	require.Equal(t, "+1555", item.PhoneNumber)
	require.Equal(t, target, item.TargetMessage)
}

func TestScheduleMarksAllGivenMessagesProcessed(t *testing.T) {
	messages := []supervisor.Message{
		{MessageID: "m1", Processed: false},
		{MessageID: "m2", Processed: false},
	}
	result := Schedule(nil, messages)
	MarkProcessed(messages, result.ProcessedMessageIDs)

	require.True(t, messages[0].Processed)
	require.True(t, messages[1].Processed)
}

func TestScheduleReturnsClearSentinel(t *testing.T) {
	result := Schedule(nil, nil)
	require.Equal(t, supervisor.Clear, result.ClearedActions)
}
