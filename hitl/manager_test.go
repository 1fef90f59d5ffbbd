package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

func TestSavePendingClearsStaleResponse(t *testing.T) {
	store, err := NewFileApprovalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, writeJSON(store.responsePath(), OperatorResponse{}))

	req := BuildRequest("thread-1", nil, supervisor.GroupMetadata{ID: "chat-1"}, nil)
	require.NoError(t, store.SavePending(req))

	_, ok, err := store.LoadResponse()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAwaitBlocksUntilResponseAppears(t *testing.T) {
	store, err := NewFileApprovalStore(t.TempDir())
	require.NoError(t, err)
	mgr := NewManager(store, 20*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = writeJSON(store.responsePath(), OperatorResponse{})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := mgr.Await(ctx)
	require.NoError(t, err)
	require.NotNil(t, resp)
}

func TestAwaitReturnsOnContextCancel(t *testing.T) {
	store, err := NewFileApprovalStore(t.TempDir())
	require.NoError(t, err)
	mgr := NewManager(store, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = mgr.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestApplyDecisionsAppliesEditsDropsRejectsAndAddsReplacement(t *testing.T) {
	queue := []supervisor.QueueItem{
		{AgentName: "nova", ActionID: "send_message", ActionContent: "draft"},
		{AgentName: "rio", ActionID: "send_message", ActionContent: "draft2"},
		{AgentName: "zed", ActionID: "send_message", ActionContent: "draft3"},
	}
	resp := &OperatorResponse{}
	resp.Response.Decisions = []supervisor.ApprovalDecision{
		{AgentName: "nova", Decision: "approved", EditedContent: "edited"},
		{AgentName: "rio", Decision: "rejected", RejectionReason: "too spammy"},
		{AgentName: "zed", Decision: "rejected", ReplacementMessage: "operator wrote this instead"},
	}

	resolved := ApplyDecisions(queue, resp)

	require.Len(t, resolved.Queue, 2)
	require.Equal(t, "edited", resolved.Queue[0].ActionContent)
	require.Equal(t, "operator_replacement", resolved.Queue[1].ActionID)
	require.Equal(t, "operator wrote this instead", resolved.Queue[1].ActionContent)

	require.Len(t, resolved.Decision.Approved, 1)
	require.Len(t, resolved.Decision.Rejected, 2)
}

func TestApplyDecisionsForwardsItemsWithNoDecisionUnchanged(t *testing.T) {
	queue := []supervisor.QueueItem{
		{AgentName: "nova", ActionContent: "untouched"},
	}
	resolved := ApplyDecisions(queue, &OperatorResponse{})
	require.Len(t, resolved.Queue, 1)
	require.Equal(t, "untouched", resolved.Queue[0].ActionContent)
}
