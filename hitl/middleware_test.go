package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

type recordingDispatcher struct {
	got []supervisor.QueueItem
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, queue []supervisor.QueueItem) (int, error) {
	d.got = queue
	return len(queue), nil
}

func TestGateForwardsDirectlyWhenDisabled(t *testing.T) {
	gate := NewGate(false, nil)
	dispatcher := &recordingDispatcher{}
	queue := []supervisor.QueueItem{{AgentName: "nova", ActionContent: "hi"}}

	n, decision, err := gate.Run(context.Background(), "thread-1", queue, supervisor.GroupMetadata{}, nil, dispatcher)

	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Nil(t, decision)
	require.Equal(t, queue, dispatcher.got)
}

func TestGateForwardsDirectlyWhenQueueEmpty(t *testing.T) {
	store, err := NewFileApprovalStore(t.TempDir())
	require.NoError(t, err)
	gate := NewGate(true, NewManager(store, time.Millisecond))
	dispatcher := &recordingDispatcher{}

	n, decision, err := gate.Run(context.Background(), "thread-1", nil, supervisor.GroupMetadata{}, nil, dispatcher)

	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Nil(t, decision)
}

func TestGateSuspendsAndResumesOnOperatorResponse(t *testing.T) {
	store, err := NewFileApprovalStore(t.TempDir())
	require.NoError(t, err)
	mgr := NewManager(store, 10*time.Millisecond)
	gate := NewGate(true, mgr)
	dispatcher := &recordingDispatcher{}

	queue := []supervisor.QueueItem{{AgentName: "nova", ActionContent: "draft"}}

	go func() {
		time.Sleep(30 * time.Millisecond)
		resp := OperatorResponse{}
		resp.Response.Decisions = []supervisor.ApprovalDecision{
			{AgentName: "nova", Decision: "approved"},
		}
		_ = writeJSON(store.responsePath(), resp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	n, decision, err := gate.Run(ctx, "thread-1", queue, supervisor.GroupMetadata{ID: "chat-1"}, nil, dispatcher)

	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, decision.Approved, 1)

	_, ok, err := store.LoadPending()
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = store.LoadResponse()
	require.NoError(t, err)
	require.False(t, ok)
}
