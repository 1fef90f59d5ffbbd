package promptutil

import (
	"testing"

	supervisor "github.com/kestrelhq/persona-supervisor"
	"github.com/stretchr/testify/require"
)

func TestFormatMessageMarksViewpointAsYou(t *testing.T) {
	nova := supervisor.Persona{Name: "Nova", Username: "nova_bot"}
	msg := supervisor.Message{SenderUsername: "nova_bot", Text: "hi there", Timestamp: "2025-11-26 08:36:07"}

	line := FormatMessage(msg, nova, []supervisor.Persona{nova})
	require.Contains(t, line, "nova_bot (YOU)")
	require.Contains(t, line, "hi there")
}

func TestFormatMessageMarksOtherAgentAsAgent(t *testing.T) {
	nova := supervisor.Persona{Name: "Nova", Username: "nova_bot"}
	quill := supervisor.Persona{Name: "Quill", Username: "quill_writes"}
	msg := supervisor.Message{SenderUsername: "quill_writes", Text: "hello"}

	line := FormatMessage(msg, nova, []supervisor.Persona{nova, quill})
	require.Contains(t, line, "quill_writes (Agent)")
}

func TestFormatMessageIncludesEmotionReactionsAndReplyTo(t *testing.T) {
	msg := supervisor.Message{
		SenderUsername:   "human_user",
		Text:              "cool",
		Timestamp:         "2025-11-26 08:36:07",
		MessageEmotion:    &supervisor.MessageEmotion{Emotion: "excited"},
		Reactions:         []supervisor.Reaction{{Emoji: "🔥", Count: 2}},
		ReplyToMessageID:  "msg-42",
	}

	line := FormatMessage(msg, supervisor.Persona{Name: "Nova"}, nil)
	require.Contains(t, line, "[excited]")
	require.Contains(t, line, "[Reactions: 🔥×2]")
	require.Contains(t, line, "[⤷ Replying to msg-42]")
}

func TestFormatMessageUnknownSenderFallback(t *testing.T) {
	line := FormatMessage(supervisor.Message{Text: "x"}, supervisor.Persona{}, nil)
	require.Contains(t, line, "Unknown")
}
