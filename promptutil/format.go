// Package promptutil renders Message values into the annotated prompt
// lines every LLM-calling node consumes. Annotations are computed only at
// assembly time and are never stored back on the Message (spec §9).
package promptutil

import (
	"fmt"
	"strings"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// FormatMessage renders one line: "[timestamp] sender [emotion]: text
// [Reactions: ...] [⤷ Replying to ...]", grounded on the original
// source's format_message_for_prompt, extended with the reply-to
// decoration spec §9 requires but the retained original revision omits.
//
// sender is annotated "(YOU)" when the message was authored by
// viewpoint (the persona whose subgraph is rendering this prompt), or
// "(Agent)" when authored by any other registered persona.
func FormatMessage(m supervisor.Message, viewpoint supervisor.Persona, personas []supervisor.Persona) string {
	sender := senderName(m)

	if isViewpoint(m, viewpoint) {
		sender += " (YOU)"
	} else if supervisor.IsAgentMessage(personas, m) {
		sender += " (Agent)"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, "["+timestamp(m)+"]")
	parts = append(parts, sender)
	if m.MessageEmotion != nil && m.MessageEmotion.Emotion != "" {
		parts = append(parts, "["+m.MessageEmotion.Emotion+"]")
	}

	result := strings.Join(parts, " ") + ": " + m.Text

	if len(m.Reactions) > 0 {
		reactionParts := make([]string, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			reactionParts = append(reactionParts, fmt.Sprintf("%s×%d", r.Emoji, r.Count))
		}
		result += " [Reactions: " + strings.Join(reactionParts, ", ") + "]"
	}

	if m.ReplyToMessageID != "" {
		result += " [⤷ Replying to " + m.ReplyToMessageID + "]"
	}

	return result
}

// FormatTranscript renders messages oldest-first (recent_messages is
// newest-first in SupervisorState; callers reverse before formatting).
func FormatTranscript(messages []supervisor.Message, viewpoint supervisor.Persona, personas []supervisor.Persona) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, FormatMessage(m, viewpoint, personas))
	}
	return strings.Join(lines, "\n")
}

func senderName(m supervisor.Message) string {
	switch {
	case m.SenderUsername != "":
		return m.SenderUsername
	case m.SenderFirstName != "" && m.SenderLastName != "":
		return m.SenderFirstName + " " + m.SenderLastName
	case m.SenderFirstName != "":
		return m.SenderFirstName
	default:
		return "Unknown"
	}
}

func timestamp(m supervisor.Message) string {
	if m.Timestamp != "" {
		return m.Timestamp
	}
	if !m.Date.IsZero() {
		return m.Date.Format("2006-01-02 15:04:05")
	}
	return "Unknown time"
}

func isViewpoint(m supervisor.Message, viewpoint supervisor.Persona) bool {
	return supervisor.IsAgentIdentity([]supervisor.Persona{viewpoint}, m.SenderUsername, m.SenderFirstName, m.SenderLastName)
}
