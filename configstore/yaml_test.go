package configstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadOptionsFromYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "supervisor.yaml"), `
telegram:
  chat_id: "chat-123"
polling:
  message_check_interval_seconds: 45
  max_recent_messages: 75
hitl:
  enabled: true
agents:
  - name: Nova
    type: supportive
    agent_goal: "keep the chat lively"
    persona_file: nova.json
    username: nova_bot
`)
	writeFile(t, filepath.Join(dir, "personas", "nova.json"), `{"prompt": "You are Nova."}`)

	store, err := Load(dir)
	require.NoError(t, err)

	opts := store.Options()
	require.Equal(t, "chat-123", opts.ChatID)
	require.Equal(t, 45e9, float64(opts.MessageCheckInterval))
	require.Equal(t, 75, opts.MaxRecentMessages)
	require.True(t, opts.HITLEnabled)
	require.Len(t, opts.Agents, 1)
	require.Equal(t, "Nova", opts.Agents[0].Name)

	personas, err := store.LoadPersonas(context.Background())
	require.NoError(t, err)
	require.Len(t, personas, 1)
	require.Equal(t, "You are Nova.", personas[0].Prompt)
}

func TestLoadTriggersAndActions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "supervisor.yaml"), "telegram:\n  chat_id: \"c\"\n")
	writeFile(t, filepath.Join(dir, "triggers", "nova.json"), `[{"id":"direct_question","description":"asked directly","actions":["answer_question"]}]`)
	writeFile(t, filepath.Join(dir, "actions", "nova.json"), `[{"id":"answer_question","description":"answers","purpose":"helpfulness"}]`)

	store, err := Load(dir)
	require.NoError(t, err)

	triggers, err := store.LoadTriggers(context.Background(), "nova")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	require.Equal(t, "direct_question", triggers[0].ID)

	actions, err := store.LoadActions(context.Background(), "nova")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "answer_question", actions[0].ID)
}

func TestLoadFallsBackToTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "supervisor.toml"), `
[telegram]
chat_id = "toml-chat"

[polling]
max_recent_messages = 30
`)
	store, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "toml-chat", store.Options().ChatID)
	require.Equal(t, 30, store.Options().MaxRecentMessages)
}
