// Package memory implements supervisor.MemoryStore: the disk-backed group
// history, participant personality snapshots and operator decision logs at
// spec §6's file layout under data/<chat_id>/... and logs/operator_decisions/.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// FileStore is the default MemoryStore, grounded on checkpoint/store/file.go's
// write-to-temp-then-rename pattern, generalized from one opaque byte blob
// per key to one JSON document per (chat, record kind).
type FileStore struct {
	root string
	mu   sync.RWMutex
}

// NewFileStore roots a FileStore at dir, creating it if missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create root %s: %w", dir, err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) groupDir(chatID string) string {
	return filepath.Join(s.root, "data", chatID)
}

func (s *FileStore) metadataPath(chatID string) string {
	return filepath.Join(s.groupDir(chatID), "group_metadata.json")
}

func (s *FileStore) historyPath(chatID string) string {
	return filepath.Join(s.groupDir(chatID), "group_history.json")
}

func (s *FileStore) participantPath(chatID, userID string) string {
	return filepath.Join(s.groupDir(chatID), "participant", userID+".json")
}

func (s *FileStore) actionsPath(chatID, agentName string) string {
	return filepath.Join(s.groupDir(chatID), "actions", agentName+".json")
}

func (s *FileStore) decisionsPath(groupID string) string {
	return filepath.Join(s.root, "logs", "operator_decisions", groupID, "decisions.json")
}

// LoadGroupMetadata reads data/<chat_id>/group_metadata.json, returning
// (nil, nil) when the group has never been synced.
func (s *FileStore) LoadGroupMetadata(ctx context.Context, chatID string) (*supervisor.PersistedGroupMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var meta supervisor.PersistedGroupMetadata
	ok, err := readJSON(s.metadataPath(chatID), &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// SaveGroupMetadata overwrites data/<chat_id>/group_metadata.json.
func (s *FileStore) SaveGroupMetadata(ctx context.Context, chatID string, meta supervisor.PersistedGroupMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.metadataPath(chatID), meta)
}

// LoadGroupHistory reads data/<chat_id>/group_history.json, newest-first.
func (s *FileStore) LoadGroupHistory(ctx context.Context, chatID string) ([]supervisor.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []supervisor.Message
	if _, err := readJSON(s.historyPath(chatID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SaveGroupHistory overwrites data/<chat_id>/group_history.json, deduped by
// message ID and sorted newest-first before it hits disk.
func (s *FileStore) SaveGroupHistory(ctx context.Context, chatID string, messages []supervisor.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deduped := dedupByID(messages)
	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Date.After(deduped[j].Date) })
	return writeJSON(s.historyPath(chatID), deduped)
}

func dedupByID(messages []supervisor.Message) []supervisor.Message {
	seen := make(map[string]bool, len(messages))
	out := make([]supervisor.Message, 0, len(messages))
	for _, m := range messages {
		if seen[m.MessageID] {
			continue
		}
		seen[m.MessageID] = true
		out = append(out, m)
	}
	return out
}

// LoadParticipant reads data/<chat_id>/participant/<user_id>.json, returning
// (nil, nil) when the participant has no prior snapshot.
func (s *FileStore) LoadParticipant(ctx context.Context, chatID, userID string) (*supervisor.ParticipantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec supervisor.ParticipantRecord
	ok, err := readJSON(s.participantPath(chatID, userID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// SaveParticipant overwrites data/<chat_id>/participant/<user_id>.json.
func (s *FileStore) SaveParticipant(ctx context.Context, chatID string, rec supervisor.ParticipantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.participantPath(chatID, rec.UserID), rec)
}

// LoadAgentActions reads data/<chat_id>/actions/<agent_name>.json, returning
// at most the last limit records (0 means all).
func (s *FileStore) LoadAgentActions(ctx context.Context, chatID, agentName string, limit int) ([]supervisor.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []supervisor.ActionRecord
	if _, err := readJSON(s.actionsPath(chatID, agentName), &records); err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// SaveAgentActions overwrites data/<chat_id>/actions/<agent_name>.json.
func (s *FileStore) SaveAgentActions(ctx context.Context, chatID, agentName string, records []supervisor.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.actionsPath(chatID, agentName), records)
}

// AppendOperatorDecision appends to logs/operator_decisions/<group_id>/decisions.json.
func (s *FileStore) AppendOperatorDecision(ctx context.Context, groupID string, decision supervisor.OperatorDecisionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.decisionsPath(groupID)
	var existing supervisor.OperatorDecisionLogEntry
	if _, err := readJSON(path, &existing); err != nil {
		return err
	}
	existing.Approved = append(existing.Approved, decision.Approved...)
	existing.Rejected = append(existing.Rejected, decision.Rejected...)
	return writeJSON(path, existing)
}

// readJSON decodes path into v, reporting false (no error) when the file
// does not yet exist.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("memory: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("memory: decode %s: %w", path, err)
	}
	return true, nil
}

// writeJSON writes v to path atomically: marshal, write to a .tmp sibling,
// rename over the destination. Grounded on checkpoint/store/file.go's Put.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: create dir for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("memory: rename temp file for %s: %w", path, err)
	}
	return nil
}

var _ supervisor.MemoryStore = (*FileStore)(nil)
