package hitl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileApprovalStore is the default ApprovalStore: pending.json/response.json
// in a well-known directory, grounded on checkpoint/store/file.go's
// write-to-temp-then-rename semantics.
type FileApprovalStore struct {
	dir string
}

// NewFileApprovalStore roots a FileApprovalStore at dir, creating it if
// missing.
func NewFileApprovalStore(dir string) (*FileApprovalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("hitl: create state dir %s: %w", dir, err)
	}
	return &FileApprovalStore{dir: dir}, nil
}

func (s *FileApprovalStore) pendingPath() string  { return filepath.Join(s.dir, "pending.json") }
func (s *FileApprovalStore) responsePath() string { return filepath.Join(s.dir, "response.json") }

// SavePending writes pending.json, clearing any stale response.json first
// (spec §4.7 step 2).
func (s *FileApprovalStore) SavePending(req ApprovalRequest) error {
	if err := s.ClearResponse(); err != nil {
		return err
	}
	return writeJSON(s.pendingPath(), req)
}

// LoadPending reads pending.json; ok is false when no approval is in flight.
func (s *FileApprovalStore) LoadPending() (*ApprovalRequest, bool, error) {
	var req ApprovalRequest
	ok, err := readJSON(s.pendingPath(), &req)
	if err != nil || !ok {
		return nil, false, err
	}
	return &req, true, nil
}

// ClearPending deletes pending.json, if present.
func (s *FileApprovalStore) ClearPending() error {
	return removeIfExists(s.pendingPath())
}

// LoadResponse reads response.json; ok is false until the operator has
// answered.
func (s *FileApprovalStore) LoadResponse() (*OperatorResponse, bool, error) {
	var resp OperatorResponse
	ok, err := readJSON(s.responsePath(), &resp)
	if err != nil || !ok {
		return nil, false, err
	}
	return &resp, true, nil
}

// ClearResponse deletes response.json, if present.
func (s *FileApprovalStore) ClearResponse() error {
	return removeIfExists(s.responsePath())
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("hitl: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("hitl: decode %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("hitl: encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("hitl: write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("hitl: rename temp file for %s: %w", path, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("hitl: remove %s: %w", path, err)
	}
	return nil
}

var _ ApprovalStore = (*FileApprovalStore)(nil)
