package checkpoint

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kestrelhq/persona-supervisor/checkpoint/store"
)

const (
	// Current checkpoint format version
	CurrentCheckpointVersion = 1

	// Key prefixes for different data types
	CheckpointKeyPrefix = "checkpoint:"
	ThreadKeyPrefix     = "thread:"
)

// Manager implements the Checkpointer interface with auto-cleanup support
type Manager struct {
	store       store.StateStore
	config      CheckpointConfig
	mu          sync.RWMutex
	autoCleaner *AutoCleaner
	compressor  *AdvancedCompressor
	perf        *PerformanceManager
}

// NewManager creates a new checkpoint manager with the given store and configuration
func NewManager(store store.StateStore, options ...CheckpointOption) *Manager {
	config := DefaultCheckpointConfig()
	for _, option := range options {
		option(&config)
	}

	manager := &Manager{
		store: store,
		config: config,
		perf:  NewPerformanceManager(),
	}

	if config.Compression {
		compConfig := DefaultCompressionConfig()
		manager.compressor = NewAdvancedCompressor(compConfig)
	}

	if config.AutoCleanup {
		cleanupConfig := DefaultCleanupConfig()
		cleanupConfig.MaxAge = time.Duration(config.RetentionDays) * 24 * time.Hour
		cleanupConfig.Interval = config.CleanupInterval

		manager.autoCleaner = NewAutoCleaner(manager, cleanupConfig)
		manager.autoCleaner.Start()
	}

	return manager
}

// Metrics returns save/load timing and error counts tracked since the
// manager was created (or since the last ResetMetrics). No HTTP endpoint
// exposes it.
func (cm *Manager) Metrics() PerformanceMetrics {
	return cm.perf.GetMetrics()
}

// Save creates a checkpoint for the specified thread
func (cm *Manager) Save(ctx context.Context, checkpoint *Checkpoint) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	start := time.Now()
	err := cm.save(ctx, checkpoint)
	cm.perf.TrackSave(time.Since(start), err == nil)
	return err
}

func (cm *Manager) save(ctx context.Context, checkpoint *Checkpoint) error {
	if checkpoint.ID == "" {
		checkpoint.ID = generateCheckpointID()
	}

	checkpoint.Version = CurrentCheckpointVersion
	if checkpoint.Timestamp.IsZero() {
		checkpoint.Timestamp = time.Now()
	}

	data, err := cm.serializeCheckpoint(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	// Store the checkpoint
	key := cm.checkpointKey(checkpoint.ThreadID, checkpoint.ID)
	if err := cm.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to store checkpoint: %w", err)
	}

	// Update the latest checkpoint pointer
	latestKey := cm.latestCheckpointKey(checkpoint.ThreadID)
	latestData, _ := json.Marshal(map[string]string{
		"checkpoint_id": checkpoint.ID,
		"timestamp":     checkpoint.Timestamp.Format(time.RFC3339),
	})
	if err := cm.store.Put(ctx, latestKey, latestData); err != nil {
		return fmt.Errorf("failed to update latest checkpoint pointer: %w", err)
	}

	// Cleanup old checkpoints if needed (a thread should only ever have one
	// in-flight suspend checkpoint; this is a safety net, not the common path)
	if cm.config.MaxCheckpoints > 0 {
		go cm.cleanupOldCheckpoints(ctx, checkpoint.ThreadID)
	}

	return nil
}

// Load retrieves the latest checkpoint for a thread
func (cm *Manager) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	start := time.Now()
	cp, err := cm.load(ctx, threadID)
	cm.perf.TrackLoad(time.Since(start), err == nil)
	return cp, err
}

func (cm *Manager) load(ctx context.Context, threadID string) (*Checkpoint, error) {
	// Get the latest checkpoint ID
	latestKey := cm.latestCheckpointKey(threadID)
	latestData, err := cm.store.Get(ctx, latestKey)
	if err != nil {
		return nil, fmt.Errorf("no checkpoints found for thread %s", threadID)
	}

	var latest map[string]string
	if err := json.Unmarshal(latestData, &latest); err != nil {
		return nil, fmt.Errorf("failed to parse latest checkpoint data: %w", err)
	}

	checkpointID := latest["checkpoint_id"]
	return cm.loadByID(ctx, threadID, checkpointID)
}

// LoadByID retrieves a specific checkpoint by ID
func (cm *Manager) LoadByID(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	start := time.Now()
	cp, err := cm.loadByID(ctx, threadID, checkpointID)
	cm.perf.TrackLoad(time.Since(start), err == nil)
	return cp, err
}

func (cm *Manager) loadByID(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	key := cm.checkpointKey(threadID, checkpointID)
	data, err := cm.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("checkpoint not found: %s/%s", threadID, checkpointID)
	}

	checkpoint, err := cm.deserializeCheckpoint(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}

	return checkpoint, nil
}

// List returns all checkpoints for a thread, sorted by timestamp (newest first)
func (cm *Manager) List(ctx context.Context, threadID string) ([]*CheckpointInfo, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	prefix := cm.threadCheckpointPrefix(threadID)
	keys, err := cm.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var infos []*CheckpointInfo
	for _, key := range keys {
		data, err := cm.store.Get(ctx, key)
		if err != nil {
			continue
		}

		checkpoint, err := cm.deserializeCheckpoint(data)
		if err != nil {
			continue
		}

		info := &CheckpointInfo{
			ID:          checkpoint.ID,
			ThreadID:    checkpoint.ThreadID,
			Timestamp:   checkpoint.Timestamp,
			CurrentNode: checkpoint.CurrentNode,
			Type:        checkpoint.Type,
			Metadata:    checkpoint.Metadata,
			Size:        int64(len(data)),
		}
		infos = append(infos, info)
	}

	// Sort by timestamp (newest first)
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	return infos, nil
}

// Delete removes a specific checkpoint
func (cm *Manager) Delete(ctx context.Context, threadID, checkpointID string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	key := cm.checkpointKey(threadID, checkpointID)
	return cm.store.Delete(ctx, key)
}

// DeleteAll removes all checkpoints for a thread. When the underlying store
// supports batch deletes (store.BatchStore — redis, sqlite), all keys are
// removed in one round trip instead of one at a time, since this is the one
// call site that ever deletes more than a single checkpoint.
func (cm *Manager) DeleteAll(ctx context.Context, threadID string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	prefix := cm.threadCheckpointPrefix(threadID)
	keys, err := cm.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints for deletion: %w", err)
	}

	latestKey := cm.latestCheckpointKey(threadID)
	keys = append(keys, latestKey)

	if batchStore, ok := cm.store.(store.BatchStore); ok {
		if err := batchStore.BatchDelete(ctx, keys); err != nil {
			return fmt.Errorf("failed to batch-delete checkpoints: %w", err)
		}
		return nil
	}

	for _, key := range keys {
		if err := cm.store.Delete(ctx, key); err != nil && key != latestKey {
			return fmt.Errorf("failed to delete checkpoint %s: %w", key, err)
		}
	}

	return nil
}

// Cleanup removes checkpoints older than the specified duration
func (cm *Manager) Cleanup(ctx context.Context, olderThan time.Duration) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	keys, err := cm.store.List(ctx, CheckpointKeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints for cleanup: %w", err)
	}

	for _, key := range keys {
		data, err := cm.store.Get(ctx, key)
		if err != nil {
			continue
		}

		checkpoint, err := cm.deserializeCheckpoint(data)
		if err != nil {
			continue
		}

		if checkpoint.Timestamp.Before(cutoff) {
			if err := cm.store.Delete(ctx, key); err != nil {
				fmt.Printf("Warning: failed to delete old checkpoint %s: %v\n", key, err)
			}
		}
	}

	return nil
}

// Close releases any resources held by the checkpointer
func (cm *Manager) Close() error {
	if cm.autoCleaner != nil {
		cm.autoCleaner.Stop()
	}

	return cm.store.Close()
}

// serializeCheckpoint converts a checkpoint to bytes
func (cm *Manager) serializeCheckpoint(checkpoint *Checkpoint) ([]byte, error) {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, err
	}

	if cm.config.Compression && cm.compressor != nil {
		compressed, err := cm.compressor.Compress(context.Background(), data)
		if err != nil {
			return data, nil
		}

		// Store compressed data with metadata
		wrapper := struct {
			IsCompressed bool            `json:"is_compressed"`
			Compression  *CompressedData `json:"compression,omitempty"`
			Data         []byte          `json:"data,omitempty"`
		}{
			IsCompressed: true,
			Compression:  compressed,
		}

		return json.Marshal(wrapper)
	}

	return data, nil
}

// deserializeCheckpoint converts bytes to a checkpoint
func (cm *Manager) deserializeCheckpoint(data []byte) (*Checkpoint, error) {
	var wrapper struct {
		IsCompressed bool            `json:"is_compressed"`
		Compression  *CompressedData `json:"compression,omitempty"`
		Data         []byte          `json:"data,omitempty"`
	}

	// First try to unmarshal as wrapped data
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.IsCompressed && wrapper.Compression != nil {
		if cm.compressor != nil {
			decompressed, err := cm.compressor.Decompress(context.Background(), wrapper.Compression)
			if err == nil {
				data = decompressed
			}
		}
	} else {
		// Try legacy compression (gzip)
		if cm.config.Compression {
			if decompressed, err := cm.decompress(data); err == nil {
				data = decompressed
			}
		}
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, err
	}

	if checkpoint.Version == 0 {
		checkpoint.Version = 1 // Assume version 1 for old checkpoints
	}

	return &checkpoint, nil
}

// decompress decompresses gzip data (legacy path: data written before
// AdvancedCompressor's wrapper format existed)
func (cm *Manager) decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(gz); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// cleanupOldCheckpoints removes excess checkpoints beyond MaxCheckpoints
func (cm *Manager) cleanupOldCheckpoints(ctx context.Context, threadID string) error {
	infos, err := cm.List(ctx, threadID)
	if err != nil {
		return err
	}

	if len(infos) <= cm.config.MaxCheckpoints {
		return nil
	}

	// Delete oldest checkpoints
	toDelete := infos[cm.config.MaxCheckpoints:]
	for _, info := range toDelete {
		if err := cm.Delete(ctx, threadID, info.ID); err != nil {
			return err
		}
	}

	return nil
}

// Key generation functions
func (cm *Manager) checkpointKey(threadID, checkpointID string) string {
	return fmt.Sprintf("%s%s:%s", CheckpointKeyPrefix, threadID, checkpointID)
}

func (cm *Manager) latestCheckpointKey(threadID string) string {
	return fmt.Sprintf("%s%s:latest", ThreadKeyPrefix, threadID)
}

func (cm *Manager) threadCheckpointPrefix(threadID string) string {
	return fmt.Sprintf("%s%s:", CheckpointKeyPrefix, threadID)
}

// generateCheckpointID creates a unique checkpoint identifier
func generateCheckpointID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("cp_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
