package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AutoCleaner periodically removes suspend checkpoints whose thread was
// never resumed (the operator never answered response.json) past
// CleanupConfig.MaxAge. There is no count- or size-based eviction here: a
// thread has at most one in-flight checkpoint (DeleteAll clears it on
// resume), so "too many checkpoints for one thread" or "storage too large"
// never legitimately happens — only abandonment does.
type AutoCleaner struct {
	manager  *Manager
	config   CleanupConfig
	ticker   *time.Ticker
	stopChan chan struct{}
	mu       sync.Mutex
	running  bool
}

// CleanupConfig contains configuration for automatic cleanup
type CleanupConfig struct {
	// Interval between cleanup runs
	Interval time.Duration `json:"interval"`

	// Maximum age of an unresumed checkpoint before it is deleted
	MaxAge time.Duration `json:"max_age"`

	// Enable automatic cleanup
	Enabled bool `json:"enabled"`
}

// DefaultCleanupConfig returns a default cleanup configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval: time.Hour,
		MaxAge:   7 * 24 * time.Hour, // 7 days
		Enabled:  true,
	}
}

// NewAutoCleaner creates a new auto cleaner
func NewAutoCleaner(manager *Manager, config CleanupConfig) *AutoCleaner {
	return &AutoCleaner{
		manager:  manager,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start begins the automatic cleanup process
func (ac *AutoCleaner) Start() error {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.running {
		return fmt.Errorf("auto cleaner is already running")
	}

	if !ac.config.Enabled {
		return fmt.Errorf("auto cleanup is disabled")
	}

	ac.ticker = time.NewTicker(ac.config.Interval)
	ac.running = true

	go ac.cleanupLoop()

	return nil
}

// Stop stops the automatic cleanup process
func (ac *AutoCleaner) Stop() error {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if !ac.running {
		return nil
	}

	close(ac.stopChan)
	ac.ticker.Stop()
	ac.running = false

	return nil
}

// IsRunning returns true if the auto cleaner is running
func (ac *AutoCleaner) IsRunning() bool {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.running
}

// RunOnce performs a single age-based cleanup pass
func (ac *AutoCleaner) RunOnce(ctx context.Context) (*CleanupStats, error) {
	stats := &CleanupStats{
		StartTime: time.Now(),
	}

	deleted, err := ac.cleanupByAge(ctx)
	if err != nil {
		return stats, fmt.Errorf("age-based cleanup failed: %w", err)
	}
	stats.DeletedByAge = deleted

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	stats.TotalDeleted = stats.DeletedByAge

	return stats, nil
}

// CleanupStats contains statistics about a cleanup operation
type CleanupStats struct {
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	TotalDeleted int           `json:"total_deleted"`
	DeletedByAge int           `json:"deleted_by_age"`
}

// cleanupLoop is the main cleanup loop
func (ac *AutoCleaner) cleanupLoop() {
	for {
		select {
		case <-ac.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			stats, err := ac.RunOnce(ctx)
			cancel()

			if err != nil {
				fmt.Printf("Auto cleanup error: %v\n", err)
			} else if stats.TotalDeleted > 0 {
				fmt.Printf("Auto cleanup completed: deleted %d checkpoints in %v\n",
					stats.TotalDeleted, stats.Duration)
			}

		case <-ac.stopChan:
			return
		}
	}
}

// cleanupByAge removes checkpoints older than MaxAge
func (ac *AutoCleaner) cleanupByAge(ctx context.Context) (int, error) {
	deleted := 0
	cutoff := time.Now().Add(-ac.config.MaxAge)

	keys, err := ac.manager.store.List(ctx, CheckpointKeyPrefix)
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		data, err := ac.manager.store.Get(ctx, key)
		if err != nil {
			continue
		}

		checkpoint, err := ac.manager.deserializeCheckpoint(data)
		if err != nil {
			continue
		}

		if checkpoint.Timestamp.Before(cutoff) {
			if err := ac.manager.store.Delete(ctx, key); err != nil {
				fmt.Printf("Warning: failed to delete expired checkpoint %s: %v\n", key, err)
			} else {
				deleted++
			}
		}
	}

	return deleted, nil
}
