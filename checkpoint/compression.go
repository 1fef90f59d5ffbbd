package checkpoint

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"sync"
	"time"
)

// CompressionType defines the type of compression to use
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
)

// CompressionConfig contains compression settings for checkpoint payloads.
// A SupervisorState snapshot is always structured JSON text — low entropy,
// rarely more than a few tens of KB — so gzip is the only codec that ever
// pays for itself; there is no LZW/auto-select/parallel-chunk path like a
// general-purpose blob store would need.
type CompressionConfig struct {
	// Type of compression to use
	Type CompressionType `json:"type"`

	// Compression level (1-9)
	Level int `json:"level"`

	// Minimum size threshold for compression (bytes)
	MinSize int64 `json:"min_size"`

	// Maximum compression time allowed
	MaxCompressionTime time.Duration `json:"max_compression_time"`
}

// DefaultCompressionConfig returns default compression settings
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Type:               CompressionGzip,
		Level:              6, // Balanced compression
		MinSize:            1024,
		MaxCompressionTime: 30 * time.Second,
	}
}

// CompressedData contains compressed data with metadata
type CompressedData struct {
	Data             []byte          `json:"data"`
	CompressionType  CompressionType `json:"compression_type"`
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	CompressionTime  time.Duration   `json:"compression_time"`
}

// AdvancedCompressor compresses checkpoint payloads with gzip, below a
// minimum-size threshold below which compression overhead isn't worth it.
type AdvancedCompressor struct {
	config CompressionConfig
	stats  CompressionStats
	mu     sync.RWMutex
}

// CompressionStats tracks compression performance
type CompressionStats struct {
	TotalOperations     int64         `json:"total_operations"`
	TotalOriginalSize   int64         `json:"total_original_size"`
	TotalCompressedSize int64         `json:"total_compressed_size"`
	AverageRatio        float64       `json:"average_ratio"`
	AverageTime         time.Duration `json:"average_time"`
	LastUpdated         time.Time     `json:"last_updated"`
}

// NewAdvancedCompressor creates a new compressor
func NewAdvancedCompressor(config CompressionConfig) *AdvancedCompressor {
	return &AdvancedCompressor{
		config: config,
		stats: CompressionStats{
			LastUpdated: time.Now(),
		},
	}
}

// Compress compresses data using gzip, unless it's under MinSize
func (ac *AdvancedCompressor) Compress(ctx context.Context, data []byte) (*CompressedData, error) {
	startTime := time.Now()
	originalSize := int64(len(data))

	if originalSize < ac.config.MinSize || ac.config.Type == CompressionNone {
		return &CompressedData{
			Data:             data,
			CompressionType:  CompressionNone,
			OriginalSize:     originalSize,
			CompressedSize:   originalSize,
			CompressionRatio: 1.0,
			CompressionTime:  time.Since(startTime),
		}, nil
	}

	compressCtx, cancel := context.WithTimeout(ctx, ac.config.MaxCompressionTime)
	defer cancel()

	compressed, err := ac.compressGzip(compressCtx, data)
	compressionType := CompressionGzip
	if err != nil {
		compressed = data
		compressionType = CompressionNone
	}

	compressedSize := int64(len(compressed))
	compressionTime := time.Since(startTime)
	ratio := float64(compressedSize) / float64(originalSize)

	ac.updateStats(originalSize, compressedSize, compressionTime)

	return &CompressedData{
		Data:             compressed,
		CompressionType:  compressionType,
		OriginalSize:     originalSize,
		CompressedSize:   compressedSize,
		CompressionRatio: ratio,
		CompressionTime:  compressionTime,
	}, nil
}

// Decompress decompresses data
func (ac *AdvancedCompressor) Decompress(ctx context.Context, compressedData *CompressedData) ([]byte, error) {
	if compressedData.CompressionType != CompressionGzip {
		return compressedData.Data, nil
	}
	return ac.decompressGzip(ctx, compressedData.Data)
}

// compressGzip compresses data using gzip
func (ac *AdvancedCompressor) compressGzip(ctx context.Context, data []byte) ([]byte, error) {
	var buf bytes.Buffer

	gw, err := gzip.NewWriterLevel(&buf, ac.config.Level)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		_, err := gw.Write(data)
		if err != nil {
			done <- err
			return
		}
		done <- gw.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case <-ctx.Done():
		gw.Close()
		return nil, ctx.Err()
	}
}

// decompressGzip decompresses gzip data
func (ac *AdvancedCompressor) decompressGzip(ctx context.Context, data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	done := make(chan []byte, 1)
	errChan := make(chan error, 1)

	go func() {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, gr); err != nil {
			errChan <- err
			return
		}
		done <- buf.Bytes()
	}()

	select {
	case result := <-done:
		return result, nil
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// updateStats updates compression statistics
func (ac *AdvancedCompressor) updateStats(originalSize, compressedSize int64, compressionTime time.Duration) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	ac.stats.TotalOperations++
	ac.stats.TotalOriginalSize += originalSize
	ac.stats.TotalCompressedSize += compressedSize

	if ac.stats.TotalOriginalSize > 0 {
		ac.stats.AverageRatio = float64(ac.stats.TotalCompressedSize) / float64(ac.stats.TotalOriginalSize)
	}

	if ac.stats.TotalOperations == 1 {
		ac.stats.AverageTime = compressionTime
	} else {
		alpha := 0.1
		ac.stats.AverageTime = time.Duration(float64(ac.stats.AverageTime)*(1-alpha) + float64(compressionTime)*alpha)
	}

	ac.stats.LastUpdated = time.Now()
}

// GetStats returns current compression statistics
func (ac *AdvancedCompressor) GetStats() CompressionStats {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.stats
}

// ResetStats resets compression statistics
func (ac *AdvancedCompressor) ResetStats() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.stats = CompressionStats{
		LastUpdated: time.Now(),
	}
}
