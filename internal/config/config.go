// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load(ctx) layers a YAML file and LUTC_* environment variables on top.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"path/filepath"
)

// MemoryDatabase as DatabasePath keeps the catalog in process memory.
const MemoryDatabase = "memory"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9180".
	Addr string `koanf:"addr"`

	// DataDir is the root for the catalog database, blobs and render cache
	// when their own paths are left empty.
	DataDir string `koanf:"data_dir"`
	// DatabasePath points at the SQLite catalog. "memory" keeps the catalog
	// in process memory.
	DatabasePath string `koanf:"database_path"`
	// BlobDir is the filesystem root of the blob store.
	BlobDir string `koanf:"blob_dir"`

	// ReferenceImage is the raster every LUT is rendered against.
	ReferenceImage string `koanf:"reference_image"`
	// RenderCacheDir holds rendered reference images keyed by LUT id.
	RenderCacheDir string `koanf:"render_cache_dir"`
	// RenderMaxSide downsizes the reference image before rendering (0 keeps
	// the original resolution).
	RenderMaxSide int `koanf:"render_max_side"`
	// CanonicalSize is the square size used by histogram and SSIM metrics.
	CanonicalSize int `koanf:"canonical_size"`
	// ThumbnailSize is the longest side of generated thumbnails.
	ThumbnailSize int `koanf:"thumbnail_size"`

	// KMeansRestarts, KMeansMaxIterations and KMeansSeed tune centroid clustering.
	KMeansRestarts      int   `koanf:"kmeans_restarts"`
	KMeansMaxIterations int   `koanf:"kmeans_max_iterations"`
	KMeansSeed          int64 `koanf:"kmeans_seed"`

	// JobQueueSize bounds the number of in-flight background jobs.
	JobQueueSize int `koanf:"job_queue_size"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9180",
		DataDir:             "data",
		RenderMaxSide:       256,
		CanonicalSize:       256,
		ThumbnailSize:       96,
		KMeansRestarts:      10,
		KMeansMaxIterations: 300,
		KMeansSeed:          42,
		JobQueueSize:        1,
	}
}

// InMemory reports whether the catalog lives in process memory.
func (c *Config) InMemory() bool { return c.DatabasePath == MemoryDatabase }

// resolvePaths fills derived paths from DataDir.
func (c *Config) resolvePaths() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.BlobDir == "" {
		c.BlobDir = filepath.Join(c.DataDir, "blobs")
	}
	if c.RenderCacheDir == "" {
		c.RenderCacheDir = filepath.Join(c.DataDir, "render-cache")
	}
}
