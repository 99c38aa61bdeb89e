package similarity

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/okian/lutcurate/internal/domain/features"
	"github.com/okian/lutcurate/internal/domain/lut"
	"github.com/okian/lutcurate/internal/domain/raster"
	"github.com/okian/lutcurate/pkg/logger"
	"github.com/okian/lutcurate/pkg/metrics"
)

// Source renders one parsed LUT onto the reference image.
type Source interface {
	Render(ctx context.Context, t *lut.Table) (*image.NRGBA, error)
}

// FetchFunc loads the bytes of a LUT by id.
type FetchFunc func(ctx context.Context, id string) ([]byte, error)

// Failure records a LUT that could not be rendered.
type Failure struct {
	ID  string
	Err error
}

// Rendered holds the images of every LUT that rendered, in input order.
type Rendered struct {
	IDs    []string
	Images []image.Image
	Failed []Failure
}

// RenderCache stores rendered images as <dir>/<scope>/<lut-id>.png. A
// shared cache survives across runs and processes and is guarded by a file
// lock; a private cache lives in a temp dir removed by Close.
type RenderCache struct {
	dir     string
	private bool
	mu      sync.Mutex
	lock    *flock.Flock
}

// OpenCache opens the shared cache at dir when reuse is set, otherwise a
// private temp cache. scope names the reference the images were rendered
// from, so renders of a different reference never share files.
func OpenCache(dir, scope string, reuse bool) (*RenderCache, error) {
	if !reuse || dir == "" {
		tmp, err := os.MkdirTemp("", "lutcurate-render-*")
		if err != nil {
			return nil, fmt.Errorf("create render dir: %w", err)
		}
		return &RenderCache{dir: tmp, private: true}, nil
	}
	if scope != "" {
		dir = filepath.Join(dir, scope)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}
	return &RenderCache{dir: dir, lock: flock.New(filepath.Join(dir, ".lock"))}, nil
}

// Dir returns the cache directory.
func (c *RenderCache) Dir() string { return c.dir }

// Close releases the cache. Private caches are deleted.
func (c *RenderCache) Close() error {
	if c.lock != nil {
		_ = c.lock.Close()
	}
	if c.private {
		return os.RemoveAll(c.dir)
	}
	return nil
}

func (c *RenderCache) path(id string) string {
	return filepath.Join(c.dir, id+".png")
}

// Get returns the cached image for id, or nil when absent.
func (c *RenderCache) Get(ctx context.Context, id string) (*image.NRGBA, error) {
	var data []byte
	err := c.locked(ctx, false, func() error {
		var err error
		data, err = os.ReadFile(c.path(id))
		return err
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached render %s: %w", id, err)
	}
	img, err := raster.DecodePNG(data)
	if err != nil {
		// Torn or foreign file; render again.
		return nil, nil
	}
	return img, nil
}

// Put stores img for id. The file is written aside and renamed into place.
func (c *RenderCache) Put(ctx context.Context, id string, img image.Image) error {
	data, err := raster.EncodePNG(img)
	if err != nil {
		return err
	}
	return c.locked(ctx, true, func() error {
		tmp, err := os.CreateTemp(c.dir, id+".*.tmp")
		if err != nil {
			return fmt.Errorf("write cached render: %w", err)
		}
		if _, err := tmp.Write(data); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("write cached render: %w", err)
		}
		if err := tmp.Close(); err != nil {
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("write cached render: %w", err)
		}
		return os.Rename(tmp.Name(), c.path(id))
	})
}

func (c *RenderCache) locked(ctx context.Context, exclusive bool, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lock == nil {
		return fn()
	}
	try := c.lock.TryRLockContext
	if exclusive {
		try = c.lock.TryLockContext
	}
	ok, err := try(ctx, 20*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock render cache: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock render cache: %s busy", c.lock.Path())
	}
	defer func() { _ = c.lock.Unlock() }()
	return fn()
}

// Renderer renders a working set of LUTs against the reference image.
type Renderer struct {
	source Source
	fetch  FetchFunc
	log    logger.Logger
}

// NewRenderer builds a Renderer.
func NewRenderer(source Source, fetch FetchFunc, log logger.Logger) *Renderer {
	if log == nil {
		log = logger.Nop()
	}
	return &Renderer{source: source, fetch: fetch, log: log}
}

// RenderAll renders ids in order through cache. LUTs that cannot be
// fetched, parsed or applied are reported in Failed and left out of the
// result. Interruption and a missing reference image abort the call.
func (r *Renderer) RenderAll(ctx context.Context, ids []string, cache *RenderCache) (*Rendered, error) {
	out := &Rendered{
		IDs:    make([]string, 0, len(ids)),
		Images: make([]image.Image, 0, len(ids)),
	}
	for _, id := range ids {
		img, err := r.renderOne(ctx, id, cache)
		switch {
		case err == nil:
			out.IDs = append(out.IDs, id)
			out.Images = append(out.Images, img)
		case errors.Is(err, features.ErrInterrupted), errors.Is(err, features.ErrReferenceImage):
			return nil, err
		default:
			r.log.Warn(ctx, "lut not rendered", logger.String("lut_id", id), logger.Error(err))
			out.Failed = append(out.Failed, Failure{ID: id, Err: err})
		}
	}
	return out, nil
}

func (r *Renderer) renderOne(ctx context.Context, id string, cache *RenderCache) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", features.ErrInterrupted, context.Cause(ctx))
	}
	if cache != nil {
		img, err := cache.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if img != nil {
			metrics.RecordRenderCache(true)
			return img, nil
		}
		metrics.RecordRenderCache(false)
	}

	data, err := r.fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	t, err := lut.Parse(data)
	if err != nil {
		return nil, err
	}
	img, err := r.source.Render(ctx, t)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.Put(ctx, id, img); err != nil {
			r.log.Warn(ctx, "render not cached", logger.String("lut_id", id), logger.Error(err))
		}
	}
	return img, nil
}
