package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/lutcurate/internal/adapters/repository"
	"github.com/okian/lutcurate/internal/domain/model"
	"github.com/okian/lutcurate/pkg/logger"
)

// LutBlobDir is the blob prefix LUT bytes are stored under.
const LutBlobDir = "luts"

// Ingest stores a LUT file in the catalog. A filename already in the
// catalog is not stored again; the existing asset is returned with
// created=false.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (asset model.LutAsset, created bool, err error) {
	store, err := s.components()
	if err != nil {
		return model.LutAsset{}, false, err
	}
	name := strings.TrimSpace(filename)
	if name == "" {
		return model.LutAsset{}, false, fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	}

	existing, err := store.LutByFilename(ctx, name)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return model.LutAsset{}, false, fmt.Errorf("lookup %s: %w", name, err)
	}

	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = ".cube"
	}
	asset = model.LutAsset{
		ID:        uuid.NewString(),
		Filename:  name,
		CreatedAt: s.now().UTC(),
	}
	asset.BlobPath = path.Join(LutBlobDir, asset.ID+ext)

	if err := s.blobs.Put(ctx, asset.BlobPath, data); err != nil {
		return model.LutAsset{}, false, fmt.Errorf("store blob: %w", err)
	}
	if err := store.PutLut(ctx, asset); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), asset.BlobPath); derr != nil {
			s.logger.Warn(ctx, "orphaned blob", logger.String("path", asset.BlobPath), logger.Error(derr))
		}
		return model.LutAsset{}, false, fmt.Errorf("store lut: %w", err)
	}

	s.logger.Debug(ctx, "lut ingested",
		logger.String("id", asset.ID),
		logger.String("filename", asset.Filename),
		logger.Int("bytes", len(data)))
	return asset, true, nil
}
