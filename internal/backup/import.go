package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/store"
)

// ReadOptions controls how a backup file is opened.
type ReadOptions struct {
	Passphrase string
	// Recover skips the integrity tag check on encrypted backups.
	Recover bool
}

// ReadDocument decodes raw backup bytes. Encrypted envelopes need a
// passphrase; plain documents are accepted as-is. The document is validated.
func ReadDocument(raw []byte, opts ReadOptions) (*Document, error) {
	raw = bytes.TrimSpace(raw)
	plain := raw
	if IsEnvelope(raw) {
		pass := NormalizePassphrase(opts.Passphrase)
		var err error
		if opts.Recover {
			plain, err = DecryptUnverified(raw, pass)
		} else {
			plain, err = Decrypt(raw, pass)
		}
		if err != nil {
			return nil, err
		}
	}

	var doc Document
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Importer restores backup documents into a store.
type Importer struct {
	db       *store.DB
	photoDir string
	log      *zap.Logger
}

// NewImporter returns an importer writing photo files under photoDir.
func NewImporter(db *store.DB, photoDir string, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{db: db, photoDir: photoDir, log: log}
}

// Import replaces the store contents with doc. Photos without data are
// dropped. If the restore fails the photo files written for it are removed
// and the store is unchanged.
func (im *Importer) Import(ctx context.Context, doc *Document) (stats store.RestoreStats, err error) {
	if err := doc.Validate(); err != nil {
		return stats, err
	}

	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, p := range written {
			if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
				im.log.Warn("remove photo after failed import", zap.String("path", p), zap.Error(rmErr))
			}
		}
	}()

	ds := doc.dataset()
	ds.Photos = ds.Photos[:0]
	for _, p := range doc.Photos {
		if p.Data == "" {
			im.log.Warn("photo has no data, skipping", zap.Int64("photo_id", p.ID))
			stats.Skipped++
			continue
		}
		b, decErr := base64.StdEncoding.DecodeString(p.Data)
		if decErr != nil {
			return stats, fmt.Errorf("%w: photo %d data is not base64", ErrInvalidFormat, p.ID)
		}
		if len(written) == 0 {
			if mkErr := os.MkdirAll(im.photoDir, 0755); mkErr != nil {
				return stats, fmt.Errorf("create photo dir: %w", mkErr)
			}
		}
		ext := filepath.Ext(photoPath(p.URI))
		if ext == "" {
			ext = ".jpg"
		}
		path := filepath.Join(im.photoDir, uuid.NewString()+ext)
		if wErr := os.WriteFile(path, b, 0644); wErr != nil {
			return stats, fmt.Errorf("write photo %d: %w", p.ID, wErr)
		}
		written = append(written, path)
		ds.Photos = append(ds.Photos, store.Photo{ID: p.ID, EntityID: p.EntityID, URI: path, Timestamp: p.Timestamp})
	}

	skipped := stats.Skipped
	stats, err = im.db.Restore(ctx, ds)
	if err != nil {
		return stats, fmt.Errorf("restore: %w", err)
	}
	stats.Skipped += skipped
	im.log.Info("backup imported",
		zap.Int("entities", stats.Entities),
		zap.Int("interactions", stats.Interactions),
		zap.Int("photos", stats.Photos),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}
