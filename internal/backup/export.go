package backup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/store"
)

// Exporter builds backup documents from a store.
type Exporter struct {
	db  *store.DB
	log *zap.Logger
	now func() time.Time
}

// NewExporter returns an exporter reading from db.
func NewExporter(db *store.DB, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{db: db, log: log, now: time.Now}
}

// Document snapshots the store and inlines every photo file as base64.
func (e *Exporter) Document(ctx context.Context) (*Document, error) {
	ds, err := e.db.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	doc := newDocument(ds, e.now().UnixMilli())
	for i := range doc.Photos {
		p := &doc.Photos[i]
		b, err := os.ReadFile(photoPath(p.URI))
		if err != nil {
			e.log.Warn("photo file unreadable, exporting without data",
				zap.Int64("photo_id", p.ID), zap.String("uri", p.URI), zap.Error(err))
			continue
		}
		p.Data = base64.StdEncoding.EncodeToString(b)
	}
	return doc, nil
}

// WriteEncrypted exports the store as an encrypted envelope.
func (e *Exporter) WriteEncrypted(ctx context.Context, w io.Writer, passphrase string) error {
	if err := ValidatePassphrase(passphrase); err != nil {
		return err
	}
	doc, err := e.Document(ctx)
	if err != nil {
		return err
	}
	plain, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	sealed, err := Encrypt(plain, passphrase)
	if err != nil {
		return err
	}
	if _, err := w.Write(sealed); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	e.log.Info("backup exported", zap.Int("entities", len(doc.Entities)), zap.Int("photos", len(doc.Photos)))
	return nil
}

// WritePlain exports the store as an indented, unencrypted document.
func (e *Exporter) WritePlain(ctx context.Context, w io.Writer) error {
	doc, err := e.Document(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	e.log.Info("plain backup exported", zap.Int("entities", len(doc.Entities)))
	return nil
}

// photoPath maps a stored photo uri to a local file path.
func photoPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
