package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory(store.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// seedGarden creates a person with a photo file on disk, a group, a tag and
// an interaction.
func seedGarden(t *testing.T, db *store.DB) (photoFile string) {
	t.Helper()
	ctx := context.Background()

	person, _, err := db.CreateEntity(ctx, store.NewEntity{Name: "Iris", Kind: store.KindPerson, Birthday: "--05-05"})
	require.NoError(t, err)
	group, _, err := db.CreateEntity(ctx, store.NewEntity{Name: "Run Club", Kind: store.KindGroup})
	require.NoError(t, err)
	require.NoError(t, db.AddGroupMember(ctx, group, person))
	_, err = db.AddTagToEntity(ctx, person, "Family")
	require.NoError(t, err)
	_, err = db.RecordInteraction(ctx, person, "Coffee", "oat flat white")
	require.NoError(t, err)

	photoFile = filepath.Join(t.TempDir(), "iris.png")
	require.NoError(t, os.WriteFile(photoFile, []byte("png-bytes"), 0644))
	_, err = db.AddPhoto(ctx, person, "file://"+photoFile)
	require.NoError(t, err)
	return photoFile
}

func TestDocumentInlinesPhotos(t *testing.T) {
	db := testDB(t)
	seedGarden(t, db)
	ctx := context.Background()
	_, err := db.AddPhoto(ctx, 1, "/does/not/exist.jpg")
	require.NoError(t, err)

	doc, err := NewExporter(db, nil).Document(ctx)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, doc.Version)
	assert.NotZero(t, doc.Timestamp)
	require.Len(t, doc.Entities, 2)
	require.Len(t, doc.Photos, 2)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), doc.Photos[0].Data)
	assert.Empty(t, doc.Photos[1].Data, "missing file exports empty data")
	require.NotNil(t, doc.Settings)
	assert.Equal(t, "linear", doc.Settings.DecayType)
}

func TestDocumentJSONFieldNames(t *testing.T) {
	db := testDB(t)
	seedGarden(t, db)
	doc, err := NewExporter(db, nil).Document(context.Background())
	require.NoError(t, err)

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{
		"version", "timestamp", "entities", "interactions", "photos", "tags", "entityTags",
		"interactionTypes", "interactionTypeTags", "groupMembers", "favorites",
	} {
		assert.Contains(t, raw, key)
	}
}

func TestEncryptedExportImportRoundTrip(t *testing.T) {
	src := testDB(t)
	seedGarden(t, src)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, NewExporter(src, nil).WriteEncrypted(ctx, &buf, testPass))
	assert.True(t, IsEnvelope(buf.Bytes()))

	doc, err := ReadDocument(buf.Bytes(), ReadOptions{Passphrase: "Apple River stone cloud maple tiger"})
	require.NoError(t, err, "passphrase is normalised")

	dst := testDB(t)
	photoDir := filepath.Join(t.TempDir(), "photos")
	stats, err := NewImporter(dst, photoDir, nil).Import(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 1, stats.Photos)

	people, err := dst.ListEntities(ctx, store.EntityFilter{Kind: store.KindPerson})
	require.NoError(t, err)
	require.Len(t, people, 1)
	iris := people[0]
	assert.Equal(t, "Iris", iris.Name)
	assert.Equal(t, 3.0, iris.InteractionScore, "Coffee weighs 3")

	photos, err := dst.ListPhotos(ctx, iris.ID)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, photoDir, filepath.Dir(photos[0].URI))
	assert.Equal(t, ".png", filepath.Ext(photos[0].URI))
	b, err := os.ReadFile(photos[0].URI)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(b))

	tags, err := dst.EntityTags(ctx, iris.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "Family", tags[0].Name)
	assert.True(t, tags[0].IsDefault)
	assert.Equal(t, 1, tags[0].Count)
}

func TestPlainExportImport(t *testing.T) {
	src := testDB(t)
	seedGarden(t, src)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, NewExporter(src, nil).WritePlain(ctx, &buf))
	assert.False(t, IsEnvelope(buf.Bytes()))

	doc, err := ReadDocument(buf.Bytes(), ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, doc.Entities, 2)
}

func TestReadDocumentErrors(t *testing.T) {
	_, err := ReadDocument([]byte(`{"version":2,"entities":[{"id":1}]}`), ReadOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = ReadDocument([]byte(`{"version":1,"entities":[]}`), ReadOptions{})
	assert.ErrorIs(t, err, ErrEmptyBackup)

	_, err = ReadDocument([]byte(`not a backup`), ReadOptions{})
	assert.ErrorIs(t, err, ErrInvalidFormat)

	sealed, err := Encrypt([]byte(`{"version":1,"entities":[{"id":1,"name":"A","type":"person"}]}`), testPass)
	require.NoError(t, err)
	_, err = ReadDocument(sealed, ReadOptions{Passphrase: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidPassphrase)
	_, err = ReadDocument(sealed, ReadOptions{Passphrase: "apple river stone cloud maple lion"})
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestImportFailureRemovesPhotosAndKeepsData(t *testing.T) {
	dst := testDB(t)
	seedGarden(t, dst)
	ctx := context.Background()

	doc := &Document{
		Version: FormatVersion,
		Entities: []EntityRecord{
			{ID: 1, Name: "Ghost", Type: "robot"},
		},
		Photos: []PhotoRecord{
			{ID: 1, EntityID: 1, URI: "x.jpg", Data: base64.StdEncoding.EncodeToString([]byte("jpg"))},
		},
	}
	photoDir := filepath.Join(t.TempDir(), "photos")
	_, err := NewImporter(dst, photoDir, nil).Import(ctx, doc)
	require.Error(t, err)

	entries, err := os.ReadDir(photoDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "written photo files are removed")

	all, err := dst.ListEntities(ctx, store.EntityFilter{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, all, 2, "previous data intact")
}

func TestImportSkipsPhotosWithoutData(t *testing.T) {
	dst := testDB(t)
	doc := &Document{
		Version:  FormatVersion,
		Entities: []EntityRecord{{ID: 7, Name: "Iris", Type: "person"}},
		Photos:   []PhotoRecord{{ID: 1, EntityID: 7, URI: "/gone.jpg"}},
	}
	stats, err := NewImporter(dst, t.TempDir(), nil).Import(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 0, stats.Photos)
	assert.Equal(t, 1, stats.Skipped)
}
