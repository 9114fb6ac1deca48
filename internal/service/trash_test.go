package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresverguilla1987/mixtli-nube/internal/audit"
	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
)

func TestTrip_UploadListTrashRestore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	photo := strings.Repeat("x", 10240)

	upload := NewUploadService(env.store, nil, nil, 0)
	res, err := upload.Upload(ctx, "trip", "photo.jpg", "image/jpeg", int64(len(photo)), strings.NewReader(photo))
	require.NoError(t, err)
	assert.Equal(t, "albums/trip/photo.jpg", res.Key)

	page, err := env.listing.ListAlbum(ctx, "trip", "", 0, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "albums/trip/photo.jpg", page.Items[0].Key)
	assert.Equal(t, int64(10240), page.Items[0].Size)

	get, err := env.presign.PresignGet(ctx, &domain.PresignGetRequest{Key: res.Key}, "")
	require.NoError(t, err)
	assert.Contains(t, get.URL, "albums/trip/photo.jpg")
	assert.Equal(t, photo, env.read(t, get.Key))

	trashed, err := env.trash.TrashAlbum(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 1, trashed.MovedCount)
	assert.Empty(t, trashed.Errors)
	assert.True(t, naming.ValidSnapshot(trashed.Snapshot))

	page, err = env.listing.ListAlbum(ctx, "trip", "", 0, "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	restored, err := env.trash.RestoreAlbum(ctx, "trip", "")
	require.NoError(t, err)
	assert.Equal(t, 1, restored.RestoredCount)
	assert.Equal(t, trashed.Snapshot, restored.Snapshot)

	page, err = env.listing.ListAlbum(ctx, "trip", "", 0, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "albums/trip/photo.jpg", page.Items[0].Key)
	assert.Equal(t, int64(10240), page.Items[0].Size)

	assert.Equal(t, []string{audit.ActionAlbumTrash, audit.ActionAlbumRestore}, env.recorder.actions())
}

func TestTrashAlbum_RoundTripKeepsKeysAndSizes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/fam/a.jpg", "aaa")
	env.put(t, "albums/fam/2023/b.png", "bbbbb")
	env.put(t, "albums/fam/notes.txt", "n")
	env.put(t, "thumbs/fam/a.jpg", "thumb")
	env.put(t, "albums/other/c.jpg", "c")

	before := env.keys(t, "albums/fam/")

	res, err := env.trash.TrashAlbum(ctx, "fam")
	require.NoError(t, err)
	assert.Equal(t, 3, res.MovedCount)
	assert.Empty(t, env.keys(t, "albums/fam/"))
	assert.Empty(t, env.keys(t, "thumbs/fam/"))
	assert.Equal(t, []string{"albums/other/c.jpg"}, env.keys(t, "albums/"))
	assert.Len(t, env.keys(t, naming.SnapshotAlbumPrefix(res.Snapshot, "fam")), 3)

	_, err = env.trash.RestoreAlbum(ctx, "fam", "")
	require.NoError(t, err)
	assert.Equal(t, before, env.keys(t, "albums/fam/"))
	assert.Equal(t, "bbbbb", env.read(t, "albums/fam/2023/b.png"))
}

func TestRestoreAlbum_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "a")
	env.put(t, "albums/trip/b.jpg", "bb")

	_, err := env.trash.TrashAlbum(ctx, "trip")
	require.NoError(t, err)

	first, err := env.trash.RestoreAlbum(ctx, "trip", "")
	require.NoError(t, err)
	second, err := env.trash.RestoreAlbum(ctx, "trip", "")
	require.NoError(t, err)

	assert.Equal(t, first.Snapshot, second.Snapshot)
	assert.Equal(t, first.RestoredCount, second.RestoredCount)
	assert.Equal(t, []string{"albums/trip/a.jpg", "albums/trip/b.jpg"}, env.keys(t, "albums/trip/"))

	// The snapshot survives restores.
	assert.Len(t, env.keys(t, naming.SnapshotAlbumPrefix(first.Snapshot, "trip")), 2)
}

func TestRestoreAlbum_PicksSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.put(t, "albums/trip/old.jpg", "old")
	older, err := env.trash.TrashAlbum(ctx, "trip")
	require.NoError(t, err)

	env.put(t, "albums/trip/new.jpg", "new")
	newer, err := env.trash.TrashAlbum(ctx, "trip")
	require.NoError(t, err)

	snapshots, err := env.trash.ListSnapshots(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, []string{newer.Snapshot, older.Snapshot}, snapshots)

	res, err := env.trash.RestoreAlbum(ctx, "trip", "")
	require.NoError(t, err)
	assert.Equal(t, newer.Snapshot, res.Snapshot)
	assert.Equal(t, []string{"albums/trip/new.jpg"}, env.keys(t, "albums/trip/"))

	res, err = env.trash.RestoreAlbum(ctx, "trip", older.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, older.Snapshot, res.Snapshot)
	assert.Equal(t, []string{"albums/trip/new.jpg", "albums/trip/old.jpg"}, env.keys(t, "albums/trip/"))
}

func TestTrashRestore_Errors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.trash.TrashAlbum(ctx, "empty")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.trash.TrashAlbum(ctx, "../etc")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.trash.RestoreAlbum(ctx, "never", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.trash.RestoreAlbum(ctx, "never", "yesterday")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	env.put(t, "albums/trip/a.jpg", "a")
	_, err = env.trash.TrashAlbum(ctx, "trip")
	require.NoError(t, err)
	_, err = env.trash.RestoreAlbum(ctx, "trip", "2001-01-01T00:00:00.000Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteItem(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "a")
	env.put(t, "albums/trip/b.jpg", "b")
	env.put(t, "thumbs/trip/a.jpg", "thumb")

	movedTo, err := env.trash.DeleteItem(ctx, "albums/trip/a.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(movedTo, naming.TrashPrefix))
	assert.True(t, strings.HasSuffix(movedTo, "/albums/trip/a.jpg"))
	assert.Equal(t, "a", env.read(t, movedTo))

	assert.Equal(t, []string{"albums/trip/b.jpg"}, env.keys(t, "albums/trip/"))
	assert.Empty(t, env.keys(t, "thumbs/trip/"))

	_, err = env.trash.DeleteItem(ctx, "albums/trip/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.trash.DeleteItem(ctx, "meta/albums/trip.pin")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	env.put(t, "albums/trip/.keep", "")
	_, err = env.trash.DeleteItem(ctx, "albums/trip/.keep")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRenameItem(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "a")
	env.put(t, "albums/trip/taken.jpg", "t")
	env.put(t, "thumbs/trip/a.jpg", "thumb")

	require.NoError(t, env.trash.RenameItem(ctx, "albums/trip/a.jpg", "albums/trip/2024/beach.jpg"))
	assert.Equal(t, []string{"albums/trip/2024/beach.jpg", "albums/trip/taken.jpg"}, env.keys(t, "albums/trip/"))
	assert.Equal(t, []string{"thumbs/trip/2024/beach.jpg"}, env.keys(t, "thumbs/trip/"))

	err := env.trash.RenameItem(ctx, "albums/trip/2024/beach.jpg", "albums/trip/taken.jpg")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "a", env.read(t, "albums/trip/2024/beach.jpg"))

	err = env.trash.RenameItem(ctx, "albums/trip/missing.jpg", "albums/trip/x.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	err = env.trash.RenameItem(ctx, "albums/trip/taken.jpg", "albums/trip/taken.jpg")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	err = env.trash.RenameItem(ctx, "albums/trip/taken.jpg", "albums/trip/_manifest.json")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRenameItem_WithoutThumbnail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "a")

	require.NoError(t, env.trash.RenameItem(ctx, "albums/trip/a.jpg", "albums/fam/a.jpg"))
	assert.Equal(t, []string{"albums/fam/a.jpg"}, env.keys(t, "albums/"))
	assert.Equal(t, []string{audit.ActionItemRename}, env.recorder.actions())
}

func TestTrashAlbum_CopyFailureKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/fam/a.jpg", "a")
	env.put(t, "albums/fam/b.jpg", "bb")
	env.put(t, "albums/fam/c.jpg", "ccc")

	store := &faultyStore{LocalStorage: env.store, failCopy: map[string]bool{"albums/fam/b.jpg": true}}
	trash := NewTrashService(store, env.recorder, 4, env.clock)

	res, err := trash.TrashAlbum(ctx, "fam")
	require.NoError(t, err)
	assert.Equal(t, 2, res.MovedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "albums/fam/b.jpg", res.Errors[0].Key)
	assert.Equal(t, "Unavailable", res.Errors[0].Code)

	assert.Equal(t, []string{"albums/fam/b.jpg"}, env.keys(t, "albums/fam/"))
	assert.Equal(t, "bb", env.read(t, "albums/fam/b.jpg"))
	assert.Equal(t, []string{
		naming.TrashKey(res.Snapshot, "albums/fam/a.jpg"),
		naming.TrashKey(res.Snapshot, "albums/fam/c.jpg"),
	}, env.keys(t, naming.SnapshotAlbumPrefix(res.Snapshot, "fam")))

	require.Len(t, env.recorder.entries, 1)
	entry := env.recorder.entries[0]
	assert.Equal(t, audit.ActionAlbumTrash, entry.Action)
	assert.Equal(t, 2, entry.Count)
	assert.Equal(t, []string{"albums/fam/a.jpg", "albums/fam/c.jpg"}, entry.Keys)
}

func TestTrashAlbum_DeleteRefusalReported(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/fam/a.jpg", "a")
	env.put(t, "albums/fam/b.jpg", "bb")

	store := &faultyStore{LocalStorage: env.store, failDelete: map[string]bool{"albums/fam/a.jpg": true}}
	trash := NewTrashService(store, env.recorder, 4, env.clock)

	res, err := trash.TrashAlbum(ctx, "fam")
	require.NoError(t, err)
	assert.Equal(t, 1, res.MovedCount)
	assert.Equal(t, []domain.ItemError{{Key: "albums/fam/a.jpg", Code: "AccessDenied", Message: "Access Denied"}}, res.Errors)

	// The copy was confirmed, so the snapshot is complete even though one
	// original stays behind.
	assert.Equal(t, []string{"albums/fam/a.jpg"}, env.keys(t, "albums/fam/"))
	assert.Len(t, env.keys(t, naming.SnapshotAlbumPrefix(res.Snapshot, "fam")), 2)
	assert.Equal(t, []string{"albums/fam/b.jpg"}, env.recorder.entries[0].Keys)
}

func TestRestoreAlbum_DefaultPicksNewestItemSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "a")
	env.put(t, "albums/trip/b.jpg", "b")

	trashed, err := env.trash.TrashAlbum(ctx, "trip")
	require.NoError(t, err)

	env.put(t, "albums/trip/c.jpg", "c")
	_, err = env.trash.DeleteItem(ctx, "albums/trip/c.jpg")
	require.NoError(t, err)

	snapshots, err := env.trash.ListSnapshots(ctx, "trip")
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, trashed.Snapshot, snapshots[1])

	res, err := env.trash.RestoreAlbum(ctx, "trip", "")
	require.NoError(t, err)
	assert.Equal(t, snapshots[0], res.Snapshot)
	assert.Equal(t, []string{"albums/trip/c.jpg"}, env.keys(t, "albums/trip/"))

	res, err = env.trash.RestoreAlbum(ctx, "trip", trashed.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RestoredCount)
	assert.Equal(t, []string{"albums/trip/a.jpg", "albums/trip/b.jpg", "albums/trip/c.jpg"}, env.keys(t, "albums/trip/"))
}
