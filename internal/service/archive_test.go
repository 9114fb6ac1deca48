package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(body)
	}
	return out
}

func TestZip_WholeAlbum(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "aaa")
	env.put(t, "albums/trip/day2/b.jpg", "bb")
	env.put(t, "albums/trip/.keep", "")
	env.put(t, "albums/other/c.jpg", "c")

	plan, err := env.archive.PrepareZip(ctx, "trip", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "trip.zip", plan.Filename())
	require.Len(t, plan.Entries, 2)

	var buf bytes.Buffer
	require.NoError(t, env.archive.WriteZip(ctx, plan, &buf))
	assert.Equal(t, map[string]string{"a.jpg": "aaa", "day2/b.jpg": "bb"}, readZip(t, buf.Bytes()))
}

func TestZip_SelectedKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "aaa")
	env.put(t, "albums/trip/b.jpg", "bb")
	env.put(t, "albums/trip/c.jpg", "c")

	plan, err := env.archive.PrepareZip(ctx, "trip", []string{"a.jpg", "albums/trip/c.jpg", "a.jpg"}, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewArchiveService(env.store, env.access, true).WriteZip(ctx, plan, &buf))
	assert.Equal(t, map[string]string{"a.jpg": "aaa", "c.jpg": "c"}, readZip(t, buf.Bytes()))
}

func TestPrepareZip_FailsBeforeStreaming(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "a")
	env.put(t, "albums/other/x.jpg", "x")
	require.NoError(t, env.access.SetPin(ctx, "locked", "1234"))
	env.put(t, "albums/locked/a.jpg", "a")

	_, err := env.archive.PrepareZip(ctx, "trip", []string{"missing.jpg"}, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.archive.PrepareZip(ctx, "trip", []string{"albums/other/x.jpg"}, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.archive.PrepareZip(ctx, "trip", []string{"../other/x.jpg"}, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.archive.PrepareZip(ctx, "empty", nil, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.archive.PrepareZip(ctx, "locked", nil, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestWriteZip_FailureLeavesArchiveInvalid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "aaa")

	plan := &domain.ZipPlan{Album: "trip", Entries: []domain.ZipEntry{
		{Key: "albums/trip/a.jpg", Name: "a.jpg"},
		{Key: "albums/trip/vanished.jpg", Name: "vanished.jpg"},
	}}

	var buf bytes.Buffer
	err := env.archive.WriteZip(ctx, plan, &buf)
	require.Error(t, err)
	assert.NotZero(t, buf.Len())

	_, zerr := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.Error(t, zerr)
}

func TestWriteZip_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "albums/trip/a.jpg", "aaa")
	plan, err := env.archive.PrepareZip(context.Background(), "trip", nil, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = env.archive.WriteZip(ctx, plan, io.Discard)
	assert.True(t, errors.Is(err, context.Canceled))
}
