package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
	"github.com/andresverguilla1987/mixtli-nube/pkg/token"
)

// testEnv wires every service over a temp-dir store.
type testEnv struct {
	store     *storage.LocalStorage
	tokens    *token.Manager
	recorder  *memRecorder
	presigner *fakePresigner
	thumbs    *fakeThumbs
	now       time.Time

	access  AccessService
	presign PresignService
	listing ListingService
	trash   TrashService
	archive ArchiveService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	env := &testEnv{
		store:     store,
		recorder:  &memRecorder{},
		presigner: &fakePresigner{},
		thumbs:    &fakeThumbs{},
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	env.tokens, err = token.NewManager("test-secret", "mixtli", token.WithClock(func() time.Time { return env.now }))
	require.NoError(t, err)

	env.access, err = NewAccessService(store, env.tokens, env.recorder, AccessOptions{TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	env.presign = NewPresignService(env.presigner, env.access, DefaultPresignOptions())
	env.listing = NewListingService(store, env.presigner, env.access, env.thumbs, time.Hour)
	env.trash = NewTrashService(store, env.recorder, 4, env.clock)
	env.archive = NewArchiveService(store, env.access, false)
	return env
}

// clock advances one millisecond per call so snapshot ids never collide.
func (e *testEnv) clock() time.Time {
	e.now = e.now.Add(time.Millisecond)
	return e.now
}

func (e *testEnv) put(t *testing.T, key, body string) {
	t.Helper()
	require.NoError(t, e.store.Write(context.Background(), key, strings.NewReader(body), int64(len(body)), ""))
}

func (e *testEnv) read(t *testing.T, key string) string {
	t.Helper()
	rc, err := e.store.Read(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func (e *testEnv) keys(t *testing.T, prefix string) []string {
	t.Helper()
	files, err := e.store.List(context.Background(), prefix)
	require.NoError(t, err)
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Key)
	}
	return keys
}

type fakePresigner struct {
	mu      sync.Mutex
	lastTTL time.Duration
}

func (p *fakePresigner) GetURL(_ context.Context, key string, expires time.Duration) (string, error) {
	p.mu.Lock()
	p.lastTTL = expires
	p.mu.Unlock()
	return fmt.Sprintf("https://store.test/%s?expires=%d", key, int(expires.Seconds())), nil
}

func (p *fakePresigner) GetUploadURL(_ context.Context, key, _ string, expires time.Duration) (string, error) {
	p.mu.Lock()
	p.lastTTL = expires
	p.mu.Unlock()
	return fmt.Sprintf("https://store.test/%s?upload=1&expires=%d", key, int(expires.Seconds())), nil
}

type fakeThumbs struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeThumbs) Ensure(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "thumbs/" + strings.TrimPrefix(key, "albums/"), nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *memRecorder) Record(_ context.Context, e domain.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *memRecorder) List(_ context.Context, _ string, _ int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEntry(nil), r.entries...), nil
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// faultyStore fails Copy and DeleteMany for chosen source keys.
type faultyStore struct {
	*storage.LocalStorage
	failCopy   map[string]bool
	failDelete map[string]bool
}

func (f *faultyStore) Copy(ctx context.Context, src, dst string) error {
	if f.failCopy[src] {
		return &storage.OpError{Op: "copy", Key: src, Kind: storage.ErrUnavailable}
	}
	return f.LocalStorage.Copy(ctx, src, dst)
}

func (f *faultyStore) DeleteMany(ctx context.Context, keys []string) (*storage.DeleteResult, error) {
	var keep []string
	var refused []storage.DeleteError
	for _, k := range keys {
		if f.failDelete[k] {
			refused = append(refused, storage.DeleteError{Key: k, Code: "AccessDenied", Message: "Access Denied"})
			continue
		}
		keep = append(keep, k)
	}
	res, err := f.LocalStorage.DeleteMany(ctx, keep)
	if err != nil {
		return nil, err
	}
	res.Errors = append(res.Errors, refused...)
	return res, nil
}
