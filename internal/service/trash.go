package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andresverguilla1987/mixtli-nube/internal/audit"
	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

// trashServiceImpl implements TrashService.
type trashServiceImpl struct {
	store       storage.Storage
	recorder    audit.Recorder
	concurrency int
	now         Clock
}

// NewTrashService creates a new trash/restore manager.
func NewTrashService(store storage.Storage, recorder audit.Recorder, concurrency int, now Clock) TrashService {
	if concurrency <= 0 {
		concurrency = 8
	}
	if now == nil {
		now = time.Now
	}
	return &trashServiceImpl{
		store:       store,
		recorder:    recorder,
		concurrency: concurrency,
		now:         now,
	}
}

// copyConfirmed copies src to dst and checks the destination exists with the
// expected size before reporting success.
func (s *trashServiceImpl) copyConfirmed(ctx context.Context, src, dst string, size int64) error {
	if err := s.store.Copy(ctx, src, dst); err != nil {
		return err
	}
	info, err := s.store.Stat(ctx, dst)
	if err != nil {
		return fmt.Errorf("confirm copy of %s: %w", src, err)
	}
	if size >= 0 && info.Size != size {
		return fmt.Errorf("confirm copy of %s: size %d, want %d", src, info.Size, size)
	}
	return nil
}

type copyJob struct {
	src, dst string
	size     int64
}

// copyAll runs jobs in parallel. It returns the sources copied successfully
// (in job order) and an error entry for every failure.
func (s *trashServiceImpl) copyAll(ctx context.Context, jobs []copyJob) ([]string, []domain.ItemError, error) {
	errs := make([]error, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			errs[i] = s.copyConfirmed(gctx, job.src, job.dst, job.size)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	done := make([]string, 0, len(jobs))
	failed := []domain.ItemError{}
	for i, job := range jobs {
		if errs[i] != nil {
			failed = append(failed, itemError(job.src, errs[i]))
			continue
		}
		done = append(done, job.src)
	}
	return done, failed, nil
}

// TrashAlbum copies every object of album into a new snapshot and deletes the
// originals whose copy was confirmed.
func (s *trashServiceImpl) TrashAlbum(ctx context.Context, album string) (*domain.TrashResult, error) {
	if err := checkAlbum(album); err != nil {
		return nil, err
	}
	ctx = log.WithAlbum(ctx, album)
	l := log.Ctx(ctx)

	files, err := s.store.List(ctx, naming.AlbumPrefix(album))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: album %s", ErrNotFound, album)
	}

	ts := naming.SnapshotID(s.now())
	jobs := make([]copyJob, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, copyJob{src: f.Key, dst: naming.TrashKey(ts, f.Key), size: f.Size})
	}

	copied, failed, err := s.copyAll(ctx, jobs)
	if err != nil {
		return nil, err
	}

	result := &domain.TrashResult{Snapshot: ts, Errors: failed}
	moved := []string{}
	if len(copied) > 0 {
		res, err := s.store.DeleteMany(ctx, copied)
		if err != nil {
			l.Error().Err(err).Str(log.FieldSnapshot, ts).Msg("copies confirmed but originals not deleted")
			return nil, err
		}
		moved = res.Deleted
		result.MovedCount = len(moved)
		for _, e := range res.Errors {
			result.Errors = append(result.Errors, domain.ItemError{Key: e.Key, Code: e.Code, Message: e.Message})
		}
	}

	if err := s.store.DeletePrefix(ctx, naming.ThumbPrefix(album)); err != nil {
		l.Warn().Err(err).Msg("failed to drop album thumbnails")
	}

	s.recorder.Record(ctx, domain.AuditEntry{
		Action: audit.ActionAlbumTrash,
		Album:  album,
		Detail: "snapshot " + ts,
		Count:  result.MovedCount,
		Keys:   moved,
	})
	if len(result.Errors) > 0 {
		l.Warn().Int(log.FieldCount, len(result.Errors)).Str(log.FieldSnapshot, ts).Msg("album trashed with errors")
	}
	return result, nil
}

// ListSnapshots returns the snapshot ids that contain album, newest first.
func (s *trashServiceImpl) ListSnapshots(ctx context.Context, album string) ([]string, error) {
	if err := checkAlbum(album); err != nil {
		return nil, err
	}

	var all []string
	token := ""
	for {
		page, err := s.store.ListPage(ctx, storage.ListOptions{Prefix: naming.TrashPrefix, Delimiter: "/", Token: token})
		if err != nil {
			return nil, err
		}
		for _, p := range page.Prefixes {
			if ts := naming.SnapshotFromPrefix(p); naming.ValidSnapshot(ts) {
				all = append(all, ts)
			}
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	holds := make([]bool, len(all))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, ts := range all {
		i, ts := i, ts
		g.Go(func() error {
			page, err := s.store.ListPage(gctx, storage.ListOptions{Prefix: naming.SnapshotAlbumPrefix(ts, album), Limit: 1})
			if err != nil {
				return err
			}
			holds[i] = len(page.Objects) > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshots := []string{}
	for i, ts := range all {
		if holds[i] {
			snapshots = append(snapshots, ts)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(snapshots)))
	return snapshots, nil
}

// RestoreAlbum copies a snapshot back over the album. The snapshot is kept,
// so restoring twice yields the same album. With no snapshot the newest one
// holding the album wins, and that may be a single item removed by
// DeleteItem; callers that want a whole-album restore pass the id from
// ListSnapshots or TrashAlbum.
func (s *trashServiceImpl) RestoreAlbum(ctx context.Context, album, snapshot string) (*domain.RestoreResult, error) {
	if err := checkAlbum(album); err != nil {
		return nil, err
	}
	if snapshot != "" && !naming.ValidSnapshot(snapshot) {
		return nil, invalidf("invalid snapshot %q", snapshot)
	}
	ctx = log.WithAlbum(ctx, album)
	l := log.Ctx(ctx)

	snapshots, err := s.ListSnapshots(ctx, album)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: no snapshot for album %s", ErrNotFound, album)
	}
	if snapshot == "" {
		snapshot = snapshots[0]
	} else if !slices.Contains(snapshots, snapshot) {
		return nil, fmt.Errorf("%w: snapshot %s has no album %s", ErrNotFound, snapshot, album)
	}

	files, err := s.store.List(ctx, naming.SnapshotAlbumPrefix(snapshot, album))
	if err != nil {
		return nil, err
	}

	jobs := make([]copyJob, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, copyJob{src: f.Key, dst: naming.OriginalKey(snapshot, f.Key), size: f.Size})
	}
	restored, failed, err := s.copyAll(ctx, jobs)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, domain.AuditEntry{
		Action: audit.ActionAlbumRestore,
		Album:  album,
		Detail: "snapshot " + snapshot,
		Count:  len(restored),
	})
	if len(failed) > 0 {
		l.Warn().Int(log.FieldCount, len(failed)).Str(log.FieldSnapshot, snapshot).Msg("album restored with errors")
	}
	return &domain.RestoreResult{RestoredCount: len(restored), Snapshot: snapshot, Errors: failed}, nil
}

// DeleteItem moves one object into its own snapshot.
func (s *trashServiceImpl) DeleteItem(ctx context.Context, key string) (string, error) {
	album, _, err := parseItem(key)
	if err != nil {
		return "", err
	}
	if naming.IsSentinel(key) {
		return "", invalidf("reserved names cannot be deleted")
	}
	ctx = log.WithAlbum(ctx, album)
	l := log.Ctx(ctx)

	info, err := s.store.Stat(ctx, key)
	if err != nil {
		return "", notFound(err, key)
	}

	movedTo := naming.TrashKey(naming.SnapshotID(s.now()), key)
	if err := s.copyConfirmed(ctx, key, movedTo, info.Size); err != nil {
		return "", err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return "", err
	}

	if naming.IsImage(key) {
		if thumb, err := naming.ThumbKeyForItem(key); err == nil {
			if err := s.store.Delete(ctx, thumb); err != nil {
				l.Warn().Err(err).Str(log.FieldKey, thumb).Msg("failed to delete thumbnail")
			}
		}
	}

	s.recorder.Record(ctx, domain.AuditEntry{Action: audit.ActionItemDelete, Album: album, Key: key, Detail: "moved to " + movedTo, Count: 1})
	return movedTo, nil
}

// RenameItem moves an object to a new key that must not exist yet.
func (s *trashServiceImpl) RenameItem(ctx context.Context, from, to string) error {
	album, _, err := parseItem(from)
	if err != nil {
		return err
	}
	if _, _, err := parseItem(to); err != nil {
		return err
	}
	if from == to {
		return invalidf("source and destination are the same")
	}
	if naming.IsSentinel(from) || naming.IsSentinel(to) {
		return invalidf("reserved names cannot be renamed")
	}
	ctx = log.WithAlbum(ctx, album)
	l := log.Ctx(ctx)

	info, err := s.store.Stat(ctx, from)
	if err != nil {
		return notFound(err, from)
	}
	exists, err := s.store.Exists(ctx, to)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrConflict, to)
	}

	if err := s.copyConfirmed(ctx, from, to, info.Size); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, from); err != nil {
		return err
	}

	if err := s.moveThumb(ctx, from, to); err != nil {
		l.Warn().Err(err).Str(log.FieldKey, from).Msg("failed to move thumbnail")
	}

	s.recorder.Record(ctx, domain.AuditEntry{Action: audit.ActionItemRename, Album: album, Key: from, Detail: "renamed to " + to, Count: 1})
	return nil
}

// moveThumb carries an existing thumbnail along with a rename.
func (s *trashServiceImpl) moveThumb(ctx context.Context, from, to string) error {
	if !naming.IsImage(from) {
		return nil
	}
	oldThumb, err := naming.ThumbKeyForItem(from)
	if err != nil {
		return err
	}

	if naming.IsImage(to) {
		newThumb, err := naming.ThumbKeyForItem(to)
		if err != nil {
			return err
		}
		if newThumb == oldThumb {
			return nil
		}
		if err := s.store.Copy(ctx, oldThumb, newThumb); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}
	}
	return s.store.Delete(ctx, oldThumb)
}
