package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const tmpPrefix = ".tmp-"

// LocalStorage implements Storage on the local filesystem. Keys map to paths
// under basePath; it is meant for development and tests.
type LocalStorage struct {
	basePath    string
	concurrency int
}

// LocalConfig holds configuration for local storage.
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	// Ensure base path exists
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	absPath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	return &LocalStorage{
		basePath:    absPath,
		concurrency: 4,
	}, nil
}

// fullPath returns the full filesystem path for a key.
func (s *LocalStorage) fullPath(key string) (string, error) {
	cleanKey := filepath.Clean(filepath.FromSlash(key))
	// Prevent directory traversal: reject keys that would escape basePath
	if key == "" || cleanKey == "." || cleanKey == ".." || strings.HasPrefix(cleanKey, ".."+string(os.PathSeparator)) || filepath.IsAbs(cleanKey) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.basePath, cleanKey), nil
}

// Write stores content from the reader with the given key.
func (s *LocalStorage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := s.fullPath(key)
	if err != nil {
		return &OpError{Op: "put", Key: key, Err: err}
	}

	// Ensure parent directory exists
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &OpError{Op: "put", Key: key, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	// Create temporary file in the same directory
	tmpFile, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return &OpError{Op: "put", Key: key, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, contextReader{ctx: ctx, r: r}); err != nil {
		tmpFile.Close()
		return &OpError{Op: "put", Key: key, Err: fmt.Errorf("failed to write content: %w", err)}
	}

	if err := tmpFile.Close(); err != nil {
		return &OpError{Op: "put", Key: key, Err: fmt.Errorf("failed to close temp file: %w", err)}
	}

	// Atomic rename
	if err := os.Rename(tmpPath, p); err != nil {
		return &OpError{Op: "put", Key: key, Err: fmt.Errorf("failed to rename temp file: %w", err)}
	}

	success = true
	return nil
}

// contextReader stops a copy once the context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Read retrieves content for the given key.
func (s *LocalStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.fullPath(key)
	if err != nil {
		return nil, &OpError{Op: "get", Key: key, Err: err}
	}

	file, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound("get", key)
		}
		return nil, &OpError{Op: "get", Key: key, Err: err}
	}

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		file.Close()
		return nil, notFound("get", key)
	}

	return file, nil
}

// Stat returns metadata for key. The content type is derived from the extension.
func (s *LocalStorage) Stat(ctx context.Context, key string) (*FileInfo, error) {
	p, err := s.fullPath(key)
	if err != nil {
		return nil, &OpError{Op: "head", Key: key, Err: err}
	}

	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound("head", key)
		}
		return nil, &OpError{Op: "head", Key: key, Err: err}
	}
	if info.IsDir() {
		return nil, notFound("head", key)
	}

	return &FileInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		ContentType:  mime.TypeByExtension(path.Ext(key)),
	}, nil
}

// Exists checks if content with the given key exists.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	return exists(s.Stat(ctx, key))
}

// walk returns every stored object whose key starts with prefix, sorted by key.
func (s *LocalStorage) walk(ctx context.Context, prefix string) ([]FileInfo, error) {
	root := s.basePath
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		root = filepath.Join(s.basePath, filepath.FromSlash(prefix[:i]))
	}

	var files []FileInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, &OpError{Op: "list", Key: prefix, Err: err}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// ListPage returns a page in key order. Keys rolled up under a common prefix
// count as one entry. The token is the last key or prefix of the previous page.
func (s *LocalStorage) ListPage(ctx context.Context, opts ListOptions) (*ListPage, error) {
	files, err := s.walk(ctx, opts.Prefix)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 || limit > MaxBatchDelete {
		limit = MaxBatchDelete
	}
	tokenIsPrefix := opts.Delimiter != "" && strings.HasSuffix(opts.Token, opts.Delimiter)

	page := &ListPage{Objects: []FileInfo{}, Prefixes: []string{}}
	var last string
	count := 0
	for _, f := range files {
		if opts.Token != "" {
			if f.Key <= opts.Token || (tokenIsPrefix && strings.HasPrefix(f.Key, opts.Token)) {
				continue
			}
		}

		entry := f.Key
		isPrefix := false
		if opts.Delimiter != "" {
			rest := f.Key[len(opts.Prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				entry = opts.Prefix + rest[:i+len(opts.Delimiter)]
				isPrefix = true
			}
		}
		if isPrefix && entry == last {
			continue
		}

		if count == limit {
			page.NextToken = last
			break
		}
		if isPrefix {
			page.Prefixes = append(page.Prefixes, entry)
		} else {
			page.Objects = append(page.Objects, f)
		}
		last = entry
		count++
	}
	return page, nil
}

// List returns information about all files with keys starting with the given prefix.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	return listAll(ctx, s, prefix)
}

// Copy duplicates srcKey into dstKey.
func (s *LocalStorage) Copy(ctx context.Context, srcKey, dstKey string) error {
	src, err := s.Read(ctx, srcKey)
	if err != nil {
		var oe *OpError
		if errors.As(err, &oe) {
			oe.Op = "copy"
		}
		return err
	}
	defer src.Close()

	if err := s.Write(ctx, dstKey, src, -1, ""); err != nil {
		return err
	}
	return nil
}

// Delete removes the content with the given key.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := s.fullPath(key)
	if err != nil {
		return &OpError{Op: "delete", Key: key, Err: err}
	}

	err = os.Remove(p)
	if err != nil && !os.IsNotExist(err) {
		return &OpError{Op: "delete", Key: key, Err: err}
	}

	s.pruneDirs(filepath.Dir(p))
	return nil
}

// pruneDirs removes empty parent directories up to basePath so that deleted
// prefixes disappear from listings the way they do on a real object store.
func (s *LocalStorage) pruneDirs(dir string) {
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// DeletePrefix removes all content with keys starting with the given prefix.
func (s *LocalStorage) DeletePrefix(ctx context.Context, prefix string) error {
	files, err := s.walk(ctx, prefix)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := s.Delete(ctx, f.Key); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMany removes keys one by one, chunked like the S3 backend.
func (s *LocalStorage) DeleteMany(ctx context.Context, keys []string) (*DeleteResult, error) {
	return deleteInChunks(ctx, keys, MaxBatchDelete, s.concurrency, func(ctx context.Context, chunk []string) (*DeleteResult, error) {
		res := &DeleteResult{Deleted: make([]string, 0, len(chunk))}
		for _, k := range chunk {
			if err := s.Delete(ctx, k); err != nil {
				res.Errors = append(res.Errors, DeleteError{Key: k, Code: "InternalError", Message: err.Error()})
				continue
			}
			res.Deleted = append(res.Deleted, k)
		}
		return res, nil
	})
}

// GetURL is not supported for local storage.
func (s *LocalStorage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "", unsupported("presign-get")
}

// GetUploadURL is not supported for local storage.
func (s *LocalStorage) GetUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return "", unsupported("presign-put")
}

