package storage

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// batchDeleteFunc removes one chunk of keys with a single store call.
type batchDeleteFunc func(ctx context.Context, keys []string) (*DeleteResult, error)

// chunkKeys splits keys into slices of at most size entries.
func chunkKeys(keys []string, size int) [][]string {
	if size <= 0 || size > MaxBatchDelete {
		size = MaxBatchDelete
	}
	chunks := make([][]string, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

// deleteInChunks runs fn over every chunk with at most parallel calls in flight.
// A chunk whose call fails outright has all of its keys reported in Errors.
// When nothing could be deleted the first call error is returned so callers
// can tell a dead store from a partial batch.
func deleteInChunks(ctx context.Context, keys []string, size, parallel int, fn batchDeleteFunc) (*DeleteResult, error) {
	result := &DeleteResult{Deleted: []string{}, Errors: []DeleteError{}}
	if len(keys) == 0 {
		return result, nil
	}
	if parallel <= 0 {
		parallel = 1
	}

	chunks := chunkKeys(keys, size)
	results := make([]*DeleteResult, len(chunks))
	callErrs := make([]error, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			res, err := fn(gctx, chunk)
			if err != nil {
				callErrs[i] = err
				res = &DeleteResult{Errors: make([]DeleteError, 0, len(chunk))}
				for _, k := range chunk {
					res.Errors = append(res.Errors, DeleteError{Key: k, Code: "RequestFailed", Message: err.Error()})
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstErr error
	for i, res := range results {
		result.Deleted = append(result.Deleted, res.Deleted...)
		result.Errors = append(result.Errors, res.Errors...)
		if firstErr == nil && callErrs[i] != nil {
			firstErr = callErrs[i]
		}
	}
	if len(result.Deleted) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}
