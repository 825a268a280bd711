// Package objectstore is the narrow capability the pipeline needs from
// object storage: download a key to a local temp file, upload a local file
// to a key. Binary data never travels on the queue, only these keys do.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var ErrNotFound = errors.New("object not found")

type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
	// RemoveLocal deletes the local file after the upload attempt,
	// success or not. Segmentation relies on this to drop the shared
	// source file together with the last chunk.
	RemoveLocal bool
}

type Store interface {
	// Download fetches the object into a fresh local temp file and
	// returns its path. The caller owns the file on success; on failure
	// no temp file is left behind. A missing object maps to ErrNotFound.
	Download(ctx context.Context, bucket, key string) (string, error)
	// Upload stores the local file under the key.
	Upload(ctx context.Context, localPath, bucket, key string, opts UploadOptions) error
}

// UploadText stores a string as a text object, going through a local temp
// file like every other store write. The temp file is removed on every
// exit path.
func UploadText(ctx context.Context, store Store, content, bucket, key string) error {
	f, err := os.CreateTemp("", "transcript-*.txt")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close temp file: %w", err)
	}

	return store.Upload(ctx, path, bucket, key, UploadOptions{
		ContentType: "text/plain",
		RemoveLocal: true,
	})
}
