package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"
)

// Memory is an in-memory Store for tests. The hooks let a test inject a
// failure for a specific operation without mocking the whole interface.
type Memory struct {
	DownloadHook func(bucket, key string) error
	UploadHook   func(bucket, key string) error

	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (s *Memory) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
}

func (s *Memory) Get(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	return data, ok
}

func (s *Memory) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

func (s *Memory) Download(ctx context.Context, bucket, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.DownloadHook != nil {
		if err := s.DownloadHook(bucket, key); err != nil {
			return "", err
		}
	}

	data, ok := s.Get(bucket, key)
	if !ok {
		return "", fmt.Errorf("download %s/%s: %w", bucket, key, ErrNotFound)
	}

	f, err := os.CreateTemp("", "objectstore-*"+path.Ext(key))
	if err != nil {
		return "", err
	}
	local := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(local)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(local)
		return "", err
	}
	return local, nil
}

func (s *Memory) Upload(ctx context.Context, localPath, bucket, key string, opts UploadOptions) error {
	if opts.RemoveLocal {
		defer os.Remove(localPath)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.UploadHook != nil {
		if err := s.UploadHook(bucket, key); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read local file: %w", err)
	}
	s.Put(bucket, key, data)
	return nil
}
