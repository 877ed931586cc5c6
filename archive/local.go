package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalSink writes files into a directory. URLs are PublicPrefix + key.
type LocalSink struct {
	Dir          string
	PublicPrefix string
}

func NewLocalSink(dir, publicPrefix string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	return &LocalSink{Dir: dir, PublicPrefix: publicPrefix}, nil
}

func (s *LocalSink) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	path := filepath.Join(s.Dir, key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return strings.TrimSuffix(s.PublicPrefix, "/") + "/" + key, nil
}

// Open returns the path of a stored key, for serving downloads.
func (s *LocalSink) Open(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	path := filepath.Join(s.Dir, key)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}
