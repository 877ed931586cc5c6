// Package archive stores generated statement files and hands back a
// download URL. Sinks are a local directory (dev) or an S3-compatible
// bucket through minio-go.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Object describes a stored file.
type Object struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Sink persists a file under key and returns a URL for it.
type Sink interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Archiver names files and writes them to a Sink.
type Archiver struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewArchiver(sink Sink, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{sink: sink, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for file names.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Store writes data as "<prefix>_<yyyymmdd_hhmmss>_<id>.<ext>".
func (a *Archiver) Store(ctx context.Context, prefix, ext, contentType string, data []byte) (Object, error) {
	id := uuid.NewString()
	now := a.now().UTC()
	key := fmt.Sprintf("%s_%s_%s.%s", sanitize(prefix), now.Format("20060102_150405"), id[:8], strings.TrimPrefix(ext, "."))

	url, err := a.sink.Put(ctx, key, contentType, data)
	if err != nil {
		a.logger.Error("archive upload failed", zap.String("key", key), zap.Error(err))
		return Object{}, fmt.Errorf("archive %s: %w", key, err)
	}
	a.logger.Info("statement archived", zap.String("key", key), zap.Int("bytes", len(data)))
	return Object{
		ID:          id,
		Key:         key,
		URL:         url,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   now,
	}, nil
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "statement"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
