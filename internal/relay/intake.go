package relay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"filerelay/internal/events"
	"filerelay/internal/models"
	"filerelay/internal/staging"
)

var (
	ErrFileTooLarge  = errors.New("file too large")
	ErrEmptyFilename = errors.New("file name required")
)

const handleAttempts = 3

func newHandle() string {
	return uuid.NewString()
}

// Intake stages content under a fresh handle and returns it.
func (s *Service) Intake(ctx context.Context, filename string, content []byte) (string, error) {
	name := sanitizeFilename(filename)
	if name == "" {
		return "", ErrEmptyFilename
	}
	if int64(len(content)) > s.maxSize {
		return "", ErrFileTooLarge
	}

	file := &models.StagedFile{
		FileName:  name,
		Content:   content,
		Size:      int64(len(content)),
		CreatedAt: time.Now().UTC(),
	}
	var err error
	for i := 0; i < handleAttempts; i++ {
		file.Handle = s.newHandle()
		if err = s.cache.Put(file); !errors.Is(err, staging.ErrHandleExists) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}

	s.metrics.RecordUpload(file.Size)
	s.metrics.SetStaged(s.cache.Len())
	s.logger.Debug("file staged", zap.String("handle", file.Handle), zap.String("file_name", name), zap.Int64("size", file.Size))
	s.publisher.Publish(ctx, events.Event{
		Type:     events.TypeStaged,
		Handle:   file.Handle,
		FileName: name,
		Size:     file.Size,
	})
	return file.Handle, nil
}

func sanitizeFilename(filename string) string {
	name := strings.TrimSpace(filename)
	if name == "" {
		return ""
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
