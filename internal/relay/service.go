// Package relay implements upload intake and consume-once dispatch of staged
// files to downstream senders.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"filerelay/internal/config"
	"filerelay/internal/events"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"
	"filerelay/internal/models"
	"filerelay/internal/staging"
)

// Recorder persists settled outcomes.
type Recorder interface {
	Record(ctx context.Context, deliveries []models.Delivery) error
}

// Options tune a Service. Zero values fall back to the config defaults.
type Options struct {
	MaxFileSize      int64
	SendTimeout      time.Duration
	MaxParallelSends int
	Publisher        events.Publisher
	Journal          Recorder
	Metrics          *metrics.Observer
	Logger           *zap.Logger
}

// Service owns the staging cache on behalf of the HTTP handlers.
type Service struct {
	cache     *staging.Cache
	maxSize   int64
	timeout   time.Duration
	parallel  int
	publisher events.Publisher
	journal   Recorder
	metrics   *metrics.Observer
	logger    *zap.Logger
	newHandle func() string
}

func NewService(cache *staging.Cache, opts Options) *Service {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = config.DefaultMaxFileSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = config.DefaultSendTimeout
	}
	if opts.MaxParallelSends <= 0 {
		opts.MaxParallelSends = config.DefaultMaxParallelSends
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop()
	}
	return &Service{
		cache:     cache,
		maxSize:   opts.MaxFileSize,
		timeout:   opts.SendTimeout,
		parallel:  opts.MaxParallelSends,
		publisher: opts.Publisher,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
		logger:    logging.OrNop(opts.Logger).Named("relay"),
		newHandle: newHandle,
	}
}

// MaxFileSize reports the largest accepted upload in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.maxSize
}

// Staged reports the current number of staged files and the cache capacity.
func (s *Service) Staged() (int, int) {
	return s.cache.Len(), s.cache.Capacity()
}

// EvictionHook reports capacity evictions to metrics, the event bus and the
// debug log. Callers still only ever see a miss for an evicted handle.
func EvictionHook(obs *metrics.Observer, pub events.Publisher, logger *zap.Logger) staging.EvictFunc {
	if pub == nil {
		pub = events.Nop()
	}
	logger = logging.OrNop(logger).Named("staging")
	return func(file *models.StagedFile) {
		obs.RecordEviction()
		logger.Debug("staged file evicted",
			zap.String("handle", file.Handle),
			zap.String("file_name", file.FileName),
			zap.Time("staged_at", file.CreatedAt))
		pub.Publish(context.Background(), events.Event{
			Type:     events.TypeEvicted,
			Handle:   file.Handle,
			FileName: file.FileName,
			Size:     file.Size,
		})
	}
}
