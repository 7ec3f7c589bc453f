package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"filerelay/internal/events"
	"filerelay/internal/models"
)

// ErrSendTimeout marks a branch that did not finish within the send timeout.
var ErrSendTimeout = errors.New("timeout")

// SendFunc delivers one file. It must honor ctx.
type SendFunc func(ctx context.Context, file *models.StagedFile) error

// BatchFunc delivers all claimed files as a single unit, e.g. one mail.
type BatchFunc func(ctx context.Context, files []*models.StagedFile) error

// Claim takes each handle from the cache in order. The result is aligned with
// handles and holds nil where the handle was not staged, including a repeat
// of a handle already claimed earlier in the same list.
func (s *Service) Claim(handles []string) []*models.StagedFile {
	files := make([]*models.StagedFile, len(handles))
	for i, handle := range handles {
		if file, ok := s.cache.Take(handle); ok {
			files[i] = file
		}
	}
	s.metrics.SetStaged(s.cache.Len())
	return files
}

// Dispatch claims handles and sends every claimed file concurrently. It waits
// for all branches; a failing branch never cancels its siblings. Outcomes keep
// the order of handles.
func (s *Service) Dispatch(ctx context.Context, destination string, handles []string, send SendFunc) []models.DispatchOutcome {
	files := s.Claim(handles)
	outcomes := make([]models.DispatchOutcome, len(handles))

	var g errgroup.Group
	g.SetLimit(s.parallel)
	for i, file := range files {
		if file == nil {
			outcomes[i] = models.NotFound(handles[i])
			continue
		}
		g.Go(func() error {
			start := time.Now()
			err := s.run(ctx, func(ctx context.Context) error { return send(ctx, file) })
			s.metrics.RecordSend(destination, time.Since(start))
			if err != nil {
				outcomes[i] = models.SendFailed(file, err)
			} else {
				outcomes[i] = models.Delivered(file)
			}
			return nil // fail-soft: never abort the group
		})
	}
	_ = g.Wait()

	s.Settle(ctx, destination, outcomes)
	return outcomes
}

// DeliverBatch claims handles and hands the claimed files to send in one call.
// Every claimed file shares the batch result. The returned error is the
// batch failure, if any.
func (s *Service) DeliverBatch(ctx context.Context, destination string, handles []string, send BatchFunc) ([]models.DispatchOutcome, error) {
	files := s.Claim(handles)
	found := make([]*models.StagedFile, 0, len(files))
	for _, file := range files {
		if file != nil {
			found = append(found, file)
		}
	}

	start := time.Now()
	err := s.run(ctx, func(ctx context.Context) error { return send(ctx, found) })
	s.metrics.RecordSend(destination, time.Since(start))

	outcomes := make([]models.DispatchOutcome, len(handles))
	for i, file := range files {
		switch {
		case file == nil:
			outcomes[i] = models.NotFound(handles[i])
		case err != nil:
			outcomes[i] = models.SendFailed(file, err)
		default:
			outcomes[i] = models.Delivered(file)
		}
	}
	s.Settle(ctx, destination, outcomes)
	return outcomes, err
}

// run calls fn under the per-send timeout. A call that ignores its context is
// abandoned once the deadline passes.
func (s *Service) run(parent context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("send panicked: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return ErrSendTimeout
	}
	return err
}

// Settle reports outcomes to metrics, the event bus and the journal.
func (s *Service) Settle(ctx context.Context, destination string, outcomes []models.DispatchOutcome) {
	if len(outcomes) == 0 {
		return
	}
	now := time.Now().UTC()
	deliveries := make([]models.Delivery, 0, len(outcomes))
	counts := make(map[models.DispatchStatus]int, 3)
	for _, out := range outcomes {
		counts[out.Status]++
		s.metrics.RecordOutcome(destination, string(out.Status))
		s.publisher.Publish(ctx, events.Event{
			Type:        eventType(out.Status),
			Handle:      out.Handle,
			FileName:    out.FileName,
			Size:        out.Size,
			Destination: destination,
			Error:       out.Error,
			At:          now,
		})
		deliveries = append(deliveries, models.Delivery{
			Handle:      out.Handle,
			FileName:    out.FileName,
			Size:        out.Size,
			Destination: destination,
			Status:      out.Status,
			Error:       out.Error,
			CreatedAt:   now,
		})
	}
	if s.journal != nil {
		if err := s.journal.Record(context.WithoutCancel(ctx), deliveries); err != nil {
			s.logger.Warn("record deliveries failed", zap.String("destination", destination), zap.Error(err))
		}
	}
	s.logger.Info("dispatch settled",
		zap.String("destination", destination),
		zap.Int("delivered", counts[models.StatusDelivered]),
		zap.Int("not_found", counts[models.StatusNotFound]),
		zap.Int("send_failed", counts[models.StatusSendFailed]))
}

func eventType(status models.DispatchStatus) events.Type {
	switch status {
	case models.StatusDelivered:
		return events.TypeDelivered
	case models.StatusNotFound:
		return events.TypeNotFound
	default:
		return events.TypeSendFailed
	}
}
