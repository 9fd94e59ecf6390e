package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"trashbin/models"
)

const DefaultScanSchedule = "0 0 * * *"

// Scheduler enqueues the trash scan on a cron schedule evaluated in UTC.
// The scan itself runs on the worker pool like any other task.
type Scheduler struct {
	queue    *Queue
	schedule string
	cron     *cron.Cron
	rt       runtime

	mu      sync.Mutex
	running bool
	entry   cron.EntryID
}

func NewScheduler(queue *Queue, schedule string, opts ...Option) *Scheduler {
	if schedule == "" {
		schedule = DefaultScanSchedule
	}
	return &Scheduler{
		queue:    queue,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		rt:       newRuntime("scheduler", opts),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	entry, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.TriggerScan(ctx); err != nil {
			s.rt.logger.Error("failed to enqueue scheduled scan", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule scan: %w", err)
	}
	s.entry = entry

	s.cron.Start()
	s.running = true
	s.rt.logger.Info("scheduler started", zap.String("schedule", s.schedule))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// TriggerScan enqueues the scan task now. It reports false when a scan is
// already queued.
func (s *Scheduler) TriggerScan(ctx context.Context) (bool, error) {
	created, err := s.queue.Enqueue(ctx, TaskSpec{Kind: models.TaskKindScan})
	if err != nil {
		return false, err
	}
	if created {
		s.rt.logger.Info("scan enqueued", zap.String("task_id", ScanTaskID))
	} else {
		s.rt.logger.Debug("scan already queued", zap.String("task_id", ScanTaskID))
	}
	return created, nil
}

// Stop waits for a running callback to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entry)
	s.running = false
	s.rt.logger.Info("scheduler stopped")
}

func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
