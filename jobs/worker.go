package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trashbin/models"
)

// HandlerFunc executes one claimed task. Returning an error wrapped with
// Permanent skips the remaining retries.
type HandlerFunc func(ctx context.Context, task *models.PurgeTask) error

type WorkerConfig struct {
	Concurrency  int
	LeaseTimeout time.Duration
	PollInterval time.Duration
	RateLimit    int
	RateWindow   time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  5,
		LeaseTimeout: 5 * time.Minute,
		PollInterval: time.Second,
		RateLimit:    100,
		RateWindow:   10 * time.Second,
	}
}

// Worker runs a bounded pool of goroutines that claim tasks from the queue
// and dispatch them by kind.
type Worker struct {
	queue    *Queue
	handlers map[models.TaskKind]HandlerFunc
	cfg      WorkerConfig
	limiter  *rate.Limiter
	id       string
	rt       runtime

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewWorker(queue *Queue, cfg WorkerConfig, handlers map[models.TaskKind]HandlerFunc, opts ...Option) *Worker {
	def := DefaultWorkerConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = def.LeaseTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = def.RateWindow
	}

	every := cfg.RateWindow / time.Duration(cfg.RateLimit)
	return &Worker{
		queue:    queue,
		handlers: handlers,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(every), cfg.RateLimit),
		id:       uuid.NewString(),
		rt:       newRuntime("purge-worker", opts),
	}
}

// Start launches the pool. It returns immediately; Stop waits for the
// goroutines to finish their current task.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	for i := 0; i < w.cfg.Concurrency; i++ {
		owner := fmt.Sprintf("%s-%d", w.id, i)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(ctx, owner)
		}()
	}
	w.rt.logger.Info("purge worker started",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Int("rate_limit", w.cfg.RateLimit),
		zap.Duration("rate_window", w.cfg.RateWindow),
	)
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.rt.logger.Info("purge worker stopped")
}

func (w *Worker) loop(ctx context.Context, owner string) {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		processed, err := w.runOnce(ctx, owner)
		if err != nil && ctx.Err() == nil {
			w.rt.logger.Error("queue error", zap.String("owner", owner), zap.Error(err))
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunOnce claims and processes at most one due task. It reports whether a
// task was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	return w.runOnce(ctx, w.id)
}

func (w *Worker) runOnce(ctx context.Context, owner string) (bool, error) {
	task, err := w.queue.Claim(ctx, owner, w.cfg.LeaseTimeout)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	return true, w.process(ctx, task)
}

func (w *Worker) process(ctx context.Context, task *models.PurgeTask) error {
	var err error
	handler, ok := w.handlers[task.Kind]
	if !ok {
		err = Permanent(fmt.Errorf("no handler for task kind %q", task.Kind))
	} else {
		taskCtx, cancel := context.WithTimeout(ctx, w.cfg.LeaseTimeout)
		err = handler(taskCtx, task)
		cancel()
	}

	// Bookkeeping must survive shutdown of the pool context.
	bookCtx := context.WithoutCancel(ctx)
	kind := string(task.Kind)

	if err == nil {
		w.rt.metrics.TasksProcessed.WithLabelValues(kind).Inc()
		return w.queue.Complete(bookCtx, task)
	}

	w.rt.metrics.TasksFailed.WithLabelValues(kind).Inc()
	terminal, qerr := w.queue.Fail(bookCtx, task, err)
	if qerr != nil {
		return qerr
	}
	if terminal {
		w.escalate(task, err)
		return nil
	}
	w.rt.logger.Warn("task attempt failed, retrying",
		zap.String("task_id", task.ID),
		zap.Int("attempt", task.Attempts),
		zap.Int("max_attempts", task.MaxAttempts),
		zap.Error(err),
	)
	return nil
}

// escalate reports a task that will not be retried. Entity purges are
// escalated as critical since the record stays in the trash past its
// retention window.
func (w *Worker) escalate(task *models.PurgeTask, err error) {
	if task.Kind != models.TaskKindPurgeEntity {
		w.rt.logger.Error("task failed permanently",
			zap.String("task_id", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.Int("attempts", task.Attempts),
			zap.Error(err),
		)
		return
	}
	w.rt.metrics.TerminalFailures.Inc()
	w.rt.logger.Error("CRITICAL: purge task failed permanently",
		zap.String("alert", "critical"),
		zap.String("task_id", task.ID),
		zap.String("entity_type", task.EntityType),
		zap.String("entity_id", task.EntityID),
		zap.Int("attempts", task.Attempts),
		zap.Error(err),
	)
}
