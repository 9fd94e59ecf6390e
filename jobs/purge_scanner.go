package jobs

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"trashbin/models"
)

const DefaultScanBatchSize = 500

type ScanResult struct {
	Scanned  int
	Enqueued int
	Batches  int
}

// PurgeScanner finds records whose retention window has elapsed and
// enqueues a purge task for each. It pages by _id and keeps no state
// between runs; the deterministic task id makes reruns harmless.
type PurgeScanner struct {
	queue        *Queue
	targets      []PurgeTarget
	retention    time.Duration
	batchSize    int
	batchTimeout time.Duration
	rt           runtime
}

func NewPurgeScanner(queue *Queue, targets []PurgeTarget, retention time.Duration, batchSize int, batchTimeout time.Duration, opts ...Option) *PurgeScanner {
	if batchSize <= 0 {
		batchSize = DefaultScanBatchSize
	}
	if batchTimeout <= 0 {
		batchTimeout = 30 * time.Second
	}
	return &PurgeScanner{
		queue:        queue,
		targets:      targets,
		retention:    retention,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		rt:           newRuntime("purge-scanner", opts),
	}
}

// Handle runs a scan for a queued scan task.
func (s *PurgeScanner) Handle(ctx context.Context, _ *models.PurgeTask) error {
	_, err := s.Scan(ctx)
	return err
}

// Scan walks every target once. A failed read aborts the run; tasks
// enqueued by earlier batches stay queued.
func (s *PurgeScanner) Scan(ctx context.Context) (ScanResult, error) {
	var total ScanResult
	cutoff := s.rt.now().Add(-s.retention)

	for _, target := range s.targets {
		res, err := s.scanTarget(ctx, target, cutoff)
		total.Scanned += res.Scanned
		total.Enqueued += res.Enqueued
		total.Batches += res.Batches
		if err != nil {
			s.rt.logger.Error("scan aborted",
				zap.String("entity_type", target.EntityType()),
				zap.Int("batches", res.Batches),
				zap.Error(err),
			)
			return total, err
		}
		s.rt.logger.Info("scan finished",
			zap.String("entity_type", target.EntityType()),
			zap.Int("scanned", res.Scanned),
			zap.Int("enqueued", res.Enqueued),
			zap.Int("batches", res.Batches),
		)
	}
	return total, nil
}

func (s *PurgeScanner) scanTarget(ctx context.Context, target PurgeTarget, cutoff time.Time) (ScanResult, error) {
	var res ScanResult
	after := primitive.NilObjectID

	for {
		n, last, err := s.scanBatch(ctx, target, cutoff, after, &res)
		if err != nil {
			return res, fmt.Errorf("scan of %s failed at batch %d: %w", target.EntityType(), res.Batches+1, err)
		}
		res.Batches++
		if n < s.batchSize {
			return res, nil
		}
		after = last
	}
}

func (s *PurgeScanner) scanBatch(ctx context.Context, target PurgeTarget, cutoff time.Time, after primitive.ObjectID, res *ScanResult) (int, primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	ids, err := target.OverdueIDs(ctx, cutoff, after, s.batchSize)
	if err != nil {
		return 0, after, err
	}
	for _, id := range ids {
		created, err := s.queue.Enqueue(ctx, PurgeSpec(target.EntityType(), id, 0))
		if err != nil {
			return 0, after, err
		}
		res.Scanned++
		if created {
			res.Enqueued++
			s.rt.metrics.ScanEnqueued.Inc()
		}
	}
	if len(ids) == 0 {
		return 0, after, nil
	}
	return len(ids), ids[len(ids)-1], nil
}
