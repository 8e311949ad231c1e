package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueKey is the Redis list holding run IDs awaiting execution
const DefaultQueueKey = "catalog_import:queue"

// RunProcessor executes one import run
type RunProcessor interface {
	Process(ctx context.Context, runID uuid.UUID) error
}

// ImportWorker consumes run IDs from the Redis queue and processes them
type ImportWorker struct {
	redis       *redis.Client
	processor   RunProcessor
	logger      *logrus.Logger
	queueKey    string
	pollTimeout time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewImportWorker creates a new import worker
func NewImportWorker(rdb *redis.Client, processor RunProcessor, logger *logrus.Logger) *ImportWorker {
	return &ImportWorker{
		redis:       rdb,
		processor:   processor,
		logger:      logger,
		queueKey:    DefaultQueueKey,
		pollTimeout: 5 * time.Second, // bounds how long Stop waits
		stopCh:      make(chan struct{}),
	}
}

// Start blocks, processing queued runs until Stop is called or ctx ends
func (w *ImportWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()
	w.logger.WithField("queue", w.queueKey).Info("Import worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("Import worker stopped")
			return
		case <-ctx.Done():
			w.logger.Info("Import worker context cancelled")
			return
		default:
		}

		res, err := w.redis.BLPop(ctx, w.pollTimeout, w.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.logger.Errorf("Failed to pop import queue: %v", err)
			w.sleep(ctx, 500*time.Millisecond)
			continue
		}
		if len(res) < 2 {
			continue
		}

		w.handle(ctx, res[1])
	}
}

// Stop signals the worker to stop and waits for the in-flight run to finish
func (w *ImportWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *ImportWorker) handle(ctx context.Context, payload string) {
	runID, err := uuid.Parse(payload)
	if err != nil {
		w.logger.Warnf("Dropping malformed queue entry %q", payload)
		return
	}

	if err := w.processor.Process(ctx, runID); err != nil {
		w.logger.WithField("run_id", runID).Errorf("Failed to process import run: %v", err)
	}
}

func (w *ImportWorker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-w.stopCh:
	case <-ctx.Done():
	}
}
