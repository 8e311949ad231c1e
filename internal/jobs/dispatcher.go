package jobs

import (
	"context"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Dispatcher queues runs for the ImportWorker, or runs them inline when no
// queue is available. Both paths execute the same RunProcessor.
type Dispatcher struct {
	redis     *redis.Client
	repo      repository.ImportRepositoryInterface
	processor RunProcessor
	queueKey  string
	logger    *logrus.Entry
}

// NewDispatcher creates a dispatcher. A nil redis client forces inline execution.
func NewDispatcher(rdb *redis.Client, repo repository.ImportRepositoryInterface, processor RunProcessor, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		redis:     rdb,
		repo:      repo,
		processor: processor,
		queueKey:  DefaultQueueKey,
		logger:    logger.WithField("component", "import_dispatcher"),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, runID uuid.UUID) (models.ExecutionMode, error) {
	log := d.logger.WithField("run_id", runID)

	if d.redis != nil {
		if err := d.setMode(ctx, runID, models.ExecutionModeQueued); err != nil {
			return "", err
		}
		err := d.redis.RPush(ctx, d.queueKey, runID.String()).Err()
		if err == nil {
			log.Debug("Import run queued")
			return models.ExecutionModeQueued, nil
		}
		log.WithError(err).Warn("Failed to queue import run, processing inline")
	}

	if err := d.setMode(ctx, runID, models.ExecutionModeInline); err != nil {
		return "", err
	}
	// detached so a client disconnect does not abort the run
	if err := d.processor.Process(context.WithoutCancel(ctx), runID); err != nil {
		return models.ExecutionModeInline, err
	}
	return models.ExecutionModeInline, nil
}

func (d *Dispatcher) setMode(ctx context.Context, runID uuid.UUID, mode models.ExecutionMode) error {
	return d.repo.TransitionRun(ctx, runID, models.ImportStatusPending, map[string]interface{}{
		"execution_mode": mode,
	})
}
