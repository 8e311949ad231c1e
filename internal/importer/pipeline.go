package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var ErrNoSKUColumn = errors.New("SKU column not found")

// ProductPublisher is notified about products written by a successful run
type ProductPublisher interface {
	PublishImportedProduct(ctx context.Context, product *models.Product, created bool, run *models.ImportRun)
}

// PipelineOptions configures a Pipeline
type PipelineOptions struct {
	HeaderMarkers []string
	ColumnRules   []ColumnRule
	Publisher     ProductPublisher
}

// Pipeline runs the load, map, normalize, classify and upsert stages for one run
type Pipeline struct {
	repo       repository.ImportRepositoryInterface
	files      storage.FileStore
	classifier *Classifier
	engine     *Engine
	markers    []string
	columns    []ColumnRule
	publisher  ProductPublisher
	logger     *logrus.Entry
}

func NewPipeline(repo repository.ImportRepositoryInterface, files storage.FileStore, classifier *Classifier, logger *logrus.Logger, opts PipelineOptions) *Pipeline {
	markers := opts.HeaderMarkers
	if len(markers) == 0 {
		markers = DefaultHeaderMarkers
	}
	columns := opts.ColumnRules
	if len(columns) == 0 {
		columns = DefaultColumnRules
	}
	return &Pipeline{
		repo:       repo,
		files:      files,
		classifier: classifier,
		engine:     NewEngine(logger),
		markers:    markers,
		columns:    columns,
		publisher:  opts.Publisher,
		logger:     logger.WithField("component", "import_pipeline"),
	}
}

// Process executes a pending run to completion. The run always ends in
// success or failed; the returned error only reports ledger failures.
// Runs that are not pending are left untouched.
func (p *Pipeline) Process(ctx context.Context, runID uuid.UUID) error {
	started := time.Now()
	err := p.repo.TransitionRun(ctx, runID, models.ImportStatusPending, map[string]interface{}{
		"status":     models.ImportStatusProcessing,
		"started_at": started,
	})
	if errors.Is(err, repository.ErrStateChanged) {
		p.logger.WithField("run_id", runID).Info("Run is not pending, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	run, err := p.repo.GetRun(ctx, runID)
	if err != nil {
		return p.failByID(ctx, runID, fmt.Sprintf("could not load import run: %v", err))
	}
	log := p.logger.WithFields(logrus.Fields{"run_id": run.ID, "attempt": run.Attempt, "file": run.FileName})
	log.Info("Processing import run")

	sheet, err := p.loadSheet(ctx, run)
	if err != nil {
		return p.fail(ctx, run, err.Error(), nil)
	}

	// Committed before conversion so pollers can see the row count
	run.TotalRows = len(sheet.Rows)
	if err := p.repo.SaveRun(ctx, run); err != nil {
		return p.fail(ctx, run, fmt.Sprintf("could not record row count: %v", err), nil)
	}

	columns := MapColumns(sheet.Headers, p.columns)
	if !columns.Has(FieldSKU) {
		rowErrors := make([]models.RowError, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			rowErrors = append(rowErrors, newRowError(row.Number, "", "", models.ErrorKindMissingSKUColumn,
				"no column matching the item code header was found"))
		}
		run.FailedRows = len(sheet.Rows)
		return p.fail(ctx, run, ErrNoSKUColumn.Error(), rowErrors)
	}

	records, rowErrors := NormalizeRows(sheet, columns)
	skipped := len(sheet.Rows) - len(records)
	for i := range records {
		records[i].Category, records[i].ParentCategory = p.classifier.Classify(records[i].Name, records[i].SKU)
	}

	var report *Report
	err = p.repo.WithTransaction(ctx, func(tx repository.ImportRepositoryInterface) error {
		report = p.engine.Apply(ctx, tx, records)
		rowErrors = append(rowErrors, report.Errors...)

		if err := tx.CreateRowErrors(ctx, stampRowErrors(rowErrors, run)); err != nil {
			return err
		}

		details, err := json.Marshal(models.ImportErrorDetails{
			CategoryStatistics: models.CategoryStatistics{
				Categories:       report.CategoryCounts,
				ParentCategories: report.ParentCounts,
				TotalProducts:    report.Succeeded(),
			},
			CreatedCategories: report.CreatedCategories,
		})
		if err != nil {
			return fmt.Errorf("failed to encode run statistics: %w", err)
		}
		snapshot, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("failed to encode normalized rows: %w", err)
		}

		completed := time.Now()
		run.Status = models.ImportStatusSuccess
		run.SuccessfulRows = report.Succeeded()
		run.FailedRows = skipped + report.Failed
		run.ErrorMessage = nil
		run.ErrorDetails = datatypes.JSON(details)
		run.NormalizedRows = datatypes.JSON(snapshot)
		run.CompletedAt = &completed
		return tx.SaveRun(ctx, run)
	})
	if err != nil {
		log.WithError(err).Error("Import transaction rolled back")
		message := fmt.Sprintf("import aborted: %v", err)
		reloaded, getErr := p.repo.GetRun(context.WithoutCancel(ctx), runID)
		if getErr != nil {
			return p.failByID(ctx, runID, message)
		}
		return p.fail(ctx, reloaded, message, nil)
	}

	log.WithFields(logrus.Fields{
		"total":          run.TotalRows,
		"created":        report.Created,
		"updated":        report.Updated,
		"failed":         run.FailedRows,
		"new_categories": len(report.CreatedCategories),
		"duration_ms":    time.Since(started).Milliseconds(),
	}).Info("Import run completed")

	p.publish(ctx, run, report)
	return nil
}

func (p *Pipeline) loadSheet(ctx context.Context, run *models.ImportRun) (*Sheet, error) {
	f, err := p.files.Open(ctx, run.FileRef)
	if err != nil {
		return nil, fmt.Errorf("could not open uploaded file: %w", err)
	}
	defer f.Close()

	sheet, err := LoadSheet(f, p.markers)
	if err != nil {
		return nil, fmt.Errorf("could not read spreadsheet: %w", err)
	}
	return sheet, nil
}

// fail moves the run to failed, recording rowErrors alongside
func (p *Pipeline) fail(ctx context.Context, run *models.ImportRun, message string, rowErrors []models.RowError) error {
	// the run must reach a terminal state even when the caller was cancelled
	ctx = context.WithoutCancel(ctx)
	p.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"reason": message,
	}).Warn("Import run failed")

	completed := time.Now()
	run.Status = models.ImportStatusFailed
	run.ErrorMessage = &message
	run.CompletedAt = &completed

	return p.repo.WithTransaction(ctx, func(tx repository.ImportRepositoryInterface) error {
		if err := tx.CreateRowErrors(ctx, stampRowErrors(rowErrors, run)); err != nil {
			return err
		}
		return tx.SaveRun(ctx, run)
	})
}

// failByID marks a processing run failed when its row could not be loaded
func (p *Pipeline) failByID(ctx context.Context, runID uuid.UUID, message string) error {
	ctx = context.WithoutCancel(ctx)
	p.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"reason": message,
	}).Warn("Import run failed")

	err := p.repo.TransitionRun(ctx, runID, models.ImportStatusProcessing, map[string]interface{}{
		"status":        models.ImportStatusFailed,
		"error_message": message,
		"completed_at":  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to mark run %s failed: %w", runID, err)
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, run *models.ImportRun, report *Report) {
	if p.publisher == nil {
		return
	}
	for _, result := range report.Results {
		if result.Product == nil {
			continue
		}
		p.publisher.PublishImportedProduct(ctx, result.Product, result.Outcome == RowCreated, run)
	}
}

func stampRowErrors(rowErrors []models.RowError, run *models.ImportRun) []models.RowError {
	stamped := make([]models.RowError, len(rowErrors))
	for i, e := range rowErrors {
		e.ID = uuid.Nil
		e.RunID = run.ID
		e.Attempt = run.Attempt
		stamped[i] = e
	}
	return stamped
}
