package importer

import (
	"context"
	"sort"
	"testing"
	"time"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes rows to the first sheet of a new xlsx file. Empty rows
// are left unwritten.
func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memState struct {
	runs       map[uuid.UUID]models.ImportRun
	rowErrors  []models.RowError
	categories map[string]models.Category
	products   map[string]models.Product
}

func (s memState) clone() memState {
	c := memState{
		runs:       make(map[uuid.UUID]models.ImportRun, len(s.runs)),
		rowErrors:  append([]models.RowError(nil), s.rowErrors...),
		categories: make(map[string]models.Category, len(s.categories)),
		products:   make(map[string]models.Product, len(s.products)),
	}
	for k, v := range s.runs {
		c.runs[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	return c
}

// memRepo is an in-memory ImportRepositoryInterface. WithTransaction restores
// a snapshot when fn fails, so nested calls behave like savepoints.
type memRepo struct {
	state memState

	upsertErrors     map[string]error
	rowErrorsErr     error
	saveStatusErrors map[models.ImportStatus]error
	getRunErr        error
	afterUpsert      func()
}

var _ repository.ImportRepositoryInterface = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		state: memState{
			runs:       make(map[uuid.UUID]models.ImportRun),
			categories: make(map[string]models.Category),
			products:   make(map[string]models.Product),
		},
		upsertErrors:     make(map[string]error),
		saveStatusErrors: make(map[models.ImportStatus]error),
	}
}

func (r *memRepo) WithTransaction(ctx context.Context, fn func(txRepo repository.ImportRepositoryInterface) error) error {
	snapshot := r.state.clone()
	if err := fn(r); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memRepo) CreateRun(ctx context.Context, run *models.ImportRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.CreatedAt = time.Now()
	run.UpdatedAt = run.CreatedAt
	r.state.runs[run.ID] = *run
	return nil
}

func (r *memRepo) GetRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	if r.getRunErr != nil {
		return nil, r.getRunErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	run, ok := r.state.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &run, nil
}

func (r *memRepo) SaveRun(ctx context.Context, run *models.ImportRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.saveStatusErrors[run.Status]; err != nil {
		return err
	}
	run.UpdatedAt = time.Now()
	r.state.runs[run.ID] = *run
	return nil
}

func (r *memRepo) TransitionRun(ctx context.Context, id uuid.UUID, from models.ImportStatus, updates map[string]interface{}) error {
	run, ok := r.state.runs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if run.Status != from {
		return repository.ErrStateChanged
	}
	for key, value := range updates {
		switch key {
		case "status":
			run.Status = value.(models.ImportStatus)
		case "execution_mode":
			run.ExecutionMode = value.(models.ExecutionMode)
		case "attempt":
			run.Attempt = value.(int)
		case "started_at":
			started := value.(time.Time)
			run.StartedAt = &started
		case "total_rows":
			run.TotalRows = value.(int)
		case "successful_rows":
			run.SuccessfulRows = value.(int)
		case "failed_rows":
			run.FailedRows = value.(int)
		case "error_message":
			if message, ok := value.(string); ok {
				run.ErrorMessage = &message
			} else {
				run.ErrorMessage = nil
			}
		case "error_details":
			run.ErrorDetails = nil
		case "normalized_rows":
			run.NormalizedRows = nil
		case "completed_at":
			if completed, ok := value.(time.Time); ok {
				run.CompletedAt = &completed
			} else {
				run.CompletedAt = nil
			}
		}
	}
	r.state.runs[id] = run
	return nil
}

func (r *memRepo) sortedRuns() []models.ImportRun {
	runs := make([]models.ImportRun, 0, len(r.state.runs))
	for _, run := range r.state.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs
}

func (r *memRepo) ListRuns(ctx context.Context, limit, offset int) ([]models.ImportRun, int64, error) {
	runs := r.sortedRuns()
	total := int64(len(runs))
	if offset >= len(runs) {
		return []models.ImportRun{}, total, nil
	}
	runs = runs[offset:]
	if limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, total, nil
}

func (r *memRepo) RecentRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	runs, _, err := r.ListRuns(ctx, limit, 0)
	return runs, err
}

func (r *memRepo) CreateRowErrors(ctx context.Context, rowErrors []models.RowError) error {
	if len(rowErrors) == 0 {
		return nil
	}
	if r.rowErrorsErr != nil {
		return r.rowErrorsErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range rowErrors {
		e.ID = uuid.New()
		r.state.rowErrors = append(r.state.rowErrors, e)
	}
	return nil
}

func (r *memRepo) ListRowErrors(ctx context.Context, runID uuid.UUID, attempt int) ([]models.RowError, error) {
	var out []models.RowError
	for _, e := range r.state.rowErrors {
		if e.RunID == runID && e.Attempt == attempt {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) GetOrCreateCategory(ctx context.Context, category *models.Category) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if existing, ok := r.state.categories[category.Name]; ok {
		*category = existing
		return false, nil
	}
	category.ID = uuid.New()
	r.state.categories[category.Name] = *category
	return true, nil
}

func (r *memRepo) UpsertProduct(ctx context.Context, product *models.Product) (bool, error) {
	if err := r.upsertErrors[product.SKU]; err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r.afterUpsert != nil {
		defer r.afterUpsert()
	}

	existing, ok := r.state.products[product.SKU]
	if !ok {
		product.ID = uuid.New()
		r.state.products[product.SKU] = *product
		return true, nil
	}

	existing.Name = product.Name
	existing.Price = product.Price
	existing.StockQuantity = product.StockQuantity
	existing.Unit = product.Unit
	existing.CategoryID = product.CategoryID
	if product.SalePrice != nil {
		existing.SalePrice = product.SalePrice
	}
	if product.Description != nil {
		existing.Description = product.Description
	}
	r.state.products[product.SKU] = existing
	*product = existing
	return false, nil
}

func (r *memRepo) categoryByID(id *uuid.UUID) *models.Category {
	if id == nil {
		return nil
	}
	for _, c := range r.state.categories {
		if c.ID == *id {
			c := c
			return &c
		}
	}
	return nil
}
