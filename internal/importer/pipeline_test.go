package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedProduct struct {
	SKU     string
	Created bool
	RunID   uuid.UUID
}

type recordingPublisher struct {
	published []publishedProduct
}

func (p *recordingPublisher) PublishImportedProduct(ctx context.Context, product *models.Product, created bool, run *models.ImportRun) {
	p.published = append(p.published, publishedProduct{SKU: product.SKU, Created: created, RunID: run.ID})
}

type pipelineFixture struct {
	repo      *memRepo
	files     *storage.LocalStore
	publisher *recordingPublisher
	pipeline  *Pipeline
}

func newPipelineFixture(t *testing.T, opts PipelineOptions) *pipelineFixture {
	t.Helper()
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &pipelineFixture{
		repo:      newMemRepo(),
		files:     files,
		publisher: &recordingPublisher{},
	}
	opts.Publisher = f.publisher
	f.pipeline = NewPipeline(f.repo, files, defaultClassifier(t), quietLogger(), opts)
	return f
}

func (f *pipelineFixture) newRun(t *testing.T, data []byte) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	ref, err := f.files.Save(ctx, "products.xlsx", bytes.NewReader(data))
	require.NoError(t, err)

	run := &models.ImportRun{
		FileName: "products.xlsx",
		FileRef:  ref,
		FileSize: int64(len(data)),
		Status:   models.ImportStatusPending,
		Attempt:  1,
	}
	require.NoError(t, f.repo.CreateRun(ctx, run))
	return run.ID
}

func (f *pipelineFixture) run(t *testing.T, id uuid.UUID) *models.ImportRun {
	t.Helper()
	run, err := f.repo.GetRun(context.Background(), id)
	require.NoError(t, err)
	return run
}

func sampleWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, [][]interface{}{
		{"گزارش کالا"},
		{"ردیف", "کد کالا", "نام کالا", "موجودی", "قیمت"},
		{1, 102001, "لیوان کاغذی", 100, "12,500"},
		{2, "", "بدون کد", 1, 100},
		{3, 104002, "Widget", 3, 5000},
	})
}

func TestPipeline_Process(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	id := f.newRun(t, sampleWorkbook(t))

	require.NoError(t, f.pipeline.Process(context.Background(), id))

	run := f.run(t, id)
	assert.Equal(t, models.ImportStatusSuccess, run.Status)
	assert.Equal(t, 3, run.TotalRows)
	assert.Equal(t, 2, run.SuccessfulRows)
	assert.Equal(t, 1, run.FailedRows)
	assert.Nil(t, run.ErrorMessage)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)

	var details models.ImportErrorDetails
	require.NoError(t, json.Unmarshal(run.ErrorDetails, &details))
	assert.Equal(t, map[string]int{"ظروف یکبار مصرف": 1, "ابزار و تجهیزات": 1}, details.CategoryStatistics.Categories)
	assert.Equal(t, map[string]int{"محصولات خانگی": 1}, details.CategoryStatistics.ParentCategories)
	assert.Equal(t, 2, details.CategoryStatistics.TotalProducts)
	assert.Equal(t, []string{"ابزار و تجهیزات", "ظروف یکبار مصرف", "محصولات خانگی"}, details.CreatedCategories)

	var snapshot []Record
	require.NoError(t, json.Unmarshal(run.NormalizedRows, &snapshot))
	require.Len(t, snapshot, 2)
	assert.Equal(t, "102001", snapshot[0].SKU)
	assert.Equal(t, "ظروف یکبار مصرف", snapshot[0].Category)
	assert.Equal(t, "محصولات خانگی", snapshot[0].ParentCategory)

	rowErrors, err := f.repo.ListRowErrors(context.Background(), id, 1)
	require.NoError(t, err)
	require.Len(t, rowErrors, 1)
	assert.Equal(t, models.ErrorKindMissingSKU, rowErrors[0].Kind)
	assert.Equal(t, 4, rowErrors[0].RowNumber)

	cup := f.repo.state.products["102001"]
	assert.True(t, price("12500").Equal(cup.Price))
	assert.Equal(t, 100, cup.StockQuantity)
	category := f.repo.categoryByID(cup.CategoryID)
	require.NotNil(t, category)
	assert.Equal(t, "ظروف یکبار مصرف", category.Name)

	assert.ElementsMatch(t, []publishedProduct{
		{SKU: "102001", Created: true, RunID: id},
		{SKU: "104002", Created: true, RunID: id},
	}, f.publisher.published)
}

func TestPipeline_Process_IsIdempotent(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	data := sampleWorkbook(t)

	first := f.newRun(t, data)
	require.NoError(t, f.pipeline.Process(context.Background(), first))
	productIDs := map[string]uuid.UUID{}
	for sku, p := range f.repo.state.products {
		productIDs[sku] = p.ID
	}
	categories := len(f.repo.state.categories)
	f.publisher.published = nil

	second := f.newRun(t, data)
	require.NoError(t, f.pipeline.Process(context.Background(), second))

	run := f.run(t, second)
	assert.Equal(t, models.ImportStatusSuccess, run.Status)
	assert.Equal(t, 2, run.SuccessfulRows)
	assert.Len(t, f.repo.state.products, 2)
	assert.Equal(t, categories, len(f.repo.state.categories))
	for sku, p := range f.repo.state.products {
		assert.Equal(t, productIDs[sku], p.ID)
	}

	var details models.ImportErrorDetails
	require.NoError(t, json.Unmarshal(run.ErrorDetails, &details))
	assert.Empty(t, details.CreatedCategories)

	for _, p := range f.publisher.published {
		assert.False(t, p.Created)
	}
}

func TestPipeline_Process_RowFailureDoesNotAbortRun(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	rows := [][]interface{}{{"کد کالا", "نام کالا", "قیمت"}}
	for i := 1; i <= 10; i++ {
		rows = append(rows, []interface{}{900000 + i, fmt.Sprintf("Item %d", i), 1000})
	}
	id := f.newRun(t, buildWorkbook(t, rows))
	f.repo.upsertErrors["900005"] = errors.New("constraint violation")

	require.NoError(t, f.pipeline.Process(context.Background(), id))

	run := f.run(t, id)
	assert.Equal(t, models.ImportStatusSuccess, run.Status)
	assert.Equal(t, 10, run.TotalRows)
	assert.Equal(t, 9, run.SuccessfulRows)
	assert.Equal(t, 1, run.FailedRows)
	assert.Len(t, f.repo.state.products, 9)

	rowErrors, _ := f.repo.ListRowErrors(context.Background(), id, 1)
	require.Len(t, rowErrors, 1)
	assert.Equal(t, models.ErrorKindUpdate, rowErrors[0].Kind)
	assert.Equal(t, 6, rowErrors[0].RowNumber)
	assert.Equal(t, id, rowErrors[0].RunID)
	assert.Equal(t, 1, rowErrors[0].Attempt)
}

func TestPipeline_Process_MissingSKUColumn(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	id := f.newRun(t, buildWorkbook(t, [][]interface{}{
		{"نام کالا", "قیمت"},
		{"لیوان", 100},
		{"بشقاب", 200},
	}))

	require.NoError(t, f.pipeline.Process(context.Background(), id))

	run := f.run(t, id)
	assert.Equal(t, models.ImportStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "SKU column not found", *run.ErrorMessage)
	assert.Equal(t, 2, run.TotalRows)
	assert.Equal(t, 2, run.FailedRows)
	assert.Equal(t, 0, run.SuccessfulRows)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, f.repo.state.products)

	rowErrors, _ := f.repo.ListRowErrors(context.Background(), id, 1)
	require.Len(t, rowErrors, 2)
	for _, e := range rowErrors {
		assert.Equal(t, models.ErrorKindMissingSKUColumn, e.Kind)
	}
	assert.Empty(t, f.publisher.published)
}

func TestPipeline_Process_StatsFailureRollsBackEverything(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	id := f.newRun(t, sampleWorkbook(t))
	f.repo.saveStatusErrors[models.ImportStatusSuccess] = errors.New("disk full")

	require.NoError(t, f.pipeline.Process(context.Background(), id))

	run := f.run(t, id)
	assert.Equal(t, models.ImportStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "import aborted: disk full", *run.ErrorMessage)
	assert.Equal(t, 3, run.TotalRows)
	assert.Empty(t, f.repo.state.products)
	assert.Empty(t, f.repo.state.categories)
	assert.Empty(t, f.repo.state.rowErrors)
	assert.Empty(t, f.publisher.published)
}

func TestPipeline_Process_UnreadableFile(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	id := f.newRun(t, []byte("definitely not a spreadsheet"))

	require.NoError(t, f.pipeline.Process(context.Background(), id))

	run := f.run(t, id)
	assert.Equal(t, models.ImportStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "could not read spreadsheet")
	assert.Equal(t, 0, run.TotalRows)
}

func TestPipeline_Process_MissingFile(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	run := &models.ImportRun{FileName: "gone.xlsx", FileRef: "2024/01/01/gone.xlsx", Status: models.ImportStatusPending, Attempt: 1}
	require.NoError(t, f.repo.CreateRun(context.Background(), run))

	require.NoError(t, f.pipeline.Process(context.Background(), run.ID))

	got := f.run(t, run.ID)
	assert.Equal(t, models.ImportStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "could not open uploaded file")
}

func TestPipeline_Process_SkipsRunsThatAreNotPending(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	id := f.newRun(t, sampleWorkbook(t))
	run := f.run(t, id)
	run.Status = models.ImportStatusSuccess
	require.NoError(t, f.repo.SaveRun(context.Background(), run))

	require.NoError(t, f.pipeline.Process(context.Background(), id))

	assert.Nil(t, f.run(t, id).StartedAt)
	assert.Empty(t, f.repo.state.products)
}

func TestPipeline_Process_UnknownRun(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})

	err := f.pipeline.Process(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPipeline_Process_RetryRecordsErrorsPerAttempt(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{})
	id := f.newRun(t, sampleWorkbook(t))
	ctx := context.Background()

	f.repo.rowErrorsErr = errors.New("row error table locked")
	require.NoError(t, f.pipeline.Process(ctx, id))
	require.Equal(t, models.ImportStatusFailed, f.run(t, id).Status)

	f.repo.rowErrorsErr = nil
	require.NoError(t, f.repo.TransitionRun(ctx, id, models.ImportStatusFailed, map[string]interface{}{
		"status":        models.ImportStatusPending,
		"attempt":       2,
		"error_message": nil,
	}))
	require.NoError(t, f.pipeline.Process(ctx, id))

	run := f.run(t, id)
	assert.Equal(t, models.ImportStatusSuccess, run.Status)
	assert.Equal(t, 2, run.Attempt)

	first, _ := f.repo.ListRowErrors(ctx, id, 1)
	assert.Empty(t, first)
	second, _ := f.repo.ListRowErrors(ctx, id, 2)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].Attempt)
}

func TestPipeline_Process_CustomHeaderAndColumns(t *testing.T) {
	f := newPipelineFixture(t, PipelineOptions{
		HeaderMarkers: []string{"sku", "title"},
		ColumnRules: []ColumnRule{
			{Field: FieldSKU, Fragments: []string{"sku"}},
			{Field: FieldName, Fragments: []string{"title"}},
			{Field: FieldPrice, Fragments: []string{"cost"}},
		},
	})
	id := f.newRun(t, buildWorkbook(t, [][]interface{}{
		{"Stock report"},
		{"SKU", "Title", "Cost"},
		{"X-1", "Paper cup", 2500},
	}))

	require.NoError(t, f.pipeline.Process(context.Background(), id))

	run := f.run(t, id)
	assert.Equal(t, models.ImportStatusSuccess, run.Status)
	assert.Equal(t, 1, run.SuccessfulRows)
	product := f.repo.state.products["X-1"]
	assert.Equal(t, "Paper cup", product.Name)
	assert.True(t, price("2500").Equal(product.Price))
}
