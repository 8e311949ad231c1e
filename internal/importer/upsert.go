package importer

import (
	"context"
	"sort"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RowOutcome is the result of persisting one record
type RowOutcome string

const (
	RowCreated RowOutcome = "created"
	RowUpdated RowOutcome = "updated"
	RowFailed  RowOutcome = "failed"
)

// RowResult describes what happened to one record
type RowResult struct {
	Row     int
	SKU     string
	Outcome RowOutcome
	Product *models.Product
	Err     error
}

// Report is the fold of all row results of a run
type Report struct {
	Results           []RowResult
	Created           int
	Updated           int
	Failed            int
	CreatedCategories []string
	CategoryCounts    map[string]int
	ParentCounts      map[string]int
	Errors            []models.RowError
}

// Succeeded is the number of records that were persisted
func (r *Report) Succeeded() int {
	return r.Created + r.Updated
}

// Engine persists classified records into the catalog
type Engine struct {
	logger *logrus.Entry
}

func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger.WithField("component", "upsert_engine")}
}

// Apply persists records in order. Each record runs in its own savepoint on
// repo, so a failing record is rolled back alone and reported as update_error.
func (e *Engine) Apply(ctx context.Context, repo repository.ImportRepositoryInterface, records []Record) *Report {
	report := &Report{
		CategoryCounts: make(map[string]int),
		ParentCounts:   make(map[string]int),
	}
	created := make(map[string]bool)

	for _, rec := range records {
		var product *models.Product
		var rowCreated bool
		var newCategories []string

		err := repo.WithTransaction(ctx, func(tx repository.ImportRepositoryInterface) error {
			newCategories = newCategories[:0]

			var parentID *uuid.UUID
			if rec.ParentCategory != "" {
				parent := &models.Category{Name: rec.ParentCategory, Slug: Slugify(rec.ParentCategory), IsActive: true}
				isNew, err := tx.GetOrCreateCategory(ctx, parent)
				if err != nil {
					return err
				}
				if isNew {
					newCategories = append(newCategories, parent.Name)
				}
				parentID = &parent.ID
			}

			leaf := &models.Category{Name: rec.Category, Slug: Slugify(rec.Category), ParentID: parentID, IsActive: true}
			isNew, err := tx.GetOrCreateCategory(ctx, leaf)
			if err != nil {
				return err
			}
			if isNew {
				newCategories = append(newCategories, leaf.Name)
			}

			product = &models.Product{
				SKU:           rec.SKU,
				Name:          rec.Name,
				Slug:          ProductSlug(rec.Name, rec.SKU),
				Description:   rec.Description,
				Price:         rec.Price,
				SalePrice:     rec.SalePrice,
				StockQuantity: rec.StockQuantity,
				Unit:          rec.Unit,
				CategoryID:    &leaf.ID,
				IsActive:      true,
			}
			rowCreated, err = tx.UpsertProduct(ctx, product)
			return err
		})

		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"row": rec.Row,
				"sku": rec.SKU,
			}).WithError(err).Warn("Failed to import row")

			report.Failed++
			report.Results = append(report.Results, RowResult{Row: rec.Row, SKU: rec.SKU, Outcome: RowFailed, Err: err})
			report.Errors = append(report.Errors, newRowError(rec.Row, rec.SKU, rec.Name, models.ErrorKindUpdate, err.Error()))
			continue
		}

		for _, name := range newCategories {
			created[name] = true
		}
		report.CategoryCounts[rec.Category]++
		if rec.ParentCategory != "" {
			report.ParentCounts[rec.ParentCategory]++
		}

		outcome := RowUpdated
		if rowCreated {
			outcome = RowCreated
			report.Created++
		} else {
			report.Updated++
		}
		report.Results = append(report.Results, RowResult{Row: rec.Row, SKU: rec.SKU, Outcome: outcome, Product: product})
	}

	report.CreatedCategories = make([]string, 0, len(created))
	for name := range created {
		report.CreatedCategories = append(report.CreatedCategories, name)
	}
	sort.Strings(report.CreatedCategories)

	return report
}
