package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// ImportService is the behaviour the handler needs from services.ImportService
type ImportService interface {
	ValidateUpload(fileName string, size int64) error
	Upload(ctx context.Context, in services.UploadInput) (*models.ImportRun, error)
	Retry(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)
	ListRuns(ctx context.Context, page, limit int) ([]models.ImportRun, int64, error)
	RecentRuns(ctx context.Context, limit int) ([]models.ImportRun, error)
	RowErrors(ctx context.Context, id uuid.UUID, attempt int) ([]models.RowError, int, error)
}

type ImportHandler struct {
	service         ImportService
	defaultPageSize int
	maxPageSize     int
}

func NewImportHandler(service ImportService, defaultPageSize, maxPageSize int) *ImportHandler {
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	if maxPageSize < defaultPageSize {
		maxPageSize = defaultPageSize
	}
	return &ImportHandler{
		service:         service,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// UploadImport accepts a spreadsheet and starts an import run
// POST /api/v1/imports
func (h *ImportHandler) UploadImport(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload an Excel file in the 'file' field")
		return
	}
	defer file.Close()

	if err := h.service.ValidateUpload(header.Filename, header.Size); err != nil {
		h.handleServiceError(c, err)
		return
	}

	run, err := h.service.Upload(c.Request.Context(), services.UploadInput{
		FileName:   header.Filename,
		Size:       header.Size,
		Content:    file,
		UploadedBy: middleware.CurrentUserID(c),
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	message := "File uploaded, import queued"
	switch run.Status {
	case models.ImportStatusSuccess:
		message = "File imported successfully"
	case models.ImportStatusFailed:
		message = "File import failed"
	}
	c.JSON(http.StatusCreated, models.ImportRunResponse{
		Success: true,
		Data:    run,
		Message: &message,
	})
}

// ListImports returns import runs, newest first
// GET /api/v1/imports
func (h *ImportHandler) ListImports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.defaultPageSize)))
	if limit < 1 {
		limit = h.defaultPageSize
	}
	if limit > h.maxPageSize {
		limit = h.maxPageSize
	}

	runs, total, err := h.service.ListRuns(c.Request.Context(), page, limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, models.ImportRunListResponse{
		Success: true,
		Data:    runs,
		Pagination: &models.PaginationInfo{
			Page:        page,
			Limit:       limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNext:     page < totalPages,
			HasPrevious: page > 1,
		},
	})
}

// RecentImports returns the ten newest runs
// GET /api/v1/imports/recent
func (h *ImportHandler) RecentImports(c *gin.Context) {
	runs, err := h.service.RecentRuns(c.Request.Context(), 10)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ImportRunListResponse{Success: true, Data: runs})
}

// GetImport returns one run
// GET /api/v1/imports/:id
func (h *ImportHandler) GetImport(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ImportRunResponse{Success: true, Data: run})
}

// GetImportErrors returns the row errors of a run
// GET /api/v1/imports/:id/errors?attempt=N
func (h *ImportHandler) GetImportErrors(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	attempt, _ := strconv.Atoi(c.DefaultQuery("attempt", "0"))

	rowErrors, attempt, err := h.service.RowErrors(c.Request.Context(), id, attempt)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RowErrorListResponse{Success: true, Attempt: attempt, Data: rowErrors})
}

// RetryImport re-runs a failed import from scratch
// POST /api/v1/imports/:id/retry
func (h *ImportHandler) RetryImport(c *gin.Context) {
	id, ok := parseRunID(c)
	if !ok {
		return
	}
	run, err := h.service.Retry(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	message := "Import retried"
	c.JSON(http.StatusOK, models.ImportRunResponse{Success: true, Data: run, Message: &message})
}

// GetImportTemplate returns the template definition, or the spreadsheet itself with ?format=xlsx
// GET /api/v1/imports/template
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	template := models.ProductImportTemplate()
	if c.DefaultQuery("format", "xlsx") != "xlsx" {
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
		return
	}

	f, err := buildTemplateWorkbook(template)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "TEMPLATE_ERROR", err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=products_import_template.xlsx")
	if err := f.Write(c.Writer); err != nil {
		c.Error(err)
	}
}

// buildTemplateWorkbook writes the recognised headers right-to-left, the way
// the accounting export lays them out, plus an instructions sheet.
func buildTemplateWorkbook(template models.ImportTemplate) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "محصولات"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}
	rtl := true
	if err := f.SetSheetView(sheetName, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col.Header)
		style := headerStyle
		if col.Required {
			style = requiredStyle
		}
		f.SetCellStyle(sheetName, cell, cell, style)
		if col.Example != "" {
			example, _ := excelize.CoordinatesToCellName(i+1, 2)
			f.SetCellValue(sheetName, example, col.Example)
		}
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	const help = "Instructions"
	f.NewSheet(help)
	f.SetCellValue(help, "A1", "Product Import Instructions")
	f.SetCellValue(help, "A3", "The header row is found by the 'کد کالا' cell; rows above it are ignored.")
	f.SetCellValue(help, "A4", "Headers are matched by substring, so exported variants such as 'قیمت فروش ریالی' are accepted.")
	f.SetCellValue(help, "A5", "Categories are assigned from the item name, falling back to the item code prefix.")
	f.SetCellValue(help, "A7", "Header")
	f.SetCellValue(help, "B7", "Field")
	f.SetCellValue(help, "C7", "Description")
	f.SetCellValue(help, "D7", "Required")
	for i, col := range template.Columns {
		row := i + 8
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue(help, fmt.Sprintf("A%d", row), col.Header)
		f.SetCellValue(help, fmt.Sprintf("B%d", row), col.Field)
		f.SetCellValue(help, fmt.Sprintf("C%d", row), col.Description)
		f.SetCellValue(help, fmt.Sprintf("D%d", row), required)
	}
	f.SetColWidth(help, "A", "B", 22)
	f.SetColWidth(help, "C", "C", 60)

	idx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(idx)
	return f, nil
}

func (h *ImportHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrRunNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, services.ErrRunNotFailed):
		respondError(c, http.StatusConflict, "RUN_NOT_FAILED", err.Error())
	case errors.Is(err, services.ErrUnsupportedFile):
		respondError(c, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
	case errors.Is(err, services.ErrFileTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, services.ErrEmptyFile):
		respondError(c, http.StatusBadRequest, "EMPTY_FILE", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid import run ID")
		return uuid.Nil, false
	}
	return id, true
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
	})
}
