package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportStatus represents the lifecycle state of an import run
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusSuccess    ImportStatus = "success"
	ImportStatusFailed     ImportStatus = "failed"
)

// IsTerminal reports whether the run has finished
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusSuccess || s == ImportStatusFailed
}

// ExecutionMode records how a run was executed
type ExecutionMode string

const (
	ExecutionModeInline ExecutionMode = "inline"
	ExecutionModeQueued ExecutionMode = "queued"
)

// Row error kinds
const (
	ErrorKindMissingSKU       = "missing_sku"
	ErrorKindMissingSKUColumn = "missing_sku_column"
	ErrorKindPriceData        = "price_data_error"
	ErrorKindStockData        = "stock_data_error"
	ErrorKindUpdate           = "update_error"
)

// ImportRun is the ledger entry for one uploaded spreadsheet
type ImportRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UploadedBy     string         `gorm:"type:varchar(255);index" json:"uploadedBy"`
	FileName       string         `gorm:"type:varchar(255);not null" json:"fileName"`
	FileRef        string         `gorm:"type:varchar(1024);not null" json:"fileRef"`
	FileSize       int64          `json:"fileSize"`
	Status         ImportStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ExecutionMode  ExecutionMode  `gorm:"type:varchar(20)" json:"executionMode,omitempty"`
	Attempt        int            `gorm:"not null;default:1" json:"attempt"`
	TotalRows      int            `gorm:"not null;default:0" json:"totalRows"`
	SuccessfulRows int            `gorm:"not null;default:0" json:"successfulRows"`
	FailedRows     int            `gorm:"not null;default:0" json:"failedRows"`
	ErrorMessage   *string        `gorm:"type:text" json:"errorMessage,omitempty"`
	ErrorDetails   datatypes.JSON `gorm:"type:jsonb" json:"errorDetails,omitempty"`
	NormalizedRows datatypes.JSON `gorm:"type:jsonb" json:"normalizedRows,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`

	RowErrors []RowError `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for ImportRun
func (ImportRun) TableName() string {
	return "import_runs"
}

func (r *ImportRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// RowError records one failing row of an import run
type RowError struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RunID       uuid.UUID `gorm:"type:uuid;not null;index:idx_row_errors_run_attempt" json:"runId"`
	Attempt     int       `gorm:"not null;default:1;index:idx_row_errors_run_attempt" json:"attempt"`
	RowNumber   int       `gorm:"not null" json:"rowNumber"`
	SKU         *string   `gorm:"type:varchar(100)" json:"sku,omitempty"`
	ProductName *string   `gorm:"type:varchar(500)" json:"productName,omitempty"`
	Kind        string    `gorm:"type:varchar(50);not null" json:"kind"`
	Message     string    `gorm:"type:text;not null" json:"message"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for RowError
func (RowError) TableName() string {
	return "import_row_errors"
}

func (e *RowError) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// CategoryStatistics summarises where the imported products landed
type CategoryStatistics struct {
	Categories       map[string]int `json:"categories"`
	ParentCategories map[string]int `json:"parent_categories"`
	TotalProducts    int            `json:"total_products"`
}

// ImportErrorDetails is the structured payload stored on ImportRun.ErrorDetails
type ImportErrorDetails struct {
	CategoryStatistics CategoryStatistics `json:"category_statistics"`
	CreatedCategories  []string           `json:"created_categories"`
}

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Header      string `json:"header"`
	Field       string `json:"field"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Example     string `json:"example"`
}

// ImportTemplate defines the downloadable spreadsheet layout
type ImportTemplate struct {
	Entity  string                 `json:"entity"`
	Version string                 `json:"version"`
	Columns []ImportTemplateColumn `json:"columns"`
}

// ProductImportTemplate returns the columns recognised by the importer
func ProductImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "products",
		Version: "1.0",
		Columns: []ImportTemplateColumn{
			{Header: "کد کالا", Field: "sku", Description: "Unique item code", Required: true, Example: "102001"},
			{Header: "نام کالا", Field: "name", Description: "Item name, used for categorisation", Example: "لیوان یکبار مصرف"},
			{Header: "موجودی", Field: "stock_quantity", Description: "Stock on hand", Example: "120"},
			{Header: "قیمت", Field: "price", Description: "Base price in rials", Example: "12,500"},
			{Header: "قیمت فروش", Field: "sale_price", Description: "Discounted sale price", Example: ""},
			{Header: "آخرین خرید", Field: "last_purchase_price", Description: "Used as price when no price column exists", Example: ""},
			{Header: "واحد", Field: "unit", Description: "Unit of sale", Example: "عدد"},
			{Header: "توضیحات", Field: "description", Description: "Free-text description", Example: ""},
			{Header: "سریال", Field: "serial", Description: "Serial number", Example: ""},
		},
	}
}
