package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"catalog-import-service/internal/models"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrRunNotFound     = errors.New("import run not found")
	ErrRunNotFailed    = errors.New("only failed import runs can be retried")
	ErrUnsupportedFile = errors.New("only .xlsx and .xls files are supported")
	ErrFileTooLarge    = errors.New("file exceeds the upload size limit")
	ErrEmptyFile       = errors.New("file is empty")
)

// AllowedExtensions are the spreadsheet formats accepted for upload
var AllowedExtensions = []string{".xlsx", ".xls"}

// Dispatcher hands a pending run to whichever executor is available
type Dispatcher interface {
	Dispatch(ctx context.Context, runID uuid.UUID) (models.ExecutionMode, error)
}

// UploadInput describes an accepted upload
type UploadInput struct {
	FileName   string
	Size       int64
	Content    io.Reader
	UploadedBy string
}

// ImportService is the entry point for the HTTP and CLI surfaces
type ImportService struct {
	repo       repository.ImportRepositoryInterface
	files      storage.FileStore
	dispatcher Dispatcher
	maxBytes   int64
	logger     *logrus.Entry
}

func NewImportService(repo repository.ImportRepositoryInterface, files storage.FileStore, dispatcher Dispatcher, maxBytes int64, logger *logrus.Logger) *ImportService {
	return &ImportService{
		repo:       repo,
		files:      files,
		dispatcher: dispatcher,
		maxBytes:   maxBytes,
		logger:     logger.WithField("component", "import_service"),
	}
}

// ValidateUpload checks the extension and size of an uploaded file
func (s *ImportService) ValidateUpload(fileName string, size int64) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	allowed := false
	for _, a := range AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrUnsupportedFile
	}
	if size <= 0 {
		return ErrEmptyFile
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return fmt.Errorf("%w (%d MB)", ErrFileTooLarge, s.maxBytes/(1024*1024))
	}
	return nil
}

// Upload stores the file, records a pending run and dispatches it. With no
// background executor the run has already finished when Upload returns.
func (s *ImportService) Upload(ctx context.Context, in UploadInput) (*models.ImportRun, error) {
	if err := s.ValidateUpload(in.FileName, in.Size); err != nil {
		return nil, err
	}

	ref, err := s.files.Save(ctx, in.FileName, in.Content)
	if err != nil {
		return nil, err
	}

	run := &models.ImportRun{
		UploadedBy: in.UploadedBy,
		FileName:   filepath.Base(in.FileName),
		FileRef:    ref,
		FileSize:   in.Size,
		Status:     models.ImportStatusPending,
		Attempt:    1,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		if delErr := s.files.Delete(ctx, ref); delErr != nil {
			s.logger.WithError(delErr).Warn("Failed to remove orphaned upload")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"file":        run.FileName,
		"size":        run.FileSize,
		"uploaded_by": run.UploadedBy,
	}).Info("Import run created")

	return s.dispatch(ctx, run.ID)
}

// Retry resets a failed run and executes it again from scratch
func (s *ImportService) Retry(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.ImportStatusFailed {
		return nil, ErrRunNotFailed
	}

	err = s.repo.TransitionRun(ctx, id, models.ImportStatusFailed, map[string]interface{}{
		"status":          models.ImportStatusPending,
		"attempt":         run.Attempt + 1,
		"error_message":   nil,
		"error_details":   nil,
		"normalized_rows": nil,
		"total_rows":      0,
		"successful_rows": 0,
		"failed_rows":     0,
		"started_at":      nil,
		"completed_at":    nil,
	})
	switch {
	case errors.Is(err, repository.ErrStateChanged):
		return nil, ErrRunNotFailed
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrRunNotFound
	case err != nil:
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"run_id": id, "attempt": run.Attempt + 1}).Info("Retrying import run")
	return s.dispatch(ctx, id)
}

func (s *ImportService) dispatch(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	if _, err := s.dispatcher.Dispatch(ctx, id); err != nil {
		s.logger.WithError(err).WithField("run_id", id).Error("Failed to dispatch import run")
	}
	return s.GetRun(ctx, id)
}

func (s *ImportService) GetRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	run, err := s.repo.GetRun(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (s *ImportService) ListRuns(ctx context.Context, page, limit int) ([]models.ImportRun, int64, error) {
	if page < 1 {
		page = 1
	}
	return s.repo.ListRuns(ctx, limit, (page-1)*limit)
}

// RecentRuns returns the newest runs first
func (s *ImportService) RecentRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.RecentRuns(ctx, limit)
}

// RowErrors lists the errors of one attempt; attempt 0 selects the latest
func (s *ImportService) RowErrors(ctx context.Context, id uuid.UUID, attempt int) ([]models.RowError, int, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if attempt <= 0 || attempt > run.Attempt {
		attempt = run.Attempt
	}
	rowErrors, err := s.repo.ListRowErrors(ctx, id, attempt)
	return rowErrors, attempt, err
}
