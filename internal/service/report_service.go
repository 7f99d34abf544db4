package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-adp-api/internal/models"
	appErrors "github.com/noah-isme/lms-adp-api/pkg/errors"
	"github.com/noah-isme/lms-adp-api/pkg/export"
	"github.com/noah-isme/lms-adp-api/pkg/jobs"
)

type reportRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	SetProcessing(ctx context.Context, id string) error
	SetResult(ctx context.Context, id string, result []byte) error
	SetFailed(ctx context.Context, id string, message string) error
}

type reportEnrollmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

type reportCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ReportService produces asynchronous course progress exports. Requests
// are queued; workers render the artifact and store it on the job row for
// later download.
type ReportService struct {
	repo           reportRepository
	enrollmentRepo reportEnrollmentRepository
	courseRepo     reportCourseRepository
	csv            *export.CSVExporter
	pdf            *export.PDFExporter
	queue          *jobs.Queue
	validator      *validator.Validate
	logger         *zap.Logger
}

// ReportServiceConfig tunes the worker pool.
type ReportServiceConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	WorkerRetryDelay  time.Duration
}

// NewReportService constructs the report service and its queue. Call
// Start before enqueueing and Stop on shutdown.
func NewReportService(
	repo reportRepository,
	enrollments reportEnrollmentRepository,
	courses reportCourseRepository,
	cfg ReportServiceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		repo:           repo,
		enrollmentRepo: enrollments,
		courseRepo:     courses,
		csv:            export.NewCSVExporter(),
		pdf:            export.NewPDFExporter(),
		validator:      validate,
		logger:         logger,
	}
	s.queue = jobs.NewQueue("progress-reports", s.process, jobs.QueueConfig{
		Workers:     cfg.WorkerConcurrency,
		MaxRetries:  cfg.WorkerRetries,
		RetryDelay:  cfg.WorkerRetryDelay,
		OnExhausted: s.markExhausted,
		Logger:      logger,
	})
	return s
}

// markExhausted pins a terminal FAILED status on a job whose processing
// attempts have all failed, so it cannot linger as QUEUED or PROCESSING.
func (s *ReportService) markExhausted(ctx context.Context, job jobs.Job, cause error) {
	id, ok := job.Payload.(string)
	if !ok {
		id = job.ID
	}
	s.logger.Error("report retries exhausted", zap.String("job_id", id), zap.Error(cause))
	if err := s.repo.SetFailed(ctx, id, "retries exhausted"); err != nil {
		s.logger.Error("failed to mark exhausted report", zap.String("job_id", id), zap.Error(err))
	}
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the report workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// RequestReportRequest describes a report request payload.
type RequestReportRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid4"`
	Format   string `json:"format" validate:"required,oneof=CSV PDF"`
}

// Request queues a new course progress report and returns the job record.
func (s *ReportService) Request(ctx context.Context, requestedBy string, req RequestReportRequest) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if _, err := s.courseRepo.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	job := &models.ReportJob{
		CourseID:    req.CourseID,
		RequestedBy: requestedBy,
		Format:      models.ReportFormat(req.Format),
		Status:      models.ReportStatusQueued,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "course-progress", Payload: job.ID}); err != nil {
		if failErr := s.repo.SetFailed(ctx, job.ID, "queue unavailable"); failErr != nil {
			s.logger.Error("failed to mark unqueued report", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report")
	}
	return job, nil
}

// Get returns a report job by id.
func (s *ReportService) Get(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return job, nil
}

// Download returns the rendered artifact of a finished report.
func (s *ReportService) Download(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ReportStatusDone {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "report is not ready")
	}
	return job, nil
}

// process renders one queued report. It runs on queue workers.
func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("report job %s: unexpected payload type %T", job.ID, job.Payload)
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", id, err)
	}
	if err := s.repo.SetProcessing(ctx, id); err != nil {
		return err
	}

	rows, err := s.enrollmentRepo.ListByCourse(ctx, record.CourseID)
	if err != nil {
		if failErr := s.repo.SetFailed(ctx, id, "failed to collect enrollment progress"); failErr != nil {
			s.logger.Error("failed to mark report failed", zap.String("job_id", id), zap.Error(failErr))
		}
		return fmt.Errorf("collect enrollments for report %s: %w", id, err)
	}

	dataset := progressDataset(rows)
	var artifact []byte
	switch record.Format {
	case models.ReportFormatPDF:
		artifact, err = s.pdf.Render(dataset, "Course Progress Report")
	default:
		artifact, err = s.csv.Render(dataset)
	}
	if err != nil {
		if failErr := s.repo.SetFailed(ctx, id, "failed to render report"); failErr != nil {
			s.logger.Error("failed to mark report failed", zap.String("job_id", id), zap.Error(failErr))
		}
		return fmt.Errorf("render report %s: %w", id, err)
	}

	if err := s.repo.SetResult(ctx, id, artifact); err != nil {
		return fmt.Errorf("store report %s: %w", id, err)
	}
	s.logger.Info("report rendered",
		zap.String("job_id", id),
		zap.String("course_id", record.CourseID),
		zap.String("format", string(record.Format)),
		zap.Int("rows", len(rows)))
	return nil
}

func progressDataset(rows []models.EnrollmentDetail) export.Dataset {
	data := export.Dataset{
		Headers: []string{"Student", "Course", "Status", "Progress (%)", "Enrolled At", "Completed At"},
		Rows:    make([]map[string]string, len(rows)),
	}
	for i, row := range rows {
		completedAt := ""
		if row.CompletedAt != nil {
			completedAt = row.CompletedAt.UTC().Format(time.RFC3339)
		}
		data.Rows[i] = map[string]string{
			"Student":      row.StudentName,
			"Course":       row.CourseTitle,
			"Status":       string(row.Status),
			"Progress (%)": strconv.FormatFloat(row.Progress, 'f', 0, 64),
			"Enrolled At":  row.EnrolledAt.UTC().Format(time.RFC3339),
			"Completed At": completedAt,
		}
	}
	return data
}
