package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/models"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
	"github.com/noah-isme/elective-match-api/pkg/export"
	"github.com/noah-isme/elective-match-api/pkg/storage"
)

type enrollmentRunReader interface {
	ListByRun(ctx context.Context, runID string) ([]models.Enrollment, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

type exportArchive interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type linkSigner interface {
	Sign(runID, relPath string) (string, time.Time, error)
	Verify(token string) (runID, relPath string, expiresAt time.Time, err error)
	TTL() time.Duration
}

// RunExport is a rendered workflow run.
type RunExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

var runExportColumns = []string{"batch", "student", "course", "student_rank", "course_rank", "source"}

// RunDownload is an archived export opened for streaming. Callers close File.
type RunDownload struct {
	Filename    string
	ContentType string
	Size        int64
	File        *os.File
}

// RunExportService answers queries about finished workflow runs.
type RunExportService struct {
	store       *MatchResultStore
	enrollments enrollmentRunReader
	renderers   map[string]renderer
	validator   *validator.Validate
	logger      *zap.Logger

	archive   exportArchive
	signer    linkSigner
	apiPrefix string
}

// NewRunExportService constructs the service with CSV and PDF renderers.
func NewRunExportService(store *MatchResultStore, enrollments enrollmentRunReader, validate *validator.Validate, logger *zap.Logger) *RunExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunExportService{
		store:       store,
		enrollments: enrollments,
		renderers: map[string]renderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		validator: validate,
		logger:    logger,
	}
}

// Summary returns the stored summary of a workflow run.
func (s *RunExportService) Summary(ctx context.Context, runID string) (*models.WorkflowSummary, error) {
	summary, ok := s.store.GetWorkflow(ctx, runID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow run not found")
	}
	return &summary, nil
}

// Enrollments lists the enrollments persisted by a run.
func (s *RunExportService) Enrollments(ctx context.Context, runID string) ([]models.Enrollment, error) {
	enrollments, err := s.enrollments.ListByRun(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list run enrollments")
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}
	return enrollments, nil
}

// Export renders the assignments of a run. The format defaults to csv.
func (s *RunExportService) Export(ctx context.Context, runID string, req dto.ExportRunRequest) (*RunExport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	format := req.Format
	if format == "" {
		format = "csv"
	}
	r := s.renderers[format]

	summary, err := s.Summary(ctx, runID)
	if err != nil {
		return nil, err
	}
	data, err := r.Render(RunDataset(*summary))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("workflow run exported", zap.String("run_id", runID), zap.String("format", format), zap.Int("bytes", len(data)))
	return &RunExport{
		Filename:    fmt.Sprintf("assignments-%s.%s", runID, r.Extension()),
		ContentType: r.ContentType(),
		Data:        data,
	}, nil
}

// WithArchive enables link delivery: exports are stored in archive and
// served back through signed tokens under apiPrefix.
func (s *RunExportService) WithArchive(archive exportArchive, signer linkSigner, apiPrefix string) *RunExportService {
	s.archive = archive
	s.signer = signer
	s.apiPrefix = strings.TrimRight(apiPrefix, "/")
	return s
}

// Publish renders a run, stores the file and returns a signed download link.
func (s *RunExportService) Publish(ctx context.Context, runID string, req dto.ExportRunRequest) (*dto.ExportLink, error) {
	if s.archive == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "export links are not configured")
	}
	out, err := s.Export(ctx, runID, req)
	if err != nil {
		return nil, err
	}

	relPath, err := s.archive.Save(path.Join("runs", runID, out.Filename), out.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Sign(runID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}
	return &dto.ExportLink{
		RunID:     runID,
		Filename:  out.Filename,
		URL:       fmt.Sprintf("%s/exports/%s", s.apiPrefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Download resolves a signed token to its archived export.
func (s *RunExportService) Download(ctx context.Context, token string) (*RunDownload, error) {
	if s.archive == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	runID, relPath, _, err := s.signer.Verify(token)
	switch {
	case errors.Is(err, storage.ErrLinkExpired):
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "download link expired")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download link")
	}

	file, err := s.archive.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export not found")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export")
	}

	filename := path.Base(relPath)
	contentType := "application/octet-stream"
	for _, r := range s.renderers {
		if strings.HasSuffix(filename, "."+r.Extension()) {
			contentType = r.ContentType()
			break
		}
	}
	s.logger.Info("workflow export downloaded", zap.String("run_id", runID), zap.String("file", relPath))
	return &RunDownload{Filename: filename, ContentType: contentType, Size: info.Size(), File: file}, nil
}

// RunArchiveJanitor removes archived exports once their links have expired.
func (s *RunExportService) RunArchiveJanitor(ctx context.Context, interval time.Duration) {
	if s.archive == nil || s.signer == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.archive.CleanupOlderThan(s.signer.TTL())
			if err != nil {
				s.logger.Warn("export archive cleanup failed", zap.Error(err))
				continue
			}
			if len(deleted) > 0 {
				s.logger.Debug("expired exports removed", zap.Int("count", len(deleted)))
			}
		}
	}
}

// RunDataset tabulates the assignments of every successful batch of a run.
func RunDataset(summary models.WorkflowSummary) export.Dataset {
	data := export.Dataset{
		Title: "Elective assignments " + summary.RunID,
		Notes: []string{
			fmt.Sprintf("Status: %s (%s)", summary.Status, summary.Message),
			fmt.Sprintf("Batches: %d total, %d successful, %d failed, %d fallback",
				summary.TotalBatches, summary.SuccessfulBatches, summary.FailedBatches, summary.FallbackBatches),
			fmt.Sprintf("Enrollments created: %d", summary.EnrollmentsCreated),
		},
		Columns: runExportColumns,
		Rows:    [][]string{},
	}
	for i := 0; i < summary.TotalBatches; i++ {
		result, ok := summary.Results[i]
		if !ok || !result.Succeeded() {
			continue
		}
		source := string(models.EnrollmentSourceStableMatch)
		if result.Fallback {
			source = string(models.EnrollmentSourceFallback)
		}
		for _, a := range result.Assignments {
			data.Rows = append(data.Rows, []string{
				strconv.Itoa(i + 1),
				a.StudentID,
				a.CourseID,
				strconv.Itoa(a.StudentPreferenceRank),
				strconv.Itoa(a.CoursePreferenceRank),
				source,
			})
		}
	}
	return data
}
