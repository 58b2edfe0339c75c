package batch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pourhouselabs/barback/internal/catalog"
	"github.com/pourhouselabs/barback/internal/metrics"
	"go.uber.org/zap"
)

const (
	opServiceNew = "batch.service.new"
	opPreview    = "batch.preview"
	opCommit     = "batch.commit"
	opRollback   = "batch.rollback"
	opJobLookup  = "batch.job_lookup"
	opListJobs   = "batch.list_jobs"
	opRunJob     = "batch.run_job"

	// recentJobsLimit bounds the job listing endpoint.
	recentJobsLimit = 20
)

var (
	errMissingStore     = errors.New("document store is required")
	errMissingJobStore  = errors.New("job store is required")
	errMissingBackupDir = errors.New("backup directory is required")
	noOpLogger          = zap.NewNop()
)

// IDProvider issues identifiers for job records.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ServiceConfig describes the dependencies of the batch service.
type ServiceConfig struct {
	Store      catalog.Store
	Jobs       JobStore
	BackupDir  string
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service runs the preview/commit/rollback pipeline.
type Service struct {
	store      catalog.Store
	jobs       JobStore
	backupDir  string
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger

	background sync.WaitGroup
}

// NewService validates the configuration and constructs the batch service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Jobs == nil {
		return nil, newServiceError(opServiceNew, "missing_job_store", errMissingJobStore)
	}
	if cfg.BackupDir == "" {
		return nil, newServiceError(opServiceNew, "missing_backup_dir", errMissingBackupDir)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:      cfg.Store,
		jobs:       cfg.Jobs,
		backupDir:  cfg.BackupDir,
		clock:      clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// PreviewResponse is the dry-run result returned to the caller.
type PreviewResponse struct {
	JobID      string   `json:"jobId"`
	WillUpdate int      `json:"willUpdate"`
	Skipped    int      `json:"skipped"`
	Missing    []string `json:"missing"`
	Rows       []Row    `json:"rows"`
	Warnings   Warnings `json:"warnings"`
}

// Preview computes the dry run for a request. No writes occur.
func (s *Service) Preview(ctx context.Context, req Request) (PreviewResponse, error) {
	started := s.clock()
	preview, err := BuildPreview(ctx, s.store, req)
	metrics.ObservePreview(req.Collection, req.Mode, s.clock().Sub(started).Seconds(), err)
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			return PreviewResponse{}, err
		}
		s.logError(opPreview, "build_failed", err, zap.String("collection", req.Collection))
		return PreviewResponse{}, newServiceError(opPreview, "build_failed", err)
	}

	tempID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPreview, "id_generation_failed", err)
		return PreviewResponse{}, newServiceError(opPreview, "id_generation_failed", err)
	}

	return PreviewResponse{
		JobID:      "temp-" + tempID,
		WillUpdate: len(preview.Rows),
		Skipped:    preview.Skipped,
		Missing:    preview.Missing,
		Rows:       preview.Rows,
		Warnings:   preview.Warnings,
	}, nil
}

// CommitRequest extends the preview body with row selection and bookkeeping.
type CommitRequest struct {
	Request
	SelectIDs []string `json:"selectIds,omitempty"`
	Note      string   `json:"note,omitempty"`
	Actor     string   `json:"-"`
}

// Commit re-derives the preview, captures the backup, records a pending job
// and schedules the write phase in the background. The returned job is the
// record as created; callers poll for progress. A previously computed preview
// is never trusted: documents changed in between are re-read here.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (Job, error) {
	preview, err := BuildPreview(ctx, s.store, req.Request)
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			return Job{}, err
		}
		s.logError(opCommit, "preview_failed", err, zap.String("collection", req.Collection))
		return Job{}, newServiceError(opCommit, "preview_failed", err)
	}

	selected := preview.Rows
	if len(req.SelectIDs) > 0 {
		wanted := make(map[string]struct{}, len(req.SelectIDs))
		for _, id := range req.SelectIDs {
			wanted[id] = struct{}{}
		}
		selected = make([]Row, 0, len(preview.Rows))
		for _, row := range preview.Rows {
			if _, ok := wanted[row.ID]; ok {
				selected = append(selected, row)
			}
		}
	}
	if len(selected) == 0 {
		return Job{}, errValidationf("no rows selected for commit")
	}

	now := s.clock().UTC()
	backupPath := filepath.Join(s.backupDir, BackupFileName(now))
	// The backup covers every matched row, not just the selected subset, and
	// must be on disk before any live document is touched.
	if err := WriteBackup(backupPath, preview.Rows); err != nil {
		s.logError(opCommit, "backup_write_failed", err, zap.String("backup_file", backupPath))
		return Job{}, newServiceError(opCommit, "backup_write_failed", err)
	}

	jobID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCommit, "id_generation_failed", err)
		return Job{}, newServiceError(opCommit, "id_generation_failed", err)
	}

	collection, _ := catalog.NormalizeCollection(req.Collection)
	job := Job{
		JobID:      jobID,
		Status:     JobStatusPending,
		Mode:       req.Mode,
		Collection: collection,
		Note:       req.Note,
		Actor:      req.Actor,
		Counts: Counters{
			Matched: len(preview.Rows),
			Skipped: preview.Skipped,
		},
		BackupFile:       backupPath,
		StartedAtSeconds: now.Unix(),
	}
	if err := s.jobs.Create(ctx, &job); err != nil {
		s.logError(opCommit, "job_create_failed", err, zap.String("job_id", jobID))
		return Job{}, newServiceError(opCommit, "job_create_failed", err)
	}

	s.background.Add(1)
	go s.runJob(job, collection, selected)

	return job, nil
}

// Rollback replays a job's backup snapshot as a new job that writes the
// pre-mutation values back.
func (s *Service) Rollback(ctx context.Context, jobID, actor string) (Job, error) {
	original, err := s.jobs.Get(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return Job{}, err
	}
	if err != nil {
		s.logError(opRollback, "job_lookup_failed", err, zap.String("job_id", jobID))
		return Job{}, newServiceError(opRollback, "job_lookup_failed", err)
	}
	if original.BackupFile == "" {
		return Job{}, errValidationf("job %s has no backup file", jobID)
	}

	backup, err := ReadBackup(original.BackupFile)
	if err != nil {
		s.logError(opRollback, "backup_read_failed", err,
			zap.String("job_id", jobID),
			zap.String("backup_file", original.BackupFile))
		return Job{}, newServiceError(opRollback, "backup_read_failed", err)
	}
	rows := rollbackRows(backup)
	if len(rows) == 0 {
		return Job{}, errValidationf("backup for job %s holds no rows", jobID)
	}

	newID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRollback, "id_generation_failed", err)
		return Job{}, newServiceError(opRollback, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	job := Job{
		JobID:            newID,
		Status:           JobStatusPending,
		Mode:             ModeRollback,
		Collection:       original.Collection,
		Actor:            actor,
		Counts:           Counters{Matched: len(rows)},
		BackupFile:       original.BackupFile,
		OriginalJobID:    original.JobID,
		StartedAtSeconds: now.Unix(),
	}
	if err := s.jobs.Create(ctx, &job); err != nil {
		s.logError(opRollback, "job_create_failed", err, zap.String("job_id", newID))
		return Job{}, newServiceError(opRollback, "job_create_failed", err)
	}

	s.background.Add(1)
	go s.runJob(job, original.Collection, rows)

	return job, nil
}

// Job returns one job record by ID.
func (s *Service) Job(ctx context.Context, jobID string) (Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return Job{}, err
	}
	if err != nil {
		s.logError(opJobLookup, "query_failed", err, zap.String("job_id", jobID))
		return Job{}, newServiceError(opJobLookup, "query_failed", err)
	}
	return job, nil
}

// RecentJobs lists the most recently started jobs, newest first.
func (s *Service) RecentJobs(ctx context.Context) ([]Job, error) {
	jobs, err := s.jobs.Recent(ctx, recentJobsLimit)
	if err != nil {
		s.logError(opListJobs, "query_failed", err)
		return nil, newServiceError(opListJobs, "query_failed", err)
	}
	return jobs, nil
}

// Wait blocks until every scheduled background write phase has finished.
// Used during shutdown and by tests.
func (s *Service) Wait() {
	s.background.Wait()
}

// runJob is the background continuation owning a job record. It is the only
// writer of the record after creation.
func (s *Service) runJob(job Job, collection string, rows []Row) {
	defer s.background.Done()

	// Detached from the originating request: the client already has its
	// response and polls for status.
	ctx := context.Background()

	job.Status = JobStatusInProgress
	if err := s.jobs.Update(ctx, &job); err != nil {
		s.logError(opRunJob, "status_update_failed", err, zap.String("job_id", job.JobID))
	}

	err := updateDocsInChunks(ctx, s.store, collection, rows, &job.Counts, func(counts Counters) error {
		job.Counts = counts
		return s.jobs.Update(ctx, &job)
	})

	finished := s.clock().UTC().Unix()
	job.FinishedAtSeconds = &finished

	if err != nil {
		job.Status = JobStatusFailed
		job.Counts.Errors++
		job.AppendError(err.Error())
		metrics.ObserveJob(job.Mode, string(JobStatusFailed))
		s.logError(opRunJob, "write_phase_failed", err,
			zap.String("job_id", job.JobID),
			zap.Int("written", job.Counts.Written))
	} else {
		job.Status = JobStatusDone
		metrics.ObserveJob(job.Mode, string(JobStatusDone))
	}

	if err := s.jobs.Update(ctx, &job); err != nil {
		s.logError(opRunJob, "final_update_failed", err, zap.String("job_id", job.JobID))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("batch service error", attrs...)
}
