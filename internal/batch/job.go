package batch

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"gorm.io/gorm"
)

// JobStatus is the state machine of a batch job:
// pending -> in_progress -> done | failed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job record does not exist.
var ErrJobNotFound = errors.New("batch: job not found")

// JobError is one entry of a failed job's error list.
type JobError struct {
	Message string `json:"message"`
}

// Job is the persisted record tracking one commit or rollback. It is created
// once per invocation and mutated only by the continuation that owns it.
type Job struct {
	JobID             string    `gorm:"column:job_id;primaryKey;size:190;not null"`
	Status            JobStatus `gorm:"column:status;size:32;not null"`
	Mode              string    `gorm:"column:mode;size:32;not null"`
	Collection        string    `gorm:"column:collection;size:32;not null"`
	Note              string    `gorm:"column:note;size:512;not null;default:''"`
	Actor             string    `gorm:"column:actor;size:190;not null;default:''"`
	Counts            Counters  `gorm:"embedded;embeddedPrefix:count_"`
	BackupFile        string    `gorm:"column:backup_file;size:512;not null;default:''"`
	OriginalJobID     string    `gorm:"column:original_job_id;size:190;not null;default:''"`
	StartedAtSeconds  int64     `gorm:"column:started_at_s;not null;index:idx_batch_jobs_started"`
	FinishedAtSeconds *int64    `gorm:"column:finished_at_s"`
	ErrorsJSON        string    `gorm:"column:errors_json;type:text;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Job) TableName() string {
	return "batch_jobs"
}

// ErrorList decodes the persisted error entries.
func (j Job) ErrorList() []JobError {
	if j.ErrorsJSON == "" {
		return nil
	}
	var list []JobError
	if err := json.Unmarshal([]byte(j.ErrorsJSON), &list); err != nil {
		return []JobError{{Message: j.ErrorsJSON}}
	}
	return list
}

// AppendError records one more error entry on the job.
func (j *Job) AppendError(message string) {
	list := append(j.ErrorList(), JobError{Message: message})
	encoded, err := json.Marshal(list)
	if err != nil {
		return
	}
	j.ErrorsJSON = string(encoded)
}

// JobStore persists job records.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	Recent(ctx context.Context, limit int) ([]Job, error)
}

// GormJobStore implements JobStore on the shared database handle.
type GormJobStore struct {
	db *gorm.DB
}

// NewGormJobStore constructs a job store over the provided database handle.
func NewGormJobStore(db *gorm.DB) (*GormJobStore, error) {
	if db == nil {
		return nil, errors.New("batch: database handle is required")
	}
	return &GormJobStore{db: db}, nil
}

func (s *GormJobStore) Create(ctx context.Context, job *Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *GormJobStore) Update(ctx context.Context, job *Job) error {
	return s.db.WithContext(ctx).Save(job).Error
}

func (s *GormJobStore) Get(ctx context.Context, jobID string) (Job, error) {
	var job Job
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

func (s *GormJobStore) Recent(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	err := s.db.WithContext(ctx).
		Order("started_at_s DESC, job_id DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// MemJobStore is an in-memory JobStore used by tests.
type MemJobStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemJobStore returns an empty in-memory job store.
func NewMemJobStore() *MemJobStore {
	return &MemJobStore{jobs: map[string]Job{}}
}

func (s *MemJobStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemJobStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemJobStore) Get(_ context.Context, jobID string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemJobStore) Recent(_ context.Context, limit int) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartedAtSeconds != jobs[j].StartedAtSeconds {
			return jobs[i].StartedAtSeconds > jobs[j].StartedAtSeconds
		}
		return jobs[i].JobID > jobs[j].JobID
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
