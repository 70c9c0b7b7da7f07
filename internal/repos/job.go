package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// JobRepo is the narrow record-store interface the pipeline mutates jobs
// through. Column naming and storage format stay behind it.
type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *domain.Job) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Job, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status domain.JobStatus, progress float64, errorMessage *string) error
	UpdateProgress(ctx context.Context, tx *gorm.DB, id uuid.UUID, progress float64) error
	UpdateRawText(ctx context.Context, tx *gorm.DB, id uuid.UUID, text string) error
	UpdateStructuredText(ctx context.Context, tx *gorm.DB, id uuid.UUID, text string, detectedLanguage string) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) tx(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, job *domain.Job) error {
	if job == nil {
		return errors.New("job required")
	}
	return r.tx(tx).WithContext(ctx).Create(job).Error
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Job, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job domain.Job
	err := r.tx(tx).WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status domain.JobStatus, progress float64, errorMessage *string) error {
	updates := map[string]interface{}{
		"status":     status,
		"progress":   progress,
		"updated_at": time.Now(),
	}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	return r.tx(tx).WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRepo) UpdateProgress(ctx context.Context, tx *gorm.DB, id uuid.UUID, progress float64) error {
	return r.tx(tx).WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

func (r *jobRepo) UpdateRawText(ctx context.Context, tx *gorm.DB, id uuid.UUID, text string) error {
	return r.tx(tx).WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"raw_text":   text,
			"updated_at": time.Now(),
		}).Error
}

func (r *jobRepo) UpdateStructuredText(ctx context.Context, tx *gorm.DB, id uuid.UUID, text string, detectedLanguage string) error {
	return r.tx(tx).WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"structured_text":   text,
			"detected_language": detectedLanguage,
			"updated_at":        time.Now(),
		}).Error
}
