package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tripnest/service-booking/internal/domain/commit"
	"github.com/tripnest/service-booking/internal/inventory"
)

// CommitAttemptModel is the GORM model for the commit_attempts table.
type CommitAttemptModel struct {
	Key              string          `gorm:"column:idempotency_key;primaryKey;size:200"`
	SessionID        uuid.UUID       `gorm:"type:uuid;index;not null"`
	SessionVersion   int64           `gorm:"not null"`
	Stage            string          `gorm:"not null;size:20;index"`
	Holds            json.RawMessage `gorm:"type:jsonb;not null"`
	AuthorizationRef string          `gorm:"size:128"`
	Reference        string          `gorm:"size:20"`
	ErrorCode        string          `gorm:"size:64"`
	ErrorMessage     string          `gorm:"size:1000"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for the GORM model.
func (CommitAttemptModel) TableName() string {
	return "commit_attempts"
}

// GormCommitRepository is the GORM-based implementation of commit.Repository.
type GormCommitRepository struct {
	db *gorm.DB
}

var _ commit.Repository = (*GormCommitRepository)(nil)

// NewGormCommitRepository creates a new GormCommitRepository.
func NewGormCommitRepository(db *gorm.DB) *GormCommitRepository {
	return &GormCommitRepository{db: db}
}

// Begin inserts the attempt, or returns the one already stored under its key.
func (r *GormCommitRepository) Begin(ctx context.Context, a *commit.Attempt) (*commit.Attempt, bool, error) {
	model, err := toAttemptModel(a)
	if err != nil {
		return nil, false, fmt.Errorf("failed to convert commit attempt to model: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, false, fmt.Errorf("failed to begin commit attempt: %w", err)
		}
		existing, err := r.Get(ctx, a.Key)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return a.Clone(), true, nil
}

// Save overwrites the attempt's progress.
func (r *GormCommitRepository) Save(ctx context.Context, a *commit.Attempt) error {
	model, err := toAttemptModel(a)
	if err != nil {
		return fmt.Errorf("failed to convert commit attempt to model: %w", err)
	}
	result := r.db.WithContext(ctx).
		Model(&CommitAttemptModel{}).
		Where("idempotency_key = ?", model.Key).
		Updates(map[string]interface{}{
			"stage":             model.Stage,
			"holds":             model.Holds,
			"authorization_ref": model.AuthorizationRef,
			"reference":         model.Reference,
			"error_code":        model.ErrorCode,
			"error_message":     model.ErrorMessage,
			"updated_at":        model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save commit attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return commit.ErrAttemptNotFound
	}
	return nil
}

// Get retrieves an attempt by idempotency key.
func (r *GormCommitRepository) Get(ctx context.Context, key string) (*commit.Attempt, error) {
	var model CommitAttemptModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, commit.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to find commit attempt: %w", err)
	}
	return toDomainAttempt(&model)
}

// ListStale returns unfinished attempts last updated before cutoff.
func (r *GormCommitRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*commit.Attempt, error) {
	var models []CommitAttemptModel
	if err := r.db.WithContext(ctx).
		Where("stage NOT IN ? AND updated_at < ?", []string{string(commit.StageCompleted), string(commit.StageFailed)}, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale commit attempts: %w", err)
	}

	attempts := make([]*commit.Attempt, len(models))
	for i := range models {
		a, err := toDomainAttempt(&models[i])
		if err != nil {
			return nil, err
		}
		attempts[i] = a
	}
	return attempts, nil
}

// --- Conversion Helpers ---

func toAttemptModel(a *commit.Attempt) (*CommitAttemptModel, error) {
	holds := a.Holds
	if holds == nil {
		holds = []inventory.HoldToken{}
	}
	holdsJSON, err := json.Marshal(holds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal holds: %w", err)
	}
	return &CommitAttemptModel{
		Key:              a.Key,
		SessionID:        a.SessionID,
		SessionVersion:   a.SessionVersion,
		Stage:            string(a.Stage),
		Holds:            holdsJSON,
		AuthorizationRef: a.AuthorizationRef,
		Reference:        a.Reference,
		ErrorCode:        a.ErrorCode,
		ErrorMessage:     a.ErrorMessage,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}, nil
}

func toDomainAttempt(m *CommitAttemptModel) (*commit.Attempt, error) {
	var holds []inventory.HoldToken
	if err := json.Unmarshal(m.Holds, &holds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holds: %w", err)
	}
	return &commit.Attempt{
		Key:              m.Key,
		SessionID:        m.SessionID,
		SessionVersion:   m.SessionVersion,
		Stage:            commit.Stage(m.Stage),
		Holds:            holds,
		AuthorizationRef: m.AuthorizationRef,
		Reference:        m.Reference,
		ErrorCode:        m.ErrorCode,
		ErrorMessage:     m.ErrorMessage,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}
