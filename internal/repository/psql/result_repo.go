package psql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drill-evaluator/internal/domain/entity"
)

type GormResultRepo struct {
	DB *gorm.DB
}

func NewGormResultRepo(db *gorm.DB) *GormResultRepo {
	return &GormResultRepo{DB: db}
}

// Upsert persists a result, keeping the first write for a request_id. Repeated
// calls after a worker retry are no-ops, so at most one row per request exists.
func (r *GormResultRepo) Upsert(ctx context.Context, result *entity.EvaluationResult) error {
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoNothing: true,
		}).
		Create(result).Error
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (r *GormResultRepo) GetByRequestID(ctx context.Context, requestID string) (*entity.EvaluationResult, error) {
	return r.getBy(ctx, "request_id = ?", requestID)
}

func (r *GormResultRepo) GetByJobID(ctx context.Context, jobID string) (*entity.EvaluationResult, error) {
	return r.getBy(ctx, "job_id = ?", jobID)
}

func (r *GormResultRepo) getBy(ctx context.Context, query, arg string) (*entity.EvaluationResult, error) {
	result := &entity.EvaluationResult{}
	err := r.DB.WithContext(ctx).First(result, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return result, nil
}
