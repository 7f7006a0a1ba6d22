package repository

import (
	"context"
	"time"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"

	"gorm.io/gorm"
)

type OutboxGormRepository struct {
	db *gorm.DB
}

func NewOutboxGormRepository(db *gorm.DB) *OutboxGormRepository {
	return &OutboxGormRepository{db: db}
}

func (r *OutboxGormRepository) Insert(ctx context.Context, ev model.OutboxEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return wrapErr("insert outbox event", err)
	}
	return nil
}

func (r *OutboxGormRepository) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("id asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, wrapErr("fetch outbox", err)
	}
	return out, nil
}

func (r *OutboxGormRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ? AND sent_at IS NULL", id).
		Update("sent_at", sentAt)
	if res.Error != nil {
		return wrapErr("mark outbox sent", res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
