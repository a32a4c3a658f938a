package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docinsight/internal/model"
)

// SummaryRepository stores summaries and insights in MySQL. Insights are only
// ever written or removed in the same transaction as their summary.
type SummaryRepository struct {
	db *gorm.DB
}

func NewSummaryRepository(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

func (r *SummaryRepository) CreateWithInsights(ctx context.Context, summary *model.Summary, insights []model.Insight) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(summary).Error; err != nil {
			return fmt.Errorf("create summary failed: %w", err)
		}
		if len(insights) == 0 {
			return nil
		}
		for i := range insights {
			insights[i].SummaryID = summary.ID
		}
		if err := tx.Create(&insights).Error; err != nil {
			return fmt.Errorf("create insights failed: %w", err)
		}
		return nil
	})
}

func (r *SummaryRepository) GetByID(ctx context.Context, id string) (*model.Summary, error) {
	var summary model.Summary
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&summary).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get summary failed: %w", err)
	}
	return &summary, nil
}

func (r *SummaryRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Summary, error) {
	var summaries []model.Summary
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("list summaries failed: %w", err)
	}
	return summaries, nil
}

func (r *SummaryRepository) ListInsights(ctx context.Context, summaryID string) ([]model.Insight, error) {
	var insights []model.Insight
	if err := r.db.WithContext(ctx).Where("summary_id = ?", summaryID).Order("position ASC").Find(&insights).Error; err != nil {
		return nil, fmt.Errorf("list insights failed: %w", err)
	}
	return insights, nil
}

func (r *SummaryRepository) UpdateContent(ctx context.Context, id, title, content string, modifiedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Summary{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":       title,
			"content":     content,
			"modified_at": modifiedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update summary failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update summary failed: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *SummaryRepository) DeleteWithInsights(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("summary_id = ?", id).Delete(&model.Insight{}).Error; err != nil {
			return fmt.Errorf("delete insights failed: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&model.Summary{}).Error; err != nil {
			return fmt.Errorf("delete summary failed: %w", err)
		}
		return nil
	})
}
