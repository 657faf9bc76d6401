package repository

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

type RecommendationRepository struct {
	DB *gorm.DB
}

func NewRecommendationRepository(db *gorm.DB) *RecommendationRepository {
	return &RecommendationRepository{DB: db}
}

func (r *RecommendationRepository) WithTx(tx *gorm.DB) *RecommendationRepository {
	return &RecommendationRepository{DB: tx}
}

func (r *RecommendationRepository) FindByID(id uint) (*model.Recommendation, error) {
	var rec model.Recommendation
	if err := r.DB.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrRecommendationNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindLatest 最近一次对 (user, project) 的推荐，没有时返回 nil, nil
func (r *RecommendationRepository) FindLatest(userID, projectID uint) (*model.Recommendation, error) {
	var rec model.Recommendation
	err := r.DB.Where("user_id = ? AND project_id = ?", userID, projectID).
		Order("refreshed_at DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertWithinWindow 刷新窗口内原地更新分数，窗口外或已有用户反馈时追加新行（历史不删除）
func (r *RecommendationRepository) UpsertWithinWindow(rec *model.Recommendation, window time.Duration, now time.Time) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var existing model.Recommendation
		err := tx.Where("user_id = ? AND project_id = ? AND refreshed_at >= ?", rec.UserID, rec.ProjectID, now.Add(-window)).
			Order("refreshed_at DESC, id DESC").
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// 已反馈的行保留用户当时看到的分数与分解
		if existing.ID == 0 || existing.ActionTaken != nil {
			rec.ID = 0
			rec.RefreshedAt = now
			return tx.Create(rec).Error
		}

		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"score":          rec.Score,
			"breakdown":      rec.Breakdown,
			"config_version": rec.ConfigVersion,
			"refreshed_at":   now,
		}).Error; err != nil {
			return err
		}
		existing.Score = rec.Score
		existing.Breakdown = rec.Breakdown
		existing.ConfigVersion = rec.ConfigVersion
		existing.RefreshedAt = now
		*rec = existing
		return nil
	})
}

func (r *RecommendationRepository) UpdateAction(id uint, action model.RecommendationAction, score *int, at time.Time) error {
	updates := map[string]interface{}{
		"action_taken": action,
		"action_at":    at,
	}
	if score != nil {
		updates["feedback_score"] = *score
	}
	return r.DB.Model(&model.Recommendation{}).Where("id = ?", id).Updates(updates).Error
}

func (r *RecommendationRepository) CreateMatchRun(run *model.MatchRun) error {
	return r.DB.Create(run).Error
}

func (r *RecommendationRepository) CreateDiscovery(event *model.DiscoveryEvent) error {
	return r.DB.Create(event).Error
}
