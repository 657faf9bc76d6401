package repository

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: tx}
}

// Create 写入新尝试；active_key 冲突说明已有进行中的尝试
func (r *AttemptRepository) Create(attempt *model.ChallengeAttempt) error {
	if err := r.DB.Create(attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return util.ErrAttemptInProgress
		}
		return err
	}
	return nil
}

func (r *AttemptRepository) FindByID(id uint) (*model.ChallengeAttempt, error) {
	var a model.ChallengeAttempt
	if err := r.DB.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindActive 返回 (user, project) 的非终态尝试，没有时返回 nil, nil
func (r *AttemptRepository) FindActive(userID, projectID uint) (*model.ChallengeAttempt, error) {
	var a model.ChallengeAttempt
	err := r.DB.Where("active_key = ?", model.ActiveAttemptKey(userID, projectID)).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LatestCooldown 该用户在该项目上最晚的 next_attempt_at
func (r *AttemptRepository) LatestCooldown(userID, projectID uint) (*time.Time, error) {
	var a model.ChallengeAttempt
	err := r.DB.Select("id", "next_attempt_at").
		Where("user_id = ? AND project_id = ? AND next_attempt_at IS NOT NULL", userID, projectID).
		Order("next_attempt_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.NextAttemptAt, nil
}

func (r *AttemptRepository) CountByUserAndProject(userID, projectID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ChallengeAttempt{}).
		Where("user_id = ? AND project_id = ?", userID, projectID).
		Count(&count).Error
	return count, err
}

// Transition 条件更新：只有当前状态在 from 中时才写入，返回是否命中
func (r *AttemptRepository) Transition(id uint, from []model.AttemptState, updates map[string]interface{}) (bool, error) {
	res := r.DB.Model(&model.ChallengeAttempt{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *AttemptRepository) SaveDraft(id uint, code string, at time.Time) (bool, error) {
	return r.Transition(id, []model.AttemptState{model.AttemptStarted}, map[string]interface{}{
		"draft_code":     code,
		"draft_saved_at": at,
	})
}

// ListLapsed 已开始且超过截止时间的尝试
func (r *AttemptRepository) ListLapsed(now time.Time, limit int) ([]model.ChallengeAttempt, error) {
	var attempts []model.ChallengeAttempt
	err := r.DB.Where("state = ? AND deadline IS NOT NULL AND deadline < ?", model.AttemptStarted, now).
		Order("deadline ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

// ListStaleIssued 发放后长期未开始的尝试
func (r *AttemptRepository) ListStaleIssued(before time.Time, limit int) ([]model.ChallengeAttempt, error) {
	var attempts []model.ChallengeAttempt
	err := r.DB.Where("state = ? AND issued_at < ?", model.AttemptIssued, before).
		Order("issued_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListByUser(userID uint, limit int) ([]model.ChallengeAttempt, error) {
	var attempts []model.ChallengeAttempt
	err := r.DB.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&attempts).Error
	return attempts, err
}
