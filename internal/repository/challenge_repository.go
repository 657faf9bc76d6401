package repository

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"errors"

	"gorm.io/gorm"
)

type ChallengeRepository struct {
	DB *gorm.DB
}

func NewChallengeRepository(db *gorm.DB) *ChallengeRepository {
	return &ChallengeRepository{DB: db}
}

func (r *ChallengeRepository) Create(challenge *model.Challenge) error {
	return r.DB.Create(challenge).Error
}

func (r *ChallengeRepository) Update(challenge *model.Challenge) error {
	return r.DB.Save(challenge).Error
}

func (r *ChallengeRepository) FindByID(id uint) (*model.Challenge, error) {
	var c model.Challenge
	if err := r.DB.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrChallengeNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListByProject 按创建顺序，轮换选题依赖这个顺序
func (r *ChallengeRepository) ListByProject(projectID uint) ([]model.Challenge, error) {
	var challenges []model.Challenge
	err := r.DB.Where("project_id = ?", projectID).Order("id ASC").Find(&challenges).Error
	return challenges, err
}

// IsReferenced 是否已有尝试引用该题
func (r *ChallengeRepository) IsReferenced(challengeID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.ChallengeAttempt{}).Where("challenge_id = ?", challengeID).Count(&count).Error
	return count > 0, err
}
