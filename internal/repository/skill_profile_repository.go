package repository

import (
	"collabhub_backend/internal/model"

	"gorm.io/gorm"
)

type SkillProfileRepository struct {
	DB *gorm.DB
}

func NewSkillProfileRepository(db *gorm.DB) *SkillProfileRepository {
	return &SkillProfileRepository{DB: db}
}

func (r *SkillProfileRepository) WithTx(tx *gorm.DB) *SkillProfileRepository {
	return &SkillProfileRepository{DB: tx}
}

// GetProfile 语言按 position 排序；没有任何记录时返回空画像
func (r *SkillProfileRepository) GetProfile(userID uint) (*model.SkillProfile, error) {
	profile := &model.SkillProfile{UserID: userID}
	if err := r.DB.Where("user_id = ?", userID).Order("position ASC, id ASC").Find(&profile.Languages).Error; err != nil {
		return nil, err
	}
	if err := r.DB.Where("user_id = ?", userID).Order("id ASC").Find(&profile.Topics).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

// ReplaceProfile 整体替换；物理删除旧行，否则软删除记录会占用唯一索引
func (r *SkillProfileRepository) ReplaceProfile(userID uint, languages []model.UserLanguage, topics []model.UserTopic) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&model.UserLanguage{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&model.UserTopic{}).Error; err != nil {
			return err
		}
		for i := range languages {
			languages[i].UserID = userID
		}
		for i := range topics {
			topics[i].UserID = userID
		}
		if len(languages) > 0 {
			if err := tx.Create(&languages).Error; err != nil {
				return err
			}
		}
		if len(topics) > 0 {
			if err := tx.Create(&topics).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
