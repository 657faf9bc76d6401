package repository

import (
	"collabhub_backend/internal/model"
	"errors"

	"gorm.io/gorm"
)

type AlgorithmConfigRepository struct {
	DB *gorm.DB
}

func NewAlgorithmConfigRepository(db *gorm.DB) *AlgorithmConfigRepository {
	return &AlgorithmConfigRepository{DB: db}
}

// FindActive 当前生效版本，没有时返回 nil, nil
func (r *AlgorithmConfigRepository) FindActive(name string) (*model.AlgorithmConfig, error) {
	var cfg model.AlgorithmConfig
	err := r.DB.Where("name = ? AND active = ?", name, true).Order("version DESC").First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *AlgorithmConfigRepository) ListVersions(name string) ([]model.AlgorithmConfig, error) {
	var versions []model.AlgorithmConfig
	err := r.DB.Where("name = ?", name).Order("version DESC").Find(&versions).Error
	return versions, err
}

// AppendVersion 新版本号 = 当前最大版本 + 1，并成为唯一生效版本
func (r *AlgorithmConfigRepository) AppendVersion(cfg *model.AlgorithmConfig) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		if err := tx.Model(&model.AlgorithmConfig{}).
			Where("name = ?", cfg.Name).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.AlgorithmConfig{}).
			Where("name = ? AND active = ?", cfg.Name, true).
			Update("active", false).Error; err != nil {
			return err
		}
		cfg.ID = 0
		cfg.Version = maxVersion + 1
		cfg.Active = true
		return tx.Create(cfg).Error
	})
}
