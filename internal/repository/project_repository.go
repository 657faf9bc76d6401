package repository

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectRepository struct {
	DB *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{DB: db}
}

func (r *ProjectRepository) WithTx(tx *gorm.DB) *ProjectRepository {
	return &ProjectRepository{DB: tx}
}

func (r *ProjectRepository) withRequirements() *gorm.DB {
	return r.DB.
		Preload("Languages", func(db *gorm.DB) *gorm.DB { return db.Order("is_primary DESC, id ASC") }).
		Preload("Topics", func(db *gorm.DB) *gorm.DB { return db.Order("is_primary DESC, id ASC") })
}

// Create 创建项目并写入 owner 成员记录
func (r *ProjectRepository) Create(project *model.Project) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.ProjectMember{
			ProjectID: project.ID,
			UserID:    project.OwnerID,
			Role:      model.MemberRoleOwner,
			Status:    model.MemberStatusActive,
		}).Error
	})
}

func (r *ProjectRepository) FindByID(id uint) (*model.Project, error) {
	var p model.Project
	if err := r.withRequirements().First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrProjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListCandidates 招募中、未满员、非本人创建且尚未加入的项目
func (r *ProjectRepository) ListCandidates(userID uint) ([]model.Project, error) {
	var projects []model.Project
	err := r.withRequirements().
		Scopes(model.Recruiting).
		Where("owner_id <> ?", userID).
		Where("NOT EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = projects.id AND pm.user_id = ?)", userID).
		Order("created_at DESC, id DESC").
		Find(&projects).Error
	return projects, err
}

// ReplaceRequirements 整体替换语言与主题需求
func (r *ProjectRepository) ReplaceRequirements(projectID uint, difficulty string, languages []model.ProjectLanguage, topics []model.ProjectTopic) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if difficulty != "" {
			if err := tx.Model(&model.Project{}).Where("id = ?", projectID).Update("difficulty", difficulty).Error; err != nil {
				return err
			}
		}
		if err := tx.Unscoped().Where("project_id = ?", projectID).Delete(&model.ProjectLanguage{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("project_id = ?", projectID).Delete(&model.ProjectTopic{}).Error; err != nil {
			return err
		}
		for i := range languages {
			languages[i].ProjectID = projectID
		}
		for i := range topics {
			topics[i].ProjectID = projectID
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

func (r *ProjectRepository) IsMember(projectID, userID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *ProjectRepository) CountMembers(projectID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.ProjectMember{}).Where("project_id = ?", projectID).Count(&count).Error
	return count, err
}

// AddMember 插入或忽略；返回是否真正插入了新行
func (r *ProjectRepository) AddMember(member *model.ProjectMember) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(member)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ProjectRepository) IncrementMembers(projectID uint) error {
	return r.DB.Model(&model.Project{}).
		Where("id = ?", projectID).
		UpdateColumn("current_members", gorm.Expr("current_members + ?", 1)).Error
}
