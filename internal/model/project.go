package model

import (
	"time"

	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectRecruiting ProjectStatus = "recruiting"
	ProjectActive     ProjectStatus = "active"
	ProjectClosed     ProjectStatus = "closed"
)

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// DifficultyLevel 映射到 1..3，未知难度按 intermediate 处理
func DifficultyLevel(d string) int {
	switch d {
	case DifficultyBeginner:
		return 1
	case DifficultyAdvanced:
		return 3
	}
	return 2
}

// swagger:model Project
type Project struct {
	BaseModel
	OwnerID        uint          `gorm:"index;not null" json:"ownerId"`
	Name           string        `gorm:"size:255;not null" json:"name"`
	Status         ProjectStatus `gorm:"size:20;default:'recruiting'" json:"status"`
	Difficulty     string        `gorm:"size:20;default:'intermediate'" json:"difficulty"`
	MaxMembers     int           `gorm:"default:5" json:"maxMembers"`
	CurrentMembers int           `gorm:"default:1" json:"currentMembers"`

	Languages []ProjectLanguage `gorm:"foreignKey:ProjectID" json:"languages,omitempty"`
	Topics    []ProjectTopic    `gorm:"foreignKey:ProjectID" json:"topics,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}

// IsRecruiting 仍在招募且未满员；与 Recruiting 查询条件保持一致
func (p *Project) IsRecruiting() bool {
	return p.Status == ProjectRecruiting && p.CurrentMembers < p.MaxMembers
}

// Recruiting IsRecruiting 的查询版本
func Recruiting(db *gorm.DB) *gorm.DB {
	return db.Where("projects.status = ? AND projects.current_members < projects.max_members", ProjectRecruiting)
}

// PrimaryLanguage 返回主语言，没有标记时返回第一个
func (p *Project) PrimaryLanguage() string {
	for _, l := range p.Languages {
		if l.IsPrimary {
			return l.Language
		}
	}
	if len(p.Languages) > 0 {
		return p.Languages[0].Language
	}
	return ""
}

// swagger:model ProjectLanguage
type ProjectLanguage struct {
	BaseModel
	ProjectID uint   `gorm:"uniqueIndex:idx_project_language;not null" json:"projectId"`
	Language  string `gorm:"uniqueIndex:idx_project_language;size:50;not null" json:"language"`
	IsPrimary bool   `gorm:"default:false" json:"isPrimary"`
}

func (ProjectLanguage) TableName() string {
	return "project_languages"
}

// swagger:model ProjectTopic
type ProjectTopic struct {
	BaseModel
	ProjectID uint   `gorm:"uniqueIndex:idx_project_topic;not null" json:"projectId"`
	Topic     string `gorm:"uniqueIndex:idx_project_topic;size:80;not null" json:"topic"`
	IsPrimary bool   `gorm:"default:false" json:"isPrimary"`
}

func (ProjectTopic) TableName() string {
	return "project_topics"
}

const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"

	MemberStatusActive = "active"
)

// ProjectMember (project, user) 唯一，保证准入幂等
// swagger:model ProjectMember
type ProjectMember struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID uint      `gorm:"uniqueIndex:idx_project_member;not null" json:"projectId"`
	UserID    uint      `gorm:"uniqueIndex:idx_project_member;not null" json:"userId"`
	Role      string    `gorm:"size:20;default:'member'" json:"role"`
	Status    string    `gorm:"size:20;default:'active'" json:"status"`
	AttemptID *uint     `json:"attemptId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}
