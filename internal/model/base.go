package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// swagger:model
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func GenerateUUID() string {
	return uuid.New().String()
}

// AllModels 列出需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&UserLanguage{},
		&UserTopic{},
		&Project{},
		&ProjectLanguage{},
		&ProjectTopic{},
		&ProjectMember{},
		&Challenge{},
		&ChallengeAttempt{},
		&Recommendation{},
		&MatchRun{},
		&DiscoveryEvent{},
		&AlgorithmConfig{},
	}
}
