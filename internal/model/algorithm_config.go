package model

import "time"

const DefaultAlgorithmConfigName = "default"

// AlgorithmConfig 推荐与准入参数，按版本追加，仅管理员可写
// swagger:model AlgorithmConfig
type AlgorithmConfig struct {
	BaseModel
	Name              string  `gorm:"size:50;uniqueIndex:idx_algo_name_version;not null" json:"name"`
	Version           int     `gorm:"uniqueIndex:idx_algo_name_version;not null" json:"version"`
	Active            bool    `gorm:"index;default:false" json:"active"`
	LanguageWeight    float64 `json:"languageWeight"`
	TopicWeight       float64 `json:"topicWeight"`
	DifficultyPenalty float64 `json:"difficultyPenalty"`
	PrimaryBonus      float64 `json:"primaryBonus"`
	MinScore          float64 `json:"minScore"`
	MaxResults        int     `json:"maxResults"`
	PassThreshold     int     `json:"passThreshold"`
	CooldownMinutes   int     `json:"cooldownMinutes"`
	AssessmentCutoff  float64 `json:"assessmentCutoff"`
	CreatedBy         uint    `json:"createdBy"`
	Note              string  `gorm:"size:255" json:"note"`
}

func (AlgorithmConfig) TableName() string {
	return "algorithm_configs"
}

func (c *AlgorithmConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}
