package model

import (
	"time"

	"gorm.io/datatypes"
)

type RecommendationAction string

const (
	ActionViewed  RecommendationAction = "viewed"
	ActionApplied RecommendationAction = "applied"
	ActionJoined  RecommendationAction = "joined"
	ActionIgnored RecommendationAction = "ignored"
)

func (a RecommendationAction) Valid() bool {
	switch a {
	case ActionViewed, ActionApplied, ActionJoined, ActionIgnored:
		return true
	}
	return false
}

// ScoreBreakdown 推荐得分拆解
type ScoreBreakdown struct {
	LanguageOverlap float64 `json:"languageOverlap"`
	TopicOverlap    float64 `json:"topicOverlap"`
	DifficultyFit   float64 `json:"difficultyFit"`
	PrimaryMatch    bool    `json:"primaryMatch"`
	Score           float64 `json:"score"`
}

// Recommendation 推荐记录：只追加，不删除；刷新窗口内对同一 (user, project) 原地更新
// swagger:model Recommendation
type Recommendation struct {
	BaseModel
	UserID        uint                               `gorm:"index:idx_rec_user_project;not null" json:"userId"`
	ProjectID     uint                               `gorm:"index:idx_rec_user_project;not null" json:"projectId"`
	Score         float64                            `json:"score"`
	Breakdown     datatypes.JSONType[ScoreBreakdown] `json:"breakdown"`
	ConfigVersion int                                `json:"configVersion"`
	ActionTaken   *RecommendationAction              `gorm:"size:20;index" json:"actionTaken,omitempty"`
	ActionAt      *time.Time                         `json:"actionAt,omitempty"`
	FeedbackScore *int                               `json:"feedbackScore,omitempty"`
	RefreshedAt   time.Time                          `json:"refreshedAt"`
}

func (Recommendation) TableName() string {
	return "recommendations"
}

// MatchRun 一次推荐计算的概要，用于估算真阴性
type MatchRun struct {
	BaseModel
	UserID        uint `gorm:"index;not null" json:"userId"`
	Candidates    int  `json:"candidates"`
	Emitted       int  `json:"emitted"`
	ConfigVersion int  `json:"configVersion"`
}

func (MatchRun) TableName() string {
	return "match_runs"
}

const (
	DiscoverySearch     = "search"
	DiscoveryManualJoin = "manual_join"
)

// DiscoveryEvent 非推荐渠道发现/加入项目，作为假阴性近似
type DiscoveryEvent struct {
	BaseModel
	UserID    uint   `gorm:"index;not null" json:"userId"`
	ProjectID uint   `gorm:"index;not null" json:"projectId"`
	Source    string `gorm:"size:20;not null" json:"source"`
}

func (DiscoveryEvent) TableName() string {
	return "discovery_events"
}

// RecommendationItem getRecommendations 的返回项
type RecommendationItem struct {
	RecommendationID uint           `json:"recommendationId"`
	Project          *Project       `json:"project"`
	Score            float64        `json:"score"`
	Breakdown        ScoreBreakdown `json:"breakdown"`
}
