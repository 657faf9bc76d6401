package repository

import (
	"collabhub_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

// AnalyticsRepository 效果分析的只读查询；调用方在同一事务中调用以获得一致快照
type AnalyticsRepository struct {
	DB *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{DB: db}
}

func (r *AnalyticsRepository) WithTx(tx *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{DB: tx}
}

type ActionCount struct {
	Action *string
	Count  int
}

// RecommendationActions 窗口内推荐按反馈动作分组计数（未反馈的 Action 为 nil）
func (r *AnalyticsRepository) RecommendationActions(since *time.Time) ([]ActionCount, error) {
	var rows []ActionCount
	q := r.DB.Model(&model.Recommendation{}).
		Select("action_taken AS action, COUNT(*) AS count").
		Group("action_taken")
	if since != nil {
		q = q.Where("refreshed_at >= ?", *since)
	}
	err := q.Scan(&rows).Error
	return rows, err
}

// MatchRunTotals 窗口内推荐计算的候选数与输出数之和
func (r *AnalyticsRepository) MatchRunTotals(since *time.Time) (candidates int64, emitted int64, err error) {
	q := r.DB.Model(&model.MatchRun{}).
		Select("COALESCE(SUM(candidates), 0), COALESCE(SUM(emitted), 0)")
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	err = q.Row().Scan(&candidates, &emitted)
	return
}

// UnrecommendedDiscoveries 用户自行发现（或手动加入）而此前从未被推荐过的项目数
func (r *AnalyticsRepository) UnrecommendedDiscoveries(since *time.Time) (int64, error) {
	var count int64
	q := r.DB.Table("discovery_events AS e").
		Where("e.deleted_at IS NULL").
		Where(`NOT EXISTS (SELECT 1 FROM recommendations rec
			WHERE rec.user_id = e.user_id AND rec.project_id = e.project_id
			AND rec.deleted_at IS NULL AND rec.created_at <= e.created_at)`)
	if since != nil {
		q = q.Where("e.created_at >= ?", *since)
	}
	err := q.Count(&count).Error
	return count, err
}

type AssessmentRow struct {
	AttemptID uint
	Passed    bool
	RecScore  *float64
}

// AssessmentOutcomes 窗口内已评测的尝试及其关联推荐的分数；沙箱故障与放弃不计入
func (r *AnalyticsRepository) AssessmentOutcomes(since *time.Time) ([]AssessmentRow, error) {
	var rows []AssessmentRow
	q := r.DB.Table("challenge_attempts AS a").
		Select("a.id AS attempt_id, a.passed AS passed, rec.score AS rec_score").
		Joins("LEFT JOIN recommendations rec ON rec.id = a.recommendation_id").
		Where("a.deleted_at IS NULL AND a.sandbox_fault = ?", false).
		Where("a.state IN ?", []model.AttemptState{model.AttemptPassed, model.AttemptFailed, model.AttemptExpired})
	if since != nil {
		q = q.Where("a.finalized_at >= ?", *since)
	}
	err := q.Order("a.id ASC").Scan(&rows).Error
	return rows, err
}

// RecommendationsByAction 窗口内带某个反馈动作的推荐
func (r *AnalyticsRepository) RecommendationsByAction(since *time.Time, action model.RecommendationAction) ([]model.Recommendation, error) {
	var recs []model.Recommendation
	q := r.DB.Where("action_taken = ?", action)
	if since != nil {
		q = q.Where("action_at >= ?", *since)
	}
	err := q.Order("id ASC").Find(&recs).Error
	return recs, err
}
