package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/util"
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"
)

// 权重建议所需的最少样本数（joined、ignored 各自）
const minSuggestionSamples = 5

type AnalyticsService struct {
	Repo       *repository.AnalyticsRepository
	AlgoConfig *AlgorithmConfigService
	DB         *gorm.DB

	Now func() time.Time
}

func NewAnalyticsService(repo *repository.AnalyticsRepository, algoConfig *AlgorithmConfigService, db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{
		Repo:       repo,
		AlgoConfig: algoConfig,
		DB:         db,
		Now:        time.Now,
	}
}

// snapshot 所有查询在同一个只读事务中执行
func (s *AnalyticsService) snapshot(ctx context.Context, fn func(repo *repository.AnalyticsRepository) error) error {
	var opts []*sql.TxOptions
	switch s.DB.Dialector.Name() {
	case "mysql", "postgres":
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.Repo.WithTx(tx))
	}, opts...)
}

// GetEffectivenessMetrics type 为 recommendation 或 assessment
func (s *AnalyticsService) GetEffectivenessMetrics(ctx context.Context, metricsType, timeframe string) (*model.EffectivenessMetrics, error) {
	now := s.Now()
	since, err := util.ParseTimeframe(timeframe, now)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = util.Timeframe30d
	}

	result := &model.EffectivenessMetrics{
		Type:        metricsType,
		Timeframe:   timeframe,
		WindowStart: since,
		WindowEnd:   now,
	}

	switch strings.ToLower(metricsType) {
	case "", model.MetricsRecommendation:
		result.Type = model.MetricsRecommendation
		err = s.snapshot(ctx, func(repo *repository.AnalyticsRepository) error {
			return recommendationMatrix(repo, since, result)
		})
	case model.MetricsAssessment:
		algo, aerr := s.AlgoConfig.Active(ctx)
		if aerr != nil {
			return nil, aerr
		}
		result.Type = model.MetricsAssessment
		err = s.snapshot(ctx, func(repo *repository.AnalyticsRepository) error {
			return assessmentMatrix(repo, since, algo.AssessmentCutoff, result)
		})
	default:
		return nil, util.NewValidationError("type", "unknown metrics type %q", metricsType)
	}
	if err != nil {
		return nil, err
	}

	m := result.Matrix
	result.Precision = m.Precision()
	result.Recall = m.Recall()
	result.F1 = m.F1()
	result.Accuracy = m.Accuracy()
	return result, nil
}

// recommendationMatrix joined 为 TP，ignored 为 FP；未推荐却被发现的项目为 FN；被筛掉的候选减去 FN 为 TN
func recommendationMatrix(repo *repository.AnalyticsRepository, since *time.Time, out *model.EffectivenessMetrics) error {
	actions, err := repo.RecommendationActions(since)
	if err != nil {
		return err
	}
	for _, row := range actions {
		out.Samples += row.Count
		if row.Action == nil {
			out.Pending += row.Count
			continue
		}
		switch model.RecommendationAction(*row.Action) {
		case model.ActionJoined:
			out.Matrix.TruePositive += row.Count
		case model.ActionIgnored:
			out.Matrix.FalsePositive += row.Count
		default:
			out.Pending += row.Count
		}
	}

	fn, err := repo.UnrecommendedDiscoveries(since)
	if err != nil {
		return err
	}
	out.Matrix.FalseNegative = int(fn)

	candidates, emitted, err := repo.MatchRunTotals(since)
	if err != nil {
		return err
	}
	tn := candidates - emitted - fn
	if tn < 0 {
		tn = 0
	}
	out.Matrix.TrueNegative = int(tn)
	return nil
}

// assessmentMatrix 预测为关联推荐分数 ≥ cutoff，真实结果为是否通过
func assessmentMatrix(repo *repository.AnalyticsRepository, since *time.Time, cutoff float64, out *model.EffectivenessMetrics) error {
	rows, err := repo.AssessmentOutcomes(since)
	if err != nil {
		return err
	}
	for _, row := range rows {
		predicted := row.RecScore != nil && *row.RecScore >= cutoff
		switch {
		case predicted && row.Passed:
			out.Matrix.TruePositive++
		case predicted && !row.Passed:
			out.Matrix.FalsePositive++
		case !predicted && row.Passed:
			out.Matrix.FalseNegative++
		default:
			out.Matrix.TrueNegative++
		}
	}
	out.Samples = len(rows)
	return nil
}

type breakdownMeans struct {
	language float64
	topic    float64
	mismatch float64
}

func meanBreakdown(recs []model.Recommendation) breakdownMeans {
	var m breakdownMeans
	if len(recs) == 0 {
		return m
	}
	for _, r := range recs {
		b := r.Breakdown.Data()
		m.language += b.LanguageOverlap
		m.topic += b.TopicOverlap
		m.mismatch += 1 - b.DifficultyFit
	}
	n := float64(len(recs))
	m.language /= n
	m.topic /= n
	m.mismatch /= n
	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// SuggestWeights 比较 joined 与 ignored 推荐的得分构成，给出调整建议；不会自动生效
func (s *AnalyticsService) SuggestWeights(ctx context.Context, timeframe string) (*model.WeightSuggestion, error) {
	since, err := util.ParseTimeframe(timeframe, s.Now())
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = util.Timeframe30d
	}
	algo, err := s.AlgoConfig.Active(ctx)
	if err != nil {
		return nil, err
	}

	var joined, ignored []model.Recommendation
	err = s.snapshot(ctx, func(repo *repository.AnalyticsRepository) error {
		var err error
		if joined, err = repo.RecommendationsByAction(since, model.ActionJoined); err != nil {
			return err
		}
		ignored, err = repo.RecommendationsByAction(since, model.ActionIgnored)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &model.WeightSuggestion{
		Timeframe:         timeframe,
		BasedOnVersion:    algo.Version,
		JoinedSamples:     len(joined),
		IgnoredSamples:    len(ignored),
		LanguageWeight:    algo.LanguageWeight,
		TopicWeight:       algo.TopicWeight,
		DifficultyPenalty: algo.DifficultyPenalty,
	}
	if len(joined) < minSuggestionSamples || len(ignored) < minSuggestionSamples {
		out.Reason = fmt.Sprintf("insufficient samples: need at least %d joined and %d ignored recommendations", minSuggestionSamples, minSuggestionSamples)
		return out, nil
	}

	j, i := meanBreakdown(joined), meanBreakdown(ignored)
	lw := algo.LanguageWeight * clamp(1+0.5*(j.language-i.language), 0.5, 1.5)
	tw := algo.TopicWeight * clamp(1+0.5*(j.topic-i.topic), 0.5, 1.5)
	// ignored 的难度偏差更大时加重惩罚
	dp := algo.DifficultyPenalty * clamp(1+0.5*(i.mismatch-j.mismatch), 0.5, 1.5)

	// 语言与主题权重之和保持不变
	if sum := lw + tw; sum > 0 {
		scale := (algo.LanguageWeight + algo.TopicWeight) / sum
		lw *= scale
		tw *= scale
	}
	out.LanguageWeight = round4(lw)
	out.TopicWeight = round4(tw)
	out.DifficultyPenalty = round4(dp)
	out.Changed = out.LanguageWeight != round4(algo.LanguageWeight) ||
		out.TopicWeight != round4(algo.TopicWeight) ||
		out.DifficultyPenalty != round4(algo.DifficultyPenalty)
	out.Reason = fmt.Sprintf("based on %d joined and %d ignored recommendations", len(joined), len(ignored))
	return out, nil
}
