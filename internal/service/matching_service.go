package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/pkg/logger"
	"collabhub_backend/pkg/monitoring"
	"collabhub_backend/pkg/tracing"
	"context"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// MatchingService 技能匹配推荐
type MatchingService struct {
	ProfileRepo        *repository.SkillProfileRepository
	ProjectRepo        *repository.ProjectRepository
	RecommendationRepo *repository.RecommendationRepository
	AlgoConfig         *AlgorithmConfigService

	Now func() time.Time
}

func NewMatchingService(
	profileRepo *repository.SkillProfileRepository,
	projectRepo *repository.ProjectRepository,
	recommendationRepo *repository.RecommendationRepository,
	algoConfig *AlgorithmConfigService,
) *MatchingService {
	return &MatchingService{
		ProfileRepo:        profileRepo,
		ProjectRepo:        projectRepo,
		RecommendationRepo: recommendationRepo,
		AlgoConfig:         algoConfig,
		Now:                time.Now,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// ScoreProject 纯函数：重合比例以项目需求为分母，没有需求时该项为 0
func ScoreProject(profile *model.SkillProfile, project *model.Project, algo *model.AlgorithmConfig) model.ScoreBreakdown {
	userLangs := make(map[string]struct{}, len(profile.Languages))
	for _, l := range profile.Languages {
		userLangs[l.Language] = struct{}{}
	}
	userTopics := make(map[string]struct{}, len(profile.Topics))
	for _, t := range profile.Topics {
		userTopics[t.Topic] = struct{}{}
	}

	var b model.ScoreBreakdown
	if len(project.Languages) > 0 {
		hit := 0
		for _, l := range project.Languages {
			if _, ok := userLangs[l.Language]; ok {
				hit++
				if l.IsPrimary {
					b.PrimaryMatch = true
				}
			}
		}
		b.LanguageOverlap = float64(hit) / float64(len(project.Languages))
	}
	if len(project.Topics) > 0 {
		hit := 0
		for _, t := range project.Topics {
			if _, ok := userTopics[t.Topic]; ok {
				hit++
			}
		}
		b.TopicOverlap = float64(hit) / float64(len(project.Topics))
	}

	// 难度刻度 1..3，最大差距 2
	mismatch := float64(abs(profile.ExperienceLevel()-model.DifficultyLevel(project.Difficulty))) / 2
	b.DifficultyFit = 1 - mismatch

	score := algo.LanguageWeight*b.LanguageOverlap + algo.TopicWeight*b.TopicOverlap - algo.DifficultyPenalty*mismatch
	if b.PrimaryMatch {
		score += algo.PrimaryBonus
	}
	b.LanguageOverlap = round4(b.LanguageOverlap)
	b.TopicOverlap = round4(b.TopicOverlap)
	b.DifficultyFit = round4(b.DifficultyFit)
	b.Score = round4(score)
	return b
}

type scoredProject struct {
	project   model.Project
	breakdown model.ScoreBreakdown
}

// GetRecommendations 按分数降序返回候选项目，同分时新项目优先
func (s *MatchingService) GetRecommendations(ctx context.Context, userID uint) ([]model.RecommendationItem, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.recommendations", attribute.Int("userId", int(userID)))
	defer span.End()

	var (
		profile    *model.SkillProfile
		algo       *model.AlgorithmConfig
		candidates []model.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = s.ProfileRepo.GetProfile(userID)
		return err
	})
	g.Go(func() error {
		var err error
		algo, err = s.AlgoConfig.Active(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		candidates, err = s.ProjectRepo.ListCandidates(userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scored := make([]scoredProject, 0, len(candidates))
	for _, p := range candidates {
		if !p.IsRecruiting() {
			continue
		}
		b := ScoreProject(profile, &p, algo)
		if b.Score < algo.MinScore {
			continue
		}
		scored = append(scored, scoredProject{project: p, breakdown: b})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.breakdown.Score != b.breakdown.Score {
			return a.breakdown.Score > b.breakdown.Score
		}
		if !a.project.CreatedAt.Equal(b.project.CreatedAt) {
			return a.project.CreatedAt.After(b.project.CreatedAt)
		}
		return a.project.ID > b.project.ID
	})
	if algo.MaxResults > 0 && len(scored) > algo.MaxResults {
		scored = scored[:algo.MaxResults]
	}

	now := s.Now()
	window := s.AlgoConfig.RefreshWindow()
	items := make([]model.RecommendationItem, 0, len(scored))
	for i := range scored {
		sp := &scored[i]
		rec := &model.Recommendation{
			UserID:        userID,
			ProjectID:     sp.project.ID,
			Score:         sp.breakdown.Score,
			Breakdown:     datatypes.NewJSONType(sp.breakdown),
			ConfigVersion: algo.Version,
		}
		if err := s.RecommendationRepo.UpsertWithinWindow(rec, window, now); err != nil {
			return nil, err
		}
		items = append(items, model.RecommendationItem{
			RecommendationID: rec.ID,
			Project:          &sp.project,
			Score:            sp.breakdown.Score,
			Breakdown:        sp.breakdown,
		})
	}

	if err := s.RecommendationRepo.CreateMatchRun(&model.MatchRun{
		UserID:        userID,
		Candidates:    len(candidates),
		Emitted:       len(items),
		ConfigVersion: algo.Version,
	}); err != nil {
		return nil, err
	}
	monitoring.RecommendationsEmitted.Add(float64(len(items)))

	logger.Log.Debug("recommendations computed",
		zap.Uint("userId", userID),
		zap.Int("candidates", len(candidates)),
		zap.Int("emitted", len(items)),
		zap.Int("configVersion", algo.Version),
	)
	return items, nil
}
