package service

import (
	"collabhub_backend/internal/config"
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/logger"
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AlgorithmConfigService 推荐权重、通过线与冷却时长；数据库版本优先，配置文件提供默认值
type AlgorithmConfigService struct {
	Repo     *repository.AlgorithmConfigRepository
	defaults atomic.Pointer[config.Config]
}

func NewAlgorithmConfigService(repo *repository.AlgorithmConfigRepository, cfg *config.Config) *AlgorithmConfigService {
	s := &AlgorithmConfigService{Repo: repo}
	s.defaults.Store(cfg)
	return s
}

// UpdateDefaults 配置热更新回调
func (s *AlgorithmConfigService) UpdateDefaults(cfg *config.Config) {
	s.defaults.Store(cfg)
}

func (s *AlgorithmConfigService) Defaults() *config.Config {
	return s.defaults.Load()
}

func (s *AlgorithmConfigService) RefreshWindow() time.Duration {
	return s.defaults.Load().Matching.RefreshWindow
}

// DefaultAlgorithmConfig 由配置文件构造的第 0 版参数
func DefaultAlgorithmConfig(cfg *config.Config) *model.AlgorithmConfig {
	return &model.AlgorithmConfig{
		Name:              model.DefaultAlgorithmConfigName,
		Version:           0,
		Active:            true,
		LanguageWeight:    cfg.Matching.LanguageWeight,
		TopicWeight:       cfg.Matching.TopicWeight,
		DifficultyPenalty: cfg.Matching.DifficultyPenalty,
		PrimaryBonus:      cfg.Matching.PrimaryBonus,
		MinScore:          cfg.Matching.MinScore,
		MaxResults:        cfg.Matching.MaxResults,
		PassThreshold:     cfg.Admission.PassThreshold,
		CooldownMinutes:   int(cfg.Admission.Cooldown / time.Minute),
		AssessmentCutoff:  cfg.Matching.AssessmentCutoff,
	}
}

// EnsureSeeded 表为空时写入第 1 版
func (s *AlgorithmConfigService) EnsureSeeded(ctx context.Context) error {
	active, err := s.Repo.FindActive(model.DefaultAlgorithmConfigName)
	if err != nil || active != nil {
		return err
	}
	seed := DefaultAlgorithmConfig(s.defaults.Load())
	seed.Note = "seeded from config defaults"
	if err := s.Repo.AppendVersion(seed); err != nil {
		return err
	}
	logger.Log.Info("algorithm config seeded", zap.Int("version", seed.Version))
	return nil
}

// Active 当前生效参数；数据库没有记录时返回配置文件默认值（version 0）
func (s *AlgorithmConfigService) Active(ctx context.Context) (*model.AlgorithmConfig, error) {
	active, err := s.Repo.FindActive(model.DefaultAlgorithmConfigName)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return DefaultAlgorithmConfig(s.defaults.Load()), nil
	}
	return active, nil
}

func (s *AlgorithmConfigService) Versions(ctx context.Context) ([]model.AlgorithmConfig, error) {
	return s.Repo.ListVersions(model.DefaultAlgorithmConfigName)
}

// ApplyAlgorithmConfigRequest 未给出的字段沿用当前版本
type ApplyAlgorithmConfigRequest struct {
	LanguageWeight    *float64 `json:"languageWeight"`
	TopicWeight       *float64 `json:"topicWeight"`
	DifficultyPenalty *float64 `json:"difficultyPenalty"`
	PrimaryBonus      *float64 `json:"primaryBonus"`
	MinScore          *float64 `json:"minScore"`
	MaxResults        *int     `json:"maxResults"`
	PassThreshold     *int     `json:"passThreshold"`
	CooldownMinutes   *int     `json:"cooldownMinutes"`
	AssessmentCutoff  *float64 `json:"assessmentCutoff"`
	Note              string   `json:"note"`
}

// ApplyVersion 追加新版本并使其生效（仅管理员，由路由层保证）
func (s *AlgorithmConfigService) ApplyVersion(ctx context.Context, adminID uint, req ApplyAlgorithmConfigRequest) (*model.AlgorithmConfig, error) {
	current, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	next := *current
	next.BaseModel = model.BaseModel{}
	next.CreatedBy = adminID
	next.Note = req.Note

	if req.LanguageWeight != nil {
		next.LanguageWeight = *req.LanguageWeight
	}
	if req.TopicWeight != nil {
		next.TopicWeight = *req.TopicWeight
	}
	if req.DifficultyPenalty != nil {
		next.DifficultyPenalty = *req.DifficultyPenalty
	}
	if req.PrimaryBonus != nil {
		next.PrimaryBonus = *req.PrimaryBonus
	}
	if req.MinScore != nil {
		next.MinScore = *req.MinScore
	}
	if req.MaxResults != nil {
		next.MaxResults = *req.MaxResults
	}
	if req.PassThreshold != nil {
		next.PassThreshold = *req.PassThreshold
	}
	if req.CooldownMinutes != nil {
		next.CooldownMinutes = *req.CooldownMinutes
	}
	if req.AssessmentCutoff != nil {
		next.AssessmentCutoff = *req.AssessmentCutoff
	}

	if err := validateAlgorithmConfig(&next); err != nil {
		return nil, err
	}
	if err := s.Repo.AppendVersion(&next); err != nil {
		return nil, err
	}

	logger.Log.Info("algorithm config applied",
		zap.Uint("adminId", adminID),
		zap.Int("version", next.Version),
		zap.Float64("languageWeight", next.LanguageWeight),
		zap.Float64("topicWeight", next.TopicWeight),
		zap.Float64("difficultyPenalty", next.DifficultyPenalty),
		zap.Int("passThreshold", next.PassThreshold),
	)
	return &next, nil
}

func validateAlgorithmConfig(c *model.AlgorithmConfig) error {
	if c.LanguageWeight < 0 || c.TopicWeight < 0 || c.DifficultyPenalty < 0 || c.PrimaryBonus < 0 {
		return util.NewValidationError("weights", "weights must not be negative")
	}
	if c.LanguageWeight+c.TopicWeight == 0 {
		return util.NewValidationError("weights", "language and topic weight cannot both be zero")
	}
	if c.MaxResults < 1 || c.MaxResults > 200 {
		return util.NewValidationError("maxResults", "must be between 1 and 200")
	}
	if c.PassThreshold < 0 || c.PassThreshold > 100 {
		return util.NewValidationError("passThreshold", "must be between 0 and 100")
	}
	if c.CooldownMinutes < 0 {
		return util.NewValidationError("cooldownMinutes", "must not be negative")
	}
	if c.AssessmentCutoff < 0 || c.AssessmentCutoff > 1 {
		return util.NewValidationError("assessmentCutoff", "must be between 0 and 1")
	}
	return nil
}
