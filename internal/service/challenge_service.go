package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/logger"
	"collabhub_backend/pkg/monitoring"
	"collabhub_backend/pkg/sandbox"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ChallengeService 资格判断、发题与项目题目维护
type ChallengeService struct {
	ProjectRepo        *repository.ProjectRepository
	ChallengeRepo      *repository.ChallengeRepository
	AttemptRepo        *repository.AttemptRepository
	RecommendationRepo *repository.RecommendationRepository
	AlgoConfig         *AlgorithmConfigService
	Attempts           *AttemptService
	Bank               *ChallengeBank
}

func NewChallengeService(
	projectRepo *repository.ProjectRepository,
	challengeRepo *repository.ChallengeRepository,
	attemptRepo *repository.AttemptRepository,
	recommendationRepo *repository.RecommendationRepository,
	algoConfig *AlgorithmConfigService,
	attempts *AttemptService,
	bank *ChallengeBank,
) *ChallengeService {
	return &ChallengeService{
		ProjectRepo:        projectRepo,
		ChallengeRepo:      challengeRepo,
		AttemptRepo:        attemptRepo,
		RecommendationRepo: recommendationRepo,
		AlgoConfig:         algoConfig,
		Attempts:           attempts,
		Bank:               bank,
	}
}

// CanAttempt 判断顺序：owner、已是成员、进行中、冷却、不再招募
func (s *ChallengeService) CanAttempt(ctx context.Context, userID, projectID uint) (*model.Eligibility, error) {
	project, err := s.ProjectRepo.FindByID(projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID == userID {
		return &model.Eligibility{Reason: model.ReasonProjectOwner}, nil
	}
	member, err := s.ProjectRepo.IsMember(projectID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return &model.Eligibility{Reason: model.ReasonAlreadyMember}, nil
	}

	active, err := s.Attempts.ReconcileActive(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		id := active.ID
		return &model.Eligibility{Reason: model.ReasonAttemptInProgress, ActiveAttemptID: &id}, nil
	}

	next, err := s.AttemptRepo.LatestCooldown(userID, projectID)
	if err != nil {
		return nil, err
	}
	if next != nil && s.Attempts.Now().Before(*next) {
		return &model.Eligibility{Reason: model.ReasonCooldown, NextAttemptAt: next}, nil
	}

	if !project.IsRecruiting() {
		return &model.Eligibility{Reason: model.ReasonNotRecruiting}, nil
	}
	return &model.Eligibility{CanAttempt: true, Reason: model.ReasonOK}, nil
}

// Issue 已有进行中的尝试时原样返回（Resumed），保证同一 (user, project) 只有一个
func (s *ChallengeService) Issue(ctx context.Context, userID, projectID uint) (*model.IssueResult, error) {
	project, err := s.ProjectRepo.FindByID(projectID)
	if err != nil {
		return nil, err
	}
	algo, err := s.AlgoConfig.Active(ctx)
	if err != nil {
		return nil, err
	}

	var out *model.IssueResult
	err = s.Attempts.withLock(ctx, userID, projectID, func(ctx context.Context) error {
		member, err := s.ProjectRepo.IsMember(projectID, userID)
		if err != nil {
			return err
		}
		if member || project.OwnerID == userID {
			return util.ErrAlreadyMember
		}

		active, err := s.AttemptRepo.FindActive(userID, projectID)
		if err != nil {
			return err
		}
		if active != nil {
			active, err = s.Attempts.expireIfLapsedLocked(ctx, active.ID)
			if err != nil {
				return err
			}
			if !active.State.IsTerminal() {
				out = resumed(active)
				return nil
			}
		}

		now := s.Attempts.Now()
		next, err := s.AttemptRepo.LatestCooldown(userID, projectID)
		if err != nil {
			return err
		}
		if next != nil && now.Before(*next) {
			return &util.CooldownError{RetryAfter: *next}
		}
		if !project.IsRecruiting() {
			return util.ErrProjectNotRecruiting
		}

		prior, err := s.AttemptRepo.CountByUserAndProject(userID, projectID)
		if err != nil {
			return err
		}
		snapshot, err := s.selectChallenge(project, int(prior), algo)
		if err != nil {
			return err
		}

		key := model.ActiveAttemptKey(userID, projectID)
		attempt := &model.ChallengeAttempt{
			UserID:          userID,
			ProjectID:       projectID,
			ChallengeID:     snapshot.ChallengeID,
			ChallengeOrigin: snapshot.Origin,
			Challenge:       datatypes.NewJSONType(snapshot),
			State:           model.AttemptIssued,
			ActiveKey:       &key,
			IssuedAt:        now,
		}
		rec, err := s.RecommendationRepo.FindLatest(userID, projectID)
		if err != nil {
			return err
		}
		if rec != nil {
			attempt.RecommendationID = &rec.ID
		}

		if err := s.AttemptRepo.Create(attempt); err != nil {
			// 其他实例抢先创建（本地锁不跨进程）
			if errors.Is(err, util.ErrAttemptInProgress) {
				existing, ferr := s.AttemptRepo.FindActive(userID, projectID)
				if ferr != nil {
					return ferr
				}
				if existing != nil {
					out = resumed(existing)
					return nil
				}
			}
			return err
		}

		monitoring.AttemptTransitions.WithLabelValues(string(model.AttemptIssued)).Inc()
		logger.Log.Info("challenge issued",
			zap.Uint("attemptId", attempt.ID),
			zap.Uint("userId", userID),
			zap.Uint("projectId", projectID),
			zap.String("origin", string(snapshot.Origin)),
			zap.String("challengeKey", snapshot.Key),
		)
		out = &model.IssueResult{
			AttemptID: attempt.ID,
			Attempt:   attempt,
			Challenge: snapshot.Public(),
		}
		return nil
	})
	return out, err
}

func resumed(a *model.ChallengeAttempt) *model.IssueResult {
	return &model.IssueResult{
		AttemptID: a.ID,
		Attempt:   a,
		Challenge: a.Snapshot().Public(),
		Resumed:   true,
	}
}

// selectChallenge 优先使用项目自带题目，按历史尝试次数轮换；没有则从题库生成临时题
func (s *ChallengeService) selectChallenge(project *model.Project, prior int, algo *model.AlgorithmConfig) (model.ChallengeSnapshot, error) {
	challenges, err := s.ChallengeRepo.ListByProject(project.ID)
	if err != nil {
		return model.ChallengeSnapshot{}, err
	}
	if len(challenges) > 0 {
		c := challenges[prior%len(challenges)]
		return persistentSnapshot(&c, algo), nil
	}

	language := project.PrimaryLanguage()
	if language == "" || s.Bank == nil {
		return model.ChallengeSnapshot{}, util.ErrNoChallengeAvailable
	}
	snapshot, ok := s.Bank.Synthesize(language, project.Difficulty, prior)
	if !ok {
		return model.ChallengeSnapshot{}, util.ErrNoChallengeAvailable
	}
	snapshot.PassThreshold = algo.PassThreshold
	return snapshot, nil
}

func persistentSnapshot(c *model.Challenge, algo *model.AlgorithmConfig) model.ChallengeSnapshot {
	id := c.ID
	threshold := algo.PassThreshold
	if c.PassThreshold != nil {
		threshold = *c.PassThreshold
	}
	tests := make([]model.TestCase, len(c.TestCases))
	copy(tests, c.TestCases)
	return model.ChallengeSnapshot{
		Origin:           model.ChallengePersistent,
		ChallengeID:      &id,
		Key:              fmt.Sprintf("challenge-%d", c.ID),
		Title:            c.Title,
		Language:         c.Language,
		Difficulty:       c.Difficulty,
		Statement:        c.Statement,
		StarterCode:      c.StarterCode,
		TestCases:        tests,
		TimeLimitMinutes: c.TimeLimitMinutes,
		PassThreshold:    threshold,
	}
}

type ChallengeRequest struct {
	Title            string           `json:"title" binding:"required"`
	Language         string           `json:"language" binding:"required"`
	Difficulty       string           `json:"difficulty"`
	Statement        string           `json:"statement"`
	StarterCode      string           `json:"starterCode"`
	TestCases        []model.TestCase `json:"testCases"`
	TimeLimitMinutes *int             `json:"timeLimitMinutes"`
	PassThreshold    *int             `json:"passThreshold"`
}

func validateChallenge(req *ChallengeRequest) (string, error) {
	language, ok := NormalizeLanguage(req.Language)
	if !ok {
		return "", util.NewValidationError("language", "unrecognized language %q", req.Language)
	}
	if _, ok := sandbox.LookupLanguage(language); !ok {
		return "", util.NewValidationError("language", "language %q is not supported by the sandbox", language)
	}
	switch req.Difficulty {
	case "":
		req.Difficulty = model.DifficultyIntermediate
	case model.DifficultyBeginner, model.DifficultyIntermediate, model.DifficultyAdvanced:
	default:
		return "", util.NewValidationError("difficulty", "unknown difficulty %q", req.Difficulty)
	}
	if len(req.TestCases) == 0 {
		return "", util.NewValidationError("testCases", "at least one test case is required")
	}
	for i := range req.TestCases {
		tc := &req.TestCases[i]
		if tc.Weight <= 0 {
			return "", util.NewValidationError("testCases", "test %d: weight must be positive", i)
		}
		switch tc.Comparison {
		case "":
			tc.Comparison = model.CompareExact
		case model.CompareExact, model.CompareTrim, model.CompareFloat:
		default:
			return "", util.NewValidationError("testCases", "test %d: unknown comparison %q", i, tc.Comparison)
		}
		if tc.Tolerance < 0 {
			return "", util.NewValidationError("testCases", "test %d: tolerance must not be negative", i)
		}
	}
	if req.TimeLimitMinutes != nil && *req.TimeLimitMinutes < 0 {
		return "", util.NewValidationError("timeLimitMinutes", "must not be negative")
	}
	if req.PassThreshold != nil && (*req.PassThreshold < 0 || *req.PassThreshold > 100) {
		return "", util.NewValidationError("passThreshold", "must be between 0 and 100")
	}
	return language, nil
}

func (s *ChallengeService) ownedProject(ownerID, projectID uint) (*model.Project, error) {
	project, err := s.ProjectRepo.FindByID(projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != ownerID {
		return nil, util.ErrPermissionDenied
	}
	return project, nil
}

func (s *ChallengeService) CreateChallenge(ctx context.Context, ownerID, projectID uint, req ChallengeRequest) (*model.Challenge, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	language, err := validateChallenge(&req)
	if err != nil {
		return nil, err
	}

	pid := projectID
	c := &model.Challenge{
		ProjectID:        &pid,
		AuthorID:         ownerID,
		Title:            req.Title,
		Language:         language,
		Difficulty:       req.Difficulty,
		Statement:        req.Statement,
		StarterCode:      req.StarterCode,
		TestCases:        datatypes.JSONSlice[model.TestCase](req.TestCases),
		TimeLimitMinutes: req.TimeLimitMinutes,
		PassThreshold:    req.PassThreshold,
	}
	if err := s.ChallengeRepo.Create(c); err != nil {
		return nil, err
	}
	logger.Log.Info("challenge created", zap.Uint("challengeId", c.ID), zap.Uint("projectId", projectID))
	return c, nil
}

// UpdateChallenge 已被尝试引用的题目不可修改
func (s *ChallengeService) UpdateChallenge(ctx context.Context, ownerID, projectID, challengeID uint, req ChallengeRequest) (*model.Challenge, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	c, err := s.ChallengeRepo.FindByID(challengeID)
	if err != nil {
		return nil, err
	}
	if c.ProjectID == nil || *c.ProjectID != projectID {
		return nil, util.ErrChallengeNotFound
	}
	referenced, err := s.ChallengeRepo.IsReferenced(challengeID)
	if err != nil {
		return nil, err
	}
	if referenced {
		return nil, util.ErrChallengeLocked
	}
	language, err := validateChallenge(&req)
	if err != nil {
		return nil, err
	}

	c.Title = req.Title
	c.Language = language
	c.Difficulty = req.Difficulty
	c.Statement = req.Statement
	c.StarterCode = req.StarterCode
	c.TestCases = datatypes.JSONSlice[model.TestCase](req.TestCases)
	c.TimeLimitMinutes = req.TimeLimitMinutes
	c.PassThreshold = req.PassThreshold
	if err := s.ChallengeRepo.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChallengeService) ListChallenges(ctx context.Context, ownerID, projectID uint) ([]model.Challenge, error) {
	if _, err := s.ownedProject(ownerID, projectID); err != nil {
		return nil, err
	}
	return s.ChallengeRepo.ListByProject(projectID)
}
