package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/logger"
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdmissionService 评测结束后的准入：通过则加入项目，未通过则进入冷却
type AdmissionService struct {
	ProjectRepo        *repository.ProjectRepository
	AttemptRepo        *repository.AttemptRepository
	RecommendationRepo *repository.RecommendationRepository
	AlgoConfig         *AlgorithmConfigService
	DB                 *gorm.DB
}

func NewAdmissionService(
	projectRepo *repository.ProjectRepository,
	attemptRepo *repository.AttemptRepository,
	recommendationRepo *repository.RecommendationRepository,
	algoConfig *AlgorithmConfigService,
	db *gorm.DB,
) *AdmissionService {
	return &AdmissionService{
		ProjectRepo:        projectRepo,
		AttemptRepo:        attemptRepo,
		RecommendationRepo: recommendationRepo,
		AlgoConfig:         algoConfig,
		DB:                 db,
	}
}

// Apply 在终结事务内调用；attempt 已是终态
func (s *AdmissionService) Apply(tx *gorm.DB, attempt *model.ChallengeAttempt, now time.Time, algo *model.AlgorithmConfig) (*model.AdmissionResult, error) {
	result := &model.AdmissionResult{AttemptID: attempt.ID, Passed: attempt.Passed}
	if attempt.Passed {
		inserted, err := s.grantMembership(tx, attempt, now)
		if err != nil {
			return nil, err
		}
		result.ProjectJoined = true
		result.NewMember = inserted
		return result, nil
	}

	next, err := s.applyCooldown(tx, attempt, now, algo)
	if err != nil {
		return nil, err
	}
	result.NextAttemptAt = next
	return result, nil
}

// grantMembership 成员插入或忽略；只有真正插入时才增加成员数
func (s *AdmissionService) grantMembership(tx *gorm.DB, attempt *model.ChallengeAttempt, now time.Time) (bool, error) {
	attemptID := attempt.ID
	projects := s.ProjectRepo.WithTx(tx)
	inserted, err := projects.AddMember(&model.ProjectMember{
		ProjectID: attempt.ProjectID,
		UserID:    attempt.UserID,
		Role:      model.MemberRoleMember,
		Status:    model.MemberStatusActive,
		AttemptID: &attemptID,
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}
	if err := projects.IncrementMembers(attempt.ProjectID); err != nil {
		return false, err
	}

	recs := s.RecommendationRepo.WithTx(tx)
	rec, err := recs.FindLatest(attempt.UserID, attempt.ProjectID)
	if err != nil {
		return false, err
	}
	if rec != nil {
		if rec.ActionTaken == nil || *rec.ActionTaken != model.ActionJoined {
			if err := recs.UpdateAction(rec.ID, model.ActionJoined, nil, now); err != nil {
				return false, err
			}
		}
	} else if err := recs.CreateDiscovery(&model.DiscoveryEvent{
		UserID:    attempt.UserID,
		ProjectID: attempt.ProjectID,
		Source:    model.DiscoveryManualJoin,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AdmissionService) applyCooldown(tx *gorm.DB, attempt *model.ChallengeAttempt, now time.Time, algo *model.AlgorithmConfig) (*time.Time, error) {
	cooldown := algo.Cooldown()
	if cooldown <= 0 {
		return nil, nil
	}
	next := now.Add(cooldown)
	if err := tx.Model(&model.ChallengeAttempt{}).
		Where("id = ?", attempt.ID).
		Update("next_attempt_at", next).Error; err != nil {
		return nil, err
	}
	attempt.NextAttemptAt = &next
	return &next, nil
}

// AfterEvaluation 对已终结的尝试重新执行准入，可重复调用
func (s *AdmissionService) AfterEvaluation(ctx context.Context, attemptID uint) (*model.AdmissionResult, error) {
	algo, err := s.AlgoConfig.Active(ctx)
	if err != nil {
		return nil, err
	}

	var result *model.AdmissionResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := s.AttemptRepo.WithTx(tx).FindByID(attemptID)
		if err != nil {
			return err
		}
		if !attempt.State.IsTerminal() {
			return util.ErrAttemptInProgress
		}

		result = &model.AdmissionResult{AttemptID: attempt.ID, Passed: attempt.Passed}
		if attempt.Passed {
			finalized := time.Now()
			if attempt.FinalizedAt != nil {
				finalized = *attempt.FinalizedAt
			}
			inserted, err := s.grantMembership(tx, attempt, finalized)
			if err != nil {
				return err
			}
			result.ProjectJoined = true
			result.NewMember = inserted
			return nil
		}

		// 放弃且从未开始的尝试没有冷却
		if attempt.NextAttemptAt != nil || attempt.State == model.AttemptAbandoned || attempt.FinalizedAt == nil {
			result.NextAttemptAt = attempt.NextAttemptAt
			return nil
		}
		next, err := s.applyCooldown(tx, attempt, *attempt.FinalizedAt, algo)
		if err != nil {
			return err
		}
		result.NextAttemptAt = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("admission re-applied",
		zap.Uint("attemptId", attemptID),
		zap.Bool("passed", result.Passed),
		zap.Bool("newMember", result.NewMember),
	)
	return result, nil
}
