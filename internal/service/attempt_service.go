package service

import (
	"collabhub_backend/internal/config"
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/lock"
	"collabhub_backend/pkg/logger"
	"collabhub_backend/pkg/monitoring"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxCodeBytes 单次提交/草稿的代码上限
const MaxCodeBytes = 64 * 1024

const sweepBatchSize = 100

// AttemptService 尝试生命周期：issued → started → (submitted) → passed | failed | expired，或 abandoned
type AttemptService struct {
	AttemptRepo *repository.AttemptRepository
	Evaluator   *EvaluationService
	Admission   *AdmissionService
	AlgoConfig  *AlgorithmConfigService
	Artifacts   *ArtifactService
	Locker      lock.Locker
	DB          *gorm.DB

	Now      func() time.Time
	settings atomic.Pointer[config.AdmissionConfig]
}

func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	evaluator *EvaluationService,
	admission *AdmissionService,
	algoConfig *AlgorithmConfigService,
	artifacts *ArtifactService,
	locker lock.Locker,
	db *gorm.DB,
	cfg config.AdmissionConfig,
) *AttemptService {
	s := &AttemptService{
		AttemptRepo: attemptRepo,
		Evaluator:   evaluator,
		Admission:   admission,
		AlgoConfig:  algoConfig,
		Artifacts:   artifacts,
		Locker:      locker,
		DB:          db,
		Now:         time.Now,
	}
	s.settings.Store(&cfg)
	return s
}

func (s *AttemptService) UpdateSettings(cfg config.AdmissionConfig) {
	s.settings.Store(&cfg)
}

func attemptLockKey(userID, projectID uint) string {
	return fmt.Sprintf("attempt:%d:%d", userID, projectID)
}

// withLock (user, project) 维度串行化；等待超过 lock_wait 返回 ErrLockTimeout
func (s *AttemptService) withLock(ctx context.Context, userID, projectID uint, fn func(ctx context.Context) error) error {
	wait := s.settings.Load().LockWait
	lockCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	unlock, err := s.Locker.Lock(lockCtx, attemptLockKey(userID, projectID))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return util.ErrLockTimeout
		}
		return err
	}
	defer unlock()
	return fn(ctx)
}

// owned 非本人的尝试一律视为不存在
func (s *AttemptService) owned(userID, attemptID uint) (*model.ChallengeAttempt, error) {
	a, err := s.AttemptRepo.FindByID(attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, util.ErrAttemptNotFound
	}
	return a, nil
}

func checkCode(code string) error {
	if len(code) > MaxCodeBytes {
		return util.NewValidationError("code", "code exceeds %d bytes", MaxCodeBytes)
	}
	return nil
}

func view(a *model.ChallengeAttempt) *model.AttemptView {
	return &model.AttemptView{
		Attempt:   a,
		Challenge: a.Snapshot().Public(),
		DraftCode: a.DraftCode,
	}
}

// Start issued → started，开始计时；已开始时直接返回
func (s *AttemptService) Start(ctx context.Context, userID, attemptID uint) (*model.AttemptView, error) {
	a, err := s.owned(userID, attemptID)
	if err != nil {
		return nil, err
	}

	var out *model.AttemptView
	err = s.withLock(ctx, a.UserID, a.ProjectID, func(ctx context.Context) error {
		current, err := s.expireIfLapsedLocked(ctx, a.ID)
		if err != nil {
			return err
		}
		switch current.State {
		case model.AttemptStarted:
			out = view(current)
			return nil
		case model.AttemptIssued:
		default:
			return util.ErrAttemptAlreadyFinalized
		}

		now := s.Now()
		updates := map[string]interface{}{
			"state":      model.AttemptStarted,
			"started_at": now,
		}
		var deadline *time.Time
		if limit := current.Snapshot().TimeLimitMinutes; limit != nil && *limit > 0 {
			d := now.Add(time.Duration(*limit) * time.Minute)
			deadline = &d
			updates["deadline"] = d
		}
		ok, err := s.AttemptRepo.Transition(current.ID, []model.AttemptState{model.AttemptIssued}, updates)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrAttemptAlreadyFinalized
		}
		current.State = model.AttemptStarted
		current.StartedAt = &now
		current.Deadline = deadline
		monitoring.AttemptTransitions.WithLabelValues(string(model.AttemptStarted)).Inc()
		logger.Log.Info("attempt started",
			zap.Uint("attemptId", current.ID),
			zap.Uint("userId", current.UserID),
			zap.Uint("projectId", current.ProjectID),
		)
		out = view(current)
		return nil
	})
	return out, err
}

// SaveDraft 服务端保存的草稿用于超时自动提交
func (s *AttemptService) SaveDraft(ctx context.Context, userID, attemptID uint, code string) (*model.ChallengeAttempt, error) {
	if err := checkCode(code); err != nil {
		return nil, err
	}
	a, err := s.owned(userID, attemptID)
	if err != nil {
		return nil, err
	}

	var out *model.ChallengeAttempt
	err = s.withLock(ctx, a.UserID, a.ProjectID, func(ctx context.Context) error {
		current, err := s.AttemptRepo.FindByID(a.ID)
		if err != nil {
			return err
		}
		now := s.Now()
		switch {
		case current.State == model.AttemptIssued:
			return util.ErrAttemptNotStarted
		case current.State.IsTerminal():
			return util.ErrAttemptAlreadyFinalized
		case current.Lapsed(now):
			if _, err := s.finalize(ctx, current, current.DraftCode, now); err != nil {
				return err
			}
			return util.ErrAttemptDeadlinePassed
		}

		ok, err := s.AttemptRepo.SaveDraft(current.ID, code, now)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrAttemptAlreadyFinalized
		}
		current.DraftCode = code
		current.DraftSavedAt = &now
		out = current
		return nil
	})
	return out, err
}

// Submit 截止后提交仍然评测记分，终态为 expired 且进入冷却
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID uint, code string) (*model.SubmitResult, error) {
	if err := checkCode(code); err != nil {
		return nil, err
	}
	a, err := s.owned(userID, attemptID)
	if err != nil {
		return nil, err
	}

	var out *model.SubmitResult
	err = s.withLock(ctx, a.UserID, a.ProjectID, func(ctx context.Context) error {
		current, err := s.AttemptRepo.FindByID(a.ID)
		if err != nil {
			return err
		}
		switch current.State {
		case model.AttemptStarted:
		case model.AttemptIssued:
			return util.ErrAttemptNotStarted
		default:
			return util.ErrAttemptAlreadyFinalized
		}
		out, err = s.finalize(ctx, current, code, s.Now())
		return err
	})
	return out, err
}

// finalize 评测与超时共用的唯一终结路径；调用方必须持有 (user, project) 锁
// 进入 finalize 后与请求的取消解绑，评测预算用尽按沙箱故障处理
func (s *AttemptService) finalize(ctx context.Context, a *model.ChallengeAttempt, code string, now time.Time) (*model.SubmitResult, error) {
	ctx = context.WithoutCancel(ctx)
	algo, err := s.AlgoConfig.Active(ctx)
	if err != nil {
		return nil, err
	}

	evalCtx := ctx
	if budget := s.settings.Load().FinalizeTimeout; budget > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	snapshot := a.Snapshot()
	result, err := s.Evaluator.Evaluate(evalCtx, snapshot, code)
	fault := false
	if err != nil {
		if !errors.Is(err, util.ErrEvaluationSandboxFault) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		logger.Log.Warn("evaluation aborted, finalizing as sandbox fault",
			zap.Uint("attemptId", a.ID),
			zap.Error(err),
		)
		fault = true
		result = FaultResult(snapshot)
	}

	// 超时提交照常评分，但不能准入
	expired := a.Lapsed(now)
	passed := !fault && !expired && result.Score >= snapshot.PassThreshold
	state := model.AttemptFailed
	switch {
	case expired:
		state = model.AttemptExpired
	case passed:
		state = model.AttemptPassed
	}

	var admission *model.AdmissionResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.AttemptRepo.WithTx(tx).Transition(a.ID, []model.AttemptState{model.AttemptStarted}, map[string]interface{}{
			"state":          state,
			"submitted_code": code,
			"submitted_at":   now,
			"finalized_at":   now,
			"score":          result.Score,
			"passed_tests":   result.PassedTests,
			"total_tests":    result.TotalTests,
			"passed":         passed,
			"sandbox_fault":  fault,
			"active_key":     nil,
		})
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrAttemptAlreadyFinalized
		}

		a.State = state
		a.SubmittedCode = code
		a.SubmittedAt = &now
		a.FinalizedAt = &now
		a.Score = result.Score
		a.PassedTests = result.PassedTests
		a.TotalTests = result.TotalTests
		a.Passed = passed
		a.SandboxFault = fault
		a.ActiveKey = nil

		admission, err = s.Admission.Apply(tx, a, now, algo)
		return err
	})
	if err != nil {
		return nil, err
	}

	monitoring.AttemptTransitions.WithLabelValues(string(state)).Inc()
	logger.Log.Info("attempt finalized",
		zap.Uint("attemptId", a.ID),
		zap.Uint("userId", a.UserID),
		zap.Uint("projectId", a.ProjectID),
		zap.String("state", string(state)),
		zap.Int("score", result.Score),
		zap.Bool("passed", passed),
		zap.Bool("sandboxFault", fault),
		zap.Bool("joined", admission.ProjectJoined),
	)
	if s.Artifacts != nil {
		s.Artifacts.ArchiveAsync(*a, result)
	}

	return &model.SubmitResult{
		AttemptID:     a.ID,
		Status:        state,
		Score:         result.Score,
		PassedTests:   result.PassedTests,
		TotalTests:    result.TotalTests,
		Passed:        passed,
		ProjectJoined: admission.ProjectJoined,
		SandboxFault:  fault,
		NextAttemptAt: admission.NextAttemptAt,
	}, nil
}

// Abandon 主动放弃；只有开始计时后放弃才进入冷却
func (s *AttemptService) Abandon(ctx context.Context, userID, attemptID uint) (*model.ChallengeAttempt, error) {
	a, err := s.owned(userID, attemptID)
	if err != nil {
		return nil, err
	}

	var out *model.ChallengeAttempt
	err = s.withLock(ctx, a.UserID, a.ProjectID, func(ctx context.Context) error {
		current, err := s.expireIfLapsedLocked(ctx, a.ID)
		if err != nil {
			return err
		}
		if current.State.IsTerminal() {
			return util.ErrAttemptAlreadyFinalized
		}

		now := s.Now()
		updates := map[string]interface{}{
			"state":        model.AttemptAbandoned,
			"finalized_at": now,
			"active_key":   nil,
		}
		var next *time.Time
		if current.State == model.AttemptStarted {
			algo, err := s.AlgoConfig.Active(ctx)
			if err != nil {
				return err
			}
			if cd := algo.Cooldown(); cd > 0 {
				t := now.Add(cd)
				next = &t
				updates["next_attempt_at"] = t
			}
		}
		ok, err := s.AttemptRepo.Transition(current.ID, []model.AttemptState{current.State}, updates)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrAttemptAlreadyFinalized
		}
		current.State = model.AttemptAbandoned
		current.FinalizedAt = &now
		current.ActiveKey = nil
		current.NextAttemptAt = next

		monitoring.AttemptTransitions.WithLabelValues(string(model.AttemptAbandoned)).Inc()
		logger.Log.Info("attempt abandoned", zap.Uint("attemptId", current.ID), zap.Bool("cooldown", next != nil))
		out = current
		return nil
	})
	return out, err
}

// Get 读取时顺带处理已超时的尝试
func (s *AttemptService) Get(ctx context.Context, userID, attemptID uint) (*model.AttemptView, error) {
	a, err := s.owned(userID, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.Lapsed(s.Now()) {
		return view(a), nil
	}
	err = s.withLock(ctx, a.UserID, a.ProjectID, func(ctx context.Context) error {
		a, err = s.expireIfLapsedLocked(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view(a), nil
}

// ReconcileActive 对 (user, project) 的进行中尝试做超时检查，返回检查后仍在进行中的尝试
func (s *AttemptService) ReconcileActive(ctx context.Context, userID, projectID uint) (*model.ChallengeAttempt, error) {
	active, err := s.AttemptRepo.FindActive(userID, projectID)
	if err != nil || active == nil {
		return nil, err
	}
	if !active.Lapsed(s.Now()) {
		return active, nil
	}
	err = s.withLock(ctx, userID, projectID, func(ctx context.Context) error {
		_, err := s.expireIfLapsedLocked(ctx, active.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.AttemptRepo.FindActive(userID, projectID)
}

// expireIfLapsedLocked 重新读取；已超时则以草稿自动提交。调用方持锁
func (s *AttemptService) expireIfLapsedLocked(ctx context.Context, attemptID uint) (*model.ChallengeAttempt, error) {
	current, err := s.AttemptRepo.FindByID(attemptID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if !current.Lapsed(now) {
		return current, nil
	}
	if _, err := s.finalize(ctx, current, current.DraftCode, now); err != nil {
		return nil, err
	}
	return current, nil
}

// ExpireLapsed 后台扫描：超时的尝试以最后保存的草稿终结为 expired
func (s *AttemptService) ExpireLapsed(ctx context.Context) (int, error) {
	lapsed, err := s.AttemptRepo.ListLapsed(s.Now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, a := range lapsed {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		err := s.withLock(ctx, a.UserID, a.ProjectID, func(ctx context.Context) error {
			current, err := s.expireIfLapsedLocked(ctx, a.ID)
			if err == nil && current.State == model.AttemptExpired {
				expired++
			}
			return err
		})
		if err != nil {
			logger.Log.Warn("failed to expire lapsed attempt", zap.Uint("attemptId", a.ID), zap.Error(err))
		}
	}
	monitoring.SweptAttempts.WithLabelValues("expired").Add(float64(expired))
	return expired, nil
}

// AbandonStale 发放后超过 issued_ttl 仍未开始的尝试释放掉，不进入冷却
func (s *AttemptService) AbandonStale(ctx context.Context) (int, error) {
	ttl := s.settings.Load().IssuedTTL
	if ttl <= 0 {
		return 0, nil
	}
	now := s.Now()
	stale, err := s.AttemptRepo.ListStaleIssued(now.Add(-ttl), sweepBatchSize)
	if err != nil {
		return 0, err
	}
	abandoned := 0
	for _, a := range stale {
		if ctx.Err() != nil {
			return abandoned, ctx.Err()
		}
		err := s.withLock(ctx, a.UserID, a.ProjectID, func(ctx context.Context) error {
			ok, err := s.AttemptRepo.Transition(a.ID, []model.AttemptState{model.AttemptIssued}, map[string]interface{}{
				"state":        model.AttemptAbandoned,
				"finalized_at": now,
				"active_key":   nil,
			})
			if ok {
				abandoned++
				monitoring.AttemptTransitions.WithLabelValues(string(model.AttemptAbandoned)).Inc()
			}
			return err
		})
		if err != nil {
			logger.Log.Warn("failed to abandon stale attempt", zap.Uint("attemptId", a.ID), zap.Error(err))
		}
	}
	monitoring.SweptAttempts.WithLabelValues("abandoned").Add(float64(abandoned))
	return abandoned, nil
}
