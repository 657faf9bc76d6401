package service

import (
	"collabhub_backend/internal/config"
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/logger"
	"collabhub_backend/pkg/monitoring"
	"collabhub_backend/pkg/sandbox"
	"collabhub_backend/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type TestResult struct {
	Index          int   `json:"index"`
	Passed         bool  `json:"passed"`
	Weight         int   `json:"weight"`
	TimedOut       bool  `json:"timedOut,omitempty"`
	MemoryExceeded bool  `json:"memoryExceeded,omitempty"`
	CompileError   bool  `json:"compileError,omitempty"`
	DurationMs     int64 `json:"durationMs"`
}

type EvaluationResult struct {
	Score       int          `json:"score"`
	PassedTests int          `json:"passedTests"`
	TotalTests  int          `json:"totalTests"`
	Tests       []TestResult `json:"tests"`
	Cached      bool         `json:"cached,omitempty"`
}

// EvaluationService 按固定顺序逐个运行测试用例并计算加权分数
type EvaluationService struct {
	Runner sandbox.Runner
	Cache  ResultCache

	sem      *semaphore.Weighted
	settings atomic.Pointer[config.SandboxConfig]
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewEvaluationService(runner sandbox.Runner, cache ResultCache, cfg config.SandboxConfig) *EvaluationService {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	s := &EvaluationService{
		Runner: runner,
		Cache:  cache,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		sleep:  sleepCtx,
	}
	s.settings.Store(&cfg)
	return s
}

// UpdateSettings 热更新超时、内存、重试参数；并发数在启动时固定
func (s *EvaluationService) UpdateSettings(cfg config.SandboxConfig) {
	s.settings.Store(&cfg)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Score round(100 × 通过权重 / 总权重)
func Score(passedWeight, totalWeight int) int {
	if totalWeight <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(passedWeight) / float64(totalWeight)))
}

// Evaluate 沙箱持续不可用时返回 ErrEvaluationSandboxFault，由调用方按失败处理
func (s *EvaluationService) Evaluate(ctx context.Context, snapshot model.ChallengeSnapshot, code string) (*EvaluationResult, error) {
	cfg := s.settings.Load()
	ctx, span := tracing.StartSpan(ctx, "evaluation.evaluate",
		attribute.String("language", snapshot.Language),
		attribute.Int("tests", len(snapshot.TestCases)),
	)
	defer span.End()

	if len(snapshot.TestCases) == 0 {
		return nil, util.NewValidationError("testCases", "challenge has no test cases")
	}

	var cacheKey string
	if s.Cache != nil && cfg.CacheResults {
		if key, err := EvaluationKey(snapshot, code, cfg.TestTimeout, cfg.MemoryLimitMB); err == nil {
			cacheKey = key
			if res, ok := s.Cache.Get(ctx, key); ok {
				monitoring.EvaluationCacheHits.Inc()
				res.Cached = true
				return res, nil
			}
		}
	}

	if strings.TrimSpace(code) == "" {
		return emptySubmission(snapshot), nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	start := time.Now()
	result := &EvaluationResult{TotalTests: len(snapshot.TestCases)}
	passedWeight, totalWeight := 0, 0

	for i, tc := range snapshot.TestCases {
		weight := tc.EffectiveWeight()
		totalWeight += weight

		run, err := s.runWithRetry(ctx, cfg, sandbox.RunRequest{
			Language: snapshot.Language,
			Code:     code,
			Stdin:    tc.Input,
			Timeout:  cfg.TestTimeout,
			MemoryMB: cfg.MemoryLimitMB,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			span.RecordError(err)
			logger.Log.Warn("sandbox fault, giving up evaluation",
				zap.String("runner", s.Runner.Name()),
				zap.Int("test", i),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", util.ErrEvaluationSandboxFault, err)
		}

		passed := !run.Failed() && CompareOutput(tc, run.Stdout)
		if passed {
			passedWeight += weight
			result.PassedTests++
		}
		result.Tests = append(result.Tests, TestResult{
			Index:          i,
			Passed:         passed,
			Weight:         weight,
			TimedOut:       run.TimedOut,
			MemoryExceeded: run.MemoryExceeded,
			CompileError:   run.CompileError,
			DurationMs:     run.Duration.Milliseconds(),
		})
	}
	result.Score = Score(passedWeight, totalWeight)
	monitoring.EvaluationDuration.WithLabelValues(snapshot.Language).Observe(time.Since(start).Seconds())

	if cacheKey != "" {
		s.Cache.Set(ctx, cacheKey, result, cfg.CacheTTL)
	}
	return result, nil
}

// runWithRetry 仅重试 ErrUnavailable，线性退避
func (s *EvaluationService) runWithRetry(ctx context.Context, cfg *config.SandboxConfig, req sandbox.RunRequest) (sandbox.RunResult, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		res, err := s.Runner.Run(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, sandbox.ErrUnavailable) {
			return sandbox.RunResult{}, err
		}
		monitoring.SandboxFaults.WithLabelValues(s.Runner.Name()).Inc()
		if attempt < cfg.Retries {
			if err := s.sleep(ctx, cfg.RetryBackoff*time.Duration(attempt+1)); err != nil {
				return sandbox.RunResult{}, err
			}
		}
	}
	return sandbox.RunResult{}, lastErr
}

// emptySubmission 空代码直接判零分，不占用沙箱
func emptySubmission(snapshot model.ChallengeSnapshot) *EvaluationResult {
	res := &EvaluationResult{TotalTests: len(snapshot.TestCases)}
	for i, tc := range snapshot.TestCases {
		res.Tests = append(res.Tests, TestResult{Index: i, Weight: tc.EffectiveWeight()})
	}
	return res
}

// FaultResult 沙箱故障时的记分：全部失败，0 分
func FaultResult(snapshot model.ChallengeSnapshot) *EvaluationResult {
	return emptySubmission(snapshot)
}
