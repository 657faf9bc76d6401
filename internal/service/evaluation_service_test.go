package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/sandbox"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoSnapshot() model.ChallengeSnapshot {
	tests := make([]model.TestCase, 0, 5)
	for i := 1; i <= 5; i++ {
		in := fmt.Sprint(i)
		tests = append(tests, model.TestCase{Input: in, ExpectedOutput: in, Weight: 1, Comparison: model.CompareTrim})
	}
	return model.ChallengeSnapshot{
		Origin:        model.ChallengeEphemeral,
		Key:           "echo",
		Language:      "python",
		TestCases:     tests,
		PassThreshold: 70,
	}
}

func newEvaluator(runner sandbox.Runner, cache ResultCache) *EvaluationService {
	cfg := testConfig().Sandbox
	cfg.CacheResults = cache != nil
	cfg.CacheTTL = time.Hour
	s := NewEvaluationService(runner, cache, cfg)
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func TestScore(t *testing.T) {
	assert.Equal(t, 80, Score(4, 5))
	assert.Equal(t, 60, Score(3, 5))
	assert.Equal(t, 67, Score(2, 3))
	assert.Equal(t, 0, Score(0, 0))
}

func TestEvaluateWeightedScore(t *testing.T) {
	s := newEvaluator(&scriptedRunner{}, nil)

	res, err := s.Evaluate(context.Background(), echoSnapshot(), "print(input())\nfail:5")
	require.NoError(t, err)
	assert.Equal(t, 80, res.Score)
	assert.Equal(t, 4, res.PassedTests)
	assert.Equal(t, 5, res.TotalTests)

	res, err = s.Evaluate(context.Background(), echoSnapshot(), "fail:4\nfail:5")
	require.NoError(t, err)
	assert.Equal(t, 60, res.Score)
	assert.Equal(t, 3, res.PassedTests)
}

func TestEvaluateRespectsWeights(t *testing.T) {
	snap := echoSnapshot()
	snap.TestCases[4].Weight = 5 // 总权重 9

	res, err := newEvaluator(&scriptedRunner{}, nil).Evaluate(context.Background(), snap, "fail:5")
	require.NoError(t, err)
	assert.Equal(t, 44, res.Score)
	assert.Equal(t, 4, res.PassedTests)
}

func TestEvaluateTimeoutFailsOnlyThatTest(t *testing.T) {
	res, err := newEvaluator(&scriptedRunner{}, nil).Evaluate(context.Background(), echoSnapshot(), "timeout:2")
	require.NoError(t, err)
	assert.Equal(t, 80, res.Score)
	require.Len(t, res.Tests, 5)
	assert.True(t, res.Tests[1].TimedOut)
	assert.False(t, res.Tests[1].Passed)
	assert.True(t, res.Tests[2].Passed)
}

func TestEvaluateDeterministic(t *testing.T) {
	s := newEvaluator(&scriptedRunner{}, nil)
	first, err := s.Evaluate(context.Background(), echoSnapshot(), "fail:1")
	require.NoError(t, err)
	second, err := s.Evaluate(context.Background(), echoSnapshot(), "fail:1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateUsesCache(t *testing.T) {
	runner := &scriptedRunner{}
	s := newEvaluator(runner, newMemoryCache())

	first, err := s.Evaluate(context.Background(), echoSnapshot(), "fail:3")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 5, runner.Calls())

	second, err := s.Evaluate(context.Background(), echoSnapshot(), "fail:3")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, 5, runner.Calls())
}

func TestEvaluateEmptyCodeSkipsSandbox(t *testing.T) {
	runner := &scriptedRunner{}
	res, err := newEvaluator(runner, nil).Evaluate(context.Background(), echoSnapshot(), "   \n")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 5, res.TotalTests)
	assert.Zero(t, runner.Calls())
}

func TestEvaluateSandboxFaultAfterRetries(t *testing.T) {
	runner := &scriptedRunner{}
	runner.SetErr(fmt.Errorf("%w: daemon down", sandbox.ErrUnavailable))

	_, err := newEvaluator(runner, nil).Evaluate(context.Background(), echoSnapshot(), "print(1)")
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrEvaluationSandboxFault))
	// 第一次 + 2 次重试
	assert.Equal(t, 3, runner.Calls())
}

func TestEvaluateRejectsChallengeWithoutTests(t *testing.T) {
	_, err := newEvaluator(&scriptedRunner{}, nil).Evaluate(context.Background(), model.ChallengeSnapshot{Language: "python"}, "x")
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestEvaluationKeyChangesWithCode(t *testing.T) {
	a, err := EvaluationKey(echoSnapshot(), "a", time.Second, 128)
	require.NoError(t, err)
	b, err := EvaluationKey(echoSnapshot(), "b", time.Second, 128)
	require.NoError(t, err)
	again, err := EvaluationKey(echoSnapshot(), "a", time.Second, 128)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
	assert.Len(t, a, 64)
}
