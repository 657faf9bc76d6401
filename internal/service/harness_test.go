package service

import (
	"collabhub_backend/internal/config"
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/pkg/lock"
	"collabhub_backend/pkg/sandbox"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testClock 可手动推进的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedRunner 默认回显 stdin；代码中的 "fail:<input>" / "timeout:<input>" 行控制单个用例的结果
type scriptedRunner struct {
	mu    sync.Mutex
	calls int
	err   error

	// gate 非空时每次运行先阻塞，直到 gate 关闭或 ctx 结束；entered 收到首次进入的信号
	gate    chan struct{}
	entered chan struct{}
}

func (r *scriptedRunner) Name() string { return "scripted" }

func (r *scriptedRunner) Run(ctx context.Context, req sandbox.RunRequest) (sandbox.RunResult, error) {
	r.mu.Lock()
	r.calls++
	err := r.err
	gate, entered := r.gate, r.entered
	r.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return sandbox.RunResult{}, ctx.Err()
		}
	}
	if err != nil {
		return sandbox.RunResult{}, err
	}
	for _, line := range strings.Split(req.Code, "\n") {
		switch strings.TrimSpace(line) {
		case "fail:" + req.Stdin:
			return sandbox.RunResult{Stdout: "wrong\n"}, nil
		case "timeout:" + req.Stdin:
			return sandbox.RunResult{TimedOut: true, ExitCode: -1}, nil
		}
	}
	return sandbox.RunResult{Stdout: req.Stdin + "\n"}, nil
}

func (r *scriptedRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Block 之后的运行都会阻塞，返回的函数放行
func (r *scriptedRunner) Block() (entered <-chan struct{}, release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	r.entered = make(chan struct{}, 1)
	gate := r.gate
	var once sync.Once
	return r.entered, func() { once.Do(func() { close(gate) }) }
}

func (r *scriptedRunner) SetErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// memoryCache 进程内 ResultCache
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]EvaluationResult
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]EvaluationResult)}
}

func (c *memoryCache) Get(ctx context.Context, key string) (*EvaluationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return &res, true
}

func (c *memoryCache) Set(ctx context.Context, key string, result *EvaluationResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *result
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		Sandbox: config.SandboxConfig{
			Driver:        "docker",
			Concurrency:   4,
			TestTimeout:   time.Second,
			MemoryLimitMB: 128,
			Retries:       2,
			RetryBackoff:  time.Millisecond,
		},
		Matching: config.MatchingConfig{
			LanguageWeight:    0.5,
			TopicWeight:       0.35,
			DifficultyPenalty: 0.15,
			PrimaryBonus:      0.05,
			MinScore:          0,
			MaxResults:        20,
			RefreshWindow:     24 * time.Hour,
			AssessmentCutoff:  0.5,
		},
		Admission: config.AdmissionConfig{
			PassThreshold: 70,
			Cooldown:      time.Hour,
			IssuedTTL:     24 * time.Hour,
			LockWait:      5 * time.Second,
		},
	}
}

func newTestDB(t *testing.T, clock *testClock) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		NowFunc:        clock.Now,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库只存在于单个连接上
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

type testEnv struct {
	t      *testing.T
	db     *gorm.DB
	clock  *testClock
	runner *scriptedRunner
	cfg    *config.Config

	projects        *repository.ProjectRepository
	profiles        *repository.SkillProfileRepository
	challengeRepo   *repository.ChallengeRepository
	attemptRepo     *repository.AttemptRepository
	recommendations *repository.RecommendationRepository

	algo       *AlgorithmConfigService
	evaluator  *EvaluationService
	admission  *AdmissionService
	attempts   *AttemptService
	challenges *ChallengeService
	matching   *MatchingService
	feedback   *FeedbackService
	analytics  *AnalyticsService
	profile    *SkillProfileService
	bank       *ChallengeBank
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newTestClock()
	db := newTestDB(t, clock)
	cfg := testConfig()
	runner := &scriptedRunner{}

	env := &testEnv{
		t:               t,
		db:              db,
		clock:           clock,
		runner:          runner,
		cfg:             cfg,
		projects:        repository.NewProjectRepository(db),
		profiles:        repository.NewSkillProfileRepository(db),
		challengeRepo:   repository.NewChallengeRepository(db),
		attemptRepo:     repository.NewAttemptRepository(db),
		recommendations: repository.NewRecommendationRepository(db),
		bank:            NewChallengeBank(),
	}

	env.algo = NewAlgorithmConfigService(repository.NewAlgorithmConfigRepository(db), cfg)
	env.evaluator = NewEvaluationService(runner, nil, cfg.Sandbox)
	env.evaluator.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	env.admission = NewAdmissionService(env.projects, env.attemptRepo, env.recommendations, env.algo, db)
	env.attempts = NewAttemptService(env.attemptRepo, env.evaluator, env.admission, env.algo, nil, lock.NewLocalLocker(), db, cfg.Admission)
	env.attempts.Now = clock.Now
	env.challenges = NewChallengeService(env.projects, env.challengeRepo, env.attemptRepo, env.recommendations, env.algo, env.attempts, env.bank)
	env.matching = NewMatchingService(env.profiles, env.projects, env.recommendations, env.algo)
	env.matching.Now = clock.Now
	env.feedback = NewFeedbackService(env.recommendations, env.projects)
	env.feedback.Now = clock.Now
	env.analytics = NewAnalyticsService(repository.NewAnalyticsRepository(db), env.algo, db)
	env.analytics.Now = clock.Now
	env.profile = NewSkillProfileService(env.profiles, env.projects)
	return env
}

func (e *testEnv) createProject(ownerID uint, name string, maxMembers int, languages ...string) *model.Project {
	e.t.Helper()
	p := &model.Project{
		OwnerID:        ownerID,
		Name:           name,
		Status:         model.ProjectRecruiting,
		Difficulty:     model.DifficultyIntermediate,
		MaxMembers:     maxMembers,
		CurrentMembers: 1,
	}
	require.NoError(e.t, e.projects.Create(p))
	if len(languages) > 0 {
		langs := make([]model.ProjectLanguage, 0, len(languages))
		for i, l := range languages {
			langs = append(langs, model.ProjectLanguage{Language: l, IsPrimary: i == 0})
		}
		require.NoError(e.t, e.projects.ReplaceRequirements(p.ID, "", langs, nil))
	}
	return p
}

// addChallenge 五个等权用例，输入 1..5，期望输出与输入相同
func (e *testEnv) addChallenge(projectID uint, timeLimit *int) *model.Challenge {
	e.t.Helper()
	tests := make([]model.TestCase, 0, 5)
	for _, in := range []string{"1", "2", "3", "4", "5"} {
		tests = append(tests, model.TestCase{Input: in, ExpectedOutput: in, Weight: 1, Comparison: model.CompareTrim})
	}
	pid := projectID
	c := &model.Challenge{
		ProjectID:        &pid,
		AuthorID:         1,
		Title:            "echo",
		Language:         "python",
		Difficulty:       model.DifficultyIntermediate,
		TestCases:        datatypes.JSONSlice[model.TestCase](tests),
		TimeLimitMinutes: timeLimit,
	}
	require.NoError(e.t, e.challengeRepo.Create(c))
	return c
}

// startedAttempt 发题并开始计时
func (e *testEnv) startedAttempt(userID, projectID uint) *model.ChallengeAttempt {
	e.t.Helper()
	issued, err := e.challenges.Issue(context.Background(), userID, projectID)
	require.NoError(e.t, err)
	v, err := e.attempts.Start(context.Background(), userID, issued.AttemptID)
	require.NoError(e.t, err)
	return v.Attempt
}

func intPtr(v int) *int { return &v }
