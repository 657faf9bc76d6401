package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/sandbox"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID     = uint(1)
	candidateID = uint(42)
)

func TestSubmitPassGrantsMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, intPtr(30))

	a := env.startedAttempt(candidateID, p.ID)
	require.NotNil(t, a.Deadline)

	res, err := env.attempts.Submit(ctx, candidateID, a.ID, "fail:5")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptPassed, res.Status)
	assert.Equal(t, 80, res.Score)
	assert.Equal(t, 4, res.PassedTests)
	assert.Equal(t, 5, res.TotalTests)
	assert.True(t, res.ProjectJoined)
	assert.Nil(t, res.NextAttemptAt)

	member, err := env.projects.IsMember(p.ID, candidateID)
	require.NoError(t, err)
	assert.True(t, member)

	project, err := env.projects.FindByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, project.CurrentMembers)

	stored, err := env.attemptRepo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ActiveKey)
	assert.Equal(t, "fail:5", stored.SubmittedCode)
	assert.NotNil(t, stored.FinalizedAt)
}

func TestSubmitFailAppliesCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)

	a := env.startedAttempt(candidateID, p.ID)
	assert.Nil(t, a.Deadline)

	res, err := env.attempts.Submit(ctx, candidateID, a.ID, "fail:4\nfail:5")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptFailed, res.Status)
	assert.Equal(t, 60, res.Score)
	assert.False(t, res.ProjectJoined)
	require.NotNil(t, res.NextAttemptAt)
	assert.True(t, res.NextAttemptAt.Equal(env.clock.Now().Add(time.Hour)))

	member, err := env.projects.IsMember(p.ID, candidateID)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestSecondSubmitIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	_, err := env.attempts.Submit(ctx, candidateID, a.ID, "")
	require.NoError(t, err)
	_, err = env.attempts.Submit(ctx, candidateID, a.ID, "print(1)")
	assert.ErrorIs(t, err, util.ErrAttemptAlreadyFinalized)
}

func TestConcurrentSubmitHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*model.SubmitResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.attempts.Submit(context.Background(), candidateID, a.ID, "print(input())")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < n; i++ {
		if errs[i] == nil {
			winners++
			assert.Equal(t, model.AttemptPassed, results[i].Status)
			continue
		}
		assert.ErrorIs(t, errs[i], util.ErrAttemptAlreadyFinalized)
	}
	assert.Equal(t, 1, winners)

	count, err := env.projects.CountMembers(p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSubmitBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)

	issued, err := env.challenges.Issue(context.Background(), candidateID, p.ID)
	require.NoError(t, err)
	_, err = env.attempts.Submit(context.Background(), candidateID, issued.AttemptID, "x")
	assert.ErrorIs(t, err, util.ErrAttemptNotStarted)
}

func TestOtherUsersCannotSeeAttempt(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	_, err := env.attempts.Get(context.Background(), candidateID+1, a.ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
	_, err = env.attempts.Submit(context.Background(), candidateID+1, a.ID, "x")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestStartIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, intPtr(10))
	a := env.startedAttempt(candidateID, p.ID)

	env.clock.Advance(time.Minute)
	v, err := env.attempts.Start(context.Background(), candidateID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStarted, v.Attempt.State)
	assert.True(t, v.Attempt.StartedAt.Equal(*a.StartedAt))
	assert.True(t, v.Attempt.Deadline.Equal(*a.Deadline))
}

func TestLateSubmissionExpires(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, intPtr(30))
	a := env.startedAttempt(candidateID, p.ID)

	env.clock.Advance(31 * time.Minute)
	res, err := env.attempts.Submit(context.Background(), candidateID, a.ID, "fail:1\nfail:2\nfail:3")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, res.Status)
	assert.Equal(t, 40, res.Score)
	assert.False(t, res.Passed)
	assert.NotNil(t, res.NextAttemptAt)

	stored, err := env.attemptRepo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "fail:1\nfail:2\nfail:3", stored.SubmittedCode)
}

func TestLatePassingSubmissionDoesNotJoin(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, intPtr(30))
	a := env.startedAttempt(candidateID, p.ID)

	env.clock.Advance(72 * time.Hour)
	res, err := env.attempts.Submit(context.Background(), candidateID, a.ID, "print(input())")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, res.Status)
	assert.Equal(t, 100, res.Score)
	assert.False(t, res.Passed)
	assert.False(t, res.ProjectJoined)
	require.NotNil(t, res.NextAttemptAt)
	assert.True(t, res.NextAttemptAt.Equal(env.clock.Now().Add(time.Hour)))

	member, err := env.projects.IsMember(p.ID, candidateID)
	require.NoError(t, err)
	assert.False(t, member)

	project, err := env.projects.FindByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, project.CurrentMembers)
}

func TestSubmitSurvivesRequestCancellation(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	entered, release := env.runner.Block()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		res *model.SubmitResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := env.attempts.Submit(ctx, candidateID, a.ID, "print(input())")
		done <- outcome{res, err}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("evaluation never reached the sandbox")
	}
	// 客户端断开后评测继续
	cancel()
	release()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not finish")
	}
	require.NoError(t, out.err)
	assert.Equal(t, model.AttemptPassed, out.res.Status)
	assert.Equal(t, 100, out.res.Score)

	stored, err := env.attemptRepo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptPassed, stored.State)
	assert.Equal(t, "print(input())", stored.SubmittedCode)
	assert.Nil(t, stored.ActiveKey)
}

func TestFinalizeBudgetExhaustedIsSandboxFault(t *testing.T) {
	env := newTestEnv(t)
	settings := env.cfg.Admission
	settings.FinalizeTimeout = 50 * time.Millisecond
	env.attempts.UpdateSettings(settings)

	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	_, release := env.runner.Block()
	defer release()

	res, err := env.attempts.Submit(context.Background(), candidateID, a.ID, "print(input())")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptFailed, res.Status)
	assert.Equal(t, 0, res.Score)
	assert.True(t, res.SandboxFault)

	stored, err := env.attemptRepo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptFailed, stored.State)
	assert.Equal(t, "print(input())", stored.SubmittedCode)
}

func TestSweeperExpiresWithDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, intPtr(15))
	a := env.startedAttempt(candidateID, p.ID)

	_, err := env.attempts.SaveDraft(ctx, candidateID, a.ID, "print(input())\nfail:5")
	require.NoError(t, err)

	env.clock.Advance(16 * time.Minute)
	expired, err := env.attempts.ExpireLapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	stored, err := env.attemptRepo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, stored.State)
	assert.Equal(t, "print(input())\nfail:5", stored.SubmittedCode)
	assert.Equal(t, 80, stored.Score)
	assert.False(t, stored.Passed)
	assert.NotNil(t, stored.NextAttemptAt)

	// 超时即使分数达标也不准入
	member, err := env.projects.IsMember(p.ID, candidateID)
	require.NoError(t, err)
	assert.False(t, member)

	again, err := env.attempts.ExpireLapsed(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestSaveDraftAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, intPtr(5))
	a := env.startedAttempt(candidateID, p.ID)

	env.clock.Advance(6 * time.Minute)
	_, err := env.attempts.SaveDraft(ctx, candidateID, a.ID, "late")
	assert.ErrorIs(t, err, util.ErrAttemptDeadlinePassed)

	stored, err := env.attemptRepo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, stored.State)
	assert.Empty(t, stored.SubmittedCode)
}

func TestSaveDraftRejectsOversizedCode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.attempts.SaveDraft(context.Background(), candidateID, 1, string(make([]byte, MaxCodeBytes+1)))
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestGetReconcilesLapsedAttempt(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, intPtr(5))
	a := env.startedAttempt(candidateID, p.ID)

	env.clock.Advance(10 * time.Minute)
	v, err := env.attempts.Get(context.Background(), candidateID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, v.Attempt.State)
	assert.Equal(t, 0, v.Attempt.Score)
	assert.Equal(t, "echo", v.Challenge.Title)
	assert.Len(t, v.Challenge.Tests, 5)
}

func TestSandboxFaultFinalizesFailed(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	env.runner.SetErr(fmt.Errorf("%w: connection refused", sandbox.ErrUnavailable))
	res, err := env.attempts.Submit(context.Background(), candidateID, a.ID, "print(input())")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptFailed, res.Status)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 0, res.PassedTests)
	assert.Equal(t, 5, res.TotalTests)
	assert.True(t, res.SandboxFault)
	assert.NotNil(t, res.NextAttemptAt)
}

func TestAbandon(t *testing.T) {
	t.Run("issued has no cooldown", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.createProject(ownerID, "compiler", 5, "python")
		env.addChallenge(p.ID, nil)
		issued, err := env.challenges.Issue(context.Background(), candidateID, p.ID)
		require.NoError(t, err)

		a, err := env.attempts.Abandon(context.Background(), candidateID, issued.AttemptID)
		require.NoError(t, err)
		assert.Equal(t, model.AttemptAbandoned, a.State)
		assert.Nil(t, a.NextAttemptAt)

		elig, err := env.challenges.CanAttempt(context.Background(), candidateID, p.ID)
		require.NoError(t, err)
		assert.True(t, elig.CanAttempt)
	})

	t.Run("started applies cooldown", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.createProject(ownerID, "compiler", 5, "python")
		env.addChallenge(p.ID, nil)
		started := env.startedAttempt(candidateID, p.ID)

		a, err := env.attempts.Abandon(context.Background(), candidateID, started.ID)
		require.NoError(t, err)
		require.NotNil(t, a.NextAttemptAt)

		_, err = env.attempts.Abandon(context.Background(), candidateID, started.ID)
		assert.ErrorIs(t, err, util.ErrAttemptAlreadyFinalized)
	})
}

func TestAbandonStaleIssued(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	issued, err := env.challenges.Issue(context.Background(), candidateID, p.ID)
	require.NoError(t, err)

	n, err := env.attempts.AbandonStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	env.clock.Advance(25 * time.Hour)
	n, err = env.attempts.AbandonStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := env.attemptRepo.FindByID(issued.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptAbandoned, stored.State)
	assert.Nil(t, stored.NextAttemptAt)
}

func TestSweepOnceCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	timed := env.createProject(ownerID, "timed", 5, "python")
	env.addChallenge(timed.ID, intPtr(10))
	idle := env.createProject(ownerID, "idle", 5, "python")
	env.addChallenge(idle.ID, nil)

	env.startedAttempt(candidateID, timed.ID)
	_, err := env.challenges.Issue(ctx, candidateID, idle.ID)
	require.NoError(t, err)

	sweeper := NewAttemptSweeper(env.attempts, time.Minute)
	expired, abandoned := sweeper.SweepOnce(ctx)
	assert.Zero(t, expired)
	assert.Zero(t, abandoned)

	env.clock.Advance(25 * time.Hour)
	expired, abandoned = sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, abandoned)
}

func TestAfterEvaluationIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	_, err := env.attempts.Submit(ctx, candidateID, a.ID, "print(input())")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := env.admission.AfterEvaluation(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, res.ProjectJoined)
		assert.False(t, res.NewMember)
	}

	count, err := env.projects.CountMembers(p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	project, err := env.projects.FindByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, project.CurrentMembers)
}

func TestAfterEvaluationRejectsActiveAttempt(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	_, err := env.admission.AfterEvaluation(context.Background(), a.ID)
	assert.True(t, errors.Is(err, util.ErrAttemptInProgress))
}
