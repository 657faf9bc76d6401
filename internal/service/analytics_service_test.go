package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/util"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestConfusionMatrixDerived(t *testing.T) {
	cases := []struct {
		name                  string
		m                     model.ConfusionMatrix
		precision, recall, f1 float64
	}{
		{"empty", model.ConfusionMatrix{}, 0, 0, 0},
		{"perfect", model.ConfusionMatrix{TruePositive: 4, TrueNegative: 6}, 1, 1, 1},
		{"mixed", model.ConfusionMatrix{TruePositive: 3, FalsePositive: 1, FalseNegative: 3, TrueNegative: 3}, 0.75, 0.5, 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.precision, tc.m.Precision(), 1e-9)
			assert.InDelta(t, tc.recall, tc.m.Recall(), 1e-9)
			assert.InDelta(t, tc.f1, tc.m.F1(), 1e-9)
		})
	}
}

func TestRecommendationEffectiveness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setProfile(candidateID, []string{"go"}, nil)
	for _, name := range []string{"a", "b", "c"} {
		env.projectWith(name, model.DifficultyIntermediate, []string{"go"}, nil)
	}
	javaA := env.projectWith("java-a", model.DifficultyIntermediate, []string{"java"}, nil)
	env.projectWith("java-b", model.DifficultyIntermediate, []string{"java"}, nil)

	minScore := 0.1
	_, err := env.algo.ApplyVersion(ctx, 1, ApplyAlgorithmConfigRequest{MinScore: &minScore})
	require.NoError(t, err)

	items, err := env.matching.GetRecommendations(ctx, candidateID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	_, err = env.feedback.RecordFeedback(ctx, candidateID, items[0].RecommendationID, FeedbackRequest{Action: model.ActionJoined})
	require.NoError(t, err)
	_, err = env.feedback.RecordFeedback(ctx, candidateID, items[1].RecommendationID, FeedbackRequest{Action: model.ActionIgnored, Score: intPtr(2)})
	require.NoError(t, err)
	_, err = env.feedback.RecordDiscovery(ctx, candidateID, DiscoveryRequest{ProjectID: javaA.ID, Source: model.DiscoverySearch})
	require.NoError(t, err)

	m, err := env.analytics.GetEffectivenessMetrics(ctx, model.MetricsRecommendation, "7d")
	require.NoError(t, err)
	assert.Equal(t, model.ConfusionMatrix{TruePositive: 1, FalsePositive: 1, FalseNegative: 1, TrueNegative: 1}, m.Matrix)
	assert.Equal(t, 1, m.Pending)
	assert.Equal(t, 3, m.Samples)
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 0.5, m.Recall, 1e-9)
	assert.InDelta(t, 0.5, m.Accuracy, 1e-9)
	require.NotNil(t, m.WindowStart)

	env.clock.Advance(48 * time.Hour)
	m, err = env.analytics.GetEffectivenessMetrics(ctx, model.MetricsRecommendation, "24h")
	require.NoError(t, err)
	assert.Equal(t, model.ConfusionMatrix{}, m.Matrix)
	assert.Zero(t, m.Precision)

	m, err = env.analytics.GetEffectivenessMetrics(ctx, model.MetricsRecommendation, "all")
	require.NoError(t, err)
	assert.Nil(t, m.WindowStart)
	assert.Equal(t, 1, m.Matrix.TruePositive)
}

func TestAssessmentEffectiveness(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()

	high := &model.Recommendation{UserID: candidateID, ProjectID: 1, Score: 0.8, RefreshedAt: now}
	low := &model.Recommendation{UserID: candidateID, ProjectID: 2, Score: 0.2, RefreshedAt: now}
	require.NoError(t, env.db.Create(high).Error)
	require.NoError(t, env.db.Create(low).Error)

	attempt := func(state model.AttemptState, passed, fault bool, rec *model.Recommendation) {
		a := &model.ChallengeAttempt{
			UserID:       candidateID,
			ProjectID:    1,
			State:        state,
			Passed:       passed,
			SandboxFault: fault,
			IssuedAt:     now,
			FinalizedAt:  &now,
		}
		if rec != nil {
			a.RecommendationID = &rec.ID
		}
		require.NoError(t, env.db.Create(a).Error)
	}
	attempt(model.AttemptPassed, true, false, high)     // TP
	attempt(model.AttemptFailed, false, false, high)    // FP
	attempt(model.AttemptPassed, true, false, low)      // FN
	attempt(model.AttemptExpired, false, false, nil)    // TN
	attempt(model.AttemptFailed, false, true, high)     // 沙箱故障不计入
	attempt(model.AttemptAbandoned, false, false, high) // 放弃不计入

	m, err := env.analytics.GetEffectivenessMetrics(context.Background(), model.MetricsAssessment, "30d")
	require.NoError(t, err)
	assert.Equal(t, model.ConfusionMatrix{TruePositive: 1, FalsePositive: 1, FalseNegative: 1, TrueNegative: 1}, m.Matrix)
	assert.Equal(t, 4, m.Samples)
	assert.InDelta(t, 0.5, m.F1, 1e-9)
}

func TestEffectivenessValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.analytics.GetEffectivenessMetrics(context.Background(), "conversion", "7d")
	assert.ErrorIs(t, err, util.ErrValidation)
	_, err = env.analytics.GetEffectivenessMetrics(context.Background(), model.MetricsRecommendation, "fortnight")
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestSuggestWeights(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, err := env.analytics.SuggestWeights(ctx, "all")
	require.NoError(t, err)
	assert.False(t, s.Changed)
	assert.Equal(t, 0.5, s.LanguageWeight)
	assert.Contains(t, s.Reason, "insufficient")

	now := env.clock.Now()
	add := func(action model.RecommendationAction, b model.ScoreBreakdown) {
		a := action
		rec := &model.Recommendation{
			UserID:      candidateID,
			ProjectID:   1,
			Score:       0.5,
			Breakdown:   datatypes.NewJSONType(b),
			ActionTaken: &a,
			ActionAt:    &now,
			RefreshedAt: now,
		}
		require.NoError(t, env.db.Create(rec).Error)
	}
	for i := 0; i < 5; i++ {
		add(model.ActionJoined, model.ScoreBreakdown{LanguageOverlap: 1, TopicOverlap: 0.2, DifficultyFit: 1})
		add(model.ActionIgnored, model.ScoreBreakdown{LanguageOverlap: 0.2, TopicOverlap: 0.6, DifficultyFit: 0.5})
	}

	s, err = env.analytics.SuggestWeights(ctx, "all")
	require.NoError(t, err)
	assert.True(t, s.Changed)
	assert.Equal(t, 5, s.JoinedSamples)
	assert.Equal(t, 5, s.IgnoredSamples)
	assert.Greater(t, s.LanguageWeight, 0.5)
	assert.Less(t, s.TopicWeight, 0.35)
	assert.InDelta(t, 0.85, s.LanguageWeight+s.TopicWeight, 1e-3)
	assert.InDelta(t, 0.1875, s.DifficultyPenalty, 1e-9)

	// 建议不会自动生效
	active, err := env.algo.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, active.LanguageWeight)
}

func TestRecordFeedbackValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := &model.Recommendation{UserID: candidateID, ProjectID: 1, Score: 0.4, RefreshedAt: env.clock.Now()}
	require.NoError(t, env.db.Create(rec).Error)

	_, err := env.feedback.RecordFeedback(ctx, candidateID, rec.ID, FeedbackRequest{Action: "loved"})
	assert.ErrorIs(t, err, util.ErrValidation)
	_, err = env.feedback.RecordFeedback(ctx, candidateID, rec.ID, FeedbackRequest{Action: model.ActionViewed, Score: intPtr(6)})
	assert.ErrorIs(t, err, util.ErrValidation)
	_, err = env.feedback.RecordFeedback(ctx, candidateID+1, rec.ID, FeedbackRequest{Action: model.ActionViewed})
	assert.ErrorIs(t, err, util.ErrNotFound)
	_, err = env.feedback.RecordFeedback(ctx, candidateID, 999, FeedbackRequest{Action: model.ActionViewed})
	assert.ErrorIs(t, err, util.ErrNotFound)

	updated, err := env.feedback.RecordFeedback(ctx, candidateID, rec.ID, FeedbackRequest{Action: model.ActionApplied, Score: intPtr(5)})
	require.NoError(t, err)
	require.NotNil(t, updated.ActionTaken)
	assert.Equal(t, model.ActionApplied, *updated.ActionTaken)

	stored, err := env.recommendations.FindByID(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FeedbackScore)
	assert.Equal(t, 5, *stored.FeedbackScore)
}

func TestRecordDiscoveryValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProject(ownerID, "compiler", 5, "python")

	_, err := env.feedback.RecordDiscovery(ctx, candidateID, DiscoveryRequest{ProjectID: p.ID, Source: "newsletter"})
	assert.ErrorIs(t, err, util.ErrValidation)
	_, err = env.feedback.RecordDiscovery(ctx, candidateID, DiscoveryRequest{ProjectID: 999, Source: model.DiscoverySearch})
	assert.ErrorIs(t, err, util.ErrNotFound)

	ev, err := env.feedback.RecordDiscovery(ctx, candidateID, DiscoveryRequest{ProjectID: p.ID, Source: model.DiscoveryManualJoin})
	require.NoError(t, err)
	assert.NotZero(t, ev.ID)
}

func TestPassWithoutRecommendationRecordsManualJoin(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(ownerID, "compiler", 5, "python")
	env.addChallenge(p.ID, nil)
	a := env.startedAttempt(candidateID, p.ID)

	_, err := env.attempts.Submit(context.Background(), candidateID, a.ID, "print(input())")
	require.NoError(t, err)

	var events []model.DiscoveryEvent
	require.NoError(t, env.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, model.DiscoveryManualJoin, events[0].Source)
	assert.Equal(t, p.ID, events[0].ProjectID)
}
