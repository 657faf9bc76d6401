package service

import (
	"collabhub_backend/internal/model"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) projectWith(name, difficulty string, languages, topics []string) *model.Project {
	e.t.Helper()
	p := e.createProject(ownerID, name, 5)
	langs := make([]model.ProjectLanguage, 0, len(languages))
	for i, l := range languages {
		langs = append(langs, model.ProjectLanguage{Language: l, IsPrimary: i == 0})
	}
	tops := make([]model.ProjectTopic, 0, len(topics))
	for _, tp := range topics {
		tops = append(tops, model.ProjectTopic{Topic: tp})
	}
	require.NoError(e.t, e.projects.ReplaceRequirements(p.ID, difficulty, langs, tops))
	e.clock.Advance(time.Minute)
	return p
}

func (e *testEnv) setProfile(userID uint, languages []string, topics []string) {
	e.t.Helper()
	req := UpdateSkillProfileRequest{}
	for _, l := range languages {
		req.Languages = append(req.Languages, LanguageInput{Name: l, Proficiency: model.ProficiencyIntermediate})
	}
	for _, tp := range topics {
		req.Topics = append(req.Topics, TopicInput{Name: tp, Interest: 4})
	}
	_, err := e.profile.UpdateSkillProfile(userID, req)
	require.NoError(e.t, err)
}

func TestScoreProject(t *testing.T) {
	algo := DefaultAlgorithmConfig(testConfig())

	profile := &model.SkillProfile{
		Languages: []model.UserLanguage{
			{Language: "python", Proficiency: model.ProficiencyBeginner},
		},
		Topics: []model.UserTopic{{Topic: "web"}},
	}
	project := &model.Project{
		Difficulty: model.DifficultyAdvanced,
		Languages: []model.ProjectLanguage{
			{Language: "python", IsPrimary: true},
			{Language: "go"},
		},
		Topics: []model.ProjectTopic{{Topic: "web"}, {Topic: "cloud"}},
	}

	b := ScoreProject(profile, project, algo)
	assert.Equal(t, 0.5, b.LanguageOverlap)
	assert.Equal(t, 0.5, b.TopicOverlap)
	assert.Equal(t, 0.0, b.DifficultyFit)
	assert.True(t, b.PrimaryMatch)
	// 0.5*0.5 + 0.35*0.5 - 0.15*1 + 0.05
	assert.InDelta(t, 0.325, b.Score, 1e-9)

	empty := ScoreProject(&model.SkillProfile{}, &model.Project{Difficulty: model.DifficultyBeginner}, algo)
	assert.Equal(t, 0.0, empty.Score)
	assert.Equal(t, 1.0, empty.DifficultyFit)
}

func TestRecommendationsRankByOverlap(t *testing.T) {
	env := newTestEnv(t)
	env.setProfile(candidateID, []string{"python", "go", "rust"}, []string{"web"})

	strong := env.projectWith("strong", model.DifficultyIntermediate,
		[]string{"python", "go", "rust", "java"}, []string{"web", "cloud"})
	weak := env.projectWith("weak", model.DifficultyIntermediate,
		[]string{"java", "python", "c", "cpp"}, []string{"games", "ai"})

	items, err := env.matching.GetRecommendations(context.Background(), candidateID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, strong.ID, items[0].Project.ID)
	assert.Equal(t, weak.ID, items[1].Project.ID)
	assert.Greater(t, items[0].Score, items[1].Score)
	assert.Equal(t, 0.75, items[0].Breakdown.LanguageOverlap)
	assert.Equal(t, 0.5, items[0].Breakdown.TopicOverlap)
	assert.Equal(t, 0.25, items[1].Breakdown.LanguageOverlap)
	assert.Equal(t, 0.0, items[1].Breakdown.TopicOverlap)
}

func TestRecommendationsTieBreakByRecency(t *testing.T) {
	env := newTestEnv(t)
	env.setProfile(candidateID, []string{"go"}, nil)

	older := env.projectWith("older", model.DifficultyIntermediate, []string{"go"}, nil)
	newer := env.projectWith("newer", model.DifficultyIntermediate, []string{"go"}, nil)

	items, err := env.matching.GetRecommendations(context.Background(), candidateID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, items[0].Score, items[1].Score)
	assert.Equal(t, newer.ID, items[0].Project.ID)
	assert.Equal(t, older.ID, items[1].Project.ID)
}

func TestRecommendationsExcludeMembersAndFullProjects(t *testing.T) {
	env := newTestEnv(t)
	env.setProfile(candidateID, []string{"go"}, nil)

	open := env.projectWith("open", model.DifficultyIntermediate, []string{"go"}, nil)
	joined := env.projectWith("joined", model.DifficultyIntermediate, []string{"go"}, nil)
	_, err := env.projects.AddMember(&model.ProjectMember{ProjectID: joined.ID, UserID: candidateID, Role: model.MemberRoleMember})
	require.NoError(t, err)

	full := env.createProject(ownerID, "full", 1, "go")
	closed := env.projectWith("closed", model.DifficultyIntermediate, []string{"go"}, nil)
	require.NoError(t, env.db.Model(&model.Project{}).Where("id = ?", closed.ID).Update("status", model.ProjectClosed).Error)
	active := env.projectWith("active", model.DifficultyIntermediate, []string{"go"}, nil)
	require.NoError(t, env.db.Model(&model.Project{}).Where("id = ?", active.ID).Update("status", model.ProjectActive).Error)
	own := env.createProject(candidateID, "mine", 5, "go")

	items, err := env.matching.GetRecommendations(context.Background(), candidateID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, open.ID, items[0].Project.ID)
	for _, it := range items {
		assert.NotContains(t, []uint{joined.ID, full.ID, closed.ID, active.ID, own.ID}, it.Project.ID)
	}
}

func TestRecommendationsRespectMinScoreAndMaxResults(t *testing.T) {
	env := newTestEnv(t)
	env.setProfile(candidateID, []string{"go"}, nil)
	for _, name := range []string{"a", "b", "c"} {
		env.projectWith(name, model.DifficultyIntermediate, []string{"go"}, nil)
	}
	env.projectWith("unrelated", model.DifficultyIntermediate, []string{"java"}, nil)

	maxResults := 2
	_, err := env.algo.ApplyVersion(context.Background(), 1, ApplyAlgorithmConfigRequest{MaxResults: &maxResults})
	require.NoError(t, err)

	items, err := env.matching.GetRecommendations(context.Background(), candidateID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, it := range items {
		assert.GreaterOrEqual(t, it.Score, 0.0)
	}
}

func TestRecommendationsIdempotentWithinWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setProfile(candidateID, []string{"go"}, nil)
	env.projectWith("svc", model.DifficultyIntermediate, []string{"go"}, nil)

	first, err := env.matching.GetRecommendations(ctx, candidateID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	env.clock.Advance(time.Hour)
	second, err := env.matching.GetRecommendations(ctx, candidateID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].RecommendationID, second[0].RecommendationID)

	env.clock.Advance(25 * time.Hour)
	third, err := env.matching.GetRecommendations(ctx, candidateID)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.NotEqual(t, first[0].RecommendationID, third[0].RecommendationID)

	var recs, runs int64
	require.NoError(t, env.db.Model(&model.Recommendation{}).Count(&recs).Error)
	require.NoError(t, env.db.Model(&model.MatchRun{}).Count(&runs).Error)
	assert.Equal(t, int64(2), recs)
	assert.Equal(t, int64(3), runs)
}

func TestRefreshKeepsBreakdownOfActedRecommendation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setProfile(candidateID, []string{"go"}, nil)
	env.projectWith("svc", model.DifficultyIntermediate, []string{"go"}, nil)

	first, err := env.matching.GetRecommendations(ctx, candidateID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	acted, err := env.recommendations.FindByID(first[0].RecommendationID)
	require.NoError(t, err)

	_, err = env.feedback.RecordFeedback(ctx, candidateID, acted.ID, FeedbackRequest{Action: model.ActionIgnored})
	require.NoError(t, err)

	// 画像变化后在窗口内刷新
	env.setProfile(candidateID, []string{"go", "python"}, nil)
	env.clock.Advance(time.Hour)
	second, err := env.matching.GetRecommendations(ctx, candidateID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, acted.ID, second[0].RecommendationID)

	stored, err := env.recommendations.FindByID(acted.ID)
	require.NoError(t, err)
	assert.Equal(t, acted.Score, stored.Score)
	assert.Equal(t, acted.Breakdown, stored.Breakdown)
	assert.True(t, acted.RefreshedAt.Equal(stored.RefreshedAt))

	// 新行尚无反馈，之后的刷新在它上面原地更新
	env.clock.Advance(time.Hour)
	third, err := env.matching.GetRecommendations(ctx, candidateID)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, second[0].RecommendationID, third[0].RecommendationID)
}
