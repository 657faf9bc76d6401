package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/pkg/logger"
	"collabhub_backend/pkg/storage"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AttemptArtifact 归档内容：提交代码与逐用例结果
type AttemptArtifact struct {
	AttemptID    uint                  `json:"attemptId"`
	UserID       uint                  `json:"userId"`
	ProjectID    uint                  `json:"projectId"`
	ChallengeKey string                `json:"challengeKey"`
	Origin       model.ChallengeOrigin `json:"origin"`
	State        model.AttemptState    `json:"state"`
	Score        int                   `json:"score"`
	SandboxFault bool                  `json:"sandboxFault"`
	Code         string                `json:"code"`
	Tests        []TestResult          `json:"tests"`
	ArchivedAt   time.Time             `json:"archivedAt"`
}

// ArtifactService 评测产物归档，失败只记日志，不影响尝试结果
type ArtifactService struct {
	Provider storage.Provider
}

func NewArtifactService(provider storage.Provider) *ArtifactService {
	return &ArtifactService{Provider: provider}
}

func ArtifactKey(attemptID uint) string {
	return fmt.Sprintf("attempts/%d/%s.json", attemptID, model.GenerateUUID())
}

func (s *ArtifactService) Archive(ctx context.Context, attempt *model.ChallengeAttempt, result *EvaluationResult) (string, error) {
	artifact := AttemptArtifact{
		AttemptID:    attempt.ID,
		UserID:       attempt.UserID,
		ProjectID:    attempt.ProjectID,
		ChallengeKey: attempt.Snapshot().Key,
		Origin:       attempt.ChallengeOrigin,
		State:        attempt.State,
		Score:        attempt.Score,
		SandboxFault: attempt.SandboxFault,
		Code:         attempt.SubmittedCode,
		ArchivedAt:   time.Now(),
	}
	if result != nil {
		artifact.Tests = result.Tests
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return "", err
	}
	key := ArtifactKey(attempt.ID)
	if _, err := storage.PutBytes(ctx, s.Provider, key, data, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// ArchiveAsync 后台归档
func (s *ArtifactService) ArchiveAsync(attempt model.ChallengeAttempt, result *EvaluationResult) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		key, err := s.Archive(ctx, &attempt, result)
		if err != nil {
			logger.Log.Warn("failed to archive attempt artifact",
				zap.Uint("attemptId", attempt.ID),
				zap.String("provider", s.Provider.Name()),
				zap.Error(err),
			)
			return
		}
		logger.Log.Debug("attempt artifact archived", zap.Uint("attemptId", attempt.ID), zap.String("key", key))
	}()
}
