package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/logger"
	"context"
	"time"

	"go.uber.org/zap"
)

// FeedbackService 记录推荐反馈与非推荐渠道的发现事件
type FeedbackService struct {
	RecommendationRepo *repository.RecommendationRepository
	ProjectRepo        *repository.ProjectRepository

	Now func() time.Time
}

func NewFeedbackService(recommendationRepo *repository.RecommendationRepository, projectRepo *repository.ProjectRepository) *FeedbackService {
	return &FeedbackService{
		RecommendationRepo: recommendationRepo,
		ProjectRepo:        projectRepo,
		Now:                time.Now,
	}
}

type FeedbackRequest struct {
	Action model.RecommendationAction `json:"action" binding:"required"`
	Score  *int                       `json:"score"`
}

// RecordFeedback 原地更新推荐记录上的动作与评分
func (s *FeedbackService) RecordFeedback(ctx context.Context, userID, recommendationID uint, req FeedbackRequest) (*model.Recommendation, error) {
	if !req.Action.Valid() {
		return nil, util.NewValidationError("action", "unknown action %q", req.Action)
	}
	if req.Score != nil && (*req.Score < 1 || *req.Score > 5) {
		return nil, util.NewValidationError("score", "must be between 1 and 5")
	}

	rec, err := s.RecommendationRepo.FindByID(recommendationID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, util.ErrRecommendationNotFound
	}

	now := s.Now()
	if err := s.RecommendationRepo.UpdateAction(rec.ID, req.Action, req.Score, now); err != nil {
		return nil, err
	}
	action := req.Action
	rec.ActionTaken = &action
	rec.ActionAt = &now
	if req.Score != nil {
		rec.FeedbackScore = req.Score
	}

	logger.Log.Info("recommendation feedback recorded",
		zap.Uint("recommendationId", rec.ID),
		zap.Uint("userId", userID),
		zap.String("action", string(action)),
	)
	return rec, nil
}

type DiscoveryRequest struct {
	ProjectID uint   `json:"projectId" binding:"required"`
	Source    string `json:"source" binding:"required"`
}

// RecordDiscovery 用户通过搜索或手动加入接触到项目
func (s *FeedbackService) RecordDiscovery(ctx context.Context, userID uint, req DiscoveryRequest) (*model.DiscoveryEvent, error) {
	switch req.Source {
	case model.DiscoverySearch, model.DiscoveryManualJoin:
	default:
		return nil, util.NewValidationError("source", "unknown source %q", req.Source)
	}
	if _, err := s.ProjectRepo.FindByID(req.ProjectID); err != nil {
		return nil, err
	}

	event := &model.DiscoveryEvent{UserID: userID, ProjectID: req.ProjectID, Source: req.Source}
	if err := s.RecommendationRepo.CreateDiscovery(event); err != nil {
		return nil, err
	}
	return event, nil
}
