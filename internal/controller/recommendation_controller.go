package controller

import (
	"collabhub_backend/internal/service"
	"collabhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type RecommendationController struct {
	MatchingService *service.MatchingService
	FeedbackService *service.FeedbackService
}

func NewRecommendationController(matchingService *service.MatchingService, feedbackService *service.FeedbackService) *RecommendationController {
	return &RecommendationController{MatchingService: matchingService, FeedbackService: feedbackService}
}

// @Summary 获取项目推荐
// @Description 按技能画像为当前用户打分排序可加入的项目，刷新窗口内重复请求不会产生新记录
// @Tags 推荐
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/recommendations [get]
func (c *RecommendationController) GetRecommendations(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	items, err := c.MatchingService.GetRecommendations(ctx.Request.Context(), user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"items": items,
		"total": len(items),
	})
}

// @Summary 推荐反馈
// @Tags 推荐
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "推荐ID"
// @Param feedback body service.FeedbackRequest true "反馈"
// @Success 200 {object} util.Response
// @Router /api/recommendations/{id}/feedback [post]
func (c *RecommendationController) RecordFeedback(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.FeedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	rec, err := c.FeedbackService.RecordFeedback(ctx.Request.Context(), user.UserID, id, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, rec)
}

// @Summary 记录发现事件
// @Description 用户通过搜索或手动加入接触到项目（用于估算推荐的漏报）
// @Tags 推荐
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body service.DiscoveryRequest true "发现事件"
// @Success 201 {object} util.Response
// @Router /api/discovery [post]
func (c *RecommendationController) RecordDiscovery(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.DiscoveryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	event, err := c.FeedbackService.RecordDiscovery(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, event)
}
