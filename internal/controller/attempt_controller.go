package controller

import (
	"collabhub_backend/internal/service"
	"collabhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
}

func NewAttemptController(attemptService *service.AttemptService) *AttemptController {
	return &AttemptController{AttemptService: attemptService}
}

type CodeRequest struct {
	Code string `json:"code"`
}

// @Summary 获取尝试
// @Description 超时未提交的尝试会在读取时被终结
// @Tags 挑战尝试
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.AttemptService.Get(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 开始作答
// @Description 开始计时；重复调用返回同一截止时间
// @Tags 挑战尝试
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/start [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.AttemptService.Start(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 保存草稿
// @Tags 挑战尝试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Param draft body CodeRequest true "代码"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/draft [put]
func (c *AttemptController) SaveDraft(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req CodeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.AttemptService.SaveDraft(ctx.Request.Context(), user.UserID, id, req.Code)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"attemptId":    attempt.ID,
		"draftSavedAt": attempt.DraftSavedAt,
		"deadline":     attempt.Deadline,
	})
}

// @Summary 提交作答
// @Description 同步评测并执行准入；超时提交仍会评测，但状态为 expired
// @Tags 挑战尝试
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Param submission body CodeRequest true "代码"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req CodeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AttemptService.Submit(ctx.Request.Context(), user.UserID, id, req.Code)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 放弃尝试
// @Tags 挑战尝试
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Success 200 {object} util.Response
// @Router /api/attempts/{id}/abandon [post]
func (c *AttemptController) AbandonAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	attempt, err := c.AttemptService.Abandon(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
