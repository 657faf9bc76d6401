package controller

import (
	"collabhub_backend/internal/service"
	"collabhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ChallengeController struct {
	ChallengeService *service.ChallengeService
}

func NewChallengeController(challengeService *service.ChallengeService) *ChallengeController {
	return &ChallengeController{ChallengeService: challengeService}
}

// @Summary 查询挑战资格
// @Description 是否可以对项目发起挑战；冷却期内返回 nextAttemptAt
// @Tags 挑战
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Success 200 {object} util.Response
// @Router /api/projects/{id}/eligibility [get]
func (c *ChallengeController) CanAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	projectID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	eligibility, err := c.ChallengeService.CanAttempt(ctx.Request.Context(), user.UserID, projectID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, eligibility)
}

// @Summary 领取挑战
// @Description 为 (用户, 项目) 发放挑战；已有进行中的尝试时原样返回
// @Tags 挑战
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Success 201 {object} util.Response
// @Success 200 {object} util.Response "已有进行中的尝试"
// @Failure 409 {object} util.Response
// @Router /api/projects/{id}/challenge [post]
func (c *ChallengeController) Issue(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	projectID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.ChallengeService.Issue(ctx.Request.Context(), user.UserID, projectID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if result.Resumed {
		util.Success(ctx, result)
		return
	}
	util.Created(ctx, result)
}

// @Summary 项目挑战列表
// @Tags 挑战
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Success 200 {object} util.Response
// @Router /api/projects/{id}/challenges [get]
func (c *ChallengeController) ListChallenges(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	projectID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	challenges, err := c.ChallengeService.ListChallenges(ctx.Request.Context(), user.UserID, projectID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, challenges)
}

// @Summary 创建项目挑战
// @Tags 挑战
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Param challenge body service.ChallengeRequest true "挑战"
// @Success 201 {object} util.Response
// @Router /api/projects/{id}/challenges [post]
func (c *ChallengeController) CreateChallenge(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	projectID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.ChallengeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	challenge, err := c.ChallengeService.CreateChallenge(ctx.Request.Context(), user.UserID, projectID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, challenge)
}

// @Summary 更新项目挑战
// @Description 已被尝试引用的挑战不可修改
// @Tags 挑战
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Param challengeId path int true "挑战ID"
// @Param challenge body service.ChallengeRequest true "挑战"
// @Success 200 {object} util.Response
// @Router /api/projects/{id}/challenges/{challengeId} [put]
func (c *ChallengeController) UpdateChallenge(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	projectID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	challengeID, ok := pathID(ctx, "challengeId")
	if !ok {
		return
	}

	var req service.ChallengeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	challenge, err := c.ChallengeService.UpdateChallenge(ctx.Request.Context(), user.UserID, projectID, challengeID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, challenge)
}
