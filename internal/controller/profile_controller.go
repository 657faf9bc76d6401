package controller

import (
	"collabhub_backend/internal/service"
	"collabhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProfileController struct {
	SkillProfileService *service.SkillProfileService
}

func NewProfileController(skillProfileService *service.SkillProfileService) *ProfileController {
	return &ProfileController{SkillProfileService: skillProfileService}
}

// @Summary 获取技能画像
// @Tags 技能画像
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/profile/skills [get]
func (c *ProfileController) GetSkills(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	profile, err := c.SkillProfileService.GetProfile(user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

// @Summary 更新技能画像
// @Description 语言与主题名称会被规范化，任一名称无法识别则整个请求失败
// @Tags 技能画像
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body service.UpdateSkillProfileRequest true "技能画像"
// @Success 200 {object} util.Response
// @Router /api/profile/skills [put]
func (c *ProfileController) UpdateSkills(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.UpdateSkillProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	profile, err := c.SkillProfileService.UpdateSkillProfile(user.UserID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

// @Summary 更新项目需求
// @Tags 项目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Param requirements body service.UpdateProjectRequirementsRequest true "项目需求"
// @Success 200 {object} util.Response
// @Router /api/projects/{id}/requirements [put]
func (c *ProfileController) UpdateProjectRequirements(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	projectID, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req service.UpdateProjectRequirementsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	project, err := c.SkillProfileService.UpdateProjectRequirements(user.UserID, projectID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, project)
}
