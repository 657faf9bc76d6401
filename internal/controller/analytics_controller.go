package controller

import (
	"collabhub_backend/internal/service"
	"collabhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AnalyticsController 管理端：效果分析、算法配置与准入重放
type AnalyticsController struct {
	AnalyticsService       *service.AnalyticsService
	AlgorithmConfigService *service.AlgorithmConfigService
	AdmissionService       *service.AdmissionService
}

func NewAnalyticsController(
	analyticsService *service.AnalyticsService,
	algorithmConfigService *service.AlgorithmConfigService,
	admissionService *service.AdmissionService,
) *AnalyticsController {
	return &AnalyticsController{
		AnalyticsService:       analyticsService,
		AlgorithmConfigService: algorithmConfigService,
		AdmissionService:       admissionService,
	}
}

// @Summary 推荐/评估效果
// @Description 基于推荐反馈或评测结果的混淆矩阵近似，以及 precision / recall / F1
// @Tags 管理-分析
// @Produce json
// @Security BearerAuth
// @Param type query string false "recommendation 或 assessment" default(recommendation)
// @Param timeframe query string false "24h / 7d / 30d / 90d / all" default(30d)
// @Success 200 {object} util.Response
// @Router /api/admin/analytics/effectiveness [get]
func (c *AnalyticsController) GetEffectiveness(ctx *gin.Context) {
	metrics, err := c.AnalyticsService.GetEffectivenessMetrics(
		ctx.Request.Context(),
		ctx.DefaultQuery("type", "recommendation"),
		ctx.DefaultQuery("timeframe", util.Timeframe30d),
	)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, metrics)
}

// @Summary 权重调整建议
// @Description 只给出建议，需通过 POST /api/admin/algorithm-config 确认生效
// @Tags 管理-分析
// @Produce json
// @Security BearerAuth
// @Param timeframe query string false "时间窗口" default(30d)
// @Success 200 {object} util.Response
// @Router /api/admin/analytics/suggestions [get]
func (c *AnalyticsController) GetWeightSuggestions(ctx *gin.Context) {
	suggestion, err := c.AnalyticsService.SuggestWeights(ctx.Request.Context(), ctx.DefaultQuery("timeframe", util.Timeframe30d))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, suggestion)
}

// @Summary 当前算法配置
// @Tags 管理-配置
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/admin/algorithm-config [get]
func (c *AnalyticsController) GetAlgorithmConfig(ctx *gin.Context) {
	active, err := c.AlgorithmConfigService.Active(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, active)
}

// @Summary 算法配置历史版本
// @Tags 管理-配置
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/admin/algorithm-config/versions [get]
func (c *AnalyticsController) ListAlgorithmConfigs(ctx *gin.Context) {
	versions, err := c.AlgorithmConfigService.Versions(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, versions)
}

// @Summary 发布新的算法配置版本
// @Description 未提供的字段沿用当前版本；校验失败返回 400
// @Tags 管理-配置
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param config body service.ApplyAlgorithmConfigRequest true "配置"
// @Success 201 {object} util.Response
// @Router /api/admin/algorithm-config [post]
func (c *AnalyticsController) ApplyAlgorithmConfig(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.ApplyAlgorithmConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	applied, err := c.AlgorithmConfigService.ApplyVersion(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, applied)
}

// @Summary 重新执行准入
// @Description 对已终结的尝试重放准入逻辑，可重复调用
// @Tags 管理-准入
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Success 200 {object} util.Response
// @Router /api/admin/attempts/{id}/admission [post]
func (c *AnalyticsController) RerunAdmission(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.AdmissionService.AfterEvaluation(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
