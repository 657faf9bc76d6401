package controller

import (
	"collabhub_backend/internal/util"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// respondError 将服务层错误映射为 HTTP 状态码；未知错误记录日志后返回 500
func respondError(ctx *gin.Context, err error) {
	var cooldown *util.CooldownError
	switch {
	case errors.As(err, &cooldown):
		ctx.Header("Retry-After", strconv.Itoa(retryAfterSeconds(cooldown)))
		util.ErrorWithData(ctx, http.StatusConflict, err.Error(), gin.H{
			"nextAttemptAt": cooldown.RetryAfter,
		})
	case errors.Is(err, util.ErrValidation):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrAlreadyMember),
		errors.Is(err, util.ErrProjectNotRecruiting),
		errors.Is(err, util.ErrAttemptInProgress),
		errors.Is(err, util.ErrAttemptAlreadyFinalized),
		errors.Is(err, util.ErrAttemptNotStarted),
		errors.Is(err, util.ErrAttemptDeadlinePassed),
		errors.Is(err, util.ErrChallengeLocked),
		errors.Is(err, util.ErrNoChallengeAvailable):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrLockTimeout):
		util.Error(ctx, http.StatusServiceUnavailable, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

func retryAfterSeconds(e *util.CooldownError) int {
	secs := int(time.Until(e.RetryAfter).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// pathID 解析路径参数中的 ID，失败时直接写 400
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// currentUser 未登录时写 401
func currentUser(ctx *gin.Context) (*util.Claims, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return user, true
}
