package controller

import (
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type XPController struct {
	XPService *service.XPService
}

func NewXPController(xpService *service.XPService) *XPController {
	return &XPController{XPService: xpService}
}

// @Summary 经验与等级
// @Tags 经验
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/xp [get]
func (c *XPController) Summary(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	summary, err := c.XPService.Summary(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, summary)
}

// @Summary 获取排行榜
// @Tags 经验
// @Produce json
// @Security BearerAuth
// @Param limit query int false "返回数量" default(10)
// @Success 200 {object} util.Response
// @Router /api/xp/leaderboard [get]
func (c *XPController) Leaderboard(ctx *gin.Context) {
	limit := 10
	if limitStr := ctx.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	leaderboard, err := c.XPService.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, leaderboard)
}
