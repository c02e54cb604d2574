package controller

import (
	"academy_backend/internal/model"
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"academy_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
)

// DashboardController 学员首页
type DashboardController struct {
	Dashboard *service.DashboardService
}

func NewDashboardController(dashboard *service.DashboardService) *DashboardController {
	return &DashboardController{Dashboard: dashboard}
}

// @Summary 学习概览
// @Description 活跃时长、课程进度、徽章、本周任务与等级；访问时会分配并评估本周任务。管理员可通过 userId 查看指定学员
// @Tags 仪表盘
// @Produce json
// @Security BearerAuth
// @Param userId query int false "学员ID（仅管理员）"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/dashboard/overview [get]
func (c *DashboardController) Overview(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	userID := claims.UserID
	if raw := ctx.Query("userId"); raw != "" {
		if claims.Role != model.RoleAdmin {
			util.Forbidden(ctx)
			return
		}
		if userID = util.MustParseUint(raw); userID == 0 {
			util.BadRequest(ctx, "invalid userId")
			return
		}
	}
	tracing.AnnotateUser(ctx.Request.Context(), userID)

	overview, err := c.Dashboard.Overview(ctx.Request.Context(), userID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, overview)
}
