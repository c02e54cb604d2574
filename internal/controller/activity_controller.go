package controller

import (
	"academy_backend/internal/model"
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"academy_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
)

type ActivityController struct {
	IngestService *service.IngestService
}

func NewActivityController(ingestService *service.IngestService) *ActivityController {
	return &ActivityController{IngestService: ingestService}
}

// @Summary 上报领域事件
// @Description 作业提交、测验通过、课程出勤、文章发布、观看进度；发放经验并评估徽章
// @Tags 活跃度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.EventInput true "事件"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/activity/events [post]
func (c *ActivityController) Publish(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.EventInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	// 只有内容系统（管理员/讲师令牌）可以代替其他用户上报
	if req.UserID == 0 {
		req.UserID = user.UserID
	} else if req.UserID != user.UserID && user.Role != model.RoleAdmin && user.Role != model.RoleLecturer {
		util.Forbidden(ctx)
		return
	}

	tracing.AnnotateUser(ctx.Request.Context(), req.UserID)
	result, err := c.IngestService.Publish(ctx.Request.Context(), req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, result)
}
