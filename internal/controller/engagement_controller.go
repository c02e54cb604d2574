package controller

import (
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

type EngagementController struct {
	IngestService     *service.IngestService
	ActiveTimeService *service.ActiveTimeService
}

func NewEngagementController(ingestService *service.IngestService, activeTimeService *service.ActiveTimeService) *EngagementController {
	return &EngagementController{IngestService: ingestService, ActiveTimeService: activeTimeService}
}

type pingRequest struct {
	ClientTimestamp *time.Time             `json:"clientTimestamp"`
	Page            *string                `json:"page"`
	Meta            map[string]interface{} `json:"meta"`
}

// @Summary 活跃心跳
// @Description 前端每分钟上报一次，同一分钟内重复上报会被忽略
// @Tags 活跃度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body pingRequest false "心跳"
// @Success 200 {object} util.Response
// @Router /api/engagement/ping [post]
func (c *EngagementController) Ping(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req pingRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	created, err := c.IngestService.IngestPing(ctx.Request.Context(), service.PingInput{
		UserID:          user.UserID,
		ClientTimestamp: req.ClientTimestamp,
		Page:            req.Page,
		Meta:            req.Meta,
	})
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"recorded": created})
}

// @Summary 最近 7 天活跃分钟
// @Tags 活跃度
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/engagement/weekly [get]
func (c *EngagementController) Weekly(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	activity, err := c.ActiveTimeService.WeeklyActiveMinutes(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, activity)
}
