package controller

import (
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type WeeklyTaskController struct {
	WeeklyTaskService *service.WeeklyTaskService
	Settings          *service.Settings
}

func NewWeeklyTaskController(weeklyTaskService *service.WeeklyTaskService, settings *service.Settings) *WeeklyTaskController {
	return &WeeklyTaskController{WeeklyTaskService: weeklyTaskService, Settings: settings}
}

// @Summary 本周任务
// @Tags 每周任务
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/weekly-tasks [get]
func (c *WeeklyTaskController) List(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	tasks, err := c.WeeklyTaskService.ListCurrent(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	weekStart, weekEnd := c.WeeklyTaskService.CurrentWeek()
	util.Success(ctx, gin.H{
		"weekStart": weekStart,
		"weekEnd":   weekEnd,
		"tasks":     tasks,
	})
}

// @Summary 评估本周任务
// @Tags 每周任务
// @Produce json
// @Security BearerAuth
// @Param includeActive query bool false "TIME_SPENT 是否计入心跳分钟，默认取配置"
// @Success 200 {object} util.Response
// @Router /api/weekly-tasks/evaluate [post]
func (c *WeeklyTaskController) Evaluate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	include := c.Settings.Get().IncludeActiveMinutesInTimeSpent
	if raw := ctx.Query("includeActive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			util.BadRequest(ctx, "invalid includeActive")
			return
		}
		include = v
	}

	tasks, err := c.WeeklyTaskService.Evaluate(ctx.Request.Context(), user.UserID, include)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, tasks)
}
