package controller

import (
	"academy_backend/internal/model"
	"academy_backend/internal/service"
	"academy_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	WeeklyTaskService *service.WeeklyTaskService
	XPService         *service.XPService
	CatalogService    *service.CatalogService
}

func NewAdminController(
	weeklyTaskService *service.WeeklyTaskService,
	xpService *service.XPService,
	catalogService *service.CatalogService,
) *AdminController {
	return &AdminController{
		WeeklyTaskService: weeklyTaskService,
		XPService:         xpService,
		CatalogService:    catalogService,
	}
}

type assignRequest struct {
	Role  model.UserRole `json:"role" binding:"omitempty,oneof=FREE ENROLLED"`
	Email string         `json:"email" binding:"omitempty,email"`
}

// @Summary 分配本周任务
// @Description 按角色/邮箱筛选学员，幂等
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body assignRequest false "筛选条件"
// @Success 200 {object} util.Response
// @Router /api/admin/weekly-tasks/assign [post]
func (c *AdminController) AssignWeeklyTasks(ctx *gin.Context) {
	var req assignRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	result, err := c.WeeklyTaskService.Assign(ctx.Request.Context(), service.AssignFilter{
		Role:  req.Role,
		Email: req.Email,
	})
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 手动调整经验
// @Description 负数用于修正，总经验不会低于 0
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.ManualAdjustRequest true "调整"
// @Success 200 {object} util.Response
// @Router /api/admin/xp/adjust [post]
func (c *AdminController) AdjustXP(ctx *gin.Context) {
	admin := util.GetUserFromContext(ctx)
	if admin == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.ManualAdjustRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	state, err := c.XPService.AdjustManual(ctx.Request.Context(), admin.UserID, req)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, state)
}

// @Summary 重新导入目录
// @Description 请求体为空时从配置的目录文件读取，否则使用请求体
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CatalogFile false "目录"
// @Success 200 {object} util.Response
// @Router /api/admin/catalog/seed [post]
func (c *AdminController) SeedCatalog(ctx *gin.Context) {
	var (
		result *service.SeedResult
		err    error
	)
	if ctx.Request.ContentLength > 0 {
		var file service.CatalogFile
		if err := ctx.ShouldBindJSON(&file); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
		result, err = c.CatalogService.Seed(ctx.Request.Context(), &file)
		if result != nil {
			result.Source = "request"
		}
	} else {
		result, err = c.CatalogService.SeedFromSource(ctx.Request.Context())
	}
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}

	util.Success(ctx, result)
}
