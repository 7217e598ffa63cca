package handler

import (
	"net/http"

	"libraryhub/internal/middleware"
	"libraryhub/internal/service"
	"libraryhub/pkg/pagination"
	"libraryhub/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the admin dashboard counters and the activity feed.
type DashboardHandler struct {
	dashboardService   service.DashboardService
	activityLogService service.ActivityLogService
}

func NewDashboardHandler(dashboardService service.DashboardService, activityLogService service.ActivityLogService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService, activityLogService: activityLogService}
}

func (h *DashboardHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/dashboard/summary", middleware.RequireRole(staffRoles...), h.Summary)
	router.GET("/activity-logs", middleware.RequireRole(adminRoles...), h.ActivityLogs)
}

// Summary returns the dashboard counters
// @Summary      Dashboard summary
// @Description  Counts are computed on every call. Clients refetch after a dashboard.summary.updated event.
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=model.DashboardSummary}
// @Router       /api/dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.dashboardService.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// ActivityLogs lists activity entries newest first
// @Summary      List activity logs
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  response.Response{data=response.Page{items=[]service.ActivityLogResponse}}
// @Router       /api/activity-logs [get]
func (h *DashboardHandler) ActivityLogs(c *gin.Context) {
	p := pagination.Parse(c)
	items, total, err := h.activityLogService.List(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: pagination.TotalPages(total, p.Limit),
	}))
}
