package handler

import (
	"net/http"

	"libraryhub/internal/middleware"
	"libraryhub/internal/service"
	"libraryhub/pkg/pagination"
	"libraryhub/pkg/response"

	"github.com/gin-gonic/gin"
)

type LoanHandler struct {
	loanService service.LoanService
}

func NewLoanHandler(loanService service.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

func (h *LoanHandler) RegisterRoutes(router *gin.RouterGroup) {
	loans := router.Group("/loans")
	{
		loans.GET("", h.List)
		loans.PUT("/:id/return", middleware.RequireRole(staffRoles...), h.Return)
		loans.PUT("/:id/cancel", middleware.RequireRole(staffRoles...), h.Cancel)
	}
}

// List returns loans visible to the caller
// @Summary      List loans
// @Tags         loans
// @Produce      json
// @Security     BearerAuth
// @Param        status   query     string  false  "processing, returned or canceled"
// @Param        user_id  query     int     false  "Filter by borrower"
// @Param        page     query     int     false  "Page number"
// @Param        limit    query     int     false  "Page size"
// @Success      200      {object}  response.Response{data=response.Page{items=[]service.LoanResponse}}
// @Router       /api/loans [get]
func (h *LoanHandler) List(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	p := pagination.Parse(c)
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	items, total, err := h.loanService.List(c.Request.Context(), actor, service.LoanFilter{
		Status: c.Query("status"),
		UserID: userID,
		Page:   p.Page,
		Limit:  p.Limit,
	})
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

// Return closes a loan and computes the overdue fine
// @Summary      Return a loan
// @Tags         loans
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Loan ID"
// @Success      200  {object}  response.Response{data=service.LoanResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/loans/{id}/return [put]
func (h *LoanHandler) Return(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	result, err := h.loanService.Return(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Cancel cancels a loan that was never picked up
// @Summary      Cancel a loan
// @Tags         loans
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Loan ID"
// @Success      200  {object}  response.Response{data=service.LoanResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/loans/{id}/cancel [put]
func (h *LoanHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	result, err := h.loanService.Cancel(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
