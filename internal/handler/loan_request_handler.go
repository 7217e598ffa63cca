package handler

import (
	"net/http"

	"libraryhub/internal/middleware"
	"libraryhub/internal/service"
	"libraryhub/pkg/pagination"
	"libraryhub/pkg/response"

	"github.com/gin-gonic/gin"
)

type LoanRequestHandler struct {
	loanRequestService service.LoanRequestService
	limiter            *middleware.SubmitLimiter
}

func NewLoanRequestHandler(loanRequestService service.LoanRequestService, limiter *middleware.SubmitLimiter) *LoanRequestHandler {
	return &LoanRequestHandler{loanRequestService: loanRequestService, limiter: limiter}
}

// RegisterRoutes expects router to already require authentication.
func (h *LoanRequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/book-loan-requests")
	{
		submit := []gin.HandlerFunc{h.Submit}
		if h.limiter != nil {
			submit = append([]gin.HandlerFunc{h.limiter.Middleware()}, submit...)
		}
		requests.POST("", submit...)
		requests.GET("", h.List)
		requests.GET("/:id", h.Get)
		requests.PUT("/:id/approve", middleware.RequireRole(staffRoles...), h.Approve)
		requests.PUT("/:id/reject", middleware.RequireRole(staffRoles...), h.Reject)
		requests.PUT("/:id/cancel", h.Cancel)
	}
}

// Submit creates a pending loan request for the caller
// @Summary      Submit a loan request
// @Description  Creates a pending request for the authenticated user. Only one pending request per book and user may exist.
// @Tags         loan-requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitLoanRequestDTO  true  "Book to borrow"
// @Success      201      {object}  response.Response{data=service.LoanRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /api/book-loan-requests [post]
func (h *LoanRequestHandler) Submit(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req service.SubmitLoanRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.loanRequestService.Submit(c.Request.Context(), req.BookID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// List returns loan requests visible to the caller
// @Summary      List loan requests
// @Description  Regular users see their own requests; staff see their campus; global admins see all.
// @Tags         loan-requests
// @Produce      json
// @Security     BearerAuth
// @Param        status        query     string  false  "pending, approved or rejected"
// @Param        requester_id  query     int     false  "Filter by requester"
// @Param        book_id       query     int     false  "Filter by book"
// @Param        page          query     int     false  "Page number"
// @Param        limit         query     int     false  "Page size"
// @Success      200           {object}  response.Response{data=response.Page{items=[]service.LoanRequestResponse}}
// @Router       /api/book-loan-requests [get]
func (h *LoanRequestHandler) List(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	p := pagination.Parse(c)

	requesterID, ok := queryID(c, "requester_id")
	if !ok {
		return
	}
	bookID, ok := queryID(c, "book_id")
	if !ok {
		return
	}

	items, total, err := h.loanRequestService.List(c.Request.Context(), actor, service.LoanRequestFilter{
		Status:      c.Query("status"),
		RequesterID: requesterID,
		BookID:      bookID,
		Page:        p.Page,
		Limit:       p.Limit,
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

// Get returns one loan request
// @Summary      Get a loan request
// @Tags         loan-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Loan request ID"
// @Success      200  {object}  response.Response{data=service.LoanRequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/book-loan-requests/{id} [get]
func (h *LoanRequestHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	result, err := h.loanRequestService.Get(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Approve approves a pending request and opens the loan
// @Summary      Approve a loan request
// @Tags         loan-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Loan request ID"
// @Success      200  {object}  response.Response{data=service.LoanRequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/book-loan-requests/{id}/approve [put]
func (h *LoanRequestHandler) Approve(c *gin.Context) {
	h.decide(c, service.OutcomeApprove)
}

// Reject rejects a pending request
// @Summary      Reject a loan request
// @Tags         loan-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Loan request ID"
// @Success      200  {object}  response.Response{data=service.LoanRequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/book-loan-requests/{id}/reject [put]
func (h *LoanRequestHandler) Reject(c *gin.Context) {
	h.decide(c, service.OutcomeReject)
}

func (h *LoanRequestHandler) decide(c *gin.Context, outcome service.Outcome) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	result, err := h.loanRequestService.Decide(c.Request.Context(), id, actor.ID, outcome)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Cancel withdraws the caller's own pending request
// @Summary      Cancel a loan request
// @Tags         loan-requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Loan request ID"
// @Success      200  {object}  response.Response{data=service.LoanRequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/book-loan-requests/{id}/cancel [put]
func (h *LoanRequestHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)

	result, err := h.loanRequestService.Cancel(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
